package usecase

import "limetuna/internal/ports"

type session struct {
	id         string
	generation uint64
	sink       ports.ResponseSink
}

// take hands out the sink once; later calls return nil.
func (s *session) take() ports.ResponseSink {
	sink := s.sink
	s.sink = nil
	return sink
}

func release(sink ports.ResponseSink) {
	if sink == nil {
		return
	}
	if r, ok := sink.(ports.Releaser); ok {
		r.Release()
	}
}
