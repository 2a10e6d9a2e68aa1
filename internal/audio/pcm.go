package audio

// appendInt16LE appends samples to dst as little-endian signed 16-bit PCM.
func appendInt16LE(dst []byte, samples []int16) []byte {
	for _, v := range samples {
		dst = append(dst, byte(v), byte(v>>8))
	}
	return dst
}

// frameReader serves fixed-size capture frames through io.Reader semantics,
// carrying bytes that did not fit the caller's buffer into the next Read.
type frameReader struct {
	pending []byte
	next    func() ([]byte, error)
}

func (r *frameReader) Read(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	if len(r.pending) == 0 {
		frame, err := r.next()
		if err != nil {
			return 0, err
		}
		r.pending = frame
	}
	n := copy(p, r.pending)
	r.pending = r.pending[n:]
	return n, nil
}
