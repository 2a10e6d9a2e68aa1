package usecase

import (
	"errors"
	"sync"
)

var errLoopClosed = errors.New("main loop is closed")

// mainLoop runs posted closures one at a time on a single goroutine.
// Posting never blocks, so closures may post further work.
type mainLoop struct {
	mu     sync.Mutex
	queue  []func()
	closed bool
	wake   chan struct{}
	done   chan struct{}
}

func newMainLoop() *mainLoop {
	l := &mainLoop{
		wake: make(chan struct{}, 1),
		done: make(chan struct{}),
	}
	go l.run()
	return l
}

func (l *mainLoop) post(fn func()) error {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return errLoopClosed
	}
	l.queue = append(l.queue, fn)
	l.mu.Unlock()
	l.signal()
	return nil
}

// shutdown stops accepting work. Closures already queued still run.
func (l *mainLoop) shutdown() {
	l.mu.Lock()
	l.closed = true
	l.mu.Unlock()
	l.signal()
}

func (l *mainLoop) wait() {
	<-l.done
}

func (l *mainLoop) signal() {
	select {
	case l.wake <- struct{}{}:
	default:
	}
}

func (l *mainLoop) run() {
	defer close(l.done)

	for {
		l.mu.Lock()
		if len(l.queue) == 0 {
			closed := l.closed
			l.mu.Unlock()
			if closed {
				return
			}
			<-l.wake
			continue
		}
		fn := l.queue[0]
		l.queue[0] = nil
		l.queue = l.queue[1:]
		l.mu.Unlock()

		fn()
	}
}
