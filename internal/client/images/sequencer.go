package images

import (
	"context"
	"sync"
)

// sequencer runs operations on the same key one at a time, in the order
// acquire was called. Different keys do not wait for each other.
type sequencer struct {
	mu    sync.Mutex
	tails map[string]chan struct{}
}

func newSequencer() *sequencer {
	return &sequencer{tails: make(map[string]chan struct{})}
}

// acquire queues behind the previous holder of key. If ctx ends first the
// caller gives up its turn, but the queue position is kept until the
// predecessor finishes so later callers still run in order.
func (s *sequencer) acquire(ctx context.Context, key string) (func(), error) {
	done := make(chan struct{})

	s.mu.Lock()
	prev := s.tails[key]
	s.tails[key] = done
	s.mu.Unlock()

	release := func() {
		s.mu.Lock()
		if s.tails[key] == done {
			delete(s.tails, key)
		}
		s.mu.Unlock()
		close(done)
	}

	if prev == nil {
		return release, nil
	}

	select {
	case <-prev:
		return release, nil
	case <-ctx.Done():
		go func() {
			<-prev
			release()
		}()
		return nil, ctx.Err()
	}
}
