package order

import (
	"context"
	"errors"
	"sync"

	"sagra-pos/internal/ledger"
)

// ErrStoreClosed is returned by Do once the store loop has stopped.
var ErrStoreClosed = errors.New("order store closed")

type op struct {
	fn     func(ledger.Ledger) error
	result chan error
}

// Store serializes every access to the ledger through one goroutine. HTTP
// handlers and background loads both go through Do, so they observe and
// apply changes in arrival order.
type Store struct {
	ledger ledger.Ledger

	mu     sync.Mutex
	ops    []op
	closed bool
	signal chan struct{}
	done   chan struct{}
}

func NewStore(l ledger.Ledger) *Store {
	return &Store{
		ledger: l,
		ops:    make([]op, 0, 16),
		signal: make(chan struct{}, 1),
		done:   make(chan struct{}),
	}
}

// Run applies queued operations until ctx is cancelled.
// Must be called from exactly one goroutine.
func (s *Store) Run(ctx context.Context) error {
	defer close(s.done)

	for {
		if o, ok := s.next(); ok {
			o.result <- o.fn(s.ledger)
			continue
		}

		select {
		case <-ctx.Done():
			s.shutdown()
			return ctx.Err()
		case <-s.signal:
		}
	}
}

func (s *Store) next() (op, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.ops) == 0 {
		return op{}, false
	}
	o := s.ops[0]
	s.ops[0] = op{}
	s.ops = s.ops[1:]
	return o, true
}

// shutdown fails every operation still queued
func (s *Store) shutdown() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.closed = true
	for _, o := range s.ops {
		o.result <- ErrStoreClosed
	}
	s.ops = nil
}

// Do queues fn and waits for its result. When ctx ends first Do returns
// ctx.Err(), but fn still runs once its turn comes.
func (s *Store) Do(ctx context.Context, fn func(ledger.Ledger) error) error {
	o := op{fn: fn, result: make(chan error, 1)}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrStoreClosed
	}
	s.ops = append(s.ops, o)
	s.mu.Unlock()

	select {
	case s.signal <- struct{}{}:
	default:
	}

	select {
	case err := <-o.result:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Done is closed when Run has returned.
func (s *Store) Done() <-chan struct{} {
	return s.done
}
