package alertlist

import (
	"context"
	"errors"
	"sync"
)

// ErrStoreClosed is returned by Dispatch once Run has returned.
var ErrStoreClosed = errors.New("alertlist: store closed")

// Observer is notified after every applied command with the resulting state.
// It runs on the store goroutine and must not block or dispatch.
type Observer func(cmd Command, next RulesState)

type dispatchReq struct {
	cmd     Command
	applied chan RulesState
}

// Store owns a RulesState and applies commands one at a time. Any number of
// goroutines may Dispatch; only the Run goroutine writes the state.
type Store struct {
	reducer   *Reducer
	observers []Observer

	cmds     chan dispatchReq
	done     chan struct{}
	doneOnce sync.Once

	mu     sync.RWMutex
	state  RulesState
	subs   map[int]chan RulesState
	nextID int
	closed bool
}

// NewStore returns a store in the initial state. A nil reducer uses the
// wall clock.
func NewStore(reducer *Reducer, observers ...Observer) *Store {
	if reducer == nil {
		reducer = defaultReducer
	}
	return &Store{
		reducer:   reducer,
		observers: observers,
		cmds:      make(chan dispatchReq),
		done:      make(chan struct{}),
		state:     InitialState(),
		subs:      make(map[int]chan RulesState),
	}
}

// Run applies dispatched commands until ctx is done. It must be called once.
func (s *Store) Run(ctx context.Context) {
	defer s.shutdown()
	for {
		select {
		case <-ctx.Done():
			return
		case req := <-s.cmds:
			req.applied <- s.apply(req.cmd)
		}
	}
}

func (s *Store) apply(cmd Command) RulesState {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.state = s.reducer.Reduce(s.state, cmd)
	for _, fn := range s.observers {
		fn(cmd, s.state)
	}
	for _, ch := range s.subs {
		publish(ch, s.state)
	}
	return s.state
}

// publish delivers st without blocking, replacing an undelivered snapshot.
func publish(ch chan RulesState, st RulesState) {
	select {
	case ch <- st:
		return
	default:
	}
	select {
	case <-ch:
	default:
	}
	select {
	case ch <- st:
	default:
	}
}

func (s *Store) shutdown() {
	s.doneOnce.Do(func() { close(s.done) })

	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	for id, ch := range s.subs {
		close(ch)
		delete(s.subs, id)
	}
}

// Dispatch applies cmd and returns the resulting state.
func (s *Store) Dispatch(ctx context.Context, cmd Command) (RulesState, error) {
	req := dispatchReq{cmd: cmd, applied: make(chan RulesState, 1)}
	select {
	case <-ctx.Done():
		return RulesState{}, ctx.Err()
	case <-s.done:
		return RulesState{}, ErrStoreClosed
	case s.cmds <- req:
	}
	select {
	case <-ctx.Done():
		return RulesState{}, ctx.Err()
	case st := <-req.applied:
		return st, nil
	}
}

// State returns the latest snapshot.
func (s *Store) State() RulesState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// Subscribe returns a channel that receives the state after each command.
// Slow readers only see the latest snapshot. The channel is closed by the
// returned cancel func or when the store stops.
func (s *Store) Subscribe() (<-chan RulesState, func()) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ch := make(chan RulesState, 1)
	if s.closed {
		close(ch)
		return ch, func() {}
	}
	id := s.nextID
	s.nextID++
	s.subs[id] = ch

	return ch, func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		if c, ok := s.subs[id]; ok {
			close(c)
			delete(s.subs, id)
		}
	}
}
