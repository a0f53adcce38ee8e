// Package xsignal implements a generic publish/subscribe signal: a typed
// event with any number of subscribers, each shielded from the others by a
// recover boundary so one misbehaving handler cannot take down the rest.
package xsignal

import (
	"sync"

	"github.com/charmbracelet/log"
)

// Handle identifies one subscription so it can later be removed with
// Disconnect. It carries no exported fields; callers only ever compare or
// pass it back.
type Handle struct {
	id uint64
}

type subscription[T any] struct {
	id   uint64
	fn   func(T)
	once bool
}

// Signal is a typed event with zero or more subscribers. The zero value is
// ready to use. A Signal must not be copied after first use.
type Signal[T any] struct {
	mu     sync.Mutex
	subs   []*subscription[T]
	nextID uint64
	logger *log.Logger
}

// New builds a Signal that logs subscriber panics through logger. A nil
// logger disables that logging (panics are still recovered, just silently).
func New[T any](logger *log.Logger) *Signal[T] {
	return &Signal[T]{logger: logger}
}

// Connect subscribes fn to every future Emit.
func (s *Signal[T]) Connect(fn func(T)) Handle {
	return s.add(fn, false)
}

// ConnectOnce subscribes fn to exactly the next Emit, then disconnects it.
func (s *Signal[T]) ConnectOnce(fn func(T)) Handle {
	return s.add(fn, true)
}

func (s *Signal[T]) add(fn func(T), once bool) Handle {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextID++
	id := s.nextID
	s.subs = append(s.subs, &subscription[T]{id: id, fn: fn, once: once})

	return Handle{id: id}
}

// Disconnect removes the subscription identified by h, if still connected.
func (s *Signal[T]) Disconnect(h Handle) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i, sub := range s.subs {
		if sub.id == h.id {
			s.subs = append(s.subs[:i], s.subs[i+1:]...)
			return
		}
	}
}

// Connected reports how many subscribers are currently attached.
func (s *Signal[T]) Connected() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return len(s.subs)
}

// Emit calls every subscriber with v, in connection order. Each call runs
// inside its own recover boundary: a panicking subscriber is logged and
// skipped, and the remaining subscribers still run. Oneshot subscribers are
// removed after this call regardless of whether they panicked.
func (s *Signal[T]) Emit(v T) {
	s.mu.Lock()
	subs := make([]*subscription[T], len(s.subs))
	copy(subs, s.subs)
	s.mu.Unlock()

	var oneshots []uint64

	for _, sub := range subs {
		s.invoke(sub, v)

		if sub.once {
			oneshots = append(oneshots, sub.id)
		}
	}

	if len(oneshots) == 0 {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, id := range oneshots {
		for i, sub := range s.subs {
			if sub.id == id {
				s.subs = append(s.subs[:i], s.subs[i+1:]...)
				break
			}
		}
	}
}

func (s *Signal[T]) invoke(sub *subscription[T], v T) {
	defer func() {
		if r := recover(); r != nil && s.logger != nil {
			s.logger.Error("panic in signal subscriber", "recovered", r)
		}
	}()

	sub.fn(v)
}
