package notify

import (
	"errors"
	"sync"
	"time"
)

var errCircuitOpen = errors.New("circuit open")

type breakerState int

const (
	stateClosed breakerState = iota
	stateOpen
	stateHalfOpen
)

type urlState struct {
	state               breakerState
	consecutiveFailures int
	openedAt            time.Time
}

// breaker trips per destination URL after a run of consecutive failures and
// lets a single probe through once the cooldown elapses.
type breaker struct {
	mu        sync.Mutex
	states    map[string]*urlState
	threshold int
	cooldown  time.Duration
	clock     func() time.Time
}

func newBreaker(threshold int, cooldown time.Duration) *breaker {
	return &breaker{
		states:    make(map[string]*urlState),
		threshold: threshold,
		cooldown:  cooldown,
		clock:     time.Now,
	}
}

func (b *breaker) allow(url string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	s, ok := b.states[url]
	if !ok {
		return nil
	}

	switch s.state {
	case stateClosed:
		return nil
	case stateOpen:
		if b.clock().Sub(s.openedAt) >= b.cooldown {
			s.state = stateHalfOpen
			return nil
		}
		return errCircuitOpen
	case stateHalfOpen:
		return errCircuitOpen
	default:
		return nil
	}
}

func (b *breaker) recordSuccess(url string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	s, ok := b.states[url]
	if !ok {
		return
	}
	s.state = stateClosed
	s.consecutiveFailures = 0
}

func (b *breaker) recordFailure(url string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	s, ok := b.states[url]
	if !ok {
		s = &urlState{}
		b.states[url] = s
	}

	s.consecutiveFailures++
	if s.consecutiveFailures >= b.threshold {
		s.state = stateOpen
		s.openedAt = b.clock()
	}
}
