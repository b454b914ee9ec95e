package source

import (
	"context"
	"sync"
	"time"
)

// Pacer spaces request starts by a fixed interval. It is shared by all
// fetch tasks of a run and is safe for concurrent use. A zero interval
// never waits.
type Pacer struct {
	mu       sync.Mutex
	interval time.Duration
	next     time.Time
}

// NewPacer creates a pacer that lets one request start per interval.
func NewPacer(interval time.Duration) *Pacer {
	if interval < 0 {
		interval = 0
	}
	return &Pacer{interval: interval}
}

// Wait blocks until the caller's slot arrives or ctx is done.
func (p *Pacer) Wait(ctx context.Context) error {
	if p == nil || p.interval == 0 {
		return ctx.Err()
	}

	p.mu.Lock()
	now := time.Now()
	if p.next.Before(now) {
		p.next = now
	}
	delay := p.next.Sub(now)
	p.next = p.next.Add(p.interval)
	p.mu.Unlock()

	if delay <= 0 {
		return ctx.Err()
	}

	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
