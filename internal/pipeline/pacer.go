package pipeline

import (
	"context"
	"time"

	"golang.org/x/time/rate"

	"cinecrawler/internal/config"
)

// Pacer spaces out card processing: a fixed delay after every card, with an
// optional token bucket on top for stricter politeness.
type Pacer struct {
	delay   time.Duration
	limiter *rate.Limiter
}

// NewPacer builds a pacer from pacing configuration.
func NewPacer(cfg config.PacingConfig) *Pacer {
	p := &Pacer{delay: cfg.CardDelay.Duration}
	if rl := cfg.RateLimit; rl.Requests > 0 && rl.Window.Duration > 0 {
		interval := rl.Window.Duration / time.Duration(rl.Requests)
		if interval <= 0 {
			interval = time.Millisecond
		}
		p.limiter = rate.NewLimiter(rate.Every(interval), rl.Requests)
	}
	return p
}

// Wait blocks for the configured pacing interval, honouring cancellation.
func (p *Pacer) Wait(ctx context.Context) error {
	if p == nil {
		return nil
	}
	if p.delay > 0 {
		timer := time.NewTimer(p.delay)
		defer timer.Stop()
		select {
		case <-timer.C:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	if p.limiter != nil {
		return p.limiter.Wait(ctx)
	}
	return nil
}
