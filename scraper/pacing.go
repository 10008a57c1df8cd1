package scraper

import (
	"context"
	"math/rand"
	"time"
)

// Pacer spaces out requests to the site: a random pause after every listing
// and a long pause after every LongEvery listings.
type Pacer struct {
	Min       time.Duration
	Max       time.Duration
	Long      time.Duration
	LongEvery int

	sleep func(ctx context.Context, d time.Duration) error
}

func NewPacer(min, max, long time.Duration, longEvery int) *Pacer {
	if max < min {
		max = min
	}
	return &Pacer{Min: min, Max: max, Long: long, LongEvery: longEvery, sleep: sleepCtx}
}

// Delay returns the pause owed after the processed-th listing.
func (p *Pacer) Delay(processed int) time.Duration {
	if p.LongEvery > 0 && processed > 0 && processed%p.LongEvery == 0 && p.Long > 0 {
		return p.Long
	}
	if p.Max <= p.Min {
		return p.Min
	}
	return p.Min + time.Duration(rand.Int63n(int64(p.Max-p.Min)))
}

// Wait sleeps for Delay(processed) or until ctx is done.
func (p *Pacer) Wait(ctx context.Context, processed int) error {
	d := p.Delay(processed)
	if d <= 0 {
		return ctx.Err()
	}
	return p.sleep(ctx, d)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
