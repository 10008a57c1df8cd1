package scraper

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestPacer_Delay(t *testing.T) {
	p := NewPacer(time.Second, 5*time.Second, time.Minute, 10)

	for i := 1; i < 10; i++ {
		d := p.Delay(i)
		assert.GreaterOrEqual(t, d, time.Second)
		assert.Less(t, d, 5*time.Second)
	}
	assert.Equal(t, time.Minute, p.Delay(10))
	assert.Equal(t, time.Minute, p.Delay(20))
}

func TestPacer_FixedWhenRangeEmpty(t *testing.T) {
	p := NewPacer(2*time.Second, time.Second, 0, 10)
	assert.Equal(t, 2*time.Second, p.Delay(3))
	assert.Equal(t, 2*time.Second, p.Delay(10), "no long pause configured")
}

func TestPacer_Wait(t *testing.T) {
	var slept []time.Duration
	p := NewPacer(time.Second, time.Second, time.Minute, 2)
	p.sleep = func(_ context.Context, d time.Duration) error {
		slept = append(slept, d)
		return nil
	}

	for i := 1; i <= 4; i++ {
		assert.NoError(t, p.Wait(context.Background(), i))
	}
	assert.Equal(t, []time.Duration{time.Second, time.Minute, time.Second, time.Minute}, slept)
}

func TestPacer_WaitCancelled(t *testing.T) {
	p := NewPacer(time.Hour, time.Hour, 0, 0)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	start := time.Now()
	assert.ErrorIs(t, p.Wait(ctx, 1), context.Canceled)
	assert.Less(t, time.Since(start), time.Second)
}
