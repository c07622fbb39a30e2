package pace

import (
	"context"
	"log/slog"
	"math/rand"
	"sync"
	"time"
)

// Pacer inserts randomized pauses between requests to the remote host.
type Pacer interface {
	Pause(ctx context.Context, min, max time.Duration) error
}

// Random sleeps for a uniformly distributed duration in [min, max].
type Random struct {
	mu  sync.Mutex
	rnd *rand.Rand
}

func NewRandom() *Random {
	return &Random{rnd: rand.New(rand.NewSource(time.Now().UnixNano()))}
}

func (r *Random) Pause(ctx context.Context, min, max time.Duration) error {
	d := r.Duration(min, max)
	if d <= 0 {
		return ctx.Err()
	}

	slog.Debug("Pausing", "duration", d.Round(time.Millisecond).String())

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Duration picks the pause length without sleeping.
func (r *Random) Duration(min, max time.Duration) time.Duration {
	if max <= min {
		return min
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	return min + time.Duration(r.rnd.Int63n(int64(max-min)+1))
}
