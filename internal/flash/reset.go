package flash

import (
	"context"
	"fmt"
	"time"
)

// ResetTiming holds the delays of the double reset
type ResetTiming struct {
	Hold time.Duration // RTS asserted
	Gap  time.Duration // between the two pulses
}

func DefaultResetTiming() ResetTiming {
	return ResetTiming{Hold: 100 * time.Millisecond, Gap: 3000 * time.Millisecond}
}

// SignalSetter drives the DTR and RTS lines together
type SignalSetter interface {
	SetSignals(dtr, rts bool) error
}

// Sleeper waits d or until ctx is done
type Sleeper func(ctx context.Context, d time.Duration) error

// SleepContext is the default Sleeper
func SleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// DoubleReset pulses RTS (wired to EN on ESP boards) twice with DTR held low,
// so the chip leaves the bootloader and boots the new image:
//
//	assert, hold, release, gap, assert, hold, release, release
//
// The final release is repeated to make sure the lines end up deasserted.
func DoubleReset(ctx context.Context, dev SignalSetter, timing ResetTiming, sleep Sleeper) error {
	if sleep == nil {
		sleep = SleepContext
	}

	steps := []struct {
		rts  bool
		wait time.Duration
	}{
		{true, timing.Hold},
		{false, timing.Gap},
		{true, timing.Hold},
		{false, 0},
		{false, 0},
	}

	for i, step := range steps {
		if err := dev.SetSignals(false, step.rts); err != nil {
			return fmt.Errorf("reset step %d: %w", i+1, err)
		}
		if step.wait > 0 {
			if err := sleep(ctx, step.wait); err != nil {
				return err
			}
		}
	}
	return nil
}
