package timectrl

import (
	"context"
	"sync"
	"time"
)

// SimClock is an interface for accessing simulation time. Motion models and
// viewers depend on it rather than on the concrete controller.
type SimClock interface {
	// Now returns the current simulation time.
	Now() time.Time
}

// Mode describes how the TimeController advances simulation time.
type Mode int

const (
	// RealTime advances according to wall-clock time.
	RealTime Mode = iota
	// Accelerated advances as quickly as the loop can run while still stepping by Tick.
	Accelerated
)

// TimeController drives simulation time at two cadences: a render frame
// every Tick and a fixed physics step every FixedStep. Fixed steps owed by a
// frame run before that frame's listeners, so physics never lags rendering.
type TimeController struct {
	mu        sync.RWMutex
	StartTime time.Time
	Tick      time.Duration
	FixedStep time.Duration
	Mode      Mode

	currentTime time.Time
	fixedTime   time.Time
	accumulator time.Duration
	frames      uint64
	steps       uint64

	listeners      []func(time.Time)
	fixedListeners []func(time.Time)
}

// NewTimeController constructs a controller. A non-positive fixedStep makes
// the physics step equal to the frame tick.
func NewTimeController(start time.Time, tick, fixedStep time.Duration, mode Mode) *TimeController {
	if fixedStep <= 0 {
		fixedStep = tick
	}
	return &TimeController{
		StartTime:   start,
		Tick:        tick,
		FixedStep:   fixedStep,
		Mode:        mode,
		currentTime: start,
		fixedTime:   start,
	}
}

// Now returns the current simulation time. Implements SimClock.
func (tc *TimeController) Now() time.Time {
	tc.mu.RLock()
	defer tc.mu.RUnlock()
	return tc.currentTime
}

// SetTime jumps simulation time. Pending physics time is discarded.
func (tc *TimeController) SetTime(t time.Time) {
	tc.mu.Lock()
	defer tc.mu.Unlock()
	tc.currentTime = t
	tc.fixedTime = t
	tc.accumulator = 0
}

// Counts returns how many frames and fixed steps have run.
func (tc *TimeController) Counts() (frames, steps uint64) {
	tc.mu.RLock()
	defer tc.mu.RUnlock()
	return tc.frames, tc.steps
}

// AddListener registers a callback invoked once per frame.
func (tc *TimeController) AddListener(fn func(time.Time)) {
	tc.listeners = append(tc.listeners, fn)
}

// AddFixedListener registers a callback invoked once per physics step.
func (tc *TimeController) AddFixedListener(fn func(time.Time)) {
	tc.fixedListeners = append(tc.fixedListeners, fn)
}

// Advance moves time forward by one frame on the calling goroutine: it runs
// every fixed step that fits, then the frame listeners. It returns the new
// simulation time. Loops that own their own pacing, such as the terminal
// console, call it directly.
func (tc *TimeController) Advance() time.Time {
	tc.mu.Lock()
	tc.currentTime = tc.currentTime.Add(tc.Tick)
	tc.accumulator += tc.Tick
	var stepTimes []time.Time
	for tc.FixedStep > 0 && tc.accumulator >= tc.FixedStep {
		tc.accumulator -= tc.FixedStep
		tc.fixedTime = tc.fixedTime.Add(tc.FixedStep)
		stepTimes = append(stepTimes, tc.fixedTime)
	}
	tc.frames++
	tc.steps += uint64(len(stepTimes))
	now := tc.currentTime
	tc.mu.Unlock()

	for _, st := range stepTimes {
		for _, fn := range tc.fixedListeners {
			fn(st)
		}
	}
	for _, fn := range tc.listeners {
		fn(now)
	}
	return now
}

// Start runs the controller for the specified duration in a separate goroutine.
// It returns a channel that is closed when the controller finishes.
func (tc *TimeController) Start(duration time.Duration) <-chan struct{} {
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = tc.Run(context.Background(), duration)
	}()
	return done
}

// Run advances frames until duration of simulation time has passed or ctx
// is cancelled. A zero duration runs until cancellation. RealTime paces
// frames with a ticker; Accelerated runs them back to back.
func (tc *TimeController) Run(ctx context.Context, duration time.Duration) error {
	tc.SetTime(tc.StartTime)

	var tick <-chan time.Time
	if tc.Mode == RealTime {
		ticker := time.NewTicker(tc.Tick)
		defer ticker.Stop()
		tick = ticker.C
	}

	elapsed := time.Duration(0)
	for {
		if duration > 0 && elapsed >= duration {
			return nil
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if tick != nil {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-tick:
			}
		}
		tc.Advance()
		elapsed += tc.Tick
	}
}
