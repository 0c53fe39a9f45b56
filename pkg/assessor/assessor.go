// Package assessor turns per-frame eye and mouth aspect ratios into debounced
// drowsy and yawning states and a rolling blink count.
//
// Both states are slow to trigger and instant to clear: a state turns on only
// after its condition has held for a configured run of consecutive frames and
// turns off on the first frame where it does not hold.
package assessor

import (
	"math"
	"time"

	"github.com/MrCodeEU/drowsiguard/pkg/config"
)

// Thresholds configures the assessor.
type Thresholds struct {
	// EAR below this value means the eyes are closed.
	EAR       float64
	EARFrames int
	// MAR above this value means the mouth is open.
	MAR       float64
	MARFrames int
	// BlinkDebounce is the minimum spacing between two registered blinks.
	BlinkDebounce time.Duration
	// BlinkWindow is the trailing window the blink rate counts over.
	BlinkWindow time.Duration
}

// DefaultThresholds returns the stock thresholds.
func DefaultThresholds() Thresholds {
	return Thresholds{
		EAR:           0.20,
		EARFrames:     50,
		MAR:           0.5,
		MARFrames:     50,
		BlinkDebounce: 300 * time.Millisecond,
		BlinkWindow:   60 * time.Second,
	}
}

// ThresholdsFromConfig maps the detection config section onto Thresholds.
func ThresholdsFromConfig(c config.DetectionConfig) Thresholds {
	return Thresholds{
		EAR:           c.EARThreshold,
		EARFrames:     c.EARFrames,
		MAR:           c.MARThreshold,
		MARFrames:     c.MARFrames,
		BlinkDebounce: c.BlinkDebounce,
		BlinkWindow:   c.BlinkWindow,
	}
}

// EyeState is the open/closed state of the eyes on one frame.
type EyeState int

const (
	EyeOpen EyeState = iota
	EyeClosed
)

func (s EyeState) String() string {
	if s == EyeClosed {
		return "CLOSED"
	}
	return "OPEN"
}

// Transition reports what changed on an Update.
type Transition struct {
	DrowsyStarted bool
	DrowsyEnded   bool
	YawnStarted   bool
	YawnEnded     bool
	Blinked       bool
}

// State is a read-only copy of the assessor internals.
type State struct {
	EARRun     int
	MARRun     int
	Drowsy     bool
	Yawning    bool
	LastEye    EyeState
	BlinkRate  int
	BlinkCount int
}

// Assessor is the per-stream state machine. It is not safe for concurrent use;
// one goroutine owns it and feeds frames in order.
type Assessor struct {
	th Thresholds

	earRun  int
	marRun  int
	drowsy  bool
	yawning bool

	lastEye    EyeState
	lastBlink  time.Time
	blinks     []time.Time
	blinkCount int
}

// New returns an assessor with eyes initially open.
func New(th Thresholds) *Assessor {
	return &Assessor{th: th, lastEye: EyeOpen}
}

// Update advances the state machine by one frame observed at the given time.
// Non-finite ratios mean the frame has no usable metrics and leave the state
// untouched.
func (a *Assessor) Update(ear, mar float64, at time.Time) Transition {
	var tr Transition
	if !usable(ear) || !usable(mar) {
		return tr
	}

	wasDrowsy, wasYawning := a.drowsy, a.yawning

	eye := EyeOpen
	if ear < a.th.EAR {
		eye = EyeClosed
		a.earRun++
	} else {
		a.earRun = 0
		a.drowsy = false
	}
	if a.earRun >= a.th.EARFrames {
		a.drowsy = true
	}

	if a.lastEye == EyeOpen && eye == EyeClosed {
		if a.lastBlink.IsZero() || at.Sub(a.lastBlink) >= a.th.BlinkDebounce {
			a.blinks = append(a.blinks, at)
			a.lastBlink = at
			a.blinkCount++
			tr.Blinked = true
		}
	}
	a.lastEye = eye
	a.evict(at)

	if mar > a.th.MAR {
		a.marRun++
	} else {
		a.marRun = 0
		a.yawning = false
	}
	if a.marRun >= a.th.MARFrames {
		a.yawning = true
	}

	tr.DrowsyStarted = a.drowsy && !wasDrowsy
	tr.DrowsyEnded = !a.drowsy && wasDrowsy
	tr.YawnStarted = a.yawning && !wasYawning
	tr.YawnEnded = !a.yawning && wasYawning
	return tr
}

// evict drops blinks that are at least one window older than now.
func (a *Assessor) evict(now time.Time) {
	i := 0
	for i < len(a.blinks) && now.Sub(a.blinks[i]) >= a.th.BlinkWindow {
		i++
	}
	if i > 0 {
		a.blinks = append(a.blinks[:0], a.blinks[i:]...)
	}
}

// Drowsy reports whether the eyes have been closed for the configured run.
func (a *Assessor) Drowsy() bool { return a.drowsy }

// Yawning reports whether the mouth has been open for the configured run.
func (a *Assessor) Yawning() bool { return a.yawning }

// BlinkRate is the number of blinks within the trailing window as of the
// last update. Sessions younger than the window report the raw count.
func (a *Assessor) BlinkRate() int { return len(a.blinks) }

// BlinkCount is the total number of blinks registered.
func (a *Assessor) BlinkCount() int { return a.blinkCount }

// State returns a copy of the current state.
func (a *Assessor) State() State {
	return State{
		EARRun:     a.earRun,
		MARRun:     a.marRun,
		Drowsy:     a.drowsy,
		Yawning:    a.yawning,
		LastEye:    a.lastEye,
		BlinkRate:  len(a.blinks),
		BlinkCount: a.blinkCount,
	}
}

// Reset returns the assessor to its initial state.
func (a *Assessor) Reset() {
	*a = Assessor{th: a.th, lastEye: EyeOpen}
}

func usable(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
