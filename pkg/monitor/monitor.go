// Package monitor runs the per-frame pipeline: landmarks in, metrics, head
// pose, debounced states, session logging and alerts out.
//
// A Pipeline is owned by a single goroutine that feeds frames in arrival
// order. The only state other goroutines may touch is the latest snapshot and
// the current session, both handed off through guarded slots.
package monitor

import (
	"math"
	"sync/atomic"
	"time"

	"github.com/MrCodeEU/drowsiguard/pkg/assessor"
	"github.com/MrCodeEU/drowsiguard/pkg/clock"
	"github.com/MrCodeEU/drowsiguard/pkg/config"
	"github.com/MrCodeEU/drowsiguard/pkg/distraction"
	"github.com/MrCodeEU/drowsiguard/pkg/features"
	"github.com/MrCodeEU/drowsiguard/pkg/headpose"
	"github.com/MrCodeEU/drowsiguard/pkg/landmarks"
	"github.com/MrCodeEU/drowsiguard/pkg/logging"
	"github.com/MrCodeEU/drowsiguard/pkg/session"
)

// Result describes what one Process call did.
type Result struct {
	// Face is false when the frame had no usable landmarks; nothing else
	// was updated.
	Face bool
	// PoseOK is false when the pose solve failed for this frame.
	PoseOK     bool
	Metrics    features.Metrics
	Angles     headpose.Angles
	Distracted bool
	Transition assessor.Transition
	Snapshot   Snapshot
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithSolver replaces the pose solver.
func WithSolver(s headpose.Solver) Option {
	return func(p *Pipeline) { p.estimator.Solver = s }
}

// WithAlerter replaces the alarm sink.
func WithAlerter(a Alerter) Option {
	return func(p *Pipeline) { p.alerter = a }
}

// WithClock sets the clock sessions are timed with.
func WithClock(c clock.Clock) Option {
	return func(p *Pipeline) { p.clock = c }
}

// Pipeline wires the per-frame components together.
type Pipeline struct {
	width, height int
	policy        string

	estimator  *headpose.Estimator
	classifier distraction.Classifier
	assessor   *assessor.Assessor
	alerter    Alerter
	clock      clock.Clock

	session  atomic.Pointer[session.Session]
	snapshot SnapshotSlot

	prevFrame      time.Time
	lastPitch      float64
	lastYaw        float64
	prevDistracted bool
}

// New builds a pipeline from configuration.
func New(cfg *config.Config, opts ...Option) *Pipeline {
	p := &Pipeline{
		width:      cfg.Camera.Width,
		height:     cfg.Camera.Height,
		policy:     cfg.Session.EventPolicy,
		estimator:  headpose.NewEstimator(cfg.Camera.Width, cfg.Camera.Height),
		classifier: distraction.NewClassifier(cfg.Distraction.MaxPitch, cfg.Distraction.MaxYaw),
		assessor:   assessor.New(assessor.ThresholdsFromConfig(cfg.Detection)),
		alerter:    &LogAlerter{},
		clock:      clock.Real{},
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// StartSession begins a new session and resets the temporal state.
// Any running session is discarded.
func (p *Pipeline) StartSession() *session.Session {
	p.assessor.Reset()
	p.prevFrame = time.Time{}
	p.prevDistracted = false

	s := session.New(p.clock)
	p.session.Store(s)
	logging.Component("monitor").WithField("session", s.ID()).Info("Session started")
	return s
}

// StopSession ends the running session and returns its report. It returns
// false if no session was running.
func (p *Pipeline) StopSession() (session.Report, bool) {
	s := p.session.Swap(nil)
	if s == nil {
		return session.Report{}, false
	}
	p.snapshot.Clear()
	p.alerter.Stop()

	report := s.Report()
	logging.Component("monitor").WithFields(logging.Fields{
		"session": s.ID(),
		"score":   report.Summary.Score,
	}).Info("Session stopped")
	return report, true
}

// Session returns the running session or nil.
func (p *Pipeline) Session() *session.Session {
	return p.session.Load()
}

// Latest returns the most recent snapshot.
func (p *Pipeline) Latest() (Snapshot, bool) {
	return p.snapshot.Latest()
}

// Process runs one frame through the pipeline. Frame dimensions override the
// configured ones when present.
func (p *Pipeline) Process(f landmarks.Frame) Result {
	log := logging.Component("monitor")
	fps := p.frameRate(f.Timestamp)

	if !f.HasFace() {
		return Result{}
	}
	mesh, err := landmarks.NewFaceMesh(f.Landmarks)
	if err != nil {
		log.WithError(err).Debug("Skipping frame")
		return Result{}
	}

	width, height := p.width, p.height
	if f.Width > 0 && f.Height > 0 {
		width, height = f.Width, f.Height
	}

	metrics, _ := features.Extract(f.Landmarks, width, height)
	tr := p.assessor.Update(metrics.EAR, metrics.MAR, f.Timestamp)

	res := Result{Face: true, Metrics: metrics, Transition: tr}

	p.estimator.Camera = headpose.Camera{Width: width, Height: height}
	pitch, yaw := math.NaN(), math.NaN()
	if angles, err := p.estimator.Estimate(mesh); err != nil {
		log.WithError(err).Debug("Pose unavailable")
	} else {
		res.PoseOK = true
		res.Angles = angles
		pitch, yaw = angles.Pitch, angles.Yaw
		p.lastPitch, p.lastYaw = pitch, yaw
		res.Distracted = p.classifier.Distracted(pitch, yaw)
	}

	drowsy, yawning := p.assessor.Drowsy(), p.assessor.Yawning()
	res.Snapshot = Snapshot{
		EAR:        metrics.EAR,
		MAR:        metrics.MAR,
		Pitch:      p.lastPitch,
		Yaw:        p.lastYaw,
		Drowsy:     drowsy,
		Yawning:    yawning,
		Distracted: res.Distracted,
		BPM:        p.assessor.BlinkRate(),
		FPS:        fps,
	}.sanitize()
	p.snapshot.Publish(res.Snapshot)

	if s := p.session.Load(); s != nil {
		s.LogData(metrics.EAR, metrics.MAR, pitch, yaw, f.Timestamp)
		// An indeterminate frame did not update the assessor, so it is not
		// counted as time spent in a held state either.
		if metrics.Determinate() {
			p.logEvents(s, res, f.Timestamp)
		}
	}

	p.logTransitions(res)
	if res.PoseOK {
		p.prevDistracted = res.Distracted
	}

	switch {
	case drowsy:
		p.alerter.Alert()
	case res.Distracted:
		// Distraction is shown but does not sound the alarm.
	default:
		p.alerter.Stop()
	}

	return res
}

func (p *Pipeline) logEvents(s *session.Session, res Result, at time.Time) {
	if p.policy == config.EventsTransition {
		if res.Transition.DrowsyStarted {
			s.LogEvent(session.EventDrowsy, at)
		}
		if res.Transition.YawnStarted {
			s.LogEvent(session.EventYawn, at)
		}
		if res.Distracted && !p.prevDistracted {
			s.LogEvent(session.EventDistracted, at)
		}
		return
	}

	if p.assessor.Drowsy() {
		s.LogEvent(session.EventDrowsy, at)
	}
	if p.assessor.Yawning() {
		s.LogEvent(session.EventYawn, at)
	}
	if res.Distracted {
		s.LogEvent(session.EventDistracted, at)
	}
}

func (p *Pipeline) logTransitions(res Result) {
	log := logging.Component("monitor")
	if res.Transition.DrowsyStarted {
		log.WithField("ear", res.Metrics.EAR).Warn("Driver drowsy")
	}
	if res.Transition.YawnStarted {
		log.WithField("mar", res.Metrics.MAR).Info("Yawn detected")
	}
	if res.Distracted && !p.prevDistracted {
		log.WithFields(logging.Fields{"pitch": res.Angles.Pitch, "yaw": res.Angles.Yaw}).Info("Driver distracted")
	}
}

// frameRate is the instantaneous rate from the previous frame's timestamp.
func (p *Pipeline) frameRate(ts time.Time) float64 {
	var fps float64
	if !p.prevFrame.IsZero() {
		if dt := ts.Sub(p.prevFrame).Seconds(); dt > 0 {
			fps = 1 / dt
		}
	}
	p.prevFrame = ts
	return fps
}
