// Package session accumulates per-frame samples and discrete events for one
// driving session and derives the summary and wellness score from them.
package session

import (
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/MrCodeEU/drowsiguard/pkg/clock"
)

// EventType names a logged condition.
type EventType string

const (
	EventDrowsy     EventType = "DROWSY"
	EventYawn       EventType = "YAWN"
	EventDistracted EventType = "DISTRACTED"
)

// Score weights in points per second of the condition.
const (
	drowsyPenalty     = 5
	distractedPenalty = 2
	yawnPenalty       = 2
)

// Fallbacks used when the session is too short to measure a frame rate.
const (
	FallbackFPS             = 30.0
	FallbackSecondsPerFrame = 0.033
)

const (
	startTimeLayout = "2006-01-02 15:04:05"
	wallClockLayout = "15:04:05"
)

// Sample is one frame of metrics. T is seconds since the session started.
type Sample struct {
	T     float64 `json:"t"`
	EAR   float64 `json:"ear"`
	MAR   float64 `json:"mar"`
	Pitch float64 `json:"pitch"`
	Yaw   float64 `json:"yaw"`
}

// Event is a logged condition. T is seconds since the session started.
type Event struct {
	T         float64   `json:"timestamp"`
	Type      EventType `json:"type"`
	WallClock string    `json:"wall_clock"`
}

// Counts holds the number of logged events per type.
type Counts struct {
	Drowsy     int `json:"drowsy"`
	Distracted int `json:"distracted"`
	Yawn       int `json:"yawn"`
}

// Times holds the approximate seconds spent in each condition, both as
// numbers and formatted for display.
type Times struct {
	Drowsy        float64 `json:"drowsy"`
	Distracted    float64 `json:"distracted"`
	Yawn          float64 `json:"yawn"`
	DrowsyStr     string  `json:"drowsy_str"`
	DistractedStr string  `json:"distracted_str"`
	YawnStr       string  `json:"yawn_str"`
}

// Summary is derived from a session on demand.
type Summary struct {
	SessionID       string    `json:"session_id"`
	Started         time.Time `json:"-"`
	StartTime       string    `json:"start_time"`
	Duration        float64   `json:"duration"`
	DurationSeconds int       `json:"duration_seconds"`
	Samples         int       `json:"samples"`
	AverageFPS      float64   `json:"average_fps"`
	Counts          Counts    `json:"counts"`
	Times           Times     `json:"times"`
	Score           int       `json:"score"`
}

// Report is the persisted form of a session: the summary plus the full event
// log. Samples are kept in memory only.
type Report struct {
	Summary Summary `json:"summary"`
	Events  []Event `json:"events"`
}

// Session records one driving session. The sample and event logs only grow.
// It is safe for one writer and concurrent readers.
type Session struct {
	id    string
	clock clock.Clock
	start time.Time

	mu      sync.RWMutex
	samples []Sample
	events  []Event
}

// New starts a session at the clock's current time.
func New(clk clock.Clock) *Session {
	return &Session{
		id:    uuid.NewString(),
		clock: clk,
		start: clk.Now(),
	}
}

// ID returns the session's unique identifier.
func (s *Session) ID() string { return s.id }

// Start returns when the session began.
func (s *Session) Start() time.Time { return s.start }

// LogData appends a sample taken at the given time. Missing (NaN) or
// infinite values are stored as 0.
func (s *Session) LogData(ear, mar, pitch, yaw float64, at time.Time) {
	sample := Sample{
		T:     s.offset(at),
		EAR:   orZero(ear),
		MAR:   orZero(mar),
		Pitch: orZero(pitch),
		Yaw:   orZero(yaw),
	}
	s.mu.Lock()
	s.samples = append(s.samples, sample)
	s.mu.Unlock()
}

// LogEvent appends an event at the given time. There is no debouncing here;
// every call adds an entry.
func (s *Session) LogEvent(t EventType, at time.Time) {
	ev := Event{
		T:         s.offset(at),
		Type:      t,
		WallClock: at.Format(wallClockLayout),
	}
	s.mu.Lock()
	s.events = append(s.events, ev)
	s.mu.Unlock()
}

// Samples returns a copy of the sample log.
func (s *Session) Samples() []Sample {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]Sample(nil), s.samples...)
}

// Events returns a copy of the event log.
func (s *Session) Events() []Event {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]Event(nil), s.events...)
}

// Summarize computes the summary as of now.
//
// Condition durations are approximated as event count times the average
// seconds per frame, which assumes one event per frame the condition held.
func (s *Session) Summarize() Summary {
	s.mu.RLock()
	samples := len(s.samples)
	var counts Counts
	for _, ev := range s.events {
		switch ev.Type {
		case EventDrowsy:
			counts.Drowsy++
		case EventDistracted:
			counts.Distracted++
		case EventYawn:
			counts.Yawn++
		}
	}
	s.mu.RUnlock()

	duration := s.clock.Since(s.start).Seconds()
	avgFPS := FallbackFPS
	if duration > 0 {
		avgFPS = float64(samples) / duration
	}
	spf := FallbackSecondsPerFrame
	if avgFPS > 0 {
		spf = 1 / avgFPS
	}

	times := Times{
		Drowsy:     float64(counts.Drowsy) * spf,
		Distracted: float64(counts.Distracted) * spf,
		Yawn:       float64(counts.Yawn) * spf,
	}
	times.DrowsyStr = formatSeconds(times.Drowsy)
	times.DistractedStr = formatSeconds(times.Distracted)
	times.YawnStr = formatSeconds(times.Yawn)

	return Summary{
		SessionID:       s.id,
		Started:         s.start,
		StartTime:       s.start.Format(startTimeLayout),
		Duration:        duration,
		DurationSeconds: int(duration),
		Samples:         samples,
		AverageFPS:      avgFPS,
		Counts:          counts,
		Times:           times,
		Score:           Score(times),
	}
}

// Report returns the summary together with the event log.
func (s *Session) Report() Report {
	return Report{
		Summary: s.Summarize(),
		Events:  s.Events(),
	}
}

// Score is 100 minus the weighted condition seconds, rounded down and
// clamped at 0.
func Score(t Times) int {
	raw := 100 - (t.Drowsy*drowsyPenalty + t.Distracted*distractedPenalty + t.Yawn*yawnPenalty)
	return int(math.Max(0, math.Floor(raw)))
}

func (s *Session) offset(at time.Time) float64 {
	return at.Sub(s.start).Seconds()
}

func formatSeconds(v float64) string {
	return fmt.Sprintf("%.1fs", v)
}

func orZero(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return v
}
