package monitor

import (
	"math"
	"sync"
)

// Snapshot is the latest derived status of the stream, as served to status
// readers.
type Snapshot struct {
	EAR        float64 `json:"ear"`
	MAR        float64 `json:"mar"`
	Pitch      float64 `json:"pitch"`
	Yaw        float64 `json:"yaw"`
	Drowsy     bool    `json:"drowsy"`
	Yawning    bool    `json:"yawning"`
	Distracted bool    `json:"distracted"`
	BPM        int     `json:"bpm"`
	FPS        float64 `json:"fps"`
}

// sanitize replaces values JSON cannot carry.
func (s Snapshot) sanitize() Snapshot {
	s.EAR = finiteOrZero(s.EAR)
	s.MAR = finiteOrZero(s.MAR)
	s.Pitch = finiteOrZero(s.Pitch)
	s.Yaw = finiteOrZero(s.Yaw)
	s.FPS = finiteOrZero(s.FPS)
	return s
}

// SnapshotSlot is a single-value mailbox: the pipeline overwrites it once per
// frame and readers copy out the latest value. Neither side waits on the other
// beyond the copy.
type SnapshotSlot struct {
	mu     sync.Mutex
	latest *Snapshot
	seq    uint64
}

// Publish replaces the held snapshot.
func (s *SnapshotSlot) Publish(snap Snapshot) {
	snap = snap.sanitize()
	s.mu.Lock()
	s.latest = &snap
	s.seq++
	s.mu.Unlock()
}

// Latest returns a copy of the held snapshot and false if none is held.
func (s *SnapshotSlot) Latest() (Snapshot, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.latest == nil {
		return Snapshot{}, false
	}
	return *s.latest, true
}

// Seq is the number of snapshots published so far.
func (s *SnapshotSlot) Seq() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.seq
}

// Clear empties the slot.
func (s *SnapshotSlot) Clear() {
	s.mu.Lock()
	s.latest = nil
	s.mu.Unlock()
}

func finiteOrZero(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return v
}
