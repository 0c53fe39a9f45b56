// Package distraction flags frames where the head is turned away from the road.
package distraction

import "math"

// Default limits in degrees.
const (
	DefaultMaxPitch = 30.0
	DefaultMaxYaw   = 50.0
)

// Classifier is a stateless threshold rule over normalized head angles.
// There is no hysteresis: each frame is judged on its own.
type Classifier struct {
	MaxPitch float64
	MaxYaw   float64
}

// NewClassifier returns a classifier with the given limits.
func NewClassifier(maxPitch, maxYaw float64) Classifier {
	return Classifier{MaxPitch: maxPitch, MaxYaw: maxYaw}
}

// Distracted reports whether |pitch| or |yaw| strictly exceeds its limit.
func (c Classifier) Distracted(pitch, yaw float64) bool {
	return math.Abs(pitch) > c.MaxPitch || math.Abs(yaw) > c.MaxYaw
}
