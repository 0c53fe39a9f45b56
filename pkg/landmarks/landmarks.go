// Package landmarks holds the facial landmark types produced by the external
// perception provider and the named index convention the core relies on.
package landmarks

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
)

// Face mesh indices following the MediaPipe Face Mesh convention.
// See: https://developers.google.com/mediapipe/solutions/vision/face_landmarker
const (
	NoseTip       = 1
	Chin          = 152
	LeftEyeOuter  = 33
	RightEyeOuter = 263
	MouthLeft     = 61
	MouthRight    = 291

	UpperLipCenter = 13
	LowerLipCenter = 14
	UpperLipLeft   = 37
	LowerLipLeft   = 84
	UpperLipRight  = 267
	LowerLipRight  = 314

	// MeshPoints is the landmark count of the base mesh.
	MeshPoints = 468
	// MeshPointsWithIris is the count when iris refinement is enabled.
	MeshPointsWithIris = 478
)

// LeftEye and RightEye list the six EAR points of each eye in p1..p6 order:
// p1/p4 are the horizontal corners, p2/p6 and p3/p5 the vertical pairs.
var (
	LeftEye  = [6]int{33, 160, 158, 133, 153, 144}
	RightEye = [6]int{362, 385, 387, 263, 373, 380}
)

// ErrTooFewPoints is returned when a landmark set is smaller than the mesh.
var ErrTooFewPoints = errors.New("landmark set has too few points")

// Point is a landmark in normalized image coordinates.
// X and Y are fractions of the frame size and Z is depth relative to the face.
// On the wire a point is a [x, y, z] array.
type Point struct {
	X, Y, Z float64
}

// MarshalJSON encodes the point as [x, y, z].
func (p Point) MarshalJSON() ([]byte, error) {
	return json.Marshal([3]float64{p.X, p.Y, p.Z})
}

// UnmarshalJSON accepts [x, y] or [x, y, z].
func (p *Point) UnmarshalJSON(data []byte) error {
	var coords []float64
	if err := json.Unmarshal(data, &coords); err != nil {
		return fmt.Errorf("invalid landmark point: %w", err)
	}
	switch len(coords) {
	case 2:
		*p = Point{X: coords[0], Y: coords[1]}
	case 3:
		*p = Point{X: coords[0], Y: coords[1], Z: coords[2]}
	default:
		return fmt.Errorf("invalid landmark point: expected 2 or 3 coordinates, got %d", len(coords))
	}
	return nil
}

// Pixel scales the point into pixel space for a width x height frame.
func (p Point) Pixel(width, height int) Pixel {
	return Pixel{X: p.X * float64(width), Y: p.Y * float64(height)}
}

// Pixel is a 2D point in pixel coordinates.
type Pixel struct {
	X, Y float64
}

// Dist returns the Euclidean distance between two pixels.
func (a Pixel) Dist(b Pixel) float64 {
	return math.Hypot(a.X-b.X, a.Y-b.Y)
}

// Set is an ordered landmark list as produced for one frame.
type Set []Point

// FaceMesh exposes a landmark set through named accessors so callers do not
// index into the raw slice.
type FaceMesh struct {
	points Set
}

// NewFaceMesh wraps a landmark set. It fails with ErrTooFewPoints when the set
// is smaller than the base mesh.
func NewFaceMesh(points Set) (*FaceMesh, error) {
	if len(points) < MeshPoints {
		return nil, fmt.Errorf("%w: got %d, need %d", ErrTooFewPoints, len(points), MeshPoints)
	}
	return &FaceMesh{points: points}, nil
}

// Points returns the underlying landmark set.
func (m *FaceMesh) Points() Set { return m.points }

// Len returns the number of landmarks.
func (m *FaceMesh) Len() int { return len(m.points) }

// At returns the landmark at index i.
func (m *FaceMesh) At(i int) Point { return m.points[i] }

func (m *FaceMesh) NoseTip() Point       { return m.points[NoseTip] }
func (m *FaceMesh) Chin() Point          { return m.points[Chin] }
func (m *FaceMesh) LeftEyeOuter() Point  { return m.points[LeftEyeOuter] }
func (m *FaceMesh) RightEyeOuter() Point { return m.points[RightEyeOuter] }
func (m *FaceMesh) MouthLeft() Point     { return m.points[MouthLeft] }
func (m *FaceMesh) MouthRight() Point    { return m.points[MouthRight] }

// LeftEye returns the six EAR points of the left eye.
func (m *FaceMesh) LeftEye() [6]Point { return m.pick(LeftEye) }

// RightEye returns the six EAR points of the right eye.
func (m *FaceMesh) RightEye() [6]Point { return m.pick(RightEye) }

// LipPairs returns the center, left and right upper/lower lip pairs.
func (m *FaceMesh) LipPairs() [3][2]Point {
	return [3][2]Point{
		{m.points[UpperLipCenter], m.points[LowerLipCenter]},
		{m.points[UpperLipLeft], m.points[LowerLipLeft]},
		{m.points[UpperLipRight], m.points[LowerLipRight]},
	}
}

// PoseKeypoints returns nose tip, chin, left eye outer corner, right eye
// outer corner, left mouth corner and right mouth corner, in that order.
func (m *FaceMesh) PoseKeypoints() [6]Point {
	return [6]Point{
		m.NoseTip(),
		m.Chin(),
		m.LeftEyeOuter(),
		m.RightEyeOuter(),
		m.MouthLeft(),
		m.MouthRight(),
	}
}

func (m *FaceMesh) pick(idx [6]int) [6]Point {
	var out [6]Point
	for i, j := range idx {
		out[i] = m.points[j]
	}
	return out
}
