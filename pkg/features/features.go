// Package features turns a face mesh into the scalar eye and mouth metrics
// the state assessor consumes.
package features

import (
	"math"

	"github.com/MrCodeEU/drowsiguard/pkg/landmarks"
)

// Metrics holds the aspect ratios of one frame.
type Metrics struct {
	EAR float64 `json:"ear"`
	MAR float64 `json:"mar"`
}

// Determinate reports whether both ratios are finite. Degenerate geometry
// (a zero-width eye or mouth) yields +Inf or NaN, which callers treat as
// unavailable for that frame.
func (m Metrics) Determinate() bool {
	return finite(m.EAR) && finite(m.MAR)
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

// Extract computes EAR and MAR for a frame of the given pixel size.
// It returns false when no usable mesh is present.
func Extract(points landmarks.Set, width, height int) (Metrics, bool) {
	mesh, err := landmarks.NewFaceMesh(points)
	if err != nil {
		return Metrics{}, false
	}
	return Metrics{
		EAR: (EAR(mesh.LeftEye(), width, height) + EAR(mesh.RightEye(), width, height)) / 2,
		MAR: MAR(mesh, width, height),
	}, true
}

// EAR computes the eye aspect ratio (|p2-p6| + |p3-p5|) / (2|p1-p4|)
// in pixel space.
func EAR(eye [6]landmarks.Point, width, height int) float64 {
	var px [6]landmarks.Pixel
	for i, p := range eye {
		px[i] = p.Pixel(width, height)
	}
	a := px[1].Dist(px[5])
	b := px[2].Dist(px[4])
	c := px[0].Dist(px[3])
	return (a + b) / (2 * c)
}

// MAR computes the mouth aspect ratio: the mean of the three vertical lip
// gaps over the corner-to-corner width.
func MAR(mesh *landmarks.FaceMesh, width, height int) float64 {
	var gaps float64
	for _, pair := range mesh.LipPairs() {
		gaps += pair[0].Pixel(width, height).Dist(pair[1].Pixel(width, height))
	}
	d := mesh.MouthLeft().Pixel(width, height).Dist(mesh.MouthRight().Pixel(width, height))
	return gaps / (3 * d)
}
