package features

import (
	"math"
	"testing"

	"github.com/MrCodeEU/drowsiguard/pkg/landmarks"
	"github.com/MrCodeEU/drowsiguard/pkg/landmarks/meshtest"
)

const tolerance = 1e-9

func TestExtract(t *testing.T) {
	tests := []struct {
		name string
		ear  float64
		mar  float64
	}{
		{"open eyes closed mouth", 0.30, 0.10},
		{"closed eyes", 0.15, 0.10},
		{"yawn", 0.28, 0.75},
		{"fully shut", 0, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, ok := Extract(meshtest.Face(tt.ear, tt.mar), meshtest.Width, meshtest.Height)
			if !ok {
				t.Fatal("expected metrics")
			}
			if math.Abs(m.EAR-tt.ear) > tolerance {
				t.Errorf("EAR = %f, want %f", m.EAR, tt.ear)
			}
			if math.Abs(m.MAR-tt.mar) > tolerance {
				t.Errorf("MAR = %f, want %f", m.MAR, tt.mar)
			}
			if !m.Determinate() {
				t.Error("metrics should be determinate")
			}
		})
	}
}

func TestExtract_NoFace(t *testing.T) {
	if _, ok := Extract(nil, 640, 480); ok {
		t.Error("nil landmarks should yield no metrics")
	}
	if _, ok := Extract(make(landmarks.Set, 10), 640, 480); ok {
		t.Error("a partial mesh should yield no metrics")
	}
}

func TestEAR_UsesPixelSpace(t *testing.T) {
	// Square in normalized space, but a 2:1 frame stretches it horizontally.
	eye := [6]landmarks.Point{
		{X: 0.4, Y: 0.5},
		{X: 0.45, Y: 0.4},
		{X: 0.55, Y: 0.4},
		{X: 0.6, Y: 0.5},
		{X: 0.55, Y: 0.6},
		{X: 0.45, Y: 0.6},
	}
	square := EAR(eye, 100, 100)
	wide := EAR(eye, 200, 100)
	if math.Abs(square-1.0) > tolerance {
		t.Errorf("EAR on square frame = %f, want 1", square)
	}
	if math.Abs(wide-0.5) > tolerance {
		t.Errorf("EAR on wide frame = %f, want 0.5", wide)
	}
}

func TestExtract_DegenerateGeometry(t *testing.T) {
	points := meshtest.Face(0.3, 0.2)

	// Collapse the mouth corners onto each other.
	points[landmarks.MouthRight] = points[landmarks.MouthLeft]
	m, ok := Extract(points, meshtest.Width, meshtest.Height)
	if !ok {
		t.Fatal("expected metrics")
	}
	if !math.IsInf(m.MAR, 1) {
		t.Errorf("zero-width mouth should give +Inf MAR, got %f", m.MAR)
	}
	if m.Determinate() {
		t.Error("infinite MAR should not be determinate")
	}

	// A fully collapsed eye gives 0/0.
	points = meshtest.Face(0.3, 0.2)
	for _, idx := range landmarks.LeftEye {
		points[idx] = points[landmarks.LeftEye[0]]
	}
	m, _ = Extract(points, meshtest.Width, meshtest.Height)
	if !math.IsNaN(m.EAR) {
		t.Errorf("collapsed eye should give NaN EAR, got %f", m.EAR)
	}
	if m.Determinate() {
		t.Error("NaN EAR should not be determinate")
	}
}
