// Package headpose estimates head orientation from six facial keypoints.
//
// A generic 3D face model is fitted to the keypoints with a perspective-n-point
// solve against a pinhole camera. The resulting rotation vector is converted
// to pitch, yaw and roll in degrees, with pitch folded into [-90, 90] so that
// looking straight at the camera reads as 0.
package headpose

import (
	"errors"
	"math"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/MrCodeEU/drowsiguard/pkg/landmarks"
)

// ModelPoints is the generic face model in arbitrary units, ordered as
// landmarks.FaceMesh.PoseKeypoints: nose tip, chin, left eye outer corner,
// right eye outer corner, left mouth corner, right mouth corner.
var ModelPoints = [6]r3.Vec{
	{X: 0, Y: 0, Z: 0},
	{X: 0, Y: -330, Z: -65},
	{X: -225, Y: 170, Z: -135},
	{X: 225, Y: 170, Z: -135},
	{X: -150, Y: -150, Z: -125},
	{X: 150, Y: -150, Z: -125},
}

// ErrNoSolution is returned when the pose solver does not converge.
var ErrNoSolution = errors.New("pose solve did not converge")

// Camera is a distortion-free pinhole camera derived from the frame size:
// focal length equals the frame width and the principal point is the center.
type Camera struct {
	Width  int
	Height int
}

// Focal returns the focal length in pixels.
func (c Camera) Focal() float64 { return float64(c.Width) }

// Center returns the principal point.
func (c Camera) Center() (cx, cy float64) {
	return float64(c.Width) / 2, float64(c.Height) / 2
}

// Matrix returns the 3x3 intrinsic matrix.
func (c Camera) Matrix() *mat.Dense {
	f := c.Focal()
	cx, cy := c.Center()
	return mat.NewDense(3, 3, []float64{
		f, 0, cx,
		0, f, cy,
		0, 0, 1,
	})
}

// Project maps a model point through the pose onto the image plane.
func (c Camera) Project(p Pose, x r3.Vec) landmarks.Pixel {
	return c.project(Rodrigues(p.Rotation), p.Translation, x)
}

func (c Camera) project(rot *mat.Dense, t, x r3.Vec) landmarks.Pixel {
	var xc mat.VecDense
	xc.MulVec(rot, mat.NewVecDense(3, []float64{x.X, x.Y, x.Z}))
	z := xc.AtVec(2) + t.Z
	f := c.Focal()
	cx, cy := c.Center()
	return landmarks.Pixel{
		X: f*(xc.AtVec(0)+t.X)/z + cx,
		Y: f*(xc.AtVec(1)+t.Y)/z + cy,
	}
}

// Pose is a rigid transform from model to camera coordinates.
// Rotation is an axis-angle vector in radians.
type Pose struct {
	Rotation    r3.Vec
	Translation r3.Vec
}

// Angles is a head orientation in degrees.
type Angles struct {
	Pitch float64 `json:"pitch"`
	Yaw   float64 `json:"yaw"`
	Roll  float64 `json:"roll"`
}

// Solver recovers a pose from the six image keypoints.
type Solver interface {
	Solve(image [6]landmarks.Pixel, cam Camera) (Pose, error)
}

// ImagePoints scales the mesh pose keypoints into pixel space.
func ImagePoints(mesh *landmarks.FaceMesh, cam Camera) [6]landmarks.Pixel {
	var px [6]landmarks.Pixel
	for i, p := range mesh.PoseKeypoints() {
		px[i] = p.Pixel(cam.Width, cam.Height)
	}
	return px
}

// Rodrigues converts an axis-angle vector into a rotation matrix.
func Rodrigues(rvec r3.Vec) *mat.Dense {
	theta := r3.Norm(rvec)
	if theta < 1e-12 {
		return mat.NewDense(3, 3, []float64{1, 0, 0, 0, 1, 0, 0, 0, 1})
	}
	k := r3.Scale(1/theta, rvec)
	c, s := math.Cos(theta), math.Sin(theta)
	v := 1 - c
	return mat.NewDense(3, 3, []float64{
		c + k.X*k.X*v, k.X*k.Y*v - k.Z*s, k.X*k.Z*v + k.Y*s,
		k.Y*k.X*v + k.Z*s, c + k.Y*k.Y*v, k.Y*k.Z*v - k.X*s,
		k.Z*k.X*v - k.Y*s, k.Z*k.Y*v + k.X*s, c + k.Z*k.Z*v,
	})
}

// EulerAngles decomposes a rotation matrix as Rz(roll)·Ry(yaw)·Rx(pitch)
// and returns the angles in degrees. Yaw is always within [-90, 90]; pitch
// and roll span (-180, 180].
func EulerAngles(rot mat.Matrix) Angles {
	r00, r10 := rot.At(0, 0), rot.At(1, 0)
	r20, r21, r22 := rot.At(2, 0), rot.At(2, 1), rot.At(2, 2)
	return Angles{
		Pitch: degrees(math.Atan2(r21, r22)),
		Yaw:   degrees(math.Atan2(-r20, math.Hypot(r21, r22))),
		Roll:  degrees(math.Atan2(r10, r00)),
	}
}

// NormalizePitch folds a raw pitch into [-90, 90]. The solver reports a
// frontal face near ±180 because the model's y axis points up while image y
// points down.
func NormalizePitch(pitch float64) float64 {
	if pitch < -90 {
		return pitch + 180
	}
	if pitch > 90 {
		return pitch - 180
	}
	return pitch
}

// Normalize converts a rotation vector into display angles with the pitch
// correction applied.
func Normalize(rvec r3.Vec) Angles {
	a := EulerAngles(Rodrigues(rvec))
	a.Pitch = NormalizePitch(a.Pitch)
	return a
}

// Estimator runs the solver for a mesh and normalizes the result.
type Estimator struct {
	Camera Camera
	Solver Solver
}

// NewEstimator returns an Estimator using the iterative solver.
func NewEstimator(width, height int) *Estimator {
	return &Estimator{
		Camera: Camera{Width: width, Height: height},
		Solver: NewIterativeSolver(),
	}
}

// Estimate returns the normalized head angles for the mesh.
func (e *Estimator) Estimate(mesh *landmarks.FaceMesh) (Angles, error) {
	pose, err := e.Solver.Solve(ImagePoints(mesh, e.Camera), e.Camera)
	if err != nil {
		return Angles{}, err
	}
	return Normalize(pose.Rotation), nil
}

func degrees(rad float64) float64 {
	return rad * 180 / math.Pi
}
