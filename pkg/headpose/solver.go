package headpose

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/MrCodeEU/drowsiguard/pkg/landmarks"
)

const (
	numParams    = 6
	numResiduals = 12
)

// IterativeSolver fits the model with Levenberg-Marquardt on the
// reprojection error, starting from a frontal pose placed from the nose
// position and the outer eye corner distance.
type IterativeSolver struct {
	Model         [6]r3.Vec
	MaxIterations int
	// Tolerance is the relative parameter step below which the solve is
	// considered converged.
	Tolerance float64
}

// NewIterativeSolver returns a solver for the generic face model.
func NewIterativeSolver() *IterativeSolver {
	return &IterativeSolver{
		Model:         ModelPoints,
		MaxIterations: 200,
		Tolerance:     1e-10,
	}
}

// Solve implements Solver.
func (s *IterativeSolver) Solve(image [6]landmarks.Pixel, cam Camera) (Pose, error) {
	if cam.Width <= 0 || cam.Height <= 0 {
		return Pose{}, fmt.Errorf("%w: invalid camera %dx%d", ErrNoSolution, cam.Width, cam.Height)
	}

	params, err := s.initialGuess(image, cam)
	if err != nil {
		return Pose{}, err
	}

	cost := s.cost(params, image, cam)
	lambda := 1e-3
	converged := false

	for iter := 0; iter < s.MaxIterations && !converged; iter++ {
		r := s.residuals(params, image, cam)
		j := s.jacobian(params, image, cam)

		var jtj mat.Dense
		jtj.Mul(j.T(), j)
		var g mat.VecDense
		g.MulVec(j.T(), r)
		g.ScaleVec(-1, &g)

		for {
			a := mat.DenseCopyOf(&jtj)
			for i := 0; i < numParams; i++ {
				a.Set(i, i, jtj.At(i, i)*(1+lambda)+lambda*1e-9)
			}

			var step mat.VecDense
			if err := step.SolveVec(a, &g); err != nil && !isCondition(err) {
				lambda *= 10
			} else {
				candidate := mat.NewVecDense(numParams, nil)
				candidate.AddVec(params, &step)
				next := s.cost(candidate, image, cam)
				if next < cost {
					params = candidate
					lambda = math.Max(lambda/10, 1e-12)
					rel := mat.Norm(&step, 2) / (mat.Norm(params, 2) + s.Tolerance)
					converged = rel < s.Tolerance || cost-next < 1e-14*cost || next < 1e-20
					cost = next
					break
				}
				lambda *= 10
			}
			if lambda > 1e12 {
				// No descent direction left: we are at a minimum.
				converged = true
				break
			}
		}
	}

	pose := toPose(params)
	if !converged {
		return Pose{}, fmt.Errorf("%w after %d iterations", ErrNoSolution, s.MaxIterations)
	}
	if !finitePose(pose) || math.IsNaN(cost) || math.IsInf(cost, 0) {
		return Pose{}, fmt.Errorf("%w: non-finite result", ErrNoSolution)
	}
	if pose.Translation.Z <= 0 {
		return Pose{}, fmt.Errorf("%w: face behind camera", ErrNoSolution)
	}
	return pose, nil
}

func (s *IterativeSolver) initialGuess(image [6]landmarks.Pixel, cam Camera) (*mat.VecDense, error) {
	eyeModel := r3.Norm(r3.Sub(s.Model[3], s.Model[2]))
	eyeImage := image[2].Dist(image[3])
	if eyeImage < 1e-9 || math.IsNaN(eyeImage) {
		return nil, fmt.Errorf("%w: degenerate keypoints", ErrNoSolution)
	}

	f := cam.Focal()
	cx, cy := cam.Center()
	tz := f * eyeModel / eyeImage
	return mat.NewVecDense(numParams, []float64{
		math.Pi, 0, 0,
		(image[0].X - cx) * tz / f,
		(image[0].Y - cy) * tz / f,
		tz,
	}), nil
}

func (s *IterativeSolver) residuals(params *mat.VecDense, image [6]landmarks.Pixel, cam Camera) *mat.VecDense {
	pose := toPose(params)
	rot := Rodrigues(pose.Rotation)
	r := mat.NewVecDense(numResiduals, nil)
	for i, x := range s.Model {
		p := cam.project(rot, pose.Translation, x)
		r.SetVec(2*i, p.X-image[i].X)
		r.SetVec(2*i+1, p.Y-image[i].Y)
	}
	return r
}

func (s *IterativeSolver) cost(params *mat.VecDense, image [6]landmarks.Pixel, cam Camera) float64 {
	r := s.residuals(params, image, cam)
	return mat.Dot(r, r)
}

// jacobian is a central-difference approximation of d(residuals)/d(params).
func (s *IterativeSolver) jacobian(params *mat.VecDense, image [6]landmarks.Pixel, cam Camera) *mat.Dense {
	j := mat.NewDense(numResiduals, numParams, nil)
	for k := 0; k < numParams; k++ {
		h := 1e-6 * math.Max(1, math.Abs(params.AtVec(k)))

		plus := mat.VecDenseCopyOf(params)
		plus.SetVec(k, params.AtVec(k)+h)
		minus := mat.VecDenseCopyOf(params)
		minus.SetVec(k, params.AtVec(k)-h)

		var diff mat.VecDense
		diff.SubVec(s.residuals(plus, image, cam), s.residuals(minus, image, cam))
		diff.ScaleVec(1/(2*h), &diff)
		j.SetCol(k, diff.RawVector().Data)
	}
	return j
}

func toPose(params *mat.VecDense) Pose {
	return Pose{
		Rotation:    r3.Vec{X: params.AtVec(0), Y: params.AtVec(1), Z: params.AtVec(2)},
		Translation: r3.Vec{X: params.AtVec(3), Y: params.AtVec(4), Z: params.AtVec(5)},
	}
}

func finitePose(p Pose) bool {
	for _, v := range []float64{
		p.Rotation.X, p.Rotation.Y, p.Rotation.Z,
		p.Translation.X, p.Translation.Y, p.Translation.Z,
	} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}

func isCondition(err error) bool {
	_, ok := err.(mat.Condition)
	return ok
}
