// Package identity enrolls a driver's facial landmark signature and verifies
// later frames against it.
//
// A signature is the landmark set translated so the nose tip is the origin and
// scaled by the largest absolute coordinate, which makes it independent of
// where the face sits in the frame and how large it appears.
package identity

import (
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/MrCodeEU/drowsiguard/pkg/clock"
	"github.com/MrCodeEU/drowsiguard/pkg/landmarks"
	"github.com/MrCodeEU/drowsiguard/pkg/logging"
)

// DefaultThreshold is the MSE below which a candidate matches the profile.
const DefaultThreshold = 0.02

// ErrEmptyLandmarks is returned when a landmark set has no nose tip to
// center on.
var ErrEmptyLandmarks = errors.New("landmark set is empty")

// Profile is an enrolled signature.
type Profile struct {
	Signature  landmarks.Set `json:"signature"`
	EnrolledAt time.Time     `json:"enrolled_at"`
}

// ProfileSaver persists an enrolled profile.
type ProfileSaver interface {
	SaveProfile(p *Profile) error
}

// Result is the outcome of a verification.
type Result struct {
	Match bool    `json:"match"`
	MSE   float64 `json:"mse"`
}

// Normalize computes the signature of a landmark set. If every point
// coincides with the nose tip the centered coordinates are returned unscaled.
func Normalize(points landmarks.Set) (landmarks.Set, error) {
	if len(points) <= landmarks.NoseTip {
		return nil, fmt.Errorf("%w: %d points", ErrEmptyLandmarks, len(points))
	}

	nose := points[landmarks.NoseTip]
	out := make(landmarks.Set, len(points))
	var maxAbs float64
	for i, p := range points {
		c := landmarks.Point{X: p.X - nose.X, Y: p.Y - nose.Y, Z: p.Z - nose.Z}
		out[i] = c
		maxAbs = math.Max(maxAbs, math.Max(math.Abs(c.X), math.Max(math.Abs(c.Y), math.Abs(c.Z))))
	}
	if maxAbs == 0 {
		return out, nil
	}
	for i := range out {
		out[i].X /= maxAbs
		out[i].Y /= maxAbs
		out[i].Z /= maxAbs
	}
	return out, nil
}

// MSE is the mean over all points and axes of the squared coordinate
// differences. The sets must have the same length.
func MSE(a, b landmarks.Set) float64 {
	var sum float64
	for i := range a {
		dx, dy, dz := a[i].X-b[i].X, a[i].Y-b[i].Y, a[i].Z-b[i].Z
		sum += dx*dx + dy*dy + dz*dz
	}
	return sum / float64(3*len(a))
}

// Verifier holds the active profile. At most one profile is active and a new
// enrollment replaces it.
type Verifier struct {
	Threshold float64
	Clock     clock.Clock

	store   ProfileSaver
	profile *Profile
}

// NewVerifier creates a verifier. store may be nil, in which case enrolled
// profiles live only in memory.
func NewVerifier(threshold float64, store ProfileSaver) *Verifier {
	return &Verifier{
		Threshold: threshold,
		Clock:     clock.Real{},
		store:     store,
	}
}

// SetProfile installs a previously persisted profile.
func (v *Verifier) SetProfile(p *Profile) {
	v.profile = p
}

// Profile returns the active profile or nil.
func (v *Verifier) Profile() *Profile {
	return v.profile
}

// Enrolled reports whether a profile is active.
func (v *Verifier) Enrolled() bool {
	return v.profile != nil
}

// Enroll normalizes the landmarks, persists them and makes them the active
// profile. The previous profile stays active if persisting fails.
func (v *Verifier) Enroll(points landmarks.Set) (*Profile, error) {
	sig, err := Normalize(points)
	if err != nil {
		return nil, err
	}

	p := &Profile{Signature: sig, EnrolledAt: v.Clock.Now()}
	if v.store != nil {
		if err := v.store.SaveProfile(p); err != nil {
			return nil, fmt.Errorf("failed to save profile: %w", err)
		}
	}
	v.profile = p

	logging.Component("identity").WithField("points", len(sig)).Info("Profile enrolled")
	return p, nil
}

// Verify compares the landmarks against the active profile. Without a
// profile, or with a candidate that cannot be compared, the result is a
// non-match with zero score.
func (v *Verifier) Verify(points landmarks.Set) Result {
	if v.profile == nil {
		return Result{}
	}

	log := logging.Component("identity")
	sig, err := Normalize(points)
	if err != nil {
		log.WithError(err).Warn("Cannot verify candidate")
		return Result{}
	}
	if len(sig) != len(v.profile.Signature) {
		log.Warnf("Candidate has %d points, profile has %d", len(sig), len(v.profile.Signature))
		return Result{}
	}

	mse := MSE(sig, v.profile.Signature)
	res := Result{Match: mse < v.Threshold, MSE: mse}
	log.WithFields(logging.Fields{"mse": mse, "match": res.Match}).Debug("Verified candidate")
	return res
}
