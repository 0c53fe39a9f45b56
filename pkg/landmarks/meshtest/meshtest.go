// Package meshtest builds synthetic face meshes with controlled eye and mouth
// geometry for tests.
package meshtest

import "github.com/MrCodeEU/drowsiguard/pkg/landmarks"

// Frame dimensions the synthetic faces are laid out for.
const (
	Width  = 640
	Height = 480
)

// Face returns a 478-point mesh laid out on a Width x Height frame whose eye
// aspect ratio is ear and mouth aspect ratio is mar.
func Face(ear, mar float64) landmarks.Set {
	px := make([]landmarks.Pixel, landmarks.MeshPointsWithIris)
	for i := range px {
		px[i] = landmarks.Pixel{X: 200 + float64(i%24)*10, Y: 150 + float64(i/24)*12}
	}

	placeEye(px, landmarks.LeftEye, 260, 200, ear)
	placeEye(px, landmarks.RightEye, 380, 200, ear)

	// Mouth is 60px wide; each lip gap is 60*mar so MAR == mar.
	gap := 60 * mar
	px[landmarks.MouthLeft] = landmarks.Pixel{X: 290, Y: 330}
	px[landmarks.MouthRight] = landmarks.Pixel{X: 350, Y: 330}
	for _, pair := range [][3]float64{
		{landmarks.UpperLipCenter, landmarks.LowerLipCenter, 320},
		{landmarks.UpperLipLeft, landmarks.LowerLipLeft, 305},
		{landmarks.UpperLipRight, landmarks.LowerLipRight, 335},
	} {
		px[int(pair[0])] = landmarks.Pixel{X: pair[2], Y: 330 - gap/2}
		px[int(pair[1])] = landmarks.Pixel{X: pair[2], Y: 330 + gap/2}
	}

	px[landmarks.NoseTip] = landmarks.Pixel{X: 320, Y: 260}
	px[landmarks.Chin] = landmarks.Pixel{X: 320, Y: 400}

	set := make(landmarks.Set, len(px))
	for i, p := range px {
		set[i] = landmarks.Point{X: p.X / Width, Y: p.Y / Height, Z: float64(i%7) * -0.01}
	}
	return set
}

// Eyes are 60px wide with vertical pairs 2*30*ear apart, so EAR == ear.
func placeEye(px []landmarks.Pixel, idx [6]int, cx, cy, ear float64) {
	v := 30 * ear
	px[idx[0]] = landmarks.Pixel{X: cx - 30, Y: cy}
	px[idx[1]] = landmarks.Pixel{X: cx - 10, Y: cy - v}
	px[idx[2]] = landmarks.Pixel{X: cx + 10, Y: cy - v}
	px[idx[3]] = landmarks.Pixel{X: cx + 30, Y: cy}
	px[idx[4]] = landmarks.Pixel{X: cx + 10, Y: cy + v}
	px[idx[5]] = landmarks.Pixel{X: cx - 10, Y: cy + v}
}
