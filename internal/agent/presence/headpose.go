package presence

import "math"

// Head-pose thresholds, in approximate degrees.
const (
	YawThreshold   = 30.0
	PitchThreshold = 25.0
)

// Geometry scale factors mapping normalized landmark offsets onto an
// approximate degree range. These are heuristic distraction proxies, not
// calibrated biometrics.
const (
	yawScale   = 90.0
	pitchScale = 150.0

	// On a neutral frontal face the mouth center sits roughly halfway
	// between the eye line and the bottom of the jaw.
	neutralMouthRatio = 0.5
)

// EstimatePose derives approximate yaw and pitch from facial landmarks.
//
// Yaw comes from the horizontal offset of the nose tip relative to the
// eye-center axis, normalized by inter-eye distance. Pitch comes from the
// vertical offset of the mouth center relative to the eye center, normalized
// by the eye-to-jaw face-height estimate. Degenerate geometry (coincident
// eyes, jaw above the eyes) yields a neutral pose.
func EstimatePose(lm *Landmarks) (yaw, pitch float64) {
	if lm == nil {
		return 0, 0
	}

	eyeCenter := Point{
		X: (lm.LeftEye.X + lm.RightEye.X) / 2,
		Y: (lm.LeftEye.Y + lm.RightEye.Y) / 2,
	}

	interEye := math.Hypot(lm.RightEye.X-lm.LeftEye.X, lm.RightEye.Y-lm.LeftEye.Y)
	if interEye > 0 {
		yaw = (lm.NoseTip.X - eyeCenter.X) / interEye * yawScale
	}

	faceHeight := lm.JawBottom.Y - eyeCenter.Y
	if faceHeight > 0 {
		ratio := (lm.MouthCenter.Y - eyeCenter.Y) / faceHeight
		pitch = (ratio - neutralMouthRatio) * pitchScale
	}
	return yaw, pitch
}
