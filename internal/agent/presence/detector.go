package presence

import (
	"context"
	"image"
)

// Point is a landmark position in frame coordinates.
type Point struct {
	X float64
	Y float64
}

// Landmarks are the facial reference points used for head-pose estimation.
type Landmarks struct {
	LeftEye     Point
	RightEye    Point
	NoseTip     Point
	MouthCenter Point
	JawBottom   Point
}

// Face is one detection result. Landmarks are optional: detectors that only
// report presence leave them nil and head pose is skipped.
type Face struct {
	Landmarks *Landmarks
}

// Detector reports the faces visible in a still frame. Implementations wrap
// whatever backend the platform offers: a native detector, a downloaded model
// or the crude pixel heuristic.
type Detector interface {
	Name() string
	Available() bool
	Detect(ctx context.Context, frame image.Image) ([]Face, error)
}

// Select picks the first available detector, chosen once at session start so
// the loop stays agnostic to which backend is active. It returns nil when
// none is available; the session then proceeds unmonitored, degraded but not
// fatal.
func Select(candidates ...Detector) Detector {
	for _, d := range candidates {
		if d != nil && d.Available() {
			return d
		}
	}
	return nil
}
