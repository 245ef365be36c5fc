package capture

import (
	"context"
	"image"
	"time"
)

// MediaStream is a live handle to device or display frames plus audio.
// Stop must be idempotent.
type MediaStream interface {
	Stop()
}

// FrameSource exposes still frames sampled from a live stream. The camera
// stream handed to the presence loop is expected to implement it; streams that
// cannot be sampled simply don't.
type FrameSource interface {
	Frame(ctx context.Context) (image.Image, error)
}

// DeviceCapture acquires media devices. Camera capture includes the
// microphone; screen capture is a separate user-granted surface.
type DeviceCapture interface {
	CaptureCamera(ctx context.Context) (MediaStream, error)
	CaptureScreen(ctx context.Context) (MediaStream, error)
}

type RecorderState string

const (
	RecorderInactive  RecorderState = "inactive"
	RecorderRecording RecorderState = "recording"
)

// Recorder consumes a stream and emits periodic binary segments. Stop must be
// a no-op when the recorder is already inactive.
type Recorder interface {
	Start(interval time.Duration, emit func(payload []byte)) error
	Stop()
	State() RecorderState
}

// RecorderFactory binds a recorder to an acquired stream.
type RecorderFactory interface {
	NewRecorder(s MediaStream) (Recorder, error)
}

// PreviewSink is the candidate-facing live preview surface.
type PreviewSink interface {
	SetSource(s MediaStream)
	Clear()
}

// Prompter asks the candidate for consent before any device API is touched,
// so the browser-level permission dialog never appears unannounced.
type Prompter interface {
	Confirm(ctx context.Context, message string) bool
}
