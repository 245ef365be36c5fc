package capture

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/talentis/proctor/internal/utils"
)

const defaultChunkInterval = 2 * time.Second

const consentMessage = "This interview records your camera, microphone and screen. Continue?"

// Manager owns the media track set for one session: the camera and screen
// streams and their recorders. Camera acquisition is mandatory; screen capture
// is attempted afterwards and its denial degrades the session to camera-only
// recording instead of aborting it.
type Manager struct {
	Devices   DeviceCapture
	Recorders RecorderFactory
	Preview   PreviewSink
	Prompt    Prompter
	Logger    *logrus.Logger

	// ChunkInterval is the recorder flush cadence. Small, frequent segments
	// keep uploads flowing while recording continues, so a crash loses at most
	// one interval. Defaults to 2s.
	ChunkInterval time.Duration

	mu        sync.Mutex
	camera    MediaStream
	screen    MediaStream
	camRec    Recorder
	screenRec Recorder
	stopped   bool
}

// Acquire prompts the candidate, then requests the camera+microphone and, if
// that succeeds, the screen. It returns an error only for the mandatory
// camera path; on any error no partially acquired stream is left behind.
func (m *Manager) Acquire(ctx context.Context) error {
	const op = "capture.Acquire"

	if m.Prompt != nil && !m.Prompt.Confirm(ctx, consentMessage) {
		return utils.E(utils.CodePermissionDenied, op, "recording consent declined", nil)
	}

	cam, err := m.Devices.CaptureCamera(ctx)
	if err != nil {
		return utils.E(utils.CodePermissionDenied, op, "camera and microphone access is required to start the interview", err)
	}

	screen, err := m.Devices.CaptureScreen(ctx)
	if err != nil {
		m.log().WithError(err).Warn("screen capture denied, continuing camera-only")
		screen = nil
	}

	m.mu.Lock()
	m.camera = cam
	m.screen = screen
	m.stopped = false
	m.mu.Unlock()

	if m.Preview != nil {
		m.Preview.SetSource(cam)
	}
	return nil
}

// Record starts one recorder per acquired stream. Each recorder flushes a
// segment every ChunkInterval and hands it to emit tagged with its kind.
func (m *Manager) Record(emit func(kind string, payload []byte)) error {
	const op = "capture.Record"

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.camera == nil {
		return utils.E(utils.CodeInternal, op, "no camera stream acquired", nil)
	}

	interval := m.ChunkInterval
	if interval <= 0 {
		interval = defaultChunkInterval
	}

	camRec, err := m.Recorders.NewRecorder(m.camera)
	if err != nil {
		return utils.E(utils.CodeInternal, op, "failed to bind camera recorder", err)
	}
	if err := camRec.Start(interval, func(payload []byte) { emit("video", payload) }); err != nil {
		return utils.E(utils.CodeInternal, op, "failed to start camera recorder", err)
	}
	m.camRec = camRec

	if m.screen != nil {
		screenRec, err := m.Recorders.NewRecorder(m.screen)
		if err != nil {
			m.log().WithError(err).Warn("screen recorder unavailable, continuing camera-only")
			return nil
		}
		if err := screenRec.Start(interval, func(payload []byte) { emit("screen", payload) }); err != nil {
			m.log().WithError(err).Warn("screen recorder failed to start, continuing camera-only")
			return nil
		}
		m.screenRec = screenRec
	}
	return nil
}

// Frames returns the camera stream as a frame source for the presence loop,
// or nil when the stream cannot be sampled.
func (m *Manager) Frames() FrameSource {
	m.mu.Lock()
	defer m.mu.Unlock()
	if fs, ok := m.camera.(FrameSource); ok {
		return fs
	}
	return nil
}

// Stop halts both recorders if still active, stops all device tracks and
// releases the preview. Safe to call multiple times.
func (m *Manager) Stop() {
	m.mu.Lock()
	if m.stopped {
		m.mu.Unlock()
		return
	}
	m.stopped = true
	camRec, screenRec := m.camRec, m.screenRec
	camera, screen := m.camera, m.screen
	m.camRec, m.screenRec = nil, nil
	m.camera, m.screen = nil, nil
	m.mu.Unlock()

	if camRec != nil && camRec.State() != RecorderInactive {
		camRec.Stop()
	}
	if screenRec != nil && screenRec.State() != RecorderInactive {
		screenRec.Stop()
	}
	if camera != nil {
		camera.Stop()
	}
	if screen != nil {
		screen.Stop()
	}
	if m.Preview != nil {
		m.Preview.Clear()
	}
}

func (m *Manager) log() *logrus.Logger {
	if m.Logger != nil {
		return m.Logger
	}
	return logrus.StandardLogger()
}
