package session

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/talentis/proctor/internal/agent/capture"
	"github.com/talentis/proctor/internal/agent/proctoring"
	"github.com/talentis/proctor/internal/utils"
)

type fakeBackend struct {
	mu            sync.Mutex
	startErr      error
	finalErr      error
	finishErr     error
	startCalls    int
	finishCalls   int
	finalSummary  []byte
	uploadedKinds []string
	flags         []string
}

func (b *fakeBackend) StartAttempt(context.Context, int64) (int64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.startCalls++
	if b.startErr != nil {
		return 0, b.startErr
	}
	return 77, nil
}

func (b *fakeBackend) Upload(_ int64, kind string, _ []byte) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.uploadedKinds = append(b.uploadedKinds, kind)
}

func (b *fakeBackend) UploadFinal(_ context.Context, _ int64, summary []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.finalErr != nil {
		return b.finalErr
	}
	b.finalSummary = append([]byte(nil), summary...)
	return nil
}

func (b *fakeBackend) Finish(context.Context, int64) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.finishErr != nil {
		return b.finishErr
	}
	b.finishCalls++
	return nil
}

func (b *fakeBackend) FaceFlag(_ int64, flagType string, _ int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.flags = append(b.flags, flagType)
}

func (b *fakeBackend) summary() []byte {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.finalSummary
}

func (b *fakeBackend) finished() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.finishCalls
}

type fakeStream struct{}

func (fakeStream) Stop() {}

type fakeDevices struct{ cameraErr error }

func (d fakeDevices) CaptureCamera(context.Context) (capture.MediaStream, error) {
	if d.cameraErr != nil {
		return nil, d.cameraErr
	}
	return fakeStream{}, nil
}

func (d fakeDevices) CaptureScreen(context.Context) (capture.MediaStream, error) {
	return fakeStream{}, nil
}

type fakeRecorder struct {
	mu    sync.Mutex
	state capture.RecorderState
}

func (r *fakeRecorder) Start(_ time.Duration, emit func([]byte)) error {
	r.mu.Lock()
	r.state = capture.RecorderRecording
	r.mu.Unlock()
	emit([]byte("segment"))
	return nil
}

func (r *fakeRecorder) Stop() {
	r.mu.Lock()
	r.state = capture.RecorderInactive
	r.mu.Unlock()
}

func (r *fakeRecorder) State() capture.RecorderState {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state == "" {
		return capture.RecorderInactive
	}
	return r.state
}

type fakeFactory struct{}

func (fakeFactory) NewRecorder(capture.MediaStream) (capture.Recorder, error) {
	return &fakeRecorder{}, nil
}

type fakeInput struct {
	mu           sync.Mutex
	fn           func(InputEvent)
	unsubscribed int
}

func (i *fakeInput) Subscribe(fn func(InputEvent)) func() {
	i.mu.Lock()
	i.fn = fn
	i.mu.Unlock()
	return func() {
		i.mu.Lock()
		i.unsubscribed++
		i.fn = nil
		i.mu.Unlock()
	}
}

func (i *fakeInput) emit(ev InputEvent) {
	i.mu.Lock()
	fn := i.fn
	i.mu.Unlock()
	if fn != nil {
		fn(ev)
	}
}

type fakeNotifier struct {
	mu       sync.Mutex
	notified []string
}

func (n *fakeNotifier) ShowBanner(string) {}
func (n *fakeNotifier) ClearBanner()      {}
func (n *fakeNotifier) Notify(msg string) {
	n.mu.Lock()
	n.notified = append(n.notified, msg)
	n.mu.Unlock()
}

func (n *fakeNotifier) last() string {
	n.mu.Lock()
	defer n.mu.Unlock()
	if len(n.notified) == 0 {
		return ""
	}
	return n.notified[len(n.notified)-1]
}

func quietLogger() *logrus.Logger {
	l := logrus.New()
	l.SetLevel(logrus.PanicLevel)
	return l
}

func testConfig(backend Backend) Config {
	return Config{
		SimulationID: 42,
		Backend:      backend,
		Capture: &capture.Manager{
			Devices:   fakeDevices{},
			Recorders: fakeFactory{},
			Logger:    quietLogger(),
		},
		DetectorInterval:   time.Hour,
		FirstQuestionDelay: time.Hour,
		QuestionPrompt:     "q one\nq two\nq three\nq four\nq five",
		Logger:             quietLogger(),
	}
}

func TestStartRequiresSimulation(t *testing.T) {
	backend := &fakeBackend{}
	cfg := testConfig(backend)
	cfg.SimulationID = 0
	c := New(cfg)

	err := c.Start(context.Background())
	require.Error(t, err)

	var ae *utils.AppError
	require.ErrorAs(t, err, &ae)
	assert.Equal(t, utils.CodeInvalidArgument, ae.Code)
	assert.Equal(t, Idle, c.State())
	assert.Zero(t, backend.startCalls)
}

func TestStartCameraDeniedReturnsToIdle(t *testing.T) {
	backend := &fakeBackend{}
	cfg := testConfig(backend)
	cfg.Capture = &capture.Manager{
		Devices:   fakeDevices{cameraErr: errors.New("denied")},
		Recorders: fakeFactory{},
		Logger:    quietLogger(),
	}
	c := New(cfg)

	require.Error(t, c.Start(context.Background()))
	assert.Equal(t, Idle, c.State())
	assert.Zero(t, backend.startCalls) // no attempt without devices
}

func TestStartAttemptFailureReleasesCapture(t *testing.T) {
	backend := &fakeBackend{startErr: errors.New("unreachable")}
	c := New(testConfig(backend))

	require.Error(t, c.Start(context.Background()))
	assert.Equal(t, Idle, c.State())
	assert.Zero(t, c.AttemptID())
}

func TestFullSessionLifecycle(t *testing.T) {
	backend := &fakeBackend{}
	input := &fakeInput{}
	cfg := testConfig(backend)
	cfg.Input = input
	c := New(cfg)

	ctx := context.Background()
	require.NoError(t, c.Start(ctx))
	assert.Equal(t, Recording, c.State())
	assert.Equal(t, int64(77), c.AttemptID())

	// first chunk of each stream was already emitted at recorder start
	backend.mu.Lock()
	kinds := append([]string(nil), backend.uploadedKinds...)
	backend.mu.Unlock()
	assert.Contains(t, kinds, "video")
	assert.Contains(t, kinds, "screen")

	input.emit(InputFocusLost)
	input.emit(InputPaste)

	// six Next calls over five questions pin the cursor at the last index
	for i := 0; i < 6; i++ {
		c.Next(ctx)
	}
	assert.Equal(t, 4, c.QuestionIndex())

	require.NoError(t, c.Stop(ctx))
	assert.Equal(t, Submitted, c.State())
	assert.Equal(t, 1, backend.finished())

	assert.JSONEq(t, `{
		"pasteCount": 1,
		"proctoring": {
			"tabBlurCount": 1,
			"multipleFaces": false,
			"faceCount": 0
		}
	}`, string(backend.summary()))

	violations := c.Violations()
	require.Len(t, violations, 2)
	assert.Equal(t, proctoring.TabBlur, violations[0].Type)
	assert.Equal(t, proctoring.Paste, violations[1].Type)

	input.mu.Lock()
	unsubs := input.unsubscribed
	input.mu.Unlock()
	assert.Equal(t, 1, unsubs)
}

func TestStopIsIdempotent(t *testing.T) {
	backend := &fakeBackend{}
	c := New(testConfig(backend))

	ctx := context.Background()
	require.NoError(t, c.Start(ctx))
	require.NoError(t, c.Stop(ctx))
	require.NoError(t, c.Stop(ctx)) // no-op, no double submit

	assert.Equal(t, Submitted, c.State())
	assert.Equal(t, 1, backend.finished())
}

func TestStopWhileIdleIsNoOp(t *testing.T) {
	backend := &fakeBackend{}
	c := New(testConfig(backend))
	require.NoError(t, c.Stop(context.Background()))
	assert.Equal(t, Idle, c.State())
	assert.Zero(t, backend.finished())
}

func TestStopFinalUploadFailureFailsSession(t *testing.T) {
	failure := utils.E(utils.CodeUnavailable, "upload.UploadFinal", "could not reach interview server", nil)
	backend := &fakeBackend{finalErr: failure}
	notifier := &fakeNotifier{}
	cfg := testConfig(backend)
	cfg.Notifier = notifier
	c := New(cfg)

	ctx := context.Background()
	require.NoError(t, c.Start(ctx))

	err := c.Stop(ctx)
	require.Error(t, err)
	assert.Equal(t, Failed, c.State())
	assert.Zero(t, backend.finished())
	assert.Equal(t, "could not reach interview server", notifier.last())
}

func TestStartTwiceConflicts(t *testing.T) {
	backend := &fakeBackend{}
	c := New(testConfig(backend))

	ctx := context.Background()
	require.NoError(t, c.Start(ctx))

	err := c.Start(ctx)
	require.Error(t, err)

	var ae *utils.AppError
	require.ErrorAs(t, err, &ae)
	assert.Equal(t, utils.CodeConflict, ae.Code)

	require.NoError(t, c.Stop(ctx))
}
