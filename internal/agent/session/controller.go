package session

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/talentis/proctor/internal/agent/capture"
	"github.com/talentis/proctor/internal/agent/presence"
	"github.com/talentis/proctor/internal/agent/proctoring"
	"github.com/talentis/proctor/internal/agent/question"
	"github.com/talentis/proctor/internal/agent/upload"
	"github.com/talentis/proctor/internal/utils"
)

// State of one interview attempt. Idle, Submitted and Failed are terminal for
// a given attempt; a new attempt needs a fresh Controller.
type State string

const (
	Idle               State = "idle"
	AwaitingPermission State = "awaiting_permission"
	Recording          State = "recording"
	Stopping           State = "stopping"
	Submitted          State = "submitted"
	Failed             State = "failed"
)

// InputEvent is a candidate-input anomaly observed at the platform boundary.
type InputEvent int

const (
	InputFocusLost InputEvent = iota
	InputPaste
)

// InputEventSource delivers tab-blur and paste events while subscribed. The
// returned cancel detaches the underlying listeners; subscriptions are scoped
// to the Recording state so repeated start/stop cycles never leak listeners.
type InputEventSource interface {
	Subscribe(fn func(InputEvent)) (cancel func())
}

// Backend is the slice of the upload pipeline the controller drives.
// *upload.Client satisfies it.
type Backend interface {
	StartAttempt(ctx context.Context, simulationID int64) (int64, error)
	Upload(attemptID int64, kind string, payload []byte)
	UploadFinal(ctx context.Context, attemptID int64, summary []byte) error
	Finish(ctx context.Context, attemptID int64) error
	FaceFlag(attemptID int64, flagType string, faceCount int)
}

const (
	welcomeMessage     = "Welcome to your interview. The first question is coming up."
	firstQuestionDelay = 4 * time.Second
)

// Config wires a Controller. Capture and Backend are required; everything
// else degrades gracefully when absent.
type Config struct {
	SimulationID int64
	Backend      Backend
	Capture      *capture.Manager

	// Detector is chosen once at start (presence.Select); nil leaves the
	// session unmonitored.
	Detector         presence.Detector
	DetectorInterval time.Duration

	Input    InputEventSource
	Narrator question.Narrator
	Notifier proctoring.Notifier

	// Questions, or the prompt they are derived from when empty.
	Questions      []question.Question
	QuestionPrompt string

	// FirstQuestionDelay overrides the pause between the welcome message and
	// the first question. Defaults to 4s.
	FirstQuestionDelay time.Duration

	Logger *logrus.Logger
}

// Controller is the session lifecycle state machine. It owns the proctoring
// state, the violation log, the detection loop and the question sequencer,
// and tears all of them down deterministically on stop.
type Controller struct {
	cfg    Config
	logger *logrus.Logger

	mu        sync.Mutex
	state     State
	attemptID int64
	startedAt time.Time
	endedAt   time.Time

	proctorState *proctoring.State
	violations   *proctoring.Aggregator
	sequencer    *question.Sequencer
	loop         *presence.Loop

	unsubscribe func()
	loopCancel  context.CancelFunc
	narration   *time.Timer
}

func New(cfg Config) *Controller {
	l := cfg.Logger
	if l == nil {
		l = logrus.New()
	}
	return &Controller{
		cfg:    cfg,
		logger: l,
		state:  Idle,
	}
}

func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *Controller) AttemptID() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.attemptID
}

// Violations returns the violation log recorded so far.
func (c *Controller) Violations() []proctoring.Event {
	c.mu.Lock()
	v := c.violations
	c.mu.Unlock()
	if v == nil {
		return nil
	}
	return v.Events()
}

// Start runs Idle → AwaitingPermission → Recording. Any permission or
// attempt-creation failure releases everything already acquired and returns
// the session to Idle.
func (c *Controller) Start(ctx context.Context) error {
	const op = "session.Start"

	c.mu.Lock()
	if c.state != Idle {
		c.mu.Unlock()
		return utils.E(utils.CodeConflict, op, "session already started", nil)
	}
	if c.cfg.SimulationID == 0 {
		c.mu.Unlock()
		return utils.E(utils.CodeInvalidArgument, op, "no interview selected", nil)
	}
	c.state = AwaitingPermission
	c.mu.Unlock()

	if err := c.cfg.Capture.Acquire(ctx); err != nil {
		c.toIdle()
		return err
	}

	attemptID, err := c.cfg.Backend.StartAttempt(ctx, c.cfg.SimulationID)
	if err != nil {
		c.cfg.Capture.Stop()
		c.toIdle()
		return err
	}

	c.mu.Lock()
	c.attemptID = attemptID
	c.startedAt = time.Now()
	c.proctorState = &proctoring.State{}
	c.violations = proctoring.NewAggregator(c.cfg.Notifier, c.logger)
	c.sequencer = question.NewSequencer(
		question.Derive(c.cfg.Questions, c.cfg.QuestionPrompt),
		c.cfg.Narrator,
	)
	c.state = Recording
	c.mu.Unlock()

	if err := c.cfg.Capture.Record(func(kind string, payload []byte) {
		c.cfg.Backend.Upload(attemptID, kind, payload)
	}); err != nil {
		c.cfg.Capture.Stop()
		c.toIdle()
		return err
	}

	c.startDetection(attemptID)
	c.attachInput()
	c.scheduleNarration(ctx)

	c.logger.WithFields(logrus.Fields{
		"attempt_id":    attemptID,
		"simulation_id": c.cfg.SimulationID,
	}).Info("interview recording started")
	return nil
}

// Next advances the question sequencer while Recording.
func (c *Controller) Next(ctx context.Context) {
	c.mu.Lock()
	seq := c.sequencer
	state := c.state
	c.mu.Unlock()

	if state != Recording || seq == nil {
		return
	}
	seq.Next(ctx)
}

// QuestionIndex reports the current cursor position.
func (c *Controller) QuestionIndex() int {
	c.mu.Lock()
	seq := c.sequencer
	c.mu.Unlock()
	if seq == nil {
		return 0
	}
	return seq.Cursor()
}

// Stop runs Recording → Stopping → Submitted|Failed. It tears down the
// capture set, the detection loop and the input listeners, then uploads the
// final proctoring summary and signals completion. Calling it again after the
// first invocation is a no-op, so it never double-submits.
func (c *Controller) Stop(ctx context.Context) error {
	const op = "session.Stop"

	c.mu.Lock()
	if c.state != Recording {
		c.mu.Unlock()
		return nil
	}
	c.state = Stopping
	attemptID := c.attemptID
	seq := c.sequencer
	state := c.proctorState
	violations := c.violations
	c.mu.Unlock()

	c.teardown()
	if seq != nil {
		seq.Cancel()
	}

	summary, err := json.Marshal(state.Snapshot())
	if err != nil {
		return c.fail(utils.E(utils.CodeInternal, op, "failed to encode proctoring summary", err))
	}

	if err := c.cfg.Backend.UploadFinal(ctx, attemptID, summary); err != nil {
		return c.fail(err)
	}
	if err := c.cfg.Backend.Finish(ctx, attemptID); err != nil {
		return c.fail(err)
	}

	if violations != nil {
		violations.Close()
	}

	c.mu.Lock()
	c.state = Submitted
	c.endedAt = time.Now()
	duration := c.endedAt.Sub(c.startedAt)
	c.mu.Unlock()

	if c.cfg.Notifier != nil {
		c.cfg.Notifier.Notify("Interview submitted. Thank you!")
	}
	c.logger.WithFields(logrus.Fields{
		"attempt_id": attemptID,
		"duration_s": int(duration.Seconds()),
	}).Info("interview submitted")
	return nil
}

func (c *Controller) startDetection(attemptID int64) {
	c.mu.Lock()
	c.loop = &presence.Loop{
		Frames:        c.cfg.Capture.Frames(),
		Detector:      c.cfg.Detector,
		Interval:      c.cfg.DetectorInterval,
		State:         c.proctorState,
		Events:        c.violations,
		QuestionIndex: c.QuestionIndex,
		Flag: func(flagType string, faceCount int) {
			c.cfg.Backend.FaceFlag(attemptID, flagType, faceCount)
		},
		Logger: c.logger,
	}
	loop := c.loop

	ctx, cancel := context.WithCancel(context.Background())
	c.loopCancel = cancel
	c.mu.Unlock()

	loop.Start(ctx)
}

func (c *Controller) attachInput() {
	if c.cfg.Input == nil {
		return
	}

	c.mu.Lock()
	state := c.proctorState
	violations := c.violations
	c.mu.Unlock()

	cancel := c.cfg.Input.Subscribe(func(ev InputEvent) {
		qIdx := c.QuestionIndex()
		switch ev {
		case InputFocusLost:
			state.IncrTabBlur()
			violations.Record(proctoring.TabBlur, "Interview tab lost focus", qIdx)
		case InputPaste:
			state.IncrPaste()
			violations.Record(proctoring.Paste, "Paste detected during the interview", qIdx)
		}
	})

	c.mu.Lock()
	c.unsubscribe = cancel
	c.mu.Unlock()
}

func (c *Controller) scheduleNarration(ctx context.Context) {
	c.mu.Lock()
	seq := c.sequencer
	c.mu.Unlock()

	seq.Narrate(ctx, welcomeMessage)

	delay := c.cfg.FirstQuestionDelay
	if delay <= 0 {
		delay = firstQuestionDelay
	}

	timer := time.AfterFunc(delay, func() {
		if c.State() != Recording {
			return
		}
		seq.Narrate(context.Background(), seq.Current().Text)
	})

	c.mu.Lock()
	c.narration = timer
	c.mu.Unlock()
}

// teardown releases every resource acquired on Recording entry. No further
// chunks or detection ticks are produced once it returns.
func (c *Controller) teardown() {
	c.mu.Lock()
	cancelLoop := c.loopCancel
	loop := c.loop
	unsubscribe := c.unsubscribe
	narration := c.narration
	c.loopCancel = nil
	c.loop = nil
	c.unsubscribe = nil
	c.narration = nil
	c.mu.Unlock()

	if narration != nil {
		narration.Stop()
	}
	if loop != nil {
		loop.Stop()
	}
	if cancelLoop != nil {
		cancelLoop()
	}
	if unsubscribe != nil {
		unsubscribe()
	}
	c.cfg.Capture.Stop()
}

func (c *Controller) toIdle() {
	c.mu.Lock()
	c.state = Idle
	c.mu.Unlock()
}

func (c *Controller) fail(err error) error {
	c.mu.Lock()
	c.state = Failed
	c.endedAt = time.Now()
	attemptID := c.attemptID
	c.mu.Unlock()

	msg := "Submitting the interview failed. Please contact support."
	var ae *utils.AppError
	if errors.As(err, &ae) && ae.Message != "" {
		msg = ae.Message
	}
	if c.cfg.Notifier != nil {
		c.cfg.Notifier.Notify(msg)
	}
	c.logger.WithField("attempt_id", attemptID).WithError(err).Error("interview submission failed")
	return err
}

// compile-time check: the real pipeline satisfies Backend.
var _ Backend = (*upload.Client)(nil)
