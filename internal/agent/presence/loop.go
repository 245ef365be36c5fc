package presence

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/talentis/proctor/internal/agent/capture"
	"github.com/talentis/proctor/internal/agent/proctoring"
)

const defaultInterval = 2500 * time.Millisecond

// FlagFunc fires a best-effort proctoring ping to the review backend.
type FlagFunc func(flagType string, faceCount int)

// Loop periodically samples the live camera frame, runs the selected detector
// and classifies the result. A tick that errors is logged and skipped; the
// loop keeps going until its context is cancelled or Stop is called.
type Loop struct {
	Frames   capture.FrameSource
	Detector Detector
	Interval time.Duration

	State         *proctoring.State
	Events        *proctoring.Aggregator
	Flag          FlagFunc
	QuestionIndex func() int

	Logger *logrus.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
}

// Start launches the detection ticker. A loop without frames or detector
// starts anyway and no-ops each tick, so the session proceeds unmonitored
// rather than failing.
func (l *Loop) Start(ctx context.Context) {
	l.mu.Lock()
	if l.cancel != nil {
		l.mu.Unlock()
		return
	}
	ctx, l.cancel = context.WithCancel(ctx)
	l.mu.Unlock()

	interval := l.Interval
	if interval <= 0 {
		interval = defaultInterval
	}

	if l.Detector == nil {
		l.log().Warn("no presence detector available, session is unmonitored")
	}
	if l.Frames == nil {
		l.log().Warn("camera stream cannot be sampled, presence detection disabled")
	}

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				l.tick(ctx)
			}
		}
	}()
}

// Stop cancels the ticker. Idempotent.
func (l *Loop) Stop() {
	l.mu.Lock()
	if l.cancel != nil {
		l.cancel()
		l.cancel = nil
	}
	l.mu.Unlock()
}

func (l *Loop) tick(ctx context.Context) {
	if l.Frames == nil || l.Detector == nil {
		return
	}

	frame, err := l.Frames.Frame(ctx)
	if err != nil {
		l.log().WithError(err).Debug("frame sample failed, skipping tick")
		return
	}

	faces, err := l.Detector.Detect(ctx, frame)
	if err != nil {
		l.log().WithError(err).WithField("detector", l.Detector.Name()).Warn("detection tick failed")
		return
	}

	count := len(faces)
	if l.State != nil {
		l.State.ObserveFaces(count)
	}

	qIdx := 0
	if l.QuestionIndex != nil {
		qIdx = l.QuestionIndex()
	}

	switch {
	case count == 0:
		l.record(proctoring.NoFace, "No face visible in the camera frame", qIdx)
		l.flag("no_face", count)
	case count > 1:
		l.record(proctoring.MultipleFaces, fmt.Sprintf("%d faces visible in the camera frame", count), qIdx)
		l.flag("multiple_faces", count)
	default:
		l.checkPose(faces[0], qIdx)
	}
}

func (l *Loop) checkPose(f Face, qIdx int) {
	if f.Landmarks == nil {
		return
	}
	yaw, pitch := EstimatePose(f.Landmarks)
	if yaw > YawThreshold || yaw < -YawThreshold {
		l.record(proctoring.HeadTurned, "Head turned away from the screen", qIdx)
	}
	if pitch > PitchThreshold || pitch < -PitchThreshold {
		l.record(proctoring.HeadTilted, "Head tilted away from the screen", qIdx)
	}
}

func (l *Loop) record(t proctoring.EventType, desc string, qIdx int) {
	if l.Events != nil {
		l.Events.Record(t, desc, qIdx)
	}
}

func (l *Loop) flag(flagType string, count int) {
	if l.Flag != nil {
		l.Flag(flagType, count)
	}
}

func (l *Loop) log() *logrus.Logger {
	if l.Logger != nil {
		return l.Logger
	}
	return logrus.StandardLogger()
}
