// Command session-agent runs a full recording session against a live server
// using simulated devices. Development harness for the client pipeline: it
// exercises consent, capture, chunk upload, presence detection and submission
// end to end without real media hardware.
package main

import (
	"context"
	"flag"
	"fmt"
	"image"
	"image/color"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"

	"github.com/talentis/proctor/internal/agent/capture"
	"github.com/talentis/proctor/internal/agent/presence"
	"github.com/talentis/proctor/internal/agent/session"
	"github.com/talentis/proctor/internal/agent/upload"
	"github.com/talentis/proctor/internal/logger"
)

func main() {
	_ = godotenv.Load()
	log := logger.New()

	var (
		serverURL    = flag.String("server", envOr("PROCTOR_SERVER_URL", "http://localhost:8080"), "interview server base URL")
		token        = flag.String("token", os.Getenv("PROCTOR_TOKEN"), "bearer token for the candidate account")
		simulationID = flag.Int64("simulation", 0, "simulation id to attempt")
		duration     = flag.Duration("duration", 30*time.Second, "how long to record before submitting")
	)
	flag.Parse()

	if *simulationID == 0 {
		log.Fatal("missing -simulation id")
	}

	backend := upload.NewClient(*serverURL, *token, log)

	manager := &capture.Manager{
		Devices:   simDevices{},
		Recorders: simRecorderFactory{},
		Prompt:    autoConsent{log: log},
		Logger:    log,
	}

	ctrl := session.New(session.Config{
		SimulationID: *simulationID,
		Backend:      backend,
		Capture:      manager,
		Detector:     presence.Select(&presence.PixelHeuristic{}),
		Notifier:     logNotifier{log: log},
		Narrator:     logNarrator{log: log},
		QuestionPrompt: "Walk me through your most recent project.\n" +
			"What part of it would you redo, and why?",
		Logger: log,
	})

	ctx := context.Background()
	if err := ctrl.Start(ctx); err != nil {
		log.WithError(err).Fatal("session failed to start")
	}
	log.WithField("attempt_id", ctrl.AttemptID()).Info("recording, Ctrl-C to submit early")

	// Advance one question midway through the run.
	half := time.AfterFunc(*duration/2, func() { ctrl.Next(ctx) })
	defer half.Stop()

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-sigs:
		log.Info("interrupted, submitting")
	case <-time.After(*duration):
	}

	if err := ctrl.Stop(ctx); err != nil {
		log.WithError(err).Fatal("submission failed")
	}
	log.WithFields(logrus.Fields{
		"attempt_id": ctrl.AttemptID(),
		"violations": len(ctrl.Violations()),
		"state":      ctrl.State(),
	}).Info("done")
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

// simDevices hands out synthetic camera and screen streams.
type simDevices struct{}

func (simDevices) CaptureCamera(context.Context) (capture.MediaStream, error) {
	return &synthCamera{}, nil
}

func (simDevices) CaptureScreen(context.Context) (capture.MediaStream, error) {
	return &synthScreen{}, nil
}

// synthCamera produces frames with a skin-toned block in the center, enough
// for the pixel heuristic to report one face.
type synthCamera struct{}

func (*synthCamera) Stop() {}

func (*synthCamera) Frame(context.Context) (image.Image, error) {
	const w, h = 320, 240
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	face := color.RGBA{R: 215, G: 165, B: 135, A: 255}
	for y := h / 4; y < 3*h/4; y++ {
		for x := w / 4; x < 3*w/4; x++ {
			img.SetRGBA(x, y, face)
		}
	}
	return img, nil
}

type synthScreen struct{}

func (*synthScreen) Stop() {}

type simRecorderFactory struct{}

func (simRecorderFactory) NewRecorder(capture.MediaStream) (capture.Recorder, error) {
	return &simRecorder{}, nil
}

// simRecorder emits a fixed-size dummy segment every interval.
type simRecorder struct {
	mu    sync.Mutex
	state capture.RecorderState
	stop  chan struct{}
}

func (r *simRecorder) Start(interval time.Duration, emit func([]byte)) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state == capture.RecorderRecording {
		return fmt.Errorf("recorder already started")
	}
	r.state = capture.RecorderRecording
	r.stop = make(chan struct{})

	go func(stop chan struct{}) {
		t := time.NewTicker(interval)
		defer t.Stop()
		seq := 0
		for {
			select {
			case <-stop:
				return
			case <-t.C:
				seq++
				emit([]byte(fmt.Sprintf("segment-%06d", seq)))
			}
		}
	}(r.stop)
	return nil
}

func (r *simRecorder) Stop() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state != capture.RecorderRecording {
		return
	}
	r.state = capture.RecorderInactive
	close(r.stop)
}

func (r *simRecorder) State() capture.RecorderState {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state == "" {
		return capture.RecorderInactive
	}
	return r.state
}

// autoConsent approves the recording prompt, as a real candidate would after
// reading the consent message.
type autoConsent struct{ log *logrus.Logger }

func (a autoConsent) Confirm(_ context.Context, message string) bool {
	a.log.WithField("prompt", message).Info("consent accepted")
	return true
}

type logNotifier struct{ log *logrus.Logger }

func (n logNotifier) ShowBanner(msg string) { n.log.WithField("banner", msg).Warn("violation") }
func (n logNotifier) ClearBanner()          {}
func (n logNotifier) Notify(msg string)     { n.log.Info(msg) }

// logNarrator prints narrated text instead of synthesizing speech.
type logNarrator struct{ log *logrus.Logger }

func (n logNarrator) Speak(_ context.Context, text string, done func(error)) {
	n.log.WithField("say", text).Info("narrating")
	if done != nil {
		go done(nil)
	}
}

func (n logNarrator) Cancel() {}
