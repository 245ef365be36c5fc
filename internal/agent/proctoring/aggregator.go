package proctoring

import (
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

type EventType string

const (
	TabBlur       EventType = "TAB_BLUR"
	Paste         EventType = "PASTE"
	NoFace        EventType = "NO_FACE"
	MultipleFaces EventType = "MULTIPLE_FACES"
	HeadTurned    EventType = "HEAD_TURNED"
	HeadTilted    EventType = "HEAD_TILTED"
)

// Event is one entry in the append-only violation log.
type Event struct {
	Type          EventType `json:"type"`
	Description   string    `json:"description"`
	Timestamp     time.Time `json:"timestamp"`
	QuestionIndex int       `json:"question_index"`
}

// Notifier surfaces violations to the candidate: a transient banner showing
// the latest violation, and explicit notifications for the events that
// warrant interrupting the candidate.
type Notifier interface {
	ShowBanner(msg string)
	ClearBanner()
	Notify(msg string)
}

const (
	suppressionWindow = 5 * time.Second
	bannerTTL         = 5 * time.Second

	// NO_FACE fires on every flaky-detector tick, so only every third
	// non-suppressed occurrence notifies (1st, 4th, 7th, ...).
	noFaceNotifyEvery = 3
)

// Aggregator deduplicates detector output and input anomalies into a
// time-ordered violation log. Repeats of the same type inside the suppression
// window are dropped entirely: not appended, not notified, and not counted
// toward the NO_FACE notification cycle.
type Aggregator struct {
	notifier Notifier
	logger   *logrus.Logger
	now      func() time.Time

	mu          sync.Mutex
	events      []Event
	lastByType  map[EventType]time.Time
	noFaceSeen  int
	bannerTimer *time.Timer
}

func NewAggregator(n Notifier, l *logrus.Logger) *Aggregator {
	if l == nil {
		l = logrus.New()
	}
	return &Aggregator{
		notifier:   n,
		logger:     l,
		now:        time.Now,
		lastByType: make(map[EventType]time.Time),
	}
}

// Record appends a violation unless one of the same type fired within the
// last 5 seconds. It reports whether the event was recorded.
func (a *Aggregator) Record(t EventType, description string, questionIndex int) bool {
	a.mu.Lock()

	now := a.now()
	if last, ok := a.lastByType[t]; ok && now.Sub(last) < suppressionWindow {
		a.mu.Unlock()
		return false
	}
	a.lastByType[t] = now
	a.events = append(a.events, Event{
		Type:          t,
		Description:   description,
		Timestamp:     now,
		QuestionIndex: questionIndex,
	})

	notify := true
	if t == NoFace {
		a.noFaceSeen++
		notify = (a.noFaceSeen-1)%noFaceNotifyEvery == 0
	}
	a.mu.Unlock()

	a.logger.WithFields(logrus.Fields{
		"type":           t,
		"question_index": questionIndex,
	}).Info("violation recorded")

	if a.notifier != nil {
		a.showBanner(description)
		if notify {
			a.notifier.Notify(description)
		}
	}
	return true
}

// Events returns a copy of the violation log in record order.
func (a *Aggregator) Events() []Event {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]Event, len(a.events))
	copy(out, a.events)
	return out
}

func (a *Aggregator) showBanner(msg string) {
	a.notifier.ShowBanner(msg)

	a.mu.Lock()
	if a.bannerTimer != nil {
		a.bannerTimer.Stop()
	}
	a.bannerTimer = time.AfterFunc(bannerTTL, a.notifier.ClearBanner)
	a.mu.Unlock()
}

// Close cancels the pending banner-clear timer. Called on session teardown.
func (a *Aggregator) Close() {
	a.mu.Lock()
	if a.bannerTimer != nil {
		a.bannerTimer.Stop()
		a.bannerTimer = nil
	}
	a.mu.Unlock()
}
