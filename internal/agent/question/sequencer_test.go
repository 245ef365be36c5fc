package question

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingNarrator struct {
	mu      sync.Mutex
	spoken  []string
	cancels int
	fail    error
}

func (n *recordingNarrator) Speak(_ context.Context, text string, done func(error)) {
	n.mu.Lock()
	n.spoken = append(n.spoken, text)
	n.mu.Unlock()
	if done != nil {
		done(n.fail)
	}
}

func (n *recordingNarrator) Cancel() {
	n.mu.Lock()
	n.cancels++
	n.mu.Unlock()
}

func (n *recordingNarrator) all() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append(n.spoken[:0:0], n.spoken...)
}

func TestDeriveExplicitQuestionsWin(t *testing.T) {
	explicit := []Question{
		{Text: "Why us?", Category: "motivation", Index: 7},
		{Text: "Biggest failure?", Category: "behavioral", Index: 99},
	}

	got := Derive(explicit, "this prompt is ignored\nentirely")
	require.Len(t, got, 2)
	assert.Equal(t, 0, got[0].Index)
	assert.Equal(t, 1, got[1].Index)
	assert.Equal(t, "Why us?", got[0].Text)
	assert.Equal(t, "motivation", got[0].Category)
}

func TestDerivePadsPromptLinesToMinimum(t *testing.T) {
	got := Derive(nil, "  Describe your current role.  \n\n  What tools do you use daily?  \n")
	require.Len(t, got, MinQuestions)

	assert.Equal(t, "Describe your current role.", got[0].Text)
	assert.Equal(t, "What tools do you use daily?", got[1].Text)
	for i, q := range got {
		assert.Equal(t, i, q.Index)
		assert.Equal(t, "general", q.Category)
	}
	// padding comes from the generic fallbacks
	assert.Equal(t, fallbackQuestions[0], got[2].Text)
}

func TestDeriveEmptyPromptFallsBackEntirely(t *testing.T) {
	got := Derive(nil, "")
	require.Len(t, got, MinQuestions)
	assert.Equal(t, fallbackQuestions[0], got[0].Text)
}

func TestSequencerNextAdvancesAndNarrates(t *testing.T) {
	n := &recordingNarrator{}
	s := NewSequencer(Derive(nil, "q one\nq two\nq three\nq four\nq five"), n)

	ctx := context.Background()
	require.Equal(t, 0, s.Cursor())

	s.Next(ctx)
	assert.Equal(t, 1, s.Cursor())
	assert.Equal(t, "q two", s.Current().Text)
	assert.Equal(t, []string{"q two"}, n.all())
}

func TestSequencerNextAtLastQuestionNarratesClosing(t *testing.T) {
	n := &recordingNarrator{}
	s := NewSequencer(Derive(nil, "q one\nq two\nq three\nq four\nq five"), n)

	ctx := context.Background()
	for i := 0; i < 6; i++ {
		s.Next(ctx)
	}

	// cursor pinned at the last index, extra calls re-narrate the closing
	assert.Equal(t, 4, s.Cursor())
	spoken := n.all()
	require.Len(t, spoken, 6)
	assert.Equal(t, closingPrompt, spoken[4])
	assert.Equal(t, closingPrompt, spoken[5])
}

func TestSequencerNarrateCancelsInFlightSpeech(t *testing.T) {
	n := &recordingNarrator{}
	s := NewSequencer(Derive(nil, ""), n)

	var toggles []bool
	s.OnSpeaking = func(speaking bool) { toggles = append(toggles, speaking) }

	s.Narrate(context.Background(), "hello")
	assert.Equal(t, 1, n.cancels)
	assert.Equal(t, []bool{true, false}, toggles)
}

func TestSequencerWithoutNarrator(t *testing.T) {
	s := NewSequencer(Derive(nil, ""), nil)
	s.Next(context.Background()) // must not panic
	s.Cancel()
	assert.Equal(t, 1, s.Cursor())
}

func TestSequencerEmptyQuestions(t *testing.T) {
	n := &recordingNarrator{}
	s := NewSequencer(nil, n)

	s.Next(context.Background())
	assert.Equal(t, 0, s.Cursor())
	assert.Equal(t, Question{}, s.Current())
	assert.Empty(t, n.all())
}
