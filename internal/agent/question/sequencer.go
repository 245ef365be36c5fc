package question

import (
	"context"
	"strings"
	"sync"
)

// Narrator vocalizes text asynchronously. done runs on completion or failure;
// Cancel drops any in-flight utterance so narrations never overlap. A nil
// Narrator means speech synthesis is unsupported and narration is skipped.
type Narrator interface {
	Speak(ctx context.Context, text string, done func(err error))
	Cancel()
}

// Question is one interview prompt, immutable once the list is derived.
type Question struct {
	Text     string `json:"text"`
	Category string `json:"category"`
	Index    int    `json:"index"`
}

const MinQuestions = 5

const closingPrompt = "That was the last question. Thank you, you can finish the interview when you are ready."

// fallbackQuestions pad a derived list up to MinQuestions.
var fallbackQuestions = []string{
	"Tell me about yourself and your background.",
	"Describe a challenging project you worked on and how you handled it.",
	"Why are you interested in this role?",
	"What do you consider your greatest professional strength?",
	"Where do you see yourself in five years?",
}

// Derive builds the fixed question sequence for a session. Explicit
// structured questions win; otherwise the free-text prompt is split into
// lines and padded with generic fallbacks until the minimum count is reached.
func Derive(explicit []Question, prompt string) []Question {
	var texts []string
	if len(explicit) > 0 {
		out := make([]Question, len(explicit))
		copy(out, explicit)
		for i := range out {
			out[i].Index = i
		}
		return out
	}

	for _, line := range strings.Split(prompt, "\n") {
		line = strings.TrimSpace(line)
		if line != "" {
			texts = append(texts, line)
		}
	}
	for i := 0; len(texts) < MinQuestions && i < len(fallbackQuestions); i++ {
		texts = append(texts, fallbackQuestions[i])
	}

	out := make([]Question, len(texts))
	for i, t := range texts {
		out[i] = Question{Text: t, Category: "general", Index: i}
	}
	return out
}

// Sequencer advances through the fixed question list and narrates each
// question as it becomes current. The cursor is monotonically non-decreasing;
// Next at the last question narrates a closing prompt instead of advancing.
type Sequencer struct {
	narrator Narrator

	// OnSpeaking, when set, is toggled as narration starts and ends.
	OnSpeaking func(speaking bool)

	mu        sync.Mutex
	questions []Question
	cursor    int
}

func NewSequencer(questions []Question, n Narrator) *Sequencer {
	return &Sequencer{narrator: n, questions: questions}
}

func (s *Sequencer) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.questions)
}

func (s *Sequencer) Cursor() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cursor
}

func (s *Sequencer) Current() Question {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.questions) == 0 {
		return Question{}
	}
	return s.questions[s.cursor]
}

// Next advances to the following question and narrates it. At the last
// question it narrates the closing prompt and leaves the cursor unchanged.
func (s *Sequencer) Next(ctx context.Context) {
	s.mu.Lock()
	if len(s.questions) == 0 {
		s.mu.Unlock()
		return
	}
	if s.cursor >= len(s.questions)-1 {
		s.mu.Unlock()
		s.Narrate(ctx, closingPrompt)
		return
	}
	s.cursor++
	text := s.questions[s.cursor].Text
	s.mu.Unlock()

	s.Narrate(ctx, text)
}

// Narrate speaks text fire-and-forget, cancelling any utterance already in
// flight. Completion or failure only toggles the speaking indicator.
func (s *Sequencer) Narrate(ctx context.Context, text string) {
	if s.narrator == nil {
		return
	}
	s.narrator.Cancel()

	if s.OnSpeaking != nil {
		s.OnSpeaking(true)
	}
	s.narrator.Speak(ctx, text, func(error) {
		if s.OnSpeaking != nil {
			s.OnSpeaking(false)
		}
	})
}

// Cancel drops any in-flight narration.
func (s *Sequencer) Cancel() {
	if s.narrator != nil {
		s.narrator.Cancel()
	}
}
