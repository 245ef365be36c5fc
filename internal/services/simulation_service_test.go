package services

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/talentis/proctor/internal/agent/question"
	"github.com/talentis/proctor/internal/providers/llm"
	"github.com/talentis/proctor/internal/utils"
)

func newSimulationService(gen *fakeLLM) (SimulationService, *memSimulationRepo) {
	repo := newMemSimulationRepo()
	l := logrus.New()
	l.SetLevel(logrus.PanicLevel)

	var provider llm.Provider
	if gen != nil {
		provider = gen
	}
	return NewSimulationService(repo, provider, nil, l), repo
}

func TestSimulationCreateExplicitQuestionsWin(t *testing.T) {
	svc, _ := newSimulationService(&fakeLLM{answer: "generated question"})

	sim, err := svc.Create(context.Background(), "recruiter-1", "Go interview", "Backend Engineer", "ignored prompt",
		[]question.Question{{Text: "Explain goroutines."}, {Text: "What is a channel?"}})
	require.NoError(t, err)

	var questions []question.Question
	require.NoError(t, json.Unmarshal(sim.Questions, &questions))
	require.Len(t, questions, 2)
	assert.Equal(t, "Explain goroutines.", questions[0].Text)
	assert.Equal(t, 0, questions[0].Index)
}

func TestSimulationCreateGeneratesFromBrief(t *testing.T) {
	gen := &fakeLLM{answer: "Q one\nQ two\nQ three\nQ four\nQ five"}
	svc, _ := newSimulationService(gen)

	sim, err := svc.Create(context.Background(), "recruiter-1", "Go interview", "Backend Engineer", "build APIs", nil)
	require.NoError(t, err)

	var questions []question.Question
	require.NoError(t, json.Unmarshal(sim.Questions, &questions))
	require.Len(t, questions, 5)
	assert.Equal(t, "Q one", questions[0].Text)
}

func TestSimulationCreateGeneratorFailureFallsBack(t *testing.T) {
	gen := &fakeLLM{answerErr: errors.New("quota exceeded")}
	svc, _ := newSimulationService(gen)

	sim, err := svc.Create(context.Background(), "recruiter-1", "Go interview", "", "First prompt line", nil)
	require.NoError(t, err)

	var questions []question.Question
	require.NoError(t, json.Unmarshal(sim.Questions, &questions))
	require.Len(t, questions, question.MinQuestions)
	assert.Equal(t, "First prompt line", questions[0].Text)
}

func TestSimulationCreateValidation(t *testing.T) {
	svc, _ := newSimulationService(nil)

	_, err := svc.Create(context.Background(), "", "title", "", "", nil)
	requireCode(t, err, utils.CodeInvalidArgument)

	_, err = svc.Create(context.Background(), "recruiter-1", "", "", "", nil)
	requireCode(t, err, utils.CodeInvalidArgument)
}

func TestSimulationGetNotFound(t *testing.T) {
	svc, _ := newSimulationService(nil)

	_, err := svc.Get(context.Background(), 99)
	requireCode(t, err, utils.CodeNotFound)
}

func TestSimulationQuestionsRoundTrip(t *testing.T) {
	svc, _ := newSimulationService(nil)

	sim, err := svc.Create(context.Background(), "recruiter-1", "t", "", "one\ntwo\nthree\nfour\nfive\nsix", nil)
	require.NoError(t, err)

	questions, err := svc.Questions(context.Background(), sim.ID)
	require.NoError(t, err)
	require.Len(t, questions, 6)
	assert.Equal(t, "six", questions[5].Text)
}

func TestSimulationListMine(t *testing.T) {
	svc, _ := newSimulationService(nil)
	ctx := context.Background()

	_, err := svc.Create(ctx, "recruiter-1", "first", "", "", nil)
	require.NoError(t, err)
	_, err = svc.Create(ctx, "recruiter-2", "other", "", "", nil)
	require.NoError(t, err)

	mine, err := svc.ListMine(ctx, "recruiter-1", 0)
	require.NoError(t, err)
	require.Len(t, mine, 1)
	assert.Equal(t, "first", mine[0].Title)

	_, err = svc.ListMine(ctx, "", 0)
	requireCode(t, err, utils.CodeInvalidArgument)
}
