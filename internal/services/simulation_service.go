package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/talentis/proctor/internal/agent/question"
	"github.com/talentis/proctor/internal/cache"
	"github.com/talentis/proctor/internal/models"
	"github.com/talentis/proctor/internal/providers/llm"
	"github.com/talentis/proctor/internal/repositories/postgres"
	"github.com/talentis/proctor/internal/utils"
)

const simulationCacheTTL = 10 * time.Minute

type SimulationService interface {
	Create(ctx context.Context, createdBy, title, role, prompt string, explicit []question.Question) (*models.Simulation, error)
	Get(ctx context.Context, id int64) (*models.Simulation, error)
	ListMine(ctx context.Context, createdBy string, limit int) ([]models.Simulation, error)
	Questions(ctx context.Context, id int64) ([]question.Question, error)
}

type simulationService struct {
	simulations postgres.SimulationRepo
	generator   llm.Provider // optional
	cache       cache.Cache  // optional
	logger      *logrus.Logger
}

func NewSimulationService(simulations postgres.SimulationRepo, generator llm.Provider, c cache.Cache, l *logrus.Logger) SimulationService {
	if l == nil {
		l = logrus.New()
	}
	return &simulationService{simulations: simulations, generator: generator, cache: c, logger: l}
}

// Create stores a simulation with its fixed question sequence. Explicit
// questions win; otherwise the list is generated from the role/prompt brief,
// falling back to plain prompt-line derivation when no generator is wired or
// generation fails.
func (s *simulationService) Create(ctx context.Context, createdBy, title, role, prompt string, explicit []question.Question) (*models.Simulation, error) {
	const op = "SimulationService.Create"

	if createdBy == "" || title == "" {
		return nil, utils.E(utils.CodeInvalidArgument, op, "title and creator are required", nil)
	}

	questions := question.Derive(explicit, prompt)
	if len(explicit) == 0 && s.generator != nil {
		if generated, err := s.generateQuestions(ctx, role, prompt); err != nil {
			s.logger.WithError(err).Warn("question generation failed, using prompt-derived questions")
		} else {
			questions = generated
		}
	}

	raw, err := json.Marshal(questions)
	if err != nil {
		return nil, utils.E(utils.CodeInternal, op, "failed to encode questions", err)
	}

	sim := &models.Simulation{
		Title:     title,
		Role:      role,
		Prompt:    prompt,
		CreatedBy: createdBy,
		Questions: raw,
		CreatedAt: time.Now().UTC(),
	}
	if err := s.simulations.Create(ctx, sim); err != nil {
		return nil, utils.E(utils.CodeInternal, op, "failed to create simulation", err)
	}
	return sim, nil
}

func (s *simulationService) Get(ctx context.Context, id int64) (*models.Simulation, error) {
	const op = "SimulationService.Get"

	key := fmt.Sprintf("simulation:%d", id)
	if s.cache != nil {
		var cached models.Simulation
		if hit, err := s.cache.GetJSON(ctx, key, &cached); err == nil && hit {
			return &cached, nil
		}
	}

	out, err := s.simulations.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, utils.ErrNotFound) {
			return nil, utils.E(utils.CodeNotFound, op, "simulation not found", err)
		}
		return nil, utils.E(utils.CodeInternal, op, "failed to get simulation", err)
	}

	if s.cache != nil {
		_ = s.cache.SetJSON(ctx, key, out, simulationCacheTTL)
	}
	return out, nil
}

func (s *simulationService) ListMine(ctx context.Context, createdBy string, limit int) ([]models.Simulation, error) {
	const op = "SimulationService.ListMine"

	if createdBy == "" {
		return nil, utils.E(utils.CodeInvalidArgument, op, "creator is required", nil)
	}
	out, err := s.simulations.ListByCreator(ctx, createdBy, limit)
	if err != nil {
		return nil, utils.E(utils.CodeInternal, op, "failed to list simulations", err)
	}
	return out, nil
}

func (s *simulationService) Questions(ctx context.Context, id int64) ([]question.Question, error) {
	sim, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	var questions []question.Question
	if len(sim.Questions) > 0 {
		if err := json.Unmarshal(sim.Questions, &questions); err == nil && len(questions) > 0 {
			return questions, nil
		}
	}
	return question.Derive(nil, sim.Prompt), nil
}

func (s *simulationService) generateQuestions(ctx context.Context, role, prompt string) ([]question.Question, error) {
	gen := "You are preparing a structured job interview"
	if role != "" {
		gen += " for the role of " + role
	}
	gen += ".\nWrite exactly " + fmt.Sprint(question.MinQuestions) + " interview questions, one per line, no numbering.\n"
	if prompt != "" {
		gen += "\nJob brief:\n" + prompt
	}

	text, err := s.generator.Answer(ctx, gen)
	if err != nil {
		return nil, err
	}

	questions := question.Derive(nil, text)
	if len(questions) == 0 {
		return nil, errors.New("generator returned no questions")
	}
	return questions, nil
}
