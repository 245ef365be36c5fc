package services

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"time"

	"github.com/talentis/proctor/internal/models"
	mongorepo "github.com/talentis/proctor/internal/repositories/mongo"
	"github.com/talentis/proctor/internal/repositories/postgres"
	"github.com/talentis/proctor/internal/storage"
	"github.com/talentis/proctor/internal/utils"
	"gorm.io/datatypes"
)

// Chunk kinds accepted by SaveChunk.
const (
	ChunkVideo        = "video"
	ChunkScreen       = "screen"
	ChunkEditorEvents = "editor_events"
)

const maxEditorEventsBytes = 256 << 10

const playbackURLTTL = 15 * time.Minute

// Review is the reviewer-facing projection of one attempt.
type Review struct {
	ID               int64                 `json:"id"`
	SimulationID     int64                 `json:"simulation_id"`
	Status           string                `json:"status"`
	VideoURL         *string               `json:"video_url"`
	ScreenURL        *string               `json:"screen_url"`
	Transcript       string                `json:"transcript"`
	BehaviorAnalysis datatypes.JSON        `json:"behavior_analysis"`
	ProctoringFlags  []string              `json:"proctoring_flags"`
	CheatingRisk     float64               `json:"cheating_risk"`
	Responses        datatypes.JSON        `json:"responses"`
	Events           []models.ProctorEvent `json:"events"`
	EventCounts      map[string]int64      `json:"event_counts"`
}

type AttemptService interface {
	Start(ctx context.Context, simulationID int64, candidateID string) (*models.SimulationAttempt, error)
	Get(ctx context.Context, attemptID int64) (*models.SimulationAttempt, error)
	SaveChunk(ctx context.Context, attemptID int64, userID, kind string, chunk io.Reader) error
	Finish(ctx context.Context, attemptID int64, userID string) error
	Review(ctx context.Context, attemptID int64) (*Review, error)
}

type attemptService struct {
	attempts    postgres.AttemptRepo
	simulations postgres.SimulationRepo
	chunks      mongorepo.ChunkRepository
	events      mongorepo.EventRepository
	spool       *storage.DiskSpool
	queue       AssembleQueue
	signer      storage.Signer // optional
}

func NewAttemptService(
	attempts postgres.AttemptRepo,
	simulations postgres.SimulationRepo,
	chunks mongorepo.ChunkRepository,
	events mongorepo.EventRepository,
	spool *storage.DiskSpool,
	queue AssembleQueue,
	signer storage.Signer,
) AttemptService {
	return &attemptService{
		attempts:    attempts,
		simulations: simulations,
		chunks:      chunks,
		events:      events,
		spool:       spool,
		queue:       queue,
		signer:      signer,
	}
}

func (s *attemptService) Start(ctx context.Context, simulationID int64, candidateID string) (*models.SimulationAttempt, error) {
	const op = "AttemptService.Start"

	if simulationID == 0 || candidateID == "" {
		return nil, utils.E(utils.CodeInvalidArgument, op, "simulation_id and candidate are required", nil)
	}

	if _, err := s.simulations.GetByID(ctx, simulationID); err != nil {
		if errors.Is(err, utils.ErrNotFound) {
			return nil, utils.E(utils.CodeNotFound, op, "simulation not found", err)
		}
		return nil, utils.E(utils.CodeInternal, op, "failed to load simulation", err)
	}

	attempt := &models.SimulationAttempt{
		SimulationID: simulationID,
		CandidateID:  candidateID,
		Status:       models.AttemptRecording,
		Responses:    datatypes.JSON([]byte(`{}`)),
		CreatedAt:    time.Now().UTC(),
	}
	if err := s.attempts.Create(ctx, attempt); err != nil {
		return nil, utils.E(utils.CodeInternal, op, "failed to create attempt", err)
	}
	return attempt, nil
}

func (s *attemptService) Get(ctx context.Context, attemptID int64) (*models.SimulationAttempt, error) {
	const op = "AttemptService.Get"

	out, err := s.attempts.GetByID(ctx, attemptID)
	if err != nil {
		if errors.Is(err, utils.ErrNotFound) {
			return nil, utils.E(utils.CodeNotFound, op, "attempt not found", err)
		}
		return nil, utils.E(utils.CodeInternal, op, "failed to get attempt", err)
	}
	return out, nil
}

// SaveChunk spools one uploaded segment and records it in the manifest.
// editor_events chunks are small JSON summaries merged straight into the
// attempt's responses instead of the media spool.
func (s *attemptService) SaveChunk(ctx context.Context, attemptID int64, userID, kind string, chunk io.Reader) error {
	const op = "AttemptService.SaveChunk"

	attempt, err := s.ownedAttempt(ctx, op, attemptID, userID)
	if err != nil {
		return err
	}

	switch kind {
	case ChunkVideo, ChunkScreen:
		seq, err := s.chunks.NextSeq(ctx, attemptID, kind)
		if err != nil {
			return utils.E(utils.CodeInternal, op, "failed to sequence chunk", err)
		}
		path, size, err := s.spool.Save(attemptID, kind, seq, chunk)
		if err != nil {
			return utils.E(utils.CodeInternal, op, "failed to store chunk", err)
		}
		if err := s.chunks.Insert(ctx, &models.ChunkManifest{
			AttemptID: attemptID,
			Kind:      kind,
			Seq:       seq,
			Path:      path,
			SizeBytes: size,
		}); err != nil {
			return utils.E(utils.CodeInternal, op, "failed to record chunk", err)
		}
		return nil

	case ChunkEditorEvents:
		body, err := io.ReadAll(io.LimitReader(chunk, maxEditorEventsBytes))
		if err != nil {
			return utils.E(utils.CodeInvalidArgument, op, "failed to read editor events", err)
		}
		return s.mergeEditorEvents(ctx, op, attempt, body)

	default:
		return utils.E(utils.CodeInvalidArgument, op, "kind must be video, screen or editor_events", nil)
	}
}

// editorEventsSummary is the final proctoring summary the session controller
// uploads once at stop.
type editorEventsSummary struct {
	PasteCount int `json:"pasteCount"`
	Proctoring struct {
		TabBlurCount  int  `json:"tabBlurCount"`
		MultipleFaces bool `json:"multipleFaces"`
		FaceCount     int  `json:"faceCount"`
	} `json:"proctoring"`
}

func (s *attemptService) mergeEditorEvents(ctx context.Context, op string, attempt *models.SimulationAttempt, body []byte) error {
	var summary editorEventsSummary
	if err := json.Unmarshal(body, &summary); err != nil {
		return utils.E(utils.CodeInvalidArgument, op, "editor events must be JSON", err)
	}

	responses := map[string]json.RawMessage{}
	if len(attempt.Responses) > 0 {
		_ = json.Unmarshal(attempt.Responses, &responses)
	}
	responses["editor_events"] = body

	var proctor models.ProctoringSummary
	if raw, ok := responses["proctoring"]; ok {
		_ = json.Unmarshal(raw, &proctor)
	}
	proctor.PasteCount += summary.PasteCount
	proctor.TabBlurCount += summary.Proctoring.TabBlurCount
	if summary.Proctoring.MultipleFaces {
		proctor.MultipleFaces = true
	}
	if summary.Proctoring.FaceCount > proctor.FaceCount {
		proctor.FaceCount = summary.Proctoring.FaceCount
	}

	rawProctor, _ := json.Marshal(proctor)
	responses["proctoring"] = rawProctor

	merged, err := json.Marshal(responses)
	if err != nil {
		return utils.E(utils.CodeInternal, op, "failed to encode responses", err)
	}
	if err := s.attempts.UpdateResponses(ctx, attempt.ID, merged); err != nil {
		return utils.E(utils.CodeInternal, op, "failed to persist responses", err)
	}
	return nil
}

// Finish marks the attempt complete and enqueues assembly + analysis.
func (s *attemptService) Finish(ctx context.Context, attemptID int64, userID string) error {
	const op = "AttemptService.Finish"

	if _, err := s.ownedAttempt(ctx, op, attemptID, userID); err != nil {
		return err
	}

	if err := s.attempts.MarkFinished(ctx, attemptID, time.Now().UTC()); err != nil {
		return utils.E(utils.CodeInternal, op, "failed to mark attempt finished", err)
	}
	if err := s.queue.EnqueueAssemble(ctx, attemptID); err != nil {
		return utils.E(utils.CodeUnavailable, op, "failed to enqueue processing", err)
	}
	return nil
}

func (s *attemptService) Review(ctx context.Context, attemptID int64) (*Review, error) {
	const op = "AttemptService.Review"

	attempt, err := s.Get(ctx, attemptID)
	if err != nil {
		return nil, err
	}

	events, err := s.events.ListByAttempt(ctx, attemptID, 0)
	if err != nil {
		return nil, utils.E(utils.CodeInternal, op, "failed to list proctor events", err)
	}
	counts, err := s.events.CountByType(ctx, attemptID)
	if err != nil {
		return nil, utils.E(utils.CodeInternal, op, "failed to count proctor events", err)
	}

	return &Review{
		ID:               attempt.ID,
		SimulationID:     attempt.SimulationID,
		Status:           attempt.Status,
		VideoURL:         s.playbackURL(ctx, attempt.VideoURL),
		ScreenURL:        s.playbackURL(ctx, attempt.ScreenURL),
		Transcript:       attempt.Transcript,
		BehaviorAnalysis: attempt.BehaviorAnalysis,
		ProctoringFlags:  attempt.ProctoringFlags,
		CheatingRisk:     attempt.CheatingRisk,
		Responses:        attempt.Responses,
		Events:           events,
		EventCounts:      counts,
	}, nil
}

// playbackURL signs the stored object path for reviewer playback. Without a
// signer, or when signing fails, the stored path is returned unchanged.
func (s *attemptService) playbackURL(ctx context.Context, stored *string) *string {
	if stored == nil || s.signer == nil {
		return stored
	}
	url, err := s.signer.SignedGetURL(ctx, *stored, playbackURLTTL)
	if err != nil {
		return stored
	}
	return &url
}

func (s *attemptService) ownedAttempt(ctx context.Context, op string, attemptID int64, userID string) (*models.SimulationAttempt, error) {
	attempt, err := s.Get(ctx, attemptID)
	if err != nil {
		return nil, err
	}
	if attempt.CandidateID != userID {
		return nil, utils.E(utils.CodeForbidden, op, "not allowed", nil)
	}
	return attempt, nil
}
