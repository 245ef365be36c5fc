package services

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/lib/pq"
	"github.com/talentis/proctor/internal/models"
	"github.com/talentis/proctor/internal/utils"
	"gorm.io/datatypes"
)

type memAttemptRepo struct {
	mu     sync.Mutex
	nextID int64
	rows   map[int64]*models.SimulationAttempt
}

func newMemAttemptRepo() *memAttemptRepo {
	return &memAttemptRepo{rows: map[int64]*models.SimulationAttempt{}}
}

func (r *memAttemptRepo) Create(_ context.Context, a *models.SimulationAttempt) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextID++
	a.ID = r.nextID
	cp := *a
	r.rows[a.ID] = &cp
	return nil
}

func (r *memAttemptRepo) GetByID(_ context.Context, id int64) (*models.SimulationAttempt, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	row, ok := r.rows[id]
	if !ok {
		return nil, utils.ErrNotFound
	}
	cp := *row
	return &cp, nil
}

func (r *memAttemptRepo) UpdateResponses(_ context.Context, id int64, responses datatypes.JSON) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if row, ok := r.rows[id]; ok {
		row.Responses = responses
	}
	return nil
}

func (r *memAttemptRepo) SetStatus(_ context.Context, id int64, status string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if row, ok := r.rows[id]; ok {
		row.Status = status
	}
	return nil
}

func (r *memAttemptRepo) SetMedia(_ context.Context, id int64, videoURL, screenURL *string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if row, ok := r.rows[id]; ok {
		if videoURL != nil {
			row.VideoURL = videoURL
		}
		if screenURL != nil {
			row.ScreenURL = screenURL
		}
	}
	return nil
}

func (r *memAttemptRepo) SetAnalysis(_ context.Context, id int64, transcript string, behavior datatypes.JSON, flags pq.StringArray, risk float64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if row, ok := r.rows[id]; ok {
		row.Transcript = transcript
		row.BehaviorAnalysis = behavior
		row.ProctoringFlags = flags
		row.CheatingRisk = risk
		row.Status = models.AttemptProcessed
	}
	return nil
}

func (r *memAttemptRepo) MarkFinished(_ context.Context, id int64, finishedAt time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if row, ok := r.rows[id]; ok {
		row.Status = models.AttemptProcessing
		at := finishedAt.UTC()
		row.FinishedAt = &at
	}
	return nil
}

type memSimulationRepo struct {
	mu     sync.Mutex
	nextID int64
	rows   map[int64]*models.Simulation
}

func newMemSimulationRepo() *memSimulationRepo {
	return &memSimulationRepo{rows: map[int64]*models.Simulation{}}
}

func (r *memSimulationRepo) Create(_ context.Context, sim *models.Simulation) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextID++
	sim.ID = r.nextID
	cp := *sim
	r.rows[sim.ID] = &cp
	return nil
}

func (r *memSimulationRepo) GetByID(_ context.Context, id int64) (*models.Simulation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	row, ok := r.rows[id]
	if !ok {
		return nil, utils.ErrNotFound
	}
	cp := *row
	return &cp, nil
}

func (r *memSimulationRepo) ListByCreator(_ context.Context, createdBy string, limit int) ([]models.Simulation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []models.Simulation
	for _, row := range r.rows {
		if row.CreatedBy == createdBy {
			out = append(out, *row)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

type memChunkRepo struct {
	mu   sync.Mutex
	rows []models.ChunkManifest
}

func (r *memChunkRepo) Insert(_ context.Context, c *models.ChunkManifest) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rows = append(r.rows, *c)
	return nil
}

func (r *memChunkRepo) NextSeq(_ context.Context, attemptID int64, kind string) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var max int64
	for _, c := range r.rows {
		if c.AttemptID == attemptID && c.Kind == kind && c.Seq > max {
			max = c.Seq
		}
	}
	return max + 1, nil
}

func (r *memChunkRepo) ListByAttempt(_ context.Context, attemptID int64, kind string) ([]models.ChunkManifest, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []models.ChunkManifest
	for _, c := range r.rows {
		if c.AttemptID == attemptID && c.Kind == kind {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Seq < out[j].Seq })
	return out, nil
}

func (r *memChunkRepo) DeleteByAttempt(_ context.Context, attemptID int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	kept := r.rows[:0]
	for _, c := range r.rows {
		if c.AttemptID != attemptID {
			kept = append(kept, c)
		}
	}
	r.rows = kept
	return nil
}

type memEventRepo struct {
	mu        sync.Mutex
	rows      []models.ProctorEvent
	insertErr error
}

func (r *memEventRepo) Insert(_ context.Context, ev *models.ProctorEvent) error {
	if r.insertErr != nil {
		return r.insertErr
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rows = append(r.rows, *ev)
	return nil
}

func (r *memEventRepo) ListByAttempt(_ context.Context, attemptID int64, _ int64) ([]models.ProctorEvent, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []models.ProctorEvent
	for _, ev := range r.rows {
		if ev.AttemptID == attemptID {
			out = append(out, ev)
		}
	}
	return out, nil
}

func (r *memEventRepo) CountByType(_ context.Context, attemptID int64) (map[string]int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := map[string]int64{}
	for _, ev := range r.rows {
		if ev.AttemptID == attemptID {
			out[ev.Type]++
		}
	}
	return out, nil
}

type fakeBus struct {
	mu         sync.Mutex
	enqueued   []int64
	published  []any
	enqueueErr error
}

func (b *fakeBus) EnqueueAssemble(_ context.Context, attemptID int64) error {
	if b.enqueueErr != nil {
		return b.enqueueErr
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.enqueued = append(b.enqueued, attemptID)
	return nil
}

func (b *fakeBus) PublishLive(_ context.Context, _ int64, payload any) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.published = append(b.published, payload)
	return nil
}

type fakeLLM struct {
	answer    string
	answerErr error
}

func (f *fakeLLM) Answer(context.Context, string) (string, error) {
	return f.answer, f.answerErr
}

func (f *fakeLLM) StreamAnswer(context.Context, string) (<-chan string, <-chan error) {
	chunks := make(chan string)
	errs := make(chan error, 1)
	close(chunks)
	return chunks, errs
}

func (f *fakeLLM) Close() error { return nil }
