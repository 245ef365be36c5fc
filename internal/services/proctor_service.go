package services

import (
	"context"
	"encoding/json"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/talentis/proctor/internal/models"
	mongorepo "github.com/talentis/proctor/internal/repositories/mongo"
	"github.com/talentis/proctor/internal/repositories/postgres"
	"github.com/talentis/proctor/internal/utils"
)

// Flag types reported by the recording client.
const (
	FlagNoFace        = "no_face"
	FlagMultipleFaces = "multiple_faces"
)

// FaceFlag is one lightweight proctoring ping from the recording client.
type FaceFlag struct {
	FlagType     string `json:"flag_type"`
	FaceCount    int    `json:"face_count"`
	TabBlurCount int    `json:"tab_blur_count"`
	TimestampMS  int64  `json:"timestamp_ms"`
}

type ProctorService interface {
	RecordFlag(ctx context.Context, attemptID int64, userID string, flag FaceFlag) (*models.ProctoringSummary, error)
}

type proctorService struct {
	attempts postgres.AttemptRepo
	events   mongorepo.EventRepository
	live     LivePublisher
	logger   *logrus.Logger
}

func NewProctorService(attempts postgres.AttemptRepo, events mongorepo.EventRepository, live LivePublisher, l *logrus.Logger) ProctorService {
	if l == nil {
		l = logrus.New()
	}
	return &proctorService{attempts: attempts, events: events, live: live, logger: l}
}

// RecordFlag merges one ping into the attempt's proctoring summary, appends
// the event to the audit log and fans it out to live reviewers. Merge rules:
// keep the highest observed face count, multiple_faces is sticky, blur counts
// sum.
func (s *proctorService) RecordFlag(ctx context.Context, attemptID int64, userID string, flag FaceFlag) (*models.ProctoringSummary, error) {
	const op = "ProctorService.RecordFlag"

	attempt, err := s.attempts.GetByID(ctx, attemptID)
	if err != nil {
		return nil, utils.E(utils.CodeNotFound, op, "attempt not found", err)
	}
	if attempt.CandidateID != userID {
		return nil, utils.E(utils.CodeForbidden, op, "not allowed", nil)
	}

	responses := map[string]json.RawMessage{}
	if len(attempt.Responses) > 0 {
		_ = json.Unmarshal(attempt.Responses, &responses)
	}

	var proctor models.ProctoringSummary
	if raw, ok := responses["proctoring"]; ok {
		_ = json.Unmarshal(raw, &proctor)
	}

	if flag.FaceCount > proctor.FaceCount {
		proctor.FaceCount = flag.FaceCount
	}
	switch flag.FlagType {
	case FlagMultipleFaces:
		proctor.MultipleFaces = true
	case FlagNoFace:
		proctor.NoFaceFlags++
	}
	proctor.TabBlurCount += flag.TabBlurCount
	if flag.TimestampMS != 0 {
		proctor.LastSeenTS = flag.TimestampMS
	}

	rawProctor, _ := json.Marshal(proctor)
	responses["proctoring"] = rawProctor
	merged, err := json.Marshal(responses)
	if err != nil {
		return nil, utils.E(utils.CodeInternal, op, "failed to encode responses", err)
	}
	if err := s.attempts.UpdateResponses(ctx, attemptID, merged); err != nil {
		return nil, utils.E(utils.CodeInternal, op, "failed to persist proctoring summary", err)
	}

	event := &models.ProctorEvent{
		AttemptID: attemptID,
		Type:      flag.FlagType,
		FaceCount: flag.FaceCount,
		Timestamp: time.UnixMilli(flag.TimestampMS).UTC(),
	}
	if flag.TimestampMS == 0 {
		event.Timestamp = time.Now().UTC()
	}
	if err := s.events.Insert(ctx, event); err != nil {
		// The merged summary is already durable; the audit entry is
		// best-effort on top of it.
		s.logger.WithField("attempt_id", attemptID).WithError(err).Warn("failed to append proctor event")
	}

	if s.live != nil {
		if err := s.live.PublishLive(ctx, attemptID, map[string]any{
			"type":         "proctor_flag",
			"flag_type":    flag.FlagType,
			"face_count":   flag.FaceCount,
			"timestamp_ms": flag.TimestampMS,
		}); err != nil {
			s.logger.WithField("attempt_id", attemptID).WithError(err).Warn("failed to publish live event")
		}
	}

	return &proctor, nil
}
