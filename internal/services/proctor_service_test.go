package services

import (
	"context"
	"errors"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/talentis/proctor/internal/models"
	"github.com/talentis/proctor/internal/utils"
)

func newProctorFixture(t *testing.T) (ProctorService, *memAttemptRepo, *memEventRepo, *fakeBus, int64) {
	t.Helper()

	attempts := newMemAttemptRepo()
	events := &memEventRepo{}
	bus := &fakeBus{}

	l := logrus.New()
	l.SetLevel(logrus.PanicLevel)
	svc := NewProctorService(attempts, events, bus, l)

	attempt := &models.SimulationAttempt{
		SimulationID: 1,
		CandidateID:  candidateID,
		Status:       models.AttemptRecording,
	}
	require.NoError(t, attempts.Create(context.Background(), attempt))
	return svc, attempts, events, bus, attempt.ID
}

func TestRecordFlagMergeRules(t *testing.T) {
	svc, _, _, _, attemptID := newProctorFixture(t)
	ctx := context.Background()

	s1, err := svc.RecordFlag(ctx, attemptID, candidateID, FaceFlag{
		FlagType: FlagNoFace, FaceCount: 0, TimestampMS: 1000,
	})
	require.NoError(t, err)
	assert.Equal(t, 1, s1.NoFaceFlags)

	s2, err := svc.RecordFlag(ctx, attemptID, candidateID, FaceFlag{
		FlagType: FlagMultipleFaces, FaceCount: 3, TimestampMS: 2000,
	})
	require.NoError(t, err)
	assert.True(t, s2.MultipleFaces)
	assert.Equal(t, 3, s2.FaceCount)

	// lower face count does not regress the maximum; multiple_faces stays set
	s3, err := svc.RecordFlag(ctx, attemptID, candidateID, FaceFlag{
		FlagType: FlagNoFace, FaceCount: 0, TabBlurCount: 2, TimestampMS: 3000,
	})
	require.NoError(t, err)
	assert.Equal(t, 3, s3.FaceCount)
	assert.True(t, s3.MultipleFaces)
	assert.Equal(t, 2, s3.NoFaceFlags)
	assert.Equal(t, 2, s3.TabBlurCount)
	assert.Equal(t, int64(3000), s3.LastSeenTS)
}

func TestRecordFlagPersistsAndAudits(t *testing.T) {
	svc, attempts, events, bus, attemptID := newProctorFixture(t)
	ctx := context.Background()

	_, err := svc.RecordFlag(ctx, attemptID, candidateID, FaceFlag{
		FlagType: FlagMultipleFaces, FaceCount: 2, TimestampMS: 5000,
	})
	require.NoError(t, err)

	stored, err := attempts.GetByID(ctx, attemptID)
	require.NoError(t, err)
	assert.Contains(t, string(stored.Responses), `"multiple_faces":true`)

	audit, err := events.ListByAttempt(ctx, attemptID, 0)
	require.NoError(t, err)
	require.Len(t, audit, 1)
	assert.Equal(t, FlagMultipleFaces, audit[0].Type)
	assert.Equal(t, 2, audit[0].FaceCount)

	bus.mu.Lock()
	defer bus.mu.Unlock()
	require.Len(t, bus.published, 1)
}

func TestRecordFlagToleratesAuditFailure(t *testing.T) {
	svc, attempts, events, _, attemptID := newProctorFixture(t)
	events.insertErr = errors.New("mongo unavailable")

	summary, err := svc.RecordFlag(context.Background(), attemptID, candidateID, FaceFlag{
		FlagType: FlagNoFace, TimestampMS: 1000,
	})
	require.NoError(t, err) // the merged summary is still durable
	assert.Equal(t, 1, summary.NoFaceFlags)

	stored, err := attempts.GetByID(context.Background(), attemptID)
	require.NoError(t, err)
	assert.Contains(t, string(stored.Responses), `"no_face_flags":1`)
}

func TestRecordFlagOwnership(t *testing.T) {
	svc, _, _, _, attemptID := newProctorFixture(t)

	_, err := svc.RecordFlag(context.Background(), attemptID, "intruder", FaceFlag{FlagType: FlagNoFace})
	requireCode(t, err, utils.CodeForbidden)
}

func TestRecordFlagUnknownAttempt(t *testing.T) {
	svc, _, _, _, _ := newProctorFixture(t)

	_, err := svc.RecordFlag(context.Background(), 404, candidateID, FaceFlag{FlagType: FlagNoFace})
	requireCode(t, err, utils.CodeNotFound)
}
