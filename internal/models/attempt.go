package models

import (
	"time"

	"github.com/lib/pq"
	"gorm.io/datatypes"
)

// Attempt statuses.
const (
	AttemptRecording  = "recording"
	AttemptProcessing = "processing"
	AttemptProcessed  = "processed"
	AttemptFailed     = "failed"
)

type SimulationAttempt struct {
	ID           int64  `gorm:"column:id;primaryKey;autoIncrement" json:"id"`
	SimulationID int64  `gorm:"column:simulation_id;index" json:"simulation_id"`
	CandidateID  string `gorm:"column:candidate_id;type:uuid;index" json:"candidate_id"`
	Status       string `gorm:"column:status;type:text" json:"status"`

	// Responses accumulates the editor_events summary and the merged
	// proctoring counters reported during the session.
	Responses datatypes.JSON `gorm:"column:responses;type:jsonb" json:"responses"`

	VideoURL  *string `gorm:"column:video_url;type:text" json:"video_url,omitempty"`
	ScreenURL *string `gorm:"column:screen_url;type:text" json:"screen_url,omitempty"`

	Transcript       string         `gorm:"column:transcript;type:text" json:"transcript"`
	BehaviorAnalysis datatypes.JSON `gorm:"column:behavior_analysis;type:jsonb" json:"behavior_analysis"`
	ProctoringFlags  pq.StringArray `gorm:"column:proctoring_flags;type:text[]" json:"proctoring_flags"`
	CheatingRisk     float64        `gorm:"column:cheating_risk" json:"cheating_risk"`

	CreatedAt  time.Time  `gorm:"column:created_at;type:timestamptz" json:"created_at"`
	FinishedAt *time.Time `gorm:"column:finished_at;type:timestamptz" json:"finished_at,omitempty"`
}

func (SimulationAttempt) TableName() string { return "simulation_attempts" }

// ProctoringSummary is the merged proctoring object kept under
// responses["proctoring"]: highest observed face count, sticky multiple-faces
// flag, summed blur counts.
type ProctoringSummary struct {
	FaceCount     int   `json:"face_count"`
	MultipleFaces bool  `json:"multiple_faces"`
	TabBlurCount  int   `json:"tab_blur_count"`
	PasteCount    int   `json:"paste_count"`
	NoFaceFlags   int   `json:"no_face_flags"`
	LastSeenTS    int64 `json:"last_seen_ts"`
}
