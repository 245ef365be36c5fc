package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// ProctorEvent is one violation reported for an attempt. The collection is
// append-only; the postgres attempt row keeps only the merged counters.
type ProctorEvent struct {
	ID        primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	AttemptID int64              `bson:"attempt_id" json:"attempt_id"`

	Type          string `bson:"type" json:"type"` // no_face|multiple_faces|...
	Description   string `bson:"description,omitempty" json:"description,omitempty"`
	FaceCount     int    `bson:"face_count,omitempty" json:"face_count,omitempty"`
	QuestionIndex int    `bson:"question_index" json:"question_index"`

	Timestamp time.Time `bson:"timestamp" json:"timestamp"`
}
