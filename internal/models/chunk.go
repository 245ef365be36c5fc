package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// ChunkManifest tracks one spooled media segment until the assembler has
// consumed it. Entries expire via TTL index so abandoned attempts clean up.
type ChunkManifest struct {
	ID        primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	AttemptID int64              `bson:"attempt_id" json:"attempt_id"`

	Kind      string `bson:"kind" json:"kind"` // video|screen|editor_events
	Seq       int64  `bson:"seq" json:"seq"`
	Path      string `bson:"path" json:"path"`
	SizeBytes int64  `bson:"size_bytes" json:"size_bytes"`

	Timestamp time.Time `bson:"timestamp" json:"timestamp"`
	ExpiresAt time.Time `bson:"expires_at" json:"expires_at"` // for TTL index
}
