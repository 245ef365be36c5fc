package mongo

import (
	"context"
	"time"

	"github.com/talentis/proctor/internal/models"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type ChunkRepository interface {
	Insert(ctx context.Context, c *models.ChunkManifest) error
	NextSeq(ctx context.Context, attemptID int64, kind string) (int64, error)
	ListByAttempt(ctx context.Context, attemptID int64, kind string) ([]models.ChunkManifest, error)
	DeleteByAttempt(ctx context.Context, attemptID int64) error
}

type chunkRepo struct {
	col *mongo.Collection
	ttl time.Duration
}

func NewChunkRepo(db *mongo.Database, ttl time.Duration) ChunkRepository {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &chunkRepo{col: db.Collection("chunk_manifest"), ttl: ttl}
}

func (r *chunkRepo) Insert(ctx context.Context, c *models.ChunkManifest) error {
	now := time.Now().UTC()
	if c.Timestamp.IsZero() {
		c.Timestamp = now
	}
	if c.ExpiresAt.IsZero() {
		c.ExpiresAt = now.Add(r.ttl)
	}
	_, err := r.col.InsertOne(ctx, c)
	return err
}

// NextSeq returns the next sequence number for an attempt/kind pair, derived
// from the highest stored one. Chunk producers are single clients so a
// read-then-insert race is not a practical concern here.
func (r *chunkRepo) NextSeq(ctx context.Context, attemptID int64, kind string) (int64, error) {
	var last models.ChunkManifest
	err := r.col.FindOne(ctx,
		bson.M{"attempt_id": attemptID, "kind": kind},
		options.FindOne().SetSort(bson.D{{Key: "seq", Value: -1}}),
	).Decode(&last)
	if err == mongo.ErrNoDocuments {
		return 1, nil
	}
	if err != nil {
		return 0, err
	}
	return last.Seq + 1, nil
}

func (r *chunkRepo) ListByAttempt(ctx context.Context, attemptID int64, kind string) ([]models.ChunkManifest, error) {
	cur, err := r.col.Find(ctx,
		bson.M{"attempt_id": attemptID, "kind": kind},
		options.Find().SetSort(bson.D{{Key: "seq", Value: 1}}),
	)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	var out []models.ChunkManifest
	if err := cur.All(ctx, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (r *chunkRepo) DeleteByAttempt(ctx context.Context, attemptID int64) error {
	_, err := r.col.DeleteMany(ctx, bson.M{"attempt_id": attemptID})
	return err
}
