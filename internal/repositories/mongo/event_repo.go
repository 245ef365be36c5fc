package mongo

import (
	"context"
	"time"

	"github.com/talentis/proctor/internal/models"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type EventRepository interface {
	Insert(ctx context.Context, ev *models.ProctorEvent) error
	ListByAttempt(ctx context.Context, attemptID int64, limit int64) ([]models.ProctorEvent, error)
	CountByType(ctx context.Context, attemptID int64) (map[string]int64, error)
}

type eventRepo struct {
	col *mongo.Collection
}

func NewEventRepo(db *mongo.Database) EventRepository {
	return &eventRepo{col: db.Collection("proctor_events")}
}

func (r *eventRepo) Insert(ctx context.Context, ev *models.ProctorEvent) error {
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now().UTC()
	}
	_, err := r.col.InsertOne(ctx, ev)
	return err
}

func (r *eventRepo) ListByAttempt(ctx context.Context, attemptID int64, limit int64) ([]models.ProctorEvent, error) {
	if limit <= 0 {
		limit = 200
	}
	cur, err := r.col.Find(ctx,
		bson.M{"attempt_id": attemptID},
		options.Find().SetSort(bson.D{{Key: "timestamp", Value: 1}}).SetLimit(limit),
	)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	var out []models.ProctorEvent
	if err := cur.All(ctx, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (r *eventRepo) CountByType(ctx context.Context, attemptID int64) (map[string]int64, error) {
	cur, err := r.col.Aggregate(ctx, mongo.Pipeline{
		{{Key: "$match", Value: bson.M{"attempt_id": attemptID}}},
		{{Key: "$group", Value: bson.M{"_id": "$type", "n": bson.M{"$sum": 1}}}},
	})
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	var rows []struct {
		Type string `bson:"_id"`
		N    int64  `bson:"n"`
	}
	if err := cur.All(ctx, &rows); err != nil {
		return nil, err
	}

	out := make(map[string]int64, len(rows))
	for _, row := range rows {
		out[row.Type] = row.N
	}
	return out, nil
}
