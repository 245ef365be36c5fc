package services

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/redis/go-redis/v9"
)

// AssembleStream carries finished attempts to the assembler worker pool.
const AssembleStream = "assemble:stream"

// LiveChannel is the pub/sub channel reviewers subscribe to for one attempt.
func LiveChannel(attemptID int64) string {
	return fmt.Sprintf("attempt:%d:live", attemptID)
}

// AssembleQueue hands finished attempts to the background pipeline.
type AssembleQueue interface {
	EnqueueAssemble(ctx context.Context, attemptID int64) error
}

// LivePublisher fans proctoring events out to live reviewers.
type LivePublisher interface {
	PublishLive(ctx context.Context, attemptID int64, payload any) error
}

type redisBus struct {
	rdb *redis.Client
}

// NewRedisBus returns the redis-backed queue + publisher used in production.
func NewRedisBus(rdb *redis.Client) interface {
	AssembleQueue
	LivePublisher
} {
	return &redisBus{rdb: rdb}
}

func (b *redisBus) EnqueueAssemble(ctx context.Context, attemptID int64) error {
	return b.rdb.XAdd(ctx, &redis.XAddArgs{
		Stream: AssembleStream,
		Values: map[string]any{
			"attempt_id": strconv.FormatInt(attemptID, 10),
		},
	}).Err()
}

func (b *redisBus) PublishLive(ctx context.Context, attemptID int64, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	return b.rdb.Publish(ctx, LiveChannel(attemptID), string(body)).Err()
}
