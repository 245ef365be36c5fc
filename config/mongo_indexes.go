package config

import (
	"context"
	"errors"
	"os"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

func EnsureMongoIndexes() error {
	if MongoClient == nil {
		return errors.New("MongoClient is nil; call InitMongo() first")
	}

	dbName := os.Getenv("MONGO_DB")
	if dbName == "" {
		dbName = "talentis"
	}
	db := MongoClient.Database(dbName)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	// chunk_manifest indexes
	chunks := db.Collection("chunk_manifest")
	_, err := chunks.Indexes().CreateMany(ctx, []mongo.IndexModel{
		// 1) TTL index: abandoned attempts clean themselves up
		{
			Keys: bson.D{{Key: "expires_at", Value: 1}},
			Options: options.Index().
				SetName("ttl_expires_at").
				SetExpireAfterSeconds(0),
		},
		// 2) Ensure no duplicate chunk per attempt/kind
		{
			Keys: bson.D{{Key: "attempt_id", Value: 1}, {Key: "kind", Value: 1}, {Key: "seq", Value: 1}},
			Options: options.Index().
				SetName("uniq_attempt_kind_seq").
				SetUnique(true),
		},
		// 3) Query helper for the assembler
		{
			Keys:    bson.D{{Key: "attempt_id", Value: 1}, {Key: "timestamp", Value: -1}},
			Options: options.Index().SetName("by_attempt_ts"),
		},
	})
	if err != nil {
		return err
	}

	// proctor_events indexes
	events := db.Collection("proctor_events")
	_, err = events.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "attempt_id", Value: 1}, {Key: "timestamp", Value: 1}},
			Options: options.Index().SetName("by_attempt_ts"),
		},
		{
			Keys:    bson.D{{Key: "attempt_id", Value: 1}, {Key: "type", Value: 1}},
			Options: options.Index().SetName("by_attempt_type"),
		},
	})
	return err
}
