package store

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/swapmeet/marketplace/backend/internal/models"
)

const journalCollection = "relay_journal"

// MongoJournal appends relay events (send failures, notifications) to MongoDB.
type MongoJournal struct {
	col *mongo.Collection
}

func NewMongoJournal(db *mongo.Database) *MongoJournal {
	return &MongoJournal{col: db.Collection(journalCollection)}
}

// EnsureIndexes creates the time index used by Recent.
func (j *MongoJournal) EnsureIndexes(ctx context.Context) error {
	_, err := j.col.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "at", Value: -1}},
	})
	if err != nil {
		return fmt.Errorf("mongo journal index: %w", err)
	}
	return nil
}

func (j *MongoJournal) Record(ctx context.Context, e models.JournalEntry) error {
	if e.At.IsZero() {
		e.At = time.Now()
	}
	if _, err := j.col.InsertOne(ctx, e); err != nil {
		return fmt.Errorf("mongo journal insert: %w", err)
	}
	return nil
}

// Recent returns up to limit entries, newest first.
func (j *MongoJournal) Recent(ctx context.Context, limit int64) ([]models.JournalEntry, error) {
	opts := options.Find().SetSort(bson.D{{Key: "at", Value: -1}}).SetLimit(limit)
	cur, err := j.col.Find(ctx, bson.M{}, opts)
	if err != nil {
		return nil, fmt.Errorf("mongo journal find: %w", err)
	}
	defer cur.Close(ctx)

	entries := []models.JournalEntry{}
	if err := cur.All(ctx, &entries); err != nil {
		return nil, fmt.Errorf("mongo journal decode: %w", err)
	}
	return entries, nil
}
