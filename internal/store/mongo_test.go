package store

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/joho/godotenv"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/swapmeet/marketplace/backend/internal/models"
)

// Runs against a live server; skipped unless MONGO_URI is set.
func TestMongoJournal_Integration(t *testing.T) {
	_ = godotenv.Load("../../.env")
	uri := os.Getenv("MONGO_URI")
	if uri == "" {
		t.Skip("MONGO_URI not set; skipping Mongo integration")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	require.NoError(t, err)
	defer client.Disconnect(context.Background())

	db := client.Database(fmt.Sprintf("swapmeet_test_%d", time.Now().UnixNano()))
	t.Cleanup(func() { _ = db.Drop(context.Background()) })

	j := NewMongoJournal(db)
	require.NoError(t, j.EnsureIndexes(ctx))

	base := time.Now().UTC().Truncate(time.Millisecond)
	for i, kind := range []string{"send_failed", "notification", "notification"} {
		require.NoError(t, j.Record(ctx, models.JournalEntry{
			Kind:   kind,
			ItemID: int64(i + 1),
			UserID: 7,
			Text:   "hello",
			At:     base.Add(time.Duration(i) * time.Second),
		}))
	}

	recent, err := j.Recent(ctx, 2)
	require.NoError(t, err)
	require.Len(t, recent, 2)
	assert.Equal(t, int64(3), recent[0].ItemID, "newest first")
	assert.Equal(t, int64(2), recent[1].ItemID)
	assert.True(t, recent[0].At.Equal(base.Add(2*time.Second)))
}
