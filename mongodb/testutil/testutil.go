// Package testutil provisions throwaway MongoDB databases for repository
// integration tests.
package testutil

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

// SetupTestDB connects to the MongoDB instance named by TEST_MONGO_URI
// (default localhost) and returns a uniquely named database plus a cleanup
// function that drops it. The calling test is skipped when no server is
// reachable, so the suite stays green on machines without Mongo.
func SetupTestDB(t *testing.T, prefix string) (*mongo.Database, func()) {
	t.Helper()

	uri := os.Getenv("TEST_MONGO_URI")
	if uri == "" {
		uri = "mongodb://localhost:27017"
	}

	opts := options.Client().
		ApplyURI(uri).
		SetServerSelectionTimeout(2 * time.Second)

	client, err := mongo.Connect(opts)
	if err != nil {
		t.Skipf("MongoDB not available at %s: %v", uri, err)
	}

	pingCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		t.Skipf("MongoDB not available at %s: %v", uri, err)
	}

	dbName := fmt.Sprintf("%s_%d", prefix, time.Now().UnixNano())
	db := client.Database(dbName)

	cleanup := func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := db.Drop(ctx); err != nil {
			t.Logf("Failed to drop test database %s: %v", dbName, err)
		}
		if err := client.Disconnect(ctx); err != nil {
			t.Logf("Failed to disconnect test client: %v", err)
		}
	}
	return db, cleanup
}
