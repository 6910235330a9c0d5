// Package testutil connects integration tests to real databases. Tests are
// skipped when the corresponding URL is not configured.
package testutil

import (
	"context"
	"log"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/johndosdos/dmchat/internal/database"
)

func ProjectRoot() string {
	_, file, _, _ := runtime.Caller(0)
	root := filepath.Join(filepath.Dir(file), "../../")
	return root
}

func loadEnv() {
	if err := godotenv.Load(filepath.Join(ProjectRoot(), ".env")); err != nil && !os.IsNotExist(err) {
		log.Printf("failed to load .env file: %+v", err)
	}
}

// DbInit returns a pool on TEST_DB_URL with every migration freshly applied.
// The schema is reset again when the test ends.
func DbInit(t testing.TB) *pgxpool.Pool {
	t.Helper()
	loadEnv()

	testURL := os.Getenv("TEST_DB_URL")
	if testURL == "" {
		t.Skip("TEST_DB_URL environment variable is not set")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	dbPool, err := pgxpool.New(ctx, testURL)
	if err != nil {
		t.Fatalf("could not connect to the postgresql database: %v", err)
	}

	if err := database.Reset(ctx, dbPool); err != nil {
		dbPool.Close()
		t.Fatalf("database.Reset() error = %+v", err)
	}
	if err := database.Migrate(ctx, dbPool); err != nil {
		dbPool.Close()
		t.Fatalf("database.Migrate() error = %+v", err)
	}

	t.Cleanup(func() { DbCleanup(t, dbPool) })
	return dbPool
}

func DbCleanup(t testing.TB, db *pgxpool.Pool) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := database.Reset(ctx, db); err != nil {
		t.Errorf("database.Reset() error = %+v", err)
	}
	db.Close()
}

// MongoInit returns a throwaway database on MONGODB_URI that is dropped
// when the test ends.
func MongoInit(t testing.TB) *mongo.Database {
	t.Helper()
	loadEnv()

	uri := os.Getenv("MONGODB_URI")
	if uri == "" {
		t.Skip("MONGODB_URI environment variable is not set")
	}

	client, err := mongo.Connect(options.Client().ApplyURI(uri))
	if err != nil {
		t.Fatalf("could not connect to mongodb: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := client.Ping(ctx, nil); err != nil {
		t.Fatalf("mongodb ping failed: %v", err)
	}

	name := "dmchat_test_" + strings.ReplaceAll(uuid.NewString(), "-", "")[:12]
	db := client.Database(name)

	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := db.Drop(ctx); err != nil {
			t.Errorf("drop %s: %v", name, err)
		}
		_ = client.Disconnect(ctx)
	})
	return db
}
