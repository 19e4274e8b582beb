package store

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// getTestDB returns a database pool for testing.
// Skips the test if DATABASE_URL is not set.
func getTestDB(t *testing.T) *pgxpool.Pool {
	t.Helper()

	dbURL := os.Getenv("DATABASE_URL")
	if dbURL == "" {
		t.Skip("DATABASE_URL not set, skipping integration test")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	db, err := pgxpool.New(ctx, dbURL)
	if err != nil {
		t.Fatalf("failed to connect to database: %v", err)
	}

	if err := db.Ping(ctx); err != nil {
		t.Fatalf("failed to ping database: %v", err)
	}

	return db
}

func TestSessionLifecycle(t *testing.T) {
	db := getTestDB(t)
	defer db.Close()

	s := New(db)
	ctx := context.Background()

	sess, err := s.CreateSession(ctx, "client-test")
	if err != nil {
		t.Fatalf("CreateSession failed: %v", err)
	}
	if sess.ID == "" {
		t.Error("session ID should not be empty")
	}
	if sess.ClientID != "client-test" {
		t.Errorf("client ID = %q, want %q", sess.ClientID, "client-test")
	}

	if err := s.EndSession(ctx, sess.ID, time.Now().UTC()); err != nil {
		t.Errorf("EndSession failed: %v", err)
	}
}

func TestUsageInsertAndSummary(t *testing.T) {
	db := getTestDB(t)
	defer db.Close()

	s := New(db)
	ctx := context.Background()

	sess, err := s.CreateSession(ctx, "client-usage")
	if err != nil {
		t.Fatalf("CreateSession failed: %v", err)
	}

	usage := Usage{
		SynthesizedCharacters: 1000,
		TranscribedSeconds:    60,
	}
	if err := s.InsertUsage(ctx, sess.ID, usage); err != nil {
		t.Fatalf("InsertUsage failed: %v", err)
	}

	records, err := s.ListUsage(ctx, sess.ID)
	if err != nil {
		t.Fatalf("ListUsage failed: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("got %d usage records, want 1", len(records))
	}
	// 1000 chars at 18 cents/1K = 18; 1 min at 1.67 cents/min -> 2
	if records[0].SynthCostCents != 18 {
		t.Errorf("synth cost = %d, want 18", records[0].SynthCostCents)
	}

	summary, err := s.GetUsageSummary(ctx, "client-usage")
	if err != nil {
		t.Fatalf("GetUsageSummary failed: %v", err)
	}
	if summary.SynthesizedCharacters < 1000 {
		t.Errorf("summary characters = %d, want >= 1000", summary.SynthesizedCharacters)
	}
	if summary.Sessions < 1 {
		t.Errorf("summary sessions = %d, want >= 1", summary.Sessions)
	}
}
