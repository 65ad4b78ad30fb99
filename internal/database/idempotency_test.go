package database

import (
	"context"
	"database/sql"
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"settlement-bridge-go/internal/store"

	_ "github.com/mattn/go-sqlite3"
)

func setupTestDb(t *testing.T) (*Service, func()) {
	db, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		t.Fatalf("Failed to open test database: %v", err)
	}
	// A second connection to :memory: would open a second database.
	db.SetMaxOpenConns(1)

	service := &Service{db: db}

	// Use the actual schema initialization
	if err := service.InitSchema(); err != nil {
		t.Fatalf("Failed to create test schema: %v", err)
	}

	cleanup := func() {
		db.Close()
	}

	return service, cleanup
}

func TestBegin_FirstAttemptWinsKey(t *testing.T) {
	service, cleanup := setupTestDb(t)
	defer cleanup()

	ctx := context.Background()

	alreadyProcessed, err := service.Begin(ctx, "payout:42")
	if err != nil {
		t.Fatalf("Begin failed: %v", err)
	}
	if alreadyProcessed {
		t.Error("Expected fresh key to report alreadyProcessed=false")
	}
}

func TestBegin_InFlightKeyRejectsSecondAttempt(t *testing.T) {
	service, cleanup := setupTestDb(t)
	defer cleanup()

	ctx := context.Background()

	if _, err := service.Begin(ctx, "payout:42"); err != nil {
		t.Fatalf("First Begin failed: %v", err)
	}

	// Second attempt while the first holds the key
	_, err := service.Begin(ctx, "payout:42")
	if !errors.Is(err, store.ErrKeyInFlight) {
		t.Errorf("Expected ErrKeyInFlight, got %v", err)
	}
}

func TestBegin_CompletedKeyShortCircuits(t *testing.T) {
	service, cleanup := setupTestDb(t)
	defer cleanup()

	ctx := context.Background()
	key := "payout:42"

	if _, err := service.Begin(ctx, key); err != nil {
		t.Fatalf("Begin failed: %v", err)
	}
	if err := service.Complete(ctx, key); err != nil {
		t.Fatalf("Complete failed: %v", err)
	}

	alreadyProcessed, err := service.Begin(ctx, key)
	if err != nil {
		t.Fatalf("Begin after Complete failed: %v", err)
	}
	if !alreadyProcessed {
		t.Error("Expected completed key to report alreadyProcessed=true")
	}
}

func TestRelease_AllowsRetry(t *testing.T) {
	service, cleanup := setupTestDb(t)
	defer cleanup()

	ctx := context.Background()
	key := "capture:order-1"

	if _, err := service.Begin(ctx, key); err != nil {
		t.Fatalf("Begin failed: %v", err)
	}
	if err := service.Release(ctx, key); err != nil {
		t.Fatalf("Release failed: %v", err)
	}

	// After release a new attempt must win the key again
	alreadyProcessed, err := service.Begin(ctx, key)
	if err != nil {
		t.Fatalf("Begin after Release failed: %v", err)
	}
	if alreadyProcessed {
		t.Error("Expected released key to be reacquirable as fresh")
	}
}

func TestRelease_NeverDropsCompletedKey(t *testing.T) {
	service, cleanup := setupTestDb(t)
	defer cleanup()

	ctx := context.Background()
	key := "mint:order-1"

	if _, err := service.Begin(ctx, key); err != nil {
		t.Fatalf("Begin failed: %v", err)
	}
	if err := service.Complete(ctx, key); err != nil {
		t.Fatalf("Complete failed: %v", err)
	}
	if err := service.Release(ctx, key); err != nil {
		t.Fatalf("Release failed: %v", err)
	}

	// The completed record must survive the release
	alreadyProcessed, err := service.Begin(ctx, key)
	if err != nil {
		t.Fatalf("Begin failed: %v", err)
	}
	if !alreadyProcessed {
		t.Error("Expected completed key to survive Release")
	}
}

func TestBegin_ConcurrentAttemptsSingleWinner(t *testing.T) {
	service, cleanup := setupTestDb(t)
	defer cleanup()

	ctx := context.Background()
	const attempts = 16

	var wg sync.WaitGroup
	var winners int32
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			alreadyProcessed, err := service.Begin(ctx, "payout:contended")
			if err == nil && !alreadyProcessed {
				atomic.AddInt32(&winners, 1)
			} else if err != nil && !errors.Is(err, store.ErrKeyInFlight) {
				t.Errorf("Unexpected Begin error: %v", err)
			}
		}()
	}
	wg.Wait()

	if winners != 1 {
		t.Errorf("Expected exactly 1 winner, got %d", winners)
	}
}

func TestComplete_FailsForUnknownKey(t *testing.T) {
	service, cleanup := setupTestDb(t)
	defer cleanup()

	err := service.Complete(context.Background(), "never-begun")
	if !errors.Is(err, store.ErrConcurrentModification) {
		t.Errorf("Expected ErrConcurrentModification, got %v", err)
	}
}

func TestBegin_EmptyKeyRejected(t *testing.T) {
	service, cleanup := setupTestDb(t)
	defer cleanup()

	if _, err := service.Begin(context.Background(), ""); err == nil {
		t.Error("Expected error for empty key")
	}
}
