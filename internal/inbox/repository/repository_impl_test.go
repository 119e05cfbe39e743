package repository_test

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/iamafoodie/buddy/internal/inbox/repository"
)

func TestAdmitExactlyOnce(t *testing.T) {
	ctx := context.Background()
	db := setupTestDB(t)
	repo := repository.Provide()

	admitted, err := repo.Admit(ctx, db, "wamid.abc123")
	if err != nil {
		t.Fatalf("admit: %v", err)
	}
	if !admitted {
		t.Fatal("first admit should win")
	}

	admitted, err = repo.Admit(ctx, db, "wamid.abc123")
	if err != nil {
		t.Fatalf("second admit: %v", err)
	}
	if admitted {
		t.Fatal("second admit should lose")
	}
}

func TestAdmitConcurrent(t *testing.T) {
	ctx := context.Background()
	db := setupTestDB(t)
	repo := repository.Provide()

	var wg sync.WaitGroup
	var mu sync.Mutex
	winners := 0
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			admitted, err := repo.Admit(ctx, db, "wamid.race")
			if err != nil {
				t.Errorf("admit: %v", err)
				return
			}
			if admitted {
				mu.Lock()
				winners++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if winners != 1 {
		t.Fatalf("expected exactly 1 winner, got %d", winners)
	}
}

func TestPurgeAll(t *testing.T) {
	ctx := context.Background()
	db := setupTestDB(t)
	repo := repository.Provide()

	for i := 0; i < 3; i++ {
		if _, err := repo.Admit(ctx, db, fmt.Sprintf("wamid.%d", i)); err != nil {
			t.Fatalf("admit %d: %v", i, err)
		}
	}

	purged, err := repo.PurgeAll(ctx, db)
	if err != nil {
		t.Fatalf("purge: %v", err)
	}
	if purged != 3 {
		t.Fatalf("expected 3 purged rows, got %d", purged)
	}

	// Purged ids may be admitted again.
	admitted, err := repo.Admit(ctx, db, "wamid.0")
	if err != nil {
		t.Fatalf("re-admit: %v", err)
	}
	if !admitted {
		t.Fatal("purged id should be admissible again")
	}
}

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:memdb_inbox_%d?mode=memory&cache=shared", time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("db handle: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)

	if err := db.Exec(`CREATE TABLE delivery_records (
		message_id VARCHAR(255) PRIMARY KEY,
		received_at TIMESTAMPTZ NOT NULL
	)`).Error; err != nil {
		t.Fatalf("create schema: %v", err)
	}
	return db
}
