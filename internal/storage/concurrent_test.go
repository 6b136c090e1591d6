package storage

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"testing"

	"github.com/conorfennell/qaforum/internal/domain"
	"github.com/conorfennell/qaforum/internal/kv"
)

func TestConcurrentWritesOnSQLite(t *testing.T) {
	ctx := context.Background()
	area, err := kv.OpenSQLite(ctx, filepath.Join(t.TempDir(), "kv.db"))
	if err != nil {
		t.Fatalf("Failed to open kv area: %v", err)
	}
	t.Cleanup(func() { area.Close() })

	stores := []Store{NewLocal(area), newTestRemote(t)}
	for _, store := range stores {
		t.Run(store.Name(), func(t *testing.T) {
			const n = 40
			var wg sync.WaitGroup
			errs := make(chan error, 2*n)
			for i := 0; i < n; i++ {
				wg.Add(2)
				go func(i int) {
					defer wg.Done()
					_, err := store.InsertQuestion(ctx, domain.Question{
						Content: fmt.Sprintf("question %d", i),
						Author:  "user1",
						Date:    "2025-02-01T00:00:00",
					})
					errs <- err
				}(i)
				go func(i int) {
					defer wg.Done()
					_, err := store.InsertUser(ctx, fmt.Sprintf("racer%d", i), "digest")
					errs <- err
				}(i)
			}
			wg.Wait()
			close(errs)

			for err := range errs {
				if err != nil {
					t.Errorf("Expected concurrent writes to succeed, but got %v", err)
				}
			}

			questions, err := store.Questions(ctx)
			if err != nil {
				t.Fatalf("Questions failed: %v", err)
			}
			ids := make(map[int64]bool)
			count := 0
			for _, q := range questions {
				if ids[q.ID] {
					t.Errorf("Expected unique question ids, but %d repeats", q.ID)
				}
				ids[q.ID] = true
				if q.Author == "user1" && q.Date == "2025-02-01T00:00:00" {
					count++
				}
			}
			if count != n {
				t.Errorf("Expected %d inserted questions, but got %d", n, count)
			}

			users, err := store.Users(ctx)
			if err != nil {
				t.Fatalf("Users failed: %v", err)
			}
			racers := 0
			for _, u := range users {
				if len(u.Username) > 5 && u.Username[:5] == "racer" {
					racers++
				}
			}
			if racers != n {
				t.Errorf("Expected %d inserted users, but got %d", n, racers)
			}
		})
	}
}
