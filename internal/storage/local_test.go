package storage

import (
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/conorfennell/qaforum/internal/digest"
	"github.com/conorfennell/qaforum/internal/domain"
)

func TestLocalSeedsOnFirstRead(t *testing.T) {
	ctx := context.Background()
	store, area := newTestLocal(t)

	users, err := store.Users(ctx)
	if err != nil {
		t.Fatalf("Users failed: %v", err)
	}
	if len(users) != 3 {
		t.Fatalf("Expected 3 seed users, got %d", len(users))
	}
	if users[0].Username != "admin" || users[0].Password != digest.Hash("admin") {
		t.Errorf("Expected admin with digested password, got %+v", users[0])
	}
	if _, ok, _ := area.Get(ctx, KeyUsers); !ok {
		t.Error("Expected seed users to be written back")
	}

	questions, err := store.Questions(ctx)
	if err != nil {
		t.Fatalf("Questions failed: %v", err)
	}
	if len(questions) != 2 {
		t.Fatalf("Expected 2 seed questions, got %d", len(questions))
	}
	if len(questions[1].Answers) != 2 {
		t.Errorf("Expected second seed question to have 2 answers, got %d", len(questions[1].Answers))
	}
}

func TestLocalCorruptionRecovery(t *testing.T) {
	ctx := context.Background()

	for _, key := range []string{KeyQuestions, KeyUsers} {
		t.Run(key, func(t *testing.T) {
			store, area := newTestLocal(t)
			if err := area.Set(ctx, key, "{not json"); err != nil {
				t.Fatalf("Set failed: %v", err)
			}

			var n int
			if key == KeyQuestions {
				questions, err := store.Questions(ctx)
				if err != nil {
					t.Fatalf("Expected corruption to be recovered silently, got %v", err)
				}
				n = len(questions)
			} else {
				users, err := store.Users(ctx)
				if err != nil {
					t.Fatalf("Expected corruption to be recovered silently, got %v", err)
				}
				n = len(users)
			}
			if n == 0 {
				t.Error("Expected seed data after corruption")
			}

			raw, _, _ := area.Get(ctx, key)
			if !json.Valid([]byte(raw)) {
				t.Errorf("Expected key %s to be overwritten with valid JSON, got %q", key, raw)
			}
		})
	}
}

func TestLocalCountersRecoverFromCorruption(t *testing.T) {
	ctx := context.Background()
	store, area := newTestLocal(t)

	q, err := store.InsertQuestion(ctx, domain.Question{Content: "first", Author: "user1", Date: "2025-03-01T00:00:00Z"})
	if err != nil {
		t.Fatalf("InsertQuestion failed: %v", err)
	}
	if q.ID != 3 {
		t.Errorf("Expected first new question to get id 3, got %d", q.ID)
	}

	// A corrupt counter falls back to the seed value 3, which is now taken.
	area.Set(ctx, KeyNextIDs, "garbage")
	next, err := store.InsertQuestion(ctx, domain.Question{Content: "second", Author: "user1", Date: "2025-03-02T00:00:00Z"})
	if err != nil {
		t.Fatalf("InsertQuestion failed: %v", err)
	}
	if next.ID != 4 {
		t.Errorf("Expected id 4 after counter recovery, got %d", next.ID)
	}

	area.Set(ctx, KeyNextUserID, "NaN")
	u, err := store.InsertUser(ctx, "carol", "d")
	if err != nil || u == nil {
		t.Fatalf("InsertUser failed: %v", err)
	}
	if u.ID != 4 {
		t.Errorf("Expected user id 4, got %d", u.ID)
	}
	raw, _, _ := area.Get(ctx, KeyNextUserID)
	if raw != "5" {
		t.Errorf("Expected next user id '5' to be persisted, got '%s'", raw)
	}
}

func TestLocalNestedAnswersOmitQuestionID(t *testing.T) {
	ctx := context.Background()
	store, area := newTestLocal(t)

	if _, err := store.InsertAnswer(ctx, 1, domain.Answer{Content: "nested", Author: "user2", Date: "2025-01-16T00:00:00Z"}); err != nil {
		t.Fatalf("InsertAnswer failed: %v", err)
	}
	raw, _, _ := area.Get(ctx, KeyQuestions)
	if strings.Contains(raw, "question_id") {
		t.Errorf("Expected nested answers to be stored without question_id, got %s", raw)
	}

	questions, _ := store.Questions(ctx)
	first := findQuestion(questions, 1)
	if first == nil || first.Answers[0].Content != "nested" {
		t.Fatalf("Expected the new answer to be prepended, got %+v", first)
	}
	if first.Answers[0].ID != 4 {
		t.Errorf("Expected answer id 4, got %d", first.Answers[0].ID)
	}
}

func TestLocalDeleteUnknownLeavesStoreUnchanged(t *testing.T) {
	ctx := context.Background()
	store, area := newTestLocal(t)

	if _, err := store.Questions(ctx); err != nil {
		t.Fatalf("Questions failed: %v", err)
	}
	before, _, _ := area.Get(ctx, KeyQuestions)

	ok, err := store.DeleteQuestion(ctx, 42)
	if err != nil || ok {
		t.Errorf("Expected false for an unknown question, got %v, %v", ok, err)
	}
	ok, err = store.DeleteAnswer(ctx, 1, 42)
	if err != nil || ok {
		t.Errorf("Expected false for an unknown answer, got %v, %v", ok, err)
	}

	after, _, _ := area.Get(ctx, KeyQuestions)
	if before != after {
		t.Error("Expected the stored collection to be untouched")
	}
}

func TestLocalBackendFailureIsUnavailable(t *testing.T) {
	store, _ := newTestLocal(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := store.Questions(ctx)
	if err == nil {
		t.Fatal("Expected an error from a failing key-value area")
	}
	if !isUnavailable(err) {
		t.Errorf("Expected error to wrap ErrUnavailable, got %v", err)
	}
}
