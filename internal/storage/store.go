// Package storage holds the two interchangeable forum stores: Local, which
// keeps whole collections as JSON in a key-value area, and Remote, which maps
// the same operations onto users/questions/answers relations.
package storage

import (
	"context"
	"fmt"

	"github.com/conorfennell/qaforum/internal/domain"
)

// Store is the storage contract the forum facade is written against.
//
// Absent records are reported as a nil pointer (or false) with a nil error.
// A non-nil error always wraps domain.ErrUnavailable.
type Store interface {
	// Name identifies the backend ("local" or "remote").
	Name() string

	Users(ctx context.Context) ([]domain.User, error)
	UserByUsername(ctx context.Context, username string) (*domain.User, error)
	// InsertUser stores a new user with an already digested password. It
	// returns nil when the username is taken.
	InsertUser(ctx context.Context, username, passwordDigest string) (*domain.User, error)

	// Questions returns every question with its answers attached. Order is
	// not part of the contract.
	Questions(ctx context.Context) ([]domain.Question, error)
	InsertQuestion(ctx context.Context, q domain.Question) (*domain.Question, error)
	// InsertAnswer returns nil when questionID does not exist.
	InsertAnswer(ctx context.Context, questionID int64, a domain.Answer) (*domain.Answer, error)
	DeleteQuestion(ctx context.Context, id int64) (bool, error)
	DeleteAnswer(ctx context.Context, questionID, answerID int64) (bool, error)

	Close() error
}

func unavailable(op string, err error) error {
	return fmt.Errorf("failed to %s: %w: %w", op, domain.ErrUnavailable, err)
}
