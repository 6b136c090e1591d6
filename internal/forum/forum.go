// Package forum is the single data-access surface of the Q&A forum. It hides
// which storage.Store backs it and normalizes ordering so callers see one
// contract regardless of backend.
package forum

import (
	"context"
	"log/slog"
	"time"

	"github.com/conorfennell/qaforum/internal/config"
	"github.com/conorfennell/qaforum/internal/digest"
	"github.com/conorfennell/qaforum/internal/domain"
	"github.com/conorfennell/qaforum/internal/kv"
	"github.com/conorfennell/qaforum/internal/storage"
)

// Forum is the data access facade. It is safe for concurrent use as long as
// the injected store is.
type Forum struct {
	store storage.Store
	now   func() time.Time
}

// New returns a Forum backed by store.
func New(store storage.Store) *Forum {
	return &Forum{store: store, now: time.Now}
}

// Open picks the backend once: the remote store when remote is enabled and
// reachable, otherwise the local store over area. A remote backend that
// fails to open is logged and replaced by the local one.
func Open(ctx context.Context, area kv.Store, remote config.Remote) *Forum {
	if remote.Enabled() {
		r, err := storage.OpenRemote(ctx, storage.RemoteOptions{
			Driver:   remote.Driver,
			DSN:      remote.DSN,
			Username: remote.Username,
			Password: remote.Password,
		})
		if err == nil {
			slog.Info("Using remote store", "driver", remote.Driver)
			return New(r)
		}
		slog.Warn("Remote store unavailable, falling back to local store", "driver", remote.Driver, "error", err)
	}
	slog.Info("Using local store")
	return New(storage.NewLocal(area))
}

// Backend names the active store.
func (f *Forum) Backend() string {
	return f.store.Name()
}

// Close releases the store. A remote store is closed; the local store's
// key-value area is left to its owner.
func (f *Forum) Close() error {
	if _, ok := f.store.(*storage.Local); ok {
		return nil
	}
	return f.store.Close()
}

func (f *Forum) Users(ctx context.Context) ([]domain.User, error) {
	return f.store.Users(ctx)
}

// UserByUsername returns nil when no user has that exact name.
func (f *Forum) UserByUsername(ctx context.Context, username string) (*domain.User, error) {
	return f.store.UserByUsername(ctx, username)
}

// AddUser registers username with the digest of password. It returns nil
// when the username is already taken.
func (f *Forum) AddUser(ctx context.Context, username, password string) (*domain.User, error) {
	existing, err := f.store.UserByUsername(ctx, username)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, nil
	}
	return f.store.InsertUser(ctx, username, digest.Hash(password))
}

// Questions returns all questions newest first, each with its answers newest
// first. The order is rebuilt on every call.
func (f *Forum) Questions(ctx context.Context) ([]domain.Question, error) {
	questions, err := f.store.Questions(ctx)
	if err != nil {
		return nil, err
	}
	sortQuestions(questions)
	return questions, nil
}

// Question returns the question with id, or nil.
func (f *Forum) Question(ctx context.Context, id int64) (*domain.Question, error) {
	questions, err := f.Questions(ctx)
	if err != nil {
		return nil, err
	}
	for i := range questions {
		if questions[i].ID == id {
			return &questions[i], nil
		}
	}
	return nil, nil
}

// AddQuestion stores q under a fresh id and returns the stored record.
func (f *Forum) AddQuestion(ctx context.Context, q domain.Question) (*domain.Question, error) {
	return f.store.InsertQuestion(ctx, q)
}

// AddAnswer stores a under questionID. It returns nil when the question does
// not exist.
func (f *Forum) AddAnswer(ctx context.Context, questionID int64, a domain.Answer) (*domain.Answer, error) {
	return f.store.InsertAnswer(ctx, questionID, a)
}

// DeleteQuestion removes the question and its answers. It reports false when
// no such question exists.
func (f *Forum) DeleteQuestion(ctx context.Context, id int64) (bool, error) {
	return f.store.DeleteQuestion(ctx, id)
}

// DeleteAnswer reports false unless an answer with answerID exists under questionID.
func (f *Forum) DeleteAnswer(ctx context.Context, questionID, answerID int64) (bool, error) {
	return f.store.DeleteAnswer(ctx, questionID, answerID)
}

// Authenticate returns the user when password digests to the stored value,
// nil otherwise.
func (f *Forum) Authenticate(ctx context.Context, username, password string) (*domain.User, error) {
	u, err := f.store.UserByUsername(ctx, username)
	if err != nil || u == nil {
		return nil, err
	}
	if !digest.Equal(password, u.Password) {
		return nil, nil
	}
	return u, nil
}

// Ask posts a new question by author, dated now.
func (f *Forum) Ask(ctx context.Context, author, content string) (*domain.Question, error) {
	if err := validatePost(Post{Content: content}); err != nil {
		return nil, err
	}
	return f.AddQuestion(ctx, domain.Question{
		Content: content,
		Author:  author,
		Date:    f.timestamp(),
	})
}

// Reply posts an answer by author to questionID, dated now. It returns nil
// when the question does not exist.
func (f *Forum) Reply(ctx context.Context, questionID int64, author, content string) (*domain.Answer, error) {
	if err := validatePost(Post{Content: content}); err != nil {
		return nil, err
	}
	return f.AddAnswer(ctx, questionID, domain.Answer{
		Content: content,
		Author:  author,
		Date:    f.timestamp(),
	})
}

// CanDelete reports whether actor may delete a post written by author.
func CanDelete(actor, author string) bool {
	return actor != "" && (actor == author || actor == domain.AdminUsername)
}

func (f *Forum) timestamp() string {
	return f.now().UTC().Format(time.RFC3339Nano)
}
