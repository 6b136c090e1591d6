package storage

import (
	"context"
	"encoding/json"
	"log/slog"
	"strconv"
	"strings"

	"github.com/fishy/rowlock"

	"github.com/conorfennell/qaforum/internal/domain"
	"github.com/conorfennell/qaforum/internal/kv"
)

// Keys of the local key-value area.
const (
	KeyQuestions   = "forumQuestions"
	KeyUsers       = "forumUsers"
	KeyNextIDs     = "forumNextIds"
	KeyNextUserID  = "forumNextUserId"
	KeyCurrentUser = "currentUser"
)

// Local stores whole collections as JSON values in a kv.Store.
//
// Every operation re-reads the collection it touches and every mutation
// writes the whole collection back. Mutations of one collection are
// serialized inside this process; other processes sharing the same key-value
// area still race, and the last writer wins. A collection write and the
// matching counter write are not atomic together.
type Local struct {
	kv    kv.Store
	locks *rowlock.RowLock
}

var _ Store = (*Local)(nil)

// NewLocal returns a Local store over area. The area is seeded lazily on first read.
func NewLocal(area kv.Store) *Local {
	return &Local{
		kv:    area,
		locks: rowlock.NewRowLock(rowlock.MutexNewLocker),
	}
}

func (l *Local) Name() string { return "local" }

// Close closes the underlying key-value area.
func (l *Local) Close() error {
	return l.kv.Close()
}

func (l *Local) Users(ctx context.Context) ([]domain.User, error) {
	l.locks.Lock(KeyUsers)
	defer l.locks.Unlock(KeyUsers)

	return loadCollection(ctx, l, KeyUsers, DefaultUsers)
}

func (l *Local) UserByUsername(ctx context.Context, username string) (*domain.User, error) {
	users, err := l.Users(ctx)
	if err != nil {
		return nil, err
	}
	for i := range users {
		if users[i].Username == username {
			return &users[i], nil
		}
	}
	return nil, nil
}

func (l *Local) InsertUser(ctx context.Context, username, passwordDigest string) (*domain.User, error) {
	l.locks.Lock(KeyUsers)
	defer l.locks.Unlock(KeyUsers)

	users, err := loadCollection(ctx, l, KeyUsers, DefaultUsers)
	if err != nil {
		return nil, err
	}
	for _, u := range users {
		if u.Username == username {
			return nil, nil
		}
	}

	nextID, err := l.loadNextUserID(ctx, users)
	if err != nil {
		return nil, err
	}

	user := domain.User{ID: nextID, Username: username, Password: passwordDigest}
	users = append(users, user)

	if err := l.save(ctx, KeyUsers, users); err != nil {
		return nil, err
	}
	if err := l.saveRaw(ctx, KeyNextUserID, strconv.FormatInt(nextID+1, 10)); err != nil {
		return nil, err
	}
	return &user, nil
}

func (l *Local) Questions(ctx context.Context) ([]domain.Question, error) {
	l.locks.Lock(KeyQuestions)
	defer l.locks.Unlock(KeyQuestions)

	questions, err := loadCollection(ctx, l, KeyQuestions, DefaultQuestions)
	if err != nil {
		return nil, err
	}
	for i := range questions {
		q := &questions[i]
		if q.Answers == nil {
			q.Answers = []domain.Answer{}
		}
		for j := range q.Answers {
			q.Answers[j].QuestionID = q.ID
		}
	}
	return questions, nil
}

func (l *Local) InsertQuestion(ctx context.Context, q domain.Question) (*domain.Question, error) {
	l.locks.Lock(KeyQuestions)
	defer l.locks.Unlock(KeyQuestions)

	questions, err := loadCollection(ctx, l, KeyQuestions, DefaultQuestions)
	if err != nil {
		return nil, err
	}
	ids, err := l.loadNextIDs(ctx, questions)
	if err != nil {
		return nil, err
	}

	q.ID = ids.NextQuestionID
	q.Answers = []domain.Answer{}
	ids.NextQuestionID++

	questions = append([]domain.Question{q}, questions...)
	if err := l.save(ctx, KeyQuestions, questions); err != nil {
		return nil, err
	}
	if err := l.save(ctx, KeyNextIDs, ids); err != nil {
		return nil, err
	}
	return &q, nil
}

func (l *Local) InsertAnswer(ctx context.Context, questionID int64, a domain.Answer) (*domain.Answer, error) {
	l.locks.Lock(KeyQuestions)
	defer l.locks.Unlock(KeyQuestions)

	questions, err := loadCollection(ctx, l, KeyQuestions, DefaultQuestions)
	if err != nil {
		return nil, err
	}
	idx := indexOfQuestion(questions, questionID)
	if idx < 0 {
		return nil, nil
	}
	ids, err := l.loadNextIDs(ctx, questions)
	if err != nil {
		return nil, err
	}

	a.ID = ids.NextAnswerID
	a.QuestionID = 0 // nested answers do not repeat their parent id on disk
	ids.NextAnswerID++

	q := &questions[idx]
	q.Answers = append([]domain.Answer{a}, q.Answers...)
	if err := l.save(ctx, KeyQuestions, questions); err != nil {
		return nil, err
	}
	if err := l.save(ctx, KeyNextIDs, ids); err != nil {
		return nil, err
	}

	a.QuestionID = questionID
	return &a, nil
}

func (l *Local) DeleteQuestion(ctx context.Context, id int64) (bool, error) {
	l.locks.Lock(KeyQuestions)
	defer l.locks.Unlock(KeyQuestions)

	questions, err := loadCollection(ctx, l, KeyQuestions, DefaultQuestions)
	if err != nil {
		return false, err
	}
	idx := indexOfQuestion(questions, id)
	if idx < 0 {
		return false, nil
	}

	// Answers are nested, so they go with the question.
	questions = append(questions[:idx], questions[idx+1:]...)
	if err := l.save(ctx, KeyQuestions, questions); err != nil {
		return false, err
	}
	return true, nil
}

func (l *Local) DeleteAnswer(ctx context.Context, questionID, answerID int64) (bool, error) {
	l.locks.Lock(KeyQuestions)
	defer l.locks.Unlock(KeyQuestions)

	questions, err := loadCollection(ctx, l, KeyQuestions, DefaultQuestions)
	if err != nil {
		return false, err
	}
	qIdx := indexOfQuestion(questions, questionID)
	if qIdx < 0 {
		return false, nil
	}
	answers := questions[qIdx].Answers
	for i := range answers {
		if answers[i].ID != answerID {
			continue
		}
		questions[qIdx].Answers = append(answers[:i], answers[i+1:]...)
		if err := l.save(ctx, KeyQuestions, questions); err != nil {
			return false, err
		}
		return true, nil
	}
	return false, nil
}

// loadCollection reads key as JSON. A missing or unparsable value is replaced
// by seed() and written back; corruption is logged and never returned.
func loadCollection[T any](ctx context.Context, l *Local, key string, seed func() T) (T, error) {
	var zero T

	raw, ok, err := l.kv.Get(ctx, key)
	if err != nil {
		return zero, unavailable("load "+key, err)
	}
	if ok {
		var v T
		perr := json.Unmarshal([]byte(raw), &v)
		if perr == nil {
			return v, nil
		}
		slog.Warn("Corrupt local data, restoring defaults", "key", key, "error", perr)
	}

	v := seed()
	if err := l.save(ctx, key, v); err != nil {
		return zero, err
	}
	return v, nil
}

// loadNextIDs reads the question/answer counters. Missing or corrupt counters
// fall back to the seed values, and a counter never trails the highest id
// already stored, so a lost counter cannot hand out a live id again.
func (l *Local) loadNextIDs(ctx context.Context, questions []domain.Question) (domain.NextIDs, error) {
	ids, err := loadCollection(ctx, l, KeyNextIDs, DefaultNextIDs)
	if err != nil {
		return domain.NextIDs{}, err
	}

	var maxQuestion, maxAnswer int64
	for _, q := range questions {
		maxQuestion = max(maxQuestion, q.ID)
		for _, a := range q.Answers {
			maxAnswer = max(maxAnswer, a.ID)
		}
	}
	ids.NextQuestionID = max(ids.NextQuestionID, maxQuestion+1)
	ids.NextAnswerID = max(ids.NextAnswerID, maxAnswer+1)
	return ids, nil
}

// loadNextUserID reads the user counter, stored as a bare decimal integer.
func (l *Local) loadNextUserID(ctx context.Context, users []domain.User) (int64, error) {
	raw, ok, err := l.kv.Get(ctx, KeyNextUserID)
	if err != nil {
		return 0, unavailable("load "+KeyNextUserID, err)
	}

	next := defaultNextUserID
	if ok {
		if parsed, perr := strconv.ParseInt(strings.TrimSpace(raw), 10, 64); perr == nil {
			next = parsed
		} else {
			slog.Warn("Corrupt local data, restoring defaults", "key", KeyNextUserID, "error", perr)
		}
	}

	for _, u := range users {
		next = max(next, u.ID+1)
	}
	return next, nil
}

func (l *Local) save(ctx context.Context, key string, value any) error {
	b, err := json.Marshal(value)
	if err != nil {
		return unavailable("encode "+key, err)
	}
	return l.saveRaw(ctx, key, string(b))
}

func (l *Local) saveRaw(ctx context.Context, key, value string) error {
	if err := l.kv.Set(ctx, key, value); err != nil {
		return unavailable("save "+key, err)
	}
	return nil
}

func indexOfQuestion(questions []domain.Question, id int64) int {
	for i := range questions {
		if questions[i].ID == id {
			return i
		}
	}
	return -1
}
