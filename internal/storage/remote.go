package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/stdlib"
	_ "modernc.org/sqlite" // Registers the sqlite driver

	"github.com/conorfennell/qaforum/internal/domain"
)

// Drivers accepted by OpenRemote.
const (
	DriverSQLite = "sqlite"
	DriverPgx    = "pgx"
)

const defaultPingTimeout = 8 * time.Second

// RemoteOptions describes the relational backend.
type RemoteOptions struct {
	Driver string
	DSN    string
	// Username and Password override whatever the DSN carries. sqlite has no
	// authentication and ignores them.
	Username    string
	Password    string
	PingTimeout time.Duration
}

// Remote maps the store contract onto the users, questions and answers
// relations.
//
// Backend failures are logged here and returned wrapped in
// domain.ErrUnavailable; missing rows are not errors.
type Remote struct {
	conn   *sql.DB
	driver string
}

var _ Store = (*Remote)(nil)

// OpenRemote connects, pings and applies the schema. An error means there is
// no live backend handle.
func OpenRemote(ctx context.Context, opts RemoteOptions) (*Remote, error) {
	var db *sql.DB
	switch opts.Driver {
	case DriverSQLite:
		var err error
		db, err = sql.Open("sqlite", opts.DSN)
		if err != nil {
			return nil, fmt.Errorf("failed to open database: %w", err)
		}
		db.SetMaxOpenConns(1) // one sqlite writer at a time
	case DriverPgx:
		cfg, err := pgx.ParseConfig(opts.DSN)
		if err != nil {
			return nil, fmt.Errorf("failed to parse dsn: %w", err)
		}
		if opts.Username != "" {
			cfg.User = opts.Username
		}
		if opts.Password != "" {
			cfg.Password = opts.Password
		}
		db = stdlib.OpenDB(*cfg)
		db.SetMaxOpenConns(10)
		db.SetMaxIdleConns(10)
		db.SetConnMaxLifetime(30 * time.Minute)
	default:
		return nil, fmt.Errorf("unknown remote driver %q", opts.Driver)
	}

	timeout := opts.PingTimeout
	if timeout <= 0 {
		timeout = defaultPingTimeout
	}
	pingCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	r := &Remote{conn: db, driver: opts.Driver}
	for _, stmt := range schemas[opts.Driver] {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to apply schema: %w", err)
		}
	}
	return r, nil
}

func (r *Remote) Name() string { return "remote" }

// Close closes the database connection.
func (r *Remote) Close() error {
	return r.conn.Close()
}

func (r *Remote) Users(ctx context.Context) ([]domain.User, error) {
	rows, err := r.conn.QueryContext(ctx, `SELECT id, username, password FROM users ORDER BY id`)
	if err != nil {
		return nil, r.fail("get users", err)
	}
	defer rows.Close()

	users := []domain.User{}
	for rows.Next() {
		var u domain.User
		if err := rows.Scan(&u.ID, &u.Username, &u.Password); err != nil {
			return nil, r.fail("scan user row", err)
		}
		users = append(users, u)
	}
	if err := rows.Err(); err != nil {
		return nil, r.fail("get users", err)
	}
	return users, nil
}

func (r *Remote) UserByUsername(ctx context.Context, username string) (*domain.User, error) {
	var u domain.User
	row := r.conn.QueryRowContext(ctx, r.rebind(`
		SELECT id, username, password
		FROM users WHERE username = ?
	`), username)
	if err := row.Scan(&u.ID, &u.Username, &u.Password); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, r.fail("find user "+username, err)
	}
	return &u, nil
}

func (r *Remote) InsertUser(ctx context.Context, username, passwordDigest string) (*domain.User, error) {
	u := domain.User{Username: username, Password: passwordDigest}
	row := r.conn.QueryRowContext(ctx, r.rebind(`
		INSERT INTO users (username, password)
		VALUES (?, ?)
		ON CONFLICT (username) DO NOTHING
		RETURNING id
	`), username, passwordDigest)
	if err := row.Scan(&u.ID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil // username taken
		}
		return nil, r.fail("insert user "+username, err)
	}
	return &u, nil
}

// Questions loads the questions newest first, then their answers in one
// query, attached by question_id.
func (r *Remote) Questions(ctx context.Context) ([]domain.Question, error) {
	rows, err := r.conn.QueryContext(ctx, `
		SELECT id, content, author, date
		FROM questions
		ORDER BY date DESC
	`)
	if err != nil {
		return nil, r.fail("get questions", err)
	}
	defer rows.Close()

	questions := []domain.Question{}
	for rows.Next() {
		q := domain.Question{Answers: []domain.Answer{}}
		if err := rows.Scan(&q.ID, &q.Content, &q.Author, &q.Date); err != nil {
			return nil, r.fail("scan question row", err)
		}
		questions = append(questions, q)
	}
	if err := rows.Err(); err != nil {
		return nil, r.fail("get questions", err)
	}
	if len(questions) == 0 {
		return questions, nil
	}

	byID := make(map[int64]int, len(questions))
	args := make([]any, len(questions))
	for i, q := range questions {
		byID[q.ID] = i
		args[i] = q.ID
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(args)), ", ")

	answerRows, err := r.conn.QueryContext(ctx, r.rebind(`
		SELECT id, question_id, content, author, date
		FROM answers
		WHERE question_id IN (`+placeholders+`)
		ORDER BY date DESC
	`), args...)
	if err != nil {
		return nil, r.fail("get answers", err)
	}
	defer answerRows.Close()

	for answerRows.Next() {
		var a domain.Answer
		if err := answerRows.Scan(&a.ID, &a.QuestionID, &a.Content, &a.Author, &a.Date); err != nil {
			return nil, r.fail("scan answer row", err)
		}
		if i, ok := byID[a.QuestionID]; ok {
			questions[i].Answers = append(questions[i].Answers, a)
		}
	}
	if err := answerRows.Err(); err != nil {
		return nil, r.fail("get answers", err)
	}
	return questions, nil
}

func (r *Remote) InsertQuestion(ctx context.Context, q domain.Question) (*domain.Question, error) {
	row := r.conn.QueryRowContext(ctx, r.rebind(`
		INSERT INTO questions (content, author, date)
		VALUES (?, ?, ?)
		RETURNING id
	`), q.Content, q.Author, q.Date)
	if err := row.Scan(&q.ID); err != nil {
		return nil, r.fail("insert question", err)
	}
	q.Answers = []domain.Answer{}
	return &q, nil
}

func (r *Remote) InsertAnswer(ctx context.Context, questionID int64, a domain.Answer) (*domain.Answer, error) {
	tx, err := r.conn.BeginTx(ctx, nil)
	if err != nil {
		return nil, r.fail("begin transaction", err)
	}
	defer tx.Rollback()

	var exists int
	err = tx.QueryRowContext(ctx, r.rebind(`SELECT 1 FROM questions WHERE id = ?`), questionID).Scan(&exists)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, r.fail(fmt.Sprintf("find question %d", questionID), err)
	}

	a.QuestionID = questionID
	row := tx.QueryRowContext(ctx, r.rebind(`
		INSERT INTO answers (question_id, content, author, date)
		VALUES (?, ?, ?, ?)
		RETURNING id
	`), questionID, a.Content, a.Author, a.Date)
	if err := row.Scan(&a.ID); err != nil {
		return nil, r.fail(fmt.Sprintf("insert answer for question %d", questionID), err)
	}
	if err := tx.Commit(); err != nil {
		return nil, r.fail("commit answer", err)
	}
	return &a, nil
}

// DeleteQuestion removes the question and its answers in one transaction so
// no answer rows are left pointing at a deleted question.
func (r *Remote) DeleteQuestion(ctx context.Context, id int64) (bool, error) {
	tx, err := r.conn.BeginTx(ctx, nil)
	if err != nil {
		return false, r.fail("begin transaction", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, r.rebind(`DELETE FROM answers WHERE question_id = ?`), id); err != nil {
		return false, r.fail(fmt.Sprintf("delete answers of question %d", id), err)
	}
	res, err := tx.ExecContext(ctx, r.rebind(`DELETE FROM questions WHERE id = ?`), id)
	if err != nil {
		return false, r.fail(fmt.Sprintf("delete question %d", id), err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, r.fail(fmt.Sprintf("delete question %d", id), err)
	}
	if n == 0 {
		return false, nil
	}
	if err := tx.Commit(); err != nil {
		return false, r.fail("commit question delete", err)
	}
	return true, nil
}

func (r *Remote) DeleteAnswer(ctx context.Context, questionID, answerID int64) (bool, error) {
	res, err := r.conn.ExecContext(ctx, r.rebind(`
		DELETE FROM answers
		WHERE id = ? AND question_id = ?
	`), answerID, questionID)
	if err != nil {
		return false, r.fail(fmt.Sprintf("delete answer %d", answerID), err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, r.fail(fmt.Sprintf("delete answer %d", answerID), err)
	}
	return n > 0, nil
}

// rebind rewrites ? placeholders to $1, $2, ... for postgres.
func (r *Remote) rebind(query string) string {
	if r.driver != DriverPgx {
		return query
	}
	var b strings.Builder
	n := 0
	for _, ch := range query {
		if ch == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(ch)
	}
	return b.String()
}

func (r *Remote) fail(op string, err error) error {
	slog.Error("Remote store operation failed", "op", op, "driver", r.driver, "error", err)
	return unavailable(op, err)
}
