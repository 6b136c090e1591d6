package domain

import "errors"

// AdminUsername is the account allowed to delete anyone's content.
const AdminUsername = "admin"

var (
	// ErrUnavailable marks a failure of the backing store itself, as opposed to
	// a record that does not exist.
	ErrUnavailable = errors.New("store unavailable")

	// ErrUsernameTaken is returned by callers that need to report a rejected
	// registration as an error rather than an absent user.
	ErrUsernameTaken = errors.New("username already taken")
)

// User is a registered account. Password holds the digest, never the clear text.
type User struct {
	ID       int64  `json:"id"`
	Username string `json:"username"`
	Password string `json:"password"`
}

// Question is a forum post with its answers nested, most recent first.
type Question struct {
	ID      int64    `json:"id"`
	Content string   `json:"content"`
	Author  string   `json:"author"`
	Date    string   `json:"date"`
	Answers []Answer `json:"answers"`
}

// Answer belongs to exactly one question. The local store keeps answers
// nested and leaves QuestionID unset on disk.
type Answer struct {
	ID         int64  `json:"id"`
	QuestionID int64  `json:"question_id,omitempty"`
	Content    string `json:"content"`
	Author     string `json:"author"`
	Date       string `json:"date"`
}

// NextIDs holds the persisted id counters of the local store.
type NextIDs struct {
	NextQuestionID int64 `json:"nextQuestionId"`
	NextAnswerID   int64 `json:"nextAnswerId"`
}

// SessionMarker identifies the logged-in user without carrying the digest.
type SessionMarker struct {
	ID       int64  `json:"id"`
	Username string `json:"username"`
}

// Marker returns the session marker for u.
func (u User) Marker() SessionMarker {
	return SessionMarker{ID: u.ID, Username: u.Username}
}
