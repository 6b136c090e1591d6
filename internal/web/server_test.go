package web

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/conorfennell/qaforum/internal/domain"
	"github.com/conorfennell/qaforum/internal/forum"
	"github.com/conorfennell/qaforum/internal/kv"
	"github.com/conorfennell/qaforum/internal/session"
	"github.com/conorfennell/qaforum/internal/storage"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()
	f := forum.New(storage.NewLocal(kv.NewMemory()))
	return NewServer(f, session.NewTokens("test-secret", time.Hour), []string{"*"})
}

func do(t *testing.T, s *Server, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if raw, ok := body.(string); ok {
			buf.WriteString(raw)
		} else if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("Failed to encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rr := httptest.NewRecorder()
	s.ServeHTTP(rr, req)
	return rr
}

func decode[T any](t *testing.T, rr *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(rr.Body.Bytes(), &v); err != nil {
		t.Fatalf("Failed to decode response %q: %v", rr.Body.String(), err)
	}
	return v
}

func login(t *testing.T, s *Server, username, password string) string {
	t.Helper()
	rr := do(t, s, http.MethodPost, "/api/auth/login", "", loginRequest{Username: username, Password: password})
	if rr.Code != http.StatusOK {
		t.Fatalf("Login as %s failed with %d: %s", username, rr.Code, rr.Body.String())
	}
	return decode[authResponse](t, rr).Token
}

func TestHealth(t *testing.T) {
	s := newTestServer(t)
	rr := do(t, s, http.MethodGet, "/healthz", "", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("Expected status 200, but got %d", rr.Code)
	}
	body := decode[map[string]any](t, rr)
	if body["backend"] != "local" {
		t.Errorf("Expected backend local, but got %v", body["backend"])
	}
}

func TestSignup(t *testing.T) {
	s := newTestServer(t)

	testCases := []struct {
		name     string
		body     any
		expected int
	}{
		{"new user", forum.Signup{Username: "carol", Password: "secret", Confirm: "secret"}, http.StatusCreated},
		{"taken username", forum.Signup{Username: "user1", Password: "secret", Confirm: "secret"}, http.StatusConflict},
		{"short password", forum.Signup{Username: "dave", Password: "abc", Confirm: "abc"}, http.StatusUnprocessableEntity},
		{"mismatched confirm", forum.Signup{Username: "erin", Password: "secret", Confirm: "other"}, http.StatusUnprocessableEntity},
		{"invalid json", "{", http.StatusBadRequest},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			rr := do(t, s, http.MethodPost, "/api/auth/signup", "", tc.body)
			if rr.Code != tc.expected {
				t.Errorf("Expected status %d, but got %d: %s", tc.expected, rr.Code, rr.Body.String())
			}
		})
	}

	token := login(t, s, "carol", "secret")
	me := do(t, s, http.MethodGet, "/api/auth/me", token, nil)
	if got := decode[domain.SessionMarker](t, me); got.Username != "carol" || got.ID != 4 {
		t.Errorf("Expected carol with id 4, but got %+v", got)
	}
}

func TestLogin(t *testing.T) {
	s := newTestServer(t)

	rr := do(t, s, http.MethodPost, "/api/auth/login", "", loginRequest{Username: "admin", Password: "admin"})
	if rr.Code != http.StatusOK {
		t.Fatalf("Expected status 200, but got %d", rr.Code)
	}
	if resp := decode[authResponse](t, rr); resp.Token == "" || resp.User.Username != "admin" {
		t.Errorf("Expected a token for admin, but got %+v", resp)
	}

	for _, creds := range []loginRequest{
		{Username: "admin", Password: "wrong"},
		{Username: "nobody", Password: "admin"},
	} {
		rr := do(t, s, http.MethodPost, "/api/auth/login", "", creds)
		if rr.Code != http.StatusUnauthorized {
			t.Errorf("Expected status 401 for %s, but got %d", creds.Username, rr.Code)
		}
	}
}

func TestProtectedRoutesRequireToken(t *testing.T) {
	s := newTestServer(t)
	routes := []struct{ method, path string }{
		{http.MethodGet, "/api/auth/me"},
		{http.MethodGet, "/api/users"},
		{http.MethodPost, "/api/questions"},
		{http.MethodPost, "/api/questions/1/answers"},
		{http.MethodDelete, "/api/questions/1"},
		{http.MethodDelete, "/api/questions/2/answers/2"},
	}
	for _, route := range routes {
		for _, token := range []string{"", "garbage"} {
			rr := do(t, s, route.method, route.path, token, nil)
			if rr.Code != http.StatusUnauthorized {
				t.Errorf("%s %s with token %q: expected 401, but got %d", route.method, route.path, token, rr.Code)
			}
		}
	}
}

func TestListUsersHidesPasswords(t *testing.T) {
	s := newTestServer(t)
	token := login(t, s, "user1", "password1")

	rr := do(t, s, http.MethodGet, "/api/users", token, nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("Expected status 200, but got %d", rr.Code)
	}
	if strings.Contains(rr.Body.String(), "password") {
		t.Errorf("Expected no password digests in %s", rr.Body.String())
	}
	if users := decode[[]domain.SessionMarker](t, rr); len(users) != 3 {
		t.Errorf("Expected 3 users, but got %d", len(users))
	}
}

func TestQuestionsAndAnswers(t *testing.T) {
	s := newTestServer(t)
	token := login(t, s, "user2", "password2")

	rr := do(t, s, http.MethodPost, "/api/questions", token, forum.Post{Content: "Is Go fun?"})
	if rr.Code != http.StatusCreated {
		t.Fatalf("Expected status 201, but got %d: %s", rr.Code, rr.Body.String())
	}
	q := decode[domain.Question](t, rr)
	if q.ID != 3 || q.Author != "user2" {
		t.Errorf("Expected question 3 by user2, but got %+v", q)
	}

	if rr := do(t, s, http.MethodPost, "/api/questions", token, forum.Post{Content: "   "}); rr.Code != http.StatusUnprocessableEntity {
		t.Errorf("Expected status 422 for blank content, but got %d", rr.Code)
	}

	rr = do(t, s, http.MethodPost, "/api/questions/3/answers", token, forum.Post{Content: "Very."})
	if rr.Code != http.StatusCreated {
		t.Fatalf("Expected status 201, but got %d: %s", rr.Code, rr.Body.String())
	}
	if a := decode[domain.Answer](t, rr); a.ID != 4 || a.QuestionID != 3 {
		t.Errorf("Expected answer 4 on question 3, but got %+v", a)
	}

	if rr := do(t, s, http.MethodPost, "/api/questions/999/answers", token, forum.Post{Content: "Hello?"}); rr.Code != http.StatusNotFound {
		t.Errorf("Expected status 404 for an unknown question, but got %d", rr.Code)
	}
	if rr := do(t, s, http.MethodPost, "/api/questions/abc/answers", token, forum.Post{Content: "Hello?"}); rr.Code != http.StatusBadRequest {
		t.Errorf("Expected status 400 for a malformed id, but got %d", rr.Code)
	}

	rr = do(t, s, http.MethodGet, "/api/questions", "", nil)
	questions := decode[[]domain.Question](t, rr)
	if len(questions) != 3 || questions[0].ID != 3 {
		t.Fatalf("Expected the new question first of 3, but got %+v", questions)
	}
	if len(questions[0].Answers) != 1 || questions[0].Answers[0].Content != "Very." {
		t.Errorf("Expected the answer under the new question, but got %+v", questions[0].Answers)
	}
}

func TestDeletePermissions(t *testing.T) {
	s := newTestServer(t)
	user1 := login(t, s, "user1", "password1")
	user2 := login(t, s, "user2", "password2")
	admin := login(t, s, "admin", "admin")

	testCases := []struct {
		name     string
		token    string
		path     string
		expected int
	}{
		{"other user's question", user2, "/api/questions/1", http.StatusForbidden},
		{"other user's answer", user1, "/api/questions/2/answers/3", http.StatusForbidden},
		{"own answer", user1, "/api/questions/2/answers/2", http.StatusNoContent},
		{"answer already gone", user1, "/api/questions/2/answers/2", http.StatusNotFound},
		{"answer under wrong question", admin, "/api/questions/1/answers/3", http.StatusNotFound},
		{"own question", user1, "/api/questions/1", http.StatusNoContent},
		{"question already gone", admin, "/api/questions/1", http.StatusNotFound},
		{"admin deletes any question", admin, "/api/questions/2", http.StatusNoContent},
		{"malformed id", admin, "/api/questions/x", http.StatusBadRequest},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			rr := do(t, s, http.MethodDelete, tc.path, tc.token, nil)
			if rr.Code != tc.expected {
				t.Errorf("Expected status %d, but got %d: %s", tc.expected, rr.Code, rr.Body.String())
			}
		})
	}

	rr := do(t, s, http.MethodGet, "/api/questions", "", nil)
	if questions := decode[[]domain.Question](t, rr); len(questions) != 0 {
		t.Errorf("Expected no questions left, but got %+v", questions)
	}
}

func TestStoreUnavailableMapsTo503(t *testing.T) {
	s := newTestServer(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	req := httptest.NewRequest(http.MethodGet, "/api/questions", nil).WithContext(ctx)
	rr := httptest.NewRecorder()
	s.ServeHTTP(rr, req)

	if rr.Code != http.StatusServiceUnavailable {
		t.Errorf("Expected status 503, but got %d: %s", rr.Code, rr.Body.String())
	}
}
