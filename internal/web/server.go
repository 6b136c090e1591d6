package web

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/render"

	"github.com/conorfennell/qaforum/internal/domain"
	"github.com/conorfennell/qaforum/internal/forum"
	"github.com/conorfennell/qaforum/internal/session"
)

type ctxKey int

const markerKey ctxKey = iota

// Server holds the dependencies for the HTTP API.
type Server struct {
	forum   *forum.Forum
	tokens  *session.Tokens
	router  chi.Router
	origins []string
}

// NewServer creates and configures a new server.
func NewServer(f *forum.Forum, tokens *session.Tokens, origins []string) *Server {
	s := &Server{
		forum:   f,
		tokens:  tokens,
		router:  chi.NewRouter(),
		origins: origins,
	}
	s.routes()
	return s
}

// ServeHTTP implements the http.Handler interface.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// routes sets up the routing for the server.
func (s *Server) routes() {
	r := s.router
	r.Use(middleware.RequestID)
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: s.origins,
		AllowedMethods: []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type"},
		MaxAge:         300,
	}))
	r.Use(render.SetContentType(render.ContentTypeJSON))

	r.Get("/healthz", s.handleHealth())

	r.Route("/api", func(r chi.Router) {
		r.Post("/auth/signup", s.handleSignup())
		r.Post("/auth/login", s.handleLogin())
		r.Get("/questions", s.handleListQuestions())

		r.Group(func(r chi.Router) {
			r.Use(s.requireSession)
			r.Get("/auth/me", s.handleMe())
			r.Get("/users", s.handleListUsers())
			r.Post("/questions", s.handlePostQuestion())
			r.Route("/questions/{questionID}", func(r chi.Router) {
				r.Delete("/", s.handleDeleteQuestion())
				r.Post("/answers", s.handlePostAnswer())
				r.Delete("/answers/{answerID}", s.handleDeleteAnswer())
			})
		})
	})
}

type errorResponse struct {
	Error string `json:"error"`
}

type authResponse struct {
	Token string               `json:"token"`
	User  domain.SessionMarker `json:"user"`
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

func (s *Server) handleHealth() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		render.JSON(w, r, map[string]any{"ok": true, "backend": s.forum.Backend()})
	}
}

// handleSignup registers a user and logs them in.
func (s *Server) handleSignup() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var in forum.Signup
		if err := render.DecodeJSON(r.Body, &in); err != nil {
			writeError(w, r, http.StatusBadRequest, "invalid json")
			return
		}
		if err := forum.ValidateSignup(&in); err != nil {
			writeError(w, r, http.StatusUnprocessableEntity, err.Error())
			return
		}

		u, err := s.forum.AddUser(r.Context(), in.Username, in.Password)
		if err != nil {
			writeStoreError(w, r, "add user", err)
			return
		}
		if u == nil {
			writeError(w, r, http.StatusConflict, domain.ErrUsernameTaken.Error())
			return
		}
		s.writeSession(w, r, http.StatusCreated, *u)
	}
}

func (s *Server) handleLogin() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var in loginRequest
		if err := render.DecodeJSON(r.Body, &in); err != nil {
			writeError(w, r, http.StatusBadRequest, "invalid json")
			return
		}

		u, err := s.forum.Authenticate(r.Context(), in.Username, in.Password)
		if err != nil {
			writeStoreError(w, r, "authenticate", err)
			return
		}
		if u == nil {
			writeError(w, r, http.StatusUnauthorized, "invalid username or password")
			return
		}
		s.writeSession(w, r, http.StatusOK, *u)
	}
}

func (s *Server) handleMe() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		render.JSON(w, r, currentMarker(r))
	}
}

// handleListUsers lists accounts without their password digests.
func (s *Server) handleListUsers() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		users, err := s.forum.Users(r.Context())
		if err != nil {
			writeStoreError(w, r, "list users", err)
			return
		}
		out := make([]domain.SessionMarker, 0, len(users))
		for _, u := range users {
			out = append(out, u.Marker())
		}
		render.JSON(w, r, out)
	}
}

func (s *Server) handleListQuestions() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		questions, err := s.forum.Questions(r.Context())
		if err != nil {
			writeStoreError(w, r, "list questions", err)
			return
		}
		render.JSON(w, r, questions)
	}
}

func (s *Server) handlePostQuestion() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var in forum.Post
		if err := render.DecodeJSON(r.Body, &in); err != nil {
			writeError(w, r, http.StatusBadRequest, "invalid json")
			return
		}

		q, err := s.forum.Ask(r.Context(), currentMarker(r).Username, in.Content)
		if err != nil {
			writeStoreError(w, r, "add question", err)
			return
		}
		render.Status(r, http.StatusCreated)
		render.JSON(w, r, q)
	}
}

func (s *Server) handlePostAnswer() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		questionID, ok := pathID(w, r, "questionID")
		if !ok {
			return
		}
		var in forum.Post
		if err := render.DecodeJSON(r.Body, &in); err != nil {
			writeError(w, r, http.StatusBadRequest, "invalid json")
			return
		}

		a, err := s.forum.Reply(r.Context(), questionID, currentMarker(r).Username, in.Content)
		if err != nil {
			writeStoreError(w, r, "add answer", err)
			return
		}
		if a == nil {
			writeError(w, r, http.StatusNotFound, "question not found")
			return
		}
		render.Status(r, http.StatusCreated)
		render.JSON(w, r, a)
	}
}

// handleDeleteQuestion deletes a question if the caller wrote it or is admin.
func (s *Server) handleDeleteQuestion() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		questionID, ok := pathID(w, r, "questionID")
		if !ok {
			return
		}

		q, err := s.forum.Question(r.Context(), questionID)
		if err != nil {
			writeStoreError(w, r, "find question", err)
			return
		}
		if q == nil {
			writeError(w, r, http.StatusNotFound, "question not found")
			return
		}
		if !forum.CanDelete(currentMarker(r).Username, q.Author) {
			writeError(w, r, http.StatusForbidden, "only the author or admin can delete this question")
			return
		}

		deleted, err := s.forum.DeleteQuestion(r.Context(), questionID)
		if err != nil {
			writeStoreError(w, r, "delete question", err)
			return
		}
		if !deleted {
			writeError(w, r, http.StatusNotFound, "question not found")
			return
		}
		render.NoContent(w, r)
	}
}

func (s *Server) handleDeleteAnswer() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		questionID, ok := pathID(w, r, "questionID")
		if !ok {
			return
		}
		answerID, ok := pathID(w, r, "answerID")
		if !ok {
			return
		}

		q, err := s.forum.Question(r.Context(), questionID)
		if err != nil {
			writeStoreError(w, r, "find question", err)
			return
		}
		var answer *domain.Answer
		if q != nil {
			for i := range q.Answers {
				if q.Answers[i].ID == answerID {
					answer = &q.Answers[i]
					break
				}
			}
		}
		if answer == nil {
			writeError(w, r, http.StatusNotFound, "answer not found")
			return
		}
		if !forum.CanDelete(currentMarker(r).Username, answer.Author) {
			writeError(w, r, http.StatusForbidden, "only the author or admin can delete this answer")
			return
		}

		deleted, err := s.forum.DeleteAnswer(r.Context(), questionID, answerID)
		if err != nil {
			writeStoreError(w, r, "delete answer", err)
			return
		}
		if !deleted {
			writeError(w, r, http.StatusNotFound, "answer not found")
			return
		}
		render.NoContent(w, r)
	}
}

// requireSession rejects requests without a valid bearer token and stores
// the caller's marker in the request context.
func (s *Server) requireSession(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, found := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
		if !found || raw == "" {
			writeError(w, r, http.StatusUnauthorized, "login required")
			return
		}
		m, err := s.tokens.Parse(raw)
		if err != nil {
			writeError(w, r, http.StatusUnauthorized, "login required")
			return
		}
		ctx := context.WithValue(r.Context(), markerKey, m)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func currentMarker(r *http.Request) domain.SessionMarker {
	m, _ := r.Context().Value(markerKey).(domain.SessionMarker)
	return m
}

func (s *Server) writeSession(w http.ResponseWriter, r *http.Request, status int, u domain.User) {
	token, err := s.tokens.Issue(u.Marker())
	if err != nil {
		slog.Error("Error issuing session token", "username", u.Username, "error", err)
		writeError(w, r, http.StatusInternalServerError, "internal server error")
		return
	}
	render.Status(r, status)
	render.JSON(w, r, authResponse{Token: token, User: u.Marker()})
}

func pathID(w http.ResponseWriter, r *http.Request, param string) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, param), 10, 64)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid "+param)
		return 0, false
	}
	return id, true
}

func writeError(w http.ResponseWriter, r *http.Request, status int, msg string) {
	render.Status(r, status)
	render.JSON(w, r, errorResponse{Error: msg})
}

// writeStoreError maps validation failures to 422 and backend failures to 503.
func writeStoreError(w http.ResponseWriter, r *http.Request, op string, err error) {
	var verr *forum.ValidationError
	switch {
	case errors.As(err, &verr):
		writeError(w, r, http.StatusUnprocessableEntity, verr.Error())
	case errors.Is(err, domain.ErrUnavailable):
		slog.Error("Store unavailable", "op", op, "error", err)
		writeError(w, r, http.StatusServiceUnavailable, "storage backend unavailable")
	default:
		slog.Error("Request failed", "op", op, "error", err)
		writeError(w, r, http.StatusInternalServerError, "internal server error")
	}
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		slog.Info("HTTP request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration", time.Since(start),
			"request_id", middleware.GetReqID(r.Context()),
		)
	})
}
