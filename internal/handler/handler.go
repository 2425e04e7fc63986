package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/pavelanni/autograde/internal/grading"
	appI18n "github.com/pavelanni/autograde/internal/i18n"
	"github.com/pavelanni/autograde/internal/integrity"
	"github.com/pavelanni/autograde/internal/model"
	"github.com/pavelanni/autograde/internal/store"
)

// DefaultMaxBodyBytes caps request bodies carrying base64 pages.
const DefaultMaxBodyBytes = 64 << 20

var validate = validator.New(validator.WithRequiredStructEnabled())

// Config holds HTTP-level settings.
type Config struct {
	OperatorUser string
	MaxBodyBytes int64
	// Scan configures the integrity scan. Nil uses integrity.DefaultOptions.
	Scan *integrity.Options
}

// Handler holds shared dependencies for HTTP handlers.
type Handler struct {
	store  *store.Store
	grader *grading.Service
	config Config
}

// New creates a new Handler.
func New(s *store.Store, g *grading.Service, cfg Config) (*Handler, error) {
	if s == nil || g == nil {
		return nil, errors.New("store and grading service are required")
	}
	if cfg.OperatorUser == "" {
		cfg.OperatorUser = "operator"
	}
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = DefaultMaxBodyBytes
	}
	return &Handler{store: s, grader: g, config: cfg}, nil
}

// Routes registers all HTTP routes.
func (h *Handler) Routes(r chi.Router) {
	r.Get("/healthz", h.handleHealth)
	r.Route("/api", func(r chi.Router) {
		r.Get("/exam", h.handleGetExam)
		r.Post("/submissions", h.handleSubmit)
		r.Post("/submissions/{id}/remediation", h.handleRemediation)

		r.Group(func(r chi.Router) {
			r.Use(h.requireOperator)
			r.Put("/exam", h.handleSaveExam)
			r.Get("/submissions", h.handleListSubmissions)
			r.Get("/submissions/{id}", h.handleGetSubmission)
			r.Delete("/submissions", h.handleClearSubmissions)
			r.Post("/integrity/scan", h.handleScan)
			r.Get("/export", h.handleExport)
		})
	})
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	n, err := h.store.Count(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "submissions": n})
}

// publicQuestion is a question as shown to students, without its key.
type publicQuestion struct {
	ID           string `json:"id"`
	Label        string `json:"label"`
	HasAnswerKey bool   `json:"hasAnswerKey"`
}

type publicExam struct {
	ID           string           `json:"id"`
	Title        string           `json:"title"`
	Instructions string           `json:"instructions"`
	Questions    []publicQuestion `json:"questions"`
}

func (h *Handler) handleGetExam(w http.ResponseWriter, r *http.Request) {
	cfg, err := h.store.CurrentExam(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	if cfg == nil {
		writeError(w, r, &model.ValidationError{Field: "exam", MessageID: model.MsgNoExamConfigured})
		return
	}
	out := publicExam{ID: cfg.ID, Title: cfg.Title, Instructions: cfg.Instructions, Questions: []publicQuestion{}}
	for _, q := range cfg.Questions {
		out.Questions = append(out.Questions, publicQuestion{ID: q.ID, Label: q.Label, HasAnswerKey: q.AnswerKey != nil})
	}
	writeJSON(w, http.StatusOK, out)
}

type submitRequest struct {
	StudentName string        `json:"studentName"`
	StudentID   string        `json:"studentId"`
	Files       []model.Asset `json:"files" validate:"dive"`
}

func (h *Handler) handleSubmit(w http.ResponseWriter, r *http.Request) {
	var req submitRequest
	if err := h.decode(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	cfg, err := h.store.CurrentExam(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}

	sub, err := h.grader.Submit(r.Context(), model.Student{Name: req.StudentName, ID: req.StudentID}, req.Files, cfg)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, sub)
}

type remediationRequest struct {
	StudentName      string                  `json:"studentName"`
	StudentID        string                  `json:"studentId"`
	Files            []model.Asset           `json:"files" validate:"dive"`
	PracticeProblems []model.PracticeProblem `json:"practiceProblems,omitempty"`
}

func (h *Handler) handleRemediation(w http.ResponseWriter, r *http.Request) {
	var req remediationRequest
	if err := h.decode(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	rr := grading.RemediationRequest{
		SubmissionID: chi.URLParam(r, "id"),
		Pages:        req.Files,
		Student:      model.Student{Name: req.StudentName, ID: req.StudentID},
	}
	// Client problems only count for work that was never stored.
	if req.PracticeProblems != nil {
		rr.Prior = &model.GradingResult{PracticeProblems: req.PracticeProblems}
	}
	result, err := h.grader.SubmitRemediation(r.Context(), rr)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// decode reads a size-limited JSON body into v and validates its struct tags.
func (h *Handler) decode(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, h.config.MaxBodyBytes)
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(v); err != nil {
		return &model.ValidationError{Field: "body", MessageID: model.MsgInvalidPayload, Err: err}
	}
	if err := validate.Struct(v); err != nil {
		return &model.ValidationError{Field: "body", MessageID: model.MsgInvalidPayload, Err: err}
	}
	return nil
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("encode response", "error", err)
	}
}

type errorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Field   string `json:"field,omitempty"`
}

// writeError maps error kinds to a status code and a localized message.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	ctx := r.Context()
	var (
		ve *model.ValidationError
		ee *model.EvaluationError
	)
	switch {
	case errors.As(err, &ve):
		msgID := ve.MessageID
		if msgID == "" {
			msgID = model.MsgInvalidPayload
		}
		slog.Info("request rejected", "path", r.URL.Path, "field", ve.Field, "error", err)
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "validation", Message: appI18n.T(ctx, msgID), Field: ve.Field})
	case errors.Is(err, model.ErrNotConfigured):
		slog.Error("evaluation service not configured", "error", err)
		writeJSON(w, http.StatusServiceUnavailable, errorResponse{Error: "configuration", Message: appI18n.T(ctx, "ErrNotConfigured")})
	case errors.As(err, &ee):
		writeJSON(w, http.StatusBadGateway, errorResponse{Error: "evaluation", Message: appI18n.T(ctx, "ErrEvaluationFailed")})
	case errors.Is(err, store.ErrNotFound):
		writeJSON(w, http.StatusNotFound, errorResponse{Error: "not_found", Message: appI18n.T(ctx, "ErrNotFound")})
	case errors.Is(err, context.Canceled):
		slog.Warn("request canceled", "path", r.URL.Path)
		writeJSON(w, http.StatusServiceUnavailable, errorResponse{Error: "canceled", Message: appI18n.T(ctx, "ErrEvaluationFailed")})
	default:
		slog.Error("request failed", "path", r.URL.Path, "error", err)
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "internal", Message: appI18n.T(ctx, "ErrInternal")})
	}
}
