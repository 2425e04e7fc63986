package handler

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/pavelanni/autograde/internal/export"
	appI18n "github.com/pavelanni/autograde/internal/i18n"
	"github.com/pavelanni/autograde/internal/integrity"
	"github.com/pavelanni/autograde/internal/model"
)

func (h *Handler) handleSaveExam(w http.ResponseWriter, r *http.Request) {
	var cfg model.ExamConfiguration
	if err := h.decode(w, r, &cfg); err != nil {
		writeError(w, r, err)
		return
	}
	if err := cfg.Validate(); err != nil {
		writeError(w, r, err)
		return
	}
	for _, a := range examAssets(&cfg) {
		if b, err := a.Bytes(); err != nil || len(b) == 0 {
			writeError(w, r, &model.ValidationError{Field: "answerKey", MessageID: model.MsgInvalidPayload, Err: err})
			return
		}
	}

	if cfg.ID == "" {
		cfg.ID = uuid.NewString()
	}
	for i := range cfg.Questions {
		if cfg.Questions[i].ID == "" {
			cfg.Questions[i].ID = uuid.NewString()
		}
	}
	if cfg.CreatedAt.IsZero() {
		cfg.CreatedAt = time.Now().UTC()
	}

	if err := h.store.SaveExam(r.Context(), &cfg); err != nil {
		writeError(w, r, err)
		return
	}
	slog.Info("saved exam configuration", "exam_id", cfg.ID, "title", cfg.Title, "questions", len(cfg.Questions))
	writeJSON(w, http.StatusOK, cfg)
}

func examAssets(cfg *model.ExamConfiguration) []*model.Asset {
	var out []*model.Asset
	if cfg.GeneralAnswerKey != nil {
		out = append(out, cfg.GeneralAnswerKey)
	}
	if cfg.Reference != nil {
		out = append(out, cfg.Reference)
	}
	for _, q := range cfg.Questions {
		if q.AnswerKey != nil {
			out = append(out, q.AnswerKey)
		}
	}
	return out
}

func (h *Handler) handleListSubmissions(w http.ResponseWriter, r *http.Request) {
	subs, err := h.store.GetAll(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	// Pages are only returned by the single-submission endpoint.
	out := make([]model.Submission, 0, len(subs))
	for _, s := range subs {
		c := *s
		c.Pages = nil
		out = append(out, c)
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *Handler) handleGetSubmission(w http.ResponseWriter, r *http.Request) {
	sub, err := h.store.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sub)
}

func (h *Handler) handleClearSubmissions(w http.ResponseWriter, r *http.Request) {
	if err := h.store.ClearAll(r.Context()); err != nil {
		writeError(w, r, err)
		return
	}
	if r.URL.Query().Get("exam") == "true" {
		if err := h.store.ClearExam(r.Context()); err != nil {
			writeError(w, r, err)
			return
		}
	}
	slog.Info("cleared submissions", "exam", r.URL.Query().Get("exam") == "true")
	w.WriteHeader(http.StatusNoContent)
}

type scanResponse struct {
	integrity.Report
	Message string `json:"message"`
}

func (h *Handler) handleScan(w http.ResponseWriter, r *http.Request) {
	opts := integrity.DefaultOptions()
	if h.config.Scan != nil {
		opts = *h.config.Scan
	}
	opts.Warning = appI18n.IntegrityWarning(r.Context())
	report, err := integrity.New(h.store, opts).Scan(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, scanResponse{
		Report:  report,
		Message: appI18n.Tp(r.Context(), "ScanFlagged", len(report.Flagged)),
	})
}

func (h *Handler) handleExport(w http.ResponseWriter, r *http.Request) {
	exp, err := h.store.ExportAll(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}

	switch format := r.URL.Query().Get("format"); format {
	case "", "json":
		w.Header().Set("Content-Disposition", `attachment; filename="autograde-results.json"`)
		writeJSON(w, http.StatusOK, exp)
	case "xlsml":
		w.Header().Set("Content-Type", export.ContentType)
		w.Header().Set("Content-Disposition", `attachment; filename="autograde-results.xls"`)
		ctx := r.Context()
		if err := export.WriteSpreadsheet(w, exp, func(id string) string { return appI18n.T(ctx, id) }); err != nil {
			slog.Error("write spreadsheet", "error", err)
		}
	default:
		writeError(w, r, &model.ValidationError{Field: "format", MessageID: model.MsgInvalidPayload})
	}
}
