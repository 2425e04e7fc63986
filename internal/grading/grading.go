// Package grading drives submissions through evaluation and remediation.
package grading

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/pavelanni/autograde/internal/llm"
	"github.com/pavelanni/autograde/internal/model"
	"github.com/pavelanni/autograde/internal/store"
)

// Evaluator is the evaluation gateway as seen by the lifecycle.
type Evaluator interface {
	Evaluate(ctx context.Context, mat llm.Materials, pages []model.Asset, ec llm.EvalContext) (*model.GradingResult, error)
	EvaluateRemediation(ctx context.Context, problems []model.PracticeProblem, pages []model.Asset, ec llm.EvalContext) (*model.GradingResult, error)
}

// Store is the subset of the submission store the lifecycle writes to.
type Store interface {
	Get(ctx context.Context, id string) (*model.Submission, error)
	Put(ctx context.Context, sub *model.Submission) error
}

// Options controls what the lifecycle persists.
type Options struct {
	// RecordFailures stores an ERROR submission when evaluation fails.
	RecordFailures bool
	// PersistRemediation replaces the stored result of a graded submission
	// with its remediation result.
	PersistRemediation bool
}

// DefaultOptions returns the standard lifecycle settings.
func DefaultOptions() Options {
	return Options{PersistRemediation: true}
}

// Service is the grading lifecycle manager.
type Service struct {
	eval  Evaluator
	store Store
	opts  Options

	now   func() time.Time
	newID func() string
}

// New creates a lifecycle service.
func New(eval Evaluator, st Store, opts Options) *Service {
	return &Service{
		eval:  eval,
		store: st,
		opts:  opts,
		now:   time.Now,
		newID: uuid.NewString,
	}
}

// Submit validates and grades one submission, persisting it as GRADED.
// Evaluation errors are returned unchanged; nothing is stored for them
// unless RecordFailures is set.
func (s *Service) Submit(ctx context.Context, student model.Student, pages []model.Asset, cfg *model.ExamConfiguration) (*model.Submission, error) {
	student = normalizeStudent(student)
	if err := validateSubmit(student, pages, cfg); err != nil {
		return nil, err
	}

	sub := &model.Submission{
		ID:          s.newID(),
		Student:     student,
		SubmittedAt: s.now(),
		Pages:       pages,
		State:       model.Pending{},
	}
	log := slog.With("submission_id", sub.ID, "student", student.Name, "student_id", student.ID)
	log.Info("grading submission", "pages", len(pages), "exam", cfg.Title)

	result, err := s.eval.Evaluate(ctx, llm.MaterialsFromExam(cfg), pages, llm.EvalContext{
		Instructions: cfg.Instructions,
		ClassInfo:    student.ID,
	})
	if err != nil {
		log.Error("evaluation failed", "error", err)
		if s.opts.RecordFailures && !model.IsValidation(err) {
			sub.MarkErrored(err.Error())
			if perr := s.store.Put(ctx, sub); perr != nil {
				log.Error("failed to record failed submission", "error", perr)
			}
		}
		return nil, err
	}

	sub.MarkGraded(*result)
	if err := s.store.Put(ctx, sub); err != nil {
		return nil, fmt.Errorf("save submission: %w", err)
	}
	log.Info("submission graded", "score", result.TotalScore, "max_score", result.MaxTotalScore, "grade", result.LetterGrade)
	return sub, nil
}

func normalizeStudent(st model.Student) model.Student {
	return model.Student{Name: strings.TrimSpace(st.Name), ID: strings.TrimSpace(st.ID)}
}

func validateSubmit(student model.Student, pages []model.Asset, cfg *model.ExamConfiguration) error {
	switch {
	case student.Name == "":
		return &model.ValidationError{Field: "studentName", MessageID: model.MsgStudentNameRequired}
	case student.ID == "":
		return &model.ValidationError{Field: "studentId", MessageID: model.MsgStudentIDRequired}
	case len(pages) == 0:
		return &model.ValidationError{Field: "files", MessageID: model.MsgPagesRequired}
	case cfg == nil:
		return &model.ValidationError{Field: "exam", MessageID: model.MsgNoExamConfigured}
	case len(cfg.Questions) == 0:
		return &model.ValidationError{Field: "questions", MessageID: model.MsgNoQuestions}
	case !cfg.Usable():
		return &model.ValidationError{Field: "answerKey", MessageID: model.MsgNoAnswerKey}
	}
	return nil
}

// RemediationRequest is one practice-work round for a graded submission.
// Prior is only used when SubmissionID does not name a stored submission.
type RemediationRequest struct {
	SubmissionID string
	Prior        *model.GradingResult
	Pages        []model.Asset
	Student      model.Student
}

// SubmitRemediation grades practice work against the prior result's
// practice problems. The submission stays GRADED.
func (s *Service) SubmitRemediation(ctx context.Context, req RemediationRequest) (*model.GradingResult, error) {
	var stored *model.Submission
	if req.SubmissionID != "" {
		sub, err := s.store.Get(ctx, req.SubmissionID)
		switch {
		case err == nil:
			stored = sub
		case errors.Is(err, store.ErrNotFound):
		default:
			return nil, fmt.Errorf("load submission: %w", err)
		}
	}

	prior := req.Prior
	switch {
	case stored != nil:
		// A stored submission's own problems are the only ones accepted.
		prior = stored.Result()
	case req.SubmissionID != "" && prior == nil:
		return nil, fmt.Errorf("submission %s: %w", req.SubmissionID, store.ErrNotFound)
	}
	if !prior.HasPracticeProblems() {
		return nil, &model.ValidationError{Field: "practiceProblems", MessageID: model.MsgNoPracticeProblems}
	}
	if len(req.Pages) == 0 {
		return nil, &model.ValidationError{Field: "files", MessageID: model.MsgPagesRequired}
	}

	student := normalizeStudent(req.Student)
	if student.ID == "" && stored != nil {
		student = stored.Student
	}
	log := slog.With("submission_id", req.SubmissionID, "student_id", student.ID)
	log.Info("grading remediation", "problems", len(prior.PracticeProblems), "pages", len(req.Pages))

	result, err := s.eval.EvaluateRemediation(ctx, prior.PracticeProblems, req.Pages, llm.EvalContext{ClassInfo: student.ID})
	if err != nil {
		log.Error("remediation evaluation failed", "error", err)
		return nil, err
	}

	if s.opts.PersistRemediation && stored != nil && stored.Status() == model.StatusGraded {
		stored.MarkGraded(*result)
		if err := s.store.Put(ctx, stored); err != nil {
			return nil, fmt.Errorf("save remediation: %w", err)
		}
		log.Info("stored remediation result", "score", result.TotalScore)
	}
	return result, nil
}
