package llm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/pavelanni/autograde/internal/llm/prompts"
	"github.com/pavelanni/autograde/internal/model"
)

// Kind selects the response shape a judge is asked for.
type Kind int

const (
	KindGrade Kind = iota
	KindRemediation
)

func (k Kind) String() string {
	if k == KindRemediation {
		return "remediation"
	}
	return "grade"
}

// Part is one element of the ordered judge input: either a text marker or a
// decoded binary asset.
type Part struct {
	Text     string
	Data     []byte
	MIMEType string
}

// IsBlob reports whether the part carries binary data.
func (p Part) IsBlob() bool { return p.Data != nil }

// Request is a fully assembled evaluation request.
type Request struct {
	Kind        Kind
	System      string
	Parts       []Part
	Temperature float32
}

// Judge is an evaluation backend. It returns the raw response text.
// A missing credential is reported as an error wrapping model.ErrNotConfigured.
type Judge interface {
	Name() string
	Judge(ctx context.Context, req Request) (string, error)
}

// Options tunes the gateway.
type Options struct {
	Variant     prompts.PromptVariant
	Timeout     time.Duration
	Retries     int
	Backoff     time.Duration
	Temperature float32
	// Language is the code of the language the judge writes its feedback in.
	Language string
}

// DefaultOptions returns the standard gateway settings.
func DefaultOptions() Options {
	return Options{
		Variant:     prompts.PromptStandard,
		Timeout:     120 * time.Second,
		Retries:     1,
		Backoff:     300 * time.Millisecond,
		Temperature: 0.2,
		Language:    "en",
	}
}

// Gateway turns exam materials and submission pages into a validated
// GradingResult. It is stateless and never touches the store.
type Gateway struct {
	judge Judge
	opts  Options
}

// New creates a gateway over the given judge.
func New(judge Judge, opts Options) (*Gateway, error) {
	if judge == nil {
		return nil, errors.New("judge is required")
	}
	if err := prompts.Load(prompts.FS); err != nil {
		return nil, fmt.Errorf("load prompts: %w", err)
	}
	if opts.Variant == "" {
		opts.Variant = prompts.PromptStandard
	}
	if !prompts.IsValidVariant(string(opts.Variant)) {
		return nil, fmt.Errorf("invalid prompt variant %q", opts.Variant)
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultOptions().Timeout
	}
	if opts.Retries < 0 {
		opts.Retries = 0
	}
	return &Gateway{judge: judge, opts: opts}, nil
}

// JudgeName returns the backend name.
func (g *Gateway) JudgeName() string { return g.judge.Name() }

// Evaluate grades submission pages against the exam materials.
func (g *Gateway) Evaluate(ctx context.Context, mat Materials, pages []model.Asset, ec EvalContext) (*model.GradingResult, error) {
	parts, err := gradingParts(mat, pages)
	if err != nil {
		return nil, err
	}
	system, err := prompts.BuildGradePrompt(g.opts.Variant, prompts.GradeData{
		Instructions:   ec.Instructions,
		ClassInfo:      ec.ClassInfo,
		HasGeneralKey:  mat.GeneralKey != nil,
		KeyedQuestions: mat.keyedLabels(),
		HasReference:   mat.Reference != nil,
		PageCount:      len(pages),
		Language:       g.opts.Language,
	})
	if err != nil {
		return nil, fmt.Errorf("build grade prompt: %w", err)
	}
	return g.run(ctx, Request{
		Kind:        KindGrade,
		System:      system,
		Parts:       parts,
		Temperature: g.opts.Temperature,
	})
}

// EvaluateRemediation grades practice-problem work. The result has the same
// shape as an exam grade but never carries new practice problems.
func (g *Gateway) EvaluateRemediation(ctx context.Context, problems []model.PracticeProblem, pages []model.Asset, ec EvalContext) (*model.GradingResult, error) {
	if len(problems) == 0 {
		return nil, &model.ValidationError{Field: "practiceProblems", MessageID: model.MsgNoPracticeProblems}
	}
	parts, err := remediationParts(pages)
	if err != nil {
		return nil, err
	}
	system, err := prompts.BuildRemediationPrompt(g.opts.Variant, prompts.RemediationData{
		ClassInfo: ec.ClassInfo,
		Problems:  problems,
		PageCount: len(pages),
		Language:  g.opts.Language,
	})
	if err != nil {
		return nil, fmt.Errorf("build remediation prompt: %w", err)
	}
	return g.run(ctx, Request{
		Kind:        KindRemediation,
		System:      system,
		Parts:       parts,
		Temperature: g.opts.Temperature,
	})
}

func (g *Gateway) run(ctx context.Context, req Request) (*model.GradingResult, error) {
	start := time.Now()
	raw, err := g.call(ctx, req)
	if err != nil {
		return nil, err
	}
	slog.Debug("judge response", "judge", g.judge.Name(), "kind", req.Kind, "raw", raw)

	result, err := parseResult(raw, req.Kind)
	if err != nil {
		slog.Warn("unusable judge response", "judge", g.judge.Name(), "kind", req.Kind, "error", err)
		return nil, &model.EvaluationError{Op: "parse " + req.Kind.String() + " response", Err: err}
	}
	slog.Info("evaluation complete",
		"judge", g.judge.Name(),
		"kind", req.Kind,
		"score", result.TotalScore,
		"max_score", result.MaxTotalScore,
		"duration", time.Since(start),
	)
	return result, nil
}

// call invokes the judge under a per-attempt timeout. Transport failures get
// opts.Retries further attempts; configuration errors are returned as is.
func (g *Gateway) call(ctx context.Context, req Request) (string, error) {
	var lastErr error
	for attempt := 0; attempt <= g.opts.Retries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return "", &model.EvaluationError{Op: g.judge.Name() + " call", Err: ctx.Err()}
			case <-time.After(time.Duration(attempt) * g.opts.Backoff):
			}
		}

		callCtx, cancel := context.WithTimeout(ctx, g.opts.Timeout)
		raw, err := g.judge.Judge(callCtx, req)
		cancel()
		if err == nil {
			return raw, nil
		}
		if errors.Is(err, model.ErrNotConfigured) {
			return "", err
		}
		lastErr = err
		slog.Warn("judge call failed", "judge", g.judge.Name(), "attempt", attempt+1, "error", err)
		if ctx.Err() != nil {
			break
		}
	}
	return "", &model.EvaluationError{Op: g.judge.Name() + " call", Err: lastErr}
}
