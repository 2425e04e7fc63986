// Package integrity flags near-identical transcriptions across the
// submission pool.
package integrity

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"unicode/utf8"

	"github.com/pavelanni/autograde/internal/model"
)

// WarningMarker starts every warning line the scanner appends to a summary.
// A summary containing it is never warned again.
const WarningMarker = "[INTEGRITY WARNING]"

const (
	DefaultThreshold = 0.85
	DefaultMinLength = 20
)

// Store is the subset of the submission store the scanner needs.
type Store interface {
	GetAll(ctx context.Context) ([]*model.Submission, error)
	Put(ctx context.Context, sub *model.Submission) error
}

// Options tunes the scan.
type Options struct {
	// Threshold is the similarity a pair must strictly exceed to be flagged.
	Threshold float64
	// MinLength is the transcription length in characters at or below which
	// a submission is never compared.
	MinLength int
	// Warning renders the text after WarningMarker for a counterpart name.
	Warning func(counterpart string) string
}

// DefaultOptions returns the standard scan settings.
func DefaultOptions() Options {
	return Options{
		Threshold: DefaultThreshold,
		MinLength: DefaultMinLength,
		Warning:   defaultWarning,
	}
}

func defaultWarning(counterpart string) string {
	return fmt.Sprintf("This work is nearly identical to the submission of %s.", counterpart)
}

// Report summarizes one scan.
type Report struct {
	Pairs     int      `json:"pairs"`
	Flagged   []string `json:"flagged"`
	Persisted int      `json:"persisted"`
}

// Scanner recomputes plagiarism flags over every graded submission.
type Scanner struct {
	store Store
	opts  Options
}

// Validate checks that the threshold is a similarity and the length is not
// negative. Zero is a valid value for both.
func (o Options) Validate() error {
	if o.Threshold < 0 || o.Threshold > 1 {
		return fmt.Errorf("scan threshold %v is outside [0, 1]", o.Threshold)
	}
	if o.MinLength < 0 {
		return fmt.Errorf("scan min length %d is negative", o.MinLength)
	}
	return nil
}

// New creates a scanner. Threshold and MinLength are used as given; start
// from DefaultOptions for the standard values. A nil Warning uses English.
func New(st Store, opts Options) *Scanner {
	if opts.Warning == nil {
		opts.Warning = defaultWarning
	}
	return &Scanner{store: st, opts: opts}
}

type candidate struct {
	sub    *model.Submission
	result *model.GradingResult
	tokens map[string]struct{}
}

type match struct {
	other      int
	similarity float64
}

type snapshot struct {
	summary  string
	analysis *model.IntegrityAnalysis
}

// Scan resets all plagiarism flags, flags every pair above the threshold
// symmetrically, and persists each submission whose flags or summary changed.
// Each flagged submission names its most similar counterpart, ties going to
// the smaller submission id.
func (s *Scanner) Scan(ctx context.Context) (Report, error) {
	report := Report{Flagged: []string{}}
	if err := s.opts.Validate(); err != nil {
		return report, err
	}

	subs, err := s.store.GetAll(ctx)
	if err != nil {
		return report, fmt.Errorf("load submissions: %w", err)
	}

	var graded []*model.Submission
	before := make(map[string]snapshot)
	for _, sub := range subs {
		r := sub.Result()
		if r == nil {
			continue
		}
		graded = append(graded, sub)
		snap := snapshot{summary: r.Summary}
		if r.IntegrityAnalysis != nil {
			a := *r.IntegrityAnalysis
			snap.analysis = &a
			r.IntegrityAnalysis.ClearMatch()
		}
		before[sub.ID] = snap
	}

	var cands []candidate
	for _, sub := range graded {
		r := sub.Result()
		if utf8.RuneCountInString(r.Transcription) <= s.opts.MinLength {
			continue
		}
		cands = append(cands, candidate{sub: sub, result: r, tokens: tokenSet(r.Transcription)})
	}

	best := make(map[int]match)
	consider := func(i, j int, sim float64) {
		cur, ok := best[i]
		if !ok || sim > cur.similarity ||
			(sim == cur.similarity && cands[j].sub.ID < cands[cur.other].sub.ID) {
			best[i] = match{other: j, similarity: sim}
		}
	}
	for i := 0; i < len(cands); i++ {
		for j := i + 1; j < len(cands); j++ {
			sim, ok := jaccard(cands[i].tokens, cands[j].tokens)
			if !ok || sim <= s.opts.Threshold {
				continue
			}
			report.Pairs++
			consider(i, j, sim)
			consider(j, i, sim)
			slog.Debug("similar submissions",
				"a", cands[i].sub.ID, "b", cands[j].sub.ID, "similarity", sim)
		}
	}

	for i, c := range cands {
		m, ok := best[i]
		if !ok {
			continue
		}
		other := cands[m.other].sub
		s.flag(c.result, other)
		report.Flagged = append(report.Flagged, c.sub.ID)
	}

	for _, sub := range graded {
		if !changed(before[sub.ID], sub.Result()) {
			continue
		}
		if err := s.store.Put(ctx, sub); err != nil {
			return report, fmt.Errorf("save submission %s: %w", sub.ID, err)
		}
		report.Persisted++
	}

	slog.Info("integrity scan complete",
		"submissions", len(graded),
		"compared", len(cands),
		"pairs", report.Pairs,
		"flagged", len(report.Flagged),
		"persisted", report.Persisted,
	)
	return report, nil
}

func (s *Scanner) flag(r *model.GradingResult, other *model.Submission) {
	if r.IntegrityAnalysis == nil {
		r.IntegrityAnalysis = &model.IntegrityAnalysis{
			IsSuspicious:   true,
			SuspicionLevel: model.SuspicionHigh,
			Reasons:        []string{},
		}
	}
	a := r.IntegrityAnalysis
	a.IsSuspicious = true
	if !a.SuspicionLevel.AtLeast(model.SuspicionHigh) {
		a.SuspicionLevel = model.SuspicionHigh
	}
	a.PlagiarismDetected = true
	a.MatchedStudentID = other.Student.Name
	a.MatchedSubmissionID = other.ID

	if !r.HasSummaryMarker(WarningMarker) {
		r.AppendSummary("\n\n" + WarningMarker + " " + s.opts.Warning(other.Student.Name))
	}
}

func changed(prev snapshot, r *model.GradingResult) bool {
	if prev.summary != r.Summary {
		return true
	}
	a, b := prev.analysis, r.IntegrityAnalysis
	if a == nil || b == nil {
		return a != b
	}
	return a.IsSuspicious != b.IsSuspicious ||
		a.SuspicionLevel != b.SuspicionLevel ||
		a.PlagiarismDetected != b.PlagiarismDetected ||
		a.MatchedStudentID != b.MatchedStudentID ||
		a.MatchedSubmissionID != b.MatchedSubmissionID
}

func tokenSet(s string) map[string]struct{} {
	fields := strings.Fields(strings.ToLower(s))
	set := make(map[string]struct{}, len(fields))
	for _, f := range fields {
		set[f] = struct{}{}
	}
	return set
}

func jaccard(a, b map[string]struct{}) (float64, bool) {
	inter := 0
	for t := range a {
		if _, ok := b[t]; ok {
			inter++
		}
	}
	union := len(a) + len(b) - inter
	if union == 0 {
		return 0, false
	}
	return float64(inter) / float64(union), true
}

// Similarity returns the Jaccard index of the lower-cased whitespace token
// sets of a and b. ok is false when both are empty.
func Similarity(a, b string) (sim float64, ok bool) {
	return jaccard(tokenSet(a), tokenSet(b))
}
