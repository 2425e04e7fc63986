package integrity

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/pavelanni/autograde/internal/model"
	"github.com/pavelanni/autograde/internal/store"
)

func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.New(":memory:")
	if err != nil {
		t.Fatalf("newTestStore: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// words returns n distinct tokens sharing a prefix.
func words(prefix string, n int) []string {
	out := make([]string, n)
	for i := range out {
		out[i] = fmt.Sprintf("%s%d", prefix, i)
	}
	return out
}

func text(parts ...[]string) string {
	var all []string
	for _, p := range parts {
		all = append(all, p...)
	}
	return strings.Join(all, " ")
}

func putGraded(t *testing.T, st *store.Store, id, name, transcription string, analysis *model.IntegrityAnalysis) {
	t.Helper()
	sub := &model.Submission{
		ID:          id,
		Student:     model.Student{Name: name, ID: "10A1"},
		SubmittedAt: time.Now(),
	}
	sub.MarkGraded(model.GradingResult{
		TotalScore:        5,
		MaxTotalScore:     10,
		Summary:           "Summary of " + name,
		LetterGrade:       "C",
		Corrections:       []model.CorrectionPoint{},
		Transcription:     transcription,
		IntegrityAnalysis: analysis,
	})
	if err := st.Put(context.Background(), sub); err != nil {
		t.Fatalf("Put: %v", err)
	}
}

func noneAnalysis() *model.IntegrityAnalysis {
	return &model.IntegrityAnalysis{SuspicionLevel: model.SuspicionNone, Reasons: []string{}}
}

func mustGet(t *testing.T, st *store.Store, id string) *model.GradingResult {
	t.Helper()
	sub, err := st.Get(context.Background(), id)
	if err != nil {
		t.Fatalf("Get(%s): %v", id, err)
	}
	return sub.Result()
}

func TestSimilarity(t *testing.T) {
	tests := []struct {
		name   string
		a, b   string
		want   float64
		wantOK bool
	}{
		{"identical", "x = 2 y = 3", "x = 2 y = 3", 1, true},
		{"case and spacing", "Solve  X\tnow", "solve x\nNOW", 1, true},
		{"disjoint", "a b c", "d e f", 0, true},
		{"half", "a b", "a c", 1.0 / 3.0, true},
		{"both empty", "", "   ", 0, false},
		{"one empty", "a", "", 0, true},
		{"threshold", text(words("c", 17), words("a", 2)), text(words("c", 17), words("b", 1)), 0.85, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := Similarity(tt.a, tt.b)
			if ok != tt.wantOK {
				t.Fatalf("ok = %v, want %v", ok, tt.wantOK)
			}
			if got != tt.want {
				t.Errorf("Similarity() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestScanThreshold(t *testing.T) {
	tests := []struct {
		name    string
		a, b    string
		flagged bool
	}{
		// 17 shared of 20 distinct tokens: exactly 0.85.
		{"at threshold", text(words("c", 17), words("a", 2)), text(words("c", 17), words("b", 1)), false},
		// 43 shared of 50 distinct tokens: 0.86.
		{"above threshold", text(words("c", 43), words("a", 4)), text(words("c", 43), words("b", 3)), true},
		{"identical", text(words("c", 30)), text(words("c", 30)), true},
		{"short identical", "abcdefghij abcdefghi", "abcdefghij abcdefghi", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			st := newTestStore(t)
			putGraded(t, st, "a", "An", tt.a, noneAnalysis())
			putGraded(t, st, "b", "Binh", tt.b, noneAnalysis())

			report, err := New(st, DefaultOptions()).Scan(context.Background())
			if err != nil {
				t.Fatalf("Scan: %v", err)
			}
			for _, id := range []string{"a", "b"} {
				got := mustGet(t, st, id).IntegrityAnalysis.PlagiarismDetected
				if got != tt.flagged {
					t.Errorf("%s flagged = %v, want %v", id, got, tt.flagged)
				}
			}
			wantPairs := 0
			if tt.flagged {
				wantPairs = 1
			}
			if report.Pairs != wantPairs {
				t.Errorf("Pairs = %d, want %d", report.Pairs, wantPairs)
			}
		})
	}
}

func TestScanSymmetricAndRepeatable(t *testing.T) {
	tests := []struct {
		name   string
		shared string
		other  string
	}{
		{"generated", text(words("step", 25)), text(words("other", 25))},
		{"sentence", "the answer is forty two plus one", "we factor the quadratic and get x equals three"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			scanRepeatedly(t, tt.shared, tt.other)
		})
	}
}

func scanRepeatedly(t *testing.T, shared, other string) {
	t.Helper()
	st := newTestStore(t)
	putGraded(t, st, "a", "An", shared, noneAnalysis())
	putGraded(t, st, "b", "Binh", shared, nil)
	putGraded(t, st, "c", "Chi", other, noneAnalysis())

	sc := New(st, DefaultOptions())
	ctx := context.Background()

	for round := 1; round <= 3; round++ {
		report, err := sc.Scan(ctx)
		if err != nil {
			t.Fatalf("Scan round %d: %v", round, err)
		}
		if report.Pairs != 1 || len(report.Flagged) != 2 {
			t.Errorf("round %d: pairs=%d flagged=%v", round, report.Pairs, report.Flagged)
		}
		wantPersisted := 0
		if round == 1 {
			wantPersisted = 2
		}
		if report.Persisted != wantPersisted {
			t.Errorf("round %d: persisted = %d, want %d", round, report.Persisted, wantPersisted)
		}

		a, b, c := mustGet(t, st, "a"), mustGet(t, st, "b"), mustGet(t, st, "c")
		for _, r := range []*model.GradingResult{a, b} {
			if n := strings.Count(r.Summary, WarningMarker); n != 1 {
				t.Errorf("round %d: marker count = %d, want 1", round, n)
			}
			ia := r.IntegrityAnalysis
			if !ia.PlagiarismDetected || !ia.IsSuspicious || ia.SuspicionLevel != model.SuspicionHigh {
				t.Errorf("round %d: unexpected analysis %+v", round, ia)
			}
			if err := r.Validate(); err != nil {
				t.Errorf("round %d: Validate: %v", round, err)
			}
		}
		if a.IntegrityAnalysis.MatchedStudentID != "Binh" || a.IntegrityAnalysis.MatchedSubmissionID != "b" {
			t.Errorf("a matched %+v", a.IntegrityAnalysis)
		}
		if b.IntegrityAnalysis.MatchedStudentID != "An" || b.IntegrityAnalysis.MatchedSubmissionID != "a" {
			t.Errorf("b matched %+v", b.IntegrityAnalysis)
		}
		if !strings.Contains(a.Summary, "Binh") || !strings.Contains(b.Summary, "An") {
			t.Errorf("warnings should name the counterpart: %q / %q", a.Summary, b.Summary)
		}
		if c.IntegrityAnalysis.PlagiarismDetected || strings.Contains(c.Summary, WarningMarker) {
			t.Errorf("c should not be flagged: %+v", c)
		}
	}
}

func TestScanResetsStaleFlags(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	shared := text(words("step", 25))
	putGraded(t, st, "a", "An", shared, noneAnalysis())
	putGraded(t, st, "b", "Binh", shared, noneAnalysis())

	sc := New(st, DefaultOptions())
	if _, err := sc.Scan(ctx); err != nil {
		t.Fatalf("Scan: %v", err)
	}

	// Binh resubmits different work under the same id.
	sub, _ := st.Get(ctx, "b")
	sub.Result().Transcription = text(words("fresh", 25))
	if err := st.Put(ctx, sub); err != nil {
		t.Fatalf("Put: %v", err)
	}

	report, err := sc.Scan(ctx)
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if report.Pairs != 0 || len(report.Flagged) != 0 {
		t.Errorf("expected no matches, got %+v", report)
	}
	if report.Persisted != 2 {
		t.Errorf("Persisted = %d, want 2", report.Persisted)
	}
	for _, id := range []string{"a", "b"} {
		ia := mustGet(t, st, id).IntegrityAnalysis
		if ia.PlagiarismDetected || ia.MatchedStudentID != "" || ia.MatchedSubmissionID != "" {
			t.Errorf("%s should be reset, got %+v", id, ia)
		}
	}
	// Summaries are append-only; the earlier warning stays.
	if !strings.Contains(mustGet(t, st, "a").Summary, WarningMarker) {
		t.Error("earlier warning should remain in the summary")
	}
}

func TestScanBestCounterpart(t *testing.T) {
	st := newTestStore(t)
	shared := text(words("step", 30))
	putGraded(t, st, "c", "Chi", shared, noneAnalysis())
	putGraded(t, st, "b", "Binh", shared, noneAnalysis())
	putGraded(t, st, "a", "An", shared, noneAnalysis())
	// d is closer to a than to anyone else: 30 shared of 31.
	putGraded(t, st, "d", "Dung", text(words("step", 30), []string{"extra"}), noneAnalysis())

	report, err := New(st, DefaultOptions()).Scan(context.Background())
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if report.Pairs != 6 {
		t.Errorf("Pairs = %d, want 6", report.Pairs)
	}
	want := map[string]string{"a": "b", "b": "a", "c": "a", "d": "a"}
	for id, other := range want {
		got := mustGet(t, st, id).IntegrityAnalysis.MatchedSubmissionID
		if got != other {
			t.Errorf("%s matched %q, want %q", id, got, other)
		}
	}
}

func TestScanEscalatesAndSkipsUngraded(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	shared := text(words("step", 25))
	putGraded(t, st, "a", "An", shared, &model.IntegrityAnalysis{
		SuspicionLevel: model.SuspicionLow,
		Reasons:        []string{"uneven handwriting"},
	})
	putGraded(t, st, "b", "Binh", shared, noneAnalysis())

	failed := &model.Submission{ID: "e", Student: model.Student{Name: "Em", ID: "10A1"}, SubmittedAt: time.Now()}
	failed.MarkErrored("timeout")
	if err := st.Put(ctx, failed); err != nil {
		t.Fatalf("Put: %v", err)
	}

	opts := DefaultOptions()
	opts.Warning = func(name string) string { return "copied from " + name }
	if _, err := New(st, opts).Scan(ctx); err != nil {
		t.Fatalf("Scan: %v", err)
	}

	a := mustGet(t, st, "a")
	if !a.IntegrityAnalysis.IsSuspicious || a.IntegrityAnalysis.SuspicionLevel != model.SuspicionHigh {
		t.Errorf("expected escalation to HIGH, got %+v", a.IntegrityAnalysis)
	}
	if len(a.IntegrityAnalysis.Reasons) != 1 {
		t.Errorf("reasons should be kept, got %v", a.IntegrityAnalysis.Reasons)
	}
	if !strings.HasSuffix(a.Summary, "\n\n"+WarningMarker+" copied from Binh") {
		t.Errorf("unexpected summary %q", a.Summary)
	}

	e, _ := st.Get(ctx, "e")
	if e.Status() != model.StatusError {
		t.Errorf("errored submission should be untouched, got %s", e.Status())
	}
}

func TestNewKeepsExplicitZero(t *testing.T) {
	sc := New(nil, Options{})
	if sc.opts.Threshold != 0 || sc.opts.MinLength != 0 || sc.opts.Warning == nil {
		t.Errorf("unexpected options %+v", sc.opts)
	}

	st := newTestStore(t)
	putGraded(t, st, "a", "An", "x = 2", noneAnalysis())
	putGraded(t, st, "b", "Binh", "x = 2 so y = 4", noneAnalysis())

	report, err := New(st, Options{Threshold: 0, MinLength: 0}).Scan(context.Background())
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if report.Pairs != 1 || len(report.Flagged) != 2 {
		t.Errorf("zero threshold and length should compare short texts, got %+v", report)
	}
}

func TestOptionsValidate(t *testing.T) {
	tests := []struct {
		name    string
		opts    Options
		wantErr bool
	}{
		{"defaults", DefaultOptions(), false},
		{"zero", Options{}, false},
		{"threshold one", Options{Threshold: 1}, false},
		{"negative threshold", Options{Threshold: -0.1}, true},
		{"threshold above one", Options{Threshold: 1.5}, true},
		{"negative length", Options{MinLength: -1}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.opts.Validate(); (err != nil) != tt.wantErr {
				t.Errorf("Validate() = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}

	st := newTestStore(t)
	if _, err := New(st, Options{Threshold: 2}).Scan(context.Background()); err == nil {
		t.Error("Scan should reject an out-of-range threshold")
	}
}
