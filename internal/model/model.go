package model

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// SuspicionLevel grades how suspicious a submission looks.
type SuspicionLevel string

const (
	SuspicionNone   SuspicionLevel = "NONE"
	SuspicionLow    SuspicionLevel = "LOW"
	SuspicionMedium SuspicionLevel = "MEDIUM"
	SuspicionHigh   SuspicionLevel = "HIGH"
)

func (l SuspicionLevel) rank() int {
	switch l {
	case SuspicionLow:
		return 1
	case SuspicionMedium:
		return 2
	case SuspicionHigh:
		return 3
	default:
		return 0
	}
}

// AtLeast reports whether l is at or above other.
func (l SuspicionLevel) AtLeast(other SuspicionLevel) bool {
	return l.rank() >= other.rank()
}

// CorrectionPoint is the grading detail for a single question.
type CorrectionPoint struct {
	QuestionID    string  `json:"questionId"`
	StudentAnswer string  `json:"studentAnswer"`
	CorrectAnswer string  `json:"correctAnswer"`
	IsCorrect     bool    `json:"isCorrect"`
	Explanation   string  `json:"explanation"`
	PointsAwarded float64 `json:"pointsAwarded" validate:"gte=0,ltefield=MaxPoints"`
	MaxPoints     float64 `json:"maxPoints" validate:"gte=0"`
}

// IntegrityAnalysis holds suspicion metadata for a result.
// PlagiarismDetected and the Matched* fields are owned by the integrity scanner.
type IntegrityAnalysis struct {
	IsSuspicious   bool           `json:"isSuspicious"`
	SuspicionLevel SuspicionLevel `json:"suspicionLevel" validate:"oneof=NONE LOW MEDIUM HIGH"`
	Reasons        []string       `json:"reasons"`

	PlagiarismDetected bool `json:"plagiarismDetected,omitempty"`
	// MatchedStudentID carries the counterpart's display name.
	MatchedStudentID    string `json:"matchedStudentId,omitempty"`
	MatchedSubmissionID string `json:"matchedSubmissionId,omitempty"`
}

// ClearMatch drops the scanner-owned fields.
func (a *IntegrityAnalysis) ClearMatch() {
	a.PlagiarismDetected = false
	a.MatchedStudentID = ""
	a.MatchedSubmissionID = ""
}

// PracticeProblem is a remedial question generated alongside a result.
type PracticeProblem struct {
	ID      string `json:"id"`
	Content string `json:"content"`
}

// MaxPracticeProblems caps the remediation set attached to a result.
const MaxPracticeProblems = 3

// GradingResult is the structured output of one evaluation call.
type GradingResult struct {
	TotalScore        float64            `json:"totalScore" validate:"gte=0,ltefield=MaxTotalScore"`
	MaxTotalScore     float64            `json:"maxTotalScore" validate:"gte=0"`
	Summary           string             `json:"summary"`
	LetterGrade       string             `json:"letterGrade"`
	Corrections       []CorrectionPoint  `json:"corrections" validate:"dive"`
	Transcription     string             `json:"studentHandwritingTranscription"`
	IntegrityAnalysis *IntegrityAnalysis `json:"integrityAnalysis,omitempty"`

	TextbookKnowledge string            `json:"textbookKnowledge,omitempty"`
	SolutionMethod    string            `json:"solutionMethod,omitempty"`
	PracticeProblems  []PracticeProblem `json:"practiceProblems,omitempty" validate:"max=3"`
}

// Validate checks the score and integrity invariants.
func (r *GradingResult) Validate() error {
	if err := validate.Struct(r); err != nil {
		return fmt.Errorf("grading result: %w", err)
	}
	if a := r.IntegrityAnalysis; a != nil && a.PlagiarismDetected {
		if !a.IsSuspicious || !a.SuspicionLevel.AtLeast(SuspicionHigh) {
			return errors.New("grading result: plagiarism flag requires a suspicious HIGH analysis")
		}
	}
	return nil
}

// AppendSummary adds a line to the summary. The summary is never rewritten.
func (r *GradingResult) AppendSummary(line string) {
	r.Summary += line
}

// HasSummaryMarker reports whether marker already appears in the summary.
func (r *GradingResult) HasSummaryMarker(marker string) bool {
	return strings.Contains(r.Summary, marker)
}

// HasPracticeProblems reports whether a remediation round is available.
func (r *GradingResult) HasPracticeProblems() bool {
	return r != nil && len(r.PracticeProblems) > 0
}
