package model

import (
	"encoding/json"
	"fmt"
	"time"
)

// Status is the lifecycle status of a submission.
type Status string

const (
	StatusPending Status = "PENDING"
	StatusGraded  Status = "GRADED"
	StatusError   Status = "ERROR"
)

// State is the lifecycle state of a submission: Pending, *Graded or Errored.
type State interface {
	Status() Status
	isState()
}

// Pending is a submission that has not been graded yet.
type Pending struct{}

// Graded carries the result of a successful evaluation.
type Graded struct {
	Result GradingResult
}

// Errored records a failed evaluation attempt.
type Errored struct {
	Reason string
}

func (Pending) Status() Status { return StatusPending }
func (*Graded) Status() Status { return StatusGraded }
func (Errored) Status() Status { return StatusError }
func (Pending) isState()       {}
func (*Graded) isState()       {}
func (Errored) isState()       {}

// Student identifies who handed in the work.
type Student struct {
	Name string `json:"studentName"`
	ID   string `json:"studentId"`
}

// Submission is one student's uploaded work with its lifecycle state.
type Submission struct {
	ID          string
	Student     Student
	SubmittedAt time.Time
	Pages       []Asset
	State       State
}

// Status returns the derived lifecycle status.
func (s *Submission) Status() Status {
	if s.State == nil {
		return StatusPending
	}
	return s.State.Status()
}

// Result returns the grading result, or nil unless the submission is graded.
// The returned pointer aliases the stored result.
func (s *Submission) Result() *GradingResult {
	if g, ok := s.State.(*Graded); ok {
		return &g.Result
	}
	return nil
}

// MarkGraded moves the submission to GRADED with the given result.
func (s *Submission) MarkGraded(r GradingResult) {
	s.State = &Graded{Result: r}
}

// MarkErrored moves the submission to ERROR.
func (s *Submission) MarkErrored(reason string) {
	s.State = Errored{Reason: reason}
}

// ErrorReason returns the failure reason of an ERROR submission.
func (s *Submission) ErrorReason() string {
	if e, ok := s.State.(Errored); ok {
		return e.Reason
	}
	return ""
}

type submissionJSON struct {
	ID             string         `json:"id"`
	StudentName    string         `json:"studentName"`
	StudentID      string         `json:"studentId"`
	SubmissionTime time.Time      `json:"submissionTime"`
	Files          []Asset        `json:"files"`
	Status         Status         `json:"status"`
	Result         *GradingResult `json:"result,omitempty"`
	Error          string         `json:"error,omitempty"`
}

// MarshalJSON flattens the state into status/result/error fields.
func (s Submission) MarshalJSON() ([]byte, error) {
	out := submissionJSON{
		ID:             s.ID,
		StudentName:    s.Student.Name,
		StudentID:      s.Student.ID,
		SubmissionTime: s.SubmittedAt,
		Files:          s.Pages,
		Status:         s.Status(),
		Result:         s.Result(),
		Error:          s.ErrorReason(),
	}
	return json.Marshal(out)
}

// UnmarshalJSON rebuilds the tagged state and rejects GRADED without a result.
func (s *Submission) UnmarshalJSON(data []byte) error {
	var in submissionJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}
	state, err := NewState(in.Status, in.Result, in.Error)
	if err != nil {
		return err
	}
	*s = Submission{
		ID:          in.ID,
		Student:     Student{Name: in.StudentName, ID: in.StudentID},
		SubmittedAt: in.SubmissionTime,
		Pages:       in.Files,
		State:       state,
	}
	return nil
}

// NewState builds a state from its flattened form.
func NewState(status Status, result *GradingResult, reason string) (State, error) {
	switch status {
	case StatusPending, "":
		return Pending{}, nil
	case StatusGraded:
		if result == nil {
			return nil, fmt.Errorf("status %s requires a result", status)
		}
		return &Graded{Result: *result}, nil
	case StatusError:
		return Errored{Reason: reason}, nil
	default:
		return nil, fmt.Errorf("unknown submission status %q", status)
	}
}
