package model

import (
	"errors"
	"fmt"
)

// Translation IDs for validation failures shown to users.
const (
	MsgStudentNameRequired = "ErrStudentNameRequired"
	MsgStudentIDRequired   = "ErrStudentIDRequired"
	MsgPagesRequired       = "ErrPagesRequired"
	MsgNoExamConfigured    = "ErrNoExamConfigured"
	MsgNoQuestions         = "ErrNoQuestions"
	MsgNoAnswerKey         = "ErrNoAnswerKey"
	MsgNoPracticeProblems  = "ErrNoPracticeProblems"
	MsgExamTitleRequired   = "ErrExamTitleRequired"
	MsgInvalidPayload      = "ErrInvalidPayload"
)

// ErrNotConfigured means the evaluation service has no credentials or setup.
// It is fatal and never retried.
var ErrNotConfigured = errors.New("evaluation service is not configured")

// ValidationError is a caller-recoverable input problem found before any
// network call.
type ValidationError struct {
	Field     string
	MessageID string
	Err       error
}

func (e *ValidationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("invalid %s: %v", e.Field, e.Err)
	}
	return "invalid " + e.Field
}

func (e *ValidationError) Unwrap() error { return e.Err }

// EvaluationError is a failed evaluation call: transport failure or an
// unusable response.
type EvaluationError struct {
	Op  string
	Err error
}

func (e *EvaluationError) Error() string {
	return e.Op + ": " + e.Err.Error()
}

func (e *EvaluationError) Unwrap() error { return e.Err }

// IsValidation reports whether err is a ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// IsEvaluation reports whether err is an EvaluationError.
func IsEvaluation(err error) bool {
	var ee *EvaluationError
	return errors.As(err, &ee)
}
