package model

import "time"

// ExamExport is the top-level JSON structure for result export.
type ExamExport struct {
	ExamID     string          `json:"exam_id"`
	Title      string          `json:"title"`
	ExportedAt time.Time       `json:"exported_at"`
	Results    []StudentResult `json:"results"`
}

// StudentResult holds one submission's data for export.
type StudentResult struct {
	SubmissionID string         `json:"submission_id"`
	StudentName  string         `json:"student_name"`
	StudentID    string         `json:"student_id"`
	SubmittedAt  time.Time      `json:"submitted_at"`
	Status       Status         `json:"status"`
	PageCount    int            `json:"page_count"`
	Error        string         `json:"error,omitempty"`
	Result       *GradingResult `json:"result,omitempty"`
}
