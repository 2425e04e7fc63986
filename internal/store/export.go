package store

import (
	"context"
	"fmt"
	"time"

	"github.com/pavelanni/autograde/internal/model"
)

// ExportAll builds an export-ready view of every submission and its result.
func (s *Store) ExportAll(ctx context.Context) (model.ExamExport, error) {
	var export model.ExamExport

	cfg, err := s.CurrentExam(ctx)
	if err != nil {
		return export, fmt.Errorf("get exam: %w", err)
	}
	if cfg != nil {
		export.ExamID = cfg.ID
		export.Title = cfg.Title
	}

	subs, err := s.GetAll(ctx)
	if err != nil {
		return export, fmt.Errorf("list submissions: %w", err)
	}

	export.ExportedAt = time.Now().UTC()
	export.Results = make([]model.StudentResult, 0, len(subs))
	for _, sub := range subs {
		export.Results = append(export.Results, model.StudentResult{
			SubmissionID: sub.ID,
			StudentName:  sub.Student.Name,
			StudentID:    sub.Student.ID,
			SubmittedAt:  sub.SubmittedAt,
			Status:       sub.Status(),
			PageCount:    len(sub.Pages),
			Error:        sub.ErrorReason(),
			Result:       sub.Result(),
		})
	}
	return export, nil
}
