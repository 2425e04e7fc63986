package llm

import (
	"errors"
	"fmt"

	"github.com/pavelanni/autograde/internal/model"
)

// Role markers that label each asset in the judge input.
const (
	MarkerGeneralKey   = "--- GENERAL ANSWER KEY ---"
	MarkerReference    = "--- REFERENCE DOCUMENT ---"
	MarkerStudentWork  = "--- STUDENT WORK ---"
	MarkerPracticeWork = "--- STUDENT PRACTICE WORK ---"
)

// Fallback media types when an asset declares none and sniffing fails.
const (
	keyFallbackType  = "application/pdf"
	workFallbackType = "image/jpeg"
)

var errEmptyAsset = errors.New("asset is empty")

// MarkerQuestionKey labels the answer key of one question.
func MarkerQuestionKey(label string) string {
	return "--- ANSWER KEY: " + label + " ---"
}

// PageMarker precedes each page of student work.
func PageMarker(i, n int) string {
	return fmt.Sprintf("Page %d of %d", i, n)
}

// KeyedAsset is the answer key of a single labelled question.
type KeyedAsset struct {
	Label string
	Asset model.Asset
}

// Materials is the grading reference sent with every exam evaluation.
type Materials struct {
	GeneralKey   *model.Asset
	QuestionKeys []KeyedAsset
	Reference    *model.Asset
}

// EvalContext is the free text accompanying an evaluation.
type EvalContext struct {
	Instructions string
	ClassInfo    string
}

// MaterialsFromExam collects the keyed assets of an exam in question order.
func MaterialsFromExam(cfg *model.ExamConfiguration) Materials {
	if cfg == nil {
		return Materials{}
	}
	mat := Materials{GeneralKey: cfg.GeneralAnswerKey, Reference: cfg.Reference}
	for _, q := range cfg.Questions {
		if q.AnswerKey == nil {
			continue
		}
		label := q.Label
		if label == "" {
			label = q.ID
		}
		mat.QuestionKeys = append(mat.QuestionKeys, KeyedAsset{Label: label, Asset: *q.AnswerKey})
	}
	return mat
}

func (m Materials) keyedLabels() []string {
	labels := make([]string, 0, len(m.QuestionKeys))
	for _, k := range m.QuestionKeys {
		labels = append(labels, k.Label)
	}
	return labels
}

func gradingParts(mat Materials, pages []model.Asset) ([]Part, error) {
	if len(pages) == 0 {
		return nil, &model.ValidationError{Field: "pages", MessageID: model.MsgPagesRequired}
	}
	var parts []Part
	if mat.GeneralKey != nil {
		blob, err := blobPart(*mat.GeneralKey, keyFallbackType, "generalAnswerKey")
		if err != nil {
			return nil, err
		}
		parts = append(parts, Part{Text: MarkerGeneralKey}, blob)
	}
	for _, k := range mat.QuestionKeys {
		blob, err := blobPart(k.Asset, keyFallbackType, "answerKey "+k.Label)
		if err != nil {
			return nil, err
		}
		parts = append(parts, Part{Text: MarkerQuestionKey(k.Label)}, blob)
	}
	if mat.Reference != nil {
		blob, err := blobPart(*mat.Reference, keyFallbackType, "referenceFile")
		if err != nil {
			return nil, err
		}
		parts = append(parts, Part{Text: MarkerReference}, blob)
	}
	work, err := pageParts(MarkerStudentWork, pages)
	if err != nil {
		return nil, err
	}
	return append(parts, work...), nil
}

func remediationParts(pages []model.Asset) ([]Part, error) {
	if len(pages) == 0 {
		return nil, &model.ValidationError{Field: "pages", MessageID: model.MsgPagesRequired}
	}
	return pageParts(MarkerPracticeWork, pages)
}

func pageParts(marker string, pages []model.Asset) ([]Part, error) {
	parts := make([]Part, 0, 1+2*len(pages))
	parts = append(parts, Part{Text: marker})
	for i, p := range pages {
		blob, err := blobPart(p, workFallbackType, fmt.Sprintf("pages[%d]", i))
		if err != nil {
			return nil, err
		}
		parts = append(parts, Part{Text: PageMarker(i+1, len(pages))}, blob)
	}
	return parts, nil
}

func blobPart(a model.Asset, fallback, field string) (Part, error) {
	data, err := a.Bytes()
	if err != nil {
		return Part{}, &model.ValidationError{Field: field, MessageID: model.MsgInvalidPayload, Err: err}
	}
	if len(data) == 0 {
		return Part{}, &model.ValidationError{Field: field, MessageID: model.MsgInvalidPayload, Err: errEmptyAsset}
	}
	return Part{Data: data, MIMEType: a.ContentType(fallback)}, nil
}
