package model

import (
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"
)

// EncodingBase64 is the default asset transfer encoding.
const EncodingBase64 = "base64"

// Asset is an opaque binary payload: a page of student work or answer-key material.
type Asset struct {
	Name      string `json:"name,omitempty"`
	Data      string `json:"data" validate:"required"`
	Encoding  string `json:"encoding,omitempty"`
	MediaType string `json:"mediaType,omitempty"`
}

// Bytes decodes the payload. A data URL prefix is accepted and stripped.
func (a Asset) Bytes() ([]byte, error) {
	payload, _ := splitDataURL(a.Data)
	switch strings.ToLower(a.Encoding) {
	case "", EncodingBase64:
	default:
		return nil, fmt.Errorf("unsupported asset encoding %q", a.Encoding)
	}
	if b, err := base64.StdEncoding.DecodeString(payload); err == nil {
		return b, nil
	}
	b, err := base64.URLEncoding.DecodeString(payload)
	if err != nil {
		return nil, fmt.Errorf("decode asset %q: %w", a.Name, err)
	}
	return b, nil
}

// ContentType resolves the media type: declared, then data URL hint, then
// sniffed from content, then fallback.
func (a Asset) ContentType(fallback string) string {
	if mt := strings.TrimSpace(a.MediaType); mt != "" {
		return mt
	}
	if _, hint := splitDataURL(a.Data); hint != "" {
		return hint
	}
	if b, err := a.Bytes(); err == nil && len(b) > 0 {
		if m := mimetype.Detect(b); m.String() != "application/octet-stream" && !m.Is("text/plain") {
			return m.String()
		}
	}
	return fallback
}

// DataURL returns the payload as a base64 data URL.
func (a Asset) DataURL(fallback string) string {
	payload, _ := splitDataURL(a.Data)
	return "data:" + a.ContentType(fallback) + ";base64," + payload
}

func splitDataURL(s string) (payload, mediaType string) {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "data:") {
		return s, ""
	}
	idx := strings.IndexByte(s, ',')
	if idx < 0 {
		return s, ""
	}
	meta := s[len("data:"):idx]
	if semi := strings.IndexByte(meta, ';'); semi >= 0 {
		meta = meta[:semi]
	}
	return s[idx+1:], meta
}

// QuestionSpec is one question of an exam, optionally with its own answer key.
type QuestionSpec struct {
	ID        string `json:"id"`
	Label     string `json:"label"`
	AnswerKey *Asset `json:"file,omitempty"`
}

// ExamConfiguration is the operator-defined exam the submissions are graded against.
type ExamConfiguration struct {
	ID               string         `json:"id"`
	Title            string         `json:"title"`
	Instructions     string         `json:"instructions"`
	Questions        []QuestionSpec `json:"questions"`
	GeneralAnswerKey *Asset         `json:"generalAnswerKey,omitempty"`
	Reference        *Asset         `json:"referenceFile,omitempty"`
	CreatedAt        time.Time      `json:"createdAt"`
}

// Usable reports whether the exam has a general key or at least one per-question key.
func (c *ExamConfiguration) Usable() bool {
	if c == nil {
		return false
	}
	if c.GeneralAnswerKey != nil {
		return true
	}
	for _, q := range c.Questions {
		if q.AnswerKey != nil {
			return true
		}
	}
	return false
}

var errExamTitle = errors.New("exam title is required")

// Validate checks a configuration before it is saved.
func (c *ExamConfiguration) Validate() error {
	if strings.TrimSpace(c.Title) == "" {
		return &ValidationError{Field: "title", MessageID: MsgExamTitleRequired, Err: errExamTitle}
	}
	if !c.Usable() {
		return &ValidationError{Field: "answerKey", MessageID: MsgNoAnswerKey}
	}
	return nil
}
