package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"

	"github.com/pavelanni/autograde/internal/model"
)

// DefaultGeminiModel is the Gemini model used when none is configured.
const DefaultGeminiModel = "gemini-2.5-pro"

// Gemini judges with the Google Gemini API.
type Gemini struct {
	APIKey string
	Model  string
}

// NewGemini creates a Gemini judge.
func NewGemini(apiKey, modelName string) *Gemini {
	return &Gemini{
		APIKey: strings.TrimSpace(apiKey),
		Model:  strings.TrimSpace(modelName),
	}
}

func (g *Gemini) Name() string { return "gemini" }

// Judge sends the request as one multi-part prompt with a response schema.
func (g *Gemini) Judge(ctx context.Context, req Request) (string, error) {
	if g.APIKey == "" {
		return "", fmt.Errorf("%w: GEMINI_API_KEY is empty", model.ErrNotConfigured)
	}
	if g.Model == "" {
		return "", fmt.Errorf("%w: gemini model is empty", model.ErrNotConfigured)
	}
	cl, err := genai.NewClient(ctx, option.WithAPIKey(g.APIKey))
	if err != nil {
		return "", fmt.Errorf("gemini client: %w", err)
	}
	defer cl.Close()

	m := cl.GenerativeModel(g.Model)
	if m == nil {
		return "", errors.New("gemini: model is nil")
	}
	m.GenerationConfig = genai.GenerationConfig{
		Temperature:      ptrFloat32(req.Temperature),
		ResponseMIMEType: "application/json",
		ResponseSchema:   resultSchema(req.Kind),
	}
	m.SystemInstruction = &genai.Content{
		Parts: []genai.Part{genai.Text(req.System)},
	}

	parts := make([]genai.Part, 0, len(req.Parts))
	for _, p := range req.Parts {
		if p.IsBlob() {
			parts = append(parts, &genai.Blob{MIMEType: p.MIMEType, Data: p.Data})
			continue
		}
		parts = append(parts, genai.Text(p.Text))
	}

	resp, err := m.GenerateContent(ctx, parts...)
	if err != nil {
		return "", fmt.Errorf("gemini %s: %w", req.Kind, err)
	}
	txt := firstText(resp)
	if strings.TrimSpace(txt) == "" {
		return "", fmt.Errorf("gemini %s: empty response", req.Kind)
	}
	return txt, nil
}

func firstText(resp *genai.GenerateContentResponse) string {
	if resp == nil || len(resp.Candidates) == 0 {
		return ""
	}
	for _, c := range resp.Candidates {
		if c.Content == nil {
			continue
		}
		for _, p := range c.Content.Parts {
			if t, ok := p.(genai.Text); ok {
				return string(t)
			}
		}
	}
	return ""
}

func ptrFloat32(v float32) *float32 { return &v }

// resultSchema mirrors model.GradingResult. Remediation responses carry no
// practice problems.
func resultSchema(kind Kind) *genai.Schema {
	str := &genai.Schema{Type: genai.TypeString}
	num := &genai.Schema{Type: genai.TypeNumber}
	boolean := &genai.Schema{Type: genai.TypeBoolean}

	props := map[string]*genai.Schema{
		"totalScore":                      num,
		"maxTotalScore":                   num,
		"summary":                         str,
		"letterGrade":                     str,
		"studentHandwritingTranscription": str,
		"textbookKnowledge":               {Type: genai.TypeString, Description: "Core textbook knowledge the exam relies on."},
		"solutionMethod":                  {Type: genai.TypeString, Description: "Standard solution method, step by step."},
		"integrityAnalysis": {
			Type: genai.TypeObject,
			Properties: map[string]*genai.Schema{
				"isSuspicious":   boolean,
				"suspicionLevel": {Type: genai.TypeString, Enum: []string{"NONE", "LOW", "MEDIUM", "HIGH"}},
				"reasons":        {Type: genai.TypeArray, Items: str},
			},
			Required: []string{"isSuspicious", "suspicionLevel", "reasons"},
		},
		"corrections": {
			Type: genai.TypeArray,
			Items: &genai.Schema{
				Type: genai.TypeObject,
				Properties: map[string]*genai.Schema{
					"questionId":    str,
					"studentAnswer": str,
					"correctAnswer": str,
					"isCorrect":     boolean,
					"explanation":   str,
					"pointsAwarded": num,
					"maxPoints":     num,
				},
				Required: []string{"questionId", "studentAnswer", "correctAnswer", "isCorrect", "explanation", "pointsAwarded", "maxPoints"},
			},
		},
	}
	if kind == KindGrade {
		props["practiceProblems"] = &genai.Schema{
			Type:        genai.TypeArray,
			Description: "Up to 3 similar practice problems when the score is below the maximum.",
			Items: &genai.Schema{
				Type: genai.TypeObject,
				Properties: map[string]*genai.Schema{
					"id":      str,
					"content": {Type: genai.TypeString, Description: "Problem statement (LaTeX)."},
				},
			},
		}
	}
	return &genai.Schema{
		Type:       genai.TypeObject,
		Properties: props,
		Required:   append([]string(nil), requiredFields...),
	}
}
