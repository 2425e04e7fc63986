package llm

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	openai "github.com/sashabaranov/go-openai"

	"github.com/pavelanni/autograde/internal/model"
)

// OpenAI judges with any OpenAI-compatible chat completion endpoint.
type OpenAI struct {
	api    *openai.Client
	apiKey string
	model  string
}

// NewOpenAI creates an OpenAI-compatible judge.
func NewOpenAI(baseURL, apiKey, modelName string) *OpenAI {
	config := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		config.BaseURL = baseURL
	}
	return &OpenAI{
		api:    openai.NewClientWithConfig(config),
		apiKey: strings.TrimSpace(apiKey),
		model:  strings.TrimSpace(modelName),
	}
}

func (o *OpenAI) Name() string { return "openai" }

// Judge sends the system prompt and a multi-part user message in JSON mode.
// Images travel as data URLs; text assets are inlined; other binary assets
// are announced by type only, since chat completions cannot carry them.
func (o *OpenAI) Judge(ctx context.Context, req Request) (string, error) {
	if o.apiKey == "" {
		return "", fmt.Errorf("%w: LLM API key is empty", model.ErrNotConfigured)
	}
	if o.model == "" {
		return "", fmt.Errorf("%w: LLM model is empty", model.ErrNotConfigured)
	}

	resp, err := o.api.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: o.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: req.System},
			{Role: openai.ChatMessageRoleUser, MultiContent: chatParts(req.Parts)},
		},
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
		Temperature: req.Temperature,
	})
	if err != nil {
		return "", fmt.Errorf("LLM API call: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("LLM returned no choices")
	}
	return resp.Choices[0].Message.Content, nil
}

func chatParts(parts []Part) []openai.ChatMessagePart {
	out := make([]openai.ChatMessagePart, 0, len(parts))
	for _, p := range parts {
		switch {
		case !p.IsBlob():
			out = append(out, openai.ChatMessagePart{Type: openai.ChatMessagePartTypeText, Text: p.Text})
		case strings.HasPrefix(p.MIMEType, "image/"):
			out = append(out, openai.ChatMessagePart{
				Type: openai.ChatMessagePartTypeImageURL,
				ImageURL: &openai.ChatMessageImageURL{
					URL:    "data:" + p.MIMEType + ";base64," + base64.StdEncoding.EncodeToString(p.Data),
					Detail: openai.ImageURLDetailAuto,
				},
			})
		case strings.HasPrefix(p.MIMEType, "text/") && utf8.Valid(p.Data):
			out = append(out, openai.ChatMessagePart{Type: openai.ChatMessagePartTypeText, Text: string(p.Data)})
		default:
			out = append(out, openai.ChatMessagePart{
				Type: openai.ChatMessagePartTypeText,
				Text: fmt.Sprintf("[attachment of type %s, %d bytes, not readable by this model]", p.MIMEType, len(p.Data)),
			})
		}
	}
	return out
}
