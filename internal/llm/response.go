package llm

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/pavelanni/autograde/internal/model"
)

// requiredFields must be present and non-null in every judge response.
var requiredFields = []string{
	"totalScore",
	"maxTotalScore",
	"summary",
	"letterGrade",
	"corrections",
	"studentHandwritingTranscription",
	"integrityAnalysis",
}

func stripCodeFences(s string) string {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}

// parseResult decodes and validates a judge response. Fields owned by the
// integrity scanner are dropped; practice problems are capped, and removed
// entirely from remediation results.
func parseResult(raw string, kind Kind) (*model.GradingResult, error) {
	txt := stripCodeFences(raw)
	if txt == "" {
		return nil, errors.New("empty response")
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal([]byte(txt), &fields); err != nil {
		return nil, fmt.Errorf("response is not a JSON object: %w", err)
	}
	var missing []string
	for _, f := range requiredFields {
		v, ok := fields[f]
		if !ok || string(v) == "null" {
			missing = append(missing, f)
		}
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("response missing required fields: %s", strings.Join(missing, ", "))
	}

	var result model.GradingResult
	if err := json.Unmarshal([]byte(txt), &result); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}

	if a := result.IntegrityAnalysis; a != nil {
		a.ClearMatch()
		if a.SuspicionLevel == "" {
			a.SuspicionLevel = model.SuspicionNone
		}
		if a.Reasons == nil {
			a.Reasons = []string{}
		}
	}
	if kind == KindRemediation {
		result.PracticeProblems = nil
	} else if len(result.PracticeProblems) > model.MaxPracticeProblems {
		result.PracticeProblems = result.PracticeProblems[:model.MaxPracticeProblems]
	}

	if err := result.Validate(); err != nil {
		return nil, err
	}
	return &result, nil
}
