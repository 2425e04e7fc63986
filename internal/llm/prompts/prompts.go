package prompts

import (
	"bytes"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"regexp"
	"strings"
	"sync"
	"text/template"
	"unicode/utf8"

	"golang.org/x/text/language"
	"golang.org/x/text/language/display"

	"github.com/pavelanni/autograde/internal/model"
)

// FS holds the built-in prompt templates.
//
//go:embed templates/*.txt
var FS embed.FS

var (
	studentTagRegex         = regexp.MustCompile(`(?i)</?\s*student-[a-z]+\b[^>]*>`)
	systemInstructionsRegex = regexp.MustCompile(`(?i)</?\s*system-instructions\b[^>]*>`)
)

// maxTextRunes caps every free-text field rendered into a prompt.
const maxTextRunes = 10000

// PromptVariant represents a grading prompt variant.
type PromptVariant string

const (
	// PromptStrict grades only fully justified work.
	PromptStrict PromptVariant = "strict"
	// PromptStandard is the default grading variant.
	PromptStandard PromptVariant = "standard"
	// PromptLenient rewards the correct idea over precise execution.
	PromptLenient PromptVariant = "lenient"
)

var validVariants = map[PromptVariant]bool{
	PromptStrict:   true,
	PromptStandard: true,
	PromptLenient:  true,
}

var (
	loadOnce           sync.Once
	loadErr            error
	gradeTemplates     map[PromptVariant]*template.Template
	remediateTemplates map[PromptVariant]*template.Template
)

// IsValidVariant checks if a prompt variant name is valid.
func IsValidVariant(v string) bool {
	return validVariants[PromptVariant(v)]
}

// GradeData holds template data for exam grading prompts.
type GradeData struct {
	Instructions   string
	ClassInfo      string
	HasGeneralKey  bool
	KeyedQuestions []string
	HasReference   bool
	PageCount      int
	// Language is the language code the judge answers in. The builder
	// replaces it with the language name and fills Curriculum.
	Language   string
	Curriculum string
}

// RemediationData holds template data for practice-work grading prompts.
type RemediationData struct {
	ClassInfo string
	Problems  []model.PracticeProblem
	PageCount int
	// Language and Curriculum are resolved as in GradeData.
	Language   string
	Curriculum string
}

// Load parses the prompt templates from fsys. Templates are read from
// templates/grade_<variant>.txt and templates/remediate_<variant>.txt.
// Only the first call has any effect.
func Load(fsys fs.FS) error {
	loadOnce.Do(func() {
		gradeTemplates = make(map[PromptVariant]*template.Template)
		remediateTemplates = make(map[PromptVariant]*template.Template)

		for _, v := range []PromptVariant{PromptStrict, PromptStandard, PromptLenient} {
			grade, err := parseFile(fsys, "templates/grade_"+string(v)+".txt")
			if err != nil {
				loadErr = err
				return
			}
			gradeTemplates[v] = grade

			remediate, err := parseFile(fsys, "templates/remediate_"+string(v)+".txt")
			if err != nil {
				loadErr = err
				return
			}
			remediateTemplates[v] = remediate
		}
	})
	return loadErr
}

func parseFile(fsys fs.FS, name string) (*template.Template, error) {
	content, err := fs.ReadFile(fsys, name)
	if err != nil {
		return nil, errors.New("failed to read prompt file " + name + ": " + err.Error())
	}
	tmpl, err := template.New(name).Option("missingkey=error").Parse(string(content))
	if err != nil {
		return nil, errors.New("failed to parse prompt template " + name + ": " + err.Error())
	}
	return tmpl, nil
}

func lookup(set map[PromptVariant]*template.Template, variant PromptVariant) (*template.Template, error) {
	if set == nil {
		return nil, errors.New("templates not initialized: call Load first")
	}
	tmpl, ok := set[variant]
	if !ok {
		if loadErr != nil {
			return nil, fmt.Errorf("templates load failed: %w", loadErr)
		}
		return nil, errors.New("invalid prompt variant: " + string(variant))
	}
	return tmpl, nil
}

// BuildGradePrompt renders the system prompt for an exam grading call.
func BuildGradePrompt(variant PromptVariant, data GradeData) (string, error) {
	tmpl, err := lookup(gradeTemplates, variant)
	if err != nil {
		return "", err
	}
	data.Instructions = sanitizeText(data.Instructions)
	data.ClassInfo = sanitizeText(data.ClassInfo)
	labels := make([]string, len(data.KeyedQuestions))
	for i, l := range data.KeyedQuestions {
		labels[i] = sanitizeText(l)
	}
	data.KeyedQuestions = labels
	data.Language, data.Curriculum = responseLanguage(data.Language)

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// BuildRemediationPrompt renders the system prompt for a practice-work grading call.
func BuildRemediationPrompt(variant PromptVariant, data RemediationData) (string, error) {
	tmpl, err := lookup(remediateTemplates, variant)
	if err != nil {
		return "", err
	}
	data.ClassInfo = sanitizeText(data.ClassInfo)
	problems := make([]model.PracticeProblem, len(data.Problems))
	for i, p := range data.Problems {
		problems[i] = model.PracticeProblem{ID: sanitizeText(p.ID), Content: sanitizeText(p.Content)}
	}
	data.Problems = problems
	data.Language, data.Curriculum = responseLanguage(data.Language)

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// responseLanguage maps a language code to its English name and the
// curriculum textbook knowledge is cited from. Unknown codes render nothing.
func responseLanguage(code string) (name, curriculum string) {
	code = strings.TrimSpace(code)
	if code == "" {
		return "", ""
	}
	tag, err := language.Parse(code)
	if err != nil {
		return "", ""
	}
	name = display.English.Languages().Name(tag)
	if base, _ := tag.Base(); base.String() == "vi" {
		curriculum = "the Vietnamese GDPT 2018 mathematics curriculum"
	}
	return name, curriculum
}

// sanitizeText strips prompt-structure tags and truncates overlong text.
func sanitizeText(s string) string {
	s = studentTagRegex.ReplaceAllString(s, "")
	s = systemInstructionsRegex.ReplaceAllString(s, "")
	s = strings.TrimSpace(s)

	if utf8.RuneCountInString(s) > maxTextRunes {
		runes := []rune(s)
		s = string(runes[:maxTextRunes]) + "\n\n[Text truncated due to length]"
	}
	return s
}
