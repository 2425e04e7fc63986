package export

import (
	"bytes"
	"encoding/xml"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/pavelanni/autograde/internal/model"
)

func sampleExport() model.ExamExport {
	at := time.Date(2026, 4, 1, 9, 30, 0, 0, time.UTC)
	return model.ExamExport{
		ExamID: "exam-1",
		Title:  "Algebra",
		Results: []model.StudentResult{
			{
				SubmissionID: "a",
				StudentName:  "Nguyen <An> & Co",
				StudentID:    "10A1",
				SubmittedAt:  at,
				Status:       model.StatusGraded,
				Result: &model.GradingResult{
					TotalScore:    7.5,
					MaxTotalScore: 10,
					Summary:       "Good\n\n[INTEGRITY WARNING] see Binh",
					LetterGrade:   "B",
					Corrections: []model.CorrectionPoint{
						{QuestionID: "1", StudentAnswer: "x<2", CorrectAnswer: "x<2", IsCorrect: true, PointsAwarded: 5, MaxPoints: 5},
						{QuestionID: "2", StudentAnswer: "y=1", CorrectAnswer: "y=3", IsCorrect: false, Explanation: "sign", PointsAwarded: 2.5, MaxPoints: 5},
					},
				},
			},
			{
				SubmissionID: "b",
				StudentName:  "Nguyen <An> & Co",
				StudentID:    "10A2",
				SubmittedAt:  at,
				Status:       model.StatusError,
				Error:        "timeout",
			},
		},
	}
}

// worksheetNames parses the workbook and returns its sheet names.
func worksheetNames(t *testing.T, data []byte) []string {
	t.Helper()
	dec := xml.NewDecoder(bytes.NewReader(data))
	var names []string
	for {
		tok, err := dec.Token()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			t.Fatalf("workbook is not well-formed XML: %v", err)
		}
		se, ok := tok.(xml.StartElement)
		if !ok || se.Name.Local != "Worksheet" {
			continue
		}
		for _, a := range se.Attr {
			if a.Name.Local == "Name" {
				names = append(names, a.Value)
			}
		}
	}
	return names
}

func TestWriteSpreadsheet(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteSpreadsheet(&buf, sampleExport(), nil); err != nil {
		t.Fatalf("WriteSpreadsheet: %v", err)
	}
	out := buf.String()

	if !strings.HasPrefix(out, "<?xml") || !strings.Contains(out, `<?mso-application progid="Excel.Sheet"?>`) {
		t.Error("missing XML or mso-application header")
	}
	for _, want := range []string{
		`xmlns:ss="urn:schemas-microsoft-com:office:spreadsheet"`,
		`ss:ID="sCorrect"`,
		"Nguyen &lt;An&gt; &amp; Co",
		`<Data ss:Type="Number">7.5</Data>`,
		"7.5 / 10",
		"Submitted at",
		"Incorrect",
		"timeout",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("output should contain %q", want)
		}
	}

	names := worksheetNames(t, buf.Bytes())
	want := []string{"Summary", "Nguyen <An> & Co_1", "Nguyen <An> & Co_2"}
	if strings.Join(names, "|") != strings.Join(want, "|") {
		t.Errorf("sheet names = %q, want %q", names, want)
	}
}

func TestWriteSpreadsheetTranslated(t *testing.T) {
	labels := map[string]string{"SheetSummary": "Tổng hợp", "ColTime": "Thời gian nộp"}
	tr := func(id string) string {
		if s, ok := labels[id]; ok {
			return s
		}
		return id
	}
	var buf bytes.Buffer
	if err := WriteSpreadsheet(&buf, model.ExamExport{}, tr); err != nil {
		t.Fatalf("WriteSpreadsheet: %v", err)
	}
	names := worksheetNames(t, buf.Bytes())
	if len(names) != 1 || names[0] != "Tổng hợp" {
		t.Errorf("sheet names = %q", names)
	}
	if !strings.Contains(buf.String(), "Thời gian nộp") {
		t.Error("header should be translated")
	}
}

func TestSheetName(t *testing.T) {
	used := map[string]bool{}
	tests := []struct {
		student string
		pos     int
		want    string
	}{
		{"An", 1, "An_1"},
		{"Một cái tên rất dài của học sinh", 2, "Một cái tên rất dài _2"},
		{"a/b:c?", 3, "a b c_3"},
		{"", 4, "Sheet_4"},
	}
	for _, tt := range tests {
		got := sheetName(tt.student, tt.pos, used)
		if got != tt.want {
			t.Errorf("sheetName(%q, %d) = %q, want %q", tt.student, tt.pos, got, tt.want)
		}
		used[got] = true
	}

	// Collisions get a suffix.
	if got := sheetName("An", 1, used); got != "An_1_2" {
		t.Errorf("collision name = %q, want An_1_2", got)
	}
}
