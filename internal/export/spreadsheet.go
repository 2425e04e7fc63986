// Package export renders exam results as an Excel 2003 XML workbook.
package export

import (
	"encoding/xml"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/pavelanni/autograde/internal/model"
)

// ContentType is the media type of a SpreadsheetML workbook.
const ContentType = "application/vnd.ms-excel"

const (
	styleHeader    = "sHeader"
	styleLabel     = "sLabel"
	styleCorrect   = "sCorrect"
	styleIncorrect = "sIncorrect"
	styleWrap      = "sWrap"

	maxSheetName = 31
)

// Translator maps a message ID to display text.
type Translator func(msgID string) string

var englishLabels = map[string]string{
	"SheetSummary":     "Summary",
	"ColTime":          "Submitted at",
	"ColName":          "Student",
	"ColStudentID":     "Student ID",
	"ColStatus":        "Status",
	"ColScore":         "Score",
	"ColMaxScore":      "Max score",
	"ColGrade":         "Grade",
	"ColSummary":       "Comment",
	"ColQuestion":      "Question",
	"ColStudentAnswer": "Student answer",
	"ColCorrectAnswer": "Correct answer",
	"ColResult":        "Result",
	"ColPoints":        "Points",
	"ColExplanation":   "Explanation",
	"ResultCorrect":    "Correct",
	"ResultIncorrect":  "Incorrect",
}

func english(id string) string {
	if s, ok := englishLabels[id]; ok {
		return s
	}
	return id
}

type workbook struct {
	XMLName    xml.Name    `xml:"Workbook"`
	Xmlns      string      `xml:"xmlns,attr"`
	XmlnsO     string      `xml:"xmlns:o,attr"`
	XmlnsX     string      `xml:"xmlns:x,attr"`
	XmlnsSS    string      `xml:"xmlns:ss,attr"`
	XmlnsHTML  string      `xml:"xmlns:html,attr"`
	Styles     []style     `xml:"Styles>Style"`
	Worksheets []worksheet `xml:"Worksheet"`
}

type style struct {
	ID        string     `xml:"ss:ID,attr"`
	Name      string     `xml:"ss:Name,attr,omitempty"`
	Alignment *alignment `xml:"Alignment"`
	Font      *font      `xml:"Font"`
	Interior  *interior  `xml:"Interior"`
}

type alignment struct {
	Vertical string `xml:"ss:Vertical,attr,omitempty"`
	WrapText int    `xml:"ss:WrapText,attr,omitempty"`
}

type font struct {
	FontName string `xml:"ss:FontName,attr"`
	Size     int    `xml:"ss:Size,attr,omitempty"`
	Color    string `xml:"ss:Color,attr,omitempty"`
	Bold     int    `xml:"ss:Bold,attr,omitempty"`
}

type interior struct {
	Color   string `xml:"ss:Color,attr"`
	Pattern string `xml:"ss:Pattern,attr"`
}

type worksheet struct {
	Name  string `xml:"ss:Name,attr"`
	Table table  `xml:"Table"`
}

type table struct {
	Columns []column `xml:"Column"`
	Rows    []row    `xml:"Row"`
}

type column struct {
	Width int `xml:"ss:Width,attr"`
}

type row struct {
	StyleID string `xml:"ss:StyleID,attr,omitempty"`
	Cells   []cell `xml:"Cell"`
}

type cell struct {
	StyleID string    `xml:"ss:StyleID,attr,omitempty"`
	Data    *cellData `xml:"Data"`
}

type cellData struct {
	Type  string `xml:"ss:Type,attr"`
	Value string `xml:",chardata"`
}

func text(s string) cell { return cell{Data: &cellData{Type: "String", Value: s}} }

func styled(styleID, s string) cell {
	c := text(s)
	c.StyleID = styleID
	return c
}

func number(v float64) cell {
	return cell{Data: &cellData{Type: "Number", Value: strconv.FormatFloat(v, 'f', -1, 64)}}
}

func columns(widths ...int) []column {
	cols := make([]column, len(widths))
	for i, w := range widths {
		cols[i] = column{Width: w}
	}
	return cols
}

func defaultStyles() []style {
	return []style{
		{ID: "Default", Name: "Normal", Alignment: &alignment{Vertical: "Bottom"}, Font: &font{FontName: "Arial", Size: 11, Color: "#000000"}},
		{ID: styleHeader, Font: &font{FontName: "Arial", Size: 11, Color: "#FFFFFF", Bold: 1}, Interior: &interior{Color: "#4F46E5", Pattern: "Solid"}},
		{ID: styleLabel, Font: &font{FontName: "Arial", Bold: 1}, Interior: &interior{Color: "#F3F4F6", Pattern: "Solid"}},
		{ID: styleCorrect, Font: &font{FontName: "Arial", Color: "#065F46"}, Interior: &interior{Color: "#D1FAE5", Pattern: "Solid"}},
		{ID: styleIncorrect, Font: &font{FontName: "Arial", Color: "#7F1D1D"}, Interior: &interior{Color: "#FEE2E2", Pattern: "Solid"}},
		{ID: styleWrap, Alignment: &alignment{Vertical: "Top", WrapText: 1}},
	}
}

// WriteSpreadsheet writes a workbook with a summary sheet and one sheet per
// submission. A nil t uses English labels.
func WriteSpreadsheet(w io.Writer, exp model.ExamExport, t Translator) error {
	if t == nil {
		t = english
	}
	wb := workbook{
		Xmlns:     "urn:schemas-microsoft-com:office:spreadsheet",
		XmlnsO:    "urn:schemas-microsoft-com:office:office",
		XmlnsX:    "urn:schemas-microsoft-com:office:excel",
		XmlnsSS:   "urn:schemas-microsoft-com:office:spreadsheet",
		XmlnsHTML: "http://www.w3.org/TR/REC-html40",
		Styles:    defaultStyles(),
	}
	wb.Worksheets = append(wb.Worksheets, summarySheet(exp, t))

	used := map[string]bool{wb.Worksheets[0].Name: true}
	for i, res := range exp.Results {
		name := sheetName(res.StudentName, i+1, used)
		used[name] = true
		wb.Worksheets = append(wb.Worksheets, studentSheet(name, res, t))
	}

	if _, err := io.WriteString(w, xml.Header+`<?mso-application progid="Excel.Sheet"?>`+"\n"); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	enc := xml.NewEncoder(w)
	enc.Indent("", " ")
	if err := enc.Encode(wb); err != nil {
		return fmt.Errorf("encode workbook: %w", err)
	}
	return enc.Close()
}

func summarySheet(exp model.ExamExport, t Translator) worksheet {
	rows := []row{{
		StyleID: styleHeader,
		Cells: []cell{
			text(t("ColTime")), text(t("ColName")), text(t("ColStudentID")), text(t("ColStatus")),
			text(t("ColScore")), text(t("ColMaxScore")), text(t("ColGrade")), text(t("ColSummary")),
		},
	}}
	for _, res := range exp.Results {
		cells := []cell{
			text(res.SubmittedAt.Local().Format(time.DateTime)),
			text(res.StudentName),
			text(res.StudentID),
			text(string(res.Status)),
		}
		if r := res.Result; r != nil {
			cells = append(cells, number(r.TotalScore), number(r.MaxTotalScore), text(r.LetterGrade), styled(styleWrap, r.Summary))
		} else {
			cells = append(cells, text(""), text(""), text(""), styled(styleWrap, res.Error))
		}
		rows = append(rows, row{Cells: cells})
	}
	return worksheet{
		Name:  truncateRunes(sanitizeSheetName(t("SheetSummary")), maxSheetName),
		Table: table{Columns: columns(120, 150, 80, 70, 60, 60, 80, 300), Rows: rows},
	}
}

func studentSheet(name string, res model.StudentResult, t Translator) worksheet {
	rows := []row{
		{Cells: []cell{styled(styleLabel, t("ColName")), text(res.StudentName)}},
		{Cells: []cell{styled(styleLabel, t("ColStudentID")), text(res.StudentID)}},
	}
	r := res.Result
	if r == nil {
		rows = append(rows,
			row{Cells: []cell{styled(styleLabel, t("ColStatus")), text(string(res.Status))}},
			row{Cells: []cell{styled(styleLabel, t("ColSummary")), styled(styleWrap, res.Error)}},
		)
		return worksheet{Name: name, Table: table{Columns: columns(120, 400), Rows: rows}}
	}

	rows = append(rows,
		row{Cells: []cell{styled(styleLabel, t("ColScore")), text(formatScore(r.TotalScore) + " / " + formatScore(r.MaxTotalScore))}},
		row{Cells: []cell{styled(styleLabel, t("ColGrade")), text(r.LetterGrade)}},
		row{Cells: []cell{styled(styleLabel, t("ColSummary")), styled(styleWrap, r.Summary)}},
		row{},
		row{StyleID: styleHeader, Cells: []cell{
			text(t("ColQuestion")), text(t("ColStudentAnswer")), text(t("ColCorrectAnswer")), text(t("ColResult")),
			text(t("ColPoints")), text(t("ColMaxScore")), text(t("ColExplanation")),
		}},
	)
	for _, c := range r.Corrections {
		rowStyle, verdict := styleIncorrect, t("ResultIncorrect")
		if c.IsCorrect {
			rowStyle, verdict = styleCorrect, t("ResultCorrect")
		}
		rows = append(rows, row{Cells: []cell{
			styled(rowStyle, c.QuestionID),
			styled(styleWrap, c.StudentAnswer),
			styled(styleWrap, c.CorrectAnswer),
			styled(rowStyle, verdict),
			number(c.PointsAwarded),
			number(c.MaxPoints),
			styled(styleWrap, c.Explanation),
		}})
	}
	return worksheet{Name: name, Table: table{Columns: columns(100, 300, 200, 80, 60, 60, 400), Rows: rows}}
}

func formatScore(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// sheetName builds a unique worksheet name: the first 20 characters of the
// student name and the 1-based position.
func sheetName(student string, pos int, used map[string]bool) string {
	base := truncateRunes(sanitizeSheetName(student), 20)
	if base == "" {
		base = "Sheet"
	}
	name := fmt.Sprintf("%s_%d", base, pos)
	for n := 2; used[name]; n++ {
		name = fmt.Sprintf("%s_%d_%d", base, pos, n)
	}
	return truncateRunes(name, maxSheetName)
}

var sheetNameReplacer = strings.NewReplacer(
	":", " ", `\`, " ", "/", " ", "?", " ", "*", " ", "[", "(", "]", ")",
)

func sanitizeSheetName(s string) string {
	return strings.TrimSpace(sheetNameReplacer.Replace(s))
}

func truncateRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
