package course

import (
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"
)

// ImportConfig describes the workbook layout read by ImportWorkbook.
//
// The course sheet holds key/value rows (id, title, schema_version,
// cooldown, quiz_duration). The modules sheet lists modules in course order
// with columns module_id, title, has_quiz. The questions sheet has columns
// module_id, set, question_id, prompt, options ("|" separated) and answer
// (1-based option number).
type ImportConfig struct {
	CourseSheet    string
	ModulesSheet   string
	QuestionsSheet string
	SkipHeader     bool
	OptionSep      string
}

// DefaultImportConfig returns the layout produced by the authoring template.
func DefaultImportConfig() ImportConfig {
	return ImportConfig{
		CourseSheet:    "Course",
		ModulesSheet:   "Modules",
		QuestionsSheet: "Questions",
		SkipHeader:     true,
		OptionSep:      "|",
	}
}

// ImportResult holds the outcome of a workbook import.
type ImportResult struct {
	Outline   *Outline
	Modules   int
	Questions int
	Skipped   int
	Errors    []string
}

// ImportWorkbookFile opens an .xlsx file and imports the outline in it.
func ImportWorkbookFile(path string, cfg ImportConfig) (*ImportResult, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("open workbook: %w", err)
	}
	defer f.Close()
	return importWorkbook(f, cfg)
}

// ImportWorkbook reads an .xlsx document from r.
func ImportWorkbook(r io.Reader, cfg ImportConfig) (*ImportResult, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("open workbook: %w", err)
	}
	defer f.Close()
	return importWorkbook(f, cfg)
}

func importWorkbook(f *excelize.File, cfg ImportConfig) (*ImportResult, error) {
	res := &ImportResult{Outline: &Outline{SchemaVersion: "1.0.0"}}
	o := res.Outline

	courseRows, err := f.GetRows(cfg.CourseSheet)
	if err != nil {
		return nil, fmt.Errorf("read sheet %q: %w", cfg.CourseSheet, err)
	}
	for i, row := range courseRows {
		if len(row) < 2 {
			continue
		}
		key := strings.ToLower(strings.TrimSpace(row[0]))
		val := strings.TrimSpace(row[1])
		switch key {
		case "id":
			o.ID = val
		case "title":
			o.Title = val
		case "schema_version":
			o.SchemaVersion = val
		case "cooldown", "quiz_duration":
			d, err := time.ParseDuration(val)
			if err != nil {
				res.Errors = append(res.Errors, fmt.Sprintf("%s row %d: %s: %v", cfg.CourseSheet, i+1, key, err))
				continue
			}
			if key == "cooldown" {
				o.SetCooldown(d)
			} else {
				o.QuizDuration = d
			}
		}
	}

	moduleRows, err := f.GetRows(cfg.ModulesSheet)
	if err != nil {
		return nil, fmt.Errorf("read sheet %q: %w", cfg.ModulesSheet, err)
	}
	for _, row := range dataRows(moduleRows, cfg.SkipHeader) {
		id := cell(row, 0)
		if id == "" {
			res.Skipped++
			continue
		}
		o.Modules = append(o.Modules, ModuleRef{
			ID:      id,
			Title:   cell(row, 1),
			HasQuiz: parseBool(cell(row, 2)),
		})
		res.Modules++
	}

	questionRows, err := f.GetRows(cfg.QuestionsSheet)
	if err != nil {
		// A course made only of acknowledgement modules needs no questions sheet.
		questionRows = nil
	}
	offset := 1
	if cfg.SkipHeader {
		offset = 2
	}
	for i, row := range dataRows(questionRows, cfg.SkipHeader) {
		rowNum := i + offset
		moduleID := cell(row, 0)
		if moduleID == "" {
			res.Skipped++
			continue
		}
		idx := o.Index(moduleID)
		if idx < 0 {
			res.Errors = append(res.Errors, fmt.Sprintf("%s row %d: unknown module %q", cfg.QuestionsSheet, rowNum, moduleID))
			continue
		}
		setNum, err := strconv.Atoi(cell(row, 1))
		if err != nil || setNum < 1 {
			res.Errors = append(res.Errors, fmt.Sprintf("%s row %d: invalid set %q", cfg.QuestionsSheet, rowNum, cell(row, 1)))
			continue
		}
		answer, err := strconv.Atoi(cell(row, 5))
		if err != nil {
			res.Errors = append(res.Errors, fmt.Sprintf("%s row %d: invalid answer %q", cfg.QuestionsSheet, rowNum, cell(row, 5)))
			continue
		}
		var options []string
		for _, opt := range strings.Split(cell(row, 4), cfg.OptionSep) {
			if opt = strings.TrimSpace(opt); opt != "" {
				options = append(options, opt)
			}
		}

		m := &o.Modules[idx]
		for len(m.QuestionSets) < setNum {
			m.QuestionSets = append(m.QuestionSets, nil)
		}
		m.QuestionSets[setNum-1] = append(m.QuestionSets[setNum-1], Question{
			ID:      cell(row, 2),
			Prompt:  cell(row, 3),
			Options: options,
			Answer:  answer - 1,
		})
		res.Questions++
	}

	if len(res.Errors) > 0 {
		return res, fmt.Errorf("workbook import failed:\n  %s", strings.Join(res.Errors, "\n  "))
	}
	if err := Validate(o); err != nil {
		return res, err
	}
	return res, nil
}

func dataRows(rows [][]string, skipHeader bool) [][]string {
	if skipHeader && len(rows) > 0 {
		return rows[1:]
	}
	return rows
}

func cell(row []string, i int) string {
	if i >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[i])
}

func parseBool(s string) bool {
	switch strings.ToLower(s) {
	case "1", "y", "yes", "true", "x":
		return true
	}
	return false
}
