package markform

import (
	"sort"
	"strconv"
	"strings"

	"github.com/olekukonko/tablewriter"
	"github.com/olekukonko/tablewriter/renderer"
)

// FieldState holds the three orthogonal per-field dimensions. None of them
// is derived from another: Answer comes from the response, Valid from the
// validator, Empty from the value alone.
type FieldState struct {
	Answer AnswerState `json:"answer_state"`
	Valid  bool        `json:"valid"`
	Empty  bool        `json:"empty"`
}

// ProgressCounts sums three mutually exclusive partitions of the fields,
// each adding up to TotalFields, plus derived counts.
type ProgressCounts struct {
	TotalFields      int `json:"total_fields"`
	UnansweredFields int `json:"unanswered_fields"`
	AnsweredFields   int `json:"answered_fields"`
	SkippedFields    int `json:"skipped_fields"`
	AbortedFields    int `json:"aborted_fields"`

	ValidFields   int `json:"valid_fields"`
	InvalidFields int `json:"invalid_fields"`

	EmptyFields  int `json:"empty_fields"`
	FilledFields int `json:"filled_fields"`

	EmptyRequiredFields int `json:"empty_required_fields"`
	TotalNotes          int `json:"total_notes"`
}

// InspectResult is the full multi-dimensional report on a form.
type InspectResult struct {
	StructureSummary string            `json:"structure_summary"`
	ProgressSummary  string            `json:"progress_summary"`
	Issues           []Issue           `json:"issues"`
	FieldStates      map[Id]FieldState `json:"field_states"`
	Counts           ProgressCounts    `json:"counts"`
	FormValid        bool              `json:"form_valid"`
	FormComplete     bool              `json:"form_complete"`
	IsComplete       bool              `json:"is_complete"`
}

// Inspect validates the form and computes field states, progress counts,
// prioritized issues and completion. It is a pure function of the form.
func Inspect(form *ParsedForm, opts *ValidateOptions) *InspectResult {
	issues := Validate(form, opts)

	invalid := make(map[Id]bool)
	for _, is := range issues {
		invalid[is.Ref] = true
	}

	states := make(map[Id]FieldState)
	var counts ProgressCounts
	for _, f := range form.Fields() {
		resp := form.Response(f.ID)
		st := FieldState{
			Answer: resp.State,
			Valid:  !invalid[f.ID],
			Empty:  fieldValueEmpty(f, resp.Value),
		}
		states[f.ID] = st

		counts.TotalFields++
		switch st.Answer {
		case AnswerAnswered:
			counts.AnsweredFields++
		case AnswerSkipped:
			counts.SkippedFields++
		case AnswerAborted:
			counts.AbortedFields++
		default:
			counts.UnansweredFields++
		}
		if st.Valid {
			counts.ValidFields++
		} else {
			counts.InvalidFields++
		}
		if st.Empty {
			counts.EmptyFields++
			if f.Required {
				counts.EmptyRequiredFields++
			}
		} else {
			counts.FilledFields++
		}
	}
	counts.TotalNotes = len(form.Notes())

	sortIssues(form, issues)

	formValid := counts.InvalidFields == 0
	formComplete := counts.AbortedFields == 0 &&
		counts.EmptyRequiredFields == 0 &&
		counts.InvalidFields == 0

	return &InspectResult{
		StructureSummary: structureSummary(form, states),
		ProgressSummary:  progressSummary(counts, formValid, formComplete),
		Issues:           issues,
		FieldStates:      states,
		Counts:           counts,
		FormValid:        formValid,
		FormComplete:     formComplete,
		IsComplete:       formComplete,
	}
}

func severityRank(s Severity) int {
	switch s {
	case SeverityRequired:
		return 0
	case SeverityRecommended:
		return 1
	default:
		return 2
	}
}

// sortIssues orders by severity, then document position of the target, then
// a stable ref:scope:reason key so re-runs are deterministic.
func sortIssues(form *ParsedForm, issues []Issue) {
	key := func(is Issue) string {
		return string(is.Ref) + ":" + string(is.Scope) + ":" + is.Reason
	}
	sort.SliceStable(issues, func(i, j int) bool {
		if a, b := severityRank(issues[i].Severity), severityRank(issues[j].Severity); a != b {
			return a < b
		}
		oi, iok := form.Order(issues[i].Ref)
		oj, jok := form.Order(issues[j].Ref)
		if iok != jok {
			return iok
		}
		if oi != oj {
			return oi < oj
		}
		return key(issues[i]) < key(issues[j])
	})
}

func structureSummary(form *ParsedForm, states map[Id]FieldState) string {
	var buf strings.Builder
	buf.WriteString("# Form structure:\n")
	table := tablewriter.NewTable(&buf, tablewriter.WithRenderer(renderer.NewMarkdown()))
	table.Header("Field", "Kind", "Label", "Required", "Answer", "Valid", "Empty")
	var emit func(items []BodyItem, group string)
	emit = func(items []BodyItem, group string) {
		for _, it := range items {
			switch v := it.(type) {
			case *Field:
				id := string(v.ID)
				if group != "" {
					id = group + "." + id
				}
				st := states[v.ID]
				_ = table.Append(id, string(v.Kind), v.Label,
					strconv.FormatBool(v.Required), string(st.Answer),
					strconv.FormatBool(st.Valid), strconv.FormatBool(st.Empty))
			case *FieldGroup:
				emit(v.Items, string(v.ID))
			}
		}
	}
	emit(form.Body, "")
	_ = table.Render()
	return buf.String()
}

func progressSummary(counts ProgressCounts, formValid, formComplete bool) string {
	var buf strings.Builder
	buf.WriteString("# Progress:\n")
	table := tablewriter.NewTable(&buf, tablewriter.WithRenderer(renderer.NewMarkdown()))
	table.Header("Metric", "Value")
	rows := []struct {
		name  string
		value string
	}{
		{"total fields", strconv.Itoa(counts.TotalFields)},
		{"answered", strconv.Itoa(counts.AnsweredFields)},
		{"unanswered", strconv.Itoa(counts.UnansweredFields)},
		{"skipped", strconv.Itoa(counts.SkippedFields)},
		{"aborted", strconv.Itoa(counts.AbortedFields)},
		{"valid", strconv.Itoa(counts.ValidFields)},
		{"invalid", strconv.Itoa(counts.InvalidFields)},
		{"filled", strconv.Itoa(counts.FilledFields)},
		{"empty", strconv.Itoa(counts.EmptyFields)},
		{"empty required", strconv.Itoa(counts.EmptyRequiredFields)},
		{"notes", strconv.Itoa(counts.TotalNotes)},
		{"form valid", strconv.FormatBool(formValid)},
		{"form complete", strconv.FormatBool(formComplete)},
	}
	for _, r := range rows {
		_ = table.Append(r.name, r.value)
	}
	_ = table.Render()
	return buf.String()
}

// FormatIssues renders a prioritized issue list as a markdown section, in
// the same shape the summaries use.
func FormatIssues(issues []Issue) string {
	if len(issues) == 0 {
		return ""
	}
	var buf strings.Builder
	buf.WriteString("# Issues:\n")
	table := tablewriter.NewTable(&buf, tablewriter.WithRenderer(renderer.NewMarkdown()))
	table.Header("Ref", "Scope", "Severity", "Reason", "Message")
	for _, is := range issues {
		_ = table.Append(string(is.Ref), string(is.Scope), string(is.Severity), is.Reason, is.Message)
	}
	_ = table.Render()
	return buf.String()
}
