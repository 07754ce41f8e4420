package markform

import (
	"fmt"
	"net/url"
	"regexp"
	"sort"
	"time"
	"unicode/utf8"
)

type Severity string

const (
	SeverityRequired    Severity = "required"
	SeverityRecommended Severity = "recommended"
	SeverityInfo        Severity = "info"
)

type IssueScope string

const (
	ScopeField IssueScope = "field"
	ScopeGroup IssueScope = "group"
	ScopeForm  IssueScope = "form"
)

// Issue reason codes. Stable: tooling groups and sorts on them.
const (
	ReasonMissing       = "missing"
	ReasonBadFormat     = "bad_format"
	ReasonOutOfRange    = "out_of_range"
	ReasonPattern       = "pattern"
	ReasonTooShort      = "too_short"
	ReasonTooLong       = "too_long"
	ReasonTooFewItems   = "too_few_items"
	ReasonTooManyItems  = "too_many_items"
	ReasonBadURL        = "bad_url"
	ReasonBadDate       = "bad_date"
	ReasonUnknownOption = "unknown_option"
	ReasonIllegalState  = "illegal_state"
	ReasonRowCount      = "row_count"
	ReasonBadCell       = "bad_cell"
	ReasonMissingCell   = "missing_cell"
)

// Issue is the non-fatal tier: the document parsed but a field (or group,
// or the form) is incomplete or wrong. Issues are data, never errors.
type Issue struct {
	Ref      Id         `json:"ref"`
	Scope    IssueScope `json:"scope"`
	Severity Severity   `json:"severity"`
	Reason   string     `json:"reason"`
	Message  string     `json:"message"`
}

// CodeValidator is a caller-supplied check keyed by a field or group id.
// The engine never loads code itself; validators are registered through
// ValidateOptions.
type CodeValidator func(form *ParsedForm, ref Id) []Issue

type ValidateOptions struct {
	Validators map[Id]CodeValidator
}

// Validate runs every built-in check for every field, in document order,
// then appends code-validator issues unchanged. It never stops early.
func Validate(form *ParsedForm, opts *ValidateOptions) []Issue {
	issues := []Issue{}
	for _, f := range form.Fields() {
		issues = append(issues, validateField(form, f)...)
	}
	if opts != nil && len(opts.Validators) > 0 {
		for _, ref := range sortedValidatorRefs(form, opts.Validators) {
			issues = append(issues, opts.Validators[ref](form, ref)...)
		}
	}
	return issues
}

// sortedValidatorRefs orders registered validators by document position so
// repeated runs produce identical output.
func sortedValidatorRefs(form *ParsedForm, validators map[Id]CodeValidator) []Id {
	refs := make([]Id, 0, len(validators))
	for ref := range validators {
		refs = append(refs, ref)
	}
	sort.Slice(refs, func(i, j int) bool {
		oi, iok := form.Order(refs[i])
		oj, jok := form.Order(refs[j])
		if iok != jok {
			return iok
		}
		if oi != oj {
			return oi < oj
		}
		return refs[i] < refs[j]
	})
	return refs
}

func fieldIssue(f *Field, severity Severity, reason, format string, args ...any) Issue {
	return Issue{
		Ref:      f.ID,
		Scope:    ScopeField,
		Severity: severity,
		Reason:   reason,
		Message:  fmt.Sprintf(format, args...),
	}
}

// validateField runs checks in a fixed order: required, kind format/range,
// chooser, table. Messages stay deterministic because the order never
// varies.
func validateField(form *ParsedForm, f *Field) []Issue {
	var issues []Issue
	resp := form.Response(f.ID)

	if f.Required && (resp.State != AnswerAnswered || fieldValueEmpty(f, resp.Value)) {
		issues = append(issues, fieldIssue(f, SeverityRequired, ReasonMissing,
			"required field %q has no value", f.ID))
	}
	if resp.State != AnswerAnswered || fieldValueEmpty(f, resp.Value) {
		return issues
	}

	switch f.Kind {
	case KindString:
		issues = append(issues, checkText(f, resp.Value)...)
	case KindURL:
		issues = append(issues, checkText(f, resp.Value)...)
		if s, ok := resp.Value.(StringValue); ok {
			issues = append(issues, checkURL(f, string(s))...)
		}
	case KindDate:
		if s, ok := resp.Value.(StringValue); !ok {
			issues = append(issues, badShape(f, resp.Value))
		} else if _, err := time.Parse("2006-01-02", string(s)); err != nil {
			issues = append(issues, fieldIssue(f, SeverityRequired, ReasonBadDate,
				"field %q value %q is not a YYYY-MM-DD date", f.ID, string(s)))
		}
	case KindNumber:
		issues = append(issues, checkNumber(f, resp.Value, false)...)
	case KindYear:
		issues = append(issues, checkNumber(f, resp.Value, true)...)
	case KindStringList:
		issues = append(issues, checkList(f, resp.Value, false)...)
	case KindURLList:
		issues = append(issues, checkList(f, resp.Value, true)...)
	case KindSingleSelect, KindMultiSelect:
		issues = append(issues, checkSelection(f, resp.Value)...)
	case KindCheckboxes:
		issues = append(issues, checkCheckboxes(f, resp.Value)...)
	case KindTable:
		issues = append(issues, checkTable(f, resp.Value)...)
	}
	return issues
}

func badShape(f *Field, v Value) Issue {
	return fieldIssue(f, SeverityRequired, ReasonBadFormat,
		"field %q holds a %T value, which does not match kind %q", f.ID, v, f.Kind)
}

func checkText(f *Field, v Value) []Issue {
	s, ok := v.(StringValue)
	if !ok {
		return []Issue{badShape(f, v)}
	}
	var issues []Issue
	n := utf8.RuneCountInString(string(s))
	if f.MinLength != nil && n < *f.MinLength {
		issues = append(issues, fieldIssue(f, SeverityRequired, ReasonTooShort,
			"field %q value is %d characters, minimum is %d", f.ID, n, *f.MinLength))
	}
	if f.MaxLength != nil && n > *f.MaxLength {
		issues = append(issues, fieldIssue(f, SeverityRequired, ReasonTooLong,
			"field %q value is %d characters, maximum is %d", f.ID, n, *f.MaxLength))
	}
	if f.Pattern != "" {
		if re, err := regexp.Compile(f.Pattern); err == nil && !re.MatchString(string(s)) {
			issues = append(issues, fieldIssue(f, SeverityRequired, ReasonPattern,
				"field %q value does not match pattern %q", f.ID, f.Pattern))
		}
	}
	return issues
}

func checkURL(f *Field, s string) []Issue {
	u, err := url.Parse(s)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return []Issue{fieldIssue(f, SeverityRequired, ReasonBadURL,
			"field %q value %q is not an absolute URL", f.ID, s)}
	}
	return nil
}

func checkNumber(f *Field, v Value, wantYear bool) []Issue {
	n, ok := v.(NumberValue)
	if !ok {
		return []Issue{badShape(f, v)}
	}
	var issues []Issue
	if wantYear && float64(n) != float64(int(n)) {
		issues = append(issues, fieldIssue(f, SeverityRequired, ReasonBadFormat,
			"field %q value %v is not a whole year", f.ID, float64(n)))
	}
	if f.Min != nil && float64(n) < *f.Min {
		issues = append(issues, fieldIssue(f, SeverityRequired, ReasonOutOfRange,
			"field %q value %v is below minimum %v", f.ID, float64(n), *f.Min))
	}
	if f.Max != nil && float64(n) > *f.Max {
		issues = append(issues, fieldIssue(f, SeverityRequired, ReasonOutOfRange,
			"field %q value %v is above maximum %v", f.ID, float64(n), *f.Max))
	}
	return issues
}

func checkList(f *Field, v Value, urls bool) []Issue {
	items, ok := v.(ListValue)
	if !ok {
		return []Issue{badShape(f, v)}
	}
	var issues []Issue
	if f.MinItems != nil && len(items) < *f.MinItems {
		issues = append(issues, fieldIssue(f, SeverityRequired, ReasonTooFewItems,
			"field %q has %d items, minimum is %d", f.ID, len(items), *f.MinItems))
	}
	if f.MaxItems != nil && len(items) > *f.MaxItems {
		issues = append(issues, fieldIssue(f, SeverityRequired, ReasonTooManyItems,
			"field %q has %d items, maximum is %d", f.ID, len(items), *f.MaxItems))
	}
	if urls {
		for _, it := range items {
			issues = append(issues, checkURL(f, it)...)
		}
	}
	return issues
}

func checkSelection(f *Field, v Value) []Issue {
	sel, ok := v.(SelectionValue)
	if !ok {
		return []Issue{badShape(f, v)}
	}
	var issues []Issue
	for _, oid := range sel {
		if _, ok := f.Option(oid); !ok {
			issues = append(issues, fieldIssue(f, SeverityRequired, ReasonUnknownOption,
				"field %q selects unknown option %q", f.ID, oid))
		}
	}
	if f.Kind == KindSingleSelect && len(sel) > 1 {
		issues = append(issues, fieldIssue(f, SeverityRequired, ReasonTooManyItems,
			"field %q selects %d options, single_select allows one", f.ID, len(sel)))
	}
	if f.Kind == KindMultiSelect {
		if f.MinItems != nil && len(sel) < *f.MinItems {
			issues = append(issues, fieldIssue(f, SeverityRequired, ReasonTooFewItems,
				"field %q selects %d options, minimum is %d", f.ID, len(sel), *f.MinItems))
		}
		if f.MaxItems != nil && len(sel) > *f.MaxItems {
			issues = append(issues, fieldIssue(f, SeverityRequired, ReasonTooManyItems,
				"field %q selects %d options, maximum is %d", f.ID, len(sel), *f.MaxItems))
		}
	}
	return issues
}

func checkCheckboxes(f *Field, v Value) []Issue {
	cv, ok := v.(CheckboxValue)
	if !ok {
		return []Issue{badShape(f, v)}
	}
	var issues []Issue
	positive := 0
	for _, o := range f.Options {
		state, marked := cv[o.ID]
		if !marked {
			continue
		}
		if !stateLegalForMode(f.Mode, state) {
			issues = append(issues, fieldIssue(f, SeverityRequired, ReasonIllegalState,
				"field %q option %q state %q is not legal for mode %q", f.ID, o.ID, state, f.Mode))
		}
		if state == PositiveState(f.Mode) {
			positive++
		}
	}
	for oid := range cv {
		if _, ok := f.Option(oid); !ok {
			issues = append(issues, fieldIssue(f, SeverityRequired, ReasonUnknownOption,
				"field %q marks unknown option %q", f.ID, oid))
		}
	}
	if f.MinItems != nil && positive < *f.MinItems {
		issues = append(issues, fieldIssue(f, SeverityRequired, ReasonTooFewItems,
			"field %q has %d checked options, minimum is %d", f.ID, positive, *f.MinItems))
	}
	if f.MaxItems != nil && positive > *f.MaxItems {
		issues = append(issues, fieldIssue(f, SeverityRequired, ReasonTooManyItems,
			"field %q has %d checked options, maximum is %d", f.ID, positive, *f.MaxItems))
	}
	return issues
}

func checkTable(f *Field, v Value) []Issue {
	rows, ok := v.(TableValue)
	if !ok {
		return []Issue{badShape(f, v)}
	}
	var issues []Issue
	if f.MinItems != nil && len(rows) < *f.MinItems {
		issues = append(issues, fieldIssue(f, SeverityRequired, ReasonRowCount,
			"field %q has %d rows, minimum is %d", f.ID, len(rows), *f.MinItems))
	}
	if f.MaxItems != nil && len(rows) > *f.MaxItems {
		issues = append(issues, fieldIssue(f, SeverityRequired, ReasonRowCount,
			"field %q has %d rows, maximum is %d", f.ID, len(rows), *f.MaxItems))
	}
	for i, row := range rows {
		for _, col := range f.Columns {
			cell, present := row[col.ID]
			if !present {
				if col.Required {
					issues = append(issues, fieldIssue(f, SeverityRequired, ReasonMissingCell,
						"field %q row %d is missing required column %q", f.ID, i, col.ID))
				}
				continue
			}
			issues = append(issues, checkCell(f, col, i, cell)...)
		}
		for cid := range row {
			if _, ok := f.Column(cid); !ok {
				issues = append(issues, fieldIssue(f, SeverityRequired, ReasonBadCell,
					"field %q row %d references unknown column %q", f.ID, i, cid))
			}
		}
	}
	return issues
}

func checkCell(f *Field, col Column, row int, cell Value) []Issue {
	bad := func(why string) []Issue {
		return []Issue{fieldIssue(f, SeverityRequired, ReasonBadCell,
			"field %q row %d column %q: %s", f.ID, row, col.ID, why)}
	}
	switch col.Type {
	case KindNumber, KindYear:
		n, ok := cell.(NumberValue)
		if !ok {
			return bad(fmt.Sprintf("expected a %s", col.Type))
		}
		if col.Type == KindYear && float64(n) != float64(int(n)) {
			return bad("expected a whole year")
		}
	case KindDate:
		s, ok := cell.(StringValue)
		if !ok {
			return bad("expected a date")
		}
		if _, err := time.Parse("2006-01-02", string(s)); err != nil {
			return bad(fmt.Sprintf("%q is not a YYYY-MM-DD date", string(s)))
		}
	case KindURL:
		s, ok := cell.(StringValue)
		if !ok {
			return bad("expected a URL")
		}
		if u, err := url.Parse(string(s)); err != nil || u.Scheme == "" || u.Host == "" {
			return bad(fmt.Sprintf("%q is not an absolute URL", string(s)))
		}
	default:
		if _, ok := cell.(StringValue); !ok {
			return bad("expected a string")
		}
	}
	return nil
}

// fieldValueEmpty reports whether a value is absent or holds nothing,
// independent of the field's answer state.
func fieldValueEmpty(f *Field, v Value) bool {
	switch val := v.(type) {
	case nil:
		return true
	case StringValue:
		return val == ""
	case NumberValue:
		return false
	case ListValue:
		return len(val) == 0
	case SelectionValue:
		return len(val) == 0
	case CheckboxValue:
		def := DefaultState(chooserMode(f))
		for _, s := range val {
			if s != def {
				return false
			}
		}
		return true
	case TableValue:
		return len(val) == 0
	default:
		return true
	}
}
