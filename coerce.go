package markform

import (
	"fmt"
	"strconv"
)

// rejection is the structured cause attached to one rejected patch.
type rejection struct {
	cause   string
	message string
}

func rejectf(cause, format string, args ...any) *rejection {
	return &rejection{cause: cause, message: fmt.Sprintf(format, args...)}
}

// coerceValue normalizes a patch value against the target field's kind.
// Every coercion that changes the caller's shape is surfaced as a warning;
// nothing is ever adjusted silently.
func coerceValue(f *Field, raw any) (Value, []string, *rejection) {
	switch f.Kind {
	case KindString, KindURL, KindDate:
		return coerceString(raw)
	case KindNumber, KindYear:
		return coerceNumber(raw)
	case KindStringList, KindURLList:
		return coerceList(raw)
	case KindSingleSelect:
		return coerceSingleSelect(f, raw)
	case KindMultiSelect:
		return coerceMultiSelect(f, raw)
	case KindCheckboxes:
		return coerceCheckboxes(f, raw)
	case KindTable:
		return coerceTable(f, raw)
	}
	return nil, nil, rejectf(CauseWrongShape, "field kind %q is not patchable", f.Kind)
}

func coerceString(raw any) (Value, []string, *rejection) {
	switch v := raw.(type) {
	case string:
		return StringValue(v), nil, nil
	case StringValue:
		return v, nil, nil
	case float64:
		return StringValue(formatNumber(v)), []string{fmt.Sprintf("coerced number %v to string", v)}, nil
	case int:
		return StringValue(strconv.Itoa(v)), []string{fmt.Sprintf("coerced number %d to string", v)}, nil
	default:
		return nil, nil, rejectf(CauseWrongShape, "expected a string, got %T", raw)
	}
}

func coerceNumber(raw any) (Value, []string, *rejection) {
	switch v := raw.(type) {
	case float64:
		return NumberValue(v), nil, nil
	case int:
		return NumberValue(float64(v)), nil, nil
	case NumberValue:
		return v, nil, nil
	case string:
		n, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return nil, nil, rejectf(CauseWrongShape, "string %q is not a number", v)
		}
		return NumberValue(n), []string{fmt.Sprintf("coerced string %q to number", v)}, nil
	default:
		return nil, nil, rejectf(CauseWrongShape, "expected a number, got %T", raw)
	}
}

func coerceList(raw any) (Value, []string, *rejection) {
	switch v := raw.(type) {
	case string:
		// A bare scalar becomes a single-element list, with a warning.
		return ListValue{v}, []string{fmt.Sprintf("wrapped bare string %q in a single-element list", v)}, nil
	case []string:
		return ListValue(v), nil, nil
	case ListValue:
		return v, nil, nil
	case []any:
		items := make(ListValue, 0, len(v))
		for i, el := range v {
			s, ok := el.(string)
			if !ok {
				return nil, nil, rejectf(CauseWrongShape, "list item %d is %T, expected a string", i, el)
			}
			items = append(items, s)
		}
		return items, nil, nil
	default:
		return nil, nil, rejectf(CauseWrongShape, "expected a list of strings, got %T", raw)
	}
}

func coerceSingleSelect(f *Field, raw any) (Value, []string, *rejection) {
	var (
		sel      SelectionValue
		warnings []string
	)
	switch v := raw.(type) {
	case string:
		sel = SelectionValue{OptionId(v)}
	case OptionId:
		sel = SelectionValue{v}
	case SelectionValue:
		sel = v
	case []any:
		if len(v) > 1 {
			return nil, nil, rejectf(CauseWrongShape, "single_select accepts one option, got %d", len(v))
		}
		if len(v) == 1 {
			s, ok := v[0].(string)
			if !ok {
				return nil, nil, rejectf(CauseWrongShape, "option id is %T, expected a string", v[0])
			}
			sel = SelectionValue{OptionId(s)}
			warnings = append(warnings, "unwrapped single-element array for single_select")
		} else {
			sel = SelectionValue{}
		}
	default:
		return nil, nil, rejectf(CauseWrongShape, "expected an option id, got %T", raw)
	}
	if len(sel) > 1 {
		return nil, nil, rejectf(CauseWrongShape, "single_select accepts one option, got %d", len(sel))
	}
	for _, oid := range sel {
		if _, ok := f.Option(oid); !ok {
			return nil, nil, rejectf(CauseUnknownOption, "field %q has no option %q", f.ID, oid)
		}
	}
	return sel, warnings, nil
}

func coerceMultiSelect(f *Field, raw any) (Value, []string, *rejection) {
	var (
		sel      SelectionValue
		warnings []string
	)
	switch v := raw.(type) {
	case string:
		sel = SelectionValue{OptionId(v)}
		warnings = append(warnings, fmt.Sprintf("wrapped bare option %q in a single-element selection", v))
	case SelectionValue:
		sel = v
	case []string:
		for _, s := range v {
			sel = append(sel, OptionId(s))
		}
	case []any:
		for i, el := range v {
			s, ok := el.(string)
			if !ok {
				return nil, nil, rejectf(CauseWrongShape, "selection item %d is %T, expected a string", i, el)
			}
			sel = append(sel, OptionId(s))
		}
	default:
		return nil, nil, rejectf(CauseWrongShape, "expected option ids, got %T", raw)
	}
	if sel == nil {
		sel = SelectionValue{}
	}
	for _, oid := range sel {
		if _, ok := f.Option(oid); !ok {
			return nil, nil, rejectf(CauseUnknownOption, "field %q has no option %q", f.ID, oid)
		}
	}
	return sel, warnings, nil
}

func coerceCheckboxes(f *Field, raw any) (Value, []string, *rejection) {
	entries := make(map[string]any)
	switch v := raw.(type) {
	case map[string]any:
		entries = v
	case map[string]string:
		for k, s := range v {
			entries[k] = s
		}
	case map[string]bool:
		for k, b := range v {
			entries[k] = b
		}
	case CheckboxValue:
		for k, s := range v {
			entries[string(k)] = string(s)
		}
	default:
		return nil, nil, rejectf(CauseWrongShape, "expected a map of option states, got %T", raw)
	}
	var warnings []string
	cv := make(CheckboxValue, len(entries))
	for key, el := range entries {
		oid := OptionId(key)
		if _, ok := f.Option(oid); !ok {
			return nil, nil, rejectf(CauseUnknownOption, "field %q has no option %q", f.ID, oid)
		}
		switch sv := el.(type) {
		case string:
			state := CheckboxState(sv)
			if !stateLegalForMode(f.Mode, state) {
				return nil, nil, rejectf(CauseIllegalState,
					"state %q is not legal for mode %q", sv, f.Mode)
			}
			cv[oid] = state
		case bool:
			// Booleans map onto the mode's positive/negative tokens.
			state := NegativeState(f.Mode)
			if sv {
				state = PositiveState(f.Mode)
			}
			cv[oid] = state
			warnings = append(warnings, fmt.Sprintf("coerced boolean for option %q to state %q", oid, state))
		default:
			return nil, nil, rejectf(CauseWrongShape, "option %q state is %T, expected a string", oid, el)
		}
	}
	return cv, warnings, nil
}

func coerceTable(f *Field, raw any) (Value, []string, *rejection) {
	var (
		rows     []any
		warnings []string
	)
	switch v := raw.(type) {
	case []any:
		rows = v
	case map[string]any:
		rows = []any{v}
		warnings = append(warnings, "wrapped bare row object in a single-row table")
	case TableValue:
		if rej := checkTableShape(f, v); rej != nil {
			return nil, nil, rej
		}
		return v, nil, nil
	default:
		return nil, nil, rejectf(CauseWrongShape, "expected an array of row objects, got %T", raw)
	}
	out := make(TableValue, 0, len(rows))
	for i, el := range rows {
		obj, ok := el.(map[string]any)
		if !ok {
			return nil, nil, rejectf(CauseWrongShape, "row %d is %T, expected an object", i, el)
		}
		row := make(TableRow, len(obj))
		for key, cell := range obj {
			col, ok := f.Column(key)
			if !ok {
				return nil, nil, rejectf(CauseWrongShape, "row %d references unknown column %q", i, key)
			}
			cv, warns, rej := coerceCell(col, i, cell)
			if rej != nil {
				return nil, nil, rej
			}
			warnings = append(warnings, warns...)
			row[key] = cv
		}
		out = append(out, row)
	}
	return out, warnings, nil
}

func coerceCell(col Column, row int, cell any) (Value, []string, *rejection) {
	switch col.Type {
	case KindNumber, KindYear:
		switch v := cell.(type) {
		case float64:
			return NumberValue(v), nil, nil
		case int:
			return NumberValue(float64(v)), nil, nil
		case string:
			n, err := strconv.ParseFloat(v, 64)
			if err != nil {
				return nil, nil, rejectf(CauseWrongShape,
					"row %d column %q: %q is not a number", row, col.ID, v)
			}
			return NumberValue(n), []string{fmt.Sprintf("row %d column %q: coerced string to number", row, col.ID)}, nil
		}
	default:
		switch v := cell.(type) {
		case string:
			return StringValue(v), nil, nil
		case float64:
			return StringValue(formatNumber(v)),
				[]string{fmt.Sprintf("row %d column %q: coerced number to string", row, col.ID)}, nil
		}
	}
	return nil, nil, rejectf(CauseWrongShape,
		"row %d column %q holds %T, expected a %s", row, col.ID, cell, col.Type)
}

// checkTableShape validates an already-typed table value from a Go caller.
func checkTableShape(f *Field, rows TableValue) *rejection {
	for i, row := range rows {
		for key := range row {
			if _, ok := f.Column(key); !ok {
				return rejectf(CauseWrongShape, "row %d references unknown column %q", i, key)
			}
		}
	}
	return nil
}

// formatNumber renders a float the way the serializer does: shortest
// representation that round-trips.
func formatNumber(n float64) string {
	return strconv.FormatFloat(n, 'f', -1, 64)
}
