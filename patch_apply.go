package markform

import (
	"github.com/google/uuid"
)

type ApplyStatus string

const (
	StatusApplied  ApplyStatus = "applied"
	StatusPartial  ApplyStatus = "partial"
	StatusRejected ApplyStatus = "rejected"
)

// Patch rejection causes. Stable: callers branch on them.
const (
	CauseUnknownField  = "unknown_field"
	CauseKindMismatch  = "kind_mismatch"
	CauseWrongShape    = "wrong_shape"
	CauseUnknownOption = "unknown_option"
	CauseIllegalState  = "illegal_state"
	CauseRequiredField = "required_field"
	CauseUnknownNote   = "unknown_note"
	CauseDuplicateID   = "duplicate_id"
	CauseBadOp         = "bad_op"
)

type AppliedPatch struct {
	Index   int     `json:"index"`
	Op      PatchOp `json:"op"`
	FieldID Id      `json:"field_id,omitempty"`
}

type RejectedPatch struct {
	Index   int     `json:"index"`
	Op      PatchOp `json:"op"`
	FieldID Id      `json:"field_id,omitempty"`
	Cause   string  `json:"cause"`
	Message string  `json:"message"`
}

// PatchWarning records a non-fatal adjustment (a coercion) made to one
// patch while normalizing it.
type PatchWarning struct {
	Index   int    `json:"index"`
	FieldID Id     `json:"field_id,omitempty"`
	Message string `json:"message"`
}

type ApplyResult struct {
	Status   ApplyStatus     `json:"status"`
	Applied  []AppliedPatch  `json:"applied_patches"`
	Rejected []RejectedPatch `json:"rejected_patches"`
	Warnings []PatchWarning  `json:"warnings"`
	Inspect  *InspectResult  `json:"inspect_result"`
}

// ApplyOptions configures one applyPatches call. AllowSkipRequired is the
// configuration point for whether skip_field/abort_field may target a
// required field.
type ApplyOptions struct {
	AllowSkipRequired bool
	Validators        map[Id]CodeValidator
}

// preparedPatch is one patch that survived normalization and validation.
type preparedPatch struct {
	index int
	patch Patch
	value Value
	note  *Note
}

// ApplyPatches normalizes, coerces, validates and best-effort-applies a
// patch batch. Valid patches are applied to a copy of the response map,
// which replaces the live map in one swap only if at least one patch
// succeeded; a fully rejected batch leaves the form untouched. An empty
// batch is vacuously applied: every patch in it succeeded.
func ApplyPatches(form *ParsedForm, patches []Patch, opts *ApplyOptions) *ApplyResult {
	if opts == nil {
		opts = &ApplyOptions{}
	}
	result := &ApplyResult{
		Applied:  []AppliedPatch{},
		Rejected: []RejectedPatch{},
		Warnings: []PatchWarning{},
	}

	// Note ids claimed by earlier patches in this batch count as taken.
	pendingNotes := make(map[Id]bool)

	var prepared []preparedPatch
	for i, p := range patches {
		pp, warnings, rej := preparePatch(form, i, p, opts, pendingNotes)
		for _, w := range warnings {
			result.Warnings = append(result.Warnings, PatchWarning{Index: i, FieldID: p.FieldID, Message: w})
		}
		if rej != nil {
			result.Rejected = append(result.Rejected, RejectedPatch{
				Index: i, Op: p.Op, FieldID: p.FieldID, Cause: rej.cause, Message: rej.message,
			})
			continue
		}
		if pp.note != nil && p.Op == OpAddNote {
			pendingNotes[pp.note.ID] = true
		}
		prepared = append(prepared, pp)
	}

	if len(prepared) == 0 {
		if len(patches) == 0 {
			result.Status = StatusApplied
		} else {
			result.Status = StatusRejected
		}
		result.Inspect = Inspect(form, &ValidateOptions{Validators: opts.Validators})
		return result
	}

	// Apply to a copy; commit in one swap.
	next := make(map[Id]FieldResponse, len(form.Responses))
	for id, r := range form.Responses {
		next[id] = r
	}
	var noteAdds []*Note
	noteDrops := make(map[Id]bool)

	for _, pp := range prepared {
		p := pp.patch
		switch p.Op {
		case OpClearField:
			delete(next, p.FieldID)
		case OpSkipField:
			next[p.FieldID] = FieldResponse{State: AnswerSkipped, Reason: p.Reason}
		case OpAbortField:
			next[p.FieldID] = FieldResponse{State: AnswerAborted, Reason: p.Reason}
		case OpAddNote:
			noteAdds = append(noteAdds, pp.note)
		case OpRemoveNote:
			noteDrops[p.NoteID] = true
		case OpSetCheckboxes:
			next[p.FieldID] = mergeCheckboxes(form, next, p.FieldID, pp.value.(CheckboxValue))
		default:
			next[p.FieldID] = FieldResponse{State: AnswerAnswered, Value: pp.value}
		}
		result.Applied = append(result.Applied, AppliedPatch{Index: pp.index, Op: p.Op, FieldID: p.FieldID})
	}

	form.Responses = next
	if len(noteAdds) > 0 || len(noteDrops) > 0 {
		body := make([]BodyItem, 0, len(form.Body)+len(noteAdds))
		for _, it := range form.Body {
			if n, ok := it.(*Note); ok && noteDrops[n.ID] {
				continue
			}
			body = append(body, it)
		}
		for _, n := range noteAdds {
			body = append(body, n)
		}
		form.Body = body
		form.rebuildIndexes()
	}

	if len(result.Rejected) == 0 {
		result.Status = StatusApplied
	} else {
		result.Status = StatusPartial
	}
	result.Inspect = Inspect(form, &ValidateOptions{Validators: opts.Validators})
	return result
}

// mergeCheckboxes folds a per-option state update into the field's current
// map: options the patch does not mention keep their prior state, options
// set back to the default state drop out of the map.
func mergeCheckboxes(form *ParsedForm, next map[Id]FieldResponse, fieldID Id, update CheckboxValue) FieldResponse {
	f, _ := form.Field(fieldID)
	def := DefaultState(f.Mode)
	merged := make(CheckboxValue)
	if prior, ok := next[fieldID]; ok {
		if cv, ok := prior.Value.(CheckboxValue); ok {
			for oid, s := range cv {
				merged[oid] = s
			}
		}
	}
	for oid, s := range update {
		if s == def {
			delete(merged, oid)
		} else {
			merged[oid] = s
		}
	}
	return FieldResponse{State: AnswerAnswered, Value: merged}
}

// preparePatch normalizes and validates one patch independently of the
// rest of the batch.
func preparePatch(form *ParsedForm, index int, p Patch, opts *ApplyOptions, pendingNotes map[Id]bool) (preparedPatch, []string, *rejection) {
	pp := preparedPatch{index: index, patch: p}

	switch p.Op {
	case OpAddNote:
		if p.Text == "" {
			return pp, nil, rejectf(CauseBadOp, "add_note requires text")
		}
		if p.Ref != "" {
			el, ok := form.Lookup(p.Ref)
			if !ok {
				return pp, nil, rejectf(CauseUnknownField, "note references unknown id %q", p.Ref)
			}
			switch el.(type) {
			case *Field, *FieldGroup:
			default:
				return pp, nil, rejectf(CauseUnknownField, "note must reference a field or group, not %q", p.Ref)
			}
		}
		id := p.NoteID
		if id == "" {
			id = Id(uuid.NewString())
		}
		if _, taken := form.Lookup(id); taken || pendingNotes[id] {
			return pp, nil, rejectf(CauseDuplicateID, "id %q already exists", id)
		}
		pp.note = &Note{ID: id, Ref: p.Ref, Text: p.Text}
		return pp, nil, nil

	case OpRemoveNote:
		if _, ok := form.Lookup(p.NoteID); !ok {
			return pp, nil, rejectf(CauseUnknownNote, "no note with id %q", p.NoteID)
		}
		if _, ok := form.idIndex[p.NoteID].(*Note); !ok {
			return pp, nil, rejectf(CauseUnknownNote, "id %q is not a note", p.NoteID)
		}
		return pp, nil, nil
	}

	f, ok := form.Field(p.FieldID)
	if !ok {
		return pp, nil, rejectf(CauseUnknownField, "no field with id %q", p.FieldID)
	}

	switch p.Op {
	case OpClearField:
		return pp, nil, nil
	case OpSkipField, OpAbortField:
		if f.Required && !opts.AllowSkipRequired {
			return pp, nil, rejectf(CauseRequiredField,
				"%s is not allowed on required field %q", p.Op, f.ID)
		}
		return pp, nil, nil
	case OpSetString, OpSetNumber, OpSetStringList, OpSetURLList,
		OpSetSingleSelect, OpSetMultiSelect, OpSetCheckboxes, OpSetTable:
		if !opAllowsKind(p.Op, f.Kind) {
			return pp, nil, rejectf(CauseKindMismatch,
				"%s cannot target field %q of kind %q", p.Op, f.ID, f.Kind)
		}
		value, warnings, rej := coerceValue(f, p.Value)
		if rej != nil {
			return pp, warnings, rej
		}
		pp.value = value
		return pp, warnings, nil
	default:
		return pp, nil, rejectf(CauseBadOp, "unknown patch op %q", p.Op)
	}
}
