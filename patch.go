package markform

import (
	"fmt"

	"github.com/bytedance/sonic"
)

type PatchOp string

const (
	OpSetString       PatchOp = "set_string"
	OpSetNumber       PatchOp = "set_number"
	OpSetStringList   PatchOp = "set_string_list"
	OpSetURLList      PatchOp = "set_url_list"
	OpSetSingleSelect PatchOp = "set_single_select"
	OpSetMultiSelect  PatchOp = "set_multi_select"
	OpSetCheckboxes   PatchOp = "set_checkboxes"
	OpSetTable        PatchOp = "set_table"
	OpClearField      PatchOp = "clear_field"
	OpSkipField       PatchOp = "skip_field"
	OpAbortField      PatchOp = "abort_field"
	OpAddNote         PatchOp = "add_note"
	OpRemoveNote      PatchOp = "remove_note"
)

// Patch is one tagged-variant edit operation targeting a single field or
// note. Value carries whatever shape the caller produced; the patch engine
// coerces it against the target field's kind.
type Patch struct {
	Op      PatchOp `json:"op"`
	FieldID Id      `json:"field_id,omitempty"`
	Value   any     `json:"value,omitempty"`
	Reason  string  `json:"reason,omitempty"`
	NoteID  Id      `json:"note_id,omitempty"`
	Ref     Id      `json:"ref,omitempty"`
	Text    string  `json:"text,omitempty"`
}

// opKinds maps each set_* operation to the field kinds it may target.
var opKinds = map[PatchOp][]FieldKind{
	OpSetString:       {KindString, KindURL, KindDate},
	OpSetNumber:       {KindNumber, KindYear},
	OpSetStringList:   {KindStringList},
	OpSetURLList:      {KindURLList},
	OpSetSingleSelect: {KindSingleSelect},
	OpSetMultiSelect:  {KindMultiSelect},
	OpSetCheckboxes:   {KindCheckboxes},
	OpSetTable:        {KindTable},
}

// OpForKind returns the set_* operation addressing a field of the given
// kind.
func OpForKind(k FieldKind) (PatchOp, bool) {
	for op, kinds := range opKinds {
		for _, kk := range kinds {
			if kk == k {
				return op, true
			}
		}
	}
	return "", false
}

func opAllowsKind(op PatchOp, k FieldKind) bool {
	for _, kk := range opKinds[op] {
		if kk == k {
			return true
		}
	}
	return false
}

// DecodePatches reads a JSON patch batch.
func DecodePatches(data []byte) ([]Patch, error) {
	var patches []Patch
	if err := sonic.Unmarshal(data, &patches); err != nil {
		return nil, fmt.Errorf("decode patch batch: %w", err)
	}
	return patches, nil
}

// EncodePatches writes a patch batch as JSON.
func EncodePatches(patches []Patch) ([]byte, error) {
	data, err := sonic.Marshal(patches)
	if err != nil {
		return nil, fmt.Errorf("encode patch batch: %w", err)
	}
	return data, nil
}
