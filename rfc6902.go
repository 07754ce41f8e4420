package markform

import (
	"fmt"
	"strings"

	"github.com/bytedance/sonic"
	jsonpatch "github.com/evanphx/json-patch/v5"
)

// JSONPatchOp is one RFC 6902 operation. Agents that speak JSON Patch can
// address the response map at /responses/<fieldId> and have their ops
// translated into typed Markform patches.
type JSONPatchOp struct {
	Op    string `json:"op"`
	Path  string `json:"path"`
	Value any    `json:"value,omitempty"`
}

const responsesPrefix = "/responses/"

// PatchesFromJSONPatch validates a JSON Patch document and translates it.
// add and replace become the set_* op matching the target field's kind,
// remove becomes clear_field. Addressing errors fail the whole translation;
// value-level problems surface later as per-patch rejections.
func PatchesFromJSONPatch(form *ParsedForm, ops []JSONPatchOp) ([]Patch, error) {
	raw, err := sonic.Marshal(ops)
	if err != nil {
		return nil, fmt.Errorf("marshal patch operations: %w", err)
	}
	if _, err := jsonpatch.DecodePatch(raw); err != nil {
		return nil, fmt.Errorf("invalid JSON Patch document: %w", err)
	}

	patches := make([]Patch, 0, len(ops))
	for i, op := range ops {
		if !strings.HasPrefix(op.Path, responsesPrefix) {
			return nil, fmt.Errorf("operation %d: path %q is outside %s", i, op.Path, responsesPrefix)
		}
		fieldID := Id(strings.TrimPrefix(op.Path, responsesPrefix))
		if strings.Contains(string(fieldID), "/") {
			return nil, fmt.Errorf("operation %d: path %q addresses below a field", i, op.Path)
		}
		switch op.Op {
		case "remove":
			patches = append(patches, Patch{Op: OpClearField, FieldID: fieldID})
		case "add", "replace":
			f, ok := form.Field(fieldID)
			if !ok {
				return nil, fmt.Errorf("operation %d: no field with id %q", i, fieldID)
			}
			setOp, ok := OpForKind(f.Kind)
			if !ok {
				return nil, fmt.Errorf("operation %d: field %q kind %q is not patchable", i, fieldID, f.Kind)
			}
			patches = append(patches, Patch{Op: setOp, FieldID: fieldID, Value: op.Value})
		default:
			return nil, fmt.Errorf("operation %d: unsupported op %q", i, op.Op)
		}
	}
	return patches, nil
}

// ApplyJSONPatch translates an RFC 6902 batch and applies it.
func ApplyJSONPatch(form *ParsedForm, ops []JSONPatchOp, opts *ApplyOptions) (*ApplyResult, error) {
	patches, err := PatchesFromJSONPatch(form, ops)
	if err != nil {
		return nil, err
	}
	return ApplyPatches(form, patches, opts), nil
}
