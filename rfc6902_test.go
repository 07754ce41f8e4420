package markform

import (
	"strings"
	"testing"
)

func TestPatchesFromJSONPatch(t *testing.T) {
	t.Parallel()
	form := mustParse(t, intakeDoc)
	ops := []JSONPatchOp{
		{Op: "replace", Path: "/responses/name", Value: "Ada"},
		{Op: "add", Path: "/responses/colors", Value: []any{"red"}},
		{Op: "remove", Path: "/responses/age"},
	}
	patches, err := PatchesFromJSONPatch(form, ops)
	if err != nil {
		t.Fatalf("translate failed: %v", err)
	}
	if len(patches) != 3 {
		t.Fatalf("patches = %+v", patches)
	}
	if patches[0].Op != OpSetString || patches[0].FieldID != "name" {
		t.Errorf("patch 0 = %+v", patches[0])
	}
	if patches[1].Op != OpSetMultiSelect {
		t.Errorf("patch 1 = %+v", patches[1])
	}
	if patches[2].Op != OpClearField || patches[2].FieldID != "age" {
		t.Errorf("patch 2 = %+v", patches[2])
	}
}

func TestJSONPatchAddressingErrors(t *testing.T) {
	t.Parallel()
	form := mustParse(t, intakeDoc)
	cases := []struct {
		name string
		op   JSONPatchOp
		want string
	}{
		{"outside responses", JSONPatchOp{Op: "replace", Path: "/header/title", Value: "x"}, "outside /responses/"},
		{"below a field", JSONPatchOp{Op: "replace", Path: "/responses/name/value", Value: "x"}, "below a field"},
		{"unknown field", JSONPatchOp{Op: "replace", Path: "/responses/ghost", Value: "x"}, "no field"},
		{"unsupported op", JSONPatchOp{Op: "test", Path: "/responses/name", Value: "x"}, "unsupported op"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := PatchesFromJSONPatch(form, []JSONPatchOp{tc.op})
			if err == nil {
				t.Fatal("expected translation error")
			}
			if !strings.Contains(err.Error(), tc.want) {
				t.Errorf("error %q does not mention %q", err, tc.want)
			}
		})
	}
}

func TestApplyJSONPatch(t *testing.T) {
	t.Parallel()
	form := mustParse(t, intakeDoc)
	result, err := ApplyJSONPatch(form, []JSONPatchOp{
		{Op: "replace", Path: "/responses/name", Value: "Grace"},
		{Op: "remove", Path: "/responses/age"},
	}, nil)
	if err != nil {
		t.Fatalf("apply failed: %v", err)
	}
	if result.Status != StatusApplied {
		t.Fatalf("status = %q, rejected: %+v", result.Status, result.Rejected)
	}
	if v := form.Response("name").Value; v != StringValue("Grace") {
		t.Errorf("name = %#v", v)
	}
	if resp := form.Response("age"); resp.State != AnswerUnanswered || resp.Value != nil {
		t.Errorf("age not cleared: %+v", resp)
	}
}
