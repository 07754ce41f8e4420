package markform

import (
	"reflect"
	"strings"
	"testing"
)

func TestSerializeRoundTrip(t *testing.T) {
	t.Parallel()
	form := mustParse(t, intakeDoc)
	canonical := Serialize(form)

	again := mustParse(t, canonical)
	if !reflect.DeepEqual(form.Body, again.Body) {
		t.Error("body changed across a round trip")
	}
	if !reflect.DeepEqual(form.Responses, again.Responses) {
		t.Errorf("responses changed across a round trip:\n%#v\nvs\n%#v", form.Responses, again.Responses)
	}
	if !reflect.DeepEqual(form.Header, again.Header) {
		t.Error("header changed across a round trip")
	}

	if second := Serialize(again); second != canonical {
		t.Errorf("serialization is not idempotent:\nfirst:\n%s\nsecond:\n%s", canonical, second)
	}
}

func TestSerializeTableRoundTrip(t *testing.T) {
	t.Parallel()
	doc := "---\nmarkform: v1\n---\n" +
		"{% field kind=\"table\" id=\"items\" label=\"Items\" %}\n" +
		"{% column id=\"sku\" type=\"string\" required=true /%}\n" +
		"{% column id=\"qty\" type=\"number\" /%}\n" +
		"```value\n| sku | qty |\n| --- | --- |\n| A-1 | 3 |\n| B-2 | |\n```\n" +
		"{% /field %}\n"
	form := mustParse(t, doc)
	canonical := Serialize(form)
	again := mustParse(t, canonical)
	if !reflect.DeepEqual(form.Responses, again.Responses) {
		t.Errorf("table rows changed across a round trip:\n%s", canonical)
	}
	if second := Serialize(again); second != canonical {
		t.Errorf("table serialization is not idempotent:\n%s\nvs\n%s", canonical, second)
	}
}

func TestSerializeOmitsEmptyValueFence(t *testing.T) {
	t.Parallel()
	doc := "---\nmarkform: v1\n---\n" +
		"{% field kind=\"string\" id=\"a\" label=\"A\" %}\n{% /field %}\n" +
		"{% field kind=\"string_list\" id=\"b\" label=\"B\" %}\n{% answered /%}\n{% /field %}\n"
	form := mustParse(t, doc)
	out := Serialize(form)
	if strings.Contains(out, "```value") {
		t.Errorf("empty values must not emit a fence:\n%s", out)
	}
	if !strings.Contains(out, "{% answered /%}") {
		t.Errorf("answered-but-empty state lost:\n%s", out)
	}
	again := mustParse(t, out)
	resp := again.Response("b")
	if resp.State != AnswerAnswered {
		t.Errorf("answered state did not survive a round trip: %+v", resp)
	}
	if v, ok := resp.Value.(ListValue); !ok || len(v) != 0 {
		t.Errorf("value = %#v, want empty list", resp.Value)
	}
}

func TestSerializeSortsAttributes(t *testing.T) {
	t.Parallel()
	form := mustParse(t, intakeDoc)
	out := Serialize(form)
	want := `{% field id="age" kind="number" label="Age" max=130 min=0 %}`
	if !strings.Contains(out, want) {
		t.Errorf("attributes not in sorted canonical form, want %q in:\n%s", want, out)
	}
}

func TestSerializeRegeneratesMarkers(t *testing.T) {
	t.Parallel()
	form := mustParse(t, intakeDoc)
	result := ApplyPatches(form, []Patch{
		{Op: OpSetMultiSelect, FieldID: "colors", Value: []any{"red"}},
	}, nil)
	if result.Status != StatusApplied {
		t.Fatalf("rejected: %+v", result.Rejected)
	}
	out := Serialize(form)
	if !strings.Contains(out, "- [x] Red {% #red %}") {
		t.Errorf("selected option not marked:\n%s", out)
	}
	if !strings.Contains(out, "- [ ] Blue {% #blue %}") {
		t.Errorf("deselected option still marked:\n%s", out)
	}
}

func TestSerializeSkippedAndAbortedMarkers(t *testing.T) {
	t.Parallel()
	doc := "---\nmarkform: v1\n---\n" +
		"{% field kind=\"string\" id=\"a\" label=\"A\" %}\n{% skipped reason=\"n/a\" /%}\n{% /field %}\n" +
		"{% field kind=\"string\" id=\"b\" label=\"B\" %}\n{% aborted /%}\n{% /field %}\n"
	form := mustParse(t, doc)
	out := Serialize(form)
	if !strings.Contains(out, `{% skipped reason="n/a" /%}`) {
		t.Errorf("skip reason lost:\n%s", out)
	}
	if !strings.Contains(out, "{% aborted /%}") {
		t.Errorf("aborted marker lost:\n%s", out)
	}
}

func TestSerializeKeepsHeaderVerbatim(t *testing.T) {
	t.Parallel()
	doc := "---\nmarkform: v1\ntitle: 'Quoted: yes'\n# a header comment\n---\nbody prose\n"
	form := mustParse(t, doc)
	out := Serialize(form)
	if !strings.HasPrefix(out, "---\nmarkform: v1\ntitle: 'Quoted: yes'\n# a header comment\n---\n") {
		t.Errorf("header was rewritten:\n%s", out)
	}
}
