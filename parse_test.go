package markform

import (
	"strings"
	"testing"
)

const intakeDoc = `---
markform: v1
title: Intake
---

# Intake

{% field kind="string" id="name" label="Full name" required=true %}
{% /field %}

{% group id="details" label="Details" %}
{% field kind="number" id="age" label="Age" min=0 max=130 %}
` + "```value\n42\n```" + `
{% /field %}
{% field kind="multi_select" id="colors" label="Colors" %}
- [ ] Red {% #red %}
- [x] Blue {% #blue %}
{% /field %}
{% /group %}

{% field kind="checkboxes" id="tasks" label="Tasks" mode="multi" %}
- [x] Write {% #write %}
- [/] Review {% #review %}
- [ ] Ship {% #ship %}
{% /field %}

{% note id="n1" for="name" %}
Prefer full legal name.
{% /note %}
`

func mustParse(t *testing.T, text string) *ParsedForm {
	t.Helper()
	form, err := Parse(text)
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	return form
}

func TestParseIntake(t *testing.T) {
	t.Parallel()
	form := mustParse(t, intakeDoc)

	if form.Version != "v1" {
		t.Errorf("expected version v1, got %q", form.Version)
	}
	if form.Style != SyntaxInline {
		t.Errorf("expected inline syntax, got %q", form.Style)
	}

	fields := form.Fields()
	if len(fields) != 4 {
		t.Fatalf("expected 4 fields, got %d", len(fields))
	}
	if fields[0].ID != "name" || fields[1].ID != "age" || fields[2].ID != "colors" || fields[3].ID != "tasks" {
		t.Errorf("fields out of document order: %v %v %v %v",
			fields[0].ID, fields[1].ID, fields[2].ID, fields[3].ID)
	}

	if g, ok := form.Group("details"); !ok {
		t.Error("group details missing from index")
	} else if len(g.Fields()) != 2 {
		t.Errorf("expected 2 fields in group, got %d", len(g.Fields()))
	}

	if resp := form.Response("age"); resp.State != AnswerAnswered {
		t.Errorf("age should be answered, got %q", resp.State)
	} else if n, ok := resp.Value.(NumberValue); !ok || float64(n) != 42 {
		t.Errorf("age value = %#v, want 42", resp.Value)
	}

	if resp := form.Response("colors"); resp.State != AnswerAnswered {
		t.Errorf("colors should be answered, got %q", resp.State)
	} else if sel, ok := resp.Value.(SelectionValue); !ok || len(sel) != 1 || sel[0] != "blue" {
		t.Errorf("colors value = %#v, want [blue]", resp.Value)
	}

	if resp := form.Response("tasks"); resp.State != AnswerAnswered {
		t.Errorf("tasks should be answered, got %q", resp.State)
	} else if cv, ok := resp.Value.(CheckboxValue); !ok {
		t.Errorf("tasks value = %#v", resp.Value)
	} else {
		if cv["write"] != StateDone || cv["review"] != StateActive {
			t.Errorf("tasks states = %v", cv)
		}
		if _, stored := cv["ship"]; stored {
			t.Error("default-state option should not be stored")
		}
	}

	if resp := form.Response("name"); resp.State != AnswerUnanswered {
		t.Errorf("name should be unanswered, got %q", resp.State)
	}

	notes := form.Notes()
	if len(notes) != 1 || notes[0].Ref != "name" || notes[0].Text != "Prefer full legal name." {
		t.Errorf("unexpected notes: %+v", notes)
	}
}

func TestParseEmptyBody(t *testing.T) {
	t.Parallel()
	form := mustParse(t, "---\nmarkform: v1\n---\n")
	if len(form.Fields()) != 0 {
		t.Fatalf("expected 0 fields, got %d", len(form.Fields()))
	}
	report := Inspect(form, nil)
	if !report.IsComplete || !report.FormValid {
		t.Errorf("empty form should be complete and valid, got complete=%v valid=%v",
			report.IsComplete, report.FormValid)
	}
}

func TestParseHeaderErrors(t *testing.T) {
	t.Parallel()
	cases := []struct {
		name string
		text string
		want string
	}{
		{"no header", "# hi\n", "missing metadata header"},
		{"unterminated", "---\nmarkform: v1\n", "unterminated metadata header"},
		{"no marker", "---\ntitle: x\n---\n", "version marker"},
		{"empty input", "", "missing metadata header"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			form, err := Parse(tc.text)
			if err == nil {
				t.Fatalf("expected parse error, got form %+v", form)
			}
			if !strings.Contains(err.Error(), tc.want) {
				t.Errorf("error %q does not mention %q", err, tc.want)
			}
			if form != nil {
				t.Error("no partial model may be returned on parse error")
			}
		})
	}
}

func TestParseStructuralErrors(t *testing.T) {
	t.Parallel()
	header := "---\nmarkform: v1\n---\n"
	cases := []struct {
		name string
		body string
		want string
	}{
		{
			"duplicate id",
			"{% field kind=\"string\" id=\"a\" label=\"A\" %}\n{% /field %}\n{% field kind=\"string\" id=\"a\" label=\"B\" %}\n{% /field %}\n",
			"duplicate id",
		},
		{
			"option collides with field id",
			"{% field kind=\"single_select\" id=\"a\" label=\"A\" %}\n- [ ] A {% #a %}\n{% /field %}\n",
			"duplicate id",
		},
		{
			"missing label",
			"{% field kind=\"string\" id=\"a\" %}\n{% /field %}\n",
			"missing label",
		},
		{
			"unknown kind",
			"{% field kind=\"blob\" id=\"a\" label=\"A\" %}\n{% /field %}\n",
			"unknown field kind",
		},
		{
			"nested field",
			"{% field kind=\"string\" id=\"a\" label=\"A\" %}\n{% field kind=\"string\" id=\"b\" label=\"B\" %}\n{% /field %}\n{% /field %}\n",
			"nested inside field",
		},
		{
			"nested group",
			"{% group id=\"g\" %}\n{% group id=\"h\" %}\n{% /group %}\n{% /group %}\n",
			"nested inside group",
		},
		{
			"option without annotation",
			"{% field kind=\"single_select\" id=\"a\" label=\"A\" %}\n- [ ] Red\n{% /field %}\n",
			"missing id annotation",
		},
		{
			"illegal state token for mode",
			"{% field kind=\"checkboxes\" id=\"a\" label=\"A\" mode=\"simple\" %}\n- [/] Red {% #red %}\n{% /field %}\n",
			"not legal for mode",
		},
		{
			"note references unknown id",
			"{% note id=\"n\" for=\"ghost\" %}\nx\n{% /note %}\n",
			"unknown id",
		},
		{
			"unterminated field",
			"{% field kind=\"string\" id=\"a\" label=\"A\" %}\n",
			"unterminated field",
		},
		{
			"value block on chooser",
			"{% field kind=\"single_select\" id=\"a\" label=\"A\" %}\n```value\nx\n```\n{% /field %}\n",
			"not allowed",
		},
		{
			"skipped with value",
			"{% field kind=\"string\" id=\"a\" label=\"A\" %}\n```value\nx\n```\n{% skipped /%}\n{% /field %}\n",
			"carries a value",
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Parse(header + tc.body)
			if err == nil {
				t.Fatal("expected parse error")
			}
			if !strings.Contains(err.Error(), tc.want) {
				t.Errorf("error %q does not mention %q", err, tc.want)
			}
		})
	}
}

func TestParseForeignTagsPassThrough(t *testing.T) {
	t.Parallel()
	doc := "---\nmarkform: v1\n---\n{% callout level=\"info\" %}\nbe careful\n{% /callout %}\n"
	form := mustParse(t, doc)
	if len(form.Fields()) != 0 {
		t.Fatalf("foreign tags must not become fields")
	}
	out := Serialize(form)
	if !strings.Contains(out, "{% callout level=\"info\" %}") || !strings.Contains(out, "{% /callout %}") {
		t.Errorf("foreign tags were not preserved:\n%s", out)
	}
}

func TestParseForeignTagPairStaysInsideField(t *testing.T) {
	t.Parallel()
	doc := "---\nmarkform: v1\n---\n" +
		"{% field kind=\"string\" id=\"a\" label=\"A\" %}\n" +
		"{% callout level=\"info\" %}\ncareful here\n{% /callout %}\n" +
		"{% /field %}\n"
	form := mustParse(t, doc)
	f, _ := form.Field("a")
	want := []string{`{% callout level="info" %}`, "careful here", "{% /callout %}"}
	if len(f.Prose) != len(want) {
		t.Fatalf("field prose = %q", f.Prose)
	}
	for i := range want {
		if f.Prose[i] != want[i] {
			t.Errorf("prose[%d] = %q, want %q", i, f.Prose[i], want[i])
		}
	}
	out := Serialize(form)
	if strings.Index(out, "{% /callout %}") > strings.Index(out, "{% /field %}") {
		t.Errorf("foreign closing tag migrated outside the field:\n%s", out)
	}
}

func TestParseErrorLineNumbers(t *testing.T) {
	t.Parallel()
	noteDoc := "---\nmarkform: v1\n---\nsome prose\n{% note id=\"n\" for=\"ghost\" %}\nx\n{% /note %}\n"
	if _, err := Parse(noteDoc); err == nil || !strings.HasPrefix(err.Error(), "line 5:") {
		t.Errorf("note reference error should point at the note tag line, got %v", err)
	}

	tableDoc := "---\nmarkform: v1\n---\n" +
		"{% field kind=\"table\" id=\"t\" label=\"T\" %}\n" +
		"{% column id=\"sku\" type=\"string\" /%}\n" +
		"```value\n| ghost |\n| --- |\n```\n" +
		"{% /field %}\n"
	if _, err := Parse(tableDoc); err == nil || !strings.HasPrefix(err.Error(), "line 7:") {
		t.Errorf("table header error should point at the header row, got %v", err)
	}
}

func TestParsePreservesUnicodeAndWhitespace(t *testing.T) {
	t.Parallel()
	doc := "---\nmarkform: v1\n---\n{% field kind=\"string\" id=\"q\" label=\"Café — résumé\" %}\n```value\n  два  слова  \n```\n{% /field %}\n"
	form := mustParse(t, doc)
	f, _ := form.Field("q")
	if f.Label != "Café — résumé" {
		t.Errorf("label mangled: %q", f.Label)
	}
	if v := form.Response("q").Value; v != StringValue("  два  слова  ") {
		t.Errorf("value mangled: %#v", v)
	}
}

func TestParseAnswerStateMarkers(t *testing.T) {
	t.Parallel()
	doc := "---\nmarkform: v1\n---\n" +
		"{% field kind=\"string_list\" id=\"a\" label=\"A\" %}\n{% answered /%}\n{% /field %}\n" +
		"{% field kind=\"string\" id=\"b\" label=\"B\" %}\n{% skipped reason=\"not relevant\" /%}\n{% /field %}\n" +
		"{% field kind=\"string\" id=\"c\" label=\"C\" %}\n{% aborted /%}\n{% /field %}\n"
	form := mustParse(t, doc)

	a := form.Response("a")
	if a.State != AnswerAnswered {
		t.Errorf("a state = %q", a.State)
	}
	if v, ok := a.Value.(ListValue); !ok || len(v) != 0 {
		t.Errorf("a value = %#v, want empty list", a.Value)
	}
	b := form.Response("b")
	if b.State != AnswerSkipped || b.Reason != "not relevant" {
		t.Errorf("b = %+v", b)
	}
	if c := form.Response("c"); c.State != AnswerAborted {
		t.Errorf("c state = %q", c.State)
	}
}

func TestParseTableField(t *testing.T) {
	t.Parallel()
	doc := "---\nmarkform: v1\n---\n" +
		"{% field kind=\"table\" id=\"items\" label=\"Items\" %}\n" +
		"{% column id=\"sku\" label=\"SKU\" type=\"string\" required=true /%}\n" +
		"{% column id=\"qty\" label=\"Qty\" type=\"number\" /%}\n" +
		"```value\n| sku | qty |\n| --- | --- |\n| A-1 | 3 |\n| B-2 | |\n```\n" +
		"{% /field %}\n"
	form := mustParse(t, doc)
	rows, ok := form.Response("items").Value.(TableValue)
	if !ok || len(rows) != 2 {
		t.Fatalf("rows = %#v", form.Response("items").Value)
	}
	if rows[0]["sku"] != StringValue("A-1") || rows[0]["qty"] != NumberValue(3) {
		t.Errorf("row 0 = %#v", rows[0])
	}
	if _, present := rows[1]["qty"]; present {
		t.Errorf("empty cell should be absent, row 1 = %#v", rows[1])
	}

	bad := strings.Replace(doc, "| sku | qty |", "| sku | ghost |", 1)
	if _, err := Parse(bad); err == nil || !strings.Contains(err.Error(), "unknown column") {
		t.Errorf("expected unknown column error, got %v", err)
	}
}
