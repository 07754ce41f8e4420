package markform

import (
	"sort"
	"strconv"
	"strings"
)

// Serialize renders a form back to canonical text: attributes sorted,
// markers regenerated from current state, empty value blocks omitted, in
// whichever concrete syntax the input used. It is total for any
// structurally valid ParsedForm and idempotent after one pass.
func Serialize(form *ParsedForm) string {
	w := &docWriter{style: form.Style}
	w.b.WriteString(form.HeaderRaw)
	for _, it := range form.Body {
		w.writeItem(form, it)
	}
	out := w.b.String()
	if !strings.HasSuffix(out, "\n") {
		out += "\n"
	}
	return out
}

type docWriter struct {
	style SyntaxStyle
	b     strings.Builder
}

func (w *docWriter) line(s string) {
	w.b.WriteString(s)
	w.b.WriteByte('\n')
}

func (w *docWriter) writeItem(form *ParsedForm, it BodyItem) {
	switch v := it.(type) {
	case Prose:
		w.line(v.Text)
	case *Field:
		w.writeField(form, v)
	case *FieldGroup:
		attrs := []attr{{key: "id", val: attrValue{kind: 's', s: string(v.ID)}}}
		if v.Label != "" {
			attrs = append(attrs, attr{key: "label", val: attrValue{kind: 's', s: v.Label}})
		}
		w.line(w.openTag("group", attrs))
		for _, inner := range v.Items {
			w.writeItem(form, inner)
		}
		w.line(w.closeTag("group"))
	case *Note:
		attrs := []attr{{key: "id", val: attrValue{kind: 's', s: string(v.ID)}}}
		if v.Ref != "" {
			attrs = append(attrs, attr{key: "for", val: attrValue{kind: 's', s: string(v.Ref)}})
		}
		w.line(w.openTag("note", attrs))
		if v.Text != "" {
			w.line(v.Text)
		}
		w.line(w.closeTag("note"))
	}
}

func (w *docWriter) writeField(form *ParsedForm, f *Field) {
	w.line(w.openTag("field", fieldAttrs(f)))
	for _, p := range f.Prose {
		w.line(p)
	}
	resp := form.Response(f.ID)

	if f.Kind.IsChooser() {
		w.writeOptions(f, resp)
	}
	if f.Kind == KindTable {
		for _, col := range f.Columns {
			w.line(w.selfTag("column", columnAttrs(col)))
		}
	}

	empty := fieldValueEmpty(f, resp.Value)
	if resp.State == AnswerAnswered && !empty && !f.Kind.IsChooser() {
		w.writeValueFence(f, resp.Value)
	}
	switch {
	case resp.State == AnswerAnswered && empty:
		w.line(w.selfTag("answered", nil))
	case resp.State == AnswerSkipped:
		w.line(w.selfTag("skipped", reasonAttrs(resp.Reason)))
	case resp.State == AnswerAborted:
		w.line(w.selfTag("aborted", reasonAttrs(resp.Reason)))
	}
	w.line(w.closeTag("field"))
}

// writeOptions regenerates option markers from the current response rather
// than carrying source markers over.
func (w *docWriter) writeOptions(f *Field, resp FieldResponse) {
	mode := chooserMode(f)
	for _, o := range f.Options {
		state := DefaultState(mode)
		switch v := resp.Value.(type) {
		case SelectionValue:
			for _, oid := range v {
				if oid == o.ID {
					state = StateDone
				}
			}
		case CheckboxValue:
			if s, ok := v[o.ID]; ok {
				state = s
			}
		}
		token := checkboxTokens[mode][state]
		w.line("- [" + string(token) + "] " + o.Label + " " + w.annotation(string(o.ID)))
	}
}

func (w *docWriter) writeValueFence(f *Field, v Value) {
	w.line("```value")
	switch val := v.(type) {
	case StringValue:
		w.line(string(val))
	case NumberValue:
		w.line(formatNumber(float64(val)))
	case ListValue:
		for _, item := range val {
			w.line("- " + item)
		}
	case TableValue:
		w.writeTableRows(f, val)
	}
	w.line("```")
}

func (w *docWriter) writeTableRows(f *Field, rows TableValue) {
	header := make([]string, len(f.Columns))
	rule := make([]string, len(f.Columns))
	for i, col := range f.Columns {
		header[i] = col.ID
		rule[i] = "---"
	}
	w.line("| " + strings.Join(header, " | ") + " |")
	w.line("| " + strings.Join(rule, " | ") + " |")
	for _, row := range rows {
		cells := make([]string, len(f.Columns))
		for i, col := range f.Columns {
			cells[i] = cellText(row[col.ID])
		}
		w.line("| " + strings.Join(cells, " | ") + " |")
	}
}

func cellText(v Value) string {
	switch val := v.(type) {
	case StringValue:
		return string(val)
	case NumberValue:
		return formatNumber(float64(val))
	default:
		return ""
	}
}

func fieldAttrs(f *Field) []attr {
	attrs := []attr{
		{key: "id", val: attrValue{kind: 's', s: string(f.ID)}},
		{key: "kind", val: attrValue{kind: 's', s: string(f.Kind)}},
		{key: "label", val: attrValue{kind: 's', s: f.Label}},
	}
	if f.Required {
		attrs = append(attrs, attr{key: "required", val: attrValue{kind: 'b', b: true}})
	}
	if f.Role != "" && f.Role != RoleAgent {
		attrs = append(attrs, attr{key: "role", val: attrValue{kind: 's', s: f.Role}})
	}
	if f.Kind == KindCheckboxes {
		attrs = append(attrs, attr{key: "mode", val: attrValue{kind: 's', s: string(f.Mode)}})
	}
	addInt := func(key string, p *int) {
		if p != nil {
			attrs = append(attrs, attr{key: key, val: attrValue{kind: 'n', n: float64(*p)}})
		}
	}
	addNum := func(key string, p *float64) {
		if p != nil {
			attrs = append(attrs, attr{key: key, val: attrValue{kind: 'n', n: *p}})
		}
	}
	addInt("minLength", f.MinLength)
	addInt("maxLength", f.MaxLength)
	addInt("minItems", f.MinItems)
	addInt("maxItems", f.MaxItems)
	addNum("min", f.Min)
	addNum("max", f.Max)
	if f.Pattern != "" {
		attrs = append(attrs, attr{key: "pattern", val: attrValue{kind: 's', s: f.Pattern}})
	}
	return attrs
}

func columnAttrs(col Column) []attr {
	attrs := []attr{
		{key: "id", val: attrValue{kind: 's', s: col.ID}},
		{key: "type", val: attrValue{kind: 's', s: string(col.Type)}},
	}
	if col.Label != "" {
		attrs = append(attrs, attr{key: "label", val: attrValue{kind: 's', s: col.Label}})
	}
	if col.Required {
		attrs = append(attrs, attr{key: "required", val: attrValue{kind: 'b', b: true}})
	}
	return attrs
}

func reasonAttrs(reason string) []attr {
	if reason == "" {
		return nil
	}
	return []attr{{key: "reason", val: attrValue{kind: 's', s: reason}}}
}

// renderAttrs emits attributes sorted alphabetically by key.
func renderAttrs(attrs []attr) string {
	sorted := append([]attr{}, attrs...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].key < sorted[j].key })
	var b strings.Builder
	for _, a := range sorted {
		b.WriteByte(' ')
		b.WriteString(a.key)
		b.WriteByte('=')
		switch a.val.kind {
		case 's':
			b.WriteString(strconv.Quote(a.val.s))
		case 'b':
			b.WriteString(strconv.FormatBool(a.val.b))
		case 'n':
			b.WriteString(formatNumber(a.val.n))
		}
	}
	return b.String()
}

func (w *docWriter) openTag(name string, attrs []attr) string {
	if w.style == SyntaxComment {
		return "<!-- " + name + renderAttrs(attrs) + " -->"
	}
	return "{% " + name + renderAttrs(attrs) + " %}"
}

func (w *docWriter) closeTag(name string) string {
	if w.style == SyntaxComment {
		return "<!-- /" + name + " -->"
	}
	return "{% /" + name + " %}"
}

func (w *docWriter) selfTag(name string, attrs []attr) string {
	if w.style == SyntaxComment {
		return "<!-- " + name + renderAttrs(attrs) + " /-->"
	}
	return "{% " + name + renderAttrs(attrs) + " /%}"
}

func (w *docWriter) annotation(id string) string {
	if w.style == SyntaxComment {
		return "<!-- #" + id + " -->"
	}
	return "{% #" + id + " %}"
}
