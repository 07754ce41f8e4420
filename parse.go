package markform

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// ParseError is the fatal tier: the input is not a valid Markform document
// and no partial model is returned.
type ParseError struct {
	Line int
	Col  int
	Msg  string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("line %d:%d: %s", e.Line, e.Col, e.Msg)
}

func errf(line int, format string, args ...any) *ParseError {
	return &ParseError{Line: line, Col: 1, Msg: fmt.Sprintf(format, args...)}
}

// optionLine matches a chooser option: "- [x] Label {% #id %}".
var optionLine = regexp.MustCompile(`^-\s+\[(.)\]\s+(.*?)\s*\{%\s*#([^\s%}]+)\s*%\}\s*$`)

// Parse turns raw document text into a ParsedForm. It accepts either
// concrete tag syntax, remembers which one was used, and fails with a
// ParseError on any structural violation.
func Parse(text string) (*ParsedForm, error) {
	style := DetectSyntax(text)
	pre := PreprocessSyntax(text)

	lines := strings.Split(pre, "\n")
	if len(lines) > 0 && lines[len(lines)-1] == "" {
		lines = lines[:len(lines)-1]
	}

	form := &ParsedForm{
		Style:     style,
		Responses: make(map[Id]FieldResponse),
	}

	bodyStart, err := parseHeader(form, lines)
	if err != nil {
		return nil, err
	}
	noteLines := make(map[Id]int)
	if err := parseBody(form, lines, bodyStart, noteLines); err != nil {
		return nil, err
	}
	form.rebuildIndexes()
	if err := checkReferences(form, noteLines); err != nil {
		return nil, err
	}
	return form, nil
}

// parseHeader splits the front-matter block, validates the format-version
// marker and returns the index of the first body line.
func parseHeader(form *ParsedForm, lines []string) (int, error) {
	if len(lines) == 0 || strings.TrimSpace(lines[0]) != "---" {
		return 0, errf(1, "missing metadata header")
	}
	end := -1
	for i := 1; i < len(lines); i++ {
		if strings.TrimSpace(lines[i]) == "---" {
			end = i
			break
		}
	}
	if end < 0 {
		return 0, errf(1, "unterminated metadata header")
	}
	meta := make(map[string]any)
	if err := yaml.Unmarshal([]byte(strings.Join(lines[1:end], "\n")), &meta); err != nil {
		return 0, errf(2, "invalid metadata header: %v", err)
	}
	version, _ := meta["markform"].(string)
	if version == "" {
		return 0, errf(1, "metadata header missing markform version marker")
	}
	form.HeaderRaw = strings.Join(lines[:end+1], "\n") + "\n"
	form.Header = meta
	form.Version = version
	return end + 1, nil
}

// fieldBuilder accumulates the pieces of one open field tag.
type fieldBuilder struct {
	field     *Field
	line      int
	valueSeen bool
	valueLine int // line number of the first fence content line
	valueRaw  []string
	states    map[OptionId]CheckboxState
	stateTag  string // "", "answered", "skipped", "aborted"
	reason    string
}

// parseBody scans the body lines. noteLines collects the source line of each
// note tag for the reference check that runs after indexing.
func parseBody(form *ParsedForm, lines []string, start int, noteLines map[Id]int) error {
	seen := make(map[Id]int)
	claim := func(id Id, line int) error {
		if prev, dup := seen[id]; dup {
			return errf(line, "duplicate id %q (first declared on line %d)", id, prev)
		}
		seen[id] = line
		return nil
	}

	var (
		prose    []string
		curGroup *FieldGroup
		groupLn  int
		cur      *fieldBuilder
		curNote  *Note
		noteLn   int
		noteTxt  []string
	)

	appendItem := func(it BodyItem) {
		if curGroup != nil {
			curGroup.Items = append(curGroup.Items, it)
		} else {
			form.Body = append(form.Body, it)
		}
	}
	flushProse := func() {
		if len(prose) > 0 {
			appendItem(Prose{Text: strings.Join(prose, "\n")})
			prose = nil
		}
	}

	i := start
	for i < len(lines) {
		line := lines[i]
		ln := i + 1

		// Note bodies are raw text until the closing tag.
		if curNote != nil {
			if isTagLine(line) {
				if t, err := lexTag(line); err == nil && t.closing && t.name == "note" {
					curNote.Text = strings.Join(noteTxt, "\n")
					appendItem(curNote)
					curNote = nil
					noteTxt = nil
					i++
					continue
				}
			}
			noteTxt = append(noteTxt, line)
			i++
			continue
		}

		// Fenced blocks: a value fence feeds the open field, anything else
		// is verbatim prose.
		if c, n, ok := opensFence(line); ok {
			info := strings.TrimSpace(line[n:])
			end := i + 1
			for end < len(lines) && !closesFence(lines[end], c, n) {
				end++
			}
			if end >= len(lines) {
				return errf(ln, "unterminated fenced block")
			}
			if info == "value" {
				if cur == nil {
					return errf(ln, "value block outside a field")
				}
				if cur.field.Kind.IsChooser() {
					return errf(ln, "value block not allowed on %s field %q", cur.field.Kind, cur.field.ID)
				}
				if cur.valueSeen {
					return errf(ln, "duplicate value block in field %q", cur.field.ID)
				}
				cur.valueSeen = true
				cur.valueLine = ln + 1
				cur.valueRaw = append([]string{}, lines[i+1:end]...)
			} else if cur != nil {
				cur.field.Prose = append(cur.field.Prose, lines[i:end+1]...)
			} else {
				prose = append(prose, lines[i:end+1]...)
			}
			i = end + 1
			continue
		}

		if isTagLine(line) {
			t, err := lexTag(line)
			if err != nil {
				return errf(ln, "%v", err)
			}
			switch {
			case t.annotation != "":
				// Stray annotations are anchors, not structure.
				if cur != nil {
					cur.field.Prose = append(cur.field.Prose, line)
				} else {
					prose = append(prose, line)
				}
			case t.closing:
				switch t.name {
				case "field":
					if cur == nil {
						return errf(ln, "closing field tag without open field")
					}
					f, resp, err := finishField(cur)
					if err != nil {
						return err
					}
					appendItem(f)
					if resp != nil {
						form.Responses[f.ID] = *resp
					}
					cur = nil
				case "group":
					if cur != nil {
						return errf(ln, "closing group tag inside field %q", cur.field.ID)
					}
					if curGroup == nil {
						return errf(ln, "closing group tag without open group")
					}
					if len(prose) > 0 {
						curGroup.Items = append(curGroup.Items, Prose{Text: strings.Join(prose, "\n")})
						prose = nil
					}
					form.Body = append(form.Body, curGroup)
					curGroup = nil
				case "note":
					return errf(ln, "closing note tag without open note")
				default:
					// Foreign closing tags pass through untouched, staying
					// inside the open field like their opening halves.
					if cur != nil {
						cur.field.Prose = append(cur.field.Prose, line)
					} else {
						prose = append(prose, line)
					}
				}
			case tagVocabulary[t.name]:
				switch t.name {
				case "field":
					if cur != nil {
						return errf(ln, "field tag nested inside field %q", cur.field.ID)
					}
					flushProse()
					f, err := fieldFromTag(t, ln)
					if err != nil {
						return err
					}
					if err := claim(f.ID, ln); err != nil {
						return err
					}
					cur = &fieldBuilder{field: f, line: ln, states: make(map[OptionId]CheckboxState)}
					if t.selfClosing {
						appendItem(f)
						cur = nil
					}
				case "group":
					if cur != nil {
						return errf(ln, "group tag nested inside field %q", cur.field.ID)
					}
					if curGroup != nil {
						return errf(ln, "group tag nested inside group %q", curGroup.ID)
					}
					flushProse()
					g, err := groupFromTag(t, ln)
					if err != nil {
						return err
					}
					if err := claim(g.ID, ln); err != nil {
						return err
					}
					curGroup = g
					groupLn = ln
				case "note":
					if cur != nil {
						return errf(ln, "note tag nested inside field %q", cur.field.ID)
					}
					flushProse()
					n, err := noteFromTag(t, ln)
					if err != nil {
						return err
					}
					if err := claim(n.ID, ln); err != nil {
						return err
					}
					noteLines[n.ID] = ln
					if t.selfClosing {
						appendItem(n)
					} else {
						curNote = n
						noteLn = ln
					}
				case "column":
					if cur == nil || cur.field.Kind != KindTable {
						return errf(ln, "column tag outside a table field")
					}
					if !t.selfClosing {
						return errf(ln, "column tag must be self-closing")
					}
					col, err := columnFromTag(t, ln)
					if err != nil {
						return err
					}
					if _, dup := cur.field.Column(col.ID); dup {
						return errf(ln, "duplicate column %q in field %q", col.ID, cur.field.ID)
					}
					cur.field.Columns = append(cur.field.Columns, col)
				case "answered", "skipped", "aborted":
					if cur == nil {
						return errf(ln, "%s tag outside a field", t.name)
					}
					if cur.stateTag != "" {
						return errf(ln, "conflicting answer state tags in field %q", cur.field.ID)
					}
					cur.stateTag = t.name
					reason, _, err := t.stringAttr("reason")
					if err != nil {
						return errf(ln, "%v", err)
					}
					cur.reason = reason
				}
			default:
				// Unknown tags are foreign vocabulary and pass through.
				if cur != nil {
					cur.field.Prose = append(cur.field.Prose, line)
				} else {
					prose = append(prose, line)
				}
			}
			i++
			continue
		}

		// Option lines inside chooser fields.
		if cur != nil && cur.field.Kind.IsChooser() && strings.HasPrefix(strings.TrimSpace(line), "- ") {
			m := optionLine.FindStringSubmatch(strings.TrimSpace(line))
			if m == nil {
				return errf(ln, "option in field %q missing id annotation", cur.field.ID)
			}
			token := m[1][0]
			label := m[2]
			oid := OptionId(m[3])
			if err := claim(Id(oid), ln); err != nil {
				return err
			}
			cur.field.Options = append(cur.field.Options, Option{ID: oid, Label: label})
			state, err := optionState(cur.field, token)
			if err != nil {
				return errf(ln, "field %q option %q: %v", cur.field.ID, oid, err)
			}
			if state != DefaultState(chooserMode(cur.field)) {
				cur.states[oid] = state
			}
			i++
			continue
		}

		if cur != nil {
			cur.field.Prose = append(cur.field.Prose, line)
		} else {
			prose = append(prose, line)
		}
		i++
	}

	if cur != nil {
		return errf(cur.line, "unterminated field %q", cur.field.ID)
	}
	if curNote != nil {
		return errf(noteLn, "unterminated note %q", curNote.ID)
	}
	if curGroup != nil {
		return errf(groupLn, "unterminated group %q", curGroup.ID)
	}
	flushProse()
	return nil
}

// chooserMode returns the checkbox mode governing a chooser field's marker
// tokens. Select fields use the simple two-token alphabet.
func chooserMode(f *Field) CheckboxMode {
	if f.Kind == KindCheckboxes {
		return f.Mode
	}
	return ModeSimple
}

func optionState(f *Field, token byte) (CheckboxState, error) {
	mode := chooserMode(f)
	state, ok := stateForToken(mode, token)
	if !ok {
		if f.Kind == KindCheckboxes {
			return "", fmt.Errorf("state token %q not legal for mode %q", string(token), mode)
		}
		return "", fmt.Errorf("illegal option marker %q", string(token))
	}
	return state, nil
}

func fieldFromTag(t *tag, ln int) (*Field, error) {
	f := &Field{Role: RoleAgent}
	kind, _, err := t.stringAttr("kind")
	if err != nil {
		return nil, errf(ln, "%v", err)
	}
	f.Kind = FieldKind(kind)
	if !f.Kind.IsValid() {
		return nil, errf(ln, "unknown field kind %q", kind)
	}
	id, ok, err := t.stringAttr("id")
	if err != nil {
		return nil, errf(ln, "%v", err)
	}
	if !ok || id == "" {
		return nil, errf(ln, "field missing id")
	}
	f.ID = Id(id)
	label, _, err := t.stringAttr("label")
	if err != nil {
		return nil, errf(ln, "%v", err)
	}
	if label == "" {
		return nil, errf(ln, "field %q missing label", id)
	}
	f.Label = label
	if req, ok, err := t.boolAttr("required"); err != nil {
		return nil, errf(ln, "%v", err)
	} else if ok {
		f.Required = req
	}
	if role, ok, err := t.stringAttr("role"); err != nil {
		return nil, errf(ln, "%v", err)
	} else if ok && role != "" {
		f.Role = role
	}
	for _, c := range []struct {
		key string
		dst **int
	}{
		{"minLength", &f.MinLength},
		{"maxLength", &f.MaxLength},
		{"minItems", &f.MinItems},
		{"maxItems", &f.MaxItems},
	} {
		if n, ok, err := t.intAttr(c.key); err != nil {
			return nil, errf(ln, "%v", err)
		} else if ok {
			v := n
			*c.dst = &v
		}
	}
	for _, c := range []struct {
		key string
		dst **float64
	}{
		{"min", &f.Min},
		{"max", &f.Max},
	} {
		if n, ok, err := t.numberAttr(c.key); err != nil {
			return nil, errf(ln, "%v", err)
		} else if ok {
			v := n
			*c.dst = &v
		}
	}
	if pat, ok, err := t.stringAttr("pattern"); err != nil {
		return nil, errf(ln, "%v", err)
	} else if ok {
		if _, err := regexp.Compile(pat); err != nil {
			return nil, errf(ln, "field %q has invalid pattern: %v", id, err)
		}
		f.Pattern = pat
	}
	if f.Kind == KindCheckboxes {
		f.Mode = ModeMulti
		if mode, ok, err := t.stringAttr("mode"); err != nil {
			return nil, errf(ln, "%v", err)
		} else if ok {
			m := CheckboxMode(mode)
			if m != ModeMulti && m != ModeSimple && m != ModeExplicit {
				return nil, errf(ln, "unknown checkbox mode %q", mode)
			}
			f.Mode = m
		}
	}
	return f, nil
}

func groupFromTag(t *tag, ln int) (*FieldGroup, error) {
	id, ok, err := t.stringAttr("id")
	if err != nil {
		return nil, errf(ln, "%v", err)
	}
	if !ok || id == "" {
		return nil, errf(ln, "group missing id")
	}
	label, _, err := t.stringAttr("label")
	if err != nil {
		return nil, errf(ln, "%v", err)
	}
	return &FieldGroup{ID: Id(id), Label: label}, nil
}

func noteFromTag(t *tag, ln int) (*Note, error) {
	id, ok, err := t.stringAttr("id")
	if err != nil {
		return nil, errf(ln, "%v", err)
	}
	if !ok || id == "" {
		return nil, errf(ln, "note missing id")
	}
	ref, _, err := t.stringAttr("for")
	if err != nil {
		return nil, errf(ln, "%v", err)
	}
	return &Note{ID: Id(id), Ref: Id(ref)}, nil
}

func columnFromTag(t *tag, ln int) (Column, error) {
	id, ok, err := t.stringAttr("id")
	if err != nil {
		return Column{}, errf(ln, "%v", err)
	}
	if !ok || id == "" {
		return Column{}, errf(ln, "column missing id")
	}
	label, _, err := t.stringAttr("label")
	if err != nil {
		return Column{}, errf(ln, "%v", err)
	}
	typ, ok, err := t.stringAttr("type")
	if err != nil {
		return Column{}, errf(ln, "%v", err)
	}
	col := Column{ID: id, Label: label, Type: KindString}
	if ok {
		col.Type = FieldKind(typ)
		if !col.Type.IsScalar() {
			return Column{}, errf(ln, "column %q type %q is not a scalar kind", id, typ)
		}
	}
	if req, _, err := t.boolAttr("required"); err != nil {
		return Column{}, errf(ln, "%v", err)
	} else {
		col.Required = req
	}
	return col, nil
}

// finishField derives the field's recorded response from its value block,
// option markers and state tags.
func finishField(b *fieldBuilder) (*Field, *FieldResponse, error) {
	f := b.field
	hasValue := b.valueSeen || len(b.states) > 0

	switch b.stateTag {
	case "skipped", "aborted":
		if hasValue {
			return nil, nil, errf(b.line, "field %q is %s but carries a value", f.ID, b.stateTag)
		}
		state := AnswerSkipped
		if b.stateTag == "aborted" {
			state = AnswerAborted
		}
		return f, &FieldResponse{State: state, Reason: b.reason}, nil
	case "answered":
		if !hasValue {
			return f, &FieldResponse{State: AnswerAnswered, Value: emptyValue(f)}, nil
		}
	case "":
		if !hasValue {
			return f, nil, nil
		}
	}

	value, err := documentValue(b)
	if err != nil {
		return nil, nil, err
	}
	return f, &FieldResponse{State: AnswerAnswered, Value: value}, nil
}

// emptyValue is the kind-appropriate present-but-empty value.
func emptyValue(f *Field) Value {
	switch {
	case f.Kind.IsList():
		return ListValue{}
	case f.Kind == KindSingleSelect || f.Kind == KindMultiSelect:
		return SelectionValue{}
	case f.Kind == KindCheckboxes:
		return CheckboxValue{}
	case f.Kind == KindTable:
		return TableValue{}
	default:
		return StringValue("")
	}
}

func documentValue(b *fieldBuilder) (Value, error) {
	f := b.field
	switch f.Kind {
	case KindSingleSelect, KindMultiSelect:
		var sel SelectionValue
		for _, o := range f.Options {
			if b.states[o.ID] == StateDone {
				sel = append(sel, o.ID)
			}
		}
		return sel, nil
	case KindCheckboxes:
		cv := make(CheckboxValue, len(b.states))
		for oid, s := range b.states {
			cv[oid] = s
		}
		return cv, nil
	case KindStringList, KindURLList:
		items := ListValue{}
		for _, line := range b.valueRaw {
			if strings.TrimSpace(line) == "" {
				continue
			}
			items = append(items, strings.TrimPrefix(strings.TrimSpace(line), "- "))
		}
		return items, nil
	case KindTable:
		return parseTableValue(b)
	case KindNumber, KindYear:
		raw := strings.TrimSpace(strings.Join(b.valueRaw, "\n"))
		if raw == "" {
			return StringValue(""), nil
		}
		if n, err := strconv.ParseFloat(raw, 64); err == nil {
			return NumberValue(n), nil
		}
		// Kept raw so the validator can report the format issue.
		return StringValue(raw), nil
	default:
		return StringValue(strings.Join(b.valueRaw, "\n")), nil
	}
}

func parseTableValue(b *fieldBuilder) (Value, error) {
	f := b.field
	var rows TableValue
	var header []string
	for k, line := range b.valueRaw {
		s := strings.TrimSpace(line)
		if s == "" {
			continue
		}
		cells := splitPipeRow(s)
		if header == nil {
			for _, id := range cells {
				if _, ok := f.Column(id); !ok {
					return nil, errf(b.valueLine+k, "field %q table header references unknown column %q", f.ID, id)
				}
			}
			header = cells
			continue
		}
		if isSeparatorRow(cells) {
			continue
		}
		row := make(TableRow)
		for j, cell := range cells {
			if j >= len(header) || cell == "" {
				continue
			}
			col, _ := f.Column(header[j])
			row[header[j]] = cellValue(col, cell)
		}
		rows = append(rows, row)
	}
	if rows == nil {
		rows = TableValue{}
	}
	return rows, nil
}

func cellValue(col Column, cell string) Value {
	switch col.Type {
	case KindNumber, KindYear:
		if n, err := strconv.ParseFloat(cell, 64); err == nil {
			return NumberValue(n)
		}
	}
	return StringValue(cell)
}

func splitPipeRow(s string) []string {
	s = strings.Trim(s, "|")
	parts := strings.Split(s, "|")
	out := make([]string, len(parts))
	for i, p := range parts {
		out[i] = strings.TrimSpace(p)
	}
	return out
}

func isSeparatorRow(cells []string) bool {
	for _, c := range cells {
		if strings.Trim(c, "-: ") != "" {
			return false
		}
	}
	return true
}

// checkReferences resolves note targets once the whole body is known, so
// forward references work. Errors point at the note's own tag line.
func checkReferences(form *ParsedForm, noteLines map[Id]int) error {
	for _, n := range form.Notes() {
		if n.Ref == "" {
			continue
		}
		el, ok := form.Lookup(n.Ref)
		if !ok {
			return errf(noteLines[n.ID], "note %q references unknown id %q", n.ID, n.Ref)
		}
		switch el.(type) {
		case *Field, *FieldGroup:
		default:
			return errf(noteLines[n.ID], "note %q must reference a field or group, not %q", n.ID, n.Ref)
		}
	}
	return nil
}
