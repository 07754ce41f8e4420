package markform

import (
	"fmt"
	"strconv"
	"strings"
)

// attrValue is one typed tag attribute: a quoted string, a number or a bool.
type attrValue struct {
	kind byte // 's', 'n', 'b'
	s    string
	n    float64
	b    bool
}

type attr struct {
	key string
	val attrValue
}

// tag is one lexed inline tag line.
type tag struct {
	name        string
	closing     bool
	selfClosing bool
	annotation  string // set for {% #id %} / {% .class %}
	attrs       []attr
}

func (t *tag) attrByKey(key string) (attrValue, bool) {
	for _, a := range t.attrs {
		if a.key == key {
			return a.val, true
		}
	}
	return attrValue{}, false
}

func (t *tag) stringAttr(key string) (string, bool, error) {
	v, ok := t.attrByKey(key)
	if !ok {
		return "", false, nil
	}
	if v.kind != 's' {
		return "", true, fmt.Errorf("attribute %q must be a string", key)
	}
	return v.s, true, nil
}

func (t *tag) boolAttr(key string) (bool, bool, error) {
	v, ok := t.attrByKey(key)
	if !ok {
		return false, false, nil
	}
	if v.kind != 'b' {
		return false, true, fmt.Errorf("attribute %q must be a bool", key)
	}
	return v.b, true, nil
}

func (t *tag) numberAttr(key string) (float64, bool, error) {
	v, ok := t.attrByKey(key)
	if !ok {
		return 0, false, nil
	}
	if v.kind != 'n' {
		return 0, true, fmt.Errorf("attribute %q must be a number", key)
	}
	return v.n, true, nil
}

func (t *tag) intAttr(key string) (int, bool, error) {
	n, ok, err := t.numberAttr(key)
	if err != nil || !ok {
		return 0, ok, err
	}
	if n != float64(int(n)) {
		return 0, true, fmt.Errorf("attribute %q must be an integer", key)
	}
	return int(n), true, nil
}

// isTagLine reports whether a line holds exactly one tag and nothing else.
func isTagLine(line string) bool {
	s := strings.TrimSpace(line)
	return strings.HasPrefix(s, "{%") && strings.HasSuffix(s, "%}") &&
		strings.Count(s, "{%") == 1
}

// lexTag parses the tag occupying an entire line.
func lexTag(line string) (*tag, error) {
	s := strings.TrimSpace(line)
	if !strings.HasPrefix(s, "{%") || !strings.HasSuffix(s, "%}") {
		return nil, fmt.Errorf("malformed tag %q", s)
	}
	inner := strings.TrimSpace(s[2 : len(s)-2])
	if inner == "" {
		return nil, fmt.Errorf("empty tag")
	}
	switch inner[0] {
	case '#', '.':
		if strings.ContainsAny(inner, " \t") {
			return nil, fmt.Errorf("malformed annotation %q", inner)
		}
		return &tag{annotation: inner}, nil
	case '/':
		name := strings.TrimSpace(inner[1:])
		if name == "" || strings.ContainsAny(name, " \t") {
			return nil, fmt.Errorf("malformed closing tag %q", inner)
		}
		return &tag{name: name, closing: true}, nil
	}
	t := &tag{}
	if strings.HasSuffix(inner, "/") {
		t.selfClosing = true
		inner = strings.TrimSpace(inner[:len(inner)-1])
	}
	fields, err := splitTagFields(inner)
	if err != nil {
		return nil, err
	}
	if len(fields) == 0 {
		return nil, fmt.Errorf("empty tag")
	}
	t.name = fields[0]
	if strings.Contains(t.name, "=") {
		return nil, fmt.Errorf("tag name missing in %q", inner)
	}
	for _, f := range fields[1:] {
		eq := strings.Index(f, "=")
		if eq <= 0 {
			return nil, fmt.Errorf("malformed attribute %q", f)
		}
		key := f[:eq]
		raw := f[eq+1:]
		val, err := lexAttrValue(raw)
		if err != nil {
			return nil, fmt.Errorf("attribute %q: %w", key, err)
		}
		if _, dup := t.attrByKey(key); dup {
			return nil, fmt.Errorf("duplicate attribute %q", key)
		}
		t.attrs = append(t.attrs, attr{key: key, val: val})
	}
	return t, nil
}

// splitTagFields splits tag content on whitespace, keeping quoted strings
// (with backslash escapes) intact.
func splitTagFields(s string) ([]string, error) {
	var fields []string
	var cur strings.Builder
	inQuote := false
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case inQuote && c == '\\' && i+1 < len(s):
			cur.WriteByte(c)
			cur.WriteByte(s[i+1])
			i++
		case c == '"':
			inQuote = !inQuote
			cur.WriteByte(c)
		case !inQuote && (c == ' ' || c == '\t'):
			if cur.Len() > 0 {
				fields = append(fields, cur.String())
				cur.Reset()
			}
		default:
			cur.WriteByte(c)
		}
	}
	if inQuote {
		return nil, fmt.Errorf("unterminated string in tag")
	}
	if cur.Len() > 0 {
		fields = append(fields, cur.String())
	}
	return fields, nil
}

func lexAttrValue(raw string) (attrValue, error) {
	switch {
	case raw == "":
		return attrValue{}, fmt.Errorf("missing value")
	case raw == "true":
		return attrValue{kind: 'b', b: true}, nil
	case raw == "false":
		return attrValue{kind: 'b', b: false}, nil
	case raw[0] == '"':
		s, err := strconv.Unquote(raw)
		if err != nil {
			return attrValue{}, fmt.Errorf("bad string literal %s", raw)
		}
		return attrValue{kind: 's', s: s}, nil
	default:
		n, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return attrValue{}, fmt.Errorf("bad literal %q", raw)
		}
		return attrValue{kind: 'n', n: n}, nil
	}
}
