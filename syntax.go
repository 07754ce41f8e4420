package markform

import (
	"strings"
)

// tagVocabulary is the set of tag names the engine interprets. Comments and
// inline tags with any other name pass through as prose.
var tagVocabulary = map[string]bool{
	"group":    true,
	"field":    true,
	"column":   true,
	"note":     true,
	"answered": true,
	"skipped":  true,
	"aborted":  true,
}

// DetectSyntax scans for the first Markform tag marker outside code and
// records which concrete syntax the document used. Documents without any
// marker default to the inline style.
func DetectSyntax(src string) SyntaxStyle {
	inFence := false
	var fenceChar byte
	fenceLen := 0
	inlineCode := false
	for _, line := range strings.Split(src, "\n") {
		if inFence {
			if closesFence(line, fenceChar, fenceLen) {
				inFence = false
			}
			continue
		}
		if !inlineCode {
			if c, n, ok := opensFence(line); ok {
				inFence = true
				fenceChar, fenceLen = c, n
				continue
			}
		}
		for i := 0; i < len(line); i++ {
			if line[i] == '`' {
				inlineCode = !inlineCode
				continue
			}
			if inlineCode {
				continue
			}
			if strings.HasPrefix(line[i:], "{%") {
				return SyntaxInline
			}
			if strings.HasPrefix(line[i:], "<!--") {
				if inner, _, ok := commentAt(line, i); ok && rewritableComment(inner) {
					return SyntaxComment
				}
			}
		}
	}
	return SyntaxInline
}

// PreprocessSyntax rewrites comment-style Markform tags to the canonical
// inline form. Text inside fenced code blocks and inline code spans is
// copied through verbatim. Documents already in canonical syntax are
// returned unchanged.
func PreprocessSyntax(src string) string {
	if !strings.Contains(src, "<!--") {
		return src
	}
	lines := strings.Split(src, "\n")
	out := make([]string, len(lines))
	inFence := false
	var fenceChar byte
	fenceLen := 0
	inlineCode := false
	for i, line := range lines {
		if inFence {
			out[i] = line
			if closesFence(line, fenceChar, fenceLen) {
				inFence = false
			}
			continue
		}
		if !inlineCode {
			if c, n, ok := opensFence(line); ok {
				inFence = true
				fenceChar, fenceLen = c, n
				out[i] = line
				continue
			}
		}
		out[i] = rewriteCommentTags(line, &inlineCode)
	}
	return strings.Join(out, "\n")
}

// rewriteCommentTags rewrites Markform comments on one line, honoring
// inline code spans toggled by single backticks.
func rewriteCommentTags(line string, inlineCode *bool) string {
	var b strings.Builder
	b.Grow(len(line))
	for i := 0; i < len(line); {
		c := line[i]
		if c == '`' {
			*inlineCode = !*inlineCode
			b.WriteByte(c)
			i++
			continue
		}
		if !*inlineCode && strings.HasPrefix(line[i:], "<!--") {
			if inner, end, ok := commentAt(line, i); ok {
				if tag, ok := rewriteComment(inner); ok {
					b.WriteString(tag)
					i = end
					continue
				}
			}
		}
		b.WriteByte(c)
		i++
	}
	return b.String()
}

// commentAt extracts the inner text of a comment starting at position i,
// returning the index just past the closing marker.
func commentAt(line string, i int) (inner string, end int, ok bool) {
	rest := line[i+4:]
	j := strings.Index(rest, "-->")
	if j < 0 {
		return "", 0, false
	}
	return strings.TrimSpace(rest[:j]), i + 4 + j + 3, true
}

func rewritableComment(inner string) bool {
	_, ok := rewriteComment(inner)
	return ok
}

// rewriteComment maps one comment body to its canonical inline tag. Foreign
// comments are left alone.
func rewriteComment(inner string) (string, bool) {
	if inner == "" {
		return "", false
	}
	if inner[0] == '#' || inner[0] == '.' {
		if len(inner) > 1 && !strings.ContainsAny(inner, " \t") {
			return "{% " + inner + " %}", true
		}
		return "", false
	}
	if inner[0] == '/' {
		name := strings.TrimSpace(inner[1:])
		if tagVocabulary[name] {
			return "{% /" + name + " %}", true
		}
		return "", false
	}
	name := inner
	if n := strings.IndexAny(inner, " \t"); n >= 0 {
		name = inner[:n]
	}
	if !tagVocabulary[name] {
		return "", false
	}
	if strings.HasSuffix(inner, "/") {
		body := strings.TrimSpace(inner[:len(inner)-1])
		return "{% " + body + " /%}", true
	}
	return "{% " + inner + " %}", true
}

// opensFence reports whether a line starts a fenced code block: a run of
// three or more backticks or tildes at line start.
func opensFence(line string) (byte, int, bool) {
	if line == "" {
		return 0, 0, false
	}
	c := line[0]
	if c != '`' && c != '~' {
		return 0, 0, false
	}
	n := 0
	for n < len(line) && line[n] == c {
		n++
	}
	if n < 3 {
		return 0, 0, false
	}
	return c, n, true
}

// closesFence reports whether a line ends a fence opened with the given
// character and length.
func closesFence(line string, fenceChar byte, fenceLen int) bool {
	n := 0
	for n < len(line) && line[n] == fenceChar {
		n++
	}
	return n >= fenceLen && strings.TrimSpace(line[n:]) == ""
}
