package markform

import (
	"reflect"
	"strings"
	"testing"
)

func TestPreprocessRewritesCommentTags(t *testing.T) {
	t.Parallel()
	in := "<!-- field kind=\"string\" id=\"a\" label=\"A\" -->\n" +
		"<!-- answered /-->\n" +
		"<!-- /field -->\n" +
		"- [ ] Red <!-- #red -->\n"
	got := PreprocessSyntax(in)
	want := "{% field kind=\"string\" id=\"a\" label=\"A\" %}\n" +
		"{% answered /%}\n" +
		"{% /field %}\n" +
		"- [ ] Red {% #red %}\n"
	if got != want {
		t.Errorf("rewrite mismatch:\ngot  %q\nwant %q", got, want)
	}
}

func TestPreprocessLeavesCodeAlone(t *testing.T) {
	t.Parallel()
	in := "```\n<!-- field kind=\"string\" id=\"a\" label=\"A\" -->\n```\n" +
		"here is `<!-- field x -->` inline\n" +
		"~~~~\n<!-- /field -->\n~~~~\n"
	if got := PreprocessSyntax(in); got != in {
		t.Errorf("code content was rewritten:\ngot  %q\nwant %q", got, in)
	}
}

func TestPreprocessLeavesForeignCommentsAlone(t *testing.T) {
	t.Parallel()
	in := "<!-- just a reviewer remark -->\n<!-- TODO: tighten copy -->\n"
	if got := PreprocessSyntax(in); got != in {
		t.Errorf("foreign comments were rewritten: %q", got)
	}
}

func TestPreprocessFastPath(t *testing.T) {
	t.Parallel()
	in := "{% field kind=\"string\" id=\"a\" label=\"A\" %}\n{% /field %}\n"
	if got := PreprocessSyntax(in); got != in {
		t.Error("canonical document must pass through unchanged")
	}
}

func TestDetectSyntax(t *testing.T) {
	t.Parallel()
	cases := []struct {
		name string
		text string
		want SyntaxStyle
	}{
		{"inline", "{% field id=\"a\" %}", SyntaxInline},
		{"comment", "<!-- field id=\"a\" -->", SyntaxComment},
		{"foreign comment then inline", "<!-- remark -->\n{% field id=\"a\" %}", SyntaxInline},
		{"marker in fence ignored", "```\n<!-- field x -->\n```\n{% field id=\"a\" %}", SyntaxInline},
		{"marker in inline code ignored", "see `{% field %}` for the shape\n<!-- field id=\"a\" -->", SyntaxComment},
		{"comment in inline code ignored", "see `<!-- field x -->` sample\n{% field id=\"a\" %}", SyntaxInline},
		{"no markers", "just prose", SyntaxInline},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := DetectSyntax(tc.text); got != tc.want {
				t.Errorf("DetectSyntax = %q, want %q", got, tc.want)
			}
		})
	}
}

// commentIntakeDoc is intakeDoc spelled in the comment syntax.
var commentIntakeDoc = func() string {
	s := intakeDoc
	s = strings.ReplaceAll(s, "{% #", "<!-- #")
	s = strings.ReplaceAll(s, "{% /", "<!-- /")
	s = strings.ReplaceAll(s, "{% ", "<!-- ")
	s = strings.ReplaceAll(s, " /%}", " /-->")
	s = strings.ReplaceAll(s, " %}", " -->")
	return s
}()

func TestDualSyntaxEquivalence(t *testing.T) {
	t.Parallel()
	inline := mustParse(t, intakeDoc)
	comment := mustParse(t, commentIntakeDoc)

	if inline.Style != SyntaxInline || comment.Style != SyntaxComment {
		t.Fatalf("styles = %q / %q", inline.Style, comment.Style)
	}
	if !reflect.DeepEqual(inline.Body, comment.Body) {
		t.Error("bodies differ between syntaxes")
	}
	if !reflect.DeepEqual(inline.Responses, comment.Responses) {
		t.Errorf("responses differ: %#v vs %#v", inline.Responses, comment.Responses)
	}
	if !reflect.DeepEqual(inline.Header, comment.Header) {
		t.Error("headers differ between syntaxes")
	}
}

func TestCommentStyleSerializesAsComments(t *testing.T) {
	t.Parallel()
	form := mustParse(t, commentIntakeDoc)
	out := Serialize(form)
	if strings.Contains(out, "{%") {
		t.Errorf("comment-style document serialized with inline tags:\n%s", out)
	}
	if !strings.Contains(out, "<!-- field") || !strings.Contains(out, "<!-- /field -->") {
		t.Errorf("missing comment tags in output:\n%s", out)
	}
}
