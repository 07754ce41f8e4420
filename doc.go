// Package markform reads, validates, edits and writes Markform documents:
// plain-text files that embed a structured form (typed fields, groups,
// options, notes) inside ordinary lightweight-markup prose.
//
// The engine is five pure operations over in-memory data:
//
//	form, err := markform.Parse(text)
//	issues := markform.Validate(form, opts)
//	report := markform.Inspect(form, opts)
//	result := markform.ApplyPatches(form, patches, opts)
//	text = markform.Serialize(form)
//
// Parse accepts either of the two concrete tag syntaxes (inline {% ... %}
// tags or comment-style <!-- ... --> tags), records which one the document
// used, and Serialize writes that same style back. ApplyPatches is
// best-effort: every independently valid patch in a batch is applied and
// every invalid one is reported, so a caller never loses work to one bad
// edit. Nothing here does I/O or holds process-wide state; distinct
// ParsedForm values can be used from separate goroutines freely, while a
// single ParsedForm must not be patched concurrently.
package markform
