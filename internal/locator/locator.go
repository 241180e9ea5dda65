// Package locator finds the boundaries of Lua functions in source text and
// injects lines into them.
//
// The scan is lexical: string literals, long strings and comments are
// skipped, and block keywords are counted so that an if/for/while block
// inside a function does not end its span early. Source is never parsed or
// validated beyond that.
package locator

import (
	"errors"
	"fmt"
	"strings"
)

// Errors returned by the locator.
var (
	// ErrNotFound is returned when no function matches the target.
	ErrNotFound = errors.New("function not found")

	// ErrUnterminated is returned when a function is found but its block
	// is never closed.
	ErrUnterminated = fmt.Errorf("%w: no matching end", ErrNotFound)

	// ErrOutsideSpan is returned when an injection would land on or after
	// the function's closing line.
	ErrOutsideSpan = errors.New("line is outside the function")

	// ErrStaleSpan is returned when a span does not describe the source it
	// is applied to, typically because the source was edited after the
	// span was located.
	ErrStaleSpan = errors.New("span does not match source")
)

// Target selects a function either by name or by a line it contains.
type Target struct {
	name string
	line int
}

// ByName targets the first function declared with the given name, in any
// of the forms "function name", "local function name" or
// "name = function". Dotted names must be given in full.
func ByName(name string) Target {
	return Target{name: name}
}

// ByLine targets the innermost function enclosing the 1-based line.
func ByLine(line int) Target {
	return Target{line: line}
}

// Name returns the target name, or "" for a line target.
func (t Target) Name() string { return t.name }

// Line returns the target line, or 0 for a name target.
func (t Target) Line() int { return t.line }

// String describes the target.
func (t Target) String() string {
	if t.name != "" {
		return "function " + t.name
	}
	return fmt.Sprintf("line %d", t.line)
}

// Span is the location of one function in a source text. Offsets are only
// valid for the exact text they were computed from.
type Span struct {
	// Start is the byte offset of the first character of the declaration
	// line.
	Start int

	// End is the byte offset just past the closing line, including its
	// newline when present.
	End int

	// StartLine and EndLine are the 1-based declaration and closing lines.
	StartLine int
	EndLine   int

	// Body is the source text of the span.
	Body string
}

// Locate finds the function selected by target in src.
func Locate(src string, target Target) (Span, error) {
	toks := scan(src)
	starts := lineStarts(src)

	var (
		idx int
		err error
	)
	switch {
	case target.name != "":
		idx, err = findByName(toks, target.name)
	case target.line > 0:
		idx, err = findByLine(toks, len(starts), target.line)
	default:
		return Span{}, fmt.Errorf("%w: empty target", ErrNotFound)
	}
	if err != nil {
		return Span{}, err
	}

	closeLine := closingLine(toks, idx)
	if closeLine < 0 {
		return Span{}, fmt.Errorf("%w: %s", ErrUnterminated, target)
	}
	return makeSpan(src, starts, toks[idx].line, closeLine), nil
}

// findByName returns the index of the first function token declaring name.
func findByName(toks []token, name string) (int, error) {
	for i, tok := range toks {
		if tok.kind == tokFunction && tok.name == name {
			return i, nil
		}
	}
	return 0, fmt.Errorf("%w: function %s", ErrNotFound, name)
}

// findByLine returns the index of the nearest function token at or above
// line whose block still encloses line. Within one line the first function
// wins, so the outer declaration is preferred over an inline callback.
func findByLine(toks []token, lineCount, line int) (int, error) {
	if line > lineCount {
		return 0, fmt.Errorf("%w: line %d is past end of input (%d lines)", ErrNotFound, line, lineCount)
	}
	target := line - 1

	// Function tokens grouped by line, scanning upward.
	end := len(toks)
	for end > 0 && toks[end-1].line > target {
		end--
	}
	for end > 0 {
		cur := toks[end-1].line
		begin := end
		for begin > 0 && toks[begin-1].line == cur {
			begin--
		}
		for i := begin; i < end; i++ {
			if toks[i].kind != tokFunction {
				continue
			}
			closeLine := closingLine(toks, i)
			if closeLine < 0 {
				return 0, fmt.Errorf("%w: function at line %d", ErrUnterminated, cur+1)
			}
			if closeLine >= target {
				return i, nil
			}
		}
		end = begin
	}
	return 0, fmt.Errorf("%w: no function encloses line %d", ErrNotFound, line)
}

// closingLine returns the 0-based line on which the block opened by
// toks[idx] is closed, or -1.
func closingLine(toks []token, idx int) int {
	depth := 0
	for _, tok := range toks[idx:] {
		switch tok.kind {
		case tokFunction, tokOpen:
			depth++
		case tokEnd, tokUntil:
			depth--
			if depth == 0 {
				return tok.line
			}
		}
	}
	return -1
}

// Inject inserts text as a new line inside span. With afterLine <= 0 the
// line goes right after the declaration; otherwise it goes after the
// afterLine-th line of the span (1-based). The returned source invalidates
// every offset computed for src.
func Inject(src string, span Span, text string, afterLine int) (string, error) {
	if span.Start < 0 || span.End > len(src) || span.Start > span.End || src[span.Start:span.End] != span.Body {
		return "", ErrStaleSpan
	}

	lines := strings.SplitAfter(span.Body, "\n")
	if lines[len(lines)-1] == "" {
		lines = lines[:len(lines)-1]
	}
	if afterLine <= 0 {
		afterLine = 1
	}
	if afterLine >= len(lines) {
		return "", fmt.Errorf("%w: offset %d in a %d line function", ErrOutsideSpan, afterLine, len(lines))
	}

	var b strings.Builder
	b.Grow(len(src) + len(text) + 1)
	b.WriteString(src[:span.Start])
	for i, l := range lines {
		b.WriteString(l)
		if i == afterLine-1 {
			b.WriteString(text)
			b.WriteByte('\n')
		}
	}
	b.WriteString(src[span.End:])
	return b.String(), nil
}

// lineStarts returns the byte offset of the start of every line.
func lineStarts(src string) []int {
	starts := []int{0}
	for i := 0; i < len(src); i++ {
		if src[i] == '\n' && i+1 < len(src) {
			starts = append(starts, i+1)
		}
	}
	return starts
}

func makeSpan(src string, starts []int, first, last int) Span {
	start := starts[first]
	end := len(src)
	if last+1 < len(starts) {
		end = starts[last+1]
	}
	return Span{
		Start:     start,
		End:       end,
		StartLine: first + 1,
		EndLine:   last + 1,
		Body:      src[start:end],
	}
}
