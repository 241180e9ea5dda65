package locator

// tokenKind classifies the block keywords the locator cares about.
type tokenKind int

const (
	tokFunction tokenKind = iota
	tokOpen               // if, do, repeat
	tokEnd                // end
	tokUntil              // until
)

// token is a block keyword found outside strings and comments.
type token struct {
	kind tokenKind
	line int // 0-based

	// name is the declared name of a function: the name after the
	// keyword, or the target of "name = function". Empty when anonymous.
	name string
}

// keywords maps block keywords to their kind. for and while open their
// block with do, so only do is counted.
var keywords = map[string]tokenKind{
	"function": tokFunction,
	"if":       tokOpen,
	"do":       tokOpen,
	"repeat":   tokOpen,
	"end":      tokEnd,
	"until":    tokUntil,
}

// scan returns the block keywords of src in order, skipping string
// literals, long strings and comments.
func scan(src string) []token {
	var (
		toks []token
		line int
		i    int

		// assign is the name just assigned to, while the value has not
		// started yet.
		assign string
	)
	n := len(src)

	for i < n {
		c := src[i]
		switch {
		case c == '\n':
			line++
			i++

		case c == '-' && i+1 < n && src[i+1] == '-':
			i += 2
			if level, ok := longBracket(src, i); ok {
				i, line = skipLong(src, i, level, line)
				continue
			}
			for i < n && src[i] != '\n' {
				i++
			}

		case c == '[':
			assign = ""
			if level, ok := longBracket(src, i); ok {
				i, line = skipLong(src, i, level, line)
				continue
			}
			i++

		case c == '"' || c == '\'':
			assign = ""
			i, line = skipQuoted(src, i, line)

		case isIdentStart(c):
			start := i
			for i < n && isIdentPart(src[i]) {
				i++
			}
			if kind, ok := keywords[src[start:i]]; ok {
				tok := token{kind: kind, line: line}
				if kind == tokFunction {
					if tok.name = declaredName(src, i); tok.name == "" {
						tok.name = assign
					}
				}
				toks = append(toks, tok)
				assign = ""
				continue
			}
			i = dottedTail(src, i)
			assign = ""
			if j, ok := assignment(src, i); ok {
				assign = src[start:i]
				i = j
			}

		case c >= '0' && c <= '9':
			assign = ""
			// Numbers may contain letters (0x1F, 1e10); consume them so
			// the tail is not mistaken for an identifier.
			for i < n && (isIdentPart(src[i]) || src[i] == '.') {
				i++
			}

		default:
			if c != ' ' && c != '\t' && c != '\r' {
				assign = ""
			}
			i++
		}
	}
	return toks
}

// declaredName returns the possibly dotted name following the function
// keyword that ends at i, or "" for an anonymous function.
func declaredName(src string, i int) string {
	i = skipBlanks(src, i)
	if i >= len(src) || !isIdentStart(src[i]) {
		return ""
	}
	start := i
	for i < len(src) && isIdentPart(src[i]) {
		i++
	}
	return src[start:dottedTail(src, i)]
}

// dottedTail extends a name ending at i over ".field" and ":method"
// suffixes.
func dottedTail(src string, i int) int {
	for i+1 < len(src) && (src[i] == '.' || src[i] == ':') && isIdentStart(src[i+1]) {
		i++
		for i < len(src) && isIdentPart(src[i]) {
			i++
		}
	}
	return i
}

// assignment reports whether a single "=" follows i on the same line and
// returns the index after it.
func assignment(src string, i int) (int, bool) {
	i = skipBlanks(src, i)
	if i < len(src) && src[i] == '=' && (i+1 >= len(src) || src[i+1] != '=') {
		return i + 1, true
	}
	return i, false
}

func skipBlanks(src string, i int) int {
	for i < len(src) && (src[i] == ' ' || src[i] == '\t') {
		i++
	}
	return i
}

// longBracket reports whether src[i:] opens a long bracket [[ or [==[ and
// returns its level.
func longBracket(src string, i int) (int, bool) {
	if i >= len(src) || src[i] != '[' {
		return 0, false
	}
	j := i + 1
	for j < len(src) && src[j] == '=' {
		j++
	}
	if j < len(src) && src[j] == '[' {
		return j - i - 1, true
	}
	return 0, false
}

// skipLong skips a long bracket of the given level starting at i and
// returns the index after its closing bracket and the updated line count.
// An unterminated long bracket consumes the rest of the input.
func skipLong(src string, i, level, line int) (int, int) {
	i += level + 2
	for i < len(src) {
		switch src[i] {
		case '\n':
			line++
		case ']':
			j := i + 1
			for j < len(src) && src[j] == '=' {
				j++
			}
			if j-i-1 == level && j < len(src) && src[j] == ']' {
				return j + 1, line
			}
		}
		i++
	}
	return i, line
}

// skipQuoted skips a single or double quoted string starting at i.
func skipQuoted(src string, i, line int) (int, int) {
	quote := src[i]
	i++
	for i < len(src) {
		switch src[i] {
		case '\\':
			if i+1 < len(src) && src[i+1] == '\n' {
				line++
			}
			i += 2
			continue
		case quote:
			return i + 1, line
		case '\n':
			// Unfinished string; Lua would reject it. Stop at the line
			// end so one bad line does not swallow the file.
			return i, line
		}
		i++
	}
	return i, line
}

func isIdentStart(c byte) bool {
	return c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

func isIdentPart(c byte) bool {
	return isIdentStart(c) || (c >= '0' && c <= '9')
}
