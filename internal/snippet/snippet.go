// Package snippet builds the Lua fragments the bridge sends to the remote
// runtime. The bridge treats them as opaque text; only the remote helper
// library gives them meaning.
package snippet

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// ErrInvalidName is returned when a name is not a Lua identifier.
var ErrInvalidName = errors.New("not a Lua identifier")

// Builder creates remote-language fragments from operator input.
type Builder interface {
	// Wrapper returns a request that makes future calls of the named
	// global function halt, exposing its arguments as locals.
	Wrapper(name string) (string, error)

	// Injection returns a source line that halts at breakpoint bpID when
	// executed.
	Injection(bpID string) string

	// FilePayload wraps a file's content so that initializer
	// registrations run immediately and the chunk's results are returned.
	FilePayload(content string) string

	// Enable returns a request that enables breakpoint bpID.
	Enable(bpID string) string

	// Disable returns a request that disables breakpoint bpID.
	Disable(bpID string) string
}

var identPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

var luaKeywords = map[string]bool{
	"and": true, "break": true, "do": true, "else": true, "elseif": true,
	"end": true, "false": true, "for": true, "function": true, "goto": true,
	"if": true, "in": true, "local": true, "nil": true, "not": true,
	"or": true, "repeat": true, "return": true, "then": true, "true": true,
	"until": true, "while": true,
}

// ValidIdentifier reports whether name can be used as a Lua global name.
func ValidIdentifier(name string) bool {
	return identPattern.MatchString(name) && !luaKeywords[name]
}

// Quote returns s as a double-quoted Lua string literal. Bytes that are
// not printable ASCII are written as decimal escapes, which every Lua
// version accepts.
func Quote(s string) string {
	var b strings.Builder
	b.Grow(len(s) + 2)
	b.WriteByte('"')
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c == '"' || c == '\\':
			b.WriteByte('\\')
			b.WriteByte(c)
		case c == '\n':
			b.WriteString(`\n`)
		case c == '\t':
			b.WriteString(`\t`)
		case c < 0x20 || c >= 0x7f:
			b.WriteByte('\\')
			// Pad to three digits so a following digit is not absorbed.
			d := strconv.Itoa(int(c))
			b.WriteString(strings.Repeat("0", 3-len(d)))
			b.WriteString(d)
		default:
			b.WriteByte(c)
		}
	}
	b.WriteByte('"')
	return b.String()
}

// LiveCoding builds fragments for the LiveCoding helper library, which
// provides the Breakpoint, EnableBreakpoint, DisableBreakpoint and
// BreakOnCall globals.
type LiveCoding struct{}

// Wrapper implements Builder.
func (LiveCoding) Wrapper(name string) (string, error) {
	if !ValidIdentifier(name) {
		return "", fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	return "BreakOnCall(" + Quote(name) + ")", nil
}

// Injection implements Builder.
func (LiveCoding) Injection(bpID string) string {
	return "Breakpoint(" + Quote(bpID) + ")"
}

// Enable implements Builder.
func (LiveCoding) Enable(bpID string) string {
	return "EnableBreakpoint(" + Quote(bpID) + ")"
}

// Disable implements Builder.
func (LiveCoding) Disable(bpID string) string {
	return "DisableBreakpoint(" + Quote(bpID) + ")"
}

// onInitPrologue replaces OnInit for the duration of the chunk so that
// registrations made by the file run at once; the game's init phase is
// long over when files are sent.
const onInitPrologue = `do
local function _immediateExec(nameOrFunc, func)
    local f = func or nameOrFunc
    if type(f) == 'function' then f() end
end
local _savedOnInit = OnInit
OnInit = setmetatable({}, {
    __call = function(_, ...) _immediateExec(...) end,
    __index = function() return _immediateExec end
})
local __wc3_interpreter_result = {pcall(function()
`

const onInitEpilogue = `
end)}
OnInit = _savedOnInit
if not __wc3_interpreter_result[1] then error(__wc3_interpreter_result[2], 0) end
return select(2, (table.unpack or unpack)(__wc3_interpreter_result))
end`

// FilePayload implements Builder.
func (LiveCoding) FilePayload(content string) string {
	return onInitPrologue + content + onInitEpilogue
}

var _ Builder = LiveCoding{}
