package snippet

import (
	"errors"
	"strings"
	"testing"

	lua "github.com/yuin/gopher-lua"
)

func TestValidIdentifier(t *testing.T) {
	tests := []struct {
		name string
		want bool
	}{
		{"SpawnUnit", true},
		{"_private", true},
		{"a1", true},
		{"", false},
		{"1abc", false},
		{"a.b", false},
		{"a b", false},
		{"end", false},
		{"function", false},
		{`x") os.exit() ("`, false},
	}
	for _, tt := range tests {
		if got := ValidIdentifier(tt.name); got != tt.want {
			t.Errorf("ValidIdentifier(%q) = %v, want %v", tt.name, got, tt.want)
		}
	}
}

func TestQuoteEvaluatesToInput(t *testing.T) {
	inputs := []string{
		"",
		"plain",
		`with "quotes" and \backslash`,
		"line\nbreak\ttab",
		"ctrl\x01\x1f then 7",
		"high \xff byte",
	}

	L := lua.NewState()
	defer L.Close()
	for _, in := range inputs {
		if err := L.DoString("return " + Quote(in)); err != nil {
			t.Fatalf("Quote(%q) is not valid Lua: %v", in, err)
		}
		got := L.Get(-1)
		L.Pop(1)
		if got.String() != in {
			t.Errorf("Quote(%q) evaluated to %q", in, got.String())
		}
	}
}

func TestLiveCodingFragments(t *testing.T) {
	var b LiveCoding

	w, err := b.Wrapper("SpawnUnit")
	if err != nil {
		t.Fatalf("Wrapper: %v", err)
	}
	if w != `BreakOnCall("SpawnUnit")` {
		t.Errorf("Wrapper = %q", w)
	}
	if _, err := b.Wrapper("not valid"); !errors.Is(err, ErrInvalidName) {
		t.Errorf("expected ErrInvalidName, got %v", err)
	}

	if got := b.Injection("units.lua:12"); got != `Breakpoint("units.lua:12")` {
		t.Errorf("Injection = %q", got)
	}
	if got := b.Enable("b1"); got != `EnableBreakpoint("b1")` {
		t.Errorf("Enable = %q", got)
	}
	if got := b.Disable("b1"); got != `DisableBreakpoint("b1")` {
		t.Errorf("Disable = %q", got)
	}
}

func TestFilePayloadRunsOnInitImmediately(t *testing.T) {
	L := lua.NewState()
	defer L.Close()

	// Stand-in for the map's deferred initializer library.
	if err := L.DoString(`
deferred = 0
OnInit = setmetatable({}, {
    __call = function() deferred = deferred + 1 end,
    __index = function() return function() deferred = deferred + 1 end end,
})
original = OnInit
`); err != nil {
		t.Fatal(err)
	}

	content := strings.Join([]string{
		"ran = {}",
		"OnInit(function() ran[#ran+1] = 'call' end)",
		"OnInit.final('named', function() ran[#ran+1] = 'final' end)",
		"return #ran, 'done'",
	}, "\n")

	if err := L.DoString(LiveCoding{}.FilePayload(content)); err != nil {
		t.Fatalf("payload failed: %v", err)
	}
	if L.GetTop() != 2 {
		t.Fatalf("expected 2 results, got %d", L.GetTop())
	}
	if n := L.ToInt(1); n != 2 {
		t.Errorf("ran %d initializers, want 2", n)
	}
	if s := L.ToString(2); s != "done" {
		t.Errorf("second result %q", s)
	}
	if L.GetGlobal("deferred").String() != "0" {
		t.Error("initializers were deferred")
	}
	if L.GetGlobal("OnInit") != L.GetGlobal("original") {
		t.Error("OnInit was not restored")
	}
}

func TestFilePayloadPropagatesErrors(t *testing.T) {
	L := lua.NewState()
	defer L.Close()

	err := L.DoString(LiveCoding{}.FilePayload("error('boom', 0)"))
	if err == nil || !strings.Contains(err.Error(), "boom") {
		t.Errorf("expected boom error, got %v", err)
	}
	if L.GetGlobal("OnInit") != lua.LNil {
		t.Error("OnInit must be restored even on error")
	}
}
