package emulator

import (
	"fmt"
	"strings"

	lua "github.com/yuin/gopher-lua"
)

// breakOnCallSource defines BreakOnCall in Lua so the wrapper keeps the
// caller's arguments and results intact.
const breakOnCallSource = `
function BreakOnCall(name)
    local f = _G[name]
    if type(f) ~= "function" then
        error("no global function " .. tostring(name), 2)
    end
    _G[name] = function(...)
        local n = select("#", ...)
        local args = {...}
        local vars = {}
        for i = 1, n do
            vars["arg" .. i] = args[i]
        end
        Breakpoint(name, vars)
        return f(unpack(args, 1, n))
    end
end
`

// gameLibraries are the standard libraries the game runtime provides.
// io, os, debug and package are not available in a map script.
var gameLibraries = []struct {
	name string
	open lua.LGFunction
}{
	{lua.BaseLibName, lua.OpenBase},
	{lua.TabLibName, lua.OpenTable},
	{lua.StringLibName, lua.OpenString},
	{lua.MathLibName, lua.OpenMath},
	{lua.CoroutineLibName, lua.OpenCoroutine},
}

func (e *Emulator) installGlobals() error {
	for _, lib := range gameLibraries {
		err := e.L.CallByParam(lua.P{Fn: e.L.NewFunction(lib.open), NRet: 0, Protect: true}, lua.LString(lib.name))
		if err != nil {
			return fmt.Errorf("open %s library: %w", lib.name, err)
		}
	}
	e.L.SetGlobal("Breakpoint", e.L.NewFunction(e.luaBreakpoint))
	e.L.SetGlobal("EnableBreakpoint", e.L.NewFunction(func(L *lua.LState) int {
		delete(e.disabled, L.CheckString(1))
		return 0
	}))
	e.L.SetGlobal("DisableBreakpoint", e.L.NewFunction(func(L *lua.LState) int {
		e.disabled[L.CheckString(1)] = true
		return 0
	}))
	e.L.SetGlobal("StartThread", e.L.NewFunction(e.luaStartThread))
	e.L.SetGlobal("print", e.L.NewFunction(e.luaPrint))
	if err := e.L.DoString(breakOnCallSource); err != nil {
		return fmt.Errorf("install BreakOnCall: %w", err)
	}
	return nil
}

// luaBreakpoint yields the running thread with its breakpoint id, vars
// table and position. Outside a thread there is nothing to suspend and the
// call is ignored.
func (e *Emulator) luaBreakpoint(L *lua.LState) int {
	id := L.CheckString(1)
	vars := L.OptTable(2, nil)
	if L.GetTop() >= 3 && !lua.LVAsBool(L.Get(3)) {
		return 0
	}
	if e.disabled[id] {
		return 0
	}
	if L == e.L {
		e.logger.Debug("breakpoint %s hit outside a thread", id)
		return 0
	}

	var v lua.LValue = lua.LNil
	if vars != nil {
		v = vars
	}
	return L.Yield(lua.LString(id), v, lua.LString(strings.TrimSuffix(L.Where(1), ":")))
}

func (e *Emulator) luaStartThread(L *lua.LState) int {
	fn := L.CheckFunction(1)
	t := e.newThread(fn)
	e.starting = append(e.starting, t)
	L.Push(lua.LString(t.id))
	return 1
}

func (e *Emulator) luaPrint(L *lua.LState) int {
	parts := make([]string, 0, L.GetTop())
	for i := 1; i <= L.GetTop(); i++ {
		parts = append(parts, L.ToStringMeta(L.Get(i)).String())
	}
	fmt.Fprintln(e.out, strings.Join(parts, "\t"))
	return 0
}
