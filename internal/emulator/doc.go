// Package emulator is a local stand-in for the game's Lua runtime. It
// answers requests written by the bridge, runs scripts as coroutines and
// publishes halt announcements through the same files the game uses.
//
// The emulator understands the LiveCoding helper globals the bridge
// generates:
//
//	Breakpoint(id [, vars [, cond]])  halt the running thread
//	EnableBreakpoint(id)
//	DisableBreakpoint(id)
//	BreakOnCall(name)                 halt whenever a global function is called
//	StartThread(fn)                   run fn as a new thread on the next step
//
// The fields of the vars table are announced as the halt's locals. Code
// sent to a halted thread sees them as variables and may assign them.
//
// An Emulator is safe for concurrent use; every operation runs under one
// lock because the Lua state is single threaded.
package emulator
