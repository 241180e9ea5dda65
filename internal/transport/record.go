package transport

import (
	"bytes"
	"fmt"
)

// Reserved record keys.
const (
	KeyBreakpointID = "bp_id"
	KeyStack        = "stack"
)

// Local is one named local variable captured at a halt.
type Local struct {
	Name  string
	Value []byte
}

// Record describes one halt of a remote thread. Records are immutable; a
// thread that halts again after being resumed produces a new Record.
type Record struct {
	// ThreadID is the remote thread that halted.
	ThreadID string

	// BreakpointID identifies the breakpoint that was hit.
	BreakpointID string

	// Stack is the remote stack trace, opaque to this side.
	Stack []byte

	// Locals are the captured local variables in announcement order.
	Locals []Local

	// Raw is the undecoded record payload. Two halts of the same thread
	// are told apart by comparing it.
	Raw []byte
}

// Local returns the value of the named local.
func (r Record) Local(name string) ([]byte, bool) {
	for _, l := range r.Locals {
		if l.Name == name {
			return l.Value, true
		}
	}
	return nil, false
}

// ParseRecord parses a halt record payload of the form
// key FieldSep value FieldSep key FieldSep value ...
// A single trailing separator is accepted.
func ParseRecord(threadID string, payload []byte) (Record, error) {
	if len(payload) == 0 {
		return Record{}, fmt.Errorf("%w: empty payload", ErrMalformedRecord)
	}

	fields := bytes.Split(payload, []byte{FieldSep})
	if len(fields)%2 != 0 && len(fields[len(fields)-1]) == 0 {
		fields = fields[:len(fields)-1]
	}
	if len(fields)%2 != 0 {
		return Record{}, fmt.Errorf("%w: %d fields", ErrMalformedRecord, len(fields))
	}

	rec := Record{
		ThreadID: threadID,
		Raw:      append([]byte(nil), payload...),
	}
	var haveID bool
	for i := 0; i < len(fields); i += 2 {
		key := string(fields[i])
		value := append([]byte(nil), fields[i+1]...)
		switch key {
		case "":
			return Record{}, fmt.Errorf("%w: empty key", ErrMalformedRecord)
		case KeyBreakpointID:
			rec.BreakpointID = string(value)
			haveID = true
		case KeyStack:
			rec.Stack = value
		default:
			rec.Locals = append(rec.Locals, Local{Name: key, Value: value})
		}
	}
	if !haveID {
		return Record{}, fmt.Errorf("%w: missing %s", ErrMalformedRecord, KeyBreakpointID)
	}
	return rec, nil
}

// FormatRecord builds a record payload. It is the inverse of ParseRecord
// and is used by the emulator and by tests.
func FormatRecord(bpID string, stack []byte, locals []Local) []byte {
	var buf bytes.Buffer
	writeField := func(k string, v []byte) {
		if buf.Len() > 0 {
			buf.WriteByte(FieldSep)
		}
		buf.WriteString(k)
		buf.WriteByte(FieldSep)
		buf.Write(v)
	}
	writeField(KeyBreakpointID, []byte(bpID))
	writeField(KeyStack, stack)
	for _, l := range locals {
		writeField(l.Name, l.Value)
	}
	return buf.Bytes()
}

// ParseThreadList splits the halted thread list on newlines, dropping
// blank entries and carriage returns.
func ParseThreadList(payload []byte) []string {
	var ids []string
	for _, line := range bytes.Split(payload, []byte{'\n'}) {
		line = bytes.TrimSpace(line)
		if len(line) == 0 {
			continue
		}
		ids = append(ids, string(line))
	}
	return ids
}
