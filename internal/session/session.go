// Package session tracks which remote threads are halted and which one the
// operator is currently talking to.
//
// A Session is owned by a single goroutine and is not safe for concurrent
// use. At most one thread is current; every other halted thread waits in
// pending in the order its halt was observed.
package session

import (
	"errors"
	"fmt"

	"github.com/dshills/wc3bridge/internal/transport"
)

var (
	// ErrNotFound is returned when a thread is not halted.
	ErrNotFound = errors.New("thread not halted")

	// ErrNoCurrent is returned when an operation needs a current thread.
	ErrNoCurrent = errors.New("no current thread")
)

// ThreadState is the state of one remote thread as seen by the session.
type ThreadState int

const (
	// ThreadUnknown means no halt is recorded for the thread.
	ThreadUnknown ThreadState = iota
	// ThreadQueued means the thread is halted and waiting in pending.
	ThreadQueued
	// ThreadCurrent means the thread is halted and receives commands.
	ThreadCurrent
)

// String returns a string representation of the state.
func (s ThreadState) String() string {
	switch s {
	case ThreadUnknown:
		return "unknown"
	case ThreadQueued:
		return "queued"
	case ThreadCurrent:
		return "current"
	default:
		return "invalid"
	}
}

// Halt is a halted thread and the record it announced.
type Halt struct {
	ThreadID string
	Record   transport.Record
}

// Session is the halted-thread state machine.
type Session struct {
	// Records of halted threads; a key is present while the thread is
	// flagged halted.
	halted map[string]transport.Record

	current string
	pending []string

	// Raw payload of the last resumed halt per thread. A record that still
	// matches after resume is the old halt persisting on disk.
	stale map[string][]byte
}

// New creates an empty session.
func New() *Session {
	return &Session{
		halted: make(map[string]transport.Record),
		stale:  make(map[string][]byte),
	}
}

// Observe records a new halt. The thread becomes current if nothing is
// current, otherwise it is queued. It returns false, and changes nothing,
// when the thread is already halted.
func (s *Session) Observe(rec transport.Record) bool {
	id := rec.ThreadID
	if _, ok := s.halted[id]; ok {
		return false
	}
	s.halted[id] = rec
	delete(s.stale, id)
	if s.current == "" {
		s.current = id
	} else {
		s.pending = append(s.pending, id)
	}
	return true
}

// ResumeCurrent clears the current thread's halt and promotes the head of
// pending. It must only be called once the remote side has accepted the
// resume. The returned Halt is the new current, valid when ok is true.
func (s *Session) ResumeCurrent() (next Halt, ok bool, err error) {
	if s.current == "" {
		return Halt{}, false, ErrNoCurrent
	}
	id := s.current
	s.stale[id] = s.halted[id].Raw
	delete(s.halted, id)
	s.current = ""

	if len(s.pending) == 0 {
		return Halt{}, false, nil
	}
	s.current = s.pending[0]
	s.pending = s.pending[1:]
	return s.haltOf(s.current), true, nil
}

// Switch makes a halted thread current. The previous current goes to the
// head of pending so it is the next one promoted.
func (s *Session) Switch(threadID string) error {
	if _, ok := s.halted[threadID]; !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, threadID)
	}
	if s.current == threadID {
		return nil
	}

	pending := make([]string, 0, len(s.pending)+1)
	if s.current != "" {
		pending = append(pending, s.current)
	}
	for _, id := range s.pending {
		if id != threadID {
			pending = append(pending, id)
		}
	}
	s.pending = pending
	s.current = threadID
	return nil
}

// Current returns the current halt.
func (s *Session) Current() (Halt, bool) {
	if s.current == "" {
		return Halt{}, false
	}
	return s.haltOf(s.current), true
}

// CurrentID returns the current thread id, or "".
func (s *Session) CurrentID() string {
	return s.current
}

// Pending returns the queued halts in promotion order.
func (s *Session) Pending() []Halt {
	out := make([]Halt, 0, len(s.pending))
	for _, id := range s.pending {
		out = append(out, s.haltOf(id))
	}
	return out
}

// Halted returns every halted thread, current first.
func (s *Session) Halted() []Halt {
	out := make([]Halt, 0, len(s.halted))
	if cur, ok := s.Current(); ok {
		out = append(out, cur)
	}
	return append(out, s.Pending()...)
}

// Lookup returns the halt of a thread.
func (s *Session) Lookup(threadID string) (Halt, error) {
	if _, ok := s.halted[threadID]; !ok {
		return Halt{}, fmt.Errorf("%w: %s", ErrNotFound, threadID)
	}
	return s.haltOf(threadID), nil
}

// State returns the state of a thread.
func (s *Session) State(threadID string) ThreadState {
	if _, ok := s.halted[threadID]; !ok {
		return ThreadUnknown
	}
	if threadID == s.current {
		return ThreadCurrent
	}
	return ThreadQueued
}

// Len returns the number of halted threads.
func (s *Session) Len() int {
	return len(s.halted)
}

// Reset forgets every halt, including stale records.
func (s *Session) Reset() {
	s.halted = make(map[string]transport.Record)
	s.stale = make(map[string][]byte)
	s.current = ""
	s.pending = nil
}

func (s *Session) haltOf(id string) Halt {
	return Halt{ThreadID: id, Record: s.halted[id]}
}
