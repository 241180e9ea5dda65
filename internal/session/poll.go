package session

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/dshills/wc3bridge/internal/transport"
)

// RecordSource is where halt announcements are read from. transport.Dir
// implements it.
type RecordSource interface {
	// HaltedThreads returns the ids the remote side lists as halted.
	HaltedThreads() ([]string, error)

	// Record returns the halt record of a thread.
	Record(threadID string) (transport.Record, error)
}

// Poll reads the halted thread list and observes every new halt, returning
// them in observation order.
//
// A thread list caught mid-write is skipped for this poll without touching
// any state. Threads already flagged halted are not read again. A record that is
// missing, unwrapped or malformed is assumed to be mid-write and is retried
// on the next poll. A record identical to the one last resumed for the
// same thread is the old halt still on disk and is ignored until the
// thread leaves the list or writes a different record.
func (s *Session) Poll(src RecordSource) ([]Halt, error) {
	ids, err := src.HaltedThreads()
	if err != nil {
		if retryable(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read halted threads: %w", err)
	}

	listed := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		listed[id] = struct{}{}
	}
	for id := range s.stale {
		if _, ok := listed[id]; !ok {
			delete(s.stale, id)
		}
	}

	var (
		halts []Halt
		errs  []error
	)
	for _, id := range ids {
		if _, ok := s.halted[id]; ok {
			continue
		}
		rec, err := src.Record(id)
		if err != nil {
			if !retryable(err) {
				errs = append(errs, fmt.Errorf("read record of %s: %w", id, err))
			}
			continue
		}
		if old, ok := s.stale[id]; ok && bytes.Equal(old, rec.Raw) {
			continue
		}
		rec.ThreadID = id
		if s.Observe(rec) {
			halts = append(halts, s.haltOf(id))
		}
	}
	return halts, errors.Join(errs...)
}

func retryable(err error) bool {
	return errors.Is(err, transport.ErrNoData) ||
		errors.Is(err, transport.ErrUnrecognized) ||
		errors.Is(err, transport.ErrMalformedRecord)
}
