package transport

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// File names inside the shared directory.
const (
	ResponseFile    = "out.txt"
	ThreadsFile     = "bp_threads.txt"
	requestPrefix   = "in"
	bpRequestPrefix = "bp_in_"
	recordPrefix    = "bp_data_"
	fileSuffix      = ".txt"
)

// Dir is the shared directory both sides poll.
type Dir struct {
	root string
}

// NewDir returns a Dir rooted at root.
func NewDir(root string) *Dir {
	return &Dir{root: root}
}

// Root returns the directory path.
func (d *Dir) Root() string {
	return d.root
}

// EnsureExists creates the directory if needed.
func (d *Dir) EnsureExists() error {
	if err := os.MkdirAll(d.root, 0o755); err != nil {
		return fmt.Errorf("create files root: %w", err)
	}
	return nil
}

// RequestPath returns the request file for index on channel ch.
func (d *Dir) RequestPath(ch Channel, index int) string {
	n := strconv.Itoa(index)
	if ch.IsDefault() {
		return filepath.Join(d.root, requestPrefix+n+fileSuffix)
	}
	return filepath.Join(d.root, bpRequestPrefix+SanitizeID(ch.ThreadID())+"_"+n+fileSuffix)
}

// ResponsePath returns the shared response file.
func (d *Dir) ResponsePath() string {
	return filepath.Join(d.root, ResponseFile)
}

// ThreadsPath returns the halted thread list file.
func (d *Dir) ThreadsPath() string {
	return filepath.Join(d.root, ThreadsFile)
}

// RecordPath returns the halt record file of a thread.
func (d *Dir) RecordPath(threadID string) string {
	return filepath.Join(d.root, recordPrefix+SanitizeID(threadID)+fileSuffix)
}

// WriteRequest writes request index on channel ch.
func (d *Dir) WriteRequest(ch Channel, index int, payload []byte) error {
	return WriteFile(d.RequestPath(ch, index), payload)
}

// ReadRequest reads request index on channel ch.
func (d *Dir) ReadRequest(ch Channel, index int) ([]byte, error) {
	return ReadFile(d.RequestPath(ch, index))
}

// WriteResponse writes the shared response file for request index on ch.
func (d *Dir) WriteResponse(ch Channel, index int, result []byte) error {
	tag := ch.Tag(index)
	payload := make([]byte, 0, len(tag)+1+len(result))
	payload = append(payload, tag...)
	payload = append(payload, FieldSep)
	payload = append(payload, result...)
	return WriteFile(d.ResponsePath(), payload)
}

// ReadResponse reads the shared response file. ok is false when the file
// is absent, unreadable or not yet a complete correlated response.
func (d *Dir) ReadResponse() (tag string, result []byte, ok bool) {
	data, err := os.ReadFile(d.ResponsePath())
	if err != nil {
		return "", nil, false
	}
	t, r, ok := DecodeCorrelated(data)
	if !ok {
		return "", nil, false
	}
	return string(t), r, true
}

// HaltedThreads returns the thread ids listed as halted by the remote side.
// A missing list means no thread is halted.
func (d *Dir) HaltedThreads() ([]string, error) {
	payload, err := ReadPlain(d.ThreadsPath())
	if err != nil {
		if errors.Is(err, ErrNoData) {
			return nil, nil
		}
		return nil, err
	}
	return ParseThreadList(payload), nil
}

// Record reads and parses the halt record of threadID. It returns ErrNoData
// when no record exists and ErrMalformedRecord when the record is
// incomplete.
func (d *Dir) Record(threadID string) (Record, error) {
	payload, err := ReadPlain(d.RecordPath(threadID))
	if err != nil {
		return Record{}, err
	}
	return ParseRecord(threadID, payload)
}

// WriteThreads publishes the halted thread list. Used by the emulator.
func (d *Dir) WriteThreads(ids []string) error {
	return WriteFile(d.ThreadsPath(), []byte(strings.Join(ids, "\n")))
}

// WriteRecord publishes a halt record. Used by the emulator.
func (d *Dir) WriteRecord(threadID string, payload []byte) error {
	return WriteFile(d.RecordPath(threadID), payload)
}

// Clean removes request and response files so a restarted game does not
// replay stale requests. Halt files are owned by the remote side and are
// left in place.
func (d *Dir) Clean() error {
	entries, err := os.ReadDir(d.root)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("list files root: %w", err)
	}

	var errs []error
	for _, e := range entries {
		if e.IsDir() || !isExchangeFile(e.Name()) {
			continue
		}
		if err := os.Remove(filepath.Join(d.root, e.Name())); err != nil && !os.IsNotExist(err) {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// isExchangeFile reports whether name is a request, response or leftover
// temporary file.
func isExchangeFile(name string) bool {
	if strings.HasPrefix(name, ".tmp-") {
		return true
	}
	if !strings.HasSuffix(name, fileSuffix) {
		return false
	}
	return strings.HasPrefix(name, requestPrefix) ||
		strings.HasPrefix(name, "out") ||
		strings.HasPrefix(name, bpRequestPrefix)
}
