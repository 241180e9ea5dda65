package session

import (
	"errors"
	"os"
	"testing"

	"github.com/dshills/wc3bridge/internal/transport"
)

// fakeSource is an in-memory RecordSource.
type fakeSource struct {
	threads    []string
	threadsErr error
	records    map[string][]byte
	recordErr  map[string]error
	reads      map[string]int
}

func newFakeSource() *fakeSource {
	return &fakeSource{
		records:   make(map[string][]byte),
		recordErr: make(map[string]error),
		reads:     make(map[string]int),
	}
}

func (f *fakeSource) HaltedThreads() ([]string, error) {
	return f.threads, f.threadsErr
}

func (f *fakeSource) Record(id string) (transport.Record, error) {
	f.reads[id]++
	if err := f.recordErr[id]; err != nil {
		return transport.Record{}, err
	}
	raw, ok := f.records[id]
	if !ok {
		return transport.Record{}, transport.ErrNoData
	}
	return transport.ParseRecord(id, raw)
}

func (f *fakeSource) halt(id, bpID string, locals ...transport.Local) {
	f.threads = append(f.threads, id)
	f.records[id] = transport.FormatRecord(bpID, nil, locals)
}

func TestPollObservesInOrder(t *testing.T) {
	src := newFakeSource()
	src.halt("T1", "b1", transport.Local{Name: "gold", Value: []byte("1000")})
	src.halt("T2", "b2")

	s := New()
	halts, err := s.Poll(src)
	if err != nil {
		t.Fatalf("Poll: %v", err)
	}
	if len(halts) != 2 || halts[0].ThreadID != "T1" || halts[1].ThreadID != "T2" {
		t.Fatalf("unexpected halts %v", halts)
	}
	if s.CurrentID() != "T1" {
		t.Errorf("current = %q", s.CurrentID())
	}

	// Halted threads are not read or announced again.
	halts, err = s.Poll(src)
	if err != nil || len(halts) != 0 {
		t.Errorf("second poll: %v, %v", halts, err)
	}
	if src.reads["T1"] != 1 {
		t.Errorf("T1 read %d times", src.reads["T1"])
	}
}

func TestPollRetriesIncompleteRecords(t *testing.T) {
	src := newFakeSource()
	src.threads = []string{"T1", "T2", "T3"}
	src.records["T2"] = []byte("bp_id")
	src.recordErr["T3"] = transport.ErrUnrecognized

	s := New()
	halts, err := s.Poll(src)
	if err != nil {
		t.Fatalf("Poll: %v", err)
	}
	if len(halts) != 0 {
		t.Fatalf("expected no halts, got %v", halts)
	}

	src.records["T1"] = transport.FormatRecord("b1", nil, nil)
	halts, _ = s.Poll(src)
	if len(halts) != 1 || halts[0].ThreadID != "T1" {
		t.Errorf("unexpected halts %v", halts)
	}
	if src.reads["T2"] != 2 {
		t.Errorf("malformed record read %d times, want 2", src.reads["T2"])
	}
}

func TestPollReportsOtherErrors(t *testing.T) {
	src := newFakeSource()
	src.threads = []string{"T1", "T2"}
	src.recordErr["T1"] = errors.New("permission denied")
	src.records["T2"] = transport.FormatRecord("b2", nil, nil)

	s := New()
	halts, err := s.Poll(src)
	if err == nil {
		t.Error("expected an error")
	}
	if len(halts) != 1 || halts[0].ThreadID != "T2" {
		t.Errorf("a bad record must not block others: %v", halts)
	}

	src.threadsErr = errors.New("disk gone")
	if _, err := s.Poll(src); err == nil {
		t.Error("expected list error")
	}
}

func TestPollIgnoresStaleHalt(t *testing.T) {
	src := newFakeSource()
	src.halt("T1", "b1")

	s := New()
	if halts, _ := s.Poll(src); len(halts) != 1 {
		t.Fatalf("expected one halt, got %v", halts)
	}
	if _, _, err := s.ResumeCurrent(); err != nil {
		t.Fatal(err)
	}

	// The remote side has not rewritten its files yet.
	if halts, _ := s.Poll(src); len(halts) != 0 {
		t.Errorf("persisting halt reported as new: %v", halts)
	}

	// A different record is a new halt.
	src.records["T1"] = transport.FormatRecord("b9", nil, nil)
	halts, _ := s.Poll(src)
	if len(halts) != 1 || halts[0].Record.BreakpointID != "b9" {
		t.Errorf("expected new halt at b9, got %v", halts)
	}
}

func TestPollForgetsStaleWhenUnlisted(t *testing.T) {
	src := newFakeSource()
	src.halt("T1", "b1")

	s := New()
	s.Poll(src)
	s.ResumeCurrent()

	src.threads = nil
	if halts, _ := s.Poll(src); len(halts) != 0 {
		t.Fatalf("unexpected halts %v", halts)
	}

	// Same breakpoint hit again after the thread left the list.
	src.threads = []string{"T1"}
	halts, _ := s.Poll(src)
	if len(halts) != 1 || halts[0].Record.BreakpointID != "b1" {
		t.Errorf("expected repeated halt at b1, got %v", halts)
	}
}

func TestPollDir(t *testing.T) {
	d := transport.NewDir(t.TempDir())
	if err := d.WriteRecord("T1", transport.FormatRecord("b1", []byte("traceback"), nil)); err != nil {
		t.Fatal(err)
	}
	if err := d.WriteThreads([]string{"T1"}); err != nil {
		t.Fatal(err)
	}

	s := New()
	halts, err := s.Poll(d)
	if err != nil {
		t.Fatalf("Poll: %v", err)
	}
	if len(halts) != 1 || string(halts[0].Record.Stack) != "traceback" {
		t.Errorf("unexpected halts %v", halts)
	}
}

func TestPollSkipsTornThreadList(t *testing.T) {
	d := transport.NewDir(t.TempDir())
	if err := d.WriteRecord("T1", transport.FormatRecord("b1", nil, nil)); err != nil {
		t.Fatal(err)
	}
	if err := d.WriteThreads([]string{"T1"}); err != nil {
		t.Fatal(err)
	}

	s := New()
	if halts, err := s.Poll(d); err != nil || len(halts) != 1 {
		t.Fatalf("first poll: %v, %v", halts, err)
	}
	if _, _, err := s.ResumeCurrent(); err != nil {
		t.Fatal(err)
	}

	// The remote side is rewriting the list, still naming T1.
	full := transport.Encode([]byte("T1"))
	if err := os.WriteFile(d.ThreadsPath(), full[:len(transport.FilePrefix)+20], 0o644); err != nil {
		t.Fatal(err)
	}
	halts, err := s.Poll(d)
	if err != nil || len(halts) != 0 {
		t.Fatalf("torn list: %v, %v", halts, err)
	}

	if err := d.WriteThreads([]string{"T1"}); err != nil {
		t.Fatal(err)
	}
	halts, err = s.Poll(d)
	if err != nil {
		t.Fatalf("Poll: %v", err)
	}
	if len(halts) != 0 || s.CurrentID() != "" {
		t.Errorf("persisting halt reported as new: %v, current %q", halts, s.CurrentID())
	}
}

func TestPollTornListError(t *testing.T) {
	src := newFakeSource()
	src.threadsErr = transport.ErrUnrecognized

	s := New()
	halts, err := s.Poll(src)
	if err != nil || halts != nil {
		t.Errorf("expected a silent skip, got %v, %v", halts, err)
	}
}
