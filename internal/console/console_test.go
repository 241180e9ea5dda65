package console

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/peterh/liner"
)

func receive(t *testing.T, r *Reader) Line {
	t.Helper()
	select {
	case line := <-r.Lines():
		return line
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for line")
		return Line{}
	}
}

func TestReaderHandshake(t *testing.T) {
	var prompts bytes.Buffer
	r := NewReader(NewScannerReader(strings.NewReader("return gold\nlist\n"), &prompts))
	defer r.Close()

	// Nothing is read before a prompt is requested.
	select {
	case line := <-r.Lines():
		t.Fatalf("line %q delivered without a prompt", line.Text)
	case <-time.After(50 * time.Millisecond):
	}

	r.Request("0 >>> ")
	if line := receive(t, r); line.Text != "return gold" || line.Err != nil {
		t.Errorf("first line = %+v", line)
	}
	r.Request("[T1] 0 >>> ")
	if line := receive(t, r); line.Text != "list" {
		t.Errorf("second line = %+v", line)
	}
	r.Request("1 >>> ")
	line := receive(t, r)
	if !IsQuit(line.Err) {
		t.Errorf("expected end of input, got %+v", line)
	}

	if got := prompts.String(); got != "0 >>> [T1] 0 >>> 1 >>> " {
		t.Errorf("prompts written: %q", got)
	}
}

type failingReader struct{ closed bool }

func (f *failingReader) Prompt(string) (string, error) { return "", errors.New("tty gone") }
func (f *failingReader) Close() error                  { f.closed = true; return nil }

func TestReaderDeliversErrors(t *testing.T) {
	lr := &failingReader{}
	r := NewReader(lr)

	r.Request("> ")
	line := receive(t, r)
	if line.Err == nil || IsQuit(line.Err) {
		t.Errorf("expected a read error, got %+v", line)
	}

	if err := r.Close(); err != nil {
		t.Fatal(err)
	}
	if err := r.Close(); err != nil {
		t.Errorf("second Close: %v", err)
	}
	if !lr.closed {
		t.Error("LineReader not closed")
	}
}

func TestIsQuit(t *testing.T) {
	tests := []struct {
		err  error
		want bool
	}{
		{io.EOF, true},
		{liner.ErrPromptAborted, true},
		{fmt.Errorf("read: %w", io.EOF), true},
		{errors.New("other"), false},
		{nil, false},
	}
	for _, tt := range tests {
		if got := IsQuit(tt.err); got != tt.want {
			t.Errorf("IsQuit(%v) = %v, want %v", tt.err, got, tt.want)
		}
	}
}
