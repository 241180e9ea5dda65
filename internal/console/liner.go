package console

import (
	"bufio"
	"fmt"
	"io"
	"os"

	"github.com/peterh/liner"
)

// Liner is a LineReader with line editing and history, backed by
// github.com/peterh/liner.
type Liner struct {
	state       *liner.State
	historyPath string
}

// NewLiner puts the terminal in line editing mode and loads history from
// historyPath, if set. A missing history file is not an error.
func NewLiner(historyPath string) *Liner {
	state := liner.NewLiner()
	state.SetCtrlCAborts(true)

	l := &Liner{state: state, historyPath: historyPath}
	if historyPath != "" {
		if f, err := os.Open(historyPath); err == nil {
			_, _ = state.ReadHistory(f)
			f.Close()
		}
	}
	return l
}

// Prompt implements LineReader. Non-empty lines are added to history.
func (l *Liner) Prompt(prompt string) (string, error) {
	text, err := l.state.Prompt(prompt)
	if err != nil {
		return "", err
	}
	if text != "" {
		l.state.AppendHistory(text)
	}
	return text, nil
}

// Close saves history and restores the terminal.
func (l *Liner) Close() error {
	var histErr error
	if l.historyPath != "" {
		if f, err := os.Create(l.historyPath); err == nil {
			if _, err := l.state.WriteHistory(f); err != nil {
				histErr = fmt.Errorf("write history: %w", err)
			}
			f.Close()
		} else {
			histErr = fmt.Errorf("write history: %w", err)
		}
	}
	if err := l.state.Close(); err != nil {
		return err
	}
	return histErr
}

// ScannerReader is a LineReader over a plain stream, for piped input and
// tests. Prompts are written to out.
type ScannerReader struct {
	scanner *bufio.Scanner
	out     io.Writer
}

// NewScannerReader reads lines from in and writes prompts to out, which
// may be nil.
func NewScannerReader(in io.Reader, out io.Writer) *ScannerReader {
	if out == nil {
		out = io.Discard
	}
	return &ScannerReader{scanner: bufio.NewScanner(in), out: out}
}

// Prompt implements LineReader. It returns io.EOF at end of input.
func (s *ScannerReader) Prompt(prompt string) (string, error) {
	if _, err := io.WriteString(s.out, prompt); err != nil {
		return "", err
	}
	if !s.scanner.Scan() {
		if err := s.scanner.Err(); err != nil {
			return "", err
		}
		return "", io.EOF
	}
	return s.scanner.Text(), nil
}

// Close implements LineReader.
func (s *ScannerReader) Close() error {
	return nil
}

var (
	_ LineReader = (*Liner)(nil)
	_ LineReader = (*ScannerReader)(nil)
)
