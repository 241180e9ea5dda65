// Package console reads operator lines on a background goroutine and hands
// them to the event loop over a channel.
//
// The loop drives the exchange: it passes the prompt it wants shown and
// later receives the completed line, so a prompt always reflects the state
// after the previous command ran.
package console

import (
	"errors"
	"io"
	"sync"

	"github.com/peterh/liner"
)

// LineReader reads one line after showing a prompt.
type LineReader interface {
	Prompt(prompt string) (string, error)
	Close() error
}

// Line is one result of a prompt. Err is set when reading failed; the
// reader stops after delivering an error.
type Line struct {
	Text string
	Err  error
}

// IsQuit reports whether err means the operator closed the console: end of
// input or an aborted prompt (Ctrl-C).
func IsQuit(err error) bool {
	return errors.Is(err, io.EOF) || errors.Is(err, liner.ErrPromptAborted)
}

// Reader owns a LineReader and the goroutine blocked on it.
type Reader struct {
	lr      LineReader
	prompts chan string
	lines   chan Line

	closeOnce sync.Once
	done      chan struct{}
}

// NewReader starts reading from lr. Nothing is read until Request is
// called.
func NewReader(lr LineReader) *Reader {
	r := &Reader{
		lr:      lr,
		prompts: make(chan string, 1),
		lines:   make(chan Line, 1),
		done:    make(chan struct{}),
	}
	go r.loop()
	return r
}

// Request asks for one line shown with prompt. Only one request may be
// outstanding; a second one before the line arrives is dropped.
func (r *Reader) Request(prompt string) {
	select {
	case r.prompts <- prompt:
	default:
	}
}

// Lines returns the channel completed lines are delivered on.
func (r *Reader) Lines() <-chan Line {
	return r.lines
}

// Close stops the reader and closes the LineReader. A goroutine blocked in
// a terminal read stays blocked until the read returns; its line is
// discarded.
func (r *Reader) Close() error {
	var err error
	r.closeOnce.Do(func() {
		close(r.done)
		err = r.lr.Close()
	})
	return err
}

func (r *Reader) loop() {
	for {
		var prompt string
		select {
		case <-r.done:
			return
		case prompt = <-r.prompts:
		}

		text, err := r.lr.Prompt(prompt)
		select {
		case r.lines <- Line{Text: text, Err: err}:
		case <-r.done:
			return
		}
		if err != nil {
			return
		}
	}
}
