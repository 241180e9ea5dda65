package session

import "github.com/dshills/wc3bridge/internal/transport"

// CommandIndex hands out request indices: one counter for the default
// channel and one per thread channel. All counters start at 0.
type CommandIndex struct {
	global  int
	threads map[string]int
}

// NewCommandIndex creates a CommandIndex with every counter at 0.
func NewCommandIndex() *CommandIndex {
	return &CommandIndex{threads: make(map[string]int)}
}

// Next returns the index the next request on ch must use. It does not
// consume it.
func (c *CommandIndex) Next(ch transport.Channel) int {
	if ch.IsDefault() {
		return c.global
	}
	return c.threads[ch.ThreadID()]
}

// Advance consumes the current index of ch.
func (c *CommandIndex) Advance(ch transport.Channel) {
	if ch.IsDefault() {
		c.global++
		return
	}
	if c.threads == nil {
		c.threads = make(map[string]int)
	}
	c.threads[ch.ThreadID()]++
}

// Jump sets the default channel counter, to resynchronize with a remote
// side that has already consumed requests.
func (c *CommandIndex) Jump(n int) {
	if n < 0 {
		n = 0
	}
	c.global = n
}

// Reset sets every counter back to 0.
func (c *CommandIndex) Reset() {
	c.global = 0
	c.threads = make(map[string]int)
}
