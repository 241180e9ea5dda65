package transport

import (
	"strconv"
	"strings"
)

// DefaultChannelID names the default (non-halted) channel in correlation
// tags.
const DefaultChannelID = "main"

// ResumeCommand is the breakpoint-channel request that lets a halted
// thread continue.
const ResumeCommand = "continue"

// Channel identifies a request/response index space. The zero value is the
// default channel; ThreadChannel returns the breakpoint channel of a halted
// thread.
type Channel struct {
	thread string
}

// ThreadChannel returns the breakpoint channel for threadID.
func ThreadChannel(threadID string) Channel {
	return Channel{thread: threadID}
}

// IsDefault reports whether c is the default channel.
func (c Channel) IsDefault() bool {
	return c.thread == ""
}

// ThreadID returns the thread of a breakpoint channel, or "" for the
// default channel.
func (c Channel) ThreadID() string {
	return c.thread
}

// ID returns the channel id used in correlation tags.
func (c Channel) ID() string {
	if c.IsDefault() {
		return DefaultChannelID
	}
	return c.thread
}

// String returns a human-readable channel name.
func (c Channel) String() string {
	if c.IsDefault() {
		return "default"
	}
	return "thread " + c.thread
}

// Tag returns the correlation tag for request index on this channel.
func (c Channel) Tag(index int) string {
	return c.ID() + ":" + strconv.Itoa(index)
}

// SanitizeID maps a thread id to a string that is safe inside a file name.
// Bytes outside [A-Za-z0-9_-] become '_'. The remote runtime applies the
// same mapping.
func SanitizeID(id string) string {
	var b strings.Builder
	b.Grow(len(id))
	for i := 0; i < len(id); i++ {
		c := id[i]
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9', c == '_', c == '-':
			b.WriteByte(c)
		default:
			b.WriteByte('_')
		}
	}
	return b.String()
}
