package session

import (
	"testing"

	"github.com/dshills/wc3bridge/internal/transport"
)

func TestCommandIndex(t *testing.T) {
	idx := NewCommandIndex()
	main := transport.Channel{}
	t1 := transport.ThreadChannel("T1")
	t2 := transport.ThreadChannel("T2")

	if idx.Next(main) != 0 || idx.Next(t1) != 0 {
		t.Fatal("counters must start at 0")
	}
	if idx.Next(main) != 0 {
		t.Error("Next must not consume the index")
	}

	idx.Advance(t1)
	idx.Advance(main)
	idx.Advance(main)

	tests := []struct {
		ch   transport.Channel
		want int
	}{
		{main, 2},
		{t1, 1},
		{t2, 0},
	}
	for _, tt := range tests {
		if got := idx.Next(tt.ch); got != tt.want {
			t.Errorf("%s: got %d, want %d", tt.ch, got, tt.want)
		}
	}

	idx.Jump(10)
	if idx.Next(main) != 10 || idx.Next(t1) != 1 {
		t.Error("Jump must only move the default counter")
	}
	idx.Jump(-3)
	if idx.Next(main) != 0 {
		t.Errorf("negative jump gave %d", idx.Next(main))
	}

	idx.Reset()
	if idx.Next(main) != 0 || idx.Next(t1) != 0 {
		t.Error("Reset must zero every counter")
	}
}

func TestCommandIndexZeroValue(t *testing.T) {
	var idx CommandIndex
	idx.Advance(transport.ThreadChannel("T1"))
	if idx.Next(transport.ThreadChannel("T1")) != 1 {
		t.Error("zero value must be usable")
	}
}
