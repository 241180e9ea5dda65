package router

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/dshills/wc3bridge/internal/transport"
)

func TestSendAndWaitMatch(t *testing.T) {
	f := newFixture(t, 2*time.Second)
	remote := startRemote(t, f.dir, echo)

	for i := 0; i < 3; i++ {
		result, err := f.router.SendAndWait(context.Background(), transport.Channel{}, []byte("return 1"))
		if err != nil {
			t.Fatalf("request %d: %v", i, err)
		}
		if string(result) != "return 1" {
			t.Errorf("request %d: result %q", i, result)
		}
	}
	if got := f.index.Next(transport.Channel{}); got != 3 {
		t.Errorf("index = %d, want 3", got)
	}
	if got := len(remote.seen()); got != 3 {
		t.Errorf("remote saw %d requests", got)
	}
}

func TestSendAndWaitIgnoresOtherTags(t *testing.T) {
	f := newFixture(t, 100*time.Millisecond)

	// A response for another request is already present.
	if err := f.dir.WriteResponse(transport.Channel{}, 7, []byte("stale")); err != nil {
		t.Fatal(err)
	}
	if err := f.dir.WriteResponse(transport.ThreadChannel("T1"), 0, []byte("other channel")); err != nil {
		t.Fatal(err)
	}

	_, err := f.router.SendAndWait(context.Background(), transport.Channel{}, []byte("x"))
	if !errors.Is(err, ErrTimeout) {
		t.Fatalf("expected ErrTimeout, got %v", err)
	}
	var xerr *ExchangeError
	if !errors.As(err, &xerr) || xerr.Index != 0 || !xerr.Channel.IsDefault() {
		t.Errorf("unexpected exchange error %#v", err)
	}
	if got := f.index.Next(transport.Channel{}); got != 1 {
		t.Errorf("index after timeout = %d, want 1", got)
	}
}

func TestSendAndWaitLateResponseNotReused(t *testing.T) {
	f := newFixture(t, 100*time.Millisecond)

	if _, err := f.router.SendAndWait(context.Background(), transport.Channel{}, []byte("slow")); !errors.Is(err, ErrTimeout) {
		t.Fatalf("expected timeout, got %v", err)
	}

	// The abandoned request is answered late, then the next one times out
	// too: the late answer must not be taken for it.
	if err := f.dir.WriteResponse(transport.Channel{}, 0, []byte("late")); err != nil {
		t.Fatal(err)
	}
	result, err := f.router.SendAndWait(context.Background(), transport.Channel{}, []byte("next"))
	if !errors.Is(err, ErrTimeout) {
		t.Fatalf("expected timeout, got %q, %v", result, err)
	}
}

func TestSendAndWaitWriteFailureKeepsIndex(t *testing.T) {
	f := newFixture(t, time.Second)
	blocker := filepath.Join(t.TempDir(), "not-a-dir")
	if err := os.WriteFile(blocker, nil, 0o644); err != nil {
		t.Fatal(err)
	}
	f.router.dir = transport.NewDir(blocker)

	_, err := f.router.SendAndWait(context.Background(), transport.Channel{}, []byte("x"))
	if err == nil || errors.Is(err, ErrTimeout) {
		t.Fatalf("expected write error, got %v", err)
	}
	if got := f.index.Next(transport.Channel{}); got != 0 {
		t.Errorf("index = %d, want 0", got)
	}
}

func TestSendAndWaitCancelled(t *testing.T) {
	f := newFixture(t, time.Minute)
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	_, err := f.router.SendAndWait(ctx, transport.ThreadChannel("T1"), []byte("x"))
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if got := f.index.Next(transport.ThreadChannel("T1")); got != 1 {
		t.Errorf("index = %d, want 1", got)
	}
}

func TestSendAndWaitThreadScenario(t *testing.T) {
	f := newFixture(t, 2*time.Second)
	f.halt(t, "T1", "b1", transport.Local{Name: "gold", Value: []byte("1000")})

	startRemote(t, f.dir, func(req request) (string, bool) {
		if req.ch.ThreadID() == "T1" && req.index == 0 && req.payload == "return gold" {
			return "1000", true
		}
		return "unexpected", true
	}, "T1")

	f.exec(t, "return gold")

	if got := f.out.String(); got != "1000\n" {
		t.Errorf("output %q, want %q", got, "1000\n")
	}
	if got := f.index.Next(transport.ThreadChannel("T1")); got != 1 {
		t.Errorf("T1 index = %d, want 1", got)
	}
	if got := f.index.Next(transport.Channel{}); got != 0 {
		t.Errorf("default index = %d, want 0", got)
	}
}
