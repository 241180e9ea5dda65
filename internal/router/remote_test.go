package router

import (
	"bytes"
	"context"
	"sync"
	"testing"
	"time"

	"github.com/dshills/wc3bridge/internal/logging"
	"github.com/dshills/wc3bridge/internal/session"
	"github.com/dshills/wc3bridge/internal/transport"
)

// request is one request seen by fakeRemote.
type request struct {
	ch      transport.Channel
	index   int
	payload string
}

// fakeRemote answers requests the way the game does: it consumes request
// files in index order per channel and writes the shared response file.
type fakeRemote struct {
	dir      *transport.Dir
	channels []transport.Channel
	handle   func(req request) (result string, respond bool)

	mu       sync.Mutex
	requests []request

	cancel context.CancelFunc
	done   chan struct{}
}

func startRemote(t *testing.T, dir *transport.Dir, handle func(request) (string, bool), threads ...string) *fakeRemote {
	t.Helper()
	channels := []transport.Channel{{}}
	for _, id := range threads {
		channels = append(channels, transport.ThreadChannel(id))
	}
	ctx, cancel := context.WithCancel(context.Background())
	f := &fakeRemote{
		dir:      dir,
		channels: channels,
		handle:   handle,
		cancel:   cancel,
		done:     make(chan struct{}),
	}
	go f.run(ctx)
	t.Cleanup(f.stop)
	return f
}

func (f *fakeRemote) run(ctx context.Context) {
	defer close(f.done)
	next := make(map[transport.Channel]int)
	ticker := time.NewTicker(2 * time.Millisecond)
	defer ticker.Stop()

	for {
		for _, ch := range f.channels {
			payload, err := f.dir.ReadRequest(ch, next[ch])
			if err != nil {
				continue
			}
			req := request{ch: ch, index: next[ch], payload: string(payload)}
			next[ch]++
			f.mu.Lock()
			f.requests = append(f.requests, req)
			f.mu.Unlock()
			if result, ok := f.handle(req); ok {
				_ = f.dir.WriteResponse(ch, req.index, []byte(result))
			}
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (f *fakeRemote) stop() {
	f.cancel()
	<-f.done
}

func (f *fakeRemote) seen() []request {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]request(nil), f.requests...)
}

// echo answers every request with its own payload.
func echo(req request) (string, bool) {
	return req.payload, true
}

// silent never answers.
func silent(request) (string, bool) {
	return "", false
}

type fixture struct {
	dir     *transport.Dir
	session *session.Session
	index   *session.CommandIndex
	out     *bytes.Buffer
	router  *Router
}

func newFixture(t *testing.T, timeout time.Duration) *fixture {
	t.Helper()
	f := &fixture{
		dir:     transport.NewDir(t.TempDir()),
		session: session.New(),
		index:   session.NewCommandIndex(),
		out:     &bytes.Buffer{},
	}
	f.router = New(Options{
		Dir:          f.dir,
		Session:      f.session,
		Index:        f.index,
		Output:       f.out,
		Logger:       logging.Null,
		PollInterval: 2 * time.Millisecond,
		Timeout:      timeout,
	})
	return f
}

// halt registers a halted thread in the session.
func (f *fixture) halt(t *testing.T, thread, bpID string, locals ...transport.Local) {
	t.Helper()
	rec, err := transport.ParseRecord(thread, transport.FormatRecord(bpID, []byte("stack traceback:\n\tmain.lua:3"), locals))
	if err != nil {
		t.Fatal(err)
	}
	f.session.Observe(rec)
}

func (f *fixture) exec(t *testing.T, line string) {
	t.Helper()
	if err := f.router.Execute(context.Background(), line); err != nil {
		t.Fatalf("Execute(%q): %v", line, err)
	}
}
