package router

import (
	"context"
	"fmt"
	"time"

	"github.com/dshills/wc3bridge/internal/transport"
)

// ExchangeError describes a failed request.
type ExchangeError struct {
	// Channel and Index identify the request.
	Channel transport.Channel
	Index   int
	// Err is the underlying error.
	Err error
}

// Error implements the error interface.
func (e *ExchangeError) Error() string {
	return fmt.Sprintf("%s request %d: %v", e.Channel, e.Index, e.Err)
}

// Unwrap returns the underlying error.
func (e *ExchangeError) Unwrap() error {
	return e.Err
}

// SendAndWait writes payload as the next request on ch and polls the
// shared response file until a response tagged for exactly that request
// arrives.
//
// Delivery is at most once. The channel index is consumed on a matching
// response and also on timeout or cancellation, so a late response to an
// abandoned request can never be taken for the answer to a later one.
// When the request cannot be written nothing was sent and the index is
// kept.
func (r *Router) SendAndWait(ctx context.Context, ch transport.Channel, payload []byte) ([]byte, error) {
	index := r.index.Next(ch)
	if err := r.dir.WriteRequest(ch, index, payload); err != nil {
		return nil, &ExchangeError{Channel: ch, Index: index, Err: fmt.Errorf("write request: %w", err)}
	}
	want := ch.Tag(index)
	log := r.logger.WithField("tag", want)
	log.Debug("request sent, %d bytes", len(payload))

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()
	deadline := time.NewTimer(r.timeout)
	defer deadline.Stop()

	for {
		tag, result, ok := r.dir.ReadResponse()
		if ok && tag == want {
			r.index.Advance(ch)
			log.Debug("response received, %d bytes", len(result))
			return result, nil
		}

		select {
		case <-ctx.Done():
			r.index.Advance(ch)
			return nil, ctx.Err()
		case <-deadline.C:
			r.index.Advance(ch)
			log.Warn("no response after %s", r.timeout)
			return nil, &ExchangeError{Channel: ch, Index: index, Err: ErrTimeout}
		case <-ticker.C:
		}
	}
}
