package authclient

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/barangayhub/portal/internal/sessionsync"
)

var errSessionEnded = errors.New("session signed out by portal")

// subscriber buffers events for one OnAuthStateChange channel so emitters
// never block on slow readers and nothing is dropped.
type subscriber struct {
	id   int
	mu   sync.Mutex
	buf  []sessionsync.Event
	wake chan struct{}
	out  chan sessionsync.Event
}

func (s *subscriber) push(evt sessionsync.Event) {
	s.mu.Lock()
	s.buf = append(s.buf, evt)
	s.mu.Unlock()

	select {
	case s.wake <- struct{}{}:
	default:
	}
}

func (s *subscriber) pop() (sessionsync.Event, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.buf) == 0 {
		return sessionsync.Event{}, false
	}
	evt := s.buf[0]
	s.buf = s.buf[1:]
	return evt, true
}

func (c *Client) deliver(ctx context.Context, sub *subscriber) {
	defer c.wg.Done()
	defer close(sub.out)
	defer func() {
		c.mu.Lock()
		delete(c.subs, sub.id)
		c.mu.Unlock()
	}()

	for {
		evt, ok := sub.pop()
		if !ok {
			select {
			case <-sub.wake:
				continue
			case <-ctx.Done():
				return
			case <-c.ctx.Done():
				return
			}
		}
		select {
		case sub.out <- evt:
		case <-ctx.Done():
			return
		case <-c.ctx.Done():
			return
		}
	}
}

// tokenFor returns the held token while sid is still the current session.
func (c *Client) tokenFor(sid string) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.sessionID != sid || c.token == "" {
		return "", false
	}
	return c.token, true
}

// newBackOff returns the jittered exponential reconnect and retry policy,
// starting at retryDelay and capped at maxRetryDelay.
func (c *Client) newBackOff() *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = c.retryDelay
	b.MaxInterval = maxRetryDelay
	b.Reset()
	return b
}

// follow keeps an event stream open for session sid, reconnecting with
// backoff, and turns portal-side changes into local events. Events are
// matched on the session, so a refreshed token does not orphan the stream.
func (c *Client) follow(ctx context.Context, sid string) {
	defer c.wg.Done()

	b := c.newBackOff()
	for {
		token, ok := c.tokenFor(sid)
		if !ok {
			return
		}

		connected, err := c.stream(ctx, token, sid)
		if ctx.Err() != nil {
			return
		}
		if errors.Is(err, errSessionEnded) || isUnauthorized(err) {
			c.logger.Info("session ended by portal", "session", sid)
			c.expireSession(sid)
			return
		}
		if connected {
			b.Reset()
		}

		delay := b.NextBackOff()
		c.logger.Warn("session event stream interrupted", "error", err, "retryIn", delay.String())
		if !sleep(ctx, delay) {
			return
		}
	}
}

func (c *Client) stream(ctx context.Context, token, sid string) (bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/auth/v1/events", nil)
	if err != nil {
		return false, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.http.Do(req)
	if err != nil {
		return false, fmt.Errorf("opening event stream: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return false, &APIError{Status: resp.StatusCode}
	}

	r := newSSEReader(resp.Body)
	for {
		evt, err := r.next()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return true, errors.New("event stream closed")
			}
			return true, err
		}

		switch sessionsync.EventKind(evt.Kind) {
		case sessionsync.EventSignedOut:
			if evt.SessionID == sid {
				return true, errSessionEnded
			}
		case sessionsync.EventUserUpdated:
			c.userUpdated(sid)
		}
	}
}

func (c *Client) userUpdated(sid string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.token == "" || c.sessionID != sid {
		return
	}
	c.emitLocked(sessionsync.EventUserUpdated)
}

// autoRefresh refreshes the token refreshMargin before it expires for as
// long as sid is the current session. Failed refreshes are retried with
// backoff.
func (c *Client) autoRefresh(ctx context.Context, sid string) {
	defer c.wg.Done()

	b := c.newBackOff()
	failed := false
	for {
		c.mu.Lock()
		if c.sessionID != sid {
			c.mu.Unlock()
			return
		}
		wait := time.Until(c.expiresAt) - c.refreshMargin
		c.mu.Unlock()

		if failed {
			wait = b.NextBackOff()
		} else if wait < c.retryDelay {
			wait = c.retryDelay
		}
		if !sleep(ctx, wait) {
			return
		}

		if err := c.Refresh(ctx); err != nil {
			if ctx.Err() != nil || errors.Is(err, sessionsync.ErrNoSession) {
				return
			}
			c.logger.Warn("token refresh failed", "error", err, "session", sid)
			failed = true
			continue
		}
		failed = false
		b.Reset()
	}
}

// sleep waits for d and reports false if ctx ended first.
func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
