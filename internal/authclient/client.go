// Package authclient talks to the portal's auth and profile endpoints and
// exposes them as a sessionsync collaborator.
package authclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/barangayhub/portal/internal/sessionsync"
)

var (
	_ sessionsync.Collaborator = (*Client)(nil)
	_ sessionsync.ProfileStore = (*Client)(nil)
)

const maxRetryDelay = 30 * time.Second

// Client is an HTTP client for the portal. It holds at most one access token
// in memory and reports session changes to its subscribers in the order they
// happen.
type Client struct {
	baseURL       string
	http          *http.Client
	logger        *slog.Logger
	retryDelay    time.Duration
	refreshMargin time.Duration

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu          sync.Mutex
	closed      bool
	token       string
	sessionID   string
	expiresAt   time.Time
	session     *sessionsync.Session
	stopSession context.CancelFunc
	subs        map[int]*subscriber
	nextSub     int
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient sets the HTTP client used for all requests.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.http = hc
		}
	}
}

// WithLogger sets the client logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithRetryDelay sets the initial delay before reconnecting the event stream
// or retrying a failed refresh.
func WithRetryDelay(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.retryDelay = d
		}
	}
}

// WithRefreshMargin sets how long before expiry the access token is
// refreshed. Zero disables automatic refresh.
func WithRefreshMargin(d time.Duration) Option {
	return func(c *Client) {
		if d >= 0 {
			c.refreshMargin = d
		}
	}
}

// New creates a Client for the portal at baseURL.
func New(baseURL string, opts ...Option) *Client {
	ctx, cancel := context.WithCancel(context.Background())
	c := &Client{
		baseURL:       strings.TrimRight(baseURL, "/"),
		http:          &http.Client{},
		logger:        slog.Default(),
		retryDelay:    time.Second,
		refreshMargin: time.Minute,
		ctx:           ctx,
		cancel:        cancel,
		subs:          make(map[int]*subscriber),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Close stops background work, closes every subscription channel and waits
// for all goroutines to exit. It is safe to call more than once.
func (c *Client) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	c.stopSessionLocked()
	c.cancel()
	c.mu.Unlock()

	c.wg.Wait()
}

// SignedIn reports whether the client currently holds an access token.
func (c *Client) SignedIn() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.token != ""
}

// CurrentUser returns the session behind the held token. It returns an error
// wrapping sessionsync.ErrNoSession when no token is held or the portal
// rejects it, in which case the token is dropped.
func (c *Client) CurrentUser(ctx context.Context) (*sessionsync.Session, error) {
	token := c.currentToken()
	if token == "" {
		return nil, sessionsync.ErrNoSession
	}

	var u userPayload
	if err := c.do(ctx, http.MethodGet, "/auth/v1/user", token, nil, &u); err != nil {
		if isUnauthorized(err) {
			c.mu.Lock()
			if c.token == token {
				c.clearLocked()
			}
			c.mu.Unlock()
			return nil, fmt.Errorf("fetching user: %w", sessionsync.ErrNoSession)
		}
		return nil, fmt.Errorf("fetching user: %w", err)
	}
	return u.session(), nil
}

// Profile returns the profile with the given id, or (nil, nil) when the
// portal has none.
func (c *Client) Profile(ctx context.Context, id string) (*sessionsync.Profile, error) {
	token := c.currentToken()
	if token == "" {
		return nil, sessionsync.ErrNoSession
	}

	var p profilePayload
	if err := c.do(ctx, http.MethodGet, "/rest/v1/profiles/"+url.PathEscape(id), token, nil, &p); err != nil {
		if isStatus(err, http.StatusNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("fetching profile: %w", err)
	}
	return p.profile(), nil
}

// OnAuthStateChange returns a channel receiving every session change made
// after the call, in order. The channel is closed when ctx ends or the
// client is closed.
func (c *Client) OnAuthStateChange(ctx context.Context) (<-chan sessionsync.Event, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil, ErrClosed
	}

	sub := &subscriber{
		id:   c.nextSub,
		wake: make(chan struct{}, 1),
		out:  make(chan sessionsync.Event),
	}
	c.nextSub++
	c.subs[sub.id] = sub

	c.wg.Add(1)
	go c.deliver(ctx, sub)
	return sub.out, nil
}

// SignIn exchanges credentials for an access token and emits SIGNED_IN.
func (c *Client) SignIn(ctx context.Context, email, password string) error {
	var tok tokenPayload
	if err := c.do(ctx, http.MethodPost, "/auth/v1/token", "", credentials{Email: email, Password: password}, &tok); err != nil {
		return fmt.Errorf("signing in: %w", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrClosed
	}
	c.setGrantLocked(tok)
	c.emitLocked(sessionsync.EventSignedIn)
	return nil
}

// SignUp registers an account and signs in with it.
func (c *Client) SignUp(ctx context.Context, req sessionsync.SignUpRequest) error {
	body := signUpBody{Email: req.Email, Password: req.Password, DisplayName: req.DisplayName}
	if err := c.do(ctx, http.MethodPost, "/auth/v1/signup", "", body, nil); err != nil {
		return fmt.Errorf("signing up: %w", err)
	}
	return c.SignIn(ctx, req.Email, req.Password)
}

// SignOut revokes the held session and emits SIGNED_OUT. The token is
// dropped locally even when the portal cannot be reached.
func (c *Client) SignOut(ctx context.Context) error {
	token := c.currentToken()
	if token == "" {
		return nil
	}

	err := c.do(ctx, http.MethodPost, "/auth/v1/logout", token, nil, nil)
	if isUnauthorized(err) {
		err = nil
	}
	c.expire(token)

	if err != nil {
		return fmt.Errorf("signing out: %w", err)
	}
	return nil
}

// Refresh extends the held session and emits TOKEN_REFRESHED.
func (c *Client) Refresh(ctx context.Context) error {
	token := c.currentToken()
	if token == "" {
		return sessionsync.ErrNoSession
	}

	var tok tokenPayload
	if err := c.do(ctx, http.MethodPost, "/auth/v1/refresh", token, nil, &tok); err != nil {
		if isUnauthorized(err) {
			c.expire(token)
			return fmt.Errorf("refreshing session: %w", sessionsync.ErrNoSession)
		}
		return fmt.Errorf("refreshing session: %w", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.token != token {
		return nil
	}
	c.setGrantLocked(tok)
	c.emitLocked(sessionsync.EventTokenRefreshed)
	return nil
}

func (c *Client) currentToken() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.token
}

// expire drops token if it is still the held one and emits SIGNED_OUT.
func (c *Client) expire(token string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if token == "" || c.token != token {
		return
	}
	c.clearLocked()
	c.emitLocked(sessionsync.EventSignedOut)
}

// expireSession drops the held token if it still belongs to session sid,
// whichever token of that session is held, and emits SIGNED_OUT.
func (c *Client) expireSession(sid string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if sid == "" || c.token == "" || c.sessionID != sid {
		return
	}
	c.clearLocked()
	c.emitLocked(sessionsync.EventSignedOut)
}

func (c *Client) setGrantLocked(tok tokenPayload) {
	c.token = tok.AccessToken
	c.expiresAt = tok.ExpiresAt
	c.session = tok.User.session()
	if tok.SessionID != c.sessionID {
		c.sessionID = tok.SessionID
		c.startSessionLocked()
	}
}

func (c *Client) clearLocked() {
	c.stopSessionLocked()
	c.token = ""
	c.sessionID = ""
	c.expiresAt = time.Time{}
	c.session = nil
}

// startSessionLocked launches the event follower and refresher for the
// current session.
func (c *Client) startSessionLocked() {
	c.stopSessionLocked()
	if c.closed {
		return
	}
	ctx, cancel := context.WithCancel(c.ctx)
	c.stopSession = cancel
	sid := c.sessionID

	c.wg.Add(1)
	go c.follow(ctx, sid)
	if c.refreshMargin > 0 {
		c.wg.Add(1)
		go c.autoRefresh(ctx, sid)
	}
}

func (c *Client) stopSessionLocked() {
	if c.stopSession != nil {
		c.stopSession()
		c.stopSession = nil
	}
}

// emitLocked queues an event for every subscriber. SIGNED_OUT carries no
// session; every other kind carries a copy of the held one.
func (c *Client) emitLocked(kind sessionsync.EventKind) {
	evt := sessionsync.Event{Kind: kind}
	if kind != sessionsync.EventSignedOut && c.session != nil {
		s := *c.session
		evt.Session = &s
	}
	c.logger.Debug("session event", "kind", kind, "subscribers", len(c.subs))
	for _, sub := range c.subs {
		sub.push(evt)
	}
}

func (c *Client) do(ctx context.Context, method, path, token string, body, out any) error {
	var rdr io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encoding request: %w", err)
		}
		rdr = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, rdr)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNoContent {
		return nil
	}

	var env envelope[json.RawMessage]
	decodeErr := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&env)

	if resp.StatusCode >= 300 {
		apiErr := &APIError{Status: resp.StatusCode}
		if decodeErr == nil && env.Error != nil {
			apiErr.Code = env.Error.Code
			apiErr.Message = env.Error.Message
		}
		return apiErr
	}
	if decodeErr != nil {
		return fmt.Errorf("decoding %s response: %w", path, decodeErr)
	}
	if out != nil && len(env.Data) > 0 {
		if err := json.Unmarshal(env.Data, out); err != nil {
			return fmt.Errorf("decoding %s data: %w", path, err)
		}
	}
	return nil
}
