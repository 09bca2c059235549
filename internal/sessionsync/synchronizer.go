// Package sessionsync mirrors the remote authentication state into a local,
// read-only snapshot: who is signed in, their profile, and the role flags
// derived from it.
//
// A single goroutine owns the mutable state. It starts a resolution
// (current user, then profile) on start and on every session-present event,
// clears the identity on session-absent events, and commits a resolution's
// result only if no newer resolution or sign-out has been issued since.
package sessionsync

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/barangayhub/portal/internal/boundary"
	"github.com/barangayhub/portal/internal/obs"
)

// ErrClosed is returned by Start after Close.
var ErrClosed = errors.New("synchronizer closed")

// Synchronizer keeps a local snapshot of the collaborator's session state.
type Synchronizer struct {
	collab   Collaborator
	profiles ProfileStore
	cache    Cache
	timeout  time.Duration
	logger   *slog.Logger
	metrics  *obs.SyncMetrics

	snap atomic.Pointer[Snapshot]

	mu          sync.Mutex // guards everything below and snapshot publication
	started     bool
	closed      bool
	cancel      context.CancelFunc
	done        chan struct{}
	watchers    map[int]chan Snapshot
	nextWatcher int

	wg sync.WaitGroup
}

// Option configures a Synchronizer.
type Option func(*Synchronizer)

// WithLogger sets the logger. The default is slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(s *Synchronizer) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithCache enables the provisional local cache.
func WithCache(c Cache) Option {
	return func(s *Synchronizer) { s.cache = c }
}

// WithResolveTimeout bounds each resolution. Zero disables the bound.
func WithResolveTimeout(d time.Duration) Option {
	return func(s *Synchronizer) {
		if d > 0 {
			s.timeout = d
		}
	}
}

// WithMetrics records resolution outcomes.
func WithMetrics(m *obs.SyncMetrics) Option {
	return func(s *Synchronizer) { s.metrics = m }
}

// New creates a Synchronizer. Nothing happens until Start is called.
func New(collab Collaborator, profiles ProfileStore, opts ...Option) *Synchronizer {
	s := &Synchronizer{
		collab:   collab,
		profiles: profiles,
		logger:   slog.Default(),
		done:     make(chan struct{}),
		watchers: make(map[int]chan Snapshot),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.snap.Store(&Snapshot{State: StateUnresolved, Loading: true})
	return s
}

// Start registers for session-change events and issues the initial
// resolution. It returns immediately; the synchronizer runs until ctx ends
// or Close is called.
func (s *Synchronizer) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	if s.started {
		s.mu.Unlock()
		return ErrAlreadyStarted
	}
	s.started = true
	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.wg.Add(1)
	s.mu.Unlock()

	go s.run(ctx)
	return nil
}

// Close stops the synchronizer, releases the subscription and waits for all
// of its goroutines. Results of resolutions still in flight are discarded.
// Close is idempotent.
func (s *Synchronizer) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	close(s.done)
	cancel := s.cancel
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	s.wg.Wait()
}

// Snapshot returns the current immutable snapshot.
func (s *Synchronizer) Snapshot() Snapshot {
	return *s.snap.Load()
}

// CurrentSession returns a copy of the authoritative session, or nil.
func (s *Synchronizer) CurrentSession() *Session {
	p := s.snap.Load().Session
	if p == nil {
		return nil
	}
	c := *p
	return &c
}

// CurrentProfile returns a copy of the profile, or nil.
func (s *Synchronizer) CurrentProfile() *Profile {
	p := s.snap.Load().Profile
	if p == nil {
		return nil
	}
	c := *p
	return &c
}

// IsLoading reports whether the first resolution is still outstanding.
func (s *Synchronizer) IsLoading() bool { return s.snap.Load().Loading }

// LastError returns the error of the last committed resolution, or nil.
func (s *Synchronizer) LastError() *Error { return s.snap.Load().Err }

// IsAdmin reports the admin flag of the current profile. It is false
// without a profile.
func (s *Synchronizer) IsAdmin() bool { return s.Snapshot().IsAdmin() }

// IsHealthWorker reports the health worker flag of the current profile.
func (s *Synchronizer) IsHealthWorker() bool { return s.Snapshot().IsHealthWorker() }

// IsTanod reports the tanod flag of the current profile.
func (s *Synchronizer) IsTanod() bool { return s.Snapshot().IsTanod() }

// IsOfficial reports the barangay official flag of the current profile.
func (s *Synchronizer) IsOfficial() bool { return s.Snapshot().IsOfficial() }

// IsResident reports the resident flag of the current profile.
func (s *Synchronizer) IsResident() bool { return s.Snapshot().IsResident() }

// SignIn forwards to the collaborator. The snapshot changes only when the
// collaborator's resulting event arrives.
func (s *Synchronizer) SignIn(ctx context.Context, email, password string) error {
	return s.collab.SignIn(ctx, email, password)
}

// SignUp forwards to the collaborator.
func (s *Synchronizer) SignUp(ctx context.Context, req SignUpRequest) error {
	return s.collab.SignUp(ctx, req)
}

// SignOut forwards to the collaborator.
func (s *Synchronizer) SignOut(ctx context.Context) error {
	return s.collab.SignOut(ctx)
}

// Watch returns a channel that receives the current snapshot and then every
// change. Only the latest undelivered snapshot is kept. The channel is closed
// when ctx ends or the synchronizer is closed.
func (s *Synchronizer) Watch(ctx context.Context) <-chan Snapshot {
	ch := make(chan Snapshot, 1)

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		close(ch)
		return ch
	}
	id := s.nextWatcher
	s.nextWatcher++
	s.watchers[id] = ch
	ch <- *s.snap.Load()
	s.wg.Add(1)
	s.mu.Unlock()

	go func() {
		defer s.wg.Done()
		select {
		case <-ctx.Done():
		case <-s.done:
		}
		s.mu.Lock()
		delete(s.watchers, id)
		close(ch)
		s.mu.Unlock()
	}()

	return ch
}

type resolution struct {
	seq     uint64
	session *Session
	profile *Profile
	err     *Error
}

func (s *Synchronizer) run(ctx context.Context) {
	defer s.wg.Done()

	provisional := s.loadProvisional()

	events, err := boundary.Guard(s.logger, "auth_state_subscription", func() (<-chan Event, error) {
		return s.collab.OnAuthStateChange(ctx)
	}, nil)
	if err != nil {
		s.logger.Warn("sessionsync: subscription failed; continuing without change events", "error", err)
	}

	results := make(chan resolution)
	var issued uint64
	issue := func() {
		issued++
		s.wg.Add(1)
		go s.resolve(ctx, issued, results)
	}

	issue()
	cur := Snapshot{State: StateResolving, Loading: true, Provisional: provisional}
	s.publish(cur)

	for {
		select {
		case <-ctx.Done():
			return

		case ev, ok := <-events:
			if !ok {
				if ctx.Err() != nil {
					return
				}
				s.logger.Warn("sessionsync: change events closed by collaborator")
				events = nil
				continue
			}
			if ev.Session == nil {
				// Supersede any resolution still in flight.
				issued++
				cur = Snapshot{State: StateAnonymous, Seq: issued}
				s.clearCache()
				s.metrics.Committed(obs.OutcomeAnonymous)
				s.logger.Debug("sessionsync: session cleared", "event", ev.Kind, "seq", issued)
				s.publish(cur)
				continue
			}
			issue()
			s.logger.Debug("sessionsync: resolving", "event", ev.Kind, "seq", issued)
			if cur.State != StateResolving {
				cur.State = StateResolving
				s.publish(cur)
			}

		case res := <-results:
			if res.seq != issued {
				s.metrics.Discarded()
				s.logger.Debug("sessionsync: stale resolution discarded", "seq", res.seq, "latest", issued)
				continue
			}
			cur = s.commit(res)
			s.publish(cur)
		}
	}
}

// commit turns the latest resolution into a snapshot. Any error collapses the
// identity to anonymous.
func (s *Synchronizer) commit(res resolution) Snapshot {
	if res.err != nil {
		s.metrics.Committed(obs.OutcomeError)
		if res.err.Kind == KindNotFound {
			s.clearCache()
			s.logger.Debug("sessionsync: no active session", "seq", res.seq)
		} else {
			s.logger.Warn("sessionsync: resolution failed", "kind", res.err.Kind, "error", res.err.Err, "seq", res.seq)
		}
		return Snapshot{State: StateAnonymous, Err: res.err, Seq: res.seq}
	}

	s.metrics.Committed(obs.OutcomeAuthenticated)
	if s.cache != nil {
		if err := s.cache.Store(*res.session, res.profile); err != nil {
			s.logger.Warn("sessionsync: failed to store provisional session", "error", err)
		}
	}
	s.logger.Info("sessionsync: session resolved", "session", res.session.ID, "profile", res.profile != nil, "seq", res.seq)
	return Snapshot{State: StateAuthenticated, Session: res.session, Profile: res.profile, Seq: res.seq}
}

// publish stores snap and notifies watchers unless the synchronizer has been
// closed, so nothing observable changes after teardown.
func (s *Synchronizer) publish(snap Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		s.metrics.Discarded()
		return
	}
	s.snap.Store(&snap)
	for _, ch := range s.watchers {
		select {
		case <-ch:
		default:
		}
		ch <- snap
	}
}

func (s *Synchronizer) resolve(ctx context.Context, seq uint64, out chan<- resolution) {
	defer s.wg.Done()

	res := s.fetch(ctx)
	res.seq = seq

	select {
	case out <- res:
	case <-ctx.Done():
		s.metrics.Discarded()
	}
}

func (s *Synchronizer) fetch(ctx context.Context) resolution {
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	session, err := boundary.Guard(s.logger, "current_user", func() (*Session, error) {
		return s.collab.CurrentUser(ctx)
	}, nil)
	if err != nil {
		return resolution{err: classify(err)}
	}
	if session == nil {
		return resolution{err: classify(ErrNoSession)}
	}
	sess := *session

	profile, err := boundary.Guard(s.logger, "profile_fetch", func() (*Profile, error) {
		return s.profiles.Profile(ctx, sess.ID)
	}, nil)
	if err != nil {
		return resolution{err: &Error{Kind: KindProfileFetchFailed, Err: err}}
	}
	if profile == nil {
		return resolution{session: &sess}
	}
	if profile.ID != sess.ID {
		return resolution{err: &Error{
			Kind: KindProfileFetchFailed,
			Err:  fmt.Errorf("profile %s does not belong to session %s", profile.ID, sess.ID),
		}}
	}
	prof := *profile
	return resolution{session: &sess, profile: &prof}
}

func (s *Synchronizer) loadProvisional() *Session {
	if s.cache == nil {
		return nil
	}
	sess, _ := boundary.Guard(s.logger, "cache_load", func() (*Session, error) {
		sess, _, ok := s.cache.Load()
		if !ok {
			return nil, nil
		}
		return sess, nil
	}, nil)
	return sess
}

func (s *Synchronizer) clearCache() {
	if s.cache == nil {
		return
	}
	if err := s.cache.Clear(); err != nil {
		s.logger.Warn("sessionsync: failed to clear provisional session", "error", err)
	}
}
