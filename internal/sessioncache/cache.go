// Package sessioncache persists the last authoritative identity on disk so a
// client can show it provisionally while the real session check runs.
package sessioncache

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
	"time"

	"sigs.k8s.io/yaml"

	"github.com/barangayhub/portal/internal/sessionsync"
)

// ErrInvalidNamespace is returned when a namespace has no usable characters.
var ErrInvalidNamespace = errors.New("invalid cache namespace")

var unsafeChars = regexp.MustCompile(`[^a-z0-9_-]+`)

type entry struct {
	Namespace string               `json:"namespace"`
	SavedAt   time.Time            `json:"savedAt"`
	Session   sessionsync.Session  `json:"session"`
	Profile   *sessionsync.Profile `json:"profile,omitempty"`
}

// File is a sessionsync.Cache backed by one YAML file per namespace.
type File struct {
	mu        sync.Mutex
	path      string
	namespace string
	now       func() time.Time
	logger    *slog.Logger
}

// New returns a cache stored under dir for namespace. The directory is
// created on first Store.
func New(dir, namespace string) (*File, error) {
	ns := Sanitize(namespace)
	if ns == "" {
		return nil, fmt.Errorf("%w: %q", ErrInvalidNamespace, namespace)
	}
	return &File{
		path:      filepath.Join(dir, ns+".session.yaml"),
		namespace: ns,
		now:       time.Now,
		logger:    slog.Default(),
	}, nil
}

// Sanitize lowercases namespace and replaces characters that are unsafe in
// file names.
func Sanitize(namespace string) string {
	ns := unsafeChars.ReplaceAllString(strings.ToLower(strings.TrimSpace(namespace)), "-")
	return strings.Trim(ns, "-")
}

// Namespace derives the namespace for one account on one portal. The portal
// host keeps file names readable; the digest keeps accounts whose names
// sanitize alike apart. An empty principal names the portal's anonymous
// namespace.
func Namespace(portalURL, principal string) string {
	base := strings.ToLower(strings.TrimRight(strings.TrimSpace(portalURL), "/"))
	host := base
	if u, err := url.Parse(base); err == nil && u.Host != "" {
		host = u.Host
	}
	sum := sha256.Sum256([]byte(base + "\n" + strings.ToLower(strings.TrimSpace(principal))))
	return Sanitize(host + "-" + hex.EncodeToString(sum[:8]))
}

// Path returns the file backing the cache.
func (f *File) Path() string { return f.path }

// Load returns the cached identity. A missing, unreadable or foreign file is
// reported as absent.
func (f *File) Load() (*sessionsync.Session, *sessionsync.Profile, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()

	data, err := os.ReadFile(f.path)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			f.logger.Warn("sessioncache: read failed", "path", f.path, "error", err)
		}
		return nil, nil, false
	}

	var e entry
	if err := yaml.Unmarshal(data, &e); err != nil {
		f.logger.Warn("sessioncache: ignoring corrupt cache file", "path", f.path, "error", err)
		return nil, nil, false
	}
	if e.Namespace != f.namespace || e.Session.ID == "" {
		return nil, nil, false
	}
	if e.Profile != nil && e.Profile.ID != e.Session.ID {
		e.Profile = nil
	}
	return &e.Session, e.Profile, true
}

// Store replaces the cached identity.
func (f *File) Store(session sessionsync.Session, profile *sessionsync.Profile) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	e := entry{
		Namespace: f.namespace,
		SavedAt:   f.now().UTC(),
		Session:   session,
		Profile:   profile,
	}
	data, err := yaml.Marshal(e)
	if err != nil {
		return fmt.Errorf("encoding cache entry: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(f.path), 0o700); err != nil {
		return fmt.Errorf("creating cache directory: %w", err)
	}
	tmp := f.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("writing cache file: %w", err)
	}
	if err := os.Rename(tmp, f.path); err != nil {
		return fmt.Errorf("replacing cache file: %w", err)
	}
	return nil
}

// Clear removes the cached identity. Clearing an empty cache is not an error.
func (f *File) Clear() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := os.Remove(f.path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("removing cache file: %w", err)
	}
	return nil
}
