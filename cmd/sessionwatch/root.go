package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/barangayhub/portal/internal/authclient"
	"github.com/barangayhub/portal/internal/config"
	"github.com/barangayhub/portal/internal/obs"
	"github.com/barangayhub/portal/internal/sessioncache"
	"github.com/barangayhub/portal/internal/sessionsync"
)

type rootOptions struct {
	url         string
	email       string
	password    string
	noCache     bool
	metricsAddr string
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	cmd := &cobra.Command{
		Use:   "sessionwatch",
		Short: "Mirror a barangay portal session and its role flags",
		Long: `sessionwatch keeps a local, consistent view of a portal session.

Configuration is read from PORTAL_* environment variables:
  PORTAL_URL               portal base URL (default http://localhost:8080)
  PORTAL_LOG_LEVEL         debug, info, warn or error
  PORTAL_CACHE_DIR         directory for the provisional session cache
  PORTAL_CACHE_NAMESPACE   cache namespace (default derived from PORTAL_URL and --email)
  PORTAL_RESOLVE_TIMEOUT   bound on each session resolution (default 10s)
`,
		SilenceUsage: true,
	}

	cmd.PersistentFlags().StringVar(&opts.url, "url", "", "portal base URL (overrides PORTAL_URL)")
	cmd.PersistentFlags().StringVar(&opts.email, "email", "", "sign in with this email before watching")
	cmd.PersistentFlags().StringVar(&opts.password, "password", "", "password for --email (defaults to PORTAL_PASSWORD)")
	cmd.PersistentFlags().BoolVar(&opts.noCache, "no-cache", false, "ignore PORTAL_CACHE_DIR")
	cmd.PersistentFlags().StringVar(&opts.metricsAddr, "metrics-addr", "", "serve synchronizer metrics on this address (e.g. :9102)")

	cmd.AddCommand(newWatchCmd(opts), newWhoamiCmd(opts))
	return cmd
}

// session bundles the client and synchronizer for one command run.
type session struct {
	client  *authclient.Client
	sync    *sessionsync.Synchronizer
	logger  *slog.Logger
	metrics *http.Server
}

func (s *session) Close() {
	s.sync.Close()
	s.client.Close()
	if s.metrics != nil {
		_ = s.metrics.Close()
	}
}

// open builds a client and synchronizer from configuration, signs in when
// credentials are given and starts the synchronizer.
func (o *rootOptions) open(ctx context.Context) (*session, error) {
	cfg, err := config.LoadClient()
	if err != nil {
		return nil, fmt.Errorf("loading configuration: %w", err)
	}
	if o.url != "" {
		cfg.URL = o.url
	}

	logger := newLogger(cfg.LogLevel)
	client := authclient.New(cfg.URL, authclient.WithLogger(logger))

	syncOpts := []sessionsync.Option{
		sessionsync.WithLogger(logger),
		sessionsync.WithResolveTimeout(cfg.ResolveTimeout),
	}
	if cfg.CacheDir != "" && !o.noCache {
		namespace := cfg.CacheNamespace
		if namespace == "" {
			namespace = sessioncache.Namespace(cfg.URL, o.email)
		}
		cache, err := sessioncache.New(cfg.CacheDir, namespace)
		if err != nil {
			client.Close()
			return nil, fmt.Errorf("opening session cache: %w", err)
		}
		syncOpts = append(syncOpts, sessionsync.WithCache(cache))
	}

	if o.email != "" {
		password := o.password
		if password == "" {
			password = os.Getenv("PORTAL_PASSWORD")
		}
		if password == "" {
			client.Close()
			return nil, errors.New("--email requires --password or PORTAL_PASSWORD")
		}
		signInCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
		err := client.SignIn(signInCtx, o.email, password)
		cancel()
		if err != nil {
			client.Close()
			return nil, err
		}
	}

	s := &session{client: client, logger: logger}
	if o.metricsAddr != "" {
		reg := prometheus.NewRegistry()
		m, err := obs.NewSyncMetrics(reg)
		if err != nil {
			client.Close()
			return nil, fmt.Errorf("registering metrics: %w", err)
		}
		syncOpts = append(syncOpts, sessionsync.WithMetrics(m))
		s.metrics = serveMetrics(logger, o.metricsAddr, reg)
	}

	s.sync = sessionsync.New(client, client, syncOpts...)
	if err := s.sync.Start(ctx); err != nil {
		s.Close()
		return nil, fmt.Errorf("starting synchronizer: %w", err)
	}
	return s, nil
}

func serveMetrics(logger *slog.Logger, addr string, g prometheus.Gatherer) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", obs.Handler(g))
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server failed", "addr", addr, "error", err)
		}
	}()
	return srv
}

func newLogger(level string) *slog.Logger {
	var logLevel slog.Level
	switch level {
	case "debug":
		logLevel = slog.LevelDebug
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}
	return slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel}))
}
