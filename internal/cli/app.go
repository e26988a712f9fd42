package cli

import (
	"context"
	"errors"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"

	"github.com/roach88/quill/internal/config"
	"github.com/roach88/quill/internal/posts"
	"github.com/roach88/quill/internal/render"
	"github.com/roach88/quill/internal/session"
	"github.com/roach88/quill/internal/store"
)

// app is the set of services a command works with, built from the loaded
// configuration.
type app struct {
	cfg      *config.Config
	logger   *zap.Logger
	backend  store.Backend
	posts    *posts.Store
	sessions *session.Manager
	renderer *render.Renderer
	registry *prometheus.Registry
}

// openApp opens the configured backend and wires the services on top of it.
// Callers must Close the app.
func openApp(ctx context.Context, opts *RootOptions) (*app, error) {
	if opts.Config == nil || opts.Logger == nil {
		return nil, NewExitError(ExitCommandError, "configuration not loaded")
	}

	backend, err := store.Open(ctx, opts.Config.Store)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "open store", err)
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	postOpts := append(posts.FromConfig(opts.Config.Posts),
		posts.WithLogger(opts.Logger.Named("posts")),
		posts.WithMetrics(posts.NewMetrics(reg)),
	)

	opts.Logger.Debug("store opened",
		zap.String("backend", opts.Config.Store.Backend),
		zap.String("posts_key", opts.Config.Posts.Key))

	return &app{
		cfg:      opts.Config,
		logger:   opts.Logger,
		backend:  backend,
		posts:    posts.New(backend, postOpts...),
		sessions: session.New(backend, opts.Logger.Named("session")),
		renderer: render.New(),
		registry: reg,
	}, nil
}

// Close releases the backend.
func (a *app) Close() error {
	return a.backend.Close()
}

// currentUser returns the logged-in user or an ExitFailure telling the user
// to log in.
func (a *app) currentUser(ctx context.Context, f *OutputFormatter) (posts.User, error) {
	u, err := a.sessions.Current(ctx)
	if errors.Is(err, session.ErrNotLoggedIn) {
		return posts.User{}, f.Fail(ExitFailure, "run 'quill login' first", err)
	}
	if err != nil {
		return posts.User{}, f.Fail(ExitCommandError, "read session", err)
	}
	return u, nil
}
