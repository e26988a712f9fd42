package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/roach88/quill/internal/session"
	"github.com/roach88/quill/internal/store"
)

const shutdownTimeout = 5 * time.Second

// errEventsClosed ends the watch when the event stream closes on its own.
// Returning it cancels the rest of the errgroup.
var errEventsClosed = errors.New("event stream closed")

// WatchOptions holds flags for the watch command.
type WatchOptions struct {
	*RootOptions
	MetricsAddr string
}

// NewWatchCommand creates the watch command.
func NewWatchCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &WatchOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Follow changes to posts and the session",
		Long: `Print a line whenever the post collection or the session changes,
for example when another quill process publishes a post.

Requires the file backend. With --metrics-addr, Prometheus metrics are
served on /metrics while watching.

Examples:
  quill --backend file --store-path ./data watch
  quill --backend file --store-path ./data watch --metrics-addr :9090`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWatch(cmd, opts)
		},
	}

	cmd.Flags().StringVar(&opts.MetricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address")

	return cmd
}

func runWatch(cmd *cobra.Command, opts *WatchOptions) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := openApp(ctx, opts.RootOptions)
	if err != nil {
		return err
	}
	defer a.Close()

	fileStore, ok := a.backend.(*store.File)
	if !ok {
		return NewExitError(ExitCommandError, fmt.Sprintf("watch requires the file backend, not %s", a.cfg.Store.Backend))
	}

	events, err := fileStore.Watch(ctx)
	if err != nil {
		return WrapExitError(ExitCommandError, "watch", err)
	}

	a.logger.Info("watching for changes", zap.String("dir", fileStore.Dir()))

	return a.serveWatch(ctx, events, cmd.OutOrStdout(), opts.MetricsAddr)
}

// serveWatch follows events and, with a non-empty metricsAddr, serves
// metrics until ctx is done or the event stream closes.
func (a *app) serveWatch(ctx context.Context, events <-chan store.Event, w io.Writer, metricsAddr string) error {
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return a.followChanges(gctx, events, w)
	})

	if metricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(a.registry, promhttp.HandlerOpts{}))
		srv := &http.Server{Addr: metricsAddr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

		g.Go(func() error {
			a.logger.Info("serving metrics", zap.String("addr", metricsAddr))
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("metrics server: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		})
	}

	err := g.Wait()
	switch {
	case errors.Is(err, errEventsClosed):
		a.logger.Info("event stream closed, stopping watch")
		return nil
	case err != nil && !errors.Is(err, context.Canceled):
		return WrapExitError(ExitCommandError, "watch", err)
	}
	return nil
}

// followChanges prints one line per event until ctx is done, or returns
// errEventsClosed once events is closed. Post collection changes are
// summarized for the logged-in user.
func (a *app) followChanges(ctx context.Context, events <-chan store.Event, w io.Writer) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-events:
			if !ok {
				return errEventsClosed
			}
			if err := a.describeEvent(ctx, ev, w); err != nil {
				return err
			}
		}
	}
}

func (a *app) describeEvent(ctx context.Context, ev store.Event, w io.Writer) error {
	switch ev.Key {
	case a.cfg.Posts.Key:
		if ev.Op == store.EventDelete {
			_, err := fmt.Fprintln(w, "posts: collection removed")
			return err
		}
		u, err := a.sessions.Current(ctx)
		if errors.Is(err, session.ErrNotLoggedIn) {
			_, err := fmt.Fprintln(w, "posts: collection changed")
			return err
		}
		if err != nil {
			return err
		}
		list, err := a.posts.ListByAuthor(ctx, u.ID)
		if err != nil {
			return err
		}
		if len(list) == 0 {
			_, err = fmt.Fprintf(w, "posts: %s has no posts\n", u.Username)
			return err
		}
		_, err = fmt.Fprintf(w, "posts: %s has %d posts, newest %q\n", u.Username, len(list), list[0].Title)
		return err

	case session.Key:
		if ev.Op == store.EventDelete {
			_, err := fmt.Fprintln(w, "session: logged out")
			return err
		}
		u, err := a.sessions.Current(ctx)
		if err != nil {
			_, err := fmt.Fprintln(w, "session: changed")
			return err
		}
		_, err = fmt.Fprintf(w, "session: logged in as %s\n", u.Username)
		return err
	}

	a.logger.Debug("ignoring change", zap.String("key", ev.Key), zap.String("op", string(ev.Op)))
	return nil
}
