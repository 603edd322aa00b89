package app

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/raysh454/mailtrust/internal/channel"
	"github.com/raysh454/mailtrust/internal/logging"
	"github.com/raysh454/mailtrust/internal/mailview"
	"github.com/raysh454/mailtrust/internal/model"
	"github.com/raysh454/mailtrust/internal/server"
	"github.com/raysh454/mailtrust/internal/snapshot"
	"github.com/raysh454/mailtrust/internal/trigger"
)

const shutdownTimeout = 15 * time.Second

// Application is the global runtime state container: config, logger and the
// shared components. Commands call into it rather than wiring packages
// themselves.
type Application struct {
	Config     *Config
	Logger     logging.Logger
	Components *Components
}

// NewApplication builds the components described by cfg.
func NewApplication(cfg *Config, logger logging.Logger) (*Application, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if logger == nil {
		logger = logging.NopLogger{}
	}
	comps, err := NewComponents(cfg, logger)
	if err != nil {
		return nil, err
	}
	return &Application{Config: cfg, Logger: logger, Components: comps}, nil
}

// NewApplicationWith uses already-built components.
func NewApplicationWith(cfg *Config, comps *Components, logger logging.Logger) *Application {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if logger == nil {
		logger = logging.NopLogger{}
	}
	return &Application{Config: cfg, Logger: logger, Components: comps}
}

// Scan evaluates the message at path once and presents the verdict.
func (a *Application) Scan(ctx context.Context, path string, presenter Presenter) (*model.Verdict, error) {
	ch, err := a.Components.NewChannel(a.Config.Channel)
	if err != nil {
		return nil, fmt.Errorf("open channel: %w", err)
	}
	defer ch.Close()

	source, pipeline, err := a.newView(path, ch, presenter)
	if err != nil {
		return nil, err
	}
	sender, found := source.SenderIdentity()
	run := model.Run{ID: uuid.NewString(), SenderIdentity: sender, SenderFound: found}

	v := pipeline.Run(ctx, run)
	if v == nil {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		return nil, errors.New("scan abandoned: message changed while scanning")
	}
	return v, nil
}

// Watch scans each message when first seen and again whenever its file
// changes to show a different sender. presenterFor picks the presenter per
// path. It blocks until ctx is done.
func (a *Application) Watch(ctx context.Context, paths []string, presenterFor func(path string) Presenter) error {
	if len(paths) == 0 {
		return errors.New("no messages to watch")
	}
	ch, err := a.Components.NewChannel(a.Config.Channel)
	if err != nil {
		return fmt.Errorf("open channel: %w", err)
	}
	defer ch.Close()

	watcher, err := mailview.NewWatcher(a.Logger)
	if err != nil {
		return err
	}
	defer watcher.Stop()

	triggers := make([]*trigger.Trigger, 0, len(paths))
	defer func() {
		for _, t := range triggers {
			t.Stop()
		}
	}()

	for _, path := range paths {
		source, pipeline, err := a.newView(path, ch, presenterFor(path))
		if err != nil {
			return err
		}
		t := trigger.New(source, pipeline.Fire(ctx),
			trigger.WithDelay(a.Config.Trigger.Delay),
			trigger.WithLogger(a.Logger.With(logging.Field{Key: "path", Value: path})))
		triggers = append(triggers, t)
		if err := watcher.Add(path, t); err != nil {
			return err
		}
		// the message is on screen as soon as the watch starts
		t.Notify()
	}

	if err := watcher.Start(ctx); err != nil {
		return err
	}
	a.Logger.Info("watching messages", logging.Field{Key: "count", Value: len(paths)})
	<-ctx.Done()
	return nil
}

func (a *Application) newView(path string, ch channel.Channel, presenter Presenter) (*snapshot.EMLSource, *Pipeline, error) {
	source, err := snapshot.NewEMLSource(path, a.Components.Renderer, a.Logger)
	if err != nil {
		return nil, nil, err
	}
	pipeline, err := NewPipeline(a.Config.Pipeline, source, a.Components.Scanner, ch, presenter,
		a.Logger.With(logging.Field{Key: "path", Value: path}))
	if err != nil {
		return nil, nil, err
	}
	return source, pipeline, nil
}

// Serve runs the aggregating server until ctx is done, then shuts it down
// gracefully. ready, when non-nil, receives the bound address.
func (a *Application) Serve(ctx context.Context, ready func(addr string)) error {
	srv, err := server.NewServer(a.Config.Server, a.Components.Service, a.Logger)
	if err != nil {
		return err
	}
	httpSrv := srv.HTTPServer()

	ln, err := net.Listen("tcp", httpSrv.Addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", httpSrv.Addr, err)
	}
	a.Logger.Info("server listening", logging.Field{Key: "addr", Value: ln.Addr().String()})
	if ready != nil {
		ready(ln.Addr().String())
	}

	errCh := make(chan error, 1)
	go func() { errCh <- httpSrv.Serve(ln) }()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	a.Logger.Info("server shutdown initiated")
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

// Close releases the shared components.
func (a *Application) Close() error {
	if a == nil || a.Components == nil {
		return nil
	}
	return a.Components.Close()
}
