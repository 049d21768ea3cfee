package cli

import (
	"github.com/roach88/wardsync/internal/config"
	"github.com/roach88/wardsync/internal/engine"
	"github.com/roach88/wardsync/internal/remote"
	"github.com/roach88/wardsync/internal/store"
)

// env is the wiring shared by every command that touches the Local Store.
type env struct {
	store  store.Store
	client *remote.Client
	engine *engine.Engine
}

// openEnv opens the durable store and builds the engine over it.
func (o *RootOptions) openEnv() (*env, error) {
	st, err := store.Open(o.Config.Database)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to open database", err)
	}
	return o.newEnv(st), nil
}

// newEnv builds the client and engine from the resolved configuration.
func (o *RootOptions) newEnv(st store.Store) *env {
	cfg := o.Config
	client := remote.NewClient(cfg.ServerURL,
		remote.WithTimeout(cfg.RequestTimeout),
		remote.WithHeaders(cfg.Headers),
		remote.WithLogger(o.Logger),
	)
	eng := engine.New(st, client, engineOptions(cfg, o)...)
	return &env{store: st, client: client, engine: eng}
}

func engineOptions(cfg config.Config, o *RootOptions) []engine.Option {
	return []engine.Option{
		engine.WithConcurrency(cfg.Concurrency),
		engine.WithLeaseTTL(cfg.LeaseTTL),
		engine.WithMaxAttempts(cfg.MaxAttempts),
		engine.WithLogger(o.Logger),
	}
}

// close releases the store, logging failures.
func (e *env) close(o *RootOptions) {
	if err := e.store.Close(); err != nil {
		o.Logger.Error("error closing database", "error", err)
	}
}

// requireServer fails when no server URL is configured.
func (o *RootOptions) requireServer() error {
	if o.Config.ServerURL == "" {
		return NewExitError(ExitCommandError,
			"no server URL configured: set server_url, WARDSYNC_SERVER_URL or --server-url")
	}
	return nil
}
