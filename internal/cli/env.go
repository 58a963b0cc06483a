package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sort"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/roach88/strata/internal/client"
	"github.com/roach88/strata/internal/compiler"
	"github.com/roach88/strata/internal/config"
	"github.com/roach88/strata/internal/graph"
	"github.com/roach88/strata/internal/logging"
	"github.com/roach88/strata/internal/meta"
	"github.com/roach88/strata/internal/metrics"
	"github.com/roach88/strata/internal/session"
	"github.com/roach88/strata/internal/store"
)

// Env is everything a data command needs: configuration, logger, catalog
// and a session over the configured backends.
type Env struct {
	Config   *config.Config
	Logger   *zap.Logger
	Catalog  *meta.StaticCatalog
	Session  *session.Session
	Registry *prometheus.Registry

	closers []func(context.Context) error
}

// EnvError is a failure while assembling an Env. Code is one of the
// ErrCode constants.
type EnvError struct {
	Code    string
	Message string
	Err     error
}

func (e *EnvError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *EnvError) Unwrap() error { return e.Err }

// LoadEnvConfig reads the config named by opts, or the nearest strata.yaml
// above the working directory. Without either the defaults apply.
func LoadEnvConfig(opts *RootOptions) (*config.Config, error) {
	if opts.Config != "" {
		cfg, err := config.LoadConfigFile(opts.Config)
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				return nil, &EnvError{Code: ErrCodeNotFound, Message: "config file not found: " + opts.Config}
			}
			return nil, &EnvError{Code: ErrCodeConfig, Message: "invalid config", Err: err}
		}
		return cfg, nil
	}

	wd, err := os.Getwd()
	if err != nil {
		return nil, &EnvError{Code: ErrCodeConfig, Message: "working directory", Err: err}
	}
	cfg, err := config.LoadConfig(wd)
	if errors.Is(err, config.ErrConfigNotFound) {
		return config.Default(), nil
	}
	if err != nil {
		return nil, &EnvError{Code: ErrCodeConfig, Message: "invalid config", Err: err}
	}
	return cfg, nil
}

// NewLogger builds the command logger. --verbose forces debug level.
func NewLogger(opts *RootOptions, cfg *config.Config) (*zap.Logger, error) {
	level := cfg.Log.Level
	if opts.Verbose {
		level = "debug"
	}
	return logging.New(logging.Config{Level: level})
}

// LoadCatalog compiles the catalog directory.
func LoadCatalog(dir string) (*compiler.LoadResult, error) {
	if _, err := os.Stat(dir); err != nil {
		return nil, &EnvError{Code: ErrCodeNotFound, Message: "catalog directory not found: " + dir}
	}
	loaded, err := compiler.LoadDir(dir)
	if err != nil {
		return nil, &EnvError{Code: ErrCodeCatalog, Message: "failed to load catalog", Err: err}
	}
	return loaded, nil
}

// OpenEnv loads configuration and catalog, then opens one client per
// persistence unit and a session over them. Callers must Close the Env.
func OpenEnv(ctx context.Context, opts *RootOptions) (*Env, error) {
	cfg, err := LoadEnvConfig(opts)
	if err != nil {
		return nil, err
	}
	logger, err := NewLogger(opts, cfg)
	if err != nil {
		return nil, &EnvError{Code: ErrCodeConfig, Message: "logger", Err: err}
	}
	loaded, err := LoadCatalog(cfg.Catalog)
	if err != nil {
		return nil, err
	}

	env := &Env{
		Config:   cfg,
		Logger:   logger,
		Catalog:  loaded.Catalog,
		Registry: prometheus.NewRegistry(),
	}
	clients, err := env.openClients(ctx)
	if err != nil {
		env.Close(ctx)
		return nil, err
	}

	env.Session = session.New(env.Catalog, clients,
		session.WithLogger(logger),
		session.WithMetrics(metrics.New(env.Registry)))
	logger.Debug("environment ready",
		zap.String("catalog", cfg.Catalog),
		zap.Int("entities", len(loaded.Entities)),
		zap.Int("units", len(clients)))
	return env, nil
}

func (e *Env) openClients(ctx context.Context) (map[string]client.Client, error) {
	units := make(map[string]bool)
	for _, m := range e.Catalog.Entities("") {
		units[m.PersistenceUnit] = true
	}
	names := make([]string, 0, len(units))
	for u := range units {
		names = append(names, u)
	}
	sort.Strings(names)

	clients := make(map[string]client.Client, len(names))
	for _, unit := range names {
		backend, ok := e.Config.Units[unit]
		if !ok {
			return nil, &EnvError{Code: ErrCodeConfig, Message: fmt.Sprintf("unit %q has no backend configured", unit)}
		}
		c, err := e.openClient(ctx, unit, backend)
		if err != nil {
			return nil, &EnvError{Code: ErrCodeBackend, Message: fmt.Sprintf("unit %s (%s)", unit, backend), Err: err}
		}
		clients[unit] = c
		e.Logger.Debug("opened backend", zap.String("unit", unit), zap.String("backend", backend))
	}
	return clients, nil
}

func (e *Env) openClient(ctx context.Context, unit, backend string) (client.Client, error) {
	switch backend {
	case config.BackendSQLite:
		opts := []store.Option{store.WithUnit(unit), store.WithLogger(e.Logger)}
		if e.Config.Store.UseSearchIndex {
			opts = append(opts, store.WithSearch())
		}
		st, err := store.Open(e.Config.Store.Path, e.Catalog, opts...)
		if err != nil {
			return nil, err
		}
		e.closers = append(e.closers, func(context.Context) error { return st.Close() })
		return st, nil

	case config.BackendNeo4j:
		g := e.Config.Graph
		st, err := graph.OpenNeo4j(ctx, graph.Neo4jConfig{
			URI:       g.URI,
			Username:  g.Username,
			Password:  g.Password,
			Database:  g.Database,
			AutoIndex: g.AutoIndex,
		}, e.Logger)
		if err != nil {
			return nil, err
		}
		e.closers = append(e.closers, st.Close)
		return graph.NewClient(st, e.Catalog, e.Logger), nil

	case config.BackendMemory:
		return graph.NewClient(graph.NewMemStore(graph.WithAutoIndexing(e.Config.Graph.AutoIndex)), e.Catalog, e.Logger), nil

	default:
		return nil, fmt.Errorf("unknown backend %q", backend)
	}
}

// Close releases every backend and flushes the logger.
func (e *Env) Close(ctx context.Context) {
	for i := len(e.closers) - 1; i >= 0; i-- {
		if err := e.closers[i](ctx); err != nil {
			e.Logger.Warn("close backend", zap.Error(err))
		}
	}
	e.closers = nil
	_ = e.Logger.Sync()
}

// envFailure maps an OpenEnv error to an ExitError after reporting it.
func envFailure(f *OutputFormatter, err error) error {
	var envErr *EnvError
	if errors.As(err, &envErr) {
		msg := envErr.Message
		if envErr.Err != nil {
			msg = fmt.Sprintf("%s: %v", msg, envErr.Err)
		}
		_ = f.Error(envErr.Code, msg, nil)
		return WrapExitError(ExitCommandError, envErr.Code, err)
	}
	return f.Fail(ExitCommandError, ErrCodeGeneric, err)
}

func newFormatter(opts *RootOptions, cmd *cobra.Command) *OutputFormatter {
	return &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}
}
