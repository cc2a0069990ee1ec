// Package bootstrap builds the service graph shared by the API, the worker
// and creditctl from one infra.Config.
package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"time"

	firebase "firebase.google.com/go/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog"

	"blogpilot/internal/apikeys"
	"blogpilot/internal/domain"
	"blogpilot/internal/infra"
	"blogpilot/internal/infra/credentials"
	"blogpilot/internal/ledger"
	"blogpilot/internal/posts"
	"blogpilot/internal/store"
	"blogpilot/internal/threads"
	"blogpilot/internal/wordpress"
)

const providerTimeout = 20 * time.Second

// Runtime is the wired service graph.
type Runtime struct {
	Config    *infra.Config
	Logger    zerolog.Logger
	Firebase  *firebase.App
	Store     domain.Store
	Registry  *prometheus.Registry
	Cipher    *credentials.Cipher
	Ledger    *ledger.Service
	Posts     *posts.Service
	WordPress *wordpress.Service
	Threads   *threads.Service
	APIKeys   *apikeys.Service

	closers []func() error
}

// New opens the store and builds every domain service.
func New(ctx context.Context, cfg *infra.Config, logger zerolog.Logger) (*Runtime, error) {
	rt := &Runtime{Config: cfg, Logger: logger, Registry: prometheus.NewRegistry()}
	rt.Registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	if cfg.StoreBackend == infra.BackendFirestore || cfg.AuthMode == infra.AuthFirebase {
		app, err := infra.NewFirebaseApp(ctx, cfg)
		if err != nil {
			return nil, err
		}
		rt.Firebase = app
	}

	st, err := store.Open(ctx, cfg, rt.Firebase, logger)
	if err != nil {
		return nil, fmt.Errorf("open %s store: %w", cfg.StoreBackend, err)
	}
	rt.Store = st
	rt.OnClose(st.Close)

	cipher, err := credentials.NewCipher(cfg.EncryptionKey)
	if err != nil {
		_ = rt.Close()
		return nil, err
	}
	rt.Cipher = cipher

	rt.Ledger = ledger.NewService(ledger.Deps{
		Ledger:  st,
		Users:   st,
		Config:  ledger.NewConfigProvider(st, cfg.ConfigCacheTTL, logger),
		Metrics: ledger.NewMetrics(rt.Registry),
		Logger:  logger.With().Str("component", "ledger").Logger(),
	})
	rt.Posts = posts.NewService(st, logger.With().Str("component", "posts").Logger())
	rt.WordPress = wordpress.NewService(st, rt.Posts,
		wordpress.NewClient(providerTimeout, logger),
		cipher, logger.With().Str("component", "wordpress").Logger())
	rt.Threads = threads.NewService(st, rt.Posts, rt.Ledger,
		threads.NewClient(cfg.ThreadsBaseURL, providerTimeout, logger),
		cipher, logger.With().Str("component", "threads").Logger())
	rt.APIKeys = apikeys.NewService(st, logger.With().Str("component", "apikeys").Logger())
	return rt, nil
}

// OnClose registers fn to run, in reverse order, on Close.
func (r *Runtime) OnClose(fn func() error) {
	r.closers = append(r.closers, fn)
}

func (r *Runtime) Close() error {
	var errs []error
	for i := len(r.closers) - 1; i >= 0; i-- {
		errs = append(errs, r.closers[i]())
	}
	r.closers = nil
	return errors.Join(errs...)
}
