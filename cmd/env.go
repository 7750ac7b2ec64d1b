package main

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/policy-tracker/internal/linkcheck"
	"github.com/sells-group/policy-tracker/internal/lock"
	"github.com/sells-group/policy-tracker/internal/metrics"
	"github.com/sells-group/policy-tracker/internal/search"
	"github.com/sells-group/policy-tracker/internal/store"
	"github.com/sells-group/policy-tracker/internal/tracker"
)

// initStore opens the configured store. Callers own Close.
func initStore(ctx context.Context) (store.Store, error) {
	switch cfg.Store.Driver {
	case "sqlite":
		dsn := cfg.Store.DatabaseURL
		if dsn == "" {
			dsn = "tracker.db"
		}
		return store.NewSQLite(dsn)
	case "postgres":
		return store.NewPostgres(ctx, cfg.Store.DatabaseURL, &store.PoolConfig{
			MaxConns: cfg.Store.MaxConns,
			MinConns: cfg.Store.MinConns,
		})
	default:
		return nil, eris.Errorf("unsupported store driver: %s", cfg.Store.Driver)
	}
}

// openStore opens and migrates the store.
func openStore(ctx context.Context) (store.Store, error) {
	st, err := initStore(ctx)
	if err != nil {
		return nil, err
	}
	if err := st.Migrate(ctx); err != nil {
		_ = st.Close()
		return nil, eris.Wrap(err, "migrate store")
	}
	return st, nil
}

// trackerEnv holds everything the agent-running commands need.
type trackerEnv struct {
	Store   store.Store
	Runner  *tracker.Runner
	Metrics *metrics.Metrics

	closeLock func() error
}

// Close releases the lease backend and the store.
func (e *trackerEnv) Close() {
	if e.closeLock != nil {
		if err := e.closeLock(); err != nil {
			zap.L().Warn("close lock backend", zap.Error(err))
		}
	}
	if e.Store != nil {
		_ = e.Store.Close()
	}
}

// initTracker validates config for mode and wires the store, search
// service, lease and agents. Callers should defer env.Close().
func initTracker(ctx context.Context, mode string) (*trackerEnv, error) {
	if err := cfg.Validate(mode); err != nil {
		return nil, err
	}

	st, err := openStore(ctx)
	if err != nil {
		return nil, err
	}

	m := metrics.New()
	svc, err := search.New(cfg, m)
	if err != nil {
		_ = st.Close()
		return nil, err
	}

	locker, closeLock, err := lock.New(cfg.Lock.Driver, cfg.Lock.RedisURL)
	if err != nil {
		_ = st.Close()
		return nil, err
	}

	deps := &tracker.Deps{
		Store:    st,
		Search:   svc,
		Locker:   locker,
		Metrics:  m,
		Config:   cfg.Agents,
		LeaseTTL: time.Duration(cfg.Lock.TTLMins) * time.Minute,
	}
	if cfg.Agents.CheckSourceLinks {
		deps.Links = linkcheck.New(linkcheck.Options{})
	}

	zap.L().Info("tracker initialized",
		zap.String("store", cfg.Store.Driver),
		zap.String("search", svc.Name()),
		zap.String("lock", cfg.Lock.Driver),
	)

	return &trackerEnv{
		Store:     st,
		Runner:    tracker.NewRunner(deps),
		Metrics:   m,
		closeLock: closeLock,
	}, nil
}
