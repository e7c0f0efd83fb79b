package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/dmitrymomot/metastates/pkg/config"
	"github.com/dmitrymomot/metastates/pkg/logger"
	"github.com/dmitrymomot/metastates/pkg/metrics"
	"github.com/dmitrymomot/metastates/pkg/notify"
	"github.com/dmitrymomot/metastates/pkg/pg"
	"github.com/dmitrymomot/metastates/pkg/pgstore"
	"github.com/dmitrymomot/metastates/pkg/redis"
	"github.com/dmitrymomot/metastates/pkg/redisstore"
	"github.com/dmitrymomot/metastates/pkg/sqlitestore"
	"github.com/dmitrymomot/metastates/pkg/states"
)

var errUnknownStorage = errors.New("unknown storage backend")

// openService builds the registry from the definitions file, opens the
// configured store and wires logging, metrics and the optional NATS
// notifier. The returned cleanup releases everything that was opened.
func (c *cli) openService(ctx context.Context) (*states.Service, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	defs, err := config.LoadDefinitions(c.cfg.Definitions)
	if err != nil {
		return nil, cleanup, err
	}
	reg, err := defs.NewRegistry()
	if err != nil {
		return nil, cleanup, err
	}

	b, err := c.openStore(ctx)
	if err != nil {
		return nil, cleanup, err
	}
	closers = append(closers, b.close)

	promReg := prometheus.NewRegistry()
	closers = append(closers, func() { c.writeMetrics(ctx, promReg) })

	if c.cfg.NATSURL != "" {
		nc, err := notify.Connect(ctx, c.cfg.NATSURL)
		if err != nil {
			cleanup()
			return nil, func() {}, err
		}
		closers = append(closers, func() {
			if err := nc.Drain(); err != nil {
				c.log.WarnContext(ctx, "nats drain failed", logger.Error(err))
			}
		})

		n := notify.New(nc,
			notify.WithSubjectPrefix(c.cfg.SubjectPrefix),
			notify.WithLogger(c.log.With(logger.Component("notify"))),
		)
		for _, kind := range reg.OwnerKinds() {
			for _, st := range reg.StateTypes(kind) {
				reg.MustOn(st, n.Action(), states.WithID("notify_"+st))
			}
		}
	}

	svc, err := states.NewService(reg, b.store,
		states.WithLogger(c.log),
		states.WithRecorder(metrics.NewPrometheusRecorder(promReg)),
	)
	if err != nil {
		cleanup()
		return nil, func() {}, err
	}
	return svc, cleanup, nil
}

// backend is an opened store with its liveness check and cleanup.
type backend struct {
	store states.Store
	ping  func(context.Context) error
	close func()
}

func noPing(context.Context) error { return nil }

func (c *cli) openStore(ctx context.Context) (*backend, error) {
	switch c.cfg.Storage {
	case config.StorageMemory:
		return &backend{store: states.NewMemoryStore(), ping: noPing, close: func() {}}, nil

	case config.StorageSQLite:
		s, err := sqlitestore.Open(c.cfg.SQLitePath)
		if err != nil {
			return nil, err
		}
		return &backend{store: s, ping: s.Ping, close: func() {
			if err := s.Close(); err != nil {
				c.log.WarnContext(ctx, "sqlite close failed", logger.Error(err))
			}
		}}, nil

	case config.StoragePostgres:
		var cfg pg.Config
		if err := config.Load(&cfg); err != nil {
			return nil, err
		}
		pool, err := pg.Connect(ctx, cfg)
		if err != nil {
			return nil, err
		}
		if err := pg.Migrate(ctx, pool, cfg, c.log); err != nil {
			pool.Close()
			return nil, err
		}
		return &backend{store: pgstore.New(pool), ping: pg.Healthcheck(pool), close: pool.Close}, nil

	case config.StorageRedis:
		var cfg redis.Config
		if err := config.Load(&cfg); err != nil {
			return nil, err
		}
		client, err := redis.Connect(ctx, cfg)
		if err != nil {
			return nil, err
		}
		return &backend{
			store: redisstore.New(client, redisstore.WithPrefix(cfg.KeyPrefix)),
			ping:  redis.Healthcheck(client),
			close: func() {
				if err := client.Close(); err != nil {
					c.log.WarnContext(ctx, "redis close failed", logger.Error(err))
				}
			},
		}, nil
	}
	return nil, fmt.Errorf("%w: %q", errUnknownStorage, c.cfg.Storage)
}

func (c *cli) writeMetrics(ctx context.Context, g prometheus.Gatherer) {
	if c.metricsFile == "" {
		return
	}
	if err := prometheus.WriteToTextfile(c.metricsFile, g); err != nil {
		c.log.WarnContext(ctx, "metrics not written", logger.Error(err))
	}
}
