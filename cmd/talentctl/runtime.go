package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/redis/go-redis/v9"

	"github.com/iota-uz/iota-talent/modules"
	"github.com/iota-uz/iota-talent/modules/talent"
	"github.com/iota-uz/iota-talent/modules/talent/services"
	"github.com/iota-uz/iota-talent/pkg/application"
	"github.com/iota-uz/iota-talent/pkg/authz"
	"github.com/iota-uz/iota-talent/pkg/composables"
	"github.com/iota-uz/iota-talent/pkg/configuration"
	"github.com/iota-uz/iota-talent/pkg/observability"
	"github.com/iota-uz/iota-talent/pkg/outbox"
)

// runtime is one command's wired application. ctx carries the pool and the
// logger; close releases everything in reverse order.
type runtime struct {
	ctx context.Context
	app application.Application
}

func (r *runtime) close() {
	if err := r.app.Shutdown(context.Background()); err != nil {
		r.app.Logger().WithError(err).Warn("talentctl.shutdown_failed")
	}
}

func (r *runtime) tenures() *services.TenureService {
	return r.app.Service(services.TenureService{}).(*services.TenureService)
}

func (r *runtime) checkIns() *services.CheckInService {
	return r.app.Service(services.CheckInService{}).(*services.CheckInService)
}

func (r *runtime) snapshots() *services.SnapshotService {
	return r.app.Service(services.SnapshotService{}).(*services.SnapshotService)
}

func (r *runtime) engine() *services.ExecutionEngine {
	return r.app.Service(services.ExecutionEngine{}).(*services.ExecutionEngine)
}

func (r *runtime) relay() (*outbox.Relay, error) {
	if !configuration.Use().Outbox.Enabled {
		return nil, errors.New("the outbox is disabled (OUTBOX_ENABLED=false)")
	}
	return r.app.Service(outbox.Relay{}).(*outbox.Relay), nil
}

func (r *runtime) cleaner() (*outbox.Cleaner, error) {
	if !configuration.Use().Outbox.Enabled {
		return nil, errors.New("the outbox is disabled (OUTBOX_ENABLED=false)")
	}
	return r.app.Service(outbox.Cleaner{}).(*outbox.Cleaner), nil
}

func (g *globalFlags) actor() (authz.Actor, error) {
	if g.actorID <= 0 {
		return authz.Actor{}, errors.New("--actor is required")
	}
	if g.admin {
		return authz.NewActor(g.actorID, authz.AdminOverride), nil
	}
	return authz.NewActor(g.actorID), nil
}

func newRuntime(ctx context.Context) (*runtime, error) {
	conf := configuration.Use()
	logger := conf.Logger()

	shutdownTracing, err := observability.InitTracing(ctx, observability.ConfigFrom(conf), logger)
	if err != nil {
		return nil, err
	}

	pool, err := connectDB(ctx)
	if err != nil {
		_ = shutdownTracing(ctx)
		return nil, err
	}

	app := application.New(&application.ApplicationOptions{
		Pool:     pool,
		Logger:   logger,
		Location: conf.Location(),
	})
	app.RegisterShutdown(shutdownTracing)
	app.RegisterShutdown(func(context.Context) error { pool.Close(); return nil })

	opts := &talent.ModuleOptions{
		ReferenceTTL: conf.ReferenceCache.TTL,
		Outbox:       conf.Outbox.Enabled,
		RelayOptions: outbox.RelayOptions{
			PollInterval: conf.Outbox.PollInterval,
			BatchSize:    conf.Outbox.BatchSize,
			MaxAttempts:  conf.Outbox.MaxAttempts,
			SingleActive: conf.Outbox.SingleActive,
		},
		CleanerOptions: outbox.CleanerOptions{
			Retention:     conf.Outbox.Retention,
			DeadRetention: conf.Outbox.DeadRetention,
			MaxAttempts:   conf.Outbox.MaxAttempts,
		},
	}
	if conf.ReferenceCache.Enabled() {
		redisOpts, err := redis.ParseURL(conf.ReferenceCache.RedisURL)
		if err != nil {
			_ = app.Shutdown(ctx)
			return nil, fmt.Errorf("invalid REFERENCE_CACHE_REDIS_URL: %w", err)
		}
		client := redis.NewClient(redisOpts)
		app.RegisterShutdown(func(context.Context) error { return client.Close() })
		opts.Redis = client
	}

	predicate, err := loadAuthz(conf)
	if err != nil {
		_ = app.Shutdown(ctx)
		return nil, err
	}
	opts.Authorize = predicate

	if err := modules.Load(app, talent.NewModule(opts)); err != nil {
		_ = app.Shutdown(ctx)
		return nil, err
	}

	ctx = composables.WithPool(ctx, pool)
	ctx = composables.WithLogger(ctx, logger.WithField("command", "talentctl"))
	return &runtime{ctx: ctx, app: app}, nil
}

// loadAuthz builds the casbin-backed predicate. A missing policy file denies
// every gated field group.
func loadAuthz(conf *configuration.Configuration) (authz.Predicate, error) {
	path := conf.Authz.PolicyPath
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		conf.Logger().WithField("path", path).Warn("talentctl.authz_policy_missing")
		return authz.DenyAll, nil
	}
	policy, err := authz.LoadPolicyFile(path)
	if err != nil {
		return nil, err
	}
	svc, err := authz.NewService(authz.Config{Policy: policy, Logger: conf.Logger()})
	if err != nil {
		return nil, err
	}
	return svc.Predicate(), nil
}
