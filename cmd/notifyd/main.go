// Command notifyd runs the smart notification engine behind an HTTP API.
//
// Configuration is read from the environment (and a .env file when present).
// Postgres is the default store; NOTIFY_STORAGE=memory runs without one.
// With REDIS_ENABLED=true the admission lock and in-app fan-out go through
// Redis so several replicas can share them.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"golang.org/x/sync/errgroup"

	"github.com/dmitrymomot/smartnotify/modules/notifyapi"
	"github.com/dmitrymomot/smartnotify/pkg/config"
	"github.com/dmitrymomot/smartnotify/pkg/email"
	"github.com/dmitrymomot/smartnotify/pkg/httpserver"
	"github.com/dmitrymomot/smartnotify/pkg/logger"
	"github.com/dmitrymomot/smartnotify/pkg/notifications"
	"github.com/dmitrymomot/smartnotify/pkg/pg"
	"github.com/dmitrymomot/smartnotify/pkg/redis"
	"github.com/dmitrymomot/smartnotify/pkg/requestid"
	"github.com/dmitrymomot/smartnotify/pkg/sms"
	"github.com/dmitrymomot/smartnotify/pkg/smartnotify"
)

type appConfig struct {
	Env          string `env:"APP_ENV" envDefault:"development"`
	ServiceName  string `env:"SERVICE_NAME" envDefault:"notifyd"`
	Storage      string `env:"NOTIFY_STORAGE" envDefault:"postgres"`
	RedisEnabled bool   `env:"REDIS_ENABLED" envDefault:"false"`
	HubBuffer    int    `env:"NOTIFY_INAPP_BUFFER" envDefault:"16"`
}

func (c appConfig) Validate() error {
	switch c.Storage {
	case "postgres", "memory":
		return nil
	}
	return fmt.Errorf("NOTIFY_STORAGE must be postgres or memory, got %q", c.Storage)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil {
		slog.Error("notifyd stopped with error", logger.Error(err))
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	var app appConfig
	if err := config.Load(&app); err != nil {
		return err
	}
	var engineCfg smartnotify.Config
	if err := config.Load(&engineCfg); err != nil {
		return err
	}
	var httpCfg httpserver.Config
	if err := config.Load(&httpCfg); err != nil {
		return err
	}

	log := logger.New(
		logger.WithEnvironment(app.Env, app.ServiceName),
		logger.WithContextExtractors(requestid.LoggerExtractor()),
	)
	logger.SetAsDefault(log)

	var checks []httpserver.Check

	storage, closeStorage, err := openStorage(ctx, app, log)
	if err != nil {
		return err
	}
	defer closeStorage()
	if storage.check != nil {
		checks = append(checks, *storage.check)
	}
	store := notifications.NewStore(storage.backend)

	var (
		publisher notifications.Publisher
		subscribe notifyapi.SubscribeFunc
		locker    smartnotify.Locker = smartnotify.NewMemoryLocker()
	)
	if app.RedisEnabled {
		var redisCfg redis.Config
		if err := config.Load(&redisCfg); err != nil {
			return err
		}
		client, err := redis.Connect(ctx, redisCfg)
		if err != nil {
			return err
		}
		defer client.Close()

		pub := notifications.NewRedisPublisher(client)
		publisher, subscribe = pub, pub.Subscribe
		locker = smartnotify.NewRedisLocker(client)
		checks = append(checks, httpserver.Check{Name: "redis", Fn: redis.Healthcheck(client)})
	} else {
		hub := notifications.NewHub(app.HubBuffer)
		defer hub.Close()
		publisher = hub
		subscribe = func(ctx context.Context, userID string) (<-chan notifications.Notification, error) {
			return hub.Subscribe(ctx, userID), nil
		}
	}

	transports, err := buildTransports(engineCfg, publisher, log)
	if err != nil {
		return err
	}
	dispatcher := notifications.NewDispatcher(store, transports, notifications.WithDispatcherLogger(log))

	scheduler := smartnotify.NewBatchScheduler(store, dispatcher,
		smartnotify.WithBatchingWindow(engineCfg.BatchingWindow),
		smartnotify.WithSchedulerLogger(log),
	)
	state, err := smartnotify.NewState(store, engineCfg, smartnotify.WithStateLogger(log))
	if err != nil {
		return err
	}
	engine, err := smartnotify.New(engineCfg, state, store, dispatcher, scheduler,
		smartnotify.WithLogger(log),
		smartnotify.WithLocker(locker),
	)
	if err != nil {
		return err
	}

	if err := state.Load(ctx); err != nil {
		log.LogAttrs(ctx, slog.LevelWarn, "starting in degraded mode", logger.Error(err))
	}
	if n, err := scheduler.Restore(ctx); err != nil {
		log.LogAttrs(ctx, slog.LevelError, "failed to restore notifications", logger.Error(err))
	} else {
		log.LogAttrs(ctx, slog.LevelInfo, "notifications restored", logger.Count(n))
	}

	api := notifyapi.New(engine, store, state,
		notifyapi.WithLogger(log),
		notifyapi.WithSubscriber(subscribe),
		notifyapi.WithPendingCounter(scheduler),
	)

	r := chi.NewRouter()
	r.Use(requestid.Middleware, middleware.Recoverer)
	r.Get("/health/live", httpserver.LivenessHandler())
	r.Get("/health/ready", httpserver.ReadinessHandler(log, checks...))
	r.Mount("/", api.Handle())

	server := httpserver.New(httpCfg, httpserver.WithLogger(log))

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return scheduler.Run(ctx) })
	g.Go(func() error { return refreshLoop(ctx, state, engineCfg.RefreshInterval) })
	g.Go(func() error { return server.Run(ctx, r) })

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	log.LogAttrs(context.Background(), slog.LevelInfo, "notifyd stopped")
	return nil
}

type storageBackend struct {
	backend notifications.Storage
	check   *httpserver.Check
}

func openStorage(ctx context.Context, app appConfig, log *slog.Logger) (storageBackend, func(), error) {
	if app.Storage == "memory" {
		log.LogAttrs(ctx, slog.LevelWarn, "using in-memory storage, notifications are lost on restart")
		return storageBackend{backend: notifications.NewMemoryStorage()}, func() {}, nil
	}

	var pgCfg pg.Config
	if err := config.Load(&pgCfg); err != nil {
		return storageBackend{}, nil, err
	}
	pool, err := pg.Connect(ctx, pgCfg)
	if err != nil {
		return storageBackend{}, nil, err
	}
	if err := pg.Migrate(ctx, pool, notifications.Migrations, notifications.MigrationsDir, pgCfg, log); err != nil {
		pool.Close()
		return storageBackend{}, nil, err
	}
	return storageBackend{
		backend: notifications.NewPostgresStorage(pool),
		check:   &httpserver.Check{Name: "postgres", Fn: pg.Healthcheck(pool)},
	}, pool.Close, nil
}

func buildTransports(cfg smartnotify.Config, publisher notifications.Publisher, log *slog.Logger) ([]notifications.Transport, error) {
	transports := []notifications.Transport{notifications.NewInAppTransport(publisher)}

	var emailCfg email.Config
	if err := config.Load(&emailCfg); err != nil {
		return nil, err
	}
	var sender email.Sender = email.NewLogSender(log)
	if emailCfg.Enabled() {
		pm, err := email.NewPostmarkSender(emailCfg)
		if err != nil {
			return nil, err
		}
		sender = pm
	}
	transports = append(transports, notifications.NewEmailTransport(sender))

	if !cfg.SMSEnabled {
		return transports, nil
	}
	var smsCfg sms.Config
	if err := config.Load(&smsCfg); err != nil {
		return nil, err
	}
	if smsCfg.GatewayURL == "" {
		// Critical notifications still select sms; the dispatcher records the missing transport.
		log.Warn("sms is enabled but SMS_GATEWAY_URL is empty")
		return transports, nil
	}
	gateway, err := sms.NewGatewayClient(smsCfg)
	if err != nil {
		return nil, err
	}
	return append(transports, notifications.NewSMSTransport(gateway)), nil
}

// refreshLoop rebuilds engine state every interval. Failures keep the
// previous snapshot and are logged by State.
func refreshLoop(ctx context.Context, state *smartnotify.State, interval time.Duration) error {
	if interval <= 0 {
		<-ctx.Done()
		return nil
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			_ = state.Refresh(ctx)
		}
	}
}
