// Package httpserver runs an http.Handler with configured timeouts and
// graceful shutdown, and provides liveness and readiness probe handlers.
//
//	srv := httpserver.New(cfg, httpserver.WithLogger(log))
//	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
//	defer stop()
//	if err := srv.Run(ctx, router); err != nil {
//		log.Error("server stopped", logger.Error(err))
//	}
//
// Run blocks until ctx is cancelled or the listener fails. On cancellation
// in-flight requests get Config.ShutdownTimeout to finish.
//
// Readiness probes run named checks and answer 503 with the failing check
// names when any of them fails:
//
//	r.Get("/health/live", httpserver.LivenessHandler())
//	r.Get("/health/ready", httpserver.ReadinessHandler(log,
//		httpserver.Check{Name: "postgres", Fn: pool.Ping},
//	))
package httpserver
