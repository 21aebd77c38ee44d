// Command library-server runs the library management HTTP API.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	app "github.com/shelfwise/library-service/internal/app"
	"github.com/shelfwise/library-service/internal/app/httpapi"
	"github.com/shelfwise/library-service/internal/app/metrics"
	"github.com/shelfwise/library-service/internal/app/storage/postgres"
	"github.com/shelfwise/library-service/internal/config"
	"github.com/shelfwise/library-service/internal/middleware"
	"github.com/shelfwise/library-service/internal/platform/database"
	"github.com/shelfwise/library-service/internal/platform/migrations"
	"github.com/shelfwise/library-service/pkg/logger"
)

var publicPaths = []string{"/", "/healthz", "/metrics", "/register", "/token"}

func main() {
	cfg, err := config.Load()
	if err != nil {
		logger.NewDefault("library-server").WithError(err).Fatal("failed to load configuration")
	}

	log := logger.New(cfg.Logging).WithField("component", "library-server")

	stores := app.Stores{}
	if cfg.Database.DSN != "" {
		db, err := database.Open(cfg.Database)
		if err != nil {
			log.WithError(err).Fatal("failed to open database")
		}
		defer db.Close()

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		if err := migrations.Apply(ctx, db); err != nil {
			cancel()
			log.WithError(err).Fatal("failed to apply migrations")
		}
		cancel()

		store := postgres.New(db)
		stores = app.Stores{Store: store, UnitOfWork: store}
		log.Info("using postgres store")
	} else {
		log.Warn("DATABASE_URL not set, falling back to in-memory store")
	}

	application := app.New(stores, app.Options{
		AuthSecret: []byte(cfg.Auth.Secret),
		TokenTTL:   time.Duration(cfg.Auth.TokenTTLMinutes) * time.Minute,
	}, log)

	var handler http.Handler = httpapi.NewHandler(application)

	// The limiter sits inside the auth middleware so authenticated requests
	// are keyed by the email auth put on the context.
	if cfg.RateLimit.Enabled {
		rl := middleware.NewRateLimiter(cfg.RateLimit.RequestsPerSecond, cfg.RateLimit.Burst, log)
		rl.StartCleanup(10 * time.Minute)
		handler = rl.Handler(handler)
	}

	authMW := middleware.NewAuthMiddleware(application.Auth, log, publicPaths)
	handler = authMW.Handler(handler)

	cors := middleware.NewCORSMiddleware(splitOrigins(cfg.CORS.AllowedOrigins))
	handler = cors.Handler(handler)
	handler = metrics.InstrumentHandler(handler)

	srv := &http.Server{
		Addr:         cfg.Server.Addr(),
		Handler:      handler,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeoutSec) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeoutSec) * time.Second,
		IdleTimeout:  time.Duration(cfg.Server.IdleTimeoutSec) * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.WithField("addr", srv.Addr).Info("server listening")
		errCh <- srv.ListenAndServe()
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-stop:
		log.WithField("signal", sig.String()).Info("shutting down")
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			log.WithError(err).Fatal("server failed")
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.WithError(err).Warn("graceful shutdown failed")
	}
}

func splitOrigins(raw string) []string {
	var origins []string
	for _, o := range strings.Split(raw, ",") {
		if o = strings.TrimSpace(o); o != "" {
			origins = append(origins, o)
		}
	}
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	return origins
}
