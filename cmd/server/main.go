// Package main runs the pocket-dev API server: job orchestration, the token
// ledger, asset editing and edit history behind one HTTP surface.
package main

import (
	"context"
	"database/sql"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	_ "github.com/lib/pq"

	app "github.com/Raunak-cloud/pocket-dev/internal/app"
	"github.com/Raunak-cloud/pocket-dev/internal/app/httpapi"
	"github.com/Raunak-cloud/pocket-dev/internal/app/metrics"
	"github.com/Raunak-cloud/pocket-dev/internal/app/storage/postgres"
	"github.com/Raunak-cloud/pocket-dev/internal/config"
	"github.com/Raunak-cloud/pocket-dev/internal/platform/migrations"
	"github.com/Raunak-cloud/pocket-dev/pkg/logger"
)

func main() {
	envFile := flag.String("env-file", ".env", "path to an optional .env file")
	flag.Parse()

	if err := godotenv.Load(*envFile); err != nil && !os.IsNotExist(err) {
		// A present but unreadable env file is a configuration error.
		panic(err)
	}

	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	log := logger.New(logger.LoggingConfig{
		Level:      cfg.Logging.Level,
		Format:     cfg.Logging.Format,
		Output:     cfg.Logging.Output,
		FilePrefix: cfg.Logging.FilePrefix,
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var stores app.Stores
	if cfg.Database.URL != "" {
		db, err := sql.Open("postgres", cfg.Database.URL)
		if err != nil {
			log.WithError(err).Error("open database")
			os.Exit(1)
		}
		defer db.Close()
		if err := db.PingContext(ctx); err != nil {
			log.WithError(err).Error("ping database")
			os.Exit(1)
		}
		if err := migrations.Apply(ctx, db); err != nil {
			log.WithError(err).Error("apply migrations")
			os.Exit(1)
		}
		pg := postgres.New(db)
		stores = app.Stores{Projects: pg, Ledger: pg, Jobs: pg, History: pg}
		log.Info("using postgres storage")
	} else {
		log.Warn("DATABASE_URL not set; using in-memory storage")
	}

	application, err := app.New(ctx, stores, cfg, log)
	if err != nil {
		log.WithError(err).Error("build application")
		os.Exit(1)
	}
	if err := application.Start(ctx); err != nil {
		log.WithError(err).Error("start application")
		os.Exit(1)
	}

	api := httpapi.NewHandler(application)
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	mux.Handle("/", httpapi.RateLimit(cfg.Server.RateLimit, cfg.Server.RateBurst,
		metrics.Instrument("api", api)))

	server := &http.Server{
		Addr:         cfg.Server.Addr,
		Handler:      mux,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 120 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		log.Infof("listening on %s", cfg.Server.Addr)
		if err := server.ListenAndServe(); err != http.ErrServerClosed {
			log.WithError(err).Error("http server")
			cancel()
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	select {
	case sig := <-sigCh:
		log.Infof("received %s, shutting down", sig)
	case <-ctx.Done():
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Warn("http shutdown")
	}
	if err := application.Stop(shutdownCtx); err != nil {
		log.WithError(err).Warn("application shutdown")
	}
	log.Info("shutdown complete")
}
