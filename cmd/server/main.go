package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/harrylevesque/steamguard/internal/api"
	"github.com/harrylevesque/steamguard/internal/app"
	"github.com/harrylevesque/steamguard/internal/config"
	"github.com/harrylevesque/steamguard/internal/utils"
)

func main() {
	cfgPath := flag.String("config", "steamguard.yaml", "config file path")
	envPath := flag.String("env-file", ".env", "optional .env file")
	flag.Parse()

	if err := config.LoadEnvFile(*envPath); err != nil {
		logrus.WithError(err).Fatal("load env file")
	}
	cfg, err := config.Load(*cfgPath)
	if err != nil {
		logrus.WithError(err).Fatal("load config")
	}
	logger, closer := utils.NewLogger(cfg.LoggerOptions())
	defer closer.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.Build(ctx, cfg, logger)
	if err != nil {
		logger.WithError(err).Fatal("build app")
	}
	defer a.Close()

	srv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           api.NewRouter(a, logger),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.WithError(err).Warn("shutdown")
		}
	}()

	logger.WithField("addr", cfg.ListenAddr).Info("server running")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.WithError(err).Fatal("listen")
	}
}
