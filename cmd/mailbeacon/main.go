// Command mailbeacon serves the email discovery API over HTTP.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	mailbeacon "github.com/bl4ckh4nd/MailBeacon"
	"github.com/bl4ckh4nd/MailBeacon/config"
	"github.com/bl4ckh4nd/MailBeacon/web"
)

const shutdownTimeout = 10 * time.Second

func main() {
	configPath := flag.String("config", "", "path to a TOML config file")
	listenAddr := flag.String("listen", "", "listen address, overrides server.listen_addr")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "mailbeacon: %v\n", err)
		os.Exit(1)
	}
	if *listenAddr != "" {
		cfg.ListenAddr = *listenAddr
	}

	logger := newLogger(cfg)
	for _, w := range cfg.Warnings {
		logger.Warn().Msg(w)
	}
	if cfg.ConfigFile != "" {
		logger.Info().Str("file", cfg.ConfigFile).Msg("configuration loaded")
	}

	if !cfg.Debug {
		gin.SetMode(gin.ReleaseMode)
	}

	beacon := mailbeacon.NewFromConfig(cfg, logger)
	router := web.NewRouter(web.Config{
		Processor: mailbeacon.NewProcessor(beacon),
		APIPrefix: cfg.APIPrefix,
		AppName:   cfg.AppName,
		Logger:    logger,
	})

	srv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		logger.Info().
			Str("addr", cfg.ListenAddr).
			Str("version", cfg.AppVersion).
			Msg("server listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		logger.Info().Msg("shutdown signal received")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error().Err(err).Msg("graceful shutdown failed")
		}
		<-errCh
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("server failed")
		}
	}
	logger.Info().Msg("server stopped")
}

func newLogger(cfg *config.Config) zerolog.Logger {
	level := zerolog.InfoLevel
	if cfg.Debug {
		level = zerolog.DebugLevel
	}
	var out io.Writer = os.Stderr
	if cfg.LogFormat == "console" {
		out = zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}
	}
	return zerolog.New(out).Level(level).With().Timestamp().Logger()
}
