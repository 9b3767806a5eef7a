package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/jaminalder/tictactoe-history/internal/app"
	"github.com/jaminalder/tictactoe-history/internal/config"
	"github.com/jaminalder/tictactoe-history/internal/domain"
	"github.com/jaminalder/tictactoe-history/internal/web"
)

func main() {
	configPath := flag.String("config", "", "path to config.yml (environment only when empty)")
	flag.Parse()

	conf := config.MustLoad(*configPath)
	logger := initLogger(conf)

	if err := run(logger, conf); err != nil {
		logger.Error("server stopped", "error", err)
		os.Exit(1)
	}
}

func initLogger(conf *config.Config) *slog.Logger {
	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: conf.SlogLevel()}))
}

func run(logger *slog.Logger, conf *config.Config) error {
	log := logger.With("component", "main")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var engineOpts []domain.Option
	if conf.Game.TurnFromSnapshot {
		engineOpts = append(engineOpts, domain.WithTurnFromSnapshot())
	}
	svc := app.NewService(app.WithLogger(logger), app.WithEngineOptions(engineOpts...))

	srv := &http.Server{
		Addr:              conf.HTTP.Addr,
		Handler:           web.NewServer(svc, web.WithLogger(logger), web.WithHeartbeat(conf.HTTP.HeartbeatInterval)),
		ReadHeaderTimeout: conf.HTTP.ReadTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("starting HTTP server", "addr", conf.HTTP.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("HTTP server error: %w", err)
		}
		return nil
	case <-ctx.Done():
		log.Info("shutting down")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), conf.HTTP.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}
