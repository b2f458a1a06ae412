package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/common-nighthawk/go-figure"
	"github.com/kelo-finance/kelo-auth/auth"
	"github.com/kelo-finance/kelo-auth/internal/config"
	"github.com/kelo-finance/kelo-auth/server"
	"github.com/kelo-finance/kelo-auth/server/staterepo"
	"github.com/kelo-finance/kelo-auth/wallet"
	"github.com/kelo-finance/kelo-auth/wallet/sqliterepo"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func main() {
	if err := run(); err != nil {
		log.Fatal().Err(err).Msg("server failed")
	}
	log.Info().Msg("server stopped")
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	logger := newLogger(cfg)
	displayAppName(cfg.AppName)

	for _, problem := range cfg.Problems() {
		logger.Warn().Str("problem", problem).Msg("configuration issue")
	}

	exchange, err := auth.NewService(cfg, auth.WithLogger(logger))
	if err != nil {
		return fmt.Errorf("identity exchange service: %w", err)
	}

	walletRepo, cleanup, err := newWalletRepo(cfg)
	if err != nil {
		return fmt.Errorf("wallet repo: %w", err)
	}
	defer cleanup()

	wallets, err := wallet.NewManager(walletRepo, wallet.WithLogger(logger))
	if err != nil {
		return fmt.Errorf("wallet manager: %w", err)
	}

	srv, err := server.New(cfg, exchange, wallets, staterepo.NewInMemoryRepo(), server.WithLogger(logger))
	if err != nil {
		return fmt.Errorf("http server: %w", err)
	}

	httpServer := &http.Server{Addr: cfg.Addr(), Handler: srv}

	errCh := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", httpServer.Addr).Msg("listening")
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case <-stop:
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("server.Shutdown: %w", err)
	}
	return nil
}

func newWalletRepo(cfg config.Config) (wallet.Repo, func(), error) {
	if cfg.WalletDBPath == "" {
		return wallet.NewInMemoryRepo(), func() {}, nil
	}
	repo, err := sqliterepo.New(cfg.WalletDBPath)
	if err != nil {
		return nil, nil, err
	}
	return repo, func() { _ = repo.Close() }, nil
}

func newLogger(cfg config.Config) zerolog.Logger {
	if cfg.Env == "DEV" {
		return zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger()
	}
	return zerolog.New(os.Stderr).With().Timestamp().Logger()
}

func displayAppName(appName string) {
	myFigure := figure.NewFigure(appName, "cybermedium", true)
	myFigure.Print()
	fmt.Println()
}
