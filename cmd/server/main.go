// Package main is the entry point for the GiocaSconto game server.
package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"giocasconto/internal/catalog"
	"giocasconto/internal/config"
	"giocasconto/internal/game"
	"giocasconto/internal/game/demo"
	"giocasconto/internal/handler"
	"giocasconto/internal/pkg/db"
	"giocasconto/internal/repository"
	"giocasconto/internal/service"
)

const shutdownTimeout = 10 * time.Second

func main() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})

	cobra.CheckErr(newCmd().Execute())
}

func newCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:           "giocasconto-server",
		Short:         "Memory game kiosk server with discount code rewards",
		Args:          cobra.ExactArgs(0),
		SilenceErrors: true,
		SilenceUsage:  true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd.Context(), configPath)
		},
	}

	fs := cmd.Flags()
	fs.SetNormalizeFunc(func(_ *pflag.FlagSet, name string) pflag.NormalizedName {
		return pflag.NormalizedName(strings.ReplaceAll(name, "_", "-"))
	})
	fs.StringVarP(&configPath, "config", "c", "config", "directory containing config.yaml")

	return cmd
}

func run(parent context.Context, configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	log.Info().Str("driver", cfg.Storage.Driver).Msg("Configuration loaded")

	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var ledger repository.Ledger
	if cfg.Storage.Driver == "postgres" {
		pool, err := db.NewPool(ctx, &cfg.Storage.Database)
		if err != nil {
			return err
		}
		defer pool.Close()

		if err := repository.MigratePlayers(ctx, pool.Pool); err != nil {
			return err
		}
		ledger = repository.NewPostgresLedger(pool.Pool)
	} else {
		ledger, err = repository.NewFileLedger(cfg.Storage.LedgerPath)
		if err != nil {
			return err
		}
	}

	mirror, err := repository.NewCSVMirror(cfg.Storage.MirrorPath)
	if err != nil {
		return err
	}

	players := service.NewPlayerService(ledger, mirror, cfg.Reward.Cooldown())

	auth, err := service.NewAdminAuth(cfg.Admin.Passphrase, cfg.Admin.TokenTTL)
	if err != nil {
		return err
	}

	items := catalog.Appliances()

	demoCfg := demo.DefaultConfig()
	demoCfg.IdleDelay = cfg.Demo.IdleDelay
	demoCfg.StepInterval = cfg.Demo.StepInterval
	demoCfg.RestartPause = cfg.Demo.RestartPause
	demoCfg.FlipDelay = cfg.Game.FlipDelay
	driver := demo.NewDriver(demoCfg, items, nil)

	gameCfg := game.DefaultConfig()
	gameCfg.PairBonus = cfg.Game.PairBonus
	gameCfg.MismatchPenalty = cfg.Game.MismatchPenalty
	gameCfg.RewardThreshold = cfg.Reward.Threshold
	gameCfg.MaxDuration = cfg.Game.MaxDuration
	gameCfg.FlipDelay = cfg.Game.FlipDelay
	gameCfg.MismatchDelay = cfg.Game.MismatchDelay
	engine := game.NewEngine(gameCfg, items, nil, players, driver)

	router := handler.NewRouter(engine, players, auth, driver, mirror)

	srv := &http.Server{
		Addr:    net.JoinHostPort(cfg.Server.Bind, strconv.Itoa(cfg.Server.Port)),
		Handler: router,
		// No WriteTimeout: the event streams hold their connections open.
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       10 * time.Minute,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", srv.Addr).Msg("HTTP server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	// The demo runs from boot until the first player logs in.
	driver.Run()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Info().Msg("Shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Warn().Err(err).Msg("HTTP server shutdown failed")
	}

	driver.Stop()
	engine.Shutdown()

	log.Info().Msg("Shutdown complete")
	return nil
}
