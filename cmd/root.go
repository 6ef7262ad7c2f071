package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/bitgreen/bridge-relayers/config"
	"github.com/bitgreen/bridge-relayers/internal/relayer"
	"github.com/bitgreen/bridge-relayers/pkg/tracing"
)

var (
	environment string
	rootCmd     = &cobra.Command{
		Use:   "relayer",
		Short: "Bitgreen bridge relayer",
	}
)

// Execute executes the root command.
func Execute() error {
	return rootCmd.Execute()
}

func modeCommand(mode relayer.Mode, short string) *cobra.Command {
	return &cobra.Command{
		Use:   string(mode),
		Short: short,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), mode)
		},
	}
}

func run(parent context.Context, mode relayer.Mode) error {
	cfg, err := config.Load(environment)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	config.InitLogger(cfg.LogLevel, cfg.Environment)

	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := tracing.Setup(ctx, cfg.Tracing)
	if err != nil {
		return fmt.Errorf("failed to setup tracing: %w", err)
	}
	defer func() {
		if err := shutdownTracing(context.Background()); err != nil {
			log.Warn().Err(err).Msg("[Relayer] [run] failed to flush traces")
		}
	}()

	service, err := relayer.NewService(ctx, cfg, mode)
	if err != nil {
		return fmt.Errorf("failed to create %s service: %w", mode, err)
	}
	if err := service.Start(ctx); err != nil {
		service.Stop()
		return fmt.Errorf("failed to start %s service: %w", mode, err)
	}

	select {
	case <-ctx.Done():
		log.Info().Msgf("Shutting down %s...", mode)
		service.Stop()
		return nil
	case err := <-service.Err():
		service.Stop()
		return err
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(
		&environment,
		"env",
		"local",
		"Environment name, selects the .env.<env> file",
	)
	viper.BindPFlag("env", rootCmd.PersistentFlags().Lookup("env"))
	rootCmd.AddCommand(
		modeCommand(relayer.ModeKeeper, "Relay bridge transfers between the pallet and the router"),
		modeCommand(relayer.ModeWatchdog, "Check settled transfers and trigger lockdown on mismatch"),
		modeCommand(relayer.ModeWatchcat, "Push stuck watchdog lockdowns with a higher priority fee"),
	)
	rootCmd.SilenceUsage = true
}

// Main runs the command line and exits with a non zero code on failure
func Main() {
	if err := Execute(); err != nil {
		log.Error().Err(err).Msg("relayer exited with error")
		os.Exit(1)
	}
}
