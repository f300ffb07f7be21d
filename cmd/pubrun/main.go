// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package main is the entry point for the pubrun CLI. pubrun runs text-mining
// algorithms over stored article partitions as batches of worker jobs and
// re-invokes itself as the worker.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/pdiddy/pubrun/internal/tracer"
)

// version is set at build time via ldflags.
var version = "dev"

// shutdownTracing flushes spans on exit.
var shutdownTracing = func(context.Context) error { return nil }

// rootCmd is the base command for the pubrun CLI.
var rootCmd = &cobra.Command{
	Use:   "pubrun",
	Short: "Run text-mining algorithms over article collections",
	Long: `pubrun runs annotation and map/reduce algorithms over collections of
stored full-text articles. Every input partition becomes one worker job;
jobs are submitted to a batch runner and their outputs collected into
annotation tables or a single reduced table.

The worker subcommand runs one job and is what submitted jobs execute.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		setupLogging(cmd)
		shutdown, err := tracer.Init(cmd.Context(), viper.GetString("otlp_endpoint"))
		if err != nil {
			return fmt.Errorf("starting tracing: %w", err)
		}
		shutdownTracing = shutdown
		return nil
	},
	PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
		return shutdownTracing(context.Background())
	},
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().String("config", "", "config file (default: ./pubrun.yaml or ~/.config/pubrun/pubrun.yaml)")
	rootCmd.PersistentFlags().Bool("debug", false, "show debug messages")
	rootCmd.PersistentFlags().Bool("quiet", false, "show only warnings and errors")
}

func initConfig() {
	cfgFile, _ := rootCmd.PersistentFlags().GetString("config")
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName("pubrun")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(".")

		home, err := os.UserHomeDir()
		if err == nil {
			viper.AddConfigPath(filepath.Join(home, ".config", "pubrun"))
		}
	}

	setConfigDefaults()
	viper.SetEnvPrefix("PUBRUN")
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err == nil {
		fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
	}
}

func setupLogging(cmd *cobra.Command) {
	level := slog.LevelInfo
	if debug, _ := cmd.Flags().GetBool("debug"); debug {
		level = slog.LevelDebug
	} else if quiet, _ := cmd.Flags().GetBool("quiet"); quiet {
		level = slog.LevelWarn
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
}

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	cancel()
	if err != nil {
		os.Exit(1)
	}
}
