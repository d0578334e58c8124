// Command routemesh is a developer harness for the turn engine: an
// interactive chat loop plus single-shot commands over checkpointed threads.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/hupe1980/routemesh"
	"github.com/hupe1980/routemesh/config"
	"github.com/hupe1980/routemesh/metrics"
)

var (
	cfgFile   string
	threadID  string
	showStats bool
)

var rootCmd = &cobra.Command{
	Use:   "routemesh",
	Short: "Route conversation turns to specialised workflows",
	Long: `routemesh classifies every message of a conversation and hands it to one
of its workflows: stockbroker, trip planner, open-code, pizza orderer or a
general assistant. Thread state is checkpointed after every turn.

Configuration is read from ~/.config/routemesh/config.yaml (or the file given
with --config) and ROUTEMESH_ prefixed environment variables.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (overrides $ROUTEMESH_CONFIG)")
	rootCmd.PersistentFlags().StringVarP(&threadID, "thread", "t", "default", "conversation thread id")
	rootCmd.PersistentFlags().BoolVar(&showStats, "stats", false, "print turn metrics on exit")
}

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

// app bundles what every command needs.
type app struct {
	svc      *routemesh.Service
	cfg      config.Config
	registry *prometheus.Registry
}

func loadApp(ctx context.Context) (*app, error) {
	if cfgFile != "" {
		if err := os.Setenv(config.ConfigEnv, cfgFile); err != nil {
			return nil, err
		}
	}

	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}

	reg := prometheus.NewRegistry()

	met, err := metrics.New(reg)
	if err != nil {
		return nil, err
	}

	svc, err := routemesh.FromConfig(ctx, cfg, nil, func(o *routemesh.Options) { o.Metrics = met })
	if err != nil {
		return nil, err
	}

	if cfg.Engine.AutoAccept {
		if err := svc.SetAutoAccept(ctx, threadID, true); err != nil {
			_ = svc.Close()
			return nil, err
		}
	}

	return &app{svc: svc, cfg: cfg, registry: reg}, nil
}

func (a *app) close(cmd *cobra.Command) error {
	if showStats {
		printStats(cmd.OutOrStdout(), a.registry)
	}

	return a.svc.Close()
}
