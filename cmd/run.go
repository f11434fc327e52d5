package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"firestige.xyz/uoaprobe/internal/capture"
	"firestige.xyz/uoaprobe/internal/config"
	"firestige.xyz/uoaprobe/internal/log"
	"firestige.xyz/uoaprobe/internal/metrics"
	"firestige.xyz/uoaprobe/internal/report"
	"firestige.xyz/uoaprobe/internal/scenario"
	"firestige.xyz/uoaprobe/internal/transport"
)

var errScenariosFailed = errors.New("one or more scenarios failed")

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the UOA verification scenarios",
	Long: `Run every scenario whose endpoints are configured. Scenarios with missing
endpoints are reported as skipped.

Sending raw datagrams and capturing replies needs CAP_NET_RAW (usually root).

Examples:
  uoaprobe run --serv-ipv4 192.168.1.10:6000 --serv-ipv6 [2001:db8::10]:6000
  uoaprobe run --lb-ipv4 10.0.0.1:6000 --self-ipv4 10.0.1.5 -k 'lb-ipv4/*'
  uoaprobe run -c uoaprobe.yml --report run.yaml`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runProbe(cmd)
	},
}

func init() {
	addTargetFlags(runCmd.Flags())
	addProbeFlags(runCmd.Flags())
}

func runProbe(cmd *cobra.Command) error {
	cfg, err := loadConfig(cmd.Flags(), merge(targetFlags, probeFlags))
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	stopMetrics, err := startMetrics(ctx, cfg)
	if err != nil {
		return err
	}
	defer stopMetrics()

	scenarios, err := scenario.Catalog(cfg.Targets, scenario.CatalogOptions{PrimingRounds: cfg.Probe.PrimingRounds})
	if err != nil {
		return err
	}
	if scenarios, err = scenario.Filter(scenarios, cfg.Probe.Filter); err != nil {
		return err
	}
	if len(scenarios) == 0 {
		return fmt.Errorf("no scenario matches %q", cfg.Probe.Filter)
	}

	captures, err := capture.NewFactory(cfg.Capture)
	if err != nil {
		return err
	}
	tr := transport.New(cfg.Probe.Transport(), transport.WithCaptureFactory(captures))

	log.GetLogger().WithFields(map[string]interface{}{
		"scenarios": len(scenarios),
		"parallel":  cfg.Probe.Parallel,
		"capture":   cfg.Capture.Type,
	}).Info("starting run")

	startedAt := time.Now()
	results := scenario.NewRunner(tr, cfg.Probe.Parallel).RunAll(ctx, scenarios)

	rep := report.New(startedAt, results)
	if err := rep.WriteText(cmd.OutOrStdout()); err != nil {
		return err
	}
	if cfg.Probe.Report != "" {
		if err := rep.WriteFile(cfg.Probe.Report); err != nil {
			return fmt.Errorf("failed to write report: %w", err)
		}
	}
	if !rep.OK() {
		return errScenariosFailed
	}
	return nil
}

// startMetrics starts the metrics server when enabled and returns its stop func.
func startMetrics(ctx context.Context, cfg *config.GlobalConfig) (func(), error) {
	if !cfg.Metrics.Enabled {
		return func() {}, nil
	}
	srv := metrics.NewServer(cfg.Metrics.Listen, cfg.Metrics.Path)
	if err := srv.Start(ctx); err != nil {
		return nil, err
	}
	return func() {
		if err := srv.Stop(context.Background()); err != nil {
			log.GetLogger().WithError(err).Warn("failed to stop metrics server")
		}
	}, nil
}
