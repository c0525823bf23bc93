package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/srg/blemon/bridge"
	"github.com/srg/blemon/internal/backoff"
	"github.com/srg/blemon/internal/config"
	"github.com/srg/blemon/internal/device"
	goble "github.com/srg/blemon/internal/device/go-ble"
	"github.com/srg/blemon/internal/mqtt"
	"github.com/srg/blemon/internal/tracker"
)

// runCmd represents the run command
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the BLE-to-MQTT bridge",
	Long: `Run the bridge daemon: scan continuously for the configured BLE devices,
track their presence, and publish presence changes and telemetry to the
configured MQTT broker until interrupted.

Transient failures (adapter resets, broker disconnects) are retried with
capped exponential backoff and never stop the process. Fatal conditions
(permission denied, no adapter, rejected credentials, invalid configuration)
terminate with a non-zero exit status.`,
	RunE: runBridge,
}

func init() {
	runCmd.Flags().Bool("verbose", false, "Enable debug logging")
}

func runBridge(cmd *cobra.Command, args []string) error {
	configPath, _ := cmd.Flags().GetString("config")

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	// Config sets the base level; --log-level and --verbose override it
	defaultLevel, err := logrus.ParseLevel(cfg.LogLevel)
	if err != nil {
		defaultLevel = logrus.InfoLevel
	}
	logger, err := configureLogger(cmd, "verbose", defaultLevel)
	if err != nil {
		return err
	}

	// All arguments validated - don't show usage on runtime errors
	cmd.SilenceUsage = true

	reg, err := cfg.Registry()
	if err != nil {
		return err
	}
	if reg.Len() == 0 {
		logger.Warn("No devices configured, bridge will only report its own status")
	}

	policy := backoff.Policy{
		Initial: cfg.Scan.BackoffInitial,
		Max:     cfg.Scan.BackoffMax,
	}

	// SIGINT/SIGTERM cancel the context; connect retries and the bridge's
	// drain both stop on it.
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	publisher := mqtt.NewPublisher(cfg.MQTT, policy, logger)
	if err := connectBroker(ctx, publisher.Connect, policy, logger); err != nil {
		return err
	}

	b, err := bridge.New(bridge.Options{
		Registry:      reg,
		NewScanner:    func() (device.Scanner, error) { return goble.NewScanner() },
		Publisher:     publisher,
		Tracker:       tracker.Options{DeviceTimeout: cfg.Scan.DeviceTimeout},
		BufferSize:    cfg.Scan.BufferSize,
		SweepInterval: cfg.Scan.SweepInterval,
		DrainTimeout:  cfg.Scan.DrainTimeout,
		Backoff:       policy,
		Logger:        logger,
	})
	if err != nil {
		return err
	}

	return b.Run(ctx)
}

// connectBroker establishes the initial broker session. An unreachable broker
// is a transient condition and is retried with capped exponential backoff;
// only rejected credentials end the attempts.
func connectBroker(ctx context.Context, connect func() error, policy backoff.Policy, logger *logrus.Logger) error {
	bo := policy.New()

	for {
		err := connect()
		if err == nil {
			return nil
		}
		if mqtt.IsFatal(err) {
			return fmt.Errorf("failed to connect to MQTT broker: %w", err)
		}

		logger.WithError(err).WithField("attempt", bo.Attempt()).
			Warn("MQTT broker unreachable, retrying")
		if werr := bo.Wait(ctx); werr != nil {
			return werr
		}
	}
}
