package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sort"
	"sync"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/srg/blemon/internal/config"
	"github.com/srg/blemon/internal/device"
	goble "github.com/srg/blemon/internal/device/go-ble"
	"github.com/srg/blemon/internal/registry"
)

// scanCmd represents the scan command
var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "Scan for BLE devices (diagnostic)",
	Long: `Scan for Bluetooth Low Energy advertisements and display the devices
observed: address, name from configuration (if any), RSSI, and sighting count.

Useful for discovering device addresses to put in the configuration file and
for verifying that configured devices are in range.`,
	RunE: runScan,
}

var (
	scanDuration  time.Duration
	scanKnownOnly bool
)

func init() {
	scanCmd.Flags().DurationVarP(&scanDuration, "duration", "d", 10*time.Second, "Scan duration (0 for indefinite)")
	scanCmd.Flags().BoolVar(&scanKnownOnly, "known-only", false, "Only show devices present in the config file")
	scanCmd.Flags().Bool("verbose", false, "Enable debug logging")
}

// sighting accumulates what was observed for one address during the scan
type sighting struct {
	address   string
	name      string
	rssi      int
	count     int
	lastSeen  time.Time
	telemetry bool
}

func runScan(cmd *cobra.Command, args []string) error {
	logger, err := configureLogger(cmd, "verbose", logrus.PanicLevel)
	if err != nil {
		return err
	}

	// The config file is optional for discovery scans; without it every
	// device shows up unnamed.
	var reg *registry.Registry
	configPath, _ := cmd.Flags().GetString("config")
	if cfg, cfgErr := config.Load(configPath); cfgErr == nil {
		if reg, err = cfg.Registry(); err != nil {
			return err
		}
	} else if scanKnownOnly {
		return fmt.Errorf("--known-only requires a readable config file: %w", cfgErr)
	}

	// All arguments validated - don't show usage on runtime errors
	cmd.SilenceUsage = true

	scanner, err := goble.NewScanner()
	if err != nil {
		return fmt.Errorf("failed to create BLE scanner: %w", err)
	}

	baseCtx := cmd.Context()
	if scanDuration > 0 {
		var cancel context.CancelFunc
		baseCtx, cancel = context.WithTimeout(baseCtx, scanDuration)
		defer cancel()
	}

	// Listen for Ctrl+C to cancel
	ctx, stop := signal.NotifyContext(baseCtx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	fmt.Printf("Scanning for %s...\n", scanDuration)

	var mu sync.Mutex
	sightings := make(map[string]*sighting)

	err = scanner.Scan(ctx, func(adv device.Advertisement) {
		name := ""
		if reg != nil {
			if dc, ok := reg.Resolve(adv.Address); ok {
				name = dc.Name
			} else if scanKnownOnly {
				return
			}
		}

		mu.Lock()
		defer mu.Unlock()
		s, ok := sightings[adv.Address]
		if !ok {
			s = &sighting{address: adv.Address, name: name}
			sightings[adv.Address] = s
			logger.WithFields(logrus.Fields{
				"address": adv.Address,
				"rssi":    adv.RSSI,
			}).Debug("Discovered device")
		}
		s.rssi = adv.RSSI
		s.count++
		s.lastSeen = adv.ObservedAt
		if len(adv.ManufacturerData) > 2 {
			s.telemetry = true
		}
	})
	if stopErr := scanner.Stop(); stopErr != nil {
		logger.WithError(stopErr).Debug("Adapter stop reported error")
	}
	if err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
		return err
	}

	return displaySightings(sightings)
}

func displaySightings(sightings map[string]*sighting) error {
	if len(sightings) == 0 {
		fmt.Println("No devices discovered")
		return nil
	}

	list := make([]*sighting, 0, len(sightings))
	for _, s := range sightings {
		list = append(list, s)
	}

	// Strongest signal first
	sort.Slice(list, func(i, j int) bool {
		return list[i].rssi > list[j].rssi
	})

	var base io.Writer = os.Stdout
	w := tabwriter.NewWriter(base, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ADDRESS\tNAME\tRSSI\tSIGHTINGS\tTELEMETRY\tLAST SEEN")

	for _, s := range list {
		name := s.name
		if name == "" {
			name = "-"
		}
		telemetry := "no"
		if s.telemetry {
			telemetry = "yes"
		}
		lastSeen := time.Since(s.lastSeen).Truncate(time.Second)

		fmt.Fprintf(w, "%s\t%s\t%d dBm\t%d\t%s\t%s ago\n",
			s.address, name, s.rssi, s.count, telemetry, lastSeen)
	}

	return w.Flush()
}
