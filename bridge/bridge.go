// Package bridge glues the BLE scan stream, the device tracker, and the MQTT
// publisher into one supervised event pipeline.
//
// Three long-lived task loops run independently and communicate only through
// bounded channels: the scan loop feeds raw advertisements in, the tracker
// loop turns them into bridge events, the publish loop delivers those events
// to the broker. A fault on either side never terminates the other; only
// fatal classifications (permission denied, missing adapter, rejected
// credentials) stop the bridge.
package bridge

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/srg/blemon/internal/backoff"
	"github.com/srg/blemon/internal/device"
	"github.com/srg/blemon/internal/events"
	"github.com/srg/blemon/internal/groutine"
	"github.com/srg/blemon/internal/mqtt"
	"github.com/srg/blemon/internal/registry"
	"github.com/srg/blemon/internal/tracker"
)

const (
	// DefaultBufferSize is the default capacity of the bridge event buffer.
	DefaultBufferSize = 64

	// DefaultSweepInterval is the default period of the stale-device sweep.
	DefaultSweepInterval = 1 * time.Second

	// DefaultDrainTimeout bounds how long shutdown waits for pending events
	// to reach the broker.
	DefaultDrainTimeout = 5 * time.Second

	// reconnectPollInterval is how often the publish loop re-checks the
	// session while the broker is unreachable. Events keep accumulating in
	// the bounded buffer during that time.
	reconnectPollInterval = 100 * time.Millisecond

	// publishPollInterval is how often the publish loop checks the buffer
	// when it is empty. Polling instead of blocking lets a dropped session
	// be noticed before the next event is taken out of the buffer.
	publishPollInterval = 20 * time.Millisecond
)

// Publisher is the event sink the bridge delivers to. *mqtt.Publisher
// implements it; tests substitute a fake.
type Publisher interface {
	PublishEvent(ev events.Event) error
	Published() uint64
	IsConnected() bool
	ScanRequests() <-chan mqtt.ScanRequest
	Close() error
}

// ScannerFactory acquires a fresh adapter handle. The scan loop calls it
// again after every adapter fault, so each call must return an independently
// usable scanner.
type ScannerFactory func() (device.Scanner, error)

// Options contains all the configuration for running a bridge
type Options struct {
	Registry      *registry.Registry // configured devices (required)
	NewScanner    ScannerFactory     // adapter acquisition (required)
	Publisher     Publisher          // event sink (required)
	Tracker       tracker.Options    // tracker timeouts
	BufferSize    int                // event buffer capacity (0 = default)
	SweepInterval time.Duration      // stale sweep period (0 = default)
	DrainTimeout  time.Duration      // shutdown drain bound (0 = default)
	Backoff       backoff.Policy     // adapter reinit backoff (zero = default)
	Logger        *logrus.Logger     // logger instance
}

// Stats is a snapshot of the bridge's delivery counters.
type Stats struct {
	Buffer       events.Stats
	Published    uint64
	PublishDrops int64
}

// Bridge coordinates the scan, tracker, and publish task loops.
type Bridge struct {
	opts   Options
	logger *logrus.Logger

	trk  *tracker.Tracker
	advs *events.Ring[device.Advertisement]
	ring *events.Ring[events.Event]

	fatal        chan error
	draining     atomic.Bool
	publishDrops atomic.Int64
}

// New validates options and builds a bridge ready to Run.
func New(opts Options) (*Bridge, error) {
	if opts.Registry == nil {
		return nil, errNoRegistry
	}
	if opts.NewScanner == nil {
		return nil, errNoScanner
	}
	if opts.Publisher == nil {
		return nil, errNoPublisher
	}

	if opts.BufferSize <= 0 {
		opts.BufferSize = DefaultBufferSize
	}
	if opts.SweepInterval <= 0 {
		opts.SweepInterval = DefaultSweepInterval
	}
	if opts.DrainTimeout <= 0 {
		opts.DrainTimeout = DefaultDrainTimeout
	}

	logger := opts.Logger
	if logger == nil {
		logger = logrus.New()
	}

	return &Bridge{
		opts:   opts,
		logger: logger,
		trk:    tracker.New(opts.Registry, opts.Tracker, logger),
		advs:   events.NewRing[device.Advertisement](opts.BufferSize),
		ring:   events.NewRing[events.Event](opts.BufferSize),
		fatal:  make(chan error, 1),
	}, nil
}

// Run drives the bridge until ctx is cancelled or a fatal error occurs.
// On return all adapter and broker resources are released. The returned
// error is nil for a clean shutdown and the fatal cause otherwise.
func (b *Bridge) Run(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	b.logger.WithFields(logrus.Fields{
		"devices":     b.opts.Registry.Len(),
		"buffer_size": b.opts.BufferSize,
	}).Info("Bridge starting")

	var producers sync.WaitGroup
	producers.Add(2)
	groutine.Go(runCtx, "scan-loop", func(ctx context.Context) {
		defer producers.Done()
		b.scanLoop(ctx, b.taskLogger(ctx))
	})
	groutine.Go(runCtx, "tracker-loop", func(ctx context.Context) {
		defer producers.Done()
		b.trackerLoop(ctx, b.taskLogger(ctx))
	})

	pubDone := make(chan struct{})
	groutine.Go(runCtx, "publish-loop", func(ctx context.Context) {
		defer close(pubDone)
		b.publishLoop(b.taskLogger(ctx))
	})

	var fatalErr error
	select {
	case <-runCtx.Done():
	case fatalErr = <-b.fatal:
		b.logger.WithError(fatalErr).Error("Fatal bridge failure, shutting down")
		cancel()
	}

	// Scan and sweep stop first; once they have, no producer can touch the
	// event buffer and it is safe to close for draining.
	producers.Wait()
	b.draining.Store(true)
	b.ring.Close()

	select {
	case <-pubDone:
	case <-time.After(b.opts.DrainTimeout):
		b.logger.WithField("pending", b.ring.Len()).
			Warn("Drain timeout reached, abandoning pending events")
	}

	if err := b.opts.Publisher.Close(); err != nil {
		b.logger.WithError(err).Warn("Publisher close failed")
	}

	stats := b.Stats()
	b.logger.WithFields(logrus.Fields{
		"published":     stats.Published,
		"delivered":     stats.Buffer.Delivered,
		"dropped":       stats.Buffer.Dropped,
		"publish_drops": stats.PublishDrops,
	}).Info("Bridge stopped")

	return fatalErr
}

// Stats returns a snapshot of the bridge's delivery counters.
func (b *Bridge) Stats() Stats {
	return Stats{
		Buffer:       b.ring.Stats(),
		Published:    b.opts.Publisher.Published(),
		PublishDrops: b.publishDrops.Load(),
	}
}

// Tracker exposes the device state table for diagnostics.
func (b *Bridge) Tracker() *tracker.Tracker {
	return b.trk
}

// taskLogger tags log entries with the task loop's goroutine name.
func (b *Bridge) taskLogger(ctx context.Context) *logrus.Entry {
	return b.logger.WithField("task", groutine.GetName(ctx))
}

// scanLoop owns the adapter: it acquires a scanner, consumes its stream, and
// re-initializes with capped exponential backoff whenever the stream ends.
// Adapter resources are released on every exit path.
func (b *Bridge) scanLoop(ctx context.Context, log *logrus.Entry) {
	bo := b.opts.Backoff.New()

	for ctx.Err() == nil {
		scanner, err := b.opts.NewScanner()
		if err != nil {
			if device.IsFatal(err) {
				b.fail(err)
				return
			}
			log.WithError(err).WithField("attempt", bo.Attempt()).
				Warn("Adapter unavailable, backing off")
			if bo.Wait(ctx) != nil {
				return
			}
			continue
		}

		var sawAdvertisement atomic.Bool
		err = scanner.Scan(ctx, func(adv device.Advertisement) {
			sawAdvertisement.Store(true)
			b.advs.Send(adv)
		})

		if stopErr := scanner.Stop(); stopErr != nil {
			log.WithError(stopErr).Debug("Adapter stop reported error")
		}

		if ctx.Err() != nil {
			return
		}
		if err != nil && device.IsFatal(err) {
			b.fail(err)
			return
		}

		// A stream that produced sightings counts as a successful session;
		// the next fault starts the backoff ladder from the bottom.
		if sawAdvertisement.Load() {
			bo.Reset()
		}

		log.WithError(err).WithField("attempt", bo.Attempt()).
			Warn("Scan stream ended, re-initializing adapter")
		if bo.Wait(ctx) != nil {
			return
		}
	}
}

// trackerLoop is the single owner of the device state table. It serializes
// advertisement application and stale sweeps, which is what makes the
// advertisement-vs-sweep tie-break deterministic and event order per-device
// FIFO.
func (b *Bridge) trackerLoop(ctx context.Context, log *logrus.Entry) {
	ticker := time.NewTicker(b.opts.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return

		case adv, ok := <-b.advs.C():
			if !ok {
				return
			}
			b.emit(log, b.trk.Apply(adv))

		case <-ticker.C:
			b.emit(log, b.trk.Sweep(time.Now()))

		case req := <-b.opts.Publisher.ScanRequests():
			b.handleScanRequest(log, req)
		}
	}
}

func (b *Bridge) handleScanRequest(log *logrus.Entry, req mqtt.ScanRequest) {
	switch req {
	case mqtt.ScanDepart:
		// A departure check is an immediate sweep; devices past their
		// timeout go stale now instead of at the next tick.
		log.Info("Departure scan requested")
		b.emit(log, b.trk.Sweep(time.Now()))
	default:
		// Arrival scanning is continuous; nothing to trigger.
		log.Debug("Arrival scan requested, continuous scan already active")
	}
}

// emit pushes tracker output into the bounded event buffer, counting drops.
func (b *Bridge) emit(log *logrus.Entry, evs []events.Event) {
	for _, ev := range evs {
		if b.ring.Send(ev) {
			log.WithFields(logrus.Fields{
				"dropped_total": b.ring.Stats().Dropped,
				"capacity":      b.ring.Cap(),
			}).Warn("Event buffer overflow, oldest event dropped")
		}
	}
}

// publishLoop delivers buffered events to the publisher. While the session is
// down it leaves events in the bounded buffer, where overflow drops the
// oldest; it never blocks the tracker and never pulls an event it cannot
// deliver. The loop polls rather than blocks so a dropped session is noticed
// before the next event is taken out of the buffer. It exits once draining
// has started and the buffer is empty.
func (b *Bridge) publishLoop(log *logrus.Entry) {
	for {
		if !b.opts.Publisher.IsConnected() {
			if b.draining.Load() {
				// Shutdown with no session: the remaining events have
				// nowhere to go.
				for {
					if _, ok := b.ring.TryReceive(); !ok {
						return
					}
					b.publishDrops.Add(1)
				}
			}
			time.Sleep(reconnectPollInterval)
			continue
		}

		ev, ok := b.ring.TryReceive()
		if !ok {
			if b.draining.Load() {
				return
			}
			time.Sleep(publishPollInterval)
			continue
		}

		if err := b.opts.Publisher.PublishEvent(ev); err != nil {
			b.publishDrops.Add(1)
			log.WithError(err).WithFields(logrus.Fields{
				"device": ev.Name,
				"kind":   ev.Kind.String(),
			}).Warn("Publish failed, event dropped")
		}
	}
}

// fail reports a fatal error to Run. Only the first fatal error wins.
func (b *Bridge) fail(err error) {
	select {
	case b.fatal <- err:
	default:
	}
}
