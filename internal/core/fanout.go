package core

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/finlive/streamchat-server/internal/metrics"
)

// DeliveryReport summarizes one broadcast pass.
type DeliveryReport struct {
	Delivered int
	Pruned    []string
}

// Fanout delivers an event to every registered connection. Connections
// whose delivery fails permanently are removed from the registry in the
// same pass; disconnect notifications are not guaranteed to arrive, so the
// engine self-heals instead of waiting for them.
type Fanout struct {
	registry *Registry
	log      *zerolog.Logger
	timeout  time.Duration
	workers  int

	// passMu serializes passes so a later broadcast cannot overtake an
	// earlier one at any connection.
	passMu sync.Mutex
}

// NewFanout builds a fan-out engine. timeout bounds each individual
// delivery; workers bounds concurrent deliveries per pass.
func NewFanout(registry *Registry, logger *zerolog.Logger, timeout time.Duration, workers int) *Fanout {
	if workers <= 0 {
		workers = 64
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Fanout{
		registry: registry,
		log:      logger,
		timeout:  timeout,
		workers:  workers,
	}
}

// Broadcast snapshots the registry and attempts delivery to each connection
// independently. Transient failures are not retried within the pass; a
// permanent failure (including a per-delivery timeout) prunes the
// connection. A pass always runs to completion: the caller's cancellation
// does not abort deliveries in flight, and passes never interleave, so a
// connection sees events in the order their broadcasts started.
func (f *Fanout) Broadcast(ctx context.Context, ev Event) DeliveryReport {
	f.passMu.Lock()
	defer f.passMu.Unlock()

	start := time.Now()
	conns := f.registry.Snapshot()

	var (
		mu     sync.Mutex
		report DeliveryReport
	)

	g := new(errgroup.Group)
	g.SetLimit(f.workers)

	for _, conn := range conns {
		conn := conn
		g.Go(func() error {
			dctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), f.timeout)
			err := conn.Send(dctx, ev)
			cancel()

			if err == nil {
				metrics.Deliveries.Inc()
				mu.Lock()
				report.Delivered++
				mu.Unlock()
				return nil
			}

			if isPermanent(err) {
				f.registry.Unregister(conn.ID)
				metrics.DeliveryFailures.WithLabelValues("permanent").Inc()
				metrics.PrunedConnections.Inc()
				f.log.Info().Str("connection_id", conn.ID).Err(err).Msg("pruned dead connection")
				mu.Lock()
				report.Pruned = append(report.Pruned, conn.ID)
				mu.Unlock()
				return nil
			}

			metrics.DeliveryFailures.WithLabelValues("transient").Inc()
			f.log.Warn().Str("connection_id", conn.ID).Err(err).Msg("transient delivery failure")
			return nil
		})
	}

	_ = g.Wait()
	metrics.BroadcastDuration.Observe(time.Since(start).Seconds())
	return report
}

// isPermanent classifies a delivery failure. Timeouts count as permanent:
// after the per-delivery deadline the peer is treated as gone.
func isPermanent(err error) bool {
	var de *DeliveryError
	if errors.As(err, &de) {
		return de.Permanent
	}
	return errors.Is(err, context.DeadlineExceeded)
}
