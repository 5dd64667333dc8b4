// Package probe implements TCP readiness probing: a raw connection attempt
// against a host:port, retried at a fixed interval until a deadline.
package probe

import (
	"context"
	"fmt"
	"net"
	"time"

	"github.com/rs/zerolog"

	"convoy/internal/core"
	"convoy/internal/metrics"
)

// Prober waits for an endpoint to accept connections. The gate depends on
// this interface so tests can substitute fakes.
type Prober interface {
	// Wait blocks until the endpoint accepts a connection, the timeout
	// elapses, or ctx is cancelled. A nil return means ready.
	Wait(ctx context.Context, ep core.Endpoint, interval, timeout time.Duration) error
}

// TCPProber probes by opening and immediately closing a TCP connection. No
// data is exchanged, so the probe is idempotent and safe to repeat.
type TCPProber struct {
	log zerolog.Logger
}

// NewTCPProber creates a TCP prober.
func NewTCPProber(logger zerolog.Logger) *TCPProber {
	return &TCPProber{log: logger.With().Str("component", "probe").Logger()}
}

// Wait dials ep every interval until it answers or timeout elapses. It never
// blocks indefinitely: the attempt that would cross the deadline is the last
// one.
func (p *TCPProber) Wait(ctx context.Context, ep core.Endpoint, interval, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	dialer := net.Dialer{Timeout: interval}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	attempt := 0
	for {
		attempt++
		metrics.ProbeAttempts.Inc()
		conn, err := dialer.DialContext(ctx, "tcp", ep.Address())
		if err == nil {
			conn.Close()
			p.log.Debug().Str("endpoint", ep.Address()).Int("attempt", attempt).Msg("endpoint ready")
			return nil
		}

		select {
		case <-ctx.Done():
			p.log.Debug().Str("endpoint", ep.Address()).Int("attempts", attempt).Msg("endpoint not ready")
			return fmt.Errorf("endpoint %s not ready after %d attempts: %w", ep.Address(), attempt, ctx.Err())
		case <-ticker.C:
		}
	}
}
