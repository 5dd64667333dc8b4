package gate

import (
	"context"
	"net"
	"strconv"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"convoy/internal/core"
	"convoy/internal/probe"
)

func listen(t *testing.T) core.Endpoint {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { ln.Close() })

	_, portStr, _ := net.SplitHostPort(ln.Addr().String())
	port, _ := strconv.Atoi(portStr)
	return core.Endpoint{Host: "127.0.0.1", Port: port}
}

func closedEndpoint(t *testing.T) core.Endpoint {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	_, portStr, _ := net.SplitHostPort(ln.Addr().String())
	port, _ := strconv.Atoi(portStr)
	ln.Close()
	return core.Endpoint{Host: "127.0.0.1", Port: port}
}

func deps(eps ...core.Endpoint) []core.Dependency {
	out := make([]core.Dependency, len(eps))
	for i, ep := range eps {
		out[i] = core.Dependency{Raw: ep.Address(), Endpoint: ep}
	}
	return out
}

func TestAwaitNoDependencies(t *testing.T) {
	g := New(probe.NewTCPProber(zerolog.Nop()), 20*time.Millisecond, time.Second, zerolog.Nop())
	assert.NoError(t, g.Await(context.Background(), "db", nil))
}

func TestAwaitSatisfied(t *testing.T) {
	g := New(probe.NewTCPProber(zerolog.Nop()), 20*time.Millisecond, time.Second, zerolog.Nop())
	err := g.Await(context.Background(), "api", deps(listen(t), listen(t), listen(t)))
	assert.NoError(t, err)
}

func TestAwaitUnsatisfiedNamesFailingEndpoints(t *testing.T) {
	ok := listen(t)
	bad1 := closedEndpoint(t)
	bad2 := closedEndpoint(t)

	g := New(probe.NewTCPProber(zerolog.Nop()), 20*time.Millisecond, 200*time.Millisecond, zerolog.Nop())
	err := g.Await(context.Background(), "api", deps(ok, bad1, bad2))

	var readyErr *core.ReadinessError
	require.ErrorAs(t, err, &readyErr)
	assert.Equal(t, "api", readyErr.Service)
	assert.ElementsMatch(t, []core.Endpoint{bad1, bad2}, readyErr.Failed)
	assert.NotContains(t, readyErr.Failed, ok, "reachable endpoints must not be reported")
}

func TestAwaitReportsRepeatedEndpointOnce(t *testing.T) {
	// "db" and "db:5432" can resolve to the same endpoint; the report must
	// name it once
	bad := closedEndpoint(t)
	dd := []core.Dependency{
		{Raw: "db", Endpoint: bad},
		{Raw: "db:" + strconv.Itoa(bad.Port), Endpoint: bad},
	}

	g := New(probe.NewTCPProber(zerolog.Nop()), 20*time.Millisecond, 200*time.Millisecond, zerolog.Nop())
	err := g.Await(context.Background(), "api", dd)

	var readyErr *core.ReadinessError
	require.ErrorAs(t, err, &readyErr)
	assert.Equal(t, []core.Endpoint{bad}, readyErr.Failed)
}

func TestAwaitGlobalTimeoutIsShared(t *testing.T) {
	// three dead endpoints probed concurrently must take ~one timeout, not
	// three
	g := New(probe.NewTCPProber(zerolog.Nop()), 20*time.Millisecond, 200*time.Millisecond, zerolog.Nop())

	start := time.Now()
	err := g.Await(context.Background(), "api", deps(closedEndpoint(t), closedEndpoint(t), closedEndpoint(t)))
	elapsed := time.Since(start)

	require.Error(t, err)
	assert.Less(t, elapsed, 500*time.Millisecond)
}

// blockingProber blocks until its context ends, counting active waits.
type blockingProber struct {
	active atomic.Int32
}

func (p *blockingProber) Wait(ctx context.Context, ep core.Endpoint, interval, timeout time.Duration) error {
	p.active.Add(1)
	defer p.active.Add(-1)
	<-ctx.Done()
	return ctx.Err()
}

func TestAwaitCancellation(t *testing.T) {
	prober := &blockingProber{}
	g := New(prober, 20*time.Millisecond, 10*time.Second, zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- g.Await(ctx, "api", deps(core.Endpoint{Host: "127.0.0.1", Port: 1}, core.Endpoint{Host: "127.0.0.1", Port: 2}))
	}()

	require.Eventually(t, func() bool { return prober.active.Load() == 2 }, time.Second, 10*time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled, "an aborted wait must report cancellation, not a timeout")
	case <-time.After(time.Second):
		t.Fatal("gate did not observe cancellation promptly")
	}
}

func TestAwaitProbesConcurrently(t *testing.T) {
	// each endpoint only starts listening after a delay; sequential probing
	// would exceed the global timeout
	var eps []core.Endpoint
	for i := 0; i < 4; i++ {
		ep := closedEndpoint(t)
		eps = append(eps, ep)
		go func(ep core.Endpoint) {
			time.Sleep(100 * time.Millisecond)
			if ln, err := net.Listen("tcp", ep.Address()); err == nil {
				time.Sleep(2 * time.Second)
				ln.Close()
			}
		}(ep)
	}

	g := New(probe.NewTCPProber(zerolog.Nop()), 20*time.Millisecond, time.Second, zerolog.Nop())
	err := g.Await(context.Background(), "api", deps(eps...))
	assert.NoError(t, err)
}
