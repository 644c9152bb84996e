package ws

import (
	"context"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/taskhub/realtime/internal/protocol"
)

type fakeProber struct {
	alive  bool
	pings  int
	closed bool
}

func (p *fakeProber) Probe() bool {
	if !p.alive {
		return false
	}
	p.alive = false
	p.pings++
	return true
}

func (p *fakeProber) Close() error {
	p.closed = true
	return nil
}

func TestSweepTerminatesAfterTwoMissedProbes(t *testing.T) {
	silent := &fakeProber{alive: true}
	responsive := &fakeProber{alive: true}
	targets := []prober{silent, responsive}
	m := NewMonitor(time.Hour, func() []prober { return targets }, nil, discardLogger())

	if n := m.Sweep(); n != 0 {
		t.Fatalf("first sweep terminated %d, want 0", n)
	}
	if silent.closed || responsive.closed {
		t.Fatal("no connection should close on the first missed probe")
	}

	responsive.alive = true // pong arrived
	if n := m.Sweep(); n != 1 {
		t.Fatalf("second sweep terminated %d, want 1", n)
	}
	if !silent.closed {
		t.Error("silent connection survived two sweeps")
	}
	if responsive.closed {
		t.Error("responsive connection was terminated")
	}
	if responsive.pings != 2 {
		t.Errorf("responsive pings = %d, want 2", responsive.pings)
	}
}

func TestMonitorStartStop(t *testing.T) {
	swept := make(chan struct{}, 1)
	m := NewMonitor(5*time.Millisecond, func() []prober {
		select {
		case swept <- struct{}{}:
		default:
		}
		return nil
	}, nil, discardLogger())

	m.Start(context.Background())
	m.Start(context.Background())

	select {
	case <-swept:
	case <-time.After(2 * time.Second):
		t.Fatal("monitor never swept")
	}

	m.Stop()
	m.Stop()
}

func TestMonitorStopWithoutStart(t *testing.T) {
	m := NewMonitor(time.Millisecond, func() []prober { return nil }, nil, discardLogger())
	m.Stop()
	// Start after Stop must not launch the ticker.
	m.Start(context.Background())
}

func TestMonitorStopsOnContextCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	m := NewMonitor(time.Hour, func() []prober { return nil }, nil, discardLogger())
	m.Start(ctx)
	cancel()

	select {
	case <-m.done:
	case <-time.After(2 * time.Second):
		t.Fatal("monitor did not exit after cancel")
	}
	m.Stop()
}

func TestLivenessOverWebSocket(t *testing.T) {
	env := newTestEnv(t, nil)

	healthy := env.login("1", "alice")
	healthy.join("42")

	// The default ping handler answers with a pong; this one stays silent.
	silent := env.login("2", "bob", func(conn *websocket.Conn) {
		conn.SetPingHandler(func(string) error { return nil })
	})
	silent.join("42")
	healthy.expect(protocol.MsgUserJoined)

	healthySess := env.sessionFor("1")
	silentSess := env.sessionFor("2")

	if n := env.srv.monitor.Sweep(); n != 0 {
		t.Fatalf("first sweep terminated %d, want 0", n)
	}
	waitFor(t, "pong from healthy client", healthySess.alive.Load)
	if silentSess.alive.Load() {
		t.Fatal("silent client should not have answered")
	}

	if n := env.srv.monitor.Sweep(); n != 1 {
		t.Fatalf("second sweep terminated %d, want 1", n)
	}

	if left := healthy.expect(protocol.MsgUserLeft); left.UserID.String() != "2" {
		t.Errorf("user_left = %+v", left)
	}
	silent.expectClosed()

	waitFor(t, "pong after second sweep", healthySess.alive.Load)
	if n := env.srv.monitor.Sweep(); n != 0 {
		t.Errorf("third sweep terminated %d, want 0", n)
	}
	healthy.sync()
}
