package relay

import (
	"errors"
	"net"
	"testing"
	"time"
)

// echoServer starts a UDP listener that echoes every datagram it
// receives back to the sender, simulating a region's master server.
func echoServer(t *testing.T) *net.UDPAddr {
	t.Helper()
	conn, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.ParseIP("127.0.0.1"), Port: 0})
	if err != nil {
		t.Fatalf("ListenUDP: %v", err)
	}
	t.Cleanup(func() { conn.Close() })

	go func() {
		buf := make([]byte, 64)
		for {
			n, addr, err := conn.ReadFromUDP(buf)
			if err != nil {
				return
			}
			conn.WriteToUDP(buf[:n], addr)
		}
	}()
	return conn.LocalAddr().(*net.UDPAddr)
}

func TestPingerProbeRoundTrip(t *testing.T) {
	addr := echoServer(t)
	p := &Pinger{region: Region{ShortName: "test"}, addr: addr}

	conn, err := net.DialUDP("udp", nil, addr)
	if err != nil {
		t.Fatalf("DialUDP: %v", err)
	}
	defer conn.Close()

	rtt, err := p.Probe(conn, time.Second)
	if err != nil {
		t.Fatalf("Probe: %v", err)
	}
	if rtt < 0 {
		t.Errorf("rtt = %v, want non-negative", rtt)
	}
}

func TestPingerProbeTimeout(t *testing.T) {
	// Nothing listens on this address; the probe must time out rather
	// than hang.
	deadAddr := &net.UDPAddr{IP: net.ParseIP("127.0.0.1"), Port: 1}
	p := &Pinger{region: Region{ShortName: "test"}, addr: deadAddr}

	conn, err := net.DialUDP("udp", nil, deadAddr)
	if err != nil {
		t.Fatalf("DialUDP: %v", err)
	}
	defer conn.Close()

	if _, err := p.Probe(conn, 50*time.Millisecond); err == nil {
		t.Fatal("Probe: want timeout error, got nil")
	}
}

func TestStartPingAveragesSamples(t *testing.T) {
	addr := echoServer(t)
	p := &Pinger{region: Region{ShortName: "test"}, addr: addr}

	avg := p.StartPing(5)
	// An echo on loopback should resolve well under a second; this mostly
	// guards against StartPing never completing a sample.
	if avg > 1000 {
		t.Errorf("StartPing average = %dms, want < 1000ms", avg)
	}
}

func TestStartPingZeroSamplesReturnsZero(t *testing.T) {
	p := &Pinger{region: Region{ShortName: "test"}, addr: &net.UDPAddr{IP: net.ParseIP("127.0.0.1"), Port: 1}}
	if got := p.StartPing(0); got != 0 {
		t.Errorf("StartPing(0) = %d, want 0", got)
	}
}

func TestStartPingAllFailuresReturnsZero(t *testing.T) {
	deadAddr := &net.UDPAddr{IP: net.ParseIP("127.0.0.1"), Port: 1}
	p := &Pinger{region: Region{ShortName: "test"}, addr: deadAddr}
	if got := p.StartPing(2); got != 0 {
		t.Errorf("StartPing with no listener = %d, want 0", got)
	}
}

func TestNewPingerResolvesAddress(t *testing.T) {
	region := Region{ShortName: "test", Address: "wss://127.0.0.1:5055"}
	p, err := NewPinger(region)
	if err != nil {
		t.Fatalf("NewPinger: %v", err)
	}
	if p.addr.Port != probePort {
		t.Errorf("resolved port = %d, want %d", p.addr.Port, probePort)
	}
}

func TestNewPingerRejectsUnresolvableAddress(t *testing.T) {
	region := Region{ShortName: "test", Address: "wss://no-such-host.invalid:5055"}
	if _, err := NewPinger(region); err == nil {
		t.Fatal("NewPinger: want resolution error, got nil")
	}
}

func TestProbeMismatchIsDistinguishable(t *testing.T) {
	if !errors.Is(ErrProbeMismatch, ErrProbeMismatch) {
		t.Fatal("sanity: ErrProbeMismatch must be comparable via errors.Is")
	}
}
