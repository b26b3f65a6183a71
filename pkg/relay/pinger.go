package relay

import (
	"errors"
	"fmt"
	"math/rand"
	"net"
	"net/url"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/ocupoint/relaysync/pkg/metrics"
)

var log = logrus.WithField("component", "relay")

// ErrProbeMismatch is a per-sample fault: the replying server echoed a
// different id than the one sent. The sample is discarded; the session
// continues.
var ErrProbeMismatch = errors.New("relay: probe id mismatch")

const probePort = 5055

// Pinger issues 13-byte request/reply UDP probes against one region's
// master server.
type Pinger struct {
	region Region
	addr   *net.UDPAddr
}

// NewPinger resolves region's address to an IP (first A/AAAA wins) and
// prepares a prober connected to ip:5055.
func NewPinger(region Region) (*Pinger, error) {
	u, err := url.Parse(region.Address)
	if err != nil {
		return nil, fmt.Errorf("relay: parse region address %q: %w", region.Address, err)
	}
	host := u.Hostname()
	if host == "" {
		host = u.Host
	}

	ips, err := net.LookupIP(host)
	if err != nil {
		return nil, fmt.Errorf("relay: resolve %q: %w", host, err)
	}

	return &Pinger{
		region: region,
		addr:   &net.UDPAddr{IP: ips[0], Port: probePort},
	}, nil
}

// Probe sends one 13-byte datagram (0x7D * 12 followed by a random id
// byte) and waits for the echoed reply, returning the round-trip time.
// A mismatched echoed id is ErrProbeMismatch; the caller discards the
// sample rather than aborting the session.
func (p *Pinger) Probe(conn *net.UDPConn, timeout time.Duration) (time.Duration, error) {
	id := byte(rand.Intn(255))

	req := [13]byte{0x7D, 0x7D, 0x7D, 0x7D, 0x7D, 0x7D, 0x7D, 0x7D, 0x7D, 0x7D, 0x7D, 0x7D, id}
	conn.SetDeadline(time.Now().Add(timeout))

	start := time.Now()
	if _, err := conn.Write(req[:]); err != nil {
		return 0, fmt.Errorf("relay: probe write: %w", err)
	}

	var reply [13]byte
	n, err := conn.Read(reply[:])
	if err != nil {
		return 0, fmt.Errorf("relay: probe read: %w", err)
	}
	elapsed := time.Since(start)
	if n < 13 || reply[12] != id {
		return 0, ErrProbeMismatch
	}
	return elapsed, nil
}

// StartPing issues n sequential probes against the region and returns
// the arithmetic mean of the successful samples in milliseconds. If n is
// 0 or every sample fails, it returns 0 and logs.
func (p *Pinger) StartPing(n int) uint64 {
	if n == 0 {
		log.Warnf("region %s: start_ping called with n=0", p.region.ShortName)
		return 0
	}

	conn, err := net.DialUDP("udp", nil, p.addr)
	if err != nil {
		log.Warnf("region %s: dial %s: %v", p.region.ShortName, p.addr, err)
		return 0
	}
	defer conn.Close()

	var sum time.Duration
	var ok int
	for i := 0; i < n; i++ {
		d, err := p.Probe(conn, 2*time.Second)
		if err != nil {
			metrics.ProbeFailuresTotal.Inc()
			if errors.Is(err, ErrProbeMismatch) {
				log.Warnf("region %s: probe mismatch, discarding sample", p.region.ShortName)
				continue
			}
			log.Warnf("region %s: probe failed: %v", p.region.ShortName, err)
			continue
		}
		sum += d
		ok++
	}

	if ok == 0 {
		log.Warnf("region %s: all %d probes failed", p.region.ShortName, n)
		return 0
	}
	return uint64((sum / time.Duration(ok)).Milliseconds())
}
