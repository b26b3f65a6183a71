package coordinator

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/ocupoint/relaysync/pkg/node"
)

// heartbeatWindow is how far back into the ping history the smoothed
// RTT is averaged over.
const heartbeatWindow = 30 * time.Second

// heartbeatSample is one RTT observation with the wall-clock moment it
// was recorded.
type heartbeatSample struct {
	at  time.Time
	rtt time.Duration
}

// Participant is one connected node's mutable session state. Every
// field is protected by mu; callers outside this package never touch
// Participant directly.
type Participant struct {
	mu sync.Mutex

	conn *websocket.Conn
	addr string

	heartbeats  []heartbeatSample
	smoothedRTT time.Duration
	hasSmoothed bool

	awaitingRegionPings bool
	regionPings         []node.RegionPingInfo
}

func newParticipant(conn *websocket.Conn, addr string) *Participant {
	return &Participant{conn: conn, addr: addr}
}

// addHeartbeat records one RTT sample and recomputes the smoothed RTT
// over the trailing heartbeatWindow, discarding older samples.
func (p *Participant) addHeartbeat(now time.Time, rtt time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.heartbeats = append(p.heartbeats, heartbeatSample{at: now, rtt: rtt})

	cutoff := now.Add(-heartbeatWindow)
	i := 0
	for i < len(p.heartbeats) && p.heartbeats[i].at.Before(cutoff) {
		i++
	}
	p.heartbeats = p.heartbeats[i:]

	if len(p.heartbeats) == 0 {
		p.hasSmoothed = false
		return
	}
	var sum time.Duration
	for _, s := range p.heartbeats {
		sum += s.rtt
	}
	p.smoothedRTT = sum / time.Duration(len(p.heartbeats))
	p.hasSmoothed = true
}

// SmoothedRTT returns the participant's current smoothed RTT, or 0 if
// no heartbeat sample has landed yet.
func (p *Participant) SmoothedRTT() time.Duration {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.hasSmoothed {
		return 0
	}
	return p.smoothedRTT
}

func (p *Participant) setAwaitingRegionPings(v bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.awaitingRegionPings = v
	if v {
		p.regionPings = nil
	}
}

func (p *Participant) isAwaitingRegionPings() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.awaitingRegionPings
}

func (p *Participant) setRegionPings(regions []node.RegionPingInfo) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.regionPings = regions
	p.awaitingRegionPings = false
}

// highestRegionLatency returns the maximum latency among this
// participant's cached region pings matching target, or 0 if none.
func (p *Participant) highestRegionLatency(target string) uint64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	var highest uint64
	for _, r := range p.regionPings {
		if r.Region == target && r.Latency > highest {
			highest = r.Latency
		}
	}
	return highest
}

func (p *Participant) writeText(text string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.conn.WriteMessage(websocket.TextMessage, []byte(text))
}

func (p *Participant) writeBinary(data []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.conn.WriteMessage(websocket.BinaryMessage, data)
}

func (p *Participant) writePing(payload []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.conn.WriteControl(websocket.PingMessage, payload, time.Now().Add(5*time.Second))
}

func (p *Participant) close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.conn.Close()
}
