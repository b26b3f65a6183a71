// Package coordinator implements the broadcast side of a playback
// session: it accepts WebSocket connections from nodes, tracks each
// one's round-trip latency, and drives the rendezvous broadcast engine
// that schedules synchronized playback across every connected
// participant.
package coordinator

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/ocupoint/relaysync/pkg/diag"
	"github.com/ocupoint/relaysync/pkg/metrics"
	"github.com/ocupoint/relaysync/pkg/node"
)

var log = logrus.WithField("component", "coordinator")

// heartbeatInterval is how often the coordinator pings each participant.
const heartbeatInterval = 2 * time.Second

// receiveYield is how long the receive loop pauses after dispatching a
// frame before it takes the next one.
const receiveYield = 10 * time.Millisecond

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     func(*http.Request) bool { return true },
}

// Coordinator accepts participant connections and runs the broadcast
// engine. The zero value is not usable; construct with New.
type Coordinator struct {
	registry *registry
	recorder *diag.Recorder
}

// New returns an empty Coordinator ready to accept connections via
// ServeHTTP.
func New() *Coordinator {
	return &Coordinator{registry: newRegistry()}
}

// SetRecorder attaches a diagnostic event recorder; every subsequent
// broadcast is appended as a row. Pass nil to disable recording.
func (c *Coordinator) SetRecorder(r *diag.Recorder) {
	c.recorder = r
}

// ParticipantCount returns the number of currently connected participants.
func (c *Coordinator) ParticipantCount() int {
	return c.registry.count()
}

// ServeHTTP upgrades the request to a WebSocket and runs the connection
// until it closes, per the per-connection model of §4.9: a heartbeat
// task and a receive task sharing one Participant record.
func (c *Coordinator) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warnf("upgrade failed: %v", err)
		return
	}

	addr := r.RemoteAddr
	p := newParticipant(conn, addr)
	c.registry.add(p)
	metrics.ParticipantsConnected.Inc()
	log.Infof("participant connected: %s (total %d)", addr, c.registry.count())

	ctx, cancel := context.WithCancel(context.Background())
	go c.heartbeatLoop(ctx, p)

	c.receiveLoop(ctx, p)

	cancel()
	c.registry.remove(addr)
	p.close()
	metrics.ParticipantsConnected.Dec()
	metrics.SmoothedRTT.DeleteLabelValues(addr)
	log.Infof("participant disconnected: %s (total %d)", addr, c.registry.count())
}

// heartbeatLoop sends a Ping every heartbeatInterval until ctx is
// cancelled or the send fails, at which point it returns (the receive
// loop notices the dead connection on its own and tears the
// participant down).
func (c *Coordinator) heartbeatLoop(ctx context.Context, p *Participant) {
	ticker := time.NewTicker(heartbeatInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			payload := make([]byte, 32)
			putUint64AsUint128(payload[0:16], uint64(time.Now().UnixMilli()))
			putUint64AsUint128(payload[16:32], uint64(p.SmoothedRTT().Milliseconds()))
			if err := p.writePing(payload); err != nil {
				log.Warnf("heartbeat ping to %s failed: %v", p.addr, err)
				return
			}
		}
	}
}

// receiveLoop reads frames: the underlying read is blocking in
// gorilla/websocket, so it runs on its own goroutine feeding a channel,
// and the loop waits on that channel (or ctx) and pauses receiveYield
// after dispatching each frame. Pong frames never reach the channel
// (gorilla/websocket delivers them to the pong handler), so the handler
// routes them to handlePong.
func (c *Coordinator) receiveLoop(ctx context.Context, p *Participant) {
	type frame struct {
		msgType int
		data    []byte
		err     error
	}
	frames := make(chan frame, 1)

	p.conn.SetPongHandler(func(appData string) error {
		c.handlePong(p, []byte(appData))
		return nil
	})

	go func() {
		for {
			msgType, data, err := p.conn.ReadMessage()
			frames <- frame{msgType: msgType, data: data, err: err}
			if err != nil {
				return
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case f := <-frames:
			if f.err != nil {
				return
			}
			c.dispatch(p, f.msgType, f.data)
			time.Sleep(receiveYield)
		}
	}
}

func (c *Coordinator) dispatch(p *Participant, msgType int, data []byte) {
	switch msgType {
	case websocket.TextMessage:
		c.dispatchText(p, string(data))
	case websocket.BinaryMessage:
		if err := p.writeBinary(data); err != nil {
			log.Warnf("echo binary to %s: %v", p.addr, err)
		}
	case websocket.PongMessage:
		c.handlePong(p, data)
	case websocket.CloseMessage:
		p.conn.WriteControl(websocket.CloseMessage, nil, time.Now().Add(time.Second))
	}
}

// handlePong extracts sent_ms from the first 16 bytes of a 32-byte pong
// payload and records the round trip into the participant's heartbeat
// history.
func (c *Coordinator) handlePong(p *Participant, data []byte) {
	if len(data) != 32 {
		log.Warnf("pong from %s has unexpected length %d", p.addr, len(data))
		return
	}
	sentMS := getUint128AsUint64(data[0:16])
	now := time.Now()
	rtt := time.Duration(uint64(now.UnixMilli())-sentMS) * time.Millisecond
	p.addHeartbeat(now, rtt)
	metrics.SmoothedRTT.WithLabelValues(p.addr).Set(float64(p.SmoothedRTT().Milliseconds()))
}

func (c *Coordinator) dispatchText(p *Participant, text string) {
	switch {
	case strings.HasPrefix(text, "SEND_PLAY:"):
		region, payload := parseSendPlay(text)
		log.Infof("send play requested by %s: region=%s payload=%q", p.addr, region, payload)
		c.broadcastPlay(region, payload)
		p.writeText("Play message '" + payload + "' sent to all clients")
	case strings.HasPrefix(text, "REQUEST_PING:"):
		region := strings.TrimPrefix(text, "REQUEST_PING:")
		if region == "" {
			region = DefaultRegion
		}
		c.requestRegionPingsFrom(c.registry.snapshot(), region)
	case strings.HasPrefix(text, "PHOTON_PINGS:"):
		c.handlePhotonPings(p, strings.TrimPrefix(text, "PHOTON_PINGS:"))
	default:
		p.writeText("Echo: " + text)
	}
}

func (c *Coordinator) handlePhotonPings(p *Participant, jsonBody string) {
	var resp struct {
		Regions []node.RegionPingInfo `json:"regions"`
	}
	if err := json.Unmarshal([]byte(jsonBody), &resp); err != nil {
		log.Warnf("malformed photon pings from %s: %v", p.addr, err)
		return
	}
	p.setRegionPings(resp.Regions)
	p.writeText("Photon ping data received")
}

// parseSendPlay splits "SEND_PLAY:message" or "SEND_PLAY:region:message"
// into (region, message), defaulting region to DefaultRegion.
func parseSendPlay(text string) (region, payload string) {
	rest := strings.TrimPrefix(text, "SEND_PLAY:")
	parts := strings.SplitN(rest, ":", 2)
	if len(parts) == 2 {
		return parts[0], parts[1]
	}
	return DefaultRegion, parts[0]
}

func getUint128AsUint64(b []byte) uint64 {
	var v uint64
	for _, x := range b[8:16] {
		v = v<<8 | uint64(x)
	}
	return v
}

func putUint64AsUint128(dst []byte, v uint64) {
	for i := 15; i >= 8; i-- {
		dst[i] = byte(v)
		v >>= 8
	}
}
