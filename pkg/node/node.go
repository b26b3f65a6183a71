// Package node implements the participant side of a coordinated
// playback session: a WebSocket client that answers the coordinator's
// heartbeat pings, serves region-ping requests out of a background
// pingcache.Cache, and schedules renderer invocation on PLAY messages.
package node

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/ocupoint/relaysync/pkg/pingcache"
	"github.com/ocupoint/relaysync/pkg/relay"
)

var log = logrus.WithField("component", "node")

// OnDemandSamples is how many probes an on-demand REQUEST_PING performs
// per region, lower than the background cache's SamplesPerRegion since
// the coordinator is waiting synchronously on the reply.
const OnDemandSamples = 5

// Renderer invokes the scheduled playback for payload. Supplied by the
// embedder; relaysync itself has no audio/output layer.
type Renderer func(payload string)

// RegionPingInfo is one region's latency sample as carried in the
// PHOTON_PINGS wire payload.
type RegionPingInfo struct {
	Region      string `json:"region"`
	Latency     uint64 `json:"latency"`
	LastUpdated uint64 `json:"last_updated"`
}

// photonPingsResponse is the PHOTON_PINGS:<json> envelope.
type photonPingsResponse struct {
	Regions []RegionPingInfo `json:"regions"`
}

// Node is a connected participant.
type Node struct {
	conn     *websocket.Conn
	cache    *pingcache.Cache
	renderer Renderer
}

// Dial connects to the coordinator at wsURL (e.g. "ws://127.0.0.1:8080/ws")
// and starts the node's background region-ping cache. regions is the
// relay discovery result; with nil the cache stays empty, and a
// REQUEST_PING naming a region gets an empty reply, since the node does
// not run discovery itself.
func Dial(ctx context.Context, wsURL string, regions []relay.Region, renderer Renderer) (*Node, error) {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, wsURL, nil)
	if err != nil {
		return nil, fmt.Errorf("node: dial %s: %w", wsURL, err)
	}

	cache := pingcache.New()
	cache.SetRegions(regions)
	go cache.Run(ctx)

	return &Node{conn: conn, cache: cache, renderer: renderer}, nil
}

// Close tears down the coordinator connection.
func (n *Node) Close() error {
	return n.conn.Close()
}

// Run reads frames from the coordinator until the connection closes or
// ctx is cancelled, dispatching each per §4.8 of the inbound table.
func (n *Node) Run(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		<-ctx.Done()
		n.conn.Close()
		close(done)
	}()

	n.conn.SetPingHandler(func(payload string) error {
		n.handlePing([]byte(payload))
		return nil
	})

	for {
		msgType, data, err := n.conn.ReadMessage()
		if err != nil {
			select {
			case <-done:
				return nil
			default:
			}
			return fmt.Errorf("node: read: %w", err)
		}

		switch msgType {
		case websocket.TextMessage:
			n.handleText(string(data))
		case websocket.BinaryMessage:
			// No domain use for binary frames from the coordinator;
			// nothing to do beyond having read them off the wire.
		}
	}
}

// handlePing replies to a server heartbeat ping. Per §4.9/§6, the
// payload is be_u128(now_ms) || be_u128(smoothed_rtt) and must be
// echoed back unchanged in the Pong.
func (n *Node) handlePing(payload []byte) {
	if len(payload) != 32 {
		log.Warnf("ping payload length = %d, want 32", len(payload))
		return
	}
	sentMS := getUint128AsUint64(payload[0:16])
	smoothedRTT := getUint128AsUint64(payload[16:32])
	log.Debugf("heartbeat ping sent_ms=%d smoothed_rtt=%d", sentMS, smoothedRTT)

	if err := n.conn.WriteControl(websocket.PongMessage, payload, time.Now().Add(5*time.Second)); err != nil {
		log.Warnf("pong write failed: %v", err)
	}
}

func (n *Node) handleText(text string) {
	switch {
	case strings.HasPrefix(text, "PLAY:"):
		n.handlePlay(text)
	case strings.HasPrefix(text, "REQUEST_PING:"):
		n.handleRequestPing(strings.TrimPrefix(text, "REQUEST_PING:"))
	default:
		log.Debugf("ignoring unrecognized message: %s", text)
	}
}

// handlePlay parses PLAY:<target_ts>:<payload>[:<rtt>] and schedules
// the renderer at target_ts, sleeping first if target_ts is in the
// future.
func (n *Node) handlePlay(text string) {
	parts := strings.SplitN(strings.TrimPrefix(text, "PLAY:"), ":", 3)
	if len(parts) < 2 {
		log.Warnf("malformed play message: %s", text)
		return
	}

	targetTS, err := strconv.ParseUint(parts[0], 10, 64)
	if err != nil {
		log.Warnf("malformed play timestamp: %s", text)
		return
	}
	payload := parts[1]

	now := uint64(time.Now().UnixMilli())
	if targetTS > now {
		wait := time.Duration(targetTS-now) * time.Millisecond
		log.Debugf("play scheduled in %v: %q", wait, payload)
		time.Sleep(wait)
	} else {
		log.Debugf("play timestamp already passed, playing immediately: %q", payload)
	}

	if n.renderer != nil {
		n.renderer(payload)
	}
}

// handleRequestPing answers an on-demand or snapshot region-ping
// request. An empty region replies with every cached entry; a named
// region is probed on demand if necessary.
func (n *Node) handleRequestPing(region string) {
	if region != "" {
		n.refreshRegion(region)
	}

	entries := n.cache.Snapshot(region)
	resp := photonPingsResponse{Regions: make([]RegionPingInfo, 0, len(entries))}
	for _, e := range entries {
		resp.Regions = append(resp.Regions, RegionPingInfo{
			Region:      e.Region.ShortName,
			Latency:     e.LatencyMS,
			LastUpdated: uint64(e.LastUpdated.UnixMilli()),
		})
	}

	body, err := json.Marshal(resp)
	if err != nil {
		log.Errorf("marshal photon pings response: %v", err)
		return
	}
	msg := "PHOTON_PINGS:" + string(body)
	if err := n.conn.WriteMessage(websocket.TextMessage, []byte(msg)); err != nil {
		log.Warnf("write photon pings response: %v", err)
	}
}

// refreshRegion probes region once if it isn't already in the cache,
// storing the result before the caller snapshots it.
func (n *Node) refreshRegion(shortName string) {
	if existing := n.cache.Snapshot(shortName); len(existing) > 0 {
		return
	}

	if _, ok := n.cache.ProbeOne(shortName, OnDemandSamples); !ok {
		// Not in the discovery result; a caller would need to re-run
		// discovery to learn its address. Log and leave the snapshot
		// empty rather than fabricate one.
		log.Warnf("region %s not present in discovery result; cannot probe on demand", shortName)
	}
}

// getUint128AsUint64 reads a 16-byte big-endian unsigned integer and
// truncates it to 64 bits, which is lossless for every timestamp and
// RTT value this protocol ever carries.
func getUint128AsUint64(b []byte) uint64 {
	var v uint64
	for _, x := range b[8:16] {
		v = v<<8 | uint64(x)
	}
	return v
}

