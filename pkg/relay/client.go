package relay

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/ocupoint/relaysync/pkg/protocol"
)

// Endpoint is the relay service's region-discovery WebSocket.
const Endpoint = "wss://ns.photonengine.io:80"

// Subprotocol is the v18 binary WebSocket subprotocol name.
const Subprotocol = "GpBinaryV18"

// appID is the hard-coded application id the get-regions request
// carries, as required by spec.md §4.6.
const appID = "0d501af7-d643-47dd-811a-cfc25ef543be"

// ErrMalformedDiscovery is returned when a get-regions response's region
// and address arrays disagree in length.
var ErrMalformedDiscovery = errors.New("relay: region/address array length mismatch")

var (
	startOnce sync.Once
	startTime time.Time
)

// millisSinceStart returns milliseconds elapsed since this process's
// relay codec clock was first used. The reference instant is
// process-wide state, initialized lazily on first call and never reset
// (spec.md §9's "Global state" design note).
func millisSinceStart() int32 {
	startOnce.Do(func() { startTime = time.Now() })
	return int32(time.Since(startTime).Milliseconds())
}

// Client is the relay service's protocol state machine: it drives a
// WebSocket carrying v18 binary frames and discovers regions.
type Client struct {
	SessionID uuid.UUID

	conn *websocket.Conn
}

// Dial opens the relay WebSocket with the v18 binary subprotocol.
func Dial(ctx context.Context) (*Client, error) {
	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	header := map[string][]string{"Sec-WebSocket-Protocol": {Subprotocol}}
	conn, _, err := dialer.DialContext(ctx, Endpoint, header)
	if err != nil {
		return nil, fmt.Errorf("relay: dial %s: %w", Endpoint, err)
	}
	return &Client{SessionID: uuid.New(), conn: conn}, nil
}

// Close tears down the underlying WebSocket.
func (c *Client) Close() error {
	return c.conn.Close()
}

// DiscoverRegions drives the reactive init/ping/get-regions exchange
// described in spec.md §4.6 and returns the materialized region list.
// It blocks until a get-regions response arrives, ctx is cancelled, or a
// fatal decode/transport error occurs.
func (c *Client) DiscoverRegions(ctx context.Context) ([]Region, error) {
	type result struct {
		regions []Region
		err     error
	}
	done := make(chan result, 1)

	go func() {
		for {
			_, data, err := c.conn.ReadMessage()
			if err != nil {
				done <- result{err: fmt.Errorf("relay: read: %w", err)}
				return
			}

			buf := protocol.NewBuffer(data)
			frame, err := protocol.DecodeIncoming(buf)
			if err != nil {
				done <- result{err: err}
				return
			}
			if frame == nil {
				continue // not an operation frame; discard
			}

			switch frame.Kind {
			case protocol.KindInitResponse:
				if err := c.sendPing(); err != nil {
					done <- result{err: err}
					return
				}
				if err := c.sendGetRegions(); err != nil {
					done <- result{err: err}
					return
				}
			case protocol.KindInternalOperationResponse:
				if frame.Response.OperationCode == protocol.OpcodePing {
					logPingResult(frame.Response)
				}
			case protocol.KindOperationResponse:
				if frame.Response.OperationCode != protocol.OpcodeGetRegions {
					continue
				}
				if frame.Response.ReturnCode != 0 {
					done <- result{err: fmt.Errorf("relay: get-regions failed: return_code=%d", frame.Response.ReturnCode)}
					return
				}
				regions, err := regionsFromResponse(frame.Response)
				if err != nil {
					done <- result{err: err}
					return
				}
				done <- result{regions: regions}
				return
			case protocol.KindDisconnectReason:
				done <- result{err: errors.New("relay: disconnected")}
				return
			}
		}
	}()

	select {
	case r := <-done:
		return r.regions, r.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (c *Client) sendPing() error {
	params := protocol.NewParamMap()
	params.Set(protocol.KeyPingClientTime, protocol.IntValue(millisSinceStart()))
	frame := protocol.EncodeMessage(protocol.OpcodePing, params, protocol.KindInternalOperationRequest)
	return c.conn.WriteMessage(websocket.BinaryMessage, frame)
}

func (c *Client) sendGetRegions() error {
	params := protocol.NewParamMap()
	params.Set(protocol.KeyAppID, protocol.StringValue(appID))
	frame := protocol.EncodeMessage(protocol.OpcodeGetRegions, params, protocol.KindOperation)
	return c.conn.WriteMessage(websocket.BinaryMessage, frame)
}

func regionsFromResponse(resp *protocol.OperationResponse) ([]Region, error) {
	names, ok := resp.Payload.GetStringArray(protocol.KeyRegionNames)
	if !ok {
		return nil, fmt.Errorf("relay: %w: missing region names", ErrMalformedDiscovery)
	}
	addrs, ok := resp.Payload.GetStringArray(protocol.KeyRegionAddrs)
	if !ok {
		return nil, fmt.Errorf("relay: %w: missing region addresses", ErrMalformedDiscovery)
	}
	if len(names) != len(addrs) {
		return nil, fmt.Errorf("relay: %w: %d names vs %d addresses", ErrMalformedDiscovery, len(names), len(addrs))
	}

	regions := make([]Region, len(names))
	for i := range names {
		regions[i] = Region{ShortName: names[i], Address: addrs[i]}
	}
	return regions, nil
}

func logPingResult(resp *protocol.OperationResponse) {
	serverTime, hasServer := resp.Payload.GetInt(protocol.KeyPingServerTime)
	clientTime, hasClient := resp.Payload.GetInt(protocol.KeyPingClientTime)
	if !hasServer || !hasClient {
		log.Debug("ping response missing timestamps")
		return
	}
	rtt := millisSinceStart() - clientTime
	log.Debugf("relay ping rtt=%dms server_timestamp=%d", rtt, serverTime)
}
