package coordinator

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

func dialCoordinator(t *testing.T, c *Coordinator) (*websocket.Conn, func()) {
	t.Helper()
	srv := httptest.NewServer(c)
	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	return conn, func() {
		conn.Close()
		srv.Close()
	}
}

func TestParticipantCountTracksConnections(t *testing.T) {
	c := New()
	if c.ParticipantCount() != 0 {
		t.Fatalf("ParticipantCount = %d, want 0", c.ParticipantCount())
	}

	conn, cleanup := dialCoordinator(t, c)
	defer cleanup()

	deadline := time.Now().Add(time.Second)
	for c.ParticipantCount() == 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if c.ParticipantCount() != 1 {
		t.Fatalf("ParticipantCount after connect = %d, want 1", c.ParticipantCount())
	}

	conn.Close()
	deadline = time.Now().Add(time.Second)
	for c.ParticipantCount() != 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if c.ParticipantCount() != 0 {
		t.Fatalf("ParticipantCount after disconnect = %d, want 0", c.ParticipantCount())
	}
}

func TestUnrecognizedTextIsEchoed(t *testing.T) {
	c := New()
	conn, cleanup := dialCoordinator(t, c)
	defer cleanup()

	if err := conn.WriteMessage(websocket.TextMessage, []byte("hello there")); err != nil {
		t.Fatalf("write: %v", err)
	}
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if string(data) != "Echo: hello there" {
		t.Errorf("got %q, want echoed text", string(data))
	}
}

func TestSendPlayTriggersBroadcastToSender(t *testing.T) {
	c := New()
	conn, cleanup := dialCoordinator(t, c)
	defer cleanup()

	if err := conn.WriteMessage(websocket.TextMessage, []byte("SEND_PLAY:hello")); err != nil {
		t.Fatalf("write: %v", err)
	}

	// The sender is itself a participant, so it receives REQUEST_PING,
	// then (after the 2s wait expires since it never answers) PLAY, then
	// the confirmation text.
	sawRequestPing, sawPlay, sawConfirmation := false, false, false
	conn.SetReadDeadline(time.Now().Add(4 * time.Second))
	for i := 0; i < 3; i++ {
		_, data, err := conn.ReadMessage()
		if err != nil {
			t.Fatalf("read %d: %v", i, err)
		}
		text := string(data)
		switch {
		case strings.HasPrefix(text, "REQUEST_PING:"):
			sawRequestPing = true
		case strings.HasPrefix(text, "PLAY:"):
			sawPlay = true
			if !strings.Contains(text, ":hello:") {
				t.Errorf("play message = %q, want payload hello", text)
			}
		case strings.Contains(text, "sent to all clients"):
			sawConfirmation = true
		}
	}
	if !sawRequestPing || !sawPlay || !sawConfirmation {
		t.Errorf("saw request_ping=%v play=%v confirmation=%v", sawRequestPing, sawPlay, sawConfirmation)
	}
}

func TestRequestPingBroadcastsToAllParticipants(t *testing.T) {
	c := New()
	conn, cleanup := dialCoordinator(t, c)
	defer cleanup()

	if err := conn.WriteMessage(websocket.TextMessage, []byte("REQUEST_PING:eu")); err != nil {
		t.Fatalf("write: %v", err)
	}
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if string(data) != "REQUEST_PING:eu" {
		t.Errorf("got %q, want REQUEST_PING:eu echoed back to the requester as a participant", string(data))
	}
}

func TestPhotonPingsAcknowledged(t *testing.T) {
	c := New()
	conn, cleanup := dialCoordinator(t, c)
	defer cleanup()

	body := `{"regions":[{"region":"us","latency":42,"last_updated":1000}]}`
	if err := conn.WriteMessage(websocket.TextMessage, []byte("PHOTON_PINGS:"+body)); err != nil {
		t.Fatalf("write: %v", err)
	}
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if string(data) != "Photon ping data received" {
		t.Errorf("got %q, want acknowledgement", string(data))
	}
}

func TestBinaryFramesAreEchoed(t *testing.T) {
	c := New()
	conn, cleanup := dialCoordinator(t, c)
	defer cleanup()

	payload := []byte{1, 2, 3, 4}
	if err := conn.WriteMessage(websocket.BinaryMessage, payload); err != nil {
		t.Fatalf("write: %v", err)
	}
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	msgType, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if msgType != websocket.BinaryMessage || string(data) != string(payload) {
		t.Errorf("got type=%d data=%v, want echoed binary", msgType, data)
	}
}

func TestHeartbeatPingAndPongUpdateSmoothedRTT(t *testing.T) {
	c := New()
	conn, cleanup := dialCoordinator(t, c)
	defer cleanup()

	conn.SetPingHandler(func(appData string) error {
		return conn.WriteControl(websocket.PongMessage, []byte(appData), time.Now().Add(time.Second))
	})

	// Drive the read loop so the ping handler fires; the heartbeat
	// interval is 2s so allow enough time for at least one round. A read
	// that hits its deadline fails every later read on the same
	// connection, so one deadline covers the whole window.
	done := make(chan struct{})
	go func() {
		defer close(done)
		conn.SetReadDeadline(time.Now().Add(3 * time.Second))
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
	<-done

	participants := c.registry.snapshot()
	if len(participants) != 1 {
		t.Fatalf("got %d participants, want 1", len(participants))
	}
	participants[0].mu.Lock()
	samples := len(participants[0].heartbeats)
	participants[0].mu.Unlock()
	if samples == 0 {
		t.Errorf("no heartbeat sample recorded after a ping/pong round")
	}
	if participants[0].SmoothedRTT() < 0 {
		t.Errorf("SmoothedRTT = %v, want non-negative", participants[0].SmoothedRTT())
	}
}
