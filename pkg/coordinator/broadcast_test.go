package coordinator

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/ocupoint/relaysync/pkg/metrics"
)

func TestParseSendPlayWithRegion(t *testing.T) {
	region, payload := parseSendPlay("SEND_PLAY:eu:hello world")
	if region != "eu" || payload != "hello world" {
		t.Errorf("got region=%q payload=%q", region, payload)
	}
}

func TestParseSendPlayWithoutRegionDefaultsToUS(t *testing.T) {
	region, payload := parseSendPlay("SEND_PLAY:hello")
	if region != DefaultRegion || payload != "hello" {
		t.Errorf("got region=%q payload=%q, want region=%s", region, payload, DefaultRegion)
	}
}

func TestParseSendPlayPayloadCanContainColons(t *testing.T) {
	region, payload := parseSendPlay("SEND_PLAY:eu:a:b:c")
	if region != "eu" || payload != "a:b:c" {
		t.Errorf("got region=%q payload=%q", region, payload)
	}
}

func TestFormatPlayMessage(t *testing.T) {
	got := formatPlayMessage(1000, "hello", 42)
	want := "PLAY:1000:hello:42"
	if got != want {
		t.Errorf("formatPlayMessage = %q, want %q", got, want)
	}
}

func TestHighestSmoothedRTTAmongParticipants(t *testing.T) {
	a := &Participant{}
	a.addHeartbeat(time.Now(), 10*time.Millisecond)
	b := &Participant{}
	b.addHeartbeat(time.Now(), 30*time.Millisecond)

	if got := highestSmoothedRTT([]*Participant{a, b}); got != 30*time.Millisecond {
		t.Errorf("highestSmoothedRTT = %v, want 30ms", got)
	}
}

func TestHighestSmoothedRTTEmptySetIsZero(t *testing.T) {
	if got := highestSmoothedRTT(nil); got != 0 {
		t.Errorf("highestSmoothedRTT(nil) = %v, want 0", got)
	}
}

func TestWaitForRegionPingsIncrementsTimeoutCounterOnTimeout(t *testing.T) {
	before := testutil.ToFloat64(metrics.BroadcastWaitTimeoutsTotal)

	p := &Participant{}
	p.setAwaitingRegionPings(true)
	c := New()

	c.waitForRegionPings([]*Participant{p})

	after := testutil.ToFloat64(metrics.BroadcastWaitTimeoutsTotal)
	if after != before+1 {
		t.Errorf("BroadcastWaitTimeoutsTotal = %v, want %v", after, before+1)
	}
}

func TestWaitForRegionPingsReturnsEarlyWithoutTimeout(t *testing.T) {
	before := testutil.ToFloat64(metrics.BroadcastWaitTimeoutsTotal)

	p := &Participant{}
	p.setAwaitingRegionPings(false)
	c := New()

	start := time.Now()
	c.waitForRegionPings([]*Participant{p})
	if elapsed := time.Since(start); elapsed >= regionPingWait {
		t.Errorf("waitForRegionPings took %v, want well under %v when already done", elapsed, regionPingWait)
	}

	after := testutil.ToFloat64(metrics.BroadcastWaitTimeoutsTotal)
	if after != before {
		t.Errorf("BroadcastWaitTimeoutsTotal incremented on non-timeout path: %v -> %v", before, after)
	}
}

func TestHighestRegionLatencyAcrossParticipants(t *testing.T) {
	a := &Participant{}
	a.setRegionPings(nil)
	b := &Participant{}

	if got := highestRegionLatency([]*Participant{a, b}, "us"); got != 0 {
		t.Errorf("highestRegionLatency = %d, want 0", got)
	}
}
