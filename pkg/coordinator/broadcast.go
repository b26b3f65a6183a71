package coordinator

import (
	"strconv"
	"time"

	"github.com/ocupoint/relaysync/pkg/diag"
	"github.com/ocupoint/relaysync/pkg/metrics"
)

// DefaultRegion is the target region used when a SEND_PLAY or
// REQUEST_PING message omits one.
const DefaultRegion = "us"

// regionPingWait is how long the broadcast engine waits for every
// participant to report its region-ping snapshot before proceeding
// with whatever data is available.
const regionPingWait = 2 * time.Second

// regionPingPollInterval is the polling granularity while waiting.
const regionPingPollInterval = 50 * time.Millisecond

// broadcastPlay runs the five-step broadcast engine of §4.9: request
// region pings from everyone, wait (bounded) for replies, compute the
// highest combined RTT, derive a rendezvous timestamp with 50%
// headroom, and send PLAY to every currently-registered participant.
func (c *Coordinator) broadcastPlay(region, payload string) {
	participants := c.registry.snapshot()

	c.requestRegionPingsFrom(participants, region)
	c.waitForRegionPings(participants)

	highestServer := highestSmoothedRTT(participants)
	highestRegion := highestRegionLatency(participants, region)
	h := uint64(highestServer.Milliseconds()) + highestRegion

	now := uint64(time.Now().UnixMilli())
	targetTS := now + h + h/2

	log.Infof("broadcasting play for region %s: highest_rtt=%dms target_ts=%d", region, h, targetTS)
	metrics.BroadcastsTotal.WithLabelValues(region).Inc()
	metrics.BroadcastHighestRTTMS.WithLabelValues(region).Set(float64(h))

	msg := formatPlayMessage(targetTS, payload, h)
	sendTo := c.registry.snapshot()
	for _, p := range sendTo {
		if err := p.writeText(msg); err != nil {
			log.Warnf("send play message to %s: %v", p.addr, err)
		}
	}

	if c.recorder != nil {
		event := diag.BroadcastEvent{
			TimestampMS:       int64(now),
			Region:            region,
			Payload:           payload,
			ParticipantCount:  int32(len(sendTo)),
			HighestServerMS:   highestServer.Milliseconds(),
			HighestRegionMS:   int64(highestRegion),
			TargetTimestampMS: int64(targetTS),
		}
		if err := c.recorder.RecordBroadcast(event); err != nil {
			log.Warnf("record broadcast event: %v", err)
		}
	}
}

func (c *Coordinator) requestRegionPingsFrom(participants []*Participant, region string) {
	msg := "REQUEST_PING:" + region
	for _, p := range participants {
		p.setAwaitingRegionPings(true)
		if err := p.writeText(msg); err != nil {
			log.Warnf("request region ping from %s: %v", p.addr, err)
		}
	}
}

func (c *Coordinator) waitForRegionPings(participants []*Participant) {
	deadline := time.Now().Add(regionPingWait)
	for time.Now().Before(deadline) {
		allDone := true
		for _, p := range participants {
			if p.isAwaitingRegionPings() {
				allDone = false
				break
			}
		}
		if allDone {
			return
		}
		time.Sleep(regionPingPollInterval)
	}
	log.Warn("not all participants responded with region pings within the timeout period")
	metrics.BroadcastWaitTimeoutsTotal.Inc()
}

func highestSmoothedRTT(participants []*Participant) time.Duration {
	var highest time.Duration
	for _, p := range participants {
		if rtt := p.SmoothedRTT(); rtt > highest {
			highest = rtt
		}
	}
	return highest
}

func highestRegionLatency(participants []*Participant, region string) uint64 {
	var highest uint64
	for _, p := range participants {
		if l := p.highestRegionLatency(region); l > highest {
			highest = l
		}
	}
	return highest
}

func formatPlayMessage(targetTS uint64, payload string, advertisedRTT uint64) string {
	return "PLAY:" + strconv.FormatUint(targetTS, 10) + ":" + payload + ":" + strconv.FormatUint(advertisedRTT, 10)
}
