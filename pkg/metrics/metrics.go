// Package metrics exposes the coordinator's and node's runtime counters
// as Prometheus metrics, served over /metrics via promhttp.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// ParticipantsConnected tracks how many nodes are currently connected
// to a coordinator.
var ParticipantsConnected = promauto.NewGauge(prometheus.GaugeOpts{
	Namespace: "relaysync",
	Subsystem: "coordinator",
	Name:      "participants_connected",
	Help:      "Number of nodes currently connected to the coordinator.",
})

// SmoothedRTT reports each participant's current smoothed coordinator
// round-trip time, labeled by peer address.
var SmoothedRTT = promauto.NewGaugeVec(prometheus.GaugeOpts{
	Namespace: "relaysync",
	Subsystem: "coordinator",
	Name:      "smoothed_rtt_ms",
	Help:      "Smoothed coordinator round-trip time per participant, in milliseconds.",
}, []string{"peer_addr"})

// RegionLatency reports the most recently cached relay-region latency,
// labeled by region short name. Populated by nodes, from their
// pingcache refreshes and on-demand probes; the coordinator does not
// set it.
var RegionLatency = promauto.NewGaugeVec(prometheus.GaugeOpts{
	Namespace: "relaysync",
	Subsystem: "relay",
	Name:      "region_latency_ms",
	Help:      "Most recently measured relay-region UDP probe latency, in milliseconds.",
}, []string{"region"})

// BroadcastsTotal counts completed broadcast-engine runs, labeled by
// target region.
var BroadcastsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "relaysync",
	Subsystem: "coordinator",
	Name:      "broadcasts_total",
	Help:      "Total number of play broadcasts initiated, by target region.",
}, []string{"region"})

// BroadcastHighestRTTMS records the highest combined RTT (server +
// region) used to compute the most recent broadcast's headroom, labeled
// by target region.
var BroadcastHighestRTTMS = promauto.NewGaugeVec(prometheus.GaugeOpts{
	Namespace: "relaysync",
	Subsystem: "coordinator",
	Name:      "broadcast_highest_rtt_ms",
	Help:      "Highest combined RTT used for the most recent broadcast's target timestamp, by region.",
}, []string{"region"})

// ProbeFailuresTotal counts failed or mismatched UDP region probes.
var ProbeFailuresTotal = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: "relaysync",
	Subsystem: "relay",
	Name:      "probe_failures_total",
	Help:      "Total number of UDP region probes that failed or mismatched.",
})

// BroadcastWaitTimeoutsTotal counts broadcasts that proceeded without
// every participant reporting its region-ping snapshot within
// regionPingWait.
var BroadcastWaitTimeoutsTotal = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: "relaysync",
	Subsystem: "coordinator",
	Name:      "broadcast_wait_timeouts_total",
	Help:      "Total number of broadcasts that proceeded before every participant reported region pings.",
})
