// Package relay implements the relay service's discovery protocol (a
// WebSocket carrying v18 framed binary messages, per
// pkg/protocol) and its UDP latency-probe protocol.
package relay

// Region is a named relay-service datacenter. Identity is ShortName;
// Address is the region's master-server URL as reported by discovery.
// Immutable once discovered for the lifetime of a relay session.
type Region struct {
	ShortName string
	Address   string
}
