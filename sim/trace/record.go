// Package trace provides decision-trace recording for routing analysis.
// This package has no dependencies on sim/: it stores pure data types.
package trace

// InjectionRecord captures a packet accepted into the network.
type InjectionRecord struct {
	PacketID   int64
	Clock      int64
	SourceNode int
	DestNode   int
	Response   bool
}

// RoutingRecord captures one committed head-flit routing decision.
type RoutingRecord struct {
	PacketID int64
	Clock    int64
	Switch   int
	InPort   int
	OutPort  int
	OutVC    int
	PortType string // "node", "local" or "global"
	Hop      string // misroute tag of the hop, "none" when minimal
	ValNode  int    // Valiant switch carried by the packet, -1 when none
	Minimal  bool
}
