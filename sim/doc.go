// Package sim provides a cycle-accurate simulator of dragonfly interconnection
// networks.
//
// # Reading Guide
//
// Start with these files to understand the simulation kernel:
//   - topology.go: groups, switches, port numbering and minimal paths
//   - flit.go: the flit and the routing state it carries
//   - switch.go: one router cycle (deliver, route, arbitrate, traverse)
//   - network.go: the global stepper, node endpoints and the traffic boundary
//
// # Architecture
//
// A Network owns every Switch and steps them once per cycle. Switches share no
// mutable state: flits, credits and load information cross between them as
// timestamped Messages in each receiver's Inbox. Flits live in a FlitArena and
// travel by handle.
//
// Sub-packages:
//   - sim/traffic/: synthetic traffic generator (patterns, injection processes, reactive traffic)
//   - sim/trace/: routing decision trace and its summary
//
// # Key Interfaces
//
// The policy families are small interfaces built from configuration names by
// factories that panic on unknown names:
//   - RoutingAlgorithm: minimal, valiant, ugal, pb, par (routing*.go, misroute.go)
//   - VCManager: fixed, opportunistic, offset, flexible, table (vcm.go)
//   - Arbiter: lrs, rr, age, priority-lrs, priority-rr (arbiter.go)
//
// Routing decisions read the switch only through PortView, CongestionSignals
// (contention.go) and GlobalLinkState (piggyback.go).
//
// The traffic boundary is TrafficSource (implemented by traffic.Generator) and
// Injector (implemented by Network).
package sim
