// Tracks network-wide performance metrics: offered and accepted load,
// latency distributions, path lengths and misrouting activity.

package sim

import "fmt"

// Metrics aggregates statistics over the measured part of a run (after warmup)
// for final reporting.
type Metrics struct {
	Cycles int64 // measured cycles
	Nodes  int

	InjectedFlits   int64
	InjectedPackets int64
	ConsumedFlits   int64
	ConsumedPackets int64
	ConsumedPhits   int64
	ResponsePackets int64 // consumed packets that were responses

	PacketLatencies  []int64 // generation → tail consumption, per packet
	NetworkLatencies []int64 // head injection → tail consumption, per packet

	LocalHops  int64 // summed over consumed packets
	GlobalHops int64

	Hops      map[string]int64 // committed head-flit hops by misroute tag
	LinkPhits map[string]int64 // phits sent by link type
	Petitions int64
	Grants    int64
}

// NewMetrics returns empty metrics for a network of nodes.
func NewMetrics(nodes int) *Metrics {
	return &Metrics{
		Nodes:     nodes,
		Hops:      make(map[string]int64),
		LinkPhits: make(map[string]int64),
	}
}

// RecordInjection counts a flit accepted by the network.
func (m *Metrics) RecordInjection(f *Flit) {
	m.InjectedFlits++
	if f.Head {
		m.InjectedPackets++
	}
}

// RecordConsumption counts a flit delivered to its destination node at cycle now.
func (m *Metrics) RecordConsumption(f *Flit, now int64) {
	m.ConsumedFlits++
	m.ConsumedPhits += int64(f.Length)
	if !f.Tail {
		return
	}
	m.ConsumedPackets++
	if f.Response {
		m.ResponsePackets++
	}
	m.PacketLatencies = append(m.PacketLatencies, now-f.GenerationCycle)
	m.NetworkLatencies = append(m.NetworkLatencies, now-f.InjectionCycle)
	m.LocalHops += int64(f.Hops.Local)
	m.GlobalHops += int64(f.Hops.Global)
}

// addSwitchStats accumulates the difference between a switch's counters and
// its warmup snapshot.
func (m *Metrics) addSwitchStats(cur, base SwitchStats) {
	for t := range cur.LinkPhits {
		m.LinkPhits[PortType(t).String()] += cur.LinkPhits[t] - base.LinkPhits[t]
	}
	for h := range cur.Hops {
		m.Hops[MisrouteType(h).String()] += cur.Hops[h] - base.Hops[h]
	}
	m.Petitions += cur.Petitions - base.Petitions
	m.Grants += cur.Grants - base.Grants
}

// AcceptedLoad returns consumed phits per node per measured cycle.
func (m *Metrics) AcceptedLoad() float64 {
	if m.Cycles == 0 || m.Nodes == 0 {
		return 0
	}
	return float64(m.ConsumedPhits) / float64(m.Cycles) / float64(m.Nodes)
}

// MisrouteFraction returns the share of committed head hops that were misroutes.
func (m *Metrics) MisrouteFraction() float64 {
	var total, mis int64
	for tag, n := range m.Hops {
		total += n
		if tag != MisrouteNone.String() {
			mis += n
		}
	}
	if total == 0 {
		return 0
	}
	return float64(mis) / float64(total)
}

// MetricsSummary is the serialized form of Metrics.
type MetricsSummary struct {
	Cycles            int64            `json:"cycles"`
	Nodes             int              `json:"nodes"`
	InjectedPackets   int64            `json:"injected_packets"`
	ConsumedPackets   int64            `json:"consumed_packets"`
	ResponsePackets   int64            `json:"response_packets"`
	AcceptedLoad      float64          `json:"accepted_load"`
	LatencyMean       float64          `json:"latency_mean"`
	LatencyP50        float64          `json:"latency_p50"`
	LatencyP99        float64          `json:"latency_p99"`
	LatencyMax        float64          `json:"latency_max"`
	NetworkLatency    float64          `json:"network_latency_mean"`
	AverageLocalHops  float64          `json:"average_local_hops"`
	AverageGlobalHops float64          `json:"average_global_hops"`
	MisrouteFraction  float64          `json:"misroute_fraction"`
	Hops              map[string]int64 `json:"hops"`
	LinkPhits         map[string]int64 `json:"link_phits"`
}

// Summary derives the reported figures.
func (m *Metrics) Summary() MetricsSummary {
	s := MetricsSummary{
		Cycles:           m.Cycles,
		Nodes:            m.Nodes,
		InjectedPackets:  m.InjectedPackets,
		ConsumedPackets:  m.ConsumedPackets,
		ResponsePackets:  m.ResponsePackets,
		AcceptedLoad:     m.AcceptedLoad(),
		LatencyMean:      CalculateMean(m.PacketLatencies),
		LatencyP50:       CalculatePercentile(m.PacketLatencies, 50),
		LatencyP99:       CalculatePercentile(m.PacketLatencies, 99),
		LatencyMax:       CalculatePercentile(m.PacketLatencies, 100),
		NetworkLatency:   CalculateMean(m.NetworkLatencies),
		MisrouteFraction: m.MisrouteFraction(),
		Hops:             m.Hops,
		LinkPhits:        m.LinkPhits,
	}
	if m.ConsumedPackets > 0 {
		s.AverageLocalHops = float64(m.LocalHops) / float64(m.ConsumedPackets)
		s.AverageGlobalHops = float64(m.GlobalHops) / float64(m.ConsumedPackets)
	}
	return s
}

// Print displays aggregated metrics at the end of the simulation.
func (m *Metrics) Print() {
	s := m.Summary()
	fmt.Println("=== Simulation Metrics ===")
	fmt.Printf("Measured Cycles      : %d\n", s.Cycles)
	fmt.Printf("Injected Packets     : %d\n", s.InjectedPackets)
	fmt.Printf("Consumed Packets     : %d\n", s.ConsumedPackets)
	fmt.Printf("Accepted Load        : %.4f phits/node/cycle\n", s.AcceptedLoad)
	if s.ConsumedPackets > 0 {
		fmt.Printf("Average Latency      : %.2f cycles\n", s.LatencyMean)
		fmt.Printf("P50 / P99 / Max      : %.0f / %.0f / %.0f cycles\n", s.LatencyP50, s.LatencyP99, s.LatencyMax)
		fmt.Printf("Network Latency      : %.2f cycles\n", s.NetworkLatency)
		fmt.Printf("Average Hops (l/g)   : %.2f / %.2f\n", s.AverageLocalHops, s.AverageGlobalHops)
	}
	fmt.Printf("Misrouted Hops       : %.2f%%\n", 100*s.MisrouteFraction)
	for _, tag := range misrouteNames[1:] {
		if n := s.Hops[tag]; n > 0 {
			fmt.Printf("  %-19s: %d\n", tag, n)
		}
	}
	for _, t := range []PortType{PortNode, PortLocal, PortGlobal} {
		fmt.Printf("Phits on %-6s links : %d\n", t, s.LinkPhits[t.String()])
	}
}
