package trace

// TraceSummary aggregates statistics from a SimulationTrace.
type TraceSummary struct {
	TotalInjections    int
	ResponseInjections int
	TotalDecisions     int
	MinimalDecisions   int
	MinimalFraction    float64
	HopDistribution    map[string]int // misroute tag → count of decisions
	PortTypeCounts     map[string]int // port type → count of decisions
	UniqueValiantNodes int
	MaxPathLength      int // most routing decisions taken by a single packet
}

// Summarize computes aggregate statistics from a SimulationTrace.
// Safe for nil or empty traces (returns zero-value fields).
func Summarize(st *SimulationTrace) *TraceSummary {
	summary := &TraceSummary{
		HopDistribution: make(map[string]int),
		PortTypeCounts:  make(map[string]int),
	}
	if st == nil {
		return summary
	}

	summary.TotalInjections = len(st.Injections)
	for _, in := range st.Injections {
		if in.Response {
			summary.ResponseInjections++
		}
	}

	summary.TotalDecisions = len(st.Routings)
	valiant := make(map[int]bool)
	perPacket := make(map[int64]int)
	for _, r := range st.Routings {
		summary.HopDistribution[r.Hop]++
		summary.PortTypeCounts[r.PortType]++
		if r.Minimal {
			summary.MinimalDecisions++
		}
		if r.ValNode >= 0 {
			valiant[r.ValNode] = true
		}
		perPacket[r.PacketID]++
	}
	for _, n := range perPacket {
		if n > summary.MaxPathLength {
			summary.MaxPathLength = n
		}
	}
	if summary.TotalDecisions > 0 {
		summary.MinimalFraction = float64(summary.MinimalDecisions) / float64(summary.TotalDecisions)
	}
	summary.UniqueValiantNodes = len(valiant)

	return summary
}
