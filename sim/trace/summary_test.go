package trace

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSummarize_EmptyTrace_ZeroValues(t *testing.T) {
	for name, st := range map[string]*SimulationTrace{
		"nil":   nil,
		"empty": NewSimulationTrace(TraceConfig{Level: TraceLevelDecisions}),
	} {
		t.Run(name, func(t *testing.T) {
			s := Summarize(st)
			assert.Zero(t, s.TotalDecisions)
			assert.Zero(t, s.TotalInjections)
			assert.Zero(t, s.MinimalFraction)
			assert.NotNil(t, s.HopDistribution)
			assert.Empty(t, s.HopDistribution)
		})
	}
}

func TestSummarize_PopulatedTrace_CorrectCounts(t *testing.T) {
	// GIVEN one Valiant packet routed over three switches and one minimal packet
	st := NewSimulationTrace(TraceConfig{Level: TraceLevelDecisions})
	st.RecordInjection(InjectionRecord{PacketID: 1})
	st.RecordInjection(InjectionRecord{PacketID: 2, Response: true})
	st.RecordRouting(RoutingRecord{PacketID: 1, PortType: "local", Hop: "valiant", ValNode: 9})
	st.RecordRouting(RoutingRecord{PacketID: 1, PortType: "global", Hop: "none", ValNode: 9, Minimal: true})
	st.RecordRouting(RoutingRecord{PacketID: 1, PortType: "node", Hop: "none", ValNode: 9, Minimal: true})
	st.RecordRouting(RoutingRecord{PacketID: 2, PortType: "node", Hop: "none", ValNode: -1, Minimal: true})

	// WHEN summarized
	s := Summarize(st)

	// THEN counts reflect every record
	assert.Equal(t, 2, s.TotalInjections)
	assert.Equal(t, 1, s.ResponseInjections)
	assert.Equal(t, 4, s.TotalDecisions)
	assert.Equal(t, 3, s.MinimalDecisions)
	assert.InDelta(t, 0.75, s.MinimalFraction, 1e-9)
	assert.Equal(t, map[string]int{"valiant": 1, "none": 3}, s.HopDistribution)
	assert.Equal(t, map[string]int{"local": 1, "global": 1, "node": 2}, s.PortTypeCounts)
	assert.Equal(t, 1, s.UniqueValiantNodes)
	assert.Equal(t, 3, s.MaxPathLength)
}
