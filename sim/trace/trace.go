package trace

import "golang.org/x/exp/slices"

// TraceLevel controls the verbosity of decision tracing.
type TraceLevel string

const (
	// TraceLevelNone disables tracing (zero overhead).
	TraceLevelNone TraceLevel = "none"
	// TraceLevelDecisions captures every injection and head-flit routing decision.
	TraceLevelDecisions TraceLevel = "decisions"
)

// validTraceLevels maps accepted trace level strings.
var validTraceLevels = map[TraceLevel]bool{
	TraceLevelNone:      true,
	TraceLevelDecisions: true,
	"":                  true, // empty defaults to none
}

// IsValidTraceLevel returns true if the given level string is a recognized trace level.
func IsValidTraceLevel(level string) bool {
	return validTraceLevels[TraceLevel(level)]
}

// TraceConfig controls trace collection behavior.
type TraceConfig struct {
	Level TraceLevel
}

// Enabled reports whether decisions are recorded.
func (c TraceConfig) Enabled() bool {
	return c.Level == TraceLevelDecisions
}

// SimulationTrace collects decision records during a network simulation.
type SimulationTrace struct {
	Config     TraceConfig
	Injections []InjectionRecord
	Routings   []RoutingRecord
}

// NewSimulationTrace creates a SimulationTrace ready for recording.
func NewSimulationTrace(config TraceConfig) *SimulationTrace {
	return &SimulationTrace{
		Config:     config,
		Injections: make([]InjectionRecord, 0),
		Routings:   make([]RoutingRecord, 0),
	}
}

// RecordInjection appends an injection record.
func (st *SimulationTrace) RecordInjection(record InjectionRecord) {
	st.Injections = append(st.Injections, record)
}

// RecordRouting appends a routing decision record.
func (st *SimulationTrace) RecordRouting(record RoutingRecord) {
	st.Routings = append(st.Routings, record)
}

// PacketPath returns the routing records of one packet in clock order.
func (st *SimulationTrace) PacketPath(packetID int64) []RoutingRecord {
	var path []RoutingRecord
	for _, r := range st.Routings {
		if r.PacketID == packetID {
			path = append(path, r)
		}
	}
	slices.SortStableFunc(path, func(a, b RoutingRecord) int {
		switch {
		case a.Clock < b.Clock:
			return -1
		case a.Clock > b.Clock:
			return 1
		}
		return 0
	})
	return path
}
