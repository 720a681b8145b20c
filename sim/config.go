package sim

import (
	"bytes"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// TopologyConfig groups the dragonfly dimensions.
// The number of groups is derived: SwitchesPerGroup*GlobalLinksPerSwitch + 1.
type TopologyConfig struct {
	NodesPerSwitch       int `yaml:"nodes_per_switch"`        // p: injection/consumption ports per switch
	SwitchesPerGroup     int `yaml:"switches_per_group"`      // a: switches fully connected inside a group
	GlobalLinksPerSwitch int `yaml:"global_links_per_switch"` // h: global ports per switch
}

// ChannelConfig groups buffer, VC and link parameters.
// Buffer sizes and flit sizes are in phits; latencies are in cycles.
type ChannelConfig struct {
	LocalVCs          int    `yaml:"local_vcs"`
	GlobalVCs         int    `yaml:"global_vcs"`
	InjectionVCs      int    `yaml:"injection_vcs"`
	CoSLevels         int    `yaml:"cos_levels"`
	FlitSize          int    `yaml:"flit_size"`   // phits per flit
	PacketSize        int    `yaml:"packet_size"` // flits per packet
	LocalBuffer       int    `yaml:"local_buffer"`
	GlobalBuffer      int    `yaml:"global_buffer"`
	InjectionBuffer   int    `yaml:"injection_buffer"`
	OutputBuffer      int    `yaml:"output_buffer"`
	ConsumptionBuffer int    `yaml:"consumption_buffer"`
	LocalLatency      int64  `yaml:"local_latency"`
	GlobalLatency     int64  `yaml:"global_latency"`
	InjectionLatency  int64  `yaml:"injection_latency"`
	CrossbarLatency   int64  `yaml:"crossbar_latency"`
	Speedup           int    `yaml:"speedup"`
	SwitchType        string `yaml:"switch_type"` // "iq" (default) or "ioq"
}

// RoutingConfig selects the routing algorithm, misrouting policy and VC strategy.
type RoutingConfig struct {
	Algorithm         string  `yaml:"algorithm"`          // minimal, valiant, ugal, pb, par
	GlobalMisrouting  string  `yaml:"global_misrouting"`  // crg, nrg, mm
	VCStrategy        string  `yaml:"vc_strategy"`        // fixed, flexible, table, opportunistic, offset
	VCPolicy          string  `yaml:"vc_policy"`          // lowest, highest, lowest-occupancy, random
	MisroutingTrigger string  `yaml:"misrouting_trigger"` // credits, ca, filtered, hybrid, dual
	UGALThreshold     int     `yaml:"ugal_threshold"`     // phits·hops bias toward the minimal path
	PBAny             bool    `yaml:"pb_any"`             // pb: opportunistic local misroute at injection
	PBPeriod          int64   `yaml:"pb_period"`          // cycles between piggyback broadcasts
	PBFactor          float64 `yaml:"pb_factor"`          // saturated if q > factor·mean(q)
	PBThreshold       int     `yaml:"pb_threshold"`       // and q ≥ threshold (phits)
	Reactive          bool    `yaml:"reactive"`           // split VCs into request/response windows
}

// ArbiterConfig selects the arbitration policy shared by all arbiters of a switch.
type ArbiterConfig struct {
	Policy string `yaml:"policy"` // lrs, rr, age, priority-lrs, priority-rr
}

// CongestionConfig groups contention-aware thresholds and flow-control reserves.
type CongestionConfig struct {
	LocalThreshold        int     `yaml:"local_threshold"`  // phits at an output port
	GlobalThreshold       int     `yaml:"global_threshold"` // packets summed over a group column
	EWMAAlpha             float64 `yaml:"ewma_alpha"`       // weight of the previous filtered value
	GossipPeriod          int64   `yaml:"gossip_period"`
	LinksPerExchange      int     `yaml:"links_per_exchange"` // 0 = all group peers every round
	BaseCongestionControl bool    `yaml:"base_congestion_control"`
	Bubble                int     `yaml:"bubble"` // extra flits of credit required to inject
}

// SimulationConfig groups run-length and execution parameters.
type SimulationConfig struct {
	Seed    int64  `yaml:"seed"`
	Cycles  int64  `yaml:"cycles"`
	Warmup  int64  `yaml:"warmup"`
	Workers int    `yaml:"workers"` // >1 steps switches in parallel
	Trace   string `yaml:"trace"`   // "none" or "decisions"
}

// TrafficConfig parameterizes the synthetic generator in sim/traffic.
type TrafficConfig struct {
	Pattern           string  `yaml:"pattern"` // uniform, adversarial, adversarial-local, permutation
	Process           string  `yaml:"process"` // bernoulli, bursty
	Load              float64 `yaml:"load"`    // offered phits per node per cycle, in [0,1]
	AdversarialOffset int     `yaml:"adversarial_offset"`
	BurstLength       int     `yaml:"burst_length"` // mean packets per burst (bursty)
}

// Config is the immutable run configuration. It is built once (DefaultConfig,
// LoadConfig, CLI overrides), validated, and then shared by pointer with every
// component. Nothing mutates it after Validate.
type Config struct {
	Topology   TopologyConfig   `yaml:"topology"`
	Channels   ChannelConfig    `yaml:"channels"`
	Routing    RoutingConfig    `yaml:"routing"`
	Arbiter    ArbiterConfig    `yaml:"arbiter"`
	Congestion CongestionConfig `yaml:"congestion"`
	Simulation SimulationConfig `yaml:"simulation"`
	Traffic    TrafficConfig    `yaml:"traffic"`
}

// DefaultConfig returns a small balanced dragonfly (p=2, a=4, h=2, 9 groups)
// routed minimally with fixed VCs.
func DefaultConfig() Config {
	return Config{
		Topology: TopologyConfig{NodesPerSwitch: 2, SwitchesPerGroup: 4, GlobalLinksPerSwitch: 2},
		Channels: ChannelConfig{
			LocalVCs: 4, GlobalVCs: 2, InjectionVCs: 1, CoSLevels: 1,
			FlitSize: 1, PacketSize: 8,
			LocalBuffer: 32, GlobalBuffer: 256, InjectionBuffer: 32, OutputBuffer: 32, ConsumptionBuffer: 32,
			LocalLatency: 10, GlobalLatency: 100, InjectionLatency: 1, CrossbarLatency: 1,
			Speedup: 1, SwitchType: "iq",
		},
		Routing: RoutingConfig{
			Algorithm: "minimal", GlobalMisrouting: "crg", VCStrategy: "fixed", VCPolicy: "lowest",
			MisroutingTrigger: "credits", PBPeriod: 10, PBFactor: 2.0, PBThreshold: 16,
		},
		Arbiter: ArbiterConfig{Policy: "lrs"},
		Congestion: CongestionConfig{
			LocalThreshold: 6, GlobalThreshold: 8, EWMAAlpha: 0.75,
			GossipPeriod: 100,
		},
		Simulation: SimulationConfig{Seed: 42, Cycles: 10000, Warmup: 1000, Workers: 1, Trace: "none"},
		Traffic:    TrafficConfig{Pattern: "uniform", Process: "bernoulli", Load: 0.3, AdversarialOffset: 1, BurstLength: 5},
	}
}

// LoadConfig reads a YAML configuration file on top of DefaultConfig.
// Unknown keys are rejected so that typos fail loudly.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("reading network config: %w", err)
	}
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&cfg); err != nil {
		return cfg, fmt.Errorf("parsing network config: %w", err)
	}
	return cfg, nil
}

// ValidRoutingAlgorithms is the set of recognized routing algorithm names.
// Shared by Validate() and NewRoutingAlgorithm().
var ValidRoutingAlgorithms = map[string]bool{"minimal": true, "valiant": true, "ugal": true, "pb": true, "par": true}

// ValidGlobalMisrouting is the set of recognized misrouting candidate policies.
var ValidGlobalMisrouting = map[string]bool{"crg": true, "nrg": true, "mm": true}

// ValidVCStrategies is the set of recognized VC management strategies.
var ValidVCStrategies = map[string]bool{"fixed": true, "flexible": true, "table": true, "opportunistic": true, "offset": true}

// ValidVCPolicies is the set of recognized VC selection policies for flexible strategies.
var ValidVCPolicies = map[string]bool{"lowest": true, "highest": true, "lowest-occupancy": true, "random": true}

// ValidMisroutingTriggers is the set of recognized misrouting trigger names.
// "dual" is recognized so it can be rejected with a precise message.
var ValidMisroutingTriggers = map[string]bool{"credits": true, "ca": true, "filtered": true, "hybrid": true, "dual": true}

// ValidArbiterPolicies is the set of recognized arbiter policies.
var ValidArbiterPolicies = map[string]bool{"lrs": true, "rr": true, "age": true, "priority-lrs": true, "priority-rr": true}

// ValidSwitchTypes is the set of recognized switch microarchitectures.
var ValidSwitchTypes = map[string]bool{"iq": true, "ioq": true}

// ValidTrafficPatterns is the set of recognized destination patterns of sim/traffic.
var ValidTrafficPatterns = map[string]bool{"uniform": true, "adversarial": true, "adversarial-local": true, "permutation": true}

// ValidInjectionProcesses is the set of recognized injection processes of sim/traffic.
var ValidInjectionProcesses = map[string]bool{"bernoulli": true, "bursty": true}

// ValidTraceLevels is the set of recognized trace levels.
var ValidTraceLevels = map[string]bool{"": true, "none": true, "decisions": true}

// Validate checks names, ranges and cross-field constraints.
func (c *Config) Validate() error {
	t := c.Topology
	if t.NodesPerSwitch < 1 {
		return fmt.Errorf("nodes_per_switch must be >= 1, got %d", t.NodesPerSwitch)
	}
	if t.SwitchesPerGroup < 1 {
		return fmt.Errorf("switches_per_group must be >= 1, got %d", t.SwitchesPerGroup)
	}
	if t.GlobalLinksPerSwitch < 0 {
		return fmt.Errorf("global_links_per_switch must be >= 0, got %d", t.GlobalLinksPerSwitch)
	}

	ch := c.Channels
	if ch.LocalVCs < 1 || ch.GlobalVCs < 1 || ch.InjectionVCs < 1 {
		return fmt.Errorf("VC counts must be >= 1 (local=%d global=%d injection=%d)", ch.LocalVCs, ch.GlobalVCs, ch.InjectionVCs)
	}
	if ch.CoSLevels < 1 {
		return fmt.Errorf("cos_levels must be >= 1, got %d", ch.CoSLevels)
	}
	if ch.FlitSize < 1 || ch.PacketSize < 1 {
		return fmt.Errorf("flit_size and packet_size must be >= 1 (flit=%d packet=%d)", ch.FlitSize, ch.PacketSize)
	}
	for name, size := range map[string]int{
		"local_buffer": ch.LocalBuffer, "global_buffer": ch.GlobalBuffer, "injection_buffer": ch.InjectionBuffer,
		"output_buffer": ch.OutputBuffer, "consumption_buffer": ch.ConsumptionBuffer,
	} {
		if size < ch.FlitSize {
			return fmt.Errorf("%s must hold at least one flit (%d phits), got %d", name, ch.FlitSize, size)
		}
	}
	if ch.LocalLatency < 1 || ch.GlobalLatency < 1 || ch.InjectionLatency < 1 || ch.CrossbarLatency < 1 {
		return fmt.Errorf("latencies must be >= 1 cycle")
	}
	if ch.Speedup < 1 {
		return fmt.Errorf("speedup must be >= 1, got %d", ch.Speedup)
	}
	if !ValidSwitchTypes[ch.SwitchType] {
		return fmt.Errorf("unknown switch type %q", ch.SwitchType)
	}

	r := c.Routing
	if !ValidRoutingAlgorithms[r.Algorithm] {
		return fmt.Errorf("unknown routing algorithm %q", r.Algorithm)
	}
	if !ValidGlobalMisrouting[r.GlobalMisrouting] {
		return fmt.Errorf("unknown global misrouting policy %q", r.GlobalMisrouting)
	}
	if !ValidVCStrategies[r.VCStrategy] {
		return fmt.Errorf("unknown vc strategy %q", r.VCStrategy)
	}
	if !ValidVCPolicies[r.VCPolicy] {
		return fmt.Errorf("unknown vc policy %q", r.VCPolicy)
	}
	if !ValidMisroutingTriggers[r.MisroutingTrigger] {
		return fmt.Errorf("unknown misrouting trigger %q", r.MisroutingTrigger)
	}
	if r.MisroutingTrigger == "dual" {
		return fmt.Errorf("misrouting trigger %q is not supported", r.MisroutingTrigger)
	}
	if r.Reactive && (ch.LocalVCs%2 != 0 || ch.GlobalVCs%2 != 0 || ch.InjectionVCs%2 != 0) {
		return fmt.Errorf("reactive traffic needs even VC counts to split request/response windows")
	}
	if r.VCStrategy == "offset" && r.Algorithm == "par" {
		return fmt.Errorf("vc strategy %q cannot follow the in-transit detours of %q", r.VCStrategy, r.Algorithm)
	}
	if r.PBPeriod < 1 {
		return fmt.Errorf("pb_period must be >= 1, got %d", r.PBPeriod)
	}
	if r.PBFactor <= 0 {
		return fmt.Errorf("pb_factor must be positive, got %f", r.PBFactor)
	}
	if r.UGALThreshold < 0 || r.PBThreshold < 0 {
		return fmt.Errorf("thresholds must be non-negative")
	}

	if !ValidArbiterPolicies[c.Arbiter.Policy] {
		return fmt.Errorf("unknown arbiter policy %q", c.Arbiter.Policy)
	}

	cg := c.Congestion
	if cg.EWMAAlpha < 0 || cg.EWMAAlpha >= 1 {
		return fmt.Errorf("ewma_alpha must be in [0,1), got %f", cg.EWMAAlpha)
	}
	if cg.GossipPeriod < 1 {
		return fmt.Errorf("gossip_period must be >= 1, got %d", cg.GossipPeriod)
	}
	if cg.LinksPerExchange < 0 {
		return fmt.Errorf("links_per_exchange must be >= 0, got %d", cg.LinksPerExchange)
	}
	if cg.LocalThreshold < 0 || cg.GlobalThreshold < 0 || cg.Bubble < 0 {
		return fmt.Errorf("congestion thresholds and bubble must be non-negative")
	}

	s := c.Simulation
	if s.Cycles < 1 {
		return fmt.Errorf("cycles must be >= 1, got %d", s.Cycles)
	}
	if s.Warmup < 0 || s.Warmup >= s.Cycles {
		return fmt.Errorf("warmup must be in [0, cycles), got %d", s.Warmup)
	}
	if s.Workers < 1 {
		return fmt.Errorf("workers must be >= 1, got %d", s.Workers)
	}
	if !ValidTraceLevels[s.Trace] {
		return fmt.Errorf("unknown trace level %q", s.Trace)
	}

	tr := c.Traffic
	if tr.Load < 0 || tr.Load > 1 {
		return fmt.Errorf("load must be in [0,1], got %f", tr.Load)
	}
	if !ValidTrafficPatterns[tr.Pattern] {
		return fmt.Errorf("unknown traffic pattern %q", tr.Pattern)
	}
	if !ValidInjectionProcesses[tr.Process] {
		return fmt.Errorf("unknown injection process %q", tr.Process)
	}
	if tr.Pattern == "adversarial" && (tr.AdversarialOffset < 1 || tr.AdversarialOffset >= t.NumGroups()) {
		return fmt.Errorf("adversarial_offset must be in [1, %d), got %d", t.NumGroups(), tr.AdversarialOffset)
	}
	if tr.Process == "bursty" && tr.BurstLength < 1 {
		return fmt.Errorf("burst_length must be >= 1, got %d", tr.BurstLength)
	}

	// VC counts must cover the worst-case path of the selected algorithm.
	need := MaxPathHops(r.Algorithm)
	window := 1
	if r.Reactive {
		window = 2
	}
	if ch.LocalVCs/window < need.Local || ch.GlobalVCs/window < need.Global {
		return fmt.Errorf("routing %q needs %d local and %d global VCs per traffic class, have %d and %d",
			r.Algorithm, need.Local, need.Global, ch.LocalVCs/window, ch.GlobalVCs/window)
	}
	return nil
}

// NumGroups returns the number of groups of a balanced, fully populated dragonfly.
func (t TopologyConfig) NumGroups() int {
	return t.SwitchesPerGroup*t.GlobalLinksPerSwitch + 1
}
