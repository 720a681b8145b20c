package cmd

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	sim "github.com/fabric-sim/dfsim/sim"
)

// resetRunFlags clears the Changed marks and the config path left by a test.
func resetRunFlags(t *testing.T) {
	t.Helper()
	t.Cleanup(func() {
		configPath = ""
		for _, name := range []string{"seed", "cycles", "load", "routing", "workers"} {
			runCmd.Flags().Lookup(name).Changed = false
		}
	})
}

func TestLoadConfig_AppliesOnlyChangedFlags(t *testing.T) {
	resetRunFlags(t)

	// GIVEN a YAML file choosing ugal and seed 7
	configPath = filepath.Join(t.TempDir(), "network.yaml")
	require.NoError(t, os.WriteFile(configPath, []byte("routing:\n  algorithm: ugal\nsimulation:\n  seed: 7\n"), 0o644))

	// WHEN only --load is set on the command line
	require.NoError(t, runCmd.Flags().Set("load", "0.5"))
	cfg, err := loadConfig(runCmd)
	require.NoError(t, err)

	// THEN the file wins for the untouched flags
	assert.Equal(t, "ugal", cfg.Routing.Algorithm)
	assert.Equal(t, int64(7), cfg.Simulation.Seed)
	assert.Equal(t, 0.5, cfg.Traffic.Load)

	// WHEN --routing is set too THEN it overrides the file
	require.NoError(t, runCmd.Flags().Set("routing", "par"))
	cfg, err = loadConfig(runCmd)
	require.NoError(t, err)
	assert.Equal(t, "par", cfg.Routing.Algorithm)
}

func TestLoadConfig_InvalidOverride(t *testing.T) {
	resetRunFlags(t)
	require.NoError(t, runCmd.Flags().Set("load", "2"))
	_, err := loadConfig(runCmd)
	assert.ErrorContains(t, err, "invalid configuration")
}

func TestPrintTopology(t *testing.T) {
	topo := sim.NewTopology(sim.TopologyConfig{NodesPerSwitch: 1, SwitchesPerGroup: 2, GlobalLinksPerSwitch: 1})
	var buf bytes.Buffer
	printTopology(&buf, topo)
	out := buf.String()

	lines := strings.Split(strings.TrimSpace(out), "\n")
	assert.Equal(t, "dragonfly p=1 a=2 h=1: 3 groups, 6 switches, 6 nodes, radix 3", lines[0])
	assert.Len(t, lines, 1+topo.NumSwitches*(1+topo.Radix))
	assert.Contains(t, out, "  port  0 node   -> node 0\n")
	assert.Contains(t, out, "  port  1 local  -> switch 1 port 1 (group 0)\n")
}

func TestRunSimulation_AcceptsOfferedLoadBelowSaturation(t *testing.T) {
	// GIVEN the default dragonfly at 10% load
	cfg := sim.DefaultConfig()
	cfg.Simulation.Cycles = 3000
	cfg.Simulation.Warmup = 500
	cfg.Traffic.Load = 0.1
	require.NoError(t, cfg.Validate())

	// WHEN it runs
	net, gen, m, err := runSimulation(&cfg)
	require.NoError(t, err)

	// THEN the network carries what the nodes offer
	assert.Equal(t, int64(2500), m.Cycles)
	assert.Greater(t, m.ConsumedPackets, int64(0))
	assert.InDelta(t, 0.1, m.AcceptedLoad(), 0.02)
	assert.Zero(t, gen.Stats.SuppressedPackets)
	assert.Equal(t, int64(3000), net.Now())
}
