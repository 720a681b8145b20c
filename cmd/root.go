package cmd

import (
	"fmt"
	"os"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	sim "github.com/fabric-sim/dfsim/sim"
	"github.com/fabric-sim/dfsim/sim/trace"
	"github.com/fabric-sim/dfsim/sim/traffic"
)

var (
	configPath  string  // YAML network configuration
	seed        int64   // Seed for traffic and routing randomness
	cycles      int64   // Total simulated cycles
	load        float64 // Offered load in phits per node per cycle
	routing     string  // Routing algorithm override
	logLevel    string  // Log verbosity level
	resultsPath string  // File to save the metrics summary JSON to
	workers     int     // Switches stepped in parallel
)

// rootCmd is the base command for the CLI
var rootCmd = &cobra.Command{
	Use:   "dfsim",
	Short: "Cycle-accurate dragonfly interconnect simulator",
}

// setLogLevel parses --log and applies it to logrus.
func setLogLevel() {
	level, err := logrus.ParseLevel(logLevel)
	if err != nil {
		logrus.Fatalf("Invalid log level: %s", logLevel)
	}
	logrus.SetLevel(level)
}

// loadConfig reads --config (or the defaults) and applies the flags the user
// set explicitly on cmd.
func loadConfig(cmd *cobra.Command) (sim.Config, error) {
	cfg := sim.DefaultConfig()
	if configPath != "" {
		var err error
		if cfg, err = sim.LoadConfig(configPath); err != nil {
			return cfg, err
		}
	}
	flags := cmd.Flags()
	if flags.Changed("seed") {
		cfg.Simulation.Seed = seed
	}
	if flags.Changed("cycles") {
		cfg.Simulation.Cycles = cycles
	}
	if flags.Changed("load") {
		cfg.Traffic.Load = load
	}
	if flags.Changed("routing") {
		cfg.Routing.Algorithm = routing
	}
	if flags.Changed("workers") {
		cfg.Simulation.Workers = workers
	}
	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// runSimulation builds the network and its traffic generator and runs it to completion.
func runSimulation(cfg *sim.Config) (*sim.Network, *traffic.Generator, *sim.Metrics, error) {
	gen := traffic.NewGenerator(cfg, sim.NewTopology(cfg.Topology))
	net := sim.NewNetwork(cfg, gen)
	m, err := net.Run()
	return net, gen, m, err
}

// runCmd executes the simulation using the configuration and flag overrides
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the dragonfly simulation",
	Run: func(cmd *cobra.Command, args []string) {
		setLogLevel()
		cfg, err := loadConfig(cmd)
		if err != nil {
			logrus.Fatalf("%v", err)
		}
		logrus.Infof("Starting simulation: seed=%d load=%.3f pattern=%s process=%s",
			cfg.Simulation.Seed, cfg.Traffic.Load, cfg.Traffic.Pattern, cfg.Traffic.Process)

		startTime := time.Now()
		net, gen, m, err := runSimulation(&cfg)
		if err != nil {
			logrus.Fatalf("simulation failed: %v", err)
		}
		m.Print()
		if gen.Stats.SuppressedPackets > 0 {
			logrus.Warnf("%d of %d generated packets were suppressed by full source queues",
				gen.Stats.SuppressedPackets, gen.Stats.GeneratedPackets)
		}
		if net.Trace().Config.Enabled() {
			s := trace.Summarize(net.Trace())
			fmt.Printf("Trace: %d decisions, minimal fraction %.3f, max path %d\n",
				s.TotalDecisions, s.MinimalFraction, s.MaxPathLength)
		}
		if resultsPath != "" {
			if err := m.SaveResults(resultsPath); err != nil {
				logrus.Fatalf("%v", err)
			}
			logrus.Infof("Metrics written to: %s", resultsPath)
		}
		logrus.Infof("Simulation complete in %s.", time.Since(startTime).Round(time.Millisecond))
	},
}

// validateCmd checks a configuration file without running it
var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate a network configuration",
	Run: func(cmd *cobra.Command, args []string) {
		setLogLevel()
		cfg, err := loadConfig(cmd)
		if err != nil {
			logrus.Fatalf("%v", err)
		}
		topo := sim.NewTopology(cfg.Topology)
		fmt.Printf("OK: %d groups, %d switches, %d nodes, routing=%s vc=%s\n",
			topo.G, topo.NumSwitches, topo.NumNodes, cfg.Routing.Algorithm, cfg.Routing.VCStrategy)
	},
}

// topologyCmd prints the port map of every switch
var topologyCmd = &cobra.Command{
	Use:   "topology",
	Short: "Print the switch ports and their neighbors",
	Run: func(cmd *cobra.Command, args []string) {
		setLogLevel()
		cfg, err := loadConfig(cmd)
		if err != nil {
			logrus.Fatalf("%v", err)
		}
		printTopology(os.Stdout, sim.NewTopology(cfg.Topology))
	},
}

// Execute runs the CLI root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// init sets up CLI flags and subcommands
func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "YAML network configuration (defaults when empty)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log", "warn", "Log level (trace, debug, info, warn, error, fatal, panic)")

	runCmd.Flags().Int64Var(&seed, "seed", 42, "Seed for traffic and routing randomness")
	runCmd.Flags().Int64Var(&cycles, "cycles", 10000, "Total simulated cycles")
	runCmd.Flags().Float64Var(&load, "load", 0.3, "Offered load in phits per node per cycle")
	runCmd.Flags().StringVar(&routing, "routing", "minimal", "Routing algorithm (minimal, valiant, ugal, pb, par)")
	runCmd.Flags().StringVar(&resultsPath, "results", "", "File to save the metrics summary JSON to")
	runCmd.Flags().IntVar(&workers, "workers", 1, "Switches stepped in parallel")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(validateCmd)
	rootCmd.AddCommand(topologyCmd)
}
