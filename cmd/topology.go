package cmd

import (
	"fmt"
	"io"

	sim "github.com/fabric-sim/dfsim/sim"
)

// printTopology writes one line per switch port: its type and what it reaches.
func printTopology(w io.Writer, topo *sim.Topology) {
	fmt.Fprintf(w, "dragonfly p=%d a=%d h=%d: %d groups, %d switches, %d nodes, radix %d\n",
		topo.P, topo.A, topo.H, topo.G, topo.NumSwitches, topo.NumNodes, topo.Radix)
	for sw := 0; sw < topo.NumSwitches; sw++ {
		fmt.Fprintf(w, "switch %d (group %d, local %d)\n", sw, topo.GroupOf(sw), topo.LocalIndex(sw))
		for port := 0; port < topo.Radix; port++ {
			pt := topo.PortType(port)
			if pt == sim.PortNode {
				fmt.Fprintf(w, "  port %2d %-6s -> node %d\n", port, pt, topo.NodeID(sw, port))
				continue
			}
			nsw, nport := topo.Neighbor(sw, port)
			fmt.Fprintf(w, "  port %2d %-6s -> switch %d port %d (group %d)\n", port, pt, nsw, nport, topo.GroupOf(nsw))
		}
	}
}
