package sim

// PiggybackState keeps the queue length of every global link of the group:
// the switch's own links are refreshed each cycle, peer links from the vectors
// they broadcast every pb_period cycles.
type PiggybackState struct {
	topo      *Topology
	sw        int
	local     int
	period    int64
	factor    float64
	threshold int

	queues [][]int // [local index][global port offset]
	stamps []int64
}

// NewPiggybackState creates the piggyback table of switch sw.
func NewPiggybackState(cfg *Config, topo *Topology, sw int) *PiggybackState {
	s := &PiggybackState{
		topo:      topo,
		sw:        sw,
		local:     topo.LocalIndex(sw),
		period:    cfg.Routing.PBPeriod,
		factor:    cfg.Routing.PBFactor,
		threshold: cfg.Routing.PBThreshold,
		queues:    make([][]int, topo.A),
		stamps:    make([]int64, topo.A),
	}
	for r := range s.queues {
		s.queues[r] = make([]int, topo.H)
		s.stamps[r] = -1
	}
	return s
}

// Refresh records the switch's own global queue lengths. queue reports the
// minimally-routed load of a port, so traffic already misrouted onto a link
// does not mark it saturated.
func (s *PiggybackState) Refresh(queue func(port int) int) {
	first := s.topo.FirstGlobalPort()
	for k := range s.queues[s.local] {
		s.queues[s.local][k] = queue(first + k)
	}
}

// Broadcast returns the piggyback messages due at cycle now, one per group peer.
func (s *PiggybackState) Broadcast(now int64) []Message {
	if s.topo.A < 2 || s.topo.H == 0 || now%s.period != 0 {
		return nil
	}
	g := s.topo.GroupOf(s.sw)
	out := make([]Message, 0, s.topo.A-1)
	for r := 0; r < s.topo.A; r++ {
		if r == s.local {
			continue
		}
		out = append(out, Message{
			Kind:      MsgPiggyback,
			From:      s.sw,
			To:        s.topo.SwitchID(g, r),
			Port:      -1,
			Piggyback: &LinkStateVector{From: s.local, Stamp: now, Queues: append([]int(nil), s.queues[s.local]...)},
		})
	}
	return out
}

// Receive stores a peer's vector unless an equal or newer one is known.
func (s *PiggybackState) Receive(v *LinkStateVector) {
	if v.From == s.local || v.Stamp <= s.stamps[v.From] {
		return
	}
	copy(s.queues[v.From], v.Queues)
	s.stamps[v.From] = v.Stamp
}

// Saturated implements GlobalLinkState: a link is saturated when its queue is
// at least pb_threshold and above pb_factor times the mean over the group's
// global links.
func (s *PiggybackState) Saturated(localIndex, globalPort int) bool {
	q := s.queues[localIndex][globalPort-s.topo.FirstGlobalPort()]
	if q < s.threshold {
		return false
	}
	total, n := 0, 0
	for _, row := range s.queues {
		for _, v := range row {
			total += v
			n++
		}
	}
	mean := float64(total) / float64(n)
	return float64(q) > s.factor*mean
}
