package sim

import "fmt"

// MisrouteType tags the kind of hop a flit took last.
type MisrouteType int

const (
	MisrouteNone MisrouteType = iota
	// MisrouteLocal is an opportunistic non-minimal local hop with no obligation afterwards.
	MisrouteLocal
	// MisrouteLocalMandatory is a non-minimal local hop in the source group that
	// obliges the next switch to leave through one of its global links.
	MisrouteLocalMandatory
	// MisrouteGlobal is a non-minimal global hop taken from the current switch.
	MisrouteGlobal
	// MisrouteGlobalMandatory is the global hop forced by a preceding MisrouteLocalMandatory.
	MisrouteGlobalMandatory
	// MisrouteValiant marks the first hop of a path through a Valiant switch.
	MisrouteValiant
)

var misrouteNames = [...]string{"none", "local", "local-mandatory", "global", "global-mandatory", "valiant"}

func (m MisrouteType) String() string {
	if m < 0 || int(m) >= len(misrouteNames) {
		return fmt.Sprintf("misroute(%d)", int(m))
	}
	return misrouteNames[m]
}

// IsLocal reports whether the tag names a local misroute hop.
func (m MisrouteType) IsLocal() bool {
	return m == MisrouteLocal || m == MisrouteLocalMandatory
}

// Flit is the unit of flow control. All routing state travels with the flit so
// its journey can be resumed at any cycle.
type Flit struct {
	PacketID   int64
	Seq        int // index within the packet
	PacketSize int // flits in the packet
	Length     int // phits
	Head       bool
	Tail       bool
	CoS        int
	Response   bool

	SourceNode, SourceSwitch, SourceGroup int
	DestNode, DestSwitch, DestGroup       int

	Channel int // VC the flit currently occupies

	GenerationCycle int64
	InjectionCycle  int64
	EntryCycle      int64 // arrival at the buffer currently holding the flit

	// Routing state, decided by the head flit and copied on every flit of the packet.
	Misroute           MisrouteType // tag of the hop that brought the flit here
	ValNode            int          // Valiant switch, -1 when none
	ValNodeReached     bool
	LocalMisrouteDone  bool
	GlobalMisrouteDone bool
	MandatoryGlobal    bool

	Hops         HopCount // switch-to-switch hops taken
	DetourHops   HopCount // hops taken toward an intermediate target (Valiant switch, local misroute)
	GroupHops    int      // local hops taken in the current group
	LastLocalVC  int      // -1 before the first local hop
	LastGlobalVC int      // -1 before the first global hop
	MinimalHops  int      // length of the minimal path at injection
}

// NewFlit returns a flit with the routing state reset.
func NewFlit() Flit {
	return Flit{ValNode: -1, LastLocalVC: -1, LastGlobalVC: -1}
}

// Target returns the switch the flit is currently heading for.
func (f *Flit) Target() int {
	if f.ValNode >= 0 && !f.ValNodeReached {
		return f.ValNode
	}
	return f.DestSwitch
}

// LastVC returns the VC used on the previous hop of the given link type.
func (f *Flit) LastVC(t PortType) int {
	switch t {
	case PortLocal:
		return f.LastLocalVC
	case PortGlobal:
		return f.LastGlobalVC
	}
	return -1
}

// checkFlags panics on routing-flag combinations no algorithm can produce.
func (f *Flit) checkFlags() {
	if f.MandatoryGlobal && f.GlobalMisrouteDone {
		panic(fmt.Sprintf("packet %d: mandatory global misroute pending after a global misroute", f.PacketID))
	}
	if f.ValNodeReached && f.ValNode < 0 {
		panic(fmt.Sprintf("packet %d: Valiant switch reached without a Valiant switch", f.PacketID))
	}
	if f.MandatoryGlobal && f.ValNode >= 0 && !f.ValNodeReached {
		panic(fmt.Sprintf("packet %d: mandatory global misroute on a Valiant path", f.PacketID))
	}
}

// FlitHandle references a flit stored in a FlitArena.
type FlitHandle int32

// NoFlit is the zero handle value meaning "empty".
const NoFlit FlitHandle = -1

// FlitArena is a slab of flits with a free list. Handles make the single-owner
// hand-off explicit: buffers and messages carry handles, the arena owns storage.
// Alloc and Free are only called from the serial phases of a cycle.
type FlitArena struct {
	slots []Flit
	live  []bool
	free  []FlitHandle
}

// NewFlitArena creates an empty arena.
func NewFlitArena() *FlitArena {
	return &FlitArena{}
}

// Alloc stores a flit and returns its handle.
func (a *FlitArena) Alloc(f Flit) FlitHandle {
	if n := len(a.free); n > 0 {
		h := a.free[n-1]
		a.free = a.free[:n-1]
		a.slots[h] = f
		a.live[h] = true
		return h
	}
	a.slots = append(a.slots, f)
	a.live = append(a.live, true)
	return FlitHandle(len(a.slots) - 1)
}

// Get returns the flit behind a live handle.
func (a *FlitArena) Get(h FlitHandle) *Flit {
	if h < 0 || int(h) >= len(a.slots) || !a.live[h] {
		panic(fmt.Sprintf("flit handle %d is not live", h))
	}
	return &a.slots[h]
}

// Free releases a handle. Freeing twice panics.
func (a *FlitArena) Free(h FlitHandle) {
	if h < 0 || int(h) >= len(a.slots) || !a.live[h] {
		panic(fmt.Sprintf("double free of flit handle %d", h))
	}
	a.live[h] = false
	a.slots[h] = Flit{}
	a.free = append(a.free, h)
}

// Live returns the number of flits currently allocated.
func (a *FlitArena) Live() int {
	return len(a.slots) - len(a.free)
}
