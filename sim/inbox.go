package sim

import "container/heap"

// MessageKind identifies what a message carries between switches.
type MessageKind int

const (
	MsgCredit    MessageKind = iota // credits returned by a downstream buffer
	MsgFlit                         // flit arriving on an input port
	MsgGossip                       // partial contention vector of a group peer
	MsgPiggyback                    // global-link queue lengths of a group peer
)

// messageKindPriority orders same-cycle deliveries: credits are applied before
// flits arrive, and load information last.
var messageKindPriority = map[MessageKind]int{
	MsgCredit:    1,
	MsgFlit:      2,
	MsgGossip:    3,
	MsgPiggyback: 4,
}

// Message is a timestamped cross-switch effect. It becomes visible to the
// receiver only at the first cycle >= At.
type Message struct {
	At   int64
	Kind MessageKind
	Seq  int64 // assigned by the receiver's inbox; deterministic tie-breaker

	From int // sending switch, or -1 for a node
	To   int // receiving switch, or -1 for a node
	Node int // receiving or sending node when one end is a node
	Port int // receiver's input port (flit) or output port (credit)
	CoS  int
	VC   int

	Phits   int
	Minimal bool // credit: the phits were accounted as minimally routed

	Flit      FlitHandle
	Gossip    *ContentionVector
	Piggyback *LinkStateVector
}

// ContentionVector is one router's partial contention counters, per destination group.
type ContentionVector struct {
	From   int // local index of the sender inside its group
	Stamp  int64
	Counts []int
}

// LinkStateVector is one router's global-link queue lengths, per global port.
type LinkStateVector struct {
	From   int
	Stamp  int64
	Queues []int
}

// Inbox is a priority queue of messages with deterministic ordering.
// Ordering: arrival cycle → kind priority → insertion sequence.
type Inbox struct {
	msgs []Message
	seq  int64
}

// NewInbox creates an empty inbox.
func NewInbox() *Inbox {
	ib := &Inbox{msgs: make([]Message, 0)}
	heap.Init(ib)
	return ib
}

// Len implements heap.Interface
func (ib *Inbox) Len() int { return len(ib.msgs) }

// Less implements heap.Interface with deterministic ordering.
func (ib *Inbox) Less(i, j int) bool {
	mi, mj := ib.msgs[i], ib.msgs[j]
	if mi.At != mj.At {
		return mi.At < mj.At
	}
	pi, pj := messageKindPriority[mi.Kind], messageKindPriority[mj.Kind]
	if pi != pj {
		return pi < pj
	}
	return mi.Seq < mj.Seq
}

// Swap implements heap.Interface
func (ib *Inbox) Swap(i, j int) { ib.msgs[i], ib.msgs[j] = ib.msgs[j], ib.msgs[i] }

// Push implements heap.Interface
func (ib *Inbox) Push(x interface{}) { ib.msgs = append(ib.msgs, x.(Message)) }

// Pop implements heap.Interface
func (ib *Inbox) Pop() interface{} {
	old := ib.msgs
	n := len(old)
	item := old[n-1]
	ib.msgs = old[0 : n-1]
	return item
}

// Post schedules a message.
func (ib *Inbox) Post(m Message) {
	ib.seq++
	m.Seq = ib.seq
	heap.Push(ib, m)
}

// Due removes and returns the next message whose arrival cycle is <= now.
func (ib *Inbox) Due(now int64) (Message, bool) {
	if ib.Len() == 0 || ib.msgs[0].At > now {
		return Message{}, false
	}
	return heap.Pop(ib).(Message), true
}

// peek returns the next message without removing it.
func (ib *Inbox) peek() (Message, bool) {
	if ib.Len() == 0 {
		return Message{}, false
	}
	return ib.msgs[0], true
}
