package sim

import "fmt"

type bufferSlot struct {
	flit   FlitHandle
	length int   // phits
	entry  int64 // cycle from which the flit may leave
}

// Buffer is a fixed-capacity FIFO of flits for one (cos, VC) of a port.
// Capacity is expressed in phits; every slot holds one flit of flitSize phits.
// A Buffer never blocks: callers check Space and CanSendFlit and decline to act.
type Buffer struct {
	slots    []bufferSlot
	head     int
	count    int
	occupied int // phits
	flitSize int
	capacity int // phits

	lastExtract int64 // cycle of the previous extraction
	lastLength  int   // phits of the previously extracted flit
}

// NewBuffer creates a buffer holding capacityPhits/flitSize flits.
func NewBuffer(capacityPhits, flitSize int) *Buffer {
	n := capacityPhits / flitSize
	if n < 1 {
		panic(fmt.Sprintf("buffer of %d phits cannot hold a %d-phit flit", capacityPhits, flitSize))
	}
	return &Buffer{
		slots:       make([]bufferSlot, n),
		flitSize:    flitSize,
		capacity:    n * flitSize,
		lastExtract: -1,
	}
}

// Capacity returns the buffer size in phits.
func (b *Buffer) Capacity() int { return b.capacity }

// Occupancy returns the phits currently stored.
func (b *Buffer) Occupancy() int { return b.occupied }

// Space returns the free phits.
func (b *Buffer) Space() int {
	return b.capacity - b.Occupancy()
}

// Len returns the number of flits stored.
func (b *Buffer) Len() int { return b.count }

// Empty reports whether the buffer holds no flit.
func (b *Buffer) Empty() bool { return b.count == 0 }

// Insert appends a flit that becomes readable at now+delay.
// Inserting without room is a flow-control violation and panics.
func (b *Buffer) Insert(h FlitHandle, length int, now, delay int64) {
	if length > b.Space() || b.count == len(b.slots) {
		panic(fmt.Sprintf("buffer overflow: inserting %d phits with %d free", length, b.Space()))
	}
	tail := (b.head + b.count) % len(b.slots)
	b.slots[tail] = bufferSlot{flit: h, length: length, entry: now + delay}
	b.count++
	b.occupied += length
}

// Head returns the handle at the head of the buffer, or NoFlit when empty.
func (b *Buffer) Head() FlitHandle {
	if b.count == 0 {
		return NoFlit
	}
	return b.slots[b.head].flit
}

// HeadEntry returns the cycle from which the head flit may leave.
func (b *Buffer) HeadEntry() int64 {
	if b.count == 0 {
		return -1
	}
	return b.slots[b.head].entry
}

// CanSendFlit reports whether the head may leave at cycle now: the previous
// extraction's transmission window is over and the head has arrived.
func (b *Buffer) CanSendFlit(now int64) bool {
	if b.count == 0 {
		return false
	}
	if b.lastExtract >= 0 && b.lastExtract+int64(b.lastLength) > now {
		return false
	}
	return b.slots[b.head].entry <= now
}

// Extract removes the head flit. Calling it when CanSendFlit is false panics.
func (b *Buffer) Extract(now int64) FlitHandle {
	if !b.CanSendFlit(now) {
		panic(fmt.Sprintf("extract at cycle %d from a buffer that cannot send (len=%d, head entry=%d, last extract=%d)",
			now, b.count, b.HeadEntry(), b.lastExtract))
	}
	s := b.slots[b.head]
	b.slots[b.head] = bufferSlot{}
	b.head = (b.head + 1) % len(b.slots)
	b.count--
	b.occupied -= s.length
	b.lastExtract = now
	b.lastLength = s.length
	return s.flit
}
