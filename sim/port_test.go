package sim

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestOutputPort_CreditConservation(t *testing.T) {
	// GIVEN an output port with 16 phits of downstream buffer per VC
	p := NewOutputPort(3, PortLocal, 1, 2, 16)

	// WHEN flits are sent and some credits come back
	p.ConsumeCredits(0, 1, 4, true)
	p.ConsumeCredits(0, 1, 4, false)
	p.ReturnCredits(0, 1, 4, true)

	// THEN credits + in-flight phits always equal the downstream capacity
	sent, returned := p.CreditTotals(0, 1)
	assert.Equal(t, p.MaxCredits(0, 1), p.Credits(0, 1)+int(sent-returned))
	assert.Equal(t, 12, p.Credits(0, 1))
	assert.Equal(t, 4, p.CreditsOccupancy(0, 1))
	assert.Equal(t, 0, p.MinimalOccupancy(0, 1), "the minimal share was returned")
	assert.Equal(t, 4, p.Occupancy(0))
}

func TestOutputPort_CreditViolations_Panic(t *testing.T) {
	p := NewOutputPort(0, PortGlobal, 1, 1, 8)
	assert.Panics(t, func() { p.ConsumeCredits(0, 0, 9, false) }, "negative credits")
	assert.Panics(t, func() { p.ReturnCredits(0, 0, 1, false) }, "credits over max")
	assert.Panics(t, func() { p.Credits(1, 0) }, "cos out of range")
	assert.Panics(t, func() { p.Credits(0, 1) }, "vc out of range")
}

func TestOutputPort_Locks_ExclusivePerPacket(t *testing.T) {
	// GIVEN a VC locked by packet 7
	p := NewOutputPort(0, PortLocal, 1, 2, 8)
	p.Lock(0, 0, 7)

	// THEN only packet 7 may use it, and another packet cannot take the lock
	assert.True(t, p.Available(0, 0, 7))
	assert.False(t, p.Available(0, 0, 8))
	assert.True(t, p.Available(0, 1, 8))
	assert.Equal(t, 1, p.Locked())
	assert.Panics(t, func() { p.Lock(0, 0, 8) })
	assert.Panics(t, func() { p.Unlock(0, 0, 8) })

	// WHEN the tail releases it
	p.Unlock(0, 0, 7)
	assert.True(t, p.Available(0, 0, 8))
	assert.Equal(t, 0, p.Locked())
}

func TestOutputPort_Link_BusyForFlitLength(t *testing.T) {
	p := NewOutputPort(0, PortLocal, 1, 1, 8)
	assert.True(t, p.LinkFree(0))
	p.occupyLink(10, 3)
	assert.False(t, p.LinkFree(12))
	assert.True(t, p.LinkFree(13))
}

func TestOutputPort_IOQOccupancyIncludesOutputBuffers(t *testing.T) {
	p := NewOutputPort(0, PortLocal, 1, 1, 8).withOutputBuffers(4, 1)
	p.Buffer(0, 0).Insert(0, 1, 0, 0)
	p.ConsumeCredits(0, 0, 2, false)
	assert.Equal(t, 3, p.Occupancy(0))

	iq := NewOutputPort(0, PortLocal, 1, 1, 8)
	assert.Panics(t, func() { iq.Buffer(0, 0) })
}

func TestInputPort_BuffersPerCoSAndVC(t *testing.T) {
	p := NewInputPort(2, PortGlobal, 2, 3, 6, 2)
	assert.Equal(t, 3, p.NumVCs())
	assert.Equal(t, 2, p.CoSLevels())
	p.Buffer(1, 2).Insert(0, 2, 0, 0)
	p.Buffer(0, 0).Insert(1, 2, 0, 0)
	assert.Equal(t, 4, p.Occupancy())
	assert.Panics(t, func() { p.Buffer(2, 0) })
}
