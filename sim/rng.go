package sim

import (
	"fmt"
	"hash/fnv"
	"math/rand"
)

// === SimulationKey ===

// SimulationKey uniquely identifies a reproducible simulation run.
// Two simulations with the same SimulationKey and identical configuration
// MUST produce bit-for-bit identical results, whatever the worker count.
type SimulationKey int64

// NewSimulationKey creates a SimulationKey from a seed value.
func NewSimulationKey(seed int64) SimulationKey {
	return SimulationKey(seed)
}

// === Subsystem Constants ===

const (
	// SubsystemTraffic is the RNG subsystem for traffic generation.
	// Uses master seed directly so --seed alone reproduces the offered load.
	SubsystemTraffic = "traffic"

	// SubsystemValiant salts the per-packet choice of Valiant switches.
	SubsystemValiant = "valiant"
)

// SubsystemSwitch returns the subsystem name for switch N. Every switch draws
// from its own stream so switches can be stepped in parallel.
func SubsystemSwitch(id int) string {
	return fmt.Sprintf("switch_%d", id)
}

// === PartitionedRNG ===

// PartitionedRNG provides deterministic, isolated RNG instances per subsystem.
//
// Derivation formula:
//   - For SubsystemTraffic: uses masterSeed directly
//   - For all other subsystems: masterSeed XOR fnv1a64(subsystemName)
//
// Thread-safety: NOT thread-safe. Derive every stream before stepping switches
// concurrently; each returned *rand.Rand then has a single owner.
type PartitionedRNG struct {
	key        SimulationKey
	subsystems map[string]*rand.Rand
}

// NewPartitionedRNG creates a PartitionedRNG from a SimulationKey.
func NewPartitionedRNG(key SimulationKey) *PartitionedRNG {
	return &PartitionedRNG{
		key:        key,
		subsystems: make(map[string]*rand.Rand),
	}
}

// ForSubsystem returns a deterministically-seeded RNG for the named subsystem.
// The same subsystem name always returns the same *rand.Rand instance (cached).
// Never returns nil.
func (p *PartitionedRNG) ForSubsystem(name string) *rand.Rand {
	if rng, ok := p.subsystems[name]; ok {
		return rng
	}
	rng := rand.New(rand.NewSource(p.SeedFor(name)))
	p.subsystems[name] = rng
	return rng
}

// SeedFor returns the derived seed of a subsystem without creating its stream.
func (p *PartitionedRNG) SeedFor(name string) int64 {
	if name == SubsystemTraffic {
		return int64(p.key)
	}
	return int64(p.key) ^ fnv1a64(name)
}

// Key returns the SimulationKey used to create this PartitionedRNG.
func (p *PartitionedRNG) Key() SimulationKey {
	return p.key
}

// fnv1a64 computes a 64-bit FNV-1a hash of the input string.
func fnv1a64(s string) int64 {
	h := fnv.New64a()
	h.Write([]byte(s))
	return int64(h.Sum64())
}

// mix64 is the splitmix64 finalizer. It turns (salt, packet id) into a stable
// pseudo-random value so a packet keeps its random choices across retries.
func mix64(x uint64) uint64 {
	x += 0x9e3779b97f4a7c15
	x = (x ^ (x >> 30)) * 0xbf58476d1ce4e5b9
	x = (x ^ (x >> 27)) * 0x94d049bb133111eb
	return x ^ (x >> 31)
}
