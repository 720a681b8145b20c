package traffic

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
)

func generationRate(p InjectionProcess, nodes, cycles int, seed int64) float64 {
	rng := rand.New(rand.NewSource(seed))
	count := 0
	for c := 0; c < cycles; c++ {
		for n := 0; n < nodes; n++ {
			if p.Generate(n, rng) {
				count++
			}
		}
	}
	return float64(count) / float64(nodes*cycles)
}

func TestBernoulliProcess_RateMatchesLoad(t *testing.T) {
	// GIVEN load 0.4 phits/cycle with 8-phit packets
	p := NewInjectionProcess("bernoulli", 0.4, 8, 0, 4)

	// THEN about one packet every 20 cycles per node
	assert.InDelta(t, 0.05, generationRate(p, 4, 50000, 1), 0.003)
}

func TestBurstyProcess_LongRunRateNearLoad(t *testing.T) {
	p := NewInjectionProcess("bursty", 0.5, 8, 5, 10)
	rate := generationRate(p, 10, 50000, 2)
	assert.InDelta(t, 0.5/8, rate, 0.5/8*0.2)
}

func TestBurstyProcess_SpacesPacketsInsideBurst(t *testing.T) {
	// GIVEN a source that never leaves its burst
	p := NewInjectionProcess("bursty", 1, 4, 1<<30, 1)
	rng := rand.New(rand.NewSource(3))

	// THEN it offers one packet every packetPhits cycles
	var got []bool
	for c := 0; c < 8; c++ {
		got = append(got, p.Generate(0, rng))
	}
	assert.Equal(t, []bool{true, false, false, false, true, false, false, false}, got)
}

func TestInjectionProcess_ZeroLoadIsSilent(t *testing.T) {
	for _, name := range []string{"bernoulli", "bursty"} {
		assert.Equal(t, 0.0, generationRate(NewInjectionProcess(name, 0, 8, 5, 2), 2, 1000, 4), name)
	}
}

func TestNewInjectionProcess_UnknownPanics(t *testing.T) {
	assert.Panics(t, func() { NewInjectionProcess("poisson", 0.1, 8, 1, 1) })
}
