package sim

import (
	"fmt"

	"golang.org/x/exp/slices"
)

// Arbiter orders the requesters of a shared resource. The resource owner walks
// Order() and serves the first requester whose petition is grantable, then
// reports it through Update. Requesters are dense indices in [0, n).
type Arbiter interface {
	Order() []int
	Update(served int)
}

// AgeSource returns the age key (entry cycle of the candidate flit) of a
// requester, or ok=false when the requester has nothing to offer.
type AgeSource func(requester int) (cycle int64, ok bool)

// LRSArbiter serves the least recently served requester first: a served
// requester moves to the tail of the list.
type LRSArbiter struct {
	list  []int
	order []int
}

// NewLRSArbiter creates an LRS arbiter over [first, first+n).
func NewLRSArbiter(first, n int) *LRSArbiter {
	a := &LRSArbiter{list: make([]int, n), order: make([]int, n)}
	for i := range a.list {
		a.list[i] = first + i
	}
	return a
}

// Order implements Arbiter.
func (a *LRSArbiter) Order() []int {
	copy(a.order, a.list)
	return a.order
}

// Update implements Arbiter.
func (a *LRSArbiter) Update(served int) {
	i := slices.Index(a.list, served)
	if i < 0 {
		return
	}
	copy(a.list[i:], a.list[i+1:])
	a.list[len(a.list)-1] = served
}

// RRArbiter rotates priority: after serving r, r+1 has the highest priority.
type RRArbiter struct {
	first, n int
	next     int
	order    []int
}

// NewRRArbiter creates a round-robin arbiter over [first, first+n).
func NewRRArbiter(first, n int) *RRArbiter {
	return &RRArbiter{first: first, n: n, order: make([]int, n)}
}

// Order implements Arbiter.
func (a *RRArbiter) Order() []int {
	for i := 0; i < a.n; i++ {
		a.order[i] = a.first + (a.next+i)%a.n
	}
	return a.order
}

// Update implements Arbiter.
func (a *RRArbiter) Update(served int) {
	if served < a.first || served >= a.first+a.n {
		return
	}
	a.next = (served - a.first + 1) % a.n
}

// AgeArbiter serves the oldest candidate flit first. Transit requesters
// (index >= transitOffset) come before injection requesters; ties go to the
// lower index. Requesters with nothing to offer are listed last.
type AgeArbiter struct {
	n             int
	transitOffset int
	ages          AgeSource
	order         []int
}

// NewAgeArbiter creates an AGE arbiter over [0, n).
func NewAgeArbiter(n, transitOffset int, ages AgeSource) *AgeArbiter {
	if ages == nil {
		panic("AgeArbiter: nil age source")
	}
	return &AgeArbiter{n: n, transitOffset: transitOffset, ages: ages, order: make([]int, n)}
}

// Order implements Arbiter.
func (a *AgeArbiter) Order() []int {
	for i := range a.order {
		a.order[i] = i
	}
	type key struct {
		idle    bool
		inject  bool
		age     int64
		request int
	}
	keys := make([]key, a.n)
	for i := 0; i < a.n; i++ {
		age, ok := a.ages(i)
		keys[i] = key{idle: !ok, inject: i < a.transitOffset, age: age, request: i}
	}
	slices.SortStableFunc(a.order, func(x, y int) int {
		kx, ky := keys[x], keys[y]
		switch {
		case kx.idle != ky.idle:
			return boolCmp(kx.idle, ky.idle)
		case kx.inject != ky.inject:
			return boolCmp(kx.inject, ky.inject)
		case kx.age != ky.age:
			if kx.age < ky.age {
				return -1
			}
			return 1
		}
		return kx.request - ky.request
	})
	return a.order
}

// Update implements Arbiter. Age order needs no history.
func (a *AgeArbiter) Update(int) {}

func boolCmp(x, y bool) int {
	if x == y {
		return 0
	}
	if !x {
		return -1
	}
	return 1
}

// PriorityArbiter statically favors transit requesters over injection ones:
// the port list is split at transitOffset and each half keeps its own
// LRS or RR state.
type PriorityArbiter struct {
	transit   Arbiter
	injection Arbiter
	offset    int
	order     []int
}

// NewPriorityArbiter splits [0, n) at transitOffset and arbitrates each half
// with the inner policy ("lrs" or "rr").
func NewPriorityArbiter(inner string, n, transitOffset int) *PriorityArbiter {
	mk := func(first, count int) Arbiter {
		if inner == "rr" {
			return NewRRArbiter(first, count)
		}
		return NewLRSArbiter(first, count)
	}
	return &PriorityArbiter{
		transit:   mk(transitOffset, n-transitOffset),
		injection: mk(0, transitOffset),
		offset:    transitOffset,
		order:     make([]int, 0, n),
	}
}

// Order implements Arbiter.
func (a *PriorityArbiter) Order() []int {
	a.order = append(a.order[:0], a.transit.Order()...)
	a.order = append(a.order, a.injection.Order()...)
	return a.order
}

// Update implements Arbiter.
func (a *PriorityArbiter) Update(served int) {
	if served >= a.offset {
		a.transit.Update(served)
	} else {
		a.injection.Update(served)
	}
}

// NewArbiter creates an arbiter by policy name over requesters [0, n).
// transitOffset separates injection requesters [0, transitOffset) from transit
// ones; pass 0 when every requester is transit. ages is only used by "age".
// Valid names are defined in ValidArbiterPolicies (config.go).
// Panics on unrecognized names.
func NewArbiter(policy string, n, transitOffset int, ages AgeSource) Arbiter {
	if !ValidArbiterPolicies[policy] {
		panic(fmt.Sprintf("unknown arbiter policy %q", policy))
	}
	switch policy {
	case "lrs":
		return NewLRSArbiter(0, n)
	case "rr":
		return NewRRArbiter(0, n)
	case "age":
		return NewAgeArbiter(n, transitOffset, ages)
	case "priority-lrs":
		return NewPriorityArbiter("lrs", n, transitOffset)
	case "priority-rr":
		return NewPriorityArbiter("rr", n, transitOffset)
	default:
		panic(fmt.Sprintf("unhandled arbiter policy %q", policy))
	}
}
