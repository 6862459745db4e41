package region

import (
	"github.com/google/uuid"
	"github.com/wosim-go/wosim/internal/protocol"
)

// Level is an observer's interest level in one region.
type Level uint8

const (
	// LevelNone means the observer has no interest in the region
	// (used only as a transition endpoint, never stored).
	LevelNone Level = iota
	LevelStatic
	LevelFull
)

// Variant is the kind of setup/teardown step queued for an
// observer/region pair (§4.8).
type Variant uint8

const (
	VariantSetupStatic Variant = iota
	VariantSetupDynamic
	VariantSetupPlayer
	VariantTeardownDynamic
	VariantTeardownStatic
)

// tier ranks variants for the 4-tier priority queue: setups before
// teardowns, and within setups static before dynamic before player
// announcement, since each depends on the previous having already run.
func (v Variant) tier() int {
	switch v {
	case VariantSetupStatic:
		return 0
	case VariantSetupDynamic:
		return 1
	case VariantSetupPlayer:
		return 2
	case VariantTeardownDynamic:
		return 3
	case VariantTeardownStatic:
		return 4
	default:
		return 5
	}
}

// Change is one pending setup/teardown step in the observer-change
// queue.
type Change struct {
	Region   protocol.RegionPos
	Distance float64
	Observer uuid.UUID
	Variant  Variant

	// PCID/PC are only meaningful for VariantSetupPlayer.
	PCID uint32
	PC   protocol.Entity
}

// less implements the queue's total order: ascending tier, then
// ascending distance from the observer's current center, then region
// and observer id for determinism.
func less(a, b Change) bool {
	if a.Variant.tier() != b.Variant.tier() {
		return a.Variant.tier() < b.Variant.tier()
	}
	if a.Distance != b.Distance {
		return a.Distance < b.Distance
	}
	if a.Region.X != b.Region.X {
		return a.Region.X < b.Region.X
	}
	if a.Region.Z != b.Region.Z {
		return a.Region.Z < b.Region.Z
	}
	return a.Observer.String() < b.Observer.String()
}

// changeHeap is a container/heap binary min-heap over Change ordered
// by less, giving the drain loop its priority-queue pop order.
type changeHeap []Change

func (h changeHeap) Len() int            { return len(h) }
func (h changeHeap) Less(i, j int) bool  { return less(h[i], h[j]) }
func (h changeHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *changeHeap) Push(x interface{}) { *h = append(*h, x.(Change)) }
func (h *changeHeap) Pop() interface{} {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}
