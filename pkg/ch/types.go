// Package ch implements the Contractor (spec.md §4.5) and
// ContractionCleanup (spec.md §4.6) components: it turns a (possibly
// edge-based) graph into a contraction hierarchy of shortcuts, then
// verifies and compacts those shortcuts. Grounded on the teacher's
// pkg/ch/contractor.go and pkg/ch/witness.go, generalized to the full
// simulated-contraction priority formula, 2-hop independent-set parallel
// contraction, mid-preprocessing flush, and a real ContractionCleanup
// pass — all absent from the teacher — per original_source's
// Contractor/Contractor.h and Contractor/ContractionCleanup.h.
package ch

import "github.com/azybler/chrouter/pkg/graph"

// EdgeData is the per-edge payload carried by the contraction-time
// DynamicGraph, grounded on Contractor.h's edge data struct.
type EdgeData struct {
	Weight        graph.Weight
	OriginalEdges uint32 // number of original (non-shortcut) edges folded into this one
	Via           graph.NodeID // graph.SpecialID for a non-shortcut edge
	Shortcut      bool
	Forward       bool
	Backward      bool
	ViaIsOriginal bool // set by a flush on surviving edges: Via is in original ID space and is not renumbered
}

// Shortcut is one contraction-produced shortcut edge, emitted alongside
// the final contracted graph so callers can serialize it for the
// .hsgr/geometry files (spec.md §6).
type Shortcut struct {
	Source, Target graph.NodeID
	Weight         graph.Weight
	Via            graph.NodeID // graph.SpecialID for a non-shortcut edge
	Forward        bool
	Backward       bool
	ViaIsOriginal  bool // true once Via has been translated back to original-space; always true by the time Contract returns
}

// Options configures a Contract run.
type Options struct {
	// FlushThreshold is the fraction of nodes contracted at which a
	// mid-preprocessing flush is triggered, per spec.md §4.5.5. Zero
	// selects the default of 0.65, matching Contractor.h.
	FlushThreshold float64

	// Workers bounds the goroutine fan-out for per-round contraction;
	// priority evaluation runs serially. Zero selects runtime.NumCPU().
	Workers int

	// HashSeed seeds the tabulation hash used for 2-hop independent-set
	// tie-breaking (DESIGN.md Open Question 4). Zero selects the default
	// seed 0xC0FFEE.
	HashSeed uint64
}

const defaultFlushThreshold = 0.65
const defaultHashSeed = 0xC0FFEE

// maxSettledSimulate/maxSettledReal bound witness-search cost, grounded on
// Contractor.h's 1000 (simulation) / 2000 (real contraction) settled-node
// cutoffs.
const (
	maxSettledSimulate = 1000
	maxSettledReal     = 2000
)
