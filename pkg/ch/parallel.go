package ch

import (
	"runtime"
	"sync"

	"github.com/azybler/chrouter/pkg/graph"
	"github.com/azybler/chrouter/pkg/hash"
)

// roundResult is what contractRound reports back to the caller so it can
// update priorities and shrink the remaining-node set.
type roundResult struct {
	shortcuts    []Shortcut
	dirtyNeighbors map[graph.NodeID]struct{} // nodes whose priority needs re-evaluation
}

// contractRound contracts every node in independentSet in parallel,
// mirroring original_source's Contractor.h per-round pipeline: each
// worker owns a thread-local shortcut buffer (here, a per-shard slice
// deduplicated locally before the merge), contraction itself runs
// read-only against fwd/bwd (safe to parallelize since independent-set
// nodes share no edge by construction), and only the merge step — which
// actually mutates the shared graph — runs serially afterward.
func contractRound(fwd, bwd *graph.DynamicGraph[EdgeData], independentSet []graph.NodeID, contracted []bool, workers int) roundResult {
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	if workers > len(independentSet) {
		workers = len(independentSet)
	}
	if workers < 1 {
		workers = 1
	}

	buffers := make([][]Shortcut, workers)
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		w := w
		wg.Add(1)
		go func() {
			defer wg.Done()
			ws := newWitnessState(sharedHasher)
			var local []Shortcut
			for i := w; i < len(independentSet); i += workers {
				node := independentSet[i]
				tally := findShortcuts(ws, fwd, bwd, node, contracted, false)
				local = append(local, tally.shortcuts...)
			}
			buffers[w] = dedupShortcuts(local)
		}()
	}
	wg.Wait()

	result := roundResult{dirtyNeighbors: make(map[graph.NodeID]struct{})}
	for _, buf := range buffers {
		for _, s := range buf {
			mergeShortcut(fwd, bwd, s)
			result.shortcuts = append(result.shortcuts, s)
			result.dirtyNeighbors[s.Source] = struct{}{}
			result.dirtyNeighbors[s.Target] = struct{}{}
		}
	}

	for _, node := range independentSet {
		contracted[node] = true
		for _, nb := range adjacentNodes(fwd, node) {
			result.dirtyNeighbors[nb] = struct{}{}
		}
		for _, nb := range adjacentNodes(bwd, node) {
			result.dirtyNeighbors[nb] = struct{}{}
		}
		deleteIncidentEdges(fwd, bwd, node)
	}

	return result
}

// dedupShortcuts collapses shortcuts with the same (source, target)
// produced independently within one worker's batch, keeping the lower
// weight and its Via — the same
// post-search dedup rule original_source applies before appending to its
// thread-local insertedEdges buffer.
func dedupShortcuts(in []Shortcut) []Shortcut {
	seen := make(map[[2]graph.NodeID]int, len(in))
	out := in[:0]
	for _, s := range in {
		key := [2]graph.NodeID{s.Source, s.Target}
		if idx, ok := seen[key]; ok {
			if s.Weight < out[idx].Weight {
				out[idx].Weight = s.Weight
				out[idx].Via = s.Via
			}
			continue
		}
		seen[key] = len(out)
		out = append(out, s)
	}
	return out
}

// mergeShortcut applies one candidate shortcut to the shared fwd/bwd
// graphs. Grounded on original_source's Contractor.h merge-conflict rule
// set, collapsed to its same-direction branch: this port represents every
// direction as its own directed edge (mirroring the teacher's OSM parser,
// which already emits separate forward/backward ImportEdges rather than
// one bidirectional record), so the original's bidirectional-vs-
// unidirectional split branches never apply here — there is no single
// record carrying both direction bits to split or overwrite. The
// remaining branch — two directed candidates for the same (source,
// target) racing from different contracted nodes in the same round —
// keeps the lower-weight one and drops the other, which is exactly
// DESIGN.md Open Question 1's resolution ("keep existing, drop new")
// generalized to "keep whichever is cheaper, regardless of arrival
// order".
func mergeShortcut(fwd, bwd *graph.DynamicGraph[EdgeData], s Shortcut) {
	existing := fwd.FindEdge(s.Source, s.Target)
	if existing == graph.SpecialID {
		data := EdgeData{Weight: s.Weight, OriginalEdges: 2, Via: s.Via, Shortcut: true, Forward: true}
		fwd.InsertEdge(s.Source, s.Target, data)
		bwd.InsertEdge(s.Target, s.Source, data)
		return
	}
	if s.Weight < fwd.Data(existing).Weight {
		*fwd.Data(existing) = EdgeData{Weight: s.Weight, OriginalEdges: 2, Via: s.Via, Shortcut: true, Forward: true}
		bwdEdge := bwd.FindEdge(s.Target, s.Source)
		if bwdEdge != graph.SpecialID {
			*bwd.Data(bwdEdge) = *fwd.Data(existing)
		}
	}
	// else: existing record is already cheaper or equal; drop the new one.
}

// deleteIncidentEdges removes every edge pointing INTO node (from either
// direction's perspective) now that node is contracted, matching
// original_source's _DeleteIncomingEdges: future witness searches must
// never route through an already-contracted node, and its own outgoing
// edges (to higher-rank neighbors) are left untouched — they are exactly
// what the final CH overlay needs.
func deleteIncidentEdges(fwd, bwd *graph.DynamicGraph[EdgeData], node graph.NodeID) {
	for _, nb := range adjacentNodes(bwd, node) { // nb has a fwd edge nb->node
		fwd.DeleteEdgesTo(nb, node)
	}
	for _, nb := range adjacentNodes(fwd, node) { // nb has a bwd edge nb->node (i.e. node->nb in fwd)
		bwd.DeleteEdgesTo(nb, node)
	}
}

// sharedHasher seeds every witness-search/independent-set tie-break in a
// Contract run. Set once per Contract call (see contractor.go) so all
// workers share identical tabulation tables.
var sharedHasher *hash.Tabulation
