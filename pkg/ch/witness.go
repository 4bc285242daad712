package ch

import (
	"github.com/azybler/chrouter/pkg/graph"
	"github.com/azybler/chrouter/pkg/hash"
	"github.com/azybler/chrouter/pkg/heap"
)

// witnessState holds the reusable per-worker scratch state for batched
// witness search, grounded on the teacher's witnessState (dist/touched/
// heap fields reset via a touched-list for O(1) amortized clear). The
// teacher backs its heap with a dense array sized to the whole graph and
// a bare distance slice; this port instead backs pkg/heap.Heap with
// pkg/heap.HashStorage, matching that package's own design note that a
// witness search only ever touches a small neighborhood and so never
// needs an array the size of the live graph.
type witnessState struct {
	h *heap.Heap[struct{}]
}

func newWitnessState(hasher *hash.Tabulation) *witnessState {
	return &witnessState{h: heap.New[struct{}](heap.NewHashStorage(hasher))}
}

// queryEdge generalizes over fwd/bwd so the same adjacency walk works for
// both directions of traversal, mirroring the teacher's adjEntry.
type queryEdge struct {
	to     graph.NodeID
	weight graph.Weight
	data   *EdgeData
}

func neighborsOf(g *graph.DynamicGraph[EdgeData], node graph.NodeID) []queryEdge {
	var out []queryEdge
	for e := g.BeginEdges(node); e < g.EndEdges(node); e++ {
		out = append(out, queryEdge{to: g.Target(e), weight: g.Data(e).Weight, data: g.Data(e)})
	}
	return out
}

// contractionTally accumulates the edge-difference statistics the
// priority formula (priority.go) and, when !simulate, the real shortcut
// list findShortcuts produces for one node.
type contractionTally struct {
	edgesDeleted         int
	edgesAdded           int
	originalEdgesDeleted uint32
	originalEdgesAdded   uint32
	shortcuts            []Shortcut // only populated when !simulate
}

// findShortcuts runs one batched witness search per incoming neighbor of
// node (grounded on the teacher's batchWitnessSearch/findShortcuts,
// itself a simplification of original_source's per-incoming-edge
// _Contract<Simulate> search) and reports, for every (incoming, outgoing)
// pair routed through node, whether a shortcut is required to preserve
// shortest-path correctness once node is removed.
func findShortcuts(ws *witnessState, fwd, bwd *graph.DynamicGraph[EdgeData], node graph.NodeID, contracted []bool, simulate bool) contractionTally {
	var tally contractionTally

	var liveOuts []queryEdge
	for _, o := range neighborsOf(fwd, node) {
		if !contracted[o.to] && o.to != node {
			liveOuts = append(liveOuts, o)
		}
	}
	if len(liveOuts) == 0 {
		return tally
	}

	maxSettled := maxSettledSimulate
	if !simulate {
		maxSettled = maxSettledReal
	}

	for _, in := range neighborsOf(bwd, node) {
		if contracted[in.to] || in.to == node {
			continue
		}
		u := in.to
		weightIn := in.weight

		var maxWeight graph.Weight
		for _, o := range liveOuts {
			if via := weightIn + o.weight; via > maxWeight {
				maxWeight = via
			}
		}

		dist := dijkstraBounded(ws, fwd, u, node, maxWeight, maxSettled)

		for _, o := range liveOuts {
			if o.to == u {
				continue // a u-turn through node back to the source; never needs a shortcut
			}
			viaDist := weightIn + o.weight
			tally.edgesDeleted++
			tally.originalEdgesDeleted += in.data.OriginalEdges + o.data.OriginalEdges

			if witnessDist, found := dist[o.to]; found && witnessDist <= viaDist {
				continue // a witness path exists; no shortcut needed
			}

			tally.edgesAdded++
			tally.originalEdgesAdded += in.data.OriginalEdges + o.data.OriginalEdges
			if !simulate {
				tally.shortcuts = append(tally.shortcuts, Shortcut{
					Source:   u,
					Target:   o.to,
					Weight:   viaDist,
					Via:      node,
					Forward:  true,
					Backward: false,
				})
			}
		}
	}

	return tally
}

// dijkstraBounded runs a forward Dijkstra from source over fwd, excluding
// excludedNode entirely, stopping once maxSettled nodes have been
// permanently settled or the frontier's minimum key exceeds maxWeight.
func dijkstraBounded(ws *witnessState, fwd *graph.DynamicGraph[EdgeData], source, excludedNode graph.NodeID, maxWeight graph.Weight, maxSettled int) map[graph.NodeID]graph.Weight {
	ws.h.Clear()
	result := make(map[graph.NodeID]graph.Weight)

	ws.h.Insert(source, 0, struct{}{})
	settled := 0

	for ws.h.Len() > 0 && settled < maxSettled {
		node, dist, _ := ws.h.DeleteMin()
		if dist > maxWeight {
			break
		}
		if _, already := result[node]; already {
			continue
		}
		result[node] = dist
		settled++

		if node == excludedNode {
			continue
		}
		for e := fwd.BeginEdges(node); e < fwd.EndEdges(node); e++ {
			if !fwd.Data(e).Forward {
				continue
			}
			to := fwd.Target(e)
			if to == excludedNode {
				continue
			}
			newDist := dist + fwd.Data(e).Weight
			if newDist > maxWeight {
				continue
			}
			if ws.h.WasInserted(to) {
				if !ws.h.WasRemoved(to) && newDist < ws.h.GetKey(to) {
					ws.h.DecreaseKey(to, newDist)
				}
				continue
			}
			ws.h.Insert(to, newDist, struct{}{})
		}
	}
	return result
}
