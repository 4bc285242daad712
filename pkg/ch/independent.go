package ch

import (
	"github.com/azybler/chrouter/pkg/graph"
	"github.com/azybler/chrouter/pkg/hash"
)

// selectIndependentSet picks the subset of remaining nodes that are
// 2-hop independent of each other — no node in the set has a neighbor,
// or a neighbor-of-neighbor, within the same set that strictly beats it
// on priority — grounded on original_source's Contractor.h::_IsIndependent
// stable_partition loop. Ties are broken by a tabulation hash of the node
// ID (DESIGN.md Open Question 4) rather than processing order, so the
// result is identical regardless of how many workers evaluate it (testable
// property 4).
func selectIndependentSet(fwd, bwd *graph.DynamicGraph[EdgeData], remaining []graph.NodeID, priority map[graph.NodeID]float64, contracted []bool, hasher *hash.Tabulation) []graph.NodeID {
	better := func(a, b graph.NodeID) bool {
		pa, pb := priority[a], priority[b]
		if pa != pb {
			return pa < pb
		}
		ha, hb := hasher.Hash(a), hasher.Hash(b)
		if ha != hb {
			return ha < hb
		}
		return a < b
	}

	twoHop := func(v graph.NodeID) []graph.NodeID {
		var out []graph.NodeID
		oneHop := append(append([]graph.NodeID{}, adjacentNodes(fwd, v)...), adjacentNodes(bwd, v)...)
		out = append(out, oneHop...)
		for _, u := range oneHop {
			if contracted[u] {
				continue
			}
			out = append(out, adjacentNodes(fwd, u)...)
			out = append(out, adjacentNodes(bwd, u)...)
		}
		return out
	}

	var independent []graph.NodeID
	for _, v := range remaining {
		isIndependent := true
		for _, u := range twoHop(v) {
			if u == v || contracted[u] {
				continue
			}
			if better(u, v) {
				isIndependent = false
				break
			}
		}
		if isIndependent {
			independent = append(independent, v)
		}
	}
	return independent
}

func adjacentNodes(g *graph.DynamicGraph[EdgeData], node graph.NodeID) []graph.NodeID {
	var out []graph.NodeID
	for e := g.BeginEdges(node); e < g.EndEdges(node); e++ {
		out = append(out, g.Target(e))
	}
	return out
}
