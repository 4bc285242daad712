package routing

import (
	"context"
	"math"

	"github.com/azybler/chrouter/pkg/graph"
)

// bucketEntry is one (target index, distance) pair attached to a node
// during a target's backward upward search.
type bucketEntry struct {
	target uint32
	dist   uint32
}

// ManyToManyResult holds the distance matrix produced by ManyToMany.
// Distances[i][j] is the shortest distance in millimeters from sources[i]
// to targets[j], or math.MaxUint32 if no route exists.
type ManyToManyResult struct {
	Distances [][]uint32
}

// ManyToMany computes all-pairs shortest distances between sources and
// targets using the bucket-based algorithm (spec.md §4.9), grounded on the
// same CH upward-search primitive the point-to-point Engine.Route uses: any
// shortest path decomposes into an up-path from the source and a down-path
// into the target, meeting at their highest-rank common node, so a plain
// one-directional upward search from each endpoint suffices — there is no
// need for per-pair bidirectional search.
//
// Phase 1 runs one backward upward search per target, depositing a bucket
// entry at every node it settles. Phase 2 runs one forward upward search
// per source, and at each settled node scans that node's bucket to update
// the distance to every target reachable through it. This amortizes the
// target-side search across all sources, turning what would be
// len(sources)*len(targets) point queries into len(sources)+len(targets)
// one-directional searches.
func (e *Engine) ManyToMany(ctx context.Context, sources, targets []LatLng) (*ManyToManyResult, error) {
	n := e.chg.NumNodes
	buckets := make([][]bucketEntry, n)

	targetSnaps := make([]SnapResult, len(targets))
	for j, t := range targets {
		snap, err := e.snapper.Snap(t.Lat, t.Lng)
		if err != nil {
			return nil, err
		}
		targetSnaps[j] = snap

		dist := backwardUpwardDistances(e.chg, e.origGraph, snap)
		for node, d := range dist {
			if d == math.MaxUint32 {
				continue
			}
			buckets[node] = append(buckets[node], bucketEntry{target: uint32(j), dist: d})
		}

		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
	}

	result := &ManyToManyResult{Distances: make([][]uint32, len(sources))}
	for i, s := range sources {
		row := make([]uint32, len(targets))
		for j := range row {
			row[j] = math.MaxUint32
		}
		result.Distances[i] = row

		snap, err := e.snapper.Snap(s.Lat, s.Lng)
		if err != nil {
			return nil, err
		}

		dist := forwardUpwardDistances(e.chg, e.origGraph, snap)
		for node, d := range dist {
			if d == math.MaxUint32 {
				continue
			}
			for _, b := range buckets[node] {
				candidate := d + b.dist
				if candidate < row[b.target] {
					row[b.target] = candidate
				}
			}
		}
		for j, ts := range targetSnaps {
			if ts.EdgeIdx == snap.EdgeIdx && ts.Ratio >= snap.Ratio {
				direct := uint32(math.Round(float64(e.origGraph.Weight[snap.EdgeIdx]) * (ts.Ratio - snap.Ratio)))
				if direct < row[j] {
					row[j] = direct
				}
			}
		}

		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
	}

	return result, nil
}

// forwardUpwardDistances runs a plain Dijkstra over the CH forward graph
// from snap's reachable edge-based nodes, returning the distance to every
// node it settles.
func forwardUpwardDistances(chg *graph.CHGraph, g *graph.Graph, snap SnapResult) []uint32 {
	return upwardDistances(chg.FwdFirstOut, chg.FwdHead, chg.FwdWeight, chg.NumNodes, g, snap, false)
}

// backwardUpwardDistances mirrors forwardUpwardDistances over the backward
// graph, giving the distance FROM every settled node TO snap's location.
func backwardUpwardDistances(chg *graph.CHGraph, g *graph.Graph, snap SnapResult) []uint32 {
	return upwardDistances(chg.BwdFirstOut, chg.BwdHead, chg.BwdWeight, chg.NumNodes, g, snap, true)
}

// upwardDistances seeds snap's edge-based node (plus its reverse-direction
// counterpart, for a two-way street) exactly as Engine's seedForward/
// seedBackward do, then runs a one-directional Dijkstra over the given CSR
// arrays.
func upwardDistances(firstOut, head, weight []uint32, numNodes uint32, g *graph.Graph, snap SnapResult, backward bool) []uint32 {
	dist := make([]uint32, numNodes)
	for i := range dist {
		dist[i] = math.MaxUint32
	}

	var h MinHeap
	seed := func(node uint32, d uint32) {
		if d < dist[node] {
			dist[node] = d
			h.Push(node, d)
		}
	}

	edgeWeight := g.Weight[snap.EdgeIdx]
	if backward {
		seed(snap.EdgeIdx, uint32(math.Round(float64(edgeWeight)*snap.Ratio)))
	} else {
		seed(snap.EdgeIdx, uint32(math.Round(float64(edgeWeight)*(1-snap.Ratio))))
	}
	if rev := findEdge(g.FirstOut, g.Head, snap.NodeV, snap.NodeU); rev != noNode {
		revWeight := g.Weight[rev]
		if backward {
			seed(rev, uint32(math.Round(float64(revWeight)*(1-snap.Ratio))))
		} else {
			seed(rev, uint32(math.Round(float64(revWeight)*snap.Ratio)))
		}
	}

	for h.Len() > 0 {
		item := h.Pop()
		u, d := item.Node, item.Dist
		if d > dist[u] {
			continue
		}
		start, end := firstOut[u], firstOut[u+1]
		for e := start; e < end; e++ {
			v := head[e]
			newDist := d + weight[e]
			if newDist < dist[v] {
				dist[v] = newDist
				h.Push(v, newDist)
			}
		}
	}
	return dist
}
