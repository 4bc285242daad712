package routing

import (
	"context"
	"errors"
	"math"
	"sync"

	"github.com/azybler/chrouter/pkg/graph"
)

// ErrNoRoute is returned when no route exists between the two points.
var ErrNoRoute = errors.New("no route found")

// LatLng represents a geographic coordinate.
type LatLng struct {
	Lat float64
	Lng float64
}

// Segment represents a road segment in the route result.
type Segment struct {
	DistanceMeters float64
	Geometry       []LatLng
}

// RouteResult is the output of a route query.
type RouteResult struct {
	TotalDistanceMeters float64
	Segments            []Segment
}

// Router is the interface for route queries.
type Router interface {
	Route(ctx context.Context, start, end LatLng) (*RouteResult, error)
}

// Engine implements Router using a CH graph. chg is a contraction of the
// edge-based graph: its nodes are oriented original edges, addressed by
// the same ID as the corresponding edge in origGraph, so no separate
// mapping table is needed to go from a snapped road edge to a CH node.
type Engine struct {
	chg           *graph.CHGraph
	origGraph     *graph.Graph // for geometry and snap
	edgeSource    []uint32     // edgeSource[e] = source node of original edge e
	snapper       *Snapper
	qsPool        sync.Pool
	StallOnDemand bool // prune search nodes already dominated by a shorter path through a higher-rank neighbor
}

// NewEngine creates a routing engine from an edge-based CH graph and the
// original (node-based) graph it was contracted from.
func NewEngine(chg *graph.CHGraph, origGraph *graph.Graph) *Engine {
	e := &Engine{
		chg:           chg,
		origGraph:     origGraph,
		edgeSource:    buildEdgeSourceArray(origGraph),
		snapper:       NewSnapper(origGraph),
		StallOnDemand: true,
	}
	e.qsPool.New = func() any {
		return NewQueryState(chg.NumNodes)
	}
	return e
}

// buildEdgeSourceArray expands g's CSR FirstOut prefix sums into a flat
// per-edge source-node lookup, so buildGeometry can find an edge-based
// node's starting coordinates in O(1) instead of re-deriving them with a
// binary search per route.
func buildEdgeSourceArray(g *graph.Graph) []uint32 {
	src := make([]uint32, g.NumEdges)
	for u := uint32(0); u < g.NumNodes; u++ {
		start, end := g.EdgesFrom(u)
		for e := start; e < end; e++ {
			src[e] = u
		}
	}
	return src
}

// Route computes the shortest path between two points.
func (e *Engine) Route(ctx context.Context, start, end LatLng) (*RouteResult, error) {
	// Step 1: Snap points to nearest road segments.
	startSnap, err := e.snapper.Snap(start.Lat, start.Lng)
	if err != nil {
		return nil, err
	}
	endSnap, err := e.snapper.Snap(end.Lat, end.Lng)
	if err != nil {
		return nil, err
	}

	// Step 2: Run bidirectional CH Dijkstra with predecessor tracking.
	qs := e.qsPool.Get().(*QueryState)
	defer func() {
		qs.Reset()
		e.qsPool.Put(qs)
	}()

	// Seed forward PQ with start snap's endpoints.
	seedForward(qs, e.origGraph, startSnap)
	// Seed backward PQ with end snap's endpoints.
	seedBackward(qs, e.origGraph, endSnap)

	mu, meetNode := e.runCHDijkstra(ctx, qs)

	if meetNode == noNode || mu == math.MaxUint32 {
		return nil, ErrNoRoute
	}

	// Step 3: Reconstruct overlay node path.
	overlayNodes := e.reconstructOverlayPath(meetNode, qs.PredFwd, qs.PredBwd)

	// Step 4: Unpack shortcuts into the full sequence of traversed
	// edge-based nodes, i.e. original edge indices, in travel order.
	edgePath := unpackOverlayPath(e.chg, overlayNodes)

	// Step 5: Build geometry from the traversed edge sequence.
	totalDistMeters := float64(mu) / 1000.0
	geometry := e.buildGeometry(edgePath)

	return &RouteResult{
		TotalDistanceMeters: totalDistMeters,
		Segments: []Segment{
			{
				DistanceMeters: totalDistMeters,
				Geometry:       geometry,
			},
		},
	}, nil
}

// reconstructOverlayPath builds the full overlay node path from
// source seed → meetNode → target seed.
func (e *Engine) reconstructOverlayPath(meetNode uint32, predFwd, predBwd []uint32) []uint32 {
	// Forward path: meetNode ← ... ← source seed (trace backwards, then reverse).
	fwdPath := make([]uint32, 0, 16)
	node := meetNode
	for {
		fwdPath = append(fwdPath, node)
		pred := predFwd[node]
		if pred == noNode {
			break
		}
		node = pred
	}
	// Reverse to get source → meetNode.
	for i, j := 0, len(fwdPath)-1; i < j; i, j = i+1, j-1 {
		fwdPath[i], fwdPath[j] = fwdPath[j], fwdPath[i]
	}

	// Backward path: meetNode → ... → target seed.
	// predBwd[v] = u means original direction v → u (toward target).
	node = meetNode
	for {
		pred := predBwd[node]
		if pred == noNode {
			break
		}
		fwdPath = append(fwdPath, pred)
		node = pred
	}

	return fwdPath
}

// buildGeometry converts a sequence of traversed edge-based nodes (original
// edge indices, in travel order) into lat/lng coordinates, including
// intermediate shape points from each edge's geometry. Unlike the node-based
// version this replaces, no per-hop edge lookup is needed: each entry in
// edges already names the exact original edge traversed.
func (e *Engine) buildGeometry(edges []uint32) []LatLng {
	if len(edges) == 0 {
		return nil
	}

	g := e.origGraph
	// Estimate ~2 geometry points per edge (shape points + target node).
	geom := make([]LatLng, 0, len(edges)*2+1)

	first := e.edgeSource[edges[0]]
	geom = append(geom, LatLng{Lat: g.NodeLat[first], Lng: g.NodeLon[first]})

	for _, edgeIdx := range edges {
		if g.GeoFirstOut != nil && edgeIdx < uint32(len(g.GeoFirstOut)-1) {
			geoStart := g.GeoFirstOut[edgeIdx]
			geoEnd := g.GeoFirstOut[edgeIdx+1]
			for k := geoStart; k < geoEnd; k++ {
				geom = append(geom, LatLng{
					Lat: g.GeoShapeLat[k],
					Lng: g.GeoShapeLon[k],
				})
			}
		}

		v := g.Head[edgeIdx]
		geom = append(geom, LatLng{Lat: g.NodeLat[v], Lng: g.NodeLon[v]})
	}

	return geom
}

// isStalledFwd checks whether node u, just settled in the forward search at
// distance d, is dominated by a higher-rank neighbor w — i.e. an overlay
// edge w->u exists (surfaced here via u's backward-graph adjacency, which
// stores exactly the reversed higher-rank predecessors of u) whose own
// forward distance plus that edge's weight already beats d. Grounded on the
// stall-on-demand pruning rule from contraction hierarchy routing (see
// original_source's bidirectional search, which applies the same check
// before relaxing any settled node's up-edges).
func isStalledFwd(chg *graph.CHGraph, qs *QueryState, u, d uint32) bool {
	start, end := chg.BwdFirstOut[u], chg.BwdFirstOut[u+1]
	for ei := start; ei < end; ei++ {
		w := chg.BwdHead[ei]
		if qs.DistFwd[w] != math.MaxUint32 && qs.DistFwd[w]+chg.BwdWeight[ei] < d {
			return true
		}
	}
	return false
}

// isStalledBwd is isStalledFwd's mirror for the backward search.
func isStalledBwd(chg *graph.CHGraph, qs *QueryState, u, d uint32) bool {
	start, end := chg.FwdFirstOut[u], chg.FwdFirstOut[u+1]
	for ei := start; ei < end; ei++ {
		w := chg.FwdHead[ei]
		if qs.DistBwd[w] != math.MaxUint32 && qs.DistBwd[w]+chg.FwdWeight[ei] < d {
			return true
		}
	}
	return false
}

// seedForward seeds the forward PQ with every edge-based node reachable by
// departing directly from the start snap point. snap.EdgeIdx is itself a
// valid edge-based node ID (an edge-based node IS an original edge), seeded
// with the remaining distance to its head, where the next turn decision
// happens. If the snapped segment is part of a two-way street, the paired
// reverse-direction edge is seeded too, with the remaining distance to its
// own head (NodeU) — covering departure toward either endpoint of the
// segment, the same flexibility the old node-based seeding of both NodeU
// and NodeV provided.
func seedForward(qs *QueryState, g *graph.Graph, snap SnapResult) {
	weight := g.Weight[snap.EdgeIdx]
	d := uint32(math.Round(float64(weight) * (1 - snap.Ratio)))
	if d < math.MaxUint32 {
		qs.touchFwd(snap.EdgeIdx, d)
		qs.FwdPQ.Push(snap.EdgeIdx, d)
	}

	if rev := findEdge(g.FirstOut, g.Head, snap.NodeV, snap.NodeU); rev != noNode {
		revWeight := g.Weight[rev]
		rd := uint32(math.Round(float64(revWeight) * snap.Ratio))
		if rd < math.MaxUint32 {
			qs.touchFwd(rev, rd)
			qs.FwdPQ.Push(rev, rd)
		}
	}
}

// seedBackward is seedForward's mirror for the end snap point: it seeds the
// distance FROM each reachable edge-based node TO the snap point, so the
// backward search grows outward from wherever a route could arrive from.
func seedBackward(qs *QueryState, g *graph.Graph, snap SnapResult) {
	weight := g.Weight[snap.EdgeIdx]
	d := uint32(math.Round(float64(weight) * snap.Ratio))
	if d < math.MaxUint32 {
		qs.touchBwd(snap.EdgeIdx, d)
		qs.BwdPQ.Push(snap.EdgeIdx, d)
	}

	if rev := findEdge(g.FirstOut, g.Head, snap.NodeV, snap.NodeU); rev != noNode {
		revWeight := g.Weight[rev]
		rd := uint32(math.Round(float64(revWeight) * (1 - snap.Ratio)))
		if rd < math.MaxUint32 {
			qs.touchBwd(rev, rd)
			qs.BwdPQ.Push(rev, rd)
		}
	}
}

// runCHDijkstra runs bidirectional CH Dijkstra with predecessor tracking.
func (e *Engine) runCHDijkstra(ctx context.Context, qs *QueryState) (uint32, uint32) {
	mu := uint32(math.MaxUint32)
	meetNode := noNode

	iterations := uint32(0)

	for {
		// PeekDist returns MaxUint32 for empty PQ, so this also handles
		// the empty-queue case without separate Len() checks.
		fwdMin := qs.FwdPQ.PeekDist()
		bwdMin := qs.BwdPQ.PeekDist()
		if fwdMin >= mu && bwdMin >= mu {
			break
		}

		// Check context cancellation periodically (bitmask avoids modulo).
		iterations++
		if iterations&255 == 0 {
			if ctx.Err() != nil {
				return mu, meetNode
			}
		}

		// Forward step.
		if fwdMin < mu {
			item := qs.FwdPQ.Pop()
			u := item.Node
			d := item.Dist

			if d <= qs.DistFwd[u] {
				// Check meet condition.
				if qs.DistBwd[u] < math.MaxUint32 {
					candidate := d + qs.DistBwd[u]
					if candidate < mu {
						mu = candidate
						meetNode = u
					}
				}

				// Stall-on-demand: if a higher-rank neighbor already reaches
				// u more cheaply than this settlement, u's subtree can never
				// improve on a path that neighbor already provides, so skip
				// relaxing from u entirely.
				if !(e.StallOnDemand && isStalledFwd(e.chg, qs, u, d)) {
					fStart := e.chg.FwdFirstOut[u]
					fEnd := e.chg.FwdFirstOut[u+1]
					for ei := fStart; ei < fEnd; ei++ {
						v := e.chg.FwdHead[ei]
						newDist := d + e.chg.FwdWeight[ei]
						if newDist < qs.DistFwd[v] {
							qs.touchFwd(v, newDist)
							qs.FwdPQ.Push(v, newDist)
							qs.PredFwd[v] = u
						}
					}
				}
			}
		}

		// Re-check backward min against (potentially updated) mu.
		if qs.BwdPQ.PeekDist() < mu {
			item := qs.BwdPQ.Pop()
			u := item.Node
			d := item.Dist

			if d <= qs.DistBwd[u] {
				// Check meet condition.
				if qs.DistFwd[u] < math.MaxUint32 {
					candidate := qs.DistFwd[u] + d
					if candidate < mu {
						mu = candidate
						meetNode = u
					}
				}

				// Stall-on-demand, mirrored for the backward search.
				if !(e.StallOnDemand && isStalledBwd(e.chg, qs, u, d)) {
					bStart := e.chg.BwdFirstOut[u]
					bEnd := e.chg.BwdFirstOut[u+1]
					for ei := bStart; ei < bEnd; ei++ {
						v := e.chg.BwdHead[ei]
						newDist := d + e.chg.BwdWeight[ei]
						if newDist < qs.DistBwd[v] {
							qs.touchBwd(v, newDist)
							qs.BwdPQ.Push(v, newDist)
							qs.PredBwd[v] = u
						}
					}
				}
			}
		}
	}

	return mu, meetNode
}
