package ch

import (
	"log"
	"runtime"
	"sort"

	"github.com/azybler/chrouter/pkg/flushstore"
	"github.com/azybler/chrouter/pkg/graph"
	"github.com/azybler/chrouter/pkg/hash"
)

// Contract performs full Contraction Hierarchies preprocessing on g,
// replacing the teacher's simplified edge-difference-priority /
// core-cutoff contractor with the complete algorithm spec.md §4.5
// describes: simulated-contraction priority (priority.go), 2-hop
// independent-set parallel rounds (independent.go, parallel.go), and a
// mid-preprocessing flush at the 65% mark (flush.go) instead of the
// teacher's maxShortcutsPerNode bail-out.
func Contract(g *graph.Graph, opts Options) (*graph.CHGraph, error) {
	n := g.NumNodes
	if n == 0 {
		return &graph.CHGraph{}, nil
	}
	if opts.Workers <= 0 {
		opts.Workers = defaultWorkers()
	}
	seed := opts.HashSeed
	if seed == 0 {
		seed = defaultHashSeed
	}
	sharedHasher = hash.NewTabulation(seed)

	fwd, bwd := buildInitialGraphs(g)

	contracted := make([]bool, n)
	depth := make([]int, n)
	rank := make([]uint32, n)
	priority := make(map[graph.NodeID]float64, n)

	ws := newWitnessState(sharedHasher)
	for v := graph.NodeID(0); v < n; v++ {
		priority[v] = evaluatePriority(findShortcuts(ws, fwd, bwd, v, contracted, true), depth[v])
	}

	store := flushstore.New()
	defer store.Close()
	flushed := false
	var flushSlot flushstore.SlotID
	newToOld := make([]graph.NodeID, n)
	for i := range newToOld {
		newToOld[i] = graph.NodeID(i)
	}

	remaining := make([]graph.NodeID, n)
	for i := range remaining {
		remaining[i] = graph.NodeID(i)
	}

	var order uint32
	var totalShortcuts int
	log.Printf("ch: starting contraction of %d nodes", n)

	for len(remaining) > 0 {
		sort.Slice(remaining, func(i, j int) bool { return priority[remaining[i]] < priority[remaining[j]] })

		independentSet := selectIndependentSet(fwd, bwd, remaining, priority, contracted, sharedHasher)
		if len(independentSet) == 0 {
			independentSet = remaining[:1] // degenerate fallback: always make progress
		}

		result := contractRound(fwd, bwd, independentSet, contracted, opts.Workers)
		totalShortcuts += len(result.shortcuts)

		for _, v := range independentSet {
			rank[newToOld[v]] = order
			order++
		}
		for nb := range result.dirtyNeighbors {
			if !contracted[nb] {
				depth[nb]++
				priority[nb] = evaluatePriority(findShortcuts(ws, fwd, bwd, nb, contracted, true), depth[nb])
			}
		}

		stillRemaining := remaining[:0]
		contractedSet := make(map[graph.NodeID]struct{}, len(independentSet))
		for _, v := range independentSet {
			contractedSet[v] = struct{}{}
		}
		for _, v := range remaining {
			if _, done := contractedSet[v]; !done {
				stillRemaining = append(stillRemaining, v)
			}
		}
		remaining = stillRemaining

		contractedCount := int(order)
		if !flushed && shouldFlush(contractedCount, int(n), opts.FlushThreshold) {
			fr, err := flush(store, fwd, bwd, contracted)
			if err != nil {
				return nil, err
			}
			fwd, bwd = fr.fwd, fr.bwd
			flushSlot = fr.slot
			flushed = true

			translated := make([]graph.NodeID, len(remaining))
			for i, v := range remaining {
				translated[i] = fr.oldToNew[newToOld[v]]
			}
			remaining = translated
			contracted = make([]bool, len(fr.newToOld))
			newDepth := make([]int, len(fr.newToOld))
			newPriority := make(map[graph.NodeID]float64, len(fr.newToOld))
			for newID, oldID := range fr.newToOld {
				newDepth[newID] = depth[oldID]
				newPriority[graph.NodeID(newID)] = priority[oldID]
			}
			depth, priority = newDepth, newPriority

			combined := make([]graph.NodeID, len(fr.newToOld))
			for newID, oldID := range fr.newToOld {
				combined[newID] = newToOld[oldID]
			}
			newToOld = combined

			log.Printf("ch: flushed at %d/%d contracted nodes, %d survivors remain live", contractedCount, n, len(newToOld))
		}

		if order%50000 == 0 || len(remaining) == 0 {
			log.Printf("ch: contracted %d/%d nodes, %d shortcuts so far", order, n, totalShortcuts)
		}
	}

	finalShortcuts := collectShortcuts(fwd, bwd, newToOld)
	if flushed {
		flushedShortcuts, err := readFlushed(store, flushSlot)
		if err != nil {
			return nil, err
		}
		finalShortcuts = append(finalShortcuts, flushedShortcuts...)
	}

	finalShortcuts = Cleanup(finalShortcuts, n, seed)
	log.Printf("ch: contraction complete, %d shortcuts after cleanup", len(finalShortcuts))

	return buildOverlay(g, finalShortcuts, rank), nil
}

func defaultWorkers() int {
	if w := runtime.NumCPU(); w > 0 {
		return w
	}
	return 4
}

func buildInitialGraphs(g *graph.Graph) (fwd, bwd *graph.DynamicGraph[EdgeData]) {
	edges := make([]graph.InputEdge[EdgeData], 0, g.NumEdges)
	reverse := make([]graph.InputEdge[EdgeData], 0, g.NumEdges)
	for u := graph.NodeID(0); u < g.NumNodes; u++ {
		start, end := g.EdgesFrom(u)
		for e := start; e < end; e++ {
			data := EdgeData{Weight: g.Weight[e], OriginalEdges: 1, Via: graph.SpecialID, Forward: true}
			edges = append(edges, graph.InputEdge[EdgeData]{Source: u, Target: g.Head[e], Data: data})
			reverse = append(reverse, graph.InputEdge[EdgeData]{Source: g.Head[e], Target: u, Data: data})
		}
	}
	return graph.NewDynamicGraph(g.NumNodes, edges), graph.NewDynamicGraph(g.NumNodes, reverse)
}

// collectShortcuts reads back every live edge from the final (possibly
// flushed-and-renumbered) fwd and bwd graphs — a bwd edge at u with target
// t is the original-direction edge t->u — translating node IDs back to
// original-space via newToOld. The shortcut's Via is translated too,
// unless ViaIsOriginal marks it as already in original space.
func collectShortcuts(fwd, bwd *graph.DynamicGraph[EdgeData], newToOld []graph.NodeID) []Shortcut {
	var out []Shortcut
	emit := func(u, v graph.NodeID, d *EdgeData) {
		via := d.Via
		if via != graph.SpecialID && !d.ViaIsOriginal {
			via = newToOld[via]
		}
		out = append(out, Shortcut{
			Source: newToOld[u], Target: newToOld[v],
			Weight: d.Weight, Via: via, Forward: true, ViaIsOriginal: true,
		})
	}
	for u := graph.NodeID(0); u < fwd.NumNodes(); u++ {
		for e := fwd.BeginEdges(u); e < fwd.EndEdges(u); e++ {
			emit(u, fwd.Target(e), fwd.Data(e))
		}
		for e := bwd.BeginEdges(u); e < bwd.EndEdges(u); e++ {
			emit(bwd.Target(e), u, bwd.Data(e))
		}
	}
	return out
}

// buildOverlay constructs the forward/backward upward CSR overlay from the
// final shortcut set and node ranks, matching the teacher's buildOverlay
// shape but sourced from a flat Shortcut slice instead of adjacency lists.
func buildOverlay(orig *graph.Graph, shortcuts []Shortcut, rank []uint32) *graph.CHGraph {
	n := orig.NumNodes

	type csrEdge struct {
		from, to, weight uint32
		middle           int32
		viaIsOriginal    bool
	}
	var fwdEdges, bwdEdges []csrEdge
	for _, s := range shortcuts {
		middle := int32(-1)
		if s.Via != graph.SpecialID {
			middle = int32(s.Via)
		}
		if rank[s.Source] < rank[s.Target] {
			fwdEdges = append(fwdEdges, csrEdge{from: s.Source, to: s.Target, weight: s.Weight, middle: middle, viaIsOriginal: s.ViaIsOriginal})
		}
		if rank[s.Target] < rank[s.Source] {
			bwdEdges = append(bwdEdges, csrEdge{from: s.Target, to: s.Source, weight: s.Weight, middle: middle, viaIsOriginal: s.ViaIsOriginal})
		}
	}

	// buildCSR also emits a parallel flags byte per edge (bit0 =
	// via_is_original), matching the .hsgr EdgeData{weight; id_or_middle;
	// flags} record (spec.md §6).
	buildCSR := func(edges []csrEdge) (firstOut, head, weight []uint32, middle []int32, flags []uint8) {
		numEdges := uint32(len(edges))
		firstOut = make([]uint32, n+1)
		head = make([]uint32, numEdges)
		weight = make([]uint32, numEdges)
		middle = make([]int32, numEdges)
		flags = make([]uint8, numEdges)
		for _, e := range edges {
			firstOut[e.from+1]++
		}
		for i := uint32(1); i <= n; i++ {
			firstOut[i] += firstOut[i-1]
		}
		pos := make([]uint32, n)
		copy(pos, firstOut[:n])
		for _, e := range edges {
			idx := pos[e.from]
			head[idx], weight[idx], middle[idx] = e.to, e.weight, e.middle
			if e.viaIsOriginal {
				flags[idx] |= flagViaIsOriginal
			}
			pos[e.from]++
		}
		return
	}

	fwdFirstOut, fwdHead, fwdWeight, fwdMiddle, fwdFlags := buildCSR(fwdEdges)
	bwdFirstOut, bwdHead, bwdWeight, bwdMiddle, bwdFlags := buildCSR(bwdEdges)

	return &graph.CHGraph{
		NumNodes:     n,
		NodeLat:      orig.NodeLat,
		NodeLon:      orig.NodeLon,
		Rank:         rank,
		FwdFirstOut:  fwdFirstOut,
		FwdHead:      fwdHead,
		FwdWeight:    fwdWeight,
		FwdMiddle:    fwdMiddle,
		FwdFlags:     fwdFlags,
		BwdFirstOut:  bwdFirstOut,
		BwdHead:      bwdHead,
		BwdWeight:    bwdWeight,
		BwdMiddle:    bwdMiddle,
		BwdFlags:     bwdFlags,
		OrigFirstOut: orig.FirstOut,
		OrigHead:     orig.Head,
		OrigWeight:   orig.Weight,
		GeoFirstOut:  orig.GeoFirstOut,
		GeoShapeLat:  orig.GeoShapeLat,
		GeoShapeLon:  orig.GeoShapeLon,
	}
}

// flagViaIsOriginal is the .hsgr edge flags byte's via_is_original bit
// (spec.md §6): set once a shortcut's Via has been translated back to
// original-node-ID space, which collectShortcuts/readFlushed guarantee is
// always true by the time Contract returns.
const flagViaIsOriginal uint8 = 1 << 0
