package ch

import (
	"math"
	"sort"
	"testing"

	"github.com/azybler/chrouter/pkg/graph"
	"github.com/azybler/chrouter/pkg/heap"
)

// origWeight looks up the weight of the direct edge u->v in the
// pre-contraction graph, the base case every shortcut must bottom out at.
func origWeight(g *graph.Graph, u, v uint32) (uint32, bool) {
	start, end := g.EdgesFrom(u)
	for e := start; e < end; e++ {
		if g.Head[e] == v {
			return g.Weight[e], true
		}
	}
	return 0, false
}

// unpackWeight recursively sums the original-edge weights a forward or
// backward CH overlay edge represents, bottoming out once Middle < 0.
func unpackWeight(t *testing.T, g *graph.Graph, chg *graph.CHGraph, u, v uint32, middle int32, forward bool) uint32 {
	t.Helper()
	if middle < 0 {
		w, ok := origWeight(g, u, v)
		if !ok {
			t.Fatalf("unshortcut edge %d->%d has no matching original edge", u, v)
		}
		return w
	}
	mid := uint32(middle)

	var firstOut, head []uint32
	var midd []int32
	if forward {
		firstOut, head, midd = chg.FwdFirstOut, chg.FwdHead, chg.FwdMiddle
	} else {
		firstOut, head, midd = chg.BwdFirstOut, chg.BwdHead, chg.BwdMiddle
	}

	leftMiddle, ok1 := findCHEdgeMiddle(firstOut, head, midd, u, mid)
	rightMiddle, ok2 := findCHEdgeMiddle(firstOut, head, midd, mid, v)
	if !ok1 || !ok2 {
		t.Fatalf("shortcut %d->%d via %d: sub-edge not found in overlay", u, v, mid)
	}
	left := unpackWeight(t, g, chg, u, mid, leftMiddle, forward)
	right := unpackWeight(t, g, chg, mid, v, rightMiddle, forward)
	return left + right
}

func findCHEdgeMiddle(firstOut, head []uint32, middle []int32, u, v uint32) (int32, bool) {
	start, end := firstOut[u], firstOut[u+1]
	for e := start; e < end; e++ {
		if head[e] == v {
			return middle[e], true
		}
	}
	return 0, false
}

// TestShortcutSoundness verifies invariant 1: for every overlay edge,
// recursively unpacking it down to original edges reproduces its weight.
func TestShortcutSoundness(t *testing.T) {
	g := buildTestGraph()
	chg, err := Contract(g, Options{})
	if err != nil {
		t.Fatalf("Contract: %v", err)
	}

	for u := uint32(0); u < chg.NumNodes; u++ {
		start, end := chg.FwdFirstOut[u], chg.FwdFirstOut[u+1]
		for e := start; e < end; e++ {
			v := chg.FwdHead[e]
			got := unpackWeight(t, g, chg, u, v, chg.FwdMiddle[e], true)
			if got != chg.FwdWeight[e] {
				t.Errorf("fwd edge %d->%d: unpacked weight %d, want %d", u, v, got, chg.FwdWeight[e])
			}
		}
		start, end = chg.BwdFirstOut[u], chg.BwdFirstOut[u+1]
		for e := start; e < end; e++ {
			v := chg.BwdHead[e]
			got := unpackWeight(t, g, chg, u, v, chg.BwdMiddle[e], false)
			if got != chg.BwdWeight[e] {
				t.Errorf("bwd edge %d->%d: unpacked weight %d, want %d", u, v, got, chg.BwdWeight[e])
			}
		}
	}
}

// TestContractionDeterminism verifies invariant 4: contracting the same
// graph with different worker counts yields the same edge set once sorted,
// even though the Workers-driven parallel fan-out visits nodes in a
// different order each time.
func TestContractionDeterminism(t *testing.T) {
	type sortableEdge struct {
		u, v, w uint32
	}
	collect := func(firstOut, head, weight []uint32) []sortableEdge {
		var edges []sortableEdge
		for u := uint32(0); u < uint32(len(firstOut)-1); u++ {
			for e := firstOut[u]; e < firstOut[u+1]; e++ {
				edges = append(edges, sortableEdge{u, head[e], weight[e]})
			}
		}
		sort.Slice(edges, func(i, j int) bool {
			if edges[i].u != edges[j].u {
				return edges[i].u < edges[j].u
			}
			if edges[i].v != edges[j].v {
				return edges[i].v < edges[j].v
			}
			return edges[i].w < edges[j].w
		})
		return edges
	}

	g := buildTestGraph()

	ch1, err := Contract(g, Options{Workers: 1})
	if err != nil {
		t.Fatalf("Contract(Workers:1): %v", err)
	}
	ch4, err := Contract(g, Options{Workers: 4})
	if err != nil {
		t.Fatalf("Contract(Workers:4): %v", err)
	}

	fwd1 := collect(ch1.FwdFirstOut, ch1.FwdHead, ch1.FwdWeight)
	fwd4 := collect(ch4.FwdFirstOut, ch4.FwdHead, ch4.FwdWeight)
	if len(fwd1) != len(fwd4) {
		t.Fatalf("fwd edge count differs: Workers=1 has %d, Workers=4 has %d", len(fwd1), len(fwd4))
	}
	for i := range fwd1 {
		if fwd1[i] != fwd4[i] {
			t.Errorf("fwd edge %d differs: Workers=1 %+v, Workers=4 %+v", i, fwd1[i], fwd4[i])
		}
	}

	bwd1 := collect(ch1.BwdFirstOut, ch1.BwdHead, ch1.BwdWeight)
	bwd4 := collect(ch4.BwdFirstOut, ch4.BwdHead, ch4.BwdWeight)
	if len(bwd1) != len(bwd4) {
		t.Fatalf("bwd edge count differs: Workers=1 has %d, Workers=4 has %d", len(bwd1), len(bwd4))
	}
	for i := range bwd1 {
		if bwd1[i] != bwd4[i] {
			t.Errorf("bwd edge %d differs: Workers=1 %+v, Workers=4 %+v", i, bwd1[i], bwd4[i])
		}
	}
}

// TestContractionCleanupNoDuplicateEdges checks a corollary of decision 2's
// re-enabled witness-verification pass: ContractionCleanup merges/drops
// edges so that no node ends up with two parallel forward edges to the
// same target in the final overlay.
func TestContractionCleanupNoDuplicateEdges(t *testing.T) {
	g := buildTestGraph()
	chg, err := Contract(g, Options{})
	if err != nil {
		t.Fatalf("Contract: %v", err)
	}

	for u := uint32(0); u < chg.NumNodes; u++ {
		start, end := chg.FwdFirstOut[u], chg.FwdFirstOut[u+1]
		if start == end {
			continue
		}
		seen := make(map[uint32]bool, int(end-start))
		for e := start; e < end; e++ {
			v := chg.FwdHead[e]
			if seen[v] {
				t.Errorf("node %d has duplicate forward edge to %d after cleanup", u, v)
			}
			seen[v] = true
		}
	}
}

// TestHeapNonDecreasingOrder verifies invariant 5 against the generic
// heap backing both witness search and CH query: random insert/
// decrease-key/delete-min sequences must delete in non-decreasing key
// order, and WasInserted/WasRemoved must agree with the sequence.
func TestHeapNonDecreasingOrder(t *testing.T) {
	h := heap.New[struct{}](heap.NewArrayStorage(16))

	inserts := []struct {
		node uint32
		key  uint32
	}{
		{5, 50}, {2, 20}, {8, 80}, {1, 10}, {7, 70},
		{3, 30}, {9, 90}, {4, 40}, {6, 60}, {0, 100},
	}
	for _, ins := range inserts {
		if err := h.Insert(ins.node, ins.key, struct{}{}); err != nil {
			t.Fatalf("Insert(%d): %v", ins.node, err)
		}
		if !h.WasInserted(ins.node) {
			t.Errorf("node %d: WasInserted false right after Insert", ins.node)
		}
	}
	// Decrease node 0's key from 100 to 5 — it should now delete first.
	h.DecreaseKey(0, 5)

	var popped []uint32
	last := uint32(0)
	for h.Len() > 0 {
		node, key, _ := h.DeleteMin()
		if key < last {
			t.Errorf("heap deleted out of order: %d after %d", key, last)
		}
		last = key
		popped = append(popped, node)
		if !h.WasRemoved(node) {
			t.Errorf("node %d: WasRemoved false right after DeleteMin", node)
		}
	}
	if len(popped) != len(inserts) {
		t.Fatalf("deleted %d items, want %d", len(popped), len(inserts))
	}
	if popped[0] != 0 {
		t.Errorf("expected node 0 (decreased key) to delete first, got node %d", popped[0])
	}
}

func TestContractEmptyGraph(t *testing.T) {
	g := &graph.Graph{}
	chg, err := Contract(g, Options{})
	if err != nil {
		t.Fatalf("Contract: %v", err)
	}
	if chg.NumNodes != 0 {
		t.Errorf("empty graph: NumNodes=%d, want 0", chg.NumNodes)
	}
}

func TestContractionFlushThreshold(t *testing.T) {
	g := buildTestGraph()
	// Force an early flush to exercise pkg/flushstore's round trip on a
	// graph small enough that it would otherwise never cross the default
	// 65% threshold mid-round.
	chg, err := Contract(g, Options{FlushThreshold: 0.1})
	if err != nil {
		t.Fatalf("Contract(FlushThreshold:0.1): %v", err)
	}
	for s := uint32(0); s < g.NumNodes; s++ {
		for d := uint32(0); d < g.NumNodes; d++ {
			if s == d {
				continue
			}
			plainDist := plainDijkstra(g, s, d)
			chDist := chDijkstra(chg, s, d)
			if chDist != plainDist && plainDist != math.MaxUint32 {
				t.Errorf("with early flush, s=%d d=%d: CH=%d, Dijkstra=%d", s, d, chDist, plainDist)
			}
		}
	}
}
