package ebg

import "github.com/azybler/chrouter/pkg/graph"

// ToGraph flattens a Result into a plain CSR graph.Graph whose nodes are
// r's edge-based nodes (one per oriented original edge, addressed by the
// same ID as the underlying original CSR edge) and whose edges are r's
// legal turns. This is the graph ch.Contract runs on: contracting it
// yields a CH overlay that can only ever relax a turn ebg.Expand actually
// produced, so a prohibited or missing turn restriction is structurally
// absent from the overlay rather than merely unused by it.
//
// The returned graph carries no NodeLat/NodeLon/geometry of its own — an
// edge-based node is an oriented segment, not a point — callers reattach
// the real original graph's passthrough fields onto the CH result
// afterward (see cmd/preprocess/main.go).
func ToGraph(r *Result) *graph.Graph {
	n := uint32(len(r.Nodes))
	m := uint32(len(r.Edges))

	firstOut := make([]uint32, n+1)
	for _, e := range r.Edges {
		firstOut[e.Source+1]++
	}
	for i := uint32(1); i <= n; i++ {
		firstOut[i] += firstOut[i-1]
	}

	head := make([]uint32, m)
	weight := make([]uint32, m)
	pos := make([]uint32, n)
	copy(pos, firstOut[:n])
	for _, e := range r.Edges {
		idx := pos[e.Source]
		head[idx] = e.Target
		weight[idx] = e.Weight
		pos[e.Source]++
	}

	return &graph.Graph{
		NumNodes: n,
		NumEdges: m,
		FirstOut: firstOut,
		Head:     head,
		Weight:   weight,
	}
}
