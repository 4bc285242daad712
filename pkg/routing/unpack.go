package routing

import "github.com/azybler/chrouter/pkg/graph"

// unpackOverlayPath turns a sequence of CH overlay node IDs (as produced by
// the bidirectional search's meeting-point reconstruction) into the full
// sequence of original-graph node IDs, unpacking every shortcut hop found
// along the way via the forward graph's middle-node table.
func unpackOverlayPath(chg *graph.CHGraph, overlayNodes []uint32) []uint32 {
	if len(overlayNodes) == 0 {
		return nil
	}

	result := []uint32{overlayNodes[0]}
	for i := 0; i < len(overlayNodes)-1; i++ {
		u, v := overlayNodes[i], overlayNodes[i+1]
		expanded := unpackHop(chg, u, v)
		result = append(result, expanded...)
	}
	return result
}

// unpackHop expands the single overlay edge u->v into the original node
// sequence it represents (excluding u, including v), trying the forward
// graph first (u is the lower-rank endpoint) and falling back to the
// backward graph otherwise.
func unpackHop(chg *graph.CHGraph, u, v uint32) []uint32 {
	if e := findEdge(chg.FwdFirstOut, chg.FwdHead, u, v); e != noNode {
		return unpackEdgeNodes(chg, u, v, chg.FwdMiddle[e])
	}
	if e := findEdge(chg.BwdFirstOut, chg.BwdHead, v, u); e != noNode {
		return unpackEdgeNodes(chg, u, v, chg.BwdMiddle[e])
	}
	return []uint32{v}
}

// unpackEdgeNodes recursively expands one overlay edge given its middle
// node (-1 if it is an original, unshortcut edge).
func unpackEdgeNodes(chg *graph.CHGraph, u, v uint32, middle int32) []uint32 {
	if middle < 0 {
		return []uint32{v}
	}
	mid := uint32(middle)
	return append(unpackHop(chg, u, mid), unpackHop(chg, mid, v)...)
}

const noNode = ^uint32(0) // sentinel for "no node"

// findEdge finds an edge from source to target in a CSR graph.
func findEdge(firstOut, head []uint32, source, target uint32) uint32 {
	start := firstOut[source]
	end := firstOut[source+1]
	for e := start; e < end; e++ {
		if head[e] == target {
			return e
		}
	}
	return noNode
}
