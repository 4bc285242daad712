// Package geometry implements the GeometryCompressor (spec.md §4.7),
// grounded on original_source's Contractor/GeometryCompressor.{h,cpp}: a
// free-list-backed side table mapping a contracted edge ID to the chain of
// original node IDs it was folded from, so a shortcut can be expanded back
// into real geometry without inflating every contraction-time edge record
// with its own copy of that chain.
package geometry

import "fmt"

// Compressor owns the compressed-geometry side table. The zero value is
// not usable; use New.
type Compressor struct {
	chains       [][]uint32 // index -> node ID chain
	freeList     []uint32   // indices of chains[] available for reuse
	edgeToChain  map[uint32]uint32
}

// New returns an empty Compressor.
func New() *Compressor {
	return &Compressor{edgeToChain: make(map[uint32]uint32)}
}

func (c *Compressor) allocChain() uint32 {
	if n := len(c.freeList); n > 0 {
		idx := c.freeList[n-1]
		c.freeList = c.freeList[:n-1]
		c.chains[idx] = c.chains[idx][:0]
		return idx
	}
	c.chains = append(c.chains, nil)
	return uint32(len(c.chains) - 1)
}

// HasEntry reports whether edgeID already has a compressed geometry chain.
func (c *Compressor) HasEntry(edgeID uint32) bool {
	_, ok := c.edgeToChain[edgeID]
	return ok
}

// CompressEdge folds two adjacent edges (firstEdgeID, secondEdgeID), which
// meet at viaNodeID, into a single compressed geometry chain owned by
// firstEdgeID (allocated if firstEdgeID has none yet). viaNodeID is always
// appended to that chain, followed by the second edge's chain if it has
// one; the second edge's chain is then released.
func (c *Compressor) CompressEdge(firstEdgeID, secondEdgeID, viaNodeID uint32) {
	idx, ok := c.edgeToChain[firstEdgeID]
	if !ok {
		idx = c.allocChain()
		c.edgeToChain[firstEdgeID] = idx
	}
	c.chains[idx] = append(c.chains[idx], viaNodeID)

	if secondIdx, ok := c.edgeToChain[secondEdgeID]; ok {
		c.chains[idx] = append(c.chains[idx], c.chains[secondIdx]...)
		delete(c.edgeToChain, secondEdgeID)
		c.freeList = append(c.freeList, secondIdx)
	}
}

// AddNodeIDToCompressedEdge appends a single intermediate node to edgeID's
// chain, allocating one if needed.
func (c *Compressor) AddNodeIDToCompressedEdge(edgeID, nodeID uint32) {
	idx, ok := c.edgeToChain[edgeID]
	if !ok {
		idx = c.allocChain()
		c.edgeToChain[edgeID] = idx
	}
	c.chains[idx] = append(c.chains[idx], nodeID)
}

// GetPositionForID returns edgeID's chain (the intermediate node IDs, in
// traversal order), or nil if it has no compressed geometry.
func (c *Compressor) GetPositionForID(edgeID uint32) []uint32 {
	idx, ok := c.edgeToChain[edgeID]
	if !ok {
		return nil
	}
	return c.chains[idx]
}

// Serialize returns the compressed geometry table for edgeOrder as a
// prefix-sum index array of len(edgeOrder)+1 entries and the flattened
// node-ID payload; it writes nothing and emits no separate count.
func (c *Compressor) Serialize(edgeOrder []uint32) (indices []uint32, payload []uint32) {
	indices = make([]uint32, len(edgeOrder)+1)
	for i, e := range edgeOrder {
		indices[i+1] = indices[i] + uint32(len(c.GetPositionForID(e)))
	}
	payload = make([]uint32, 0, indices[len(edgeOrder)])
	for _, e := range edgeOrder {
		payload = append(payload, c.GetPositionForID(e)...)
	}
	return indices, payload
}

// PrintStatistics returns a human-readable summary, mirroring the
// original's PrintStatistics debug helper.
func (c *Compressor) PrintStatistics() string {
	var totalEntries int
	for _, ch := range c.chains {
		totalEntries += len(ch)
	}
	return fmt.Sprintf("geometry compressor: %d edges, %d free slots, %d total node entries",
		len(c.edgeToChain), len(c.freeList), totalEntries)
}
