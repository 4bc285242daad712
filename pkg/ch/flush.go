package ch

import (
	"encoding/binary"
	"math"

	"github.com/azybler/chrouter/pkg/flushstore"
	"github.com/azybler/chrouter/pkg/graph"
)

// flushRecord is the on-disk shape of one flushed edge, in ORIGINAL
// (pre-renumbering) node-ID space, matching Contractor.h's flush format:
// a straight binary dump of (source, target, weight, via, shortcut,
// forward, backward).
type flushRecord struct {
	Source, Target graph.NodeID
	Weight         graph.Weight
	Via            graph.NodeID
	OriginalEdges  uint32
	Flags          uint8 // bit0 shortcut, bit1 forward, bit2 backward
}

const flushRecordSize = 4*5 + 1

func (r flushRecord) marshal() []byte {
	buf := make([]byte, flushRecordSize)
	binary.LittleEndian.PutUint32(buf[0:], r.Source)
	binary.LittleEndian.PutUint32(buf[4:], r.Target)
	binary.LittleEndian.PutUint32(buf[8:], r.Weight)
	binary.LittleEndian.PutUint32(buf[12:], r.Via)
	binary.LittleEndian.PutUint32(buf[16:], r.OriginalEdges)
	buf[20] = r.Flags
	return buf
}

func unmarshalFlushRecord(buf []byte) flushRecord {
	return flushRecord{
		Source:        binary.LittleEndian.Uint32(buf[0:]),
		Target:        binary.LittleEndian.Uint32(buf[4:]),
		Weight:        binary.LittleEndian.Uint32(buf[8:]),
		Via:           binary.LittleEndian.Uint32(buf[12:]),
		OriginalEdges: binary.LittleEndian.Uint32(buf[16:]),
		Flags:         buf[20],
	}
}

func edgeDataToFlags(d EdgeData) uint8 {
	var f uint8
	if d.Shortcut {
		f |= 1
	}
	if d.Forward {
		f |= 2
	}
	if d.Backward {
		f |= 4
	}
	return f
}

// shouldFlush reports whether the 65% contraction threshold (spec.md
// §4.5.5, grounded on Contractor.h's `numberOfContractedNodes >
// numberOfNodes*0.65`) has just been crossed.
func shouldFlush(contractedCount, totalNodes int, threshold float64) bool {
	if threshold <= 0 {
		threshold = defaultFlushThreshold
	}
	return float64(contractedCount) >= math.Ceil(float64(totalNodes)*threshold)
}

// flushResult carries the renumbered live graph plus the mapping needed
// to translate it back to original IDs at finalization.
type flushResult struct {
	fwd, bwd *graph.DynamicGraph[EdgeData]
	newToOld []graph.NodeID
	oldToNew map[graph.NodeID]graph.NodeID
	slot     flushstore.SlotID
}

// flush splits the live contraction graph into (a) a dense, renumbered
// graph over the still-uncontracted survivors, kept in memory for the
// remainder of contraction, and (b) every edge touching an already-
// contracted node, written to a FlushStore slot in original ID space —
// grounded on Contractor.h's flush block: the dummy-count-then-seek-back
// temp file write, and the explicit distinction between edges incident to
// an already-contracted node (flushed untouched) vs. edges between two
// survivors (kept live, renumbered).
func flush(store *flushstore.Store, fwd, bwd *graph.DynamicGraph[EdgeData], contracted []bool) (*flushResult, error) {
	oldToNew := make(map[graph.NodeID]graph.NodeID)
	var newToOld []graph.NodeID
	for old := graph.NodeID(0); old < fwd.NumNodes(); old++ {
		if !contracted[old] {
			oldToNew[old] = graph.NodeID(len(newToOld))
			newToOld = append(newToOld, old)
		}
	}

	slot, err := store.AcquireSlot()
	if err != nil {
		return nil, err
	}

	var survivorEdges []graph.InputEdge[EdgeData]
	var flushed []flushRecord

	for old := graph.NodeID(0); old < fwd.NumNodes(); old++ {
		if contracted[old] {
			for e := fwd.BeginEdges(old); e < fwd.EndEdges(old); e++ {
				d := fwd.Data(e)
				flushed = append(flushed, flushRecord{Source: old, Target: fwd.Target(e), Weight: d.Weight, Via: d.Via, OriginalEdges: d.OriginalEdges, Flags: edgeDataToFlags(*d)})
			}
			for e := bwd.BeginEdges(old); e < bwd.EndEdges(old); e++ {
				d := bwd.Data(e)
				flushed = append(flushed, flushRecord{Source: bwd.Target(e), Target: old, Weight: d.Weight, Via: d.Via, OriginalEdges: d.OriginalEdges, Flags: edgeDataToFlags(*d)})
			}
			continue
		}
		for e := fwd.BeginEdges(old); e < fwd.EndEdges(old); e++ {
			target := fwd.Target(e)
			data := *fwd.Data(e)
			data.ViaIsOriginal = data.Via != graph.SpecialID
			if newTarget, ok := oldToNew[target]; ok {
				survivorEdges = append(survivorEdges, graph.InputEdge[EdgeData]{
					Source: oldToNew[old], Target: newTarget, Data: data,
				})
			} else {
				flushed = append(flushed, flushRecord{
					Source: old, Target: target, Weight: data.Weight,
					Via: data.Via, OriginalEdges: data.OriginalEdges, Flags: edgeDataToFlags(data),
				})
			}
		}
	}

	err = store.WriteEdges(slot, flushRecordSize, func(emit func([]byte) error) (uint64, error) {
		for _, r := range flushed {
			if err := emit(r.marshal()); err != nil {
				return 0, err
			}
		}
		return uint64(len(flushed)), nil
	})
	if err != nil {
		return nil, err
	}

	newFwd := graph.NewDynamicGraph[EdgeData](graph.NodeID(len(newToOld)), survivorEdges)
	reverseEdges := make([]graph.InputEdge[EdgeData], len(survivorEdges))
	for i, e := range survivorEdges {
		reverseEdges[i] = graph.InputEdge[EdgeData]{Source: e.Target, Target: e.Source, Data: e.Data}
	}
	newBwd := graph.NewDynamicGraph[EdgeData](graph.NodeID(len(newToOld)), reverseEdges)

	return &flushResult{fwd: newFwd, bwd: newBwd, newToOld: newToOld, oldToNew: oldToNew, slot: slot}, nil
}

// readFlushed streams back every record written by flush, translating
// callback results into original-ID-space shortcuts for final export.
func readFlushed(store *flushstore.Store, slot flushstore.SlotID) ([]Shortcut, error) {
	var out []Shortcut
	err := store.ReadEdges(slot, flushRecordSize, func(buf []byte) error {
		r := unmarshalFlushRecord(buf)
		out = append(out, Shortcut{
			Source: r.Source, Target: r.Target, Weight: r.Weight, Via: r.Via,
			Forward: r.Flags&2 != 0, Backward: r.Flags&4 != 0, ViaIsOriginal: true,
		})
		return nil
	})
	return out, err
}
