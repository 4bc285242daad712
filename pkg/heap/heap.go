// Package heap implements an addressable binary min-heap keyed by node ID,
// generalized from original_source's DataStructures/BinaryHeap.h template
// and from the teacher's two ad hoc heaps (routing.MinHeap, ch's
// container/heap-based priority queue). One generic implementation serves
// witness search (pkg/ch) and contraction-cleanup verification
// (pkg/ch/cleanup.go), behind one engine with three pluggable index-storage
// backends (see storage.go). pkg/routing's CH point queries and
// many-to-many use their own routing.MinHeap instead.
package heap

import "errors"

// ErrAlreadyInserted is returned by Insert when node is already a member.
var ErrAlreadyInserted = errors.New("heap: node already inserted")

// removedKey is not referenced by the heap. BinaryHeap.h marks a removed
// slot with a key==0 sentinel; here a zero weight is a real zero-cost edge,
// so keys are stored as-is and a slot extracted via DeleteMin instead
// carries the removed flag below.
const removedKey = ^uint32(0)

type slot[Data any] struct {
	node      uint32
	key       uint32
	data      Data
	heapIndex int // position in heapArr, or -1 if not currently in the array
	removed   bool
}

// IndexStorage maps a node ID to its slot index in Heap's internal slot
// table. See storage.go for the three concrete implementations named in
// spec.md §4.1.
type IndexStorage interface {
	Get(node uint32) (slotIdx int, ok bool)
	Set(node uint32, slotIdx int)
	Clear()
}

// Heap is an addressable binary min-heap: besides Insert/DeleteMin it supports
// O(log n) DecreaseKey and O(1) membership/key lookup by node ID, which a
// plain container/heap cannot do without an external index.
type Heap[Data any] struct {
	storage IndexStorage
	slots   []slot[Data]
	heapArr []int // indices into slots, heap-ordered by slots[x].key
}

// New creates an empty heap backed by the given IndexStorage.
func New[Data any](storage IndexStorage) *Heap[Data] {
	return &Heap[Data]{storage: storage}
}

// Clear empties the heap, releasing all slots. The storage reset is O(1)
// for HashStorage (generation counter), O(n) over all preallocated slots
// for ArrayStorage, and a fresh map allocation for OrderedMapStorage.
func (h *Heap[Data]) Clear() {
	h.slots = h.slots[:0]
	h.heapArr = h.heapArr[:0]
	h.storage.Clear()
}

// WasInserted reports whether node currently occupies a slot (inserted and
// not yet permanently deleted — DeleteMin still counts as "inserted" per
// BinaryHeap.h's semantics until the slot is reused).
func (h *Heap[Data]) WasInserted(node uint32) bool {
	idx, ok := h.storage.Get(node)
	return ok && idx < len(h.slots) && h.slots[idx].node == node
}

// WasRemoved reports whether node was extracted via DeleteMin (but its
// slot metadata is still addressable — GetData/GetKey remain valid).
func (h *Heap[Data]) WasRemoved(node uint32) bool {
	idx, ok := h.storage.Get(node)
	return ok && idx < len(h.slots) && h.slots[idx].node == node && h.slots[idx].removed
}

// GetKey returns node's current weight. Caller must ensure WasInserted(node).
func (h *Heap[Data]) GetKey(node uint32) uint32 {
	idx, _ := h.storage.Get(node)
	return h.slots[idx].key
}

// GetData returns node's payload. Caller must ensure WasInserted(node).
func (h *Heap[Data]) GetData(node uint32) Data {
	idx, _ := h.storage.Get(node)
	return h.slots[idx].data
}

// Insert adds node with the given key and payload. Returns
// ErrAlreadyInserted if node is already a live member (not merely a stale,
// removed slot — re-inserting a removed node appends a new slot and points
// the storage at it).
func (h *Heap[Data]) Insert(node uint32, key uint32, data Data) error {
	if idx, ok := h.storage.Get(node); ok && idx < len(h.slots) && h.slots[idx].node == node && !h.slots[idx].removed {
		return ErrAlreadyInserted
	}
	idx := len(h.slots)
	h.slots = append(h.slots, slot[Data]{node: node, key: key, data: data, heapIndex: len(h.heapArr)})
	h.storage.Set(node, idx)
	h.heapArr = append(h.heapArr, idx)
	h.upheap(len(h.heapArr) - 1)
	return nil
}

// DecreaseKey lowers node's key. Caller must ensure the new key is <= the
// current one and that node is a live (non-removed) member.
func (h *Heap[Data]) DecreaseKey(node uint32, newKey uint32) {
	idx, _ := h.storage.Get(node)
	h.slots[idx].key = newKey
	h.upheap(h.slots[idx].heapIndex)
}

// Len returns the number of elements currently in the heap array (not the
// total number of ever-inserted slots).
func (h *Heap[Data]) Len() int { return len(h.heapArr) }

// Min returns the node with the smallest key without removing it.
func (h *Heap[Data]) Min() (node uint32, key uint32) {
	top := h.slots[h.heapArr[0]]
	return top.node, top.key
}

// DeleteMin removes and returns the minimum-key node.
func (h *Heap[Data]) DeleteMin() (node uint32, key uint32, data Data) {
	topSlot := h.heapArr[0]
	s := &h.slots[topSlot]
	node, key, data = s.node, s.key, s.data
	s.removed = true
	s.heapIndex = -1

	last := len(h.heapArr) - 1
	h.heapArr[0] = h.heapArr[last]
	h.heapArr = h.heapArr[:last]
	if last > 0 {
		h.slots[h.heapArr[0]].heapIndex = 0
		h.downheap(0)
	}
	return node, key, data
}

func (h *Heap[Data]) upheap(pos int) {
	for pos > 0 {
		parent := (pos - 1) / 2
		if h.slots[h.heapArr[parent]].key <= h.slots[h.heapArr[pos]].key {
			break
		}
		h.heapArr[parent], h.heapArr[pos] = h.heapArr[pos], h.heapArr[parent]
		h.slots[h.heapArr[parent]].heapIndex = parent
		h.slots[h.heapArr[pos]].heapIndex = pos
		pos = parent
	}
}

func (h *Heap[Data]) downheap(pos int) {
	n := len(h.heapArr)
	for {
		left, right := 2*pos+1, 2*pos+2
		smallest := pos
		if left < n && h.slots[h.heapArr[left]].key < h.slots[h.heapArr[smallest]].key {
			smallest = left
		}
		if right < n && h.slots[h.heapArr[right]].key < h.slots[h.heapArr[smallest]].key {
			smallest = right
		}
		if smallest == pos {
			return
		}
		h.heapArr[pos], h.heapArr[smallest] = h.heapArr[smallest], h.heapArr[pos]
		h.slots[h.heapArr[pos]].heapIndex = pos
		h.slots[h.heapArr[smallest]].heapIndex = smallest
		pos = smallest
	}
}
