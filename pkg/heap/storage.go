package heap

import "github.com/azybler/chrouter/pkg/hash"

// ArrayStorage is a dense []int index, O(1) per Get/Set, for ID spaces
// where node IDs are small and contiguous (0..N).
// Grounded on BinaryHeap.h's ArrayStorage.
type ArrayStorage struct {
	slot []int
}

// NewArrayStorage preallocates for numNodes contiguous node IDs.
func NewArrayStorage(numNodes int) *ArrayStorage {
	s := &ArrayStorage{slot: make([]int, numNodes)}
	for i := range s.slot {
		s.slot[i] = -1
	}
	return s
}

func (s *ArrayStorage) Get(node uint32) (int, bool) {
	if int(node) >= len(s.slot) {
		return 0, false
	}
	idx := s.slot[node]
	return idx, idx >= 0
}

func (s *ArrayStorage) Set(node uint32, idx int) {
	if int(node) >= len(s.slot) {
		grown := make([]int, int(node)+1)
		for i := range grown {
			grown[i] = -1
		}
		copy(grown, s.slot)
		s.slot = grown
	}
	s.slot[node] = idx
}

func (s *ArrayStorage) Clear() {
	for i := range s.slot {
		s.slot[i] = -1
	}
}

// OrderedMapStorage is a plain Go map, for sparse ID spaces. Offered for
// completeness per spec.md §4.1; the contraction-side heaps (witness
// search, cleanup) use HashStorage instead.
type OrderedMapStorage struct {
	m map[uint32]int
}

func NewOrderedMapStorage() *OrderedMapStorage {
	return &OrderedMapStorage{m: make(map[uint32]int)}
}

func (s *OrderedMapStorage) Get(node uint32) (int, bool) { idx, ok := s.m[node]; return idx, ok }
func (s *OrderedMapStorage) Set(node uint32, idx int)    { s.m[node] = idx }
func (s *OrderedMapStorage) Clear()                      { s.m = make(map[uint32]int) }

// HashStorage is a tabulation-hashed open-addressing table with a
// generation counter for O(1) amortized Clear, grounded on
// XORFastHashStorage.h. Used by pkg/ch's witness-search and cleanup heaps:
// a bounded search only settles a small fraction of the graph, so
// re-zeroing a dense array every search (as ArrayStorage would require) is
// wasted work — this generalizes the teacher's Touched-slice fast-reset trick
// into a reusable, allocation-free-after-warmup component.
type HashStorage struct {
	hasher     *hash.Tabulation
	cells      []cell
	generation uint32
}

type cell struct {
	node       uint32
	slotIdx    int
	generation uint32
	occupied   bool
}

// NewHashStorage allocates a fixed table of 1<<17 cells (mirroring
// XORFastHashStorage.h's "2<<16 slots" sizing) that hashes with the given
// tabulation hasher.
func NewHashStorage(hasher *hash.Tabulation) *HashStorage {
	const size = 1 << 17
	return &HashStorage{hasher: hasher, cells: make([]cell, size), generation: 1}
}

func (s *HashStorage) probe(node uint32) int {
	pos := int(s.hasher.Hash(node)) % len(s.cells)
	for {
		c := &s.cells[pos]
		if c.generation != s.generation {
			return pos // empty at current generation
		}
		if c.node == node {
			return pos
		}
		pos++
		if pos == len(s.cells) {
			pos = 0
		}
	}
}

func (s *HashStorage) Get(node uint32) (int, bool) {
	pos := s.probe(node)
	c := &s.cells[pos]
	if c.generation != s.generation || c.node != node {
		return 0, false
	}
	return c.slotIdx, true
}

func (s *HashStorage) Set(node uint32, idx int) {
	pos := s.probe(node)
	s.cells[pos] = cell{node: node, slotIdx: idx, generation: s.generation, occupied: true}
}

// Clear is O(1): bump the generation so every existing cell reads as
// stale on next probe, exactly as XORFastHashStorage.h's Clear() does.
func (s *HashStorage) Clear() {
	s.generation++
	if s.generation == 0 { // wrapped around; the rare slow path
		for i := range s.cells {
			s.cells[i] = cell{}
		}
		s.generation = 1
	}
}
