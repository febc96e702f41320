package tracker

import "math/rand"

// LRUChainTracker tracks recency with an intrusive, slot-indexed doubly or
// singly linked chain: head is most recently used, tail is the eviction
// candidate. "Intrusive" here means the links live in slot-indexed arrays
// owned by the tracker, not in separately heap-allocated list nodes, so
// tracking a tuple never allocates.
//
// Mirrors the move-to-head-on-access shape of buffer/bufferMgr.go's
// lruHead/lruTail chain, generalized from a fixed buffer pool to an
// arbitrary, growable table slot range.
//
// The two link modes are not just a naming difference. Doubly linked
// (double=true) maintains prev so removal of any slot is O(1): prev points
// oldest->newest, next points newest->oldest, and unlink splices both
// directly. Singly linked (double=false) never links through prev (the
// prev array is still allocated and kept at NoSlot in that mode, so no
// memory is saved); next instead points oldest->newest (the reverse of the
// doubly linked mode's next), so removing anything but the oldest slot
// has to scan forward from the tail comparing against the target,
// exactly the "cost of saving one header slot" spec.md's §9 describes.
type LRUChainTracker struct {
	double bool // doubly linked when true; prev is allocated but unused otherwise

	next, prev []SlotID
	head, tail SlotID

	rng        *rand.Rand
	sampleRate int // update the chain on a random 1-in-sampleRate roll of OnAccess
}

// NewLRUChainTracker creates a tracker over up to capacity slots.
// double selects a doubly linked chain (O(1) mid-chain removal) over a
// singly linked one (cheaper per-node, O(n) removal). sampleRate of 100
// matches the original engine's 1-in-100 update sampling; pass 1 to disable
// sampling entirely.
func NewLRUChainTracker(capacity int, double bool, sampleRate int, seed int64) *LRUChainTracker {
	if sampleRate < 1 {
		sampleRate = 1
	}
	t := &LRUChainTracker{
		double:     double,
		next:       make([]SlotID, capacity),
		prev:       make([]SlotID, capacity),
		head:       NoSlot,
		tail:       NoSlot,
		rng:        rand.New(rand.NewSource(seed)),
		sampleRate: sampleRate,
	}
	for i := range t.next {
		t.next[i] = NoSlot
		t.prev[i] = NoSlot
	}
	return t
}

func (t *LRUChainTracker) Name() string {
	if t.double {
		return "lru-chain-double"
	}
	return "lru-chain-single"
}

func (t *LRUChainTracker) grow(slot SlotID) {
	if int(slot) < len(t.next) {
		return
	}
	newLen := int(slot) + 1
	next := make([]SlotID, newLen)
	prev := make([]SlotID, newLen)
	copy(next, t.next)
	copy(prev, t.prev)
	for i := len(t.next); i < newLen; i++ {
		next[i] = NoSlot
		prev[i] = NoSlot
	}
	t.next, t.prev = next, prev
}

// unlink splices slot out of the doubly linked chain in O(1). The caller
// must hold no assumption about slot's current neighbors surviving; they
// are spliced together directly, with no tombstone left behind.
func (t *LRUChainTracker) unlink(slot SlotID) {
	p, n := t.prev[slot], t.next[slot]
	if p != NoSlot {
		t.next[p] = n
	} else if t.head == slot {
		t.head = n
	}
	if n != NoSlot {
		t.prev[n] = p
	} else if t.tail == slot {
		t.tail = p
	}
	t.next[slot] = NoSlot
	t.prev[slot] = NoSlot
}

func (t *LRUChainTracker) pushFront(slot SlotID) {
	t.next[slot] = t.head
	t.prev[slot] = NoSlot
	if t.head != NoSlot {
		t.prev[t.head] = slot
	}
	t.head = slot
	if t.tail == NoSlot {
		t.tail = slot
	}
}

// removeSingle splices slot out of the singly linked chain. With no prev
// array to consult, a removal that isn't the oldest slot has to walk
// forward from the tail, following next (oldest -> newest here), until it
// finds slot's predecessor. Removing the oldest slot itself, or the sole
// remaining slot, stays O(1) since the tail pointer already names it.
func (t *LRUChainTracker) removeSingle(slot SlotID) {
	switch {
	case t.head == slot && t.tail == slot:
		t.head, t.tail = NoSlot, NoSlot
	case t.tail == slot:
		t.tail = t.next[slot]
	default:
		pred := t.tail
		for pred != NoSlot && t.next[pred] != slot {
			pred = t.next[pred]
		}
		if pred != NoSlot {
			t.next[pred] = t.next[slot]
		}
		if t.head == slot {
			t.head = pred
		}
	}
	t.next[slot] = NoSlot
}

// pushFrontSingle inserts slot as the new head (newest). Unlike the doubly
// linked pushFront, next here points oldest -> newest, so the new head's
// next is always NoSlot and the *old* head gains slot as its next.
func (t *LRUChainTracker) pushFrontSingle(slot SlotID) {
	t.next[slot] = NoSlot
	if t.head != NoSlot {
		t.next[t.head] = slot
	}
	t.head = slot
	if t.tail == NoSlot {
		t.tail = slot
	}
}

func (t *LRUChainTracker) OnInsert(slot SlotID) {
	t.grow(slot)
	if t.double {
		t.pushFront(slot)
	} else {
		t.pushFrontSingle(slot)
	}
}

func (t *LRUChainTracker) OnAccess(slot SlotID) {
	t.grow(slot)
	if t.sampleRate > 1 && t.rng.Intn(t.sampleRate) != 0 {
		return
	}
	if t.head == slot {
		return
	}
	if t.double {
		t.unlink(slot)
		t.pushFront(slot)
	} else {
		t.removeSingle(slot)
		t.pushFrontSingle(slot)
	}
}

func (t *LRUChainTracker) OnRemove(slot SlotID) {
	if int(slot) >= len(t.next) {
		return
	}
	if t.double {
		t.unlink(slot)
	} else {
		t.removeSingle(slot)
	}
}

func (t *LRUChainTracker) Iterator() Iterator {
	return &lruIterator{t: t, cur: t.tail}
}

type lruIterator struct {
	t   *LRUChainTracker
	cur SlotID
}

func (it *lruIterator) HasNext() bool { return it.cur != NoSlot }

// Next walks coldest-first: the doubly linked chain follows prev
// (oldest -> newest there); the singly linked chain follows next, which
// points oldest -> newest in that mode for exactly this reason.
func (it *lruIterator) Next() SlotID {
	s := it.cur
	if s == NoSlot {
		return NoSlot
	}
	if it.t.double {
		it.cur = it.t.prev[s]
	} else {
		it.cur = it.t.next[s]
	}
	return s
}
