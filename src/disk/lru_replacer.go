package disk

import (
	"container/list"
	"sync"

	"github.com/bethewind/bustubgo/src/common"
)

// LRUReplacer tracks unpinned frames in recency order and evicts the
// least-recently-unpinned one first. Backed by a doubly linked list (MRU
// at the front, LRU at the back) plus a frame id -> element index for
// O(1) Pin/Unpin, same structure as the teacher's replacer.
type LRUReplacer struct {
	mu       sync.Mutex
	dataList list.List
	index    map[common.FrameID]*list.Element
}

// NewLRUReplacer builds an empty replacer. capacity is advisory (the
// teacher's bustub passes pool_size here too) and only pre-sizes the map.
func NewLRUReplacer(capacity int) *LRUReplacer {
	return &LRUReplacer{
		index: make(map[common.FrameID]*list.Element, capacity),
	}
}

// Victim removes and returns the least-recently-unpinned frame.
func (lru *LRUReplacer) Victim() (common.FrameID, bool) {
	lru.mu.Lock()
	defer lru.mu.Unlock()

	if len(lru.index) == 0 {
		return 0, false
	}
	elem := lru.dataList.Back()
	frameID := elem.Value.(common.FrameID)
	lru.dataList.Remove(elem)
	delete(lru.index, frameID)
	return frameID, true
}

// Unpin marks frameID evictable, inserting it at the MRU end. A no-op if
// frameID is already tracked -- must not duplicate or reorder it.
func (lru *LRUReplacer) Unpin(frameID common.FrameID) {
	lru.mu.Lock()
	defer lru.mu.Unlock()

	if _, ok := lru.index[frameID]; ok {
		return
	}
	lru.dataList.PushFront(frameID)
	lru.index[frameID] = lru.dataList.Front()
}

// Pin removes frameID from the evictable set. A no-op if absent.
func (lru *LRUReplacer) Pin(frameID common.FrameID) {
	lru.mu.Lock()
	defer lru.mu.Unlock()

	elem, ok := lru.index[frameID]
	if !ok {
		return
	}
	lru.dataList.Remove(elem)
	delete(lru.index, frameID)
}

// Size reports how many frames are currently tracked as evictable.
func (lru *LRUReplacer) Size() int {
	lru.mu.Lock()
	defer lru.mu.Unlock()
	return len(lru.index)
}
