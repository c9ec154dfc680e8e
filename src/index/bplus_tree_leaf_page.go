package index

import (
	"encoding/binary"

	"github.com/bethewind/bustubgo/src/common"
)

const (
	leafHeaderSize  = commonHeaderSize + 4 // + next_page_id
	leafNextIDOffset = commonHeaderSize
	leafValueSize   = 8 // RID: page_id int32 + slot_num int32
)

// LeafPage is a view over a borrowed page buffer holding B+-Tree leaf
// entries: a sorted array of (key, RID) pairs plus next_page_id
// sibling linkage.
type LeafPage struct {
	nodeHeader
	keySize int
}

// WrapLeafPage views data as a leaf page with the given key width.
func WrapLeafPage(data []byte, keySize int) *LeafPage {
	return &LeafPage{nodeHeader: nodeHeader{data: data}, keySize: keySize}
}

func (lp *LeafPage) Init(pageID, parentID common.PageID, maxSize int) {
	lp.setPageType(pageTypeLeaf)
	lp.SetSize(0)
	lp.SetPageID(pageID)
	lp.SetParentPageID(parentID)
	lp.SetMaxSize(maxSize)
	lp.SetNextPageID(common.InvalidPageID)
}

func (lp *LeafPage) GetNextPageID() common.PageID {
	return common.PageID(int32(binary.LittleEndian.Uint32(lp.data[leafNextIDOffset:])))
}

func (lp *LeafPage) SetNextPageID(pid common.PageID) {
	binary.LittleEndian.PutUint32(lp.data[leafNextIDOffset:], uint32(int32(pid)))
}

func (lp *LeafPage) entryOffset(i int) int {
	return leafHeaderSize + i*(lp.keySize+leafValueSize)
}

func (lp *LeafPage) KeyAt(i int) Key {
	off := lp.entryOffset(i)
	k := make(Key, lp.keySize)
	copy(k, lp.data[off:off+lp.keySize])
	return k
}

func (lp *LeafPage) setKeyAt(i int, key Key) {
	off := lp.entryOffset(i)
	copy(lp.data[off:off+lp.keySize], key)
}

func (lp *LeafPage) ValueAt(i int) common.RID {
	off := lp.entryOffset(i) + lp.keySize
	return common.RID{
		PageID:  common.PageID(int32(binary.LittleEndian.Uint32(lp.data[off:]))),
		SlotNum: int(int32(binary.LittleEndian.Uint32(lp.data[off+4:]))),
	}
}

func (lp *LeafPage) setValueAt(i int, rid common.RID) {
	off := lp.entryOffset(i) + lp.keySize
	binary.LittleEndian.PutUint32(lp.data[off:], uint32(int32(rid.PageID)))
	binary.LittleEndian.PutUint32(lp.data[off+4:], uint32(int32(rid.SlotNum)))
}

func (lp *LeafPage) setEntry(i int, key Key, value common.RID) {
	lp.setKeyAt(i, key)
	lp.setValueAt(i, value)
}

// KeyIndex returns the first index i with KeyAt(i) >= key, via binary
// search. Used by range iteration to position the start of a scan.
func (lp *LeafPage) KeyIndex(key Key, cmp Comparator) int {
	l, r := 0, lp.Size()
	for l < r {
		mid := (l + r) / 2
		if cmp(key, lp.KeyAt(mid)) > 0 {
			l = mid + 1
		} else {
			r = mid
		}
	}
	return l
}

// Lookup returns the value associated with key, if present.
func (lp *LeafPage) Lookup(key Key, cmp Comparator) (common.RID, bool) {
	n := lp.Size()
	if n == 0 {
		return common.RID{}, false
	}
	i := lp.KeyIndex(key, cmp)
	if i == n || cmp(key, lp.KeyAt(i)) != 0 {
		return common.RID{}, false
	}
	return lp.ValueAt(i), true
}

// Insert places (key, value) in sorted order, rejecting duplicates.
// Returns the leaf's size after the attempt; an unchanged size means
// key was already present.
func (lp *LeafPage) Insert(key Key, value common.RID, cmp Comparator) int {
	if _, found := lp.Lookup(key, cmp); found {
		return lp.Size()
	}
	n := lp.Size()
	i := n - 1
	for i >= 0 && cmp(key, lp.KeyAt(i)) < 0 {
		lp.setEntry(i+1, lp.KeyAt(i), lp.ValueAt(i))
		i--
	}
	lp.setEntry(i+1, key, value)
	lp.IncreaseSize(1)
	return lp.Size()
}

// RemoveAndDeleteRecord removes key if present, shifting later entries
// left. Returns the size after the attempt.
func (lp *LeafPage) RemoveAndDeleteRecord(key Key, cmp Comparator) int {
	n := lp.Size()
	i := lp.KeyIndex(key, cmp)
	if i == n || cmp(key, lp.KeyAt(i)) != 0 {
		return n
	}
	for j := i; j < n-1; j++ {
		lp.setEntry(j, lp.KeyAt(j+1), lp.ValueAt(j+1))
	}
	lp.IncreaseSize(-1)
	return lp.Size()
}

// MoveHalfTo splits this leaf, moving its upper half into recipient
// and linking recipient after this page in the sibling list.
func (lp *LeafPage) MoveHalfTo(recipient *LeafPage) {
	n := lp.Size()
	mid := n / 2
	for i, j := mid, 0; i < n; i, j = i+1, j+1 {
		recipient.setEntry(j, lp.KeyAt(i), lp.ValueAt(i))
	}
	lp.SetSize(mid)
	recipient.SetSize(n - mid)
	recipient.SetNextPageID(lp.GetNextPageID())
	lp.SetNextPageID(recipient.PageID())
}

// MoveAllTo merges all of this leaf's entries into recipient, which
// must be its left sibling, and propagates the sibling linkage.
func (lp *LeafPage) MoveAllTo(recipient *LeafPage) {
	base := recipient.Size()
	n := lp.Size()
	for i := 0; i < n; i++ {
		recipient.setEntry(base+i, lp.KeyAt(i), lp.ValueAt(i))
	}
	recipient.IncreaseSize(n)
	recipient.SetNextPageID(lp.GetNextPageID())
}

// MoveFirstToEndOf moves this leaf's first entry to the end of
// recipient, used when redistributing from a right sibling.
func (lp *LeafPage) MoveFirstToEndOf(recipient *LeafPage) {
	recipient.setEntry(recipient.Size(), lp.KeyAt(0), lp.ValueAt(0))
	recipient.IncreaseSize(1)
	n := lp.Size()
	for i := 1; i < n; i++ {
		lp.setEntry(i-1, lp.KeyAt(i), lp.ValueAt(i))
	}
	lp.IncreaseSize(-1)
}

// MoveLastToFrontOf moves this leaf's last entry to the front of
// recipient, used when redistributing from a left sibling.
func (lp *LeafPage) MoveLastToFrontOf(recipient *LeafPage) {
	n := lp.Size()
	key, value := lp.KeyAt(n-1), lp.ValueAt(n-1)
	for i := recipient.Size(); i > 0; i-- {
		recipient.setEntry(i, recipient.KeyAt(i-1), recipient.ValueAt(i-1))
	}
	recipient.setEntry(0, key, value)
	recipient.IncreaseSize(1)
	lp.IncreaseSize(-1)
}
