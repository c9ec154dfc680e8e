package index

import (
	"encoding/binary"

	"github.com/bethewind/bustubgo/src/common"
	"github.com/bethewind/bustubgo/src/disk"
)

const (
	internalHeaderSize = commonHeaderSize
	internalValueSize  = 8 // child PageID stored in the low 4 bytes of an 8-byte slot
)

// InternalPage is a view over a borrowed page buffer holding B+-Tree
// internal entries: (key, child_page_id) pairs, where position 0's key
// is an unused sentinel (spec §3: "key_0 slot that is unused").
type InternalPage struct {
	nodeHeader
	keySize int
}

// WrapInternalPage views data as an internal page with the given key width.
func WrapInternalPage(data []byte, keySize int) *InternalPage {
	return &InternalPage{nodeHeader: nodeHeader{data: data}, keySize: keySize}
}

func (ip *InternalPage) Init(pageID, parentID common.PageID, maxSize int) {
	ip.setPageType(pageTypeInternal)
	ip.SetSize(0)
	ip.SetPageID(pageID)
	ip.SetParentPageID(parentID)
	ip.SetMaxSize(maxSize)
}

func (ip *InternalPage) entryOffset(i int) int {
	return internalHeaderSize + i*(ip.keySize+internalValueSize)
}

func (ip *InternalPage) KeyAt(i int) Key {
	off := ip.entryOffset(i)
	k := make(Key, ip.keySize)
	copy(k, ip.data[off:off+ip.keySize])
	return k
}

func (ip *InternalPage) SetKeyAt(i int, key Key) {
	off := ip.entryOffset(i)
	copy(ip.data[off:off+ip.keySize], key)
}

func (ip *InternalPage) ValueAt(i int) common.PageID {
	off := ip.entryOffset(i) + ip.keySize
	return common.PageID(int32(binary.LittleEndian.Uint32(ip.data[off:])))
}

func (ip *InternalPage) setValueAt(i int, pid common.PageID) {
	off := ip.entryOffset(i) + ip.keySize
	binary.LittleEndian.PutUint32(ip.data[off:], uint32(int32(pid)))
	binary.LittleEndian.PutUint32(ip.data[off+4:], 0)
}

func (ip *InternalPage) setEntry(i int, key Key, value common.PageID) {
	ip.SetKeyAt(i, key)
	ip.setValueAt(i, value)
}

// ValueIndex returns the index of the entry whose child is childID.
func (ip *InternalPage) ValueIndex(childID common.PageID) int {
	n := ip.Size()
	for i := 0; i < n; i++ {
		if ip.ValueAt(i) == childID {
			return i
		}
	}
	return -1
}

// Lookup returns the child page id whose subtree contains key: the
// last entry whose key is <= key (entry 0's key is never compared,
// since it is the unused sentinel covering everything left of key_1).
func (ip *InternalPage) Lookup(key Key, cmp Comparator) common.PageID {
	n := ip.Size()
	l, r := 1, n-1
	for l <= r {
		mid := (l + r) / 2
		if cmp(key, ip.KeyAt(mid)) < 0 {
			r = mid - 1
		} else {
			l = mid + 1
		}
	}
	return ip.ValueAt(r)
}

// PopulateNewRoot initializes a freshly allocated root with two
// children split by key.
func (ip *InternalPage) PopulateNewRoot(leftChild common.PageID, key Key, rightChild common.PageID) {
	ip.setValueAt(0, leftChild)
	ip.setEntry(1, key, rightChild)
	ip.SetSize(2)
}

// InsertNodeAfter places (key, newChild) immediately after the entry
// pointing at oldChild. Returns the size after insertion.
func (ip *InternalPage) InsertNodeAfter(oldChild common.PageID, key Key, newChild common.PageID) int {
	oldIndex := ip.ValueIndex(oldChild)
	n := ip.Size()
	for i := n; i > oldIndex+1; i-- {
		ip.setEntry(i, ip.KeyAt(i-1), ip.ValueAt(i-1))
	}
	ip.setEntry(oldIndex+1, key, newChild)
	ip.IncreaseSize(1)
	return ip.Size()
}

// Remove deletes the entry at index, shifting later entries left.
func (ip *InternalPage) Remove(index int) {
	n := ip.Size()
	for i := index; i < n-1; i++ {
		ip.setEntry(i, ip.KeyAt(i+1), ip.ValueAt(i+1))
	}
	ip.IncreaseSize(-1)
}

// RemoveAndReturnOnlyChild is called when collapsing a size-1 root,
// returning its sole remaining child.
func (ip *InternalPage) RemoveAndReturnOnlyChild() common.PageID {
	child := ip.ValueAt(0)
	ip.IncreaseSize(-1)
	return child
}

func reparentChild(bpm *disk.BufferPoolManager, childID, newParent common.PageID) error {
	page, err := bpm.FetchPage(childID)
	if err != nil {
		return err
	}
	nodeHeader{data: page.Data()}.SetParentPageID(newParent)
	bpm.UnpinPage(childID, true)
	return nil
}

// MoveHalfTo splits this internal node, moving its upper half into
// recipient and reparenting the moved children.
func (ip *InternalPage) MoveHalfTo(recipient *InternalPage, bpm *disk.BufferPoolManager) error {
	n := ip.Size()
	mid := n / 2
	for i, j := mid, 0; i < n; i, j = i+1, j+1 {
		recipient.setEntry(j, ip.KeyAt(i), ip.ValueAt(i))
		if err := reparentChild(bpm, ip.ValueAt(i), recipient.PageID()); err != nil {
			return err
		}
	}
	ip.SetSize(mid)
	recipient.SetSize(n - mid)
	return nil
}

// MoveAllTo merges all of this node's entries into recipient, its left
// sibling, carrying down middleKey as the separator for entry 0 (whose
// own key slot is the unused sentinel).
func (ip *InternalPage) MoveAllTo(recipient *InternalPage, middleKey Key, bpm *disk.BufferPoolManager) error {
	base := recipient.Size()
	n := ip.Size()
	recipient.setEntry(base, middleKey, ip.ValueAt(0))
	if err := reparentChild(bpm, ip.ValueAt(0), recipient.PageID()); err != nil {
		return err
	}
	for i := 1; i < n; i++ {
		recipient.setEntry(base+i, ip.KeyAt(i), ip.ValueAt(i))
		if err := reparentChild(bpm, ip.ValueAt(i), recipient.PageID()); err != nil {
			return err
		}
	}
	recipient.IncreaseSize(n)
	return nil
}

// MoveFirstToEndOf moves this node's first child to the end of
// recipient, carrying down middleKey as its new separator. Returns the
// key that must replace the parent's separator between the two nodes:
// this node's own old second key, now the boundary of its new first
// child.
func (ip *InternalPage) MoveFirstToEndOf(recipient *InternalPage, middleKey Key, bpm *disk.BufferPoolManager) (Key, error) {
	firstChild := ip.ValueAt(0)
	recipient.setEntry(recipient.Size(), middleKey, firstChild)
	recipient.IncreaseSize(1)
	if err := reparentChild(bpm, firstChild, recipient.PageID()); err != nil {
		return nil, err
	}
	newSeparator := ip.KeyAt(1)
	n := ip.Size()
	for i := 1; i < n; i++ {
		ip.setEntry(i-1, ip.KeyAt(i), ip.ValueAt(i))
	}
	ip.IncreaseSize(-1)
	return newSeparator, nil
}

// MoveLastToFrontOf moves this node's last child to the front of
// recipient, carrying down middleKey as recipient's old entry-0
// separator. Returns the key that must replace the parent's separator
// between the two nodes: this node's own old last key, now the
// boundary of its new last child.
func (ip *InternalPage) MoveLastToFrontOf(recipient *InternalPage, middleKey Key, bpm *disk.BufferPoolManager) (Key, error) {
	n := ip.Size()
	lastChild := ip.ValueAt(n - 1)
	newSeparator := ip.KeyAt(n - 1)
	for i := recipient.Size(); i > 0; i-- {
		recipient.setEntry(i, recipient.KeyAt(i-1), recipient.ValueAt(i-1))
	}
	recipient.setEntry(1, middleKey, recipient.ValueAt(0))
	recipient.setValueAt(0, lastChild)
	recipient.IncreaseSize(1)
	if err := reparentChild(bpm, lastChild, recipient.PageID()); err != nil {
		return nil, err
	}
	ip.IncreaseSize(-1)
	return newSeparator, nil
}
