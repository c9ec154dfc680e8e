package index

import (
	"sync"

	"github.com/bethewind/bustubgo/src/common"
	"github.com/bethewind/bustubgo/src/disk"
)

// BPlusTree is a disk-backed B+-Tree index. GetValue, Insert, Remove,
// Begin and BeginAt each hold mu for their entire duration -- a
// tree-wide latch, not the
// finer-grained crabbing protocol (a valid alternative the spec does
// not require; see DESIGN.md's Open Questions).
type BPlusTree struct {
	mu              sync.Mutex
	indexName       string
	bpm             *disk.BufferPoolManager
	headerPageID    common.PageID
	cmp             Comparator
	keySize         int
	leafMaxSize     int
	internalMaxSize int
	rootPageID      common.PageID
}

// NewBPlusTree opens (or creates) the named index, reading its current
// root page id from the shared header page if already present.
func NewBPlusTree(name string, bpm *disk.BufferPoolManager, headerPageID common.PageID, cmp Comparator, keySize, leafMaxSize, internalMaxSize int) (*BPlusTree, error) {
	t := &BPlusTree{
		indexName:       name,
		bpm:             bpm,
		headerPageID:    headerPageID,
		cmp:             cmp,
		keySize:         keySize,
		leafMaxSize:     leafMaxSize,
		internalMaxSize: internalMaxSize,
		rootPageID:      common.InvalidPageID,
	}
	page, err := bpm.FetchPage(headerPageID)
	if err != nil {
		return nil, err
	}
	header := disk.NewHeaderPage(page.Data())
	if rootID, ok := header.GetRootID(name); ok {
		t.rootPageID = rootID
	}
	bpm.UnpinPage(headerPageID, false)
	return t, nil
}

// IsEmpty reports whether the tree currently has no root.
func (t *BPlusTree) IsEmpty() bool {
	return t.rootPageID == common.InvalidPageID
}

// RootPageID returns the tree's current root, or InvalidPageID if empty.
func (t *BPlusTree) RootPageID() common.PageID {
	return t.rootPageID
}

// GetValue locates key and returns its associated RID, if present.
func (t *BPlusTree) GetValue(key Key) (common.RID, bool, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.IsEmpty() {
		return common.RID{}, false, nil
	}
	leafPage, leaf, err := t.findLeafPage(key, false)
	if err != nil {
		return common.RID{}, false, err
	}
	rid, found := leaf.Lookup(key, t.cmp)
	t.bpm.UnpinPage(leafPage.PageID(), false)
	return rid, found, nil
}

// Insert adds (key, value); returns false if key was already present.
func (t *BPlusTree) Insert(key Key, value common.RID) (bool, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.IsEmpty() {
		if err := t.startNewTree(key, value); err != nil {
			return false, err
		}
		return true, nil
	}
	return t.insertIntoLeaf(key, value)
}

// Remove deletes key; a no-op if absent.
func (t *BPlusTree) Remove(key Key) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.IsEmpty() {
		return nil
	}
	leafPage, leaf, err := t.findLeafPage(key, false)
	if err != nil {
		return err
	}
	oldSize := leaf.Size()
	newSize := leaf.RemoveAndDeleteRecord(key, t.cmp)
	if oldSize == newSize {
		t.bpm.UnpinPage(leafPage.PageID(), false)
		return nil
	}
	if newSize < leaf.MinSize() {
		return t.coalesceOrRedistribute(leaf.nodeHeader)
	}
	t.bpm.UnpinPage(leafPage.PageID(), true)
	return nil
}

func (t *BPlusTree) startNewTree(key Key, value common.RID) error {
	rootID, page, err := t.bpm.NewPage()
	if err != nil {
		return common.NewOutOfMemory("StartNewTree: buffer pool manager out of memory")
	}
	leaf := WrapLeafPage(page.Data(), t.keySize)
	leaf.Init(rootID, common.InvalidPageID, t.leafMaxSize)
	leaf.Insert(key, value, t.cmp)
	t.bpm.UnpinPage(rootID, true)
	t.rootPageID = rootID
	return t.updateRootPageID(true)
}

func (t *BPlusTree) insertIntoLeaf(key Key, value common.RID) (bool, error) {
	leafPage, leaf, err := t.findLeafPage(key, false)
	if err != nil {
		return false, err
	}
	oldSize := leaf.Size()
	newSize := leaf.Insert(key, value, t.cmp)
	if oldSize == newSize {
		t.bpm.UnpinPage(leafPage.PageID(), false)
		return false, nil
	}
	if newSize >= t.leafMaxSize {
		sibling, err := t.splitLeaf(leaf)
		if err != nil {
			return false, err
		}
		if err := t.insertIntoParent(leaf.nodeHeader, sibling.KeyAt(0), sibling.nodeHeader); err != nil {
			return false, err
		}
	} else {
		t.bpm.UnpinPage(leafPage.PageID(), true)
	}
	return true, nil
}

func (t *BPlusTree) splitLeaf(node *LeafPage) (*LeafPage, error) {
	newID, newPage, err := t.bpm.NewPage()
	if err != nil {
		return nil, common.NewOutOfMemory("Split: buffer pool manager out of memory")
	}
	sibling := WrapLeafPage(newPage.Data(), t.keySize)
	sibling.Init(newID, node.ParentPageID(), t.leafMaxSize)
	node.MoveHalfTo(sibling)
	return sibling, nil
}

func (t *BPlusTree) splitInternal(node *InternalPage) (*InternalPage, error) {
	newID, newPage, err := t.bpm.NewPage()
	if err != nil {
		return nil, common.NewOutOfMemory("Split: buffer pool manager out of memory")
	}
	sibling := WrapInternalPage(newPage.Data(), t.keySize)
	sibling.Init(newID, node.ParentPageID(), t.internalMaxSize)
	if err := node.MoveHalfTo(sibling, t.bpm); err != nil {
		return nil, err
	}
	return sibling, nil
}

// insertIntoParent creates a new root if oldNode has none, or inserts
// (key, newNode) into the existing parent, splitting and recursing if
// that overflows it. Unpins both oldNode and newNode before returning.
func (t *BPlusTree) insertIntoParent(oldNode nodeHeader, key Key, newNode nodeHeader) error {
	parentID := oldNode.ParentPageID()
	if parentID == common.InvalidPageID {
		newRootID, rootPage, err := t.bpm.NewPage()
		if err != nil {
			return common.NewOutOfMemory("InsertIntoParent: buffer pool manager out of memory")
		}
		newRoot := WrapInternalPage(rootPage.Data(), t.keySize)
		newRoot.Init(newRootID, common.InvalidPageID, t.internalMaxSize)
		newRoot.PopulateNewRoot(oldNode.PageID(), key, newNode.PageID())
		oldNode.SetParentPageID(newRootID)
		newNode.SetParentPageID(newRootID)
		t.bpm.UnpinPage(oldNode.PageID(), true)
		t.bpm.UnpinPage(newNode.PageID(), true)
		t.bpm.UnpinPage(newRootID, true)
		t.rootPageID = newRootID
		return t.updateRootPageID(false)
	}

	parentPage, err := t.bpm.FetchPage(parentID)
	if err != nil {
		return err
	}
	parent := WrapInternalPage(parentPage.Data(), t.keySize)
	newSize := parent.InsertNodeAfter(oldNode.PageID(), key, newNode.PageID())
	t.bpm.UnpinPage(oldNode.PageID(), true)
	t.bpm.UnpinPage(newNode.PageID(), true)
	if newSize > parent.MaxSize() {
		sibling, err := t.splitInternal(parent)
		if err != nil {
			return err
		}
		return t.insertIntoParent(parent.nodeHeader, sibling.KeyAt(0), sibling.nodeHeader)
	}
	t.bpm.UnpinPage(parent.PageID(), true)
	return nil
}

// coalesceOrRedistribute handles an underflowed node: delegates to
// adjustRoot if it is the root, otherwise picks a sibling (left if one
// exists, else right) and either redistributes from it or coalesces
// with it.
func (t *BPlusTree) coalesceOrRedistribute(node nodeHeader) error {
	if node.ParentPageID() == common.InvalidPageID {
		return t.adjustRoot(node)
	}

	parentPage, err := t.bpm.FetchPage(node.ParentPageID())
	if err != nil {
		return err
	}
	parent := WrapInternalPage(parentPage.Data(), t.keySize)
	nodeIndex := parent.ValueIndex(node.PageID())
	siblingIndex := nodeIndex + 1
	if nodeIndex != 0 {
		siblingIndex = nodeIndex - 1
	}

	siblingPage, err := t.bpm.FetchPage(parent.ValueAt(siblingIndex))
	if err != nil {
		return err
	}
	sibling := nodeHeader{data: siblingPage.Data()}

	if sibling.Size() > sibling.MinSize() {
		t.bpm.UnpinPage(parent.PageID(), false)
		return t.redistribute(sibling, node, nodeIndex)
	}
	if nodeIndex == 0 {
		return t.coalesce(node, sibling, parent, 1)
	}
	return t.coalesce(sibling, node, parent, nodeIndex)
}

// coalesce always merges right into left, removes the parent's
// separator at index, deletes right's page, and recurses upward if
// the parent itself now underflows.
func (t *BPlusTree) coalesce(left, right nodeHeader, parent *InternalPage, index int) error {
	if right.IsLeafPage() {
		WrapLeafPage(right.data, t.keySize).MoveAllTo(WrapLeafPage(left.data, t.keySize))
	} else {
		if err := WrapInternalPage(right.data, t.keySize).MoveAllTo(WrapInternalPage(left.data, t.keySize), parent.KeyAt(index), t.bpm); err != nil {
			return err
		}
	}
	parent.Remove(index)
	t.bpm.UnpinPage(right.PageID(), false)
	if _, err := t.bpm.DeletePage(right.PageID()); err != nil {
		return err
	}
	t.bpm.UnpinPage(left.PageID(), true)

	if parent.Size() < parent.MinSize() {
		return t.coalesceOrRedistribute(parent.nodeHeader)
	}
	t.bpm.UnpinPage(parent.PageID(), true)
	return nil
}

// redistribute moves one entry from neighbor into node, updating the
// parent's separator key. index is node's position among its
// parent's children: 0 means neighbor is the right sibling, otherwise
// neighbor is the left sibling.
func (t *BPlusTree) redistribute(neighbor, node nodeHeader, index int) error {
	parentPage, err := t.bpm.FetchPage(node.ParentPageID())
	if err != nil {
		return err
	}
	parent := WrapInternalPage(parentPage.Data(), t.keySize)

	if node.IsLeafPage() {
		neighborLeaf := WrapLeafPage(neighbor.data, t.keySize)
		nodeLeaf := WrapLeafPage(node.data, t.keySize)
		if index == 0 {
			neighborLeaf.MoveFirstToEndOf(nodeLeaf)
			parent.SetKeyAt(1, neighborLeaf.KeyAt(0))
		} else {
			neighborLeaf.MoveLastToFrontOf(nodeLeaf)
			parent.SetKeyAt(index, nodeLeaf.KeyAt(0))
		}
	} else {
		neighborInternal := WrapInternalPage(neighbor.data, t.keySize)
		nodeInternal := WrapInternalPage(node.data, t.keySize)
		if index == 0 {
			newSeparator, err := neighborInternal.MoveFirstToEndOf(nodeInternal, parent.KeyAt(1), t.bpm)
			if err != nil {
				return err
			}
			parent.SetKeyAt(1, newSeparator)
		} else {
			newSeparator, err := neighborInternal.MoveLastToFrontOf(nodeInternal, parent.KeyAt(index), t.bpm)
			if err != nil {
				return err
			}
			parent.SetKeyAt(index, newSeparator)
		}
	}

	t.bpm.UnpinPage(parent.PageID(), true)
	t.bpm.UnpinPage(node.PageID(), true)
	t.bpm.UnpinPage(neighbor.PageID(), true)
	return nil
}

// adjustRoot handles an underflowed root: an empty leaf root empties
// the whole tree; an internal root down to one child is collapsed,
// promoting that child.
func (t *BPlusTree) adjustRoot(node nodeHeader) error {
	if node.IsLeafPage() {
		if node.Size() == 0 {
			t.bpm.UnpinPage(node.PageID(), false)
			if _, err := t.bpm.DeletePage(node.PageID()); err != nil {
				return err
			}
			t.rootPageID = common.InvalidPageID
			return t.updateRootPageID(false)
		}
		t.bpm.UnpinPage(node.PageID(), true)
		return nil
	}

	internal := WrapInternalPage(node.data, t.keySize)
	if internal.Size() == 1 {
		newRootID := internal.RemoveAndReturnOnlyChild()
		newRootPage, err := t.bpm.FetchPage(newRootID)
		if err != nil {
			return err
		}
		nodeHeader{data: newRootPage.Data()}.SetParentPageID(common.InvalidPageID)
		t.rootPageID = newRootID
		if err := t.updateRootPageID(false); err != nil {
			return err
		}
		t.bpm.UnpinPage(newRootID, true)
		t.bpm.UnpinPage(node.PageID(), false)
		if _, err := t.bpm.DeletePage(node.PageID()); err != nil {
			return err
		}
		return nil
	}
	t.bpm.UnpinPage(node.PageID(), true)
	return nil
}

func (t *BPlusTree) updateRootPageID(insertRecord bool) error {
	page, err := t.bpm.FetchPage(t.headerPageID)
	if err != nil {
		return err
	}
	header := disk.NewHeaderPage(page.Data())
	if insertRecord {
		header.InsertRecord(t.indexName, t.rootPageID)
	} else {
		header.UpdateRecord(t.indexName, t.rootPageID)
	}
	t.bpm.UnpinPage(t.headerPageID, true)
	return nil
}

// findLeafPage walks from the root through internal Lookups, fetching
// each page, using it, and unpinning it before descending. The leaf is
// returned still pinned to the caller.
func (t *BPlusTree) findLeafPage(key Key, leftMost bool) (*disk.Page, *LeafPage, error) {
	curID := t.rootPageID
	curPage, err := t.bpm.FetchPage(curID)
	if err != nil {
		return nil, nil, err
	}
	header := nodeHeader{data: curPage.Data()}
	for !header.IsLeafPage() {
		internal := WrapInternalPage(curPage.Data(), t.keySize)
		var childID common.PageID
		if leftMost {
			childID = internal.ValueAt(0)
		} else {
			childID = internal.Lookup(key, t.cmp)
		}
		t.bpm.UnpinPage(curID, false)
		curID = childID
		curPage, err = t.bpm.FetchPage(curID)
		if err != nil {
			return nil, nil, err
		}
		header = nodeHeader{data: curPage.Data()}
	}
	return curPage, WrapLeafPage(curPage.Data(), t.keySize), nil
}
