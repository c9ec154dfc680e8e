package index

import "github.com/bethewind/bustubgo/src/common"

// IndexIterator walks a pinned leaf and an index into it, crossing
// leaf boundaries via next_page_id. It must be unpinned on completion
// unless it is already the end iterator -- call Close once done, or
// exhaust it by iterating until IsEnd.
type IndexIterator struct {
	tree     *BPlusTree
	leaf     *LeafPage
	index    int
	isEnd    bool
}

// Begin returns an iterator positioned at the tree's first entry.
func (t *BPlusTree) Begin() (*IndexIterator, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.IsEmpty() {
		return &IndexIterator{tree: t, isEnd: true}, nil
	}
	_, leaf, err := t.findLeafPage(nil, true)
	if err != nil {
		return nil, err
	}
	return &IndexIterator{tree: t, leaf: leaf, index: 0}, nil
}

// BeginAt returns an iterator positioned at the first entry whose key
// is >= key. If no such entry exists in the located leaf, the
// iterator is already at end.
func (t *BPlusTree) BeginAt(key Key) (*IndexIterator, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.IsEmpty() {
		return &IndexIterator{tree: t, isEnd: true}, nil
	}
	leafPage, leaf, err := t.findLeafPage(key, false)
	if err != nil {
		return nil, err
	}
	keyIndex := leaf.KeyIndex(key, t.cmp)
	if keyIndex == leaf.Size() {
		t.bpm.UnpinPage(leafPage.PageID(), false)
		return &IndexIterator{tree: t, isEnd: true}, nil
	}
	return &IndexIterator{tree: t, leaf: leaf, index: keyIndex}, nil
}

// IsEnd reports whether the iterator has exhausted the tree.
func (it *IndexIterator) IsEnd() bool {
	return it.isEnd
}

// Key returns the current entry's key. Must not be called at end.
func (it *IndexIterator) Key() Key {
	return it.leaf.KeyAt(it.index)
}

// Value returns the current entry's RID. Must not be called at end.
func (it *IndexIterator) Value() common.RID {
	return it.leaf.ValueAt(it.index)
}

// Next advances to the next entry, crossing to the sibling leaf when
// the current one is exhausted, and unpinning the leaf left behind.
func (it *IndexIterator) Next() error {
	if it.isEnd {
		return nil
	}
	it.index++
	if it.index == it.leaf.Size() {
		nextID := it.leaf.GetNextPageID()
		it.tree.bpm.UnpinPage(it.leaf.PageID(), false)
		if nextID == common.InvalidPageID {
			it.isEnd = true
			it.leaf = nil
			return nil
		}
		nextPage, err := it.tree.bpm.FetchPage(nextID)
		if err != nil {
			return err
		}
		it.leaf = WrapLeafPage(nextPage.Data(), it.tree.keySize)
		it.index = 0
	}
	return nil
}

// Close unpins the iterator's current leaf, if any. Safe to call on an
// already-exhausted iterator.
func (it *IndexIterator) Close() {
	if !it.isEnd && it.leaf != nil {
		it.tree.bpm.UnpinPage(it.leaf.PageID(), false)
		it.isEnd = true
		it.leaf = nil
	}
}
