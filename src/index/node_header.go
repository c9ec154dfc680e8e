package index

import (
	"encoding/binary"

	"github.com/bethewind/bustubgo/src/common"
)

// pageType tags a node's on-disk layout. Stored as the first field of
// every B+-Tree page so BPlusTree can tell which view to wrap a
// fetched page in without a side-channel.
type pageType uint32

const (
	pageTypeInvalid  pageType = 0
	pageTypeLeaf     pageType = 1
	pageTypeInternal pageType = 2
)

// Header layout shared by leaf and internal pages:
// {page_type u32, lsn u32, size i32, max_size i32, parent_page_id i32, page_id i32}
const (
	hdrPageTypeOffset  = 0
	hdrLSNOffset       = 4
	hdrSizeOffset      = 8
	hdrMaxSizeOffset   = 12
	hdrParentIDOffset  = 16
	hdrPageIDOffset    = 20
	commonHeaderSize   = 24
)

// nodeHeader is a view over the first commonHeaderSize bytes of a
// B+-Tree page. Leaf and internal pages embed it and add their own
// entry-array accessors below it, never through unsafe.Pointer
// reinterpretation (spec's redesign note on raw byte casting).
type nodeHeader struct {
	data []byte
}

func (h nodeHeader) getPageType() pageType {
	return pageType(binary.LittleEndian.Uint32(h.data[hdrPageTypeOffset:]))
}

func (h nodeHeader) setPageType(t pageType) {
	binary.LittleEndian.PutUint32(h.data[hdrPageTypeOffset:], uint32(t))
}

func (h nodeHeader) IsLeafPage() bool {
	return h.getPageType() == pageTypeLeaf
}

func (h nodeHeader) Size() int {
	return int(int32(binary.LittleEndian.Uint32(h.data[hdrSizeOffset:])))
}

func (h nodeHeader) SetSize(n int) {
	binary.LittleEndian.PutUint32(h.data[hdrSizeOffset:], uint32(int32(n)))
}

func (h nodeHeader) IncreaseSize(delta int) {
	h.SetSize(h.Size() + delta)
}

func (h nodeHeader) MaxSize() int {
	return int(int32(binary.LittleEndian.Uint32(h.data[hdrMaxSizeOffset:])))
}

func (h nodeHeader) SetMaxSize(n int) {
	binary.LittleEndian.PutUint32(h.data[hdrMaxSizeOffset:], uint32(int32(n)))
}

// MinSize follows the teacher's own rule of thumb: half of max,
// rounded up, same as BusTub's GetMinSize.
func (h nodeHeader) MinSize() int {
	return (h.MaxSize() + 1) / 2
}

func (h nodeHeader) ParentPageID() common.PageID {
	return common.PageID(int32(binary.LittleEndian.Uint32(h.data[hdrParentIDOffset:])))
}

func (h nodeHeader) SetParentPageID(pid common.PageID) {
	binary.LittleEndian.PutUint32(h.data[hdrParentIDOffset:], uint32(int32(pid)))
}

func (h nodeHeader) PageID() common.PageID {
	return common.PageID(int32(binary.LittleEndian.Uint32(h.data[hdrPageIDOffset:])))
}

func (h nodeHeader) SetPageID(pid common.PageID) {
	binary.LittleEndian.PutUint32(h.data[hdrPageIDOffset:], uint32(int32(pid)))
}
