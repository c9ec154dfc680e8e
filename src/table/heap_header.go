package table

import (
	"encoding/binary"

	"github.com/bethewind/bustubgo/src/common"
)

type pageInfo struct {
	pageID    common.PageID
	leftSpace int32
}

const (
	hhNumPagesOffset = 0
	hhEntriesOffset  = 4
	hhEntrySize      = 8
)

// heapFileHeader is a byte-accessor view over the table heap's header
// page, the same style node_header.go uses for B+-Tree pages: a
// num_pages i32 followed by a packed array of {page_id i32, left_space
// i32} entries, read and written through encoding/binary rather than
// an unsafe.Pointer overlay.
type heapFileHeader struct {
	data []byte
}

func createHeapFileHeader(data []byte) *heapFileHeader {
	return &heapFileHeader{data: data}
}

func (hdr *heapFileHeader) init() {
	hdr.setNumPages(0)
}

func (hdr *heapFileHeader) numPages() int32 {
	return int32(binary.LittleEndian.Uint32(hdr.data[hhNumPagesOffset:]))
}

func (hdr *heapFileHeader) setNumPages(n int32) {
	binary.LittleEndian.PutUint32(hdr.data[hhNumPagesOffset:], uint32(n))
}

func (hdr *heapFileHeader) entryOffset(i int) int {
	return hhEntriesOffset + i*hhEntrySize
}

func (hdr *heapFileHeader) entryAt(i int) pageInfo {
	off := hdr.entryOffset(i)
	return pageInfo{
		pageID:    common.PageID(int32(binary.LittleEndian.Uint32(hdr.data[off:]))),
		leftSpace: int32(binary.LittleEndian.Uint32(hdr.data[off+4:])),
	}
}

func (hdr *heapFileHeader) setEntryAt(i int, info pageInfo) {
	off := hdr.entryOffset(i)
	binary.LittleEndian.PutUint32(hdr.data[off:], uint32(int32(info.pageID)))
	binary.LittleEndian.PutUint32(hdr.data[off+4:], uint32(info.leftSpace))
}

func (hdr *heapFileHeader) getPageInfoList() []pageInfo {
	n := int(hdr.numPages())
	list := make([]pageInfo, n)
	for i := 0; i < n; i++ {
		list[i] = hdr.entryAt(i)
	}
	return list
}

func (hdr *heapFileHeader) getPageInfo(pageID common.PageID) (pageInfo, bool) {
	n := int(hdr.numPages())
	for i := 0; i < n; i++ {
		info := hdr.entryAt(i)
		if info.pageID == pageID {
			return info, true
		}
	}
	return pageInfo{}, false
}

func (hdr *heapFileHeader) setPageInfo(pageID common.PageID, info pageInfo) bool {
	n := int(hdr.numPages())
	for i := 0; i < n; i++ {
		if hdr.entryAt(i).pageID == pageID {
			hdr.setEntryAt(i, info)
			return true
		}
	}
	return false
}

func (hdr *heapFileHeader) pushPageInfo(info pageInfo) {
	n := hdr.numPages()
	hdr.setEntryAt(int(n), info)
	hdr.setNumPages(n + 1)
}

func (hdr *heapFileHeader) removePageInfo(pageID common.PageID) bool {
	n := int(hdr.numPages())
	idx := -1
	for i := 0; i < n; i++ {
		if hdr.entryAt(i).pageID == pageID {
			idx = i
			break
		}
	}
	if idx == -1 {
		return false
	}
	for i := idx; i < n-1; i++ {
		hdr.setEntryAt(i, hdr.entryAt(i+1))
	}
	hdr.setNumPages(int32(n - 1))
	return true
}
