package disk

import "encoding/binary"

// freePageHeaderPageID is the fixed page id the disk manager reserves for
// its own free-page list. It is distinct from the B+-Tree's root
// directory page (disk.HeaderPage), which the index package allocates
// separately -- see SPEC_FULL.md's "Open Questions" for why the two
// aren't folded into one page.
const freePageHeaderPageID = 0

// freePageHeader is a view over page 0's bytes, recording the next page
// id to hand out and the stack of deallocated ids available for reuse.
// Modeled as byte accessors rather than an unsafe.Pointer cast over the
// struct (spec §9's redesign note on raw byte reinterpretation).
type freePageHeader struct {
	data []byte
}

const (
	fphNextPageIDOffset = 0
	fphNumFreeOffset    = 4
	fphFreeListOffset   = 8
)

func newFreePageHeader(data []byte) *freePageHeader {
	return &freePageHeader{data: data}
}

func (h *freePageHeader) init() {
	h.setNextPageID(1)
	h.setNumFree(0)
}

func (h *freePageHeader) nextPageID() int32 {
	return int32(binary.LittleEndian.Uint32(h.data[fphNextPageIDOffset:]))
}

func (h *freePageHeader) setNextPageID(id int32) {
	binary.LittleEndian.PutUint32(h.data[fphNextPageIDOffset:], uint32(id))
}

func (h *freePageHeader) numFree() int32 {
	return int32(binary.LittleEndian.Uint32(h.data[fphNumFreeOffset:]))
}

func (h *freePageHeader) setNumFree(n int32) {
	binary.LittleEndian.PutUint32(h.data[fphNumFreeOffset:], uint32(n))
}

func (h *freePageHeader) hasFree() bool {
	return h.numFree() > 0
}

func (h *freePageHeader) entryOffset(i int32) int {
	return fphFreeListOffset + int(i)*4
}

func (h *freePageHeader) get(i int32) int32 {
	off := h.entryOffset(i)
	return int32(binary.LittleEndian.Uint32(h.data[off:]))
}

func (h *freePageHeader) set(i int32, v int32) {
	off := h.entryOffset(i)
	binary.LittleEndian.PutUint32(h.data[off:], uint32(v))
}

// popFree removes and returns the most recently freed page id.
func (h *freePageHeader) popFree() int32 {
	n := h.numFree()
	id := h.get(n - 1)
	h.setNumFree(n - 1)
	return id
}

// pushFree records pageID as available for reuse.
func (h *freePageHeader) pushFree(pageID int32) {
	n := h.numFree()
	h.set(n, pageID)
	h.setNumFree(n + 1)
}
