package disk

import (
	"encoding/binary"

	"github.com/bethewind/bustubgo/src/common"
)

// HeaderPage is a view over a dedicated root-directory page, mapping
// index name to the PageID of that index's root. Kept separate from the
// disk manager's own free-list header at page 0 -- see SPEC_FULL.md's
// "Open Questions" for why the two aren't folded into one page.
//
// Layout: a 4-byte record count, followed by fixed-size entries of a
// 4-byte name length, up to hpMaxNameLen bytes of name, and a 4-byte
// PageID.
type HeaderPage struct {
	data []byte
}

const (
	hpRecordCountOffset = 0
	hpEntriesOffset      = 4
	hpMaxNameLen         = 32
	hpEntrySize          = 4 + hpMaxNameLen + 4
)

// NewHeaderPage wraps a page's raw bytes as a root directory. Init
// should be called once for a freshly allocated page.
func NewHeaderPage(data []byte) *HeaderPage {
	return &HeaderPage{data: data}
}

// Init zeroes the record count, marking the directory empty.
func (h *HeaderPage) Init() {
	binary.LittleEndian.PutUint32(h.data[hpRecordCountOffset:], 0)
}

func (h *HeaderPage) recordCount() int {
	return int(binary.LittleEndian.Uint32(h.data[hpRecordCountOffset:]))
}

func (h *HeaderPage) setRecordCount(n int) {
	binary.LittleEndian.PutUint32(h.data[hpRecordCountOffset:], uint32(n))
}

func (h *HeaderPage) entryOffset(i int) int {
	return hpEntriesOffset + i*hpEntrySize
}

func (h *HeaderPage) nameAt(off int) string {
	nameLen := binary.LittleEndian.Uint32(h.data[off:])
	return string(h.data[off+4 : off+4+int(nameLen)])
}

func (h *HeaderPage) setNameAt(off int, name string) {
	binary.LittleEndian.PutUint32(h.data[off:], uint32(len(name)))
	copy(h.data[off+4:off+4+hpMaxNameLen], name)
}

func (h *HeaderPage) pageIDAt(off int) common.PageID {
	return common.PageID(binary.LittleEndian.Uint32(h.data[off+4+hpMaxNameLen:]))
}

func (h *HeaderPage) setPageIDAt(off int, pid common.PageID) {
	binary.LittleEndian.PutUint32(h.data[off+4+hpMaxNameLen:], uint32(pid))
}

// InsertRecord appends a new index name -> root page id mapping.
func (h *HeaderPage) InsertRecord(name string, rootID common.PageID) bool {
	if _, found := h.find(name); found {
		return false
	}
	n := h.recordCount()
	off := h.entryOffset(n)
	h.setNameAt(off, name)
	h.setPageIDAt(off, rootID)
	h.setRecordCount(n + 1)
	return true
}

// UpdateRecord rewrites an existing index's root page id in place.
func (h *HeaderPage) UpdateRecord(name string, rootID common.PageID) bool {
	off, found := h.find(name)
	if !found {
		return false
	}
	h.setPageIDAt(off, rootID)
	return true
}

// GetRootID looks up the root page id for an index by name.
func (h *HeaderPage) GetRootID(name string) (common.PageID, bool) {
	off, found := h.find(name)
	if !found {
		return 0, false
	}
	return h.pageIDAt(off), true
}

func (h *HeaderPage) find(name string) (int, bool) {
	n := h.recordCount()
	for i := 0; i < n; i++ {
		off := h.entryOffset(i)
		if h.nameAt(off) == name {
			return off, true
		}
	}
	return 0, false
}
