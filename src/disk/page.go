package disk

import (
	"sync"

	"github.com/bethewind/bustubgo/src/common"
)

// PageSize is the fixed size of every page.
const PageSize = common.PageSize

// Page is a frame's resident content plus its buffer-pool metadata. The
// RWMutex lets a pinned page's borrower take either a shared read latch
// (point lookups) or an exclusive write latch (mutating inserts/deletes),
// matching the teacher's table package usage.
type Page struct {
	sync.RWMutex
	data     []byte
	pageID   common.PageID
	pinCount int
	isDirty  bool
}

// Data returns the page's raw bytes. Callers must hold the pin for the
// duration of any read or write into this slice.
func (p *Page) Data() []byte { return p.data }

// PageID returns the page id currently resident in this frame.
func (p *Page) PageID() common.PageID { return p.pageID }

// PinCount returns the frame's current pin count.
func (p *Page) PinCount() int { return p.pinCount }

// IsDirty reports whether this frame has unflushed writes.
func (p *Page) IsDirty() bool { return p.isDirty }
