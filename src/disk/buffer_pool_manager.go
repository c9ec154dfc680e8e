package disk

import (
	"sync"

	"github.com/ncw/directio"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/bethewind/bustubgo/src/common"
)

// BufferPoolManager caches a bounded set of disk pages in memory. All
// operations are serialized by a single coarse latch; disk I/O happens
// while holding it (spec §5: "does not suspend" is a deliberate
// simplicity choice, matching the teacher's own buffer pool).
type BufferPoolManager struct {
	mu          sync.Mutex
	size        int
	pages       []Page
	replacer    Replacer
	freeList    []common.FrameID
	pageTable   map[common.PageID]common.FrameID
	diskManager *DiskManager
}

// NewBufferPoolManager allocates `size` frames, all initially free.
func NewBufferPoolManager(size int, diskManager *DiskManager, replacer Replacer) *BufferPoolManager {
	bpm := &BufferPoolManager{
		size:        size,
		pages:       make([]Page, size),
		replacer:    replacer,
		pageTable:   make(map[common.PageID]common.FrameID, size),
		diskManager: diskManager,
		freeList:    make([]common.FrameID, size),
	}
	for i := 0; i < size; i++ {
		bpm.pages[i] = Page{
			data:     directio.AlignedBlock(PageSize),
			pageID:   common.InvalidPageID,
			pinCount: 0,
			isDirty:  false,
		}
		bpm.freeList[i] = common.FrameID(size - 1 - i) // pop from the back, frame 0 first
	}
	return bpm
}

// FetchPage pins and returns pageID's page, fetching it from disk if it
// isn't already resident. Returns ErrOutOfMemory if no frame is
// available (every frame is pinned and the free list is empty).
func (bpm *BufferPoolManager) FetchPage(pageID common.PageID) (*Page, error) {
	bpm.mu.Lock()
	defer bpm.mu.Unlock()

	if frameID, ok := bpm.pageTable[pageID]; ok {
		page := &bpm.pages[frameID]
		page.pinCount++
		bpm.replacer.Pin(frameID)
		return page, nil
	}

	frameID, ok := bpm.findVictim()
	if !ok {
		return nil, common.NewOutOfMemory("FetchPage: no evictable frame")
	}
	page := &bpm.pages[frameID]
	if err := bpm.evictFrame(frameID); err != nil {
		return nil, err
	}
	if err := bpm.diskManager.ReadPage(pageID, page.Data()); err != nil {
		return nil, errors.Wrapf(err, "FetchPage: read page %d", pageID)
	}
	page.pageID = pageID
	page.pinCount = 1
	page.isDirty = false
	bpm.pageTable[pageID] = frameID
	return page, nil
}

// NewPage allocates a fresh page id via the disk manager, installs it
// pinned in a frame with zeroed memory, and returns both.
func (bpm *BufferPoolManager) NewPage() (common.PageID, *Page, error) {
	bpm.mu.Lock()
	defer bpm.mu.Unlock()

	frameID, ok := bpm.findVictim()
	if !ok {
		return common.InvalidPageID, nil, common.NewOutOfMemory("NewPage: no evictable frame")
	}
	page := &bpm.pages[frameID]
	if err := bpm.evictFrame(frameID); err != nil {
		return common.InvalidPageID, nil, err
	}

	newPageID, err := bpm.diskManager.AllocatePage()
	if err != nil {
		return common.InvalidPageID, nil, errors.Wrap(err, "NewPage: allocate page")
	}
	for i := range page.data {
		page.data[i] = 0
	}
	page.pageID = newPageID
	page.pinCount = 1
	page.isDirty = false
	bpm.pageTable[newPageID] = frameID
	return newPageID, page, nil
}

// UnpinPage releases one pin on pageID, ORing isDirty into the frame's
// dirty flag. Returns false if the page isn't resident or is already
// unpinned.
func (bpm *BufferPoolManager) UnpinPage(pageID common.PageID, isDirty bool) bool {
	bpm.mu.Lock()
	defer bpm.mu.Unlock()

	frameID, ok := bpm.pageTable[pageID]
	if !ok {
		log.Warnf("UnpinPage: page %d is not in the buffer pool", pageID)
		return false
	}
	page := &bpm.pages[frameID]
	if page.pinCount <= 0 {
		log.Warnf("UnpinPage: page %d has pin count <= 0", pageID)
		return false
	}
	page.pinCount--
	page.isDirty = page.isDirty || isDirty
	if page.pinCount == 0 {
		bpm.replacer.Unpin(frameID)
	}
	return true
}

// FlushPage writes pageID's page to disk if dirty and resident. Returns
// whether the page was found.
func (bpm *BufferPoolManager) FlushPage(pageID common.PageID) (bool, error) {
	bpm.mu.Lock()
	defer bpm.mu.Unlock()

	frameID, ok := bpm.pageTable[pageID]
	if !ok {
		return false, nil
	}
	page := &bpm.pages[frameID]
	if page.isDirty {
		if err := bpm.diskManager.WritePage(pageID, page.Data()); err != nil {
			return true, errors.Wrapf(err, "FlushPage: write page %d", pageID)
		}
		page.isDirty = false
	}
	return true, nil
}

// FlushAllPages writes every dirty resident page to disk.
func (bpm *BufferPoolManager) FlushAllPages() error {
	bpm.mu.Lock()
	defer bpm.mu.Unlock()

	for pageID, frameID := range bpm.pageTable {
		page := &bpm.pages[frameID]
		if page.isDirty {
			if err := bpm.diskManager.WritePage(pageID, page.Data()); err != nil {
				return errors.Wrapf(err, "FlushAllPages: write page %d", pageID)
			}
			page.isDirty = false
		}
	}
	return nil
}

// DeletePage removes pageID from the pool and asks the disk manager to
// deallocate it. Absent pages succeed trivially; a pinned page fails.
func (bpm *BufferPoolManager) DeletePage(pageID common.PageID) (bool, error) {
	bpm.mu.Lock()
	defer bpm.mu.Unlock()

	frameID, ok := bpm.pageTable[pageID]
	if !ok {
		return true, nil
	}
	page := &bpm.pages[frameID]
	if page.pinCount > 0 {
		return false, nil
	}
	if err := bpm.diskManager.DeallocatePage(pageID); err != nil {
		return false, errors.Wrapf(err, "DeletePage: deallocate page %d", pageID)
	}
	delete(bpm.pageTable, pageID)
	page.pageID = common.InvalidPageID
	page.isDirty = false
	page.pinCount = 0
	// The frame may be tracked by the replacer (pin count was already 0);
	// it must be removed from there before going to the free list, since
	// the free-list/replacer/pinned states are mutually exclusive.
	bpm.replacer.Pin(frameID)
	bpm.freeList = append(bpm.freeList, frameID)
	return true, nil
}

// findVictim selects a frame for reuse, preferring the free list over
// the replacer.
func (bpm *BufferPoolManager) findVictim() (common.FrameID, bool) {
	if n := len(bpm.freeList); n > 0 {
		frameID := bpm.freeList[n-1]
		bpm.freeList = bpm.freeList[:n-1]
		return frameID, true
	}
	return bpm.replacer.Victim()
}

// evictFrame writes back a dirty victim and clears its old page-table
// entry before the caller installs a new mapping.
func (bpm *BufferPoolManager) evictFrame(frameID common.FrameID) error {
	page := &bpm.pages[frameID]
	oldPageID := page.pageID
	if page.isDirty {
		if err := bpm.diskManager.WritePage(oldPageID, page.Data()); err != nil {
			return errors.Wrapf(err, "evict: write back page %d", oldPageID)
		}
		page.isDirty = false
	}
	if oldPageID != common.InvalidPageID {
		delete(bpm.pageTable, oldPageID)
	}
	return nil
}
