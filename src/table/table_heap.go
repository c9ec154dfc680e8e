package table

import (
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/bethewind/bustubgo/src/common"
	"github.com/bethewind/bustubgo/src/concurrency"
	"github.com/bethewind/bustubgo/src/disk"
)

const (
	heapFileHeaderPageID = common.PageID(1) // Simply assume the header page is always page ID 1.
)

// TableHeap stores variable-length rows behind RIDs, backed entirely by
// the Buffer Pool Manager -- the minimal external collaborator this
// module keeps to prove the buffer pool and its page-level RWMutex
// latching interlock the way a real executor would drive them.
type TableHeap struct {
	bufferPoolManager *disk.BufferPoolManager
}

// NewTableHeap opens an existing heap, or lays out a fresh header page
// when isNew is true. Allocation failure (buffer pool out of
// evictable frames) is returned rather than exiting the process --
// callers already expect to handle it the way they handle any other
// BufferPoolManager error.
func NewTableHeap(bufferPoolManager *disk.BufferPoolManager, isNew bool) (*TableHeap, error) {
	th := &TableHeap{
		bufferPoolManager: bufferPoolManager,
	}
	if isNew {
		pageID, page, err := bufferPoolManager.NewPage()
		if err != nil {
			return nil, errors.Wrap(err, "NewTableHeap: allocate header page")
		}
		if pageID != heapFileHeaderPageID {
			return nil, errors.Errorf("NewTableHeap: header page id is %d, want %d", pageID, heapFileHeaderPageID)
		}
		header := createHeapFileHeader(page.Data())
		header.init()
		th.bufferPoolManager.UnpinPage(pageID, true)
	}
	return th, nil
}

func (th *TableHeap) getHeaderPage(exclusive bool) (*disk.Page, error) {
	page, err := th.bufferPoolManager.FetchPage(heapFileHeaderPageID)
	if err != nil {
		return nil, errors.Wrap(err, "getHeaderPage: fetch")
	}
	if exclusive {
		page.Lock()
	} else {
		page.RLock()
	}
	return page, nil
}

func (th *TableHeap) releaseHeaderPage(page *disk.Page, exclusive bool) {
	if exclusive {
		page.Unlock()
	} else {
		page.RUnlock()
	}
	th.bufferPoolManager.UnpinPage(heapFileHeaderPageID, exclusive)
}

// Insert appends record to the heap and returns the RID it landed at.
// When txn is non-nil, the new RID is recorded in the transaction's
// write set (concurrency.WriteInsert). A freshly minted RID has no
// prior holder, so unlike Delete/Get there is nothing to lock
// beforehand. A buffer-pool allocation failure is returned as an
// error rather than crashing the process.
func (th *TableHeap) Insert(record []byte, txn *concurrency.Transaction) (common.RID, error) {
	internalLoop := func() (common.RID, bool, error) {
		headerPage, err := th.getHeaderPage(false)
		if err != nil {
			return common.RID{}, false, err
		}
		header := createHeapFileHeader(headerPage.Data())
		pageInfoList := header.getPageInfoList()

		for _, info := range pageInfoList {
			if int(info.leftSpace) >= len(record) {
				th.releaseHeaderPage(headerPage, false)
				rid, ok, err := th.insertIntoPage(record, info.pageID)
				if err != nil {
					return common.RID{}, false, err
				}
				if !ok {
					log.Warnf("Insert a record of length %d into page %d failed.", len(record), info.pageID)
					return common.RID{}, false, nil
				}
				return rid, true, nil
			}
		}
		th.releaseHeaderPage(headerPage, false)

		// insert into new page
		newPageID, newPage, err := th.bufferPoolManager.NewPage()
		if err != nil {
			return common.RID{}, false, errors.Wrap(err, "Insert: allocate new page")
		}
		newPage.Lock()

		newTablePage := createTablePage(newPage.Data())
		newTablePage.init(newPageID, int32(len(newPage.Data())))
		rid, _ := newTablePage.Insert(record) // must be successful

		headerPage, err = th.getHeaderPage(true)
		if err != nil {
			newPage.Unlock()
			th.bufferPoolManager.UnpinPage(newPageID, true)
			return common.RID{}, false, err
		}
		header = createHeapFileHeader(headerPage.Data())
		header.pushPageInfo(pageInfo{
			pageID:    newPageID,
			leftSpace: newTablePage.getFreeSpaceForInsert(),
		})
		th.releaseHeaderPage(headerPage, true)

		newPage.Unlock()
		th.bufferPoolManager.UnpinPage(newPageID, true)
		return rid, true, nil
	}
	for {
		rid, ok, err := internalLoop()
		if err != nil {
			return common.RID{}, err
		}
		if ok {
			if txn != nil {
				txn.AppendTableWriteRecord(concurrency.WriteRecord{RID: rid, Type: concurrency.WriteInsert})
			}
			return rid, nil
		}
	}
}

func (th *TableHeap) insertIntoPage(record []byte, pageID common.PageID) (common.RID, bool, error) {
	page, err := th.bufferPoolManager.FetchPage(pageID)
	if err != nil {
		return common.RID{}, false, errors.Wrapf(err, "insertIntoPage: fetch page %d", pageID)
	}
	page.Lock()
	tablePage := createTablePage(page.Data())
	rid, ok := tablePage.Insert(record)
	if !ok {
		page.Unlock()
		th.bufferPoolManager.UnpinPage(pageID, false)
		return common.RID{}, false, nil
	}

	headerPage, err := th.getHeaderPage(true)
	if err != nil {
		page.Unlock()
		th.bufferPoolManager.UnpinPage(pageID, false)
		return common.RID{}, false, err
	}
	header := createHeapFileHeader(headerPage.Data())
	header.setPageInfo(pageID, pageInfo{
		pageID:    pageID,
		leftSpace: tablePage.getFreeSpaceForInsert(),
	})
	th.releaseHeaderPage(headerPage, true)

	page.Unlock()
	th.bufferPoolManager.UnpinPage(pageID, true)
	return rid, true, nil
}

// Delete removes the row at rid. When txn and lockMgr are both
// non-nil, it acquires (or upgrades to) an exclusive lock on rid
// first: LockUpgrade if rid is already shared-locked, LockExclusive
// otherwise. A lock failure (conflict, deadlock abort) aborts the
// delete without touching the page. If the delete empties the page
// (every slot now a tombstone), the page's entry is dropped from the
// heap header entirely instead of kept around with zero usable space.
func (th *TableHeap) Delete(rid common.RID, txn *concurrency.Transaction, lockMgr *concurrency.LockManager) (bool, error) {
	if lockMgr != nil && txn != nil && !txn.IsExclusiveLocked(rid) {
		var lockErr error
		if txn.IsSharedLocked(rid) {
			lockErr = lockMgr.LockUpgrade(txn, rid)
		} else {
			lockErr = lockMgr.LockExclusive(txn, rid)
		}
		if lockErr != nil {
			log.WithError(lockErr).Warnf("Delete %v failed to acquire exclusive lock.", rid)
			return false, nil
		}
	}

	headerPage, err := th.getHeaderPage(false)
	if err != nil {
		return false, err
	}
	header := createHeapFileHeader(headerPage.Data())
	_, ok := header.getPageInfo(rid.PageID)
	th.releaseHeaderPage(headerPage, false)
	if !ok {
		return false, nil
	}

	page, err := th.bufferPoolManager.FetchPage(rid.PageID)
	if err != nil {
		return false, errors.Wrapf(err, "Delete: fetch page %d", rid.PageID)
	}
	page.Lock()

	tablePage := createTablePage(page.Data())
	deleted := tablePage.Delete(rid)
	if !deleted {
		th.bufferPoolManager.UnpinPage(rid.PageID, false)
		page.Unlock()
		return false, nil
	}
	freeSpace := tablePage.getFreeSpaceForInsert()
	empty := tablePage.isEmpty()

	headerPage, err = th.getHeaderPage(true)
	if err != nil {
		page.Unlock()
		th.bufferPoolManager.UnpinPage(rid.PageID, false)
		return false, err
	}
	header = createHeapFileHeader(headerPage.Data())
	if empty {
		header.removePageInfo(rid.PageID)
	} else {
		header.setPageInfo(rid.PageID, pageInfo{
			pageID:    rid.PageID,
			leftSpace: freeSpace,
		})
	}
	th.releaseHeaderPage(headerPage, true)

	page.Unlock()
	th.bufferPoolManager.UnpinPage(rid.PageID, true)

	if txn != nil {
		txn.AppendTableWriteRecord(concurrency.WriteRecord{RID: rid, Type: concurrency.WriteDelete})
	}
	return true, nil
}

// Get reads the row at rid. When txn and lockMgr are both non-nil and
// txn does not already hold a lock on rid, it acquires a shared lock
// first -- the standard 2PL read protocol spec's lock manager
// implements (LockShared), applied here the way a scanning executor
// would drive it row by row.
func (th *TableHeap) Get(rid common.RID, txn *concurrency.Transaction, lockMgr *concurrency.LockManager) ([]byte, bool, error) {
	if lockMgr != nil && txn != nil && !txn.IsSharedLocked(rid) && !txn.IsExclusiveLocked(rid) {
		if lockErr := lockMgr.LockShared(txn, rid); lockErr != nil {
			log.WithError(lockErr).Warnf("Get %v failed to acquire shared lock.", rid)
			return nil, false, nil
		}
	}

	headerPage, err := th.getHeaderPage(false)
	if err != nil {
		return nil, false, err
	}
	header := createHeapFileHeader(headerPage.Data())
	_, ok := header.getPageInfo(rid.PageID)
	th.releaseHeaderPage(headerPage, false)
	if !ok {
		return nil, false, nil
	}

	page, err := th.bufferPoolManager.FetchPage(rid.PageID)
	if err != nil {
		return nil, false, errors.Wrapf(err, "Get: fetch page %d", rid.PageID)
	}
	page.Lock()
	tablePage := createTablePage(page.Data())
	data, found := tablePage.Get(rid)
	page.Unlock()
	th.bufferPoolManager.UnpinPage(rid.PageID, false)
	return data, found, nil
}
