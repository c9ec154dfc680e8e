package table

import (
	"math/rand"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/bethewind/bustubgo/src/common"
	"github.com/bethewind/bustubgo/src/concurrency"
	"github.com/bethewind/bustubgo/src/disk"
)

func newTestHeapBPM(t *testing.T, fn string, poolSize int) *disk.BufferPoolManager {
	dm, err := disk.NewDiskManager(fn)
	require.NoError(t, err)
	t.Cleanup(func() { dm.Close() })
	return disk.NewBufferPoolManager(poolSize, dm, disk.NewLRUReplacer(poolSize))
}

func newTestTableHeap(t *testing.T, bufferPoolManager *disk.BufferPoolManager, isNew bool) *TableHeap {
	tableHeapFile, err := NewTableHeap(bufferPoolManager, isNew)
	require.NoError(t, err)
	return tableHeapFile
}

// newTestTxnStack builds a transaction manager/lock manager pair the
// way NewTransactionManager/NewLockManager's chicken-and-egg
// construction order requires -- the lock manager first, wired back to
// the transaction manager once it exists, then started.
func newTestTxnStack(t *testing.T) (*concurrency.TransactionManager, *concurrency.LockManager) {
	lockMgr := concurrency.NewLockManager(20 * time.Millisecond)
	txnMgr := concurrency.NewTransactionManager(lockMgr)
	lockMgr.SetTransactionManager(txnMgr)
	lockMgr.Start()
	t.Cleanup(lockMgr.Stop)
	return txnMgr, lockMgr
}

// releaseLocks unlocks everything txn holds, the way a statement-level
// auto-commit transaction would release its locks before committing.
func releaseLocks(lockMgr *concurrency.LockManager, txn *concurrency.Transaction) {
	for rid := range txn.GetSharedLockSet() {
		_ = lockMgr.Unlock(txn, rid)
	}
	for rid := range txn.GetExclusiveLockSet() {
		_ = lockMgr.Unlock(txn, rid)
	}
}

func TestNewTableHeap(t *testing.T) {
	fn := "tmp-table-heap-test-" + t.Name()
	defer os.Remove(fn)
	bufferPoolManager := newTestHeapBPM(t, fn, 8)

	tableHeapFile := newTestTableHeap(t, bufferPoolManager, true)

	headerPage, err := tableHeapFile.getHeaderPage(false)
	require.NoError(t, err)
	header := createHeapFileHeader(headerPage.Data())
	require.Equal(t, int32(0), header.numPages())
	tableHeapFile.releaseHeaderPage(headerPage, false)
}

func testTableDataFunc(t *testing.T, tableHeapFile *TableHeap, txnMgr *concurrency.TransactionManager, lockMgr *concurrency.LockManager, allData [][]byte, allRIDs []common.RID) {
	headerPage, err := tableHeapFile.getHeaderPage(false)
	require.NoError(t, err)
	header := createHeapFileHeader(headerPage.Data())
	pageInfoList := header.getPageInfoList()
	for _, info := range pageInfoList {
		page, _ := tableHeapFile.bufferPoolManager.FetchPage(info.pageID)
		tablePage := createTablePage(page.Data())
		require.Equal(t, info.leftSpace, tablePage.getFreeSpaceForInsert())
		tableHeapFile.bufferPoolManager.UnpinPage(info.pageID, false)
	}
	tableHeapFile.releaseHeaderPage(headerPage, false)

	for i, rid := range allRIDs {
		txn := txnMgr.Begin(common.ReadCommitted)
		data, found, err := tableHeapFile.Get(rid, txn, lockMgr)
		require.NoError(t, err)
		require.True(t, found)
		require.Equal(t, allData[i], data)
		releaseLocks(lockMgr, txn)
		txnMgr.Commit(txn)
	}
}

func insertDeleteUtilsFunc(t *testing.T, tableHeapFile *TableHeap, txnMgr *concurrency.TransactionManager, lockMgr *concurrency.LockManager, total int, insertProb float64) ([][]byte, []common.RID) {
	allData := make([][]byte, 0)
	allRIDs := make([]common.RID, 0)
	for i := 0; i < total; i++ {
		isInsert := (rand.Float64() <= insertProb) || (len(allRIDs) == 0)
		if isInsert {
			length := rand.Intn(512) + 1
			randStr := make([]byte, length)
			rand.Read(randStr)
			txn := txnMgr.Begin(common.ReadCommitted)
			rid, err := tableHeapFile.Insert(randStr, txn)
			require.NoError(t, err)
			releaseLocks(lockMgr, txn)
			txnMgr.Commit(txn)
			allData = append(allData, randStr)
			allRIDs = append(allRIDs, rid)
		} else { // is delete
			idx := rand.Intn(len(allRIDs))
			txn := txnMgr.Begin(common.ReadCommitted)
			_, err := tableHeapFile.Delete(allRIDs[idx], txn, lockMgr)
			require.NoError(t, err)
			releaseLocks(lockMgr, txn)
			txnMgr.Commit(txn)

			allData = append(allData[:idx], allData[idx+1:]...)
			allRIDs = append(allRIDs[:idx], allRIDs[idx+1:]...)
		}
	}
	return allData, allRIDs
}

func TestTableHeap_Insert(t *testing.T) {
	fn := "tmp-table-heap-test-" + t.Name()
	defer os.Remove(fn)

	allData := make([][]byte, 0)
	allRIDs := make([]common.RID, 0)

	dm, err := disk.NewDiskManager(fn)
	require.NoError(t, err)
	bufferPoolManager := disk.NewBufferPoolManager(8, dm, disk.NewLRUReplacer(8))
	tableHeapFile := newTestTableHeap(t, bufferPoolManager, true)
	txnMgr, lockMgr := newTestTxnStack(t)

	for i := 0; i < 100; i++ {
		length := rand.Intn(512) + 1
		randStr := make([]byte, length)
		rand.Read(randStr)
		txn := txnMgr.Begin(common.ReadCommitted)
		rid, err := tableHeapFile.Insert(randStr, txn)
		require.NoError(t, err)
		txnMgr.Commit(txn)
		allData = append(allData, randStr)
		allRIDs = append(allRIDs, rid)
	}
	testTableDataFunc(t, tableHeapFile, txnMgr, lockMgr, allData, allRIDs)
	require.NoError(t, bufferPoolManager.FlushAllPages())
	dm.Close()

	// Test durability
	secondDM, err := disk.NewDiskManager(fn)
	require.NoError(t, err)
	defer secondDM.Close()
	secondBufferPoolManager := disk.NewBufferPoolManager(8, secondDM, disk.NewLRUReplacer(8))
	secondTableHeapFile := newTestTableHeap(t, secondBufferPoolManager, false)
	secondTxnMgr, secondLockMgr := newTestTxnStack(t)
	testTableDataFunc(t, secondTableHeapFile, secondTxnMgr, secondLockMgr, allData, allRIDs)
}

func TestTableHeap_Insert_Delete_Mixed(t *testing.T) {
	fn := "tmp-table-heap-test-" + t.Name()
	defer os.Remove(fn)

	dm, err := disk.NewDiskManager(fn)
	require.NoError(t, err)
	bufferPoolManager := disk.NewBufferPoolManager(8, dm, disk.NewLRUReplacer(8))
	tableHeapFile := newTestTableHeap(t, bufferPoolManager, true)
	txnMgr, lockMgr := newTestTxnStack(t)
	allData, allRIDs := insertDeleteUtilsFunc(t, tableHeapFile, txnMgr, lockMgr, 100, 0.70)

	testTableDataFunc(t, tableHeapFile, txnMgr, lockMgr, allData, allRIDs)
	require.NoError(t, bufferPoolManager.FlushAllPages())
	dm.Close()

	// Test durability
	secondDM, err := disk.NewDiskManager(fn)
	require.NoError(t, err)
	defer secondDM.Close()
	secondBufferPoolManager := disk.NewBufferPoolManager(8, secondDM, disk.NewLRUReplacer(8))
	secondTableHeapFile := newTestTableHeap(t, secondBufferPoolManager, false)
	secondTxnMgr, secondLockMgr := newTestTxnStack(t)
	testTableDataFunc(t, secondTableHeapFile, secondTxnMgr, secondLockMgr, allData, allRIDs)
}

func TestTableHeap_Insert_Delete_Concurrent(t *testing.T) {
	fn := "tmp-table-heap-test-" + t.Name()
	defer os.Remove(fn)
	bufferPoolManager := newTestHeapBPM(t, fn, 16)
	tableHeapFile := newTestTableHeap(t, bufferPoolManager, true)
	txnMgr, lockMgr := newTestTxnStack(t)

	allData := make([][]byte, 0)
	allRIDs := make([]common.RID, 0)
	var wg sync.WaitGroup
	var mu sync.Mutex
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			partialData, partialRIDs := insertDeleteUtilsFunc(t, tableHeapFile, txnMgr, lockMgr, 100, 0.7)
			mu.Lock()
			allData = append(allData, partialData...)
			allRIDs = append(allRIDs, partialRIDs...)
			mu.Unlock()
			wg.Done()
		}()
	}
	wg.Wait()
	testTableDataFunc(t, tableHeapFile, txnMgr, lockMgr, allData, allRIDs)
}

// TestTableHeap_WriteRecordsTrackInsertAndDelete proves Insert/Delete
// feed the transaction's write set instead of ignoring it.
func TestTableHeap_WriteRecordsTrackInsertAndDelete(t *testing.T) {
	fn := "tmp-table-heap-test-" + t.Name()
	defer os.Remove(fn)
	bufferPoolManager := newTestHeapBPM(t, fn, 8)
	tableHeapFile := newTestTableHeap(t, bufferPoolManager, true)
	txnMgr, lockMgr := newTestTxnStack(t)

	txn := txnMgr.Begin(common.ReadCommitted)
	rid, err := tableHeapFile.Insert([]byte("row"), txn)
	require.NoError(t, err)
	require.Len(t, txn.WriteRecords(), 1)
	require.Equal(t, concurrency.WriteInsert, txn.WriteRecords()[0].Type)
	require.Equal(t, rid, txn.WriteRecords()[0].RID)

	ok, err := tableHeapFile.Delete(rid, txn, lockMgr)
	require.NoError(t, err)
	require.True(t, ok)
	require.Len(t, txn.WriteRecords(), 2)
	require.Equal(t, concurrency.WriteDelete, txn.WriteRecords()[1].Type)

	releaseLocks(lockMgr, txn)
	txnMgr.Commit(txn)
}

// TestTableHeap_DeleteLocksExclusively proves Delete actually drives
// the lock manager: a transaction holding a shared lock on rid blocks
// a concurrent Delete of the same rid until it releases.
func TestTableHeap_DeleteLocksExclusively(t *testing.T) {
	fn := "tmp-table-heap-test-" + t.Name()
	defer os.Remove(fn)
	bufferPoolManager := newTestHeapBPM(t, fn, 8)
	tableHeapFile := newTestTableHeap(t, bufferPoolManager, true)
	txnMgr, lockMgr := newTestTxnStack(t)

	seedTxn := txnMgr.Begin(common.ReadCommitted)
	rid, err := tableHeapFile.Insert([]byte("payload"), seedTxn)
	require.NoError(t, err)
	releaseLocks(lockMgr, seedTxn)
	txnMgr.Commit(seedTxn)

	reader := txnMgr.Begin(common.ReadCommitted)
	_, found, err := tableHeapFile.Get(rid, reader, lockMgr)
	require.NoError(t, err)
	require.True(t, found)
	require.True(t, reader.IsSharedLocked(rid))

	deleted := make(chan bool, 1)
	go func() {
		deleter := txnMgr.Begin(common.ReadCommitted)
		ok, _ := tableHeapFile.Delete(rid, deleter, lockMgr)
		deleted <- ok
		releaseLocks(lockMgr, deleter)
		txnMgr.Commit(deleter)
	}()

	select {
	case <-deleted:
		t.Fatal("delete proceeded before the shared lock was released")
	case <-time.After(50 * time.Millisecond):
	}

	releaseLocks(lockMgr, reader)
	txnMgr.Commit(reader)
	require.True(t, <-deleted)
}

// TestTableHeap_DeleteEmptiesPage proves a page that loses its last
// live record is dropped from the heap header instead of kept around
// advertising zero usable space forever.
func TestTableHeap_DeleteEmptiesPage(t *testing.T) {
	fn := "tmp-table-heap-test-" + t.Name()
	defer os.Remove(fn)
	bufferPoolManager := newTestHeapBPM(t, fn, 8)
	tableHeapFile := newTestTableHeap(t, bufferPoolManager, true)
	txnMgr, lockMgr := newTestTxnStack(t)

	txn := txnMgr.Begin(common.ReadCommitted)
	rid, err := tableHeapFile.Insert([]byte("only record"), txn)
	require.NoError(t, err)
	releaseLocks(lockMgr, txn)
	txnMgr.Commit(txn)

	headerPage, err := tableHeapFile.getHeaderPage(false)
	require.NoError(t, err)
	header := createHeapFileHeader(headerPage.Data())
	_, found := header.getPageInfo(rid.PageID)
	tableHeapFile.releaseHeaderPage(headerPage, false)
	require.True(t, found)

	txn = txnMgr.Begin(common.ReadCommitted)
	ok, err := tableHeapFile.Delete(rid, txn, lockMgr)
	require.NoError(t, err)
	require.True(t, ok)
	releaseLocks(lockMgr, txn)
	txnMgr.Commit(txn)

	headerPage, err = tableHeapFile.getHeaderPage(false)
	require.NoError(t, err)
	header = createHeapFileHeader(headerPage.Data())
	_, found = header.getPageInfo(rid.PageID)
	tableHeapFile.releaseHeaderPage(headerPage, false)
	require.False(t, found)
}
