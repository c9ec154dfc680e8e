package concurrency

import (
	"sync"

	"github.com/bethewind/bustubgo/src/common"
)

// WriteType tags what kind of row mutation a WriteRecord captured,
// mirroring the original source's WType::INSERT/DELETE.
type WriteType int

const (
	WriteInsert WriteType = iota
	WriteDelete
)

// WriteRecord marks one row-level mutation made by a transaction.
// TableHeap appends one of these for every Insert/Delete it performs
// on behalf of a transaction, so a caller inspecting the transaction
// afterwards (or, eventually, an undo pass) can recall what it touched.
type WriteRecord struct {
	RID  common.RID
	Type WriteType
}

// Transaction tracks one executor's two-phase-locking state: which
// RIDs it holds shared/exclusive locks on, and its GROWING/SHRINKING/
// COMMITTED/ABORTED state. State is read by the lock manager's waiters
// and written by the deadlock detector concurrently with the owning
// executor thread, so every access goes through mu.
type Transaction struct {
	mu sync.Mutex

	txnID          common.TxnID
	isolationLevel common.IsolationLevel
	state          common.TransactionState

	sharedLockSet    map[common.RID]struct{}
	exclusiveLockSet map[common.RID]struct{}

	writeSet []WriteRecord
}

func newTransaction(id common.TxnID, level common.IsolationLevel) *Transaction {
	return &Transaction{
		txnID:            id,
		isolationLevel:   level,
		state:            common.Growing,
		sharedLockSet:    make(map[common.RID]struct{}),
		exclusiveLockSet: make(map[common.RID]struct{}),
	}
}

func (t *Transaction) GetTransactionID() common.TxnID {
	return t.txnID
}

func (t *Transaction) GetIsolationLevel() common.IsolationLevel {
	return t.isolationLevel
}

func (t *Transaction) GetState() common.TransactionState {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

func (t *Transaction) SetState(s common.TransactionState) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.state = s
}

// GetSharedLockSet returns the live set backing this transaction's
// shared locks. Callers (the lock manager, on the owning transaction's
// behalf) mutate it without taking t.mu -- per spec's note that the
// deadlock detector only ever writes state, never the lock sets, so
// lock-set access never races with it.
func (t *Transaction) GetSharedLockSet() map[common.RID]struct{} {
	return t.sharedLockSet
}

func (t *Transaction) GetExclusiveLockSet() map[common.RID]struct{} {
	return t.exclusiveLockSet
}

func (t *Transaction) IsSharedLocked(rid common.RID) bool {
	_, ok := t.sharedLockSet[rid]
	return ok
}

func (t *Transaction) IsExclusiveLocked(rid common.RID) bool {
	_, ok := t.exclusiveLockSet[rid]
	return ok
}

// AppendTableWriteRecord records a row mutation so WriteRecords can
// later report what this transaction touched. Abort does not read it.
func (t *Transaction) AppendTableWriteRecord(rec WriteRecord) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.writeSet = append(t.writeSet, rec)
}

// WriteRecords returns a snapshot of every row mutation recorded so far.
func (t *Transaction) WriteRecords() []WriteRecord {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]WriteRecord(nil), t.writeSet...)
}
