package concurrency

import (
	"sync"
	"sync/atomic"

	log "github.com/sirupsen/logrus"

	"github.com/bethewind/bustubgo/src/common"
)

// TransactionManager issues transaction ids and keeps the registry the
// deadlock detector's GetTransaction lookup needs (original_source's
// TransactionManager::GetTransaction, called from RunCycleDetection).
type TransactionManager struct {
	mu       sync.RWMutex
	nextID   int64
	txns     map[common.TxnID]*Transaction
	lockMgr  *LockManager
}

// NewTransactionManager builds a manager bound to lockMgr, used by
// Abort to release everything the aborting transaction held.
func NewTransactionManager(lockMgr *LockManager) *TransactionManager {
	return &TransactionManager{
		txns:    make(map[common.TxnID]*Transaction),
		lockMgr: lockMgr,
	}
}

// Begin starts a new transaction under the given isolation level.
func (m *TransactionManager) Begin(level common.IsolationLevel) *Transaction {
	id := common.TxnID(atomic.AddInt64(&m.nextID, 1))
	txn := newTransaction(id, level)
	m.mu.Lock()
	m.txns[id] = txn
	m.mu.Unlock()
	return txn
}

// GetTransaction looks up a live transaction by id, as the deadlock
// detector does for every txn id in the wait-for graph.
func (m *TransactionManager) GetTransaction(id common.TxnID) *Transaction {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.txns[id]
}

// Commit transitions txn to COMMITTED. It neither clears the lock sets
// nor releases locks via the lock manager since a committing txn is
// expected to have already unlocked everything during SHRINKING.
func (m *TransactionManager) Commit(txn *Transaction) {
	txn.SetState(common.Committed)
}

// Abort walks txn's shared and exclusive lock sets, releasing each
// through the lock manager, and marks the transaction ABORTED -- the
// "abort routine that unlocks everything the transaction held" spec.md
// §7 requires of the executor.
func (m *TransactionManager) Abort(txn *Transaction) {
	txn.SetState(common.Aborted)
	for rid := range txn.GetSharedLockSet() {
		if err := m.lockMgr.Unlock(txn, rid); err != nil {
			log.WithError(err).Warnf("abort: unlock shared %v for txn %d", rid, txn.GetTransactionID())
		}
	}
	for rid := range txn.GetExclusiveLockSet() {
		if err := m.lockMgr.Unlock(txn, rid); err != nil {
			log.WithError(err).Warnf("abort: unlock exclusive %v for txn %d", rid, txn.GetTransactionID())
		}
	}
}
