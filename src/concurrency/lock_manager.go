package concurrency

import (
	"sync"
	"time"

	"github.com/bethewind/bustubgo/src/common"
)

// lockRequest is one entry in a RID's FIFO queue: which transaction
// wants the RID, in what mode, and whether it currently holds it.
type lockRequest struct {
	txnID   common.TxnID
	mode    common.LockMode
	granted bool
}

// lockRequestQueue is the per-RID state: a FIFO of requests plus a
// condition variable and an upgrade-in-progress flag, all guarded by
// the manager-wide latch (cond.L points at it).
type lockRequestQueue struct {
	requests  []*lockRequest
	cond      *sync.Cond
	upgrading bool
}

func (q *lockRequestQueue) find(txnID common.TxnID) int {
	for i, r := range q.requests {
		if r.txnID == txnID {
			return i
		}
	}
	return -1
}

func (q *lockRequestQueue) remove(i int) {
	q.requests = append(q.requests[:i], q.requests[i+1:]...)
}

// LockManager implements two-phase locking over RIDs: shared/exclusive
// acquisition with FIFO queueing, lock upgrade, and a background
// wait-for-graph cycle detector that aborts the youngest transaction in
// any cycle it finds. Grounded on original_source's lock_manager.cpp.
type LockManager struct {
	mu sync.Mutex

	table  map[common.RID]*lockRequestQueue
	txnRID map[common.TxnID]common.RID

	waitsFor map[common.TxnID]map[common.TxnID]struct{}

	txnManager *TransactionManager

	cycleInterval time.Duration
	stopOnce      sync.Once
	stopCh        chan struct{}
}

// NewLockManager builds a lock manager whose deadlock detector runs at
// interval; pass txnManager after constructing it (see SetTransactionManager)
// since the two are mutually referential.
func NewLockManager(interval time.Duration) *LockManager {
	return &LockManager{
		table:         make(map[common.RID]*lockRequestQueue),
		txnRID:        make(map[common.TxnID]common.RID),
		waitsFor:      make(map[common.TxnID]map[common.TxnID]struct{}),
		cycleInterval: interval,
		stopCh:        make(chan struct{}),
	}
}

// SetTransactionManager wires the manager the deadlock detector uses to
// resolve txn ids to live Transactions. Must be called before Start.
func (lm *LockManager) SetTransactionManager(tm *TransactionManager) {
	lm.txnManager = tm
}

// Start launches the background deadlock detector. Stop ends it.
func (lm *LockManager) Start() {
	go lm.runCycleDetection()
}

func (lm *LockManager) Stop() {
	lm.stopOnce.Do(func() { close(lm.stopCh) })
}

func (lm *LockManager) queueFor(rid common.RID) *lockRequestQueue {
	q, ok := lm.table[rid]
	if !ok {
		q = &lockRequestQueue{cond: sync.NewCond(&lm.mu)}
		lm.table[rid] = q
	}
	return q
}

// LockShared acquires a shared lock on rid for txn, blocking if an
// exclusive holder already has it granted.
func (lm *LockManager) LockShared(txn *Transaction, rid common.RID) error {
	if txn.GetIsolationLevel() == common.ReadUncommitted {
		txn.SetState(common.Aborted)
		return common.NewTransactionAbort(int64(txn.GetTransactionID()), common.LockSharedOnReadUncommitted)
	}
	if txn.GetState() != common.Growing {
		txn.SetState(common.Aborted)
		return common.NewTransactionAbort(int64(txn.GetTransactionID()), common.LockOnShrinking)
	}

	lm.mu.Lock()
	defer lm.mu.Unlock()

	txn.GetSharedLockSet()[rid] = struct{}{}
	q := lm.queueFor(rid)

	canLock := func() bool {
		for _, r := range q.requests {
			if r.granted && r.mode == common.Exclusive {
				return false
			}
		}
		return true
	}

	req := &lockRequest{txnID: txn.GetTransactionID(), mode: common.Shared, granted: canLock()}
	q.requests = append(q.requests, req)

	if !req.granted {
		lm.txnRID[txn.GetTransactionID()] = rid
		for txn.GetState() != common.Aborted && !canLock() {
			q.cond.Wait()
		}
		delete(lm.txnRID, txn.GetTransactionID())
	}

	if txn.GetState() == common.Aborted {
		delete(txn.GetSharedLockSet(), rid)
		if i := q.find(txn.GetTransactionID()); i >= 0 {
			q.remove(i)
		}
		q.cond.Broadcast()
		return common.NewTransactionAbort(int64(txn.GetTransactionID()), common.Deadlock)
	}

	req.granted = true
	return nil
}

// LockExclusive acquires an exclusive lock on rid for txn, blocking
// until no request on rid is currently granted.
func (lm *LockManager) LockExclusive(txn *Transaction, rid common.RID) error {
	if txn.GetState() != common.Growing {
		txn.SetState(common.Aborted)
		return common.NewTransactionAbort(int64(txn.GetTransactionID()), common.LockOnShrinking)
	}

	lm.mu.Lock()
	defer lm.mu.Unlock()

	txn.GetExclusiveLockSet()[rid] = struct{}{}
	q := lm.queueFor(rid)

	canLock := func() bool {
		for _, r := range q.requests {
			if r.granted {
				return false
			}
		}
		return true
	}

	req := &lockRequest{txnID: txn.GetTransactionID(), mode: common.Exclusive, granted: canLock()}
	q.requests = append(q.requests, req)

	if !req.granted {
		lm.txnRID[txn.GetTransactionID()] = rid
		for txn.GetState() != common.Aborted && !canLock() {
			q.cond.Wait()
		}
		delete(lm.txnRID, txn.GetTransactionID())
	}

	if txn.GetState() == common.Aborted {
		delete(txn.GetExclusiveLockSet(), rid)
		if i := q.find(txn.GetTransactionID()); i >= 0 {
			q.remove(i)
		}
		q.cond.Broadcast()
		return common.NewTransactionAbort(int64(txn.GetTransactionID()), common.Deadlock)
	}

	req.granted = true
	return nil
}

// LockUpgrade upgrades txn's shared lock on rid to exclusive in place,
// preserving its position in the queue. Only one upgrader may wait on a
// given rid at a time; a second concurrent upgrade aborts immediately.
func (lm *LockManager) LockUpgrade(txn *Transaction, rid common.RID) error {
	if txn.GetState() != common.Growing {
		txn.SetState(common.Aborted)
		return common.NewTransactionAbort(int64(txn.GetTransactionID()), common.LockOnShrinking)
	}

	delete(txn.GetSharedLockSet(), rid)
	txn.GetExclusiveLockSet()[rid] = struct{}{}

	lm.mu.Lock()
	defer lm.mu.Unlock()

	q := lm.queueFor(rid)
	if q.upgrading {
		txn.SetState(common.Aborted)
		return common.NewTransactionAbort(int64(txn.GetTransactionID()), common.UpgradeConflict)
	}

	i := q.find(txn.GetTransactionID())
	req := q.requests[i]
	req.granted = false
	req.mode = common.Exclusive

	canUpgrade := func() bool {
		for _, r := range q.requests {
			if r.granted {
				return false
			}
		}
		return true
	}

	if !canUpgrade() {
		q.upgrading = true
		lm.txnRID[txn.GetTransactionID()] = rid
		for txn.GetState() != common.Aborted && !canUpgrade() {
			q.cond.Wait()
		}
		delete(lm.txnRID, txn.GetTransactionID())
	}
	q.upgrading = false

	if txn.GetState() == common.Aborted {
		delete(txn.GetExclusiveLockSet(), rid)
		if j := q.find(txn.GetTransactionID()); j >= 0 {
			q.remove(j)
		}
		q.cond.Broadcast()
		return common.NewTransactionAbort(int64(txn.GetTransactionID()), common.Deadlock)
	}

	req.granted = true
	return nil
}

// Unlock releases txn's hold on rid, notifying every waiter on the
// queue. A REPEATABLE_READ transaction transitions to SHRINKING;
// READ_COMMITTED may keep acquiring locks.
func (lm *LockManager) Unlock(txn *Transaction, rid common.RID) error {
	delete(txn.GetSharedLockSet(), rid)
	delete(txn.GetExclusiveLockSet(), rid)

	lm.mu.Lock()
	defer lm.mu.Unlock()

	q := lm.queueFor(rid)
	i := q.find(txn.GetTransactionID())
	if i >= 0 {
		q.remove(i)
	}
	q.cond.Broadcast()

	if txn.GetState() == common.Growing && txn.GetIsolationLevel() == common.RepeatableRead {
		txn.SetState(common.Shrinking)
	}
	return nil
}

// AddEdge records that t1 waits for t2 to release a lock.
func (lm *LockManager) AddEdge(t1, t2 common.TxnID) {
	g, ok := lm.waitsFor[t1]
	if !ok {
		g = make(map[common.TxnID]struct{})
		lm.waitsFor[t1] = g
	}
	g[t2] = struct{}{}
}

// RemoveEdge deletes the t1 -> t2 wait-for edge, if present.
func (lm *LockManager) RemoveEdge(t1, t2 common.TxnID) {
	if g, ok := lm.waitsFor[t1]; ok {
		delete(g, t2)
	}
}

// HasCycle runs DFS over the wait-for graph; on finding a cycle it
// returns the youngest (highest-id) transaction among the cycle's
// members as the victim.
func (lm *LockManager) HasCycle() (common.TxnID, bool) {
	visited := make(map[common.TxnID]bool)
	inStack := make(map[common.TxnID]bool)
	var stack []common.TxnID
	var cycleStart common.TxnID
	found := false

	ids := make([]common.TxnID, 0, len(lm.waitsFor))
	for id := range lm.waitsFor {
		ids = append(ids, id)
	}

	var dfs func(cur common.TxnID) bool
	dfs = func(cur common.TxnID) bool {
		visited[cur] = true
		inStack[cur] = true
		stack = append(stack, cur)
		neighbors := make([]common.TxnID, 0, len(lm.waitsFor[cur]))
		for n := range lm.waitsFor[cur] {
			neighbors = append(neighbors, n)
		}
		for _, n := range neighbors {
			if inStack[n] {
				cycleStart = n
				found = true
				return true
			}
			if visited[n] {
				continue
			}
			if dfs(n) {
				return true
			}
		}
		inStack[cur] = false
		stack = stack[:len(stack)-1]
		return false
	}

	for _, id := range ids {
		if !visited[id] {
			if dfs(id) {
				break
			}
		}
	}

	if !found {
		return 0, false
	}

	youngest := cycleStart
	for len(stack) > 0 && stack[len(stack)-1] != cycleStart {
		top := stack[len(stack)-1]
		if top > youngest {
			youngest = top
		}
		stack = stack[:len(stack)-1]
	}
	return youngest, true
}

// buildWaitForGraph rebuilds waits_for from the current lock table:
// every waiting txn gets an edge to every granted txn on the same RID.
func (lm *LockManager) buildWaitForGraph() {
	lm.waitsFor = make(map[common.TxnID]map[common.TxnID]struct{})
	for _, q := range lm.table {
		var granted, waiting []common.TxnID
		for _, r := range q.requests {
			txn := lm.txnManager.GetTransaction(r.txnID)
			if txn == nil || txn.GetState() == common.Aborted {
				continue
			}
			if r.granted {
				granted = append(granted, r.txnID)
			} else {
				waiting = append(waiting, r.txnID)
			}
		}
		for _, w := range waiting {
			for _, g := range granted {
				lm.AddEdge(w, g)
			}
		}
	}
}

func (lm *LockManager) runCycleDetection() {
	ticker := time.NewTicker(lm.cycleInterval)
	defer ticker.Stop()
	for {
		select {
		case <-lm.stopCh:
			return
		case <-ticker.C:
			lm.detectOnce()
		}
	}
}

func (lm *LockManager) detectOnce() {
	lm.mu.Lock()
	defer lm.mu.Unlock()

	lm.buildWaitForGraph()
	for {
		victimID, ok := lm.HasCycle()
		if !ok {
			return
		}
		txn := lm.txnManager.GetTransaction(victimID)
		if txn != nil {
			txn.SetState(common.Aborted)
		}
		if rid, ok := lm.txnRID[victimID]; ok {
			if q, ok := lm.table[rid]; ok {
				q.cond.Broadcast()
			}
		}
		delete(lm.waitsFor, victimID)
		for _, g := range lm.waitsFor {
			delete(g, victimID)
		}
	}
}
