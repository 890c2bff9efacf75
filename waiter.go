package smb3

import "sync"

// notifier is the one-shot channel spec.md §3's "Waiter table" describes:
// the reader fires it exactly once, either with a decoded message or with
// a terminal error.
type notifier struct {
	asyncId uint64
	pkt     chan *IncomingMessage
	err     error
}

// waiterTable maps message_id to the notifier awaiting its response. It
// generalizes the teacher's outstandingRequests (conn.go) to the name and
// shape spec.md §4.2/§9 describe.
type waiterTable struct {
	mu    sync.Mutex
	byMsg map[uint64]*notifier
}

func newWaiterTable() *waiterTable {
	return &waiterTable{byMsg: make(map[uint64]*notifier)}
}

func (t *waiterTable) insert(msgId uint64) *notifier {
	n := &notifier{pkt: make(chan *IncomingMessage, 1)}
	t.mu.Lock()
	t.byMsg[msgId] = n
	t.mu.Unlock()
	return n
}

func (t *waiterTable) pop(msgId uint64) (*notifier, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	n, ok := t.byMsg[msgId]
	if ok {
		delete(t.byMsg, msgId)
	}
	return n, ok
}

// lookup peeks at the notifier registered for msgId without removing it,
// used by Worker.receive to re-wait on the same notifier object
// runReceiver re-armed via keepPending after an async-pending interim
// response.
func (t *waiterTable) lookup(msgId uint64) (*notifier, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	n, ok := t.byMsg[msgId]
	return n, ok
}

// keepPending re-registers the notifier under the same id after an async
// "pending" interim response, per spec.md §4.2's dispatch policy: the
// waiter stays in the table, armed for the eventual final completion.
func (t *waiterTable) keepPending(msgId uint64, n *notifier) {
	t.mu.Lock()
	t.byMsg[msgId] = n
	t.mu.Unlock()
}

func (t *waiterTable) remove(msgId uint64) {
	t.mu.Lock()
	delete(t.byMsg, msgId)
	t.mu.Unlock()
}

// shutdown wakes every outstanding waiter with err, used when the reader
// or writer loop terminates (spec.md §4.2 "Failure semantics").
func (t *waiterTable) shutdown(err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for msgId, n := range t.byMsg {
		n.err = err
		close(n.pkt)
		delete(t.byMsg, msgId)
	}
}
