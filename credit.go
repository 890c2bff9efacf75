package smb3

import (
	"context"
	"sync"

	"github.com/smb3client/smb3/internal/erref"
)

// minCreditBalance is the floor the Worker replenishes toward for
// throughput-bound workloads (spec.md §4.2).
const minCreditBalance = 512

// creditBalance tracks the server-granted credit count for one connection
// (spec.md §3 "CreditBalance"), generalizing the teacher's unretrieved
// *account type from the same call sites conn.go exercises
// (loanCredit/chargeCredit/conn.account.opening).
type creditBalance struct {
	mu      sync.Mutex
	balance uint16
	maxMTU  bool // true once SMB2_GLOBAL_CAP_LARGE_MTU is negotiated
	wake    chan struct{}
}

func newCreditBalance() *creditBalance {
	return &creditBalance{balance: 1, wake: make(chan struct{})}
}

func (cb *creditBalance) enableLargeMTU() {
	cb.mu.Lock()
	cb.maxMTU = true
	cb.mu.Unlock()
}

// chargeForPayload computes the credit_charge for a request of the given
// payload size in each direction, per spec.md §4.2: 1 unless the larger
// of the two payloads crosses the 64 KiB boundary.
func (cb *creditBalance) chargeForPayload(payloadIn, payloadOut int) uint16 {
	cb.mu.Lock()
	large := cb.maxMTU
	cb.mu.Unlock()

	if !large {
		return 1
	}
	n := payloadIn
	if payloadOut > n {
		n = payloadOut
	}
	charge := (n-1)/(64*1024) + 1
	if charge < 1 {
		charge = 1
	}
	return uint16(charge)
}

// reserve blocks (cooperatively, via ctx) until charge credits are
// available, then debits them. Waiting is done by watching a broadcast
// channel that credit() closes and replaces, so a cancelled caller never
// leaves a goroutine blocked behind it.
func (cb *creditBalance) reserve(ctx context.Context, charge uint16) error {
	for {
		cb.mu.Lock()
		if cb.balance >= charge {
			cb.balance -= charge
			cb.mu.Unlock()
			return nil
		}
		wake := cb.wake
		cb.mu.Unlock()

		select {
		case <-wake:
			// loop and re-check the balance
		case <-ctx.Done():
			return &erref.ContextError{Err: ctx.Err()}
		}
	}
}

// requestReplenishment returns how much credit_request the Worker should
// ask for in the header's CreditRequestResponse field to keep the
// balance at or above minCreditBalance, at least 1 always.
func (cb *creditBalance) requestReplenishment() uint16 {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	if cb.balance >= minCreditBalance {
		return 1
	}
	return minCreditBalance - cb.balance
}

// credit adds the server's credit_response to the balance (spec.md §4.2:
// "increments it by credit_response from every received message").
func (cb *creditBalance) credit(n uint16) {
	if n == 0 {
		return
	}
	cb.mu.Lock()
	cb.balance += n
	close(cb.wake)
	cb.wake = make(chan struct{})
	cb.mu.Unlock()
}
