package smb3

import (
	"context"
	"testing"
	"time"
)

func TestChargeForPayloadSmallMTU(t *testing.T) {
	cb := newCreditBalance()
	if got := cb.chargeForPayload(100, 100); got != 1 {
		t.Fatalf("charge = %d, want 1 before SMB2_GLOBAL_CAP_LARGE_MTU", got)
	}
}

func TestChargeForPayloadLargeMTU(t *testing.T) {
	cb := newCreditBalance()
	cb.enableLargeMTU()

	if got := cb.chargeForPayload(1, 1); got != 1 {
		t.Fatalf("charge = %d, want 1 for a payload under 64 KiB", got)
	}
	if got := cb.chargeForPayload(64*1024+1, 0); got != 2 {
		t.Fatalf("charge = %d, want 2 for a payload just over 64 KiB", got)
	}
	if got := cb.chargeForPayload(0, 128*1024); got != 2 {
		t.Fatalf("charge = %d, want 2 for an exact 128 KiB payload", got)
	}
}

func TestReserveBlocksUntilCredited(t *testing.T) {
	cb := newCreditBalance() // starts at balance 1

	if err := cb.reserve(context.Background(), 1); err != nil {
		t.Fatalf("reserve: %v", err)
	}

	done := make(chan error, 1)
	go func() {
		done <- cb.reserve(context.Background(), 1)
	}()

	select {
	case <-done:
		t.Fatalf("reserve returned before any credit was available")
	case <-time.After(20 * time.Millisecond):
	}

	cb.credit(1)

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("reserve: %v", err)
		}
	case <-time.After(time.Second):
		t.Fatalf("reserve did not wake up after credit()")
	}
}

func TestReserveRespectsContextCancellation(t *testing.T) {
	cb := newCreditBalance()
	if err := cb.reserve(context.Background(), 1); err != nil {
		t.Fatalf("reserve: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := cb.reserve(ctx, 1); err == nil {
		t.Fatalf("reserve must return an error once ctx is already cancelled")
	}
}

func TestRequestReplenishment(t *testing.T) {
	cb := newCreditBalance()
	if got := cb.requestReplenishment(); got != minCreditBalance-1 {
		t.Fatalf("requestReplenishment = %d, want %d", got, minCreditBalance-1)
	}

	cb.credit(minCreditBalance)
	if got := cb.requestReplenishment(); got != 1 {
		t.Fatalf("requestReplenishment = %d, want 1 once balance reaches the floor", got)
	}
}
