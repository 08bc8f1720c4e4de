package memory

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/evinterop/beckn-ocpi-bridge/internal/domain"
)

func newTx(id string) *domain.Transaction {
	return &domain.Transaction{
		ID:            id,
		CommerceState: domain.CommerceCreated,
		InfraState:    domain.InfraUnknown,
		UserID:        "user-1",
		LocationID:    "LOC-1",
		EvseUID:       "EVSE-1",
		ConnectorID:   "1",
	}
}

func TestSave_InsertAndVersionBump(t *testing.T) {
	ctx := context.Background()
	store := NewTransactionStore()
	tx := newTx("order-1")

	if err := store.Save(ctx, tx, 0); err != nil {
		t.Fatalf("insert: %v", err)
	}
	if tx.Version != 1 {
		t.Errorf("expected version 1, got %d", tx.Version)
	}

	tx.CommerceState = domain.CommerceActive
	if err := store.Save(ctx, tx, 1); err != nil {
		t.Fatalf("update: %v", err)
	}
	if tx.Version != 2 {
		t.Errorf("expected version 2, got %d", tx.Version)
	}
}

func TestSave_DoubleInsertRejected(t *testing.T) {
	ctx := context.Background()
	store := NewTransactionStore()

	if err := store.Save(ctx, newTx("order-1"), 0); err != nil {
		t.Fatalf("insert: %v", err)
	}

	err := store.Save(ctx, newTx("order-1"), 0)

	if !errors.Is(err, domain.ErrConcurrentModification) {
		t.Fatalf("expected ErrConcurrentModification, got %v", err)
	}
}

func TestSave_StaleVersionRejectedWithoutOverwrite(t *testing.T) {
	ctx := context.Background()
	store := NewTransactionStore()
	tx := newTx("order-1")
	store.Save(ctx, tx, 0)

	fresh, _ := store.Load(ctx, "order-1")
	fresh.CommerceState = domain.CommerceActive
	store.Save(ctx, fresh, 1)

	stale := newTx("order-1")
	stale.CommerceState = domain.CommerceFailed
	err := store.Save(ctx, stale, 1)

	if !errors.Is(err, domain.ErrConcurrentModification) {
		t.Fatalf("expected ErrConcurrentModification, got %v", err)
	}
	current, _ := store.Load(ctx, "order-1")
	if current.CommerceState != domain.CommerceActive {
		t.Errorf("expected the winner's write preserved, got %s", current.CommerceState)
	}
}

func TestSave_ConcurrentWritersExactlyOneWins(t *testing.T) {
	ctx := context.Background()
	store := NewTransactionStore()
	store.Save(ctx, newTx("order-1"), 0)

	const writers = 16
	var wg sync.WaitGroup
	wins := make(chan struct{}, writers)

	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			tx, _ := store.Load(ctx, "order-1")
			tx.CommerceState = domain.CommerceActive
			if err := store.Save(ctx, tx, 1); err == nil {
				wins <- struct{}{}
			}
		}()
	}
	wg.Wait()
	close(wins)

	count := 0
	for range wins {
		count++
	}
	if count != 1 {
		t.Fatalf("expected exactly one winner, got %d", count)
	}
}

func TestFindActiveByItem_SkipsTerminal(t *testing.T) {
	ctx := context.Background()
	store := NewTransactionStore()

	done := newTx("order-done")
	done.CommerceState = domain.CommerceCompleted
	store.Save(ctx, done, 0)

	if tx, _ := store.FindActiveByItem(ctx, "user-1", done.Item()); tx != nil {
		t.Error("expected terminal transactions invisible to FindActiveByItem")
	}

	live := newTx("order-live")
	store.Save(ctx, live, 0)

	tx, _ := store.FindActiveByItem(ctx, "user-1", live.Item())
	if tx == nil || tx.ID != "order-live" {
		t.Errorf("expected the live transaction, got %+v", tx)
	}
}

func TestBillingStore_AppendOnly(t *testing.T) {
	ctx := context.Background()
	store := NewBillingStore()

	rec := &domain.BillingRecord{ID: "b-1", TransactionID: "order-1", TotalAmount: 100}
	if err := store.Append(ctx, rec); err != nil {
		t.Fatalf("append: %v", err)
	}

	dup := &domain.BillingRecord{ID: "b-2", TransactionID: "order-1", TotalAmount: 999}
	if err := store.Append(ctx, dup); err == nil {
		t.Fatal("expected duplicate append rejected")
	}

	got, _ := store.FindByTransactionID(ctx, "order-1")
	if got == nil || got.ID != "b-1" {
		t.Errorf("expected the original record, got %+v", got)
	}
}
