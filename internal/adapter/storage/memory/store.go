package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/evinterop/beckn-ocpi-bridge/internal/domain"
)

// TransactionStore is an in-memory ports.TransactionStore with the same
// optimistic-concurrency contract as the postgres store. Used for local
// development and tests.
type TransactionStore struct {
	mu  sync.Mutex
	txs map[string]domain.Transaction
}

func NewTransactionStore() *TransactionStore {
	return &TransactionStore{txs: make(map[string]domain.Transaction)}
}

func (s *TransactionStore) Load(ctx context.Context, id string) (*domain.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	tx, ok := s.txs[id]
	if !ok {
		return nil, nil
	}
	cp := tx
	return &cp, nil
}

func (s *TransactionStore) FindActiveByItem(ctx context.Context, userID string, item domain.ItemRef) (*domain.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, tx := range s.txs {
		if tx.UserID == userID && tx.Item() == item && !tx.CommerceState.Terminal() {
			cp := tx
			return &cp, nil
		}
	}
	return nil, nil
}

func (s *TransactionStore) Save(ctx context.Context, tx *domain.Transaction, expectedVersion int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, exists := s.txs[tx.ID]
	if expectedVersion == 0 {
		if exists {
			return fmt.Errorf("%w: transaction %s already exists", domain.ErrConcurrentModification, tx.ID)
		}
	} else {
		if !exists || current.Version != expectedVersion {
			return fmt.Errorf("%w: transaction %s version %d", domain.ErrConcurrentModification, tx.ID, expectedVersion)
		}
	}

	tx.Version = expectedVersion + 1
	s.txs[tx.ID] = *tx
	return nil
}

// BillingStore is an in-memory ports.BillingStore. Records are append-only;
// a second append for the same transaction fails.
type BillingStore struct {
	mu   sync.Mutex
	recs map[string]domain.BillingRecord // keyed by transaction id
}

func NewBillingStore() *BillingStore {
	return &BillingStore{recs: make(map[string]domain.BillingRecord)}
}

func (s *BillingStore) Append(ctx context.Context, rec *domain.BillingRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.recs[rec.TransactionID]; exists {
		return fmt.Errorf("billing record for transaction %s already exists", rec.TransactionID)
	}
	s.recs[rec.TransactionID] = *rec
	return nil
}

func (s *BillingStore) FindByTransactionID(ctx context.Context, transactionID string) (*domain.BillingRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.recs[transactionID]
	if !ok {
		return nil, nil
	}
	cp := rec
	return &cp, nil
}
