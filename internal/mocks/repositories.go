package mocks

import (
	"context"
	"time"

	"github.com/evinterop/beckn-ocpi-bridge/internal/domain"
)

// MockTransactionStore is a mock implementation of ports.TransactionStore
type MockTransactionStore struct {
	LoadFunc             func(ctx context.Context, id string) (*domain.Transaction, error)
	FindActiveByItemFunc func(ctx context.Context, userID string, item domain.ItemRef) (*domain.Transaction, error)
	SaveFunc             func(ctx context.Context, tx *domain.Transaction, expectedVersion int64) error
}

func (m *MockTransactionStore) Load(ctx context.Context, id string) (*domain.Transaction, error) {
	if m.LoadFunc != nil {
		return m.LoadFunc(ctx, id)
	}
	return nil, nil
}

func (m *MockTransactionStore) FindActiveByItem(ctx context.Context, userID string, item domain.ItemRef) (*domain.Transaction, error) {
	if m.FindActiveByItemFunc != nil {
		return m.FindActiveByItemFunc(ctx, userID, item)
	}
	return nil, nil
}

func (m *MockTransactionStore) Save(ctx context.Context, tx *domain.Transaction, expectedVersion int64) error {
	if m.SaveFunc != nil {
		return m.SaveFunc(ctx, tx, expectedVersion)
	}
	return nil
}

// MockBillingStore is a mock implementation of ports.BillingStore
type MockBillingStore struct {
	AppendFunc              func(ctx context.Context, rec *domain.BillingRecord) error
	FindByTransactionIDFunc func(ctx context.Context, transactionID string) (*domain.BillingRecord, error)
}

func (m *MockBillingStore) Append(ctx context.Context, rec *domain.BillingRecord) error {
	if m.AppendFunc != nil {
		return m.AppendFunc(ctx, rec)
	}
	return nil
}

func (m *MockBillingStore) FindByTransactionID(ctx context.Context, transactionID string) (*domain.BillingRecord, error) {
	if m.FindByTransactionIDFunc != nil {
		return m.FindByTransactionIDFunc(ctx, transactionID)
	}
	return nil, nil
}

// MockCache is a mock implementation of ports.Cache
type MockCache struct {
	GetFunc    func(ctx context.Context, key string) (string, error)
	SetFunc    func(ctx context.Context, key string, value interface{}, expiration time.Duration) error
	DeleteFunc func(ctx context.Context, key string) error
	CloseFunc  func() error
}

func (m *MockCache) Get(ctx context.Context, key string) (string, error) {
	if m.GetFunc != nil {
		return m.GetFunc(ctx, key)
	}
	return "", nil
}

func (m *MockCache) Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error {
	if m.SetFunc != nil {
		return m.SetFunc(ctx, key, value, expiration)
	}
	return nil
}

func (m *MockCache) Delete(ctx context.Context, key string) error {
	if m.DeleteFunc != nil {
		return m.DeleteFunc(ctx, key)
	}
	return nil
}

func (m *MockCache) Close() error {
	if m.CloseFunc != nil {
		return m.CloseFunc()
	}
	return nil
}
