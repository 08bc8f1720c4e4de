package ports

import (
	"context"
	"time"

	"github.com/evinterop/beckn-ocpi-bridge/internal/domain"
)

// TransactionStore persists Transactions with optimistic concurrency.
// Load returns (nil, nil) when the transaction does not exist.
//
// Save commits tx only when the stored version equals expectedVersion;
// expectedVersion 0 means insert. On success the store bumps tx.Version to
// expectedVersion+1. A stale expectedVersion fails with
// domain.ErrConcurrentModification and must not overwrite anything.
type TransactionStore interface {
	Load(ctx context.Context, id string) (*domain.Transaction, error)
	FindActiveByItem(ctx context.Context, userID string, item domain.ItemRef) (*domain.Transaction, error)
	Save(ctx context.Context, tx *domain.Transaction, expectedVersion int64) error
}

// BillingStore persists immutable billing records. Append fails if a record
// for the same transaction already exists; FindByTransactionID returns
// (nil, nil) when absent.
type BillingStore interface {
	Append(ctx context.Context, rec *domain.BillingRecord) error
	FindByTransactionID(ctx context.Context, transactionID string) (*domain.BillingRecord, error)
}

// Cache is a TTL key/value cache for OCPI snapshot data.
type Cache interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error
	Delete(ctx context.Context, key string) error
	Close() error
}
