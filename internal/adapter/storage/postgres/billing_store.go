package postgres

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/evinterop/beckn-ocpi-bridge/internal/domain"
	"github.com/evinterop/beckn-ocpi-bridge/internal/ports"
)

type BillingStore struct {
	db  *gorm.DB
	log *zap.Logger
}

func NewBillingStore(db *gorm.DB, log *zap.Logger) ports.BillingStore {
	return &BillingStore{
		db:  db,
		log: log,
	}
}

// Append inserts the record. The unique index on transaction_id makes a
// second append for the same transaction fail instead of overwriting.
func (s *BillingStore) Append(ctx context.Context, rec *domain.BillingRecord) error {
	defer observe(time.Now())
	return s.db.WithContext(ctx).Create(rec).Error
}

func (s *BillingStore) FindByTransactionID(ctx context.Context, transactionID string) (*domain.BillingRecord, error) {
	defer observe(time.Now())

	var rec domain.BillingRecord
	err := s.db.WithContext(ctx).First(&rec, "transaction_id = ?", transactionID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &rec, nil
}
