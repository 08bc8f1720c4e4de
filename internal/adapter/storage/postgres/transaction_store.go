package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/evinterop/beckn-ocpi-bridge/internal/domain"
	"github.com/evinterop/beckn-ocpi-bridge/internal/observability/telemetry"
	"github.com/evinterop/beckn-ocpi-bridge/internal/ports"
)

type TransactionStore struct {
	db  *gorm.DB
	log *zap.Logger
}

func NewTransactionStore(db *gorm.DB, log *zap.Logger) ports.TransactionStore {
	return &TransactionStore{
		db:  db,
		log: log,
	}
}

func (s *TransactionStore) Load(ctx context.Context, id string) (*domain.Transaction, error) {
	defer observe(time.Now())

	var tx domain.Transaction
	err := s.db.WithContext(ctx).First(&tx, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &tx, nil
}

func (s *TransactionStore) FindActiveByItem(ctx context.Context, userID string, item domain.ItemRef) (*domain.Transaction, error) {
	defer observe(time.Now())

	terminal := []domain.CommerceState{
		domain.CommerceCompleted, domain.CommerceCancelled, domain.CommerceFailed,
	}

	var tx domain.Transaction
	err := s.db.WithContext(ctx).
		Where("user_id = ? AND location_id = ? AND evse_uid = ? AND connector_id = ? AND commerce_state NOT IN ?",
			userID, item.LocationID, item.EvseUID, item.ConnectorID, terminal).
		First(&tx).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &tx, nil
}

// Save commits the transaction under optimistic concurrency. Version 0
// inserts; any other expected version updates only the row still carrying
// it. A write that matches no row lost a race and fails with
// domain.ErrConcurrentModification so the caller can re-read and decide.
func (s *TransactionStore) Save(ctx context.Context, tx *domain.Transaction, expectedVersion int64) error {
	defer observe(time.Now())

	if expectedVersion == 0 {
		tx.Version = 1
		if err := s.db.WithContext(ctx).Create(tx).Error; err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return fmt.Errorf("%w: transaction %s already exists", domain.ErrConcurrentModification, tx.ID)
			}
			return err
		}
		return nil
	}

	tx.Version = expectedVersion + 1
	result := s.db.WithContext(ctx).
		Model(&domain.Transaction{}).
		Where("id = ? AND version = ?", tx.ID, expectedVersion).
		Updates(map[string]interface{}{
			"infra_session_id": tx.InfraSessionID,
			"commerce_state":   tx.CommerceState,
			"infra_state":      tx.InfraState,
			"last_energy_kwh":  tx.LastEnergyKWh,
			"updated_at":       tx.UpdatedAt,
			"version":          tx.Version,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		tx.Version = expectedVersion
		return fmt.Errorf("%w: transaction %s version %d", domain.ErrConcurrentModification, tx.ID, expectedVersion)
	}
	return nil
}

func observe(start time.Time) {
	telemetry.DatabaseLatency.Observe(time.Since(start).Seconds())
}
