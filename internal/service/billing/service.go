package billing

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/evinterop/beckn-ocpi-bridge/internal/adapter/queue"
	"github.com/evinterop/beckn-ocpi-bridge/internal/domain"
	"github.com/evinterop/beckn-ocpi-bridge/internal/observability/telemetry"
	"github.com/evinterop/beckn-ocpi-bridge/internal/ports"
)

// DefaultTolerance is the maximum absolute difference, in currency minor
// units, between a recomputed total and the total the network reported before
// the record is flagged.
const DefaultTolerance = 0.01

// Service turns charge detail records into immutable billing records. The
// total is always recomputed from the record's own base and tax; the
// network's reported total is kept only for comparison.
type Service struct {
	store     ports.BillingStore
	mq        queue.MessageQueue
	tolerance float64
	log       *zap.Logger
}

func NewService(store ports.BillingStore, mq queue.MessageQueue, tolerance float64, log *zap.Logger) *Service {
	if tolerance <= 0 {
		tolerance = DefaultTolerance
	}
	return &Service{
		store:     store,
		mq:        mq,
		tolerance: tolerance,
		log:       log,
	}
}

// billable reports whether the transaction may receive a billing record. A
// cancelled order that already ran a session still gets billed for the energy
// it drew before termination.
func billable(tx *domain.Transaction) bool {
	switch tx.CommerceState {
	case domain.CommerceCompleted:
		return true
	case domain.CommerceCancelled:
		return tx.InfraSessionID != ""
	}
	return false
}

// ToBillingRecord derives a billing record from a CDR. It fails with
// domain.ErrPrematureBilling when the transaction has not finished charging.
func (s *Service) ToBillingRecord(tx *domain.Transaction, cdr *domain.CDR) (*domain.BillingRecord, error) {
	if cdr == nil {
		return nil, errors.New("cdr cannot be nil")
	}
	if !billable(tx) {
		return nil, fmt.Errorf("%w: order %s is %s", domain.ErrPrematureBilling, tx.ID, tx.CommerceState)
	}

	base, tax := costBreakdown(cdr)
	total := base + tax

	rec := &domain.BillingRecord{
		ID:                 uuid.New().String(),
		TransactionID:      tx.ID,
		CDRID:              cdr.ID,
		Currency:           cdr.Currency,
		EnergyKWh:          cdr.TotalEnergy,
		DurationHours:      cdr.TotalTime,
		BaseAmount:         base,
		TaxAmount:          tax,
		TotalAmount:        total,
		InvoiceReferenceID: cdr.InvoiceReferenceID,
		CreatedAt:          time.Now(),
	}

	if cdr.TotalCost != nil {
		rec.ReportedTotal = cdr.TotalCost.InclVAT
		if math.Abs(total-rec.ReportedTotal) > s.tolerance {
			rec.Mismatch = true
		}
	}

	return rec, nil
}

// Record persists the billing record for a finished transaction. It is
// idempotent: if a record already exists for the transaction the existing one
// is returned and the CDR is ignored.
func (s *Service) Record(ctx context.Context, tx *domain.Transaction, cdr *domain.CDR) (*domain.BillingRecord, error) {
	existing, err := s.store.FindByTransactionID(ctx, tx.ID)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return existing, nil
	}

	rec, err := s.ToBillingRecord(tx, cdr)
	if err != nil {
		return nil, err
	}

	if err := s.store.Append(ctx, rec); err != nil {
		// A concurrent writer may have appended first.
		if again, ferr := s.store.FindByTransactionID(ctx, tx.ID); ferr == nil && again != nil {
			return again, nil
		}
		return nil, err
	}

	telemetry.EnergyDeliveredTotal.Add(rec.EnergyKWh)
	if rec.Mismatch {
		telemetry.BillingMismatchesTotal.Inc()
		s.log.Warn("billing total mismatch",
			zap.String("order_id", tx.ID),
			zap.String("cdr_id", cdr.ID),
			zap.Float64("recomputed", rec.TotalAmount),
			zap.Float64("reported", rec.ReportedTotal))
	}

	s.publish(rec)
	return rec, nil
}

// Find returns the billing record for a transaction, or nil when none exists.
func (s *Service) Find(ctx context.Context, transactionID string) (*domain.BillingRecord, error) {
	return s.store.FindByTransactionID(ctx, transactionID)
}

// costBreakdown sums the CDR's per-dimension costs into a tax-exclusive base
// and the tax on top. When no per-dimension costs are present the aggregate
// total is used as the base source instead.
func costBreakdown(cdr *domain.CDR) (base, tax float64) {
	parts := []*domain.Price{cdr.TotalEnergyCost, cdr.TotalTimeCost, cdr.TotalFixedCost}
	any := false
	for _, p := range parts {
		if p == nil {
			continue
		}
		any = true
		base += p.ExclVAT
		tax += p.InclVAT - p.ExclVAT
	}
	if !any && cdr.TotalCost != nil {
		base = cdr.TotalCost.ExclVAT
		tax = cdr.TotalCost.InclVAT - cdr.TotalCost.ExclVAT
	}
	return base, tax
}

func (s *Service) publish(rec *domain.BillingRecord) {
	if s.mq == nil {
		return
	}
	event := map[string]interface{}{
		"order_id":   rec.TransactionID,
		"cdr_id":     rec.CDRID,
		"currency":   rec.Currency,
		"amount":     rec.TotalAmount,
		"energy_kwh": rec.EnergyKWh,
		"mismatch":   rec.Mismatch,
		"timestamp":  time.Now().UTC().Format(time.RFC3339),
	}
	if data, err := json.Marshal(event); err == nil {
		if err := s.mq.Publish("billing.recorded", data); err != nil {
			s.log.Warn("failed to publish billing event", zap.Error(err))
		}
	}
}
