package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/evinterop/beckn-ocpi-bridge/internal/adapter/queue"
	"github.com/evinterop/beckn-ocpi-bridge/internal/domain"
	"github.com/evinterop/beckn-ocpi-bridge/internal/observability/telemetry"
	"github.com/evinterop/beckn-ocpi-bridge/internal/ports"
)

// ErrNotFound is returned when an order id resolves to no transaction.
var ErrNotFound = errors.New("order not found")

// Machine owns every commerce-state mutation. All writes go through the
// store's compare-and-swap; the machine never holds a transaction locked
// across a network call. The pattern is read, call out, re-validate, commit.
type Machine struct {
	store ports.TransactionStore
	ocpi  ports.OCPIClient
	mq    queue.MessageQueue
	log   *zap.Logger
}

func NewMachine(store ports.TransactionStore, ocpi ports.OCPIClient, mq queue.MessageQueue, log *zap.Logger) *Machine {
	return &Machine{
		store: store,
		ocpi:  ocpi,
		mq:    mq,
		log:   log,
	}
}

// CreateForSelect creates a CREATED transaction for the selected connector.
// If the user already holds a non-terminal transaction on the same connector
// the existing one is returned instead of creating a duplicate.
func (m *Machine) CreateForSelect(ctx context.Context, userID string, item domain.ItemRef, authToken string, selectedKWh float64) (*domain.Transaction, error) {
	existing, err := m.store.FindActiveByItem(ctx, userID, item)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return existing, nil
	}

	now := time.Now()
	tx := &domain.Transaction{
		ID:                 uuid.New().String(),
		CommerceState:      domain.CommerceCreated,
		InfraState:         domain.InfraUnknown,
		UserID:             userID,
		LocationID:         item.LocationID,
		EvseUID:            item.EvseUID,
		ConnectorID:        item.ConnectorID,
		AuthorizationToken: authToken,
		SelectedKWh:        selectedKWh,
		CreatedAt:          now,
		UpdatedAt:          now,
	}

	if err := m.store.Save(ctx, tx, 0); err != nil {
		if errors.Is(err, domain.ErrConcurrentModification) {
			// Lost a race against a concurrent select for the same item.
			if winner, ferr := m.store.FindActiveByItem(ctx, userID, item); ferr == nil && winner != nil {
				return winner, nil
			}
		}
		return nil, err
	}

	m.publish("order.created", tx)
	return tx, nil
}

// Confirm starts the underlying charging session for a CREATED transaction
// and commits CREATED to ACTIVE in a single write. The call is idempotent: a
// transaction that already carries an infra session id is returned unchanged,
// and a session is never initiated twice for the same transaction.
//
// Nothing is persisted before the infra call succeeds. A failed call leaves
// the transaction in CREATED when the failure is transient, so the caller can
// retry confirm, and moves it to FAILED otherwise.
func (m *Machine) Confirm(ctx context.Context, orderID string) (*domain.Transaction, error) {
	tx, err := m.store.Load(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if tx == nil {
		return nil, ErrNotFound
	}

	if tx.InfraSessionID != "" {
		return tx, nil
	}
	if tx.CommerceState != domain.CommerceCreated {
		return nil, fmt.Errorf("%w: confirm from %s", domain.ErrInvalidTransition, tx.CommerceState)
	}

	expected := tx.Version

	sessionID, err := m.ocpi.InitiateSession(ctx, tx.AuthorizationToken, tx.Item())
	if err != nil {
		if domain.Transient(err) {
			return nil, err
		}
		m.fail(ctx, tx.ID, "session initiation rejected")
		return nil, err
	}

	// Re-validate before committing; a concurrent confirm may have won.
	fresh, err := m.store.Load(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if fresh == nil {
		return nil, ErrNotFound
	}
	if fresh.InfraSessionID != "" {
		return fresh, nil
	}
	if fresh.Version != expected {
		return nil, domain.ErrConcurrentModification
	}

	fresh.InfraSessionID = sessionID
	fresh.CommerceState = domain.CommerceActive
	fresh.InfraState = domain.InfraPending
	fresh.UpdatedAt = time.Now()

	if err := m.store.Save(ctx, fresh, expected); err != nil {
		if errors.Is(err, domain.ErrConcurrentModification) {
			// The winner has already bound a session id; surface its result.
			if winner, lerr := m.store.Load(ctx, orderID); lerr == nil && winner != nil && winner.InfraSessionID != "" {
				return winner, nil
			}
		}
		return nil, err
	}

	telemetry.ActiveOrders.Inc()
	m.publish("order.confirmed", fresh)
	return fresh, nil
}

// Cancel moves a non-terminal transaction to CANCELLED, terminating the
// underlying session first when one is running. Cancelling an already
// cancelled transaction is a no-op; any other terminal state rejects.
func (m *Machine) Cancel(ctx context.Context, orderID, reason string) (*domain.Transaction, error) {
	tx, err := m.store.Load(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if tx == nil {
		return nil, ErrNotFound
	}

	if tx.CommerceState == domain.CommerceCancelled {
		return tx, nil
	}
	if !domain.CanTransition(tx.CommerceState, domain.CommerceCancelled) {
		return nil, fmt.Errorf("%w: cancel from %s", domain.ErrInvalidTransition, tx.CommerceState)
	}

	expected := tx.Version

	if tx.InfraSessionID != "" && tx.InfraState != domain.InfraCompleted {
		if err := m.ocpi.TerminateSession(ctx, tx.InfraSessionID); err != nil {
			return nil, err
		}
	}

	fresh, err := m.store.Load(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if fresh == nil {
		return nil, ErrNotFound
	}
	if fresh.CommerceState == domain.CommerceCancelled {
		return fresh, nil
	}
	if fresh.Version != expected {
		return nil, domain.ErrConcurrentModification
	}

	fresh.CommerceState = domain.CommerceCancelled
	fresh.UpdatedAt = time.Now()

	if err := m.store.Save(ctx, fresh, expected); err != nil {
		return nil, err
	}

	if fresh.InfraSessionID != "" {
		telemetry.ActiveOrders.Dec()
	}
	m.log.Info("order cancelled",
		zap.String("order_id", fresh.ID),
		zap.String("reason", reason))
	m.publish("order.cancelled", fresh)
	return fresh, nil
}

// Reconcile folds an observed infra session status into the commerce state.
// A nil or UNKNOWN observation changes nothing. Observations the transition
// table cannot explain force the transaction to FAILED and return
// domain.ErrStateDivergence alongside the committed transaction.
func (m *Machine) Reconcile(ctx context.Context, tx *domain.Transaction, observed *domain.Session) (*domain.Transaction, error) {
	if tx.CommerceState.Terminal() {
		return tx, nil
	}
	if observed == nil || observed.Status == domain.InfraUnknown {
		return tx, nil
	}

	expected := tx.Version
	next := tx.CommerceState
	diverged := false

	switch {
	case observed.Status == domain.InfraError:
		next = domain.CommerceFailed

	case tx.CommerceState == domain.CommerceCreated:
		// Infra activity before any session was bound cannot be ours.
		next = domain.CommerceFailed
		diverged = true

	case tx.CommerceState == domain.CommerceAuthorizing:
		if observed.Status == domain.InfraActive {
			next = domain.CommerceActive
		}

	case tx.CommerceState == domain.CommerceActive:
		switch observed.Status {
		case domain.InfraActive:
			next = domain.CommerceInProgress
		case domain.InfraCompleted:
			if tx.InfraSessionID != "" {
				next = domain.CommerceCompleted
			} else {
				next = domain.CommerceFailed
				diverged = true
			}
		}

	case tx.CommerceState == domain.CommerceInProgress:
		if observed.Status == domain.InfraCompleted {
			next = domain.CommerceCompleted
		}
	}

	changed := next != tx.CommerceState ||
		observed.Status != tx.InfraState ||
		observed.KWh != tx.LastEnergyKWh

	if !changed {
		return tx, nil
	}

	tx.CommerceState = next
	tx.InfraState = observed.Status
	tx.LastEnergyKWh = observed.KWh
	tx.UpdatedAt = time.Now()

	if err := m.store.Save(ctx, tx, expected); err != nil {
		return nil, err
	}

	if next.Terminal() && tx.InfraSessionID != "" {
		telemetry.ActiveOrders.Dec()
	}

	if diverged {
		telemetry.StateDivergencesTotal.Inc()
		m.log.Warn("state divergence detected",
			zap.String("order_id", tx.ID),
			zap.String("infra_session_id", tx.InfraSessionID),
			zap.String("observed", string(observed.Status)))
		m.publish("order.diverged", tx)
		return tx, domain.ErrStateDivergence
	}

	m.publish("order.state_changed", tx)
	return tx, nil
}

// Get loads a transaction by order id, failing with ErrNotFound when absent.
func (m *Machine) Get(ctx context.Context, orderID string) (*domain.Transaction, error) {
	tx, err := m.store.Load(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if tx == nil {
		return nil, ErrNotFound
	}
	return tx, nil
}

// fail best-effort moves a transaction to FAILED. Used after a permanent
// infra rejection; a lost race here means someone else already moved it.
func (m *Machine) fail(ctx context.Context, orderID, reason string) {
	tx, err := m.store.Load(ctx, orderID)
	if err != nil || tx == nil {
		return
	}
	if !domain.CanTransition(tx.CommerceState, domain.CommerceFailed) {
		return
	}
	expected := tx.Version
	tx.CommerceState = domain.CommerceFailed
	tx.UpdatedAt = time.Now()
	if err := m.store.Save(ctx, tx, expected); err != nil {
		m.log.Warn("could not mark order failed",
			zap.String("order_id", orderID),
			zap.Error(err))
		return
	}
	m.log.Info("order failed",
		zap.String("order_id", orderID),
		zap.String("reason", reason))
	m.publish("order.failed", tx)
}

func (m *Machine) publish(subject string, tx *domain.Transaction) {
	if m.mq == nil {
		return
	}
	data, err := json.Marshal(map[string]interface{}{
		"order_id":         tx.ID,
		"commerce_state":   tx.CommerceState,
		"infra_state":      tx.InfraState,
		"infra_session_id": tx.InfraSessionID,
		"timestamp":        time.Now().UTC(),
	})
	if err != nil {
		return
	}
	if err := m.mq.Publish(subject, data); err != nil {
		m.log.Warn("event publish failed",
			zap.String("subject", subject),
			zap.Error(err))
	}
}
