package domain

import (
	"time"
)

// CommerceState is the order lifecycle visible to commerce-side consumers.
type CommerceState string

const (
	CommerceCreated     CommerceState = "CREATED"
	CommerceAuthorizing CommerceState = "AUTHORIZING"
	CommerceActive      CommerceState = "ACTIVE"
	CommerceInProgress  CommerceState = "IN_PROGRESS"
	CommerceCompleted   CommerceState = "COMPLETED"
	CommerceCancelled   CommerceState = "CANCELLED"
	CommerceFailed      CommerceState = "FAILED"
)

// Terminal reports whether no further transitions are possible.
func (s CommerceState) Terminal() bool {
	switch s {
	case CommerceCompleted, CommerceCancelled, CommerceFailed:
		return true
	}
	return false
}

// InfraState is the OCPI session status as last observed. InfraUnknown is
// the sentinel used before first infra contact.
type InfraState string

const (
	InfraUnknown   InfraState = "UNKNOWN"
	InfraPending   InfraState = "PENDING"
	InfraActive    InfraState = "ACTIVE"
	InfraCompleted InfraState = "COMPLETED"
	InfraError     InfraState = "ERROR"
)

// ItemRef is the identifier triple behind an opaque catalog item id.
type ItemRef struct {
	LocationID  string `json:"location_id"`
	EvseUID     string `json:"evse_uid"`
	ConnectorID string `json:"connector_id"`
}

// Transaction unifies one commerce order with its underlying OCPI session.
// It is created at select time and mutated only by the session state
// machine. InfraSessionID is set at most once and never changes afterward.
// Version increments on every state mutation; stale writers must fail.
type Transaction struct {
	ID                 string        `json:"id" gorm:"primaryKey"`
	InfraSessionID     string        `json:"infra_session_id,omitempty" gorm:"index"`
	CommerceState      CommerceState `json:"commerce_state" gorm:"index"`
	InfraState         InfraState    `json:"infra_state"`
	UserID             string        `json:"user_id" gorm:"index"`
	LocationID         string        `json:"location_id"`
	EvseUID            string        `json:"evse_uid"`
	ConnectorID        string        `json:"connector_id"`
	AuthorizationToken string        `json:"authorization_token,omitempty"`
	SelectedKWh        float64       `json:"selected_kwh,omitempty"`
	LastEnergyKWh      float64       `json:"last_energy_kwh,omitempty" gorm:"column:last_energy_kwh"`
	CreatedAt          time.Time     `json:"created_at"`
	UpdatedAt          time.Time     `json:"updated_at"`
	Version            int64         `json:"version"`
}

// Item returns the selected identifier triple.
func (t *Transaction) Item() ItemRef {
	return ItemRef{
		LocationID:  t.LocationID,
		EvseUID:     t.EvseUID,
		ConnectorID: t.ConnectorID,
	}
}

// commerceSuccessors lists every legal commerce transition. Transitions not
// listed here must fail; there are no implicit transitions.
var commerceSuccessors = map[CommerceState][]CommerceState{
	CommerceCreated:     {CommerceAuthorizing, CommerceCancelled, CommerceFailed},
	CommerceAuthorizing: {CommerceActive, CommerceCancelled, CommerceFailed},
	CommerceActive:      {CommerceInProgress, CommerceCancelled, CommerceFailed},
	CommerceInProgress:  {CommerceCompleted, CommerceFailed},
	CommerceCompleted:   {},
	CommerceCancelled:   {},
	CommerceFailed:      {},
}

// CanTransition reports whether from → to is listed in the transition table.
func CanTransition(from, to CommerceState) bool {
	for _, s := range commerceSuccessors[from] {
		if s == to {
			return true
		}
	}
	return false
}
