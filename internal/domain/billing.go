package domain

import "time"

// BillingRecord is the commerce settlement record derived from an OCPI CDR
// once a Transaction is COMPLETED. It is immutable after creation and a
// Transaction yields at most one of them.
//
// TotalAmount is always recomputed as BaseAmount + TaxAmount; it is never
// trusted verbatim from the CDR. Mismatch flags a drift between the
// recomputed total and the CDR-reported one beyond tolerance.
type BillingRecord struct {
	ID                 string    `json:"id" gorm:"primaryKey"`
	TransactionID      string    `json:"transaction_id" gorm:"uniqueIndex"`
	CDRID              string    `json:"cdr_id"`
	Currency           string    `json:"currency"`
	EnergyKWh          float64   `json:"energy_kwh"`
	DurationHours      float64   `json:"duration_hours"`
	BaseAmount         float64   `json:"base_amount"`
	TaxAmount          float64   `json:"tax_amount"`
	TotalAmount        float64   `json:"total_amount"`
	Mismatch           bool      `json:"mismatch,omitempty"`
	ReportedTotal      float64   `json:"reported_total,omitempty"`
	InvoiceReferenceID string    `json:"invoice_reference_id,omitempty"`
	CreatedAt          time.Time `json:"created_at"`
}
