package ports

import (
	"context"
	"time"

	"github.com/evinterop/beckn-ocpi-bridge/internal/domain"
)

// LocationQuery narrows a location lookup. Zero-valued fields mean
// "no constraint"; RadiusKM only applies when coordinates are set.
type LocationQuery struct {
	Latitude       float64
	Longitude      float64
	RadiusKM       float64
	ConnectorTypes []string
	AvailableFrom  time.Time
	AvailableTo    time.Time
}

// OCPIClient talks to the charging network. Implementations classify
// transport failures as domain.ErrTransportTimeout or
// domain.ErrTransportUnavailable so callers can decide about retries.
type OCPIClient interface {
	QueryLocations(ctx context.Context, q LocationQuery) ([]domain.Location, error)
	QueryTariffs(ctx context.Context) ([]domain.Tariff, error)

	// InitiateSession starts a charging session on the connector identified
	// by ref, authorized by token. It returns the network's session id.
	InitiateSession(ctx context.Context, token string, ref domain.ItemRef) (string, error)
	GetSessionStatus(ctx context.Context, sessionID string) (*domain.Session, error)
	TerminateSession(ctx context.Context, sessionID string) error

	// GetChargeDetailRecord returns (nil, nil) while the network has not
	// yet issued a CDR for the session.
	GetChargeDetailRecord(ctx context.Context, sessionID string) (*domain.CDR, error)
}
