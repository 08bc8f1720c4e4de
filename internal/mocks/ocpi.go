package mocks

import (
	"context"

	"github.com/evinterop/beckn-ocpi-bridge/internal/domain"
	"github.com/evinterop/beckn-ocpi-bridge/internal/ports"
)

// MockOCPIClient is a mock implementation of ports.OCPIClient
type MockOCPIClient struct {
	QueryLocationsFunc        func(ctx context.Context, q ports.LocationQuery) ([]domain.Location, error)
	QueryTariffsFunc          func(ctx context.Context) ([]domain.Tariff, error)
	InitiateSessionFunc       func(ctx context.Context, token string, ref domain.ItemRef) (string, error)
	GetSessionStatusFunc      func(ctx context.Context, sessionID string) (*domain.Session, error)
	TerminateSessionFunc      func(ctx context.Context, sessionID string) error
	GetChargeDetailRecordFunc func(ctx context.Context, sessionID string) (*domain.CDR, error)

	InitiateCalls  int
	TerminateCalls int
}

func (m *MockOCPIClient) QueryLocations(ctx context.Context, q ports.LocationQuery) ([]domain.Location, error) {
	if m.QueryLocationsFunc != nil {
		return m.QueryLocationsFunc(ctx, q)
	}
	return nil, nil
}

func (m *MockOCPIClient) QueryTariffs(ctx context.Context) ([]domain.Tariff, error) {
	if m.QueryTariffsFunc != nil {
		return m.QueryTariffsFunc(ctx)
	}
	return nil, nil
}

func (m *MockOCPIClient) InitiateSession(ctx context.Context, token string, ref domain.ItemRef) (string, error) {
	m.InitiateCalls++
	if m.InitiateSessionFunc != nil {
		return m.InitiateSessionFunc(ctx, token, ref)
	}
	return "", nil
}

func (m *MockOCPIClient) GetSessionStatus(ctx context.Context, sessionID string) (*domain.Session, error) {
	if m.GetSessionStatusFunc != nil {
		return m.GetSessionStatusFunc(ctx, sessionID)
	}
	return nil, nil
}

func (m *MockOCPIClient) TerminateSession(ctx context.Context, sessionID string) error {
	m.TerminateCalls++
	if m.TerminateSessionFunc != nil {
		return m.TerminateSessionFunc(ctx, sessionID)
	}
	return nil
}

func (m *MockOCPIClient) GetChargeDetailRecord(ctx context.Context, sessionID string) (*domain.CDR, error) {
	if m.GetChargeDetailRecordFunc != nil {
		return m.GetChargeDetailRecordFunc(ctx, sessionID)
	}
	return nil, nil
}
