package mocks

import (
	"context"

	"github.com/evinterop/beckn-ocpi-bridge/internal/domain"
)

// MockBridgeService is a mock implementation of ports.BridgeService
type MockBridgeService struct {
	SearchFunc  func(ctx context.Context, req domain.SearchRequest) (*domain.OnSearch, error)
	SelectFunc  func(ctx context.Context, req domain.SelectRequest) (*domain.OnSelect, error)
	InitFunc    func(ctx context.Context, req domain.InitRequest) (*domain.OnInit, error)
	ConfirmFunc func(ctx context.Context, req domain.ConfirmRequest) (*domain.OnConfirm, error)
	StatusFunc  func(ctx context.Context, req domain.StatusRequest) (*domain.OnStatus, error)
	UpdateFunc  func(ctx context.Context, req domain.UpdateRequest) (*domain.OnUpdate, error)
	CancelFunc  func(ctx context.Context, req domain.CancelRequest) (*domain.OnCancel, error)
}

func (m *MockBridgeService) Search(ctx context.Context, req domain.SearchRequest) (*domain.OnSearch, error) {
	if m.SearchFunc != nil {
		return m.SearchFunc(ctx, req)
	}
	return &domain.OnSearch{}, nil
}

func (m *MockBridgeService) Select(ctx context.Context, req domain.SelectRequest) (*domain.OnSelect, error) {
	if m.SelectFunc != nil {
		return m.SelectFunc(ctx, req)
	}
	return &domain.OnSelect{}, nil
}

func (m *MockBridgeService) Init(ctx context.Context, req domain.InitRequest) (*domain.OnInit, error) {
	if m.InitFunc != nil {
		return m.InitFunc(ctx, req)
	}
	return &domain.OnInit{}, nil
}

func (m *MockBridgeService) Confirm(ctx context.Context, req domain.ConfirmRequest) (*domain.OnConfirm, error) {
	if m.ConfirmFunc != nil {
		return m.ConfirmFunc(ctx, req)
	}
	return &domain.OnConfirm{}, nil
}

func (m *MockBridgeService) Status(ctx context.Context, req domain.StatusRequest) (*domain.OnStatus, error) {
	if m.StatusFunc != nil {
		return m.StatusFunc(ctx, req)
	}
	return &domain.OnStatus{}, nil
}

func (m *MockBridgeService) Update(ctx context.Context, req domain.UpdateRequest) (*domain.OnUpdate, error) {
	if m.UpdateFunc != nil {
		return m.UpdateFunc(ctx, req)
	}
	return &domain.OnUpdate{}, nil
}

func (m *MockBridgeService) Cancel(ctx context.Context, req domain.CancelRequest) (*domain.OnCancel, error) {
	if m.CancelFunc != nil {
		return m.CancelFunc(ctx, req)
	}
	return &domain.OnCancel{}, nil
}

// MockTokenVerifier is a mock implementation of ports.TokenVerifier
type MockTokenVerifier struct {
	ValidateFunc func(ctx context.Context, token string) (string, error)
}

func (m *MockTokenVerifier) Validate(ctx context.Context, token string) (string, error) {
	if m.ValidateFunc != nil {
		return m.ValidateFunc(ctx, token)
	}
	return "subscriber", nil
}
