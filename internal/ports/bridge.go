package ports

import (
	"context"

	"github.com/evinterop/beckn-ocpi-bridge/internal/domain"
)

// BridgeService is the commerce-facing surface of the engine: one method
// per inbound action, each returning the matching callback payload. The
// transport layer does parsing and status mapping only; all semantics
// live behind this interface.
type BridgeService interface {
	Search(ctx context.Context, req domain.SearchRequest) (*domain.OnSearch, error)
	Select(ctx context.Context, req domain.SelectRequest) (*domain.OnSelect, error)
	Init(ctx context.Context, req domain.InitRequest) (*domain.OnInit, error)
	Confirm(ctx context.Context, req domain.ConfirmRequest) (*domain.OnConfirm, error)
	Status(ctx context.Context, req domain.StatusRequest) (*domain.OnStatus, error)
	Update(ctx context.Context, req domain.UpdateRequest) (*domain.OnUpdate, error)
	Cancel(ctx context.Context, req domain.CancelRequest) (*domain.OnCancel, error)
}

// TokenVerifier validates a bearer token presented by a network subscriber
// and returns the subscriber id it was issued to.
type TokenVerifier interface {
	Validate(ctx context.Context, token string) (string, error)
}
