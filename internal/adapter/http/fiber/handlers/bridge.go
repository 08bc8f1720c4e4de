package handlers

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/evinterop/beckn-ocpi-bridge/internal/domain"
	"github.com/evinterop/beckn-ocpi-bridge/internal/ports"
	"github.com/evinterop/beckn-ocpi-bridge/internal/service/bridge"
	"github.com/evinterop/beckn-ocpi-bridge/internal/service/session"
)

// BridgeHandler exposes the six commerce actions over HTTP. Each handler
// parses the request, delegates to the bridge service and maps engine
// errors onto HTTP statuses; no commerce logic lives here.
type BridgeHandler struct {
	service ports.BridgeService
	log     *zap.Logger
}

func NewBridgeHandler(service ports.BridgeService, log *zap.Logger) *BridgeHandler {
	return &BridgeHandler{
		service: service,
		log:     log,
	}
}

func (h *BridgeHandler) Search(c *fiber.Ctx) error {
	var req domain.SearchRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid request body"})
	}
	if req.Context.TransactionID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "context.transaction_id is required"})
	}

	resp, err := h.service.Search(c.Context(), req)
	if err != nil {
		return h.fail(c, "search", err)
	}
	return c.JSON(resp)
}

func (h *BridgeHandler) Select(c *fiber.Ctx) error {
	var req domain.SelectRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid request body"})
	}
	if req.ItemID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "item_id is required"})
	}
	if req.UserID == "" {
		req.UserID = subscriberID(c)
	}

	resp, err := h.service.Select(c.Context(), req)
	if err != nil {
		return h.fail(c, "select", err)
	}
	return c.JSON(resp)
}

func (h *BridgeHandler) Init(c *fiber.Ctx) error {
	var req domain.InitRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid request body"})
	}
	if req.ItemID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "item_id is required"})
	}

	resp, err := h.service.Init(c.Context(), req)
	if err != nil {
		return h.fail(c, "init", err)
	}
	return c.JSON(resp)
}

func (h *BridgeHandler) Confirm(c *fiber.Ctx) error {
	var req domain.ConfirmRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid request body"})
	}
	if req.OrderID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "order_id is required"})
	}

	resp, err := h.service.Confirm(c.Context(), req)
	if err != nil {
		return h.fail(c, "confirm", err)
	}
	return c.JSON(resp)
}

func (h *BridgeHandler) Status(c *fiber.Ctx) error {
	var req domain.StatusRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid request body"})
	}
	if req.OrderID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "order_id is required"})
	}

	resp, err := h.service.Status(c.Context(), req)
	if err != nil {
		return h.fail(c, "status", err)
	}
	return c.JSON(resp)
}

func (h *BridgeHandler) Update(c *fiber.Ctx) error {
	var req domain.UpdateRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid request body"})
	}
	if req.OrderID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "order_id is required"})
	}

	resp, err := h.service.Update(c.Context(), req)
	if err != nil {
		return h.fail(c, "update", err)
	}
	return c.JSON(resp)
}

func (h *BridgeHandler) Cancel(c *fiber.Ctx) error {
	var req domain.CancelRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid request body"})
	}
	if req.OrderID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "order_id is required"})
	}

	resp, err := h.service.Cancel(c.Context(), req)
	if err != nil {
		return h.fail(c, "cancel", err)
	}
	return c.JSON(resp)
}

func (h *BridgeHandler) fail(c *fiber.Ctx, action string, err error) error {
	status := statusFor(err)
	if status >= fiber.StatusInternalServerError {
		h.log.Error("action failed",
			zap.String("action", action),
			zap.Error(err),
		)
	} else {
		h.log.Warn("action rejected",
			zap.String("action", action),
			zap.Int("status", status),
			zap.Error(err),
		)
	}
	return c.Status(status).JSON(fiber.Map{"error": err.Error()})
}

// statusFor maps the engine error taxonomy onto HTTP statuses. Transport
// failures surface as 503 so callers know to retry the whole action.
func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrMalformedIdentifier),
		errors.Is(err, domain.ErrUnsupportedIntent):
		return fiber.StatusBadRequest
	case errors.Is(err, session.ErrNotFound),
		errors.Is(err, bridge.ErrItemNotFound):
		return fiber.StatusNotFound
	case errors.Is(err, bridge.ErrUnpriceableItem):
		return fiber.StatusUnprocessableEntity
	case errors.Is(err, domain.ErrConcurrentModification):
		return fiber.StatusConflict
	case errors.Is(err, domain.ErrInvalidTransition),
		errors.Is(err, domain.ErrStateDivergence):
		return fiber.StatusUnprocessableEntity
	case errors.Is(err, domain.ErrTransportTimeout),
		errors.Is(err, domain.ErrTransportUnavailable):
		return fiber.StatusServiceUnavailable
	default:
		return fiber.StatusInternalServerError
	}
}

// subscriberID returns the authenticated subscriber id set by the auth
// middleware, or empty when the route is unauthenticated.
func subscriberID(c *fiber.Ctx) string {
	if v, ok := c.Locals("subscriber_id").(string); ok {
		return v
	}
	return ""
}
