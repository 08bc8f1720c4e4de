package bridge

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/evinterop/beckn-ocpi-bridge/internal/domain"
	"github.com/evinterop/beckn-ocpi-bridge/internal/itemid"
	"github.com/evinterop/beckn-ocpi-bridge/internal/observability/telemetry"
	"github.com/evinterop/beckn-ocpi-bridge/internal/ports"
	"github.com/evinterop/beckn-ocpi-bridge/internal/service/billing"
	"github.com/evinterop/beckn-ocpi-bridge/internal/service/catalog"
	"github.com/evinterop/beckn-ocpi-bridge/internal/service/session"
)

// ErrItemNotFound is returned when a well-formed item id points at a
// connector the charging network does not currently expose.
var ErrItemNotFound = errors.New("item not found")

// ErrUnpriceableItem is returned by Init when the item's connector carries
// no tariff the network can resolve; an order without a firm price must not
// proceed to confirmation.
var ErrUnpriceableItem = errors.New("no applicable tariff for item")

// Coordinator sequences every commerce operation across the transformers,
// the state machine and the charging network. Reads against the network go
// through the retry policy; session initiation never does, because a lost
// response could mean a session already started.
type Coordinator struct {
	catalog *catalog.Transformer
	machine *session.Machine
	billing *billing.Service
	ocpi    ports.OCPIClient
	retry   BackoffPolicy
	clock   Clock
	bppID   string
	bppURI  string
	log     *zap.Logger
}

func NewCoordinator(
	cat *catalog.Transformer,
	machine *session.Machine,
	bill *billing.Service,
	ocpi ports.OCPIClient,
	retry BackoffPolicy,
	clock Clock,
	bppID, bppURI string,
	log *zap.Logger,
) *Coordinator {
	if clock == nil {
		clock = RealClock()
	}
	return &Coordinator{
		catalog: cat,
		machine: machine,
		billing: bill,
		ocpi:    ocpi,
		retry:   retry,
		clock:   clock,
		bppID:   bppID,
		bppURI:  bppURI,
		log:     log,
	}
}

// Search turns a discovery intent into a connector catalog.
func (c *Coordinator) Search(ctx context.Context, req domain.SearchRequest) (*domain.OnSearch, error) {
	query, err := c.catalog.ToLocationQuery(req.Intent)
	if err != nil {
		return nil, c.fail("search", err)
	}

	var locations []domain.Location
	if err := c.retry.Do(ctx, c.clock, func() error {
		var qerr error
		locations, qerr = c.ocpi.QueryLocations(ctx, query)
		return qerr
	}); err != nil {
		return nil, c.fail("search", err)
	}

	tariffs, err := c.fetchTariffs(ctx)
	if err != nil {
		return nil, c.fail("search", err)
	}

	cat, err := c.catalog.ToCatalog(locations, tariffs, req.Intent)
	if err != nil {
		return nil, c.fail("search", err)
	}

	telemetry.BridgeOperationsTotal.WithLabelValues("search", "ok").Inc()
	return &domain.OnSearch{
		Context: c.respond(req.Context, "on_search"),
		Catalog: cat,
	}, nil
}

// Select resolves the chosen item, creates the order and quotes it. A repeat
// select for the same connector returns the existing order.
func (c *Coordinator) Select(ctx context.Context, req domain.SelectRequest) (*domain.OnSelect, error) {
	ref, err := itemid.Decode(req.ItemID)
	if err != nil {
		return nil, c.fail("select", err)
	}

	conn, err := c.findConnector(ctx, ref)
	if err != nil {
		return nil, c.fail("select", err)
	}

	tx, err := c.machine.CreateForSelect(ctx, req.UserID, ref, req.AuthorizationToken, req.SelectedKWh)
	if err != nil {
		return nil, c.fail("select", err)
	}

	quote, err := c.quoteFor(ctx, conn, req.SelectedKWh)
	if err != nil {
		c.log.Warn("could not price selection", zap.String("order_id", tx.ID), zap.Error(err))
	}

	order := c.orderView(tx, nil)
	order.ItemID = req.ItemID
	order.Quote = quote

	telemetry.BridgeOperationsTotal.WithLabelValues("select", "ok").Inc()
	return &domain.OnSelect{
		Context: c.respond(req.Context, "on_select"),
		Order:   order,
	}, nil
}

// Init validates the selected item against the network's current tariff
// data and returns a firm order-level quote. Unlike Select, pricing here is
// mandatory: an item whose tariff cannot be resolved is rejected rather
// than quoted as zero. Nothing is persisted.
func (c *Coordinator) Init(ctx context.Context, req domain.InitRequest) (*domain.OnInit, error) {
	ref, err := itemid.Decode(req.ItemID)
	if err != nil {
		return nil, c.fail("init", err)
	}

	conn, err := c.findConnector(ctx, ref)
	if err != nil {
		return nil, c.fail("init", err)
	}

	quote, err := c.quoteFor(ctx, conn, req.SelectedKWh)
	if err != nil {
		return nil, c.fail("init", err)
	}
	if quote == nil {
		return nil, c.fail("init", fmt.Errorf("%w: item %s", ErrUnpriceableItem, req.ItemID))
	}

	telemetry.BridgeOperationsTotal.WithLabelValues("init", "ok").Inc()
	return &domain.OnInit{
		Context: c.respond(req.Context, "on_init"),
		Order: domain.Order{
			ItemID:      req.ItemID,
			Quote:       quote,
			LastUpdated: c.clock.Now().UTC(),
		},
	}, nil
}

// Confirm starts the charging session behind the order. The call is not
// retried here: a timed-out initiation may have started a session whose id
// was lost, so the decision to re-confirm stays with the commerce side,
// where idempotency makes it safe.
func (c *Coordinator) Confirm(ctx context.Context, req domain.ConfirmRequest) (*domain.OnConfirm, error) {
	tx, err := c.machine.Confirm(ctx, req.OrderID)
	if err != nil {
		return nil, c.fail("confirm", err)
	}

	telemetry.BridgeOperationsTotal.WithLabelValues("confirm", "ok").Inc()
	return &domain.OnConfirm{
		Context: c.respond(req.Context, "on_confirm"),
		Order:   c.orderView(tx, nil),
	}, nil
}

// Status reports the current order state after folding in a fresh
// observation of the underlying session. Completion discovered here also
// settles billing.
func (c *Coordinator) Status(ctx context.Context, req domain.StatusRequest) (*domain.OnStatus, error) {
	tx, err := c.machine.Get(ctx, req.OrderID)
	if err != nil {
		return nil, c.fail("status", err)
	}

	tx, err = c.refresh(ctx, tx)
	if err != nil {
		return nil, c.fail("status", err)
	}

	rec, err := c.settleBilling(ctx, tx)
	if err != nil {
		c.log.Warn("billing settlement pending", zap.String("order_id", tx.ID), zap.Error(err))
	}

	telemetry.BridgeOperationsTotal.WithLabelValues("status", "ok").Inc()
	return &domain.OnStatus{
		Context: c.respond(req.Context, "on_status"),
		Order:   c.orderView(tx, rec),
	}, nil
}

// Update handles in-flight order changes. The only supported change is a
// stop, which terminates the session, reconciles the outcome and settles
// billing once the network issues its charge record.
func (c *Coordinator) Update(ctx context.Context, req domain.UpdateRequest) (*domain.OnUpdate, error) {
	if !req.Stop {
		return nil, c.fail("update", fmt.Errorf("%w: only stop updates are supported", domain.ErrUnsupportedIntent))
	}

	tx, err := c.machine.Get(ctx, req.OrderID)
	if err != nil {
		return nil, c.fail("update", err)
	}
	if tx.InfraSessionID == "" ||
		(tx.CommerceState != domain.CommerceActive && tx.CommerceState != domain.CommerceInProgress) {
		return nil, c.fail("update", fmt.Errorf("%w: stop from %s", domain.ErrInvalidTransition, tx.CommerceState))
	}

	// Termination is idempotent on the network side, so transient failures
	// are safe to retry.
	if err := c.retry.Do(ctx, c.clock, func() error {
		return c.ocpi.TerminateSession(ctx, tx.InfraSessionID)
	}); err != nil {
		return nil, c.fail("update", err)
	}

	tx, err = c.refresh(ctx, tx)
	if err != nil {
		return nil, c.fail("update", err)
	}

	rec, err := c.settleBilling(ctx, tx)
	if err != nil {
		c.log.Warn("billing settlement pending", zap.String("order_id", tx.ID), zap.Error(err))
	}

	telemetry.BridgeOperationsTotal.WithLabelValues("update", "ok").Inc()
	return &domain.OnUpdate{
		Context: c.respond(req.Context, "on_update"),
		Order:   c.orderView(tx, rec),
	}, nil
}

// Cancel aborts the order, terminating any running session first. Energy
// drawn before the cancellation is still billed when the network issues a
// charge record.
func (c *Coordinator) Cancel(ctx context.Context, req domain.CancelRequest) (*domain.OnCancel, error) {
	tx, err := c.machine.Cancel(ctx, req.OrderID, req.Reason)
	if err != nil {
		return nil, c.fail("cancel", err)
	}

	rec, err := c.settleBilling(ctx, tx)
	if err != nil {
		c.log.Warn("billing settlement pending", zap.String("order_id", tx.ID), zap.Error(err))
	}

	telemetry.BridgeOperationsTotal.WithLabelValues("cancel", "ok").Inc()
	return &domain.OnCancel{
		Context: c.respond(req.Context, "on_cancel"),
		Order:   c.orderView(tx, rec),
	}, nil
}

// refresh folds the latest infra observation into the transaction. A
// divergence verdict is reflected in the returned state rather than raised;
// the caller still answers with the order's (now FAILED) view.
func (c *Coordinator) refresh(ctx context.Context, tx *domain.Transaction) (*domain.Transaction, error) {
	if tx.CommerceState.Terminal() || tx.InfraSessionID == "" {
		return tx, nil
	}

	var observed *domain.Session
	if err := c.retry.Do(ctx, c.clock, func() error {
		var serr error
		observed, serr = c.ocpi.GetSessionStatus(ctx, tx.InfraSessionID)
		return serr
	}); err != nil {
		return nil, err
	}

	updated, err := c.machine.Reconcile(ctx, tx, observed)
	if err != nil {
		if errors.Is(err, domain.ErrStateDivergence) {
			return updated, nil
		}
		return nil, err
	}
	return updated, nil
}

// settleBilling fetches the charge record and persists billing for orders
// that finished charging. It returns (nil, nil) while no record is due or
// the network has not issued one yet.
func (c *Coordinator) settleBilling(ctx context.Context, tx *domain.Transaction) (*domain.BillingRecord, error) {
	if tx.InfraSessionID == "" {
		return nil, nil
	}

	switch tx.CommerceState {
	case domain.CommerceCompleted, domain.CommerceCancelled:
	default:
		return nil, nil
	}

	if existing, err := c.billing.Find(ctx, tx.ID); err != nil {
		return nil, err
	} else if existing != nil {
		return existing, nil
	}

	var cdr *domain.CDR
	if err := c.retry.Do(ctx, c.clock, func() error {
		var cerr error
		cdr, cerr = c.ocpi.GetChargeDetailRecord(ctx, tx.InfraSessionID)
		return cerr
	}); err != nil {
		return nil, err
	}
	if cdr == nil {
		return nil, nil
	}

	return c.billing.Record(ctx, tx, cdr)
}

// findConnector confirms the decoded triple exists on the network and
// returns the connector for quoting.
func (c *Coordinator) findConnector(ctx context.Context, ref domain.ItemRef) (*domain.Connector, error) {
	var locations []domain.Location
	if err := c.retry.Do(ctx, c.clock, func() error {
		var qerr error
		locations, qerr = c.ocpi.QueryLocations(ctx, ports.LocationQuery{})
		return qerr
	}); err != nil {
		return nil, err
	}

	for _, loc := range locations {
		if loc.ID != ref.LocationID {
			continue
		}
		for _, evse := range loc.Evses {
			if evse.UID != ref.EvseUID {
				continue
			}
			for i := range evse.Connectors {
				if evse.Connectors[i].ID == ref.ConnectorID {
					conn := evse.Connectors[i]
					return &conn, nil
				}
			}
		}
	}
	return nil, fmt.Errorf("%w: %s/%s/%s", ErrItemNotFound, ref.LocationID, ref.EvseUID, ref.ConnectorID)
}

// quoteFor prices the selection against the connector's tariff. The energy
// line scales with the requested kWh; flat components are charged once.
func (c *Coordinator) quoteFor(ctx context.Context, conn *domain.Connector, selectedKWh float64) (*domain.Quote, error) {
	if conn == nil || len(conn.TariffIDs) == 0 {
		return nil, nil
	}

	tariffs, err := c.fetchTariffs(ctx)
	if err != nil {
		return nil, err
	}

	byID := make(map[string]domain.Tariff, len(tariffs))
	for _, tf := range tariffs {
		byID[tf.ID] = tf
	}
	tf, ok := byID[conn.TariffIDs[0]]
	if !ok {
		return nil, nil
	}

	quote := &domain.Quote{Currency: tf.Currency}
	var tax float64
	for _, el := range tf.Elements {
		for _, pc := range el.PriceComponents {
			var amount float64
			var title string
			switch pc.Type {
			case domain.DimensionEnergy:
				amount = pc.Price * selectedKWh
				title = "energy"
			case domain.DimensionFlat:
				amount = pc.Price
				title = "session fee"
			default:
				continue
			}
			if amount == 0 {
				continue
			}
			quote.Breakup = append(quote.Breakup, domain.QuoteLine{
				Title:    title,
				Amount:   amount,
				Currency: tf.Currency,
			})
			quote.Value += amount
			if pc.VAT > 0 {
				tax += amount * pc.VAT / 100
			}
		}
	}
	if tax > 0 {
		quote.Breakup = append(quote.Breakup, domain.QuoteLine{
			Title:    "tax",
			Amount:   tax,
			Currency: tf.Currency,
		})
		quote.Value += tax
	}
	return quote, nil
}

func (c *Coordinator) fetchTariffs(ctx context.Context) ([]domain.Tariff, error) {
	var tariffs []domain.Tariff
	err := c.retry.Do(ctx, c.clock, func() error {
		var terr error
		tariffs, terr = c.ocpi.QueryTariffs(ctx)
		return terr
	})
	return tariffs, err
}

// respond echoes the inbound envelope as a callback context.
func (c *Coordinator) respond(in domain.Context, action string) domain.Context {
	out := in
	out.Action = action
	out.BppID = c.bppID
	out.BppURI = c.bppURI
	out.MessageID = uuid.New().String()
	out.Timestamp = c.clock.Now().UTC()
	return out
}

func (c *Coordinator) orderView(tx *domain.Transaction, rec *domain.BillingRecord) domain.Order {
	order := domain.Order{
		ID:             tx.ID,
		State:          tx.CommerceState,
		InfraSessionID: tx.InfraSessionID,
		EnergyKWh:      tx.LastEnergyKWh,
		Billing:        rec,
		LastUpdated:    tx.UpdatedAt,
	}
	if id, err := itemid.EncodeRef(tx.Item()); err == nil {
		order.ItemID = id
	}
	return order
}

func (c *Coordinator) fail(action string, err error) error {
	telemetry.BridgeOperationsTotal.WithLabelValues(action, "error").Inc()
	return err
}
