package bridge

import (
	"context"
	"errors"
	"fmt"
	"math"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/evinterop/beckn-ocpi-bridge/internal/adapter/storage/memory"
	"github.com/evinterop/beckn-ocpi-bridge/internal/domain"
	"github.com/evinterop/beckn-ocpi-bridge/internal/itemid"
	"github.com/evinterop/beckn-ocpi-bridge/internal/mocks"
	"github.com/evinterop/beckn-ocpi-bridge/internal/ports"
	"github.com/evinterop/beckn-ocpi-bridge/internal/service/billing"
	"github.com/evinterop/beckn-ocpi-bridge/internal/service/catalog"
	"github.com/evinterop/beckn-ocpi-bridge/internal/service/session"
)

func newTestLogger() *zap.Logger {
	logger, _ := zap.NewDevelopment()
	return logger
}

type fixture struct {
	coordinator *Coordinator
	ocpi        *mocks.MockOCPIClient
	txStore     *memory.TransactionStore
	billStore   *memory.BillingStore
	clock       *fakeClock
}

func newFixture(ocpi *mocks.MockOCPIClient) *fixture {
	log := newTestLogger()
	txStore := memory.NewTransactionStore()
	billStore := memory.NewBillingStore()
	mq := mocks.NewMockMessageQueue()
	clock := newFakeClock()

	cat := catalog.NewTransformer("bpp.example.com", "Example Energy Network", log)
	machine := session.NewMachine(txStore, ocpi, mq, log)
	bill := billing.NewService(billStore, mq, 0, log)

	coord := NewCoordinator(cat, machine, bill, ocpi,
		BackoffPolicy{MaxAttempts: 3, BaseDelay: 10 * time.Millisecond},
		clock, "bpp.example.com", "https://bpp.example.com", log)

	return &fixture{
		coordinator: coord,
		ocpi:        ocpi,
		txStore:     txStore,
		billStore:   billStore,
		clock:       clock,
	}
}

func networkLocations() []domain.Location {
	now := time.Now()
	return []domain.Location{
		{
			ID:          "LOC-BLR-001",
			Publish:     true,
			Name:        "Indiranagar Hub",
			Address:     "100 Feet Road",
			City:        "Bengaluru",
			Country:     "IND",
			Coordinates: domain.GeoCoordinates{Latitude: "12.9716", Longitude: "77.5946"},
			Evses: []domain.EVSE{
				{
					UID:    "EVSE-1",
					Status: domain.EVSEStatusAvailable,
					Connectors: []domain.Connector{
						{
							ID:               "1",
							Standard:         "IEC_62196_T2_COMBO",
							PowerType:        "DC",
							MaxElectricPower: 60000,
							TariffIDs:        []string{"TARIFF-DC"},
							LastUpdated:      now,
						},
					},
					LastUpdated: now,
				},
			},
			LastUpdated: now,
		},
	}
}

func networkTariffs() []domain.Tariff {
	return []domain.Tariff{
		{
			ID:       "TARIFF-DC",
			Currency: "INR",
			Elements: []domain.TariffElement{
				{PriceComponents: []domain.PriceComponent{
					{Type: domain.DimensionEnergy, Price: 18.00, VAT: 18, StepSize: 1},
					{Type: domain.DimensionFlat, Price: 25.00, StepSize: 1},
				}},
			},
		},
	}
}

func searchContext(action string) domain.Context {
	return domain.Context{
		Domain:        "mobility:ev-charging",
		Action:        action,
		BapID:         "bap.example.org",
		TransactionID: "beckn-txn-1",
		MessageID:     "msg-1",
		Timestamp:     time.Now(),
	}
}

func onlineOCPI() *mocks.MockOCPIClient {
	return &mocks.MockOCPIClient{
		QueryLocationsFunc: func(ctx context.Context, q ports.LocationQuery) ([]domain.Location, error) {
			return networkLocations(), nil
		},
		QueryTariffsFunc: func(ctx context.Context) ([]domain.Tariff, error) {
			return networkTariffs(), nil
		},
		InitiateSessionFunc: func(ctx context.Context, token string, ref domain.ItemRef) (string, error) {
			return "ocpi-session-42", nil
		},
	}
}

func TestSearch_ReturnsPricedCatalog(t *testing.T) {
	// Arrange
	f := newFixture(onlineOCPI())
	req := domain.SearchRequest{
		Context: searchContext("search"),
		Intent: domain.Intent{
			GPS:        "12.9716,77.5946",
			RadiusKM:   10,
			CategoryID: "CCS2",
		},
	}

	// Act
	resp, err := f.coordinator.Search(context.Background(), req)

	// Assert
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if resp.Context.Action != "on_search" {
		t.Errorf("expected on_search action, got %s", resp.Context.Action)
	}
	if resp.Context.TransactionID != "beckn-txn-1" {
		t.Error("expected the inbound transaction id echoed")
	}
	if resp.Context.MessageID == "msg-1" {
		t.Error("expected a fresh message id")
	}
	if resp.Context.BppID != "bpp.example.com" {
		t.Errorf("expected bpp identity stamped, got %s", resp.Context.BppID)
	}
	if len(resp.Catalog.Items) != 1 {
		t.Fatalf("expected 1 item, got %d", len(resp.Catalog.Items))
	}
	item := resp.Catalog.Items[0]
	if !item.Available {
		t.Error("expected the connector available")
	}
	if item.Price.Base != 43.00 {
		t.Errorf("expected base price 43.00, got %f", item.Price.Base)
	}
	if _, err := itemid.Decode(item.ID); err != nil {
		t.Errorf("catalog item id does not decode: %v", err)
	}
}

func TestSearch_UnsupportedIntentRejected(t *testing.T) {
	f := newFixture(onlineOCPI())

	_, err := f.coordinator.Search(context.Background(), domain.SearchRequest{
		Context: searchContext("search"),
		Intent:  domain.Intent{GPS: "12.9716,77.5946", CategoryID: "TESLA_COIL"},
	})

	if !errors.Is(err, domain.ErrUnsupportedIntent) {
		t.Fatalf("expected ErrUnsupportedIntent, got %v", err)
	}
}

func TestSearch_MissingCenterNeverReachesNetwork(t *testing.T) {
	// Arrange
	ocpi := onlineOCPI()
	queried := false
	inner := ocpi.QueryLocationsFunc
	ocpi.QueryLocationsFunc = func(ctx context.Context, q ports.LocationQuery) ([]domain.Location, error) {
		queried = true
		if inner != nil {
			return inner(ctx, q)
		}
		return nil, nil
	}
	f := newFixture(ocpi)

	// Act
	_, err := f.coordinator.Search(context.Background(), domain.SearchRequest{
		Context: searchContext("search"),
		Intent:  domain.Intent{CategoryID: "CCS2"},
	})

	// Assert
	if !errors.Is(err, domain.ErrUnsupportedIntent) {
		t.Fatalf("expected ErrUnsupportedIntent, got %v", err)
	}
	if queried {
		t.Error("an intent without a center must not query the network")
	}
}

func TestSearch_RetriesTransientNetworkFailure(t *testing.T) {
	// Arrange
	failures := 2
	ocpi := onlineOCPI()
	ocpi.QueryLocationsFunc = func(ctx context.Context, q ports.LocationQuery) ([]domain.Location, error) {
		if failures > 0 {
			failures--
			return nil, fmt.Errorf("%w: gateway", domain.ErrTransportUnavailable)
		}
		return networkLocations(), nil
	}
	f := newFixture(ocpi)

	// Act
	resp, err := f.coordinator.Search(context.Background(), domain.SearchRequest{
		Context: searchContext("search"),
		Intent:  domain.Intent{GPS: "12.9716,77.5946", RadiusKM: 10},
	})

	// Assert
	if err != nil {
		t.Fatalf("expected retry to recover, got %v", err)
	}
	if len(resp.Catalog.Items) != 1 {
		t.Errorf("expected 1 item, got %d", len(resp.Catalog.Items))
	}
}

func selectItem(t *testing.T, f *fixture) (*domain.OnSelect, string) {
	t.Helper()
	id, err := itemid.Encode("LOC-BLR-001", "EVSE-1", "1")
	if err != nil {
		t.Fatalf("encoding item id: %v", err)
	}
	resp, err := f.coordinator.Select(context.Background(), domain.SelectRequest{
		Context:            searchContext("select"),
		UserID:             "user-1",
		ItemID:             id,
		AuthorizationToken: "token-abc",
		SelectedKWh:        20,
	})
	if err != nil {
		t.Fatalf("select: %v", err)
	}
	return resp, id
}

func TestSelect_CreatesOrderWithQuote(t *testing.T) {
	// Arrange
	f := newFixture(onlineOCPI())

	// Act
	resp, itemID := selectItem(t, f)

	// Assert
	if resp.Order.State != domain.CommerceCreated {
		t.Errorf("expected CREATED, got %s", resp.Order.State)
	}
	if resp.Order.ItemID != itemID {
		t.Error("expected the selected item id echoed")
	}
	if resp.Order.Quote == nil {
		t.Fatal("expected a quote")
	}
	// 20 kWh at 18.00 plus a 25.00 session fee, energy taxed at 18%.
	expected := 20*18.0 + 25.0 + 20*18.0*0.18
	if math.Abs(resp.Order.Quote.Value-expected) > 1e-9 {
		t.Errorf("expected quote %f, got %f", expected, resp.Order.Quote.Value)
	}
}

func TestInit_ReturnsFirmQuote(t *testing.T) {
	// Arrange
	f := newFixture(onlineOCPI())
	id, err := itemid.Encode("LOC-BLR-001", "EVSE-1", "1")
	if err != nil {
		t.Fatalf("encoding item id: %v", err)
	}

	// Act
	resp, err := f.coordinator.Init(context.Background(), domain.InitRequest{
		Context:     searchContext("init"),
		ItemID:      id,
		SelectedKWh: 20,
	})

	// Assert
	if err != nil {
		t.Fatalf("init: %v", err)
	}
	if resp.Context.Action != "on_init" {
		t.Errorf("expected on_init action, got %s", resp.Context.Action)
	}
	if resp.Order.Quote == nil {
		t.Fatal("expected a quote")
	}
	// 20 kWh at 18.00 plus a 25.00 session fee, energy taxed at 18%.
	expected := 20*18.0 + 25.0 + 20*18.0*0.18
	if math.Abs(resp.Order.Quote.Value-expected) > 1e-9 {
		t.Errorf("expected quote %f, got %f", expected, resp.Order.Quote.Value)
	}
	if resp.Order.ID != "" {
		t.Error("init must not create an order")
	}
	if f.ocpi.InitiateCalls != 0 {
		t.Error("init must not start a session")
	}
}

func TestInit_UnpriceableItemRejected(t *testing.T) {
	// Arrange: the connector exists but carries no tariff reference.
	locations := networkLocations()
	locations[0].Evses[0].Connectors[0].TariffIDs = nil
	ocpi := onlineOCPI()
	ocpi.QueryLocationsFunc = func(ctx context.Context, q ports.LocationQuery) ([]domain.Location, error) {
		return locations, nil
	}
	f := newFixture(ocpi)
	id, _ := itemid.Encode("LOC-BLR-001", "EVSE-1", "1")

	// Act
	_, err := f.coordinator.Init(context.Background(), domain.InitRequest{
		Context: searchContext("init"),
		ItemID:  id,
	})

	// Assert
	if !errors.Is(err, ErrUnpriceableItem) {
		t.Fatalf("expected ErrUnpriceableItem, got %v", err)
	}
}

func TestInit_MalformedItemIDRejected(t *testing.T) {
	f := newFixture(onlineOCPI())

	_, err := f.coordinator.Init(context.Background(), domain.InitRequest{
		Context: searchContext("init"),
		ItemID:  "LOC-BLR-001/EVSE-1/1",
	})

	if !errors.Is(err, domain.ErrMalformedIdentifier) {
		t.Fatalf("expected ErrMalformedIdentifier, got %v", err)
	}
}

func TestSelect_MalformedItemIDRejected(t *testing.T) {
	f := newFixture(onlineOCPI())

	_, err := f.coordinator.Select(context.Background(), domain.SelectRequest{
		Context: searchContext("select"),
		UserID:  "user-1",
		ItemID:  "LOC-BLR-001/EVSE-1/1",
	})

	if !errors.Is(err, domain.ErrMalformedIdentifier) {
		t.Fatalf("expected ErrMalformedIdentifier, got %v", err)
	}
}

func TestSelect_UnknownConnectorRejected(t *testing.T) {
	f := newFixture(onlineOCPI())
	id, _ := itemid.Encode("LOC-BLR-001", "EVSE-1", "99")

	_, err := f.coordinator.Select(context.Background(), domain.SelectRequest{
		Context: searchContext("select"),
		UserID:  "user-1",
		ItemID:  id,
	})

	if !errors.Is(err, ErrItemNotFound) {
		t.Fatalf("expected ErrItemNotFound, got %v", err)
	}
}

func TestConfirm_ActivatesOrder(t *testing.T) {
	// Arrange
	f := newFixture(onlineOCPI())
	sel, _ := selectItem(t, f)

	// Act
	resp, err := f.coordinator.Confirm(context.Background(), domain.ConfirmRequest{
		Context: searchContext("confirm"),
		OrderID: sel.Order.ID,
	})

	// Assert
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if resp.Order.State != domain.CommerceActive {
		t.Errorf("expected ACTIVE, got %s", resp.Order.State)
	}
	if resp.Order.InfraSessionID != "ocpi-session-42" {
		t.Errorf("expected session bound, got %q", resp.Order.InfraSessionID)
	}
	if f.ocpi.InitiateCalls != 1 {
		t.Errorf("expected one initiation, got %d", f.ocpi.InitiateCalls)
	}
}

func TestStatus_ReconcilesAndReportsProgress(t *testing.T) {
	// Arrange
	f := newFixture(onlineOCPI())
	f.ocpi.GetSessionStatusFunc = func(ctx context.Context, sessionID string) (*domain.Session, error) {
		return &domain.Session{ID: sessionID, Status: domain.InfraActive, KWh: 7.5}, nil
	}
	sel, _ := selectItem(t, f)
	if _, err := f.coordinator.Confirm(context.Background(), domain.ConfirmRequest{
		Context: searchContext("confirm"), OrderID: sel.Order.ID,
	}); err != nil {
		t.Fatalf("confirm: %v", err)
	}

	// Act
	resp, err := f.coordinator.Status(context.Background(), domain.StatusRequest{
		Context: searchContext("status"),
		OrderID: sel.Order.ID,
	})

	// Assert
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if resp.Order.State != domain.CommerceInProgress {
		t.Errorf("expected IN_PROGRESS, got %s", resp.Order.State)
	}
	if resp.Order.EnergyKWh != 7.5 {
		t.Errorf("expected 7.5 kWh, got %f", resp.Order.EnergyKWh)
	}
	if resp.Order.Billing != nil {
		t.Error("expected no billing while charging")
	}
}

func TestStatus_CompletionSettlesBilling(t *testing.T) {
	// Arrange
	f := newFixture(onlineOCPI())
	f.ocpi.GetSessionStatusFunc = func(ctx context.Context, sessionID string) (*domain.Session, error) {
		return &domain.Session{ID: sessionID, Status: domain.InfraCompleted, KWh: 18.5}, nil
	}
	f.ocpi.GetChargeDetailRecordFunc = func(ctx context.Context, sessionID string) (*domain.CDR, error) {
		return &domain.CDR{
			ID:              "CDR-001",
			SessionID:       sessionID,
			Currency:        "INR",
			TotalEnergy:     18.5,
			TotalEnergyCost: &domain.Price{ExclVAT: 333.00, InclVAT: 392.94},
			TotalCost:       &domain.Price{ExclVAT: 333.00, InclVAT: 392.94},
		}, nil
	}
	sel, _ := selectItem(t, f)
	if _, err := f.coordinator.Confirm(context.Background(), domain.ConfirmRequest{
		Context: searchContext("confirm"), OrderID: sel.Order.ID,
	}); err != nil {
		t.Fatalf("confirm: %v", err)
	}

	// Act: first status completes the order, second must reuse the record.
	first, err := f.coordinator.Status(context.Background(), domain.StatusRequest{
		Context: searchContext("status"), OrderID: sel.Order.ID,
	})
	if err != nil {
		t.Fatalf("first status: %v", err)
	}
	second, err := f.coordinator.Status(context.Background(), domain.StatusRequest{
		Context: searchContext("status"), OrderID: sel.Order.ID,
	})

	// Assert
	if err != nil {
		t.Fatalf("second status: %v", err)
	}
	if first.Order.State != domain.CommerceCompleted {
		t.Errorf("expected COMPLETED, got %s", first.Order.State)
	}
	if first.Order.Billing == nil {
		t.Fatal("expected billing settled on completion")
	}
	if first.Order.Billing.Mismatch {
		t.Error("expected no billing mismatch")
	}
	if second.Order.Billing == nil || second.Order.Billing.ID != first.Order.Billing.ID {
		t.Error("expected the same billing record on repeat status")
	}
}

func TestStatus_CDRNotYetIssuedLeavesBillingPending(t *testing.T) {
	// Arrange
	f := newFixture(onlineOCPI())
	f.ocpi.GetSessionStatusFunc = func(ctx context.Context, sessionID string) (*domain.Session, error) {
		return &domain.Session{ID: sessionID, Status: domain.InfraCompleted, KWh: 4}, nil
	}
	sel, _ := selectItem(t, f)
	if _, err := f.coordinator.Confirm(context.Background(), domain.ConfirmRequest{
		Context: searchContext("confirm"), OrderID: sel.Order.ID,
	}); err != nil {
		t.Fatalf("confirm: %v", err)
	}

	// Act
	resp, err := f.coordinator.Status(context.Background(), domain.StatusRequest{
		Context: searchContext("status"), OrderID: sel.Order.ID,
	})

	// Assert
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if resp.Order.State != domain.CommerceCompleted {
		t.Errorf("expected COMPLETED, got %s", resp.Order.State)
	}
	if resp.Order.Billing != nil {
		t.Error("expected billing deferred until the network issues a CDR")
	}
}

func TestStatus_InfraErrorReportedAsFailed(t *testing.T) {
	// Arrange
	f := newFixture(onlineOCPI())
	f.ocpi.GetSessionStatusFunc = func(ctx context.Context, sessionID string) (*domain.Session, error) {
		return &domain.Session{ID: sessionID, Status: domain.InfraError, KWh: 2.1}, nil
	}
	sel, _ := selectItem(t, f)
	if _, err := f.coordinator.Confirm(context.Background(), domain.ConfirmRequest{
		Context: searchContext("confirm"), OrderID: sel.Order.ID,
	}); err != nil {
		t.Fatalf("confirm: %v", err)
	}

	// Act
	resp, err := f.coordinator.Status(context.Background(), domain.StatusRequest{
		Context: searchContext("status"), OrderID: sel.Order.ID,
	})

	// Assert: status is a report, so the failure lands in the order state
	// instead of an error.
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if resp.Order.State != domain.CommerceFailed {
		t.Errorf("expected FAILED, got %s", resp.Order.State)
	}
}

func TestUpdate_StopTerminatesAndBills(t *testing.T) {
	// Arrange
	f := newFixture(onlineOCPI())
	terminated := false
	f.ocpi.TerminateSessionFunc = func(ctx context.Context, sessionID string) error {
		terminated = true
		return nil
	}
	f.ocpi.GetSessionStatusFunc = func(ctx context.Context, sessionID string) (*domain.Session, error) {
		status := domain.InfraActive
		if terminated {
			status = domain.InfraCompleted
		}
		return &domain.Session{ID: sessionID, Status: status, KWh: 9.2}, nil
	}
	f.ocpi.GetChargeDetailRecordFunc = func(ctx context.Context, sessionID string) (*domain.CDR, error) {
		if !terminated {
			return nil, nil
		}
		return &domain.CDR{
			ID:              "CDR-STOP",
			SessionID:       sessionID,
			Currency:        "INR",
			TotalEnergy:     9.2,
			TotalEnergyCost: &domain.Price{ExclVAT: 165.60, InclVAT: 195.41},
		}, nil
	}
	sel, _ := selectItem(t, f)
	if _, err := f.coordinator.Confirm(context.Background(), domain.ConfirmRequest{
		Context: searchContext("confirm"), OrderID: sel.Order.ID,
	}); err != nil {
		t.Fatalf("confirm: %v", err)
	}

	// Act
	resp, err := f.coordinator.Update(context.Background(), domain.UpdateRequest{
		Context: searchContext("update"),
		OrderID: sel.Order.ID,
		Stop:    true,
	})

	// Assert
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if !terminated {
		t.Error("expected the session terminated")
	}
	if resp.Order.State != domain.CommerceCompleted {
		t.Errorf("expected COMPLETED, got %s", resp.Order.State)
	}
	if resp.Order.Billing == nil {
		t.Fatal("expected billing settled")
	}
	if resp.Order.Billing.EnergyKWh != 9.2 {
		t.Errorf("expected 9.2 kWh billed, got %f", resp.Order.Billing.EnergyKWh)
	}
}

func TestUpdate_NonStopRejected(t *testing.T) {
	f := newFixture(onlineOCPI())
	sel, _ := selectItem(t, f)

	_, err := f.coordinator.Update(context.Background(), domain.UpdateRequest{
		Context: searchContext("update"),
		OrderID: sel.Order.ID,
	})

	if !errors.Is(err, domain.ErrUnsupportedIntent) {
		t.Fatalf("expected ErrUnsupportedIntent, got %v", err)
	}
}

func TestUpdate_StopBeforeConfirmRejected(t *testing.T) {
	f := newFixture(onlineOCPI())
	sel, _ := selectItem(t, f)

	_, err := f.coordinator.Update(context.Background(), domain.UpdateRequest{
		Context: searchContext("update"),
		OrderID: sel.Order.ID,
		Stop:    true,
	})

	if !errors.Is(err, domain.ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition, got %v", err)
	}
}

func TestCancel_BeforeConfirm(t *testing.T) {
	// Arrange
	f := newFixture(onlineOCPI())
	sel, _ := selectItem(t, f)

	// Act
	resp, err := f.coordinator.Cancel(context.Background(), domain.CancelRequest{
		Context: searchContext("cancel"),
		OrderID: sel.Order.ID,
		Reason:  "changed plans",
	})

	// Assert
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if resp.Order.State != domain.CommerceCancelled {
		t.Errorf("expected CANCELLED, got %s", resp.Order.State)
	}
	if f.ocpi.TerminateCalls != 0 {
		t.Error("expected no termination without a session")
	}
	if resp.Order.Billing != nil {
		t.Error("expected no billing without a session")
	}
}

func TestConcurrentUpdate_OneWriterWins(t *testing.T) {
	// Arrange: two stale copies of the same order race their commits.
	ctx := context.Background()
	f := newFixture(onlineOCPI())
	sel, _ := selectItem(t, f)

	first, _ := f.txStore.Load(ctx, sel.Order.ID)
	second, _ := f.txStore.Load(ctx, sel.Order.ID)

	first.CommerceState = domain.CommerceCancelled
	second.CommerceState = domain.CommerceFailed

	// Act
	err1 := f.txStore.Save(ctx, first, first.Version)
	err2 := f.txStore.Save(ctx, second, second.Version)

	// Assert
	if err1 != nil {
		t.Fatalf("expected the first writer to win, got %v", err1)
	}
	if !errors.Is(err2, domain.ErrConcurrentModification) {
		t.Fatalf("expected ErrConcurrentModification for the stale writer, got %v", err2)
	}
	final, _ := f.txStore.Load(ctx, sel.Order.ID)
	if final.CommerceState != domain.CommerceCancelled {
		t.Errorf("expected the winner's state persisted, got %s", final.CommerceState)
	}
	if final.Version != first.Version {
		t.Errorf("expected exactly one version bump, got %d", final.Version)
	}
}
