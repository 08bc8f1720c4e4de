package catalog

import (
	"errors"
	"math"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/evinterop/beckn-ocpi-bridge/internal/domain"
	"github.com/evinterop/beckn-ocpi-bridge/internal/itemid"
)

func newTestLogger() *zap.Logger {
	logger, _ := zap.NewDevelopment()
	return logger
}

func newTestTransformer() *Transformer {
	return NewTransformer("bpp.example.com", "Example Energy Network", newTestLogger())
}

func testLocations() []domain.Location {
	now := time.Now()
	return []domain.Location{
		{
			CountryCode: "IN",
			PartyID:     "CPO",
			ID:          "LOC-BLR-001",
			Publish:     true,
			Name:        "Indiranagar Hub",
			Address:     "100 Feet Road",
			City:        "Bengaluru",
			Country:     "IND",
			Coordinates: domain.GeoCoordinates{Latitude: "12.9716", Longitude: "77.5946"},
			Operator:    &domain.BusinessDetails{Name: "Example CPO"},
			Evses: []domain.EVSE{
				{
					UID:    "EVSE-1",
					EvseID: "IN*CPO*E1",
					Status: domain.EVSEStatusAvailable,
					Connectors: []domain.Connector{
						{
							ID:               "1",
							Standard:         "IEC_62196_T2_COMBO",
							Format:           "CABLE",
							PowerType:        "DC",
							MaxElectricPower: 60000,
							TariffIDs:        []string{"TARIFF-DC"},
							LastUpdated:      now,
						},
						{
							ID:               "2",
							Standard:         "IEC_62196_T2",
							Format:           "SOCKET",
							PowerType:        "AC_3_PHASE",
							MaxElectricPower: 22000,
							TariffIDs:        []string{"TARIFF-AC"},
							LastUpdated:      now,
						},
					},
					LastUpdated: now,
				},
				{
					UID:    "EVSE-2",
					EvseID: "IN*CPO*E2",
					Status: domain.EVSEStatusOutOfOrder,
					Connectors: []domain.Connector{
						{
							ID:               "1",
							Standard:         "IEC_62196_T2_COMBO",
							Format:           "CABLE",
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
		{
			CountryCode: "IN",
			PartyID:     "CPO",
			ID:          "LOC-MYS-009",
			Publish:     true,
			Name:        "Mysuru Highway Stop",
			Address:     "SH-17",
			City:        "Mysuru",
			Country:     "IND",
			// Roughly 130 km from the Bengaluru fixture.
			Coordinates: domain.GeoCoordinates{Latitude: "12.2958", Longitude: "76.6394"},
			Evses: []domain.EVSE{
				{
					UID:    "EVSE-9",
					Status: domain.EVSEStatusAvailable,
					Connectors: []domain.Connector{
						{
							ID:               "1",
							Standard:         "IEC_62196_T2_COMBO",
							PowerType:        "DC",
							MaxElectricPower: 120000,
							TariffIDs:        []string{"TARIFF-DC"},
							LastUpdated:      now,
						},
					},
					LastUpdated: now,
				},
			},
			LastUpdated: now,
		},
		{
			ID:          "LOC-HIDDEN",
			Publish:     false,
			Coordinates: domain.GeoCoordinates{Latitude: "12.9716", Longitude: "77.5946"},
			Evses: []domain.EVSE{
				{UID: "EVSE-H", Status: domain.EVSEStatusAvailable, Connectors: []domain.Connector{
					{ID: "1", Standard: "IEC_62196_T2_COMBO"},
				}},
			},
			LastUpdated: now,
		},
	}
}

func testTariffs() []domain.Tariff {
	return []domain.Tariff{
		{
			ID:       "TARIFF-DC",
			Currency: "INR",
			Elements: []domain.TariffElement{
				{PriceComponents: []domain.PriceComponent{
					{Type: domain.DimensionEnergy, Price: 18.00, VAT: 18, StepSize: 1},
					{Type: domain.DimensionFlat, Price: 25.00, VAT: 18, StepSize: 1},
				}},
			},
		},
		{
			ID:       "TARIFF-AC",
			Currency: "INR",
			Elements: []domain.TariffElement{
				{PriceComponents: []domain.PriceComponent{
					{Type: domain.DimensionEnergy, Price: 12.50, StepSize: 1},
					{Type: domain.DimensionTime, Price: 60.00, VAT: 18, StepSize: 60},
				}},
			},
		},
	}
}

func TestToCatalog_CategoryFilterAndAvailability(t *testing.T) {
	// Arrange
	tr := newTestTransformer()
	intent := domain.Intent{
		GPS:        "12.9716,77.5946",
		RadiusKM:   10,
		CategoryID: "CCS2",
	}

	// Act
	catalog, err := tr.ToCatalog(testLocations(), testTariffs(), intent)

	// Assert
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	// Within 10 km only the Bengaluru location qualifies. It has two CCS2
	// connectors: one on an available EVSE, one on an out-of-order EVSE.
	if len(catalog.Items) != 2 {
		t.Fatalf("expected 2 items, got %d", len(catalog.Items))
	}
	for _, item := range catalog.Items {
		if item.ConnectorType != "IEC_62196_T2_COMBO" {
			t.Errorf("expected only CCS2 connectors, got %s", item.ConnectorType)
		}
	}

	var available, unavailable int
	for _, item := range catalog.Items {
		if item.Available {
			available++
		} else {
			unavailable++
			if item.EVSEStatus != string(domain.EVSEStatusOutOfOrder) {
				t.Errorf("expected OUTOFORDER status annotation, got %s", item.EVSEStatus)
			}
		}
	}
	if available != 1 || unavailable != 1 {
		t.Errorf("expected 1 available and 1 unavailable item, got %d/%d", available, unavailable)
	}
}

func TestToCatalog_RemovedEVSEListedUnavailable(t *testing.T) {
	// Arrange
	tr := newTestTransformer()
	now := time.Now()
	locations := []domain.Location{
		{
			ID:          "LOC-BLR-001",
			Publish:     true,
			Name:        "Indiranagar Hub",
			Coordinates: domain.GeoCoordinates{Latitude: "12.9716", Longitude: "77.5946"},
			Evses: []domain.EVSE{
				{
					UID:    "EVSE-GONE",
					Status: domain.EVSEStatusRemoved,
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

	// Act
	catalog, err := tr.ToCatalog(locations, testTariffs(), domain.Intent{GPS: "12.9716,77.5946"})

	// Assert
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if len(catalog.Items) != 1 {
		t.Fatalf("expected the removed EVSE's connector to stay listed, got %d items", len(catalog.Items))
	}
	item := catalog.Items[0]
	if item.Available {
		t.Error("expected the removed EVSE's connector to be unavailable")
	}
	if item.EVSEStatus != string(domain.EVSEStatusRemoved) {
		t.Errorf("expected REMOVED status annotation, got %s", item.EVSEStatus)
	}
}

func TestToCatalog_ItemIDsDecodeToSourceTriple(t *testing.T) {
	// Arrange
	tr := newTestTransformer()

	// Act
	catalog, err := tr.ToCatalog(testLocations(), testTariffs(), domain.Intent{})

	// Assert
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if len(catalog.Items) == 0 {
		t.Fatal("expected catalog items")
	}
	for _, item := range catalog.Items {
		ref, err := itemid.Decode(item.ID)
		if err != nil {
			t.Fatalf("item id %q does not decode: %v", item.ID, err)
		}
		if ref.LocationID != item.LocationID {
			t.Errorf("decoded location %q, item says %q", ref.LocationID, item.LocationID)
		}
	}
}

func TestToCatalog_RadiusFilterAndDistanceOrder(t *testing.T) {
	// Arrange
	tr := newTestTransformer()

	// Act: a 200 km radius covers both published locations.
	catalog, err := tr.ToCatalog(testLocations(), testTariffs(), domain.Intent{
		GPS: "12.9716,77.5946", RadiusKM: 200,
	})

	// Assert
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if len(catalog.Items) != 4 {
		t.Fatalf("expected 4 items, got %d", len(catalog.Items))
	}
	for i := 1; i < len(catalog.Items); i++ {
		if catalog.Items[i].DistanceKM < catalog.Items[i-1].DistanceKM {
			t.Fatal("expected items ordered by distance")
		}
	}
	far := catalog.Items[len(catalog.Items)-1]
	if far.LocationID != "LOC-MYS-009" {
		t.Errorf("expected the Mysuru location last, got %s", far.LocationID)
	}
	if far.DistanceKM < 110 || far.DistanceKM > 150 {
		t.Errorf("expected ~130 km distance, got %f", far.DistanceKM)
	}
}

func TestToCatalog_UnpublishedLocationsExcluded(t *testing.T) {
	// Arrange
	tr := newTestTransformer()

	// Act
	catalog, err := tr.ToCatalog(testLocations(), testTariffs(), domain.Intent{})

	// Assert
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	for _, item := range catalog.Items {
		if item.LocationID == "LOC-HIDDEN" {
			t.Fatal("unpublished location leaked into the catalog")
		}
	}
}

func TestToCatalog_PriceSeparatesBaseAndTax(t *testing.T) {
	// Arrange
	tr := newTestTransformer()
	intent := domain.Intent{GPS: "12.9716,77.5946", RadiusKM: 10, CategoryID: "TYPE2"}

	// Act
	catalog, err := tr.ToCatalog(testLocations(), testTariffs(), intent)

	// Assert
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if len(catalog.Items) != 1 {
		t.Fatalf("expected 1 item, got %d", len(catalog.Items))
	}
	price := catalog.Items[0].Price
	if price.Currency != "INR" {
		t.Errorf("expected INR, got %s", price.Currency)
	}
	// TARIFF-AC: energy 12.50 untaxed, time 60.00 with 18% VAT.
	if math.Abs(price.Base-72.50) > 1e-9 {
		t.Errorf("expected base 72.50, got %f", price.Base)
	}
	if math.Abs(price.Tax-10.80) > 1e-9 {
		t.Errorf("expected tax 10.80, got %f", price.Tax)
	}
	if len(price.Lines) != 2 {
		t.Errorf("expected 2 price lines, got %d", len(price.Lines))
	}
	if len(price.Taxes) != 1 {
		t.Fatalf("expected 1 tax line, got %d", len(price.Taxes))
	}
	if price.Taxes[0].Dimension != domain.DimensionTime || price.Taxes[0].Rate != 18 {
		t.Errorf("unexpected tax line %+v", price.Taxes[0])
	}
}

func TestToLocationQuery_NormalizesCategory(t *testing.T) {
	// Arrange
	tr := newTestTransformer()

	// Act
	q, err := tr.ToLocationQuery(domain.Intent{GPS: "12.9716, 77.5946", RadiusKM: 5, CategoryID: "ccs2"})

	// Assert
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if q.Latitude != 12.9716 || q.Longitude != 77.5946 {
		t.Errorf("unexpected coordinates %f,%f", q.Latitude, q.Longitude)
	}
	if len(q.ConnectorTypes) != 1 || q.ConnectorTypes[0] != "IEC_62196_T2_COMBO" {
		t.Errorf("unexpected connector types %v", q.ConnectorTypes)
	}
}

func TestToLocationQuery_RejectsUnknownCategory(t *testing.T) {
	tr := newTestTransformer()

	_, err := tr.ToLocationQuery(domain.Intent{GPS: "12.9716,77.5946", CategoryID: "WARP_DRIVE"})

	if !errors.Is(err, domain.ErrUnsupportedIntent) {
		t.Fatalf("expected ErrUnsupportedIntent, got %v", err)
	}
}

func TestToLocationQuery_RejectsMissingCenter(t *testing.T) {
	tr := newTestTransformer()

	// A category alone is not a usable criterion; without a center the
	// query would span the whole network.
	_, err := tr.ToLocationQuery(domain.Intent{CategoryID: "CCS2"})

	if !errors.Is(err, domain.ErrUnsupportedIntent) {
		t.Fatalf("expected ErrUnsupportedIntent, got %v", err)
	}
}

func TestToLocationQuery_RejectsMalformedGPS(t *testing.T) {
	tr := newTestTransformer()

	for _, gps := range []string{"not-a-pair", "12.9716", "91.0,77.0", "12.9,200.0", "a,b"} {
		_, err := tr.ToLocationQuery(domain.Intent{GPS: gps})
		if !errors.Is(err, domain.ErrUnsupportedIntent) {
			t.Errorf("gps %q: expected ErrUnsupportedIntent, got %v", gps, err)
		}
	}
}

func TestHaversine_KnownDistance(t *testing.T) {
	// Bengaluru to Mysuru is about 130 km by great circle.
	d := haversineKM(12.9716, 77.5946, 12.2958, 76.6394)
	if d < 115 || d > 145 {
		t.Errorf("expected ~130 km, got %f", d)
	}
}
