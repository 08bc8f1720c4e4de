package catalog

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/evinterop/beckn-ocpi-bridge/internal/domain"
	"github.com/evinterop/beckn-ocpi-bridge/internal/itemid"
	"github.com/evinterop/beckn-ocpi-bridge/internal/ports"
)

// connectorStandards maps commerce-side connector categories to the OCPI
// connector standard they select. Raw OCPI standards are also accepted.
var connectorStandards = map[string]string{
	"CCS1":    "IEC_62196_T1_COMBO",
	"CCS2":    "IEC_62196_T2_COMBO",
	"CCS_2":   "IEC_62196_T2_COMBO",
	"TYPE1":   "IEC_62196_T1",
	"TYPE2":   "IEC_62196_T2",
	"TYPE_2":  "IEC_62196_T2",
	"CHADEMO": "CHADEMO",
	"GBT_AC":  "GBT_AC",
	"GBT_DC":  "GBT_DC",
}

// ocpiStandards is the set of standards accepted verbatim as a category.
var ocpiStandards = map[string]struct{}{
	"IEC_62196_T1": {}, "IEC_62196_T1_COMBO": {},
	"IEC_62196_T2": {}, "IEC_62196_T2_COMBO": {},
	"CHADEMO": {}, "GBT_AC": {}, "GBT_DC": {}, "DOMESTIC_A": {},
	"DOMESTIC_F": {}, "DOMESTIC_G": {}, "TESLA_S": {},
}

// Transformer converts infrastructure snapshots into commerce catalogs. It is
// stateless; every call works over the locations and tariffs it is handed.
type Transformer struct {
	providerID   string
	providerName string
	log          *zap.Logger
}

func NewTransformer(providerID, providerName string, log *zap.Logger) *Transformer {
	return &Transformer{
		providerID:   providerID,
		providerName: providerName,
		log:          log,
	}
}

// ToLocationQuery translates a search intent into an infrastructure query.
// A center point is mandatory; an intent without one would fan out to the
// whole network. It fails with domain.ErrUnsupportedIntent on a missing or
// malformed center and on an unrecognized connector category.
func (t *Transformer) ToLocationQuery(intent domain.Intent) (ports.LocationQuery, error) {
	var q ports.LocationQuery

	if intent.GPS == "" {
		return q, fmt.Errorf("%w: no geographic criterion", domain.ErrUnsupportedIntent)
	}
	lat, lon, err := parseGPS(intent.GPS)
	if err != nil {
		return q, fmt.Errorf("%w: gps %q", domain.ErrUnsupportedIntent, intent.GPS)
	}
	q.Latitude = lat
	q.Longitude = lon
	q.RadiusKM = intent.RadiusKM

	if intent.CategoryID != "" {
		std, err := NormalizeConnectorType(intent.CategoryID)
		if err != nil {
			return q, err
		}
		q.ConnectorTypes = []string{std}
	}

	if intent.TimeRange != nil {
		q.AvailableFrom = intent.TimeRange.Start
		q.AvailableTo = intent.TimeRange.End
	}

	return q, nil
}

// NormalizeConnectorType resolves a commerce category to an OCPI connector
// standard. Matching is case-insensitive.
func NormalizeConnectorType(category string) (string, error) {
	key := strings.ToUpper(strings.TrimSpace(category))
	if std, ok := connectorStandards[key]; ok {
		return std, nil
	}
	if _, ok := ocpiStandards[key]; ok {
		return key, nil
	}
	return "", fmt.Errorf("%w: connector category %q", domain.ErrUnsupportedIntent, category)
}

// ToCatalog flattens locations into one catalog item per connector, priced
// from the given tariffs and filtered by the intent. Locations beyond the
// intent radius are dropped; EVSEs that cannot host new sessions stay listed
// but are marked unavailable.
func (t *Transformer) ToCatalog(locations []domain.Location, tariffs []domain.Tariff, intent domain.Intent) (domain.Catalog, error) {
	catalog := domain.Catalog{
		ProviderID:   t.providerID,
		ProviderName: t.providerName,
		Items:        []domain.CatalogItem{},
	}

	var (
		centerLat, centerLon float64
		haveCenter           bool
	)
	if intent.GPS != "" {
		lat, lon, err := parseGPS(intent.GPS)
		if err != nil {
			return catalog, fmt.Errorf("%w: gps %q", domain.ErrUnsupportedIntent, intent.GPS)
		}
		centerLat, centerLon = lat, lon
		haveCenter = true
	}

	wantStandard := ""
	if intent.CategoryID != "" {
		std, err := NormalizeConnectorType(intent.CategoryID)
		if err != nil {
			return catalog, err
		}
		wantStandard = std
	}

	tariffByID := make(map[string]domain.Tariff, len(tariffs))
	for _, tf := range tariffs {
		tariffByID[tf.ID] = tf
	}

	for _, loc := range locations {
		if !loc.Publish {
			continue
		}

		distance := 0.0
		if haveCenter {
			lat, lon, err := loc.Coordinates.Floats()
			if err != nil {
				t.log.Warn("location has unparseable coordinates, skipping",
					zap.String("location_id", loc.ID))
				continue
			}
			distance = haversineKM(centerLat, centerLon, lat, lon)
			if intent.RadiusKM > 0 && distance > intent.RadiusKM {
				continue
			}
		}

		for _, evse := range loc.Evses {
			for _, conn := range evse.Connectors {
				if wantStandard != "" && conn.Standard != wantStandard {
					continue
				}
				id, err := itemid.Encode(loc.ID, evse.UID, conn.ID)
				if err != nil {
					t.log.Warn("connector has incomplete identifier triple, skipping",
						zap.String("location_id", loc.ID),
						zap.String("evse_uid", evse.UID))
					continue
				}

				item := domain.CatalogItem{
					ID:            id,
					LocationID:    loc.ID,
					LocationName:  loc.Name,
					GPS:           gpsString(loc.Coordinates),
					Address:       joinAddress(loc),
					ConnectorType: conn.Standard,
					PowerType:     conn.PowerType,
					MaxPowerW:     conn.MaxElectricPower,
					Available:     evse.Status.AcceptsNewSessions(),
					EVSEStatus:    string(evse.Status),
					DistanceKM:    distance,
					Facilities:    loc.Facilities,
					Price:         t.priceFor(conn, tariffByID),
				}
				if loc.Operator != nil {
					item.OperatorName = loc.Operator.Name
				}
				catalog.Items = append(catalog.Items, item)
			}
		}
	}

	if haveCenter {
		sort.SliceStable(catalog.Items, func(i, j int) bool {
			return catalog.Items[i].DistanceKM < catalog.Items[j].DistanceKM
		})
	}

	return catalog, nil
}

// priceFor decomposes the connector's first referenced tariff into base price
// lines and a separate tax breakdown. The base never includes tax; the tax of
// each component is its rate applied to the base line.
func (t *Transformer) priceFor(conn domain.Connector, tariffs map[string]domain.Tariff) domain.ItemPrice {
	var price domain.ItemPrice
	for _, tid := range conn.TariffIDs {
		tf, ok := tariffs[tid]
		if !ok {
			continue
		}
		price.Currency = tf.Currency
		for _, el := range tf.Elements {
			for _, pc := range el.PriceComponents {
				switch pc.Type {
				case domain.DimensionEnergy, domain.DimensionTime, domain.DimensionFlat:
				default:
					continue
				}
				price.Lines = append(price.Lines, domain.PriceLine{
					Dimension: pc.Type,
					Amount:    pc.Price,
				})
				price.Base += pc.Price
				if pc.VAT > 0 {
					tax := pc.Price * pc.VAT / 100
					price.Taxes = append(price.Taxes, domain.TaxLine{
						Dimension: pc.Type,
						Rate:      pc.VAT,
						Amount:    tax,
					})
					price.Tax += tax
				}
			}
		}
		break
	}
	return price
}

func parseGPS(gps string) (lat, lon float64, err error) {
	parts := strings.Split(gps, ",")
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("expected lat,lon")
	}
	lat, err = strconv.ParseFloat(strings.TrimSpace(parts[0]), 64)
	if err != nil {
		return 0, 0, err
	}
	lon, err = strconv.ParseFloat(strings.TrimSpace(parts[1]), 64)
	if err != nil {
		return 0, 0, err
	}
	if lat < -90 || lat > 90 || lon < -180 || lon > 180 {
		return 0, 0, fmt.Errorf("coordinates out of range")
	}
	return lat, lon, nil
}

func gpsString(c domain.GeoCoordinates) string {
	if c.Latitude == "" || c.Longitude == "" {
		return ""
	}
	return c.Latitude + "," + c.Longitude
}

func joinAddress(loc domain.Location) string {
	parts := make([]string, 0, 3)
	for _, p := range []string{loc.Address, loc.City, loc.Country} {
		if p != "" {
			parts = append(parts, p)
		}
	}
	return strings.Join(parts, ", ")
}
