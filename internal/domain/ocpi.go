package domain

import (
	"strconv"
	"time"
)

// EVSEStatus is the OCPI EVSE availability status.
type EVSEStatus string

const (
	EVSEStatusAvailable   EVSEStatus = "AVAILABLE"
	EVSEStatusBlocked     EVSEStatus = "BLOCKED"
	EVSEStatusCharging    EVSEStatus = "CHARGING"
	EVSEStatusInoperative EVSEStatus = "INOPERATIVE"
	EVSEStatusOutOfOrder  EVSEStatus = "OUTOFORDER"
	EVSEStatusPlanned     EVSEStatus = "PLANNED"
	EVSEStatusRemoved     EVSEStatus = "REMOVED"
	EVSEStatusReserved    EVSEStatus = "RESERVED"
	EVSEStatusUnknown     EVSEStatus = "UNKNOWN"
)

// AcceptsNewSessions reports whether an EVSE in this status can host a new
// charging session. Statuses outside this set are still listed in the catalog
// but annotated out-of-stock.
func (s EVSEStatus) AcceptsNewSessions() bool {
	switch s {
	case EVSEStatusInoperative, EVSEStatusOutOfOrder, EVSEStatusRemoved, EVSEStatusPlanned:
		return false
	}
	return true
}

// GeoCoordinates holds OCPI latitude/longitude, which the wire format carries
// as decimal strings.
type GeoCoordinates struct {
	Latitude  string `json:"latitude"`
	Longitude string `json:"longitude"`
}

// Floats parses the coordinate pair. The zero pair (0,0) is treated as
// unset by callers, matching OCPI feeds that publish placeholder coordinates.
func (g GeoCoordinates) Floats() (lat, lon float64, err error) {
	lat, err = strconv.ParseFloat(g.Latitude, 64)
	if err != nil {
		return 0, 0, err
	}
	lon, err = strconv.ParseFloat(g.Longitude, 64)
	if err != nil {
		return 0, 0, err
	}
	return lat, lon, nil
}

// BusinessDetails identifies an OCPI operator or owner.
type BusinessDetails struct {
	Name    string `json:"name"`
	Website string `json:"website,omitempty"`
}

// Connector is a single physical socket or cable on an EVSE.
type Connector struct {
	ID               string    `json:"id"`
	Standard         string    `json:"standard"`
	Format           string    `json:"format"`
	PowerType        string    `json:"power_type"`
	MaxVoltage       int       `json:"max_voltage"`
	MaxAmperage      int       `json:"max_amperage"`
	MaxElectricPower int       `json:"max_electric_power"` // W
	TariffIDs        []string  `json:"tariff_ids,omitempty"`
	LastUpdated      time.Time `json:"last_updated"`
}

// EVSE is one charging unit; it belongs to exactly one Location.
type EVSE struct {
	UID         string      `json:"uid"`
	EvseID      string      `json:"evse_id"`
	Status      EVSEStatus  `json:"status"`
	Connectors  []Connector `json:"connectors"`
	LastUpdated time.Time   `json:"last_updated"`
}

// Location is an immutable snapshot of an OCPI charging location. The engine
// never caches these long-term; each query gets a fresh snapshot.
type Location struct {
	CountryCode string           `json:"country_code"`
	PartyID     string           `json:"party_id"`
	ID          string           `json:"id"`
	Publish     bool             `json:"publish"`
	Name        string           `json:"name,omitempty"`
	Address     string           `json:"address"`
	City        string           `json:"city"`
	PostalCode  string           `json:"postal_code,omitempty"`
	State       string           `json:"state,omitempty"`
	Country     string           `json:"country"`
	Coordinates GeoCoordinates   `json:"coordinates"`
	Evses       []EVSE           `json:"evses,omitempty"`
	Operator    *BusinessDetails `json:"operator,omitempty"`
	Facilities  []string         `json:"facilities,omitempty"`
	TimeZone    string           `json:"time_zone,omitempty"`
	LastUpdated time.Time        `json:"last_updated"`

	// DistanceKM is filled in by proximity filtering, not by OCPI.
	DistanceKM float64 `json:"distance_km,omitempty"`
}

// TariffDimension is the OCPI price component type.
type TariffDimension string

const (
	DimensionEnergy      TariffDimension = "ENERGY"
	DimensionTime        TariffDimension = "TIME"
	DimensionFlat        TariffDimension = "FLAT"
	DimensionParkingTime TariffDimension = "PARKING_TIME"
)

// PriceComponent is one priced dimension of a tariff element. VAT is a
// percentage applied on top of Price; Price itself never includes tax.
type PriceComponent struct {
	Type     TariffDimension `json:"type"`
	Price    float64         `json:"price"`
	VAT      float64         `json:"vat,omitempty"`
	StepSize int             `json:"step_size"`
}

type TariffElement struct {
	PriceComponents []PriceComponent `json:"price_components"`
}

// Tariff is an OCPI tariff record referenced by connectors.
type Tariff struct {
	CountryCode string          `json:"country_code"`
	PartyID     string          `json:"party_id"`
	ID          string          `json:"id"`
	Currency    string          `json:"currency"`
	Elements    []TariffElement `json:"elements"`
	LastUpdated time.Time       `json:"last_updated"`
}

// Session is the OCPI view of a charging session as last observed.
type Session struct {
	ID                     string     `json:"id"`
	LocationID             string     `json:"location_id"`
	EvseUID                string     `json:"evse_uid"`
	ConnectorID            string     `json:"connector_id"`
	Status                 InfraState `json:"status"`
	StartDateTime          time.Time  `json:"start_datetime"`
	KWh                    float64    `json:"kwh"`
	AuthMethod             string     `json:"auth_method,omitempty"`
	AuthorizationReference string     `json:"authorization_reference,omitempty"`
	LastUpdated            time.Time  `json:"last_updated"`
}

// Price is an OCPI cost pair. InclVAT minus ExclVAT is the tax share.
type Price struct {
	ExclVAT float64 `json:"excl_vat"`
	InclVAT float64 `json:"incl_vat"`
}

// CDR is the OCPI Charge Detail Record for one completed session.
type CDR struct {
	CountryCode            string    `json:"country_code"`
	PartyID                string    `json:"party_id"`
	ID                     string    `json:"id"`
	SessionID              string    `json:"session_id"`
	StartDateTime          time.Time `json:"start_date_time"`
	EndDateTime            time.Time `json:"end_date_time"`
	AuthMethod             string    `json:"auth_method"`
	AuthorizationReference string    `json:"authorization_reference,omitempty"`
	Currency               string    `json:"currency"`
	Tariffs                []Tariff  `json:"tariffs,omitempty"`
	TotalCost              *Price    `json:"total_cost,omitempty"`
	TotalFixedCost         *Price    `json:"total_fixed_cost,omitempty"`
	TotalEnergy            float64   `json:"total_energy"` // kWh
	TotalEnergyCost        *Price    `json:"total_energy_cost,omitempty"`
	TotalTime              float64   `json:"total_time"` // hours
	TotalTimeCost          *Price    `json:"total_time_cost,omitempty"`
	InvoiceReferenceID     string    `json:"invoice_reference_id,omitempty"`
	LastUpdated            time.Time `json:"last_updated"`
}
