package domain

import "time"

// Context is the Beckn envelope shared by every operation. Responses echo
// the inbound context with a fresh action, message id and timestamp.
type Context struct {
	Domain        string    `json:"domain"`
	Country       string    `json:"country,omitempty"`
	City          string    `json:"city,omitempty"`
	Action        string    `json:"action"`
	CoreVersion   string    `json:"core_version,omitempty"`
	BapID         string    `json:"bap_id"`
	BapURI        string    `json:"bap_uri,omitempty"`
	BppID         string    `json:"bpp_id,omitempty"`
	BppURI        string    `json:"bpp_uri,omitempty"`
	TransactionID string    `json:"transaction_id"`
	MessageID     string    `json:"message_id"`
	Timestamp     time.Time `json:"timestamp"`
	TTL           string    `json:"ttl,omitempty"`
}

// TimeRange is a Beckn availability window.
type TimeRange struct {
	Start time.Time `json:"start,omitempty"`
	End   time.Time `json:"end,omitempty"`
}

// Intent is the search criteria of a Beckn search request: a geographic
// center (mandatory for this engine), an optional radius, an optional
// connector-type category and an optional availability window.
type Intent struct {
	GPS        string     `json:"gps,omitempty"`
	RadiusKM   float64    `json:"radius_km,omitempty"`
	CategoryID string     `json:"category_id,omitempty"`
	TimeRange  *TimeRange `json:"time_range,omitempty"`
}

// PriceLine is one component of an item price, tax excluded.
type PriceLine struct {
	Dimension TariffDimension `json:"dimension"`
	Amount    float64         `json:"amount"`
}

// TaxLine is one tax component, tracked separately from the base price.
type TaxLine struct {
	Dimension TariffDimension `json:"dimension"`
	Rate      float64         `json:"rate"`   // percent
	Amount    float64         `json:"amount"` // absolute, on the base line
}

// ItemPrice decomposes a tariff into base price lines and a tax breakdown.
// Base never includes tax.
type ItemPrice struct {
	Currency string      `json:"currency"`
	Base     float64     `json:"base"`
	Tax      float64     `json:"tax"`
	Lines    []PriceLine `json:"lines,omitempty"`
	Taxes    []TaxLine   `json:"taxes,omitempty"`
}

// CatalogItem is the commerce view of exactly one connector. ID is the
// opaque identifier encoding {location_id, evse_uid, connector_id}.
type CatalogItem struct {
	ID            string    `json:"id"`
	LocationID    string    `json:"location_id"`
	LocationName  string    `json:"location_name,omitempty"`
	OperatorName  string    `json:"operator_name,omitempty"`
	GPS           string    `json:"gps,omitempty"`
	Address       string    `json:"address,omitempty"`
	ConnectorType string    `json:"connector_type"`
	PowerType     string    `json:"power_type,omitempty"`
	MaxPowerW     int       `json:"max_power_w"`
	Available     bool      `json:"available"`
	EVSEStatus    string    `json:"evse_status"`
	DistanceKM    float64   `json:"distance_km,omitempty"`
	Facilities    []string  `json:"facilities,omitempty"`
	Price         ItemPrice `json:"price"`
}

// Catalog is the payload of an on_search response.
type Catalog struct {
	ProviderID   string        `json:"provider_id"`
	ProviderName string        `json:"provider_name"`
	Items        []CatalogItem `json:"items"`
}

// QuoteLine is one row of an order quote breakup.
type QuoteLine struct {
	Title    string  `json:"title"`
	Amount   float64 `json:"amount"`
	Currency string  `json:"currency"`
}

// Quote is the priced summary attached to select/confirm responses.
type Quote struct {
	Currency string      `json:"currency"`
	Value    float64     `json:"value"`
	Breakup  []QuoteLine `json:"breakup,omitempty"`
}

// Order is the commerce view of a Transaction, assembled per response.
type Order struct {
	ID             string         `json:"id"`
	State          CommerceState  `json:"state"`
	InfraSessionID string         `json:"infra_session_id,omitempty"`
	ItemID         string         `json:"item_id,omitempty"`
	Quote          *Quote         `json:"quote,omitempty"`
	EnergyKWh      float64        `json:"energy_kwh,omitempty"`
	Billing        *BillingRecord `json:"billing,omitempty"`
	LastUpdated    time.Time      `json:"last_updated"`
}

// Request variants, one per Beckn action. They are validated at the
// transport boundary; the engine assumes well-formed payloads.

type SearchRequest struct {
	Context Context `json:"context"`
	Intent  Intent  `json:"intent"`
}

type SelectRequest struct {
	Context            Context `json:"context"`
	UserID             string  `json:"user_id"`
	ItemID             string  `json:"item_id"`
	AuthorizationToken string  `json:"authorization_token,omitempty"`
	SelectedKWh        float64 `json:"selected_kwh,omitempty"`
}

// InitRequest asks for a firm order-level quote before confirmation. It
// validates that the item's tariff still applies; nothing is persisted.
type InitRequest struct {
	Context     Context `json:"context"`
	ItemID      string  `json:"item_id"`
	SelectedKWh float64 `json:"selected_kwh,omitempty"`
}

type ConfirmRequest struct {
	Context Context `json:"context"`
	OrderID string  `json:"order_id"`
}

type StatusRequest struct {
	Context Context `json:"context"`
	OrderID string  `json:"order_id"`
}

// UpdateRequest modifies a running order. A Stop update terminates the
// underlying charging session and triggers billing.
type UpdateRequest struct {
	Context Context `json:"context"`
	OrderID string  `json:"order_id"`
	Stop    bool    `json:"stop,omitempty"`
}

type CancelRequest struct {
	Context Context `json:"context"`
	OrderID string  `json:"order_id"`
	Reason  string  `json:"reason,omitempty"`
}

// Response variants mirror the Beckn on_* callbacks.

type OnSearch struct {
	Context Context `json:"context"`
	Catalog Catalog `json:"catalog"`
}

type OnSelect struct {
	Context Context `json:"context"`
	Order   Order   `json:"order"`
}

type OnInit struct {
	Context Context `json:"context"`
	Order   Order   `json:"order"`
}

type OnConfirm struct {
	Context Context `json:"context"`
	Order   Order   `json:"order"`
}

type OnStatus struct {
	Context Context `json:"context"`
	Order   Order   `json:"order"`
}

type OnUpdate struct {
	Context Context `json:"context"`
	Order   Order   `json:"order"`
}

type OnCancel struct {
	Context Context `json:"context"`
	Order   Order   `json:"order"`
}
