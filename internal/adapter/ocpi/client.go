package ocpi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"

	"github.com/evinterop/beckn-ocpi-bridge/internal/domain"
	"github.com/evinterop/beckn-ocpi-bridge/internal/observability/telemetry"
	"github.com/evinterop/beckn-ocpi-bridge/internal/ports"
)

// Config holds the connection settings for the charging network's OCPI
// endpoint.
type Config struct {
	BaseURL string
	Token   string
	Timeout time.Duration
}

// Client talks OCPI 2.2.1 to the charging network over HTTP. All requests
// run through a circuit breaker; failures are classified into the transport
// error taxonomy so callers can tell retryable from fatal.
type Client struct {
	baseURL string
	token   string
	http    *http.Client
	breaker *gobreaker.CircuitBreaker
	log     *zap.Logger
}

func NewClient(cfg Config, log *zap.Logger) *Client {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 10 * time.Second
	}

	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "ocpi",
		MaxRequests: 3,
		Interval:    time.Minute,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.Requests >= 3 && failureRatio >= 0.6
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			log.Warn("OCPI circuit breaker state changed",
				zap.String("from", from.String()),
				zap.String("to", to.String()))
		},
		// Only transport failures trip the breaker; rejections and 404s are
		// healthy answers.
		IsSuccessful: func(err error) bool {
			if err == nil {
				return true
			}
			return !errors.Is(err, domain.ErrTransportTimeout) &&
				!errors.Is(err, domain.ErrTransportUnavailable)
		},
	})

	return &Client{
		baseURL: cfg.BaseURL,
		token:   cfg.Token,
		http:    &http.Client{Timeout: timeout},
		breaker: breaker,
		log:     log,
	}
}

// envelope is the OCPI response wrapper.
type envelope struct {
	Data       json.RawMessage `json:"data"`
	StatusCode int             `json:"status_code"`
	Timestamp  time.Time       `json:"timestamp"`
}

// wireSession is the OCPI session as it appears on the wire; the status
// vocabulary differs from the engine's.
type wireSession struct {
	ID          string    `json:"id"`
	LocationID  string    `json:"location_id"`
	EvseUID     string    `json:"evse_uid"`
	ConnectorID string    `json:"connector_id"`
	Status      string    `json:"status"`
	StartDate   time.Time `json:"start_date_time"`
	KWh         float64   `json:"kwh"`
	LastUpdated time.Time `json:"last_updated"`
}

type startSessionRequest struct {
	Token       string `json:"token"`
	LocationID  string `json:"location_id"`
	EvseUID     string `json:"evse_uid"`
	ConnectorID string `json:"connector_id"`
}

type commandResult struct {
	Result    string `json:"result"`
	SessionID string `json:"session_id,omitempty"`
}

func (c *Client) QueryLocations(ctx context.Context, q ports.LocationQuery) ([]domain.Location, error) {
	params := url.Values{}
	if q.Latitude != 0 || q.Longitude != 0 {
		params.Set("latitude", strconv.FormatFloat(q.Latitude, 'f', -1, 64))
		params.Set("longitude", strconv.FormatFloat(q.Longitude, 'f', -1, 64))
	}
	if q.RadiusKM > 0 {
		params.Set("radius_km", strconv.FormatFloat(q.RadiusKM, 'f', -1, 64))
	}

	endpoint := "/ocpi/2.2.1/locations"
	if len(params) > 0 {
		endpoint += "?" + params.Encode()
	}

	var locations []domain.Location
	if err := c.get(ctx, "locations", endpoint, &locations); err != nil {
		return nil, err
	}
	return locations, nil
}

func (c *Client) QueryTariffs(ctx context.Context) ([]domain.Tariff, error) {
	var tariffs []domain.Tariff
	if err := c.get(ctx, "tariffs", "/ocpi/2.2.1/tariffs", &tariffs); err != nil {
		return nil, err
	}
	return tariffs, nil
}

func (c *Client) InitiateSession(ctx context.Context, token string, ref domain.ItemRef) (string, error) {
	body := startSessionRequest{
		Token:       token,
		LocationID:  ref.LocationID,
		EvseUID:     ref.EvseUID,
		ConnectorID: ref.ConnectorID,
	}

	var result commandResult
	if err := c.post(ctx, "start_session", "/ocpi/2.2.1/commands/START_SESSION", body, &result); err != nil {
		return "", err
	}
	if result.Result != "ACCEPTED" || result.SessionID == "" {
		return "", fmt.Errorf("session initiation rejected: %s", result.Result)
	}
	return result.SessionID, nil
}

func (c *Client) GetSessionStatus(ctx context.Context, sessionID string) (*domain.Session, error) {
	var ws wireSession
	if err := c.get(ctx, "sessions", "/ocpi/2.2.1/sessions/"+url.PathEscape(sessionID), &ws); err != nil {
		return nil, err
	}
	return &domain.Session{
		ID:            ws.ID,
		LocationID:    ws.LocationID,
		EvseUID:       ws.EvseUID,
		ConnectorID:   ws.ConnectorID,
		Status:        infraStateOf(ws.Status),
		StartDateTime: ws.StartDate,
		KWh:           ws.KWh,
		LastUpdated:   ws.LastUpdated,
	}, nil
}

func (c *Client) TerminateSession(ctx context.Context, sessionID string) error {
	body := map[string]string{"session_id": sessionID}
	var result commandResult
	if err := c.post(ctx, "stop_session", "/ocpi/2.2.1/commands/STOP_SESSION", body, &result); err != nil {
		return err
	}
	if result.Result != "ACCEPTED" {
		return fmt.Errorf("session termination rejected: %s", result.Result)
	}
	return nil
}

func (c *Client) GetChargeDetailRecord(ctx context.Context, sessionID string) (*domain.CDR, error) {
	var cdr domain.CDR
	err := c.get(ctx, "cdrs", "/ocpi/2.2.1/cdrs/"+url.PathEscape(sessionID), &cdr)
	if err != nil {
		if errors.Is(err, errNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &cdr, nil
}

// infraStateOf maps OCPI session statuses onto the engine's vocabulary.
func infraStateOf(status string) domain.InfraState {
	switch status {
	case "PENDING", "RESERVATION":
		return domain.InfraPending
	case "ACTIVE":
		return domain.InfraActive
	case "COMPLETED":
		return domain.InfraCompleted
	case "INVALID":
		return domain.InfraError
	}
	return domain.InfraUnknown
}

// errNotFound marks a 404 so callers can treat absence as a value.
var errNotFound = errors.New("not found")

func (c *Client) get(ctx context.Context, endpoint, path string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return err
	}
	return c.do(endpoint, req, out)
}

func (c *Client) post(ctx context.Context, endpoint, path string, body, out interface{}) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(endpoint, req, out)
}

func (c *Client) do(endpoint string, req *http.Request, out interface{}) error {
	req.Header.Set("Authorization", "Token "+c.token)

	start := time.Now()
	_, err := c.breaker.Execute(func() (interface{}, error) {
		resp, err := c.http.Do(req)
		if err != nil {
			return nil, classify(err)
		}
		defer resp.Body.Close()

		raw, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, classify(err)
		}

		switch {
		case resp.StatusCode == http.StatusNotFound:
			return nil, errNotFound
		case resp.StatusCode >= 500:
			return nil, fmt.Errorf("%w: %s returned %d", domain.ErrTransportUnavailable, endpoint, resp.StatusCode)
		case resp.StatusCode >= 400:
			return nil, fmt.Errorf("%s rejected request: %d %s", endpoint, resp.StatusCode, bytes.TrimSpace(raw))
		}

		var env envelope
		if err := json.Unmarshal(raw, &env); err != nil {
			return nil, fmt.Errorf("decoding %s response: %w", endpoint, err)
		}
		if out != nil && len(env.Data) > 0 {
			if err := json.Unmarshal(env.Data, out); err != nil {
				return nil, fmt.Errorf("decoding %s payload: %w", endpoint, err)
			}
		}
		return nil, nil
	})
	telemetry.OCPILatency.Observe(time.Since(start).Seconds())

	status := "ok"
	if err != nil {
		status = "error"
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			err = fmt.Errorf("%w: circuit open for %s", domain.ErrTransportUnavailable, endpoint)
		}
	}
	telemetry.OCPIRequestsTotal.WithLabelValues(endpoint, status).Inc()
	return err
}

// classify folds transport-level failures into the engine's taxonomy.
func classify(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", domain.ErrTransportTimeout, err)
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return fmt.Errorf("%w: %v", domain.ErrTransportTimeout, err)
	}
	return fmt.Errorf("%w: %v", domain.ErrTransportUnavailable, err)
}
