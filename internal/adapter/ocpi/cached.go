package ocpi

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/evinterop/beckn-ocpi-bridge/internal/domain"
	"github.com/evinterop/beckn-ocpi-bridge/internal/ports"
)

// CachedClient decorates an OCPI client with a short-lived read cache for
// location and tariff snapshots. Session commands and live status reads are
// never cached; a stale session status would defeat reconciliation.
type CachedClient struct {
	ports.OCPIClient

	cache ports.Cache
	ttl   time.Duration
	log   *zap.Logger
}

func NewCachedClient(inner ports.OCPIClient, cache ports.Cache, ttl time.Duration, log *zap.Logger) *CachedClient {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &CachedClient{
		OCPIClient: inner,
		cache:      cache,
		ttl:        ttl,
		log:        log,
	}
}

func (c *CachedClient) QueryLocations(ctx context.Context, q ports.LocationQuery) ([]domain.Location, error) {
	key := fmt.Sprintf("ocpi:locations:%.4f:%.4f:%.1f", q.Latitude, q.Longitude, q.RadiusKM)

	if cached, err := c.cache.Get(ctx, key); err == nil && cached != "" {
		var locations []domain.Location
		if jerr := json.Unmarshal([]byte(cached), &locations); jerr == nil {
			return locations, nil
		}
	}

	locations, err := c.OCPIClient.QueryLocations(ctx, q)
	if err != nil {
		return nil, err
	}

	if payload, jerr := json.Marshal(locations); jerr == nil {
		if serr := c.cache.Set(ctx, key, payload, c.ttl); serr != nil {
			c.log.Warn("location cache write failed", zap.Error(serr))
		}
	}
	return locations, nil
}

func (c *CachedClient) QueryTariffs(ctx context.Context) ([]domain.Tariff, error) {
	const key = "ocpi:tariffs"

	if cached, err := c.cache.Get(ctx, key); err == nil && cached != "" {
		var tariffs []domain.Tariff
		if jerr := json.Unmarshal([]byte(cached), &tariffs); jerr == nil {
			return tariffs, nil
		}
	}

	tariffs, err := c.OCPIClient.QueryTariffs(ctx)
	if err != nil {
		return nil, err
	}

	if payload, jerr := json.Marshal(tariffs); jerr == nil {
		if serr := c.cache.Set(ctx, key, payload, c.ttl); serr != nil {
			c.log.Warn("tariff cache write failed", zap.Error(serr))
		}
	}
	return tariffs, nil
}
