package analytics

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"time"

	"github.com/angelmondragon/surfacemarket-backend/internal/analytics/query"
	"github.com/angelmondragon/surfacemarket-backend/internal/analytics/types"
	"github.com/angelmondragon/surfacemarket-backend/pkg/bigquery"
	"github.com/angelmondragon/surfacemarket-backend/pkg/logger"
)

// Service provides escrow reports based on the analytics event stream.
type Service interface {
	// Query returns escrow KPIs for the provided request.
	Query(ctx context.Context, req types.EscrowQueryRequest) (*types.EscrowQueryResponse, error)
}

// Cache holds serialized query results.
type Cache interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
	CacheKey(parts ...string) string
}

// ServiceParams wires the analytics service. Cache is optional; a nil cache
// or a non-positive CacheTTL sends every request to BigQuery.
type ServiceParams struct {
	Client   *bigquery.Client
	Project  string
	Dataset  string
	Table    string
	Cache    Cache
	CacheTTL time.Duration
	Logger   *logger.Logger
}

type service struct {
	escrow query.EscrowService
	cache  Cache
	ttl    time.Duration
	logg   *logger.Logger
}

// NewService builds an analytics service backed by BigQuery.
func NewService(params ServiceParams) (Service, error) {
	if params.Client == nil {
		return nil, errors.New("bigquery client required")
	}
	if params.Logger == nil {
		return nil, errors.New("logger required")
	}
	escrow, err := query.NewEscrowService(params.Client, params.Project, params.Dataset, params.Table)
	if err != nil {
		return nil, err
	}
	svc := &service{escrow: escrow, logg: params.Logger}
	if params.Cache != nil && params.CacheTTL > 0 {
		svc.cache, svc.ttl = params.Cache, params.CacheTTL
	}
	return svc, nil
}

// Query serves from cache when possible. Windows are keyed at minute
// resolution, so preset windows ending "now" share an entry within a minute.
// Cache failures only cost a BigQuery round-trip.
func (s *service) Query(ctx context.Context, req types.EscrowQueryRequest) (*types.EscrowQueryResponse, error) {
	if s.cache == nil {
		return s.escrow.Query(ctx, req)
	}

	key := s.cache.CacheKey("analytics", "escrow", cacheScope(req),
		strconv.FormatInt(req.Start.Unix()/60, 10), strconv.FormatInt(req.End.Unix()/60, 10))
	if raw, err := s.cache.Get(ctx, key); err == nil && raw != "" {
		var cached types.EscrowQueryResponse
		if err := json.Unmarshal([]byte(raw), &cached); err == nil {
			s.logg.Debug(s.logg.WithField(ctx, "cache_key", key), "escrow analytics cache hit")
			return &cached, nil
		}
	}

	resp, err := s.escrow.Query(ctx, req)
	if err != nil {
		return nil, err
	}
	encoded, err := json.Marshal(resp)
	if err == nil {
		err = s.cache.Set(context.WithoutCancel(ctx), key, string(encoded), s.ttl)
	}
	if err != nil {
		s.logg.Warn(s.logg.WithField(ctx, "cache_key", key), "escrow analytics cache write failed: "+err.Error())
	}
	return resp, nil
}

func cacheScope(req types.EscrowQueryRequest) string {
	if req.VendorID == nil {
		return "all"
	}
	return req.VendorID.String()
}
