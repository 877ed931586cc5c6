package region

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/warp/settlement-engine/generic"
)

// =============================================================================
// DISTANCE PROVIDER - One blocking, context-aware lookup for every source
// =============================================================================

// Sources reported in DistanceResult.Source.
const (
	SourceSame      = "same"
	SourceMatrix    = "matrix"
	SourceHaversine = "haversine"
	SourceAPI       = "api"
	SourceMissing   = "missing"
)

// DistanceResult is the answer of a provider. Found=false means the pair is
// unknown to the provider and Km is 0.
type DistanceResult struct {
	Km     generic.Amount
	Found  bool
	Source string
}

func missing() DistanceResult {
	return DistanceResult{Km: generic.Km(0), Found: false, Source: SourceMissing}
}

// DistanceProvider answers the road distance between two codes. Static
// providers answer immediately; live providers may block until ctx ends.
// An error means the provider could not answer at all, which is different
// from Found=false.
type DistanceProvider interface {
	Distance(ctx context.Context, a, b Code) (DistanceResult, error)
}

// =============================================================================
// MATRIX PROVIDER
// =============================================================================

type MatrixProvider struct {
	mu     sync.RWMutex
	matrix *DistanceMatrix
}

func NewMatrixProvider(m *DistanceMatrix) *MatrixProvider {
	return &MatrixProvider{matrix: m}
}

// Replace swaps the matrix, e.g. after the stored distance table changed.
func (p *MatrixProvider) Replace(m *DistanceMatrix) {
	p.mu.Lock()
	p.matrix = m
	p.mu.Unlock()
}

func (p *MatrixProvider) Distance(_ context.Context, a, b Code) (DistanceResult, error) {
	if a == b {
		return DistanceResult{Km: generic.Km(0), Found: true, Source: SourceSame}, nil
	}
	p.mu.RLock()
	km, ok := p.matrix.Distance(a, b)
	p.mu.RUnlock()
	if !ok {
		return missing(), nil
	}
	return DistanceResult{Km: km, Found: true, Source: SourceMatrix}, nil
}

// =============================================================================
// HAVERSINE PROVIDER
// =============================================================================

// HaversineProvider estimates road distance from city-hall coordinates.
type HaversineProvider struct {
	Factor decimal.Decimal
}

func NewHaversineProvider() *HaversineProvider {
	return &HaversineProvider{Factor: RoadFactor}
}

func (p *HaversineProvider) Distance(_ context.Context, a, b Code) (DistanceResult, error) {
	if a == b {
		return DistanceResult{Km: generic.Km(0), Found: true, Source: SourceSame}, nil
	}
	ca, okA := Lookup(a)
	cb, okB := Lookup(b)
	if !okA || !okB {
		return missing(), nil
	}
	km := decimal.NewFromFloat(HaversineKm(ca.Lat, ca.Lng, cb.Lat, cb.Lng)).Mul(p.Factor).Round(0)
	return DistanceResult{Km: generic.Amount{Value: km, Unit: generic.UnitKm}, Found: true, Source: SourceHaversine}, nil
}

// =============================================================================
// API PROVIDER - Live HTTP distance service
// =============================================================================

// APIProvider queries an HTTP distance service:
//
//	GET {base}/distance?from=SUWON&to=YONGIN
//	200 {"distance_km": 31.5}
//	404 pair unknown
//
// Answers are cached for the lifetime of the provider.
type APIProvider struct {
	client *resty.Client
	logger *zap.Logger

	mu    sync.RWMutex
	cache map[pair]DistanceResult
}

type apiDistanceResponse struct {
	DistanceKm float64 `json:"distance_km"`
}

// NewAPIProvider creates a live provider.
func NewAPIProvider(baseURL, apiKey string, timeout time.Duration, logger *zap.Logger) *APIProvider {
	if logger == nil {
		logger = zap.NewNop()
	}
	client := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(timeout).
		SetRetryCount(2).
		SetRetryWaitTime(200 * time.Millisecond).
		SetRetryMaxWaitTime(2 * time.Second).
		SetHeader("Accept", "application/json")
	if apiKey != "" {
		client.SetHeader("X-API-Key", apiKey)
	}
	return &APIProvider{client: client, logger: logger, cache: make(map[pair]DistanceResult)}
}

func (p *APIProvider) Distance(ctx context.Context, a, b Code) (DistanceResult, error) {
	if a == b {
		return DistanceResult{Km: generic.Km(0), Found: true, Source: SourceSame}, nil
	}
	key := pair{a, b}
	if a > b {
		key = pair{b, a}
	}
	p.mu.RLock()
	cached, ok := p.cache[key]
	p.mu.RUnlock()
	if ok {
		return cached, nil
	}

	var body apiDistanceResponse
	resp, err := p.client.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{"from": string(key.a), "to": string(key.b)}).
		SetResult(&body).
		Get("/distance")
	if err != nil {
		p.logger.Warn("distance API call failed", zap.String("from", string(a)), zap.String("to", string(b)), zap.Error(err))
		return DistanceResult{}, fmt.Errorf("%w: %v", generic.ErrProviderUnavailable, err)
	}

	var result DistanceResult
	switch {
	case resp.StatusCode() == http.StatusNotFound:
		result = missing()
	case resp.IsError():
		p.logger.Warn("distance API returned error", zap.Int("status_code", resp.StatusCode()))
		return DistanceResult{}, fmt.Errorf("%w: status %d", generic.ErrProviderUnavailable, resp.StatusCode())
	default:
		km := decimal.NewFromFloat(body.DistanceKm)
		if km.IsNegative() {
			km = decimal.Zero
		}
		result = DistanceResult{Km: generic.Amount{Value: km, Unit: generic.UnitKm}, Found: true, Source: SourceAPI}
	}

	p.mu.Lock()
	p.cache[key] = result
	p.mu.Unlock()
	return result, nil
}

// =============================================================================
// FALLBACK PROVIDER
// =============================================================================

// FallbackProvider asks Primary first and Secondary when Primary errors or
// does not know the pair.
type FallbackProvider struct {
	Primary   DistanceProvider
	Secondary DistanceProvider
	Logger    *zap.Logger
}

func (p *FallbackProvider) Distance(ctx context.Context, a, b Code) (DistanceResult, error) {
	res, err := p.Primary.Distance(ctx, a, b)
	if err == nil && res.Found {
		return res, nil
	}
	if err != nil && p.Logger != nil {
		p.Logger.Warn("primary distance provider failed, using fallback",
			zap.String("from", string(a)), zap.String("to", string(b)), zap.Error(err))
	}
	return p.Secondary.Distance(ctx, a, b)
}

var (
	_ DistanceProvider = (*MatrixProvider)(nil)
	_ DistanceProvider = (*HaversineProvider)(nil)
	_ DistanceProvider = (*APIProvider)(nil)
	_ DistanceProvider = (*FallbackProvider)(nil)
)
