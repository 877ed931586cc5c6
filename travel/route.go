package travel

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/warp/settlement-engine/generic"
	"github.com/warp/settlement-engine/region"
)

// =============================================================================
// ROUTE
// =============================================================================

// Leg is one hop of a route.
type Leg struct {
	From   region.Code
	To     region.Code
	Km     generic.Amount
	Found  bool
	Source string
}

// Route is one instructor-day walk: home → stops in visiting order → home.
type Route struct {
	Home        region.Region
	Stops       []region.Region
	DistanceKm  generic.Amount
	Description string
	Legs        []Leg
	MapImageURL string
}

// MapRenderer produces an image URL for a route. Rendering is optional and
// never affects the distance.
type MapRenderer interface {
	RenderRoute(ctx context.Context, route Route) (string, error)
}

// =============================================================================
// BUILDER
// =============================================================================

const arrow = " → "

// Builder walks routes over a DistanceProvider.
type Builder struct {
	provider region.DistanceProvider
	renderer MapRenderer
	logger   *zap.Logger
}

// NewBuilder creates a route builder. renderer may be nil.
func NewBuilder(provider region.DistanceProvider, renderer MapRenderer, logger *zap.Logger) *Builder {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Builder{provider: provider, renderer: renderer, logger: logger}
}

// Build sums the distance of home → d1 → ... → dN → home in the order given.
// Destinations without a code are skipped with an unmapped_region warning.
// Pairs the provider does not know contribute 0 km with a missing_distance
// warning.
func (b *Builder) Build(ctx context.Context, home region.Region, destinations []region.Region) (Route, generic.Diagnostics) {
	var diags generic.Diagnostics
	route := Route{Home: home, DistanceKm: generic.Km(0)}

	if !home.Resolved() {
		diags.Warn(generic.WarnUnmappedRegion, home.Label(), "home region %q has no city/county code", home.Label())
	}

	names := []string{home.Label()}
	for _, d := range destinations {
		if !d.Resolved() {
			diags.Warn(generic.WarnUnmappedRegion, d.Label(), "institution region %q has no city/county code", d.Label())
			continue
		}
		route.Stops = append(route.Stops, d)
		names = append(names, d.Label())
	}
	names = append(names, home.Label())
	route.Description = strings.Join(names, arrow)

	if !home.Resolved() || len(route.Stops) == 0 {
		return route, diags
	}

	walk := make([]region.Code, 0, len(route.Stops)+2)
	walk = append(walk, *home.Code)
	for _, s := range route.Stops {
		walk = append(walk, *s.Code)
	}
	walk = append(walk, *home.Code)

	for i := 0; i+1 < len(walk); i++ {
		leg := b.leg(ctx, walk[i], walk[i+1], &diags)
		route.Legs = append(route.Legs, leg)
		route.DistanceKm = route.DistanceKm.Add(leg.Km)
	}

	if b.renderer != nil {
		url, err := b.renderer.RenderRoute(ctx, route)
		if err != nil {
			b.logger.Warn("route map rendering failed", zap.String("route", route.Description), zap.Error(err))
		} else {
			route.MapImageURL = url
		}
	}
	return route, diags
}

func (b *Builder) leg(ctx context.Context, from, to region.Code, diags *generic.Diagnostics) Leg {
	ref := string(from) + "-" + string(to)
	res, err := b.provider.Distance(ctx, from, to)
	if err != nil {
		b.logger.Warn("distance lookup failed", zap.String("from", string(from)), zap.String("to", string(to)), zap.Error(err))
		diags.Warn(generic.WarnMissingDistance, ref, "distance %s → %s unavailable: %v", from.Name(), to.Name(), err)
		return Leg{From: from, To: to, Km: generic.Km(0), Source: region.SourceMissing}
	}
	if !res.Found {
		diags.Warn(generic.WarnMissingDistance, ref, "no distance recorded for %s → %s", from.Name(), to.Name())
	}
	return Leg{From: from, To: to, Km: res.Km, Found: res.Found, Source: res.Source}
}
