// Package cafes turns Overpass results into points of interest for the map.
package cafes

import (
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/olablt/findercafe/overpass"
	"github.com/olablt/findercafe/tiles"
	"github.com/paulmach/orb/geo"
	"github.com/paulmach/osm"
)

const (
	DefaultRadius        = 1000
	DefaultServerTimeout = 25 * time.Second
	UnnamedLabel         = "Café sem nome"
)

// Key identifies a result across fetches.
type Key struct {
	Type osm.Type
	ID   int64
}

func (k Key) String() string {
	return fmt.Sprintf("%s/%d", k.Type, k.ID)
}

type PointOfInterest struct {
	Key      Key
	Position tiles.LatLng
	Name     string
	// Distance from the search center in meters.
	Distance float64
}

// Label is the popup text for the marker.
func (p PointOfInterest) Label() string {
	if p.Name != "" {
		return p.Name
	}
	return UnnamedLabel
}

// FromElements keeps the elements that carry both latitude and longitude, nearest to
// center first. It also returns how many elements were skipped.
func FromElements(center tiles.LatLng, elements []overpass.Element) ([]PointOfInterest, int) {
	pois := make([]PointOfInterest, 0, len(elements))
	for _, e := range elements {
		if !e.HasPosition() {
			continue
		}
		pos := tiles.LatLng{Lat: *e.Lat, Lng: *e.Lon}
		pois = append(pois, PointOfInterest{
			Key:      Key{Type: e.Type, ID: e.ID},
			Position: pos,
			Name:     e.Name(),
			Distance: geo.Distance(center.Point(), pos.Point()),
		})
	}
	slices.SortStableFunc(pois, func(a, b PointOfInterest) int {
		switch {
		case a.Distance < b.Distance:
			return -1
		case a.Distance > b.Distance:
			return 1
		}
		return 0
	})
	return pois, len(elements) - len(pois)
}

// Runner executes an Overpass query.
type Runner interface {
	Run(ctx context.Context, query fmt.Stringer) ([]overpass.Element, error)
}

// Finder looks up cafés around a point.
type Finder struct {
	runner        Runner
	radius        float64
	serverTimeout time.Duration
}

func NewFinder(runner Runner, radius float64, serverTimeout time.Duration) *Finder {
	if radius <= 0 {
		radius = DefaultRadius
	}
	if serverTimeout <= 0 {
		serverTimeout = DefaultServerTimeout
	}
	return &Finder{runner: runner, radius: radius, serverTimeout: serverTimeout}
}

func (f *Finder) FetchCafes(ctx context.Context, center tiles.LatLng) ([]PointOfInterest, int, error) {
	elements, err := f.runner.Run(ctx, overpass.CafeQuery(center, f.radius, f.serverTimeout))
	if err != nil {
		return nil, 0, fmt.Errorf("fetch cafes: %w", err)
	}
	pois, skipped := FromElements(center, elements)
	return pois, skipped, nil
}
