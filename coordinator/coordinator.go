// Package coordinator sequences locating the user, creating the map and
// overlaying the cafés found around them.
package coordinator

import (
	"context"
	"sync"
	"time"

	"gioui.org/layout"
	"github.com/olablt/findercafe/cafes"
	"github.com/olablt/findercafe/geolocate"
	"github.com/olablt/findercafe/mapview"
	"github.com/olablt/findercafe/tiles"
	"go.uber.org/zap"
)

type State int

const (
	Uninitialized State = iota
	AwaitingLocation
	LocationKnown
	MapReady
	MapWithPOIs
	LocationFailed
)

func (s State) String() string {
	switch s {
	case Uninitialized:
		return "uninitialized"
	case AwaitingLocation:
		return "awaiting_location"
	case LocationKnown:
		return "location_known"
	case MapReady:
		return "map_ready"
	case MapWithPOIs:
		return "map_with_pois"
	case LocationFailed:
		return "location_failed"
	}
	return "unknown"
}

// Surface is the map widget the coordinator drives. *mapview.MapView implements it.
type Surface interface {
	SetView(center tiles.LatLng, zoom int)
	AddTileLayer(layer tiles.Layer)
	AddMarker(m mapview.Marker) mapview.MarkerID
	RemoveMarker(id mapview.MarkerID)
	OpenPopup(id mapview.MarkerID)
	InvalidateSize()
	Layout(gtx layout.Context) layout.Dimensions
}

// CafeFinder fetches the points of interest around a position.
type CafeFinder interface {
	FetchCafes(ctx context.Context, center tiles.LatLng) ([]cafes.PointOfInterest, int, error)
}

type Options struct {
	Zoom            int
	Layer           tiles.Layer
	UserIcon        mapview.Icon
	CafeIcon        mapview.Icon
	UserLabel       string
	InvalidateDelay time.Duration
	LocateTimeout   time.Duration // zero waits until Close
}

func DefaultOptions() Options {
	return Options{
		Zoom:            14,
		Layer:           tiles.OSMLayer(),
		UserIcon:        mapview.DefaultIcon(),
		CafeIcon:        mapview.CafeIcon(),
		UserLabel:       "☕ Você está aqui!",
		InvalidateDelay: 300 * time.Millisecond,
	}
}

// AfterFunc runs f once after d and returns a func that cancels it.
type AfterFunc func(d time.Duration, f func()) (stop func() bool)

func timeAfterFunc(d time.Duration, f func()) func() bool {
	return time.AfterFunc(d, f).Stop
}

type Coordinator struct {
	log        *zap.Logger
	locator    geolocate.Locator
	finder     CafeFinder
	newSurface func() Surface
	opts       Options
	afterFunc  AfterFunc
	onChange   func()

	ctx    context.Context
	cancel context.CancelFunc

	mu             sync.Mutex
	state          State
	closed         bool
	coords         tiles.LatLng
	locateErr      error
	surface        Surface
	userMarker     mapview.MarkerID
	pois           []cafes.PointOfInterest
	owned          []mapview.MarkerID
	fetchGen       uint64
	fetching       bool
	stopCorrection func() bool
}

type Option func(*Coordinator)

// WithAfterFunc replaces the timer used for the deferred viewport correction.
func WithAfterFunc(f AfterFunc) Option {
	return func(c *Coordinator) { c.afterFunc = f }
}

// WithOnChange registers a function called after every visible state change.
func WithOnChange(f func()) Option {
	return func(c *Coordinator) { c.onChange = f }
}

func New(log *zap.Logger, locator geolocate.Locator, finder CafeFinder, newSurface func() Surface, opts Options, options ...Option) *Coordinator {
	c := &Coordinator{
		log:        log.Named("coordinator"),
		locator:    locator,
		finder:     finder,
		newSurface: newSurface,
		opts:       opts,
		afterFunc:  timeAfterFunc,
	}
	for _, o := range options {
		o(c)
	}
	return c
}

// Start asks the locator for the current position, once. Work started here is
// cancelled by Close or by ctx.
func (c *Coordinator) Start(ctx context.Context) {
	c.mu.Lock()
	if c.closed || c.state != Uninitialized {
		c.mu.Unlock()
		return
	}
	c.ctx, c.cancel = context.WithCancel(ctx)
	c.state = AwaitingLocation
	c.mu.Unlock()

	c.log.Info("locating", zap.String("provider", c.locator.Name()))
	c.changed()
	go c.locate(c.ctx)
}

func (c *Coordinator) locate(ctx context.Context) {
	lctx := ctx
	if c.opts.LocateTimeout > 0 {
		var cancel context.CancelFunc
		lctx, cancel = context.WithTimeout(ctx, c.opts.LocateTimeout)
		defer cancel()
	}
	pos, err := c.locator.Locate(lctx)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		c.locationFailed(err)
		return
	}
	c.SetLocation(pos)
}

func (c *Coordinator) locationFailed(err error) {
	c.mu.Lock()
	if c.closed || c.state != AwaitingLocation {
		c.mu.Unlock()
		return
	}
	c.state = LocationFailed
	c.locateErr = err
	c.mu.Unlock()

	c.log.Error("locate failed", zap.String("provider", c.locator.Name()), zap.Error(err))
	c.changed()
}

// SetLocation publishes the user's position. Only the first position reported
// while awaiting a location initializes the map; later ones are ignored.
func (c *Coordinator) SetLocation(pos tiles.LatLng) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	if c.state != AwaitingLocation {
		state := c.state
		c.mu.Unlock()
		c.log.Debug("location ignored", zap.Stringer("state", state))
		return
	}
	c.coords = pos
	c.state = LocationKnown
	c.initMap()
	gen := c.beginFetch()
	ctx := c.ctx
	c.mu.Unlock()

	c.log.Info("map ready", zap.Float64("lat", pos.Lat), zap.Float64("lon", pos.Lng), zap.Int("zoom", c.opts.Zoom))
	c.changed()
	go c.fetch(ctx, gen, pos)
}

// initMap builds the surface. Callers hold c.mu.
func (c *Coordinator) initMap() {
	s := c.newSurface()
	s.SetView(c.coords, c.opts.Zoom)
	s.AddTileLayer(c.opts.Layer)

	c.userMarker = s.AddMarker(mapview.Marker{
		Position: c.coords,
		Icon:     c.opts.UserIcon,
		Popup:    c.opts.UserLabel,
	})
	s.OpenPopup(c.userMarker)

	c.surface = s
	c.state = MapReady
	c.stopCorrection = c.afterFunc(c.opts.InvalidateDelay, func() {
		c.correctViewport("deferred")
	})
}

// HandleResize re-measures the map after the window changed size. It does nothing
// before the map exists or after Close.
func (c *Coordinator) HandleResize() {
	c.correctViewport("resize")
}

func (c *Coordinator) correctViewport(reason string) {
	c.mu.Lock()
	s := c.surface
	closed := c.closed
	c.mu.Unlock()
	if closed || s == nil {
		return
	}
	c.log.Debug("invalidate size", zap.String("reason", reason))
	s.InvalidateSize()
}

// Refresh fetches the cafés again for the known position. It reports whether a
// fetch was started.
func (c *Coordinator) Refresh() bool {
	c.mu.Lock()
	if c.closed || c.surface == nil {
		c.mu.Unlock()
		return false
	}
	gen := c.beginFetch()
	pos := c.coords
	ctx := c.ctx
	c.mu.Unlock()

	c.changed()
	go c.fetch(ctx, gen, pos)
	return true
}

// beginFetch supersedes any fetch in flight. Callers hold c.mu.
func (c *Coordinator) beginFetch() uint64 {
	c.fetchGen++
	c.fetching = true
	return c.fetchGen
}

func (c *Coordinator) fetch(ctx context.Context, gen uint64, pos tiles.LatLng) {
	pois, skipped, err := c.finder.FetchCafes(ctx, pos)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		c.log.Error("fetch cafes failed", zap.Error(err))
		c.mu.Lock()
		if gen == c.fetchGen {
			c.fetching = false
		}
		c.mu.Unlock()
		c.changed()
		return
	}
	c.log.Debug("cafes fetched", zap.Int("valid", len(pois)), zap.Int("skipped", skipped))
	c.render(gen, pois)
}

// render replaces the café markers of the previous fetch with one marker per poi.
func (c *Coordinator) render(gen uint64, pois []cafes.PointOfInterest) {
	c.mu.Lock()
	if c.closed || gen != c.fetchGen {
		c.mu.Unlock()
		c.log.Debug("stale cafes dropped", zap.Uint64("generation", gen))
		return
	}

	for _, id := range c.owned {
		c.surface.RemoveMarker(id)
	}
	owned := make([]mapview.MarkerID, 0, len(pois))
	for _, p := range pois {
		owned = append(owned, c.surface.AddMarker(mapview.Marker{
			Position: p.Position,
			Icon:     c.opts.CafeIcon,
			Popup:    p.Label(),
		}))
	}
	c.owned = owned
	c.pois = pois
	c.fetching = false
	if len(owned) > 0 {
		c.state = MapWithPOIs
	}
	c.mu.Unlock()

	c.log.Info("cafes rendered", zap.Int("markers", len(owned)))
	c.changed()
}

// Close cancels pending work. Results arriving afterwards are dropped and
// HandleResize becomes a no-op.
func (c *Coordinator) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	if c.stopCorrection != nil {
		c.stopCorrection()
	}
	cancel := c.cancel
	c.mu.Unlock()

	if cancel != nil {
		cancel()
	}
}

func (c *Coordinator) changed() {
	if c.onChange != nil {
		c.onChange()
	}
}

func (c *Coordinator) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Coordinates returns the user's position once it is known.
func (c *Coordinator) Coordinates() (tiles.LatLng, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.coords, c.surface != nil
}

// Err returns the locate error when the state is LocationFailed.
func (c *Coordinator) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.locateErr
}

// Surface returns the map, or nil before the location is known.
func (c *Coordinator) Surface() Surface {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.surface
}

// POIs returns the cafés of the last successful fetch, nearest first.
func (c *Coordinator) POIs() []cafes.PointOfInterest {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]cafes.PointOfInterest, len(c.pois))
	copy(out, c.pois)
	return out
}

// Fetching reports whether a café fetch is in flight.
func (c *Coordinator) Fetching() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.fetching
}
