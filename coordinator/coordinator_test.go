package coordinator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"gioui.org/layout"
	"github.com/olablt/findercafe/cafes"
	"github.com/olablt/findercafe/mapview"
	"github.com/olablt/findercafe/overpass"
	"github.com/olablt/findercafe/tiles"
	"github.com/paulmach/osm"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest"
	"go.uber.org/zap/zaptest/observer"
)

const waitFor = time.Second

type fakeSurface struct {
	mu          sync.Mutex
	center      tiles.LatLng
	zoom        int
	layers      []tiles.Layer
	markers     map[mapview.MarkerID]mapview.Marker
	nextID      mapview.MarkerID
	opened      []mapview.MarkerID
	removed     int
	invalidated int
}

func newFakeSurface() *fakeSurface {
	return &fakeSurface{markers: make(map[mapview.MarkerID]mapview.Marker)}
}

func (s *fakeSurface) SetView(center tiles.LatLng, zoom int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.center, s.zoom = center, zoom
}

func (s *fakeSurface) AddTileLayer(layer tiles.Layer) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.layers = append(s.layers, layer)
}

func (s *fakeSurface) AddMarker(m mapview.Marker) mapview.MarkerID {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	s.markers[s.nextID] = m
	return s.nextID
}

func (s *fakeSurface) RemoveMarker(id mapview.MarkerID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.markers, id)
	s.removed++
}

func (s *fakeSurface) OpenPopup(id mapview.MarkerID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.opened = append(s.opened, id)
}

func (s *fakeSurface) InvalidateSize() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.invalidated++
}

func (s *fakeSurface) Layout(gtx layout.Context) layout.Dimensions {
	return layout.Dimensions{Size: gtx.Constraints.Max}
}

func (s *fakeSurface) popups() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []string
	for id := mapview.MarkerID(1); id <= s.nextID; id++ {
		if m, ok := s.markers[id]; ok {
			out = append(out, m.Popup)
		}
	}
	return out
}

func (s *fakeSurface) markerCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.markers)
}

func (s *fakeSurface) invalidations() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.invalidated
}

type fakeLocator struct {
	pos  chan tiles.LatLng
	err  error
	hang bool
}

func (l *fakeLocator) Name() string { return "fake" }

func (l *fakeLocator) Locate(ctx context.Context) (tiles.LatLng, error) {
	if l.err != nil {
		return tiles.LatLng{}, l.err
	}
	if l.hang {
		<-ctx.Done()
		return tiles.LatLng{}, ctx.Err()
	}
	select {
	case p := <-l.pos:
		return p, nil
	case <-ctx.Done():
		return tiles.LatLng{}, ctx.Err()
	}
}

func locatedAt(pos tiles.LatLng) *fakeLocator {
	l := &fakeLocator{pos: make(chan tiles.LatLng, 1)}
	l.pos <- pos
	return l
}

type fakeRunner struct {
	mu      sync.Mutex
	calls   int
	results [][]overpass.Element
	err     error
	release chan struct{}
}

func (r *fakeRunner) Run(ctx context.Context, query fmt.Stringer) ([]overpass.Element, error) {
	if r.release != nil {
		<-r.release
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls++
	if r.err != nil {
		return nil, r.err
	}
	if len(r.results) == 0 {
		return nil, nil
	}
	res := r.results[0]
	if len(r.results) > 1 {
		r.results = r.results[1:]
	}
	return res, nil
}

func (r *fakeRunner) callCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.calls
}

func ptr(v float64) *float64 { return &v }

func cafe(id int64, lat, lon *float64, name string) overpass.Element {
	e := overpass.Element{Type: osm.TypeNode, ID: id, Lat: lat, Lon: lon}
	if name != "" {
		e.Tags = osm.Tags{{Key: "name", Value: name}}
	}
	return e
}

type harness struct {
	c        *Coordinator
	surface  *fakeSurface
	created  int
	runner   *fakeRunner
	deferred []func()
	delays   []time.Duration
	stopped  bool
	mu       sync.Mutex
}

func newHarness(t *testing.T, locator *fakeLocator, runner *fakeRunner, log *zap.Logger) *harness {
	t.Helper()
	if log == nil {
		log = zaptest.NewLogger(t)
	}
	h := &harness{runner: runner}
	factory := func() Surface {
		h.mu.Lock()
		defer h.mu.Unlock()
		h.created++
		h.surface = newFakeSurface()
		return h.surface
	}
	after := func(d time.Duration, f func()) func() bool {
		h.mu.Lock()
		defer h.mu.Unlock()
		h.delays = append(h.delays, d)
		h.deferred = append(h.deferred, f)
		return func() bool {
			h.mu.Lock()
			defer h.mu.Unlock()
			h.stopped = true
			return true
		}
	}
	finder := cafes.NewFinder(runner, 1000, 25*time.Second)
	h.c = New(log, locator, finder, factory, DefaultOptions(), WithAfterFunc(after))
	t.Cleanup(h.c.Close)
	return h
}

func (h *harness) createdCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.created
}

func TestLocationNeverResolves(t *testing.T) {
	h := newHarness(t, &fakeLocator{hang: true}, &fakeRunner{}, nil)
	h.c.Start(context.Background())

	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, AwaitingLocation, h.c.State())
	assert.Nil(t, h.c.Surface())
	assert.Zero(t, h.createdCount())

	assert.NotPanics(t, h.c.HandleResize)
	assert.False(t, h.c.Refresh())
	h.c.Close()
	assert.Equal(t, AwaitingLocation, h.c.State())
}

func TestMapInitializedAtLocation(t *testing.T) {
	h := newHarness(t, locatedAt(tiles.LatLng{Lat: 10, Lng: 20}), &fakeRunner{}, nil)
	h.c.Start(context.Background())

	require.Eventually(t, func() bool { return h.runner.callCount() == 1 }, waitFor, time.Millisecond)
	require.Eventually(t, func() bool { return !h.c.Fetching() }, waitFor, time.Millisecond)

	assert.Equal(t, MapReady, h.c.State())
	assert.Equal(t, 1, h.createdCount())
	s := h.surface
	assert.Equal(t, tiles.LatLng{Lat: 10, Lng: 20}, s.center)
	assert.Equal(t, 14, s.zoom)
	require.Len(t, s.layers, 1)
	assert.Equal(t, tiles.OSMURLTemplate, s.layers[0].URLTemplate)

	require.Equal(t, 1, s.markerCount())
	user := s.markers[1]
	assert.Equal(t, tiles.LatLng{Lat: 10, Lng: 20}, user.Position)
	assert.Equal(t, "☕ Você está aqui!", user.Popup)
	assert.Equal(t, mapview.DefaultIcon(), user.Icon)
	assert.Equal(t, []mapview.MarkerID{1}, s.opened)

	pos, ok := h.c.Coordinates()
	assert.True(t, ok)
	assert.Equal(t, tiles.LatLng{Lat: 10, Lng: 20}, pos)
}

func TestMarkersForValidResults(t *testing.T) {
	runner := &fakeRunner{results: [][]overpass.Element{{
		cafe(1, ptr(10.001), ptr(20.001), "Café X"),
		cafe(2, ptr(10.002), ptr(20.002), ""),
		cafe(3, nil, ptr(20.003), "no latitude"),
		cafe(4, ptr(10.004), nil, "no longitude"),
		cafe(5, ptr(10.005), ptr(20.005), "Café Z"),
	}}}
	h := newHarness(t, locatedAt(tiles.LatLng{Lat: 10, Lng: 20}), runner, nil)
	h.c.Start(context.Background())

	require.Eventually(t, func() bool { return h.c.State() == MapWithPOIs }, waitFor, time.Millisecond)

	// user marker plus the three results with both coordinates
	assert.Equal(t, 4, h.surface.markerCount())
	assert.Equal(t, []string{"☕ Você está aqui!", "Café X", "Café sem nome", "Café Z"}, h.surface.popups())
	for id, m := range h.surface.markers {
		if id != 1 {
			assert.Equal(t, mapview.CafeIcon(), m.Icon)
		}
	}
	assert.Len(t, h.c.POIs(), 3)
}

func TestViewportCorrection(t *testing.T) {
	h := newHarness(t, locatedAt(tiles.LatLng{Lat: 10, Lng: 20}), &fakeRunner{}, nil)

	h.c.HandleResize()
	h.c.Start(context.Background())
	require.Eventually(t, func() bool { return h.c.Surface() != nil }, waitFor, time.Millisecond)

	h.mu.Lock()
	require.Len(t, h.deferred, 1)
	assert.Equal(t, 300*time.Millisecond, h.delays[0])
	deferred := h.deferred[0]
	h.mu.Unlock()

	deferred()
	assert.Equal(t, 1, h.surface.invalidations())

	h.c.HandleResize()
	h.c.HandleResize()
	assert.Equal(t, 3, h.surface.invalidations())

	h.c.Close()
	h.mu.Lock()
	assert.True(t, h.stopped, "deferred correction is stopped on close")
	h.mu.Unlock()

	assert.NotPanics(t, h.c.HandleResize)
	assert.NotPanics(t, deferred)
	assert.Equal(t, 3, h.surface.invalidations())
}

func TestFetchFailureIsLogged(t *testing.T) {
	core, logs := observer.New(zapcore.ErrorLevel)
	runner := &fakeRunner{err: errors.New("network unreachable")}
	h := newHarness(t, locatedAt(tiles.LatLng{Lat: 10, Lng: 20}), runner, zap.New(core))
	h.c.Start(context.Background())

	require.Eventually(t, func() bool {
		return logs.FilterMessage("fetch cafes failed").Len() == 1 && !h.c.Fetching()
	}, waitFor, time.Millisecond)

	assert.Equal(t, MapReady, h.c.State())
	assert.Equal(t, 1, h.surface.markerCount())
	assert.Empty(t, h.c.POIs())
}

func TestFetchFailureKeepsPreviousMarkers(t *testing.T) {
	runner := &fakeRunner{results: [][]overpass.Element{{cafe(1, ptr(10), ptr(20), "Café X")}}}
	h := newHarness(t, locatedAt(tiles.LatLng{Lat: 10, Lng: 20}), runner, nil)
	h.c.Start(context.Background())
	require.Eventually(t, func() bool { return h.c.State() == MapWithPOIs }, waitFor, time.Millisecond)

	runner.mu.Lock()
	runner.err = errors.New("gateway timeout")
	runner.mu.Unlock()

	require.True(t, h.c.Refresh())
	require.Eventually(t, func() bool { return runner.callCount() == 2 && !h.c.Fetching() }, waitFor, time.Millisecond)
	assert.Equal(t, 2, h.surface.markerCount())
	assert.Equal(t, MapWithPOIs, h.c.State())
}

func TestRefreshReplacesMarkers(t *testing.T) {
	runner := &fakeRunner{results: [][]overpass.Element{
		{cafe(1, ptr(10.001), ptr(20), "A"), cafe(2, ptr(10.002), ptr(20), "B")},
		{cafe(2, ptr(10.002), ptr(20), "B"), cafe(3, ptr(10.003), ptr(20), "C")},
	}}
	h := newHarness(t, locatedAt(tiles.LatLng{Lat: 10, Lng: 20}), runner, nil)
	h.c.Start(context.Background())
	require.Eventually(t, func() bool { return h.c.State() == MapWithPOIs }, waitFor, time.Millisecond)
	assert.Equal(t, 3, h.surface.markerCount())

	require.True(t, h.c.Refresh())
	require.Eventually(t, func() bool { return runner.callCount() == 2 && !h.c.Fetching() }, waitFor, time.Millisecond)

	assert.Equal(t, 3, h.surface.markerCount(), "markers are replaced, not accumulated")
	assert.Equal(t, 2, h.surface.removed)
	assert.ElementsMatch(t, []string{"☕ Você está aqui!", "B", "C"}, h.surface.popups())
}

func TestMarkerPerResultWithoutIDs(t *testing.T) {
	runner := &fakeRunner{results: [][]overpass.Element{{
		{Lat: ptr(10.001), Lon: ptr(20.001)},
		{Lat: ptr(10.002), Lon: ptr(20.002)},
		{Lat: ptr(10.003), Lon: ptr(20.003)},
	}}}
	h := newHarness(t, locatedAt(tiles.LatLng{Lat: 10, Lng: 20}), runner, nil)
	h.c.Start(context.Background())
	require.Eventually(t, func() bool { return h.c.State() == MapWithPOIs }, waitFor, time.Millisecond)

	assert.Len(t, h.c.POIs(), 3)
	assert.Equal(t, 4, h.surface.markerCount())
	assert.Equal(t, []string{"☕ Você está aqui!", "Café sem nome", "Café sem nome", "Café sem nome"}, h.surface.popups())
}

func TestEmptyRefreshClearsCafeMarkers(t *testing.T) {
	runner := &fakeRunner{results: [][]overpass.Element{
		{cafe(1, ptr(10.001), ptr(20), "A"), cafe(2, ptr(10.002), ptr(20), "B")},
		{},
	}}
	h := newHarness(t, locatedAt(tiles.LatLng{Lat: 10, Lng: 20}), runner, nil)
	h.c.Start(context.Background())
	require.Eventually(t, func() bool { return h.c.State() == MapWithPOIs }, waitFor, time.Millisecond)
	require.Equal(t, 3, h.surface.markerCount())

	require.True(t, h.c.Refresh())
	require.Eventually(t, func() bool { return runner.callCount() == 2 && !h.c.Fetching() }, waitFor, time.Millisecond)

	assert.Equal(t, []string{"☕ Você está aqui!"}, h.surface.popups())
	assert.Empty(t, h.c.POIs())
}

func TestSecondLocationIgnored(t *testing.T) {
	h := newHarness(t, locatedAt(tiles.LatLng{Lat: 10, Lng: 20}), &fakeRunner{}, nil)
	h.c.Start(context.Background())
	require.Eventually(t, func() bool { return h.c.Surface() != nil }, waitFor, time.Millisecond)

	h.c.SetLocation(tiles.LatLng{Lat: 30, Lng: 40})
	assert.Equal(t, 1, h.createdCount())
	pos, _ := h.c.Coordinates()
	assert.Equal(t, tiles.LatLng{Lat: 10, Lng: 20}, pos)
	assert.Equal(t, tiles.LatLng{Lat: 10, Lng: 20}, h.surface.center)
}

func TestSetLocationBeforeStartIgnored(t *testing.T) {
	h := newHarness(t, &fakeLocator{hang: true}, &fakeRunner{}, nil)
	h.c.SetLocation(tiles.LatLng{Lat: 10, Lng: 20})
	assert.Equal(t, Uninitialized, h.c.State())
	assert.Zero(t, h.createdCount())
}

func TestLocationFailure(t *testing.T) {
	core, logs := observer.New(zapcore.ErrorLevel)
	denied := errors.New("permission denied")
	h := newHarness(t, &fakeLocator{err: denied}, &fakeRunner{}, zap.New(core))
	h.c.Start(context.Background())

	require.Eventually(t, func() bool { return h.c.State() == LocationFailed }, waitFor, time.Millisecond)
	assert.ErrorIs(t, h.c.Err(), denied)
	assert.Nil(t, h.c.Surface())
	assert.Equal(t, 1, logs.FilterMessage("locate failed").Len())
}

func TestResultsAfterCloseDropped(t *testing.T) {
	runner := &fakeRunner{
		results: [][]overpass.Element{{cafe(1, ptr(10), ptr(20), "Café X")}},
		release: make(chan struct{}),
	}
	h := newHarness(t, locatedAt(tiles.LatLng{Lat: 10, Lng: 20}), runner, nil)
	h.c.Start(context.Background())
	require.Eventually(t, func() bool { return h.c.Surface() != nil }, waitFor, time.Millisecond)

	h.c.Close()
	close(runner.release)
	require.Eventually(t, func() bool { return runner.callCount() == 1 }, waitFor, time.Millisecond)

	// give the fetch goroutine a moment to try rendering
	time.Sleep(10 * time.Millisecond)
	assert.Equal(t, 1, h.surface.markerCount())
	assert.Equal(t, MapReady, h.c.State())
	assert.False(t, h.c.Refresh())
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "map_with_pois", MapWithPOIs.String())
	assert.Equal(t, "unknown", State(99).String())
}

func TestLocateTimeout(t *testing.T) {
	opts := DefaultOptions()
	opts.LocateTimeout = 10 * time.Millisecond
	factory := func() Surface { return newFakeSurface() }
	c := New(zaptest.NewLogger(t), &fakeLocator{hang: true}, cafes.NewFinder(&fakeRunner{}, 1000, 25*time.Second), factory, opts)
	t.Cleanup(c.Close)
	c.Start(context.Background())

	require.Eventually(t, func() bool { return c.State() == LocationFailed }, waitFor, time.Millisecond)
	assert.ErrorIs(t, c.Err(), context.DeadlineExceeded)
}
