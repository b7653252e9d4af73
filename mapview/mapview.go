package mapview

import (
	"image"
	"image/color"
	"math"
	"sync"

	"gioui.org/f32"
	"gioui.org/font/gofont"
	"gioui.org/io/event"
	"gioui.org/io/pointer"
	"gioui.org/layout"
	"gioui.org/op"
	"gioui.org/op/clip"
	"gioui.org/op/paint"
	"gioui.org/text"
	"gioui.org/unit"
	"gioui.org/widget/material"
	"github.com/olablt/findercafe/tiles"
	"go.uber.org/zap"
)

const clickSlop = 4 // px a press may move and still count as a click

var (
	backgroundColor = color.NRGBA{R: 0xf3, G: 0xec, B: 0xe4, A: 0xff}
	popupColor      = color.NRGBA{R: 0xff, G: 0xff, B: 0xff, A: 0xf0}
	attributionBg   = color.NRGBA{R: 0xff, G: 0xff, B: 0xff, A: 0xb0}
)

// TileSource builds the provider that serves a layer's tiles.
type TileSource func(layer tiles.Layer) tiles.TileProvider

type MapView struct {
	mu sync.RWMutex

	tileManager *tiles.TileManager
	tileSource  TileSource
	center      tiles.LatLng
	zoom        int
	minZoom     int
	maxZoom     int

	markers map[MarkerID]Marker
	order   []MarkerID
	nextID  MarkerID
	popup   MarkerID

	size         image.Point
	visibleTiles []tiles.Tile
	theme        *material.Theme
	log          *zap.Logger

	pressPos f32.Point
	lastDrag f32.Point
	dragging bool
	refresh  chan<- struct{}
}

type Option func(*MapView)

func WithTileSource(src TileSource) Option {
	return func(mv *MapView) { mv.tileSource = src }
}

func WithTheme(th *material.Theme) Option {
	return func(mv *MapView) { mv.theme = th }
}

func WithLogger(log *zap.Logger) Option {
	return func(mv *MapView) { mv.log = log }
}

func WithZoomRange(minZoom, maxZoom int) Option {
	return func(mv *MapView) {
		mv.minZoom = minZoom
		mv.maxZoom = maxZoom
	}
}

// New returns an empty map. A value is sent on refresh, without blocking, whenever
// the map needs to be drawn again.
func New(refresh chan<- struct{}, opts ...Option) *MapView {
	mv := &MapView{
		zoom:    2,
		minZoom: 2,
		maxZoom: 19,
		markers: make(map[MarkerID]Marker),
		refresh: refresh,
		log:     zap.NewNop(),
	}
	for _, opt := range opts {
		opt(mv)
	}
	mv.log = mv.log.Named("mapview")
	return mv
}

// SetView centers the map on center at zoom.
func (mv *MapView) SetView(center tiles.LatLng, zoom int) {
	mv.mu.Lock()
	mv.center = center
	mv.zoom = mv.clampZoom(zoom)
	mv.updateVisibleTiles()
	mv.mu.Unlock()

	mv.requestRefresh()
}

func (mv *MapView) Center() tiles.LatLng {
	mv.mu.RLock()
	defer mv.mu.RUnlock()
	return mv.center
}

func (mv *MapView) Zoom() int {
	mv.mu.RLock()
	defer mv.mu.RUnlock()
	return mv.zoom
}

// AddTileLayer sets the background layer. Only the first layer is kept.
func (mv *MapView) AddTileLayer(layer tiles.Layer) {
	mv.mu.Lock()
	if mv.tileManager != nil {
		mv.mu.Unlock()
		mv.log.Warn("tile layer already set", zap.String("template", layer.URLTemplate))
		return
	}
	var provider tiles.TileProvider = tiles.NewLocalTileProvider()
	if mv.tileSource != nil {
		provider = mv.tileSource(layer)
	}
	mv.tileManager = tiles.NewTileManager(layer, provider)
	if layer.MaxZoom > 0 {
		mv.maxZoom = min(mv.maxZoom, layer.MaxZoom)
		mv.zoom = mv.clampZoom(mv.zoom)
	}
	mv.mu.Unlock()

	mv.requestRefresh()
}

// Layer returns the background layer, if one was added.
func (mv *MapView) Layer() (tiles.Layer, bool) {
	mv.mu.RLock()
	defer mv.mu.RUnlock()
	if mv.tileManager == nil {
		return tiles.Layer{}, false
	}
	return mv.tileManager.Layer(), true
}

// InvalidateSize forgets the measured size so the next frame measures the
// container again and recomputes the visible tiles.
func (mv *MapView) InvalidateSize() {
	mv.mu.Lock()
	mv.size = image.Point{}
	mv.visibleTiles = nil
	mv.mu.Unlock()

	mv.requestRefresh()
}

// Size is the size measured by the last frame.
func (mv *MapView) Size() image.Point {
	mv.mu.RLock()
	defer mv.mu.RUnlock()
	return mv.size
}

func (mv *MapView) requestRefresh() {
	if mv.refresh == nil {
		return
	}
	select {
	case mv.refresh <- struct{}{}:
	default:
	}
}

func (mv *MapView) Layout(gtx layout.Context) layout.Dimensions {
	mv.mu.Lock()
	defer mv.mu.Unlock()

	if mv.theme == nil {
		mv.theme = material.NewTheme()
		mv.theme.Shaper = text.NewShaper(text.WithCollection(gofont.Collection()))
	}

	// Measure before handling input so pointer positions map onto this frame's view.
	if mv.size != gtx.Constraints.Max {
		mv.size = gtx.Constraints.Max
		mv.updateVisibleTiles()
	}

	mv.handleEvents(gtx)

	// Confine the area of interest to a gtx Max
	defer clip.Rect{Max: mv.size}.Push(gtx.Ops).Pop()
	event.Op(gtx.Ops, mv)
	paint.Fill(gtx.Ops, backgroundColor)

	mv.drawTiles(gtx)
	for _, id := range mv.order {
		mv.drawMarker(gtx, mv.markers[id])
	}
	if m, ok := mv.markers[mv.popup]; ok {
		mv.drawPopup(gtx, m)
	}
	if mv.tileManager != nil {
		mv.drawAttribution(gtx, mv.tileManager.Layer().Attribution)
	}

	return layout.Dimensions{Size: mv.size}
}

func (mv *MapView) handleEvents(gtx layout.Context) {
	for {
		ev, ok := gtx.Event(pointer.Filter{
			Target:  mv,
			Kinds:   pointer.Scroll | pointer.Drag | pointer.Press | pointer.Release | pointer.Cancel,
			ScrollY: pointer.ScrollRange{Min: -10, Max: 10},
		})
		if !ok {
			break
		}
		x, ok := ev.(pointer.Event)
		if !ok {
			continue
		}
		switch x.Kind {
		case pointer.Press:
			mv.pressPos = x.Position
			mv.lastDrag = x.Position
			mv.dragging = true
		case pointer.Drag:
			if !mv.dragging {
				continue
			}
			delta := x.Position.Sub(mv.lastDrag)
			mv.lastDrag = x.Position
			mv.pan(float64(delta.X), float64(delta.Y))
		case pointer.Release:
			if mv.dragging {
				moved := x.Position.Sub(mv.pressPos)
				if math.Hypot(float64(moved.X), float64(moved.Y)) <= clickSlop {
					mv.click(gtx, x.Position.Round())
				}
			}
			mv.dragging = false
		case pointer.Cancel:
			mv.dragging = false
		case pointer.Scroll:
			switch {
			case x.Scroll.Y < 0:
				mv.zoomAround(mv.zoom+1, x.Position)
			case x.Scroll.Y > 0:
				mv.zoomAround(mv.zoom-1, x.Position)
			}
		}
	}
}

func (mv *MapView) click(gtx layout.Context, p image.Point) {
	id, ok := mv.markerAt(p, func(icon Icon) int {
		return gtx.Dp(icon.Radius) + clickSlop
	})
	if ok && mv.markers[id].Popup != "" {
		mv.popup = id
		return
	}
	mv.closePopup()
}

// pan moves the map so the content follows the pointer by dx, dy pixels.
func (mv *MapView) pan(dx, dy float64) {
	wx, wy := tiles.CalculateWorldCoordinates(mv.center, mv.zoom)
	c := tiles.WorldToLatLng(wx-dx, wy-dy, mv.zoom)
	c.Lng = math.Mod(c.Lng+540, 360) - 180
	mv.center = c
	mv.updateVisibleTiles()
}

// zoomAround changes zoom keeping the point under the pointer fixed on screen.
func (mv *MapView) zoomAround(newZoom int, pos f32.Point) {
	oldZoom := mv.zoom
	newZoom = mv.clampZoom(newZoom)
	if newZoom == oldZoom {
		return
	}

	// Get mouse position relative to screen center
	offX := float64(pos.X) - float64(mv.size.X)/2
	offY := float64(pos.Y) - float64(mv.size.Y)/2

	worldX, worldY := tiles.CalculateWorldCoordinates(mv.center, oldZoom)
	factor := math.Pow(2, float64(newZoom-oldZoom))
	mouseX := (worldX + offX) * factor
	mouseY := (worldY + offY) * factor

	mv.zoom = newZoom
	mv.center = tiles.WorldToLatLng(mouseX-offX, mouseY-offY, newZoom)
	mv.updateVisibleTiles()
}

func (mv *MapView) clampZoom(z int) int {
	return max(mv.minZoom, min(z, mv.maxZoom))
}

func (mv *MapView) updateVisibleTiles() {
	mv.visibleTiles = tiles.CalculateVisibleTiles(mv.center, mv.zoom, mv.size)
}

func (mv *MapView) drawTiles(gtx layout.Context) {
	if mv.tileManager == nil {
		return
	}
	for _, tile := range mv.visibleTiles {
		imageOp, err := mv.tileManager.GetTile(tile)
		if err != nil {
			mv.log.Debug("tile unavailable", zap.Stringer("tile", tile), zap.Error(err))
			continue
		}

		corner := tiles.Project(mv.center, mv.zoom, mv.size, tiles.TileToLatLng(tile))
		transform := op.Offset(corner).Push(gtx.Ops)
		area := clip.Rect{Max: image.Pt(tiles.TileSize, tiles.TileSize)}.Push(gtx.Ops)
		imageOp.Add(gtx.Ops)
		paint.PaintOp{}.Add(gtx.Ops)
		area.Pop()
		transform.Pop()
	}
}

func (mv *MapView) drawMarker(gtx layout.Context, m Marker) {
	p := tiles.Project(mv.center, mv.zoom, mv.size, m.Position)
	r := gtx.Dp(m.Icon.Radius)
	ring := r + gtx.Dp(2)
	if p.X < -ring || p.Y < -ring || p.X > mv.size.X+ring || p.Y > mv.size.Y+ring {
		return
	}
	outer := image.Rect(p.X-ring, p.Y-ring, p.X+ring, p.Y+ring)
	paint.FillShape(gtx.Ops, m.Icon.Stroke, clip.Ellipse(outer).Op(gtx.Ops))
	inner := image.Rect(p.X-r, p.Y-r, p.X+r, p.Y+r)
	paint.FillShape(gtx.Ops, m.Icon.Fill, clip.Ellipse(inner).Op(gtx.Ops))
}

func (mv *MapView) drawPopup(gtx layout.Context, m Marker) {
	p := tiles.Project(mv.center, mv.zoom, mv.size, m.Position)
	lift := gtx.Dp(m.Icon.Radius) + gtx.Dp(8)
	mv.drawLabel(gtx, m.Popup, popupColor, gtx.Dp(220), func(size image.Point) image.Point {
		return image.Pt(p.X-size.X/2, p.Y-lift-size.Y)
	})
}

func (mv *MapView) drawAttribution(gtx layout.Context, attribution string) {
	if attribution == "" {
		return
	}
	mv.drawLabel(gtx, attribution, attributionBg, mv.size.X, func(size image.Point) image.Point {
		return mv.size.Sub(size)
	})
}

// drawLabel lays out text in a rounded box whose top-left corner is chosen by place
// once the box size is known.
func (mv *MapView) drawLabel(gtx layout.Context, txt string, bg color.NRGBA, maxWidth int, place func(image.Point) image.Point) {
	macro := op.Record(gtx.Ops)
	lgtx := gtx
	lgtx.Constraints = layout.Constraints{Max: image.Pt(maxWidth, mv.size.Y)}
	dims := layout.UniformInset(unit.Dp(6)).Layout(lgtx, func(gtx layout.Context) layout.Dimensions {
		return material.Body2(mv.theme, txt).Layout(gtx)
	})
	call := macro.Stop()

	defer op.Offset(place(dims.Size)).Push(gtx.Ops).Pop()
	rect := image.Rectangle{Max: dims.Size}
	paint.FillShape(gtx.Ops, bg, clip.UniformRRect(rect, gtx.Dp(4)).Op(gtx.Ops))
	call.Add(gtx.Ops)
}
