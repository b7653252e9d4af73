package mapview

import (
	"image"
	"image/color"

	"gioui.org/unit"
	"github.com/olablt/findercafe/tiles"
)

// MarkerID is the handle returned by AddMarker. The zero value is never issued.
type MarkerID uint64

// Icon is drawn for a marker. It is passed with every marker; there is no shared default.
type Icon struct {
	Fill   color.NRGBA
	Stroke color.NRGBA
	Radius unit.Dp
}

// DefaultIcon is the pin used for the user's position.
func DefaultIcon() Icon {
	return Icon{
		Fill:   color.NRGBA{R: 0x2a, G: 0x81, B: 0xcb, A: 0xff},
		Stroke: color.NRGBA{R: 0xff, G: 0xff, B: 0xff, A: 0xff},
		Radius: 9,
	}
}

// CafeIcon is the pin used for cafés.
func CafeIcon() Icon {
	return Icon{
		Fill:   color.NRGBA{R: 0x7c, G: 0x2d, B: 0x12, A: 0xff},
		Stroke: color.NRGBA{R: 0xff, G: 0xed, B: 0xd5, A: 0xff},
		Radius: 7,
	}
}

type Marker struct {
	Position tiles.LatLng
	Icon     Icon
	Popup    string
}

// AddMarker places m on the map and returns its handle.
func (mv *MapView) AddMarker(m Marker) MarkerID {
	mv.mu.Lock()
	mv.nextID++
	id := mv.nextID
	mv.markers[id] = m
	mv.order = append(mv.order, id)
	mv.mu.Unlock()

	mv.requestRefresh()
	return id
}

// RemoveMarker deletes the marker and closes its popup. Unknown ids are ignored.
func (mv *MapView) RemoveMarker(id MarkerID) {
	mv.mu.Lock()
	if _, ok := mv.markers[id]; !ok {
		mv.mu.Unlock()
		return
	}
	delete(mv.markers, id)
	for i, o := range mv.order {
		if o == id {
			mv.order = append(mv.order[:i], mv.order[i+1:]...)
			break
		}
	}
	if mv.popup == id {
		mv.closePopup()
	}
	mv.mu.Unlock()

	mv.requestRefresh()
}

// OpenPopup shows the popup of id and closes any other one.
func (mv *MapView) OpenPopup(id MarkerID) {
	mv.mu.Lock()
	if m, ok := mv.markers[id]; ok && m.Popup != "" {
		mv.popup = id
	}
	mv.mu.Unlock()

	mv.requestRefresh()
}

func (mv *MapView) ClosePopup() {
	mv.mu.Lock()
	mv.closePopup()
	mv.mu.Unlock()

	mv.requestRefresh()
}

// closePopup hides the open popup. Callers hold mv.mu.
func (mv *MapView) closePopup() {
	mv.popup = 0
}

// OpenedPopup returns the marker whose popup is shown.
func (mv *MapView) OpenedPopup() (MarkerID, bool) {
	mv.mu.RLock()
	defer mv.mu.RUnlock()
	return mv.popup, mv.popup != 0
}

func (mv *MapView) Marker(id MarkerID) (Marker, bool) {
	mv.mu.RLock()
	defer mv.mu.RUnlock()
	m, ok := mv.markers[id]
	return m, ok
}

// Markers returns the markers in drawing order.
func (mv *MapView) Markers() []Marker {
	mv.mu.RLock()
	defer mv.mu.RUnlock()
	out := make([]Marker, 0, len(mv.order))
	for _, id := range mv.order {
		out = append(out, mv.markers[id])
	}
	return out
}

// markerAt returns the top-most marker within its radius plus slop of p.
// radius converts an icon radius to pixels. Callers hold mv.mu.
func (mv *MapView) markerAt(p image.Point, radius func(Icon) int) (MarkerID, bool) {
	for i := len(mv.order) - 1; i >= 0; i-- {
		id := mv.order[i]
		m := mv.markers[id]
		c := tiles.Project(mv.center, mv.zoom, mv.size, m.Position)
		r := radius(m.Icon)
		d := p.Sub(c)
		if d.X*d.X+d.Y*d.Y <= r*r {
			return id, true
		}
	}
	return 0, false
}
