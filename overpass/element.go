package overpass

import (
	"github.com/paulmach/osm"
)

// Response is the JSON body returned by the interpreter endpoint.
type Response struct {
	Version   float64   `json:"version"`
	Generator string    `json:"generator"`
	Remark    string    `json:"remark,omitempty"`
	Elements  []Element `json:"elements"`
}

// Element is one result. Nodes carry Lat/Lon, ways and relations carry Center
// when the query asked for "out center".
type Element struct {
	Type   osm.Type `json:"type"`
	ID     int64    `json:"id"`
	Lat    *float64 `json:"lat,omitempty"`
	Lon    *float64 `json:"lon,omitempty"`
	Center *Center  `json:"center,omitempty"`
	Tags   osm.Tags `json:"tags,omitempty"`
}

type Center struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// HasPosition reports whether the element carries both lat and lon.
func (e Element) HasPosition() bool {
	return e.Lat != nil && e.Lon != nil
}

// Name returns the name tag, or "" when absent.
func (e Element) Name() string {
	return e.Tags.Find("name")
}
