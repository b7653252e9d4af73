package overpass

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/olablt/findercafe/tiles"
)

// TagFilter selects elements whose tag Key equals Value.
type TagFilter struct {
	Key   string
	Value string
}

// AroundQuery selects nodes, ways and relations within Radius meters of Center
// matching any one of Filters.
type AroundQuery struct {
	Center  tiles.LatLng
	Radius  float64
	Timeout time.Duration
	Filters []TagFilter
}

// CafeQuery returns the query for cafés and coffee shops around center.
func CafeQuery(center tiles.LatLng, radius float64, timeout time.Duration) AroundQuery {
	return AroundQuery{
		Center:  center,
		Radius:  radius,
		Timeout: timeout,
		Filters: []TagFilter{
			{Key: "amenity", Value: "cafe"},
			{Key: "shop", Value: "coffee"},
		},
	}
}

// String renders the query in Overpass QL. The union asks for "out center" so
// ways and relations carry a representative point.
func (q AroundQuery) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "\n[out:json][timeout:%d];\n(\n", int(q.Timeout.Seconds()))
	around := fmt.Sprintf("around:%s,%s,%s", formatFloat(q.Radius), formatFloat(q.Center.Lat), formatFloat(q.Center.Lng))
	for _, f := range q.Filters {
		fmt.Fprintf(&b, "  nwr(%s)[%s=%s];\n", around, f.Key, f.Value)
	}
	b.WriteString(");\nout center;")
	return b.String()
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
