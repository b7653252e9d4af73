package geolocate

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/olablt/findercafe/tiles"
	"go.uber.org/zap"
)

const DefaultIPAPIEndpoint = "http://ip-api.com/json/"

type ipAPIResponse struct {
	Status  string  `json:"status"`
	Message string  `json:"message"`
	Lat     float64 `json:"lat"`
	Lon     float64 `json:"lon"`
}

// IPAPILocator asks an ip-api compatible service for the caller's position.
type IPAPILocator struct {
	endpoint  string
	userAgent string
	client    *http.Client
	log       *zap.Logger
}

func NewIPAPILocator(endpoint, userAgent string, log *zap.Logger) *IPAPILocator {
	if endpoint == "" {
		endpoint = DefaultIPAPIEndpoint
	}
	return &IPAPILocator{
		endpoint:  endpoint,
		userAgent: userAgent,
		client:    &http.Client{Timeout: 10 * time.Second},
		log:       log,
	}
}

func (*IPAPILocator) Name() string { return "ipapi" }

func (l *IPAPILocator) Locate(ctx context.Context) (tiles.LatLng, error) {
	u, err := url.Parse(l.endpoint)
	if err != nil {
		return tiles.LatLng{}, fmt.Errorf("ipapi: parse endpoint: %w", err)
	}
	q := u.Query()
	q.Set("fields", "status,message,lat,lon")
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return tiles.LatLng{}, fmt.Errorf("ipapi: create request: %w", err)
	}
	if l.userAgent != "" {
		req.Header.Set("User-Agent", l.userAgent)
	}

	resp, err := l.client.Do(req)
	if err != nil {
		return tiles.LatLng{}, fmt.Errorf("ipapi: request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return tiles.LatLng{}, fmt.Errorf("ipapi: unexpected status code: %d", resp.StatusCode)
	}

	var r ipAPIResponse
	if err := json.NewDecoder(resp.Body).Decode(&r); err != nil {
		return tiles.LatLng{}, fmt.Errorf("ipapi: decode response: %w", err)
	}
	if r.Status != "success" {
		return tiles.LatLng{}, fmt.Errorf("ipapi: %s: %w", r.Message, ErrUnavailable)
	}

	pos := tiles.LatLng{Lat: r.Lat, Lng: r.Lon}
	l.log.Debug("located", zap.String("provider", l.Name()), zap.Float64("lat", pos.Lat), zap.Float64("lon", pos.Lng))
	return pos, nil
}
