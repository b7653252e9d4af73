package geolocate

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/olablt/findercafe/tiles"
	"github.com/oschwald/geoip2-golang"
	"go.uber.org/zap"
)

const DefaultIPEndpoint = "https://api.ipify.org"

type cityReader interface {
	City(ip net.IP) (*geoip2.City, error)
}

// GeoIPLocator places the public IP with a local GeoLite2/GeoIP2 City database.
type GeoIPLocator struct {
	db         cityReader
	closer     io.Closer
	ipEndpoint string
	userAgent  string
	client     *http.Client
	log        *zap.Logger
}

func OpenGeoIP(path, ipEndpoint, userAgent string, log *zap.Logger) (*GeoIPLocator, error) {
	db, err := geoip2.Open(path)
	if err != nil {
		return nil, fmt.Errorf("geoip: open %q: %w", path, err)
	}
	l := newGeoIPLocator(db, ipEndpoint, userAgent, log)
	l.closer = db
	return l, nil
}

func newGeoIPLocator(db cityReader, ipEndpoint, userAgent string, log *zap.Logger) *GeoIPLocator {
	if ipEndpoint == "" {
		ipEndpoint = DefaultIPEndpoint
	}
	return &GeoIPLocator{
		db:         db,
		ipEndpoint: ipEndpoint,
		userAgent:  userAgent,
		client:     &http.Client{Timeout: 10 * time.Second},
		log:        log,
	}
}

func (*GeoIPLocator) Name() string { return "geoip" }

func (l *GeoIPLocator) Close() error {
	if l.closer == nil {
		return nil
	}
	return l.closer.Close()
}

func (l *GeoIPLocator) Locate(ctx context.Context) (tiles.LatLng, error) {
	ip, err := l.publicIP(ctx)
	if err != nil {
		return tiles.LatLng{}, err
	}
	city, err := l.db.City(ip)
	if err != nil {
		return tiles.LatLng{}, fmt.Errorf("geoip: lookup %s: %w", ip, err)
	}
	if city.Location.Latitude == 0 && city.Location.Longitude == 0 {
		return tiles.LatLng{}, fmt.Errorf("geoip: no location for %s: %w", ip, ErrUnavailable)
	}

	pos := tiles.LatLng{Lat: city.Location.Latitude, Lng: city.Location.Longitude}
	l.log.Debug("located", zap.String("provider", l.Name()), zap.Stringer("ip", ip),
		zap.Uint16("accuracy_km", city.Location.AccuracyRadius))
	return pos, nil
}

func (l *GeoIPLocator) publicIP(ctx context.Context) (net.IP, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, l.ipEndpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("geoip: create request: %w", err)
	}
	if l.userAgent != "" {
		req.Header.Set("User-Agent", l.userAgent)
	}
	resp, err := l.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("geoip: resolve public ip: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("geoip: resolve public ip: unexpected status code: %d", resp.StatusCode)
	}

	b, err := io.ReadAll(io.LimitReader(resp.Body, 64))
	if err != nil {
		return nil, fmt.Errorf("geoip: read public ip: %w", err)
	}
	ip := net.ParseIP(strings.TrimSpace(string(b)))
	if ip == nil {
		return nil, fmt.Errorf("geoip: invalid public ip %q", strings.TrimSpace(string(b)))
	}
	return ip, nil
}
