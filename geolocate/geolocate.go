// Package geolocate answers "where is this machine" once, from the public IP or from config.
package geolocate

import (
	"context"
	"errors"
	"fmt"

	"github.com/olablt/findercafe/tiles"
	"go.uber.org/zap"
)

// ErrUnavailable is wrapped by providers that answered but could not place the caller.
var ErrUnavailable = errors.New("location unavailable")

// Locator resolves the current position.
type Locator interface {
	Name() string
	Locate(ctx context.Context) (tiles.LatLng, error)
}

type Config struct {
	Provider   string
	Endpoint   string
	IPEndpoint string
	Database   string
	Latitude   float64
	Longitude  float64
	UserAgent  string
}

// New builds the Locator named by cfg.Provider. The returned func releases its resources.
func New(cfg Config, log *zap.Logger) (Locator, func(), error) {
	log = log.Named("geolocate")
	switch cfg.Provider {
	case "static":
		return StaticLocator{Position: tiles.LatLng{Lat: cfg.Latitude, Lng: cfg.Longitude}}, func() {}, nil
	case "geoip":
		l, err := OpenGeoIP(cfg.Database, cfg.IPEndpoint, cfg.UserAgent, log)
		if err != nil {
			return nil, nil, err
		}
		return l, func() {
			if err := l.Close(); err != nil {
				log.Warn("close geoip database", zap.Error(err))
			}
		}, nil
	case "ipapi", "":
		return NewIPAPILocator(cfg.Endpoint, cfg.UserAgent, log), func() {}, nil
	}
	return nil, nil, fmt.Errorf("geolocate: unknown provider %q", cfg.Provider)
}

// StaticLocator always answers with Position.
type StaticLocator struct {
	Position tiles.LatLng
}

func (StaticLocator) Name() string { return "static" }

func (s StaticLocator) Locate(ctx context.Context) (tiles.LatLng, error) {
	if err := ctx.Err(); err != nil {
		return tiles.LatLng{}, err
	}
	return s.Position, nil
}
