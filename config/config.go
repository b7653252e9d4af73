// Package config loads settings from an optional config.yaml, an optional .env
// file and FINDERCAFE_* environment variables, in increasing precedence.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const EnvPrefix = "FINDERCAFE"

type Config struct {
	Log    Log    `mapstructure:"log"`
	Window Window `mapstructure:"window"`
	Locate Locate `mapstructure:"locate"`
	Map    Map    `mapstructure:"map"`
	Search Search `mapstructure:"search"`
}

type Log struct {
	Level       string `mapstructure:"level" validate:"oneof=debug info warn error"`
	Development bool   `mapstructure:"development"`
}

type Window struct {
	Title  string `mapstructure:"title" validate:"required"`
	Width  int    `mapstructure:"width" validate:"min=320"`
	Height int    `mapstructure:"height" validate:"min=240"`
}

type Locate struct {
	Provider   string        `mapstructure:"provider" validate:"oneof=ipapi geoip static"`
	Endpoint   string        `mapstructure:"endpoint" validate:"required,url"`
	IPEndpoint string        `mapstructure:"ip_endpoint" validate:"required,url"`
	Database   string        `mapstructure:"database" validate:"required_if=Provider geoip"`
	Latitude   float64       `mapstructure:"latitude" validate:"min=-90,max=90"`
	Longitude  float64       `mapstructure:"longitude" validate:"min=-180,max=180"`
	Timeout    time.Duration `mapstructure:"timeout" validate:"gt=0"`
}

type Map struct {
	Zoom            int           `mapstructure:"zoom" validate:"min=0,max=19"`
	TileURL         string        `mapstructure:"tile_url" validate:"required,contains={z},contains={x},contains={y}"`
	Attribution     string        `mapstructure:"attribution"`
	Subdomains      []string      `mapstructure:"subdomains"`
	MaxZoom         int           `mapstructure:"max_zoom" validate:"min=1,max=22"`
	InvalidateDelay time.Duration `mapstructure:"invalidate_delay" validate:"gte=0"`
	UserAgent       string        `mapstructure:"user_agent" validate:"required"`
	TileWorkers     int           `mapstructure:"tile_workers" validate:"min=1,max=16"`
	UserLabel       string        `mapstructure:"user_label"`
}

type Search struct {
	Endpoint      string        `mapstructure:"endpoint" validate:"required,url"`
	Radius        float64       `mapstructure:"radius" validate:"gt=0"`
	ServerTimeout time.Duration `mapstructure:"server_timeout" validate:"gte=1s"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("log.level", "info")
	v.SetDefault("log.development", false)

	v.SetDefault("window.title", "finderCafé")
	v.SetDefault("window.width", 900)
	v.SetDefault("window.height", 800)

	v.SetDefault("locate.provider", "ipapi")
	v.SetDefault("locate.endpoint", "http://ip-api.com/json/")
	v.SetDefault("locate.ip_endpoint", "https://api.ipify.org")
	v.SetDefault("locate.database", "")
	v.SetDefault("locate.latitude", 0.0)
	v.SetDefault("locate.longitude", 0.0)
	v.SetDefault("locate.timeout", 15*time.Second)

	v.SetDefault("map.zoom", 14)
	v.SetDefault("map.tile_url", "https://{s}.tile.openstreetmap.org/{z}/{x}/{y}.png")
	v.SetDefault("map.attribution", "© OpenStreetMap contributors")
	v.SetDefault("map.subdomains", []string{"a", "b", "c"})
	v.SetDefault("map.max_zoom", 19)
	v.SetDefault("map.invalidate_delay", 300*time.Millisecond)
	v.SetDefault("map.user_agent", "findercafe/1.0 (+https://github.com/olablt/findercafe)")
	v.SetDefault("map.tile_workers", 4)
	v.SetDefault("map.user_label", "☕ Você está aqui!")

	v.SetDefault("search.endpoint", "https://overpass-api.de/api/interpreter")
	v.SetDefault("search.radius", 1000.0)
	v.SetDefault("search.server_timeout", 25*time.Second)
}

// Load reads the configuration. paths are searched for config.yaml; "." and
// "./config" are used when none are given. A missing file is not an error.
func Load(paths ...string) (*Config, error) {
	_ = godotenv.Load(".env")

	v := viper.New()
	setDefaults(v)

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	if len(paths) == 0 {
		paths = []string{".", "./config"}
	}
	for _, p := range paths {
		v.AddConfigPath(p)
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("config: read: %w", err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("config: decode: %w", err)
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks field constraints.
func Validate(cfg *Config) error {
	if err := validator.New().Struct(cfg); err != nil {
		return fmt.Errorf("config: invalid: %w", err)
	}
	return nil
}
