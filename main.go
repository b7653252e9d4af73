package main

import (
	"context"
	"fmt"
	"os"

	"gioui.org/app"
	"gioui.org/font/gofont"
	"gioui.org/op"
	"gioui.org/text"
	"gioui.org/unit"
	"gioui.org/widget/material"
	"github.com/olablt/findercafe/cafes"
	"github.com/olablt/findercafe/config"
	"github.com/olablt/findercafe/coordinator"
	"github.com/olablt/findercafe/geolocate"
	"github.com/olablt/findercafe/logger"
	"github.com/olablt/findercafe/mapview"
	"github.com/olablt/findercafe/overpass"
	"github.com/olablt/findercafe/tiles"
	"github.com/olablt/findercafe/tiles/worker"
	"github.com/olablt/findercafe/ui"
	"go.uber.org/zap"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	log, flush, err := logger.New(cfg.Log.Level, cfg.Log.Development)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	go func() {
		defer flush()
		if err := run(cfg, log); err != nil {
			log.Error("exit", zap.Error(err))
			flush()
			os.Exit(1)
		}
		os.Exit(0)
	}()
	app.Main()
}

func run(cfg *config.Config, log *zap.Logger) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	locator, closeLocator, err := geolocate.New(geolocate.Config{
		Provider:   cfg.Locate.Provider,
		Endpoint:   cfg.Locate.Endpoint,
		IPEndpoint: cfg.Locate.IPEndpoint,
		Database:   cfg.Locate.Database,
		Latitude:   cfg.Locate.Latitude,
		Longitude:  cfg.Locate.Longitude,
		UserAgent:  cfg.Map.UserAgent,
	}, log)
	if err != nil {
		return err
	}
	defer closeLocator()

	client := overpass.NewClient(cfg.Search.Endpoint,
		overpass.WithUserAgent(cfg.Map.UserAgent),
		overpass.WithLogger(log),
	)
	finder := cafes.NewFinder(client, cfg.Search.Radius, cfg.Search.ServerTimeout)

	pool := worker.NewPool(cfg.Map.TileWorkers, 256)
	defer pool.Shutdown()

	w := new(app.Window)
	w.Option(
		app.Title(cfg.Window.Title),
		app.Size(unit.Dp(float32(cfg.Window.Width)), unit.Dp(float32(cfg.Window.Height))),
	)

	refresh := make(chan struct{}, 1)
	requestRefresh := func() {
		select {
		case refresh <- struct{}{}:
		default:
		}
	}
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case <-refresh:
				w.Invalidate()
			}
		}
	}()

	th := material.NewTheme()
	th.Shaper = text.NewShaper(text.WithCollection(gofont.Collection()))

	source := func(layer tiles.Layer) tiles.TileProvider {
		p := tiles.NewCombinedTileProvider(ctx,
			tiles.NewURLTileProvider(layer, cfg.Map.UserAgent, log),
			tiles.NewLocalTileProvider(),
			pool, log)
		p.SetOnLoadCallback(requestRefresh)
		return p
	}
	newSurface := func() coordinator.Surface {
		return mapview.New(refresh,
			mapview.WithTileSource(source),
			mapview.WithTheme(th),
			mapview.WithLogger(log),
			mapview.WithZoomRange(2, cfg.Map.MaxZoom),
		)
	}

	opts := coordinator.DefaultOptions()
	opts.Zoom = cfg.Map.Zoom
	opts.Layer = tiles.Layer{
		URLTemplate: cfg.Map.TileURL,
		Attribution: cfg.Map.Attribution,
		Subdomains:  cfg.Map.Subdomains,
		MaxZoom:     cfg.Map.MaxZoom,
	}
	opts.InvalidateDelay = cfg.Map.InvalidateDelay
	opts.LocateTimeout = cfg.Locate.Timeout
	if cfg.Map.UserLabel != "" {
		opts.UserLabel = cfg.Map.UserLabel
	}

	coord := coordinator.New(log, locator, finder, newSurface, opts, coordinator.WithOnChange(requestRefresh))
	defer coord.Close()
	coord.Start(ctx)

	page := ui.NewPage(coord, th)
	log.Info("window open", zap.String("title", cfg.Window.Title))

	var ops op.Ops
	for {
		switch e := w.Event().(type) {
		case app.DestroyEvent:
			coord.Close()
			cancel()
			return e.Err
		case app.FrameEvent:
			gtx := app.NewContext(&ops, e)
			page.Layout(gtx)
			e.Frame(gtx.Ops)
		}
	}
}
