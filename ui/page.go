// Package ui lays out the finderCafé window around the map.
package ui

import (
	"fmt"
	"image"
	"image/color"
	"time"

	"gioui.org/font"
	"gioui.org/layout"
	"gioui.org/op/clip"
	"gioui.org/op/paint"
	"gioui.org/text"
	"gioui.org/unit"
	"gioui.org/widget"
	"gioui.org/widget/material"
	"github.com/olablt/findercafe/coordinator"
)

var (
	coffee     = color.NRGBA{R: 0x7c, G: 0x2d, B: 0x12, A: 0xff}
	cream      = color.NRGBA{R: 0xff, G: 0xed, B: 0xd5, A: 0xff}
	white      = color.NRGBA{R: 0xff, G: 0xff, B: 0xff, A: 0xff}
	mutedText  = color.NRGBA{R: 0x37, G: 0x41, B: 0x51, A: 0xff}
	mapBorder  = color.NRGBA{R: 0xfd, G: 0xba, B: 0x74, A: 0xff}
	statusText = map[coordinator.State]string{
		coordinator.Uninitialized:    "Iniciando…",
		coordinator.AwaitingLocation: "Obtendo sua localização…",
		coordinator.LocationKnown:    "Preparando o mapa…",
		coordinator.LocationFailed:   "Não foi possível obter sua localização.",
	}
)

// Page is the whole window: header, hero text, map and footer.
type Page struct {
	coord   *coordinator.Coordinator
	theme   *material.Theme
	refresh widget.Clickable
	year    int
	size    image.Point
}

func NewPage(coord *coordinator.Coordinator, th *material.Theme) *Page {
	return &Page{
		coord: coord,
		theme: th,
		year:  time.Now().Year(),
	}
}

// Layout draws the page. A change of window size since the previous frame is
// reported to the coordinator so the map re-measures itself.
func (p *Page) Layout(gtx layout.Context) layout.Dimensions {
	if p.size != (image.Point{}) && p.size != gtx.Constraints.Max {
		p.coord.HandleResize()
	}
	p.size = gtx.Constraints.Max

	if p.refresh.Clicked(gtx) {
		p.coord.Refresh()
	}

	paint.Fill(gtx.Ops, white)
	return layout.Flex{Axis: layout.Vertical}.Layout(gtx,
		layout.Rigid(p.header),
		layout.Flexed(1, p.main),
		layout.Rigid(p.footer),
	)
}

func (p *Page) header(gtx layout.Context) layout.Dimensions {
	return layout.Background{}.Layout(gtx, fill(coffee), func(gtx layout.Context) layout.Dimensions {
		gtx.Constraints.Min.X = gtx.Constraints.Max.X
		return layout.UniformInset(unit.Dp(16)).Layout(gtx, func(gtx layout.Context) layout.Dimensions {
			l := material.H4(p.theme, "☕ finderCafé")
			l.Color = white
			l.Font.Weight = font.Bold
			l.Alignment = text.Middle
			return l.Layout(gtx)
		})
	})
}

func (p *Page) main(gtx layout.Context) layout.Dimensions {
	return layout.UniformInset(unit.Dp(12)).Layout(gtx, func(gtx layout.Context) layout.Dimensions {
		return layout.Background{}.Layout(gtx, fill(cream), func(gtx layout.Context) layout.Dimensions {
			gtx.Constraints.Min = gtx.Constraints.Max
			return layout.UniformInset(unit.Dp(12)).Layout(gtx, func(gtx layout.Context) layout.Dimensions {
				return layout.Flex{Axis: layout.Vertical}.Layout(gtx,
					layout.Rigid(p.hero),
					layout.Rigid(layout.Spacer{Height: unit.Dp(12)}.Layout),
					layout.Flexed(1, p.mapSlot),
				)
			})
		})
	})
}

func (p *Page) hero(gtx layout.Context) layout.Dimensions {
	return layout.Flex{Axis: layout.Horizontal, Alignment: layout.Middle}.Layout(gtx,
		layout.Flexed(1, func(gtx layout.Context) layout.Dimensions {
			return layout.Flex{Axis: layout.Vertical}.Layout(gtx,
				layout.Rigid(func(gtx layout.Context) layout.Dimensions {
					l := material.H5(p.theme, "Encontre cafés perto de você")
					l.Color = coffee
					l.Font.Weight = font.ExtraBold
					return l.Layout(gtx)
				}),
				layout.Rigid(func(gtx layout.Context) layout.Dimensions {
					l := material.Body1(p.theme, "Descubra cafeterias e coffee shops próximos da sua localização em tempo real.")
					l.Color = mutedText
					return l.Layout(gtx)
				}),
			)
		}),
		layout.Rigid(func(gtx layout.Context) layout.Dimensions {
			if p.coord.Surface() == nil {
				return layout.Dimensions{}
			}
			label := "Atualizar"
			if p.coord.Fetching() {
				label = "Buscando…"
			}
			b := material.Button(p.theme, &p.refresh, label)
			b.Background = coffee
			return b.Layout(gtx)
		}),
	)
}

// mapSlot is the container the map is bound to.
func (p *Page) mapSlot(gtx layout.Context) layout.Dimensions {
	border := widget.Border{Color: mapBorder, CornerRadius: unit.Dp(8), Width: unit.Dp(2)}
	return border.Layout(gtx, func(gtx layout.Context) layout.Dimensions {
		gtx.Constraints.Min = gtx.Constraints.Max
		defer clip.Rect{Max: gtx.Constraints.Max}.Push(gtx.Ops).Pop()

		if s := p.coord.Surface(); s != nil {
			return s.Layout(gtx)
		}
		return layout.Center.Layout(gtx, material.Body1(p.theme, p.status()).Layout)
	})
}

func (p *Page) status() string {
	if s, ok := statusText[p.coord.State()]; ok {
		return s
	}
	return ""
}

func (p *Page) footer(gtx layout.Context) layout.Dimensions {
	return layout.Background{}.Layout(gtx, fill(coffee), func(gtx layout.Context) layout.Dimensions {
		gtx.Constraints.Min.X = gtx.Constraints.Max.X
		return layout.UniformInset(unit.Dp(10)).Layout(gtx, func(gtx layout.Context) layout.Dimensions {
			l := material.Body2(p.theme, fmt.Sprintf("☕ finderCafé © %d", p.year))
			l.Color = white
			l.Alignment = text.Middle
			return l.Layout(gtx)
		})
	})
}

func fill(c color.NRGBA) layout.Widget {
	return func(gtx layout.Context) layout.Dimensions {
		paint.FillShape(gtx.Ops, c, clip.Rect{Max: gtx.Constraints.Min}.Op())
		return layout.Dimensions{Size: gtx.Constraints.Min}
	}
}
