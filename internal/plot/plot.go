// Package plot renders the scatter and population tabs as SVG.
package plot

import (
	"errors"
	"fmt"
	"image/color"
	"io"
	"math"

	"github.com/aclements/go-gg/gg"
	"github.com/aclements/go-gg/table"

	"gapminder/internal/engine"
	"gapminder/internal/renderer"
	"gapminder/internal/view"
)

// ErrEmpty is returned when there is nothing to draw.
var ErrEmpty = errors.New("nothing to plot")

// Spectral6 is the region palette. Regions take colours in dataset order
// and wrap around after six.
var Spectral6 = []color.Color{
	color.RGBA{0x32, 0x88, 0xbd, 0xff},
	color.RGBA{0x99, 0xd5, 0x94, 0xff},
	color.RGBA{0xe6, 0xf5, 0x98, 0xff},
	color.RGBA{0xfe, 0xe0, 0x8b, 0xff},
	color.RGBA{0xfc, 0x8d, 0x59, 0xff},
	color.RGBA{0xd5, 0x3e, 0x4f, 0xff},
}

// Size is the rendered image size in pixels.
type Size struct {
	Width, Height int
}

// DefaultSize matches the original figure.
var DefaultSize = Size{Width: 800, Height: 600}

func colorOf(i int) color.Color {
	return Spectral6[i%len(Spectral6)]
}

// Scatter writes the frame's buckets as a scatter plot. regions fixes the
// colour of each region so colours do not move between years.
func Scatter(w io.Writer, f *view.Frame, regions []string, size Size) error {
	if f.Rows() == 0 {
		return fmt.Errorf("%w: no countries for %d", ErrEmpty, f.Selection.Year)
	}
	regionColor := make(map[string]color.Color, len(regions))
	for i, r := range regions {
		regionColor[r] = colorOf(i)
	}

	n := f.Rows()
	var (
		xs        = make([]float64, 0, n)
		ys        = make([]float64, 0, n)
		sizes     = make([]float64, 0, n)
		colors    = make([]color.Color, 0, n)
		countries = make([]string, 0, n)
		tips      = make([]string, 0, n)
	)
	for _, b := range f.Buckets {
		for i := range b.Len() {
			xs = append(xs, b.X[i])
			ys = append(ys, b.Y[i])
			sz := b.Size[i]
			if math.IsNaN(sz) {
				sz = view.DefaultSizeScale.Offset
			}
			sizes = append(sizes, sz)
			c, ok := regionColor[b.Region[i]]
			if !ok {
				c = color.Black
			}
			colors = append(colors, c)
			countries = append(countries, b.Country[i])
			tips = append(tips, fmt.Sprintf("%s (%s)", b.Country[i], b.Region[i]))
		}
	}
	xcol, ycol := string(f.Selection.X), string(f.Selection.Y)
	tab := table.NewBuilder(nil).
		Add(xcol, xs).
		Add(ycol, ys).
		Add("size", sizes).
		Add("color", colors).
		Add("country", countries).
		Add("tooltip", tips).
		Done()

	p := gg.NewPlot(tab)
	setRange(p, "x", f.XRange)
	setRange(p, "y", f.YRange)
	p.SetScale("size", gg.NewLinearScaler().Include(0))
	p.Add(gg.LayerPoints{X: xcol, Y: ycol, Color: "color", Size: "size"})
	p.Add(gg.LayerTooltips{X: xcol, Y: ycol, Label: "tooltip"})

	if len(f.Highlight) > 0 && len(f.Buckets) == 1 {
		b := f.Buckets[0]
		i := f.Highlight[0]
		hl := table.NewBuilder(nil).
			Add(xcol, []float64{b.X[i]}).
			Add(ycol, []float64{b.Y[i]}).
			Add("country", []string{b.Country[i]}).
			Done()
		p.Save()
		p.SetData(hl)
		p.Add(gg.LayerTags{X: xcol, Y: ycol, Label: "country"})
		p.Restore()
	}

	p.Add(gg.Title(f.Title), gg.AxisLabel("x", f.XLabel), gg.AxisLabel("y", f.YLabel))
	return p.WriteSVG(w, size.Width, size.Height)
}

// Population writes each active pair: its line renderer as a line and its
// marker renderer as points, over the snapshot's pinned ranges.
func Population(w io.Writer, snap renderer.Snapshot, size Size) error {
	lines := seriesTable(snap.Pairs, func(p *renderer.Pair) *renderer.Renderer { return p.Line })
	markers := seriesTable(snap.Pairs, func(p *renderer.Pair) *renderer.Renderer { return p.Markers })
	if lines == nil && markers == nil {
		return fmt.Errorf("%w: no population data for the selected countries", ErrEmpty)
	}

	base := lines
	if base == nil {
		base = markers
	}
	p := gg.NewPlot(base)
	setRange(p, "x", snap.XRange)
	setRange(p, "y", snap.YRange)
	if lines != nil {
		p.Save()
		p.SetData(lines)
		p.GroupBy("country")
		p.Add(gg.LayerLines{X: "year", Y: "population", Color: "color"})
		p.Restore()
	}
	if markers != nil {
		p.Save()
		p.SetData(markers)
		p.Add(gg.LayerPoints{X: "year", Y: "population", Color: "color"})
		p.Add(gg.LayerTooltips{X: "year", Y: "population", Label: "tooltip"})
		p.Restore()
	}
	p.Add(
		gg.Title("Population"),
		gg.AxisLabel("x", "Year"),
		gg.AxisLabel("y", "Population (millions)"),
	)
	return p.WriteSVG(w, size.Width, size.Height)
}

// seriesTable lays out the renderer pick selects from each pair, skipping
// missing values. It returns nil when no value is left.
func seriesTable(pairs []*renderer.Pair, pick func(*renderer.Pair) *renderer.Renderer) *table.Table {
	var (
		years     []float64
		pops      []float64
		colors    []color.Color
		countries []string
		tips      []string
	)
	for _, pr := range pairs {
		s := pick(pr).Series
		for k, y := range s.Years {
			v := s.Population[k]
			if math.IsNaN(v) {
				continue
			}
			years = append(years, float64(y))
			pops = append(pops, v)
			colors = append(colors, colorOf(pr.Index))
			countries = append(countries, s.Country)
			tips = append(tips, fmt.Sprintf("%s %d: %.2fM", s.Country, y, v))
		}
	}
	if len(years) == 0 {
		return nil
	}
	return table.NewBuilder(nil).
		Add("year", years).
		Add("population", pops).
		Add("color", colors).
		Add("country", countries).
		Add("tooltip", tips).
		Done()
}

// setRange pins an axis to b. Empty bounds leave the axis to autoscale;
// a single value is widened by one unit either side.
func setRange(p *gg.Plot, axis string, b engine.Bounds) {
	if b.Empty() {
		return
	}
	if b.Min == b.Max {
		b.Min, b.Max = b.Min-1, b.Max+1
	}
	p.SetScale(axis, gg.NewLinearScaler().SetMin(b.Min).SetMax(b.Max))
}
