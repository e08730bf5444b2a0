package render

import (
	"fmt"
	"image/color"
	"io"
	"math"

	"github.com/cwbudde/swarmviz/internal/expression"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/palette"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"
	_ "gonum.org/v1/plot/vg/vgimg"
)

const (
	curveSamples = 400
	surfaceCells = 60
)

var (
	curveColor = color.RGBA{R: 30, G: 90, B: 200, A: 255}
	pointColor = color.RGBA{R: 220, G: 20, B: 60, A: 255}
)

// PlotOptions sizes the image and the square plotting window.
type PlotOptions struct {
	Width  vg.Length
	Height vg.Length
	Lower  float64
	Upper  float64
}

// DefaultPlotOptions is a 6x4 inch image over [-5, 5].
func DefaultPlotOptions() PlotOptions {
	return PlotOptions{Width: 6 * vg.Inch, Height: 4 * vg.Inch, Lower: -5, Upper: 5}
}

// WritePNG renders the scene: a curve with points on it in 2-D, or a heat
// map of the surface with the points' (x, y) in 3-D.
func (s *Scene) WritePNG(w io.Writer, opts PlotOptions) error {
	snap := s.Snapshot()
	lower, upper := window(snap, opts)

	p := plot.New()
	p.Title.Text = snap.Expression
	p.X.Label.Text = "x"
	p.X.Min, p.X.Max = lower, upper
	if snap.GridVisible {
		p.Add(plotter.NewGrid())
	}

	e := expression.Parse(snap.Expression)
	var err error
	if snap.Perspective == Perspective3D {
		p.Y.Label.Text = "y"
		p.Y.Min, p.Y.Max = lower, upper
		err = addSurface(p, e, snap.Points, lower, upper)
	} else {
		p.Y.Label.Text = "f(x)"
		err = addCurve(p, e, snap.Points, lower, upper)
	}
	if err != nil {
		return err
	}

	wt, err := p.WriterTo(opts.Width, opts.Height, "png")
	if err != nil {
		return fmt.Errorf("failed to create plot writer: %w", err)
	}
	if _, err := wt.WriteTo(w); err != nil {
		return fmt.Errorf("failed to encode plot: %w", err)
	}
	return nil
}

// window widens the requested range so that points that drifted outside it
// are still visible.
func window(snap Snapshot, opts PlotOptions) (float64, float64) {
	lower, upper := opts.Lower, opts.Upper
	if lower > upper {
		lower, upper = upper, lower
	}
	for _, pt := range snap.Points {
		for _, c := range pt.Position {
			lower = math.Min(lower, c)
			upper = math.Max(upper, c)
		}
	}
	if lower == upper {
		lower, upper = lower-1, upper+1
	}
	return lower, upper
}

func addCurve(p *plot.Plot, e *expression.Expression, points []Point, lower, upper float64) error {
	// Split the curve where the function is undefined; plotter lines reject NaN.
	var segment plotter.XYs
	flush := func() error {
		if len(segment) > 1 {
			line, err := plotter.NewLine(segment)
			if err != nil {
				return fmt.Errorf("failed to build curve: %w", err)
			}
			line.LineStyle.Color = curveColor
			line.LineStyle.Width = vg.Points(1.5)
			p.Add(line)
		}
		segment = nil
		return nil
	}

	step := (upper - lower) / float64(curveSamples-1)
	for i := 0; i < curveSamples; i++ {
		x := lower + float64(i)*step
		y, ok := e.Eval([]float64{x})
		if !ok {
			if err := flush(); err != nil {
				return err
			}
			continue
		}
		segment = append(segment, plotter.XY{X: x, Y: y})
	}
	if err := flush(); err != nil {
		return err
	}

	var xys plotter.XYs
	for _, pt := range points {
		if pt.Defined && len(pt.Position) > 0 {
			xys = append(xys, plotter.XY{X: pt.Position[0], Y: pt.Value})
		}
	}
	return addScatter(p, xys)
}

func addSurface(p *plot.Plot, e *expression.Expression, points []Point, lower, upper float64) error {
	grid := sampleSurface(e, lower, upper, surfaceCells)
	if grid.defined {
		hm := plotter.NewHeatMap(grid, palette.Heat(12, 1))
		hm.Min, hm.Max = grid.min, grid.max
		if hm.Max == hm.Min {
			hm.Max = hm.Min + 1
		}
		p.Add(hm)
	}

	var xys plotter.XYs
	for _, pt := range points {
		if len(pt.Position) > 1 {
			xys = append(xys, plotter.XY{X: pt.Position[0], Y: pt.Position[1]})
		}
	}
	return addScatter(p, xys)
}

func addScatter(p *plot.Plot, xys plotter.XYs) error {
	if len(xys) == 0 {
		return nil
	}
	sc, err := plotter.NewScatter(xys)
	if err != nil {
		return fmt.Errorf("failed to build points: %w", err)
	}
	sc.GlyphStyle.Color = pointColor
	sc.GlyphStyle.Radius = vg.Points(3)
	sc.GlyphStyle.Shape = draw.CircleGlyph{}
	p.Add(sc)
	return nil
}

// surfaceGrid implements plotter.GridXYZ over a regular grid. Undefined
// cells are filled with the minimum defined value.
type surfaceGrid struct {
	xs, ys   []float64
	z        [][]float64
	min, max float64
	defined  bool
}

func sampleSurface(e *expression.Expression, lower, upper float64, cells int) *surfaceGrid {
	g := &surfaceGrid{
		xs:  make([]float64, cells),
		ys:  make([]float64, cells),
		z:   make([][]float64, cells),
		min: math.Inf(1),
		max: math.Inf(-1),
	}
	step := (upper - lower) / float64(cells-1)
	for i := 0; i < cells; i++ {
		g.xs[i] = lower + float64(i)*step
		g.ys[i] = lower + float64(i)*step
	}

	undefined := make([][2]int, 0)
	for c := 0; c < cells; c++ {
		g.z[c] = make([]float64, cells)
		for r := 0; r < cells; r++ {
			v, ok := e.Eval([]float64{g.xs[c], g.ys[r]})
			if !ok {
				undefined = append(undefined, [2]int{c, r})
				continue
			}
			g.z[c][r] = v
			g.min = math.Min(g.min, v)
			g.max = math.Max(g.max, v)
			g.defined = true
		}
	}
	for _, cr := range undefined {
		g.z[cr[0]][cr[1]] = g.min
	}
	return g
}

func (g *surfaceGrid) Dims() (c, r int)   { return len(g.xs), len(g.ys) }
func (g *surfaceGrid) Z(c, r int) float64 { return g.z[c][r] }
func (g *surfaceGrid) X(c int) float64    { return g.xs[c] }
func (g *surfaceGrid) Y(r int) float64    { return g.ys[r] }
