package sim

import (
	"image/color"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"
)

// NewTrackPlot creates a plot of a single keypoint coordinate over time from two data sources:
// raw:      raw (measured) values
// filtered: filter values
// Both matrices store samples in rows: the first column is time, the second the coordinate value.
// It returns error if the plot fails to be created. This can be due to either of the following conditions:
// * either of the supplied data matrices is nil
// * either of the supplied data matrices does not have at least 2 columns
// * gonum plot fails to be created
func NewTrackPlot(title string, raw, filtered *mat.Dense) (*plot.Plot, error) {
	if raw == nil || filtered == nil {
		return nil, errors.New("invalid data supplied")
	}

	_, cr := raw.Dims()
	_, cf := filtered.Dims()

	if cr < 2 || cf < 2 {
		return nil, errors.Errorf("invalid data dimensions: raw %d, filtered %d columns", cr, cf)
	}

	p := plot.New()

	p.Title.Text = title
	p.X.Label.Text = "time [s]"
	p.Y.Label.Text = "position"
	p.Legend.Top = true

	// raw measurements as scatter
	rawScatter, err := plotter.NewScatter(makePoints(raw))
	if err != nil {
		return nil, errors.Wrap(err, "failed to create raw scatter")
	}
	rawScatter.GlyphStyle.Color = color.RGBA{G: 255, A: 128}
	rawScatter.GlyphStyle.Radius = vg.Points(2)

	p.Add(rawScatter)
	p.Legend.Add("raw", rawScatter)

	// filtered track as line with cross markers
	filterLine, filterPoints, err := plotter.NewLinePoints(makePoints(filtered))
	if err != nil {
		return nil, errors.Wrap(err, "failed to create filtered line")
	}
	filterLine.Color = color.RGBA{R: 100, G: 149, B: 237, A: 255}
	filterPoints.Shape = draw.CrossGlyph{}
	filterPoints.Color = color.RGBA{R: 169, G: 169, B: 169, A: 255}
	filterPoints.Radius = vg.Points(2)

	p.Add(filterLine, filterPoints)
	p.Legend.Add("filtered", filterLine, filterPoints)

	return p, nil
}

func makePoints(m *mat.Dense) plotter.XYs {
	r, _ := m.Dims()
	pts := make(plotter.XYs, r)
	for i := 0; i < r; i++ {
		pts[i].X = m.At(i, 0)
		pts[i].Y = m.At(i, 1)
	}

	return pts
}
