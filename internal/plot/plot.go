// Package plot renders measured and fitted I-V curves.
package plot

import (
	"image/color"
	"path/filepath"
	"strings"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"

	"github.com/copyleftdev/pvfit/internal/curve"
	pverrors "github.com/copyleftdev/pvfit/internal/errors"
)

var formats = map[string]bool{".png": true, ".svg": true, ".pdf": true, ".jpg": true, ".jpeg": true, ".eps": true, ".tif": true, ".tiff": true}

// IV draws measured points as a scatter and the fitted curve as a line and
// saves the figure to path. The image format follows the file extension.
// Either curve may be empty.
func IV(path string, measured, fitted curve.Curve, title string) error {
	if !formats[strings.ToLower(filepath.Ext(path))] {
		return pverrors.Errorf(pverrors.KindInvalidInput, "unsupported image format %q", filepath.Ext(path)).
			WithComponent("plot").WithOperation("IV")
	}

	p := plot.New()
	p.Title.Text = title
	p.X.Label.Text = "Voltage (V)"
	p.Y.Label.Text = "Current (A)"
	p.Add(plotter.NewGrid())
	p.Legend.Top = true

	if len(measured) > 0 {
		s, err := plotter.NewScatter(xys(measured))
		if err != nil {
			return pverrors.Wrap(err, pverrors.KindInvalidInput, "measured points").WithComponent("plot")
		}
		s.GlyphStyle.Shape = draw.CircleGlyph{}
		s.GlyphStyle.Color = color.RGBA{B: 200, A: 255}
		p.Add(s)
		p.Legend.Add("measured", s)
	}

	if len(fitted) > 0 {
		l, err := plotter.NewLine(xys(fitted))
		if err != nil {
			return pverrors.Wrap(err, pverrors.KindInvalidInput, "fitted curve").WithComponent("plot")
		}
		l.LineStyle.Width = vg.Points(1.5)
		l.LineStyle.Color = color.RGBA{R: 200, A: 255}
		l.LineStyle.Dashes = []vg.Length{vg.Points(5), vg.Points(3)}
		p.Add(l)
		p.Legend.Add("fitted", l)
	}

	if err := p.Save(6*vg.Inch, 4*vg.Inch, path); err != nil {
		return pverrors.Wrapf(err, pverrors.KindIO, "save %s", path).WithComponent("plot").WithOperation("IV")
	}
	return nil
}

func xys(c curve.Curve) plotter.XYs {
	pts := make(plotter.XYs, len(c))
	for k, pt := range c {
		pts[k].X = pt.V
		pts[k].Y = pt.I
	}
	return pts
}
