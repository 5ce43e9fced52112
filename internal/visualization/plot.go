// Package visualization writes per-direction diagnostic plots: modulation
// and background spectra over wavelength, and primary settings as grouped
// bars. Plots are observational only and never affect subset selection.
package visualization

import (
	"fmt"
	"image/color"
	"os"
	"path/filepath"
	"strings"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"github.com/lumenlab/silentsub/internal/modulation"
	"github.com/lumenlab/silentsub/internal/search"
	"github.com/lumenlab/silentsub/internal/spd"
)

var (
	colorBackground = color.RGBA{R: 90, G: 90, B: 90, A: 255}
	colorPositive   = color.RGBA{R: 214, G: 69, B: 65, A: 255}
	colorNegative   = color.RGBA{R: 52, G: 102, B: 164, A: 255}
)

// PlotSpectra writes one PNG with the background, positive and negative
// modulation spectra of a trial and returns the file path.
func PlotSpectra(trial modulation.Trial, support spd.Support, outDir string) (string, error) {
	if err := os.MkdirAll(outDir, 0755); err != nil {
		return "", fmt.Errorf("visualization: creating %s: %w", outDir, err)
	}

	p := plot.New()
	p.Title.Text = trial.Direction
	p.X.Label.Text = "Wavelength (nm)"
	p.Y.Label.Text = "Spectral power"

	wavelengths := support.Wavelengths()
	series := []struct {
		name  string
		data  []float64
		color color.Color
	}{
		{"background", trial.BackgroundSpectrum, colorBackground},
		{"positive", trial.PositiveSpectrum, colorPositive},
		{"negative", trial.NegativeSpectrum, colorNegative},
	}
	for _, s := range series {
		line, err := plotter.NewLine(curveXYs(wavelengths, s.data))
		if err != nil {
			return "", fmt.Errorf("visualization: %s line: %w", s.name, err)
		}
		line.Color = s.color
		p.Add(line)
		p.Legend.Add(s.name, line)
	}
	p.Legend.Top = true

	path := filepath.Join(outDir, fileName(trial.Direction)+"_spectra.png")
	if err := p.Save(7*vg.Inch, 4*vg.Inch, path); err != nil {
		return "", fmt.Errorf("visualization: saving %s: %w", path, err)
	}
	return path, nil
}

// PlotPrimaries writes one PNG comparing background and modulation primary
// settings as grouped bars and returns the file path.
func PlotPrimaries(trial modulation.Trial, names []string, outDir string) (string, error) {
	if err := os.MkdirAll(outDir, 0755); err != nil {
		return "", fmt.Errorf("visualization: creating %s: %w", outDir, err)
	}

	p := plot.New()
	p.Title.Text = trial.Direction
	p.Y.Label.Text = "Primary setting"
	p.Y.Min, p.Y.Max = 0, 1

	const width = 15 * vg.Millimeter / 2
	bg, err := plotter.NewBarChart(plotter.Values(trial.Background), width)
	if err != nil {
		return "", fmt.Errorf("visualization: background bars: %w", err)
	}
	bg.Color = colorBackground
	bg.Offset = -width / 2

	mod, err := plotter.NewBarChart(plotter.Values(trial.Modulation), width)
	if err != nil {
		return "", fmt.Errorf("visualization: modulation bars: %w", err)
	}
	mod.Color = colorPositive
	mod.Offset = width / 2

	p.Add(bg, mod)
	p.Legend.Add("background", bg)
	p.Legend.Add("modulation", mod)
	p.Legend.Top = true
	p.NominalX(names...)

	path := filepath.Join(outDir, fileName(trial.Direction)+"_primaries.png")
	if err := p.Save(7*vg.Inch, 4*vg.Inch, path); err != nil {
		return "", fmt.Errorf("visualization: saving %s: %w", path, err)
	}
	return path, nil
}

// PlotOutcome writes the spectra and primary plots for every trial in a
// subset outcome and returns the written paths.
func PlotOutcome(outcome search.Outcome, support spd.Support, outDir string) ([]string, error) {
	var paths []string
	for _, trial := range outcome.Trials {
		p1, err := PlotSpectra(trial, support, outDir)
		if err != nil {
			return paths, err
		}
		p2, err := PlotPrimaries(trial, outcome.Names, outDir)
		if err != nil {
			return paths, err
		}
		paths = append(paths, p1, p2)
	}
	return paths, nil
}

func curveXYs(x, y []float64) plotter.XYs {
	xys := make(plotter.XYs, len(y))
	for i := range y {
		xys[i].X = x[i]
		xys[i].Y = y[i]
	}
	return xys
}

// fileName maps a direction name to a safe file stem.
func fileName(direction string) string {
	stem := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			return r
		default:
			return '_'
		}
	}, direction)
	if stem == "" {
		stem = "direction"
	}
	return stem
}
