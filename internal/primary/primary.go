// Package primary models one physical LED channel and normalizes its raw
// spectral curve against a measured total power. Each primary is scaled so
// that the integral of its spectrum equals the measured power adjusted for
// its emitting surface area, and its peak wavelength is recorded for use by
// the subset spacing filter.
package primary

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/lumenlab/silentsub/internal/spd"
)

// ErrUnknownSurface indicates a primary whose name matches no suffix in the
// surface-area lookup. The area is required for power normalization, so this
// is a fatal configuration error.
var ErrUnknownSurface = errors.New("primary: no surface area for name suffix")

// Primary is one light-emitting channel after normalization.
type Primary struct {
	// Name identifies the emitter, e.g. "LED_450_A".
	Name string

	// Curve is the power-normalized spectrum, one value per wavelength sample.
	Curve []float64

	// PowerMilliwatts is the measured total output power.
	PowerMilliwatts float64

	// SurfaceMM2 is the emitting surface area used during normalization.
	SurfaceMM2 float64

	// PeakNM is the wavelength of the curve's maximum.
	PeakNM float64
}

// Table holds the full normalized primary pool with its shared support.
// Primaries are ordered by name for deterministic indexing.
type Table struct {
	Primaries []Primary
	Support   spd.Support
}

// Normalize rescales every raw curve so that sum(curve)*step equals the
// measured power times the emitter's surface area, clamping negative
// readings (measurement noise) to zero first. Surface areas are looked up
// by the longest name suffix that matches a key in areas.
func Normalize(raw map[string][]float64, powers map[string]float64, areas map[string]float64, support spd.Support) (*Table, error) {
	if err := spd.CheckNames(raw, powers); err != nil {
		return nil, err
	}

	names := make([]string, 0, len(raw))
	for name := range raw {
		names = append(names, name)
	}
	sort.Strings(names)

	table := &Table{
		Primaries: make([]Primary, 0, len(names)),
		Support:   support,
	}
	for _, name := range names {
		area, err := surfaceFor(name, areas)
		if err != nil {
			return nil, err
		}

		curve := make([]float64, len(raw[name]))
		copy(curve, raw[name])
		var sum float64
		for i, v := range curve {
			if v < 0 {
				curve[i] = 0
				continue
			}
			sum += v
		}
		if sum <= 0 {
			return nil, fmt.Errorf("primary: %q has no positive power", name)
		}

		power := powers[name]
		scale := power * area / (sum * support.StepNM)
		peak := 0
		for i := range curve {
			curve[i] *= scale
			if curve[i] > curve[peak] {
				peak = i
			}
		}

		table.Primaries = append(table.Primaries, Primary{
			Name:            name,
			Curve:           curve,
			PowerMilliwatts: power,
			SurfaceMM2:      area,
			PeakNM:          support.Wavelength(peak),
		})
	}
	return table, nil
}

// Peaks returns the peak wavelengths in table order.
func (t *Table) Peaks() []float64 {
	peaks := make([]float64, len(t.Primaries))
	for i, p := range t.Primaries {
		peaks[i] = p.PeakNM
	}
	return peaks
}

// Powers returns the measured total powers in table order.
func (t *Table) Powers() []float64 {
	powers := make([]float64, len(t.Primaries))
	for i, p := range t.Primaries {
		powers[i] = p.PowerMilliwatts
	}
	return powers
}

// Names returns the primary names in table order.
func (t *Table) Names() []string {
	names := make([]string, len(t.Primaries))
	for i, p := range t.Primaries {
		names[i] = p.Name
	}
	return names
}

// surfaceFor finds the surface area whose suffix key matches name. The
// longest matching suffix wins so that specific emitter classes override
// generic ones.
func surfaceFor(name string, areas map[string]float64) (float64, error) {
	best := ""
	for suffix := range areas {
		if strings.HasSuffix(name, suffix) && len(suffix) > len(best) {
			best = suffix
		}
	}
	if best == "" {
		return 0, fmt.Errorf("%w: %q", ErrUnknownSurface, name)
	}
	return areas[best], nil
}
