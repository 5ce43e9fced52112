// Package spd loads tabulated spectral power distributions and total-power
// measurements from CSV files and validates their shared wavelength support.
package spd

import (
	"encoding/csv"
	"errors"
	"fmt"
	"math"
	"os"
	"strconv"
)

// ErrWavelengthMismatch indicates the SPD table's wavelength column is not
// uniformly spaced, or two tables disagree on the wavelength support.
var ErrWavelengthMismatch = errors.New("spd: wavelength support mismatch")

// ErrNameMismatch indicates the SPD and power tables name different primaries.
var ErrNameMismatch = errors.New("spd: primary name sets differ between tables")

// supportTolerance bounds the allowed jitter in the wavelength step.
const supportTolerance = 1e-6

// Support describes a uniform wavelength sampling grid in nanometers.
type Support struct {
	// StartNM is the wavelength of the first sample.
	StartNM float64

	// StepNM is the spacing between consecutive samples.
	StepNM float64

	// N is the number of samples.
	N int
}

// Wavelength returns the wavelength of sample i.
func (s Support) Wavelength(i int) float64 {
	return s.StartNM + float64(i)*s.StepNM
}

// Index returns the sample index nearest to the given wavelength, clamped
// to the valid range.
func (s Support) Index(nm float64) int {
	i := int(math.Round((nm - s.StartNM) / s.StepNM))
	if i < 0 {
		return 0
	}
	if i >= s.N {
		return s.N - 1
	}
	return i
}

// Wavelengths returns the full sampling grid as a slice.
func (s Support) Wavelengths() []float64 {
	out := make([]float64, s.N)
	for i := range out {
		out[i] = s.Wavelength(i)
	}
	return out
}

// Equal reports whether two supports describe the same grid.
func (s Support) Equal(o Support) bool {
	return s.N == o.N &&
		math.Abs(s.StartNM-o.StartNM) < supportTolerance &&
		math.Abs(s.StepNM-o.StepNM) < supportTolerance
}

// LoadSPDTable reads a CSV file whose first column is wavelength (nm) and
// whose remaining columns, named in the header row, are per-primary spectral
// power readings. It returns the curves keyed by primary name together with
// the derived wavelength support.
func LoadSPDTable(path string) (map[string][]float64, Support, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, Support{}, fmt.Errorf("spd: open %s: %w", path, err)
	}
	defer f.Close()

	records, err := csv.NewReader(f).ReadAll()
	if err != nil {
		return nil, Support{}, fmt.Errorf("spd: parse %s: %w", path, err)
	}
	if len(records) < 3 {
		return nil, Support{}, fmt.Errorf("spd: %s: need a header and at least two sample rows", path)
	}

	header := records[0]
	if len(header) < 2 {
		return nil, Support{}, fmt.Errorf("spd: %s: no primary columns", path)
	}
	names := header[1:]

	rows := records[1:]
	wavelengths := make([]float64, len(rows))
	curves := make(map[string][]float64, len(names))
	for _, name := range names {
		curves[name] = make([]float64, len(rows))
	}

	for r, rec := range rows {
		if len(rec) != len(header) {
			return nil, Support{}, fmt.Errorf("spd: %s row %d: expected %d fields, got %d", path, r+2, len(header), len(rec))
		}
		wl, err := strconv.ParseFloat(rec[0], 64)
		if err != nil {
			return nil, Support{}, fmt.Errorf("spd: %s row %d: bad wavelength %q: %w", path, r+2, rec[0], err)
		}
		wavelengths[r] = wl
		for c, name := range names {
			v, err := strconv.ParseFloat(rec[c+1], 64)
			if err != nil {
				return nil, Support{}, fmt.Errorf("spd: %s row %d column %s: %w", path, r+2, name, err)
			}
			curves[name][r] = v
		}
	}

	support, err := deriveSupport(wavelengths)
	if err != nil {
		return nil, Support{}, fmt.Errorf("spd: %s: %w", path, err)
	}
	return curves, support, nil
}

// LoadPowerTable reads a two-column CSV of primary name and measured total
// power in milliwatts. A header row is permitted and detected by a
// non-numeric second field.
func LoadPowerTable(path string) (map[string]float64, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("spd: open %s: %w", path, err)
	}
	defer f.Close()

	records, err := csv.NewReader(f).ReadAll()
	if err != nil {
		return nil, fmt.Errorf("spd: parse %s: %w", path, err)
	}

	powers := make(map[string]float64, len(records))
	for r, rec := range records {
		if len(rec) != 2 {
			return nil, fmt.Errorf("spd: %s row %d: expected 2 fields, got %d", path, r+1, len(rec))
		}
		v, err := strconv.ParseFloat(rec[1], 64)
		if err != nil {
			if r == 0 {
				continue // header row
			}
			return nil, fmt.Errorf("spd: %s row %d: bad power %q: %w", path, r+1, rec[1], err)
		}
		powers[rec[0]] = v
	}
	if len(powers) == 0 {
		return nil, fmt.Errorf("spd: %s: no power rows", path)
	}
	return powers, nil
}

// CheckNames verifies that the SPD and power tables cover the same primary
// name set.
func CheckNames(curves map[string][]float64, powers map[string]float64) error {
	for name := range curves {
		if _, ok := powers[name]; !ok {
			return fmt.Errorf("%w: %q has a spectrum but no power entry", ErrNameMismatch, name)
		}
	}
	for name := range powers {
		if _, ok := curves[name]; !ok {
			return fmt.Errorf("%w: %q has a power entry but no spectrum", ErrNameMismatch, name)
		}
	}
	return nil
}

func deriveSupport(wavelengths []float64) (Support, error) {
	if len(wavelengths) < 2 {
		return Support{}, fmt.Errorf("%w: fewer than two samples", ErrWavelengthMismatch)
	}
	step := wavelengths[1] - wavelengths[0]
	if step <= 0 {
		return Support{}, fmt.Errorf("%w: non-increasing wavelengths", ErrWavelengthMismatch)
	}
	for i := 1; i < len(wavelengths); i++ {
		got := wavelengths[i] - wavelengths[i-1]
		if math.Abs(got-step) > supportTolerance {
			return Support{}, fmt.Errorf("%w: non-uniform step at sample %d (%.6f vs %.6f)", ErrWavelengthMismatch, i, got, step)
		}
	}
	return Support{StartNM: wavelengths[0], StepNM: step, N: len(wavelengths)}, nil
}
