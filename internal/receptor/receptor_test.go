package receptor

import (
	"math"
	"testing"

	"github.com/lumenlab/silentsub/internal/spd"
)

func testSupport() spd.Support {
	return spd.Support{StartNM: 380, StepNM: 2, N: 201} // 380-780
}

func TestSensitivitiesShapeAndNormalization(t *testing.T) {
	support := testSupport()
	obs := Observer{FieldSizeDeg: 10, AgeYears: 32, PupilMM: 4}

	T, err := Sensitivities(support, DefaultClasses, obs)
	if err != nil {
		t.Fatalf("Sensitivities: %v", err)
	}

	rows, cols := T.Dims()
	if rows != len(DefaultClasses) || cols != support.N {
		t.Fatalf("dims = %dx%d, want %dx%d", rows, cols, len(DefaultClasses), support.N)
	}

	for r := 0; r < rows; r++ {
		best := 0.0
		for c := 0; c < cols; c++ {
			v := T.At(r, c)
			if v < 0 {
				t.Fatalf("class %s: negative sensitivity %v", DefaultClasses[r], v)
			}
			if v > best {
				best = v
			}
		}
		if math.Abs(best-1.0) > 1e-12 {
			t.Errorf("class %s: peak = %v, want 1.0", DefaultClasses[r], best)
		}
	}
}

func TestSensitivityPeaksOrdering(t *testing.T) {
	// After prereceptoral filtering the in-situ peaks shift, but the L cone
	// must still peak at a longer wavelength than M, and M longer than S.
	support := testSupport()
	obs := Observer{FieldSizeDeg: 10, AgeYears: 32}

	T, err := Sensitivities(support, []Class{LConePeripheral, MConePeripheral, SConePeripheral}, obs)
	if err != nil {
		t.Fatalf("Sensitivities: %v", err)
	}

	peaks := make([]float64, 3)
	for r := 0; r < 3; r++ {
		best := 0
		for c := 0; c < support.N; c++ {
			if T.At(r, c) > T.At(r, best) {
				best = c
			}
		}
		peaks[r] = support.Wavelength(best)
	}
	if !(peaks[0] > peaks[1] && peaks[1] > peaks[2]) {
		t.Fatalf("peak ordering L > M > S violated: %v", peaks)
	}
}

func TestCentralClassesCarryMacularPigment(t *testing.T) {
	// Macular pigment absorbs around 460 nm, so a central M cone must be
	// relatively less sensitive there than its peripheral counterpart.
	support := testSupport()
	obs := Observer{FieldSizeDeg: 2, AgeYears: 32}

	T, err := Sensitivities(support, []Class{MConePeripheral, MConeCentral}, obs)
	if err != nil {
		t.Fatalf("Sensitivities: %v", err)
	}

	i := support.Index(460)
	if T.At(1, i) >= T.At(0, i) {
		t.Fatalf("central M at 460nm (%v) not attenuated below peripheral (%v)", T.At(1, i), T.At(0, i))
	}
}

func TestOlderLensAttenuatesShortWavelengths(t *testing.T) {
	support := testSupport()
	young := Observer{FieldSizeDeg: 10, AgeYears: 25}
	old := Observer{FieldSizeDeg: 10, AgeYears: 70}

	Ty, err := Sensitivities(support, []Class{SConePeripheral}, young)
	if err != nil {
		t.Fatalf("Sensitivities young: %v", err)
	}
	To, err := Sensitivities(support, []Class{SConePeripheral}, old)
	if err != nil {
		t.Fatalf("Sensitivities old: %v", err)
	}

	// Compare short vs long wavelength ratio; the older lens suppresses the
	// short end relative to the peak-normalized curve.
	i := support.Index(410)
	if To.At(0, i) >= Ty.At(0, i) {
		t.Fatalf("70y S cone at 410nm (%v) not below 25y (%v)", To.At(0, i), Ty.At(0, i))
	}
}

func TestUnknownClassRejected(t *testing.T) {
	support := testSupport()
	_, err := Sensitivities(support, []Class{"Unobtainium"}, Observer{AgeYears: 32})
	if err == nil {
		t.Fatal("expected error for unknown class")
	}
}

func TestSensitivitiesPure(t *testing.T) {
	support := testSupport()
	obs := Observer{FieldSizeDeg: 10, AgeYears: 32}

	a, err := Sensitivities(support, DefaultClasses, obs)
	if err != nil {
		t.Fatalf("Sensitivities: %v", err)
	}
	b, err := Sensitivities(support, DefaultClasses, obs)
	if err != nil {
		t.Fatalf("Sensitivities: %v", err)
	}
	if !matEqual(a, b) {
		t.Fatal("repeated calls differ")
	}
}

func matEqual(a, b interface {
	Dims() (int, int)
	At(int, int) float64
}) bool {
	ar, ac := a.Dims()
	br, bc := b.Dims()
	if ar != br || ac != bc {
		return false
	}
	for r := 0; r < ar; r++ {
		for c := 0; c < ac; c++ {
			if a.At(r, c) != b.At(r, c) {
				return false
			}
		}
	}
	return true
}
