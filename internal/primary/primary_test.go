package primary

import (
	"errors"
	"math"
	"testing"

	"github.com/lumenlab/silentsub/internal/spd"
)

func TestNormalizePowerIdentity(t *testing.T) {
	support := spd.Support{StartNM: 400, StepNM: 2, N: 4}
	raw := map[string][]float64{
		"LED_450_A": {0.1, 0.8, 0.4, 0.2},
		"LED_530_B": {0.0, 0.2, 0.9, 0.3},
	}
	powers := map[string]float64{"LED_450_A": 12.0, "LED_530_B": 7.5}
	areas := map[string]float64{"_A": 1.0, "_B": 2.25}

	table, err := Normalize(raw, powers, areas, support)
	if err != nil {
		t.Fatalf("Normalize: %v", err)
	}

	for _, p := range table.Primaries {
		var sum float64
		for _, v := range p.Curve {
			if v < 0 {
				t.Fatalf("%s: negative curve value %v", p.Name, v)
			}
			sum += v
		}
		want := p.PowerMilliwatts * p.SurfaceMM2
		got := sum * support.StepNM
		if math.Abs(got-want)/want > 1e-9 {
			t.Errorf("%s: integral = %v, want %v", p.Name, got, want)
		}
	}
}

func TestNormalizeClampsNegativeNoise(t *testing.T) {
	support := spd.Support{StartNM: 400, StepNM: 1, N: 3}
	raw := map[string][]float64{"LED_X_A": {-0.05, 1.0, 0.5}}
	powers := map[string]float64{"LED_X_A": 3.0}
	areas := map[string]float64{"_A": 1.0}

	table, err := Normalize(raw, powers, areas, support)
	if err != nil {
		t.Fatalf("Normalize: %v", err)
	}
	if got := table.Primaries[0].Curve[0]; got != 0 {
		t.Fatalf("negative sample not clamped: %v", got)
	}
}

func TestNormalizePeakWavelength(t *testing.T) {
	support := spd.Support{StartNM: 400, StepNM: 5, N: 4}
	raw := map[string][]float64{"LED_X_A": {0.1, 0.2, 0.9, 0.3}}
	powers := map[string]float64{"LED_X_A": 1.0}
	areas := map[string]float64{"_A": 1.0}

	table, err := Normalize(raw, powers, areas, support)
	if err != nil {
		t.Fatalf("Normalize: %v", err)
	}
	if got := table.Primaries[0].PeakNM; got != 410 {
		t.Fatalf("PeakNM = %v, want 410", got)
	}
}

func TestNormalizeUnknownSurfaceSuffix(t *testing.T) {
	support := spd.Support{StartNM: 400, StepNM: 1, N: 2}
	raw := map[string][]float64{"LED_X_C": {0.5, 0.5}}
	powers := map[string]float64{"LED_X_C": 1.0}
	areas := map[string]float64{"_A": 1.0, "_B": 2.0}

	_, err := Normalize(raw, powers, areas, support)
	if !errors.Is(err, ErrUnknownSurface) {
		t.Fatalf("expected ErrUnknownSurface, got %v", err)
	}
}

func TestSurfaceForPrefersLongestSuffix(t *testing.T) {
	areas := map[string]float64{"_A": 1.0, "_HP_A": 4.0}
	got, err := surfaceFor("LED_450_HP_A", areas)
	if err != nil {
		t.Fatalf("surfaceFor: %v", err)
	}
	if got != 4.0 {
		t.Fatalf("surfaceFor = %v, want 4.0 (longest suffix)", got)
	}
}

func TestTableOrderIsDeterministic(t *testing.T) {
	support := spd.Support{StartNM: 400, StepNM: 1, N: 2}
	raw := map[string][]float64{
		"LED_B_A": {1, 1},
		"LED_A_A": {1, 1},
		"LED_C_A": {1, 1},
	}
	powers := map[string]float64{"LED_A_A": 1, "LED_B_A": 1, "LED_C_A": 1}
	areas := map[string]float64{"_A": 1.0}

	table, err := Normalize(raw, powers, areas, support)
	if err != nil {
		t.Fatalf("Normalize: %v", err)
	}
	want := []string{"LED_A_A", "LED_B_A", "LED_C_A"}
	for i, name := range table.Names() {
		if name != want[i] {
			t.Fatalf("names = %v, want %v", table.Names(), want)
		}
	}
}
