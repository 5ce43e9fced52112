package solver

import (
	"math"
	"testing"

	"gonum.org/v1/gonum/mat"
)

// identitySystem builds a 2-sample, 2-primary, 2-receptor system where
// B and T are identity matrices, so contrast_r = (w_r - bg_r) / bg_r.
func identitySystem() (B, T *mat.Dense) {
	B = mat.NewDense(2, 2, []float64{1, 0, 0, 1})
	T = mat.NewDense(2, 2, []float64{1, 0, 0, 1})
	return B, T
}

func TestContrastsIdentitySystem(t *testing.T) {
	B, T := identitySystem()
	bg := []float64{0.5, 0.5}
	w := []float64{0.7, 0.4}

	c := Contrasts(T, B, bg, w, nil)
	want := []float64{0.4, -0.2}
	for i := range want {
		if math.Abs(c[i]-want[i]) > 1e-12 {
			t.Errorf("contrast[%d] = %v, want %v", i, c[i], want[i])
		}
	}
}

func TestContrastsWithAmbient(t *testing.T) {
	B, T := identitySystem()
	bg := []float64{0.5, 0.5}
	w := []float64{0.7, 0.5}
	ambient := []float64{0.5, 0.5}

	// Ambient doubles the background excitation, halving the contrast.
	c := Contrasts(T, B, bg, w, ambient)
	if math.Abs(c[0]-0.2) > 1e-12 {
		t.Errorf("contrast[0] = %v, want 0.2", c[0])
	}
}

func TestSolveTargetAndSilence(t *testing.T) {
	B, T := identitySystem()
	res, err := Solve(Problem{
		B:          B,
		T:          T,
		Background: []float64{0.5, 0.5},
		Targets:    []int{0},
		Ignore:     []int{1},
		Headroom:   0.02,
		Desired:    []float64{0.4},
	}, DefaultOptions())
	if err != nil {
		t.Fatalf("Solve: %v", err)
	}
	if !res.Converged {
		t.Fatal("expected convergence without group constraints")
	}
	if math.Abs(res.Achieved[0]-0.4) > 1e-3 {
		t.Errorf("target contrast = %v, want 0.4", res.Achieved[0])
	}
	if math.Abs(res.Achieved[1]) > 1e-3 {
		t.Errorf("silenced contrast = %v, want about 0", res.Achieved[1])
	}
	for j, v := range res.Modulation {
		if v < 0.02 || v > 0.98 {
			t.Errorf("primary %d = %v outside headroom box", j, v)
		}
	}
}

func TestSolveRespectsHeadroomCeiling(t *testing.T) {
	// With headroom 0.1 and background 0.5, the device cannot exceed
	// contrast (0.9-0.5)/0.5 = 0.8 on an identity system.
	B, T := identitySystem()
	res, err := Solve(Problem{
		B:          B,
		T:          T,
		Background: []float64{0.5, 0.5},
		Targets:    []int{0},
		Ignore:     []int{1},
		Headroom:   0.1,
		Desired:    []float64{2.0},
	}, DefaultOptions())
	if err != nil {
		t.Fatalf("Solve: %v", err)
	}
	if res.Achieved[0] <= 0 {
		t.Fatalf("achieved contrast %v lost the sign of the desire", res.Achieved[0])
	}
	if res.Achieved[0] > 0.8+1e-9 {
		t.Fatalf("achieved contrast %v exceeds the headroom ceiling 0.8", res.Achieved[0])
	}
}

func TestSolvePinnedPrimaryExcluded(t *testing.T) {
	B, T := identitySystem()
	res, err := Solve(Problem{
		B:          B,
		T:          T,
		Background: []float64{0.5, 0.5},
		Targets:    []int{0},
		Pinned:     map[int]float64{1: 0.25},
		Headroom:   0.02,
		Desired:    []float64{0.3},
	}, DefaultOptions())
	if err != nil {
		t.Fatalf("Solve: %v", err)
	}
	if res.Modulation[1] != 0.25 {
		t.Fatalf("pinned primary moved to %v", res.Modulation[1])
	}
}

func TestSolveShrinksAndAbortsOnImpossibleSpread(t *testing.T) {
	// Pinning primary 1 at the background forces receptor 1's contrast to
	// zero, so a tight spread between receptors 0 and 1 can never hold at
	// any nonzero contrast. The solver must shrink, abort at the threshold,
	// and still return a usable vector.
	B, T := identitySystem()
	res, err := Solve(Problem{
		B:              B,
		T:              T,
		Background:     []float64{0.5, 0.5},
		Targets:        []int{0, 1},
		Pinned:         map[int]float64{1: 0.5},
		Headroom:       0.02,
		Desired:        []float64{0.4},
		ContrastGroups: [][]int{{0, 1}},
		MaxGroupSpread: 1e-6,
		ShrinkStep:     0.25,
		ShrinkAbort:    0.3,
	}, DefaultOptions())
	if err != nil {
		t.Fatalf("Solve: %v", err)
	}
	if res.Converged {
		t.Fatal("expected non-convergence for an impossible spread constraint")
	}
	if len(res.Modulation) != 2 {
		t.Fatalf("no fallback vector returned")
	}
	if res.Requested[0] >= 0.4 {
		t.Fatalf("requested contrast %v was never shrunk", res.Requested[0])
	}
}

func TestSolveGroupSpreadSatisfiedFirstTry(t *testing.T) {
	// Two identical receptors always achieve identical contrast, so the
	// spread constraint holds immediately at full desire.
	B := mat.NewDense(2, 2, []float64{1, 0, 0, 1})
	T := mat.NewDense(2, 2, []float64{1, 1, 1, 1})
	res, err := Solve(Problem{
		B:              B,
		T:              T,
		Background:     []float64{0.5, 0.5},
		Targets:        []int{0, 1},
		Headroom:       0.02,
		Desired:        []float64{0.3},
		ContrastGroups: [][]int{{0, 1}},
		MaxGroupSpread: 0.01,
		ShrinkStep:     0.1,
		ShrinkAbort:    0.2,
	}, DefaultOptions())
	if err != nil {
		t.Fatalf("Solve: %v", err)
	}
	if !res.Converged {
		t.Fatal("expected convergence")
	}
	if res.Requested[0] != 0.3 {
		t.Fatalf("requested contrast %v was shrunk unnecessarily", res.Requested[0])
	}
}

func TestSolveValidation(t *testing.T) {
	B, T := identitySystem()
	base := Problem{
		B:          B,
		T:          T,
		Background: []float64{0.5, 0.5},
		Targets:    []int{0},
		Headroom:   0.02,
		Desired:    []float64{0.4},
	}

	tests := []struct {
		name   string
		mutate func(*Problem)
	}{
		{"no targets", func(p *Problem) { p.Targets = nil }},
		{"target out of range", func(p *Problem) { p.Targets = []int{5} }},
		{"background length", func(p *Problem) { p.Background = []float64{0.5} }},
		{"headroom too large", func(p *Problem) { p.Headroom = 0.5 }},
		{"desired arity", func(p *Problem) { p.Targets = []int{0, 1}; p.Desired = []float64{0.1, 0.2, 0.3} }},
		{"bad shrink step", func(p *Problem) {
			p.ContrastGroups = [][]int{{0, 1}}
			p.MaxGroupSpread = 0.1
			p.ShrinkStep = 0
			p.ShrinkAbort = 0.5
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := base
			tt.mutate(&p)
			if _, err := Solve(p, DefaultOptions()); err == nil {
				t.Fatal("expected validation error")
			}
		})
	}
}

func TestImpliedMinimizeCoversUnmentionedReceptors(t *testing.T) {
	T := mat.NewDense(4, 2, nil)
	B := mat.NewDense(2, 2, nil)
	p := Problem{
		B:        B,
		T:        T,
		Targets:  []int{0},
		Ignore:   []int{1},
		Minimize: []int{2},
	}
	got := impliedMinimize(p)
	want := map[int]bool{2: true, 3: true}
	if len(got) != len(want) {
		t.Fatalf("impliedMinimize = %v, want receptors 2 and 3", got)
	}
	for _, idx := range got {
		if !want[idx] {
			t.Fatalf("unexpected minimized receptor %d", idx)
		}
	}
}

func TestBoxedRoundTrip(t *testing.T) {
	for _, w := range []float64{0.05, 0.2, 0.5, 0.8, 0.95} {
		got := boxed(unboxed(w, 0.02), 0.02)
		if math.Abs(got-w) > 1e-9 {
			t.Errorf("boxed(unboxed(%v)) = %v", w, got)
		}
	}
}
