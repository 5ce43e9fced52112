package store

import (
	"context"
	"reflect"
	"testing"

	"github.com/lumenlab/silentsub/internal/modulation"
	"github.com/lumenlab/silentsub/internal/search"
)

func testBundle() Bundle {
	return Bundle{
		ConfigYAML:      "subset_size: 2\n",
		Score:           0.07,
		SubsetsTested:   12,
		ReceptorClasses: []string{"LConePeripheral", "Melanopsin"},
		Sensitivities:   [][]float64{{0.1, 0.9, 0.3}, {0.2, 0.5, 0.8}},
		Directions: []modulation.Direction{
			{Name: "mel", Targets: []int{1}, Ignore: []int{0}, Desired: []float64{0.4}, Scored: true},
		},
		Outcome: search.Outcome{
			Subset:     []int{0, 2},
			Names:      []string{"LED_450_A", "LED_590_A"},
			Crossovers: []float64{520},
			Trials: []modulation.Trial{
				{
					Direction:        "mel",
					Background:       []float64{0.5, 0.5},
					Modulation:       []float64{0.7, 0.3},
					PositiveContrast: []float64{0.01, 0.39},
					Converged:        true,
				},
			},
		},
	}
}

func openStore(t *testing.T) *DesignStore {
	t.Helper()
	s, err := Open(t.TempDir())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestSaveAndLoadRoundTrip(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()

	saved, err := s.Save(ctx, testBundle())
	if err != nil {
		t.Fatalf("Save: %v", err)
	}
	if saved.ID == 0 {
		t.Fatal("saved bundle has no ID")
	}
	if saved.CreatedAt.IsZero() {
		t.Fatal("saved bundle has no timestamp")
	}

	loaded, err := s.Load(ctx, saved.ID)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !reflect.DeepEqual(loaded.Outcome, saved.Outcome) {
		t.Fatalf("outcome round trip mismatch:\n got %+v\nwant %+v", loaded.Outcome, saved.Outcome)
	}
	if !reflect.DeepEqual(loaded.Sensitivities, saved.Sensitivities) {
		t.Fatal("sensitivities round trip mismatch")
	}
	if !reflect.DeepEqual(loaded.Directions, saved.Directions) {
		t.Fatal("directions round trip mismatch")
	}
	if loaded.Score != saved.Score || loaded.SubsetsTested != saved.SubsetsTested {
		t.Fatal("scalar fields round trip mismatch")
	}
}

func TestLatestReturnsNewest(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()

	first := testBundle()
	first.Score = 0.5
	if _, err := s.Save(ctx, first); err != nil {
		t.Fatalf("Save: %v", err)
	}
	second := testBundle()
	second.Score = 0.1
	if _, err := s.Save(ctx, second); err != nil {
		t.Fatalf("Save: %v", err)
	}

	latest, err := s.Latest(ctx)
	if err != nil {
		t.Fatalf("Latest: %v", err)
	}
	if latest.Score != 0.1 {
		t.Fatalf("Latest score = %v, want 0.1", latest.Score)
	}
}

func TestListSummaries(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if _, err := s.Save(ctx, testBundle()); err != nil {
			t.Fatalf("Save: %v", err)
		}
	}

	entries, err := s.List(ctx)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(entries) != 3 {
		t.Fatalf("got %d entries, want 3", len(entries))
	}
	// Newest first.
	if entries[0].ID < entries[1].ID {
		t.Fatal("entries not sorted newest first")
	}
	if !reflect.DeepEqual(entries[0].Names, []string{"LED_450_A", "LED_590_A"}) {
		t.Fatalf("entry names = %v", entries[0].Names)
	}
}

func TestLoadMissingID(t *testing.T) {
	s := openStore(t)
	if _, err := s.Load(context.Background(), 999); err == nil {
		t.Fatal("expected error for missing design")
	}
}

func TestOpenIsIdempotent(t *testing.T) {
	dir := t.TempDir()
	s1, err := Open(dir)
	if err != nil {
		t.Fatalf("first Open: %v", err)
	}
	if _, err := s1.Save(context.Background(), testBundle()); err != nil {
		t.Fatalf("Save: %v", err)
	}
	s1.Close()

	s2, err := Open(dir)
	if err != nil {
		t.Fatalf("second Open: %v", err)
	}
	defer s2.Close()

	entries, err := s2.List(context.Background())
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("got %d entries after reopen, want 1", len(entries))
	}
}
