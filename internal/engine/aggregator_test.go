package engine

import (
	"math"
	"testing"
)

func TestAggregate(t *testing.T) {
	// 1. Setup Mock Data (ColumnStore)
	// Scenario:
	// Row 0: A, 1970, fertility 2.1, population 10M
	// Row 1: B, 1970, fertility NaN, population 20M
	// Row 2: A, 1971, fertility 4.0, population 12M
	// Row 3: B, 1969, fertility 3.0, population NaN
	nan := math.NaN()
	store := &ColumnStore{
		Years:          []int32{1970, 1970, 1971, 1969},
		Fertility:      []float64{2.1, nan, 4.0, 3.0},
		Life:           []float64{60, 70, 61, 50},
		ChildMortality: []float64{nan, nan, nan, nan},
		GDP:            []float64{100, 200, 300, 400},
		Population:     []float64{10e6, 20e6, 12e6, nan},

		CountryIDs: []int32{0, 1, 0, 1},
		RegionIDs:  []int32{0, 1, 0, 1},

		CountryDict: []string{"A", "B"},
		RegionDict:  []string{"North", "South"},
	}
	if err := store.buildIndex(); err != nil {
		t.Fatal(err)
	}

	// 2. Run Aggregation
	sum := store.Aggregate()

	// 3. Assertions

	// A. Field bounds span all years and skip NaN
	if b := sum.Fields[Fertility]; b.Min != 2.1 || b.Max != 4.0 {
		t.Errorf("Fertility bounds: got %+v", b)
	}
	if b := sum.Fields[Life]; b.Min != 50 || b.Max != 70 {
		t.Errorf("Life bounds: got %+v", b)
	}
	if b := sum.Fields[ChildMortality]; !b.Empty() {
		t.Errorf("ChildMortality bounds should be empty, got %+v", b)
	}

	// B. Series are ordered by year, in millions
	if len(sum.Series) != 2 {
		t.Fatalf("Expected 2 series, got %d", len(sum.Series))
	}
	a := sum.Series[0]
	if a.Country != "A" || a.Region != "North" {
		t.Errorf("Series 0: got %s/%s", a.Country, a.Region)
	}
	if len(a.Years) != 2 || a.Years[0] != 1970 || a.Years[1] != 1971 {
		t.Errorf("Series A years: got %v", a.Years)
	}
	if a.Population[0] != 10 || a.Population[1] != 12 {
		t.Errorf("Series A population: got %v", a.Population)
	}
	if a.Bounds.Min != 10 || a.Bounds.Max != 12 {
		t.Errorf("Series A bounds: got %+v", a.Bounds)
	}

	b := sum.Series[1]
	if b.Years[0] != 1969 {
		t.Errorf("Series B should start in 1969, got %v", b.Years)
	}
	if b.Bounds.Min != 20 || b.Bounds.Max != 20 {
		t.Errorf("Series B bounds should skip NaN: got %+v", b.Bounds)
	}
}

func TestBoundsUnion(t *testing.T) {
	empty := Bounds{Min: math.NaN(), Max: math.NaN()}
	x := Bounds{Min: 1, Max: 3}
	y := Bounds{Min: -2, Max: 2}

	if got := x.Union(y); got != (Bounds{Min: -2, Max: 3}) {
		t.Errorf("Union: got %+v", got)
	}
	if got := empty.Union(x); got != x {
		t.Errorf("empty.Union(x): got %+v", got)
	}
	if got := x.Union(empty); got != x {
		t.Errorf("x.Union(empty): got %+v", got)
	}
	if got := x.Scale(2); got != (Bounds{Min: 0.5, Max: 1.5}) {
		t.Errorf("Scale: got %+v", got)
	}
}
