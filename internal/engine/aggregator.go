package engine

import (
	"math"
	"sort"
	"sync"

	"github.com/aclements/go-moremath/stats"
)

// PopulationUnit converts raw population counts to the population tab's
// display unit (millions).
const PopulationUnit = 1_000_000

// Bounds is a closed [Min, Max] interval. Both ends are NaN when there
// was nothing to measure.
type Bounds struct {
	Min float64
	Max float64
}

// Empty reports whether b was computed over no values.
func (b Bounds) Empty() bool {
	return math.IsNaN(b.Min) || math.IsNaN(b.Max)
}

// Union returns the smallest interval covering b and o. Empty operands are
// ignored.
func (b Bounds) Union(o Bounds) Bounds {
	switch {
	case b.Empty():
		return o
	case o.Empty():
		return b
	}
	return Bounds{Min: math.Min(b.Min, o.Min), Max: math.Max(b.Max, o.Max)}
}

// Scale divides both ends by unit.
func (b Bounds) Scale(unit float64) Bounds {
	return Bounds{Min: b.Min / unit, Max: b.Max / unit}
}

// boundsOf returns the bounds of the non-NaN values of xs.
func boundsOf(xs []float64) Bounds {
	present := make([]float64, 0, len(xs))
	for _, x := range xs {
		if !math.IsNaN(x) {
			present = append(present, x)
		}
	}
	if len(present) == 0 {
		return Bounds{Min: math.NaN(), Max: math.NaN()}
	}
	lo, hi := stats.Bounds(present)
	return Bounds{Min: lo, Max: hi}
}

// Series is one country's population over time, in PopulationUnit.
type Series struct {
	Country    string
	Region     string
	Years      []int
	Population []float64
	Bounds     Bounds
}

// Summary holds the dataset-wide values the views need on every update.
type Summary struct {
	// Fields holds [min, max] of every numeric column over all years.
	Fields map[Field]Bounds
	// Series is indexed by country ID.
	Series []Series
}

// Aggregate computes field bounds and per-country population series.
func (cs *ColumnStore) Aggregate() *Summary {
	fields := []Field{Fertility, Life, ChildMortality, GDP, Population}
	columns := [][]float64{cs.Fertility, cs.Life, cs.ChildMortality, cs.GDP, cs.Population}
	bounds := make([]Bounds, len(fields))

	var wg sync.WaitGroup
	for i, col := range columns {
		wg.Add(1)
		go func() {
			defer wg.Done()
			bounds[i] = boundsOf(col)
		}()
	}

	series := make([]Series, len(cs.CountryDict))
	wg.Add(1)
	go func() {
		defer wg.Done()
		rows := make([][]int, len(cs.CountryDict))
		for i, cid := range cs.CountryIDs {
			rows[cid] = append(rows[cid], i)
		}
		for cid, rs := range rows {
			sort.SliceStable(rs, func(a, b int) bool { return cs.Years[rs[a]] < cs.Years[rs[b]] })
			s := Series{
				Country:    cs.CountryDict[cid],
				Years:      make([]int, len(rs)),
				Population: make([]float64, len(rs)),
			}
			if len(rs) > 0 {
				s.Region = cs.Region(rs[0])
			}
			for k, r := range rs {
				s.Years[k] = int(cs.Years[r])
				s.Population[k] = cs.Population[r] / PopulationUnit
			}
			s.Bounds = boundsOf(s.Population)
			series[cid] = s
		}
	}()

	wg.Wait()

	sum := &Summary{Fields: make(map[Field]Bounds, len(fields)), Series: series}
	for i, f := range fields {
		sum.Fields[f] = bounds[i]
	}
	return sum
}
