// Package renderer tracks which countries are drawn on the population
// chart. Each active country owns a line renderer and a marker renderer
// bound to its population series.
package renderer

import (
	"errors"
	"fmt"
	"slices"

	"gapminder/internal/engine"
)

var (
	// ErrDesync is returned when a country is deactivated without ever
	// having been activated. It means the renderer set and the checkbox
	// state have diverged and is not recoverable.
	ErrDesync = errors.New("renderer set out of sync")
	// ErrUnknownCountry is returned for an index outside the series list.
	ErrUnknownCountry = errors.New("unknown country index")
)

// Kind distinguishes the two renderers of a pair.
type Kind int

const (
	Line Kind = iota
	Markers
)

func (k Kind) String() string {
	if k == Markers {
		return "markers"
	}
	return "line"
}

// Renderer draws one series in one style.
type Renderer struct {
	Kind   Kind
	Series *engine.Series
}

// Pair is the line and markers drawn for one country.
type Pair struct {
	Index   int
	Line    *Renderer
	Markers *Renderer
}

// Set is the population chart's active renderers keyed by country index.
// It is not safe for concurrent use; the owning session serializes access.
type Set struct {
	series   []engine.Series
	xRange   engine.Bounds
	fallback engine.Bounds
	pairs    map[int]*Pair
	yRange   engine.Bounds
}

// NewSet returns an empty set over series. xRange is the year span of the
// chart and never changes; fallback is the y-range shown while nothing is
// active.
func NewSet(series []engine.Series, xRange, fallback engine.Bounds) *Set {
	return &Set{
		series:   series,
		xRange:   xRange,
		fallback: fallback,
		pairs:    make(map[int]*Pair),
		yRange:   fallback,
	}
}

// Toggle activates or deactivates country idx and recomputes the y-range.
// Activating an active country is a no-op.
func (s *Set) Toggle(idx int, active bool) error {
	if idx < 0 || idx >= len(s.series) {
		return fmt.Errorf("%w: %d", ErrUnknownCountry, idx)
	}
	if active {
		if _, ok := s.pairs[idx]; !ok {
			series := &s.series[idx]
			s.pairs[idx] = &Pair{
				Index:   idx,
				Line:    &Renderer{Kind: Line, Series: series},
				Markers: &Renderer{Kind: Markers, Series: series},
			}
		}
	} else {
		if _, ok := s.pairs[idx]; !ok {
			return fmt.Errorf("%w: deactivating %d (%s) which has no renderers", ErrDesync, idx, s.series[idx].Country)
		}
		delete(s.pairs, idx)
	}
	s.yRange = s.computeYRange()
	return nil
}

// Active returns the active indices in ascending order.
func (s *Set) Active() []int {
	out := make([]int, 0, len(s.pairs))
	for i := range s.pairs {
		out = append(out, i)
	}
	slices.Sort(out)
	return out
}

// Pairs returns the active pairs ordered by index.
func (s *Set) Pairs() []*Pair {
	out := make([]*Pair, 0, len(s.pairs))
	for _, i := range s.Active() {
		out = append(out, s.pairs[i])
	}
	return out
}

// Has reports whether country idx is drawn.
func (s *Set) Has(idx int) bool {
	_, ok := s.pairs[idx]
	return ok
}

// YRange returns the population range, in millions, over the active
// countries. With nothing active, or only countries without population
// data, it is the fallback range.
func (s *Set) YRange() engine.Bounds {
	return s.yRange
}

// XRange returns the chart's year span. It does not follow the active set,
// so toggling a country never moves the x axis.
func (s *Set) XRange() engine.Bounds {
	return s.xRange
}

// Snapshot is the drawable state of a Set at one point in time.
type Snapshot struct {
	Pairs  []*Pair
	XRange engine.Bounds
	YRange engine.Bounds
}

// Snapshot returns the active pairs with both axis ranges.
func (s *Set) Snapshot() Snapshot {
	return Snapshot{Pairs: s.Pairs(), XRange: s.XRange(), YRange: s.YRange()}
}

func (s *Set) computeYRange() engine.Bounds {
	var r engine.Bounds
	found := false
	for _, p := range s.pairs {
		b := p.Line.Series.Bounds
		if b.Empty() {
			continue
		}
		if !found {
			r, found = b, true
			continue
		}
		r = r.Union(b)
	}
	if !found {
		return s.fallback
	}
	return r
}
