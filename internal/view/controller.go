// Package view derives the scatter chart's buckets, axis ranges and
// country highlight from the current widget selection.
package view

import (
	"fmt"
	"math"

	"go.uber.org/zap"

	"gapminder/internal/engine"
)

// AllCountries is the country selector's "no highlight" sentinel.
const AllCountries = "--All--"

// ErrUnknownField rejects a selection naming a column that is not an axis
// option. It is fatal to the request, not to the session.
var ErrUnknownField = engine.ErrUnknownField

// Layout chooses how rows are split into buckets.
type Layout int

const (
	// SingleLayout keeps every country in one bucket with region as a
	// colour category.
	SingleLayout Layout = iota
	// RegionLayout keeps one bucket per region.
	RegionLayout
)

// ParseLayout maps a variant name onto a Layout.
func ParseLayout(s string) (Layout, error) {
	switch s {
	case "single", "":
		return SingleLayout, nil
	case "regions":
		return RegionLayout, nil
	}
	return 0, fmt.Errorf("unknown layout %q", s)
}

func (l Layout) String() string {
	if l == RegionLayout {
		return "regions"
	}
	return "single"
}

// SizeScale maps population to marker size: population/Divisor + Offset.
// The constants only keep markers in a readable range.
type SizeScale struct {
	Divisor float64
	Offset  float64
}

// DefaultSizeScale matches the marker sizes of the original charts.
var DefaultSizeScale = SizeScale{Divisor: 20_000_000, Offset: 2}

// Map applies the scale.
func (s SizeScale) Map(population float64) float64 {
	return population/s.Divisor + s.Offset
}

// Selection is the widget state the scatter depends on.
type Selection struct {
	Year    int
	X       engine.Field
	Y       engine.Field
	Country string
}

// Frame is everything the scatter tab shows for one Selection.
type Frame struct {
	Selection      Selection
	Title          string
	XLabel         string
	YLabel         string
	XRange         engine.Bounds
	YRange         engine.Bounds
	Buckets        []*Bucket
	CountryOptions []string
	// Highlight holds indices into the single bucket. It is always empty
	// for RegionLayout.
	Highlight []int
}

// Rows returns the combined row count of all buckets.
func (f *Frame) Rows() int {
	n := 0
	for _, b := range f.Buckets {
		n += b.Len()
	}
	return n
}

// Controller recomputes frames from a loaded dataset.
type Controller struct {
	store   *engine.ColumnStore
	summary *engine.Summary
	layout  Layout
	sizes   SizeScale
	names   []string
	// allCountries is the fixed country selector of RegionLayout.
	allCountries []string
	logger       *zap.Logger
}

// Option configures a Controller.
type Option func(*Controller)

// WithSizeScale overrides DefaultSizeScale.
func WithSizeScale(s SizeScale) Option {
	return func(c *Controller) { c.sizes = s }
}

// WithLogger sets the controller's logger.
func WithLogger(l *zap.Logger) Option {
	return func(c *Controller) { c.logger = l }
}

// NewController returns a Controller over store. summary must come from
// store.Aggregate.
func NewController(store *engine.ColumnStore, summary *engine.Summary, layout Layout, opts ...Option) *Controller {
	c := &Controller{
		store:   store,
		summary: summary,
		layout:  layout,
		sizes:   DefaultSizeScale,
		logger:  zap.NewNop(),
	}
	for _, o := range opts {
		o(c)
	}
	if layout == RegionLayout {
		c.names = append([]string(nil), store.RegionDict...)
		c.allCountries = append([]string{AllCountries}, store.CountryDict...)
	} else {
		c.names = []string{"all"}
	}
	return c
}

// Layout returns the controller's bucket layout.
func (c *Controller) Layout() Layout { return c.layout }

// BucketNames returns the bucket names in display order.
func (c *Controller) BucketNames() []string { return c.names }

// NewBucketSet returns an empty set shaped for this controller.
func (c *Controller) NewBucketSet() *BucketSet { return NewBucketSet(c.names) }

func (c *Controller) columns(sel Selection) (xs, ys []float64, err error) {
	if !sel.X.Selectable() {
		return nil, nil, fmt.Errorf("x axis: %w: %q", ErrUnknownField, string(sel.X))
	}
	if !sel.Y.Selectable() {
		return nil, nil, fmt.Errorf("y axis: %w: %q", ErrUnknownField, string(sel.Y))
	}
	if xs, err = c.store.Column(sel.X); err != nil {
		return nil, nil, err
	}
	if ys, err = c.store.Column(sel.Y); err != nil {
		return nil, nil, err
	}
	return xs, ys, nil
}

// presentRows returns the rows of year with both xs and ys present, in
// file order. A year outside the dataset yields no rows.
func (c *Controller) presentRows(year int, xs, ys []float64) []int {
	rows := c.store.Rows(year)
	out := make([]int, 0, len(rows))
	for _, r := range rows {
		if math.IsNaN(xs[r]) || math.IsNaN(ys[r]) {
			continue
		}
		out = append(out, r)
	}
	return out
}

// Recompute builds the frame for sel. It does not touch any BucketSet.
func (c *Controller) Recompute(sel Selection) (*Frame, error) {
	xs, ys, err := c.columns(sel)
	if err != nil {
		return nil, err
	}
	rows := c.presentRows(sel.Year, xs, ys)

	buckets := make([]*Bucket, len(c.names))
	byRegion := make(map[int32]*Bucket, len(c.names))
	for i, n := range c.names {
		buckets[i] = newBucket(n, len(rows))
		if c.layout == RegionLayout {
			byRegion[int32(i)] = buckets[i]
		}
	}

	for _, r := range rows {
		b := buckets[0]
		if c.layout == RegionLayout {
			b = byRegion[c.store.RegionIDs[r]]
		}
		b.append(xs[r], ys[r], c.sizes.Map(c.store.Population[r]), c.store.Country(r), c.store.Region(r))
	}

	f := &Frame{
		Selection:      sel,
		Title:          fmt.Sprintf("Gapminder data for %d", sel.Year),
		XLabel:         sel.X.Label(),
		YLabel:         sel.Y.Label(),
		XRange:         c.summary.Fields[sel.X],
		YRange:         c.summary.Fields[sel.Y],
		Buckets:        buckets,
		CountryOptions: c.countryOptions(rows),
	}
	if c.layout == SingleLayout {
		f.Highlight = c.highlight(sel.Country, rows)
	}
	return f, nil
}

// Apply recomputes sel and installs the result into set.
func (c *Controller) Apply(set *BucketSet, sel Selection) (*Frame, error) {
	f, err := c.Recompute(sel)
	if err != nil {
		return nil, err
	}
	set.Replace(f.Buckets)
	return f, nil
}

// CountryOptions returns the country selector's options for sel: the
// AllCountries sentinel followed by the year's countries with both fields
// present. RegionLayout always offers every country in the dataset.
func (c *Controller) CountryOptions(sel Selection) ([]string, error) {
	xs, ys, err := c.columns(sel)
	if err != nil {
		return nil, err
	}
	return c.countryOptions(c.presentRows(sel.Year, xs, ys)), nil
}

func (c *Controller) countryOptions(rows []int) []string {
	if c.layout == RegionLayout {
		return c.allCountries
	}
	opts := make([]string, 0, len(rows)+1)
	opts = append(opts, AllCountries)
	seen := make(map[int32]bool, len(rows))
	for _, r := range rows {
		id := c.store.CountryIDs[r]
		if !seen[id] {
			seen[id] = true
			opts = append(opts, c.store.CountryDict[id])
		}
	}
	return opts
}

// Highlight returns the selected point for sel: empty for AllCountries,
// otherwise the country's position in the year's ordered list of countries
// with both fields present. A country missing from that list clears the
// highlight.
func (c *Controller) Highlight(sel Selection) ([]int, error) {
	xs, ys, err := c.columns(sel)
	if err != nil {
		return nil, err
	}
	return c.highlight(sel.Country, c.presentRows(sel.Year, xs, ys)), nil
}

func (c *Controller) highlight(country string, rows []int) []int {
	if country == AllCountries || country == "" {
		return []int{}
	}
	for i, r := range rows {
		if c.store.Country(r) == country {
			return []int{i}
		}
	}
	c.logger.Debug("highlight cleared: country not present in year", zap.String("country", country))
	return []int{}
}
