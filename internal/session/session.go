// Package session holds one interactive explorer session: its widgets,
// the scatter buckets derived from them and the population renderers.
// Every widget event is handled to completion under the session lock
// before the next one starts.
package session

import (
	"context"
	"errors"
	"fmt"
	"math"
	"slices"
	"sync"
	"time"

	"go.uber.org/zap"

	"gapminder/internal/engine"
	"gapminder/internal/events"
	"gapminder/internal/models"
	"gapminder/internal/renderer"
	"gapminder/internal/view"
	"gapminder/internal/widget"
)

var (
	// ErrClosed is returned by every operation on a closed session.
	ErrClosed = errors.New("session closed")
	// ErrNoPopulationTab is returned for population operations in the
	// per-region layout.
	ErrNoPopulationTab = errors.New("layout has no population tab")
)

// Data is the loaded dataset shared read-only by all sessions.
type Data struct {
	Store   *engine.ColumnStore
	Summary *engine.Summary
}

// NewData aggregates store.
func NewData(store *engine.ColumnStore) *Data {
	return &Data{Store: store, Summary: store.Aggregate()}
}

// Years returns the dataset's year span, empty for an empty dataset.
func (d *Data) Years() engine.Bounds {
	first, last, ok := d.Store.YearRange()
	if !ok {
		return engine.Bounds{Min: math.NaN(), Max: math.NaN()}
	}
	return engine.Bounds{Min: float64(first), Max: float64(last)}
}

// PopulationChoices returns the population checkbox labels and the series
// behind them: every country in first-appearance order except excluded.
func (d *Data) PopulationChoices(excluded []string) (labels []string, series []engine.Series) {
	for _, s := range d.Summary.Series {
		if slices.Contains(excluded, s.Country) {
			continue
		}
		labels = append(labels, s.Country)
		series = append(series, s)
	}
	return labels, series
}

// Options configures new sessions.
type Options struct {
	Layout    view.Layout
	YearStart int
	YearEnd   int
	// Excluded countries never get a population checkbox.
	Excluded  []string
	SizeScale view.SizeScale
	Publisher events.Publisher
	Logger    *zap.Logger
}

// DefaultOptions mirrors the original explorer.
func DefaultOptions() Options {
	return Options{
		Layout:    view.SingleLayout,
		YearStart: 1970,
		YearEnd:   2010,
		Excluded:  []string{"Tokelau", "Åland"},
		SizeScale: view.DefaultSizeScale,
	}
}

func (o Options) withDefaults() Options {
	if o.Publisher == nil {
		o.Publisher = &events.NoopPublisher{}
	}
	if o.Logger == nil {
		o.Logger = zap.NewNop()
	}
	if o.SizeScale == (view.SizeScale{}) {
		o.SizeScale = view.DefaultSizeScale
	}
	return o
}

// Session is one user's explorer state.
type Session struct {
	ID string

	mu        sync.Mutex
	ctl       *view.Controller
	buckets   *view.BucketSet
	renderers *renderer.Set

	year       *widget.Slider
	x          *widget.Select
	y          *widget.Select
	country    *widget.Select
	population *widget.CheckboxGroup

	frame    *view.Frame
	closed   bool
	lastUsed time.Time

	pub    events.Publisher
	logger *zap.Logger
	now    func() time.Time
}

// New builds a session positioned at the first year with fertility
// against life expectancy, and computes its first frame.
func New(id string, data *Data, ctl *view.Controller, opts Options) (*Session, error) {
	opts = opts.withDefaults()
	s := &Session{
		ID:      id,
		ctl:     ctl,
		buckets: ctl.NewBucketSet(),
		pub:     opts.Publisher,
		logger:  opts.Logger.With(zap.String("session", id)),
		now:     time.Now,
	}
	s.lastUsed = s.now()

	fields := make([]string, len(engine.SelectableFields))
	for i, f := range engine.SelectableFields {
		fields[i] = string(f)
	}
	var err error
	s.year = widget.NewSlider("Year", opts.YearStart, opts.YearEnd, 1, opts.YearStart)
	if s.x, err = widget.NewSelect("x-axis data", fields, string(engine.Fertility)); err != nil {
		return nil, err
	}
	if s.y, err = widget.NewSelect("y-axis data", fields, string(engine.Life)); err != nil {
		return nil, err
	}
	if s.country, err = widget.NewSelect("Country", []string{view.AllCountries}, view.AllCountries); err != nil {
		return nil, err
	}

	if ctl.Layout() == view.SingleLayout {
		labels, series := data.PopulationChoices(opts.Excluded)
		fallback := data.Summary.Fields[engine.Population].Scale(engine.PopulationUnit)
		s.renderers = renderer.NewSet(series, data.Years(), fallback)
		s.population = widget.NewCheckboxGroup(labels)
		s.population.OnChange(s.updatePopulation)
	}

	s.year.OnChange(func(_, _ int) error { return s.updatePlot() })
	s.x.OnChange(func(_, _ string) error { return s.updatePlot() })
	s.y.OnChange(func(_, _ string) error { return s.updatePlot() })
	s.country.OnChange(func(_, _ string) error { return s.updatePlot() })

	if err := s.updatePlot(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Session) selection() view.Selection {
	return view.Selection{
		Year:    s.year.Value(),
		X:       engine.Field(s.x.Value()),
		Y:       engine.Field(s.y.Value()),
		Country: s.country.Value(),
	}
}

// updatePlot recomputes the scatter buckets, ranges, title and highlight
// and refreshes the country selector's options.
func (s *Session) updatePlot() error {
	f, err := s.ctl.Apply(s.buckets, s.selection())
	if err != nil {
		return err
	}
	s.country.SetOptions(f.CountryOptions)
	s.frame = f
	s.logger.Debug("scatter updated",
		zap.Int("year", f.Selection.Year),
		zap.String("x", string(f.Selection.X)),
		zap.String("y", string(f.Selection.Y)),
		zap.Int("rows", f.Rows()))
	return nil
}

// updatePopulation applies a checkbox change to the renderer set one
// index at a time.
func (s *Session) updatePopulation(old, new []int) error {
	for _, i := range old {
		if !slices.Contains(new, i) {
			if err := s.renderers.Toggle(i, false); err != nil {
				return err
			}
		}
	}
	for _, i := range new {
		if !slices.Contains(old, i) {
			if err := s.renderers.Toggle(i, true); err != nil {
				return err
			}
		}
	}
	s.logger.Debug("population updated", zap.Ints("active", new))
	return nil
}

// dispatch runs one widget event under the session lock and publishes
// the resulting state. A renderer desync closes the session.
func (s *Session) dispatch(ctx context.Context, kind string, fn func() error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrClosed
	}
	s.lastUsed = s.now()

	if err := fn(); err != nil {
		if errors.Is(err, renderer.ErrDesync) {
			s.logger.Error("population renderers out of sync, closing session", zap.Error(err))
			s.closeLocked(ctx, "renderer desync")
		}
		return err
	}

	var payload any
	switch kind {
	case events.KindFrame:
		payload = models.FrameOf(s.frame)
	case events.KindPopulation:
		payload = models.PopulationOf(s.renderers)
	}
	if err := s.pub.Publish(ctx, events.Topic(s.ID, kind), payload); err != nil {
		s.logger.Warn("publishing update failed", zap.String("kind", kind), zap.Error(err))
	}
	return nil
}

// SetYear moves the year slider.
func (s *Session) SetYear(ctx context.Context, year int) error {
	return s.dispatch(ctx, events.KindFrame, func() error { return s.year.Set(year) })
}

// SetAxis selects the field shown on axis "x" or "y".
func (s *Session) SetAxis(ctx context.Context, axis, field string) error {
	f, err := engine.ParseField(field)
	if err != nil {
		return err
	}
	if !f.Selectable() {
		return fmt.Errorf("%w: %q is not an axis option", view.ErrUnknownField, field)
	}
	return s.dispatch(ctx, events.KindFrame, func() error {
		switch axis {
		case "x":
			return s.x.Set(string(f))
		case "y":
			return s.y.Set(string(f))
		}
		return fmt.Errorf("%w: axis %q", widget.ErrInvalidOption, axis)
	})
}

// SetCountry selects the highlighted country, or view.AllCountries.
func (s *Session) SetCountry(ctx context.Context, country string) error {
	return s.dispatch(ctx, events.KindFrame, func() error { return s.country.Set(country) })
}

// TogglePopulation checks or unchecks one population checkbox.
func (s *Session) TogglePopulation(ctx context.Context, idx int, on bool) error {
	if s.population == nil {
		return ErrNoPopulationTab
	}
	return s.dispatch(ctx, events.KindPopulation, func() error { return s.population.Toggle(idx, on) })
}

// SetPopulation replaces the set of checked population boxes.
func (s *Session) SetPopulation(ctx context.Context, active []int) error {
	if s.population == nil {
		return ErrNoPopulationTab
	}
	return s.dispatch(ctx, events.KindPopulation, func() error { return s.population.SetActive(active) })
}

// Frame returns the current scatter frame.
func (s *Session) Frame() *view.Frame {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.frame
}

// Buckets returns the current scatter buckets.
func (s *Session) Buckets() []*view.Bucket {
	return s.buckets.Snapshot()
}

// PopulationView returns the drawn population pairs with the chart's
// ranges, or ErrNoPopulationTab.
func (s *Session) PopulationView() (renderer.Snapshot, error) {
	if s.renderers == nil {
		return renderer.Snapshot{}, ErrNoPopulationTab
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.renderers.Snapshot(), nil
}

// State returns a snapshot of everything the client renders.
func (s *Session) State() models.SessionState {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := models.SessionState{
		ID:     s.ID,
		Layout: s.ctl.Layout().String(),
		Frame:  models.FrameOf(s.frame),
		Widgets: models.Widgets{
			Year: models.Slider{
				Title: s.year.Title, Start: s.year.Start, End: s.year.End,
				Step: s.year.Step, Value: s.year.Value(),
			},
			X:       selectState(s.x),
			Y:       selectState(s.y),
			Country: selectState(s.country),
		},
	}
	if s.renderers != nil {
		pop := models.PopulationOf(s.renderers)
		st.Population = &pop
		st.Widgets.Population = &models.CheckboxGroup{
			Labels: s.population.Labels(),
			Active: s.population.Active(),
		}
	}
	return st
}

func selectState(w *widget.Select) models.Select {
	return models.Select{Title: w.Title, Options: w.Options(), Value: w.Value()}
}

// LastUsed returns when the session last handled an event.
func (s *Session) LastUsed() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastUsed
}

// Closed reports whether the session has ended.
func (s *Session) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// Close ends the session. Closing twice is a no-op.
func (s *Session) Close(ctx context.Context, reason string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closeLocked(ctx, reason)
}

func (s *Session) closeLocked(ctx context.Context, reason string) {
	if s.closed {
		return
	}
	s.closed = true
	s.logger.Info("session closed", zap.String("reason", reason))
	evt := events.SessionClosed{SessionID: s.ID, Reason: reason}
	if err := s.pub.Publish(ctx, events.Topic(s.ID, events.KindClosed), evt); err != nil {
		s.logger.Warn("publishing close failed", zap.Error(err))
	}
}
