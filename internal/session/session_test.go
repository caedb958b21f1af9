package session

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"gapminder/internal/engine"
	"gapminder/internal/events"
	"gapminder/internal/models"
	"gapminder/internal/renderer"
	"gapminder/internal/view"
	"gapminder/internal/widget"
)

const sampleCSV = `Country,Year,fertility,life,population,child_mortality,gdp,region
Aland,1970,2.1,70.0,20000000,10,1000,Europe
Brazil,1970,,60.0,40000000,50,2000,America
Chad,1970,4.0,45.0,,150,500,Africa
Tokelau,1970,3.0,65.0,1500,,,Oceania
Aland,1971,2.0,71.0,21000000,9,1100,Europe
Brazil,1971,5.5,61.0,41000000,48,2100,America
Chad,1971,6.5,40.0,6000000,,480,Africa
Brazil,2005,1.9,72.0,180000000,20,9000,America
`

type published struct {
	topic string
	event any
}

type recorder struct {
	mu   sync.Mutex
	msgs []published
}

func (r *recorder) Publish(_ context.Context, topic string, event any) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.msgs = append(r.msgs, published{topic, event})
	return nil
}

func (r *recorder) Close() error { return nil }

func (r *recorder) last() published {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.msgs[len(r.msgs)-1]
}

func testData(t *testing.T) *Data {
	t.Helper()
	store, err := engine.LoadReader(strings.NewReader(sampleCSV), nil)
	require.NoError(t, err)
	return NewData(store)
}

func testOptions(pub events.Publisher) Options {
	opts := DefaultOptions()
	opts.Excluded = []string{"Tokelau"}
	opts.Publisher = pub
	return opts
}

func newTestSession(t *testing.T, layout view.Layout, pub events.Publisher) *Session {
	t.Helper()
	data := testData(t)
	ctl := view.NewController(data.Store, data.Summary, layout)
	s, err := New("gm-test", data, ctl, testOptions(pub))
	require.NoError(t, err)
	return s
}

func TestNewSessionInitialFrame(t *testing.T) {
	s := newTestSession(t, view.SingleLayout, nil)
	f := s.Frame()

	assert.Equal(t, 1970, f.Selection.Year)
	assert.Equal(t, engine.Fertility, f.Selection.X)
	assert.Equal(t, engine.Life, f.Selection.Y)
	assert.Equal(t, view.AllCountries, f.Selection.Country)
	assert.Equal(t, []string{"Aland", "Chad", "Tokelau"}, s.Buckets()[0].Country)

	st := s.State()
	assert.Equal(t, "single", st.Layout)
	assert.Equal(t, []string{view.AllCountries, "Aland", "Chad", "Tokelau"}, st.Widgets.Country.Options)
	require.NotNil(t, st.Widgets.Population)
	assert.Equal(t, []string{"Aland", "Brazil", "Chad"}, st.Widgets.Population.Labels)
	assert.Empty(t, st.Widgets.Population.Active)
	require.NotNil(t, st.Population)
	assert.Equal(t, models.Range{Start: 0.0015, End: 180}, st.Population.YRange)
}

func TestSetYearRecomputesAndPublishes(t *testing.T) {
	rec := &recorder{}
	s := newTestSession(t, view.SingleLayout, rec)
	ctx := context.Background()

	require.NoError(t, s.SetYear(ctx, 1971))
	assert.Equal(t, []string{"Aland", "Brazil", "Chad"}, s.Buckets()[0].Country)
	assert.Equal(t, "Gapminder data for 1971", s.Frame().Title)

	msg := rec.last()
	assert.Equal(t, events.Topic("gm-test", events.KindFrame), msg.topic)
	assert.Equal(t, 1971, msg.event.(models.Frame).Year)

	// The slider clamps rather than rejects.
	require.NoError(t, s.SetYear(ctx, 3000))
	assert.Equal(t, 2010, s.Frame().Selection.Year)
	assert.Zero(t, s.Frame().Rows())
}

func TestSetAxis(t *testing.T) {
	s := newTestSession(t, view.SingleLayout, nil)
	ctx := context.Background()

	require.NoError(t, s.SetAxis(ctx, "x", "gdp"))
	require.NoError(t, s.SetAxis(ctx, "y", "child_mortality"))
	f := s.Frame()
	assert.Equal(t, engine.GDP, f.Selection.X)
	assert.Equal(t, engine.ChildMortality, f.Selection.Y)
	assert.Equal(t, []string{"Aland", "Brazil", "Chad"}, f.Buckets[0].Country)

	assert.ErrorIs(t, s.SetAxis(ctx, "x", "nope"), view.ErrUnknownField)
	assert.ErrorIs(t, s.SetAxis(ctx, "x", "population"), view.ErrUnknownField)
	assert.ErrorIs(t, s.SetAxis(ctx, "z", "gdp"), widget.ErrInvalidOption)
	assert.False(t, s.Closed(), "bad requests do not end the session")
}

func TestSetCountryHighlights(t *testing.T) {
	s := newTestSession(t, view.SingleLayout, nil)
	ctx := context.Background()

	require.NoError(t, s.SetCountry(ctx, "Chad"))
	assert.Equal(t, []int{1}, s.Frame().Highlight)

	assert.ErrorIs(t, s.SetCountry(ctx, "Brazil"), widget.ErrInvalidOption, "Brazil has no fertility in 1970")

	// Moving to a year without Chad keeps the selection but clears the
	// highlight.
	require.NoError(t, s.SetYear(ctx, 2005))
	f := s.Frame()
	assert.Equal(t, "Chad", f.Selection.Country)
	assert.Empty(t, f.Highlight)
	assert.Equal(t, []string{view.AllCountries, "Brazil"}, s.State().Widgets.Country.Options)
}

func TestPopulationToggle(t *testing.T) {
	rec := &recorder{}
	s := newTestSession(t, view.SingleLayout, rec)
	ctx := context.Background()

	require.NoError(t, s.TogglePopulation(ctx, 1, true))
	snap, err := s.PopulationView()
	require.NoError(t, err)
	require.Len(t, snap.Pairs, 1)
	assert.Equal(t, "Brazil", snap.Pairs[0].Line.Series.Country)
	assert.Equal(t, engine.Bounds{Min: 40, Max: 180}, snap.YRange)
	years := engine.Bounds{Min: 1970, Max: 2005}
	assert.Equal(t, years, snap.XRange)

	msg := rec.last()
	assert.Equal(t, events.Topic("gm-test", events.KindPopulation), msg.topic)
	assert.Equal(t, []int{1}, msg.event.(models.Population).Active)

	require.NoError(t, s.SetPopulation(ctx, []int{0, 2}))
	snap, err = s.PopulationView()
	require.NoError(t, err)
	require.Len(t, snap.Pairs, 2)
	assert.Equal(t, 0, snap.Pairs[0].Index)
	assert.Equal(t, 2, snap.Pairs[1].Index)
	assert.Equal(t, engine.Bounds{Min: 6, Max: 21}, snap.YRange)
	assert.Equal(t, years, snap.XRange, "the year axis stays pinned while toggling")
	assert.Equal(t, []int{0, 2}, s.State().Widgets.Population.Active)

	assert.ErrorIs(t, s.TogglePopulation(ctx, 3, true), widget.ErrInvalidIndex)
}

func TestPopulationDesyncClosesSession(t *testing.T) {
	rec := &recorder{}
	s := newTestSession(t, view.SingleLayout, rec)
	ctx := context.Background()

	require.NoError(t, s.TogglePopulation(ctx, 0, true))
	// Drop the renderers behind the checkbox's back.
	require.NoError(t, s.renderers.Toggle(0, false))

	err := s.TogglePopulation(ctx, 0, false)
	assert.ErrorIs(t, err, renderer.ErrDesync)
	assert.True(t, s.Closed())
	assert.Equal(t, events.Topic("gm-test", events.KindClosed), rec.last().topic)

	assert.ErrorIs(t, s.SetYear(ctx, 1971), ErrClosed)
}

func TestRegionLayoutHasNoPopulationTab(t *testing.T) {
	s := newTestSession(t, view.RegionLayout, nil)
	ctx := context.Background()

	assert.ErrorIs(t, s.TogglePopulation(ctx, 0, true), ErrNoPopulationTab)
	_, err := s.PopulationView()
	assert.ErrorIs(t, err, ErrNoPopulationTab)

	st := s.State()
	assert.Equal(t, "regions", st.Layout)
	assert.Nil(t, st.Population)
	assert.Len(t, st.Frame.Buckets, 4)

	require.NoError(t, s.SetCountry(ctx, "Chad"))
	assert.Empty(t, s.Frame().Highlight)
}

func TestManagerLifecycle(t *testing.T) {
	m := NewManager(testData(t), testOptions(nil), time.Minute)
	ctx := context.Background()

	s, err := m.Create()
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(s.ID, "gm-"))
	assert.Equal(t, 1, m.Len())

	got, err := m.Get(s.ID)
	require.NoError(t, err)
	assert.Same(t, s, got)

	_, err = m.Get("gm-missing")
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, m.Close(ctx, s.ID, "client"))
	assert.True(t, s.Closed())
	assert.ErrorIs(t, m.Close(ctx, s.ID, "client"), ErrNotFound)
	assert.Zero(t, m.Len())
}

func TestManagerSweepsIdleSessions(t *testing.T) {
	m := NewManager(testData(t), testOptions(nil), time.Minute)
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	m.now = func() time.Time { return now }
	ctx := context.Background()

	idle, err := m.Create()
	require.NoError(t, err)
	busy, err := m.Create()
	require.NoError(t, err)

	now = now.Add(50 * time.Second)
	require.NoError(t, busy.SetYear(ctx, 1971))
	now = now.Add(20 * time.Second)

	assert.Equal(t, 1, m.Sweep(ctx))
	assert.True(t, idle.Closed())
	assert.False(t, busy.Closed())

	_, err = m.Get(idle.ID)
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = m.Get(busy.ID)
	assert.NoError(t, err)
}

func TestManagerRunClosesOnShutdown(t *testing.T) {
	defer goleak.VerifyNone(t)

	m := NewManager(testData(t), testOptions(nil), 0)
	s, err := m.Create()
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		m.Run(ctx, time.Millisecond)
		close(done)
	}()
	cancel()
	<-done

	assert.True(t, s.Closed())
	assert.Zero(t, m.Len())
}
