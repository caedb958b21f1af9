package export

import (
	"bytes"
	"math"
	"testing"

	"github.com/apache/arrow/go/v18/arrow/array"
	"github.com/apache/arrow/go/v18/arrow/ipc"
	"github.com/apache/arrow/go/v18/arrow/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gapminder/internal/engine"
	"gapminder/internal/view"
)

func TestWriteBucketsRoundTrip(t *testing.T) {
	f := &view.Frame{
		Selection: view.Selection{Year: 1970, X: engine.Fertility, Y: engine.Life, Country: "Chad"},
		Buckets: []*view.Bucket{{
			Name:    "all",
			X:       []float64{2.1, 4.0},
			Y:       []float64{70, 45},
			Size:    []float64{3, math.NaN()},
			Country: []string{"Aland", "Chad"},
			Region:  []string{"Europe", "Africa"},
		}},
		Highlight: []int{1},
	}

	var buf bytes.Buffer
	require.NoError(t, WriteBuckets(&buf, f))

	r, err := ipc.NewReader(&buf, ipc.WithAllocator(memory.NewGoAllocator()))
	require.NoError(t, err)
	defer r.Release()

	md := r.Schema().Metadata()
	idx := md.FindKey("year")
	require.GreaterOrEqual(t, idx, 0)
	assert.Equal(t, "1970", md.Values()[idx])

	require.True(t, r.Next())
	rec := r.Record()
	assert.EqualValues(t, 2, rec.NumRows())

	xs := rec.Column(1).(*array.Float64)
	assert.Equal(t, []float64{2.1, 4.0}, xs.Float64Values())

	sizes := rec.Column(3).(*array.Float64)
	assert.False(t, sizes.IsNull(0))
	assert.True(t, sizes.IsNull(1), "missing population is a null size")

	countries := rec.Column(4).(*array.String)
	assert.Equal(t, "Chad", countries.Value(1))

	hl := rec.Column(6).(*array.Boolean)
	assert.False(t, hl.Value(0))
	assert.True(t, hl.Value(1))

	assert.False(t, r.Next())
}

func TestWriteBucketsRegions(t *testing.T) {
	f := &view.Frame{
		Selection: view.Selection{Year: 1971, X: engine.GDP, Y: engine.Life, Country: view.AllCountries},
		Buckets: []*view.Bucket{
			{Name: "Europe", X: []float64{1100}, Y: []float64{71}, Size: []float64{3.05}, Country: []string{"Aland"}, Region: []string{"Europe"}},
			{Name: "Africa"},
			{Name: "America", X: []float64{2100}, Y: []float64{61}, Size: []float64{4.05}, Country: []string{"Brazil"}, Region: []string{"America"}},
		},
	}

	var buf bytes.Buffer
	require.NoError(t, WriteBuckets(&buf, f))

	r, err := ipc.NewReader(&buf)
	require.NoError(t, err)
	defer r.Release()
	require.True(t, r.Next())
	rec := r.Record()

	buckets := rec.Column(0).(*array.String)
	require.Equal(t, 2, buckets.Len())
	assert.Equal(t, "Europe", buckets.Value(0))
	assert.Equal(t, "America", buckets.Value(1))
}
