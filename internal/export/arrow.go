// Package export streams scatter buckets as Arrow IPC so notebooks and
// other columnar tools can read exactly what the chart shows.
package export

import (
	"fmt"
	"io"
	"math"
	"strconv"

	"github.com/apache/arrow/go/v18/arrow"
	"github.com/apache/arrow/go/v18/arrow/array"
	"github.com/apache/arrow/go/v18/arrow/ipc"
	"github.com/apache/arrow/go/v18/arrow/memory"

	"gapminder/internal/view"
)

// Schema returns the bucket schema for frame f. The selection is stored
// as schema metadata.
func Schema(f *view.Frame) *arrow.Schema {
	md := arrow.NewMetadata(
		[]string{"year", "x", "y", "country"},
		[]string{strconv.Itoa(f.Selection.Year), string(f.Selection.X), string(f.Selection.Y), f.Selection.Country},
	)
	return arrow.NewSchema([]arrow.Field{
		{Name: "bucket", Type: arrow.BinaryTypes.String},
		{Name: "x", Type: arrow.PrimitiveTypes.Float64},
		{Name: "y", Type: arrow.PrimitiveTypes.Float64},
		{Name: "size", Type: arrow.PrimitiveTypes.Float64, Nullable: true},
		{Name: "country", Type: arrow.BinaryTypes.String},
		{Name: "region", Type: arrow.BinaryTypes.String},
		{Name: "highlight", Type: arrow.FixedWidthTypes.Boolean},
	}, &md)
}

// WriteBuckets writes one record batch holding every bucket row of f.
// Missing sizes are written as nulls.
func WriteBuckets(w io.Writer, f *view.Frame) error {
	mem := memory.NewGoAllocator()
	schema := Schema(f)

	b := array.NewRecordBuilder(mem, schema)
	defer b.Release()

	bucket := b.Field(0).(*array.StringBuilder)
	xs := b.Field(1).(*array.Float64Builder)
	ys := b.Field(2).(*array.Float64Builder)
	sizes := b.Field(3).(*array.Float64Builder)
	countries := b.Field(4).(*array.StringBuilder)
	regions := b.Field(5).(*array.StringBuilder)
	highlight := b.Field(6).(*array.BooleanBuilder)

	b.Reserve(f.Rows())
	for bi, bk := range f.Buckets {
		for i := range bk.Len() {
			bucket.Append(bk.Name)
			countries.Append(bk.Country[i])
			regions.Append(bk.Region[i])
			highlight.Append(bi == 0 && len(f.Buckets) == 1 && isHighlighted(f.Highlight, i))
		}
		xs.AppendValues(bk.X, nil)
		ys.AppendValues(bk.Y, nil)
		valid := make([]bool, len(bk.Size))
		for i, s := range bk.Size {
			valid[i] = !math.IsNaN(s)
		}
		sizes.AppendValues(bk.Size, valid)
	}

	rec := b.NewRecord()
	defer rec.Release()

	iw := ipc.NewWriter(w, ipc.WithSchema(schema), ipc.WithAllocator(mem))
	if err := iw.Write(rec); err != nil {
		iw.Close()
		return fmt.Errorf("write bucket record: %w", err)
	}
	if err := iw.Close(); err != nil {
		return fmt.Errorf("close ipc writer: %w", err)
	}
	return nil
}

func isHighlighted(hl []int, i int) bool {
	for _, h := range hl {
		if h == i {
			return true
		}
	}
	return false
}
