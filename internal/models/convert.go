package models

import (
	"gapminder/internal/engine"
	"gapminder/internal/renderer"
	"gapminder/internal/view"
)

func RangeOf(b engine.Bounds) Range {
	return Range{Start: Number(b.Min), End: Number(b.Max)}
}

func BucketOf(b *view.Bucket) Bucket {
	return Bucket{
		Name:    b.Name,
		X:       Numbers(b.X),
		Y:       Numbers(b.Y),
		Size:    Numbers(b.Size),
		Country: b.Country,
		Region:  b.Region,
	}
}

func FrameOf(f *view.Frame) Frame {
	out := Frame{
		Year:           f.Selection.Year,
		X:              string(f.Selection.X),
		Y:              string(f.Selection.Y),
		Country:        f.Selection.Country,
		Title:          f.Title,
		XLabel:         f.XLabel,
		YLabel:         f.YLabel,
		XRange:         RangeOf(f.XRange),
		YRange:         RangeOf(f.YRange),
		Buckets:        make([]Bucket, len(f.Buckets)),
		CountryOptions: f.CountryOptions,
		Highlight:      f.Highlight,
	}
	for i, b := range f.Buckets {
		out.Buckets[i] = BucketOf(b)
	}
	if out.Highlight == nil {
		out.Highlight = []int{}
	}
	return out
}

func PopulationOf(s *renderer.Set) Population {
	snap := s.Snapshot()
	out := Population{
		Active: s.Active(),
		XRange: RangeOf(snap.XRange),
		YRange: RangeOf(snap.YRange),
		Series: make([]Series, len(snap.Pairs)),
	}
	for i, p := range snap.Pairs {
		sr := p.Line.Series
		out.Series[i] = Series{
			Index:      p.Index,
			Country:    sr.Country,
			Region:     sr.Region,
			Years:      sr.Years,
			Population: Numbers(sr.Population),
		}
	}
	return out
}
