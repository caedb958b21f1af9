package engine

import (
	"errors"
	"fmt"
)

// ErrDuplicateRecord is returned when a (country, year) pair appears twice.
var ErrDuplicateRecord = errors.New("duplicate country-year record")

// ColumnStore holds data in Struct-of-Arrays format for speed.
// Missing measurements are stored as NaN. The store is immutable once
// LoadColumnar returns it.
type ColumnStore struct {
	// Data Columns (Flat Arrays)
	Years          []int32
	Fertility      []float64
	Life           []float64
	ChildMortality []float64
	GDP            []float64
	Population     []float64

	// Dictionary Encoded IDs (0..N)
	CountryIDs []int32
	RegionIDs  []int32

	// Dictionaries (ID -> String), in order of first appearance
	CountryDict []string
	RegionDict  []string

	byYear           map[int32][]int
	minYear, maxYear int32
}

// Len returns the number of records.
func (cs *ColumnStore) Len() int {
	return len(cs.Years)
}

// Column returns the values of field f, one per record.
func (cs *ColumnStore) Column(f Field) ([]float64, error) {
	switch f {
	case Fertility:
		return cs.Fertility, nil
	case Life:
		return cs.Life, nil
	case ChildMortality:
		return cs.ChildMortality, nil
	case GDP:
		return cs.GDP, nil
	case Population:
		return cs.Population, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownField, string(f))
}

// Country returns the country name of row i.
func (cs *ColumnStore) Country(i int) string {
	return cs.CountryDict[cs.CountryIDs[i]]
}

// Region returns the region name of row i.
func (cs *ColumnStore) Region(i int) string {
	return cs.RegionDict[cs.RegionIDs[i]]
}

// YearRange returns the first and last year present. ok is false for an
// empty store.
func (cs *ColumnStore) YearRange() (first, last int, ok bool) {
	if cs.Len() == 0 {
		return 0, 0, false
	}
	return int(cs.minYear), int(cs.maxYear), true
}

// Rows returns the row numbers recorded for year, in file order, or nil
// for a year outside the dataset. The returned slice is shared and must
// not be modified.
func (cs *ColumnStore) Rows(year int) []int {
	first, last, ok := cs.YearRange()
	if !ok || year < first || year > last {
		return nil
	}
	return cs.byYear[int32(year)]
}

// buildIndex groups rows by year and enforces (country, year) uniqueness.
func (cs *ColumnStore) buildIndex() error {
	cs.byYear = make(map[int32][]int)
	type key struct{ country, year int32 }
	seen := make(map[key]int, cs.Len())

	for i, y := range cs.Years {
		k := key{cs.CountryIDs[i], y}
		if prev, dup := seen[k]; dup {
			return fmt.Errorf("%w: %s %d (rows %d and %d)", ErrDuplicateRecord, cs.Country(i), y, prev+1, i+1)
		}
		seen[k] = i
		cs.byYear[y] = append(cs.byYear[y], i)

		if i == 0 || y < cs.minYear {
			cs.minYear = y
		}
		if i == 0 || y > cs.maxYear {
			cs.maxYear = y
		}
	}
	return nil
}
