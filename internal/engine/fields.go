package engine

import (
	"errors"
	"fmt"
)

// Field names a numeric indicator column of the dataset.
type Field string

const (
	Fertility      Field = "fertility"
	Life           Field = "life"
	ChildMortality Field = "child_mortality"
	GDP            Field = "gdp"
	Population     Field = "population"
)

// SelectableFields is the option set offered by the x/y axis selectors.
var SelectableFields = []Field{Fertility, Life, ChildMortality, GDP}

// ErrUnknownField is returned when a field name does not match a numeric column.
var ErrUnknownField = errors.New("unknown field")

// ParseField maps a column name onto a Field.
func ParseField(name string) (Field, error) {
	switch f := Field(name); f {
	case Fertility, Life, ChildMortality, GDP, Population:
		return f, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownField, name)
}

// Selectable reports whether f may be bound to a scatter axis.
func (f Field) Selectable() bool {
	for _, s := range SelectableFields {
		if s == f {
			return true
		}
	}
	return false
}

// Label is the human readable axis title.
func (f Field) Label() string {
	switch f {
	case Fertility:
		return "Fertility (children per woman)"
	case Life:
		return "Life Expectancy (years)"
	case ChildMortality:
		return "Child Mortality (per 1,000 born)"
	case GDP:
		return "GDP per capita"
	case Population:
		return "Population"
	}
	return string(f)
}
