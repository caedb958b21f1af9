package models

import (
	"encoding/json"
	"math"
	"strconv"
)

// Number is a float64 that encodes NaN and infinities as JSON null.
type Number float64

func (n Number) MarshalJSON() ([]byte, error) {
	f := float64(n)
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return []byte("null"), nil
	}
	return strconv.AppendFloat(nil, f, 'g', -1, 64), nil
}

// Numbers converts a float column.
func Numbers(xs []float64) []Number {
	out := make([]Number, len(xs))
	for i, x := range xs {
		out[i] = Number(x)
	}
	return out
}

type Range struct {
	Start Number `json:"start"`
	End   Number `json:"end"`
}

type Bucket struct {
	Name    string   `json:"name"`
	X       []Number `json:"x"`
	Y       []Number `json:"y"`
	Size    []Number `json:"size"`
	Country []string `json:"country"`
	Region  []string `json:"region"`
}

type Frame struct {
	Year           int      `json:"year"`
	X              string   `json:"x"`
	Y              string   `json:"y"`
	Country        string   `json:"country"`
	Title          string   `json:"title"`
	XLabel         string   `json:"x_label"`
	YLabel         string   `json:"y_label"`
	XRange         Range    `json:"x_range"`
	YRange         Range    `json:"y_range"`
	Buckets        []Bucket `json:"buckets"`
	CountryOptions []string `json:"country_options"`
	Highlight      []int    `json:"highlight"`
}

type Series struct {
	Index      int      `json:"index"`
	Country    string   `json:"country"`
	Region     string   `json:"region"`
	Years      []int    `json:"years"`
	Population []Number `json:"population"`
}

type Population struct {
	Active []int    `json:"active"`
	XRange Range    `json:"x_range"`
	YRange Range    `json:"y_range"`
	Series []Series `json:"series"`
}

type Slider struct {
	Title string `json:"title"`
	Start int    `json:"start"`
	End   int    `json:"end"`
	Step  int    `json:"step"`
	Value int    `json:"value"`
}

type Select struct {
	Title   string   `json:"title"`
	Options []string `json:"options"`
	Value   string   `json:"value"`
}

type CheckboxGroup struct {
	Labels []string `json:"labels"`
	Active []int    `json:"active"`
}

type Widgets struct {
	Year       Slider         `json:"year"`
	X          Select         `json:"x"`
	Y          Select         `json:"y"`
	Country    Select         `json:"country"`
	Population *CheckboxGroup `json:"population,omitempty"`
}

type SessionState struct {
	ID         string      `json:"id"`
	Layout     string      `json:"layout"`
	Frame      Frame       `json:"frame"`
	Population *Population `json:"population,omitempty"`
	Widgets    Widgets     `json:"widgets"`
}

type Field struct {
	Name  string `json:"name"`
	Label string `json:"label"`
}

// ValueRequest sets a scalar widget. Value is a number for the year
// slider and a string for selects.
type ValueRequest struct {
	Value json.RawMessage `json:"value"`
}

type ToggleRequest struct {
	Active bool `json:"active"`
}

type ActiveRequest struct {
	Active []int `json:"active"`
}

type ErrorResponse struct {
	Error string `json:"error"`
}
