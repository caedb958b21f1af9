// Package widget models the explorer's input controls. Each control owns
// an ordered list of change listeners that run synchronously, in
// registration order, whenever its value changes.
package widget

import (
	"errors"
	"fmt"
	"slices"
)

var (
	// ErrInvalidOption is returned when a Select is set to a value it does not offer.
	ErrInvalidOption = errors.New("invalid option")
	// ErrInvalidIndex is returned for a checkbox index outside the label list.
	ErrInvalidIndex = errors.New("invalid checkbox index")
)

// Listener is called with the previous and new value of a control. The
// control already reports the new value while listeners run. An error stops
// the remaining listeners, reverts the control to the previous value and is
// returned from the setter.
type Listener[T any] func(old, new T) error

type control[T any] struct {
	value     T
	equal     func(a, b T) bool
	listeners []Listener[T]
}

// OnChange registers fn.
func (c *control[T]) OnChange(fn Listener[T]) {
	c.listeners = append(c.listeners, fn)
}

func (c *control[T]) set(v T) error {
	if c.equal(c.value, v) {
		return nil
	}
	old := c.value
	c.value = v
	for _, fn := range c.listeners {
		if err := fn(old, v); err != nil {
			c.value = old
			return err
		}
	}
	return nil
}

// Slider selects an integer in [Start, End] in steps of Step.
type Slider struct {
	Title string
	Start int
	End   int
	Step  int
	control[int]
}

// NewSlider returns a slider positioned at value.
func NewSlider(title string, start, end, step, value int) *Slider {
	if step <= 0 {
		step = 1
	}
	s := &Slider{Title: title, Start: start, End: end, Step: step}
	s.equal = func(a, b int) bool { return a == b }
	s.value = s.clamp(value)
	return s
}

func (s *Slider) clamp(v int) int {
	v = max(s.Start, min(v, s.End))
	return s.Start + (v-s.Start)/s.Step*s.Step
}

// Value returns the slider position.
func (s *Slider) Value() int { return s.value }

// Set moves the slider, clamping v into range and onto a step.
func (s *Slider) Set(v int) error {
	return s.set(s.clamp(v))
}

// Select picks one string from Options.
type Select struct {
	Title   string
	options []string
	control[string]
}

// NewSelect returns a select showing value. value must be one of options.
func NewSelect(title string, options []string, value string) (*Select, error) {
	s := &Select{Title: title, options: slices.Clone(options)}
	s.equal = func(a, b string) bool { return a == b }
	if !slices.Contains(options, value) {
		return nil, fmt.Errorf("%s: %w %q", title, ErrInvalidOption, value)
	}
	s.value = value
	return s, nil
}

// Value returns the selected option.
func (s *Select) Value() string { return s.value }

// Options returns the offered options.
func (s *Select) Options() []string { return s.options }

// SetOptions replaces the offered options without firing listeners. The
// current value is kept even when it is no longer offered.
func (s *Select) SetOptions(options []string) {
	s.options = slices.Clone(options)
}

// Set selects v, which must be offered.
func (s *Select) Set(v string) error {
	if !slices.Contains(s.options, v) {
		return fmt.Errorf("%s: %w %q", s.Title, ErrInvalidOption, v)
	}
	return s.set(v)
}

// CheckboxGroup is a list of labelled checkboxes. Its value is the sorted
// list of active indices.
type CheckboxGroup struct {
	labels []string
	control[[]int]
}

// NewCheckboxGroup returns a group with nothing active.
func NewCheckboxGroup(labels []string) *CheckboxGroup {
	g := &CheckboxGroup{labels: slices.Clone(labels)}
	g.equal = func(a, b []int) bool { return slices.Equal(a, b) }
	g.value = []int{}
	return g
}

// Labels returns the checkbox labels.
func (g *CheckboxGroup) Labels() []string { return g.labels }

// Active returns a copy of the active indices in ascending order.
func (g *CheckboxGroup) Active() []int { return slices.Clone(g.value) }

// SetActive replaces the active set. Duplicates are ignored.
func (g *CheckboxGroup) SetActive(active []int) error {
	next := slices.Clone(active)
	for _, i := range next {
		if i < 0 || i >= len(g.labels) {
			return fmt.Errorf("%w: %d", ErrInvalidIndex, i)
		}
	}
	slices.Sort(next)
	next = slices.Compact(next)
	if next == nil {
		next = []int{}
	}
	return g.set(next)
}

// Toggle checks or unchecks box i.
func (g *CheckboxGroup) Toggle(i int, on bool) error {
	if i < 0 || i >= len(g.labels) {
		return fmt.Errorf("%w: %d", ErrInvalidIndex, i)
	}
	next := slices.Clone(g.value)
	pos, found := slices.BinarySearch(next, i)
	switch {
	case on && !found:
		next = slices.Insert(next, pos, i)
	case !on && found:
		next = slices.Delete(next, pos, pos+1)
	default:
		return nil
	}
	return g.set(next)
}
