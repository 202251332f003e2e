package output

import (
	"errors"
	"fmt"

	"github.com/mrzor/rtems-tracer/internal/attributes"
)

// Emitter consumes transitions in order.
type Emitter interface {
	Emit(t Transition) error
	Close() error
}

// Multi forwards every transition to all emitters.
type Multi []Emitter

// Emit implements Emitter. Every emitter sees the transition even when an
// earlier one fails.
func (m Multi) Emit(t Transition) error {
	var errs []error
	for _, e := range m {
		if err := e.Emit(t); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Close implements Emitter.
func (m Multi) Close() error {
	var errs []error
	for _, e := range m {
		if err := e.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Filtered forwards the transitions accepted by a filter.
type Filtered struct {
	next   Emitter
	filter *attributes.Filter
}

// NewFiltered wraps next. A nil filter forwards everything.
func NewFiltered(next Emitter, filter *attributes.Filter) *Filtered {
	return &Filtered{next: next, filter: filter}
}

// Emit implements Emitter.
func (f *Filtered) Emit(t Transition) error {
	ok, err := f.filter.Match(t.Env())
	if err != nil {
		return fmt.Errorf("filter transition: %w", err)
	}
	if !ok {
		return nil
	}
	return f.next.Emit(t)
}

// Close implements Emitter.
func (f *Filtered) Close() error {
	return f.next.Close()
}

// Recorder keeps every transition in memory.
type Recorder struct {
	Transitions []Transition
	Closed      bool
}

// Emit implements Emitter.
func (r *Recorder) Emit(t Transition) error {
	r.Transitions = append(r.Transitions, t)
	return nil
}

// Close implements Emitter.
func (r *Recorder) Close() error {
	r.Closed = true
	return nil
}
