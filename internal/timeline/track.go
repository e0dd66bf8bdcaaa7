// Package timeline provides the time-interval track model shared by every
// pipeline stage: words, phonemes, visemes and pose/emotion overlays.
package timeline

import (
	"errors"
	"fmt"
	"sort"
)

// Static errors.
var (
	ErrInvertedInterval = errors.New("event ends before it starts")
	ErrUnsorted         = errors.New("events are not sorted by start time")
)

// Event is a value that is active over the half-open interval [Start, End).
type Event[T any] struct {
	Start float64
	End   float64
	Value T
}

// Contains reports whether t falls inside the event's interval.
func (e Event[T]) Contains(t float64) bool {
	return e.Start <= t && t < e.End
}

// Duration returns the length of the interval in seconds.
func (e Event[T]) Duration() float64 {
	return e.End - e.Start
}

// Track is an ordered sequence of events sharing one value domain.
type Track[T any] []Event[T]

// Word, phoneme and viseme tracks carry plain string labels.
type (
	WordTrack    = Track[string]
	PhonemeTrack = Track[string]
	VisemeTrack  = Track[string]
)

// IndexAt returns the index of the first event containing t, scanning in
// track order, or -1 when no event is active.
func (tr Track[T]) IndexAt(t float64) int {
	for i := range tr {
		if tr[i].Contains(t) {
			return i
		}
	}

	return -1
}

// At returns the value of the first event containing t.
func (tr Track[T]) At(t float64) (T, bool) {
	idx := tr.IndexAt(t)
	if idx < 0 {
		var zero T

		return zero, false
	}

	return tr[idx].Value, true
}

// ValueAt returns the active value at t or def when nothing is active.
func (tr Track[T]) ValueAt(t float64, def T) T {
	value, ok := tr.At(t)
	if !ok {
		return def
	}

	return value
}

// End returns the largest end time in the track, or 0 for an empty track.
func (tr Track[T]) End() float64 {
	var end float64

	for _, event := range tr {
		if event.End > end {
			end = event.End
		}
	}

	return end
}

// Sorted returns a copy of the track stably sorted by start time.
func (tr Track[T]) Sorted() Track[T] {
	out := make(Track[T], len(tr))
	copy(out, tr)

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Start < out[j].Start
	})

	return out
}

// Validate checks that every event satisfies start <= end and that the
// track is sorted non-decreasing by start time.
func (tr Track[T]) Validate() error {
	for i, event := range tr {
		if event.Start > event.End {
			return fmt.Errorf("%w: event %d [%f, %f]", ErrInvertedInterval, i, event.Start, event.End)
		}

		if i > 0 && event.Start < tr[i-1].Start {
			return fmt.Errorf("%w: event %d starts at %f after %f", ErrUnsorted, i, event.Start, tr[i-1].Start)
		}
	}

	return nil
}

// Map converts every value in the track while copying intervals unchanged.
func Map[T, U any](tr Track[T], fn func(T) U) Track[U] {
	out := make(Track[U], len(tr))

	for i, event := range tr {
		out[i] = Event[U]{Start: event.Start, End: event.End, Value: fn(event.Value)}
	}

	return out
}
