package services

import "encoding/json"

// Outcome is the result of one downstream call: either a parsed payload
// or an absent marker. There is no partial state.
type Outcome[T any] struct {
	value   T
	present bool
	reason  error
}

// Present wraps a successfully parsed payload
func Present[T any](v T) Outcome[T] {
	return Outcome[T]{value: v, present: true}
}

// Absent marks a failed call. reason is kept for logging and metrics only.
func Absent[T any](reason error) Outcome[T] {
	return Outcome[T]{reason: reason}
}

// Get returns the payload and whether it is present
func (o Outcome[T]) Get() (T, bool) {
	return o.value, o.present
}

// IsPresent reports whether the call succeeded
func (o Outcome[T]) IsPresent() bool {
	return o.present
}

// Reason returns why the outcome is absent (nil when present)
func (o Outcome[T]) Reason() error {
	return o.reason
}

// Results maps branch names to the raw payload each branch returned
type Results map[string]Outcome[json.RawMessage]

// PresentCount returns how many branches produced a payload
func (r Results) PresentCount() int {
	n := 0
	for _, o := range r {
		if o.IsPresent() {
			n++
		}
	}
	return n
}
