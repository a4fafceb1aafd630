package loader

import "errors"

// Report is the outcome of a bulk load or bind.
type Report struct {
	// Attempted counts files handed to the loader; each is tried once.
	Attempted int
	// Loaded holds command names, or event names for bind reports.
	Loaded   []string
	Failures []error
}

// Failed returns the number of failed files.
func (r *Report) Failed() int {
	return len(r.Failures)
}

// Messages returns the failure messages, suitable for relaying to an operator.
func (r *Report) Messages() []string {
	msgs := make([]string, len(r.Failures))
	for i, err := range r.Failures {
		msgs[i] = err.Error()
	}
	return msgs
}

// Err joins all failures, or returns nil when there were none.
func (r *Report) Err() error {
	return errors.Join(r.Failures...)
}
