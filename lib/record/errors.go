package record

import (
	"errors"
	"strings"
)

// ValidationError reports one rejected client field. Loc is the path of the
// field inside the request body, e.g. ["body", "object", "position"].
type ValidationError struct {
	Loc []string `json:"loc"`
	Msg string   `json:"msg"`
}

func (e *ValidationError) Error() string {
	return strings.Join(e.Loc, ".") + ": " + e.Msg
}

// ValidationErrors collects every rejected field of a request.
type ValidationErrors []*ValidationError

// Add appends a new error for the given location.
func (errs *ValidationErrors) Add(loc []string, msg string) {
	*errs = append(*errs, &ValidationError{Loc: loc, Msg: msg})
}

// Err returns nil when no error was collected, so callers can write
// `if err := errs.Err(); err != nil`.
func (errs ValidationErrors) Err() error {
	if len(errs) == 0 {
		return nil
	}
	return errs
}

func (errs ValidationErrors) Error() string {
	msgs := make([]string, len(errs))
	for i, e := range errs {
		msgs[i] = e.Error()
	}
	return strings.Join(msgs, "; ")
}

// AsValidationErrors unwraps err into the collected validation errors.
func AsValidationErrors(err error) (ValidationErrors, bool) {
	var errs ValidationErrors
	if errors.As(err, &errs) {
		return errs, true
	}
	var single *ValidationError
	if errors.As(err, &single) {
		return ValidationErrors{single}, true
	}
	return nil, false
}
