// Package validation provides the parameter checks used by tickflow
// constructors and the configuration loader.
//
// Every check returns a *errors.ValidationError so callers can match
// errors.ErrInvalidConfiguration regardless of which field was rejected.
package validation
