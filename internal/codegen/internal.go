package codegen

import (
	"fmt"

	"github.com/cockroachdb/errors"
)

// InternalError reports a broken invariant: an earlier stage (type checking,
// validation) let through something the backend cannot represent, or the
// backend itself miscounted the stack. It is never a user diagnostic.
type InternalError struct {
	Construct string // the struct, function or type being compiled
	Err       error
}

func (e *InternalError) Error() string {
	return fmt.Sprintf("internal compiler error in %s: %v", e.Construct, e.Err)
}

func (e *InternalError) Unwrap() error { return e.Err }

// Abortf aborts the current compilation with an internal error raised in
// construct. The value carries an assertion failure so
// errors.IsAssertionFailure recognizes it.
func Abortf(construct, format string, args ...interface{}) {
	panic(&InternalError{
		Construct: construct,
		Err:       errors.AssertionFailedf(format, args...),
	})
}

// invariant aborts with an internal error when cond is false.
func invariant(cond bool, construct, format string, args ...interface{}) {
	if !cond {
		Abortf(construct, format, args...)
	}
}

// Catch runs fn and converts an internal-error abort into a returned error.
// Any other panic is re-raised unchanged.
func Catch(fn func()) (err error) {
	defer func() {
		if r := recover(); r != nil {
			ie, ok := r.(*InternalError)
			if !ok {
				panic(r)
			}
			err = ie
		}
	}()
	fn()
	return nil
}

// IsInternalError reports whether err came from a broken compiler invariant.
func IsInternalError(err error) bool {
	var ie *InternalError
	return errors.As(err, &ie) && errors.IsAssertionFailure(ie.Err)
}
