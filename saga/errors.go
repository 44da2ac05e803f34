package saga

import (
	"errors"
	"fmt"
)

var (
	// ErrStepNotRegistered is returned when a plan names a step the registry does not know
	ErrStepNotRegistered = errors.New("step not registered")
	// ErrFailureLogNotFound is returned when no failure log exists for a saga id
	ErrFailureLogNotFound = errors.New("failure log not found")
)

// errorKind names the kind of err: the Kind() of the first error in the
// chain that has one, otherwise its Go type.
func errorKind(err error) string {
	var kinded interface{ Kind() string }
	if errors.As(err, &kinded) {
		return kinded.Kind()
	}
	return fmt.Sprintf("%T", err)
}
