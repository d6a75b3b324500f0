package mode

import "fmt"

// Hoist substitutes a concrete context into an abstract action, producing a
// zero-argument runner. The runner drives the action to completion and
// translates host-specific failures, including panics escaping the action,
// into the abstract *Fault representation callers expect.
func Hoist(m Capabilities, action func(Capabilities) error) func() error {
	return func() (err error) {
		defer func() {
			if r := recover(); r != nil {
				if recovered, ok := r.(error); ok {
					err = &Fault{Host: m.Host(), Err: recovered}
					return
				}
				err = &Fault{Host: m.Host(), Err: panicError{value: r}}
			}
		}()
		if actionErr := action(m); actionErr != nil {
			return &Fault{Host: m.Host(), Err: actionErr}
		}
		return nil
	}
}

type panicError struct {
	value any
}

func (p panicError) Error() string {
	return fmt.Sprintf("panic in hoisted action: %v", p.value)
}
