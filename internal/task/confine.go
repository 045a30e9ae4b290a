package task

import (
	"context"
	"fmt"
)

// PanicError is the failure cause recorded for a task body that panicked.
type PanicError struct {
	Value any
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("task panicked: %v", e.Value)
}

// confine runs work and captures a return or panic, isolating the scheduler
// goroutine from panicking task bodies.
func confine[V any](ctx context.Context, work func(context.Context) (V, error)) (value V, err error) {
	var returned bool
	func() {
		defer func() {
			if !returned {
				err = &PanicError{Value: recover()}
			}
		}()
		value, err = work(ctx)
		returned = true
	}()
	return
}
