package disable

import "fmt"

// MutationError reports a failed write to one attribute of one entry.
type MutationError struct {
	DN        string
	Attribute string
	Err       error
}

func (e *MutationError) Error() string {
	return fmt.Sprintf("set %s on %s: %v", e.Attribute, e.DN, e.Err)
}

func (e *MutationError) Unwrap() error {
	return e.Err
}
