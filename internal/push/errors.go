package push

import "fmt"

// ValidationError is returned for malformed subscribe or send input before
// anything is written or delivered.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}
