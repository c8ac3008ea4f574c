package catalog

import (
	"errors"
	"fmt"
)

var ErrProductNotFound = errors.New("product not found")

// ValidationError reports the first rule a product input violates. It is
// returned before anything is written.
type ValidationError struct {
	Field   string
	Rule    string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// NotFoundError is returned when a mutation targets an unknown id.
type NotFoundError struct {
	Resource string
	ID       string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %q not found", e.Resource, e.ID)
}

func (e *NotFoundError) Unwrap() error {
	return ErrProductNotFound
}
