package domain

import (
	"errors"
	"fmt"
)

var ErrNotFound = errors.New("not found")

type NotFoundError struct {
	Kind string
	ID   string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %q not found", e.Kind, e.ID)
}

func (e *NotFoundError) Is(target error) bool {
	return target == ErrNotFound
}

func DocumentNotFound(id string) error {
	return &NotFoundError{Kind: "document", ID: id}
}

func UserNotFound(id string) error {
	return &NotFoundError{Kind: "user", ID: id}
}
