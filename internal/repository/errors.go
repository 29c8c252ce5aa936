package repository

import (
	"errors"

	"gorm.io/gorm"
)

var (
	// ErrNotFound is returned when the addressed row does not exist.
	ErrNotFound = errors.New("record not found")

	// ErrAlreadyResolved is returned when a guarded approval update matched no pending row.
	ErrAlreadyResolved = errors.New("approval level already resolved")

	// ErrStatusChanged is returned when a status-guarded subject update matched no row.
	ErrStatusChanged = errors.New("subject status changed since it was read")

	// ErrStaleWrite is returned when a request row changed since it was read.
	ErrStaleWrite = errors.New("request was modified concurrently")
)

func translate(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound
	}
	return err
}
