package repository

import (
	"errors"
	"fmt"

	"gorm.io/gorm"
)

var (
	// ErrCommitFailed is the category of every error returned by Commit
	ErrCommitFailed = errors.New("commit failed")

	// ErrConcurrencyConflict is returned when an update or delete matched no row
	ErrConcurrencyConflict = errors.New("concurrency conflict: no rows matched")

	// ErrConstraintViolation is returned when the store rejects a change for a
	// duplicate key, foreign key or check constraint
	ErrConstraintViolation = errors.New("constraint violation")

	// ErrDisposed is the panic value for use of a closed unit of work
	ErrDisposed = errors.New("unit of work is disposed")

	// ErrUnregisteredEntity is the panic value for a repository request on a
	// type that was never registered with the database manager
	ErrUnregisteredEntity = errors.New("entity type is not registered")
)

// CommitError describes the staged change the store rejected
type CommitError struct {
	Op    string
	Table string
	ID    int
	Kind  error // ErrConcurrencyConflict, ErrConstraintViolation or nil
	Err   error
}

func (e *CommitError) Error() string {
	msg := fmt.Sprintf("%s: %s %s id=%d", ErrCommitFailed, e.Op, e.Table, e.ID)
	if e.Kind != nil {
		msg += ": " + e.Kind.Error()
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *CommitError) Unwrap() []error {
	errs := []error{ErrCommitFailed}
	if e.Kind != nil {
		errs = append(errs, e.Kind)
	}
	if e.Err != nil {
		errs = append(errs, e.Err)
	}
	return errs
}

// IsConcurrencyConflict checks if an error is ErrConcurrencyConflict
func IsConcurrencyConflict(err error) bool {
	return errors.Is(err, ErrConcurrencyConflict)
}

// IsConstraintViolation checks if an error is ErrConstraintViolation
func IsConstraintViolation(err error) bool {
	return errors.Is(err, ErrConstraintViolation)
}

// classify maps gorm's translated dialect errors onto the commit taxonomy
func classify(err error) error {
	switch {
	case errors.Is(err, gorm.ErrDuplicatedKey),
		errors.Is(err, gorm.ErrForeignKeyViolated),
		errors.Is(err, gorm.ErrCheckConstraintViolated):
		return ErrConstraintViolation
	default:
		return nil
	}
}
