package offers

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

var (
	// ErrInvalidSelection means vehicle, color or upholstery is not in the catalog.
	ErrInvalidSelection = errors.New("invalid catalog selection")
	ErrInvalidCustomer  = errors.New("invalid customer data")
	// ErrPersistence means the offer could not be stored. Nothing was written.
	ErrPersistence = errors.New("offer persistence failed")
)

// SelectionError names the single-valued selections that did not resolve.
type SelectionError struct {
	Fields []string
}

func (e *SelectionError) Error() string {
	return fmt.Sprintf("%s: unknown %s", ErrInvalidSelection, strings.Join(e.Fields, ", "))
}

func (e *SelectionError) Is(target error) bool { return target == ErrInvalidSelection }

// CustomerError maps customer fields to a violation code.
type CustomerError struct {
	Fields map[string]string
}

func (e *CustomerError) Error() string {
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k+"="+e.Fields[k])
	}
	sort.Strings(keys)
	return fmt.Sprintf("%s: %s", ErrInvalidCustomer, strings.Join(keys, ", "))
}

func (e *CustomerError) Is(target error) bool { return target == ErrInvalidCustomer }

type PersistenceError struct {
	Err error
}

func (e *PersistenceError) Error() string { return "Database error: " + e.Err.Error() }

func (e *PersistenceError) Unwrap() error { return e.Err }

func (e *PersistenceError) Is(target error) bool { return target == ErrPersistence }
