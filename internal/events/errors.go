package events

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrRescanInProgress = errors.New("rescan already in progress")
	ErrNotConfigured    = errors.New("channel is not an event")
	ErrNegativeScore    = errors.New("score must not be negative")
)

// ValidationError: в CSV есть пользователи, которых не удалось найти.
// Замена корректировок при этом не выполняется целиком.
type ValidationError struct {
	Names []string
}

func (e *ValidationError) Error() string {
	return "couldn't figure out these users: " + strings.Join(e.Names, ", ")
}

// RowError: значение в строке CSV не разбирается.
type RowError struct {
	Line int
	Err  error
}

func (e *RowError) Error() string { return fmt.Sprintf("csv line %d: %v", e.Line, e.Err) }

func (e *RowError) Unwrap() error { return e.Err }
