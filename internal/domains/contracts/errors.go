package contracts

import (
	"errors"
	"strings"
)

var (
	ErrAlreadyPending  = errors.New("address is already in the pipeline")
	ErrNotFound        = errors.New("pipeline instance not found")
	ErrStageMismatch   = errors.New("pipeline instance is at a different stage")
	ErrBadTransition   = errors.New("transition is not part of the chain flow")
	ErrInvalidConfig   = errors.New("invalid relay config")
	ErrTransportClosed = errors.New("transport closed")
)

const (
	ErrorCategoryPipeline = "pipeline"
	ErrorCategoryNetwork  = "network"
	ErrorCategoryConfig   = "config"
)

type CategorizedError struct {
	Category string
	Err      error
}

func (e *CategorizedError) Error() string {
	return e.Err.Error()
}

func (e *CategorizedError) Unwrap() error {
	return e.Err
}

func normalizeErrorCategory(category string) string {
	switch strings.ToLower(strings.TrimSpace(category)) {
	case ErrorCategoryNetwork:
		return ErrorCategoryNetwork
	case ErrorCategoryConfig:
		return ErrorCategoryConfig
	default:
		return ErrorCategoryPipeline
	}
}

func WrapCategorizedError(category string, err error) error {
	if err == nil {
		return nil
	}
	var existing *CategorizedError
	if errors.As(err, &existing) {
		return &CategorizedError{
			Category: normalizeErrorCategory(existing.Category),
			Err:      existing.Err,
		}
	}
	return &CategorizedError{
		Category: normalizeErrorCategory(category),
		Err:      err,
	}
}

func ErrorCategory(err error) string {
	var classified *CategorizedError
	if errors.As(err, &classified) {
		return normalizeErrorCategory(classified.Category)
	}
	return ErrorCategoryPipeline
}
