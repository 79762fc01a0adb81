package services

import (
	"errors"
	"log"

	apperrors "github.com/yukikurage/family-task-sync/internal/errors"
	"github.com/yukikurage/family-task-sync/internal/repository"
)

// Result is what every use case returns. Expected failures (validation, domain
// rules, authorization) travel in Error/ErrorCode; nothing is thrown past it.
type Result[T any] struct {
	IsSuccess bool
	Value     T
	Error     string
	ErrorCode string
	Kind      apperrors.Kind
}

func Success[T any](value T) Result[T] {
	return Result[T]{IsSuccess: true, Value: value}
}

// Fail converts err into a failed Result. Unexpected errors are logged here,
// expected ones are not.
func Fail[T any](err error) Result[T] {
	if errors.Is(err, repository.ErrNotFound) && apperrors.KindOf(err) == "" {
		err = apperrors.NotFound(err.Error())
	}
	if !apperrors.IsExpected(err) {
		log.Printf("Use case failed: %v", err)
	}

	kind := apperrors.KindOf(err)
	if kind == "" {
		kind = apperrors.KindRepository
	}
	code := apperrors.CodeOf(err)
	if kind == apperrors.KindRepository && code == apperrors.ErrCodeInternalError {
		code = apperrors.ErrCodeRepository
	}
	return Result[T]{Error: err.Error(), ErrorCode: code, Kind: kind}
}

// Err returns the failure as an AppError, or nil on success.
func (r Result[T]) Err() error {
	if r.IsSuccess {
		return nil
	}
	return &apperrors.AppError{Kind: r.Kind, Code: r.ErrorCode, Message: r.Error}
}
