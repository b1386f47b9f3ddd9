package api

import (
	"context"
	"errors"
	"fmt"
	"log"

	"placement-ai/store"
	"placement-ai/types"

	"github.com/gofiber/fiber/v2"
)

// Machine-readable error codes. Clients retry "timeout" aggressively,
// back off on the *_unavailable codes, and treat the rest as terminal.
const (
	CodeValidation            = "validation_failed"
	CodeInvalidInput          = "invalid_input"
	CodeEmbeddingUnavailable  = "embedding_unavailable"
	CodeGenerationUnavailable = "generation_unavailable"
	CodeIndexError            = "index_error"
	CodeTimeout               = "timeout"
	CodeCanceled              = "request_canceled"
	CodeNotFound              = "not_found"
	CodeInternal              = "internal_error"
)

// nginx's non-standard status for a client that closed the connection
// before the response was written.
const statusClientClosedRequest = 499

type Error struct {
	Code    int    `json:"code"`
	ErrCode string `json:"error_code"`
	Message string `json:"error"`
}

func (e Error) Error() string { return e.Message }

func NewError(code int, errCode, msg string) Error {
	return Error{Code: code, ErrCode: errCode, Message: msg}
}

type ValidationError struct {
	Status  int               `json:"status"`
	ErrCode string            `json:"error_code"`
	Errors  map[string]string `json:"errors"`
}

func (e ValidationError) Error() string { return "validation failed" }

func NewValidationError(errors map[string]string) ValidationError {
	return ValidationError{
		Status:  fiber.StatusUnprocessableEntity,
		ErrCode: CodeValidation,
		Errors:  errors,
	}
}

func ErrBadRequest() Error {
	return NewError(fiber.StatusBadRequest, CodeInvalidInput, "invalid JSON request")
}

func ErrInvalidID() Error {
	return NewError(fiber.StatusBadRequest, CodeInvalidInput, "invalid id given")
}

func ErrNotFound[T any](arg T, resource string) Error {
	return NewError(fiber.StatusNotFound, CodeNotFound, fmt.Sprintf("%s with %v not found", resource, arg))
}

// ErrorHandler maps the core's failure taxonomy onto HTTP. Backend-down
// faults answer 503 so the caller never mistakes them for an answered
// query with weak evidence.
func ErrorHandler(c *fiber.Ctx, err error) error {
	if apiError, ok := err.(Error); ok {
		return c.Status(apiError.Code).JSON(apiError)
	}
	if valError, ok := err.(ValidationError); ok {
		return c.Status(valError.Status).JSON(valError)
	}

	var (
		embErr     *types.EmbeddingError
		synthErr   *types.SynthesisError
		idxErr     *types.IndexError
		timeoutErr *types.TimeoutError
		fiberErr   *fiber.Error
	)
	switch {
	case errors.As(err, &embErr):
		if embErr.Unavailable {
			return respond(c, fiber.StatusServiceUnavailable, CodeEmbeddingUnavailable, embErr.Error())
		}
		return respond(c, fiber.StatusUnprocessableEntity, CodeInvalidInput, embErr.Error())
	case errors.As(err, &synthErr):
		if synthErr.Unavailable {
			return respond(c, fiber.StatusServiceUnavailable, CodeGenerationUnavailable, synthErr.Error())
		}
		return respond(c, fiber.StatusInternalServerError, CodeInternal, synthErr.Error())
	case errors.As(err, &timeoutErr):
		return respond(c, fiber.StatusGatewayTimeout, CodeTimeout, timeoutErr.Error())
	case errors.Is(err, context.Canceled):
		return respond(c, statusClientClosedRequest, CodeCanceled, "request canceled by client")
	case errors.As(err, &idxErr):
		return respond(c, fiber.StatusInternalServerError, CodeIndexError, idxErr.Error())
	case errors.Is(err, store.ErrNotFound):
		return respond(c, fiber.StatusNotFound, CodeNotFound, "experience not found")
	case errors.As(err, &fiberErr):
		return respond(c, fiberErr.Code, CodeInternal, fiberErr.Message)
	}

	log.Printf("[API] request failed: %v", err)
	return respond(c, fiber.StatusInternalServerError, CodeInternal, "unexpected server error")
}

func respond(c *fiber.Ctx, status int, errCode, msg string) error {
	return c.Status(status).JSON(NewError(status, errCode, msg))
}
