package errors

import (
	stdErrors "errors"
	"fmt"

	"github.com/gofiber/fiber/v2"
)

var (
	ErrNotFound         = fmt.Errorf("not found")
	ErrForbidden        = fmt.Errorf("forbidden")
	ErrUnauthorized     = fmt.Errorf("unauthorized")
	ErrInvalidState     = fmt.Errorf("invalid state")
	ErrRecipientOffline = fmt.Errorf("recipient offline")
	ErrValidation       = fmt.Errorf("validation error")
	ErrInternal         = fmt.Errorf("internal error")
	ErrRateLimited      = fmt.Errorf("rate limited")

	ErrInvalidCredentials = fmt.Errorf("invalid credentials")
	ErrUserAlreadyExists  = fmt.Errorf("user already exists")
	ErrInvalidPassword    = fmt.Errorf("password does not meet complexity requirements")
	ErrTokenGeneration    = fmt.Errorf("token generation failed")
	ErrInvalidToken       = fmt.Errorf("invalid or expired token")
	ErrInvalidHash        = fmt.Errorf("invalid password hash")

	ErrWorkerPanic      = fmt.Errorf("worker panic")
	ErrEmptyWords       = fmt.Errorf("no words have been found")
	ErrSinkFull         = fmt.Errorf("connection buffer is full")
	ErrConnectionClosed = fmt.Errorf("connection closed")
)

// Code is the stable identifier sent to clients alongside an error message.
type Code string

const (
	CodeNotFound         Code = "NOT_FOUND"
	CodeForbidden        Code = "FORBIDDEN"
	CodeUnauthorized     Code = "UNAUTHORIZED"
	CodeInvalidState     Code = "INVALID_STATE"
	CodeRecipientOffline Code = "RECIPIENT_OFFLINE"
	CodeValidation       Code = "VALIDATION_ERROR"
	CodeRateLimited      Code = "RATE_LIMITED"
	CodeConflict         Code = "CONFLICT"
	CodeInternal         Code = "INTERNAL_ERROR"
)

// New, Is and As are re-exported so callers don't need both errors packages.
func New(text string) error { return stdErrors.New(text) }

func Is(err, target error) bool { return stdErrors.Is(err, target) }

func As(err error, target any) bool { return stdErrors.As(err, target) }

// CodeOf classifies err into a wire code. Unknown errors are internal.
func CodeOf(err error) Code {
	switch {
	case err == nil:
		return ""
	case Is(err, ErrNotFound):
		return CodeNotFound
	case Is(err, ErrForbidden):
		return CodeForbidden
	case Is(err, ErrUnauthorized), Is(err, ErrInvalidToken), Is(err, ErrInvalidCredentials):
		return CodeUnauthorized
	case Is(err, ErrInvalidState):
		return CodeInvalidState
	case Is(err, ErrRecipientOffline):
		return CodeRecipientOffline
	case Is(err, ErrValidation), Is(err, ErrInvalidPassword):
		return CodeValidation
	case Is(err, ErrRateLimited):
		return CodeRateLimited
	case Is(err, ErrUserAlreadyExists):
		return CodeConflict
	default:
		return CodeInternal
	}
}

// PublicMessage hides internal failure details from clients.
func PublicMessage(err error) string {
	if CodeOf(err) == CodeInternal {
		return ErrInternal.Error()
	}
	return err.Error()
}

// MapToFiberError converts a domain error into an HTTP error for the REST layer.
func MapToFiberError(err error) error {
	if err == nil {
		return nil
	}
	var fe *fiber.Error
	if As(err, &fe) {
		return fe
	}
	switch CodeOf(err) {
	case CodeNotFound:
		return fiber.NewError(fiber.StatusNotFound, err.Error())
	case CodeForbidden:
		return fiber.NewError(fiber.StatusForbidden, err.Error())
	case CodeUnauthorized:
		return fiber.NewError(fiber.StatusUnauthorized, err.Error())
	case CodeInvalidState, CodeConflict:
		return fiber.NewError(fiber.StatusConflict, err.Error())
	case CodeRecipientOffline:
		return fiber.NewError(fiber.StatusConflict, err.Error())
	case CodeValidation:
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	case CodeRateLimited:
		return fiber.NewError(fiber.StatusTooManyRequests, err.Error())
	default:
		return fiber.NewError(fiber.StatusInternalServerError, ErrInternal.Error())
	}
}
