// Package apperr defines the typed errors surfaced by the core services.
// Every error carries a stable machine code and the HTTP status class the
// API layer should map it to.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

type Code string

const (
	CodeValidation              Code = "VALIDATION_ERROR"
	CodePackageNotFound         Code = "PACKAGE_NOT_FOUND"
	CodeTripNotFound            Code = "TRIP_NOT_FOUND"
	CodeBidNotFound             Code = "BID_NOT_FOUND"
	CodeDriverNotFound          Code = "DRIVER_NOT_FOUND"
	CodeWalletNotFound          Code = "WALLET_NOT_FOUND"
	CodeReservationNotFound     Code = "RESERVATION_NOT_FOUND"
	CodePackageNotAvailable     Code = "PACKAGE_NOT_AVAILABLE"
	CodeTripNotAvailable        Code = "TRIP_NOT_AVAILABLE"
	CodeBidNotPending           Code = "BID_NOT_PENDING"
	CodeInvalidBid              Code = "INVALID_BID"
	CodeInvalidTrip             Code = "INVALID_TRIP"
	CodeDuplicateBid            Code = "DUPLICATE_BID"
	CodeDriverNotVerified       Code = "DRIVER_NOT_VERIFIED"
	CodeUnauthorized            Code = "UNAUTHORIZED"
	CodeInsufficientBalance     Code = "INSUFFICIENT_BALANCE"
	CodeInvalidReservation      Code = "INVALID_RESERVATION_STATUS"
	CodeMatchingFailed          Code = "MATCHING_FAILED"
	CodeOptimalMatchingFailed   Code = "OPTIMAL_MATCHING_FAILED"
	CodeBidAcceptanceFailed     Code = "BID_ACCEPTANCE_FAILED"
	CodeCommissionAuthFailed    Code = "COMMISSION_AUTHORIZATION_FAILED"
	CodeCommissionConfirmFailed Code = "COMMISSION_CONFIRMATION_FAILED"
	CodeInternal                Code = "INTERNAL_ERROR"
)

// Error is a (message, code, http status) triple. Business-rule violations
// use 4xx statuses and are never retried; *_FAILED codes use 500 and may be
// retried by the caller as a whole operation.
type Error struct {
	Code    Code
	Status  int
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

func New(code Code, status int, msg string) *Error {
	return &Error{Code: code, Status: status, Message: msg}
}

func Wrap(code Code, status int, msg string, err error) *Error {
	return &Error{Code: code, Status: status, Message: msg, Err: err}
}

func Validation(msg string) *Error { return New(CodeValidation, http.StatusBadRequest, msg) }

func NotFound(code Code, msg string) *Error { return New(code, http.StatusNotFound, msg) }

func BadRequest(code Code, msg string) *Error { return New(code, http.StatusBadRequest, msg) }

func Unauthorized(msg string) *Error { return New(CodeUnauthorized, http.StatusForbidden, msg) }

func Internal(code Code, msg string, err error) *Error {
	return Wrap(code, http.StatusInternalServerError, msg, err)
}

// CodeOf extracts the machine code from err, CodeInternal when untyped.
func CodeOf(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return CodeInternal
}

// StatusOf extracts the HTTP status from err, 500 when untyped.
func StatusOf(err error) int {
	var e *Error
	if errors.As(err, &e) {
		return e.Status
	}
	return http.StatusInternalServerError
}

// HasCode reports whether err carries the given code.
func HasCode(err error, code Code) bool { return CodeOf(err) == code }
