package errors

import (
	"fmt"
	"net/http"
)

type ErrorCode string

const (
	InvalidInput         ErrorCode = "invalid_input"
	InvalidAmount        ErrorCode = "invalid_amount"
	BelowMinimum         ErrorCode = "below_minimum"
	AccountNotFound      ErrorCode = "account_not_found"
	PayeeNotFound        ErrorCode = "payee_not_found"
	InsufficientFunds    ErrorCode = "insufficient_funds"
	SelfTransfer         ErrorCode = "self_transfer"
	DuplicateAccount     ErrorCode = "duplicate_account"
	DuplicateCompany     ErrorCode = "duplicate_company"
	DuplicateTransaction ErrorCode = "duplicate_transaction"
	ReferenceCollision   ErrorCode = "reference_collision"
	InvalidCredentials   ErrorCode = "invalid_credentials"
	InternalError        ErrorCode = "internal_error"
)

type AppError struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
	Details string    `json:"details,omitempty"`
}

func (e AppError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func NewAppError(code ErrorCode, message string) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
	}
}

func NewAppErrorf(code ErrorCode, format string, args ...interface{}) *AppError {
	return &AppError{
		Code:    code,
		Message: fmt.Sprintf(format, args...),
	}
}

func (e *AppError) WithDetails(details string) *AppError {
	return &AppError{
		Code:    e.Code,
		Message: e.Message,
		Details: details,
	}
}

// HTTPStatus maps an error code to the status the API surface reports.
func (e *AppError) HTTPStatus() int {
	switch e.Code {
	case InvalidInput, InvalidAmount, BelowMinimum, SelfTransfer, InvalidCredentials:
		return http.StatusBadRequest
	case AccountNotFound, PayeeNotFound:
		return http.StatusNotFound
	case DuplicateAccount, DuplicateCompany, DuplicateTransaction:
		return http.StatusConflict
	case InsufficientFunds:
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

// Predefined errors for common cases
var (
	ErrInvalidAmount      = NewAppError(InvalidAmount, "amount must be greater than zero")
	ErrAccountNotFound    = NewAppError(AccountNotFound, "account not found")
	ErrPayeeNotFound      = NewAppError(PayeeNotFound, "company not found")
	ErrInsufficientFunds  = NewAppError(InsufficientFunds, "insufficient funds")
	ErrSelfTransfer       = NewAppError(SelfTransfer, "cannot send money to yourself")
	ErrDuplicateAccount   = NewAppError(DuplicateAccount, "username or email already exists")
	ErrDuplicateCompany   = NewAppError(DuplicateCompany, "company already exists")
	ErrDuplicateKey       = NewAppError(DuplicateTransaction, "transaction already processed")
	ErrReferenceCollision = NewAppError(ReferenceCollision, "reference number already in use")
	ErrInvalidCredentials = NewAppError(InvalidCredentials, "invalid username or PIN")

	ErrCannotBeginTransaction = NewAppError(InternalError, "cannot begin transaction from a transactional store")
)
