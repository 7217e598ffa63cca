package service

import "errors"

// Domain errors. Handlers map them with errors.Is; none of them are retried.
var (
	ErrDuplicatePendingRequest = errors.New("a pending loan request for this book already exists")
	ErrInvalidTransition       = errors.New("loan request is no longer pending")
	ErrUnauthorizedActor       = errors.New("actor is not allowed to perform this action")
	ErrNotFound                = errors.New("record not found")
	ErrBookNotFound            = errors.New("book not found")
	ErrInactiveAccount         = errors.New("account is inactive")
	ErrBookUnavailable         = errors.New("book is not available")
	ErrInvalidOutcome          = errors.New("outcome must be approve or reject")
	ErrAlreadyExists           = errors.New("record already exists")
	ErrInvalidLoanTransition   = errors.New("loan is no longer processing")
	ErrBookOnLoan              = errors.New("book is on loan and cannot be marked available")
)
