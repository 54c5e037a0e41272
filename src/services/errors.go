package services

import "errors"

var (
	// ErrNotFound covers both "no such entity" and "entity belongs to
	// another user"; handlers surface the two identically.
	ErrNotFound = errors.New("record not found")

	// ErrInvalidAmount means a price or total amount was negative.
	ErrInvalidAmount = errors.New("price and total amount must not be negative")

	// ErrInvestmentMismatch means an update tried to move a transaction to
	// a different investment; transactions are deleted and recreated
	// instead.
	ErrInvestmentMismatch = errors.New("a transaction cannot be moved to another investment")
)
