// Package position derives an investment's lot quantity from transaction
// lifecycle events. It is pure computation: callers load the current
// quantity, ask for the new one, and persist both sides of the result
// atomically themselves.
package position

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// Type is the direction of a transaction.
type Type string

const (
	Buy  Type = "BUY"
	Sell Type = "SELL"
)

// Valid reports whether t is one of the known transaction types.
func (t Type) Valid() bool {
	return t == Buy || t == Sell
}

var (
	// ErrInsufficientPosition means applying the event would drive the
	// investment's quantity below zero.
	ErrInsufficientPosition = errors.New("insufficient position for this transaction")

	// ErrInvalidQuantity means a transaction quantity was zero or negative.
	// Only the derived investment quantity may be zero, never a
	// transaction's own quantity.
	ErrInvalidQuantity = errors.New("transaction quantity must be greater than zero")

	// ErrInvalidType means the transaction type is neither BUY nor SELL.
	ErrInvalidType = errors.New("transaction type must be BUY or SELL")
)

// Event is a transaction lifecycle event to reconcile against an investment.
// It is a closed union: Create, Update and Delete are the only
// implementations.
type Event interface {
	apply(current decimal.Decimal) (decimal.Decimal, error)
}

// Create is a new transaction being recorded.
type Create struct {
	Type     Type
	Quantity decimal.Decimal
}

// Update is an existing transaction changing type and/or quantity. The old
// values are the ones currently persisted.
type Update struct {
	OldType     Type
	OldQuantity decimal.Decimal
	NewType     Type
	NewQuantity decimal.Decimal
}

// Delete is an existing transaction being removed; its effect on the
// position is reversed.
type Delete struct {
	Type     Type
	Quantity decimal.Decimal
}

// signedAmount maps a transaction to its effect on the position:
// BUY adds lots, SELL removes them.
func signedAmount(t Type, quantity decimal.Decimal) (decimal.Decimal, error) {
	switch t {
	case Buy:
		return quantity, nil
	case Sell:
		return quantity.Neg(), nil
	default:
		return decimal.Decimal{}, fmt.Errorf("%w: %q", ErrInvalidType, t)
	}
}

func (e Create) apply(current decimal.Decimal) (decimal.Decimal, error) {
	if !e.Quantity.IsPositive() {
		return decimal.Decimal{}, ErrInvalidQuantity
	}
	delta, err := signedAmount(e.Type, e.Quantity)
	if err != nil {
		return decimal.Decimal{}, err
	}
	return current.Add(delta), nil
}

func (e Update) apply(current decimal.Decimal) (decimal.Decimal, error) {
	if !e.NewQuantity.IsPositive() || !e.OldQuantity.IsPositive() {
		return decimal.Decimal{}, ErrInvalidQuantity
	}
	oldDelta, err := signedAmount(e.OldType, e.OldQuantity)
	if err != nil {
		return decimal.Decimal{}, err
	}
	newDelta, err := signedAmount(e.NewType, e.NewQuantity)
	if err != nil {
		return decimal.Decimal{}, err
	}
	return current.Sub(oldDelta).Add(newDelta), nil
}

func (e Delete) apply(current decimal.Decimal) (decimal.Decimal, error) {
	delta, err := signedAmount(e.Type, e.Quantity)
	if err != nil {
		return decimal.Decimal{}, err
	}
	return current.Sub(delta), nil
}

// Reconcile computes the investment quantity after applying ev to current.
// A result below zero is rejected with ErrInsufficientPosition and must not
// be persisted; exactly zero is a valid position.
func Reconcile(current decimal.Decimal, ev Event) (decimal.Decimal, error) {
	next, err := ev.apply(current)
	if err != nil {
		return decimal.Decimal{}, err
	}
	if next.IsNegative() {
		return decimal.Decimal{}, ErrInsufficientPosition
	}
	return next, nil
}
