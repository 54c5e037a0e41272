package services

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"github.com/username/portfoliodesk/backend/src/logger"
	"github.com/username/portfoliodesk/backend/src/model"
	"github.com/username/portfoliodesk/backend/src/position"
)

// TransactionInput is the validated payload for creating or updating a
// transaction.
type TransactionInput struct {
	InvestmentID    int64           `json:"investmentId"`
	Type            string          `json:"type"`
	QuantityLots    decimal.Decimal `json:"quantityLots"`
	PricePerLot     decimal.Decimal `json:"pricePerLot"`
	TotalAmount     decimal.Decimal `json:"totalAmount"`
	TransactionDate time.Time       `json:"transactionDate"`
	Notes           string          `json:"notes"`
}

func (in TransactionInput) validate() error {
	if !position.Type(in.Type).Valid() {
		return position.ErrInvalidType
	}
	if !in.QuantityLots.IsPositive() {
		return position.ErrInvalidQuantity
	}
	if in.PricePerLot.IsNegative() || in.TotalAmount.IsNegative() {
		return ErrInvalidAmount
	}
	return nil
}

// TransactionService is the only code path that writes transactions and the
// derived investment quantity. Each mutation holds the investment's lock and
// runs its re-read, reconciliation, and both writes inside one database
// transaction, so no two reconciliations for the same investment interleave.
type TransactionService struct {
	db    *sql.DB
	locks *investmentLocks
}

func NewTransactionService(db *sql.DB) *TransactionService {
	return &TransactionService{
		db:    db,
		locks: newInvestmentLocks(),
	}
}

// CreateTransaction records a new BUY or SELL and moves the investment's
// position accordingly.
func (s *TransactionService) CreateTransaction(userID int64, input TransactionInput) (*model.Transaction, error) {
	if err := input.validate(); err != nil {
		return nil, err
	}

	s.locks.Lock(input.InvestmentID)
	defer s.locks.Unlock(input.InvestmentID)

	dbTx, err := s.db.Begin()
	if err != nil {
		return nil, fmt.Errorf("beginning transaction: %w", err)
	}
	defer dbTx.Rollback()

	inv, err := model.GetInvestmentByID(dbTx, input.InvestmentID, userID)
	if err != nil {
		if errors.Is(err, model.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("loading investment %d: %w", input.InvestmentID, err)
	}

	newQuantity, err := position.Reconcile(inv.QuantityLots, position.Create{
		Type:     position.Type(input.Type),
		Quantity: input.QuantityLots,
	})
	if err != nil {
		return nil, err
	}

	tx := &model.Transaction{
		InvestmentID:    inv.ID,
		ClientID:        inv.ClientID,
		Type:            input.Type,
		QuantityLots:    input.QuantityLots,
		PricePerLot:     input.PricePerLot,
		TotalAmount:     input.TotalAmount,
		TransactionDate: input.TransactionDate,
		Notes:           input.Notes,
	}
	if err := model.CreateTransaction(dbTx, tx); err != nil {
		return nil, fmt.Errorf("inserting transaction: %w", err)
	}
	if err := model.UpdateInvestmentQuantity(dbTx, inv.ID, newQuantity); err != nil {
		return nil, fmt.Errorf("updating investment quantity: %w", err)
	}

	if err := dbTx.Commit(); err != nil {
		return nil, fmt.Errorf("committing transaction: %w", err)
	}

	logger.L.Info("Transaction created",
		"transactionID", tx.ID, "investmentID", inv.ID, "type", tx.Type,
		"quantity", tx.QuantityLots.String(), "newPosition", newQuantity.String())
	return tx, nil
}

// UpdateTransaction rewrites an existing transaction: the stored event is
// reversed and the new one applied in a single reconciliation.
func (s *TransactionService) UpdateTransaction(userID, transactionID int64, input TransactionInput) (*model.Transaction, error) {
	if err := input.validate(); err != nil {
		return nil, err
	}

	// Resolve the investment outside the lock; the authoritative re-read
	// happens inside the database transaction below.
	existing, err := model.GetTransactionByID(s.db, transactionID, userID)
	if err != nil {
		if errors.Is(err, model.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("loading transaction %d: %w", transactionID, err)
	}
	if input.InvestmentID != 0 && input.InvestmentID != existing.InvestmentID {
		return nil, ErrInvestmentMismatch
	}

	s.locks.Lock(existing.InvestmentID)
	defer s.locks.Unlock(existing.InvestmentID)

	dbTx, err := s.db.Begin()
	if err != nil {
		return nil, fmt.Errorf("beginning transaction: %w", err)
	}
	defer dbTx.Rollback()

	existing, err = model.GetTransactionByID(dbTx, transactionID, userID)
	if err != nil {
		if errors.Is(err, model.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("loading transaction %d: %w", transactionID, err)
	}

	currentQuantity, err := model.GetInvestmentQuantity(dbTx, existing.InvestmentID)
	if err != nil {
		return nil, fmt.Errorf("loading investment quantity: %w", err)
	}

	newQuantity, err := position.Reconcile(currentQuantity, position.Update{
		OldType:     position.Type(existing.Type),
		OldQuantity: existing.QuantityLots,
		NewType:     position.Type(input.Type),
		NewQuantity: input.QuantityLots,
	})
	if err != nil {
		return nil, err
	}

	existing.Type = input.Type
	existing.QuantityLots = input.QuantityLots
	existing.PricePerLot = input.PricePerLot
	existing.TotalAmount = input.TotalAmount
	existing.TransactionDate = input.TransactionDate
	existing.Notes = input.Notes

	if err := model.UpdateTransaction(dbTx, existing); err != nil {
		return nil, fmt.Errorf("updating transaction: %w", err)
	}
	if err := model.UpdateInvestmentQuantity(dbTx, existing.InvestmentID, newQuantity); err != nil {
		return nil, fmt.Errorf("updating investment quantity: %w", err)
	}

	if err := dbTx.Commit(); err != nil {
		return nil, fmt.Errorf("committing transaction: %w", err)
	}

	logger.L.Info("Transaction updated",
		"transactionID", existing.ID, "investmentID", existing.InvestmentID,
		"newPosition", newQuantity.String())
	return existing, nil
}

// DeleteTransaction removes a transaction and reverses its effect on the
// investment's position.
func (s *TransactionService) DeleteTransaction(userID, transactionID int64) error {
	existing, err := model.GetTransactionByID(s.db, transactionID, userID)
	if err != nil {
		if errors.Is(err, model.ErrNotFound) {
			return ErrNotFound
		}
		return fmt.Errorf("loading transaction %d: %w", transactionID, err)
	}

	s.locks.Lock(existing.InvestmentID)
	defer s.locks.Unlock(existing.InvestmentID)

	dbTx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer dbTx.Rollback()

	existing, err = model.GetTransactionByID(dbTx, transactionID, userID)
	if err != nil {
		if errors.Is(err, model.ErrNotFound) {
			return ErrNotFound
		}
		return fmt.Errorf("loading transaction %d: %w", transactionID, err)
	}

	currentQuantity, err := model.GetInvestmentQuantity(dbTx, existing.InvestmentID)
	if err != nil {
		return fmt.Errorf("loading investment quantity: %w", err)
	}

	newQuantity, err := position.Reconcile(currentQuantity, position.Delete{
		Type:     position.Type(existing.Type),
		Quantity: existing.QuantityLots,
	})
	if err != nil {
		return err
	}

	if err := model.DeleteTransaction(dbTx, existing.ID); err != nil {
		return fmt.Errorf("deleting transaction: %w", err)
	}
	if err := model.UpdateInvestmentQuantity(dbTx, existing.InvestmentID, newQuantity); err != nil {
		return fmt.Errorf("updating investment quantity: %w", err)
	}

	if err := dbTx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}

	logger.L.Info("Transaction deleted",
		"transactionID", existing.ID, "investmentID", existing.InvestmentID,
		"newPosition", newQuantity.String())
	return nil
}

// GetTransaction returns one transaction within the user's scope.
func (s *TransactionService) GetTransaction(userID, transactionID int64) (*model.Transaction, error) {
	tx, err := model.GetTransactionByID(s.db, transactionID, userID)
	if err != nil {
		if errors.Is(err, model.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return tx, nil
}

// ListTransactions returns every transaction across the user's clients,
// most recent first.
func (s *TransactionService) ListTransactions(userID int64) ([]model.Transaction, error) {
	return model.ListTransactionsByUser(s.db, userID)
}
