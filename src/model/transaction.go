package model

import (
	"database/sql"
	"time"

	"github.com/shopspring/decimal"
)

// Transaction is one BUY or SELL of lots against an investment. TotalAmount
// is recorded as submitted by the caller; it is not re-derived from
// quantity × price server-side.
type Transaction struct {
	ID              int64           `json:"id"`
	InvestmentID    int64           `json:"investmentId"`
	ClientID        int64           `json:"clientId"`
	Type            string          `json:"type"`
	QuantityLots    decimal.Decimal `json:"quantityLots"`
	PricePerLot     decimal.Decimal `json:"pricePerLot"`
	TotalAmount     decimal.Decimal `json:"totalAmount"`
	TransactionDate time.Time       `json:"transactionDate"`
	Notes           string          `json:"notes,omitempty"`
	CreatedAt       time.Time       `json:"createdAt"`
	UpdatedAt       time.Time       `json:"updatedAt"`

	// Display fields joined for list views.
	StockName   string `json:"stockName,omitempty"`
	StockSymbol string `json:"stockSymbol,omitempty"`
	ClientName  string `json:"clientName,omitempty"`
}

const transactionColumns = `t.id, t.investment_id, t.client_id, t.type, t.quantity_lots,
	t.price_per_lot, t.total_amount, t.transaction_date, COALESCE(t.notes, ''),
	t.created_at, t.updated_at, i.stock_name, COALESCE(i.stock_symbol, ''), c.full_name`

func scanTransaction(scan func(dest ...any) error) (*Transaction, error) {
	var tx Transaction
	err := scan(&tx.ID, &tx.InvestmentID, &tx.ClientID, &tx.Type, &tx.QuantityLots,
		&tx.PricePerLot, &tx.TotalAmount, &tx.TransactionDate, &tx.Notes,
		&tx.CreatedAt, &tx.UpdatedAt, &tx.StockName, &tx.StockSymbol, &tx.ClientName)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &tx, nil
}

// CreateTransaction inserts the transaction and sets tx.ID.
func CreateTransaction(db Queryer, tx *Transaction) error {
	now := time.Now()
	tx.CreatedAt = now
	tx.UpdatedAt = now

	res, err := db.Exec(`
	INSERT INTO transactions (investment_id, client_id, type, quantity_lots,
		price_per_lot, total_amount, transaction_date, notes, created_at, updated_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		tx.InvestmentID, tx.ClientID, tx.Type, tx.QuantityLots,
		tx.PricePerLot, tx.TotalAmount, tx.TransactionDate, tx.Notes,
		tx.CreatedAt, tx.UpdatedAt)
	if err != nil {
		return err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	tx.ID = id
	return nil
}

// GetTransactionByID retrieves a transaction, scoped through its investment
// and client to the owning user.
func GetTransactionByID(db Queryer, id, userID int64) (*Transaction, error) {
	row := db.QueryRow(`
	SELECT `+transactionColumns+`
	FROM transactions t
	JOIN investments i ON i.id = t.investment_id
	JOIN clients c ON c.id = i.client_id
	WHERE t.id = ? AND c.user_id = ?`, id, userID)
	return scanTransaction(row.Scan)
}

func listTransactions(db Queryer, where string, args ...any) ([]Transaction, error) {
	rows, err := db.Query(`
	SELECT `+transactionColumns+`
	FROM transactions t
	JOIN investments i ON i.id = t.investment_id
	JOIN clients c ON c.id = i.client_id
	`+where, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	transactions := []Transaction{}
	for rows.Next() {
		tx, err := scanTransaction(rows.Scan)
		if err != nil {
			return nil, err
		}
		transactions = append(transactions, *tx)
	}
	return transactions, rows.Err()
}

// ListTransactionsByUser returns every transaction across a user's clients,
// most recent first.
func ListTransactionsByUser(db Queryer, userID int64) ([]Transaction, error) {
	return listTransactions(db,
		`WHERE c.user_id = ? ORDER BY t.transaction_date DESC, t.id DESC`, userID)
}

// ListRecentTransactionsByUser returns the newest transactions for the
// dashboard activity feed.
func ListRecentTransactionsByUser(db Queryer, userID int64, limit int) ([]Transaction, error) {
	return listTransactions(db,
		`WHERE c.user_id = ? ORDER BY t.transaction_date DESC, t.id DESC LIMIT ?`, userID, limit)
}

// ListTransactionsByInvestment returns an investment's transactions, most
// recent first.
func ListTransactionsByInvestment(db Queryer, investmentID int64) ([]Transaction, error) {
	return listTransactions(db,
		`WHERE t.investment_id = ? ORDER BY t.transaction_date DESC, t.id DESC`, investmentID)
}

// ListTransactionsByClient returns a client's transactions, most recent first.
func ListTransactionsByClient(db Queryer, clientID int64) ([]Transaction, error) {
	return listTransactions(db,
		`WHERE t.client_id = ? ORDER BY t.transaction_date DESC, t.id DESC`, clientID)
}

// UpdateTransaction persists edits to a transaction's own fields. The
// investment it points at never changes; move semantics would need a
// delete + create pair.
func UpdateTransaction(db Queryer, tx *Transaction) error {
	tx.UpdatedAt = time.Now()
	res, err := db.Exec(`
	UPDATE transactions
	SET type = ?, quantity_lots = ?, price_per_lot = ?, total_amount = ?,
		transaction_date = ?, notes = ?, updated_at = ?
	WHERE id = ?`,
		tx.Type, tx.QuantityLots, tx.PricePerLot, tx.TotalAmount,
		tx.TransactionDate, tx.Notes, tx.UpdatedAt, tx.ID)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteTransaction removes a transaction by id.
func DeleteTransaction(db Queryer, id int64) error {
	res, err := db.Exec(`DELETE FROM transactions WHERE id = ?`, id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
