package model

import (
	"database/sql"
	"time"

	"github.com/shopspring/decimal"
)

// Investment is a position in one stock held by a client. QuantityLots is
// derived state: it is only ever written through the position reconciliation
// path, never by a direct edit.
type Investment struct {
	ID              int64               `json:"id"`
	ClientID        int64               `json:"clientId"`
	ClientName      string              `json:"clientName,omitempty"` // joined for list views
	StockName       string              `json:"stockName"`
	StockSymbol     string              `json:"stockSymbol,omitempty"`
	BrokerageFirm   string              `json:"brokerageFirm,omitempty"`
	AcquisitionDate time.Time           `json:"acquisitionDate"`
	QuantityLots    decimal.Decimal     `json:"quantityLots"`
	AcquisitionCost decimal.Decimal     `json:"acquisitionCost"`
	CurrentValue    decimal.NullDecimal `json:"currentValue"`
	Notes           string              `json:"notes,omitempty"`
	CreatedAt       time.Time           `json:"createdAt"`
	UpdatedAt       time.Time           `json:"updatedAt"`
}

const investmentColumns = `i.id, i.client_id, c.full_name, i.stock_name,
	COALESCE(i.stock_symbol, ''), COALESCE(i.brokerage_firm, ''), i.acquisition_date,
	i.quantity_lots, i.acquisition_cost, i.current_value, COALESCE(i.notes, ''),
	i.created_at, i.updated_at`

func scanInvestment(scan func(dest ...any) error) (*Investment, error) {
	var inv Investment
	var acquisitionDate sql.NullTime
	err := scan(&inv.ID, &inv.ClientID, &inv.ClientName, &inv.StockName,
		&inv.StockSymbol, &inv.BrokerageFirm, &acquisitionDate,
		&inv.QuantityLots, &inv.AcquisitionCost, &inv.CurrentValue, &inv.Notes,
		&inv.CreatedAt, &inv.UpdatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if acquisitionDate.Valid {
		inv.AcquisitionDate = acquisitionDate.Time
	}
	return &inv, nil
}

// CreateInvestment inserts the investment and sets inv.ID. The caller must
// already have verified that the client belongs to the requesting user.
func CreateInvestment(db Queryer, inv *Investment) error {
	now := time.Now()
	inv.CreatedAt = now
	inv.UpdatedAt = now

	res, err := db.Exec(`
	INSERT INTO investments (client_id, stock_name, stock_symbol, brokerage_firm,
		acquisition_date, quantity_lots, acquisition_cost, current_value, notes,
		created_at, updated_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		inv.ClientID, inv.StockName, inv.StockSymbol, inv.BrokerageFirm,
		inv.AcquisitionDate, inv.QuantityLots, inv.AcquisitionCost, inv.CurrentValue,
		inv.Notes, inv.CreatedAt, inv.UpdatedAt)
	if err != nil {
		return err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	inv.ID = id
	return nil
}

// GetInvestmentByID retrieves an investment, scoped through its client to
// the owning user.
func GetInvestmentByID(db Queryer, id, userID int64) (*Investment, error) {
	row := db.QueryRow(`
	SELECT `+investmentColumns+`
	FROM investments i
	JOIN clients c ON c.id = i.client_id
	WHERE i.id = ? AND c.user_id = ?`, id, userID)
	return scanInvestment(row.Scan)
}

// ListInvestmentsByUser returns every investment across all of a user's
// clients, ordered by stock name.
func ListInvestmentsByUser(db Queryer, userID int64) ([]Investment, error) {
	rows, err := db.Query(`
	SELECT `+investmentColumns+`
	FROM investments i
	JOIN clients c ON c.id = i.client_id
	WHERE c.user_id = ?
	ORDER BY i.stock_name ASC`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	investments := []Investment{}
	for rows.Next() {
		inv, err := scanInvestment(rows.Scan)
		if err != nil {
			return nil, err
		}
		investments = append(investments, *inv)
	}
	return investments, rows.Err()
}

// ListInvestmentsByClient returns a client's investments ordered by stock
// name. The client must already be resolved within the user's scope.
func ListInvestmentsByClient(db Queryer, clientID int64) ([]Investment, error) {
	rows, err := db.Query(`
	SELECT `+investmentColumns+`
	FROM investments i
	JOIN clients c ON c.id = i.client_id
	WHERE i.client_id = ?
	ORDER BY i.stock_name ASC`, clientID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	investments := []Investment{}
	for rows.Next() {
		inv, err := scanInvestment(rows.Scan)
		if err != nil {
			return nil, err
		}
		investments = append(investments, *inv)
	}
	return investments, rows.Err()
}

// UpdateInvestment persists edits to an investment's descriptive fields.
// quantity_lots is deliberately absent: positions change only through
// transaction reconciliation.
func UpdateInvestment(db Queryer, inv *Investment, userID int64) error {
	inv.UpdatedAt = time.Now()
	res, err := db.Exec(`
	UPDATE investments
	SET stock_name = ?, stock_symbol = ?, brokerage_firm = ?, acquisition_date = ?,
		acquisition_cost = ?, current_value = ?, notes = ?, updated_at = ?
	WHERE id = ? AND client_id IN (SELECT id FROM clients WHERE user_id = ?)`,
		inv.StockName, inv.StockSymbol, inv.BrokerageFirm, inv.AcquisitionDate,
		inv.AcquisitionCost, inv.CurrentValue, inv.Notes, inv.UpdatedAt,
		inv.ID, userID)
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

// GetInvestmentQuantity reads just the current position. Run inside the same
// transaction as UpdateInvestmentQuantity when reconciling.
func GetInvestmentQuantity(db Queryer, id int64) (decimal.Decimal, error) {
	var quantity decimal.Decimal
	err := db.QueryRow(`SELECT quantity_lots FROM investments WHERE id = ?`, id).Scan(&quantity)
	if err != nil {
		if err == sql.ErrNoRows {
			return decimal.Decimal{}, ErrNotFound
		}
		return decimal.Decimal{}, err
	}
	return quantity, nil
}

// UpdateInvestmentQuantity writes a reconciled position.
func UpdateInvestmentQuantity(db Queryer, id int64, quantity decimal.Decimal) error {
	res, err := db.Exec(`UPDATE investments SET quantity_lots = ?, updated_at = ? WHERE id = ?`,
		quantity, time.Now(), id)
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

// DeleteInvestment removes an investment; the schema cascades the delete to
// its transactions.
func DeleteInvestment(db Queryer, id, userID int64) error {
	res, err := db.Exec(`
	DELETE FROM investments
	WHERE id = ? AND client_id IN (SELECT id FROM clients WHERE user_id = ?)`, id, userID)
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
