package model

import (
	"database/sql"
	"time"

	"github.com/shopspring/decimal"
)

// Client is a person whose portfolio the authenticated user manages. Every
// client row belongs to exactly one user and is never visible outside that
// user's scope.
type Client struct {
	ID             int64           `json:"id"`
	UserID         int64           `json:"-"`
	FullName       string          `json:"fullName"`
	PhoneNumber    string          `json:"phoneNumber,omitempty"`
	City           string          `json:"city,omitempty"`
	BrokerageFirms string          `json:"brokerageFirms"` // JSON array, stored verbatim
	ReferralSource string          `json:"referralSource,omitempty"`
	Notes          string          `json:"notes,omitempty"`
	CashPosition   decimal.Decimal `json:"cashPosition"`
	CreatedAt      time.Time       `json:"createdAt"`
	UpdatedAt      time.Time       `json:"updatedAt"`
}

const clientColumns = `id, user_id, full_name, COALESCE(phone_number, ''), COALESCE(city, ''),
	brokerage_firms, COALESCE(referral_source, ''), COALESCE(notes, ''), cash_position,
	created_at, updated_at`

func scanClient(scan func(dest ...any) error) (*Client, error) {
	var c Client
	err := scan(&c.ID, &c.UserID, &c.FullName, &c.PhoneNumber, &c.City,
		&c.BrokerageFirms, &c.ReferralSource, &c.Notes, &c.CashPosition,
		&c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &c, nil
}

// CreateClient inserts the client and sets c.ID.
func CreateClient(db Queryer, c *Client) error {
	now := time.Now()
	c.CreatedAt = now
	c.UpdatedAt = now
	if c.BrokerageFirms == "" {
		c.BrokerageFirms = "[]"
	}

	res, err := db.Exec(`
	INSERT INTO clients (user_id, full_name, phone_number, city, brokerage_firms,
		referral_source, notes, cash_position, created_at, updated_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		c.UserID, c.FullName, c.PhoneNumber, c.City, c.BrokerageFirms,
		c.ReferralSource, c.Notes, c.CashPosition, c.CreatedAt, c.UpdatedAt)
	if err != nil {
		return err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	c.ID = id
	return nil
}

// GetClientByID retrieves a client scoped to its owning user.
func GetClientByID(db Queryer, id, userID int64) (*Client, error) {
	row := db.QueryRow(`SELECT `+clientColumns+` FROM clients WHERE id = ? AND user_id = ?`, id, userID)
	return scanClient(row.Scan)
}

// ListClientsByUser returns all of a user's clients ordered by name.
func ListClientsByUser(db Queryer, userID int64) ([]Client, error) {
	rows, err := db.Query(`SELECT `+clientColumns+` FROM clients WHERE user_id = ? ORDER BY full_name ASC`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	clients := []Client{}
	for rows.Next() {
		c, err := scanClient(rows.Scan)
		if err != nil {
			return nil, err
		}
		clients = append(clients, *c)
	}
	return clients, rows.Err()
}

// ListRecentClientsByUser returns the most recently added clients.
func ListRecentClientsByUser(db Queryer, userID int64, limit int) ([]Client, error) {
	rows, err := db.Query(`SELECT `+clientColumns+` FROM clients WHERE user_id = ? ORDER BY created_at DESC LIMIT ?`, userID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	clients := []Client{}
	for rows.Next() {
		c, err := scanClient(rows.Scan)
		if err != nil {
			return nil, err
		}
		clients = append(clients, *c)
	}
	return clients, rows.Err()
}

// UpdateClient persists edits to a client's profile fields. The row is
// matched against both id and user_id so one user can never edit another's
// client.
func UpdateClient(db Queryer, c *Client) error {
	c.UpdatedAt = time.Now()
	res, err := db.Exec(`
	UPDATE clients
	SET full_name = ?, phone_number = ?, city = ?, brokerage_firms = ?,
		referral_source = ?, notes = ?, cash_position = ?, updated_at = ?
	WHERE id = ? AND user_id = ?`,
		c.FullName, c.PhoneNumber, c.City, c.BrokerageFirms,
		c.ReferralSource, c.Notes, c.CashPosition, c.UpdatedAt,
		c.ID, c.UserID)
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

// DeleteClient removes a client; the schema cascades the delete to the
// client's investments and their transactions.
func DeleteClient(db Queryer, id, userID int64) error {
	res, err := db.Exec(`DELETE FROM clients WHERE id = ? AND user_id = ?`, id, userID)
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

// SumCashPositionsByUser totals the cash positions across a user's clients.
func SumCashPositionsByUser(db Queryer, userID int64) (decimal.Decimal, error) {
	rows, err := db.Query(`SELECT cash_position FROM clients WHERE user_id = ?`, userID)
	if err != nil {
		return decimal.Decimal{}, err
	}
	defer rows.Close()

	total := decimal.Zero
	for rows.Next() {
		var cash decimal.Decimal
		if err := rows.Scan(&cash); err != nil {
			return decimal.Decimal{}, err
		}
		total = total.Add(cash)
	}
	return total, rows.Err()
}
