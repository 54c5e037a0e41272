package model

import (
	"database/sql"
	"errors"
)

// ErrNotFound is returned when a lookup matches no row visible to the
// requesting user. Callers cannot distinguish "does not exist" from
// "owned by someone else".
var ErrNotFound = errors.New("record not found")

// Queryer is the subset of database/sql shared by *sql.DB and *sql.Tx, so
// model operations can run standalone or inside a transaction.
type Queryer interface {
	Exec(query string, args ...any) (sql.Result, error)
	Query(query string, args ...any) (*sql.Rows, error)
	QueryRow(query string, args ...any) *sql.Row
}
