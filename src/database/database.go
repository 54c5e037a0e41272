package database

import (
	"database/sql"
	stdlog "log"

	"github.com/username/portfoliodesk/backend/src/logger"
	_ "modernc.org/sqlite"
)

var DB *sql.DB

func InitDB(databasePath string) {
	// Pragmas go in the DSN so every pooled connection gets them: a plain
	// Exec would configure only the one connection it happens to run on.
	// busy_timeout makes concurrent writers wait instead of failing with
	// SQLITE_BUSY; foreign_keys enables the ON DELETE CASCADE chains.
	dsn := databasePath + "?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		stdlog.Fatalf("failed to open database at %s: %v", databasePath, err)
	}

	DB = db

	if logger.L != nil {
		logger.L.Info("Checking database migrations", "databasePath", databasePath)
	}
	migrateClientTable()

	createTableStatement := `
	CREATE TABLE IF NOT EXISTS users (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		username TEXT NOT NULL UNIQUE,
		password TEXT NOT NULL,
		email TEXT NOT NULL UNIQUE,
		auth_provider TEXT DEFAULT 'local',
		is_email_verified BOOLEAN DEFAULT FALSE,
		email_verification_token TEXT,
		email_verification_token_expires_at TIMESTAMP,
		password_reset_token TEXT,
		password_reset_token_expires_at TIMESTAMP,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS sessions (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		user_id INTEGER NOT NULL,
		token TEXT NOT NULL,
		refresh_token TEXT NOT NULL,
		user_agent TEXT,
		client_ip TEXT,
		is_blocked BOOLEAN DEFAULT FALSE,
		expires_at TIMESTAMP,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		FOREIGN KEY(user_id) REFERENCES users(id)
	);

	CREATE TABLE IF NOT EXISTS clients (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		user_id INTEGER NOT NULL,
		full_name TEXT NOT NULL,
		phone_number TEXT,
		city TEXT,
		brokerage_firms TEXT NOT NULL DEFAULT '[]',
		referral_source TEXT,
		notes TEXT,
		cash_position TEXT NOT NULL DEFAULT '0',
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		FOREIGN KEY(user_id) REFERENCES users(id) ON DELETE CASCADE
	);

	CREATE TABLE IF NOT EXISTS investments (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		client_id INTEGER NOT NULL,
		stock_name TEXT NOT NULL,
		stock_symbol TEXT,
		brokerage_firm TEXT,
		acquisition_date TIMESTAMP,
		quantity_lots TEXT NOT NULL DEFAULT '0',
		acquisition_cost TEXT NOT NULL DEFAULT '0',
		current_value TEXT,
		notes TEXT,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		FOREIGN KEY(client_id) REFERENCES clients(id) ON DELETE CASCADE
	);

	CREATE TABLE IF NOT EXISTS transactions (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		investment_id INTEGER NOT NULL,
		client_id INTEGER NOT NULL,
		type TEXT NOT NULL CHECK (type IN ('BUY', 'SELL')),
		quantity_lots TEXT NOT NULL,
		price_per_lot TEXT NOT NULL,
		total_amount TEXT NOT NULL,
		transaction_date TIMESTAMP NOT NULL,
		notes TEXT,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		FOREIGN KEY(investment_id) REFERENCES investments(id) ON DELETE CASCADE,
		FOREIGN KEY(client_id) REFERENCES clients(id) ON DELETE CASCADE
	);

	CREATE INDEX IF NOT EXISTS idx_clients_user_id ON clients(user_id);
	CREATE INDEX IF NOT EXISTS idx_investments_client_id ON investments(client_id);
	CREATE INDEX IF NOT EXISTS idx_transactions_investment_id ON transactions(investment_id);
	CREATE INDEX IF NOT EXISTS idx_transactions_client_id ON transactions(client_id);
	`

	_, err = DB.Exec(createTableStatement)
	if err != nil {
		if logger.L != nil {
			logger.L.Error("failed to create tables", "error", err)
		}
		stdlog.Fatalf("failed to create tables: %v", err)
	}
	if logger.L != nil {
		logger.L.Info("Database tables ensured/created.")
	}
}

// migrateClientTable adds columns introduced after the initial clients schema
// shipped. SQLite has no ALTER TABLE ... ADD COLUMN IF NOT EXISTS, so the
// existing columns are inspected through PRAGMA table_info first.
func migrateClientTable() {
	var tableName string
	err := DB.QueryRow("SELECT name FROM sqlite_master WHERE type='table' AND name='clients'").Scan(&tableName)
	if err != nil {
		if err == sql.ErrNoRows {
			return // table will be created with the full schema
		}
		if logger.L != nil {
			logger.L.Error("Error checking for 'clients' table", "error", err)
		}
		return
	}

	rows, err := DB.Query("PRAGMA table_info(clients)")
	if err != nil {
		if logger.L != nil {
			logger.L.Error("Error querying table schema for 'clients'", "error", err)
		}
		return
	}
	defer rows.Close()

	columnExists := make(map[string]bool)
	for rows.Next() {
		var cid, pk int
		var name, dataType string
		var notnullVal int
		var dfltValue interface{}
		if err := rows.Scan(&cid, &name, &dataType, &notnullVal, &dfltValue, &pk); err != nil {
			if logger.L != nil {
				logger.L.Error("Error scanning column info for 'clients'", "error", err)
			}
			return
		}
		columnExists[name] = true
	}
	if err = rows.Err(); err != nil {
		if logger.L != nil {
			logger.L.Error("Error iterating over column info for 'clients'", "error", err)
		}
		return
	}

	if _, ok := columnExists["city"]; !ok {
		if _, err := DB.Exec("ALTER TABLE clients ADD COLUMN city TEXT"); err != nil {
			if logger.L != nil {
				logger.L.Error("Error adding 'city' column to 'clients' table", "error", err)
			}
		} else if logger.L != nil {
			logger.L.Info("Added 'city' column to 'clients' table")
		}
	}
	if _, ok := columnExists["brokerage_firms"]; !ok {
		if _, err := DB.Exec("ALTER TABLE clients ADD COLUMN brokerage_firms TEXT NOT NULL DEFAULT '[]'"); err != nil {
			if logger.L != nil {
				logger.L.Error("Error adding 'brokerage_firms' column to 'clients' table", "error", err)
			}
		} else if logger.L != nil {
			logger.L.Info("Added 'brokerage_firms' column to 'clients' table")
		}
	}
}
