// Package postgres implements the store interfaces on PostgreSQL via
// database/sql and lib/pq.
package postgres

import (
	"database/sql"
	"fmt"

	_ "github.com/lib/pq"
)

// Open connects to PostgreSQL and verifies that the required tables exist.
// Run the SQL in migrations/ first.
func Open(dsn string) (*sql.DB, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}
	if err := validateSchema(db); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

func validateSchema(db *sql.DB) error {
	requiredTables := []string{"accounts", "federated_identities", "biometric_credentials", "trusted_devices", "refresh_tokens", "audit_events"}

	query := `
		SELECT table_name
		FROM information_schema.tables
		WHERE table_schema = 'public' AND table_name = $1
	`

	for _, table := range requiredTables {
		var name string
		err := db.QueryRow(query, table).Scan(&name)
		if err == sql.ErrNoRows {
			return fmt.Errorf("postgres: missing table '%s' - run migrations first (see migrations/ folder)", table)
		}
		if err != nil {
			return fmt.Errorf("postgres: failed to check schema: %w", err)
		}
	}

	return nil
}
