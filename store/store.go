// Package store persists tracked search requests and the price
// observations collected for them, backed by SQLite.
package store

import "database/sql"

// Store wraps the application database.
type Store struct {
	DB *sql.DB
}

// New creates a Store on an open database handle.
func New(db *sql.DB) *Store {
	return &Store{DB: db}
}
