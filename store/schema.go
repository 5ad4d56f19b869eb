package store

import "database/sql"

// Schema is the application schema. Timestamps are unix milliseconds;
// check-in/check-out dates are ISO "YYYY-MM-DD" strings.
const Schema = `
CREATE TABLE IF NOT EXISTS tracked_requests (
    id               INTEGER PRIMARY KEY AUTOINCREMENT,
    location         TEXT NOT NULL,
    check_in         TEXT NOT NULL,
    check_out        TEXT NOT NULL,
    is_tracking      INTEGER NOT NULL DEFAULT 1,
    created_at       INTEGER NOT NULL,
    last_crawled_at  INTEGER
);

CREATE INDEX IF NOT EXISTS idx_tracked_requests_tracking
    ON tracked_requests(is_tracking);

CREATE TABLE IF NOT EXISTS price_observations (
    id           TEXT PRIMARY KEY,
    request_id   INTEGER NOT NULL REFERENCES tracked_requests(id) ON DELETE CASCADE,
    hotel_name   TEXT NOT NULL,
    amount       REAL NOT NULL,
    currency     TEXT NOT NULL,
    source_site  TEXT NOT NULL,
    details_url  TEXT NOT NULL DEFAULT '',
    synthetic    INTEGER NOT NULL DEFAULT 0,
    captured_at  INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_price_observations_request
    ON price_observations(request_id, captured_at);
`

// ApplySchema creates the tables if they do not exist.
func ApplySchema(db *sql.DB) error {
	_, err := db.Exec(Schema)
	return err
}
