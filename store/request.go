package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

const dateLayout = "2006-01-02"

// CreateRequest inserts a new tracked request and returns it with the
// assigned ID. The date range is validated here: both dates must be
// ISO formatted and check-out must be after check-in.
func (s *Store) CreateRequest(ctx context.Context, location, checkIn, checkOut string) (*TrackedRequest, error) {
	if location == "" {
		return nil, fmt.Errorf("store: location is required")
	}
	in, err := time.Parse(dateLayout, checkIn)
	if err != nil {
		return nil, fmt.Errorf("store: check-in date: %w", err)
	}
	out, err := time.Parse(dateLayout, checkOut)
	if err != nil {
		return nil, fmt.Errorf("store: check-out date: %w", err)
	}
	if !out.After(in) {
		return nil, fmt.Errorf("store: check-out %s must be after check-in %s", checkOut, checkIn)
	}

	now := time.Now().UnixMilli()
	res, err := s.DB.ExecContext(ctx,
		`INSERT INTO tracked_requests (location, check_in, check_out, is_tracking, created_at)
		 VALUES (?, ?, ?, 1, ?)`,
		location, checkIn, checkOut, now)
	if err != nil {
		return nil, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, err
	}
	return &TrackedRequest{
		ID:         id,
		Location:   location,
		CheckIn:    checkIn,
		CheckOut:   checkOut,
		IsTracking: true,
		CreatedAt:  now,
	}, nil
}

// GetRequest retrieves a tracked request by ID.
func (s *Store) GetRequest(ctx context.Context, id int64) (*TrackedRequest, error) {
	row := s.DB.QueryRowContext(ctx,
		`SELECT id, location, check_in, check_out, is_tracking, created_at, last_crawled_at
		 FROM tracked_requests WHERE id = ?`, id)
	return scanRequest(row)
}

// ListActive returns all requests with tracking enabled.
func (s *Store) ListActive(ctx context.Context) ([]*TrackedRequest, error) {
	return s.listWhere(ctx, "WHERE is_tracking = 1")
}

// ListRequests returns all requests, newest first.
func (s *Store) ListRequests(ctx context.Context) ([]*TrackedRequest, error) {
	return s.listWhere(ctx, "")
}

func (s *Store) listWhere(ctx context.Context, where string) ([]*TrackedRequest, error) {
	rows, err := s.DB.QueryContext(ctx,
		`SELECT id, location, check_in, check_out, is_tracking, created_at, last_crawled_at
		 FROM tracked_requests `+where+` ORDER BY created_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*TrackedRequest
	for rows.Next() {
		r, err := scanRequest(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// SetTracking flips the tracking flag for a request.
func (s *Store) SetTracking(ctx context.Context, id int64, tracking bool) error {
	res, err := s.DB.ExecContext(ctx,
		`UPDATE tracked_requests SET is_tracking = ? WHERE id = ?`, tracking, id)
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

// DeleteRequest removes a request and, via cascade, its observations.
func (s *Store) DeleteRequest(ctx context.Context, id int64) error {
	res, err := s.DB.ExecContext(ctx, `DELETE FROM tracked_requests WHERE id = ?`, id)
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

// UpdateLastCrawled records when a request's scrape last completed.
func (s *Store) UpdateLastCrawled(ctx context.Context, id int64, at time.Time) error {
	_, err := s.DB.ExecContext(ctx,
		`UPDATE tracked_requests SET last_crawled_at = ? WHERE id = ?`, at.UnixMilli(), id)
	return err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRequest(row rowScanner) (*TrackedRequest, error) {
	var r TrackedRequest
	var tracking int
	var lastCrawled sql.NullInt64
	err := row.Scan(&r.ID, &r.Location, &r.CheckIn, &r.CheckOut, &tracking, &r.CreatedAt, &lastCrawled)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	r.IsTracking = tracking == 1
	if lastCrawled.Valid {
		r.LastCrawledAt = &lastCrawled.Int64
	}
	return &r, nil
}
