package store

import (
	"context"
	"fmt"
	"time"

	"github.com/hazyhaar/tarifveille/idgen"
)

// SaveObservations writes a batch of observations for one request in a
// single transaction. All-or-nothing: any insert failure rolls the
// whole batch back. Observations without an ID are assigned one.
func (s *Store) SaveObservations(ctx context.Context, requestID int64, obs []*PriceObservation) error {
	if len(obs) == 0 {
		return nil
	}

	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("store: begin: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO price_observations
		 (id, request_id, hotel_name, amount, currency, source_site, details_url, synthetic, captured_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("store: prepare: %w", err)
	}
	defer stmt.Close()

	now := time.Now().UnixMilli()
	for _, o := range obs {
		if o.ID == "" {
			o.ID = idgen.Prefixed("obs_", idgen.Default)()
		}
		if o.CapturedAt == 0 {
			o.CapturedAt = now
		}
		o.RequestID = requestID
		if _, err := stmt.ExecContext(ctx,
			o.ID, requestID, o.HotelName, o.Amount, o.Currency,
			o.SourceSite, o.DetailsURL, o.Synthetic, o.CapturedAt); err != nil {
			return fmt.Errorf("store: insert observation %s: %w", o.HotelName, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("store: commit: %w", err)
	}
	return nil
}

// ListObservations returns the observation history for a request,
// newest first. Synthetic (placeholder-strategy) rows are excluded
// unless includeSynthetic is set.
func (s *Store) ListObservations(ctx context.Context, requestID int64, includeSynthetic bool) ([]*PriceObservation, error) {
	q := `SELECT id, request_id, hotel_name, amount, currency, source_site, details_url, synthetic, captured_at
	      FROM price_observations WHERE request_id = ?`
	if !includeSynthetic {
		q += ` AND synthetic = 0`
	}
	q += ` ORDER BY captured_at DESC, amount ASC`

	rows, err := s.DB.QueryContext(ctx, q, requestID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*PriceObservation
	for rows.Next() {
		var o PriceObservation
		var synthetic int
		if err := rows.Scan(&o.ID, &o.RequestID, &o.HotelName, &o.Amount, &o.Currency,
			&o.SourceSite, &o.DetailsURL, &synthetic, &o.CapturedAt); err != nil {
			return nil, err
		}
		o.Synthetic = synthetic == 1
		out = append(out, &o)
	}
	return out, rows.Err()
}

// CountObservations returns the number of stored observations for a
// request, synthetic rows included.
func (s *Store) CountObservations(ctx context.Context, requestID int64) (int, error) {
	var n int
	err := s.DB.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM price_observations WHERE request_id = ?`, requestID).Scan(&n)
	return n, err
}
