package store

import "errors"

// ErrNotFound is returned when a tracked request does not exist.
var ErrNotFound = errors.New("store: not found")

// TrackedRequest is a user-defined (location, date-range) search under
// periodic observation. CheckIn/CheckOut are "YYYY-MM-DD"; the
// check-out must be after the check-in (enforced at creation).
type TrackedRequest struct {
	ID            int64  `json:"id"`
	Location      string `json:"location"`
	CheckIn       string `json:"check_in"`
	CheckOut      string `json:"check_out"`
	IsTracking    bool   `json:"is_tracking"`
	CreatedAt     int64  `json:"created_at"`
	LastCrawledAt *int64 `json:"last_crawled_at,omitempty"`
}

// PriceObservation is one persisted (hotel, price, currency, site,
// time) data point. Immutable once created; history per request is
// append-only. Synthetic marks placeholder-strategy output so it is
// never conflated with genuinely scraped data.
type PriceObservation struct {
	ID         string  `json:"id"`
	RequestID  int64   `json:"request_id"`
	HotelName  string  `json:"hotel_name"`
	Amount     float64 `json:"amount"`
	Currency   string  `json:"currency"`
	SourceSite string  `json:"source_site"`
	DetailsURL string  `json:"details_url,omitempty"`
	Synthetic  bool    `json:"synthetic"`
	CapturedAt int64   `json:"captured_at"`
}
