// Package scrape holds the per-site search strategies: how to build a
// search URL for a (location, date-range) query and how to extract
// hotel price candidates from the resulting page. Extraction is
// best-effort by design; a site whose markup drifted yields fewer (or
// zero) candidates, never an error.
package scrape

import (
	"context"
	"net/url"
	"strings"
	"time"

	"golang.org/x/net/html"

	"github.com/hazyhaar/tarifveille/price"
)

// Query is one search to run against a site.
type Query struct {
	Location string
	CheckIn  string // YYYY-MM-DD
	CheckOut string // YYYY-MM-DD
}

// Candidate is one extracted hotel price, already through the
// name/price gate. Synthetic marks placeholder-strategy output.
type Candidate struct {
	HotelName  string
	Amount     float64
	Currency   string
	PriceText  string
	DetailsURL string
	Synthetic  bool
}

// Strategy is the per-site capability set.
type Strategy interface {
	// Site is the canonical site name ("Booking.com", "Agoda", ...).
	Site() string
	// SearchURL builds the listing URL for a query.
	SearchURL(q Query) string
	// Extract pulls price candidates out of a parsed listing page.
	Extract(doc *html.Node) []Candidate
}

// ForSite selects the strategy for a configured site name. Unknown
// sites get the Placeholder strategy so the pipeline stays exercised
// end-to-end before a real parser exists.
func ForSite(name, baseURL string) Strategy {
	switch strings.ToLower(name) {
	case "booking.com", "booking":
		return &Booking{BaseURL: baseURL}
	case "agoda", "agoda.com":
		return &Agoda{BaseURL: baseURL}
	case "hotels.com", "hotels":
		return &Hotels{BaseURL: baseURL}
	default:
		return &Placeholder{SiteName: name, BaseURL: baseURL}
	}
}

// Clicker is the slice of a browser session obstruction dismissal
// needs. Satisfied by *browser.Session.
type Clicker interface {
	Click(ctx context.Context, selector string, timeout time.Duration) bool
}

// obstructionSelectors matches known cookie-consent and modal-close
// controls across the supported sites.
var obstructionSelectors = []string{
	"[data-testid='cookie-popup-accept']",
	"#onetrust-accept-btn-handler",
	".cookie-accept",
	"[data-testid='modal-close']",
	".modal-close",
	".close-button",
	"button[aria-label='Close']",
}

// DismissObstructions probes for cookie banners and modals and clicks
// them away, a short timeout per selector. Best-effort: a selector
// that fails to match or click is simply skipped.
func DismissObstructions(ctx context.Context, c Clicker) {
	for _, sel := range obstructionSelectors {
		if c.Click(ctx, sel, 2*time.Second) {
			// Give the dismissal animation a beat before probing on.
			select {
			case <-ctx.Done():
				return
			case <-time.After(500 * time.Millisecond):
			}
		}
	}
}

// cardCandidate applies the per-card gate: a card contributes a
// candidate only when a non-empty name and a parseable price are both
// recovered. Cards failing either check are dropped silently.
func cardCandidate(card *html.Node, nameSels, priceSels, linkSels []string, baseURL string) (Candidate, bool) {
	name := firstText(card, nameSels)
	if name == "" {
		return Candidate{}, false
	}

	priceText := firstText(card, priceSels)
	amount, currency, ok := price.Parse(priceText)
	if !ok {
		return Candidate{}, false
	}

	return Candidate{
		HotelName:  name,
		Amount:     amount,
		Currency:   currency,
		PriceText:  priceText,
		DetailsURL: absURL(baseURL, firstAttr(card, linkSels, "href")),
	}, true
}

// absURL resolves href against base; malformed inputs degrade to the
// raw href.
func absURL(base, href string) string {
	if href == "" {
		return ""
	}
	b, err := url.Parse(base)
	if err != nil {
		return href
	}
	h, err := url.Parse(href)
	if err != nil {
		return href
	}
	return b.ResolveReference(h).String()
}
