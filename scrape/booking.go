package scrape

import (
	"net/url"

	"golang.org/x/net/html"
)

// Booking scrapes Booking.com listing pages.
type Booking struct {
	BaseURL string
}

func (b *Booking) Site() string { return "Booking.com" }

// SearchURL builds the searchresults URL. Two adults, one room is the
// fixed search shape; the tracked request only varies location and
// dates.
func (b *Booking) SearchURL(q Query) string {
	base := b.BaseURL
	if base == "" {
		base = "https://www.booking.com"
	}
	params := url.Values{}
	params.Set("ss", q.Location)
	params.Set("checkin", q.CheckIn)
	params.Set("checkout", q.CheckOut)
	params.Set("group_adults", "2")
	params.Set("no_rooms", "1")
	params.Set("group_children", "0")
	return base + "/searchresults.html?" + params.Encode()
}

// Selector lists are ordered newest-markup-first; Booking renames its
// test IDs and classes regularly, so older fallbacks stay in the list.
var (
	bookingCardSelectors = []string{
		"[data-testid='property-card']",
		".sr_property_block",
		".property-card",
	}
	bookingNameSelectors = []string{
		"[data-testid='title']",
		".sr-hotel__name",
		"h3",
	}
	bookingPriceSelectors = []string{
		"[data-testid='price-and-discounted-price']",
		".bui-price-display__value",
		".sr-price",
	}
	bookingLinkSelectors = []string{
		"a[data-testid='title-link']",
		"a.hotel_name_link",
		"a[href]",
	}
)

// maxCardsPerPage caps extraction work per listing page.
const maxCardsPerPage = 10

// Extract pulls hotel cards from a parsed results page.
func (b *Booking) Extract(doc *html.Node) []Candidate {
	var cards []*html.Node
	for _, sel := range bookingCardSelectors {
		if cards = selectAll(doc, sel); len(cards) > 0 {
			break
		}
	}
	if len(cards) > maxCardsPerPage {
		cards = cards[:maxCardsPerPage]
	}

	base := b.BaseURL
	if base == "" {
		base = "https://www.booking.com"
	}

	var out []Candidate
	for _, card := range cards {
		if c, ok := cardCandidate(card, bookingNameSelectors, bookingPriceSelectors, bookingLinkSelectors, base); ok {
			out = append(out, c)
		}
	}
	return out
}
