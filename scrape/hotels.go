package scrape

import (
	"net/url"

	"golang.org/x/net/html"
)

// Hotels scrapes Hotels.com listing pages.
type Hotels struct {
	BaseURL string
}

func (h *Hotels) Site() string { return "Hotels.com" }

func (h *Hotels) SearchURL(q Query) string {
	base := h.BaseURL
	if base == "" {
		base = "https://www.hotels.com"
	}
	params := url.Values{}
	params.Set("destination", q.Location)
	params.Set("startDate", q.CheckIn)
	params.Set("endDate", q.CheckOut)
	return base + "/Hotel-Search?" + params.Encode()
}

var (
	hotelsCardSelectors = []string{
		"[data-stid='lodging-card-responsive']",
		"[data-stid='property-listing']",
		".hotel-wrap",
	}
	hotelsNameSelectors = []string{
		"h3",
		".p-name",
		"[data-stid='content-hotel-title']",
	}
	hotelsPriceSelectors = []string{
		"[data-test-id='price-summary']",
		".price-breakdown",
		".current-price",
	}
	hotelsLinkSelectors = []string{
		"a[data-stid='open-hotel-information']",
		"a[href]",
	}
)

func (h *Hotels) Extract(doc *html.Node) []Candidate {
	var cards []*html.Node
	for _, sel := range hotelsCardSelectors {
		if cards = selectAll(doc, sel); len(cards) > 0 {
			break
		}
	}
	if len(cards) > maxCardsPerPage {
		cards = cards[:maxCardsPerPage]
	}

	base := h.BaseURL
	if base == "" {
		base = "https://www.hotels.com"
	}

	var out []Candidate
	for _, card := range cards {
		if c, ok := cardCandidate(card, hotelsNameSelectors, hotelsPriceSelectors, hotelsLinkSelectors, base); ok {
			out = append(out, c)
		}
	}
	return out
}
