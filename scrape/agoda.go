package scrape

import (
	"net/url"

	"golang.org/x/net/html"
)

// Agoda scrapes Agoda listing pages. Agoda's real search URLs carry
// opaque city IDs; the plain city-name form still resolves through
// their redirect, which is good enough for listing extraction.
type Agoda struct {
	BaseURL string
}

func (a *Agoda) Site() string { return "Agoda" }

func (a *Agoda) SearchURL(q Query) string {
	base := a.BaseURL
	if base == "" {
		base = "https://www.agoda.com"
	}
	params := url.Values{}
	params.Set("city", q.Location)
	params.Set("checkIn", q.CheckIn)
	params.Set("checkOut", q.CheckOut)
	return base + "/search?" + params.Encode()
}

var (
	agodaCardSelectors = []string{
		"[data-selenium='hotel-item']",
		".PropertyCard",
		"li[data-hotelid]",
	}
	agodaNameSelectors = []string{
		"[data-selenium='hotel-name']",
		".PropertyCard__HotelName",
		"h3",
	}
	agodaPriceSelectors = []string{
		"[data-selenium='display-price']",
		".PropertyCardPrice__Value",
		".price",
	}
	agodaLinkSelectors = []string{
		"a[data-selenium='hotel-name-link']",
		"a[href]",
	}
)

func (a *Agoda) Extract(doc *html.Node) []Candidate {
	var cards []*html.Node
	for _, sel := range agodaCardSelectors {
		if cards = selectAll(doc, sel); len(cards) > 0 {
			break
		}
	}
	if len(cards) > maxCardsPerPage {
		cards = cards[:maxCardsPerPage]
	}

	base := a.BaseURL
	if base == "" {
		base = "https://www.agoda.com"
	}

	var out []Candidate
	for _, card := range cards {
		if c, ok := cardCandidate(card, agodaNameSelectors, agodaPriceSelectors, agodaLinkSelectors, base); ok {
			out = append(out, c)
		}
	}
	return out
}
