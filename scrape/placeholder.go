package scrape

import (
	"fmt"
	"math/rand"

	"golang.org/x/net/html"
)

// Placeholder stands in for sites without a real parser. It returns a
// small fixed set of synthetic candidates tagged with the site name so
// the full pipeline (normalize, persist, monitor) stays exercised
// before a site's parser exists. Every candidate carries
// Synthetic=true and is never conflated with genuine data downstream.
type Placeholder struct {
	SiteName string
	BaseURL  string
}

func (p *Placeholder) Site() string { return p.SiteName }

// SearchURL points at the site root; the placeholder never parses the
// response, but navigating a real URL keeps session and pacing paths
// honest.
func (p *Placeholder) SearchURL(q Query) string {
	if p.BaseURL != "" {
		return p.BaseURL
	}
	return "https://example.com"
}

var placeholderHotels = []string{
	"豪華商務飯店",
	"市中心精品旅館",
	"度假村大酒店",
}

func (p *Placeholder) Extract(_ *html.Node) []Candidate {
	details := ""
	if p.BaseURL != "" {
		details = p.BaseURL + "/hotel-example"
	}

	out := make([]Candidate, 0, len(placeholderHotels))
	for _, name := range placeholderHotels {
		amount := 1500 + rand.Float64()*3500
		amount = float64(int(amount*100)) / 100
		out = append(out, Candidate{
			HotelName:  fmt.Sprintf("%s - %s", name, p.SiteName),
			Amount:     amount,
			Currency:   "TWD",
			PriceText:  fmt.Sprintf("NT$%.2f", amount),
			DetailsURL: details,
			Synthetic:  true,
		})
	}
	return out
}
