package scrape

import (
	"context"
	"net/url"
	"strings"
	"testing"
	"time"

	"golang.org/x/net/html"
)

func parseHTML(t *testing.T, s string) *html.Node {
	t.Helper()
	doc, err := html.Parse(strings.NewReader(s))
	if err != nil {
		t.Fatalf("parse html: %v", err)
	}
	return doc
}

const bookingPage = `
<html><body>
<div data-testid="property-card">
  <a data-testid="title-link" href="/hotel/tw/grand.html"></a>
  <div data-testid="title">Grand Hotel Taipei</div>
  <span data-testid="price-and-discounted-price">NT$ 3,200</span>
</div>
<div data-testid="property-card">
  <div data-testid="title">City Inn</div>
  <span data-testid="price-and-discounted-price">Sold Out</span>
</div>
<div data-testid="property-card">
  <span data-testid="price-and-discounted-price">NT$ 1,800</span>
</div>
<div class="sr_property_block">
  <h3>Legacy Markup Hotel</h3>
  <span class="bui-price-display__value">€45</span>
</div>
</body></html>`

func TestBookingExtract(t *testing.T) {
	b := &Booking{BaseURL: "https://www.booking.com"}
	got := b.Extract(parseHTML(t, bookingPage))

	// Card 2 has no parseable price, card 3 no name: both dropped.
	// Card 4 uses legacy selectors but new-markup cards matched first,
	// so only the data-testid card set is considered.
	if len(got) != 1 {
		t.Fatalf("candidates: got %d, want 1 (%+v)", len(got), got)
	}
	c := got[0]
	if c.HotelName != "Grand Hotel Taipei" {
		t.Errorf("name: got %q", c.HotelName)
	}
	if c.Amount != 3200 || c.Currency != "TWD" {
		t.Errorf("price: got %v %s", c.Amount, c.Currency)
	}
	if c.DetailsURL != "https://www.booking.com/hotel/tw/grand.html" {
		t.Errorf("details url: got %q", c.DetailsURL)
	}
	if c.Synthetic {
		t.Error("real extraction must not be marked synthetic")
	}
}

func TestBookingExtractLegacyMarkup(t *testing.T) {
	// WHAT: when the current test-ID markup is absent, the older
	// class selectors still recover cards.
	page := `
<html><body>
<div class="sr_property_block">
  <h3>Legacy Markup Hotel</h3>
  <span class="bui-price-display__value">€45</span>
</div>
</body></html>`
	b := &Booking{}
	got := b.Extract(parseHTML(t, page))
	if len(got) != 1 {
		t.Fatalf("candidates: got %d, want 1", len(got))
	}
	if got[0].Amount != 45 || got[0].Currency != "EUR" {
		t.Errorf("price: got %v %s", got[0].Amount, got[0].Currency)
	}
}

func TestBookingExtractEmptyPage(t *testing.T) {
	b := &Booking{}
	if got := b.Extract(parseHTML(t, "<html><body></body></html>")); len(got) != 0 {
		t.Errorf("empty page: got %d candidates", len(got))
	}
}

func TestBookingSearchURL(t *testing.T) {
	b := &Booking{BaseURL: "https://www.booking.com"}
	u := b.SearchURL(Query{Location: "Taipei 101", CheckIn: "2026-09-10", CheckOut: "2026-09-12"})

	parsed, err := url.Parse(u)
	if err != nil {
		t.Fatalf("parse url: %v", err)
	}
	if parsed.Path != "/searchresults.html" {
		t.Errorf("path: got %s", parsed.Path)
	}
	q := parsed.Query()
	if q.Get("ss") != "Taipei 101" || q.Get("checkin") != "2026-09-10" || q.Get("checkout") != "2026-09-12" {
		t.Errorf("query: got %v", q)
	}
	if q.Get("group_adults") != "2" || q.Get("no_rooms") != "1" {
		t.Errorf("fixed params: got %v", q)
	}
}

func TestAgodaSearchURL(t *testing.T) {
	a := &Agoda{}
	u := a.SearchURL(Query{Location: "Kyoto", CheckIn: "2026-10-01", CheckOut: "2026-10-03"})
	parsed, _ := url.Parse(u)
	if parsed.Host != "www.agoda.com" || parsed.Query().Get("city") != "Kyoto" {
		t.Errorf("url: got %s", u)
	}
}

func TestHotelsSearchURL(t *testing.T) {
	h := &Hotels{}
	u := h.SearchURL(Query{Location: "Kyoto", CheckIn: "2026-10-01", CheckOut: "2026-10-03"})
	parsed, _ := url.Parse(u)
	if parsed.Query().Get("destination") != "Kyoto" || parsed.Query().Get("startDate") != "2026-10-01" {
		t.Errorf("url: got %s", u)
	}
}

func TestForSite(t *testing.T) {
	tests := []struct {
		name string
		site string
	}{
		{"Booking.com", "Booking.com"},
		{"booking", "Booking.com"},
		{"AGODA", "Agoda"},
		{"hotels.com", "Hotels.com"},
		{"Expedia", "Expedia"}, // unknown: placeholder keeps the name
	}
	for _, tt := range tests {
		s := ForSite(tt.name, "")
		if s.Site() != tt.site {
			t.Errorf("ForSite(%q).Site(): got %s, want %s", tt.name, s.Site(), tt.site)
		}
	}
	if _, ok := ForSite("Expedia", "").(*Placeholder); !ok {
		t.Error("unknown site should select Placeholder")
	}
}

func TestPlaceholderExtract(t *testing.T) {
	p := &Placeholder{SiteName: "Expedia", BaseURL: "https://www.expedia.com"}
	got := p.Extract(nil)
	if len(got) != 3 {
		t.Fatalf("candidates: got %d, want 3", len(got))
	}
	for _, c := range got {
		if !c.Synthetic {
			t.Error("placeholder candidates must be synthetic")
		}
		if !strings.Contains(c.HotelName, "Expedia") {
			t.Errorf("name should carry the site tag: %q", c.HotelName)
		}
		if c.Amount < 1500 || c.Amount > 5000 {
			t.Errorf("amount outside the fixed band: %v", c.Amount)
		}
		if c.Currency != "TWD" {
			t.Errorf("currency: got %s", c.Currency)
		}
	}
}

// fakeClicker records which selectors were probed.
type fakeClicker struct {
	present map[string]bool
	clicked []string
}

func (f *fakeClicker) Click(ctx context.Context, selector string, timeout time.Duration) bool {
	if f.present[selector] {
		f.clicked = append(f.clicked, selector)
		return true
	}
	return false
}

func TestDismissObstructions(t *testing.T) {
	c := &fakeClicker{present: map[string]bool{
		"#onetrust-accept-btn-handler": true,
	}}
	DismissObstructions(context.Background(), c)
	if len(c.clicked) != 1 || c.clicked[0] != "#onetrust-accept-btn-handler" {
		t.Errorf("clicked: got %v", c.clicked)
	}
}

func TestDismissObstructionsRespectsContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	c := &fakeClicker{present: map[string]bool{"[data-testid='cookie-popup-accept']": true}}
	DismissObstructions(ctx, c) // must return promptly, no hang
}

func TestSelectorEngine(t *testing.T) {
	doc := parseHTML(t, `
<div id="root">
  <section class="cards big">
    <article data-kind="card"><h3>First</h3></article>
    <article data-kind="card"><h3>Second</h3></article>
  </section>
</div>`)

	if n := len(selectAll(doc, "[data-kind='card']")); n != 2 {
		t.Errorf("attr selector: got %d matches", n)
	}
	if n := len(selectAll(doc, ".cards article")); n != 2 {
		t.Errorf("descendant selector: got %d matches", n)
	}
	if n := selectFirst(doc, "#root section.cards"); n == nil {
		t.Error("id + tag.class selector found nothing")
	}
	if got := firstText(doc, []string{".missing", "article h3"}); got != "First" {
		t.Errorf("firstText: got %q", got)
	}
}
