// Package price parses free-text hotel price strings into a numeric
// amount and an ISO currency code, converts between currencies using a
// static rate table, and sanity-checks amounts before persistence.
package price

import (
	"regexp"
	"sort"
	"strconv"
	"strings"
)

// HomeCurrency is assumed when a price string carries no recognisable
// currency marker.
const HomeCurrency = "TWD"

// symbolTable maps currency markers (symbols, codes, localized names)
// to ISO 4217 codes. Matching is longest-marker-first so "NT$" wins
// over "$" and "TWD" over "T".
var symbolTable = map[string]string{
	"NT$": "TWD", "TWD": "TWD", "台幣": "TWD",
	"$": "USD", "USD": "USD", "美元": "USD",
	"€": "EUR", "EUR": "EUR", "歐元": "EUR",
	"£": "GBP", "GBP": "GBP", "英鎊": "GBP",
	"¥": "JPY", "JPY": "JPY", "日元": "JPY",
	"元": "CNY", "CNY": "CNY", "人民幣": "CNY",
}

// markers holds the symbolTable keys sorted longest first.
var markers = func() []string {
	ms := make([]string, 0, len(symbolTable))
	for m := range symbolTable {
		ms = append(ms, m)
	}
	sort.Slice(ms, func(i, j int) bool {
		if len(ms[i]) != len(ms[j]) {
			return len(ms[i]) > len(ms[j])
		}
		return ms[i] < ms[j]
	})
	return ms
}()

var (
	whitespace = regexp.MustCompile(`\s+`)
	numericTok = regexp.MustCompile(`[0-9][0-9,]*\.?[0-9]*`)
)

// Parse extracts an amount and currency code from a scraped price
// string. The currency defaults to HomeCurrency when no marker
// matches. Returns ok=false when no numeric token is present
// (e.g. "Sold Out").
func Parse(text string) (amount float64, currency string, ok bool) {
	if text == "" {
		return 0, HomeCurrency, false
	}

	cleaned := whitespace.ReplaceAllString(text, "")

	currency = HomeCurrency
	for _, m := range markers {
		if strings.Contains(cleaned, m) {
			currency = symbolTable[m]
			cleaned = strings.ReplaceAll(cleaned, m, "")
			break
		}
	}

	tok := numericTok.FindString(cleaned)
	if tok == "" {
		return 0, currency, false
	}

	v, err := strconv.ParseFloat(strings.ReplaceAll(tok, ",", ""), 64)
	if err != nil {
		return 0, currency, false
	}
	return v, currency, true
}

// rateToTWD is a static approximation; callers needing live rates must
// inject their own conversion upstream.
var rateToTWD = map[string]float64{
	"TWD": 1.0,
	"USD": 31.5,
	"EUR": 34.2,
	"GBP": 39.8,
	"JPY": 0.21,
	"CNY": 4.35,
}

// Convert converts amount between currencies via the static TWD-pivot
// rate table. Identity when from == to; unknown currencies pass the
// amount through unchanged.
func Convert(amount float64, from, to string) float64 {
	if from == to {
		return amount
	}
	fr, okF := rateToTWD[from]
	tr, okT := rateToTWD[to]
	if !okF || !okT {
		return amount
	}
	return amount * fr / tr
}

// plausibleBands holds [min, max] sanity ranges per currency. Amounts
// outside the band are junk (parsing artifacts, per-night vs per-stay
// confusion) and are rejected before persistence.
var plausibleBands = map[string][2]float64{
	"TWD": {500, 50_000},
	"USD": {20, 2_000},
	"EUR": {20, 2_000},
	"GBP": {20, 2_000},
	"JPY": {2_000, 200_000},
	"CNY": {100, 15_000},
}

// IsPlausible reports whether amount is a credible nightly hotel price
// in the given currency. Non-positive amounts always fail; currencies
// without a configured band only get the positivity check.
func IsPlausible(amount float64, currency string) bool {
	if amount <= 0 {
		return false
	}
	band, ok := plausibleBands[currency]
	if !ok {
		return true
	}
	return amount >= band[0] && amount <= band[1]
}
