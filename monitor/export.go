package monitor

import (
	"fmt"
	"sort"
	"strings"
)

// PrometheusText renders the recorder's statistics in the Prometheus
// text exposition format.
func PrometheusText(r *Recorder) string {
	o := r.Overall()

	var b strings.Builder
	b.WriteString("# HELP hotel_scraper_total_requests Total scrape attempts.\n")
	b.WriteString("# TYPE hotel_scraper_total_requests counter\n")
	fmt.Fprintf(&b, "hotel_scraper_total_requests %d\n", o.Total)

	b.WriteString("# HELP hotel_scraper_success_rate Overall scrape success rate.\n")
	b.WriteString("# TYPE hotel_scraper_success_rate gauge\n")
	fmt.Fprintf(&b, "hotel_scraper_success_rate %.4f\n", o.SuccessRate)

	sites := make([]string, 0, len(o.Sites))
	for site := range o.Sites {
		sites = append(sites, site)
	}
	sort.Strings(sites)

	b.WriteString("# HELP hotel_scraper_site_requests Scrape attempts by site.\n")
	b.WriteString("# TYPE hotel_scraper_site_requests counter\n")
	for _, site := range sites {
		fmt.Fprintf(&b, "hotel_scraper_site_requests{site=%q} %d\n", site, o.Sites[site].Total)
	}

	b.WriteString("# HELP hotel_scraper_site_success_rate Scrape success rate by site.\n")
	b.WriteString("# TYPE hotel_scraper_site_success_rate gauge\n")
	for _, site := range sites {
		fmt.Fprintf(&b, "hotel_scraper_site_success_rate{site=%q} %.4f\n", site, o.Sites[site].SuccessRate)
	}

	b.WriteString("# HELP hotel_scraper_site_avg_duration_seconds Average scrape duration by site.\n")
	b.WriteString("# TYPE hotel_scraper_site_avg_duration_seconds gauge\n")
	for _, site := range sites {
		fmt.Fprintf(&b, "hotel_scraper_site_avg_duration_seconds{site=%q} %.4f\n",
			site, o.Sites[site].AvgDuration.Seconds())
	}

	return b.String()
}
