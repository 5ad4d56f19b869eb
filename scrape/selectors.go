package scrape

import (
	"strings"

	"golang.org/x/net/html"
)

// The selector engine supports the subset of CSS this package needs:
//
//   - tag: "h3", "div"
//   - .class: ".sr_property_block"
//   - #id: "#search-results"
//   - tag.class, tag#id
//   - [attr], [attr=val], tag[attr=val]
//   - combinations separated by space (descendant combinator)
//
// Markup drift is handled above this layer by trying ordered selector
// lists, so the engine itself stays deliberately small.

// selectAll returns all nodes under root matching the selector.
func selectAll(root *html.Node, selector string) []*html.Node {
	parts := strings.Fields(selector)
	if len(parts) == 0 {
		return nil
	}

	matches := matchSimple(root, parts[0])
	for i := 1; i < len(parts); i++ {
		var next []*html.Node
		for _, parent := range matches {
			next = append(next, matchSimple(parent, parts[i])...)
		}
		matches = next
	}
	return matches
}

// selectFirst returns the first match or nil.
func selectFirst(root *html.Node, selector string) *html.Node {
	all := selectAll(root, selector)
	if len(all) == 0 {
		return nil
	}
	return all[0]
}

// firstText tries selectors in order and returns the first non-empty
// trimmed text. Tolerates markup drift: one working selector in the
// list is enough.
func firstText(root *html.Node, selectors []string) string {
	for _, sel := range selectors {
		if n := selectFirst(root, sel); n != nil {
			if text := strings.TrimSpace(collectText(n)); text != "" {
				return text
			}
		}
	}
	return ""
}

// firstAttr tries selectors in order and returns the first non-empty
// attribute value.
func firstAttr(root *html.Node, selectors []string, key string) string {
	for _, sel := range selectors {
		if n := selectFirst(root, sel); n != nil {
			if v := getAttr(n, key); v != "" {
				return v
			}
		}
	}
	return ""
}

func matchSimple(root *html.Node, sel string) []*html.Node {
	m := parseSimpleSelector(sel)
	var results []*html.Node
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if matchesSelector(n, m) {
			results = append(results, n)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(root)
	return results
}

type simpleSelector struct {
	tag     string
	id      string
	class   string
	attrKey string
	attrVal string
}

func parseSimpleSelector(sel string) simpleSelector {
	var s simpleSelector

	if idx := strings.IndexByte(sel, '['); idx >= 0 {
		attrPart := strings.TrimRight(sel[idx+1:], "]")
		sel = sel[:idx]
		if eqIdx := strings.IndexByte(attrPart, '='); eqIdx >= 0 {
			s.attrKey = attrPart[:eqIdx]
			s.attrVal = strings.Trim(attrPart[eqIdx+1:], `"'`)
		} else {
			s.attrKey = attrPart
		}
	}

	if idx := strings.IndexByte(sel, '#'); idx >= 0 {
		s.id = sel[idx+1:]
		sel = sel[:idx]
	}

	if idx := strings.IndexByte(sel, '.'); idx >= 0 {
		s.class = sel[idx+1:]
		sel = sel[:idx]
	}

	s.tag = sel
	return s
}

func matchesSelector(n *html.Node, s simpleSelector) bool {
	if n.Type != html.ElementNode {
		return false
	}

	if s.tag != "" && n.Data != s.tag {
		return false
	}

	if s.id != "" && getAttr(n, "id") != s.id {
		return false
	}

	if s.class != "" {
		found := false
		for _, c := range strings.Fields(getAttr(n, "class")) {
			if c == s.class {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}

	if s.attrKey != "" {
		if s.attrVal != "" {
			if getAttr(n, s.attrKey) != s.attrVal {
				return false
			}
		} else if !hasAttr(n, s.attrKey) {
			return false
		}
	}

	return true
}

func getAttr(n *html.Node, key string) string {
	for _, attr := range n.Attr {
		if attr.Key == key {
			return attr.Val
		}
	}
	return ""
}

func hasAttr(n *html.Node, key string) bool {
	for _, attr := range n.Attr {
		if attr.Key == key {
			return true
		}
	}
	return false
}

// collectText concatenates all text nodes under n.
func collectText(n *html.Node) string {
	var sb strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			sb.WriteString(n.Data)
			sb.WriteByte(' ')
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return strings.Join(strings.Fields(sb.String()), " ")
}
