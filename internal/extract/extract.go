// Package extract pulls IPv6 (AAAA) addresses out of rendered page text.
package extract

import (
	"net/netip"
	"regexp"
	"sort"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
)

// candidatePattern is deliberately permissive: hex groups joined by 2-8
// colon-delimited segments. Every match is validated afterwards.
var candidatePattern = regexp.MustCompile(`\b([0-9a-fA-F]{1,4}(?::[0-9a-fA-F]{0,4}){2,7})\b`)

const (
	minAddrLen      = 10
	minShorthandLen = 15
	minColons       = 3
)

// Valid reports whether addr is accepted as a resolved IPv6 address.
// Short or truncated forms that happen to parse (e.g. "fe80::") are rejected.
func Valid(addr string) bool {
	if len(addr) < minAddrLen {
		return false
	}
	if strings.HasSuffix(addr, "::") && len(addr) < minShorthandLen {
		return false
	}
	if strings.Count(addr, ":") < minColons {
		return false
	}
	ip, err := netip.ParseAddr(addr)
	if err != nil {
		return false
	}
	return ip.Is6() && ip.Zone() == ""
}

// Addresses returns the distinct valid addresses found in text, sorted so
// repeated calls on identical input compare equal.
func Addresses(text string) []string {
	matches := candidatePattern.FindAllStringSubmatch(text, -1)
	seen := make(map[string]struct{}, len(matches))
	out := make([]string, 0, len(matches))
	for _, m := range matches {
		addr := m[1]
		if _, ok := seen[addr]; ok {
			continue
		}
		if !Valid(addr) {
			continue
		}
		seen[addr] = struct{}{}
		out = append(out, addr)
	}
	sort.Strings(out)
	return out
}

// PageText reduces an HTML document to its visible text, one text node per
// line so adjacent cells never run together. Script, style and noscript
// elements are dropped. Input that does not parse is returned as is.
func PageText(markup string) string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(markup))
	if err != nil {
		return markup
	}
	doc.Find("script, style, noscript").Remove()

	var b strings.Builder
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			if t := strings.TrimSpace(n.Data); t != "" {
				b.WriteString(t)
				b.WriteByte('\n')
			}
			return
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	for _, n := range doc.Nodes {
		walk(n)
	}
	return b.String()
}
