package catalog

import (
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/sw33tLie/shopsight/pkg/insight"
	"github.com/sw33tLie/shopsight/pkg/normalize"
)

var productPathRe = regexp.MustCompile(`/products/[^/?#]+/?$`)

// ParseCollection extracts a collection and its member products from a
// server-rendered collection page. Membership order follows document order,
// which mirrors the merchant's curated sort.
func ParseCollection(html []byte, collectionURL, base string) (insight.Collection, []insight.Product) {
	col := insight.Collection{URL: collectionURL}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(string(html)))
	if err != nil {
		return col, nil
	}

	col.Name = normalize.Whitespace(doc.Find("h1").First().Text())
	if col.Name == "" {
		col.Name = titlePrefix(doc)
	}

	var products []insight.Product
	seen := make(map[string]struct{})

	doc.Find(`a[href*="/products/"]`).Each(func(_ int, a *goquery.Selection) {
		href, _ := a.Attr("href")
		if !productPathRe.MatchString(strings.Split(href, "?")[0]) {
			return
		}
		u, err := normalize.URL(base, href)
		if err != nil {
			return
		}
		if _, dup := seen[u]; dup {
			return
		}
		seen[u] = struct{}{}

		p := insight.Product{URL: u}
		if collectionURL != "" {
			p.Collections = []string{collectionURL}
		}
		p.Name = normalize.Whitespace(a.Text())
		if p.Name == "" {
			if alt, ok := a.Find("img").First().Attr("alt"); ok {
				p.Name = normalize.Whitespace(alt)
			}
		}
		if src, ok := a.Find("img").First().Attr("src"); ok {
			if abs, err := normalize.URL(base, src); err == nil {
				p.Image = abs
			}
		}

		col.ProductURLs = append(col.ProductURLs, u)
		products = append(products, p)
	})

	return col, products
}

// HeroProducts scans a page (typically the home page) for product links.
// These are a low-precedence supplement only: the feed always wins.
func HeroProducts(html []byte, base string, max int) []insight.Product {
	_, products := ParseCollection(html, "", base)
	if max > 0 && len(products) > max {
		products = products[:max]
	}
	return products
}

func titlePrefix(doc *goquery.Document) string {
	title := normalize.Whitespace(doc.Find("title").First().Text())
	for _, sep := range []string{"|", "–", "—"} {
		if i := strings.Index(title, sep); i >= 0 {
			title = title[:i]
		}
	}
	return normalize.Whitespace(title)
}
