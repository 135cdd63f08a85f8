// Package catalog turns the platform's bulk product feed and its
// server-rendered collection pages into product and collection records. The
// feed is the authoritative source; page scraping is the fallback.
package catalog

import (
	"strconv"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/sw33tLie/shopsight/internal/utils"
	"github.com/sw33tLie/shopsight/pkg/insight"
	"github.com/sw33tLie/shopsight/pkg/normalize"
)

// ParseFeed maps one page of the catalog feed to products. Parsing is
// defensive: a missing or oddly shaped field loses that attribute, not the
// whole product — a product with a name but no parsable price is still
// emitted.
//
// Both feed shapes are accepted: the platform's {"products": [...]} wrapper
// and a bare top-level array.
func ParseFeed(raw []byte, base, defaultCurrency string) []insight.Product {
	root := gjson.ParseBytes(raw)
	items := root.Get("products")
	if !items.Exists() && root.IsArray() {
		items = root
	}
	if !items.IsArray() {
		return nil
	}

	var out []insight.Product
	for _, item := range items.Array() {
		p, ok := parseFeedItem(item, base, defaultCurrency)
		if !ok {
			continue
		}
		out = append(out, p)
	}
	return out
}

func parseFeedItem(item gjson.Result, base, defaultCurrency string) (insight.Product, bool) {
	var p insight.Product

	rawURL := item.Get("url").String()
	if rawURL == "" {
		if handle := item.Get("handle").String(); handle != "" {
			rawURL = "/products/" + handle
		}
	}
	u, err := normalize.URL(base, rawURL)
	if err != nil || rawURL == "" {
		// No resolvable URL means no dedupe identity; skip the entry.
		return p, false
	}
	p.URL = u

	p.Name = normalize.Whitespace(item.Get("title").String())
	if p.Name == "" {
		p.Name = normalize.Whitespace(item.Get("name").String())
	}

	currency := item.Get("currency").String()
	if currency == "" {
		currency = defaultCurrency
	}
	if price, ok := parsePrice(item); ok {
		p.Price = &insight.Price{Amount: price, Currency: currency}
	}

	if avail, ok := parseAvailability(item); ok {
		p.Available = &avail
	}

	if img := item.Get("images.0.src").String(); img != "" {
		if abs, err := normalize.URL(base, img); err == nil {
			p.Image = abs
		}
	} else if img := item.Get("image").String(); img != "" {
		if abs, err := normalize.URL(base, img); err == nil {
			p.Image = abs
		}
	}

	return p, true
}

// parsePrice accepts a top-level price (string or number) or falls back to
// the cheapest variant price, the way storefront themes display it.
func parsePrice(item gjson.Result) (float64, bool) {
	if v := item.Get("price"); v.Exists() {
		if f, ok := toAmount(v); ok {
			return f, true
		}
	}
	variants := item.Get("variants")
	if !variants.IsArray() {
		return 0, false
	}
	best, found := 0.0, false
	for _, v := range variants.Array() {
		f, ok := toAmount(v.Get("price"))
		if !ok {
			continue
		}
		if !found || f < best {
			best, found = f, true
		}
	}
	return best, found
}

func toAmount(v gjson.Result) (float64, bool) {
	switch v.Type {
	case gjson.Number:
		return v.Float(), true
	case gjson.String:
		f, err := strconv.ParseFloat(strings.TrimSpace(v.String()), 64)
		if err != nil {
			return 0, false
		}
		return f, true
	}
	return 0, false
}

func parseAvailability(item gjson.Result) (bool, bool) {
	if v := item.Get("available"); v.IsBool() {
		return v.Bool(), true
	}
	variants := item.Get("variants")
	if !variants.IsArray() || len(variants.Array()) == 0 {
		return false, false
	}
	any := false
	seen := false
	for _, v := range variants.Array() {
		a := v.Get("available")
		if !a.IsBool() {
			continue
		}
		seen = true
		if a.Bool() {
			any = true
		}
	}
	if !seen {
		return false, false
	}
	return any, true
}

// DedupeByURL collapses catalog entries resolving to the same URL; the last
// seen non-empty value wins per attribute.
func DedupeByURL(products []insight.Product) []insight.Product {
	deduped := insight.MergeProducts(products, nil)
	if len(deduped) != len(products) {
		utils.Log.Debug("Collapsed ", len(products)-len(deduped), " duplicate catalog entr(ies)")
	}
	return deduped
}
