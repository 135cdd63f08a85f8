// Package structured extracts machine-readable JSON-LD blocks embedded in
// page markup (Organization, Product, FAQPage schemas) plus a lower
// confidence heuristic for FAQ-looking sibling structures.
package structured

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/tidwall/gjson"

	"github.com/sw33tLie/shopsight/internal/utils"
	"github.com/sw33tLie/shopsight/pkg/insight"
	"github.com/sw33tLie/shopsight/pkg/normalize"
)

// Block is one parsed JSON-LD entity. Type is the @type value ("Product",
// "FAQPage", ...); multi-typed entities report their first type.
type Block struct {
	Type string
	Data gjson.Result
}

// Blocks parses every ld+json script in the document independently. A
// malformed block is skipped and counted, never propagated: one broken
// annotation must not cost us the rest of the page.
func Blocks(html string) (blocks []Block, malformed int) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, 0
	}

	doc.Find(`script[type="application/ld+json"]`).Each(func(_ int, s *goquery.Selection) {
		text := strings.TrimSpace(s.Text())
		if text == "" || !gjson.Valid(text) {
			malformed++
			return
		}
		root := gjson.Parse(text)
		for _, entity := range flatten(root) {
			blocks = append(blocks, Block{Type: entityType(entity), Data: entity})
		}
	})

	if malformed > 0 {
		utils.Log.Debug("Skipped ", malformed, " malformed ld+json block(s)")
	}
	return blocks, malformed
}

// flatten expands top-level arrays and @graph containers into individual
// entities.
func flatten(root gjson.Result) []gjson.Result {
	var out []gjson.Result
	if root.IsArray() {
		for _, e := range root.Array() {
			out = append(out, flatten(e)...)
		}
		return out
	}
	if graph := root.Get("@graph"); graph.IsArray() {
		for _, e := range graph.Array() {
			out = append(out, flatten(e)...)
		}
		return out
	}
	if root.IsObject() {
		out = append(out, root)
	}
	return out
}

func entityType(entity gjson.Result) string {
	t := entity.Get("@type")
	if t.IsArray() {
		arr := t.Array()
		if len(arr) > 0 {
			return arr[0].String()
		}
		return ""
	}
	return t.String()
}

// FAQs returns the question/answer pairs declared by FAQPage blocks. These
// are the authoritative FAQ source; heuristic extraction only runs when no
// structured FAQ block exists.
func FAQs(html, sourceURL string) []insight.FaqEntry {
	blocks, _ := Blocks(html)
	var out []insight.FaqEntry
	for _, b := range blocks {
		if b.Type != "FAQPage" {
			continue
		}
		entities := b.Data.Get("mainEntity")
		if !entities.Exists() {
			continue
		}
		items := entities.Array()
		if !entities.IsArray() {
			items = []gjson.Result{entities}
		}
		for _, item := range items {
			q := item.Get("name").String()
			if q == "" {
				q = item.Get("question").String()
			}
			a := item.Get("acceptedAnswer.text").String()
			if a == "" {
				a = item.Get("acceptedAnswer").String()
			}
			q = normalize.Whitespace(q)
			a = normalize.Whitespace(stripTags(a))
			if q == "" || a == "" {
				continue
			}
			out = append(out, insight.FaqEntry{Question: q, Answer: a, SourceURL: sourceURL})
		}
	}
	return out
}

// OrganizationName returns the store name declared by an Organization or
// OnlineStore block, if any.
func OrganizationName(blocks []Block) string {
	for _, b := range blocks {
		switch b.Type {
		case "Organization", "OnlineStore", "Store", "WebSite":
			if name := normalize.Whitespace(b.Data.Get("name").String()); name != "" {
				return name
			}
		}
	}
	return ""
}

// OfferCurrency returns the first priceCurrency declared by a Product
// block's offers, used as the store-level currency hint.
func OfferCurrency(blocks []Block) string {
	for _, b := range blocks {
		if b.Type != "Product" {
			continue
		}
		for _, path := range []string{"offers.priceCurrency", "offers.0.priceCurrency"} {
			if c := b.Data.Get(path); c.Exists() {
				return c.String()
			}
		}
	}
	return ""
}

// stripTags flattens an HTML fragment to its text content. JSON-LD answers
// routinely embed markup.
func stripTags(s string) string {
	if !strings.Contains(s, "<") {
		return s
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(s))
	if err != nil {
		return s
	}
	return doc.Text()
}
