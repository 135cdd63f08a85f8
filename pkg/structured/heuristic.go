package structured

import (
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/sw33tLie/shopsight/pkg/insight"
	"github.com/sw33tLie/shopsight/pkg/normalize"
)

// FAQHeuristic pattern-matches question/answer sibling structures on pages
// that lack a structured FAQ block: definition lists, details/summary
// widgets, and question-shaped headings followed by body text. Every entry
// is tagged heuristic so callers can weight it lower.
func FAQHeuristic(html, sourceURL string) []insight.FaqEntry {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil
	}

	var out []insight.FaqEntry
	add := func(q, a string) {
		q = normalize.Whitespace(q)
		a = normalize.Whitespace(a)
		if q == "" || a == "" {
			return
		}
		out = append(out, insight.FaqEntry{
			Question:  q,
			Answer:    a,
			SourceURL: sourceURL,
			Heuristic: true,
		})
	}

	// Definition lists: each dt pairs with the dd that follows it.
	doc.Find("dl").Each(func(_ int, dl *goquery.Selection) {
		dl.Find("dt").Each(func(_ int, dt *goquery.Selection) {
			dd := dt.NextFiltered("dd")
			if dd.Length() == 0 {
				return
			}
			add(dt.Text(), dd.Text())
		})
	})

	// Disclosure widgets: summary is the question, the rest the answer.
	doc.Find("details").Each(func(_ int, det *goquery.Selection) {
		summary := det.Find("summary").First()
		if summary.Length() == 0 {
			return
		}
		q := summary.Text()
		full := det.Text()
		add(q, strings.Replace(full, summary.Text(), "", 1))
	})

	// Question-shaped headings: take the first following sibling with text
	// before the next heading.
	doc.Find("h2, h3, h4, h5").Each(func(_ int, h *goquery.Selection) {
		q := normalize.Whitespace(h.Text())
		if !strings.HasSuffix(q, "?") {
			return
		}
		for sib := h.Next(); sib.Length() > 0; sib = sib.Next() {
			if isHeading(goquery.NodeName(sib)) {
				break
			}
			if a := normalize.Whitespace(sib.Text()); a != "" {
				add(q, a)
				break
			}
		}
	})

	return out
}

// isHeading reports whether name is h1-h6. A name-length check alone would
// also match hr.
func isHeading(name string) bool {
	return len(name) == 2 && name[0] == 'h' && name[1] >= '1' && name[1] <= '6'
}
