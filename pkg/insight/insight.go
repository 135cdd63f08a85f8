// Package insight holds the data model shared by the extraction pipeline:
// the per-store aggregate, its child records, and the per-source fetch
// manifest that communicates partial failure to callers.
package insight

import "strings"

// FetchOutcome classifies how fetching a single logical source ended.
type FetchOutcome string

const (
	FetchSucceeded FetchOutcome = "succeeded"
	FetchNotFound  FetchOutcome = "not-found"
	FetchFailed    FetchOutcome = "failed-after-retries"
	FetchSkipped   FetchOutcome = "skipped"
	FetchTimeout   FetchOutcome = "timeout"
)

// FetchStatus records the outcome of one logical source (catalog endpoint,
// a policy URL, a collection URL, ...). A partially populated Store plus a
// manifest of these is always preferable to an aborted run.
type FetchStatus struct {
	Outcome    FetchOutcome `json:"outcome"`
	Attempts   int          `json:"attempts"`
	HTTPStatus int          `json:"http_status,omitempty"`
	Error      string       `json:"error,omitempty"`
}

// Price is a parsed amount plus ISO currency code. Currency may be empty
// when the source carried an amount but no currency hint; a known amount
// with unknown currency still beats dropping the price.
type Price struct {
	Amount   float64 `json:"amount"`
	Currency string  `json:"currency"`
}

// Product is deduplicated by canonical absolute URL across the whole Store.
// Price and Available are pointers so "explicitly missing" never gets
// conflated with a zero value.
type Product struct {
	Name        string   `json:"name,omitempty"`
	URL         string   `json:"url"`
	Price       *Price   `json:"price,omitempty"`
	Available   *bool    `json:"available,omitempty"`
	Image       string   `json:"image,omitempty"`
	Collections []string `json:"collections,omitempty"`
}

// Collection preserves product membership in source-page order.
type Collection struct {
	Name        string   `json:"name,omitempty"`
	URL         string   `json:"url"`
	ProductURLs []string `json:"product_urls,omitempty"`
}

type PolicyKind string

const (
	PolicyRefund   PolicyKind = "refund"
	PolicyShipping PolicyKind = "shipping"
	PolicyPrivacy  PolicyKind = "privacy"
	PolicyTerms    PolicyKind = "terms"
	PolicyOther    PolicyKind = "other"
)

type Policy struct {
	Kind PolicyKind `json:"kind"`
	URL  string     `json:"url"`
	Body string     `json:"body,omitempty"`
}

// FaqEntry keeps the Heuristic tag so callers can weight pattern-matched
// entries lower than structured-block ones.
type FaqEntry struct {
	Question  string `json:"question"`
	Answer    string `json:"answer"`
	SourceURL string `json:"source_url,omitempty"`
	Heuristic bool   `json:"heuristic,omitempty"`
}

// Summary is the shallow per-candidate extraction result: name, a handful
// of products and whatever contact info the homepage exposed.
type Summary struct {
	Name     string    `json:"name,omitempty"`
	Products []Product `json:"products,omitempty"`
	Emails   []string  `json:"emails,omitempty"`
	Phones   []string  `json:"phones,omitempty"`
}

// CompetitorCandidate is never silently dropped: a candidate whose shallow
// pass failed carries a Reason instead of a Summary.
type CompetitorCandidate struct {
	URL        string   `json:"url"`
	Confidence float64  `json:"confidence"`
	Summary    *Summary `json:"summary,omitempty"`
	Reason     string   `json:"reason,omitempty"`
}

// Store is the root aggregate, created fresh per extraction request and
// handed off immutable once assembly completes.
type Store struct {
	URL         string                 `json:"url"`
	Name        string                 `json:"name,omitempty"`
	Products    []Product              `json:"products,omitempty"`
	Collections []Collection           `json:"collections,omitempty"`
	Policies    []Policy               `json:"policies,omitempty"`
	FAQs        []FaqEntry             `json:"faqs,omitempty"`
	Emails      []string               `json:"emails,omitempty"`
	Phones      []string               `json:"phones,omitempty"`
	Socials     map[string]string      `json:"socials,omitempty"`
	Links       map[string]string      `json:"links,omitempty"`
	Competitors []CompetitorCandidate  `json:"competitors,omitempty"`
	Sources     map[string]FetchStatus `json:"sources"`
}

// MergeProducts deduplicates by URL with an explicit precedence: the primary
// list (the catalog feed) wins, secondary sources only fill fields the
// primary left missing. Within the primary list itself, the last seen
// non-empty value per attribute wins. First-seen order is preserved.
func MergeProducts(primary, secondary []Product) []Product {
	var out []Product
	index := make(map[string]int)

	for _, p := range primary {
		if p.URL == "" {
			continue
		}
		if i, ok := index[p.URL]; ok {
			mergeProduct(&out[i], p, false)
			continue
		}
		index[p.URL] = len(out)
		out = append(out, p)
	}

	for _, p := range secondary {
		if p.URL == "" {
			continue
		}
		if i, ok := index[p.URL]; ok {
			mergeProduct(&out[i], p, true)
			continue
		}
		index[p.URL] = len(out)
		out = append(out, p)
	}

	return out
}

// mergeProduct folds src into dst. With fillOnly set, src may only populate
// attributes dst is missing; otherwise non-empty src attributes overwrite.
func mergeProduct(dst *Product, src Product, fillOnly bool) {
	if src.Name != "" && (!fillOnly || dst.Name == "") {
		dst.Name = src.Name
	}
	if src.Price != nil && (!fillOnly || dst.Price == nil) {
		dst.Price = src.Price
	}
	if src.Available != nil && (!fillOnly || dst.Available == nil) {
		dst.Available = src.Available
	}
	if src.Image != "" && (!fillOnly || dst.Image == "") {
		dst.Image = src.Image
	}
	for _, c := range src.Collections {
		found := false
		for _, have := range dst.Collections {
			if have == c {
				found = true
				break
			}
		}
		if !found {
			dst.Collections = append(dst.Collections, c)
		}
	}
}

// MergeFAQs deduplicates by case-folded question. Structured-block entries
// beat heuristic ones: when both match the same question the heuristic
// duplicate is dropped, even if it arrived first.
func MergeFAQs(entries []FaqEntry) []FaqEntry {
	var out []FaqEntry
	index := make(map[string]int)

	for _, e := range entries {
		key := strings.ToLower(strings.Join(strings.Fields(e.Question), " "))
		if key == "" || e.Answer == "" {
			continue
		}
		i, seen := index[key]
		if !seen {
			index[key] = len(out)
			out = append(out, e)
			continue
		}
		if out[i].Heuristic && !e.Heuristic {
			out[i] = e
		}
	}

	return out
}
