// Package competitors performs best-effort discovery of stores competing
// with the one being extracted. The lookup backend is pluggable; scoring is
// an approximate token-overlap heuristic with no precision guarantee.
package competitors

import (
	"context"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/sw33tLie/shopsight/internal/utils"
	"github.com/sw33tLie/shopsight/pkg/catalog"
	"github.com/sw33tLie/shopsight/pkg/fetch"
	"github.com/sw33tLie/shopsight/pkg/insight"
	"github.com/sw33tLie/shopsight/pkg/normalize"
)

// Source yields candidate store URLs for a free-text query. Implementations
// must be safe for concurrent use.
type Source interface {
	Lookup(ctx context.Context, query string) ([]string, error)
}

// Options configures a discovery run.
type Options struct {
	Max                 int
	PerCandidateTimeout time.Duration
	Source              Source // nil = DuckDuckGo through the shared client
	DefaultRegion       string
	FeedPageLimit       int
	TopProducts         int
}

const (
	defaultMax          = 3
	defaultPerCandidate = 15 * time.Second
	defaultTopProducts  = 5
)

var storefrontHintRe = regexp.MustCompile(`myshopify|/products/|/collections/|/pages/`)

// DuckDuckGo queries the engine's plain-HTML endpoint, which needs no API
// key. May well be rate limited in anger; the Fetcher's backoff applies.
type DuckDuckGo struct {
	Client *fetch.Client
}

func (d *DuckDuckGo) Lookup(ctx context.Context, query string) ([]string, error) {
	lookupURL := "https://duckduckgo.com/html/?q=" + url.QueryEscape(query)
	res := d.Client.Get(ctx, lookupURL, "html")
	if res.Outcome != insight.FetchSucceeded {
		return nil, res.Err
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(string(res.Body)))
	if err != nil {
		return nil, err
	}

	var out []string
	doc.Find("a.result__a, a[href]").EachWithBreak(func(_ int, a *goquery.Selection) bool {
		href, _ := a.Attr("href")
		href = unwrapRedirect(href)
		if !strings.Contains(href, "http") || strings.Contains(href, "duckduckgo.com") {
			return true
		}
		if storefrontHintRe.MatchString(href) {
			out = append(out, strings.Split(href, "&")[0])
		}
		return len(out) < 30
	})
	return out, nil
}

// unwrapRedirect decodes the engine's /l/?uddg=<target> indirection links.
func unwrapRedirect(href string) string {
	if !strings.Contains(href, "uddg=") {
		return href
	}
	u, err := url.Parse(href)
	if err != nil {
		return href
	}
	if target := u.Query().Get("uddg"); target != "" {
		return target
	}
	return href
}

// Discover finds up to opts.Max candidate competitor stores and runs a
// shallow extraction pass (home page + first feed page only) on each. A
// candidate whose shallow pass fails is still returned, with the failure
// reason recorded: absence of evidence stays visible to the caller.
func Discover(ctx context.Context, client *fetch.Client, store *insight.Store, opts Options) []insight.CompetitorCandidate {
	if opts.Max <= 0 {
		opts.Max = defaultMax
	}
	if opts.PerCandidateTimeout <= 0 {
		opts.PerCandidateTimeout = defaultPerCandidate
	}
	if opts.TopProducts <= 0 {
		opts.TopProducts = defaultTopProducts
	}
	src := opts.Source
	if src == nil {
		src = &DuckDuckGo{Client: client}
	}

	query := buildQuery(store)
	found, err := src.Lookup(ctx, query)
	if err != nil {
		utils.Log.Warn("Competitor lookup failed: ", err)
		return nil
	}

	selfKey := domainKey(store.URL)
	seen := make(map[string]struct{})
	var bases []string
	for _, raw := range found {
		base, err := normalize.BaseURL(raw)
		if err != nil {
			continue
		}
		key := domainKey(base)
		if key == "" || key == selfKey {
			continue
		}
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		bases = append(bases, base)
		if len(bases) >= opts.Max {
			break
		}
	}

	storeTokens := nameTokens(store.Name)
	var out []insight.CompetitorCandidate
	for _, base := range bases {
		// One slow or hostile candidate must not stall the whole run.
		cctx, cancel := context.WithTimeout(ctx, opts.PerCandidateTimeout)
		cand := shallowPass(cctx, client, base, storeTokens, opts)
		cancel()
		out = append(out, cand)
	}
	return out
}

// domainKey identifies a store for dedupe and self-filtering: the
// registrable domain when one parses, otherwise the raw host (IP-hosted
// stores have no eTLD+1).
func domainKey(rawURL string) string {
	if d := normalize.RegistrableDomain(rawURL); d != "" {
		return d
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	return strings.ToLower(u.Host)
}

func buildQuery(store *insight.Store) string {
	name := store.Name
	if name == "" {
		name = normalize.RegistrableDomain(store.URL)
	}
	return name + " competitors shopify"
}

// shallowPass runs the reduced-depth pipeline: home page plus the first
// catalog feed page, no collection or policy crawl and no recursion.
func shallowPass(ctx context.Context, client *fetch.Client, base string, storeTokens map[string]struct{}, opts Options) insight.CompetitorCandidate {
	cand := insight.CompetitorCandidate{URL: base}

	home := client.Get(ctx, base, "html")
	if home.Outcome != insight.FetchSucceeded {
		cand.Reason = "home page " + string(home.Outcome)
		if home.Err != nil {
			cand.Reason += ": " + home.Err.Error()
		}
		return cand
	}

	summary := &insight.Summary{Name: fetch.Title(home.Body)}
	body := string(home.Body)
	summary.Emails = normalize.Emails(body)
	summary.Phones = normalize.Phones(body, opts.DefaultRegion)

	products, _ := catalog.FetchFeed(ctx, client, base, catalog.FeedOptions{
		MaxPages:  1,
		PageLimit: opts.FeedPageLimit,
	})
	if len(products) > opts.TopProducts {
		products = products[:opts.TopProducts]
	}
	summary.Products = products

	cand.Summary = summary
	cand.Confidence = overlapScore(storeTokens, nameTokens(summary.Name))
	return cand
}

var tokenSplitRe = regexp.MustCompile(`[^a-z0-9]+`)

// Words too generic to signal similarity between two storefront names.
var stopTokens = map[string]struct{}{
	"the": {}, "and": {}, "for": {}, "shop": {}, "store": {}, "online": {},
	"official": {}, "buy": {}, "best": {}, "com": {}, "www": {},
}

func nameTokens(name string) map[string]struct{} {
	out := make(map[string]struct{})
	for _, tok := range tokenSplitRe.Split(strings.ToLower(name), -1) {
		if len(tok) < 3 {
			continue
		}
		if _, stop := stopTokens[tok]; stop {
			continue
		}
		out[tok] = struct{}{}
	}
	return out
}

// overlapScore is the Jaccard index of the two token sets, clamped to
// [0, 1]. Explicitly approximate.
func overlapScore(a, b map[string]struct{}) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	shared := 0
	for tok := range a {
		if _, ok := b[tok]; ok {
			shared++
		}
	}
	union := len(a) + len(b) - shared
	if union == 0 {
		return 0
	}
	score := float64(shared) / float64(union)
	if score > 1 {
		score = 1
	}
	return score
}
