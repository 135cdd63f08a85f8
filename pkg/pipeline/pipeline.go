// Package pipeline orchestrates a full store extraction run: home page
// gate, catalog feed, concurrent auxiliary pages, normalization, optional
// competitor discovery, final assembly. Every source failure except the
// home page is contained as a FetchStatus entry on the result.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/sw33tLie/shopsight/internal/utils"
	"github.com/sw33tLie/shopsight/pkg/catalog"
	"github.com/sw33tLie/shopsight/pkg/competitors"
	"github.com/sw33tLie/shopsight/pkg/fetch"
	"github.com/sw33tLie/shopsight/pkg/insight"
	"github.com/sw33tLie/shopsight/pkg/normalize"
	"github.com/sw33tLie/shopsight/pkg/structured"
)

// ErrUnreachableHome is the sole fatal error of a run: without the home
// page there is no base to resolve links against and no evidence the
// target exists at all.
var ErrUnreachableHome = errors.New("store home page unreachable")

// Options controls one extraction run. Zero values use the defaults below.
type Options struct {
	TimeoutBudget   time.Duration // whole-run deadline, 0 = no extra deadline
	MaxRetries      int           // retries per fetch; 0 = default, negative = none
	Concurrency     int
	MaxCatalogPages int
	CatalogPageSize int
	MaxCollections  int
	MaxHeroProducts int
	DefaultRegion   string
	UserAgent       string
	Proxy           string

	IncludeCompetitors bool
	MaxCompetitors     int
	CompetitorSource   competitors.Source

	// Client overrides the fetcher (tests inject deterministic ones).
	Client *fetch.Client
}

const (
	defaultConcurrency = 5
	defaultCollections = 10
	defaultHeroLimit   = 20
)

// Source keys for the singleton sources; aux pages are keyed by URL.
const (
	sourceHome        = "home"
	sourceCatalog     = "catalog"
	sourceCompetitors = "competitors"
)

// Extract runs the whole pipeline against rawURL and returns the assembled
// Store. The result may be partial; consult Store.Sources for what is
// missing and why. The only hard failure is ErrUnreachableHome.
func Extract(ctx context.Context, rawURL string, opts Options) (*insight.Store, error) {
	base, err := normalize.BaseURL(rawURL)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnreachableHome, err)
	}

	if opts.TimeoutBudget > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.TimeoutBudget)
		defer cancel()
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = defaultConcurrency
	}
	if opts.MaxCollections <= 0 {
		opts.MaxCollections = defaultCollections
	}
	if opts.MaxHeroProducts <= 0 {
		opts.MaxHeroProducts = defaultHeroLimit
	}

	client := opts.Client
	if client == nil {
		client = fetch.New(fetch.Options{
			RetryMax:  opts.MaxRetries,
			PerHost:   int64(opts.Concurrency),
			UserAgent: opts.UserAgent,
			Proxy:     opts.Proxy,
		})
	}

	st := &insight.Store{
		URL:     base,
		Sources: make(map[string]insight.FetchStatus),
	}

	// Home page: the gate for the whole run.
	utils.Log.Debug("Fetching home page: ", base)
	homeRes := client.Get(ctx, base, "html")
	st.Sources[sourceHome] = homeRes.Status()
	if homeRes.Outcome != insight.FetchSucceeded {
		return nil, fmt.Errorf("%w: %s after %d attempt(s)", ErrUnreachableHome, homeRes.Outcome, homeRes.Attempts)
	}

	home, err := parseHome(homeRes.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnreachableHome, err)
	}

	st.Name = home.brandName()
	st.Socials = home.socials()
	st.Links = home.links(base)
	currency := structured.OfferCurrency(home.blocks)

	// Catalog feed: authoritative product source.
	utils.Log.Debug("Fetching catalog feed")
	feedProducts, feedStatus := catalog.FetchFeed(ctx, client, base, catalog.FeedOptions{
		MaxPages:        opts.MaxCatalogPages,
		PageLimit:       opts.CatalogPageSize,
		DefaultCurrency: currency,
	})
	st.Sources[sourceCatalog] = feedStatus

	// Aux pages: independent, fetched concurrently.
	tasks := buildAuxTasks(home, base, st.Links, opts.MaxCollections)
	utils.Log.Debug("Fetching ", len(tasks), " aux page(s)")
	results := runAux(ctx, client, base, opts.DefaultRegion, tasks, opts.Concurrency)

	assemble(st, home, base, feedProducts, results, opts)

	// Competitor discovery, best effort.
	if opts.IncludeCompetitors {
		utils.Log.Debug("Discovering competitors")
		st.Competitors = competitors.Discover(ctx, client, st, competitors.Options{
			Max:           opts.MaxCompetitors,
			Source:        opts.CompetitorSource,
			DefaultRegion: opts.DefaultRegion,
		})
		st.Sources[sourceCompetitors] = insight.FetchStatus{Outcome: insight.FetchSucceeded, Attempts: 1}
	} else {
		st.Sources[sourceCompetitors] = insight.FetchStatus{Outcome: insight.FetchSkipped}
	}

	utils.Log.Debug("Assembled store ", base, " with ", len(st.Products), " product(s)")
	return st, nil
}

func buildAuxTasks(home *homePage, base string, links map[string]string, maxCollections int) []auxTask {
	var tasks []auxTask

	policies := home.policyURLs(base)
	policyURLs := make([]string, 0, len(policies))
	for url := range policies {
		policyURLs = append(policyURLs, url)
	}
	sort.Strings(policyURLs)
	for _, url := range policyURLs {
		tasks = append(tasks, auxTask{kind: auxPolicy, url: url, policy: policies[url]})
	}

	for _, url := range home.collectionURLs(base, maxCollections) {
		tasks = append(tasks, auxTask{kind: auxCollection, url: url})
	}
	if faqURL, ok := links["faq"]; ok {
		tasks = append(tasks, auxTask{kind: auxFaq, url: faqURL})
	}
	if contactURL, ok := links["contact"]; ok {
		tasks = append(tasks, auxTask{kind: auxContact, url: contactURL})
	}
	return tasks
}

// assemble folds every extracted fragment into the Store, applying the
// documented precedence: feed products > collection products > hero links,
// structured FAQ > heuristic FAQ.
func assemble(st *insight.Store, home *homePage, base string, feedProducts []insight.Product, results []auxResult, opts Options) {
	var (
		scraped []insight.Product
		faqs    []insight.FaqEntry
		emails  []string
		phones  []string
	)

	// FAQ blocks on the home page count as a structured source.
	faqs = append(faqs, structured.FAQs(home.raw, st.URL)...)

	for _, r := range results {
		st.Sources[r.task.url] = r.status
		if r.policy != nil {
			st.Policies = append(st.Policies, *r.policy)
		}
		if r.collection != nil && len(r.collection.ProductURLs) > 0 {
			st.Collections = append(st.Collections, *r.collection)
		}
		scraped = append(scraped, r.products...)
		faqs = append(faqs, r.faqs...)
		emails = append(emails, r.emails...)
		phones = append(phones, r.phones...)
	}

	scraped = append(scraped, catalog.HeroProducts([]byte(home.raw), base, opts.MaxHeroProducts)...)
	st.Products = insight.MergeProducts(feedProducts, scraped)

	st.FAQs = insight.MergeFAQs(faqs)

	emails = append(emails, normalize.Emails(home.raw)...)
	phones = append(phones, normalize.Phones(home.raw, opts.DefaultRegion)...)
	st.Emails = normalize.Dedupe(emails)
	st.Phones = normalize.Dedupe(phones)
}
