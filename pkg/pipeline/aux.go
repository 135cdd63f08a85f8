package pipeline

import (
	"context"
	"strings"
	"sync"

	"github.com/PuerkitoBio/goquery"

	"github.com/sw33tLie/shopsight/internal/utils"
	"github.com/sw33tLie/shopsight/pkg/catalog"
	"github.com/sw33tLie/shopsight/pkg/fetch"
	"github.com/sw33tLie/shopsight/pkg/insight"
	"github.com/sw33tLie/shopsight/pkg/normalize"
	"github.com/sw33tLie/shopsight/pkg/structured"
)

const maxPolicyBody = 2000

type auxKind int

const (
	auxPolicy auxKind = iota
	auxCollection
	auxFaq
	auxContact
)

type auxTask struct {
	kind   auxKind
	url    string
	policy insight.PolicyKind
}

type auxResult struct {
	task       auxTask
	status     insight.FetchStatus
	policy     *insight.Policy
	collection *insight.Collection
	products   []insight.Product
	faqs       []insight.FaqEntry
	emails     []string
	phones     []string
}

// runAux fetches all auxiliary pages concurrently through a bounded worker
// pool. Results come back indexed by task, so assembly order stays
// deterministic no matter how the fetches interleave.
func runAux(ctx context.Context, client *fetch.Client, base, region string, tasks []auxTask, concurrency int) []auxResult {
	if concurrency <= 0 {
		concurrency = 5
	}
	results := make([]auxResult, len(tasks))

	jobs := make(chan int)
	var wg sync.WaitGroup
	for w := 0; w < concurrency; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				results[i] = runAuxTask(ctx, client, base, region, tasks[i])
			}
		}()
	}
	for i := range tasks {
		jobs <- i
	}
	close(jobs)
	wg.Wait()

	return results
}

func runAuxTask(ctx context.Context, client *fetch.Client, base, region string, task auxTask) auxResult {
	out := auxResult{task: task}

	res := client.Get(ctx, task.url, "html")
	out.status = res.Status()
	if res.Outcome != insight.FetchSucceeded {
		utils.Log.Debug("Aux fetch ", task.url, ": ", res.Outcome)
		return out
	}

	body := string(res.Body)
	switch task.kind {
	case auxPolicy:
		out.policy = &insight.Policy{
			Kind: task.policy,
			URL:  task.url,
			Body: utils.Truncate(pageText(body), maxPolicyBody),
		}
		out.emails = normalize.Emails(body)
	case auxCollection:
		col, products := catalog.ParseCollection(res.Body, task.url, base)
		out.collection = &col
		out.products = products
	case auxFaq:
		out.faqs = structured.FAQs(body, task.url)
		if len(out.faqs) == 0 {
			out.faqs = structured.FAQHeuristic(body, task.url)
		}
		out.emails = normalize.Emails(body)
	case auxContact:
		out.emails = normalize.Emails(body)
		out.phones = normalize.Phones(body, region)
	}
	return out
}

// pageText extracts readable text, preferring the <main> region when the
// theme provides one so navigation chrome stays out of policy bodies.
func pageText(html string) string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return normalize.Whitespace(html)
	}
	region := doc.Find("main").First()
	if region.Length() == 0 {
		region = doc.Find("body").First()
	}
	if region.Length() == 0 {
		return normalize.Whitespace(doc.Text())
	}
	region.Find("script, style, noscript").Remove()
	return normalize.Whitespace(region.Text())
}
