package pipeline

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/sw33tLie/shopsight/pkg/fetch"
	"github.com/sw33tLie/shopsight/pkg/insight"
)

func testClient() *fetch.Client {
	return fetch.New(fetch.Options{
		Timeout:  5 * time.Second,
		RetryMax: 1,
		WaitMin:  time.Millisecond,
		WaitMax:  2 * time.Millisecond,
	})
}

const storeHome = `<html><head>
<title>Acme Outfitters | Fine Goods</title>
<script type="application/ld+json">
{"@graph":[
  {"@type":"Organization","name":"Acme Outfitters"},
  {"@type":"FAQPage","mainEntity":[
    {"@type":"Question","name":"Do you ship worldwide?",
     "acceptedAnswer":{"@type":"Answer","text":"Yes, worldwide."}}
  ]}
]}
</script>
</head><body>
<a href="/collections/summer">Summer</a>
<a href="/products/hero-thing">Hero Thing</a>
<a href="/pages/contact">Contact us</a>
<a href="/pages/faq">FAQ</a>
<a href="/policies/refund-policy">Refund policy</a>
<a href="https://instagram.com/acmeoutfitters">Instagram</a>
<footer>hello@acme.example</footer>
</body></html>`

// storefront serves a small but complete fake shop: home, feed, one
// collection, a heuristic-only FAQ page, a contact page, and a policy set
// where one route works, one always errors and two are absent.
func storefront(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()

	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/" {
			http.NotFound(w, r)
			return
		}
		fmt.Fprint(w, storeHome)
	})
	mux.HandleFunc("/products.json", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"products":[
			{"title":"Alpha Tee","handle":"alpha-tee","variants":[{"price":"25.00","available":true}]},
			{"title":"Beta Tee","handle":"beta-tee","variants":[{"price":"30.00","available":false}]}
		]}`)
	})
	mux.HandleFunc("/collections/summer", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `<html><head><title>Summer | Acme Outfitters</title></head><body>
			<h1>Summer</h1>
			<a href="/products/alpha-tee"><img src="/cdn/alpha.jpg" alt="Alpha Tee"></a>
			<a href="/products/gamma-shorts">Gamma Shorts</a>
			</body></html>`)
	})
	mux.HandleFunc("/pages/faq", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `<html><body>
			<h2>Do you ship worldwide?</h2><p>From a heading.</p>
			<h2>Can I return items?</h2><p>Within 30 days.</p>
			</body></html>`)
	})
	mux.HandleFunc("/pages/contact", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `<html><body><main>Email support@acme.example or call (650) 253-0000.</main></body></html>`)
	})
	mux.HandleFunc("/policies/refund-policy", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `<html><body><main><h1>Refund policy</h1>
			<p>All refunds are accepted within 30 days of delivery.</p></main></body></html>`)
	})
	mux.HandleFunc("/policies/shipping-policy", func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	})
	// privacy-policy and terms-of-service fall through to the 404 above.

	return httptest.NewServer(mux)
}

func TestExtract_FullRun(t *testing.T) {
	srv := storefront(t)
	defer srv.Close()

	st, err := Extract(context.Background(), srv.URL, Options{
		Client:        testClient(),
		DefaultRegion: "US",
	})
	if err != nil {
		t.Fatalf("extract: %v", err)
	}

	if st.URL != srv.URL {
		t.Fatalf("store url: got %q", st.URL)
	}
	if st.Name != "Acme Outfitters" {
		t.Fatalf("name should come from the Organization block, got %q", st.Name)
	}

	// Feed products first, then collection-only, then hero-only.
	if len(st.Products) != 4 {
		t.Fatalf("expected 4 products, got %d: %#v", len(st.Products), st.Products)
	}
	alpha := st.Products[0]
	if alpha.Name != "Alpha Tee" || alpha.Price == nil || alpha.Price.Amount != 25.00 {
		t.Fatalf("feed fields must win for alpha: %#v", alpha)
	}
	if alpha.Image != srv.URL+"/cdn/alpha.jpg" {
		t.Fatalf("collection image should fill the feed gap, got %q", alpha.Image)
	}
	if len(alpha.Collections) != 1 || alpha.Collections[0] != srv.URL+"/collections/summer" {
		t.Fatalf("collection membership: %#v", alpha.Collections)
	}
	beta := st.Products[1]
	if beta.Available == nil || *beta.Available {
		t.Fatalf("beta should be unavailable: %#v", beta.Available)
	}
	if st.Products[2].Name != "Gamma Shorts" || st.Products[3].Name != "Hero Thing" {
		t.Fatalf("scraped product order: %#v", st.Products[2:])
	}

	if len(st.Collections) != 1 || st.Collections[0].Name != "Summer" || len(st.Collections[0].ProductURLs) != 2 {
		t.Fatalf("collections: %#v", st.Collections)
	}

	// One policy page worked; the broken and absent ones only leave traces
	// in Sources.
	if len(st.Policies) != 1 {
		t.Fatalf("expected 1 policy, got %#v", st.Policies)
	}
	if st.Policies[0].Kind != insight.PolicyRefund || !strings.Contains(st.Policies[0].Body, "30 days") {
		t.Fatalf("refund policy: %#v", st.Policies[0])
	}

	// Home structured FAQ beats the FAQ page's heuristic duplicate.
	if len(st.FAQs) != 2 {
		t.Fatalf("expected 2 faqs, got %#v", st.FAQs)
	}
	if st.FAQs[0].Question != "Do you ship worldwide?" || st.FAQs[0].Answer != "Yes, worldwide." || st.FAQs[0].Heuristic {
		t.Fatalf("structured entry should win: %#v", st.FAQs[0])
	}
	if st.FAQs[1].Question != "Can I return items?" || !st.FAQs[1].Heuristic {
		t.Fatalf("heuristic-only entry should survive tagged: %#v", st.FAQs[1])
	}

	if len(st.Emails) != 2 {
		t.Fatalf("emails: %#v", st.Emails)
	}
	for _, want := range []string{"support@acme.example", "hello@acme.example"} {
		found := false
		for _, got := range st.Emails {
			if got == want {
				found = true
			}
		}
		if !found {
			t.Fatalf("missing email %q in %#v", want, st.Emails)
		}
	}
	if len(st.Phones) != 1 || st.Phones[0] != "+16502530000" {
		t.Fatalf("phones: %#v", st.Phones)
	}
	if st.Socials["instagram"] != "https://instagram.com/acmeoutfitters" {
		t.Fatalf("socials: %#v", st.Socials)
	}
	if st.Links["contact"] != srv.URL+"/pages/contact" || st.Links["faq"] != srv.URL+"/pages/faq" {
		t.Fatalf("links: %#v", st.Links)
	}

	// Every fetched source leaves a status entry, failures included.
	if st.Sources[sourceHome].Outcome != insight.FetchSucceeded {
		t.Fatalf("home source: %#v", st.Sources[sourceHome])
	}
	if st.Sources[sourceCatalog].Outcome != insight.FetchSucceeded {
		t.Fatalf("catalog source: %#v", st.Sources[sourceCatalog])
	}
	if got := st.Sources[srv.URL+"/policies/privacy-policy"]; got.Outcome != insight.FetchNotFound {
		t.Fatalf("absent policy: %#v", got)
	}
	broken := st.Sources[srv.URL+"/policies/shipping-policy"]
	if broken.Outcome != insight.FetchFailed {
		t.Fatalf("broken policy: %#v", broken)
	}
	if broken.Attempts != 2 {
		t.Fatalf("broken policy should be retried once, got %d attempts", broken.Attempts)
	}
	if st.Sources[sourceCompetitors].Outcome != insight.FetchSkipped {
		t.Fatalf("competitors source: %#v", st.Sources[sourceCompetitors])
	}
}

func TestExtract_SlowCollectionTimesOutButRunAssembles(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/" {
			http.NotFound(w, r)
			return
		}
		fmt.Fprint(w, `<html><head><title>Slow Shop</title></head><body>
			<a href="/collections/slow">Slow</a>
			</body></html>`)
	})
	mux.HandleFunc("/products.json", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"products":[{"title":"Quick Tee","handle":"quick-tee","variants":[{"price":"20.00"}]}]}`)
	})
	mux.HandleFunc("/collections/slow", func(w http.ResponseWriter, r *http.Request) {
		// Never answers within the run's budget.
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	st, err := Extract(context.Background(), srv.URL, Options{
		Client:        testClient(),
		TimeoutBudget: 500 * time.Millisecond,
	})
	if err != nil {
		t.Fatalf("a stalled collection must not fail the run: %v", err)
	}

	slow := st.Sources[srv.URL+"/collections/slow"]
	if slow.Outcome != insight.FetchTimeout {
		t.Fatalf("abandoned collection: %#v", slow)
	}
	if len(st.Collections) != 0 {
		t.Fatalf("timed-out collection must not appear: %#v", st.Collections)
	}
	if len(st.Products) != 1 || st.Products[0].Name != "Quick Tee" {
		t.Fatalf("feed products must survive the deadline: %#v", st.Products)
	}
	if st.Sources[sourceCatalog].Outcome != insight.FetchSucceeded {
		t.Fatalf("catalog source: %#v", st.Sources[sourceCatalog])
	}
}

func TestExtract_HomeServerErrorIsFatal(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "down", http.StatusInternalServerError)
	}))
	defer srv.Close()

	st, err := Extract(context.Background(), srv.URL, Options{Client: testClient()})
	if st != nil {
		t.Fatalf("no partial result on an unreachable home, got %#v", st)
	}
	if !errors.Is(err, ErrUnreachableHome) {
		t.Fatalf("expected ErrUnreachableHome, got %v", err)
	}
	if !strings.Contains(err.Error(), string(insight.FetchFailed)) {
		t.Fatalf("error should carry the outcome, got %v", err)
	}
}

func TestExtract_HomeNotFoundIsFatal(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()

	_, err := Extract(context.Background(), srv.URL, Options{Client: testClient()})
	if !errors.Is(err, ErrUnreachableHome) {
		t.Fatalf("expected ErrUnreachableHome, got %v", err)
	}
	if !strings.Contains(err.Error(), string(insight.FetchNotFound)) {
		t.Fatalf("error should carry the outcome, got %v", err)
	}
}

func TestExtract_BadURL(t *testing.T) {
	_, err := Extract(context.Background(), "https://%%%", Options{Client: testClient()})
	if !errors.Is(err, ErrUnreachableHome) {
		t.Fatalf("expected ErrUnreachableHome, got %v", err)
	}
}

type emptySource struct{}

func (emptySource) Lookup(context.Context, string) ([]string, error) { return nil, nil }

func TestExtract_CompetitorsEnabled(t *testing.T) {
	srv := storefront(t)
	defer srv.Close()

	st, err := Extract(context.Background(), srv.URL, Options{
		Client:             testClient(),
		IncludeCompetitors: true,
		CompetitorSource:   emptySource{},
	})
	if err != nil {
		t.Fatalf("extract: %v", err)
	}
	if st.Sources[sourceCompetitors].Outcome != insight.FetchSucceeded {
		t.Fatalf("competitors source: %#v", st.Sources[sourceCompetitors])
	}
	if len(st.Competitors) != 0 {
		t.Fatalf("empty lookup should yield no candidates: %#v", st.Competitors)
	}
}
