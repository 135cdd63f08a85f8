// Package fetch performs HTTP retrieval with bounded retries, capped
// exponential backoff and per-host concurrency limiting. It is the only
// component in the pipeline that touches the network.
package fetch

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"golang.org/x/sync/semaphore"

	"github.com/sw33tLie/shopsight/internal/utils"
	"github.com/sw33tLie/shopsight/pkg/insight"
)

const (
	DefaultUserAgent = "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 " +
		"(KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"

	defaultTimeout  = 20 * time.Second
	defaultRetryMax = 2
	defaultWaitMin  = 500 * time.Millisecond
	defaultWaitMax  = 10 * time.Second
	defaultPerHost  = 5

	maxBodyBytes = 8 << 20
)

// Options configures a Client. Zero values fall back to sane defaults.
type Options struct {
	Timeout time.Duration
	// RetryMax is the number of retries after the first attempt. 0 means
	// the default; pass a negative value for no retries at all.
	RetryMax  int
	WaitMin   time.Duration
	WaitMax   time.Duration
	PerHost   int64 // max in-flight requests per host
	UserAgent string
	Proxy     string
}

// Client issues GET requests with a stable identifying user agent. It is
// safe for concurrent use; the per-host semaphores are its only shared
// state.
type Client struct {
	http      *http.Client
	userAgent string
	retryMax  int
	waitMin   time.Duration
	waitMax   time.Duration
	perHost   int64

	mu    sync.Mutex
	hosts map[string]*semaphore.Weighted
}

// Result is the typed outcome of a fetch. Outcome is always set; Body is
// populated only on success.
type Result struct {
	Outcome    insight.FetchOutcome
	StatusCode int
	Attempts   int
	Body       []byte
	Header     http.Header
	Err        error
}

// Status converts a Result into the manifest entry recorded on the Store.
func (r *Result) Status() insight.FetchStatus {
	s := insight.FetchStatus{
		Outcome:    r.Outcome,
		Attempts:   r.Attempts,
		HTTPStatus: r.StatusCode,
	}
	if r.Err != nil {
		s.Error = r.Err.Error()
	}
	return s
}

func New(opts Options) *Client {
	if opts.Timeout <= 0 {
		opts.Timeout = defaultTimeout
	}
	if opts.RetryMax < 0 {
		opts.RetryMax = 0
	} else if opts.RetryMax == 0 {
		opts.RetryMax = defaultRetryMax
	}
	if opts.WaitMin <= 0 {
		opts.WaitMin = defaultWaitMin
	}
	if opts.WaitMax <= 0 {
		opts.WaitMax = defaultWaitMax
	}
	if opts.PerHost <= 0 {
		opts.PerHost = defaultPerHost
	}
	if opts.UserAgent == "" {
		opts.UserAgent = DefaultUserAgent
	}

	transport := http.DefaultTransport.(*http.Transport).Clone()
	if opts.Proxy != "" {
		if proxyURL, err := url.Parse(opts.Proxy); err == nil {
			transport.Proxy = http.ProxyURL(proxyURL)
		} else {
			utils.Log.Warn("Ignoring invalid proxy URL: ", opts.Proxy)
		}
	}

	return &Client{
		http: &http.Client{
			Timeout:   opts.Timeout,
			Transport: transport,
		},
		userAgent: opts.UserAgent,
		retryMax:  opts.RetryMax,
		waitMin:   opts.WaitMin,
		waitMax:   opts.WaitMax,
		perHost:   opts.PerHost,
		hosts:     make(map[string]*semaphore.Weighted),
	}
}

// Get fetches rawURL. contentHint ("html", "json") short-circuits obviously
// wrong responses, e.g. an image where a feed was expected; it never rejects
// an otherwise valid response that merely omits a Content-Type.
//
// Retried: transport errors, 5xx and 429 (honoring Retry-After). Not
// retried: 404/410 and other 4xx, which are definitive absence signals and
// come back as a not-found outcome rather than an error.
func (c *Client) Get(ctx context.Context, rawURL string, contentHint string) *Result {
	res := &Result{Outcome: insight.FetchFailed}

	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" {
		res.Err = fmt.Errorf("invalid url %q", rawURL)
		return res
	}

	sem := c.hostSemaphore(u.Host)

	var lastErr error
	for attempt := 0; attempt <= c.retryMax; attempt++ {
		if err := sem.Acquire(ctx, 1); err != nil {
			break
		}
		resp, err := c.do(ctx, rawURL)
		sem.Release(1)

		res.Attempts = attempt + 1

		if err != nil {
			lastErr = err
			if ctx.Err() != nil {
				break
			}
			utils.Log.Debug("Fetch attempt failed for ", rawURL, ": ", err)
			if attempt < c.retryMax && !c.sleepBackoff(ctx, attempt, nil) {
				break
			}
			continue
		}

		body, readErr := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
		resp.Body.Close()

		res.StatusCode = resp.StatusCode
		res.Header = resp.Header

		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
			lastErr = fmt.Errorf("status %d", resp.StatusCode)
			// DefaultBackoff honors the Retry-After hint on 429 responses.
			if attempt < c.retryMax && !c.sleepBackoff(ctx, attempt, resp) {
				break
			}
			continue
		}
		if resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusGone {
			res.Outcome = insight.FetchNotFound
			return res
		}
		if resp.StatusCode >= 400 {
			// Other 4xx: definitive, not worth retrying.
			res.Outcome = insight.FetchNotFound
			res.Err = fmt.Errorf("status %d", resp.StatusCode)
			return res
		}

		if readErr != nil {
			lastErr = readErr
			if attempt < c.retryMax && !c.sleepBackoff(ctx, attempt, nil) {
				break
			}
			continue
		}

		if contentHint != "" && wrongContentType(resp.Header.Get("Content-Type"), contentHint) {
			res.Err = fmt.Errorf("unexpected content type %q", resp.Header.Get("Content-Type"))
			return res
		}

		res.Outcome = insight.FetchSucceeded
		res.Body = body
		res.Err = nil
		return res
	}

	if ctx.Err() != nil {
		res.Outcome = insight.FetchTimeout
		if lastErr == nil {
			lastErr = ctx.Err()
		}
	}
	res.Err = lastErr
	if res.Attempts == 0 {
		res.Attempts = 1
	}
	return res
}

func (c *Client) do(ctx context.Context, rawURL string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", "text/html,application/json;q=0.9,*/*;q=0.8")
	req.Header.Set("Accept-Language", "en")
	req.Header.Set("Cache-Control", "no-transform")
	return c.http.Do(req)
}

// sleepBackoff waits for the computed backoff delay, honoring Retry-After
// when resp is a rate-limit response. Returns false once ctx is done.
func (c *Client) sleepBackoff(ctx context.Context, attempt int, resp *http.Response) bool {
	delay := retryablehttp.DefaultBackoff(c.waitMin, c.waitMax, attempt, resp)
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

func (c *Client) hostSemaphore(host string) *semaphore.Weighted {
	c.mu.Lock()
	defer c.mu.Unlock()
	sem, ok := c.hosts[host]
	if !ok {
		sem = semaphore.NewWeighted(c.perHost)
		c.hosts[host] = sem
	}
	return sem
}

func wrongContentType(ctype, hint string) bool {
	if ctype == "" {
		return false
	}
	ctype = strings.ToLower(ctype)
	if strings.Contains(ctype, hint) || strings.Contains(ctype, "text") {
		return false
	}
	// json endpoints are frequently served as text/plain or even text/html;
	// only types that cannot possibly carry the payload are rejected.
	return strings.HasPrefix(ctype, "image/") ||
		strings.HasPrefix(ctype, "video/") ||
		strings.HasPrefix(ctype, "audio/") ||
		strings.HasPrefix(ctype, "font/")
}
