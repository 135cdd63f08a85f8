package catalog

import (
	"context"
	"fmt"

	"github.com/sw33tLie/shopsight/internal/utils"
	"github.com/sw33tLie/shopsight/pkg/fetch"
	"github.com/sw33tLie/shopsight/pkg/insight"
)

// FeedOptions bounds feed pagination so a misbehaving endpoint cannot be
// crawled forever.
type FeedOptions struct {
	MaxPages        int
	PageLimit       int
	DefaultCurrency string
}

const (
	defaultMaxPages  = 10
	defaultPageLimit = 250
)

// FetchFeed walks the catalog feed page by page until a page yields zero new
// products or MaxPages is reached, whichever comes first. The returned
// status reflects the first page: a feed whose first page is absent is a
// not-found source, later-page failures just end pagination with what was
// already obtained.
func FetchFeed(ctx context.Context, client *fetch.Client, base string, opts FeedOptions) ([]insight.Product, insight.FetchStatus) {
	if opts.MaxPages <= 0 {
		opts.MaxPages = defaultMaxPages
	}
	if opts.PageLimit <= 0 {
		opts.PageLimit = defaultPageLimit
	}

	var (
		all    []insight.Product
		seen   = make(map[string]struct{})
		status insight.FetchStatus
	)

	for page := 1; page <= opts.MaxPages; page++ {
		url := fmt.Sprintf("%s/products.json?limit=%d&page=%d", base, opts.PageLimit, page)
		res := client.Get(ctx, url, "json")

		if page == 1 {
			status = res.Status()
		} else {
			status.Attempts += res.Attempts
		}

		if res.Outcome != insight.FetchSucceeded {
			break
		}

		products := ParseFeed(res.Body, base, opts.DefaultCurrency)
		added := 0
		for _, p := range products {
			if _, dup := seen[p.URL]; dup {
				continue
			}
			seen[p.URL] = struct{}{}
			all = append(all, p)
			added++
		}

		utils.Log.Debug("Feed page ", page, ": ", added, " new product(s)")
		if added == 0 {
			break
		}
		if len(products) < opts.PageLimit {
			// Short page: the feed is exhausted, skip the extra request.
			break
		}
	}

	return DedupeByURL(all), status
}
