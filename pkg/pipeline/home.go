package pipeline

import (
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/sw33tLie/shopsight/pkg/insight"
	"github.com/sw33tLie/shopsight/pkg/normalize"
	"github.com/sw33tLie/shopsight/pkg/structured"
)

// Routes the platform serves for every store, probed even when the home
// page never links them.
var commonPolicyRoutes = []string{
	"/policies/privacy-policy",
	"/policies/refund-policy",
	"/policies/shipping-policy",
	"/policies/terms-of-service",
}

var linkHints = map[string][]string{
	"contact":        {"contact", "contact-us", "customer service"},
	"about":          {"about", "about-us", "our story"},
	"faq":            {"faq", "faqs", "help", "support"},
	"blog":           {"blog", "blogs", "journal"},
	"order_tracking": {"track", "track-order", "order tracking"},
}

var socialPatterns = map[string]*regexp.Regexp{
	"instagram": regexp.MustCompile(`(?i)instagram\.com/[^"'>\s]+`),
	"facebook":  regexp.MustCompile(`(?i)(facebook|fb)\.com/[^"'>\s]+`),
	"tiktok":    regexp.MustCompile(`(?i)tiktok\.com/[^"'>\s]+`),
	"twitter":   regexp.MustCompile(`(?i)(twitter|x)\.com/[^"'>\s]+`),
	"youtube":   regexp.MustCompile(`(?i)youtube\.com/[^"'>\s]+`),
	"pinterest": regexp.MustCompile(`(?i)pinterest\.com/[^"'>\s]+`),
	"linkedin":  regexp.MustCompile(`(?i)linkedin\.com/[^"'>\s]+`),
}

// homePage is everything worth keeping from the single most important
// fetch of the run.
type homePage struct {
	doc    *goquery.Document
	raw    string
	blocks []structured.Block
}

func parseHome(body []byte) (*homePage, error) {
	raw := string(body)
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(raw))
	if err != nil {
		return nil, err
	}
	blocks, _ := structured.Blocks(raw)
	return &homePage{doc: doc, raw: raw, blocks: blocks}, nil
}

// brandName resolves the display name with the documented precedence:
// Organization block > og:site_name > <title> prefix.
func (h *homePage) brandName() string {
	if name := structured.OrganizationName(h.blocks); name != "" {
		return name
	}
	if content, ok := h.doc.Find(`meta[property="og:site_name"]`).First().Attr("content"); ok {
		if name := normalize.Whitespace(content); name != "" {
			return name
		}
	}
	title := normalize.Whitespace(h.doc.Find("title").First().Text())
	for _, sep := range []string{"|", "–", "—"} {
		if i := strings.Index(title, sep); i >= 0 {
			title = title[:i]
		}
	}
	return normalize.Whitespace(title)
}

func (h *homePage) socials() map[string]string {
	out := make(map[string]string)
	for key, pat := range socialPatterns {
		if m := pat.FindString(h.raw); m != "" {
			out[key] = "https://" + strings.TrimPrefix(strings.TrimPrefix(m, "https://"), "http://")
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

// links discovers well-known page links (contact, about, faq, ...) by
// keyword-matching anchor text and hrefs, returning absolutized URLs.
func (h *homePage) links(base string) map[string]string {
	out := make(map[string]string)
	h.doc.Find("a[href]").Each(func(_ int, a *goquery.Selection) {
		href, _ := a.Attr("href")
		href = strings.TrimSpace(href)
		if href == "" || strings.HasPrefix(href, "javascript:") || strings.HasPrefix(href, "#") {
			return
		}
		text := strings.ToLower(normalize.Whitespace(a.Text()))
		lowHref := strings.ToLower(href)
		for key, hints := range linkHints {
			if _, have := out[key]; have {
				continue
			}
			for _, hint := range hints {
				if strings.Contains(text, hint) || strings.Contains(lowHref, hint) {
					if abs, err := normalize.URL(base, href); err == nil {
						out[key] = abs
					}
					break
				}
			}
		}
	})
	if len(out) == 0 {
		return nil
	}
	return out
}

// policyURLs merges linked policy pages with the platform's common policy
// routes, keyed by canonical URL.
func (h *homePage) policyURLs(base string) map[string]insight.PolicyKind {
	out := make(map[string]insight.PolicyKind)
	h.doc.Find("a[href]").Each(func(_ int, a *goquery.Selection) {
		href, _ := a.Attr("href")
		low := strings.ToLower(href)
		if !strings.Contains(low, "policy") && !strings.Contains(low, "policies") &&
			!strings.Contains(low, "terms") {
			return
		}
		if abs, err := normalize.URL(base, href); err == nil {
			out[abs] = policyKind(abs)
		}
	})
	for _, route := range commonPolicyRoutes {
		if abs, err := normalize.URL(base, route); err == nil {
			if _, have := out[abs]; !have {
				out[abs] = policyKind(abs)
			}
		}
	}
	return out
}

func policyKind(url string) insight.PolicyKind {
	low := strings.ToLower(url)
	switch {
	case strings.Contains(low, "refund"), strings.Contains(low, "return"):
		return insight.PolicyRefund
	case strings.Contains(low, "shipping"), strings.Contains(low, "delivery"):
		return insight.PolicyShipping
	case strings.Contains(low, "privacy"):
		return insight.PolicyPrivacy
	case strings.Contains(low, "terms"):
		return insight.PolicyTerms
	default:
		return insight.PolicyOther
	}
}

// collectionURLs lists linked collection pages in discovery order, capped.
func (h *homePage) collectionURLs(base string, max int) []string {
	var out []string
	seen := make(map[string]struct{})
	h.doc.Find(`a[href*="/collections/"]`).Each(func(_ int, a *goquery.Selection) {
		href, _ := a.Attr("href")
		if strings.Contains(href, "/products/") {
			return // product-within-collection link, not a collection page
		}
		abs, err := normalize.URL(base, href)
		if err != nil {
			return
		}
		if _, dup := seen[abs]; dup {
			return
		}
		seen[abs] = struct{}{}
		out = append(out, abs)
	})
	if max > 0 && len(out) > max {
		out = out[:max]
	}
	return out
}
