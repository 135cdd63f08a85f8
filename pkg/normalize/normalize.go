// Package normalize canonicalizes the raw text, URLs, emails and phone
// numbers that scraping yields. All functions are pure; rejected candidates
// are dropped, never returned as best-guess garbage.
package normalize

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"github.com/nyaruka/phonenumbers"
	"github.com/weppos/publicsuffix-go/publicsuffix"
)

var (
	whitespaceRe = regexp.MustCompile(`\s+`)
	multiSlashRe = regexp.MustCompile(`/{2,}`)
	emailRe      = regexp.MustCompile(`^[A-Za-z0-9._%+\-]+@[A-Za-z0-9.\-]+\.[A-Za-z]{2,}$`)

	// Loose scan patterns for free text. Matches are candidates only and
	// must still pass Email/Phone validation.
	emailScanRe = regexp.MustCompile(`[A-Za-z0-9._%+\-]+@[A-Za-z0-9.\-]+\.[A-Za-z]{2,}`)
	phoneScanRe = regexp.MustCompile(`\+?\d[\d\-\s().]{7,}\d`)
)

// Query parameters that only carry tracking state and never change the
// resource being addressed.
var trackingParams = map[string]struct{}{
	"fbclid":  {},
	"gclid":   {},
	"msclkid": {},
	"ttclid":  {},
	"igshid":  {},
	"mc_cid":  {},
	"mc_eid":  {},
	"yclid":   {},
}

// BaseURL reduces a raw store URL to its canonical scheme+host form, adding
// https:// when the scheme is missing. Everything else in the pipeline
// resolves relative links against this value.
func BaseURL(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", fmt.Errorf("empty url")
	}
	if !strings.Contains(raw, "://") {
		raw = "https://" + raw
	}
	u, err := url.Parse(raw)
	if err != nil {
		return "", err
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
	if u.Host == "" {
		return "", fmt.Errorf("no host in %q", raw)
	}
	return u.Scheme + "://" + canonicalHost(u.Scheme, u.Host), nil
}

// URL resolves raw against base and canonicalizes the result: lowercased
// host, no default port, no fragment, no tracking parameters, collapsed
// duplicate path slashes, no trailing slash. It is idempotent.
func URL(base, raw string) (string, error) {
	b, err := url.Parse(base)
	if err != nil {
		return "", err
	}
	if !b.IsAbs() {
		return "", fmt.Errorf("base %q is not absolute", base)
	}
	ref, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return "", err
	}
	u := b.ResolveReference(ref)
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", fmt.Errorf("unsupported scheme %q", u.Scheme)
	}

	u.Scheme = strings.ToLower(u.Scheme)
	u.Host = canonicalHost(u.Scheme, u.Host)
	u.Fragment = ""

	path := multiSlashRe.ReplaceAllString(u.EscapedPath(), "/")
	path = strings.TrimSuffix(path, "/")

	query := filterQuery(u.RawQuery)

	out := u.Scheme + "://" + u.Host + path
	if query != "" {
		out += "?" + query
	}
	return out, nil
}

func canonicalHost(scheme, host string) string {
	host = strings.ToLower(host)
	switch scheme {
	case "http":
		host = strings.TrimSuffix(host, ":80")
	case "https":
		host = strings.TrimSuffix(host, ":443")
	}
	return host
}

// filterQuery drops tracking parameters while preserving the original
// parameter order, so normalization stays idempotent.
func filterQuery(rawQuery string) string {
	if rawQuery == "" {
		return ""
	}
	var kept []string
	for _, pair := range strings.Split(rawQuery, "&") {
		if pair == "" {
			continue
		}
		key := pair
		if i := strings.IndexByte(pair, '='); i >= 0 {
			key = pair[:i]
		}
		key = strings.ToLower(key)
		if _, ok := trackingParams[key]; ok {
			continue
		}
		if strings.HasPrefix(key, "utm_") {
			continue
		}
		kept = append(kept, pair)
	}
	return strings.Join(kept, "&")
}

// Whitespace collapses runs of whitespace into single spaces and trims.
func Whitespace(s string) string {
	return strings.TrimSpace(whitespaceRe.ReplaceAllString(s, " "))
}

// Email validates and canonicalizes a single candidate address. The bool
// reports whether the candidate survived.
func Email(raw string) (string, bool) {
	raw = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(raw), "mailto:"))
	if i := strings.IndexByte(raw, '?'); i >= 0 {
		raw = raw[:i]
	}
	raw = strings.ToLower(raw)
	if len(raw) > 254 || !emailRe.MatchString(raw) {
		return "", false
	}
	if strings.Contains(raw, "..") {
		return "", false
	}
	return raw, true
}

// Phone validates a candidate and returns it in E.164 form. Numbers without
// an explicit +CC prefix are interpreted in defaultRegion.
func Phone(raw, defaultRegion string) (string, bool) {
	raw = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(raw), "tel:"))
	if raw == "" {
		return "", false
	}
	if defaultRegion == "" {
		defaultRegion = "US"
	}
	num, err := phonenumbers.Parse(raw, defaultRegion)
	if err != nil || !phonenumbers.IsValidNumber(num) {
		return "", false
	}
	return phonenumbers.Format(num, phonenumbers.E164), true
}

// Emails scans free text for addresses and returns the validated, deduped
// set in first-seen order.
func Emails(text string) []string {
	var out []string
	for _, m := range emailScanRe.FindAllString(text, -1) {
		if e, ok := Email(m); ok {
			out = append(out, e)
		}
	}
	return Dedupe(out)
}

// Phones scans free text for phone-looking tokens and returns the validated
// E.164 set. Scraped pages are full of false-positive digit runs; anything
// that fails strict validation is dropped silently.
func Phones(text, defaultRegion string) []string {
	var out []string
	for _, m := range phoneScanRe.FindAllString(text, -1) {
		if p, ok := Phone(m, defaultRegion); ok {
			out = append(out, p)
		}
	}
	return Dedupe(out)
}

// Dedupe removes exact duplicates, keeping first-seen order.
func Dedupe(items []string) []string {
	seen := make(map[string]struct{}, len(items))
	var out []string
	for _, it := range items {
		if _, ok := seen[it]; ok {
			continue
		}
		seen[it] = struct{}{}
		out = append(out, it)
	}
	return out
}

// RegistrableDomain extracts the registrable domain (eTLD+1) from a URL,
// used to compare stores across hosts. Empty on failure.
func RegistrableDomain(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	host := strings.ToLower(u.Hostname())
	if host == "" {
		host = strings.ToLower(rawURL)
	}
	domain, err := publicsuffix.Domain(host)
	if err != nil {
		return ""
	}
	return domain
}
