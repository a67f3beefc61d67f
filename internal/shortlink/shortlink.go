// Package shortlink manages redirect mappings at an external short-link
// provider (dub.co). The provider is optional enrichment: when no credentials
// are configured every create degrades to "unavailable" and callers carry on
// without a short link.
package shortlink

import (
	"context"
	"errors"
	"path"
	"regexp"
	"strings"
)

// Link is a provider-confirmed short link. ID is the provider's opaque handle,
// required to rekey or delete the link later.
type Link struct {
	ID  string
	Key string
	URL string
}

// CreateOutcome distinguishes the three ways a create can end. Keeping them
// as a sum keeps "provider not configured" from masquerading as an error and
// "provider said no" from masquerading as success at every call site.
type CreateOutcome int

const (
	// OutcomeCreated means the provider registered the link.
	OutcomeCreated CreateOutcome = iota
	// OutcomeUnavailable means no provider is configured; not an error.
	OutcomeUnavailable
	// OutcomeRejected means the provider refused (key taken, bad request,
	// timeout). Err carries the detail.
	OutcomeRejected
)

// CreateResult is the outcome of a Create call. Link is non-nil only for
// OutcomeCreated; Err is non-nil only for OutcomeRejected.
type CreateResult struct {
	Outcome CreateOutcome
	Link    *Link
	Err     error
}

// ErrEmptyKey is returned when a requested key normalizes to nothing. It is
// detected locally, before any provider call.
var ErrEmptyKey = errors.New("short link key is empty after normalization")

// Shortener is the provider-facing interface the lifecycle coordinator uses.
type Shortener interface {
	// Enabled reports whether provider credentials are configured.
	Enabled() bool
	// Create registers a redirect from a key (suggestedKey is a hint the
	// provider may override) to targetURL.
	Create(ctx context.Context, targetURL, suggestedKey string) CreateResult
	// Rekey changes an existing link's key. The returned Link carries the
	// provider's canonical key and URL, which may differ from the request.
	Rekey(ctx context.Context, linkID, rawKey string) (*Link, error)
	// Delete removes the link. Best-effort at call sites; a failure never
	// aborts the surrounding operation.
	Delete(ctx context.Context, linkID string) error
}

var (
	invalidKeyChars = regexp.MustCompile(`[^A-Za-z0-9-]+`)
	repeatedHyphens = regexp.MustCompile(`-{2,}`)
)

// NormalizeKey derives a short-link key from a raw name, typically a filename:
// the trailing extension is stripped, every run of characters outside
// [A-Za-z0-9-] becomes a single hyphen, repeats collapse, leading/trailing
// hyphens are trimmed, the result is lowercased and truncated to 50 bytes.
// Existing external links depend on this exact rule.
//
// "My Report (Final).pdf" -> "my-report-final". An empty result means the
// input cannot name a link.
func NormalizeKey(raw string) string {
	base := strings.TrimSuffix(raw, path.Ext(raw))
	key := invalidKeyChars.ReplaceAllString(base, "-")
	key = repeatedHyphens.ReplaceAllString(key, "-")
	key = strings.Trim(key, "-")
	key = strings.ToLower(key)
	if len(key) > 50 {
		key = key[:50]
	}
	return key
}
