package shortlink

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// defaultAPIBase is dub.co's public API endpoint.
const defaultAPIBase = "https://api.dub.co"

// requestTimeout bounds every provider call so a slow upstream cannot stall
// a request indefinitely.
const requestTimeout = 10 * time.Second

// DubClient implements Shortener against the dub.co REST API.
// With no API key or domain configured it is a no-op: Enabled reports false
// and Create returns OutcomeUnavailable without touching the network.
type DubClient struct {
	apiKey  string
	domain  string
	apiBase string
	http    *http.Client
}

// NewDubClient creates a dub.co client. Empty credentials are allowed and
// produce a disabled client.
func NewDubClient(apiKey, domain string) *DubClient {
	return &DubClient{
		apiKey:  apiKey,
		domain:  domain,
		apiBase: defaultAPIBase,
		http:    &http.Client{Timeout: requestTimeout},
	}
}

// Enabled reports whether provider credentials are configured.
func (c *DubClient) Enabled() bool {
	return c.apiKey != "" && c.domain != ""
}

// dubLink is the subset of dub.co's link object we care about.
type dubLink struct {
	ID        string `json:"id"`
	Key       string `json:"key"`
	ShortLink string `json:"shortLink"`
}

// Create registers a short link pointing at targetURL. suggestedKey is
// normalized and passed as a hint; if it normalizes to nothing the provider
// picks a key on its own.
func (c *DubClient) Create(ctx context.Context, targetURL, suggestedKey string) CreateResult {
	if !c.Enabled() {
		return CreateResult{Outcome: OutcomeUnavailable}
	}

	payload := map[string]string{
		"url":    targetURL,
		"domain": c.domain,
	}
	if key := NormalizeKey(suggestedKey); key != "" {
		payload["key"] = key
	}

	link, err := c.do(ctx, http.MethodPost, "/links", payload)
	if err != nil {
		return CreateResult{Outcome: OutcomeRejected, Err: err}
	}
	return CreateResult{Outcome: OutcomeCreated, Link: link}
}

// Rekey changes the key of an existing link. The raw key is normalized
// locally first; an empty result fails with ErrEmptyKey before any network
// call. Provider rejections (typically a taken key) come back as errors the
// caller is expected to surface.
func (c *DubClient) Rekey(ctx context.Context, linkID, rawKey string) (*Link, error) {
	key := NormalizeKey(rawKey)
	if key == "" {
		return nil, ErrEmptyKey
	}

	link, err := c.do(ctx, http.MethodPatch, "/links/"+linkID, map[string]string{"key": key})
	if err != nil {
		return nil, fmt.Errorf("rekey link %s to %q: %w", linkID, key, err)
	}
	return link, nil
}

// Delete removes the link at the provider.
func (c *DubClient) Delete(ctx context.Context, linkID string) error {
	if _, err := c.do(ctx, http.MethodDelete, "/links/"+linkID, nil); err != nil {
		return fmt.Errorf("delete link %s: %w", linkID, err)
	}
	return nil
}

// do performs one authenticated API call and decodes the returned link.
func (c *DubClient) do(ctx context.Context, method, p string, payload any) (*Link, error) {
	var body io.Reader
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("encode request: %w", err)
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.apiBase+p, body)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("call provider: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, fmt.Errorf("provider returned %d: %s", resp.StatusCode, bytes.TrimSpace(detail))
	}

	var dl dubLink
	if err := json.NewDecoder(resp.Body).Decode(&dl); err != nil {
		if method == http.MethodDelete {
			// dub returns a bare {"id": ...}; an undecodable body on
			// delete is irrelevant once the status was 2xx.
			return nil, nil
		}
		return nil, fmt.Errorf("decode provider response: %w", err)
	}
	return &Link{ID: dl.ID, Key: dl.Key, URL: dl.ShortLink}, nil
}
