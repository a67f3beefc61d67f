package file

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log"
	"net/url"
	"strings"

	"github.com/google/uuid"

	"github.com/publiclinks/service/internal/shortlink"
	"github.com/publiclinks/service/internal/storage"
)

// ErrNoFilename is returned when an upload carries no filename.
var ErrNoFilename = errors.New("no filename provided")

// ErrNotEditable is returned when a rekey targets a record that owns no
// provider link.
var ErrNotEditable = errors.New("file has no editable short link")

// Records is the persistence surface the coordinator needs; satisfied by
// *Repository.
type Records interface {
	Create(ctx context.Context, userID, filename, storageKey, contentType string, sizeBytes int64) (*FileRecord, error)
	GetByID(ctx context.Context, id int64) (*FileRecord, error)
	GetByStorageKey(ctx context.Context, key string) (*FileRecord, error)
	ListWithUploader(ctx context.Context) ([]ListEntry, error)
	Delete(ctx context.Context, id int64) (bool, error)
	SetShortLink(ctx context.Context, id int64, url, linkID, key string) error
	UpdateShortLinkKey(ctx context.Context, id int64, url, key string) error
}

// Service coordinates the three backends a file lives in: the record store
// (source of truth), the blob store, and the short-link provider. No
// transaction spans them; the fixed operation ordering below is the sole
// consistency mechanism.
type Service struct {
	records Records
	store   storage.Storage
	links   shortlink.Shortener
	baseURL string
}

// NewService creates a file Service. baseURL is the externally visible base
// used to build proxy URLs.
func NewService(records Records, store storage.Storage, links shortlink.Shortener, baseURL string) *Service {
	return &Service{
		records: records,
		store:   store,
		links:   links,
		baseURL: strings.TrimRight(baseURL, "/"),
	}
}

// UploadResult is what a successful upload hands back to the API layer.
type UploadResult struct {
	Record     *FileRecord
	ProxyURL   string
	StorageURL string
}

// ProxyURL builds this service's own serving URL for a storage key; it is
// the target registered with the short-link provider.
func (s *Service) ProxyURL(storageKey string) string {
	return s.baseURL + "/f/" + url.PathEscape(storageKey)
}

// Upload runs the create sequence: blob first, record second, short link
// last. A blob failure aborts with nothing written; once the record exists
// the upload has committed, and a failed or unavailable short link only means
// the response omits one.
func (s *Service) Upload(ctx context.Context, userID, filename, contentType string, data []byte) (*UploadResult, error) {
	if filename == "" {
		return nil, ErrNoFilename
	}
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	// Random prefix keeps keys unique across identical filenames; no
	// dedup is attempted.
	key := uuid.NewString()[:8] + "-" + filename

	if err := s.store.Upload(ctx, key, bytes.NewReader(data), int64(len(data)), contentType); err != nil {
		return nil, fmt.Errorf("upload blob %q: %w", key, err)
	}

	rec, err := s.records.Create(ctx, userID, filename, key, contentType, int64(len(data)))
	if err != nil {
		return nil, err
	}

	proxyURL := s.ProxyURL(key)
	res := s.links.Create(ctx, proxyURL, filename)
	switch res.Outcome {
	case shortlink.OutcomeCreated:
		if err := s.records.SetShortLink(ctx, rec.ID, res.Link.URL, res.Link.ID, res.Link.Key); err != nil {
			log.Printf("file: persist short link for record %d: %v", rec.ID, err)
		} else {
			rec.ShortLinkURL = &res.Link.URL
			rec.ShortLinkID = &res.Link.ID
			rec.ShortLinkKey = &res.Link.Key
		}
	case shortlink.OutcomeRejected:
		log.Printf("file: short link creation failed for %q: %v", key, res.Err)
	}

	return &UploadResult{
		Record:     rec,
		ProxyURL:   proxyURL,
		StorageURL: s.store.PublicURL(key),
	}, nil
}

// List returns every file record with uploader identity, newest first.
func (s *Service) List(ctx context.Context) ([]ListEntry, error) {
	return s.records.ListWithUploader(ctx)
}

// RekeyLink changes a record's short-link key at the provider and persists
// the provider-confirmed key and URL — what the provider echoes back, not
// what the caller asked for. A record without a provider link is rejected
// before any network call is made.
func (s *Service) RekeyLink(ctx context.Context, id int64, rawKey string) (*shortlink.Link, error) {
	rec, err := s.records.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if rec.ShortLinkID == nil || *rec.ShortLinkID == "" {
		return nil, ErrNotEditable
	}

	link, err := s.links.Rekey(ctx, *rec.ShortLinkID, rawKey)
	if err != nil {
		return nil, err
	}

	if err := s.records.UpdateShortLinkKey(ctx, rec.ID, link.URL, link.Key); err != nil {
		return nil, err
	}
	return link, nil
}

// Delete runs the delete sequence: blob and provider link first, both
// best-effort, record last. The record is the source of truth for whether a
// file still exists, so it must be the final thing to go — an interrupted
// sequence leaves a retryable record rather than an unreachable orphan.
func (s *Service) Delete(ctx context.Context, id int64) error {
	rec, err := s.records.GetByID(ctx, id)
	if err != nil {
		return err
	}

	if err := s.store.Delete(ctx, rec.StorageKey); err != nil {
		log.Printf("file: delete blob %q: %v (continuing)", rec.StorageKey, err)
	}

	if rec.ShortLinkID != nil && *rec.ShortLinkID != "" {
		if err := s.links.Delete(ctx, *rec.ShortLinkID); err != nil {
			log.Printf("file: delete short link %s: %v (continuing)", *rec.ShortLinkID, err)
		}
	}

	deleted, err := s.records.Delete(ctx, id)
	if err != nil {
		return err
	}
	if !deleted {
		return ErrNotFound
	}
	return nil
}

// Serve resolves a storage key to the stored bytes. An unknown key is
// ErrNotFound; a known record whose blob cannot be fetched is a plain error,
// so callers can tell "never uploaded" from "cannot currently serve".
func (s *Service) Serve(ctx context.Context, storageKey string) (*FileRecord, []byte, string, error) {
	rec, err := s.records.GetByStorageKey(ctx, storageKey)
	if err != nil {
		return nil, nil, "", err
	}

	data, contentType, err := s.store.Get(ctx, storageKey)
	if err != nil {
		return nil, nil, "", fmt.Errorf("fetch blob %q: %w", storageKey, err)
	}
	if contentType == "" {
		contentType = rec.ContentType
	}
	return rec, data, contentType, nil
}
