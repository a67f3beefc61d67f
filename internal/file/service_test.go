package file

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/publiclinks/service/internal/shortlink"
)

// mockRecords is an in-memory Records implementation.
type mockRecords struct {
	records map[int64]*FileRecord
	nextID  int64
	emails  map[string]string // user id -> email, for the uploader join
}

func newMockRecords() *mockRecords {
	return &mockRecords{
		records: make(map[int64]*FileRecord),
		emails:  map[string]string{"user-a": "a@example.com"},
	}
}

func (m *mockRecords) Create(_ context.Context, userID, filename, storageKey, contentType string, sizeBytes int64) (*FileRecord, error) {
	m.nextID++
	rec := &FileRecord{
		ID:          m.nextID,
		UserID:      userID,
		Filename:    filename,
		StorageKey:  storageKey,
		ContentType: contentType,
		SizeBytes:   sizeBytes,
		CreatedAt:   time.Now(),
	}
	m.records[rec.ID] = rec
	stored := *rec
	return &stored, nil
}

func (m *mockRecords) GetByID(_ context.Context, id int64) (*FileRecord, error) {
	rec, ok := m.records[id]
	if !ok {
		return nil, ErrNotFound
	}
	stored := *rec
	return &stored, nil
}

func (m *mockRecords) GetByStorageKey(_ context.Context, key string) (*FileRecord, error) {
	for _, rec := range m.records {
		if rec.StorageKey == key {
			stored := *rec
			return &stored, nil
		}
	}
	return nil, ErrNotFound
}

func (m *mockRecords) ListWithUploader(_ context.Context) ([]ListEntry, error) {
	entries := []ListEntry{}
	for _, rec := range m.records {
		entries = append(entries, ListEntry{FileRecord: *rec, UploaderEmail: m.emails[rec.UserID]})
	}
	return entries, nil
}

func (m *mockRecords) Delete(_ context.Context, id int64) (bool, error) {
	if _, ok := m.records[id]; !ok {
		return false, nil
	}
	delete(m.records, id)
	return true, nil
}

func (m *mockRecords) SetShortLink(_ context.Context, id int64, url, linkID, key string) error {
	rec, ok := m.records[id]
	if !ok {
		return ErrNotFound
	}
	rec.ShortLinkURL, rec.ShortLinkID, rec.ShortLinkKey = &url, &linkID, &key
	return nil
}

func (m *mockRecords) UpdateShortLinkKey(_ context.Context, id int64, url, key string) error {
	rec, ok := m.records[id]
	if !ok {
		return ErrNotFound
	}
	rec.ShortLinkURL, rec.ShortLinkKey = &url, &key
	return nil
}

// mockStore is an in-memory blob store with switchable failures.
type mockStore struct {
	objects    map[string][]byte
	types      map[string]string
	failPut    bool
	failGet    bool
	failDelete bool
	deletes    []string
}

func newMockStore() *mockStore {
	return &mockStore{objects: make(map[string][]byte), types: make(map[string]string)}
}

func (m *mockStore) Upload(_ context.Context, key string, reader io.Reader, _ int64, contentType string) error {
	if m.failPut {
		return errors.New("storage unavailable")
	}
	data, err := io.ReadAll(reader)
	if err != nil {
		return err
	}
	m.objects[key] = data
	m.types[key] = contentType
	return nil
}

func (m *mockStore) Get(_ context.Context, key string) ([]byte, string, error) {
	if m.failGet {
		return nil, "", errors.New("storage unavailable")
	}
	data, ok := m.objects[key]
	if !ok {
		return nil, "", errors.New("object not found")
	}
	return data, m.types[key], nil
}

func (m *mockStore) Delete(_ context.Context, key string) error {
	m.deletes = append(m.deletes, key)
	if m.failDelete {
		return errors.New("storage unavailable")
	}
	delete(m.objects, key)
	return nil
}

func (m *mockStore) PublicURL(key string) string {
	return "http://store.local/files/" + key
}

// mockShortener scripts provider behavior and records calls.
type mockShortener struct {
	createResult CreateResultFn
	rekeyLink    *shortlink.Link
	rekeyErr     error
	calls        []string
	deleted      []string
}

type CreateResultFn func() shortlink.CreateResult

func unavailableShortener() *mockShortener {
	return &mockShortener{createResult: func() shortlink.CreateResult {
		return shortlink.CreateResult{Outcome: shortlink.OutcomeUnavailable}
	}}
}

func (m *mockShortener) Enabled() bool { return true }

func (m *mockShortener) Create(_ context.Context, _, _ string) shortlink.CreateResult {
	m.calls = append(m.calls, "create")
	return m.createResult()
}

func (m *mockShortener) Rekey(_ context.Context, _, rawKey string) (*shortlink.Link, error) {
	m.calls = append(m.calls, "rekey")
	if key := shortlink.NormalizeKey(rawKey); key == "" {
		return nil, shortlink.ErrEmptyKey
	}
	if m.rekeyErr != nil {
		return nil, m.rekeyErr
	}
	return m.rekeyLink, nil
}

func (m *mockShortener) Delete(_ context.Context, linkID string) error {
	m.calls = append(m.calls, "delete")
	m.deleted = append(m.deleted, linkID)
	return nil
}

func newTestService(records *mockRecords, store *mockStore, links *mockShortener) *Service {
	return NewService(records, store, links, "https://links.example.com")
}

func TestUploadStoresBlobAndRecord(t *testing.T) {
	records, store := newMockRecords(), newMockStore()
	svc := newTestService(records, store, unavailableShortener())

	res, err := svc.Upload(context.Background(), "user-a", "report.pdf", "application/pdf", []byte("hello"))
	require.NoError(t, err)

	rec := res.Record
	assert.Contains(t, rec.StorageKey, "report.pdf")
	assert.NotEqual(t, "report.pdf", rec.StorageKey, "key must carry a random prefix")
	assert.Equal(t, "user-a", rec.UserID)
	assert.Equal(t, "application/pdf", rec.ContentType)
	assert.Equal(t, int64(5), rec.SizeBytes)
	assert.Equal(t, "https://links.example.com/f/"+rec.StorageKey, res.ProxyURL)

	// Provider unavailable: uploaded fine, just no short link.
	assert.Nil(t, rec.ShortLinkURL)
	assert.Nil(t, rec.ShortLinkKey)

	// Blob actually landed under the record's key.
	assert.Equal(t, []byte("hello"), store.objects[rec.StorageKey])

	// Create-then-get roundtrip preserves what was submitted.
	got, err := records.GetByID(context.Background(), rec.ID)
	require.NoError(t, err)
	assert.Equal(t, rec.Filename, got.Filename)
	assert.Equal(t, rec.StorageKey, got.StorageKey)
	assert.Equal(t, rec.SizeBytes, got.SizeBytes)
}

func TestUploadWithoutFilename(t *testing.T) {
	records, store := newMockRecords(), newMockStore()
	svc := newTestService(records, store, unavailableShortener())

	_, err := svc.Upload(context.Background(), "user-a", "", "text/plain", []byte("x"))
	assert.ErrorIs(t, err, ErrNoFilename)
	assert.Empty(t, store.objects)
	assert.Empty(t, records.records)
}

func TestUploadAbortsWhenBlobPutFails(t *testing.T) {
	records, store := newMockRecords(), newMockStore()
	store.failPut = true
	svc := newTestService(records, store, unavailableShortener())

	_, err := svc.Upload(context.Background(), "user-a", "report.pdf", "application/pdf", []byte("hello"))
	require.Error(t, err)
	assert.Empty(t, records.records, "no record may exist for an unwritten blob")
}

func TestUploadPersistsCreatedShortLink(t *testing.T) {
	records, store := newMockRecords(), newMockStore()
	links := &mockShortener{createResult: func() shortlink.CreateResult {
		return shortlink.CreateResult{
			Outcome: shortlink.OutcomeCreated,
			Link:    &shortlink.Link{ID: "link_1", Key: "report", URL: "https://go.example.com/report"},
		}
	}}
	svc := newTestService(records, store, links)

	res, err := svc.Upload(context.Background(), "user-a", "report.pdf", "application/pdf", []byte("hello"))
	require.NoError(t, err)

	require.NotNil(t, res.Record.ShortLinkURL)
	assert.Equal(t, "https://go.example.com/report", *res.Record.ShortLinkURL)
	require.NotNil(t, res.Record.ShortLinkKey)
	assert.Equal(t, "report", *res.Record.ShortLinkKey)

	stored := records.records[res.Record.ID]
	require.NotNil(t, stored.ShortLinkID)
	assert.Equal(t, "link_1", *stored.ShortLinkID)
}

func TestUploadSurvivesShortLinkRejection(t *testing.T) {
	records, store := newMockRecords(), newMockStore()
	links := &mockShortener{createResult: func() shortlink.CreateResult {
		return shortlink.CreateResult{Outcome: shortlink.OutcomeRejected, Err: errors.New("key taken")}
	}}
	svc := newTestService(records, store, links)

	res, err := svc.Upload(context.Background(), "user-a", "report.pdf", "application/pdf", []byte("hello"))
	require.NoError(t, err, "a rejected link must not fail the upload")
	assert.Nil(t, res.Record.ShortLinkURL)
	assert.Len(t, records.records, 1)
}

func TestRekeyWithoutLinkRejectedBeforeProvider(t *testing.T) {
	records, store := newMockRecords(), newMockStore()
	links := unavailableShortener()
	svc := newTestService(records, store, links)

	res, err := svc.Upload(context.Background(), "user-a", "report.pdf", "application/pdf", []byte("hello"))
	require.NoError(t, err)
	links.calls = nil

	_, err = svc.RekeyLink(context.Background(), res.Record.ID, "new-key")
	assert.ErrorIs(t, err, ErrNotEditable)
	assert.Empty(t, links.calls, "provider must not be called for a record with no link")
}

func TestRekeyUnknownRecord(t *testing.T) {
	svc := newTestService(newMockRecords(), newMockStore(), unavailableShortener())

	_, err := svc.RekeyLink(context.Background(), 42, "new-key")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRekeyPersistsProviderCanonicalKey(t *testing.T) {
	records, store := newMockRecords(), newMockStore()
	links := &mockShortener{
		createResult: func() shortlink.CreateResult {
			return shortlink.CreateResult{
				Outcome: shortlink.OutcomeCreated,
				Link:    &shortlink.Link{ID: "link_1", Key: "report", URL: "https://go.example.com/report"},
			}
		},
		// Provider resolves the requested key to something else.
		rekeyLink: &shortlink.Link{ID: "link_1", Key: "weekly-2", URL: "https://go.example.com/weekly-2"},
	}
	svc := newTestService(records, store, links)

	res, err := svc.Upload(context.Background(), "user-a", "report.pdf", "application/pdf", []byte("hello"))
	require.NoError(t, err)

	link, err := svc.RekeyLink(context.Background(), res.Record.ID, "Weekly")
	require.NoError(t, err)
	assert.Equal(t, "weekly-2", link.Key)

	stored := records.records[res.Record.ID]
	require.NotNil(t, stored.ShortLinkKey)
	assert.Equal(t, "weekly-2", *stored.ShortLinkKey, "store must hold what the provider confirmed")
	require.NotNil(t, stored.ShortLinkID)
	assert.Equal(t, "link_1", *stored.ShortLinkID, "provider id never changes on rekey")
}

func TestRekeyProviderFailureLeavesRecordUntouched(t *testing.T) {
	records, store := newMockRecords(), newMockStore()
	links := &mockShortener{
		createResult: func() shortlink.CreateResult {
			return shortlink.CreateResult{
				Outcome: shortlink.OutcomeCreated,
				Link:    &shortlink.Link{ID: "link_1", Key: "report", URL: "https://go.example.com/report"},
			}
		},
		rekeyErr: errors.New("provider returned 409: key taken"),
	}
	svc := newTestService(records, store, links)

	res, err := svc.Upload(context.Background(), "user-a", "report.pdf", "application/pdf", []byte("hello"))
	require.NoError(t, err)

	_, err = svc.RekeyLink(context.Background(), res.Record.ID, "taken")
	require.Error(t, err)

	stored := records.records[res.Record.ID]
	assert.Equal(t, "report", *stored.ShortLinkKey)
}

func TestDeleteUnknownRecordMutatesNothing(t *testing.T) {
	records, store := newMockRecords(), newMockStore()
	links := unavailableShortener()
	svc := newTestService(records, store, links)

	err := svc.Delete(context.Background(), 99)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Empty(t, store.deletes)
	assert.Empty(t, links.deleted)
}

func TestDeleteRemovesRecordEvenWhenBlobDeleteFails(t *testing.T) {
	records, store := newMockRecords(), newMockStore()
	svc := newTestService(records, store, unavailableShortener())

	res, err := svc.Upload(context.Background(), "user-a", "report.pdf", "application/pdf", []byte("hello"))
	require.NoError(t, err)

	store.failDelete = true
	require.NoError(t, svc.Delete(context.Background(), res.Record.ID),
		"blob-store failure must not block record cleanup")
	assert.Empty(t, records.records)
}

func TestDeleteRemovesProviderLink(t *testing.T) {
	records, store := newMockRecords(), newMockStore()
	links := &mockShortener{createResult: func() shortlink.CreateResult {
		return shortlink.CreateResult{
			Outcome: shortlink.OutcomeCreated,
			Link:    &shortlink.Link{ID: "link_1", Key: "report", URL: "https://go.example.com/report"},
		}
	}}
	svc := newTestService(records, store, links)

	res, err := svc.Upload(context.Background(), "user-a", "report.pdf", "application/pdf", []byte("hello"))
	require.NoError(t, err)

	require.NoError(t, svc.Delete(context.Background(), res.Record.ID))
	assert.Equal(t, []string{"link_1"}, links.deleted)
	assert.Equal(t, []string{res.Record.StorageKey}, store.deletes)
	assert.Empty(t, records.records)
}

func TestServeUnknownKey(t *testing.T) {
	svc := newTestService(newMockRecords(), newMockStore(), unavailableShortener())

	_, _, _, err := svc.Serve(context.Background(), "nope")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestServeBlobFailureIsNotNotFound(t *testing.T) {
	records, store := newMockRecords(), newMockStore()
	svc := newTestService(records, store, unavailableShortener())

	res, err := svc.Upload(context.Background(), "user-a", "report.pdf", "application/pdf", []byte("hello"))
	require.NoError(t, err)

	store.failGet = true
	_, _, _, err = svc.Serve(context.Background(), res.Record.StorageKey)
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrNotFound,
		"a known record with an unreachable blob is a server failure, not a 404")
}

func TestServeReturnsBytesAndOriginalFilename(t *testing.T) {
	records, store := newMockRecords(), newMockStore()
	svc := newTestService(records, store, unavailableShortener())

	res, err := svc.Upload(context.Background(), "user-a", "report.pdf", "application/pdf", []byte("hello"))
	require.NoError(t, err)

	rec, data, contentType, err := svc.Serve(context.Background(), res.Record.StorageKey)
	require.NoError(t, err)
	assert.Equal(t, "report.pdf", rec.Filename)
	assert.Equal(t, []byte("hello"), data)
	assert.Equal(t, "application/pdf", contentType)
}

func TestListIncludesUploaderEmail(t *testing.T) {
	records, store := newMockRecords(), newMockStore()
	svc := newTestService(records, store, unavailableShortener())

	_, err := svc.Upload(context.Background(), "user-a", "report.pdf", "application/pdf", []byte("hello"))
	require.NoError(t, err)

	entries, err := svc.List(context.Background())
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "a@example.com", entries[0].UploaderEmail)
	assert.True(t, strings.Contains(entries[0].StorageKey, "report.pdf"))
}
