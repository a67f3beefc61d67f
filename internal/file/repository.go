// Package file implements the file-record lifecycle: the durable metadata
// rows, the coordinator that keeps them consistent with the blob store and
// the short-link provider, and the HTTP handlers on top.
package file

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// FileRecord is one uploaded file: the database row tying together the
// owner, the blob's storage key, and (optionally) the external short link.
// The short-link id and key are both set or both null — a record either owns
// a provider link or it does not.
type FileRecord struct {
	ID           int64     `json:"id"`
	UserID       string    `json:"userId"`
	Filename     string    `json:"filename"`
	StorageKey   string    `json:"storageKey"`
	ShortLinkURL *string   `json:"shortLinkUrl,omitempty"`
	ShortLinkID  *string   `json:"-"` // provider handle, not for clients
	ShortLinkKey *string   `json:"shortLinkKey,omitempty"`
	ContentType  string    `json:"contentType"`
	SizeBytes    int64     `json:"sizeBytes"`
	CreatedAt    time.Time `json:"createdAt"`
}

// ListEntry is a FileRecord enriched with uploader identity for listings.
type ListEntry struct {
	FileRecord
	UploaderEmail string `json:"uploaderEmail"`
	UploaderName  string `json:"uploaderName"`
}

// ErrNotFound is returned when a file record does not exist.
var ErrNotFound = errors.New("file not found")

const fileColumns = `id, user_id, filename, storage_key, short_link_url,
	short_link_id, short_link_key, content_type, size_bytes, created_at`

// Repository handles all file-record database operations.
type Repository struct {
	db *pgxpool.Pool
}

// NewRepository creates a new Repository with the given connection pool.
func NewRepository(db *pgxpool.Pool) *Repository {
	return &Repository{db: db}
}

func scanRecord(row pgx.Row) (*FileRecord, error) {
	rec := &FileRecord{}
	err := row.Scan(&rec.ID, &rec.UserID, &rec.Filename, &rec.StorageKey,
		&rec.ShortLinkURL, &rec.ShortLinkID, &rec.ShortLinkKey,
		&rec.ContentType, &rec.SizeBytes, &rec.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return rec, nil
}

// Create inserts a new file record and returns it with the generated id and
// timestamp.
func (r *Repository) Create(ctx context.Context, userID, filename, storageKey, contentType string, sizeBytes int64) (*FileRecord, error) {
	rec, err := scanRecord(r.db.QueryRow(ctx,
		`INSERT INTO files (user_id, filename, storage_key, content_type, size_bytes)
		 VALUES ($1, $2, $3, $4, $5)
		 RETURNING `+fileColumns,
		userID, filename, storageKey, contentType, sizeBytes,
	))
	if err != nil {
		return nil, fmt.Errorf("create file record: %w", err)
	}
	return rec, nil
}

// GetByID fetches a file record by its id.
func (r *Repository) GetByID(ctx context.Context, id int64) (*FileRecord, error) {
	rec, err := scanRecord(r.db.QueryRow(ctx,
		`SELECT `+fileColumns+` FROM files WHERE id = $1`, id))
	if err != nil && !errors.Is(err, ErrNotFound) {
		return nil, fmt.Errorf("get file by id: %w", err)
	}
	return rec, err
}

// GetByStorageKey fetches a file record by its unique storage key.
func (r *Repository) GetByStorageKey(ctx context.Context, key string) (*FileRecord, error) {
	rec, err := scanRecord(r.db.QueryRow(ctx,
		`SELECT `+fileColumns+` FROM files WHERE storage_key = $1`, key))
	if err != nil && !errors.Is(err, ErrNotFound) {
		return nil, fmt.Errorf("get file by storage key: %w", err)
	}
	return rec, err
}

// ListWithUploader returns all file records, newest first, each enriched
// with the uploader's email and display name.
func (r *Repository) ListWithUploader(ctx context.Context) ([]ListEntry, error) {
	rows, err := r.db.Query(ctx,
		`SELECT f.id, f.user_id, f.filename, f.storage_key, f.short_link_url,
		        f.short_link_id, f.short_link_key, f.content_type, f.size_bytes,
		        f.created_at, u.email, u.name
		 FROM files f
		 JOIN users u ON f.user_id = u.id
		 ORDER BY f.created_at DESC, f.id DESC`)
	if err != nil {
		return nil, fmt.Errorf("list files: %w", err)
	}
	defer rows.Close()

	entries := []ListEntry{}
	for rows.Next() {
		var e ListEntry
		if err := rows.Scan(&e.ID, &e.UserID, &e.Filename, &e.StorageKey,
			&e.ShortLinkURL, &e.ShortLinkID, &e.ShortLinkKey,
			&e.ContentType, &e.SizeBytes, &e.CreatedAt,
			&e.UploaderEmail, &e.UploaderName); err != nil {
			return nil, fmt.Errorf("scan file row: %w", err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list files: %w", err)
	}
	return entries, nil
}

// Delete removes a file record, reporting whether a row existed.
func (r *Repository) Delete(ctx context.Context, id int64) (bool, error) {
	tag, err := r.db.Exec(ctx, `DELETE FROM files WHERE id = $1`, id)
	if err != nil {
		return false, fmt.Errorf("delete file record: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

// SetShortLink stores the provider link created for a fresh upload.
func (r *Repository) SetShortLink(ctx context.Context, id int64, url, linkID, key string) error {
	_, err := r.db.Exec(ctx,
		`UPDATE files SET short_link_url = $1, short_link_id = $2, short_link_key = $3
		 WHERE id = $4`,
		url, linkID, key, id)
	if err != nil {
		return fmt.Errorf("set short link: %w", err)
	}
	return nil
}

// UpdateShortLinkKey stores the provider-confirmed url and key after a rekey;
// the provider link id is unchanged.
func (r *Repository) UpdateShortLinkKey(ctx context.Context, id int64, url, key string) error {
	_, err := r.db.Exec(ctx,
		`UPDATE files SET short_link_url = $1, short_link_key = $2 WHERE id = $3`,
		url, key, id)
	if err != nil {
		return fmt.Errorf("update short link key: %w", err)
	}
	return nil
}
