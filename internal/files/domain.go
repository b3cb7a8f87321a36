package files

import (
	"fmt"
	"io"
	"time"

	"github.com/clubspace/clubspace/internal/platform/httpx"
	"github.com/clubspace/clubspace/internal/shared"
)

var (
	// ErrNotFound is returned for unknown file ids.
	ErrNotFound = fmt.Errorf("file %w", httpx.ErrNotFound)
	// ErrEmptyUpload rejects zero-byte uploads.
	ErrEmptyUpload = fmt.Errorf("%w: file must not be empty", httpx.ErrValidation)
	// ErrTooLarge rejects uploads above the configured limit.
	ErrTooLarge = fmt.Errorf("%w: file is too large", httpx.ErrValidation)
)

// File is stored object metadata. Files without a club belong to their owner.
type File struct {
	ID          string    `json:"id"`
	ClubID      string    `json:"club_id,omitempty"`
	OwnerID     string    `json:"owner_id"`
	OwnerName   string    `json:"owner_name,omitempty"`
	Name        string    `json:"name"`
	ContentType string    `json:"content_type"`
	Size        int64     `json:"size"`
	ObjectKey   string    `json:"-"`
	CreatedAt   time.Time `json:"created_at"`
}

// ListFilter narrows file listings.
type ListFilter struct {
	shared.ListParams
	ClubID  string
	OwnerID string
}

// UploadInput carries one uploaded file.
type UploadInput struct {
	ClubID  string
	Name    string
	Size    int64
	Content io.Reader
}
