package files

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"

	"github.com/clubspace/clubspace/internal/platform/db"
	"github.com/clubspace/clubspace/internal/platform/httpx"
	"github.com/clubspace/clubspace/internal/rbac"
	"github.com/clubspace/clubspace/internal/shared"
)

// sniffLen is how much of an upload is read to detect its content type.
const sniffLen = 3072

// RepositoryPort defines data access methods for file metadata.
type RepositoryPort interface {
	List(ctx context.Context, filter ListFilter) ([]File, int, error)
	Get(ctx context.Context, id string) (File, error)
	Insert(ctx context.Context, f File) (string, error)
	Delete(ctx context.Context, id string) error
}

// Authorizer checks scoped permissions.
type Authorizer interface {
	Check(ctx context.Context, p rbac.Principal, name string, scope rbac.Scope) error
}

// Membership answers club membership questions.
type Membership interface {
	IsMember(ctx context.Context, clubID, userID string) (bool, error)
}

// Config tunes upload and download behaviour.
type Config struct {
	MaxBytes   int64
	PresignTTL time.Duration
}

// Service handles file uploads and downloads.
type Service struct {
	repo    RepositoryPort
	store   Storage
	authz   Authorizer
	members Membership
	cfg     Config
	logger  *slog.Logger
}

// NewService builds Service instance.
func NewService(repo RepositoryPort, store Storage, authz Authorizer, members Membership, cfg Config, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.MaxBytes <= 0 {
		cfg.MaxBytes = 20 << 20
	}
	if cfg.PresignTTL <= 0 {
		cfg.PresignTTL = 15 * time.Minute
	}
	return &Service{repo: repo, store: store, authz: authz, members: members, cfg: cfg, logger: logger}
}

// MaxBytes is the largest accepted upload.
func (s *Service) MaxBytes() int64 { return s.cfg.MaxBytes }

// List returns a page of file metadata.
func (s *Service) List(ctx context.Context, filter ListFilter) ([]File, shared.Pagination, error) {
	items, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, shared.Pagination{}, err
	}
	return items, filter.Pagination(total), nil
}

// Get returns metadata for a file the actor may see.
func (s *Service) Get(ctx context.Context, actor rbac.Principal, id string) (File, error) {
	f, err := s.repo.Get(ctx, id)
	if errors.Is(err, shared.ErrNotFound) {
		return File{}, ErrNotFound
	}
	if err != nil {
		return File{}, err
	}
	if err := s.canRead(ctx, actor, f); err != nil {
		return File{}, err
	}
	return f, nil
}

// Upload stores the content and records its metadata. Club uploads need
// UPLOAD_FILE in the club, personal uploads need it globally.
func (s *Service) Upload(ctx context.Context, actor rbac.Principal, in UploadInput) (File, error) {
	scope := rbac.GlobalScope()
	if in.ClubID != "" {
		if _, err := uuid.Parse(in.ClubID); err != nil {
			return File{}, httpx.Invalid("club_id must be a valid uuid")
		}
		scope = rbac.ClubScope(in.ClubID)
	}
	if err := s.authz.Check(ctx, actor, shared.PermUploadFile, scope); err != nil {
		return File{}, err
	}
	name := cleanName(in.Name)
	if name == "" {
		return File{}, httpx.Invalid("file name is required")
	}
	if in.Size <= 0 {
		return File{}, ErrEmptyUpload
	}
	if in.Size > s.cfg.MaxBytes {
		return File{}, ErrTooLarge
	}

	head := make([]byte, sniffLen)
	n, err := io.ReadFull(in.Content, head)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		return File{}, fmt.Errorf("files: read upload: %w", err)
	}
	head = head[:n]
	contentType := mimetype.Detect(head).String()
	body := io.MultiReader(bytes.NewReader(head), in.Content)

	f := File{
		ClubID:      in.ClubID,
		OwnerID:     actor.GetID(),
		Name:        name,
		ContentType: contentType,
		Size:        in.Size,
		ObjectKey:   objectKey(in.ClubID, actor.GetID(), name),
	}
	if err := s.store.Put(ctx, f.ObjectKey, body, f.Size, f.ContentType); err != nil {
		return File{}, err
	}
	id, err := s.repo.Insert(ctx, f)
	if err != nil {
		if delErr := s.store.Delete(ctx, f.ObjectKey); delErr != nil {
			s.logger.Warn("remove orphaned object", slog.String("key", f.ObjectKey), slog.Any("error", delErr))
		}
		if db.IsForeignKeyViolation(err) {
			return File{}, fmt.Errorf("club %w", httpx.ErrNotFound)
		}
		return File{}, err
	}
	f.ID = id
	s.logger.Info("file uploaded", slog.String("file_id", id), slog.String("club_id", in.ClubID), slog.Int64("size", f.Size))
	return s.Get(ctx, actor, id)
}

// DownloadURL returns a presigned URL for a file the actor may see.
func (s *Service) DownloadURL(ctx context.Context, actor rbac.Principal, id string) (string, error) {
	f, err := s.Get(ctx, actor, id)
	if err != nil {
		return "", err
	}
	return s.store.PresignGet(ctx, f.ObjectKey, f.Name, s.cfg.PresignTTL)
}

// Delete removes a file. The owner may always delete; others need
// DELETE_FILE in the file's club, or globally for personal files.
func (s *Service) Delete(ctx context.Context, actor rbac.Principal, id string) error {
	f, err := s.repo.Get(ctx, id)
	if errors.Is(err, shared.ErrNotFound) {
		return ErrNotFound
	}
	if err != nil {
		return err
	}
	if f.OwnerID != actor.GetID() {
		scope := rbac.GlobalScope()
		if f.ClubID != "" {
			scope = rbac.ClubScope(f.ClubID)
		}
		if err := s.authz.Check(ctx, actor, shared.PermDeleteFile, scope); err != nil {
			return err
		}
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		return err
	}
	if err := s.store.Delete(ctx, f.ObjectKey); err != nil {
		s.logger.Warn("delete object", slog.String("key", f.ObjectKey), slog.Any("error", err))
	}
	return nil
}

// canRead allows admins, the owner, and members of the file's club.
func (s *Service) canRead(ctx context.Context, actor rbac.Principal, f File) error {
	if actor.GetRole() == rbac.RoleAdmin || f.OwnerID == actor.GetID() {
		return nil
	}
	if f.ClubID == "" {
		return ErrNotFound
	}
	ok, err := s.members.IsMember(ctx, f.ClubID, actor.GetID())
	if err != nil {
		return err
	}
	if !ok {
		return httpx.ErrForbidden
	}
	return nil
}

func objectKey(clubID, ownerID, name string) string {
	if clubID != "" {
		return path.Join("clubs", clubID, uuid.NewString(), name)
	}
	return path.Join("users", ownerID, uuid.NewString(), name)
}

// cleanName strips directories and control characters from a client file name.
func cleanName(name string) string {
	name = strings.ReplaceAll(name, "\\", "/")
	name = path.Base(strings.TrimSpace(name))
	if name == "." || name == "/" {
		return ""
	}
	name = strings.Map(func(r rune) rune {
		if r < 0x20 || r == 0x7f {
			return -1
		}
		return r
	}, name)
	if len(name) > 255 {
		name = name[:255]
	}
	return name
}
