package files

import (
	"bytes"
	"context"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clubspace/clubspace/internal/platform/httpx"
	"github.com/clubspace/clubspace/internal/rbac"
	"github.com/clubspace/clubspace/internal/shared"
)

const (
	clubA  = "8d5c3c4e-0a52-4a0f-9a57-5b1c8f3e0a11"
	leader = "1f0e2a5b-7c3d-4e8f-9a1b-2c3d4e5f6a7b"
	member = "2a1b3c4d-5e6f-4a8b-9c0d-1e2f3a4b5c6d"
	other  = "3b2c4d5e-6f7a-4b9c-8d1e-2f3a4b5c6d7e"
)

type fakeStorage struct {
	objects map[string][]byte
	types   map[string]string
}

func newFakeStorage() *fakeStorage {
	return &fakeStorage{objects: map[string][]byte{}, types: map[string]string{}}
}

func (s *fakeStorage) Put(_ context.Context, key string, body io.Reader, _ int64, contentType string) error {
	data, err := io.ReadAll(body)
	if err != nil {
		return err
	}
	s.objects[key] = data
	s.types[key] = contentType
	return nil
}

func (s *fakeStorage) Delete(_ context.Context, key string) error {
	delete(s.objects, key)
	return nil
}

func (s *fakeStorage) PresignGet(_ context.Context, key, _ string, _ time.Duration) (string, error) {
	return "https://files.example/" + key + "?sig=1", nil
}

type stubRepo struct {
	files map[string]File
	n     int
}

func newStubRepo() *stubRepo { return &stubRepo{files: map[string]File{}} }

func (r *stubRepo) List(context.Context, ListFilter) ([]File, int, error) { return nil, 0, nil }

func (r *stubRepo) Get(_ context.Context, id string) (File, error) {
	f, ok := r.files[id]
	if !ok {
		return File{}, shared.ErrNotFound
	}
	return f, nil
}

func (r *stubRepo) Insert(_ context.Context, f File) (string, error) {
	r.n++
	f.ID = "file-" + string(rune('0'+r.n))
	r.files[f.ID] = f
	return f.ID, nil
}

func (r *stubRepo) Delete(_ context.Context, id string) error {
	delete(r.files, id)
	return nil
}

type stubAuthz map[string]bool

func (a stubAuthz) Check(_ context.Context, p rbac.Principal, name string, scope rbac.Scope) error {
	if p.GetRole() == rbac.RoleAdmin || a[p.GetID()+"|"+name+"|"+scope.ClubID] {
		return nil
	}
	return httpx.ErrForbidden
}

type stubMembers map[string]bool

func (m stubMembers) IsMember(_ context.Context, clubID, userID string) (bool, error) {
	return m[clubID+"|"+userID], nil
}

func newTestService(repo *stubRepo, store *fakeStorage) *Service {
	authz := stubAuthz{
		member + "|" + shared.PermUploadFile + "|":         true,
		member + "|" + shared.PermUploadFile + "|" + clubA: true,
		leader + "|" + shared.PermUploadFile + "|" + clubA: true,
		leader + "|" + shared.PermDeleteFile + "|" + clubA: true,
	}
	members := stubMembers{clubA + "|" + leader: true, clubA + "|" + member: true}
	return NewService(repo, store, authz, members, Config{MaxBytes: 1024}, nil)
}

var pngHeader = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR")

func TestUploadSniffsContentAndStoresObject(t *testing.T) {
	repo, store := newStubRepo(), newFakeStorage()
	svc := newTestService(repo, store)

	f, err := svc.Upload(context.Background(), rbac.Subject{ID: member, Role: rbac.RoleMember}, UploadInput{
		ClubID:  clubA,
		Name:    "../../etc/logo.png",
		Size:    int64(len(pngHeader)),
		Content: bytes.NewReader(pngHeader),
	})
	require.NoError(t, err)
	assert.Equal(t, "logo.png", f.Name)
	assert.Equal(t, "image/png", f.ContentType)
	assert.True(t, strings.HasPrefix(f.ObjectKey, "clubs/"+clubA+"/"))
	assert.Equal(t, pngHeader, store.objects[f.ObjectKey])
}

func TestUploadRules(t *testing.T) {
	svc := newTestService(newStubRepo(), newFakeStorage())
	ctx := context.Background()
	outsider := rbac.Subject{ID: other, Role: rbac.RoleMember}

	_, err := svc.Upload(ctx, outsider, UploadInput{ClubID: clubA, Name: "a.txt", Size: 1, Content: strings.NewReader("a")})
	assert.ErrorIs(t, err, httpx.ErrForbidden)

	_, err = svc.Upload(ctx, rbac.Subject{ID: member, Role: rbac.RoleMember}, UploadInput{ClubID: "nope", Name: "a.txt", Size: 1, Content: strings.NewReader("a")})
	assert.ErrorIs(t, err, httpx.ErrValidation)

	_, err = svc.Upload(ctx, rbac.Subject{ID: member, Role: rbac.RoleMember}, UploadInput{Name: "a.txt", Size: 0, Content: strings.NewReader("")})
	assert.ErrorIs(t, err, ErrEmptyUpload)

	_, err = svc.Upload(ctx, rbac.Subject{ID: member, Role: rbac.RoleMember}, UploadInput{Name: "big.bin", Size: 4096, Content: strings.NewReader("x")})
	assert.ErrorIs(t, err, ErrTooLarge)
}

func TestDownloadAndDeleteVisibility(t *testing.T) {
	repo, store := newStubRepo(), newFakeStorage()
	svc := newTestService(repo, store)
	ctx := context.Background()
	owner := rbac.Subject{ID: member, Role: rbac.RoleMember}

	personal, err := svc.Upload(ctx, owner, UploadInput{Name: "notes.txt", Size: 5, Content: strings.NewReader("hello")})
	require.NoError(t, err)
	clubFile, err := svc.Upload(ctx, owner, UploadInput{ClubID: clubA, Name: "agenda.txt", Size: 5, Content: strings.NewReader("hello")})
	require.NoError(t, err)

	_, err = svc.DownloadURL(ctx, rbac.Subject{ID: leader, Role: rbac.RoleClubLeader}, personal.ID)
	assert.ErrorIs(t, err, ErrNotFound)

	url, err := svc.DownloadURL(ctx, rbac.Subject{ID: leader, Role: rbac.RoleClubLeader}, clubFile.ID)
	require.NoError(t, err)
	assert.Contains(t, url, clubFile.ObjectKey)

	_, err = svc.DownloadURL(ctx, rbac.Subject{ID: other, Role: rbac.RoleMember}, clubFile.ID)
	assert.ErrorIs(t, err, httpx.ErrForbidden)

	assert.ErrorIs(t, svc.Delete(ctx, rbac.Subject{ID: other, Role: rbac.RoleMember}, clubFile.ID), httpx.ErrForbidden)
	require.NoError(t, svc.Delete(ctx, rbac.Subject{ID: leader, Role: rbac.RoleClubLeader}, clubFile.ID))
	assert.NotContains(t, store.objects, clubFile.ObjectKey)
	require.NoError(t, svc.Delete(ctx, owner, personal.ID))
	assert.ErrorIs(t, svc.Delete(ctx, owner, personal.ID), ErrNotFound)
}

func newTestRouter(svc *Service, p rbac.Principal) http.Handler {
	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			next.ServeHTTP(w, req.WithContext(rbac.WithPrincipal(req.Context(), p)))
		})
	})
	r.Route("/api/files", NewHandler(nil, svc).MountAPI)
	return r
}

func multipartBody(t *testing.T, clubID, name string, content []byte) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	if clubID != "" {
		require.NoError(t, mw.WriteField("club_id", clubID))
	}
	part, err := mw.CreateFormFile("file", name)
	require.NoError(t, err)
	_, err = part.Write(content)
	require.NoError(t, err)
	require.NoError(t, mw.Close())
	return &buf, mw.FormDataContentType()
}

func TestHandlerUploadAndDownload(t *testing.T) {
	repo, store := newStubRepo(), newFakeStorage()
	router := newTestRouter(newTestService(repo, store), rbac.Subject{ID: member, Role: rbac.RoleMember})

	body, contentType := multipartBody(t, clubA, "minutes.txt", []byte("meeting minutes"))
	req := httptest.NewRequest(http.MethodPost, "/api/files", body)
	req.Header.Set("Content-Type", contentType)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	assert.Contains(t, rr.Body.String(), `"name":"minutes.txt"`)
	assert.Contains(t, rr.Body.String(), `"content_type":"text/plain; charset=utf-8"`)
	assert.NotContains(t, rr.Body.String(), "object_key")

	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/files/file-1/download", nil))
	assert.Equal(t, http.StatusFound, rr.Code)
	assert.True(t, strings.HasPrefix(rr.Header().Get("Location"), "https://files.example/clubs/"))
}

func TestHandlerUploadTooLarge(t *testing.T) {
	router := newTestRouter(newTestService(newStubRepo(), newFakeStorage()), rbac.Subject{ID: member, Role: rbac.RoleMember})

	body, contentType := multipartBody(t, "", "big.bin", bytes.Repeat([]byte("x"), 2048))
	req := httptest.NewRequest(http.MethodPost, "/api/files", body)
	req.Header.Set("Content-Type", contentType)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	assert.Equal(t, http.StatusRequestEntityTooLarge, rr.Code)

	req = httptest.NewRequest(http.MethodPost, "/api/files", strings.NewReader("not multipart"))
	req.Header.Set("Content-Type", "text/plain")
	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestS3StoragePresign(t *testing.T) {
	client := s3.New(s3.Options{
		Region:       "us-east-1",
		Credentials:  credentials.NewStaticCredentialsProvider("key", "secret", ""),
		BaseEndpoint: aws.String("http://localhost:9000"),
		UsePathStyle: true,
	})
	store := NewS3StorageFromClient(client, "clubspace-files")

	url, err := store.PresignGet(context.Background(), "clubs/abc/report.pdf", "report.pdf", 5*time.Minute)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(url, "http://localhost:9000/clubspace-files/clubs/abc/report.pdf?"), url)
	assert.Contains(t, url, "X-Amz-Signature=")
	assert.Contains(t, url, "X-Amz-Expires=300")
}

func TestCleanName(t *testing.T) {
	assert.Equal(t, "report.pdf", cleanName(`C:\Users\me\report.pdf`))
	assert.Equal(t, "a.txt", cleanName("  ../a.txt "))
	assert.Equal(t, "", cleanName("   "))
	assert.Equal(t, "ab.txt", cleanName("a\x00b.txt"))
}
