package files

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/clubspace/clubspace/internal/platform/httpx"
	"github.com/clubspace/clubspace/internal/rbac"
	"github.com/clubspace/clubspace/internal/shared"
)

// multipartMemory is the part of a form kept in memory before spilling to disk.
const multipartMemory = 8 << 20

// Handler exposes the file API.
type Handler struct {
	logger  *slog.Logger
	service *Service
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, service: service}
}

// MountAPI registers /api/files routes.
func (h *Handler) MountAPI(r chi.Router) {
	r.Get("/", h.list)
	r.Post("/", h.upload)
	r.Get("/{fileID}", h.get)
	r.Get("/{fileID}/download", h.download)
	r.Delete("/{fileID}", h.delete)
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := ListFilter{ListParams: shared.ParseListParams(q), ClubID: q.Get("club_id")}
	p, _ := rbac.PrincipalFromContext(r.Context())
	switch {
	case filter.ClubID != "":
		if err := h.service.canRead(r.Context(), p, File{ClubID: filter.ClubID}); err != nil {
			httpx.RespondError(w, h.logger, err)
			return
		}
	case p.GetRole() != rbac.RoleAdmin || q.Get("mine") == "true":
		filter.OwnerID = p.GetID()
	}
	items, page, err := h.service.List(r.Context(), filter)
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	if items == nil {
		items = []File{}
	}
	httpx.Page(w, items, page)
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	p, _ := rbac.PrincipalFromContext(r.Context())
	f, err := h.service.Get(r.Context(), p, chi.URLParam(r, "fileID"))
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	httpx.OK(w, http.StatusOK, f)
}

func (h *Handler) upload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.service.MaxBytes()+1<<20)
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			httpx.Fail(w, http.StatusRequestEntityTooLarge, "file is too large")
			return
		}
		httpx.Fail(w, http.StatusBadRequest, "invalid multipart form")
		return
	}
	defer func() {
		if r.MultipartForm != nil {
			_ = r.MultipartForm.RemoveAll()
		}
	}()
	file, header, err := r.FormFile("file")
	if err != nil {
		httpx.RespondError(w, h.logger, httpx.Invalid("file is required"))
		return
	}
	defer file.Close()

	p, _ := rbac.PrincipalFromContext(r.Context())
	f, err := h.service.Upload(r.Context(), p, UploadInput{
		ClubID:  r.FormValue("club_id"),
		Name:    header.Filename,
		Size:    header.Size,
		Content: file,
	})
	if errors.Is(err, ErrTooLarge) {
		httpx.Fail(w, http.StatusRequestEntityTooLarge, "file is too large")
		return
	}
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	httpx.OK(w, http.StatusCreated, f)
}

func (h *Handler) download(w http.ResponseWriter, r *http.Request) {
	p, _ := rbac.PrincipalFromContext(r.Context())
	url, err := h.service.DownloadURL(r.Context(), p, chi.URLParam(r, "fileID"))
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	http.Redirect(w, r, url, http.StatusFound)
}

func (h *Handler) delete(w http.ResponseWriter, r *http.Request) {
	p, _ := rbac.PrincipalFromContext(r.Context())
	if err := h.service.Delete(r.Context(), p, chi.URLParam(r, "fileID")); err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
