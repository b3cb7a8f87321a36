package auth

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/clubspace/clubspace/internal/platform/httpx"
	"github.com/clubspace/clubspace/internal/shared"
	"github.com/clubspace/clubspace/internal/view"
)

// Handler wires HTTP endpoints for authentication flows.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	templates *view.Engine
	sessions  *shared.SessionManager
	csrf      *shared.CSRFManager
	validator *validator.Validate
}

// NewHandler constructs a Handler instance.
func NewHandler(logger *slog.Logger, service *Service, templates *view.Engine, sessions *shared.SessionManager, csrf *shared.CSRFManager) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		logger:    logger,
		service:   service,
		templates: templates,
		sessions:  sessions,
		csrf:      csrf,
		validator: validator.New(),
	}
}

// MountRoutes registers the login and logout pages.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/login", h.showLogin)
	r.Post("/login", h.handleLogin)
	r.Post("/logout", h.handleLogout)
}

// MountAPI registers the JSON session endpoints.
func (h *Handler) MountAPI(r chi.Router) {
	r.Get("/session", h.getSession)
	r.Post("/session", h.createSession)
	r.Delete("/session", h.deleteSession)
}

type loginForm struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=6"`
	Next     string `json:"-"`
}

type loginPageData struct {
	Form   loginForm
	Errors map[string]string
}

func (h *Handler) showLogin(w http.ResponseWriter, r *http.Request) {
	if _, ok := FromContext(r.Context()); ok {
		http.Redirect(w, r, "/", http.StatusSeeOther)
		return
	}
	h.renderLogin(w, r, loginPageData{Form: loginForm{Next: r.URL.Query().Get("next")}}, http.StatusOK)
}

func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}
	form := loginForm{
		Email:    strings.TrimSpace(r.PostFormValue("email")),
		Password: r.PostFormValue("password"),
		Next:     r.PostFormValue("next"),
	}
	errs := make(map[string]string)
	if err := h.validator.Struct(form); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			for _, fieldErr := range verrs {
				errs[fieldErr.Field()] = fieldErr.Error()
			}
		}
	}
	if len(errs) > 0 {
		h.renderLogin(w, r, loginPageData{Form: form, Errors: errs}, http.StatusBadRequest)
		return
	}

	principal, tokens, err := h.service.Login(r.Context(), form.Email, form.Password)
	if err != nil {
		if !errors.Is(err, ErrInvalidCredentials) {
			h.logger.Error("login", slog.Any("error", err))
			errs["general"] = "Sign-in is temporarily unavailable, please try again"
		} else {
			errs["general"] = "Invalid email or password"
		}
		form.Password = ""
		h.renderLogin(w, r, loginPageData{Form: form, Errors: errs}, http.StatusBadRequest)
		return
	}

	if sess := shared.SessionFromContext(r.Context()); sess != nil {
		h.sessions.Renew(sess)
		h.csrf.Rotate(sess)
		sess.SetUser(principal.UserID)
		sess.SetTokens(tokens)
		sess.AddFlash(shared.FlashMessage{Kind: "success", Message: "Welcome back, " + principal.ViewUser().Name})
	} else {
		h.logger.Error("session missing during login")
	}
	http.Redirect(w, r, safeNext(form.Next), http.StatusSeeOther)
}

func (h *Handler) handleLogout(w http.ResponseWriter, r *http.Request) {
	sess := shared.SessionFromContext(r.Context())
	if sess != nil {
		h.service.Logout(r.Context(), sess.User(), sess.Tokens().AccessToken)
		h.sessions.Destroy(sess)
	}
	http.Redirect(w, r, "/welcome", http.StatusSeeOther)
}

type sessionResponse struct {
	User         *Principal `json:"user"`
	AccessToken  string     `json:"access_token,omitempty"`
	RefreshToken string     `json:"refresh_token,omitempty"`
	ExpiresAt    *time.Time `json:"expires_at,omitempty"`
}

func (h *Handler) getSession(w http.ResponseWriter, r *http.Request) {
	p, ok := FromContext(r.Context())
	if !ok {
		httpx.Fail(w, http.StatusUnauthorized, httpx.MsgUnauthorized)
		return
	}
	httpx.OK(w, http.StatusOK, sessionResponse{User: p})
}

// createSession exchanges credentials for tokens. Clients send the access
// token back as a bearer token.
func (h *Handler) createSession(w http.ResponseWriter, r *http.Request) {
	var form loginForm
	if err := httpx.DecodeJSON(r, &form); err != nil {
		httpx.Fail(w, http.StatusBadRequest, "invalid request body")
		return
	}
	form.Email = strings.TrimSpace(form.Email)
	if err := httpx.Validate(h.validator, form); err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	principal, tokens, err := h.service.Login(r.Context(), form.Email, form.Password)
	if err != nil {
		if errors.Is(err, ErrInvalidCredentials) {
			httpx.Fail(w, http.StatusUnauthorized, "invalid email or password")
			return
		}
		httpx.RespondError(w, h.logger, err)
		return
	}
	resp := sessionResponse{User: principal, AccessToken: tokens.AccessToken, RefreshToken: tokens.RefreshToken}
	if !tokens.ExpiresAt.IsZero() {
		resp.ExpiresAt = &tokens.ExpiresAt
	}
	httpx.OK(w, http.StatusCreated, resp)
}

func (h *Handler) deleteSession(w http.ResponseWriter, r *http.Request) {
	p, ok := FromContext(r.Context())
	if !ok {
		httpx.Fail(w, http.StatusUnauthorized, httpx.MsgUnauthorized)
		return
	}
	token, _ := credentials(r, shared.SessionFromContext(r.Context()))
	h.service.Logout(r.Context(), p.UserID, token.AccessToken)
	if sess := shared.SessionFromContext(r.Context()); sess != nil && sess.User() == p.UserID {
		h.sessions.Destroy(sess)
	}
	httpx.OK(w, http.StatusOK, map[string]bool{"signed_out": true})
}

func (h *Handler) renderLogin(w http.ResponseWriter, r *http.Request, data loginPageData, status int) {
	sess := shared.SessionFromContext(r.Context())
	csrfToken, _ := h.csrf.EnsureToken(r.Context(), sess)
	var flash *shared.FlashMessage
	if sess != nil {
		flash = sess.PopFlash()
	}
	viewData := view.TemplateData{
		Title:       "Sign in",
		CSRFToken:   csrfToken,
		Flash:       flash,
		CurrentPath: r.URL.Path,
		Data:        data,
	}
	if err := h.templates.RenderStatus(w, "pages/login.html", viewData, status); err != nil {
		h.logger.Error("render login", slog.Any("error", err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
	}
}

// safeNext only follows local absolute paths.
func safeNext(next string) string {
	if next == "" || !strings.HasPrefix(next, "/") || strings.HasPrefix(next, "//") || strings.HasPrefix(next, "/\\") {
		return "/"
	}
	return next
}

// ShowLoginForTest exposes the GET handler for tests.
func (h *Handler) ShowLoginForTest(w http.ResponseWriter, r *http.Request) {
	h.showLogin(w, r)
}

// HandleLoginForTest exposes the POST handler for tests.
func (h *Handler) HandleLoginForTest(w http.ResponseWriter, r *http.Request) {
	h.handleLogin(w, r)
}
