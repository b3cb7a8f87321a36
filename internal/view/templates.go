package view

import (
	"bytes"
	"fmt"
	"html/template"
	"net/http"
	"strings"
	"time"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/clubspace/clubspace/internal/shared"
	"github.com/clubspace/clubspace/web"
)

// Engine renders HTML templates.
type Engine struct {
	templates *template.Template
}

// CurrentUser is the signed-in user as seen by templates.
type CurrentUser struct {
	ID          string
	Name        string
	Email       string
	Role        string
	Permissions []string
}

// Can reports whether the user holds perm. Admin holds everything.
func (u *CurrentUser) Can(perm string) bool {
	if u == nil {
		return false
	}
	if u.Role == "admin" {
		return true
	}
	for _, p := range u.Permissions {
		if strings.EqualFold(p, perm) {
			return true
		}
	}
	return false
}

// HasRole reports whether the user has one of roles.
func (u *CurrentUser) HasRole(roles ...string) bool {
	if u == nil {
		return false
	}
	for _, r := range roles {
		if u.Role == r {
			return true
		}
	}
	return false
}

// TemplateData contains values shared across templates.
type TemplateData struct {
	Title       string
	CSRFToken   string
	Flash       *shared.FlashMessage
	CurrentPath string
	User        *CurrentUser
	Data        any
}

var titleCase = cases.Title(language.English)

// NewEngine parses the embedded templates.
func NewEngine() (*Engine, error) {
	funcMap := template.FuncMap{
		"formatDate": func(t time.Time) string {
			if t.IsZero() {
				return ""
			}
			return t.Format("02 Jan 2006 15:04")
		},
		"roleLabel": RoleLabel,
		"can": func(u *CurrentUser, perm string) bool {
			return u.Can(perm)
		},
		"count": func(m map[string]int, key string) int {
			return m[key]
		},
		"orZero": func(v any) any {
			if v == nil {
				return 0
			}
			return v
		},
		"active": func(current, prefix string) bool {
			if prefix == "/" {
				return current == "/"
			}
			return strings.HasPrefix(current, prefix)
		},
	}
	tpl, err := template.New("root").Funcs(funcMap).ParseFS(web.Templates, web.TemplateGlobs...)
	if err != nil {
		return nil, err
	}
	return &Engine{templates: tpl}, nil
}

// Render executes a named template with TemplateData. Output is buffered so
// a failing template never leaves a half-written page.
func (e *Engine) Render(w http.ResponseWriter, name string, data TemplateData) error {
	return e.RenderStatus(w, name, data, http.StatusOK)
}

// RenderStatus is Render with an explicit status code.
func (e *Engine) RenderStatus(w http.ResponseWriter, name string, data TemplateData, status int) error {
	if e == nil {
		return fmt.Errorf("template engine not initialised")
	}
	var buf bytes.Buffer
	if err := e.templates.ExecuteTemplate(&buf, name, data); err != nil {
		return err
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_, err := buf.WriteTo(w)
	return err
}

// RoleLabel turns a role value such as club_leader into "Club Leader".
func RoleLabel(role string) string {
	return titleCase.String(strings.ReplaceAll(role, "_", " "))
}
