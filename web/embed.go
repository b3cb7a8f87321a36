// Package web embeds the server-rendered templates and static assets.
package web

import "embed"

// Templates holds layouts, partials and pages.
//
//go:embed templates
var Templates embed.FS

// Static holds stylesheets and other assets served under /static/.
//
//go:embed static
var Static embed.FS

// TemplateGlobs lists the template groups in parse order. Pages reference
// layouts and partials, so those come first.
var TemplateGlobs = []string{
	"templates/layouts/*.html",
	"templates/partials/*.html",
	"templates/pages/*.html",
}
