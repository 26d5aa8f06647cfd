// Package web holds the embedded page templates and stylesheet.
package web

import (
	"embed"
	"html/template"
	"io/fs"
	"time"

	"blogview/models"
)

//go:embed templates/*.html
var templateFS embed.FS

//go:embed static
var staticFS embed.FS

// Static is the stylesheet directory served under /static.
func Static() fs.FS {
	sub, err := fs.Sub(staticFS, "static")
	if err != nil {
		panic(err)
	}
	return sub
}

// Parse builds the template set. format renders post timestamps.
func Parse(format func(time.Time) string) (*template.Template, error) {
	funcs := template.FuncMap{
		"formatTimestamp": func(ts models.Timestamp) string {
			return format(ts.Time)
		},
	}
	return template.New("").Funcs(funcs).ParseFS(templateFS, "templates/*.html")
}
