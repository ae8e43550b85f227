package web

import (
	"embed"
	"html/template"
	"io"
	"time"

	"github.com/timada-org/todobase/internal/app"
)

//go:embed templates/*.html
var templates embed.FS

var page = template.Must(template.New("index.html").Funcs(template.FuncMap{
	"date": func(t time.Time) string {
		if t.IsZero() {
			return ""
		}
		return t.Local().Format("2006-01-02 15:04")
	},
}).ParseFS(templates, "templates/index.html"))

func render(w io.Writer, state app.State) error {
	return page.Execute(w, state)
}
