package export

import (
	"bytes"
	"embed"
	"html/template"
	"strings"
	"time"
)

//go:embed templates/*.html
var templateFS embed.FS

var templates = template.Must(template.New("export").Funcs(template.FuncMap{
	"join": strings.Join,
	"formatDate": func(t time.Time) string {
		if t.IsZero() {
			return ""
		}
		return t.Format("Jan 2, 2006")
	},
	// Note content is sanitized before it is stored.
	"trustedHTML": func(s string) template.HTML {
		return template.HTML(s)
	},
	"fontSize": func(size int) int {
		if size <= 0 {
			return 16
		}
		return size
	},
}).ParseFS(templateFS, "templates/*.html"))

// RenderBoardHTML renders the board page.
func RenderBoardHTML(board Board) (string, error) {
	var buf bytes.Buffer
	if err := templates.ExecuteTemplate(&buf, "board.html", board); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// RenderNoteHTML renders the note page.
func RenderNoteHTML(note Note) (string, error) {
	var buf bytes.Buffer
	if err := templates.ExecuteTemplate(&buf, "note.html", note); err != nil {
		return "", err
	}
	return buf.String(), nil
}
