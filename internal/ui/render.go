package ui

import (
	"bytes"
	"fmt"
	"html/template"
	"io/fs"
	"net/http"

	"github.com/mark-c-hall/movie-catalog/internal/models"
)

type page struct {
	Movies []row
	Mode   string
	Form   *formData

	// Failure is shown above the list when no control owns it.
	Failure          *Failure
	DeleteAllFailure *Failure
}

type row struct {
	models.Movie
	Failure *Failure
}

type formData struct {
	Label       string
	Error       string
	Failure     *Failure
	Title       string
	Year        string
	Director    string
	Description string
	NewActor    string
	Actors      []actorOption
}

type actorOption struct {
	ID       int64
	Name     string
	Selected bool
}

func parseTemplates(fsys fs.FS) (*template.Template, error) {
	tmpl, err := template.New("").
		Funcs(template.FuncMap{"actorNames": models.ActorNames}).
		ParseFS(fsys, "templates/*.html")
	if err != nil {
		return nil, fmt.Errorf("parse templates: %w", err)
	}
	return tmpl, nil
}

// pageFor snapshots sess. The caller holds sess.mu.
func pageFor(sess *Session) page {
	st := sess.View.State()
	p := page{
		Movies: make([]row, len(st.Movies)),
		Mode:   st.Mode.String(),
	}
	for i, m := range st.Movies {
		p.Movies[i] = row{Movie: m}
	}
	if f := sess.Form; f != nil && st.Mode != ModeIdle {
		fd := &formData{
			Label:       f.Label,
			Error:       sess.FormErr,
			Title:       f.Title,
			Year:        f.Year,
			Director:    f.Director,
			Description: f.Description,
			NewActor:    f.NewActor,
		}
		for _, a := range f.Roster() {
			fd.Actors = append(fd.Actors, actorOption{ID: a.ID, Name: a.Name, Selected: f.Selected(a.ID)})
		}
		p.Form = fd
	}
	if st.Failure != nil {
		placeFailure(&p, st.Failure)
	}
	return p
}

// placeFailure attaches f to the control whose operation failed.
func placeFailure(p *page, f *Failure) {
	switch f.Op {
	case "add", "update", "add actor", "load actors":
		if p.Form != nil {
			p.Form.Failure = f
			return
		}
	case "delete":
		for i := range p.Movies {
			if p.Movies[i].ID == f.MovieID {
				p.Movies[i].Failure = f
				return
			}
		}
	case "delete-all":
		p.DeleteAllFailure = f
		return
	}
	p.Failure = f
}

// render executes into a buffer first so a template error never leaves a
// half-written page.
func (s *Server) render(w http.ResponseWriter, r *http.Request, status int, p page) {
	var buf bytes.Buffer
	if err := s.templates.ExecuteTemplate(&buf, "index", p); err != nil {
		s.logger.ErrorContext(r.Context(), "render page", "error", err)
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_, _ = buf.WriteTo(w)
}
