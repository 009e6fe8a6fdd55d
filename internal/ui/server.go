package ui

import (
	"context"
	"errors"
	"html/template"
	"io/fs"
	"log/slog"
	"net/http"
	"strconv"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/mark-c-hall/movie-catalog/internal/client"
	"github.com/mark-c-hall/movie-catalog/internal/config"
	"github.com/mark-c-hall/movie-catalog/internal/middleware"
	"github.com/mark-c-hall/movie-catalog/internal/models"
)

const sessionCookie = "catalog_session"

const titleRequiredMessage = "Title is required"

type Server struct {
	api       API
	sessions  *Sessions
	templates *template.Template
	cfg       config.UIConfig
	logger    *slog.Logger
	failures  metric.Int64Counter
	mux       *http.ServeMux
}

// NewServer builds the frontend. assets must hold templates/*.html and
// static/.
func NewServer(api API, assets fs.FS, cfg config.UIConfig, logger *slog.Logger) (*Server, error) {
	tmpl, err := parseTemplates(assets)
	if err != nil {
		return nil, err
	}
	static, err := fs.Sub(assets, "static")
	if err != nil {
		return nil, err
	}
	failures, err := otel.Meter("github.com/mark-c-hall/movie-catalog/internal/ui").Int64Counter(
		"ui.failures",
		metric.WithDescription("Frontend operations that the API rejected or could not serve."),
	)
	if err != nil {
		return nil, err
	}

	s := &Server{
		api:       api,
		sessions:  NewSessions(api, cfg.SessionTTL),
		templates: tmpl,
		cfg:       cfg,
		logger:    logger,
		failures:  failures,
		mux:       http.NewServeMux(),
	}

	s.mux.HandleFunc("GET /{$}", s.index)
	s.mux.HandleFunc("POST /ui/add", s.startAdd)
	s.mux.HandleFunc("POST /ui/edit/{id}", s.startEdit)
	s.mux.HandleFunc("POST /ui/cancel", s.cancel)
	s.mux.HandleFunc("POST /ui/form", s.submitForm)
	s.mux.HandleFunc("POST /ui/delete/{id}", s.deleteMovie)
	s.mux.HandleFunc("POST /ui/delete-all", s.deleteAll)
	s.mux.Handle("GET /static/", http.StripPrefix("/static/", http.FileServerFS(static)))

	return s, nil
}

// ServeHTTP tags the request context with the browser's address so the API
// calls made for it are rate limited per browser.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := client.WithForwardedFor(r.Context(), middleware.ClientIP(r))
	s.mux.ServeHTTP(w, r.WithContext(ctx))
}

// Close unmounts every session.
func (s *Server) Close() {
	s.sessions.Close()
}

// session returns the caller's session, creating and loading a fresh one
// when the cookie is missing or stale. The session comes back locked.
func (s *Server) session(w http.ResponseWriter, r *http.Request) (*Session, bool) {
	if c, err := r.Cookie(sessionCookie); err == nil {
		if sess, ok := s.sessions.Get(c.Value); ok {
			sess.mu.Lock()
			// The sweeper may have expired it while we waited for the lock.
			if !sess.View.Unmounted() {
				return sess, false
			}
			sess.mu.Unlock()
		}
	}

	sess := s.sessions.Create()
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookie,
		Value:    sess.ID,
		Path:     "/",
		HttpOnly: true,
		Secure:   s.cfg.SecureCookie,
		SameSite: http.SameSiteLaxMode,
	})
	sess.mu.Lock()
	s.check(r.Context(), sess.View.Load(r.Context()))
	return sess, true
}

func (s *Server) index(w http.ResponseWriter, r *http.Request) {
	sess, fresh := s.session(w, r)
	defer sess.mu.Unlock()

	if !fresh && r.URL.Query().Get("reload") == "1" {
		s.check(r.Context(), sess.View.Load(r.Context()))
	}
	s.render(w, r, http.StatusOK, pageFor(sess))
}

func (s *Server) startAdd(w http.ResponseWriter, r *http.Request) {
	sess, _ := s.session(w, r)
	defer sess.mu.Unlock()

	sess.View.StartAdd()
	s.openForm(r.Context(), sess, NewForm(s.api, nil, "Add a movie"))
	redirectHome(w, r)
}

func (s *Server) startEdit(w http.ResponseWriter, r *http.Request) {
	sess, _ := s.session(w, r)
	defer sess.mu.Unlock()

	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		http.Error(w, "invalid movie id", http.StatusBadRequest)
		return
	}
	if movie, ok := sess.View.StartEdit(id); ok {
		s.openForm(r.Context(), sess, NewForm(s.api, &movie, "Save Changes"))
	}
	redirectHome(w, r)
}

func (s *Server) cancel(w http.ResponseWriter, r *http.Request) {
	sess, _ := s.session(w, r)
	defer sess.mu.Unlock()

	sess.View.Cancel()
	sess.Form, sess.FormErr = nil, ""
	redirectHome(w, r)
}

func (s *Server) submitForm(w http.ResponseWriter, r *http.Request) {
	sess, _ := s.session(w, r)
	defer sess.mu.Unlock()

	form := sess.Form
	if form == nil || sess.View.State().Mode == ModeIdle {
		redirectHome(w, r)
		return
	}
	if err := r.ParseForm(); err != nil {
		http.Error(w, "invalid form", http.StatusBadRequest)
		return
	}
	syncForm(form, r)
	sess.FormErr = ""

	ctx := r.Context()
	switch r.PostForm.Get("action") {
	case "add-actor":
		if _, err := form.AddActor(ctx); err != nil {
			s.check(ctx, sess.View.Fail("add actor", err))
		}
	default:
		sub, err := form.Submit()
		if errors.Is(err, models.ErrTitleRequired) {
			sess.FormErr = titleRequiredMessage
			s.render(w, r, http.StatusUnprocessableEntity, pageFor(sess))
			return
		}
		if sub.ID != 0 {
			err = sess.View.Update(ctx, sub)
		} else {
			err = sess.View.Add(ctx, sub)
		}
		if s.check(ctx, err) {
			form.Reset()
			sess.Form = nil
		}
	}
	redirectHome(w, r)
}

func (s *Server) deleteMovie(w http.ResponseWriter, r *http.Request) {
	sess, _ := s.session(w, r)
	defer sess.mu.Unlock()

	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		http.Error(w, "invalid movie id", http.StatusBadRequest)
		return
	}
	s.check(r.Context(), sess.View.Delete(r.Context(), id))
	redirectHome(w, r)
}

func (s *Server) deleteAll(w http.ResponseWriter, r *http.Request) {
	sess, _ := s.session(w, r)
	defer sess.mu.Unlock()

	s.check(r.Context(), sess.View.DeleteAll(r.Context()))
	redirectHome(w, r)
}

func (s *Server) openForm(ctx context.Context, sess *Session, form *Form) {
	sess.Form, sess.FormErr = form, ""
	if err := form.Mount(ctx); err != nil {
		s.check(ctx, sess.View.Fail("load actors", err))
	}
}

// check logs and counts err, reporting whether the operation succeeded.
func (s *Server) check(ctx context.Context, err error) bool {
	if err == nil {
		return true
	}
	op := "unknown"
	var failure *Failure
	if errors.As(err, &failure) {
		op = failure.Op
	}
	s.failures.Add(ctx, 1, metric.WithAttributes(attribute.String("op", op)))
	s.logger.WarnContext(ctx, "frontend operation failed", "op", op, "error", err)
	return false
}

// syncForm copies the posted field values into form.
func syncForm(form *Form, r *http.Request) {
	form.Title = r.PostForm.Get("title")
	form.Year = r.PostForm.Get("year")
	form.Director = r.PostForm.Get("director")
	form.Description = r.PostForm.Get("description")
	form.NewActor = r.PostForm.Get("new_actor")

	ids := make([]int64, 0, len(r.PostForm["actor_ids"]))
	for _, v := range r.PostForm["actor_ids"] {
		if id, err := strconv.ParseInt(v, 10, 64); err == nil {
			ids = append(ids, id)
		}
	}
	form.SetSelected(ids)
}

func redirectHome(w http.ResponseWriter, r *http.Request) {
	http.Redirect(w, r, "/", http.StatusSeeOther)
}
