package handler

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/mark-c-hall/movie-catalog/internal/config"
	"github.com/mark-c-hall/movie-catalog/internal/models"
	"github.com/mark-c-hall/movie-catalog/internal/store/sqlite"
)

func testServerConfig() config.ServerConfig {
	return config.ServerConfig{
		RequestTimeout:  5 * time.Second,
		CORSOrigin:      "*",
		RateLimitPerSec: 1000,
		RateBurst:       1000,
		RateLimitIdle:   time.Minute,
	}
}

func newTestServer(t *testing.T, store Store) *httptest.Server {
	t.Helper()
	logger := slog.New(slog.NewJSONHandler(io.Discard, nil))
	h, err := NewHandler(store, nil, nil, testServerConfig(), logger)
	if err != nil {
		t.Fatalf("NewHandler failed: %v", err)
	}
	server := httptest.NewServer(h)
	t.Cleanup(func() {
		server.Close()
		h.Close()
	})
	return server
}

func newSQLiteServer(t *testing.T) *httptest.Server {
	t.Helper()
	s, err := sqlite.Open(context.Background(), filepath.Join(t.TempDir(), "movies.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return newTestServer(t, s)
}

func doJSON(t *testing.T, method, url, body string, out any) int {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req, err := http.NewRequest(method, url, reader)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, url, err)
	}
	defer resp.Body.Close()
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			t.Fatalf("decode %s %s: %v", method, url, err)
		}
	}
	return resp.StatusCode
}

func TestMovieLifecycle(t *testing.T) {
	srv := newSQLiteServer(t)

	var pitt, norton models.Actor
	if code := doJSON(t, http.MethodPost, srv.URL+"/actors", `{"name": "Brad Pitt"}`, &pitt); code != http.StatusCreated {
		t.Fatalf("create actor: status %d", code)
	}
	doJSON(t, http.MethodPost, srv.URL+"/actors", `{"name": "Edward Norton"}`, &norton)

	var created models.Movie
	body := `{"title": "Fight Club", "year": "1999", "director": "David Fincher", "actor_ids": [2, 1, 2]}`
	if code := doJSON(t, http.MethodPost, srv.URL+"/movies", body, &created); code != http.StatusCreated {
		t.Fatalf("create movie: status %d", code)
	}
	if created.ID == 0 || created.Title != "Fight Club" {
		t.Errorf("unexpected created movie: %+v", created)
	}
	if !slices.Equal(created.ActorIDs, []int64{pitt.ID, norton.ID}) {
		t.Errorf("expected normalised actor ids, got %v", created.ActorIDs)
	}

	var list []models.Movie
	if code := doJSON(t, http.MethodGet, srv.URL+"/movies", "", &list); code != http.StatusOK {
		t.Fatalf("list movies: status %d", code)
	}
	if len(list) != 1 || len(list[0].Actors) != 2 || list[0].Actors[0].Name != "Brad Pitt" {
		t.Errorf("unexpected list: %+v", list)
	}

	var updated models.Movie
	url := srv.URL + "/movies/" + itoa(created.ID)
	if code := doJSON(t, http.MethodPut, url, `{"title": "Fight Club", "year": "1999", "actor_ids": [1]}`, &updated); code != http.StatusOK {
		t.Fatalf("update movie: status %d", code)
	}
	if !slices.Equal(updated.ActorIDs, []int64{pitt.ID}) || updated.Director != "" {
		t.Errorf("expected full replacement, got %+v", updated)
	}

	var got models.Movie
	if code := doJSON(t, http.MethodGet, url, "", &got); code != http.StatusOK {
		t.Fatalf("get movie: status %d", code)
	}
	if got.ID != created.ID || len(got.Actors) != 1 {
		t.Errorf("unexpected movie: %+v", got)
	}

	var msg message
	if code := doJSON(t, http.MethodDelete, url, "", &msg); code != http.StatusOK {
		t.Fatalf("delete movie: status %d", code)
	}
	if want := "Movie with id=" + itoa(created.ID) + " deleted successfully"; msg.Message != want {
		t.Errorf("expected %q, got %q", want, msg.Message)
	}

	var errMsg errorMessage
	if code := doJSON(t, http.MethodGet, url, "", &errMsg); code != http.StatusNotFound {
		t.Errorf("expected 404 after delete, got %d", code)
	}
	if errMsg.Error == "" {
		t.Error("expected error message in body")
	}
}

func TestDeleteAllMovies(t *testing.T) {
	srv := newSQLiteServer(t)

	for _, title := range []string{"Alien", "Aliens"} {
		doJSON(t, http.MethodPost, srv.URL+"/movies", `{"title": "`+title+`"}`, nil)
	}

	var msg message
	if code := doJSON(t, http.MethodDelete, srv.URL+"/movies", "", &msg); code != http.StatusOK {
		t.Fatalf("delete all: status %d", code)
	}
	if msg.Message != "All movies deleted successfully" {
		t.Errorf("unexpected message: %q", msg.Message)
	}

	var list []models.Movie
	doJSON(t, http.MethodGet, srv.URL+"/movies", "", &list)
	if list == nil || len(list) != 0 {
		t.Errorf("expected empty array, got %v", list)
	}
}

func TestValidationErrors(t *testing.T) {
	srv := newSQLiteServer(t)

	tests := []struct {
		name   string
		method string
		path   string
		body   string
		want   int
	}{
		{"empty title", http.MethodPost, "/movies", `{"title": ""}`, http.StatusBadRequest},
		{"malformed body", http.MethodPost, "/movies", `{"title":`, http.StatusBadRequest},
		{"empty actor name", http.MethodPost, "/actors", `{"name": ""}`, http.StatusBadRequest},
		{"bad id", http.MethodGet, "/movies/abc", "", http.StatusBadRequest},
		{"update missing", http.MethodPut, "/movies/99", `{"title": "Ghost"}`, http.StatusNotFound},
		{"delete missing", http.MethodDelete, "/movies/99", "", http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if code := doJSON(t, tt.method, srv.URL+tt.path, tt.body, nil); code != tt.want {
				t.Errorf("expected %d, got %d", tt.want, code)
			}
		})
	}
}

type failingStore struct {
	Store
}

func (failingStore) ListMovies(context.Context) ([]models.Movie, error) {
	return nil, errors.New("disk on fire")
}

func (failingStore) Ping(context.Context) error {
	return errors.New("disk on fire")
}

func TestStoreFailureIsHidden(t *testing.T) {
	srv := newTestServer(t, failingStore{})

	var errMsg errorMessage
	if code := doJSON(t, http.MethodGet, srv.URL+"/movies", "", &errMsg); code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", code)
	}
	if strings.Contains(errMsg.Error, "disk") {
		t.Errorf("internal error leaked: %q", errMsg.Error)
	}

	if code := doJSON(t, http.MethodGet, srv.URL+"/healthz", "", nil); code != http.StatusServiceUnavailable {
		t.Errorf("expected 503 from healthz, got %d", code)
	}
}

func TestSiteAndMetricsMounts(t *testing.T) {
	site := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, "site")
	})
	metrics := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, "metrics")
	})
	logger := slog.New(slog.NewJSONHandler(io.Discard, nil))
	h, err := NewHandler(failingStore{}, site, metrics, testServerConfig(), logger)
	if err != nil {
		t.Fatalf("NewHandler failed: %v", err)
	}
	defer h.Close()

	for path, want := range map[string]string{"/": "site", "/ui/anything": "site", "/metrics": "metrics"} {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		if rec.Body.String() != want {
			t.Errorf("%s: expected %q, got %q", path, want, rec.Body.String())
		}
	}
}

func itoa(id int64) string {
	return strconv.FormatInt(id, 10)
}
