package ui

import (
	"context"
	"maps"
	"slices"
	"strings"

	"github.com/mark-c-hall/movie-catalog/internal/models"
)

// Submission is what a Form hands to the View. ID is zero when adding.
type Submission struct {
	ID          int64
	Title       string
	Year        string
	Director    string
	Description string
	ActorIDs    []int64
	Actors      []models.Actor
}

func (s Submission) Input() models.MovieInput {
	return models.MovieInput{
		Title:       s.Title,
		Year:        s.Year,
		Director:    s.Director,
		Description: s.Description,
		ActorIDs:    slices.Clone(s.ActorIDs),
	}
}

// Form is the add/edit movie form. It is not safe for concurrent use; the
// session serializes access.
type Form struct {
	api    API
	Label  string
	editID int64

	Title       string
	Year        string
	Director    string
	Description string
	NewActor    string

	roster   []models.Actor
	selected map[int64]bool
}

// NewForm returns a blank form, or one pre-filled from initial when it is
// not nil.
func NewForm(api API, initial *models.Movie, label string) *Form {
	f := &Form{
		api:      api,
		Label:    label,
		roster:   []models.Actor{},
		selected: map[int64]bool{},
	}
	if initial != nil {
		f.editID = initial.ID
		f.Title = initial.Title
		f.Year = initial.Year
		f.Director = initial.Director
		f.Description = initial.Description
		f.SetSelected(initial.ActorIDs)
	}
	return f
}

// Mount fetches the actor roster.
func (f *Form) Mount(ctx context.Context) error {
	actors, err := f.api.ListActors(ctx)
	if err != nil {
		return err
	}
	f.roster = actors
	return nil
}

// EditID is the id of the movie being edited, or zero.
func (f *Form) EditID() int64 {
	return f.editID
}

func (f *Form) Roster() []models.Actor {
	return slices.Clone(f.roster)
}

func (f *Form) Toggle(id int64) {
	if f.selected[id] {
		delete(f.selected, id)
		return
	}
	f.selected[id] = true
}

func (f *Form) SetSelected(ids []int64) {
	f.selected = make(map[int64]bool, len(ids))
	for _, id := range ids {
		f.selected[id] = true
	}
}

func (f *Form) Selected(id int64) bool {
	return f.selected[id]
}

// SelectedIDs returns the selection in ascending order.
func (f *Form) SelectedIDs() []int64 {
	return slices.Sorted(maps.Keys(f.selected))
}

// AddActor creates the actor named in NewActor, adds it to the roster and
// selects it. An empty name does nothing.
func (f *Form) AddActor(ctx context.Context) (*models.Actor, error) {
	name := strings.TrimSpace(f.NewActor)
	if name == "" {
		return nil, nil
	}

	actor, err := f.api.CreateActor(ctx, name)
	if err != nil {
		return nil, err
	}
	f.roster = append(f.roster, *actor)
	f.selected[actor.ID] = true
	f.NewActor = ""
	return actor, nil
}

// Submit validates the form and returns its contents. It never touches the
// network and leaves the fields in place until Reset.
func (f *Form) Submit() (Submission, error) {
	in := models.MovieInput{Title: f.Title}
	if err := in.Validate(); err != nil {
		return Submission{}, err
	}

	ids := f.SelectedIDs()
	s := Submission{
		ID:          f.editID,
		Title:       f.Title,
		Year:        f.Year,
		Director:    f.Director,
		Description: f.Description,
		ActorIDs:    ids,
		Actors:      models.ResolveActors(f.roster, ids),
	}

	return s, nil
}

// Reset clears the text fields and the selection once a submission has been
// saved.
func (f *Form) Reset() {
	f.Title, f.Year, f.Director, f.Description = "", "", "", ""
	f.selected = map[int64]bool{}
}
