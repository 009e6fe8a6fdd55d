package ui

import (
	"context"
	"errors"
	"slices"
	"testing"

	"github.com/mark-c-hall/movie-catalog/internal/models"
)

func TestForm_PrefillsFromInitial(t *testing.T) {
	api := newFakeAPI()
	pitt := api.addActor("Brad Pitt")
	norton := api.addActor("Edward Norton")
	api.addActor("Helena Bonham Carter")

	initial := models.Movie{
		ID:          4,
		Title:       "Fight Club",
		Year:        "1999",
		Director:    "David Fincher",
		Description: "Soap.",
		ActorIDs:    []int64{pitt.ID, norton.ID},
	}
	f := NewForm(api, &initial, "Save Changes")
	if err := f.Mount(context.Background()); err != nil {
		t.Fatalf("Mount failed: %v", err)
	}

	if f.Title != "Fight Club" || f.Year != "1999" || f.Director != "David Fincher" || f.Description != "Soap." {
		t.Errorf("fields not pre-filled: %+v", f)
	}
	if !f.Selected(pitt.ID) || !f.Selected(norton.ID) || f.Selected(3) {
		t.Errorf("unexpected selection %v", f.SelectedIDs())
	}
	if len(f.Roster()) != 3 {
		t.Errorf("expected roster of 3, got %d", len(f.Roster()))
	}

	sub, err := f.Submit()
	if err != nil {
		t.Fatalf("Submit failed: %v", err)
	}
	if sub.ID != 4 || sub.Input().Title != initial.Title || !slices.Equal(sub.ActorIDs, initial.ActorIDs) {
		t.Errorf("unchanged submit should reproduce the record, got %+v", sub)
	}
	if !slices.Equal(sub.Actors, []models.Actor{pitt, norton}) {
		t.Errorf("unexpected resolved actors: %+v", sub.Actors)
	}
}

func TestForm_SubmitRequiresTitle(t *testing.T) {
	api := newFakeAPI()
	f := NewForm(api, nil, "Add a movie")
	f.Year = "2010"

	for _, title := range []string{""} {
		f.Title = title
		if _, err := f.Submit(); !errors.Is(err, models.ErrTitleRequired) {
			t.Errorf("title %q: expected ErrTitleRequired, got %v", title, err)
		}
	}
	if f.Year != "2010" {
		t.Error("a blocked submit should keep the fields")
	}
	if api.count("CreateMovie") != 0 {
		t.Error("validation must not touch the network")
	}
}

func TestForm_SubmitKeepsFieldsUntilReset(t *testing.T) {
	api := newFakeAPI()
	a := api.addActor("Keanu Reeves")
	f := NewForm(api, nil, "Add a movie")
	f.Mount(context.Background())

	f.Title, f.Year, f.Director, f.Description = "The Matrix", "1999", "Wachowskis", "Red pill."
	f.Toggle(a.ID)

	sub, err := f.Submit()
	if err != nil {
		t.Fatalf("Submit failed: %v", err)
	}
	if sub.ID != 0 || sub.Title != "The Matrix" || !slices.Equal(sub.ActorIDs, []int64{a.ID}) {
		t.Errorf("unexpected submission: %+v", sub)
	}
	if f.Title != "The Matrix" || f.Year != "1999" || !f.Selected(a.ID) {
		t.Errorf("submit should keep the fields, got %+v", f)
	}

	f.Reset()
	if f.Title != "" || f.Year != "" || f.Director != "" || f.Description != "" || len(f.SelectedIDs()) != 0 {
		t.Errorf("expected cleared form, got %+v", f)
	}
}

func TestForm_Toggle(t *testing.T) {
	f := NewForm(newFakeAPI(), nil, "Add a movie")
	f.Toggle(3)
	f.Toggle(1)
	if !slices.Equal(f.SelectedIDs(), []int64{1, 3}) {
		t.Errorf("expected [1 3], got %v", f.SelectedIDs())
	}
	f.Toggle(3)
	if !slices.Equal(f.SelectedIDs(), []int64{1}) {
		t.Errorf("expected [1], got %v", f.SelectedIDs())
	}
}

func TestForm_AddActorSelectsWithoutTouchingOthers(t *testing.T) {
	api := newFakeAPI()
	pitt := api.addActor("Brad Pitt")
	api.addActor("Edward Norton")
	f := NewForm(api, nil, "Add a movie")
	f.Mount(context.Background())
	f.Toggle(pitt.ID)

	f.NewActor = "Tom Hanks"
	hanks, err := f.AddActor(context.Background())
	if err != nil {
		t.Fatalf("AddActor failed: %v", err)
	}

	roster := f.Roster()
	if roster[len(roster)-1] != *hanks || hanks.Name != "Tom Hanks" {
		t.Errorf("expected Tom Hanks appended to roster, got %+v", roster)
	}
	if !slices.Equal(f.SelectedIDs(), []int64{pitt.ID, hanks.ID}) {
		t.Errorf("unexpected selection: %v", f.SelectedIDs())
	}
	if f.NewActor != "" {
		t.Error("expected new actor name cleared")
	}
}

func TestForm_AddActorEmptyNameIsNoop(t *testing.T) {
	api := newFakeAPI()
	f := NewForm(api, nil, "Add a movie")
	f.NewActor = "  "

	actor, err := f.AddActor(context.Background())
	if actor != nil || err != nil {
		t.Errorf("expected no-op, got %v, %v", actor, err)
	}
	if api.count("CreateActor") != 0 {
		t.Error("empty name must not reach the API")
	}
}

func TestForm_AddActorFailureKeepsName(t *testing.T) {
	api := newFakeAPI()
	api.setFail("CreateActor", errors.New("backend down"))
	f := NewForm(api, nil, "Add a movie")
	f.NewActor = "Tom Hanks"

	if _, err := f.AddActor(context.Background()); err == nil {
		t.Fatal("expected error")
	}
	if f.NewActor != "Tom Hanks" || len(f.Roster()) != 0 {
		t.Errorf("failure changed the form: %+v", f)
	}
}
