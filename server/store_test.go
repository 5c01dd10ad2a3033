package server

import (
	"errors"
	"testing"
	"time"

	"github.com/grovelabs/stepflow"
)

func storedRecord(t *testing.T, id string) GraphRecord {
	t.Helper()
	g := stepflow.NewGraph(id, "Test "+id)
	if err := g.AddStep("a", stepflow.NoopHandler(), ""); err != nil {
		t.Fatalf("AddStep: %v", err)
	}
	now := time.Now().UTC()
	return GraphRecord{ID: id, Name: g.Name(), Compiled: g, CreatedAt: now, UpdatedAt: now}
}

func TestGraphStore_CreateGetDelete(t *testing.T) {
	store := NewGraphStore()

	if err := store.Create(storedRecord(t, "g1")); err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if err := store.Create(storedRecord(t, "g1")); !errors.Is(err, ErrGraphExists) {
		t.Errorf("duplicate Create() error = %v, want %v", err, ErrGraphExists)
	}

	rec, ok := store.Get("g1")
	if !ok {
		t.Fatal("Get() should find g1")
	}
	if rec.Name != "Test g1" {
		t.Errorf("Name = %q, want Test g1", rec.Name)
	}

	if err := store.Delete("g1"); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if err := store.Delete("g1"); !errors.Is(err, ErrGraphNotFound) {
		t.Errorf("second Delete() error = %v, want %v", err, ErrGraphNotFound)
	}
	if _, ok := store.Get("g1"); ok {
		t.Error("Get() should miss after delete")
	}
}

func TestGraphStore_ListInsertionOrder(t *testing.T) {
	store := NewGraphStore()
	for _, id := range []string{"zeta", "alpha", "mid"} {
		if err := store.Create(storedRecord(t, id)); err != nil {
			t.Fatalf("Create(%s) error = %v", id, err)
		}
	}

	listed := store.List()
	want := []string{"zeta", "alpha", "mid"}
	if len(listed) != len(want) {
		t.Fatalf("List() returned %d records, want %d", len(listed), len(want))
	}
	for i, id := range want {
		if listed[i].ID != id {
			t.Errorf("List()[%d].ID = %q, want %q", i, listed[i].ID, id)
		}
	}
}

func TestScheduleStore_CRUD(t *testing.T) {
	store := NewScheduleStore()
	now := time.Now().UTC()

	sched := Schedule{ID: "s1", GraphID: "g1", Cron: "* * * * *", Enabled: true, CreatedAt: now}
	if err := store.Create(sched); err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if err := store.Create(sched); !errors.Is(err, ErrScheduleExists) {
		t.Errorf("duplicate Create() error = %v, want %v", err, ErrScheduleExists)
	}

	if _, ok := store.Get("other-graph", "s1"); ok {
		t.Error("Get() should not cross graph boundaries")
	}

	sched.Cron = "*/5 * * * *"
	if err := store.Update(sched); err != nil {
		t.Fatalf("Update() error = %v", err)
	}
	got, ok := store.Get("g1", "s1")
	if !ok || got.Cron != "*/5 * * * *" {
		t.Errorf("Get() after update = %+v, want updated cron", got)
	}

	if err := store.Update(Schedule{ID: "ghost"}); !errors.Is(err, ErrScheduleNotFound) {
		t.Errorf("Update(unknown) error = %v, want %v", err, ErrScheduleNotFound)
	}

	if err := store.Delete("g1", "s1"); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if err := store.Delete("g1", "s1"); !errors.Is(err, ErrScheduleNotFound) {
		t.Errorf("second Delete() error = %v, want %v", err, ErrScheduleNotFound)
	}
}

func TestScheduleStore_DeleteByGraph(t *testing.T) {
	store := NewScheduleStore()
	for _, sched := range []Schedule{
		{ID: "s1", GraphID: "g1", Cron: "* * * * *"},
		{ID: "s2", GraphID: "g1", Cron: "* * * * *"},
		{ID: "s3", GraphID: "g2", Cron: "* * * * *"},
	} {
		if err := store.Create(sched); err != nil {
			t.Fatalf("Create(%s) error = %v", sched.ID, err)
		}
	}

	store.DeleteByGraph("g1")

	if got := store.List("g1"); len(got) != 0 {
		t.Errorf("List(g1) = %v, want empty", got)
	}
	if got := store.List("g2"); len(got) != 1 {
		t.Errorf("List(g2) = %v, want the surviving schedule", got)
	}
}

func TestScheduleStore_ListDue(t *testing.T) {
	store := NewScheduleStore()
	now := time.Date(2026, 8, 20, 12, 0, 0, 0, time.UTC)

	for _, sched := range []Schedule{
		{ID: "later", GraphID: "g", Cron: "* * * * *", Enabled: true, NextRunAt: now.Add(time.Hour)},
		{ID: "due-b", GraphID: "g", Cron: "* * * * *", Enabled: true, NextRunAt: now.Add(-2 * time.Minute)},
		{ID: "due-a", GraphID: "g", Cron: "* * * * *", Enabled: true, NextRunAt: now.Add(-5 * time.Minute)},
		{ID: "disabled", GraphID: "g", Cron: "* * * * *", Enabled: false, NextRunAt: now.Add(-time.Hour)},
	} {
		if err := store.Create(sched); err != nil {
			t.Fatalf("Create(%s) error = %v", sched.ID, err)
		}
	}

	due := store.ListDue(now, 0)
	if len(due) != 2 {
		t.Fatalf("ListDue() returned %d schedules, want 2", len(due))
	}
	if due[0].ID != "due-a" || due[1].ID != "due-b" {
		t.Errorf("ListDue() order = [%s %s], want [due-a due-b]", due[0].ID, due[1].ID)
	}

	if capped := store.ListDue(now, 1); len(capped) != 1 {
		t.Errorf("ListDue(limit 1) returned %d schedules, want 1", len(capped))
	}
}
