package catalog

import (
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/xfeldman/arcbox/internal/report"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func TestSaveAndGetContainer(t *testing.T) {
	db := openTestDB(t)

	c := &Container{Name: "box", Dir: "/work", Ext: "zip", CreatedAt: time.Now().Truncate(time.Second)}
	if err := db.SaveContainer(c); err != nil {
		t.Fatal(err)
	}

	got, err := db.GetContainer("box")
	if err != nil {
		t.Fatal(err)
	}
	if got == nil {
		t.Fatal("expected container, got nil")
	}
	if got.Dir != "/work" {
		t.Errorf("Dir = %q, want %q", got.Dir, "/work")
	}
	if got.Ext != "zip" {
		t.Errorf("Ext = %q, want %q", got.Ext, "zip")
	}
	if !got.CreatedAt.Equal(c.CreatedAt) {
		t.Errorf("CreatedAt = %v, want %v", got.CreatedAt, c.CreatedAt)
	}
}

func TestGetContainer_NotFound(t *testing.T) {
	db := openTestDB(t)

	got, err := db.GetContainer("nonexistent")
	if err != nil {
		t.Fatal(err)
	}
	if got != nil {
		t.Errorf("expected nil for nonexistent container, got %+v", got)
	}
}

func TestListContainersKeepsOrder(t *testing.T) {
	db := openTestDB(t)

	for _, name := range []string{"c", "a", "b"} {
		if err := db.SaveContainer(&Container{Name: name, Dir: "/work", Ext: "zip"}); err != nil {
			t.Fatal(err)
		}
	}
	// Upsert must not move "c" to the end.
	if err := db.SaveContainer(&Container{Name: "c", Dir: "/elsewhere", Ext: "zip"}); err != nil {
		t.Fatal(err)
	}

	list, err := db.ListContainers()
	if err != nil {
		t.Fatal(err)
	}
	var names []string
	for _, c := range list {
		names = append(names, c.Name)
	}
	if diff := cmp.Diff([]string{"c", "a", "b"}, names); diff != "" {
		t.Errorf("order mismatch (-want +got):\n%s", diff)
	}
	if list[0].Dir != "/elsewhere" {
		t.Errorf("Dir = %q, want updated /elsewhere", list[0].Dir)
	}
}

func TestDeleteContainer(t *testing.T) {
	db := openTestDB(t)

	db.SaveContainer(&Container{Name: "x", Dir: "/w", Ext: "zip"})
	db.SaveContainer(&Container{Name: "y", Dir: "/w", Ext: "zip"})

	if err := db.DeleteContainer("x"); err != nil {
		t.Fatal(err)
	}
	if err := db.DeleteContainer("x"); !errors.Is(err, ErrNotFound) {
		t.Errorf("second DeleteContainer err = %v, want ErrNotFound", err)
	}
	if err := db.DeleteAllContainers(); err != nil {
		t.Fatal(err)
	}
	list, _ := db.ListContainers()
	if len(list) != 0 {
		t.Errorf("ListContainers = %d entries, want 0", len(list))
	}
}

func TestEvents(t *testing.T) {
	db := openTestDB(t)

	base := time.Now()
	ops := []string{report.OpCreate, report.OpAdd, report.OpAppend, report.OpRemove}
	for i, op := range ops {
		err := db.RecordEvent(report.Event{
			Time:      base.Add(time.Duration(i) * time.Millisecond),
			Container: "box.zip",
			Op:        op,
			Member:    "a.txt",
			Size:      int64(i),
		})
		if err != nil {
			t.Fatal(err)
		}
	}
	db.RecordEvent(report.Event{Container: "other.zip", Op: report.OpCreate})

	all, err := db.Events("box.zip", 0)
	if err != nil {
		t.Fatal(err)
	}
	var got []string
	for _, e := range all {
		got = append(got, e.Op)
		if e.ID == "" {
			t.Error("event without id")
		}
	}
	if diff := cmp.Diff(ops, got); diff != "" {
		t.Errorf("events mismatch (-want +got):\n%s", diff)
	}

	last, err := db.Events("box.zip", 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(last) != 2 || last[0].Op != report.OpAppend || last[1].Op != report.OpRemove {
		t.Errorf("last 2 events = %+v", last)
	}
}

func TestPruneEvents(t *testing.T) {
	db := openTestDB(t)

	db.RecordEvent(report.Event{Time: time.Now().Add(-48 * time.Hour), Container: "box.zip", Op: report.OpAdd})
	db.RecordEvent(report.Event{Time: time.Now(), Container: "box.zip", Op: report.OpAdd})

	n, err := db.PruneEvents(time.Now().Add(-24 * time.Hour))
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Errorf("pruned = %d, want 1", n)
	}
}

func TestObserver(t *testing.T) {
	db := openTestDB(t)
	fallback := &report.Recorder{}
	obs := db.Observer(fallback)

	obs.Warn("archive: member not found", "name", "x")
	obs.Event(report.Event{Container: "box.zip", Op: report.OpAdd, Member: "x", Size: 1})

	if len(fallback.Warnings()) != 1 {
		t.Errorf("fallback warnings = %d, want 1", len(fallback.Warnings()))
	}
	events, _ := db.Events("box.zip", 0)
	if len(events) != 1 || events[0].Member != "x" {
		t.Errorf("events = %+v", events)
	}
	if len(fallback.Events()) != 1 {
		t.Errorf("fallback events = %d, want 1", len(fallback.Events()))
	}

	db.Close()
	obs.Event(report.Event{Container: "box.zip", Op: report.OpAdd})
	if len(fallback.Warnings()) != 2 {
		t.Errorf("record failure not reported to fallback")
	}
	if len(fallback.Events()) != 1 {
		t.Errorf("unrecorded event forwarded to fallback")
	}
}
