package registry

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/xfeldman/arcbox/internal/archive"
	"github.com/xfeldman/arcbox/internal/report"
)

func containerFactory(name, dir, ext string) (*archive.Container, error) {
	return archive.New(name, dir, ext)
}

func newTestRegistry(t *testing.T) *Registry[*archive.Container] {
	t.Helper()
	r, err := New("zip", containerFactory)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return r
}

func TestNewRequiresFactory(t *testing.T) {
	if _, err := New[*archive.Container]("zip", nil); !errors.Is(err, ErrInvalidFactory) {
		t.Fatalf("err = %v, want ErrInvalidFactory", err)
	}
}

func TestNewDefaultExtension(t *testing.T) {
	r, err := New("", containerFactory)
	if err != nil {
		t.Fatal(err)
	}
	if r.Extension() != DefaultExtension {
		t.Errorf("Extension = %q, want %q", r.Extension(), DefaultExtension)
	}
}

func TestCreateFresh(t *testing.T) {
	r := newTestRegistry(t)
	dir := t.TempDir()

	ok, err := r.Create("x", dir, nil)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if !ok {
		t.Fatal("Create returned false for a fresh name")
	}
	if !r.Has("x") || r.Len() != 1 {
		t.Errorf("Has = %v, Len = %d; want true, 1", r.Has("x"), r.Len())
	}
	if _, err := os.Stat(filepath.Join(dir, "x.zip")); err != nil {
		t.Errorf("container file missing: %v", err)
	}
}

func TestCreateTwiceWithoutConfirmOverwrites(t *testing.T) {
	r := newTestRegistry(t)
	dir := t.TempDir()

	if ok, err := r.Create("x", dir, nil); !ok || err != nil {
		t.Fatalf("first Create = %v, %v", ok, err)
	}
	c, _ := r.Lookup("x")
	c.WriteText("a.txt", "old")

	ok, err := r.Create("x", dir, nil)
	if err != nil || !ok {
		t.Fatalf("second Create = %v, %v; want true, nil", ok, err)
	}
	if r.Len() != 1 {
		t.Errorf("Len = %d, want 1", r.Len())
	}

	c, _ = r.Lookup("x")
	names, _ := c.Namelist()
	if len(names) != 0 {
		t.Errorf("Namelist after overwrite = %v, want empty", names)
	}
	if _, err := os.Stat(filepath.Join(dir, ".x.zip.replaced")); !os.IsNotExist(err) {
		t.Error("backup file left behind")
	}
}

func TestCreateConfirmDeclined(t *testing.T) {
	r := newTestRegistry(t)
	dir := t.TempDir()

	r.Create("x", dir, nil)
	c, _ := r.Lookup("x")
	if err := c.WriteText("greeting.txt", "hello"); err != nil {
		t.Fatal(err)
	}

	var seen Descriptor
	calls := 0
	ok, err := r.Create("x", dir, func(name string, existing Descriptor) bool {
		calls++
		seen = existing
		return false
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if ok {
		t.Error("Create returned true after confirm declined")
	}
	if calls != 1 {
		t.Errorf("confirm calls = %d, want 1", calls)
	}
	if seen.Name != "x" || seen.Path != filepath.Join(dir, "x.zip") {
		t.Errorf("descriptor = %+v", seen)
	}
	if diff := cmp.Diff([]string{"greeting.txt"}, seen.Members); diff != "" {
		t.Errorf("descriptor members mismatch (-want +got):\n%s", diff)
	}
	if seen.Size == 0 || seen.ModTime.IsZero() {
		t.Errorf("descriptor missing size/modtime: %+v", seen)
	}

	got, err := c.ReadText("greeting.txt")
	if err != nil || got != "hello" {
		t.Errorf("content after declined overwrite = %q, %v; want hello", got, err)
	}
	same, _ := r.Lookup("x")
	if same != c {
		t.Error("registry entry replaced after declined overwrite")
	}
}

func TestCreateConfirmAccepted(t *testing.T) {
	r := newTestRegistry(t)
	dir := t.TempDir()

	r.Create("x", dir, nil)
	c, _ := r.Lookup("x")
	c.WriteText("greeting.txt", "hello")

	ok, err := r.Create("x", dir, func(string, Descriptor) bool { return true })
	if err != nil || !ok {
		t.Fatalf("Create = %v, %v; want true, nil", ok, err)
	}
	fresh, _ := r.Lookup("x")
	names, _ := fresh.Namelist()
	if len(names) != 0 {
		t.Errorf("Namelist = %v, want empty", names)
	}
}

func TestCreateUnregisteredFileOnDisk(t *testing.T) {
	dir := t.TempDir()
	pre, err := archive.New("disk", dir, "zip")
	if err != nil {
		t.Fatal(err)
	}
	pre.WriteText("a.txt", "a")

	r := newTestRegistry(t)
	ok, err := r.Create("disk", dir, func(string, Descriptor) bool { return false })
	if err != nil || ok {
		t.Fatalf("Create = %v, %v; want false, nil", ok, err)
	}
	if r.Has("disk") {
		t.Error("declined name should not be registered")
	}
}

type brokenArchive struct{}

func (brokenArchive) Namelist() ([]string, error) { return nil, nil }
func (brokenArchive) Path() string                { return "" }

func TestOverwriteRestoresOnFactoryError(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "x.zip")
	os.WriteFile(path, []byte("precious"), 0644)

	boom := errors.New("boom")
	r, err := New("zip", func(name, dir, ext string) (brokenArchive, error) {
		return brokenArchive{}, boom
	})
	if err != nil {
		t.Fatal(err)
	}

	ok, err := r.Create("x", dir, nil)
	if !errors.Is(err, boom) || ok {
		t.Fatalf("Create = %v, %v; want false, boom", ok, err)
	}
	data, err := os.ReadFile(path)
	if err != nil || string(data) != "precious" {
		t.Errorf("original = %q, %v; want restored", data, err)
	}
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	pre, _ := archive.New("box", dir, "zip")
	pre.WriteText("greeting.txt", "hello")

	r := newTestRegistry(t)
	c, err := r.Load("box", dir)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	got, err := c.ReadText("greeting.txt")
	if err != nil || got != "hello" {
		t.Errorf("ReadText = %q, %v; want hello", got, err)
	}
	if !r.Has("box") {
		t.Error("loaded container not registered")
	}

	if _, err := r.Load("missing", dir); !errors.Is(err, ErrContainerNotFound) {
		t.Errorf("Load missing: err = %v, want ErrContainerNotFound", err)
	}
}

func TestLookupErrors(t *testing.T) {
	r := newTestRegistry(t)
	r.Create("x", t.TempDir(), nil)

	if _, err := r.Get(42); !errors.Is(err, ErrKeyType) {
		t.Errorf("Get(42) err = %v, want ErrKeyType", err)
	}
	if _, err := r.Get("missing"); !errors.Is(err, ErrKeyNotFound) {
		t.Errorf("Get(missing) err = %v, want ErrKeyNotFound", err)
	}
	if _, err := r.Lookup("missing"); !errors.Is(err, ErrKeyNotFound) {
		t.Errorf("Lookup(missing) err = %v, want ErrKeyNotFound", err)
	}
	c, err := r.Get("x")
	if err != nil || c == nil {
		t.Errorf("Get(x) = %v, %v", c, err)
	}
}

func TestIterationOrder(t *testing.T) {
	r := newTestRegistry(t)
	dir := t.TempDir()
	for _, name := range []string{"c", "a", "b"} {
		r.Create(name, dir, nil)
	}
	// Re-creating keeps the original position.
	r.Create("c", dir, nil)

	want := []string{"c", "a", "b"}
	for range 2 {
		var got []string
		for name, c := range r.All() {
			got = append(got, name)
			if filepath.Base(c.Path()) != name+".zip" {
				t.Errorf("container for %s has path %s", name, c.Path())
			}
		}
		if diff := cmp.Diff(want, got); diff != "" {
			t.Errorf("iteration order mismatch (-want +got):\n%s", diff)
		}
	}
	if diff := cmp.Diff(want, r.Names()); diff != "" {
		t.Errorf("Names mismatch (-want +got):\n%s", diff)
	}
}

func TestIterationSnapshot(t *testing.T) {
	r := newTestRegistry(t)
	dir := t.TempDir()
	r.Create("a", dir, nil)
	r.Create("b", dir, nil)

	var got []string
	for name := range r.All() {
		got = append(got, name)
		r.Close("b")
	}
	if diff := cmp.Diff([]string{"a", "b"}, got); diff != "" {
		t.Errorf("snapshot mismatch (-want +got):\n%s", diff)
	}
}

func TestIterationEarlyStop(t *testing.T) {
	r := newTestRegistry(t)
	dir := t.TempDir()
	r.Create("a", dir, nil)
	r.Create("b", dir, nil)

	n := 0
	for range r.All() {
		n++
		break
	}
	if n != 1 {
		t.Errorf("iterations = %d, want 1", n)
	}
}

func TestCloseAndCloseAll(t *testing.T) {
	r := newTestRegistry(t)
	dir := t.TempDir()
	r.Create("x", dir, nil)
	r.Create("y", dir, nil)

	r.Close("x")
	if r.Has("x") {
		t.Error("x still registered after Close")
	}
	if _, err := os.Stat(filepath.Join(dir, "x.zip")); err != nil {
		t.Error("Close must not delete the container file")
	}
	r.Close("never-registered")

	r.CloseAll()
	if r.Len() != 0 {
		t.Errorf("Len after CloseAll = %d, want 0", r.Len())
	}
	if len(r.Names()) != 0 {
		t.Errorf("Names after CloseAll = %v, want empty", r.Names())
	}
}

func TestCreateConfirmUnreadableExisting(t *testing.T) {
	rec := &report.Recorder{}
	r, err := New("zip", containerFactory, WithReporter(rec))
	if err != nil {
		t.Fatal(err)
	}
	dir := t.TempDir()
	path := filepath.Join(dir, "x.zip")
	if err := os.WriteFile(path, []byte("not a zip"), 0644); err != nil {
		t.Fatal(err)
	}

	var seen Descriptor
	calls := 0
	ok, err := r.Create("x", dir, func(name string, existing Descriptor) bool {
		calls++
		seen = existing
		return false
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if ok || calls != 1 {
		t.Fatalf("Create = %v with %d confirm calls; want false, 1", ok, calls)
	}
	if seen.Path != path || seen.Size != int64(len("not a zip")) || seen.Members != nil {
		t.Errorf("descriptor = %+v", seen)
	}
	if len(rec.Warnings()) != 1 {
		t.Errorf("warnings = %d, want 1", len(rec.Warnings()))
	}
	if data, _ := os.ReadFile(path); string(data) != "not a zip" {
		t.Errorf("declined file changed: %q", data)
	}

	ok, err = r.Create("x", dir, func(string, Descriptor) bool { return true })
	if err != nil || !ok {
		t.Fatalf("Create accepted = %v, %v; want true, nil", ok, err)
	}
	c, _ := r.Lookup("x")
	if names, err := c.Namelist(); err != nil || len(names) != 0 {
		t.Errorf("Namelist = %v, %v; want empty", names, err)
	}
}

func TestLoadWithExtension(t *testing.T) {
	r := newTestRegistry(t)
	dir := t.TempDir()
	pre, err := archive.New("old", dir, "box")
	if err != nil {
		t.Fatal(err)
	}
	if err := pre.WriteText("a.txt", "A"); err != nil {
		t.Fatal(err)
	}

	if _, err := r.Load("old", dir); !errors.Is(err, ErrContainerNotFound) {
		t.Errorf("Load with registry extension err = %v, want ErrContainerNotFound", err)
	}
	c, err := r.LoadWithExtension("old", dir, "box")
	if err != nil {
		t.Fatalf("LoadWithExtension: %v", err)
	}
	if c.Filename() != "old.box" || !c.Has("a.txt") {
		t.Errorf("loaded %s with members %v", c.Filename(), c.Members())
	}
	if _, err := os.Stat(filepath.Join(dir, "old.zip")); !os.IsNotExist(err) {
		t.Error("LoadWithExtension created a file under the registry extension")
	}
}
