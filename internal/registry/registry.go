// Package registry keeps a set of named archive containers, creating them
// on demand and asking before it overwrites one that already exists on disk.
package registry

import (
	"errors"
	"fmt"
	"io/fs"
	"iter"
	"os"
	"path/filepath"
	"slices"
	"time"

	"github.com/xfeldman/arcbox/internal/filestore"
	"github.com/xfeldman/arcbox/internal/report"
)

var (
	// ErrInvalidFactory is returned by New when no factory is supplied.
	ErrInvalidFactory = errors.New("registry: container factory is required")

	// ErrKeyType is returned by Get for keys that are not container names.
	ErrKeyType = errors.New("registry: key must be a container name")

	// ErrKeyNotFound is returned when a name is not registered.
	ErrKeyNotFound = errors.New("registry: container not registered")

	// ErrContainerNotFound is returned by Load when the container file does
	// not exist.
	ErrContainerNotFound = errors.New("registry: container file not found")
)

// DefaultExtension is used when New is given an empty extension.
const DefaultExtension = "zip"

// Archive is what the registry needs from a container.
type Archive interface {
	Namelist() ([]string, error)
	Path() string
}

// Factory opens or creates the container name.ext inside dir.
type Factory[C Archive] func(name, dir, ext string) (C, error)

// Descriptor describes a container that already exists on disk. It is
// handed to a ConfirmFunc before the container is overwritten.
type Descriptor struct {
	Name    string
	Path    string
	Size    int64
	ModTime time.Time
	Members []string
}

// ConfirmFunc decides whether an existing container may be overwritten.
type ConfirmFunc func(name string, existing Descriptor) bool

// Registry maps names to containers, preserving registration order.
// A Registry is not safe for concurrent use.
type Registry[C Archive] struct {
	ext      string
	factory  Factory[C]
	reporter report.Reporter
	order    []string
	items    map[string]C
}

// Option configures a Registry.
type Option func(*settings)

type settings struct {
	reporter report.Reporter
}

// WithReporter sets where warnings go. Defaults to report.Nop.
func WithReporter(rep report.Reporter) Option {
	return func(s *settings) {
		if rep != nil {
			s.reporter = rep
		}
	}
}

// New creates an empty registry whose new containers use ext.
func New[C Archive](ext string, factory Factory[C], opts ...Option) (*Registry[C], error) {
	if factory == nil {
		return nil, ErrInvalidFactory
	}
	if ext == "" {
		ext = DefaultExtension
	}
	set := settings{reporter: report.Nop{}}
	for _, opt := range opts {
		opt(&set)
	}
	return &Registry[C]{
		ext:      ext,
		factory:  factory,
		reporter: set.reporter,
		items:    make(map[string]C),
	}, nil
}

// Extension returns the extension used for new containers.
func (r *Registry[C]) Extension() string {
	return r.ext
}

func (r *Registry[C]) path(name, dir string) string {
	return pathFor(name, dir, r.ext)
}

func pathFor(name, dir, ext string) string {
	return filepath.Join(dir, name+"."+ext)
}

// Create registers a fresh container called name in dir and reports whether
// it did so. If the file already exists it is overwritten with an empty
// container, but only once confirm (when non-nil) agrees; a refusal leaves
// the file and the registry untouched and returns false.
func (r *Registry[C]) Create(name, dir string, confirm ConfirmFunc) (bool, error) {
	if err := filestore.ValidateName(name); err != nil {
		return false, err
	}
	path := r.path(name, dir)

	info, err := os.Stat(path)
	if errors.Is(err, fs.ErrNotExist) {
		c, err := r.factory(name, dir, r.ext)
		if err != nil {
			return false, fmt.Errorf("create %s: %w", name, err)
		}
		r.register(name, c)
		return true, nil
	}
	if err != nil {
		return false, fmt.Errorf("stat %s: %w", path, err)
	}

	if confirm != nil {
		desc := r.describe(name, dir, info)
		if !confirm(name, desc) {
			return false, nil
		}
	}

	c, err := r.overwrite(name, dir, path)
	if err != nil {
		return false, err
	}
	r.register(name, c)
	return true, nil
}

// overwrite moves the existing file aside, lets the factory build an empty
// container in its place, and puts the old file back if that fails.
func (r *Registry[C]) overwrite(name, dir, path string) (C, error) {
	var zero C
	backup := filepath.Join(dir, "."+filepath.Base(path)+".replaced")
	if err := os.Rename(path, backup); err != nil {
		return zero, fmt.Errorf("move aside %s: %w", path, err)
	}

	c, err := r.factory(name, dir, r.ext)
	if err != nil {
		if rerr := os.Rename(backup, path); rerr != nil {
			return zero, fmt.Errorf("overwrite %s: %w (restore failed: %v)", name, err, rerr)
		}
		return zero, fmt.Errorf("overwrite %s: %w", name, err)
	}
	os.Remove(backup)
	return c, nil
}

// describe builds the Descriptor for an existing file. A file the factory
// cannot open still gets described from its stat info, with nil Members.
func (r *Registry[C]) describe(name, dir string, info fs.FileInfo) Descriptor {
	desc := Descriptor{
		Name:    name,
		Path:    r.path(name, dir),
		Size:    info.Size(),
		ModTime: info.ModTime(),
	}
	existing, err := r.factory(name, dir, r.ext)
	if err != nil {
		r.reporter.Warn("registry: existing container unreadable",
			"name", name, "path", desc.Path, "error", err)
		return desc
	}
	members, err := existing.Namelist()
	if err != nil {
		r.reporter.Warn("registry: existing container unreadable",
			"name", name, "path", desc.Path, "error", err)
		return desc
	}
	desc.Members = members
	return desc
}

// Load opens the existing container name in dir and registers it.
func (r *Registry[C]) Load(name, dir string) (C, error) {
	return r.LoadWithExtension(name, dir, r.ext)
}

// LoadWithExtension is Load for a container saved under an extension other
// than the registry's own, such as one recorded before the default changed.
func (r *Registry[C]) LoadWithExtension(name, dir, ext string) (C, error) {
	var zero C
	if err := filestore.ValidateName(name); err != nil {
		return zero, err
	}
	if ext == "" {
		ext = r.ext
	}
	path := pathFor(name, dir, ext)
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return zero, fmt.Errorf("%w: %s", ErrContainerNotFound, path)
		}
		return zero, fmt.Errorf("stat %s: %w", path, err)
	}

	c, err := r.factory(name, dir, ext)
	if err != nil {
		return zero, fmt.Errorf("load %s: %w", name, err)
	}
	r.register(name, c)
	return c, nil
}

// register adds or replaces name. A replaced name keeps its position.
func (r *Registry[C]) register(name string, c C) {
	if _, ok := r.items[name]; !ok {
		r.order = append(r.order, name)
	}
	r.items[name] = c
}

// Lookup returns the container registered as name.
func (r *Registry[C]) Lookup(name string) (C, error) {
	c, ok := r.items[name]
	if !ok {
		return c, fmt.Errorf("%w: %q", ErrKeyNotFound, name)
	}
	return c, nil
}

// Get is Lookup for callers holding an untyped key, such as values decoded
// from user input. Anything other than a string is rejected with ErrKeyType.
func (r *Registry[C]) Get(key any) (C, error) {
	name, ok := key.(string)
	if !ok {
		var zero C
		return zero, fmt.Errorf("%w: got %T", ErrKeyType, key)
	}
	return r.Lookup(name)
}

// Has reports whether name is registered.
func (r *Registry[C]) Has(name string) bool {
	_, ok := r.items[name]
	return ok
}

// Len returns the number of registered containers.
func (r *Registry[C]) Len() int {
	return len(r.items)
}

// Names returns the registered names in registration order.
func (r *Registry[C]) Names() []string {
	return slices.Clone(r.order)
}

// All yields every registered container in registration order. Membership
// is captured when iteration starts; every call starts from the beginning.
func (r *Registry[C]) All() iter.Seq2[string, C] {
	return func(yield func(string, C) bool) {
		names := slices.Clone(r.order)
		items := make([]C, len(names))
		for i, name := range names {
			items[i] = r.items[name]
		}
		for i, name := range names {
			if !yield(name, items[i]) {
				return
			}
		}
	}
}

// Close forgets name. The container file is left on disk.
func (r *Registry[C]) Close(name string) {
	if _, ok := r.items[name]; !ok {
		return
	}
	delete(r.items, name)
	r.order = slices.DeleteFunc(r.order, func(n string) bool { return n == name })
}

// CloseAll forgets every container.
func (r *Registry[C]) CloseAll() {
	r.items = make(map[string]C)
	r.order = nil
}
