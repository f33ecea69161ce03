// Package archive packs logical files into a single ZIP container.
//
// ZIP only supports appending whole entries, so anything that changes an
// existing member (append, update, remove) rewrites the container: every
// untouched entry is copied across verbatim into a temp file, the new entry
// goes last, and the temp file is renamed over the original. A container may
// hold several entries with the same name; the last one wins.
package archive

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"slices"
	"strings"

	"github.com/klauspost/compress/zip"

	"github.com/xfeldman/arcbox/internal/atomicfile"
	"github.com/xfeldman/arcbox/internal/filestore"
	"github.com/xfeldman/arcbox/internal/report"
)

var (
	// ErrMemberNotFound is returned when a logical name has no entry in the
	// container.
	ErrMemberNotFound = errors.New("member not found")

	// ErrInvalidName is returned for member names that are not a single
	// plain path element, or that collide with the container file itself.
	ErrInvalidName = filestore.ErrInvalidName
)

// Container owns one ZIP file inside a working directory and the staging
// store scoped to that directory. A Container is not safe for concurrent
// use, and two Containers must not mutate the same file at the same time.
type Container struct {
	name     string
	ext      string
	filename string
	path     string

	store   *filestore.Store
	members map[string]int // logical name -> index of its last entry

	reporter    report.Reporter
	compression Compression
	level       int
	encoding    string
	perm        os.FileMode
}

// New opens the container name.ext inside dir, creating an empty one if the
// working directory does not list it. Entries already in the file are
// indexed so they can be read back.
func New(name, dir, ext string, opts ...Option) (*Container, error) {
	if err := filestore.ValidateName(name); err != nil {
		return nil, err
	}
	if ext == "" {
		ext = DefaultExtension
	}

	c := &Container{
		name:        name,
		ext:         ext,
		filename:    name + "." + ext,
		reporter:    report.Nop{},
		compression: CompressionDeflate,
		perm:        0644,
	}
	for _, opt := range opts {
		opt(c)
	}

	store, err := filestore.New(dir,
		filestore.WithReporter(c.reporter),
		filestore.WithEncoding(c.encoding),
		filestore.WithPerm(c.perm),
	)
	if err != nil {
		return nil, err
	}
	c.store = store
	c.path = store.Path(c.filename)
	c.encoding = store.Encoding()

	names, err := store.List()
	if err != nil {
		return nil, err
	}
	if !slices.Contains(names, c.filename) {
		if err := c.create(); err != nil {
			return nil, err
		}
	}
	if err := c.reindex(); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Container) create() error {
	err := atomicfile.Replace(c.path, c.perm, func(w io.Writer) error {
		return zip.NewWriter(w).Close()
	})
	if err != nil {
		return fmt.Errorf("create %s: %w", c.filename, err)
	}
	c.emit(report.OpCreate, "", 0)
	return nil
}

// Name returns the container name without extension.
func (c *Container) Name() string { return c.name }

// Extension returns the container file extension.
func (c *Container) Extension() string { return c.ext }

// Filename returns name.ext.
func (c *Container) Filename() string { return c.filename }

// Path returns the full path of the container file.
func (c *Container) Path() string { return c.path }

// Store returns the staging store for the working directory.
func (c *Container) Store() *filestore.Store { return c.store }

// Members returns a copy of the member map: logical name to the index of
// the physical entry currently standing for it.
func (c *Container) Members() map[string]int {
	out := make(map[string]int, len(c.members))
	for k, v := range c.members {
		out[k] = v
	}
	return out
}

// Has reports whether name is a known member.
func (c *Container) Has(name string) bool {
	_, ok := c.members[name]
	return ok
}

// Namelist returns the base name of every physical entry in container
// order, duplicates included. A missing container file yields nil.
func (c *Container) Namelist() ([]string, error) {
	r, err := c.open()
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	defer r.Close()

	names := make([]string, 0, len(r.File))
	for _, f := range r.File {
		names = append(names, path.Base(f.Name))
	}
	return names, nil
}

func (c *Container) open() (*zip.ReadCloser, error) {
	r, err := zip.OpenReader(c.path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", c.filename, err)
	}
	registerDecompressors(&r.Reader)
	return r, nil
}

// reindex rebuilds the member map from the entries on disk.
func (c *Container) reindex() error {
	r, err := c.open()
	if errors.Is(err, fs.ErrNotExist) {
		c.members = make(map[string]int)
		return nil
	}
	if err != nil {
		return err
	}
	defer r.Close()
	c.index(r.File)
	return nil
}

func (c *Container) index(files []*zip.File) {
	c.members = make(map[string]int, len(files))
	for i, f := range files {
		c.members[f.Name] = i
	}
}

// rewrite replaces the container with a fresh one holding every existing
// entry for which keep returns true, in order, followed by whatever tail
// writes. The original file is only replaced once the new one is complete.
func (c *Container) rewrite(keep func(*zip.File) bool, tail func(*zip.Writer) error) error {
	err := atomicfile.Replace(c.path, c.perm, func(w io.Writer) error {
		zw := zip.NewWriter(w)
		c.registerCompressor(zw)
		if err := c.copyEntries(zw, keep); err != nil {
			return err
		}
		if tail != nil {
			if err := tail(zw); err != nil {
				return err
			}
		}
		return zw.Close()
	})
	if err != nil {
		return fmt.Errorf("rewrite %s: %w", c.filename, err)
	}
	return c.reindex()
}

func (c *Container) copyEntries(zw *zip.Writer, keep func(*zip.File) bool) error {
	r, err := c.open()
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return err
	}
	defer r.Close()

	for _, f := range r.File {
		if keep != nil && !keep(f) {
			continue
		}
		if err := zw.Copy(f); err != nil {
			return fmt.Errorf("copy entry %s: %w", f.Name, err)
		}
	}
	return nil
}

func (c *Container) writeEntry(zw *zip.Writer, name string, data []byte) error {
	hdr := &zip.FileHeader{
		Name:     name,
		Method:   c.compression.method(),
		Modified: nowFunc(),
	}
	hdr.SetMode(c.perm)
	w, err := zw.CreateHeader(hdr)
	if err != nil {
		return fmt.Errorf("create entry %s: %w", name, err)
	}
	if _, err := w.Write(data); err != nil {
		return fmt.Errorf("write entry %s: %w", name, err)
	}
	return nil
}

func (c *Container) emit(op, member string, size int64) {
	c.reporter.Event(report.Event{
		Time:      nowFunc(),
		Container: c.filename,
		Op:        op,
		Member:    member,
		Size:      size,
	})
}

func (c *Container) validateMember(name string) error {
	if err := filestore.ValidateName(name); err != nil {
		return err
	}
	if name == c.filename {
		return fmt.Errorf("%w: %q is the container itself", ErrInvalidName, name)
	}
	// Staging such a name would overwrite, then delete, a sibling container.
	if strings.HasSuffix(name, "."+c.ext) {
		return fmt.Errorf("%w: %q has the container extension", ErrInvalidName, name)
	}
	return nil
}
