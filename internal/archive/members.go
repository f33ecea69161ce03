package archive

import (
	"fmt"
	"io"
	"time"

	"github.com/klauspost/compress/zip"

	"github.com/xfeldman/arcbox/internal/filestore"
	"github.com/xfeldman/arcbox/internal/report"
)

var nowFunc = time.Now

// Add absorbs the staged file name from the working directory as a new
// entry appended to the container. Earlier entries with the same name stay
// in the file but are shadowed. If nothing is staged under name, Add warns
// and leaves the container alone.
func (c *Container) Add(name string, opts ...SourceOption) error {
	if err := c.validateMember(name); err != nil {
		return err
	}
	if !c.store.Has(name) {
		c.reporter.Warn("archive: file not found in working directory",
			"name", name, "dir", c.store.Dir(), "container", c.filename)
		return nil
	}

	data, err := c.store.ReadBinary(name)
	if err != nil {
		return err
	}
	err = c.rewrite(nil, func(zw *zip.Writer) error {
		return c.writeEntry(zw, name, data)
	})
	if err != nil {
		return err
	}
	c.emit(report.OpAdd, name, int64(len(data)))
	return c.dropSource(name, opts)
}

// WriteText stages text in the working directory and adds it.
func (c *Container) WriteText(name, text string, opts ...SourceOption) error {
	if err := c.validateMember(name); err != nil {
		return err
	}
	if err := c.store.WriteText(name, text); err != nil {
		return err
	}
	return c.Add(name, opts...)
}

// WriteBinary stages data in the working directory and adds it.
func (c *Container) WriteBinary(name string, data []byte, opts ...SourceOption) error {
	if err := c.validateMember(name); err != nil {
		return err
	}
	if err := c.store.WriteBinary(name, data); err != nil {
		return err
	}
	return c.Add(name, opts...)
}

// ReadBinary returns the content of the entry currently standing for name.
func (c *Container) ReadBinary(name string) ([]byte, error) {
	idx, ok := c.members[name]
	if !ok {
		c.reporter.Warn("archive: member not found",
			"name", name, "container", c.filename)
		return nil, fmt.Errorf("%w: %s in %s", ErrMemberNotFound, name, c.filename)
	}

	r, err := c.open()
	if err != nil {
		return nil, err
	}
	defer r.Close()

	// The file may have been rewritten behind our back; re-resolve once.
	if idx >= len(r.File) || r.File[idx].Name != name {
		c.index(r.File)
		if idx, ok = c.members[name]; !ok {
			c.reporter.Warn("archive: member not found",
				"name", name, "container", c.filename)
			return nil, fmt.Errorf("%w: %s in %s", ErrMemberNotFound, name, c.filename)
		}
	}

	rc, err := r.File[idx].Open()
	if err != nil {
		return nil, fmt.Errorf("open entry %s: %w", name, err)
	}
	defer rc.Close()

	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, fmt.Errorf("read entry %s: %w", name, err)
	}
	return data, nil
}

// ReadText returns the content of name decoded from the container's text
// encoding.
func (c *Container) ReadText(name string) (string, error) {
	data, err := c.ReadBinary(name)
	if err != nil {
		return "", err
	}
	return filestore.DecodeText(data, c.encoding)
}

// Extract writes the current entry for name into the working directory and
// returns its path. The container is not changed.
func (c *Container) Extract(name string) (string, error) {
	if err := c.validateMember(name); err != nil {
		return "", err
	}
	data, err := c.ReadBinary(name)
	if err != nil {
		return "", err
	}
	if err := c.store.WriteBinary(name, data); err != nil {
		return "", err
	}
	c.emit(report.OpExtract, name, int64(len(data)))
	return c.store.Path(name), nil
}

// AppendBinary concatenates data onto the current content of name.
// Every other member is carried over unchanged.
func (c *Container) AppendBinary(name string, data []byte) error {
	current, err := c.ReadBinary(name)
	if err != nil {
		return err
	}
	joined := make([]byte, 0, len(current)+len(data))
	joined = append(joined, current...)
	joined = append(joined, data...)

	if err := c.replace(name, joined); err != nil {
		return err
	}
	c.emit(report.OpAppend, name, int64(len(joined)))
	return nil
}

// AppendText encodes text in the container's text encoding and appends it.
func (c *Container) AppendText(name, text string) error {
	data, err := filestore.EncodeText(text, c.encoding)
	if err != nil {
		return err
	}
	return c.AppendBinary(name, data)
}

// Update replaces the member name with the staged copy of name in the
// working directory, which the caller is expected to have edited (typically
// after Extract). Every other member is carried over unchanged. A name that
// is not yet a member is simply added.
func (c *Container) Update(name string, opts ...SourceOption) error {
	if err := c.validateMember(name); err != nil {
		return err
	}
	if !c.Has(name) {
		return c.Add(name, opts...)
	}
	if !c.store.Has(name) {
		c.reporter.Warn("archive: file not found in working directory",
			"name", name, "dir", c.store.Dir(), "container", c.filename)
		return nil
	}

	data, err := c.store.ReadBinary(name)
	if err != nil {
		return err
	}
	if err := c.replace(name, data); err != nil {
		return err
	}
	c.emit(report.OpUpdate, name, int64(len(data)))
	return c.dropSource(name, opts)
}

// Remove drops every entry named name from the container.
func (c *Container) Remove(name string) error {
	if !c.Has(name) {
		c.reporter.Warn("archive: member not found",
			"name", name, "container", c.filename)
		return fmt.Errorf("%w: %s in %s", ErrMemberNotFound, name, c.filename)
	}
	err := c.rewrite(func(f *zip.File) bool { return f.Name != name }, nil)
	if err != nil {
		return err
	}
	c.emit(report.OpRemove, name, 0)
	return nil
}

// replace rewrites the container with every entry not named name copied
// verbatim and data as the final entry for name.
func (c *Container) replace(name string, data []byte) error {
	return c.rewrite(
		func(f *zip.File) bool { return f.Name != name },
		func(zw *zip.Writer) error { return c.writeEntry(zw, name, data) },
	)
}

func (c *Container) dropSource(name string, opts []SourceOption) error {
	if newSourceConfig(opts).keep {
		return nil
	}
	return c.store.Delete(name)
}

