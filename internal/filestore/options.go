package filestore

import (
	"os"

	"github.com/xfeldman/arcbox/internal/report"
)

// Mode selects how content is interpreted on the way to and from disk.
type Mode int

const (
	// ModeBinary passes bytes through untouched.
	ModeBinary Mode = iota
	// ModeText treats content as UTF-8 text and transcodes it to and from
	// the configured encoding on disk.
	ModeText
)

// Intent selects what a write does to existing content.
type Intent int

const (
	// IntentTruncate replaces the whole file (atomically).
	IntentTruncate Intent = iota
	// IntentAppend adds to the end of the file, creating it if needed.
	IntentAppend
)

// IOOptions enumerates everything a raw read or write can be told.
type IOOptions struct {
	Mode   Mode
	Intent Intent

	// Encoding is the on-disk text encoding for ModeText, by WHATWG/IANA
	// name ("utf-8", "latin1", "utf-16le", "shift_jis", ...). Empty means the
	// store's default.
	Encoding string

	// Perm is the permission for newly written files. Zero means the store's
	// default.
	Perm os.FileMode
}

const (
	defaultEncoding = "utf-8"
	defaultPerm     = 0644
)

// Option configures a Store.
type Option func(*Store)

// WithReporter sets where warnings go. Defaults to report.Nop.
func WithReporter(r report.Reporter) Option {
	return func(s *Store) {
		if r != nil {
			s.reporter = r
		}
	}
}

// WithEncoding sets the default text encoding.
func WithEncoding(enc string) Option {
	return func(s *Store) {
		if enc != "" {
			s.encoding = enc
		}
	}
}

// WithPerm sets the default permission for written files.
func WithPerm(perm os.FileMode) Option {
	return func(s *Store) {
		if perm != 0 {
			s.perm = perm
		}
	}
}

func (s *Store) resolve(o IOOptions) IOOptions {
	if o.Encoding == "" {
		o.Encoding = s.encoding
	}
	if o.Perm == 0 {
		o.Perm = s.perm
	}
	return o
}
