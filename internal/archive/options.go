package archive

import (
	"os"

	"github.com/xfeldman/arcbox/internal/report"
)

// DefaultExtension is used when a container is created without one.
const DefaultExtension = "zip"

// Option configures a Container.
type Option func(*Container)

// WithReporter sets where warnings and events go.
func WithReporter(r report.Reporter) Option {
	return func(c *Container) {
		if r != nil {
			c.reporter = r
		}
	}
}

// WithCompression sets the method for newly written entries.
func WithCompression(comp Compression) Option {
	return func(c *Container) {
		if comp != "" {
			c.compression = comp
		}
	}
}

// WithLevel sets the compression level. Zero keeps the codec default.
// Deflate takes -2..9, zstd takes the usual zstd 1..22 scale.
func WithLevel(level int) Option {
	return func(c *Container) {
		c.level = level
	}
}

// WithEncoding sets the text encoding used for staged text files and for
// ReadText/AppendText.
func WithEncoding(enc string) Option {
	return func(c *Container) {
		c.encoding = enc
	}
}

// WithPerm sets the permission of a newly created container file and of
// files staged in the working directory. Existing files keep theirs.
func WithPerm(perm os.FileMode) Option {
	return func(c *Container) {
		if perm != 0 {
			c.perm = perm
		}
	}
}

// SourceOption controls what happens to a staged file once absorbed.
type SourceOption func(*sourceConfig)

type sourceConfig struct {
	keep bool
}

// KeepSource leaves the staged file in the working directory after it has
// been absorbed into the container.
func KeepSource() SourceOption {
	return func(c *sourceConfig) {
		c.keep = true
	}
}

func newSourceConfig(opts []SourceOption) sourceConfig {
	var cfg sourceConfig
	for _, opt := range opts {
		opt(&cfg)
	}
	return cfg
}
