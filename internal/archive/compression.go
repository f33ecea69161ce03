package archive

import (
	"fmt"
	"io"

	"github.com/klauspost/compress/flate"
	"github.com/klauspost/compress/zip"
	"github.com/klauspost/compress/zstd"
)

// Compression selects how new entries are stored. Copied entries keep
// whatever method they were written with.
type Compression string

const (
	CompressionStore   Compression = "store"
	CompressionDeflate Compression = "deflate"
	CompressionZstd    Compression = "zstd"
)

// ParseCompression maps a config value to a Compression.
// Empty means deflate.
func ParseCompression(s string) (Compression, error) {
	switch Compression(s) {
	case "":
		return CompressionDeflate, nil
	case CompressionStore, CompressionDeflate, CompressionZstd:
		return Compression(s), nil
	}
	return "", fmt.Errorf("unknown compression %q (want store, deflate or zstd)", s)
}

func (c Compression) method() uint16 {
	switch c {
	case CompressionStore:
		return zip.Store
	case CompressionZstd:
		return zstd.ZipMethodWinZip
	default:
		return zip.Deflate
	}
}

// registerCompressor wires the configured level into zw. Deflate uses
// klauspost/compress/flate; zstd entries use WinZip method 93.
func (c *Container) registerCompressor(zw *zip.Writer) {
	switch c.compression {
	case CompressionDeflate:
		level := c.level
		if level == 0 {
			level = flate.DefaultCompression
		}
		zw.RegisterCompressor(zip.Deflate, func(w io.Writer) (io.WriteCloser, error) {
			fw, err := flate.NewWriter(w, level)
			if err != nil {
				return nil, err
			}
			return fw, nil
		})
	case CompressionZstd:
		var eopts []zstd.EOption
		if c.level != 0 {
			eopts = append(eopts, zstd.WithEncoderLevel(zstd.EncoderLevelFromZstd(c.level)))
		}
		zw.RegisterCompressor(zstd.ZipMethodWinZip, zstd.ZipCompressor(eopts...))
	}
}

// registerDecompressors lets r read zstd entries regardless of the
// container's own compression setting.
func registerDecompressors(r *zip.Reader) {
	r.RegisterDecompressor(zstd.ZipMethodWinZip, zstd.ZipDecompressor())
	r.RegisterDecompressor(zstd.ZipMethodPKWare, zstd.ZipDecompressor())
}
