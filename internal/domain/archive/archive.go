// Package archive exports workspace trees as tar archives and imports them
// back. Plain tar, gzip and zstd compression are supported.
package archive

import (
	"archive/tar"
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/GriffinCanCode/VibeCoder/backend/internal/domain/vfs"
	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
)

// Format is an archive container and compression pair
type Format string

const (
	FormatTar     Format = "tar"
	FormatTarGzip Format = "tar.gz"
	FormatTarZstd Format = "tar.zst"
)

var (
	ErrUnknownFormat = errors.New("unknown archive format")
	ErrTooLarge      = errors.New("archive exceeds limits")
	ErrUnsafePath    = errors.New("unsafe path in archive")
	ErrEmpty         = errors.New("archive has no importable files")
)

var (
	gzipMagic = []byte{0x1f, 0x8b}
	zstdMagic = []byte{0x28, 0xb5, 0x2f, 0xfd}
)

// ParseFormat accepts a format name or a common alias such as "tgz"
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimPrefix(strings.TrimSpace(s), ".")) {
	case "", "tar":
		return FormatTar, nil
	case "tar.gz", "tgz", "gz", "gzip":
		return FormatTarGzip, nil
	case "tar.zst", "tzst", "zst", "zstd":
		return FormatTarZstd, nil
	}
	return "", fmt.Errorf("%w: %s", ErrUnknownFormat, s)
}

// ContentType is the media type used when serving an archive
func (f Format) ContentType() string {
	switch f {
	case FormatTarGzip:
		return "application/gzip"
	case FormatTarZstd:
		return "application/zstd"
	default:
		return "application/x-tar"
	}
}

// Extension is the file extension including the leading dot
func (f Format) Extension() string {
	return "." + string(f)
}

// Detect guesses the format from the first bytes of an archive
func Detect(head []byte) Format {
	switch {
	case bytes.HasPrefix(head, gzipMagic):
		return FormatTarGzip
	case bytes.HasPrefix(head, zstdMagic):
		return FormatTarZstd
	default:
		return FormatTar
	}
}

// Export writes every folder and file of nodes as a tar stream in tree
// order. Entries carry modTime so identical trees produce identical
// uncompressed output.
func Export(w io.Writer, nodes []*vfs.Node, format Format, modTime time.Time) error {
	var (
		sink  io.Writer = w
		finish func() error
	)
	switch format {
	case FormatTar:
	case FormatTarGzip:
		gz := gzip.NewWriter(w)
		sink, finish = gz, gz.Close
	case FormatTarZstd:
		zw, err := zstd.NewWriter(w)
		if err != nil {
			return fmt.Errorf("zstd writer: %w", err)
		}
		sink, finish = zw, zw.Close
	default:
		return fmt.Errorf("%w: %s", ErrUnknownFormat, format)
	}

	tw := tar.NewWriter(sink)
	tree := vfs.FromNodes(nodes)
	err := tree.Walk(func(n *vfs.Node, _ int) error {
		if n.IsFolder() {
			return tw.WriteHeader(&tar.Header{
				Typeflag: tar.TypeDir,
				Name:     n.ID + "/",
				Mode:     0o755,
				ModTime:  modTime,
			})
		}
		if err := tw.WriteHeader(&tar.Header{
			Typeflag: tar.TypeReg,
			Name:     n.ID,
			Mode:     0o644,
			Size:     int64(len(n.Content)),
			ModTime:  modTime,
		}); err != nil {
			return err
		}
		_, err := io.WriteString(tw, n.Content)
		return err
	})
	if err != nil {
		return fmt.Errorf("write archive: %w", err)
	}
	if err := tw.Close(); err != nil {
		return fmt.Errorf("close tar: %w", err)
	}
	if finish != nil {
		if err := finish(); err != nil {
			return fmt.Errorf("close compressor: %w", err)
		}
	}
	return nil
}

// Limits bounds an import
type Limits struct {
	MaxFiles    int
	MaxFileSize int64
	MaxTotal    int64
}

// DefaultLimits fits a browser playground
func DefaultLimits() Limits {
	return Limits{
		MaxFiles:    500,
		MaxFileSize: 1 << 20,
		MaxTotal:    16 << 20,
	}
}

// Report describes what an import kept and skipped
type Report struct {
	Format  Format   `json:"format"`
	Files   int      `json:"files"`
	Bytes   int64    `json:"bytes"`
	Skipped []string `json:"skipped,omitempty"`
}

// Import reads a tar stream into a tree. An empty format is detected from
// the stream. Binary files, links and special entries are skipped and
// listed in the report; legacy encodings are converted to UTF-8.
func Import(r io.Reader, format Format, limits Limits) ([]*vfs.Node, *Report, error) {
	br := bufio.NewReader(r)
	if format == "" {
		head, _ := br.Peek(4)
		format = Detect(head)
	}

	var src io.Reader = br
	switch format {
	case FormatTar:
	case FormatTarGzip:
		gz, err := gzip.NewReader(br)
		if err != nil {
			return nil, nil, fmt.Errorf("gzip reader: %w", err)
		}
		defer gz.Close()
		src = gz
	case FormatTarZstd:
		zr, err := zstd.NewReader(br)
		if err != nil {
			return nil, nil, fmt.Errorf("zstd reader: %w", err)
		}
		defer zr.Close()
		src = zr
	default:
		return nil, nil, fmt.Errorf("%w: %s", ErrUnknownFormat, format)
	}

	report := &Report{Format: format}
	tree := vfs.New()
	tr := tar.NewReader(src)
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, nil, fmt.Errorf("read archive: %w", err)
		}

		name, err := cleanPath(hdr.Name)
		if err != nil {
			return nil, nil, err
		}
		if name == "" {
			continue
		}

		switch hdr.Typeflag {
		case tar.TypeDir:
			if _, err := tree.MkdirAll(name); err != nil {
				return nil, nil, fmt.Errorf("folder %s: %w", name, err)
			}
			continue
		case tar.TypeReg:
		default:
			report.Skipped = append(report.Skipped, name)
			continue
		}

		if limits.MaxFileSize > 0 && hdr.Size > limits.MaxFileSize {
			return nil, nil, fmt.Errorf("%w: %s is %d bytes", ErrTooLarge, name, hdr.Size)
		}
		if limits.MaxTotal > 0 && report.Bytes+hdr.Size > limits.MaxTotal {
			return nil, nil, fmt.Errorf("%w: more than %d bytes", ErrTooLarge, limits.MaxTotal)
		}

		data, err := io.ReadAll(io.LimitReader(tr, hdr.Size))
		if err != nil {
			return nil, nil, fmt.Errorf("read %s: %w", name, err)
		}
		if !vfs.IsText(data) {
			report.Skipped = append(report.Skipped, name)
			continue
		}
		text, err := vfs.ToUTF8(data)
		if err != nil {
			report.Skipped = append(report.Skipped, name)
			continue
		}

		if limits.MaxFiles > 0 && report.Files >= limits.MaxFiles {
			return nil, nil, fmt.Errorf("%w: more than %d files", ErrTooLarge, limits.MaxFiles)
		}
		if _, err := tree.Put(name, text); err != nil {
			return nil, nil, fmt.Errorf("file %s: %w", name, err)
		}
		report.Files++
		report.Bytes += hdr.Size
	}

	if report.Files == 0 {
		return nil, report, ErrEmpty
	}
	return tree.Nodes(), report, nil
}

// cleanPath strips a leading "./" and rejects absolute or escaping names
func cleanPath(name string) (string, error) {
	name = strings.ReplaceAll(name, "\\", "/")
	if strings.HasPrefix(name, "/") {
		return "", fmt.Errorf("%w: %s", ErrUnsafePath, name)
	}
	var parts []string
	for _, part := range strings.Split(name, "/") {
		switch part {
		case "", ".":
			continue
		case "..":
			return "", fmt.Errorf("%w: %s", ErrUnsafePath, name)
		}
		parts = append(parts, part)
	}
	return strings.Join(parts, "/"), nil
}
