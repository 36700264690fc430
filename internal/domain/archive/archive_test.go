package archive

import (
	"archive/tar"
	"bytes"
	"testing"
	"time"

	"github.com/GriffinCanCode/VibeCoder/backend/internal/domain/vfs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var epoch = time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)

func sample(t *testing.T) []*vfs.Node {
	t.Helper()
	tree := vfs.New()
	for p, content := range map[string]string{
		"index.html":      "<h1>hi</h1>",
		"style.css":       "body{}",
		"src/app.js":      "console.log('hi')",
		"src/lib/util.js": "export {}",
	} {
		_, err := tree.Put(p, content)
		require.NoError(t, err)
	}
	_, err := tree.AddFolder("", "empty")
	require.NoError(t, err)
	return tree.Nodes()
}

func paths(nodes []*vfs.Node) map[string]string {
	out := map[string]string{}
	for _, f := range vfs.FromNodes(nodes).Flatten() {
		out[f.ID] = f.Content
	}
	return out
}

func TestExportImportRoundTrip(t *testing.T) {
	nodes := sample(t)

	for _, format := range []Format{FormatTar, FormatTarGzip, FormatTarZstd} {
		t.Run(string(format), func(t *testing.T) {
			var buf bytes.Buffer
			require.NoError(t, Export(&buf, nodes, format, epoch))
			assert.Equal(t, format, Detect(buf.Bytes()))

			got, report, err := Import(bytes.NewReader(buf.Bytes()), "", DefaultLimits())
			require.NoError(t, err)
			assert.Equal(t, format, report.Format)
			assert.Equal(t, 4, report.Files)
			assert.Empty(t, report.Skipped)
			assert.Equal(t, paths(nodes), paths(got))

			_, err = vfs.FromNodes(got).Get("empty")
			assert.NoError(t, err)
		})
	}
}

func TestExportIsDeterministic(t *testing.T) {
	nodes := sample(t)

	var a, b bytes.Buffer
	require.NoError(t, Export(&a, nodes, FormatTar, epoch))
	require.NoError(t, Export(&b, nodes, FormatTar, epoch))
	assert.Equal(t, a.Bytes(), b.Bytes())
}

func TestExportUnknownFormat(t *testing.T) {
	var buf bytes.Buffer
	err := Export(&buf, sample(t), Format("rar"), epoch)
	assert.ErrorIs(t, err, ErrUnknownFormat)
}

type entry struct {
	name string
	flag byte
	data []byte
}

func rawTar(t *testing.T, entries ...entry) []byte {
	t.Helper()
	var buf bytes.Buffer
	tw := tar.NewWriter(&buf)
	for _, e := range entries {
		hdr := &tar.Header{Name: e.name, Typeflag: e.flag, Mode: 0o644, Size: int64(len(e.data))}
		if e.flag == tar.TypeSymlink {
			hdr.Linkname = "index.html"
			hdr.Size = 0
		}
		require.NoError(t, tw.WriteHeader(hdr))
		if hdr.Size > 0 {
			_, err := tw.Write(e.data)
			require.NoError(t, err)
		}
	}
	require.NoError(t, tw.Close())
	return buf.Bytes()
}

func TestImportSkipsBinariesAndLinks(t *testing.T) {
	png := []byte{0x89, 'P', 'N', 'G', '\r', '\n', 0x1a, '\n', 0, 0, 0, 0x0d, 'I', 'H', 'D', 'R'}
	data := rawTar(t,
		entry{"./site/", tar.TypeDir, nil},
		entry{"./site/index.html", tar.TypeReg, []byte("<p>x</p>")},
		entry{"./site/logo.png", tar.TypeReg, png},
		entry{"./site/link.html", tar.TypeSymlink, nil},
		entry{"./site/notes.txt", tar.TypeReg, []byte("Le caf\xe9 est tr\xe8s bon \xe0 Paris, d\xe9j\xe0 vu, na\xefve fa\xe7ade.")},
	)

	nodes, report, err := Import(bytes.NewReader(data), FormatTar, DefaultLimits())
	require.NoError(t, err)
	assert.Equal(t, 2, report.Files)
	assert.Equal(t, []string{"site/logo.png", "site/link.html"}, report.Skipped)

	got := paths(nodes)
	assert.Equal(t, "<p>x</p>", got["site/index.html"])
	assert.Contains(t, got["site/notes.txt"], "café")
}

func TestImportRejectsUnsafePaths(t *testing.T) {
	for _, name := range []string{"../evil.js", "/etc/passwd", "a/../../b.js"} {
		data := rawTar(t, entry{name, tar.TypeReg, []byte("x")})
		_, _, err := Import(bytes.NewReader(data), FormatTar, DefaultLimits())
		assert.ErrorIs(t, err, ErrUnsafePath, name)
	}
}

func TestImportLimits(t *testing.T) {
	data := rawTar(t,
		entry{"a.js", tar.TypeReg, []byte("1234")},
		entry{"b.js", tar.TypeReg, []byte("5678")},
	)

	tests := []struct {
		name   string
		limits Limits
	}{
		{"files", Limits{MaxFiles: 1}},
		{"file size", Limits{MaxFileSize: 3}},
		{"total", Limits{MaxTotal: 6}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := Import(bytes.NewReader(data), FormatTar, tt.limits)
			assert.ErrorIs(t, err, ErrTooLarge)
		})
	}

	_, report, err := Import(bytes.NewReader(data), FormatTar, Limits{MaxFiles: 2, MaxFileSize: 4, MaxTotal: 8})
	require.NoError(t, err)
	assert.Equal(t, int64(8), report.Bytes)
}

func TestImportEmpty(t *testing.T) {
	data := rawTar(t, entry{"dir/", tar.TypeDir, nil})
	_, _, err := Import(bytes.NewReader(data), FormatTar, DefaultLimits())
	assert.ErrorIs(t, err, ErrEmpty)
}

func TestParseFormat(t *testing.T) {
	tests := []struct {
		in   string
		want Format
		ok   bool
	}{
		{"", FormatTar, true},
		{"TAR", FormatTar, true},
		{".tgz", FormatTarGzip, true},
		{"tar.gz", FormatTarGzip, true},
		{"zstd", FormatTarZstd, true},
		{"zip", "", false},
	}
	for _, tt := range tests {
		got, err := ParseFormat(tt.in)
		if !tt.ok {
			assert.ErrorIs(t, err, ErrUnknownFormat)
			continue
		}
		require.NoError(t, err)
		assert.Equal(t, tt.want, got)
	}

	assert.Equal(t, ".tar.zst", FormatTarZstd.Extension())
	assert.Equal(t, "application/gzip", FormatTarGzip.ContentType())
}
