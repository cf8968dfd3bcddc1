package upload

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// Minimal PNG signature plus IHDR chunk header.
var pngHead = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR\x00\x00\x00\x01\x00\x00\x00\x01\x08\x02\x00\x00\x00")

func newTestStore(t *testing.T, max int64) *Store {
	t.Helper()
	s, err := New(filepath.Join(t.TempDir(), "uploads"), max)
	require.NoError(t, err)
	s.now = func() time.Time { return time.UnixMilli(1700000000000) }
	return s
}

func TestSaveImage(t *testing.T) {
	t.Parallel()
	s := newTestStore(t, 0)

	f, err := s.Save("cat pic (1).png", "", bytes.NewReader(pngHead))
	require.NoError(t, err)

	require.Equal(t, "image/png", f.Mime)
	require.Equal(t, "cat pic (1).png", f.Name)
	require.Equal(t, int64(len(pngHead)), f.Size)
	require.True(t, strings.HasPrefix(f.URL, URLPrefix+"1700000000000_"), f.URL)
	require.True(t, strings.HasSuffix(f.URL, "_cat_pic__1_.png"), f.URL)

	data, err := os.ReadFile(filepath.Join(s.Dir(), strings.TrimPrefix(f.URL, URLPrefix)))
	require.NoError(t, err)
	require.Equal(t, pngHead, data)
}

func TestSavePlainText(t *testing.T) {
	t.Parallel()
	s := newTestStore(t, 0)

	f, err := s.Save("notes.txt", "text/plain", strings.NewReader("hello there\n"))
	require.NoError(t, err)
	require.Equal(t, "text/plain", f.Mime)
}

func TestSaveUnsupported(t *testing.T) {
	t.Parallel()
	s := newTestStore(t, 0)

	// ELF header.
	_, err := s.Save("a.out", "application/octet-stream", bytes.NewReader([]byte("\x7fELF\x02\x01\x01\x00\x00\x00\x00\x00\x00\x00\x00\x00")))
	require.ErrorIs(t, err, ErrUnsupportedType)

	entries, err := os.ReadDir(s.Dir())
	require.NoError(t, err)
	require.Empty(t, entries)
}

func TestSaveTooLarge(t *testing.T) {
	t.Parallel()
	s := newTestStore(t, 16)

	_, err := s.Save("big.txt", "text/plain", strings.NewReader(strings.Repeat("a", 17)))
	require.ErrorIs(t, err, ErrTooLarge)

	entries, err := os.ReadDir(s.Dir())
	require.NoError(t, err)
	require.Empty(t, entries)

	f, err := s.Save("ok.txt", "text/plain", strings.NewReader(strings.Repeat("a", 16)))
	require.NoError(t, err)
	require.Equal(t, int64(16), f.Size)
}

func TestAllowed(t *testing.T) {
	t.Parallel()
	for _, m := range []string{"image/jpeg", "audio/webm", "video/mp4", "application/pdf", "text/plain"} {
		require.True(t, Allowed(m), m)
	}
	for _, m := range []string{"application/x-executable", "text/html", "application/javascript", ""} {
		require.False(t, Allowed(m), m)
	}
}

func TestFilenameSanitized(t *testing.T) {
	t.Parallel()
	s := newTestStore(t, 0)
	name := s.filename("../../etc/passwd")
	require.NotContains(t, name, "/")
	require.True(t, strings.HasSuffix(name, "_.._.._etc_passwd"), name)

	require.True(t, strings.HasSuffix(s.filename(""), "_file"))
}
