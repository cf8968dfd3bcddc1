package upload

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/devaloi/roomrelay/internal/domain"
)

// DefaultMaxBytes is the per-file size limit (15 MB).
const DefaultMaxBytes = 15 << 20

// URLPrefix is the path uploaded files are served under.
const URLPrefix = "/uploads/"

// sniffLen is how much of the body is inspected for content detection.
const sniffLen = 3072

var (
	ErrTooLarge        = errors.New("file too large")
	ErrUnsupportedType = errors.New("unsupported file type")
)

var allowed = []string{
	"image/", "video/", "audio/",
	"application/pdf",
	"application/zip", "application/x-zip-compressed",
	"application/vnd.ms-excel",
	"application/vnd.openxmlformats-officedocument.spreadsheetml.sheet",
	"application/msword",
	"application/vnd.openxmlformats-officedocument.wordprocessingml.document",
	"application/vnd.ms-powerpoint",
	"application/vnd.openxmlformats-officedocument.presentationml.presentation",
	"text/plain",
}

var unsafeChars = regexp.MustCompile(`[^a-zA-Z0-9._-]`)

var (
	metricUploads = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "relay_uploads_total",
		Help: "Upload attempts by outcome",
	}, []string{"outcome"})

	metricUploadBytes = promauto.NewCounter(prometheus.CounterOpts{
		Name: "relay_upload_bytes_total",
		Help: "Bytes written to the blob store",
	})
)

// Store writes uploaded files to a directory on disk.
type Store struct {
	dir      string
	maxBytes int64
	now      func() time.Time
}

// New creates the upload directory if needed.
func New(dir string, maxBytes int64) (*Store, error) {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxBytes
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create upload dir: %w", err)
	}
	return &Store{dir: dir, maxBytes: maxBytes, now: time.Now}, nil
}

// Dir returns the directory files are written to.
func (s *Store) Dir() string { return s.dir }

// MaxBytes returns the per-file size limit.
func (s *Store) MaxBytes() int64 { return s.maxBytes }

// Save stores the content of r under a unique name derived from name and
// returns its descriptor. declared is the client-supplied content type, used
// only when the content itself is not recognised.
func (s *Store) Save(name, declared string, r io.Reader) (domain.File, error) {
	head := make([]byte, sniffLen)
	n, err := io.ReadFull(r, head)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		return domain.File{}, fmt.Errorf("read upload: %w", err)
	}
	head = head[:n]

	mime := detect(head, declared)
	if !Allowed(mime) {
		metricUploads.WithLabelValues("unsupported").Inc()
		return domain.File{}, fmt.Errorf("%w: %s", ErrUnsupportedType, mime)
	}

	filename := s.filename(name)
	path := filepath.Join(s.dir, filename)
	f, err := os.Create(path)
	if err != nil {
		return domain.File{}, fmt.Errorf("create %s: %w", filename, err)
	}

	body := io.MultiReader(bytes.NewReader(head), r)
	written, err := io.Copy(f, io.LimitReader(body, s.maxBytes+1))
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err == nil && written > s.maxBytes {
		err = ErrTooLarge
		metricUploads.WithLabelValues("too_large").Inc()
	}
	if err != nil {
		os.Remove(path)
		return domain.File{}, err
	}

	metricUploads.WithLabelValues("stored").Inc()
	metricUploadBytes.Add(float64(written))
	return domain.File{
		URL:  URLPrefix + filename,
		Name: name,
		Size: written,
		Mime: mime,
	}, nil
}

// filename builds "<unix-ms>_<random>_<sanitized name>".
func (s *Store) filename(name string) string {
	safe := unsafeChars.ReplaceAllString(name, "_")
	if safe == "" {
		safe = "file"
	}
	tag := strings.ReplaceAll(uuid.NewString(), "-", "")[:6]
	return fmt.Sprintf("%d_%s_%s", s.now().UnixMilli(), tag, safe)
}

func detect(head []byte, declared string) string {
	m := mimetype.Detect(head)
	if m.Is("application/octet-stream") && declared != "" {
		return declared
	}
	mime, _, _ := strings.Cut(m.String(), ";")
	return mime
}

// Allowed reports whether files of the given media type are accepted.
func Allowed(mime string) bool {
	for _, prefix := range allowed {
		if strings.HasPrefix(mime, prefix) {
			return true
		}
	}
	return false
}
