// Package responder answers requests for "/" with a single file read
// from disk and every other path with 404.
package responder

import (
	"errors"
	"fmt"
	"io/fs"
	"net/http"
	"os"

	"github.com/charmbracelet/log"
	"github.com/pelageech/indexserv/metrics"
)

const (
	// Route is the only path that is answered with the file.
	Route = "/"
	// ContentType is sent whatever the extension of the served file is.
	ContentType = "text/html; charset=utf-8"
)

var (
	// ErrFileNotFound is returned when the served file does not exist.
	ErrFileNotFound = errors.New("file not found")
	// ErrFileIsDirectory is returned when the served path is a directory.
	ErrFileIsDirectory = errors.New("file is a directory")
	// ErrFileUnreadable is returned when the file exists but can't be read.
	ErrFileUnreadable = errors.New("file unreadable")
)

// Config is what the Responder needs to know about the served file.
type Config struct {
	File         string
	CacheControl string
}

// Responder is the http.Handler of the file server.
type Responder struct {
	file         string
	cacheControl string
	logger       *log.Logger
	metrics      *metrics.Metrics
}

// New creates a Responder. m may be nil.
func New(cfg Config, logger *log.Logger, m *metrics.Metrics) *Responder {
	return &Responder{
		file:         cfg.File,
		cacheControl: cfg.CacheControl,
		logger:       logger,
		metrics:      m,
	}
}

// servedFile is an opened file with its stat taken.
type servedFile struct {
	*os.File
	info fs.FileInfo
}

// openServedFile opens path and classifies the failure.
func openServedFile(path string) (*servedFile, error) {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrFileNotFound, err)
		}
		return nil, fmt.Errorf("%w: %s", ErrFileUnreadable, err)
	}

	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("%w: %s", ErrFileUnreadable, err)
	}
	if info.IsDir() {
		f.Close()
		return nil, fmt.Errorf("%w: %s", ErrFileIsDirectory, path)
	}

	return &servedFile{File: f, info: info}, nil
}

// statusFor maps a file error to the response status and the metric label.
func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, ErrFileNotFound):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, ErrFileIsDirectory):
		return http.StatusNotFound, "directory"
	default:
		return http.StatusInternalServerError, "unreadable"
	}
}

// etag is weak: it changes with size or modification time, not content.
func etag(info fs.FileInfo) string {
	return fmt.Sprintf(`W/"%x-%x"`, info.ModTime().UnixNano(), info.Size())
}

func (rs *Responder) ServeHTTP(rw http.ResponseWriter, req *http.Request) {
	if rs.metrics != nil {
		rs.metrics.RequestsNow.Inc()
		defer rs.metrics.RequestsNow.Dec()
	}

	if req.URL.Path != Route {
		rs.fail(rw, http.StatusNotFound)
		return
	}

	f, err := openServedFile(rs.file)
	if err != nil {
		code, kind := statusFor(err)
		rs.logger.Error("Failed to open served file", "path", rs.file, "err", err)
		rs.metrics.FileError(kind)
		rs.fail(rw, code)
		return
	}
	defer f.Close()

	h := rw.Header()
	h.Set("ETag", etag(f.info))
	h.Set("Content-Type", ContentType)
	h.Set("X-Content-Type-Options", "nosniff")
	if rs.cacheControl != "" {
		h.Set("Cache-Control", rs.cacheControl)
	}

	http.ServeContent(rw, req, f.info.Name(), f.info.ModTime(), f)
}

// fail writes a plain-text error with no internal details.
func (rs *Responder) fail(rw http.ResponseWriter, code int) {
	text := http.StatusText(code)
	if code == http.StatusNotFound {
		text = "404 page not found"
	}
	http.Error(rw, text, code)
}
