package timer

import (
	"net/http"
	"time"

	"github.com/charmbracelet/log"
)

// Record describes one handled request.
type Record struct {
	Method   string
	Path     string
	Status   int
	Size     int64
	Duration time.Duration
}

// Saver gets a Record after every request.
type Saver func(r Record)

// statusRecorder remembers the status code and the number of body bytes.
type statusRecorder struct {
	http.ResponseWriter
	status int
	size   int64
}

func (s *statusRecorder) WriteHeader(code int) {
	if s.status == 0 {
		s.status = code
	}
	s.ResponseWriter.WriteHeader(code)
}

func (s *statusRecorder) Write(b []byte) (int, error) {
	if s.status == 0 {
		s.status = http.StatusOK
	}
	n, err := s.ResponseWriter.Write(b)
	s.size += int64(n)
	return n, err
}

// Unwrap lets http.ResponseController reach the underlying writer.
func (s *statusRecorder) Unwrap() http.ResponseWriter {
	return s.ResponseWriter
}

// MakeRequestTimeTracker wraps handler so that each request is timed and
// handed to every saver once the handler returns.
func MakeRequestTimeTracker(handler http.Handler, savers ...Saver) http.Handler {
	return http.HandlerFunc(func(rw http.ResponseWriter, req *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: rw}

		handler.ServeHTTP(rec, req)

		if rec.status == 0 {
			rec.status = http.StatusOK
		}
		r := Record{
			Method:   req.Method,
			Path:     req.URL.Path,
			Status:   rec.status,
			Size:     rec.size,
			Duration: time.Since(start),
		}
		for _, save := range savers {
			save(r)
		}
	})
}

// LogSaver logs every request; server errors are logged as errors.
func LogSaver(logger *log.Logger) Saver {
	return func(r Record) {
		kv := []interface{}{
			"method", r.Method,
			"path", r.Path,
			"status", r.Status,
			"bytes", r.Size,
			"time", r.Duration,
		}
		if r.Status >= http.StatusInternalServerError {
			logger.Error("Request failed", kv...)
			return
		}
		logger.Info("Request served", kv...)
	}
}
