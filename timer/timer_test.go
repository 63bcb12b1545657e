package timer

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/charmbracelet/log"
	"github.com/stretchr/testify/require"
)

func TestMakeRequestTimeTracker(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
		status  int
		size    int64
	}{
		{
			name: "implicit ok",
			handler: func(w http.ResponseWriter, r *http.Request) {
				_, _ = w.Write([]byte("hello"))
			},
			status: http.StatusOK,
			size:   5,
		},
		{
			name: "not found",
			handler: func(w http.ResponseWriter, r *http.Request) {
				http.NotFound(w, r)
			},
			status: http.StatusNotFound,
			size:   int64(len("404 page not found\n")),
		},
		{
			name:    "no write at all",
			handler: func(w http.ResponseWriter, r *http.Request) {},
			status:  http.StatusOK,
			size:    0,
		},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			var got []Record
			h := MakeRequestTimeTracker(test.handler, func(r Record) { got = append(got, r) })

			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/some/path", nil))

			require.Len(t, got, 1)
			require.Equal(t, test.status, got[0].Status)
			require.Equal(t, test.size, got[0].Size)
			require.Equal(t, "/some/path", got[0].Path)
			require.Equal(t, http.MethodGet, got[0].Method)
			require.Equal(t, test.status, rec.Code)
		})
	}
}

func TestLogSaver(t *testing.T) {
	var buf bytes.Buffer
	logger := log.New(&buf)

	save := LogSaver(logger)
	save(Record{Method: "GET", Path: "/", Status: 200, Size: 3})
	require.Contains(t, buf.String(), "Request served")

	buf.Reset()
	save(Record{Method: "GET", Path: "/", Status: 500})
	require.Contains(t, buf.String(), "Request failed")
}
