package admission

import (
	"bytes"
	"net/http"
)

// responseRecorder buffers the downstream response so the ledger write can
// finish, and annotate the headers, before anything reaches the client.
type responseRecorder struct {
	header        http.Header
	statusCode    int
	body          bytes.Buffer
	headerWritten bool
}

func newResponseRecorder() *responseRecorder {
	return &responseRecorder{header: make(http.Header)}
}

func (r *responseRecorder) Header() http.Header {
	return r.header
}

func (r *responseRecorder) WriteHeader(statusCode int) {
	if !r.headerWritten {
		r.statusCode = statusCode
		r.headerWritten = true
	}
}

func (r *responseRecorder) Write(b []byte) (int, error) {
	if !r.headerWritten {
		r.WriteHeader(http.StatusOK)
	}
	return r.body.Write(b)
}

// status defaults to 200 when the handler never set one.
func (r *responseRecorder) status() int {
	if r.statusCode == 0 {
		return http.StatusOK
	}
	return r.statusCode
}

func (r *responseRecorder) flush(w http.ResponseWriter) error {
	dst := w.Header()
	for k, v := range r.header {
		dst[k] = v
	}
	w.WriteHeader(r.status())
	_, err := w.Write(r.body.Bytes())
	return err
}
