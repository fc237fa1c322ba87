package githttp

import (
	"bytes"
	"io"
	"net/http"
)

// Recorder captures the status a handler writes while passing everything
// through to the client.
type Recorder struct {
	http.ResponseWriter
	Status int
}

func NewRecorder(w http.ResponseWriter) *Recorder {
	return &Recorder{ResponseWriter: w}
}

func (r *Recorder) WriteHeader(code int) {
	if r.Status == 0 {
		r.Status = code
	}
	r.ResponseWriter.WriteHeader(code)
}

func (r *Recorder) Write(p []byte) (int, error) {
	if r.Status == 0 {
		r.Status = http.StatusOK
	}
	return r.ResponseWriter.Write(p)
}

func (r *Recorder) Flush() {
	if f, ok := r.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// Buffer holds a complete response in memory until Commit releases it, so a
// caller can still replace it with an error after the handler returned.
type Buffer struct {
	header http.Header
	body   bytes.Buffer
	Status int
}

func NewBuffer() *Buffer {
	return &Buffer{header: http.Header{}}
}

func (b *Buffer) Header() http.Header { return b.header }

func (b *Buffer) WriteHeader(code int) {
	if b.Status == 0 {
		b.Status = code
	}
}

func (b *Buffer) Write(p []byte) (int, error) {
	if b.Status == 0 {
		b.Status = http.StatusOK
	}
	return b.body.Write(p)
}

func (b *Buffer) Len() int { return b.body.Len() }

// Commit writes the buffered response to w.
func (b *Buffer) Commit(w http.ResponseWriter) error {
	for k, v := range b.header {
		w.Header()[k] = v
	}
	status := b.Status
	if status == 0 {
		status = http.StatusOK
	}
	w.WriteHeader(status)
	_, err := io.Copy(w, &b.body)
	return err
}
