// fake_endpoint.go - Stand-in for the external text extraction endpoint
package testutil

import (
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
)

// ReceivedPart is one multipart part seen by the fake endpoint.
type ReceivedPart struct {
	FormName    string
	FileName    string
	ContentType string
	Data        []byte
}

// ReceivedUpload is one request seen by the fake endpoint.
type ReceivedUpload struct {
	Method      string
	Path        string
	ContentType string
	Parts       []ReceivedPart
}

// FakeEndpoint records multipart uploads and answers with a configurable
// status and body. Gate, when set, holds each response until it is closed or
// receives a value.
type FakeEndpoint struct {
	*httptest.Server

	mu       sync.Mutex
	status   int
	body     string
	received []ReceivedUpload
	gate     chan struct{}
	arrived  chan struct{}
}

// NewFakeEndpoint starts a fake endpoint answering 200 with body.
func NewFakeEndpoint(body string) *FakeEndpoint {
	f := &FakeEndpoint{status: http.StatusOK, body: body, arrived: make(chan struct{}, 16)}
	f.Server = httptest.NewServer(http.HandlerFunc(f.handle))
	return f
}

// URL of the upload route.
func (f *FakeEndpoint) UploadURL() string {
	return f.Server.URL + "/api/upload/"
}

// Respond changes the status and body of later answers.
func (f *FakeEndpoint) Respond(status int, body string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.status = status
	f.body = body
}

// Hold makes later requests wait until Release is called.
func (f *FakeEndpoint) Hold() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.gate = make(chan struct{})
}

// Release lets held requests answer.
func (f *FakeEndpoint) Release() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.gate != nil {
		close(f.gate)
		f.gate = nil
	}
}

// Arrived signals once per request after its body has been read.
func (f *FakeEndpoint) Arrived() <-chan struct{} {
	return f.arrived
}

// Received returns a copy of the requests seen so far.
func (f *FakeEndpoint) Received() []ReceivedUpload {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]ReceivedUpload, len(f.received))
	copy(out, f.received)
	return out
}

// Count returns how many requests arrived.
func (f *FakeEndpoint) Count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.received)
}

func (f *FakeEndpoint) handle(w http.ResponseWriter, r *http.Request) {
	rec := ReceivedUpload{
		Method:      r.Method,
		Path:        r.URL.Path,
		ContentType: r.Header.Get("Content-Type"),
	}
	if mr, err := r.MultipartReader(); err == nil {
		for {
			p, err := mr.NextPart()
			if err != nil {
				break
			}
			data, _ := io.ReadAll(p)
			rec.Parts = append(rec.Parts, ReceivedPart{
				FormName:    p.FormName(),
				FileName:    p.FileName(),
				ContentType: p.Header.Get("Content-Type"),
				Data:        data,
			})
		}
	}

	f.mu.Lock()
	f.received = append(f.received, rec)
	gate := f.gate
	f.mu.Unlock()

	select {
	case f.arrived <- struct{}{}:
	default:
	}

	if gate != nil {
		<-gate
	}

	f.mu.Lock()
	status, body := f.status, f.body
	f.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	io.WriteString(w, body)
}

// Close releases held requests and shuts the server down.
func (f *FakeEndpoint) Close() {
	f.Release()
	f.Server.Close()
}
