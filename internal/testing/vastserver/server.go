// Copyright (C) 2025, ADXYZ Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package vastserver serves VAST documents and records tracking pixel hits
// for tests and local runs.
package vastserver

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"time"

	"github.com/gorilla/mux"

	"github.com/luxfi/vastplayer/pkg/vast"
)

type fault struct {
	delay  time.Duration
	status int
}

// Server is a VAST ad server with canned documents.
type Server struct {
	router *mux.Router
	http   *httptest.Server
	base   string

	mu     sync.Mutex
	docs   map[string][]byte
	faults map[string]fault
	hits   []string
}

// New starts a fixture server on a loopback port.
func New() *Server {
	s := newServer()
	s.http = httptest.NewServer(s.router)
	s.base = s.http.URL
	return s
}

// NewHandler returns a fixture server that is served by the caller at base.
func NewHandler(base string) *Server {
	s := newServer()
	s.base = base
	return s
}

func newServer() *Server {
	s := &Server{
		docs:   make(map[string][]byte),
		faults: make(map[string]fault),
	}

	r := mux.NewRouter()
	r.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	r.HandleFunc("/vast/{name}", s.handleDocument).Methods(http.MethodGet)
	r.HandleFunc("/pixel/{name}", s.handlePixel).Methods(http.MethodGet)
	s.router = r
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// Close shuts the listener down, if New started one.
func (s *Server) Close() {
	if s.http != nil {
		s.http.Close()
	}
}

// Client returns an HTTP client for the server.
func (s *Server) Client() *http.Client {
	if s.http != nil {
		return s.http.Client()
	}
	return http.DefaultClient
}

// DocumentURL returns the URL a document is served at.
func (s *Server) DocumentURL(name string) string {
	return fmt.Sprintf("%s/vast/%s", s.base, name)
}

// PixelURL returns a tracking URL whose hits are recorded under name.
func (s *Server) PixelURL(name string) string {
	return fmt.Sprintf("%s/pixel/%s", s.base, name)
}

// Put serves v under name and returns its URL.
func (s *Server) Put(name string, v *vast.VAST) (string, error) {
	body, err := v.Bytes()
	if err != nil {
		return "", err
	}
	return s.PutRaw(name, body), nil
}

// PutRaw serves body under name and returns its URL.
func (s *Server) PutRaw(name string, body []byte) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.docs[name] = body
	return s.DocumentURL(name)
}

// Delay holds responses for name by d, or until the client gives up.
func (s *Server) Delay(name string, d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	f := s.faults[name]
	f.delay = d
	s.faults[name] = f
}

// Fail answers requests for name with status.
func (s *Server) Fail(name string, status int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	f := s.faults[name]
	f.status = status
	s.faults[name] = f
}

// Hits returns recorded pixel names in arrival order.
func (s *Server) Hits() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.hits...)
}

// HitCount returns how often the pixel name was hit.
func (s *Server) HitCount(name string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int
	for _, h := range s.hits {
		if h == name {
			n++
		}
	}
	return n
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	fmt.Fprint(w, `{"status":"healthy"}`)
}

func (s *Server) handleDocument(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]

	s.mu.Lock()
	body, ok := s.docs[name]
	f := s.faults[name]
	s.mu.Unlock()

	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-r.Context().Done():
			return
		}
	}
	if f.status != 0 {
		http.Error(w, http.StatusText(f.status), f.status)
		return
	}
	if !ok {
		http.NotFound(w, r)
		return
	}

	w.Header().Set("Content-Type", "application/xml")
	_, _ = w.Write(body)
}

func (s *Server) handlePixel(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	s.hits = append(s.hits, mux.Vars(r)["name"])
	s.mu.Unlock()
	w.WriteHeader(http.StatusNoContent)
}
