// Package testutils provides a fake ASVO server and wire-format
// fixtures shared by the client and runner tests.
package testutils

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"sync"
	"testing"
)

// Server is an in-process stand-in for the ASVO API. It records
// submissions and cancellations and serves a settable job listing.
type Server struct {
	*httptest.Server

	mu          sync.Mutex
	listing     []string
	nextJobID   int
	logins      int
	submissions []url.Values
	cancelled   []int

	// SubmitError, when non-empty, is returned as the body of every
	// submit response instead of a job ID.
	SubmitError string
}

func NewServer(t *testing.T) *Server {
	t.Helper()

	s := &Server{nextJobID: 1000}

	mux := http.NewServeMux()
	mux.HandleFunc("/api/login", s.handleLogin)
	mux.HandleFunc("/api/get_jobs", s.handleGetJobs)
	mux.HandleFunc("/api/conversion_job", s.handleSubmit)
	mux.HandleFunc("/api/download_vis_job", s.handleSubmit)
	mux.HandleFunc("/api/voltage_job", s.handleSubmit)
	mux.HandleFunc("/api/cancel_job", s.handleCancel)

	s.Server = httptest.NewServer(mux)
	t.Cleanup(s.Close)

	return s
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	_, key, ok := r.BasicAuth()
	if !ok || key == "" {
		http.Error(w, `{"error": "no API key"}`, http.StatusUnauthorized)

		return
	}

	s.mu.Lock()
	s.logins++
	s.mu.Unlock()

	http.SetCookie(w, &http.Cookie{Name: "sessionid", Value: "fake-session"})
	w.WriteHeader(http.StatusOK)
}

func (s *Server) handleGetJobs(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	listing := make([]string, len(s.listing))
	copy(listing, s.listing)
	s.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(listing)
}

func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)

		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.SubmitError != "" {
		fmt.Fprintf(w, `{"error_code": 400, "error": %q}`, s.SubmitError)

		return
	}

	s.nextJobID++
	s.submissions = append(s.submissions, r.PostForm)

	fmt.Fprintf(w, `{"job_id": %d}`, s.nextJobID)
}

func (s *Server) handleCancel(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.Atoi(r.URL.Query().Get("job_id"))
	if err != nil {
		http.Error(w, "bad job_id", http.StatusBadRequest)

		return
	}

	s.mu.Lock()
	s.cancelled = append(s.cancelled, id)
	s.mu.Unlock()

	w.WriteHeader(http.StatusOK)
}

// SetListing replaces the job listing served by /api/get_jobs. Each
// row is an individually encoded JSON document, matching the service's
// double-encoded wire format.
func (s *Server) SetListing(rows ...string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.listing = rows
}

func (s *Server) Logins() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.logins
}

func (s *Server) Submissions() []url.Values {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]url.Values, len(s.submissions))
	copy(out, s.submissions)

	return out
}

func (s *Server) Cancelled() []int {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]int, len(s.cancelled))
	copy(out, s.cancelled)

	return out
}

// LastJobID returns the job ID handed out by the most recent
// submission.
func (s *Server) LastJobID() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.nextJobID
}
