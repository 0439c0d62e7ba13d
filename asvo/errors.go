package asvo

import (
	"errors"
	"fmt"
	"strings"

	"github.com/mwa-archive/squid/obsid"
)

var (
	// ErrMissingAPIKey is returned when no API key is available at
	// client construction.
	ErrMissingAPIKey = errors.New("MWA_ASVO_API_KEY is not set")

	// ErrNoJobs is returned when an operation requires at least one
	// identifier and none resolved.
	ErrNoJobs = errors.New("no jobs specified")
)

// RequestError is a 4xx response from the ASVO. Retrying cannot change
// the outcome, so callers fail immediately and surface the detail.
type RequestError struct {
	StatusCode int
	Message    string
}

func (e *RequestError) Error() string {
	return fmt.Sprintf("the server rejected the request with status code %d, message:\n%s", e.StatusCode, e.Message)
}

// ServerError is a 5xx response from the ASVO, treated as transient.
type ServerError struct {
	StatusCode int
	Message    string
}

func (e *ServerError) Error() string {
	return fmt.Sprintf("the server responded with status code %d, message:\n%s", e.StatusCode, e.Message)
}

// SubmitError is an application-level error body returned by a job
// submission endpoint.
type SubmitError struct {
	Code    int
	Message string
}

func (e *SubmitError) Error() string {
	return fmt.Sprintf("job submission rejected (error code %d): %s", e.Code, e.Message)
}

// InvalidDeliveryError reports an unrecognized delivery method.
type InvalidDeliveryError struct {
	Value string
}

func (e *InvalidDeliveryError) Error() string {
	return fmt.Sprintf("%q is not a valid delivery method (expected acacia, scratch, astro or dug)", e.Value)
}

// NoSuchJobError reports a job ID absent from the user's job listing.
type NoSuchJobError struct {
	ID JobID
}

func (e *NoSuchJobError) Error() string {
	return fmt.Sprintf("job ID %d wasn't found in your list of jobs", e.ID)
}

// NotReadyError reports an attempt to download a job that is not in the
// Ready state.
type NotReadyError struct {
	ID    JobID
	State JobState
}

func (e *NotReadyError) Error() string {
	return fmt.Sprintf("job ID %d isn't ready; current state: %s", e.ID, e.State)
}

// NoFilesError reports a Ready job with an empty file manifest.
type NoFilesError struct {
	ID JobID
}

func (e *NoFilesError) Error() string {
	return fmt.Sprintf("job ID %d doesn't have any files associated with it", e.ID)
}

// AmbiguousError reports an obsid that does not resolve to exactly one
// Ready job. The caller must supply an explicit job ID instead.
type AmbiguousError struct {
	Obsid obsid.Obsid
	// Ready holds the job IDs in the Ready state for this obsid.
	Ready []JobID
	// All holds every job ID associated with this obsid.
	All []JobID
}

func (e *AmbiguousError) Error() string {
	if len(e.All) == 0 {
		return fmt.Sprintf("obsid %s wasn't found in your list of jobs", e.Obsid)
	}

	if len(e.Ready) == 0 {
		return fmt.Sprintf("obsid %s has no ready jobs (jobs: %s); pass an explicit job ID once one is ready", e.Obsid, joinJobIDs(e.All))
	}

	return fmt.Sprintf("obsid %s is ambiguous: jobs %s are all ready; pass an explicit job ID", e.Obsid, joinJobIDs(e.Ready))
}

func joinJobIDs(ids []JobID) string {
	parts := make([]string, len(ids))

	for i, id := range ids {
		parts[i] = fmt.Sprintf("%d", id)
	}

	return strings.Join(parts, ", ")
}
