// Package asvo implements a client for the MWA ASVO job service: job
// listing, submission, cancellation, and the job data model shared by
// the poller and downloader.
package asvo

import (
	"strings"

	"github.com/mwa-archive/squid/obsid"
)

// JobID uniquely identifies an ASVO job. An obsid may map to zero or
// more jobs, but a job ID never repeats.
type JobID int

// JobType enumerates the available types of ASVO jobs.
type JobType int

const (
	TypeConversion JobType = iota
	TypeDownloadVisibilities
	TypeDownloadMetadata
	TypeDownloadVoltage
	TypeCancelJob
	TypeUnknown
)

func (t JobType) String() string {
	switch t {
	case TypeConversion:
		return "Conversion"
	case TypeDownloadVisibilities:
		return "Download Visibilities"
	case TypeDownloadMetadata:
		return "Download Metadata"
	case TypeDownloadVoltage:
		return "Download Voltage"
	case TypeCancelJob:
		return "Cancel Job"
	default:
		return "Unknown"
	}
}

// ParseJobType matches s against the known job types after normalizing
// to lowercase alphanumerics, so "download_visibilities", "Download
// Visibilities" and "DownloadVisibilities" all match. Unrecognized input
// maps to TypeUnknown.
func ParseJobType(s string) JobType {
	switch normalize(s) {
	case "conversion":
		return TypeConversion
	case "downloadvisibilities":
		return TypeDownloadVisibilities
	case "downloadmetadata":
		return TypeDownloadMetadata
	case "downloadvoltage":
		return TypeDownloadVoltage
	case "canceljob":
		return TypeCancelJob
	default:
		return TypeUnknown
	}
}

// StateKind enumerates the states an ASVO job may be in.
type StateKind int

const (
	StateQueued StateKind = iota
	StateProcessing
	StatePreparing
	StateReady
	StateError
	StateExpired
	StateCancelled
	StateUnknown
)

// ParseStateKind matches s against the known states after normalizing to
// lowercase alphanumerics. Unrecognized input maps to StateUnknown.
func ParseStateKind(s string) StateKind {
	switch normalize(s) {
	case "queued":
		return StateQueued
	case "processing":
		return StateProcessing
	case "preparing":
		return StatePreparing
	case "ready":
		return StateReady
	case "error":
		return StateError
	case "expired":
		return StateExpired
	case "cancelled", "canceled":
		return StateCancelled
	default:
		return StateUnknown
	}
}

func (k StateKind) String() string {
	switch k {
	case StateQueued:
		return "Queued"
	case StateProcessing:
		return "Processing"
	case StatePreparing:
		return "Preparing"
	case StateReady:
		return "Ready"
	case StateError:
		return "Error"
	case StateExpired:
		return "Expired"
	case StateCancelled:
		return "Cancelled"
	default:
		return "Unknown"
	}
}

// Terminal reports whether a job in this state will never change state
// again.
func (k StateKind) Terminal() bool {
	switch k {
	case StateReady, StateError, StateExpired, StateCancelled:
		return true
	default:
		return false
	}
}

// JobState is the state of a job. Detail carries the server's error text
// for StateError, and the raw wire value for StateUnknown.
type JobState struct {
	Kind   StateKind
	Detail string
}

func (s JobState) String() string {
	switch s.Kind {
	case StateError:
		return "Error: " + s.Detail
	case StateUnknown:
		if s.Detail != "" {
			return "Unknown (" + s.Detail + ")"
		}

		return "Unknown"
	default:
		return s.Kind.String()
	}
}

// Delivery is the storage tier a job's output is placed in.
type Delivery int

const (
	DeliveryAcacia Delivery = iota
	DeliveryScratch
	DeliveryAstro
	DeliveryDug
	DeliveryUnknown
)

func (d Delivery) String() string {
	switch d {
	case DeliveryAcacia:
		return "acacia"
	case DeliveryScratch:
		return "scratch"
	case DeliveryAstro:
		return "astro"
	case DeliveryDug:
		return "dug"
	default:
		return "unknown"
	}
}

// ParseDelivery validates a user-supplied delivery method.
func ParseDelivery(s string) (Delivery, error) {
	switch normalize(s) {
	case "", "acacia":
		return DeliveryAcacia, nil
	case "scratch":
		return DeliveryScratch, nil
	case "astro":
		return DeliveryAstro, nil
	case "dug":
		return DeliveryDug, nil
	default:
		return DeliveryUnknown, &InvalidDeliveryError{Value: s}
	}
}

// File is one entry of a job's downloadable file manifest.
type File struct {
	Name string
	// URL is a time-limited, range-capable download URL. It may be
	// empty for older jobs, in which case the client falls back to the
	// download API endpoint.
	URL string
	// Size is -1 when the manifest does not report a size.
	Size int64
	// Hash is the hex SHA-1 digest, empty when not reported.
	Hash string
}

// Job is a read-only snapshot of a remote ASVO job.
type Job struct {
	ID       JobID
	Obsid    obsid.Obsid
	Type     JobType
	State    JobState
	Delivery Delivery
	Files    []File
}

// TotalBytes sums the known manifest file sizes.
func (j Job) TotalBytes() int64 {
	var total int64

	for _, f := range j.Files {
		if f.Size > 0 {
			total += f.Size
		}
	}

	return total
}

// JobList is a job listing snapshot.
type JobList []Job

// Filter returns the jobs for which keep returns true.
func (l JobList) Filter(keep func(Job) bool) JobList {
	var out JobList

	for _, j := range l {
		if keep(j) {
			out = append(out, j)
		}
	}

	return out
}

// Map keys the listing by job ID. If the listing should ever contain a
// job ID twice, only one of them survives.
func (l JobList) Map() map[JobID]Job {
	m := make(map[JobID]Job, len(l))

	for _, j := range l {
		m[j.ID] = j
	}

	return m
}

// normalize lowercases s and strips every non-alphanumeric rune, making
// enum matching case- and delimiter-insensitive.
func normalize(s string) string {
	var b strings.Builder

	for _, r := range strings.ToLower(s) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		}
	}

	return b.String()
}
