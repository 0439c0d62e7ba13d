// Package downloader executes job downloads: a bounded worker pool
// drives per-job tasks, each fetching the job's archive files either to
// disk (archive-keeping mode) or through the streaming untar engine
// (extraction mode), with SHA-1 integrity checking.
package downloader

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"runtime"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/mwa-archive/squid/asvo"
	"github.com/mwa-archive/squid/progress"
	"github.com/mwa-archive/squid/retry"
)

// DefaultBufferSize is the write buffer placed between the network and
// the disk: 100 MiB, trading memory for fewer larger writes.
const DefaultBufferSize = 100 * 1024 * 1024

var ErrBadDownloadDir = errors.New("download directory is not usable")

// PartialFileError reports a pre-existing partial file found while
// resume is disabled. The file is left untouched.
type PartialFileError struct {
	Path string
	Size int64
}

func (e *PartialFileError) Error() string {
	return fmt.Sprintf("%s already exists (%d bytes) and resume is disabled; remove it or enable resume", e.Path, e.Size)
}

// HashMismatchError reports a completed download whose digest does not
// match the manifest.
type HashMismatchError struct {
	JobID asvo.JobID
	File  string
	Want  string
	Got   string
}

func (e *HashMismatchError) Error() string {
	return fmt.Sprintf("hash mismatch for job %d file %s:\n expected   %s\n calculated %s", e.JobID, e.File, e.Want, e.Got)
}

// URLSource yields the download URL for a manifest file.
type URLSource interface {
	DownloadURL(id asvo.JobID, f asvo.File) string
}

// Config is the immutable configuration the scheduler is built with.
type Config struct {
	// DownloadDir receives archives (archive-keeping mode) or the
	// extracted directory tree (extraction mode).
	DownloadDir string

	// Concurrency bounds the jobs in flight. 0 means available
	// parallelism; 1 is fully sequential.
	Concurrency int

	// KeepArchive downloads the container file unmodified instead of
	// stream-extracting it.
	KeepArchive bool

	// Resume continues interrupted archive-mode downloads from the
	// local byte offset. It has no effect in extraction mode, which
	// cannot be resumed.
	Resume bool

	// CheckHash validates completed transfers against manifest digests.
	CheckHash bool

	// StrictResume makes an equal-size local file with a mismatching
	// digest a hard failure. The default is to restart the download
	// fresh.
	StrictResume bool

	// BufferSize is the transfer buffer in bytes. 0 means
	// DefaultBufferSize.
	BufferSize int

	// DryRun logs what would be transferred without any network calls.
	DryRun bool

	Retry    retry.Policy
	Logger   *zap.Logger
	Progress *progress.Sink
}

// Result is the recorded outcome of one task. Exactly one of Skipped
// and Err may be set; both clear means a completed transfer.
type Result struct {
	Job      asvo.Job
	Skipped  bool
	Bytes    int64
	Duration time.Duration
	Err      error
}

// Scheduler runs download tasks over a job batch with bounded
// concurrency, isolating per-task failure.
type Scheduler struct {
	cfg   Config
	httpc *http.Client
	urls  URLSource
	log   *zap.Logger
	sink  *progress.Sink
}

// New validates cfg and returns a scheduler. An unusable download
// directory is fatal here, before any task starts.
func New(cfg Config, httpc *http.Client, urls URLSource) (*Scheduler, error) {
	st, err := os.Stat(cfg.DownloadDir)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadDownloadDir, err)
	}

	if !st.IsDir() {
		return nil, fmt.Errorf("%w: %s is not a directory", ErrBadDownloadDir, cfg.DownloadDir)
	}

	if cfg.Concurrency <= 0 {
		cfg.Concurrency = runtime.NumCPU()
	}

	if cfg.BufferSize <= 0 {
		cfg.BufferSize = DefaultBufferSize
	}

	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}

	if cfg.Progress == nil {
		cfg.Progress = progress.NewSink(nil)
	}

	if httpc == nil {
		httpc = http.DefaultClient
	}

	return &Scheduler{
		cfg:   cfg,
		httpc: httpc,
		urls:  urls,
		log:   cfg.Logger,
		sink:  cfg.Progress,
	}, nil
}

// Run executes one task per job, dispatching in input order with at
// most Concurrency in flight. Every task's outcome is recorded; a
// failing task never cancels its siblings. The returned error combines
// all task failures and is nil only if every task succeeded.
func (s *Scheduler) Run(ctx context.Context, jobs []asvo.Job) ([]Result, error) {
	results := make([]Result, len(jobs))

	g := new(errgroup.Group)
	g.SetLimit(s.cfg.Concurrency)

	for i, job := range jobs {
		i, job := i, job

		g.Go(func() error {
			// An external interrupt halts dispatch of new tasks;
			// running tasks reach their own clean stopping points.
			if err := ctx.Err(); err != nil {
				results[i] = Result{Job: job, Err: err}

				return nil
			}

			results[i] = s.runTask(ctx, job)

			return nil
		})
	}

	_ = g.Wait()

	var combined error

	for _, r := range results {
		if r.Err != nil {
			combined = multierr.Append(combined, fmt.Errorf("job %d (obsid %s): %w", r.Job.ID, r.Job.Obsid, r.Err))
		}
	}

	return results, combined
}

func (s *Scheduler) runTask(ctx context.Context, job asvo.Job) Result {
	start := time.Now()
	res := Result{Job: job}

	defer func() {
		res.Duration = time.Since(start)
	}()

	if job.State.Kind != asvo.StateReady {
		res.Err = &asvo.NotReadyError{ID: job.ID, State: job.State}

		return res
	}

	if len(job.Files) == 0 {
		res.Err = &asvo.NoFilesError{ID: job.ID}

		return res
	}

	log := s.log.With(
		zap.Int("jobID", int(job.ID)),
		zap.String("obsid", job.Obsid.String()),
		zap.String("type", job.Type.String()),
	)

	if s.cfg.DryRun {
		log.Info("dry run: would download",
			zap.Int("files", len(job.Files)),
			zap.Int64("totalBytes", job.TotalBytes()),
			zap.Bool("keepArchive", s.cfg.KeepArchive),
		)

		res.Skipped = true

		return res
	}

	log.Info("downloading job", zap.Int("files", len(job.Files)), zap.Int64("totalBytes", job.TotalBytes()))

	allSkipped := true

	for _, f := range job.Files {
		if err := ctx.Err(); err != nil {
			res.Err = err

			return res
		}

		n, skipped, err := s.transferFile(ctx, log, job, f)
		res.Bytes += n

		if err != nil {
			res.Err = err

			return res
		}

		if !skipped {
			allSkipped = false
		}
	}

	res.Skipped = allSkipped

	return res
}

// transferFile moves one manifest file according to the configured
// mode. Returned bytes count network transfer, not disk writes.
func (s *Scheduler) transferFile(ctx context.Context, log *zap.Logger, job asvo.Job, f asvo.File) (int64, bool, error) {
	name := fmt.Sprintf("job %d %s", job.ID, f.Name)

	if s.cfg.KeepArchive {
		return s.fetchArchive(ctx, log, job, f, s.sink.NewTask(name, f.Size))
	}

	return s.extractArchive(ctx, log, job, f, s.sink.NewTask(name, f.Size))
}

// classifyResponse mirrors the client's retry taxonomy for download
// URLs: 5xx is transient, 4xx is permanent.
func classifyResponse(resp *http.Response) error {
	if resp.StatusCode < 400 {
		return nil
	}

	err := fmt.Errorf("server responded with status %s", resp.Status)

	if resp.StatusCode >= 500 {
		return err
	}

	return retry.Permanent(err)
}
