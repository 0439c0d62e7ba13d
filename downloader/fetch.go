package downloader

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/mwa-archive/squid/asvo"
	"github.com/mwa-archive/squid/progress"
	"github.com/mwa-archive/squid/retry"
	"github.com/mwa-archive/squid/utils"
)

// fetchArchive downloads one manifest file to
// {DownloadDir}/{f.Name}, resuming a smaller partial file with a
// byte-range request when resume is enabled.
func (s *Scheduler) fetchArchive(ctx context.Context, log *zap.Logger, job asvo.Job, f asvo.File, pt *progress.Task) (int64, bool, error) {
	target := filepath.Join(s.cfg.DownloadDir, f.Name)

	st, statErr := os.Stat(target)

	switch {
	case statErr == nil && st.IsDir():
		err := fmt.Errorf("%s: target collides with an existing directory", target)
		pt.Done(err)

		return 0, false, err
	case statErr != nil && !os.IsNotExist(statErr):
		err := fmt.Errorf("stat %s: %w", target, statErr)
		pt.Done(err)

		return 0, false, err
	}

	exists := statErr == nil

	if exists && !s.cfg.Resume {
		// No silent overwrite: the existing file is left exactly as it
		// was found.
		err := &PartialFileError{Path: target, Size: st.Size()}
		pt.Done(err)

		return 0, false, err
	}

	// Decide between skipping, resuming, and restarting fresh.
	fresh := false

	if exists {
		switch {
		case f.Size >= 0 && st.Size() == f.Size:
			skip, err := s.resolveCompleteFile(log, job, f, target)
			if err != nil {
				pt.Done(err)

				return 0, false, err
			}

			if skip {
				pt.Skip("already complete")

				return 0, true, nil
			}

			fresh = true
		case f.Size >= 0 && st.Size() < f.Size:
			log.Info("resuming partial download",
				zap.String("file", f.Name),
				zap.Int64("offset", st.Size()),
				zap.Int64("expected", f.Size),
			)
		default:
			// Local file larger than expected, or no expected size to
			// compare against: treat as corrupt and start over. A
			// negative-range request is never issued.
			log.Warn("existing file cannot be resumed; restarting",
				zap.String("file", f.Name),
				zap.Int64("localSize", st.Size()),
				zap.Int64("expected", f.Size),
			)

			fresh = true
		}
	}

	if err := s.transfer(ctx, job, f, target, fresh, pt); err != nil {
		pt.Done(err)

		return pt.Transferred(), false, err
	}

	if s.cfg.CheckHash && f.Hash != "" {
		sum, err := utils.FileSHA1(target)
		if err != nil {
			pt.Done(err)

			return pt.Transferred(), false, err
		}

		if !strings.EqualFold(sum, f.Hash) {
			err := &HashMismatchError{JobID: job.ID, File: f.Name, Want: f.Hash, Got: sum}
			pt.Done(err)

			return pt.Transferred(), false, err
		}

		log.Debug("hash verified", zap.String("file", f.Name), zap.String("sha1", sum))
	}

	pt.Done(nil)

	return pt.Transferred(), false, nil
}

// resolveCompleteFile handles a local file whose size equals the
// manifest's. It reports skip=true when the file can be accepted
// without any network transfer, or requests a fresh restart.
func (s *Scheduler) resolveCompleteFile(log *zap.Logger, job asvo.Job, f asvo.File, target string) (skip bool, err error) {
	if f.Hash == "" || !s.cfg.CheckHash {
		if !s.cfg.CheckHash {
			// Hash checking is off, so size agreement is the best
			// available evidence of completeness.
			return true, nil
		}

		// Right size but nothing to verify it against: unresolved, so
		// start over.
		log.Warn("existing file matches the expected size but the manifest has no hash; restarting",
			zap.String("file", f.Name))

		return false, nil
	}

	sum, err := utils.FileSHA1(target)
	if err != nil {
		return false, err
	}

	if strings.EqualFold(sum, f.Hash) {
		return true, nil
	}

	if s.cfg.StrictResume {
		return false, &HashMismatchError{JobID: job.ID, File: f.Name, Want: f.Hash, Got: sum}
	}

	log.Warn("existing file matches the expected size but not the expected hash; restarting",
		zap.String("file", f.Name),
		zap.String("expected", f.Hash),
		zap.String("calculated", sum),
	)

	return false, nil
}

// transfer performs the network transfer under the retry policy. Each
// attempt re-derives the resume offset from the file on disk, so a
// transient mid-stream failure picks up where the last attempt stopped.
func (s *Scheduler) transfer(ctx context.Context, job asvo.Job, f asvo.File, target string, fresh bool, pt *progress.Task) error {
	url := s.urls.DownloadURL(job.ID, f)

	// The first attempt truncates when the existing file was judged
	// unresolvable; with resume disabled every attempt starts from
	// zero, since only this run's own bytes are on disk.
	mustTruncate := fresh

	return retry.Do(ctx, s.cfg.Retry, func() error {
		var offset int64

		if !mustTruncate && s.cfg.Resume {
			if st, err := os.Stat(target); err == nil && f.Size >= 0 && st.Size() > 0 && st.Size() <= f.Size {
				if st.Size() == f.Size {
					// A previous attempt already finished the file.
					return nil
				}

				offset = st.Size()
			}
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return retry.Permanent(err)
		}

		if offset > 0 {
			req.Header.Set("Range", fmt.Sprintf("bytes=%d-", offset))
		}

		resp, err := s.httpc.Do(req)
		if err != nil {
			return err
		}

		defer resp.Body.Close()

		if err := classifyResponse(resp); err != nil {
			return err
		}

		if offset > 0 && resp.StatusCode == http.StatusOK {
			// The server ignored the range request; take the full body
			// from the start.
			offset = 0
		}

		flags := os.O_WRONLY | os.O_CREATE | os.O_TRUNC
		if offset > 0 {
			flags = os.O_WRONLY | os.O_APPEND
		}

		out, err := os.OpenFile(target, flags, 0o644)
		if err != nil {
			return retry.Permanent(err)
		}

		mustTruncate = false

		w := bufio.NewWriterSize(out, s.cfg.BufferSize)

		_, copyErr := io.Copy(w, pt.CountReader(resp.Body))

		if err := w.Flush(); err != nil && copyErr == nil {
			copyErr = err
		}

		if err := out.Close(); err != nil && copyErr == nil {
			copyErr = err
		}

		// A stalled or broken transfer is transient; the bytes already
		// on disk feed the next attempt's resume offset.
		return copyErr
	})
}

