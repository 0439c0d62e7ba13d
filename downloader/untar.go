package downloader

import (
	"archive/tar"
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/mwa-archive/squid/asvo"
	"github.com/mwa-archive/squid/progress"
	"github.com/mwa-archive/squid/retry"
)

// extractArchive streams the archive straight into DownloadDir without
// writing it to disk, hashing the raw bytes in the same pass. There is
// no resume in this mode: a broken stream fails the task and a later
// run extracts from scratch, which is safe because directory creation
// and file writes are idempotent.
func (s *Scheduler) extractArchive(ctx context.Context, log *zap.Logger, job asvo.Job, f asvo.File, pt *progress.Task) (int64, bool, error) {
	resp, err := s.openStream(ctx, s.urls.DownloadURL(job.ID, f))
	if err != nil {
		pt.Done(err)

		return 0, false, err
	}

	defer resp.Body.Close()

	tee := newSHA1Reader(pt.CountReader(resp.Body))

	if err := s.untar(tee, log); err != nil {
		pt.Done(err)

		return pt.Transferred(), false, err
	}

	// Pull any trailing archive padding through the hash before
	// comparing digests.
	if _, err := io.Copy(io.Discard, tee); err != nil {
		pt.Done(err)

		return pt.Transferred(), false, err
	}

	if s.cfg.CheckHash && f.Hash != "" {
		if got := tee.Sum(); !strings.EqualFold(got, f.Hash) {
			err := &HashMismatchError{JobID: job.ID, File: f.Name, Want: f.Hash, Got: got}
			pt.Done(err)

			return pt.Transferred(), false, err
		}

		log.Debug("hash verified", zap.String("file", f.Name), zap.String("sha1", f.Hash))
	}

	pt.Done(nil)

	return pt.Transferred(), false, nil
}

// openStream issues the GET under the retry policy. Only opening the
// stream is retried; once extraction has begun a failure surfaces as a
// task error.
func (s *Scheduler) openStream(ctx context.Context, url string) (*http.Response, error) {
	var resp *http.Response

	err := retry.Do(ctx, s.cfg.Retry, func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return retry.Permanent(err)
		}

		r, err := s.httpc.Do(req)
		if err != nil {
			return err
		}

		if err := classifyResponse(r); err != nil {
			r.Body.Close()

			return err
		}

		resp = r

		return nil
	})
	if err != nil {
		return nil, err
	}

	return resp, nil
}

func (s *Scheduler) untar(r io.Reader, log *zap.Logger) error {
	tr := tar.NewReader(bufio.NewReaderSize(r, s.cfg.BufferSize))

	for {
		hdr, err := tr.Next()
		if errors.Is(err, io.EOF) {
			return nil
		}

		if err != nil {
			return fmt.Errorf("reading archive: %w", err)
		}

		target, err := s.entryPath(hdr.Name)
		if err != nil {
			return err
		}

		switch hdr.Typeflag {
		case tar.TypeDir:
			if err := os.MkdirAll(target, 0o755); err != nil {
				return fmt.Errorf("creating directory %s: %w", target, err)
			}
		case tar.TypeReg:
			if err := s.extractFile(tr, target); err != nil {
				return err
			}

			log.Debug("extracted", zap.String("path", target), zap.Int64("size", hdr.Size))
		default:
			log.Warn("skipping unsupported archive entry",
				zap.String("name", hdr.Name),
				zap.Uint8("type", hdr.Typeflag),
			)
		}
	}
}

// entryPath maps an archive member name into DownloadDir, rejecting
// names that would escape it.
func (s *Scheduler) entryPath(name string) (string, error) {
	clean := filepath.Clean(filepath.FromSlash(name))
	if filepath.IsAbs(clean) || clean == ".." || strings.HasPrefix(clean, ".."+string(os.PathSeparator)) {
		return "", fmt.Errorf("archive entry %q escapes the download directory", name)
	}

	return filepath.Join(s.cfg.DownloadDir, clean), nil
}

func (s *Scheduler) extractFile(r io.Reader, target string) error {
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return fmt.Errorf("creating directory %s: %w", filepath.Dir(target), err)
	}

	out, err := os.OpenFile(target, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return fmt.Errorf("creating %s: %w", target, err)
	}

	w := bufio.NewWriterSize(out, s.cfg.BufferSize)

	if _, err := io.Copy(w, r); err != nil {
		out.Close()

		return fmt.Errorf("writing %s: %w", target, err)
	}

	if err := w.Flush(); err != nil {
		out.Close()

		return fmt.Errorf("writing %s: %w", target, err)
	}

	if err := out.Close(); err != nil {
		return fmt.Errorf("closing %s: %w", target, err)
	}

	now := time.Now()
	if err := os.Chtimes(target, now, now); err != nil {
		return fmt.Errorf("setting times on %s: %w", target, err)
	}

	return nil
}
