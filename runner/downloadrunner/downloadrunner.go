// Package downloadrunner resolves the given identifiers to ready jobs
// and feeds them through the download scheduler.
package downloadrunner

import (
	"context"
	"fmt"

	"github.com/dustin/go-humanize"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/mwa-archive/squid/asvo"
	"github.com/mwa-archive/squid/downloader"
	"github.com/mwa-archive/squid/obsid"
	"github.com/mwa-archive/squid/retry"
	"github.com/mwa-archive/squid/runner"
)

type downloadRunner struct {
	cfg *runner.Config
	log *zap.Logger

	jobIDs []asvo.JobID
	obsids []obsid.Obsid
}

func New(cfg *runner.Config) (runner.Runner, error) {
	r := &downloadRunner{
		cfg: cfg,
		log: runner.NewLogger(cfg.Debug),
	}

	ids, obs, err := obsid.ParseMany(cfg.Identifiers)
	if err != nil {
		return nil, err
	}

	for _, id := range ids {
		r.jobIDs = append(r.jobIDs, asvo.JobID(id))
	}

	r.obsids = obs

	return r, nil
}

func (r *downloadRunner) Run(ctx context.Context) error {
	client, err := asvo.NewClient(ctx, asvo.Options{
		Server: r.cfg.Server,
		Retry:  retry.DefaultPolicy(),
		Logger: r.log,
	})
	if err != nil {
		return err
	}

	sched, err := downloader.New(downloader.Config{
		DownloadDir:  r.cfg.DownloadDir,
		Concurrency:  r.cfg.Concurrency,
		KeepArchive:  r.cfg.KeepArchive,
		Resume:       !r.cfg.NoResume,
		CheckHash:    !r.cfg.SkipHash,
		StrictResume: r.cfg.StrictResume,
		BufferSize:   r.cfg.BufferMiB * 1024 * 1024,
		DryRun:       r.cfg.DryRun,
		Retry:        retry.DefaultPolicy(),
		Logger:       r.log,
	}, client.HTTPClient(), client)
	if err != nil {
		return err
	}

	jobs, err := client.GetJobs(ctx)
	if err != nil {
		return err
	}

	resolved, resolveErrs := asvo.ResolveReady(jobs, r.jobIDs, r.obsids)

	var combined error

	for _, e := range resolveErrs {
		r.log.Error("cannot download", zap.Error(e))

		combined = multierr.Append(combined, e)
	}

	if len(resolved) > 0 {
		results, runErr := sched.Run(ctx, resolved)
		combined = multierr.Append(combined, runErr)

		r.summarize(results)
	}

	return combined
}

func (r *downloadRunner) Close(context.Context) error {
	_ = r.log.Sync()

	return nil
}

func (r *downloadRunner) summarize(results []downloader.Result) {
	var (
		completed, skipped, failed int
		bytes                      int64
	)

	for _, res := range results {
		bytes += res.Bytes

		switch {
		case res.Err != nil:
			failed++
		case res.Skipped:
			skipped++
		default:
			completed++
		}
	}

	r.log.Info("download batch finished",
		zap.Int("completed", completed),
		zap.Int("skipped", skipped),
		zap.Int("failed", failed),
		zap.String("transferred", humanize.IBytes(uint64(bytes))),
	)

	if failed > 0 {
		r.log.Warn(fmt.Sprintf("%d of %d jobs failed", failed, len(results)))
	}
}
