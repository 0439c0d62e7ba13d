// Package cancelrunner cancels queued or processing jobs by ID.
package cancelrunner

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/mwa-archive/squid/asvo"
	"github.com/mwa-archive/squid/obsid"
	"github.com/mwa-archive/squid/retry"
	"github.com/mwa-archive/squid/runner"
)

var errObsidGiven = errors.New("cancellation targets must be job IDs, not obs IDs")

type cancelRunner struct {
	cfg *runner.Config
	log *zap.Logger

	jobIDs []asvo.JobID
}

func New(cfg *runner.Config) (runner.Runner, error) {
	r := &cancelRunner{
		cfg: cfg,
		log: runner.NewLogger(cfg.Debug),
	}

	ids, obs, err := obsid.ParseMany(cfg.Identifiers)
	if err != nil {
		return nil, err
	}

	if len(obs) > 0 {
		return nil, fmt.Errorf("%w: got %s", errObsidGiven, obs[0])
	}

	for _, id := range ids {
		r.jobIDs = append(r.jobIDs, asvo.JobID(id))
	}

	return r, nil
}

func (r *cancelRunner) Run(ctx context.Context) error {
	client, err := asvo.NewClient(ctx, asvo.Options{
		Server: r.cfg.Server,
		Retry:  retry.DefaultPolicy(),
		Logger: r.log,
	})
	if err != nil {
		return err
	}

	var failed error

	for _, id := range r.jobIDs {
		if err := client.CancelJob(ctx, id); err != nil {
			r.log.Error("cancellation failed", zap.Int("jobID", int(id)), zap.Error(err))

			failed = multierr.Append(failed, fmt.Errorf("job %d: %w", id, err))

			continue
		}

		r.log.Info("job cancelled", zap.Int("jobID", int(id)))
	}

	return failed
}

func (r *cancelRunner) Close(context.Context) error {
	_ = r.log.Sync()

	return nil
}
