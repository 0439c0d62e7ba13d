// Package submitrunner submits staging jobs for one or more
// observations and optionally waits for them to finish.
package submitrunner

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/mwa-archive/squid/asvo"
	"github.com/mwa-archive/squid/obsid"
	"github.com/mwa-archive/squid/poller"
	"github.com/mwa-archive/squid/retry"
	"github.com/mwa-archive/squid/runner"
)

var errJobIDGiven = errors.New("submission targets must be obs IDs, not job IDs")

type submitRunner struct {
	cfg *runner.Config
	log *zap.Logger

	obsids   []obsid.Obsid
	delivery asvo.Delivery
}

func New(cfg *runner.Config) (runner.Runner, error) {
	r := &submitRunner{
		cfg: cfg,
		log: runner.NewLogger(cfg.Debug),
	}

	ids, obs, err := obsid.ParseMany(cfg.Identifiers)
	if err != nil {
		return nil, err
	}

	if len(ids) > 0 {
		return nil, fmt.Errorf("%w: got %d", errJobIDGiven, ids[0])
	}

	r.obsids = obs

	r.delivery, err = asvo.ParseDelivery(cfg.Delivery)
	if err != nil {
		return nil, err
	}

	return r, nil
}

func (r *submitRunner) Run(ctx context.Context) error {
	client, err := asvo.NewClient(ctx, asvo.Options{
		Server: r.cfg.Server,
		Retry:  retry.DefaultPolicy(),
		Logger: r.log,
	})
	if err != nil {
		return err
	}

	opts := asvo.SubmitOptions{
		Delivery:      r.delivery,
		Format:        r.cfg.DeliveryFormat,
		ExpiryDays:    r.cfg.ExpiryDays,
		AllowResubmit: r.cfg.AllowResubmit,
	}

	var (
		submitted []asvo.JobID
		failed    error
	)

	for _, o := range r.obsids {
		id, err := r.submit(ctx, client, o, opts)
		if err != nil {
			r.log.Error("submission failed", zap.Uint64("obsid", uint64(o)), zap.Error(err))

			failed = multierr.Append(failed, fmt.Errorf("obsid %s: %w", o, err))

			continue
		}

		r.log.Info("job submitted",
			zap.Int("jobID", int(id)),
			zap.Uint64("obsid", uint64(o)),
			zap.String("delivery", r.delivery.String()),
		)

		submitted = append(submitted, id)
	}

	if r.cfg.Wait && len(submitted) > 0 {
		p := poller.New(client, poller.Options{
			Interval: r.cfg.PollInterval,
			Logger:   r.log,
		})

		snapshots, err := p.Wait(ctx, submitted)
		if err != nil {
			return multierr.Append(failed, err)
		}

		for _, j := range snapshots {
			if j.State.Kind == asvo.StateError {
				failed = multierr.Append(failed, fmt.Errorf("job %d (obsid %s) ended in state %s", j.ID, j.Obsid, j.State))
			}
		}
	}

	return failed
}

func (r *submitRunner) Close(context.Context) error {
	_ = r.log.Sync()

	return nil
}

func (r *submitRunner) submit(ctx context.Context, client *asvo.Client, o obsid.Obsid, opts asvo.SubmitOptions) (asvo.JobID, error) {
	switch r.cfg.RunMode {
	case runner.RunModeSubmitVis:
		return client.SubmitVisibilities(ctx, o, opts)
	case runner.RunModeSubmitConversion:
		return client.SubmitConversion(ctx, o, r.cfg.ConversionParams, opts)
	case runner.RunModeSubmitMetadata:
		return client.SubmitMetadata(ctx, o, opts)
	case runner.RunModeSubmitVoltage:
		return client.SubmitVoltage(ctx, o, r.cfg.VoltageOffset, r.cfg.VoltageDuration, opts)
	default:
		return 0, fmt.Errorf("%w: %d", runner.ErrInvalidRunMode, r.cfg.RunMode)
	}
}
