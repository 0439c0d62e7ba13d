// Package poller implements the wait engine: it repeatedly polls the
// job listing until every targeted job reaches a terminal state.
package poller

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/mwa-archive/squid/asvo"
)

// JobSource supplies job listing snapshots.
type JobSource interface {
	GetJobs(ctx context.Context) (asvo.JobList, error)
}

// Options configures a Poller.
type Options struct {
	// Interval between polls. Default: 60s.
	Interval time.Duration

	// InitialDelay is a courtesy wait before the first poll, so the
	// user's queue is hopefully current. Default: 5s.
	InitialDelay time.Duration

	// Types and States optionally narrow the targeted jobs. Matching is
	// case- and delimiter-insensitive via the asvo parse functions.
	Types  []asvo.JobType
	States []asvo.StateKind

	Logger *zap.Logger
}

// Poller drives a single poll-sleep loop. It holds no durable state
// besides in-memory job snapshots.
type Poller struct {
	src  JobSource
	opts Options
	log  *zap.Logger
}

func New(src JobSource, opts Options) *Poller {
	if opts.Interval <= 0 {
		opts.Interval = 60 * time.Second
	}

	if opts.InitialDelay < 0 {
		opts.InitialDelay = 0
	} else if opts.InitialDelay == 0 {
		opts.InitialDelay = 5 * time.Second
	}

	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}

	return &Poller{src: src, opts: opts, log: opts.Logger}
}

// Wait polls until every targeted job is terminal or ctx is cancelled.
// Jobs already terminal are excluded from subsequent polls. It returns
// the final snapshot of every targeted job, keyed by job ID.
func (p *Poller) Wait(ctx context.Context, ids []asvo.JobID) (map[asvo.JobID]asvo.Job, error) {
	if len(ids) == 0 {
		return nil, asvo.ErrNoJobs
	}

	if err := sleep(ctx, p.opts.InitialDelay); err != nil {
		return nil, err
	}

	p.log.Info("waiting for jobs to reach a terminal state", zap.Int("count", len(ids)))

	snapshots := make(map[asvo.JobID]asvo.Job, len(ids))
	lastState := make(map[asvo.JobID]asvo.JobState, len(ids))

	var pending []asvo.JobID

	first := true

	for {
		listing, err := p.src.GetJobs(ctx)
		if err != nil {
			return nil, err
		}

		byID := listing.Map()

		if first {
			pending = p.selectTargets(ids, byID)
			first = false
		}

		remaining := pending[:0]

		for _, id := range pending {
			job, ok := byID[id]
			if !ok {
				return nil, &asvo.NoSuchJobError{ID: id}
			}

			snapshots[id] = job

			if last, seen := lastState[id]; !seen || last != job.State {
				p.logTransition(job)
			}

			lastState[id] = job.State

			if !job.State.Kind.Terminal() {
				remaining = append(remaining, id)
			}
		}

		pending = remaining

		if len(pending) == 0 {
			p.log.Info("all targeted jobs are in a terminal state", zap.Int("count", len(snapshots)))

			return snapshots, nil
		}

		if err := sleep(ctx, p.opts.Interval); err != nil {
			return nil, err
		}
	}
}

// selectTargets resolves the targeted job set on the first poll,
// applying the optional type/state filters. Missing IDs are kept so the
// per-poll loop reports them as errors.
func (p *Poller) selectTargets(ids []asvo.JobID, byID map[asvo.JobID]asvo.Job) []asvo.JobID {
	targets := make([]asvo.JobID, 0, len(ids))

	for _, id := range ids {
		if job, ok := byID[id]; ok && !p.matches(job) {
			continue
		}

		targets = append(targets, id)
	}

	return targets
}

func (p *Poller) matches(job asvo.Job) bool {
	if len(p.opts.Types) > 0 {
		ok := false

		for _, t := range p.opts.Types {
			if t == job.Type {
				ok = true

				break
			}
		}

		if !ok {
			return false
		}
	}

	if len(p.opts.States) > 0 {
		ok := false

		for _, s := range p.opts.States {
			if s == job.State.Kind {
				ok = true

				break
			}
		}

		if !ok {
			return false
		}
	}

	return true
}

func (p *Poller) logTransition(job asvo.Job) {
	fields := []zap.Field{
		zap.Int("jobID", int(job.ID)),
		zap.String("obsid", job.Obsid.String()),
		zap.String("state", job.State.String()),
	}

	if job.State.Kind == asvo.StateUnknown {
		// Forward compatible: a state this client does not recognize is
		// reported but never fails the wait.
		p.log.Warn("job entered an unrecognized state", fields...)

		return
	}

	p.log.Info("job state changed", fields...)
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
