// Package waitrunner blocks until the given jobs reach a terminal
// state, then reports where each one ended up.
package waitrunner

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"

	"github.com/olekukonko/tablewriter"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/mwa-archive/squid/asvo"
	"github.com/mwa-archive/squid/obsid"
	"github.com/mwa-archive/squid/poller"
	"github.com/mwa-archive/squid/retry"
	"github.com/mwa-archive/squid/runner"
)

type waitRunner struct {
	cfg *runner.Config
	log *zap.Logger
	out io.Writer

	jobIDs []asvo.JobID
	obsids []obsid.Obsid
}

func New(cfg *runner.Config) (runner.Runner, error) {
	r := &waitRunner{
		cfg: cfg,
		log: runner.NewLogger(cfg.Debug),
		out: os.Stdout,
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

func (r *waitRunner) Run(ctx context.Context) error {
	client, err := asvo.NewClient(ctx, asvo.Options{
		Server: r.cfg.Server,
		Retry:  retry.DefaultPolicy(),
		Logger: r.log,
	})
	if err != nil {
		return err
	}

	ids := r.jobIDs

	// Obs IDs target every job of that observation, whatever its state.
	if len(r.obsids) > 0 {
		jobs, err := client.GetJobs(ctx)
		if err != nil {
			return err
		}

		for _, o := range r.obsids {
			matched := false

			for _, j := range jobs {
				if j.Obsid == o {
					ids = append(ids, j.ID)
					matched = true
				}
			}

			if !matched {
				return fmt.Errorf("no jobs found for obsid %s", o)
			}
		}
	}

	p := poller.New(client, poller.Options{
		Interval: r.cfg.PollInterval,
		Logger:   r.log,
	})

	snapshots, err := p.Wait(ctx, ids)
	if err != nil {
		return err
	}

	final := make(asvo.JobList, 0, len(snapshots))
	for _, j := range snapshots {
		final = append(final, j)
	}

	sort.Slice(final, func(i, k int) bool { return final[i].ID < final[k].ID })

	if r.cfg.JSON {
		if err := renderJSON(r.out, final); err != nil {
			return err
		}
	} else {
		renderTable(r.out, final)
	}

	var failed error

	for _, j := range final {
		if j.State.Kind == asvo.StateError {
			failed = multierr.Append(failed, fmt.Errorf("job %d (obsid %s) ended in state %s", j.ID, j.Obsid, j.State))
		}
	}

	return failed
}

func (r *waitRunner) Close(context.Context) error {
	_ = r.log.Sync()

	return nil
}

func renderTable(out io.Writer, jobs asvo.JobList) {
	table := tablewriter.NewWriter(out)
	table.SetHeader([]string{"Job ID", "Obsid", "Type", "Final state"})
	table.SetAutoWrapText(false)

	for _, j := range jobs {
		table.Append([]string{
			strconv.Itoa(int(j.ID)),
			j.Obsid.String(),
			j.Type.String(),
			j.State.String(),
		})
	}

	table.Render()
}

func renderJSON(out io.Writer, jobs asvo.JobList) error {
	type finalState struct {
		Obsid uint64 `json:"obsid"`
		Type  string `json:"jobType"`
		State string `json:"jobState"`
	}

	m := make(map[string]finalState, len(jobs))

	for _, j := range jobs {
		m[strconv.Itoa(int(j.ID))] = finalState{
			Obsid: uint64(j.Obsid),
			Type:  j.Type.String(),
			State: j.State.String(),
		}
	}

	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")

	return enc.Encode(m)
}
