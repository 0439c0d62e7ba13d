// Package listrunner renders the user's job listing, optionally
// filtered by identifier, job type and job state.
package listrunner

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/dustin/go-humanize"
	"github.com/olekukonko/tablewriter"
	"go.uber.org/zap"

	"github.com/mwa-archive/squid/asvo"
	"github.com/mwa-archive/squid/obsid"
	"github.com/mwa-archive/squid/retry"
	"github.com/mwa-archive/squid/runner"
)

type listRunner struct {
	cfg *runner.Config
	log *zap.Logger
	out io.Writer

	jobIDs []asvo.JobID
	obsids []obsid.Obsid
	types  []asvo.JobType
	states []asvo.StateKind
}

func New(cfg *runner.Config) (runner.Runner, error) {
	r := &listRunner{
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

	for _, s := range cfg.Types {
		t := asvo.ParseJobType(s)
		if t == asvo.TypeUnknown {
			return nil, fmt.Errorf("unknown job type %q", s)
		}

		r.types = append(r.types, t)
	}

	for _, s := range cfg.States {
		k := asvo.ParseStateKind(s)
		if k == asvo.StateUnknown {
			return nil, fmt.Errorf("unknown job state %q", s)
		}

		r.states = append(r.states, k)
	}

	return r, nil
}

func (r *listRunner) Run(ctx context.Context) error {
	client, err := asvo.NewClient(ctx, asvo.Options{
		Server: r.cfg.Server,
		Retry:  retry.DefaultPolicy(),
		Logger: r.log,
	})
	if err != nil {
		return err
	}

	jobs, err := client.GetJobs(ctx)
	if err != nil {
		return err
	}

	jobs = jobs.Filter(r.keep)

	if len(jobs) == 0 {
		r.log.Info("no jobs matched")

		return nil
	}

	if r.cfg.JSON {
		return renderJSON(r.out, jobs)
	}

	renderTable(r.out, jobs)

	return nil
}

func (r *listRunner) Close(context.Context) error {
	_ = r.log.Sync()

	return nil
}

func (r *listRunner) keep(j asvo.Job) bool {
	if len(r.jobIDs) > 0 || len(r.obsids) > 0 {
		found := false

		for _, id := range r.jobIDs {
			if j.ID == id {
				found = true

				break
			}
		}

		for _, o := range r.obsids {
			if j.Obsid == o {
				found = true

				break
			}
		}

		if !found {
			return false
		}
	}

	if len(r.types) > 0 && !containsType(r.types, j.Type) {
		return false
	}

	if len(r.states) > 0 && !containsState(r.states, j.State.Kind) {
		return false
	}

	return true
}

func containsType(ts []asvo.JobType, t asvo.JobType) bool {
	for _, x := range ts {
		if x == t {
			return true
		}
	}

	return false
}

func containsState(ks []asvo.StateKind, k asvo.StateKind) bool {
	for _, x := range ks {
		if x == k {
			return true
		}
	}

	return false
}

func renderTable(out io.Writer, jobs asvo.JobList) {
	table := tablewriter.NewWriter(out)
	table.SetHeader([]string{"Job ID", "Obsid", "Type", "State", "Files", "Size"})
	table.SetAutoWrapText(false)

	for _, j := range jobs {
		size := ""
		if total := j.TotalBytes(); total > 0 {
			size = humanize.IBytes(uint64(total))
		}

		table.Append([]string{
			strconv.Itoa(int(j.ID)),
			j.Obsid.String(),
			j.Type.String(),
			j.State.String(),
			strconv.Itoa(len(j.Files)),
			size,
		})
	}

	table.Render()
}

type jsonFile struct {
	Name string `json:"fileName"`
	Size int64  `json:"fileSize"`
	Hash string `json:"fileHash,omitempty"`
}

type jsonJob struct {
	Obsid uint64     `json:"obsid"`
	Type  string     `json:"jobType"`
	State string     `json:"jobState"`
	Files []jsonFile `json:"files,omitempty"`
}

func renderJSON(out io.Writer, jobs asvo.JobList) error {
	m := make(map[string]jsonJob, len(jobs))

	for _, j := range jobs {
		jj := jsonJob{
			Obsid: uint64(j.Obsid),
			Type:  j.Type.String(),
			State: j.State.String(),
		}

		for _, f := range j.Files {
			jj.Files = append(jj.Files, jsonFile{Name: f.Name, Size: f.Size, Hash: f.Hash})
		}

		m[strconv.Itoa(int(j.ID))] = jj
	}

	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")

	return enc.Encode(m)
}
