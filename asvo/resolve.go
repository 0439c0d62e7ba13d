package asvo

import (
	"github.com/mwa-archive/squid/obsid"
)

// ResolveReady maps user-supplied identifiers to concrete downloadable
// jobs against a listing snapshot. Each job ID must exist and be Ready;
// each obsid must have exactly one Ready job among the jobs sharing it.
// Resolution failures are isolated per identifier: the returned jobs
// are those that resolved, and errs collects one error per identifier
// that did not.
func ResolveReady(jobs JobList, jobIDs []JobID, obsids []obsid.Obsid) (resolved []Job, errs []error) {
	byID := jobs.Map()

	for _, id := range jobIDs {
		job, ok := byID[id]
		if !ok {
			errs = append(errs, &NoSuchJobError{ID: id})

			continue
		}

		if job.State.Kind != StateReady {
			errs = append(errs, &NotReadyError{ID: id, State: job.State})

			continue
		}

		resolved = append(resolved, job)
	}

	for _, o := range obsids {
		matches := jobs.Filter(func(j Job) bool { return j.Obsid == o })
		ready := matches.Filter(func(j Job) bool { return j.State.Kind == StateReady })

		if len(ready) != 1 {
			errs = append(errs, &AmbiguousError{
				Obsid: o,
				Ready: jobIDsOf(ready),
				All:   jobIDsOf(matches),
			})

			continue
		}

		resolved = append(resolved, ready[0])
	}

	return resolved, errs
}

func jobIDsOf(jobs JobList) []JobID {
	ids := make([]JobID, len(jobs))

	for i, j := range jobs {
		ids[i] = j.ID
	}

	return ids
}
