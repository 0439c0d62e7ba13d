package asvo_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mwa-archive/squid/asvo"
	"github.com/mwa-archive/squid/obsid"
)

func job(id int, obs uint64, kind asvo.StateKind) asvo.Job {
	return asvo.Job{
		ID:    asvo.JobID(id),
		Obsid: obsid.Obsid(obs),
		Type:  asvo.TypeDownloadVisibilities,
		State: asvo.JobState{Kind: kind},
	}
}

func TestResolveReadyJobIDs(t *testing.T) {
	listing := asvo.JobList{
		job(1, 1090528304, asvo.StateReady),
		job(2, 1090528304, asvo.StateQueued),
	}

	resolved, errs := asvo.ResolveReady(listing, []asvo.JobID{1, 2, 3}, nil)

	require.Len(t, resolved, 1)
	assert.Equal(t, asvo.JobID(1), resolved[0].ID)

	require.Len(t, errs, 2)

	var notReady *asvo.NotReadyError

	require.ErrorAs(t, errs[0], &notReady)
	assert.Equal(t, asvo.JobID(2), notReady.ID)

	var noSuch *asvo.NoSuchJobError

	require.ErrorAs(t, errs[1], &noSuch)
	assert.Equal(t, asvo.JobID(3), noSuch.ID)
}

func TestResolveReadyObsidExactlyOneReady(t *testing.T) {
	listing := asvo.JobList{
		job(1, 1090528304, asvo.StateError),
		job(2, 1090528304, asvo.StateReady),
		job(3, 1090528304, asvo.StateQueued),
	}

	resolved, errs := asvo.ResolveReady(listing, nil, []obsid.Obsid{1090528304})

	assert.Empty(t, errs)
	require.Len(t, resolved, 1)
	assert.Equal(t, asvo.JobID(2), resolved[0].ID)
}

func TestResolveReadyObsidAmbiguous(t *testing.T) {
	listing := asvo.JobList{
		job(1, 1090528304, asvo.StateReady),
		job(2, 1090528304, asvo.StateReady),
	}

	resolved, errs := asvo.ResolveReady(listing, nil, []obsid.Obsid{1090528304})

	assert.Empty(t, resolved)
	require.Len(t, errs, 1)

	var amb *asvo.AmbiguousError

	require.ErrorAs(t, errs[0], &amb)
	assert.Equal(t, []asvo.JobID{1, 2}, amb.Ready)
	assert.Contains(t, amb.Error(), "1, 2")
}

func TestResolveReadyObsidNoReadyJobs(t *testing.T) {
	listing := asvo.JobList{
		job(1, 1090528304, asvo.StateQueued),
	}

	_, errs := asvo.ResolveReady(listing, nil, []obsid.Obsid{1090528304})

	require.Len(t, errs, 1)

	var amb *asvo.AmbiguousError

	require.ErrorAs(t, errs[0], &amb)
	assert.Empty(t, amb.Ready)
	assert.Equal(t, []asvo.JobID{1}, amb.All)
	assert.Contains(t, amb.Error(), "no ready jobs")
}

func TestResolveReadyObsidNotFound(t *testing.T) {
	_, errs := asvo.ResolveReady(nil, nil, []obsid.Obsid{1090528304})

	require.Len(t, errs, 1)

	var amb *asvo.AmbiguousError

	require.ErrorAs(t, errs[0], &amb)
	assert.Empty(t, amb.All)
	assert.Contains(t, amb.Error(), "wasn't found")
}

// Per-identifier isolation: one bad identifier never blocks the others.
func TestResolveReadyIsolation(t *testing.T) {
	listing := asvo.JobList{
		job(1, 1090528304, asvo.StateReady),
		job(2, 1095506112, asvo.StateReady),
		job(3, 1099414416, asvo.StateProcessing),
	}

	resolved, errs := asvo.ResolveReady(listing,
		[]asvo.JobID{1, 99},
		[]obsid.Obsid{1095506112, 1099414416},
	)

	require.Len(t, resolved, 2)
	assert.Equal(t, asvo.JobID(1), resolved[0].ID)
	assert.Equal(t, asvo.JobID(2), resolved[1].ID)
	assert.Len(t, errs, 2)
}
