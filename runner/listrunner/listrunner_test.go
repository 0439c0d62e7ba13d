package listrunner

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mwa-archive/squid/asvo"
	"github.com/mwa-archive/squid/obsid"
	"github.com/mwa-archive/squid/runner"
)

func sampleJobs() asvo.JobList {
	return asvo.JobList{
		{
			ID:    1,
			Obsid: obsid.Obsid(1090528304),
			Type:  asvo.TypeDownloadVisibilities,
			State: asvo.JobState{Kind: asvo.StateReady},
			Files: []asvo.File{{Name: "1090528304.tar", Size: 1 << 30, Hash: "abc"}},
		},
		{
			ID:    2,
			Obsid: obsid.Obsid(1095506112),
			Type:  asvo.TypeConversion,
			State: asvo.JobState{Kind: asvo.StateQueued},
		},
	}
}

func TestNewRejectsBadFilters(t *testing.T) {
	_, err := New(&runner.Config{RunMode: runner.RunModeList, Types: []string{"scraping"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown job type")

	_, err = New(&runner.Config{RunMode: runner.RunModeList, States: []string{"paused"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown job state")
}

func TestKeepFilters(t *testing.T) {
	jobs := sampleJobs()

	r := &listRunner{types: []asvo.JobType{asvo.TypeConversion}}
	assert.False(t, r.keep(jobs[0]))
	assert.True(t, r.keep(jobs[1]))

	r = &listRunner{states: []asvo.StateKind{asvo.StateReady}}
	assert.True(t, r.keep(jobs[0]))
	assert.False(t, r.keep(jobs[1]))

	r = &listRunner{obsids: []obsid.Obsid{1095506112}}
	assert.False(t, r.keep(jobs[0]))
	assert.True(t, r.keep(jobs[1]))

	r = &listRunner{jobIDs: []asvo.JobID{1}, obsids: []obsid.Obsid{1095506112}}
	assert.True(t, r.keep(jobs[0]))
	assert.True(t, r.keep(jobs[1]))
}

func TestRenderTable(t *testing.T) {
	var buf bytes.Buffer

	renderTable(&buf, sampleJobs())

	out := buf.String()
	assert.Contains(t, out, "1090528304")
	assert.Contains(t, out, "Download Visibilities")
	assert.Contains(t, out, "Ready")
	assert.Contains(t, out, "1.0 GiB")
	assert.Contains(t, out, "Queued")
}

func TestRenderJSON(t *testing.T) {
	var buf bytes.Buffer

	require.NoError(t, renderJSON(&buf, sampleJobs()))

	var decoded map[string]struct {
		Obsid uint64 `json:"obsid"`
		Type  string `json:"jobType"`
		State string `json:"jobState"`
		Files []struct {
			Name string `json:"fileName"`
			Size int64  `json:"fileSize"`
		} `json:"files"`
	}

	require.NoError(t, json.Unmarshal(buf.Bytes(), &decoded))
	require.Len(t, decoded, 2)

	assert.Equal(t, uint64(1090528304), decoded["1"].Obsid)
	assert.Equal(t, "Ready", decoded["1"].State)
	require.Len(t, decoded["1"].Files, 1)
	assert.Equal(t, int64(1<<30), decoded["1"].Files[0].Size)

	assert.Equal(t, "Conversion", decoded["2"].Type)
	assert.Empty(t, decoded["2"].Files)
}
