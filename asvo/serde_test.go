package asvo

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mwa-archive/squid/internal/testutils"
	"github.com/mwa-archive/squid/obsid"
)

func encodeListing(t *testing.T, rows ...string) []byte {
	t.Helper()

	data, err := json.Marshal(rows)
	require.NoError(t, err)

	return data
}

func TestDecodeJobListNumericCodes(t *testing.T) {
	listing := encodeListing(t, testutils.EncodeRow(t, testutils.Row{
		ID:       217,
		ObsID:    "1090528304",
		Type:     1,
		State:    2,
		Delivery: "acacia",
		Files: []testutils.RowFile{
			{Name: "1090528304.tar", Size: 1073741824, Hash: "ad591d84e8e566ae2b7d114a1e129961b9450fca", URL: "https://store.example/1090528304.tar"},
		},
	}))

	jobs, err := decodeJobList(listing)
	require.NoError(t, err)
	require.Len(t, jobs, 1)

	j := jobs[0]
	assert.Equal(t, JobID(217), j.ID)
	assert.Equal(t, obsid.Obsid(1090528304), j.Obsid)
	assert.Equal(t, TypeDownloadVisibilities, j.Type)
	assert.Equal(t, JobState{Kind: StateReady}, j.State)
	assert.Equal(t, DeliveryAcacia, j.Delivery)

	require.Len(t, j.Files, 1)
	assert.Equal(t, "1090528304.tar", j.Files[0].Name)
	assert.Equal(t, int64(1073741824), j.Files[0].Size)
	assert.Equal(t, "ad591d84e8e566ae2b7d114a1e129961b9450fca", j.Files[0].Hash)
	assert.Equal(t, "https://store.example/1090528304.tar", j.Files[0].URL)
}

func TestDecodeJobListStringCodes(t *testing.T) {
	listing := encodeListing(t, testutils.EncodeRow(t, testutils.Row{
		ID:    218,
		ObsID: "1090528304",
		Type:  "download_visibilities",
		State: "Processing",
	}))

	jobs, err := decodeJobList(listing)
	require.NoError(t, err)
	require.Len(t, jobs, 1)

	assert.Equal(t, TypeDownloadVisibilities, jobs[0].Type)
	assert.Equal(t, StateProcessing, jobs[0].State.Kind)
	assert.Empty(t, jobs[0].Files)
}

func TestDecodeJobListTupleFiles(t *testing.T) {
	// Older deployments sent the manifest as [name, size, hash] tuples.
	row := `{"row": {"id": 219, "job_type": 0, "job_state": 2,
		"job_params": {"obs_id": "1095506112"},
		"product": {"files": [["birli_out.ms.tar", 2048, "da39a3ee5e6b4b0d3255bfef95601890afd80709"]]}}}`

	jobs, err := decodeJobList(encodeListing(t, row))
	require.NoError(t, err)
	require.Len(t, jobs, 1)

	require.Len(t, jobs[0].Files, 1)
	f := jobs[0].Files[0]
	assert.Equal(t, "birli_out.ms.tar", f.Name)
	assert.Equal(t, int64(2048), f.Size)
	assert.Equal(t, "da39a3ee5e6b4b0d3255bfef95601890afd80709", f.Hash)
	assert.Empty(t, f.URL)
}

func TestDecodeJobListUnknownState(t *testing.T) {
	tests := []struct {
		name  string
		state any
		want  string
	}{
		{name: "string", state: "archiving", want: "archiving"},
		{name: "numeric", state: 42, want: "42"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			listing := encodeListing(t, testutils.EncodeRow(t, testutils.Row{
				ID:    220,
				ObsID: "1090528304",
				Type:  1,
				State: tt.state,
			}))

			jobs, err := decodeJobList(listing)
			require.NoError(t, err, "an unrecognized state must not fail decoding")
			require.Len(t, jobs, 1)

			assert.Equal(t, StateUnknown, jobs[0].State.Kind)
			assert.Equal(t, tt.want, jobs[0].State.Detail)
			assert.False(t, jobs[0].State.Kind.Terminal())
		})
	}
}

func TestDecodeJobListErrorState(t *testing.T) {
	listing := encodeListing(t, testutils.EncodeRow(t, testutils.Row{
		ID:        221,
		ObsID:     "1090528304",
		Type:      0,
		State:     3,
		ErrorText: "no gpubox files found",
	}))

	jobs, err := decodeJobList(listing)
	require.NoError(t, err)
	require.Len(t, jobs, 1)

	assert.Equal(t, StateError, jobs[0].State.Kind)
	assert.Equal(t, "no gpubox files found", jobs[0].State.Detail)
	assert.Equal(t, "Error: no gpubox files found", jobs[0].State.String())
}

func TestDecodeJobListFileWithoutSize(t *testing.T) {
	row := `{"row": {"id": 222, "job_type": 1, "job_state": 2,
		"job_params": {"obs_id": "1090528304"},
		"product": {"files": [{"file_name": "1090528304.tar"}]}}}`

	jobs, err := decodeJobList(encodeListing(t, row))
	require.NoError(t, err)

	require.Len(t, jobs[0].Files, 1)
	assert.Equal(t, int64(-1), jobs[0].Files[0].Size)
	assert.Empty(t, jobs[0].Files[0].Hash)
}

func TestDecodeJobListBadObsid(t *testing.T) {
	listing := encodeListing(t, testutils.EncodeRow(t, testutils.Row{
		ID:    223,
		ObsID: "12345",
		Type:  1,
		State: 0,
	}))

	_, err := decodeJobList(listing)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "job 223")
}

func TestDecodeJobListNotAnArray(t *testing.T) {
	_, err := decodeJobList([]byte(`{"row": {}}`))
	assert.Error(t, err)
}

func TestDecodeSubmitResponse(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		wantID  JobID
		wantErr string
	}{
		{name: "job id", body: `{"job_id": 12345}`, wantID: 12345},
		{name: "coded error", body: `{"error_code": 2, "error": "obs_id 1090528304 does not exist"}`, wantErr: "error code 2"},
		{name: "bare error", body: `{"error": "outage in progress"}`, wantErr: "outage in progress"},
		{name: "garbage", body: `{}`, wantErr: "unexpected submit response"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			id, err := decodeSubmitResponse([]byte(tt.body))

			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)

				return
			}

			require.NoError(t, err)
			assert.Equal(t, tt.wantID, id)
		})
	}
}
