package asvo

import (
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/mwa-archive/squid/obsid"
)

// The job listing is double-encoded: the body is a JSON array of
// strings, and each string is itself a JSON document describing one job
// row. job_type and job_state arrive as legacy numeric codes on older
// deployments and as strings on newer ones; both are accepted, and
// values this client does not recognize decode to an Unknown variant
// instead of failing, so new server-side states never break the client.

type wireJob struct {
	Row wireRow `json:"row"`
}

type wireRow struct {
	ID        JobID           `json:"id"`
	JobType   wireCode        `json:"job_type"`
	JobState  wireCode        `json:"job_state"`
	JobParams wireJobParams   `json:"job_params"`
	ErrorText *string         `json:"error_text"`
	Product   json.RawMessage `json:"product"`
}

type wireJobParams struct {
	ObsID    string `json:"obs_id"`
	Delivery string `json:"delivery"`
}

// wireCode is a JSON value that may be a number or a string.
type wireCode struct {
	num    int
	str    string
	isStr  bool
	isNull bool
}

func (c *wireCode) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		c.isNull = true

		return nil
	}

	if data[0] == '"' {
		c.isStr = true

		return json.Unmarshal(data, &c.str)
	}

	return json.Unmarshal(data, &c.num)
}

type wireFileObject struct {
	FileName string `json:"file_name"`
	FileSize *int64 `json:"file_size"`
	SHA1     string `json:"sha1"`
	FileURL  string `json:"file_url"`
}

// decodeJobList decodes the body of a get_jobs response.
func decodeJobList(data []byte) (JobList, error) {
	var raws []string

	if err := json.Unmarshal(data, &raws); err != nil {
		return nil, fmt.Errorf("decoding job listing: %w", err)
	}

	jobs := make(JobList, 0, len(raws))

	for _, raw := range raws {
		var w wireJob

		if err := json.Unmarshal([]byte(raw), &w); err != nil {
			return nil, fmt.Errorf("decoding job row: %w", err)
		}

		job, err := w.Row.toJob()
		if err != nil {
			return nil, err
		}

		jobs = append(jobs, job)
	}

	return jobs, nil
}

func (r wireRow) toJob() (Job, error) {
	o, err := obsid.Parse(r.JobParams.ObsID)
	if err != nil {
		return Job{}, fmt.Errorf("job %d has an invalid obs_id %q: %w", r.ID, r.JobParams.ObsID, err)
	}

	files, err := decodeFiles(r.Product)
	if err != nil {
		return Job{}, fmt.Errorf("job %d: %w", r.ID, err)
	}

	delivery := DeliveryUnknown
	if d, err := ParseDelivery(r.JobParams.Delivery); err == nil {
		delivery = d
	}

	return Job{
		ID:       r.ID,
		Obsid:    o,
		Type:     r.JobType.toJobType(),
		State:    r.JobState.toJobState(r.ErrorText),
		Delivery: delivery,
		Files:    files,
	}, nil
}

func (c wireCode) toJobType() JobType {
	if c.isStr {
		return ParseJobType(c.str)
	}

	switch c.num {
	case 0:
		return TypeConversion
	case 1:
		return TypeDownloadVisibilities
	case 2:
		return TypeDownloadMetadata
	case 3:
		return TypeDownloadVoltage
	case 4:
		return TypeCancelJob
	default:
		return TypeUnknown
	}
}

func (c wireCode) toJobState(errorText *string) JobState {
	var kind StateKind

	raw := c.str
	if !c.isStr {
		raw = strconv.Itoa(c.num)
	}

	if c.isStr {
		kind = ParseStateKind(c.str)
	} else {
		switch c.num {
		case 0:
			kind = StateQueued
		case 1:
			kind = StateProcessing
		case 2:
			kind = StateReady
		case 3:
			kind = StateError
		case 4:
			kind = StateExpired
		case 5:
			kind = StateCancelled
		default:
			kind = StateUnknown
		}
	}

	state := JobState{Kind: kind}

	switch kind {
	case StateError:
		if errorText != nil {
			state.Detail = *errorText
		}
	case StateUnknown:
		state.Detail = raw
	}

	return state
}

// decodeFiles handles both manifest shapes the server has used: a list
// of objects with file_name/file_size/sha1 (and optionally file_url)
// keys, and a compact list of [name, size, hash] tuples.
func decodeFiles(product json.RawMessage) ([]File, error) {
	if len(product) == 0 || string(product) == "null" {
		return nil, nil
	}

	var wrapper struct {
		Files []json.RawMessage `json:"files"`
	}

	if err := json.Unmarshal(product, &wrapper); err != nil {
		return nil, fmt.Errorf("decoding product: %w", err)
	}

	files := make([]File, 0, len(wrapper.Files))

	for _, raw := range wrapper.Files {
		f, err := decodeFile(raw)
		if err != nil {
			return nil, err
		}

		files = append(files, f)
	}

	return files, nil
}

func decodeFile(raw json.RawMessage) (File, error) {
	if len(raw) > 0 && raw[0] == '[' {
		var tuple []json.RawMessage

		if err := json.Unmarshal(raw, &tuple); err != nil || len(tuple) < 3 {
			return File{}, fmt.Errorf("decoding manifest file tuple: %s", string(raw))
		}

		f := File{Size: -1}

		if err := json.Unmarshal(tuple[0], &f.Name); err != nil {
			return File{}, fmt.Errorf("decoding manifest file name: %w", err)
		}

		var size int64
		if err := json.Unmarshal(tuple[1], &size); err == nil {
			f.Size = size
		}

		_ = json.Unmarshal(tuple[2], &f.Hash)

		return f, nil
	}

	var obj wireFileObject

	if err := json.Unmarshal(raw, &obj); err != nil {
		return File{}, fmt.Errorf("decoding manifest file: %w", err)
	}

	f := File{
		Name: obj.FileName,
		URL:  obj.FileURL,
		Size: -1,
		Hash: obj.SHA1,
	}

	if obj.FileSize != nil {
		f.Size = *obj.FileSize
	}

	return f, nil
}

// wireSubmitResponse covers the three response shapes of the submission
// endpoints: a job ID, an error with a code, or a bare error.
type wireSubmitResponse struct {
	JobID     *JobID  `json:"job_id"`
	ErrorCode *int    `json:"error_code"`
	Error     *string `json:"error"`
}

func decodeSubmitResponse(data []byte) (JobID, error) {
	var w wireSubmitResponse

	if err := json.Unmarshal(data, &w); err != nil {
		return 0, fmt.Errorf("decoding submit response: %w", err)
	}

	switch {
	case w.JobID != nil:
		return *w.JobID, nil
	case w.Error != nil && w.ErrorCode != nil:
		return 0, &SubmitError{Code: *w.ErrorCode, Message: *w.Error}
	case w.Error != nil:
		return 0, &SubmitError{Code: -1, Message: *w.Error}
	default:
		return 0, fmt.Errorf("unexpected submit response: %s", string(data))
	}
}
