package testutils

import (
	"encoding/json"
	"testing"
)

// RowFile is one entry of a row's product file manifest.
type RowFile struct {
	Name string
	Size int64
	Hash string
	URL  string
}

// Row describes one job row of the listing. Type and State take either
// the legacy numeric codes or the newer string names, mirroring what
// the service actually sends.
type Row struct {
	ID        int
	ObsID     string
	Type      any
	State     any
	Delivery  string
	ErrorText string
	Files     []RowFile
}

// EncodeRow renders a Row as the JSON document the service nests
// inside its listing array.
func EncodeRow(t *testing.T, r Row) string {
	t.Helper()

	params := map[string]any{"obs_id": r.ObsID}
	if r.Delivery != "" {
		params["delivery"] = r.Delivery
	}

	row := map[string]any{
		"id":         r.ID,
		"job_type":   r.Type,
		"job_state":  r.State,
		"job_params": params,
	}

	if r.ErrorText != "" {
		row["error_text"] = r.ErrorText
	}

	if len(r.Files) > 0 {
		files := make([]map[string]any, 0, len(r.Files))

		for _, f := range r.Files {
			entry := map[string]any{
				"file_name": f.Name,
				"file_size": f.Size,
			}

			if f.Hash != "" {
				entry["sha1"] = f.Hash
			}

			if f.URL != "" {
				entry["file_url"] = f.URL
			}

			files = append(files, entry)
		}

		row["product"] = map[string]any{"files": files}
	}

	doc, err := json.Marshal(map[string]any{"row": row})
	if err != nil {
		t.Fatalf("encoding row: %v", err)
	}

	return string(doc)
}
