package downloadrunner_test

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mwa-archive/squid/internal/testutils"
	"github.com/mwa-archive/squid/runner"
	"github.com/mwa-archive/squid/runner/downloadrunner"
)

func TestDownloadByJobID(t *testing.T) {
	t.Setenv("MWA_ASVO_API_KEY", "test-key")

	content := []byte("archived visibilities")
	sum := sha1.Sum(content)

	files := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write(content)
	}))
	t.Cleanup(files.Close)

	srv := testutils.NewServer(t)
	srv.SetListing(testutils.EncodeRow(t, testutils.Row{
		ID:    300,
		ObsID: "1090528304",
		Type:  1,
		State: 2,
		Files: []testutils.RowFile{{
			Name: "1090528304.tar",
			Size: int64(len(content)),
			Hash: hex.EncodeToString(sum[:]),
			URL:  files.URL + "/1090528304.tar",
		}},
	}))

	dir := t.TempDir()

	r, err := downloadrunner.New(&runner.Config{
		RunMode:     runner.RunModeDownload,
		Server:      srv.URL,
		Identifiers: []string{"300"},
		DownloadDir: dir,
		Concurrency: 1,
		KeepArchive: true,
		BufferMiB:   1,
	})
	require.NoError(t, err)

	require.NoError(t, r.Run(context.Background()))
	require.NoError(t, r.Close(context.Background()))

	got, err := os.ReadFile(filepath.Join(dir, "1090528304.tar"))
	require.NoError(t, err)
	assert.Equal(t, content, got)
}

func TestDownloadReportsUnresolvableIdentifiers(t *testing.T) {
	t.Setenv("MWA_ASVO_API_KEY", "test-key")

	srv := testutils.NewServer(t)
	srv.SetListing(testutils.EncodeRow(t, testutils.Row{
		ID:    301,
		ObsID: "1090528304",
		Type:  1,
		State: 0,
	}))

	r, err := downloadrunner.New(&runner.Config{
		RunMode:     runner.RunModeDownload,
		Server:      srv.URL,
		Identifiers: []string{"301"},
		DownloadDir: t.TempDir(),
		Concurrency: 1,
		BufferMiB:   1,
	})
	require.NoError(t, err)

	err = r.Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "isn't ready")
}

func TestDownloadRejectsMissingDirectoryUpFront(t *testing.T) {
	t.Setenv("MWA_ASVO_API_KEY", "test-key")

	srv := testutils.NewServer(t)

	r, err := downloadrunner.New(&runner.Config{
		RunMode:     runner.RunModeDownload,
		Server:      srv.URL,
		Identifiers: []string{"300"},
		DownloadDir: filepath.Join(t.TempDir(), "missing"),
		Concurrency: 1,
		BufferMiB:   1,
	})
	require.NoError(t, err)

	err = r.Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "download directory")
}
