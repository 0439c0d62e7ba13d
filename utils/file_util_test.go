package utils_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mwa-archive/squid/utils"
)

func TestFileSHA1(t *testing.T) {
	path := filepath.Join(t.TempDir(), "payload")
	require.NoError(t, os.WriteFile(path, []byte("hello world"), 0o644))

	sum, err := utils.FileSHA1(path)
	require.NoError(t, err)
	assert.Equal(t, "2aae6c35c94fcfb415dbe95f408b9ce91ee846ed", sum)
}

func TestFileSHA1MissingFile(t *testing.T) {
	_, err := utils.FileSHA1(filepath.Join(t.TempDir(), "nope"))
	assert.Error(t, err)
}

func TestIsDir(t *testing.T) {
	dir := t.TempDir()

	file := filepath.Join(dir, "f")
	require.NoError(t, os.WriteFile(file, nil, 0o644))

	assert.True(t, utils.IsDir(dir))
	assert.False(t, utils.IsDir(file))
	assert.False(t, utils.IsDir(filepath.Join(dir, "missing")))
}
