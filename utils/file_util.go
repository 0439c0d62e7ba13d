package utils

import (
	"crypto/sha1"
	"encoding/hex"
	"io"
	"os"
)

// FileSHA1 computes the hex SHA-1 digest of the file at path.
func FileSHA1(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}

	defer f.Close()

	h := sha1.New()

	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}

	return hex.EncodeToString(h.Sum(nil)), nil
}

// IsDir reports whether path exists and is a directory.
func IsDir(path string) bool {
	st, err := os.Stat(path)

	return err == nil && st.IsDir()
}
