package downloader

import (
	"crypto/sha1"
	"encoding/hex"
	"hash"
	"io"
)

// sha1Reader hashes everything read through it, so an archive can be
// verified in the same pass that extracts it.
type sha1Reader struct {
	r io.Reader
	h hash.Hash
}

func newSHA1Reader(r io.Reader) *sha1Reader {
	return &sha1Reader{r: r, h: sha1.New()}
}

func (s *sha1Reader) Read(p []byte) (int, error) {
	n, err := s.r.Read(p)
	if n > 0 {
		s.h.Write(p[:n])
	}

	return n, err
}

// Sum returns the hex digest of the bytes read so far.
func (s *sha1Reader) Sum() string {
	return hex.EncodeToString(s.h.Sum(nil))
}
