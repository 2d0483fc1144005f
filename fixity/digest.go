package fixity

import (
	"crypto/md5"
	"crypto/sha1"
	"crypto/sha512"
	"encoding/hex"
	"fmt"
	"hash"
	"io"
	"strings"

	"github.com/APTrust/preservation-fixity/constants"
	"github.com/cespare/xxhash/v2"
	sha256 "github.com/minio/sha256-simd"
)

// digestBufferSize bounds the memory a single check uses, no matter
// how large the object is.
const digestBufferSize = 64 * 1024

// NewHash returns a hash for the named algorithm.
func NewHash(alg string) (hash.Hash, error) {
	switch strings.ToLower(alg) {
	case constants.AlgMd5:
		return md5.New(), nil
	case constants.AlgSha1:
		return sha1.New(), nil
	case constants.AlgSha256:
		return sha256.New(), nil
	case constants.AlgSha512:
		return sha512.New(), nil
	case constants.AlgXXHash64:
		return xxhash.New(), nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnsupportedAlgorithm, alg)
}

// ComputeDigest streams r through the hash for alg until EOF and
// returns the lowercase hex digest and the number of bytes consumed.
// It never holds more than one buffer of the stream in memory.
//
// If r returns an error before EOF, ComputeDigest returns a *ReadError
// and discards the partial digest. ComputeDigest does not close r.
func ComputeDigest(r io.Reader, alg string) (digest string, bytesRead int64, err error) {
	h, err := NewHash(alg)
	if err != nil {
		return "", 0, err
	}
	buf := make([]byte, digestBufferSize)
	bytesRead, err = io.CopyBuffer(h, r, buf)
	if err != nil {
		return "", bytesRead, &ReadError{BytesRead: bytesRead, Err: err}
	}
	return hex.EncodeToString(h.Sum(nil)), bytesRead, nil
}
