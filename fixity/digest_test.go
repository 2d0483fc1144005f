package fixity_test

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"strings"
	"testing"
	"testing/iotest"

	"github.com/APTrust/preservation-fixity/constants"
	"github.com/APTrust/preservation-fixity/fixity"
	"github.com/APTrust/preservation-fixity/util/testutil"
	"github.com/cespare/xxhash/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var contentDigests = map[string]string{
	constants.AlgMd5:    "72cb3ebf4007b36cdf0594cbf2d12af0",
	constants.AlgSha1:   "ffaf1748b507883d6688093a6d6f709dc65f5024",
	constants.AlgSha256: "a7764473e89aac2d38cc0a5b476621dfd38ecc3da5c2bfaee44fa057b0b78b09",
	constants.AlgSha512: "f84b7cd0b4c842d9eb9a986f7973deafb7540ed6a0fbbb5e7d9c46e374f3e0a2a0b60b969d15baf9d1eea81fb2b63593c1b7498fe7d417dd91fd1e4037f19e19",
}

var emptyDigests = map[string]string{
	constants.AlgMd5:    "d41d8cd98f00b204e9800998ecf8427e",
	constants.AlgSha1:   "da39a3ee5e6b4b0d3255bfef95601890afd80709",
	constants.AlgSha256: "e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855",
	constants.AlgSha512: "cf83e1357eefb8bdf1542850d66d8007d620e4050b5715dc83f4a921d36ce9ce47d0d13c5d85f2b0ff8318d2877eec2f63b931bd47417a81a538327af927da3e",
}

func TestComputeDigest(t *testing.T) {
	for alg, expected := range contentDigests {
		digest, bytesRead, err := fixity.ComputeDigest(strings.NewReader(testutil.Content), alg)
		require.Nil(t, err, alg)
		assert.Equal(t, expected, digest, alg)
		assert.EqualValues(t, len(testutil.Content), bytesRead, alg)
	}
	assert.Equal(t, testutil.ContentSha256, contentDigests[constants.AlgSha256])
	assert.Equal(t, testutil.ContentMd5, contentDigests[constants.AlgMd5])
}

func TestComputeDigestXXHash(t *testing.T) {
	digest, _, err := fixity.ComputeDigest(strings.NewReader(testutil.Content), constants.AlgXXHash64)
	require.Nil(t, err)
	assert.Equal(t, fmt.Sprintf("%016x", xxhash.Sum64String(testutil.Content)), digest)
}

func TestComputeDigestEmptyStream(t *testing.T) {
	for alg, expected := range emptyDigests {
		digest, bytesRead, err := fixity.ComputeDigest(strings.NewReader(""), alg)
		require.Nil(t, err, alg)
		assert.Equal(t, expected, digest, alg)
		assert.EqualValues(t, 0, bytesRead)
	}
}

// Small reads must give the same digest as one big read.
func TestComputeDigestChunked(t *testing.T) {
	data := bytes.Repeat([]byte(testutil.Content), 5000)
	whole, n1, err := fixity.ComputeDigest(bytes.NewReader(data), constants.AlgSha256)
	require.Nil(t, err)
	chunked, n2, err := fixity.ComputeDigest(iotest.OneByteReader(bytes.NewReader(data)), constants.AlgSha256)
	require.Nil(t, err)
	assert.Equal(t, whole, chunked)
	assert.Equal(t, n1, n2)
	assert.EqualValues(t, len(data), n1)
}

func TestComputeDigestReadError(t *testing.T) {
	boom := errors.New("connection reset")
	r := io.MultiReader(strings.NewReader("twelve bytes"), iotest.ErrReader(boom))
	digest, bytesRead, err := fixity.ComputeDigest(r, constants.AlgSha256)
	require.NotNil(t, err)
	assert.Empty(t, digest)
	assert.EqualValues(t, 12, bytesRead)

	var readErr *fixity.ReadError
	require.True(t, errors.As(err, &readErr))
	assert.EqualValues(t, 12, readErr.BytesRead)
	assert.True(t, errors.Is(err, boom))
}

func TestComputeDigestUnsupportedAlgorithm(t *testing.T) {
	_, _, err := fixity.ComputeDigest(strings.NewReader("x"), "crc32")
	require.NotNil(t, err)
	assert.True(t, errors.Is(err, fixity.ErrUnsupportedAlgorithm))
}

func TestNewHash(t *testing.T) {
	for _, alg := range constants.DigestAlgorithms {
		h, err := fixity.NewHash(alg)
		require.Nil(t, err, alg)
		assert.NotNil(t, h)
	}
	h, err := fixity.NewHash("SHA256")
	require.Nil(t, err)
	assert.Equal(t, 32, h.Size())
}
