package dropbox

import (
	"crypto/sha256"
	"encoding"
	"encoding/hex"
	"hash"
)

// ContentHashBlockSize is the fixed block size of the content_hash
// algorithm: SHA-256 over each 4 MiB block, with the block digests folded
// into an outer SHA-256. The result must be bit-exact with the value the
// remote store records, or upload verification cannot work.
const ContentHashBlockSize = 4 * 1024 * 1024

// ContentHasher computes the content_hash of a byte stream. It satisfies
// hash.Hash; Sum does not disturb the running state, so the digest can be
// inspected mid-stream.
type ContentHasher struct {
	overall  hash.Hash
	block    hash.Hash
	blockPos int
}

var _ hash.Hash = (*ContentHasher)(nil)

// NewContentHasher creates an empty content hasher.
func NewContentHasher() *ContentHasher {
	return &ContentHasher{
		overall: sha256.New(),
		block:   sha256.New(),
	}
}

// Write feeds data into the current block, folding each completed 4 MiB
// block into the outer accumulator.
func (h *ContentHasher) Write(p []byte) (int, error) {
	n := len(p)
	for len(p) > 0 {
		if h.blockPos == ContentHashBlockSize {
			h.overall.Write(h.block.Sum(nil))
			h.block.Reset()
			h.blockPos = 0
		}
		space := ContentHashBlockSize - h.blockPos
		if space > len(p) {
			space = len(p)
		}
		h.block.Write(p[:space])
		h.blockPos += space
		p = p[space:]
	}
	return n, nil
}

// Sum appends the current digest to b. A non-empty trailing block is
// folded in once; an empty input digests to SHA256 of nothing.
func (h *ContentHasher) Sum(b []byte) []byte {
	overall := cloneSHA256(h.overall)
	if h.blockPos > 0 {
		block := cloneSHA256(h.block)
		overall.Write(block.Sum(nil))
	}
	return overall.Sum(b)
}

// HexDigest returns the hex-encoded digest, the encoding the remote
// store's content_hash metadata field uses.
func (h *ContentHasher) HexDigest() string {
	return hex.EncodeToString(h.Sum(nil))
}

// Reset returns the hasher to its initial state.
func (h *ContentHasher) Reset() {
	h.overall.Reset()
	h.block.Reset()
	h.blockPos = 0
}

// Size returns the digest length in bytes.
func (h *ContentHasher) Size() int { return sha256.Size }

// BlockSize returns the underlying hash's block size.
func (h *ContentHasher) BlockSize() int { return sha256.BlockSize }

// cloneSHA256 snapshots a sha256 state so finalization never disturbs the
// running accumulators.
func cloneSHA256(h hash.Hash) hash.Hash {
	state, err := h.(encoding.BinaryMarshaler).MarshalBinary()
	if err != nil {
		// The stdlib sha256 marshaler cannot fail.
		panic(err)
	}
	c := sha256.New()
	if err := c.(encoding.BinaryUnmarshaler).UnmarshalBinary(state); err != nil {
		panic(err)
	}
	return c
}
