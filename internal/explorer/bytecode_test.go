package explorer

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

// buildBytecode appends a fake CBOR metadata section (length-prefixed) to
// the given runtime code.
func withMetadata(code []byte, hash byte) []byte {
	meta := append([]byte{0xa2, 0x64, 0x69, 0x70, 0x66, 0x73}, hash, hash, hash)
	out := append([]byte{}, code...)
	out = append(out, 0x00, byte(len(meta)))
	out = append(out, meta...)
	return out
}

func TestStripMetadata(t *testing.T) {
	code := []byte{0x60, 0x80, 0x60, 0x40, 0x52}

	t.Run("strips marker and length prefix", func(t *testing.T) {
		stripped := StripMetadata(withMetadata(code, 0xaa))
		assert.Equal(t, code, stripped)
	})

	t.Run("no metadata is a no-op", func(t *testing.T) {
		assert.Equal(t, code, StripMetadata(code))
	})

	t.Run("empty input", func(t *testing.T) {
		assert.Empty(t, StripMetadata(nil))
	})
}

func TestCompareBytecode(t *testing.T) {
	code := []byte{0x60, 0x80, 0x60, 0x40, 0x52}

	t.Run("full match", func(t *testing.T) {
		a := withMetadata(code, 0xaa)
		result := CompareBytecode(a, a)
		assert.True(t, result.Match)
		assert.Equal(t, MatchFull, result.MatchType)
	})

	t.Run("partial match with different metadata", func(t *testing.T) {
		result := CompareBytecode(withMetadata(code, 0xaa), withMetadata(code, 0xbb))
		assert.True(t, result.Match)
		assert.Equal(t, MatchPartial, result.MatchType)
	})

	t.Run("no match", func(t *testing.T) {
		other := []byte{0x60, 0x01, 0x60, 0x02}
		result := CompareBytecode(withMetadata(code, 0xaa), withMetadata(other, 0xaa))
		assert.False(t, result.Match)
		assert.Equal(t, MatchNone, result.MatchType)
	})

	t.Run("hex encoded artifact", func(t *testing.T) {
		result := CompareBytecode(code, []byte("0x6080604052"))
		assert.True(t, result.Match)
		assert.Equal(t, MatchFull, result.MatchType)
	})
}

func TestHasLibraryPlaceholders(t *testing.T) {
	assert.True(t, HasLibraryPlaceholders([]byte("6080__$1234567890abcdef1234567890abcdef12$__60")))
	assert.False(t, HasLibraryPlaceholders([]byte("6080604052")))
}
