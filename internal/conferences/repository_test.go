package conferences

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewJoinCode(t *testing.T) {
	seen := make(map[string]struct{})
	for i := 0; i < 100; i++ {
		code, err := newJoinCode()
		require.NoError(t, err)
		assert.Len(t, code, joinCodeLength)
		for _, r := range code {
			assert.True(t, strings.ContainsRune(joinCodeAlphabet, r), "unexpected character %q", r)
		}
		seen[code] = struct{}{}
	}
	// Collisions over 100 draws from a 31^6 space would be astonishing.
	assert.Greater(t, len(seen), 95)
}
