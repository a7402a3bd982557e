package service

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewReviewToken(t *testing.T) {
	seen := map[string]bool{}
	for range 50 {
		tok, err := newReviewToken()
		require.NoError(t, err)
		assert.Len(t, tok, tokenLength)
		for _, c := range tok {
			assert.True(t, strings.ContainsRune(tokenAlphabet, c))
		}
		assert.False(t, seen[tok])
		seen[tok] = true
	}
}

func TestHashToken(t *testing.T) {
	assert.Len(t, hashToken("abc"), 64)
	assert.Equal(t, hashToken("abc"), hashToken("abc"))
	assert.NotEqual(t, hashToken("abc"), hashToken("abd"))
}
