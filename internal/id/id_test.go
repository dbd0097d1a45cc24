package id

import (
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerate_Uniqueness(t *testing.T) {
	seen := make(map[string]bool)
	for range 1000 {
		v, err := Generate(PrefixPrimary)
		require.NoError(t, err)
		assert.False(t, seen[v], "duplicate id %s", v)
		seen[v] = true
	}
}

func TestGenerate_Format(t *testing.T) {
	for _, prefix := range []string{PrefixPrimary, PrefixCategory} {
		v, err := Generate(prefix)
		require.NoError(t, err)
		assert.True(t, strings.HasPrefix(v, prefix+"-"))
		assert.Len(t, v, len(prefix)+1+21)
	}
}

func TestMustGenerate(t *testing.T) {
	assert.NotPanics(t, func() {
		assert.True(t, strings.HasPrefix(MustGenerate(PrefixCategory), "cat-"))
	})
}

func TestBatch(t *testing.T) {
	v, err := Batch()
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(v, "batch-"))

	_, err = uuid.Parse(strings.TrimPrefix(v, "batch-"))
	assert.NoError(t, err)
}
