package sha256

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestHasherHashDeterministic(t *testing.T) {
	t.Parallel()

	h := New()
	got, err := h.Hash([]byte("hello world"))
	require.NoError(t, err)
	require.Equal(t, "b94d27b9934d3e08a52e52d7da7dabfac484efe37a5380ee9088f7ace2efcde9", got)

	again, err := h.Hash([]byte("hello world"))
	require.NoError(t, err)
	require.Equal(t, got, again)
}

func TestHasherDistinguishesListings(t *testing.T) {
	t.Parallel()

	h := New()
	before, err := h.Hash([]byte(`<div data-title="Завтраки" data-id="7"><a href="/menu/1">Сырники</a></div>`))
	require.NoError(t, err)
	after, err := h.Hash([]byte(`<div data-title="Завтраки" data-id="7"><a href="/menu/2">Омлет</a></div>`))
	require.NoError(t, err)

	require.Len(t, before, 64)
	require.NotEqual(t, before, after)
}
