package artifact

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStore_GetBeforeProducerSucceeded(t *testing.T) {
	t.Parallel()

	store := NewStore()
	require.NoError(t, store.Put("build", "binary", []byte("payload")))

	// The payload exists but its producer has not been marked succeeded yet.
	_, err := store.Get("binary")

	var notReady *ArtifactNotReadyError
	require.ErrorAs(t, err, &notReady)
	assert.Equal(t, "binary", notReady.Name)
	assert.Equal(t, "build", notReady.Producer)
}

func TestStore_GetAfterProducerSucceeded(t *testing.T) {
	t.Parallel()

	store := NewStore()
	payload := []byte("payload bytes")
	require.NoError(t, store.Put("build", "binary", payload))
	store.MarkSucceeded("build")

	got, err := store.Get("binary")
	require.NoError(t, err)
	assert.Equal(t, payload, got)

	// The returned slice is a copy; mutating it must not affect the store.
	got[0] = 'X'
	again, err := store.Get("binary")
	require.NoError(t, err)
	assert.Equal(t, []byte("payload bytes"), again)
}

func TestStore_DuplicatePut(t *testing.T) {
	t.Parallel()

	store := NewStore()
	require.NoError(t, store.Put("build", "binary", []byte("v1")))

	err := store.Put("package", "binary", []byte("v2"))

	var dup *DuplicateArtifactError
	require.ErrorAs(t, err, &dup)
	assert.Equal(t, "binary", dup.Name)
	// The error names the first writer, not the second.
	assert.Equal(t, "build", dup.Job)
}

func TestStore_GetUnknownName(t *testing.T) {
	t.Parallel()

	store := NewStore()

	_, err := store.Get("does-not-exist")

	var notFound *ArtifactNotFoundError
	require.ErrorAs(t, err, &notFound)
	assert.Equal(t, "does-not-exist", notFound.Name)
}

func TestStore_Digest(t *testing.T) {
	t.Parallel()

	store := NewStore()
	require.NoError(t, store.Put("build", "binary", []byte("payload")))

	_, err := store.Digest("binary")
	var notReady *ArtifactNotReadyError
	require.ErrorAs(t, err, &notReady)

	store.MarkSucceeded("build")
	digest, err := store.Digest("binary")
	require.NoError(t, err)
	// sha256("payload")
	assert.Equal(t, "239f59ed55e737c77147cf55ad0c1b030b6d7ee748a7426952f9b852d5a935e5", digest)
}

func TestStore_Discard(t *testing.T) {
	t.Parallel()

	store := NewStore()
	require.NoError(t, store.Put("build", "binary", []byte("payload")))
	store.MarkSucceeded("build")

	store.Discard()

	_, err := store.Get("binary")
	var notFound *ArtifactNotFoundError
	require.ErrorAs(t, err, &notFound)

	err = store.Put("build", "other", []byte("x"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "discarded")
}

func TestAccessor_EnforcesDeclarations(t *testing.T) {
	t.Parallel()

	store := NewStore()
	producer := store.ForJob("build", nil, []string{"binary"})
	consumer := store.ForJob("test", []string{"binary"}, nil)

	t.Run("undeclared output is rejected", func(t *testing.T) {
		err := producer.Put("coverage", []byte("x"))
		require.Error(t, err)
		assert.Contains(t, err.Error(), `does not declare output "coverage"`)
	})

	t.Run("undeclared input is rejected", func(t *testing.T) {
		_, err := consumer.Get("coverage")
		require.Error(t, err)
		assert.Contains(t, err.Error(), `does not declare input "coverage"`)
	})

	t.Run("declared handoff works end to end", func(t *testing.T) {
		require.NoError(t, producer.Put("binary", []byte("elf")))
		store.MarkSucceeded("build")

		got, err := consumer.Get("binary")
		require.NoError(t, err)
		assert.Equal(t, []byte("elf"), got)
	})
}
