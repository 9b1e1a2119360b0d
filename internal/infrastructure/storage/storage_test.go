package storage

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStorePutGet(t *testing.T) {
	store := NewMemoryStore("http://media.local/")
	ctx := context.Background()

	ref, err := store.Put(ctx, []byte("png bytes"), "image/png")
	require.NoError(t, err)

	assert.True(t, strings.HasSuffix(ref.Key, ".png"))
	assert.Equal(t, "http://media.local/"+ref.Key, ref.URL)

	data, err := store.Get(ctx, ref.Key)
	require.NoError(t, err)
	assert.Equal(t, []byte("png bytes"), data)

	_, err = store.Get(ctx, "missing.png")
	require.Error(t, err)
}

func TestMemoryStoreCopiesData(t *testing.T) {
	store := NewMemoryStore("http://media.local")
	ctx := context.Background()

	buf := []byte("original")
	ref, err := store.Put(ctx, buf, "audio/mpeg")
	require.NoError(t, err)

	// 调用方复用缓冲区不得污染已存对象
	copy(buf, "mutated!")
	data, err := store.Get(ctx, ref.Key)
	require.NoError(t, err)
	assert.Equal(t, []byte("original"), data)
}

func TestLocalStorePutGet(t *testing.T) {
	store, err := NewLocalStore(t.TempDir(), "http://media.local")
	require.NoError(t, err)
	ctx := context.Background()

	ref, err := store.Put(ctx, []byte("mp4 bytes"), "video/mp4")
	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(ref.Key, ".mp4"))

	data, err := store.Get(ctx, ref.Key)
	require.NoError(t, err)
	assert.Equal(t, []byte("mp4 bytes"), data)
}

func TestLocalStoreRejectsTraversalKeys(t *testing.T) {
	store, err := NewLocalStore(t.TempDir(), "http://media.local")
	require.NoError(t, err)

	for _, key := range []string{"../secret", "a/../../b", "sub/dir.png"} {
		_, err := store.Get(context.Background(), key)
		assert.Error(t, err, key)
	}
}

func TestLocalStoreRequiresDir(t *testing.T) {
	_, err := NewLocalStore("", "http://media.local")
	require.Error(t, err)
}

func TestExtensionFor(t *testing.T) {
	assert.Equal(t, ".png", extensionFor("image/png"))
	assert.Equal(t, ".mp3", extensionFor("audio/mpeg"))
	assert.Equal(t, ".bin", extensionFor("application/octet-stream"))
}
