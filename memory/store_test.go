package memory

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpenStoreMissingFileIsEmpty(t *testing.T) {
	t.Parallel()

	s, err := OpenStore(filepath.Join(t.TempDir(), "_memory.json"), nil)
	require.NoError(t, err)
	assert.Empty(t, s.Keys())
	assert.Equal(t, "fallback", s.Get("anything", "fallback"))
}

func TestStoreSurvivesReload(t *testing.T) {
	t.Parallel()

	for _, name := range []string{"_memory.json", "_memory.toml"} {
		name := name
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			path := filepath.Join(t.TempDir(), name)

			s, err := OpenStore(path, nil)
			require.NoError(t, err)

			require.NoError(t, s.Set("lang", "go"))
			require.NoError(t, s.Set("editor", "vim"))
			require.NoError(t, s.Set("lang", "golang"))
			existed, err := s.Delete("editor")
			require.NoError(t, err)
			assert.True(t, existed)
			require.NoError(t, s.Set("path", "/tmp/a b=c"))

			// Simulate a crash: drop s and reopen from disk.
			reloaded, err := OpenStore(path, nil)
			require.NoError(t, err)
			assert.Equal(t, []string{"lang", "path"}, reloaded.Keys())
			assert.Equal(t, "golang", reloaded.Get("lang", ""))
			assert.Equal(t, "/tmp/a b=c", reloaded.Get("path", ""))
			_, ok := reloaded.Lookup("editor")
			assert.False(t, ok)
		})
	}
}

func TestStoreRapidMutationsLastWriteWins(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "_memory.json")

	s, err := OpenStore(path, nil)
	require.NoError(t, err)

	expected := map[string]string{}
	for i := 0; i < 50; i++ {
		key := fmt.Sprintf("k%d", i%7)
		if i%5 == 0 {
			_, err := s.Delete(key)
			require.NoError(t, err)
			delete(expected, key)
			continue
		}
		value := fmt.Sprintf("v%d", i)
		require.NoError(t, s.Set(key, value))
		expected[key] = value
	}

	reloaded, err := OpenStore(path, nil)
	require.NoError(t, err)
	assert.Equal(t, expected, reloaded.All())

	matches, err := filepath.Glob(filepath.Join(filepath.Dir(path), ".memory-*.tmp"))
	require.NoError(t, err)
	assert.Empty(t, matches, "temp files must not be left behind")
}

func TestStoreRejectsMultilineValue(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "_memory.json")

	s, err := OpenStore(path, nil)
	require.NoError(t, err)

	err = s.Set("note", "first\nsecond")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInvalidValue))

	err = s.Set("note", "carriage\rreturn")
	assert.True(t, errors.Is(err, ErrInvalidValue))

	_, ok := s.Lookup("note")
	assert.False(t, ok, "rejected value must not be stored")
	_, statErr := os.Stat(path)
	assert.True(t, os.IsNotExist(statErr), "rejected value must not create the file")
}

func TestStoreRejectsBadKeys(t *testing.T) {
	t.Parallel()

	s, err := OpenStore(filepath.Join(t.TempDir(), "_memory.json"), nil)
	require.NoError(t, err)

	assert.True(t, errors.Is(s.Set("", "v"), ErrInvalidKey))
	assert.True(t, errors.Is(s.Set("two words", "v"), ErrInvalidKey))
}

func TestStoreDeleteMissingKey(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "_memory.json")

	s, err := OpenStore(path, nil)
	require.NoError(t, err)

	existed, err := s.Delete("ghost")
	require.NoError(t, err)
	assert.False(t, existed)
}

func TestOpenStoreCorruptFile(t *testing.T) {
	t.Parallel()

	cases := map[string]string{
		"_memory.json": "{not json",
		"null.json":    "null\n",
		"array.json":   `["a", "b"]`,
		"_memory.toml": "key = = broken",
	}
	for name, content := range cases {
		name, content := name, content
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			path := filepath.Join(t.TempDir(), name)
			require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

			_, err := OpenStore(path, nil)
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrStorageCorruption))

			data, readErr := os.ReadFile(path)
			require.NoError(t, readErr)
			assert.Equal(t, content, string(data), "corrupt file must be left untouched")
		})
	}
}

func TestOpenStoreNullDocumentIsCorrupt(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "_memory.json")
	require.NoError(t, os.WriteFile(path, []byte("null\n"), 0o600))

	s, err := OpenStore(path, nil)
	require.ErrorIs(t, err, ErrStorageCorruption)
	assert.Nil(t, s)
}

func TestOpenStoreRejectsNonStringValues(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "_memory.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"nested": {"a": 1}}`), 0o600))

	_, err := OpenStore(path, nil)
	assert.True(t, errors.Is(err, ErrStorageCorruption))
}

func TestOpenStoreUnsupportedExtension(t *testing.T) {
	t.Parallel()

	_, err := OpenStore(filepath.Join(t.TempDir(), "memory.ini"), nil)
	assert.True(t, errors.Is(err, ErrUnsupportedFormat))
}

func TestErrorFormatting(t *testing.T) {
	t.Parallel()

	cause := errors.New("disk full")
	err := NewStorageWriteError("/tmp/x.json", cause)
	assert.Equal(t, ErrCodeStorageWrite, err.Code)
	assert.Contains(t, err.Error(), "STORAGE_WRITE_FAILED")
	assert.Contains(t, err.Error(), "disk full")
	assert.Equal(t, cause, errors.Unwrap(err))
	assert.False(t, errors.Is(err, ErrStorageCorruption))
}
