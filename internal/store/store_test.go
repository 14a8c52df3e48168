package store

import (
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const defaultFile = "model_name=124M\nlength=100\ntemperature=0.7\ntop_k=0\ntop_p=0.9\ninclude_prefix=True\n"

func openStore(t *testing.T, contents *string) (*Store, string) {
	t.Helper()

	path := filepath.Join(t.TempDir(), "gpt2.config")
	if contents != nil {
		require.NoError(t, os.WriteFile(path, []byte(*contents), 0o644))
	}

	s, err := Open(path)
	require.NoError(t, err)
	return s, path
}

func readFile(t *testing.T, path string) string {
	t.Helper()

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	return string(data)
}

func ptr(s string) *string { return &s }

func TestOpenMissingFileWritesDefaults(t *testing.T) {
	s, path := openStore(t, nil)

	assert.Equal(t, Defaults(), s.Snapshot())
	assert.Equal(t, defaultFile, readFile(t, path))
}

func TestOpenCreatesDirectory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "dir", "gpt2.config")

	s, err := Open(path)
	require.NoError(t, err)
	assert.Equal(t, Defaults(), s.Snapshot())
	assert.FileExists(t, path)
}

func TestOpenFailsWhenDirectoryCannotBeCreated(t *testing.T) {
	blocker := filepath.Join(t.TempDir(), "file")
	require.NoError(t, os.WriteFile(blocker, nil, 0o644))

	_, err := Open(filepath.Join(blocker, "gpt2.config"))
	assert.Error(t, err)
}

func TestLoadValidFile(t *testing.T) {
	contents := "model_name=355M\nlength=50\ntemperature=1\ntop_k=40\ntop_p=0.5\ninclude_prefix=False\n"
	s, path := openStore(t, &contents)

	assert.Equal(t, Configuration{
		ModelName:     "355M",
		Length:        50,
		Temperature:   1,
		TopK:          40,
		TopP:          0.5,
		IncludePrefix: false,
	}, s.Snapshot())
	assert.Equal(t, contents, readFile(t, path), "valid file must not be rewritten")
}

func TestLoadCorruptFileResetsEverything(t *testing.T) {
	tests := map[string]string{
		"unknown key":     "model_name=355M\nlength=50\ntemperature=1\ntop_k=40\ntop_p=0.5\ninclude_prefix=False\nseed=3\n",
		"invalid value":   "model_name=355M\nlength=5000\ntemperature=1\ntop_k=40\ntop_p=0.5\ninclude_prefix=False\n",
		"malformed line":  "model_name=355M\nlength\n",
		"extra separator": "model_name=355M=1\n",
		"empty file":      "",
	}

	for name, contents := range tests {
		t.Run(name, func(t *testing.T) {
			s, path := openStore(t, ptr(contents))

			assert.Equal(t, Defaults(), s.Snapshot())
			assert.Equal(t, defaultFile, readFile(t, path))
		})
	}
}

// An incomplete file counts as corrupt: no partial fill from defaults.
func TestLoadIncompleteFileResetsToDefaults(t *testing.T) {
	s, path := openStore(t, ptr("model_name=355M\nlength=50\n"))

	assert.Equal(t, Defaults(), s.Snapshot())
	assert.Equal(t, defaultFile, readFile(t, path))
}

func TestLoadDuplicateKeyLastWins(t *testing.T) {
	s, _ := openStore(t, ptr(defaultFile+"length=42\n"))
	assert.Equal(t, 42, s.Snapshot().Length)
}

func TestUpdateValidBatchRoundTrips(t *testing.T) {
	s, path := openStore(t, nil)
	before := s.Snapshot()

	got, err := s.Update(Batch{{"temperature", "1.2"}, {"top_k", "40"}, {"include_prefix", "false"}})
	require.NoError(t, err)

	reloaded, err := Open(path)
	require.NoError(t, err)
	after := reloaded.Snapshot()

	assert.Equal(t, got, after)
	assert.Equal(t, 1.2, after.Temperature)
	assert.Equal(t, 40, after.TopK)
	assert.False(t, after.IncludePrefix)

	assert.Equal(t, before.ModelName, after.ModelName)
	assert.Equal(t, before.Length, after.Length)
	assert.Equal(t, before.TopP, after.TopP)
}

func TestUpdateDuplicateKeyInBatchLastWins(t *testing.T) {
	s, _ := openStore(t, nil)

	got, err := s.Update(Batch{{"length", "10"}, {"length", "20"}})
	require.NoError(t, err)
	assert.Equal(t, 20, got.Length)
}

func TestUpdateRejectsNegativeLength(t *testing.T) {
	s, path := openStore(t, nil)
	fileBefore := readFile(t, path)

	cfg, err := s.Update(Batch{{"length", "-5"}})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidValue)

	var be *BatchError
	require.ErrorAs(t, err, &be)
	var ve *ValueError
	require.ErrorAs(t, be.First(), &ve)
	assert.Equal(t, "length", ve.Key)
	assert.Equal(t, "-5", ve.Raw)

	assert.Equal(t, Defaults(), cfg)
	assert.Equal(t, Defaults(), s.Snapshot())
	assert.Equal(t, fileBefore, readFile(t, path))
}

func TestUpdateInvalidBatchIsAtomic(t *testing.T) {
	s, path := openStore(t, nil)
	_, err := s.Update(Batch{{"top_k", "10"}})
	require.NoError(t, err)

	before := s.Snapshot()
	fileBefore := readFile(t, path)

	batches := []Batch{
		{{"length", "200"}, {"bogus", "1"}},
		{{"model_name", "355M"}, {"top_p", "1.5"}},
		{{"temperature", "0.1"}, {"include_prefix", "maybe"}, {"nope", "x"}},
		{{"length", "20=0"}},
	}

	for _, b := range batches {
		_, err := s.Update(b)
		require.Error(t, err)
		assert.Equal(t, before, s.Snapshot())
		assert.Equal(t, fileBefore, readFile(t, path))
	}
}

func TestUpdateCollectsErrorsInOrder(t *testing.T) {
	s, _ := openStore(t, nil)

	_, err := s.Update(Batch{{"nope", "1"}, {"length", "200"}, {"top_p", "7"}})

	var be *BatchError
	require.ErrorAs(t, err, &be)
	require.Len(t, be.Errs, 2)

	var ke *KeyError
	require.ErrorAs(t, be.Errs[0], &ke)
	assert.Equal(t, "nope", ke.Key)
	assert.ErrorIs(t, be.Errs[0], ErrInvalidKey)

	var ve *ValueError
	require.ErrorAs(t, be.Errs[1], &ve)
	assert.Equal(t, "top_p", ve.Key)
	assert.Equal(t, "invalid config name nope; invalid config top_p=7", be.Error())
}

func TestResetRestoresDefaults(t *testing.T) {
	s, path := openStore(t, nil)
	_, err := s.Update(Batch{{"model_name", "774M"}, {"length", "5"}})
	require.NoError(t, err)

	got, err := s.Reset()
	require.NoError(t, err)
	assert.Equal(t, Defaults(), got)
	assert.Equal(t, Defaults(), s.Snapshot())
	assert.Equal(t, defaultFile, readFile(t, path))
}

func TestPersistLoadIdempotent(t *testing.T) {
	s, path := openStore(t, ptr("model_name=774M\nlength=0007\ntemperature=.5\ntop_k=3\ntop_p=1\ninclude_prefix=false\n"))

	first := s.Load()
	require.NoError(t, s.Persist(first))
	written := readFile(t, path)

	second := s.Load()
	assert.Equal(t, first, second)

	require.NoError(t, s.Persist(second))
	assert.Equal(t, written, readFile(t, path))
}

func TestPersistRejectsInvalidConfiguration(t *testing.T) {
	s, path := openStore(t, nil)
	fileBefore := readFile(t, path)

	bad := Defaults()
	bad.TopP = 3
	err := s.Persist(bad)
	assert.ErrorIs(t, err, ErrInvalidValue)
	assert.Equal(t, Defaults(), s.Snapshot())
	assert.Equal(t, fileBefore, readFile(t, path))
}

func TestReloadReportsChange(t *testing.T) {
	s, path := openStore(t, nil)

	_, changed := s.Reload()
	assert.False(t, changed)

	require.NoError(t, os.WriteFile(path, []byte("model_name=355M\nlength=100\ntemperature=0.7\ntop_k=0\ntop_p=0.9\ninclude_prefix=True\n"), 0o644))
	cfg, changed := s.Reload()
	assert.True(t, changed)
	assert.Equal(t, "355M", cfg.ModelName)
}

func TestConcurrentUpdatesKeepFileValid(t *testing.T) {
	s, path := openStore(t, nil)

	var wg sync.WaitGroup
	for i := 1; i <= 20; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			if n%2 == 0 {
				_, _ = s.Update(Batch{{"length", "-1"}})
				return
			}
			_, err := s.Update(Batch{{"top_k", "7"}})
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	reloaded, err := Open(path)
	require.NoError(t, err)
	assert.Equal(t, s.Snapshot(), reloaded.Snapshot())
	assert.Equal(t, 7, reloaded.Snapshot().TopK)
	assert.Equal(t, 100, reloaded.Snapshot().Length)
}

func TestConfigurationEntriesOrder(t *testing.T) {
	assert.Equal(t, defaultFile, Defaults().String())
	assert.Equal(t, map[string]string{
		"model_name":     "124M",
		"length":         "100",
		"temperature":    "0.7",
		"top_k":          "0",
		"top_p":          "0.9",
		"include_prefix": "True",
	}, Defaults().Map())
}
