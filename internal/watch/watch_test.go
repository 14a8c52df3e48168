package watch

import (
	"context"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sokinpui/gpt2bot.go/internal/kvfile"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func start(t *testing.T) *Watcher {
	t.Helper()

	w, err := New(20 * time.Millisecond)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	go w.Start(ctx)
	t.Cleanup(func() {
		cancel()
		w.Close()
	})
	return w
}

func TestWatcherSeesAtomicReplace(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "gpt2.config")
	require.NoError(t, os.WriteFile(path, []byte("length=1\n"), 0o644))

	var calls atomic.Int32
	w := start(t)
	require.NoError(t, w.Add(path, func() { calls.Add(1) }))

	require.NoError(t, kvfile.Write(path, []kvfile.Pair{{Key: "length", Value: "2"}}))
	assert.Eventually(t, func() bool { return calls.Load() >= 1 }, 2*time.Second, 5*time.Millisecond)
}

func TestWatcherSeesCreate(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "default_prompts.txt")

	var calls atomic.Int32
	w := start(t)
	require.NoError(t, w.Add(path, func() { calls.Add(1) }))

	require.NoError(t, os.WriteFile(path, []byte("124M=Hello\n"), 0o644))
	assert.Eventually(t, func() bool { return calls.Load() >= 1 }, 2*time.Second, 5*time.Millisecond)
}

func TestWatcherIgnoresOtherFiles(t *testing.T) {
	dir := t.TempDir()

	var calls atomic.Int32
	w := start(t)
	require.NoError(t, w.Add(filepath.Join(dir, "gpt2.config"), func() { calls.Add(1) }))

	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0o644))
	time.Sleep(100 * time.Millisecond)
	assert.Zero(t, calls.Load())
}

func TestWatcherDebounces(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "gpt2.config")

	var calls atomic.Int32
	w, err := New(200 * time.Millisecond)
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	defer w.Close()
	go w.Start(ctx)
	require.NoError(t, w.Add(path, func() { calls.Add(1) }))

	for i := range 5 {
		require.NoError(t, os.WriteFile(path, []byte{byte('0' + i)}, 0o644))
	}
	assert.Eventually(t, func() bool { return calls.Load() == 1 }, 2*time.Second, 5*time.Millisecond)
	time.Sleep(300 * time.Millisecond)
	assert.Equal(t, int32(1), calls.Load())
}
