package main

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestIsManifestFile(t *testing.T) {
	assert.True(t, isManifestFile("/srv/api.yaml"))
	assert.True(t, isManifestFile("API.YML"))
	assert.False(t, isManifestFile(".api.yaml.swp"))
	assert.False(t, isManifestFile(".hidden.yaml"))
	assert.False(t, isManifestFile("notes.txt"))
}

func TestManifestNameFor(t *testing.T) {
	assert.Equal(t, "game-server", manifestNameFor("/srv/manifests/Game-Server.yaml"))
}

func TestImportAll(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	writeFile(t, dir, "api.yaml", "replicas: 1\n")
	writeFile(t, dir, "worker.yml", "replicas: 3\n")
	writeFile(t, dir, "broken.yaml", "key: [unclosed\n")
	writeFile(t, dir, "README.md", "# not a manifest\n")
	require.NoError(t, os.Mkdir(filepath.Join(dir, "sub.yaml"), 0o755))

	s := newTestStore(t, 0)
	w := NewManifestWatcher(dir, s, nil)
	require.NoError(t, w.ImportAll(ctx))

	list, err := s.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "api", list[0].Name)
	assert.Equal(t, "worker", list[1].Name)

	// A second pass over unchanged files publishes nothing.
	require.NoError(t, w.ImportAll(ctx))
	m, cur, err := s.Get(ctx, "api")
	require.NoError(t, err)
	assert.Equal(t, 1, m.Latest)
	assert.Equal(t, "watcher", cur.Author)
	assert.Equal(t, "imported from api.yaml", cur.Message)
}

func TestImportAll_MissingDir(t *testing.T) {
	w := NewManifestWatcher(filepath.Join(t.TempDir(), "nope"), newTestStore(t, 0), nil)
	assert.Error(t, w.ImportAll(context.Background()))
}

func TestRun_PublishesChanges(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "api.yaml", "replicas: 1\n")

	s := newTestStore(t, 0)
	published := make(chan Event, 8)
	s.OnChange = func(e Event) { published <- e }

	w := NewManifestWatcher(dir, s, nil)
	w.debounce = 10 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()
	defer func() {
		cancel()
		require.NoError(t, <-done)
	}()

	waitFor := func(version string) {
		t.Helper()
		select {
		case e := <-published:
			assert.Equal(t, "api", e.ID)
			assert.Equal(t, version, e.Content)
		case <-time.After(5 * time.Second):
			t.Fatalf("timed out waiting for version %s", version)
		}
	}
	waitFor("1")

	require.NoError(t, os.WriteFile(path, []byte("replicas: 2\n"), 0o644))
	waitFor("2")
}
