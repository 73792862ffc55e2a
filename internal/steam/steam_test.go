package steam

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStoreClient_ResolveNameCaches(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		assert.Equal(t, "620", r.URL.Query().Get("appids"))
		assert.Equal(t, "test-agent", r.Header.Get("User-Agent"))
		fmt.Fprint(w, `{"620":{"success":true,"data":{"name":"Portal 2"}}}`)
	}))
	defer srv.Close()

	c := NewStoreClient(srv.URL, "test-agent", srv.Client())

	for range 2 {
		name, err := c.ResolveName(context.Background(), 620)
		require.NoError(t, err)
		assert.Equal(t, "Portal 2", name)
	}
	assert.Equal(t, int32(1), calls.Load())
}

func TestStoreClient_ResolveNameFailures(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Query().Get("appids") {
		case "1":
			fmt.Fprint(w, `{"1":{"success":false}}`)
		default:
			http.Error(w, "nope", http.StatusServiceUnavailable)
		}
	}))
	defer srv.Close()

	c := NewStoreClient(srv.URL, "", srv.Client())

	_, err := c.ResolveName(context.Background(), 1)
	assert.Error(t, err)
	_, err = c.ResolveName(context.Background(), 2)
	assert.ErrorContains(t, err, "503")
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func TestLibrary_ResolveInstallPath(t *testing.T) {
	root := t.TempDir()
	extra := t.TempDir()
	writeFile(t, filepath.Join(root, "steamapps", "libraryfolders.vdf"), fmt.Sprintf(`"libraryfolders"
{
	"0"
	{
		"path"		"%s"
	}
	"1"
	{
		"path"		"%s"
	}
}`, root, extra))
	writeFile(t, filepath.Join(extra, "steamapps", "appmanifest_620.acf"), `"AppState"
{
	"appid"		"620"
	"name"		"Portal 2"
	"installdir"		"Portal 2"
}`)
	require.NoError(t, os.MkdirAll(filepath.Join(extra, "steamapps", "common", "Portal 2"), 0o755))

	lib := NewLibrary([]string{root})

	assert.Equal(t, []string{filepath.Clean(root), filepath.Clean(extra)}, lib.Folders())
	path, err := lib.ResolveInstallPath(context.Background(), 620)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(extra, "steamapps", "common", "Portal 2"), path)

	_, err = lib.ResolveInstallPath(context.Background(), 440)
	assert.Error(t, err)
}

func TestLibrary_ManifestWithoutDirectoryIsSkipped(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "steamapps", "appmanifest_70.acf"), `"AppState" { "installdir" "Half-Life" }`)

	_, err := NewLibrary([]string{root}).ResolveInstallPath(context.Background(), 70)
	assert.Error(t, err)
}
