package fixer

import (
	"io/fs"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"testing"
	"time"

	"game-fix-manager/internal/jobstate"
	"game-fix-manager/internal/logging"
	"game-fix-manager/internal/model"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/require"
)

const testAppID int64 = 620

type harness struct {
	applyStore  *jobstate.ApplyStore
	removeStore *jobstate.RemoveStore
	applier     *Applier
	remover     *Remover
	clock       *clockwork.FakeClock
	tempDir     string
	installDir  string
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	clock := clockwork.NewFakeClockAt(time.Date(2026, 3, 4, 5, 6, 7, 0, time.Local))
	h := &harness{
		applyStore:  jobstate.NewApplyStore(clock),
		removeStore: jobstate.NewRemoveStore(clock),
		clock:       clock,
		tempDir:     t.TempDir(),
		installDir:  t.TempDir(),
	}
	opts := Options{
		TempDir: h.tempDir,
		Clock:   clock,
		Logger:  logging.Discard(),
	}
	h.applier = NewApplier(h.applyStore, opts)
	h.remover = NewRemover(h.removeStore, opts)
	return h
}

func (h *harness) queueApply(appID int64) {
	h.applyStore.Update(appID, model.ApplyPatch{
		Status:     model.Ptr(model.ApplyQueued),
		BytesRead:  model.Ptr(int64(0)),
		TotalBytes: model.Ptr(int64(0)),
		Error:      model.Ptr(""),
	})
}

func (h *harness) queueRemove(appID int64) {
	h.removeStore.Update(appID, model.RemovePatch{Status: model.Ptr(model.RemoveQueued)})
}

// serveBytes returns a server that answers every request with body.
func serveBytes(t *testing.T, body []byte) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Length", strconv.Itoa(len(body)))
		_, _ = w.Write(body)
	}))
	t.Cleanup(srv.Close)
	return srv
}

// listFiles returns every regular file under root as a sorted slash path.
func listFiles(t *testing.T, root string) []string {
	t.Helper()
	var out []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		out = append(out, filepath.ToSlash(rel))
		return nil
	})
	require.NoError(t, err)
	sort.Strings(out)
	return out
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}
