package fixer

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"game-fix-manager/internal/fixarchive/fixarchivetest"
	"game-fix-manager/internal/fixerr"
	"game-fix-manager/internal/installdir"
	"game-fix-manager/internal/logging"
	"game-fix-manager/internal/manifest"
	"game-fix-manager/internal/metrics"
	"game-fix-manager/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestApply_WrappedArchive(t *testing.T) {
	h := newHarness(t)
	body := fixarchivetest.Zip(t,
		fixarchivetest.Entry{Name: "620/"},
		fixarchivetest.Entry{Name: "620/bin/x.dll", Body: "dll"},
		fixarchivetest.Entry{Name: "620/readme.txt", Body: "hello"},
	)
	srv := serveBytes(t, body)
	h.queueApply(testAppID)

	out := h.applier.Run(context.Background(), ApplyRequest{
		AppID:       testAppID,
		DownloadURL: srv.URL + "/620.zip",
		InstallPath: h.installDir,
		FixType:     "Generic Fix",
		GameName:    "Portal 2",
	})

	require.NoError(t, out.Err)
	assert.Equal(t, model.ApplyDone, out.Status)
	assert.Equal(t, []string{"bin/x.dll", "readme.txt"}, out.Files)

	rec, ok := h.applyStore.Get(testAppID)
	require.True(t, ok)
	assert.Equal(t, model.ApplyDone, rec.Status)
	require.NotNil(t, rec.Success)
	assert.True(t, *rec.Success)
	assert.Nil(t, rec.Error)
	assert.Equal(t, int64(len(body)), rec.BytesRead)
	assert.Equal(t, int64(len(body)), rec.TotalBytes)

	assert.Equal(t, []string{"bin/x.dll", manifest.FileName(testAppID), "readme.txt"}, listFiles(t, h.installDir))
	data, err := os.ReadFile(filepath.Join(h.installDir, "bin", "x.dll"))
	require.NoError(t, err)
	assert.Equal(t, "dll", string(data))

	m, err := manifest.Read(h.installDir, testAppID)
	require.NoError(t, err)
	assert.Equal(t, "Portal 2", m.GameName)
	assert.Equal(t, "Generic Fix", m.FixType)
	assert.Equal(t, srv.URL+"/620.zip", m.SourceURL)
	assert.Equal(t, []string{"bin/x.dll", "readme.txt"}, m.Files)
	assert.True(t, h.clock.Now().Equal(m.CreatedAt))

	assert.NoFileExists(t, TempArchivePath(h.tempDir, testAppID))
}

func TestApply_BareArchiveAndUnknownGameName(t *testing.T) {
	h := newHarness(t)
	srv := serveBytes(t, fixarchivetest.Zip(t,
		fixarchivetest.Entry{Name: "a.txt", Body: "a"},
		fixarchivetest.Entry{Name: "b/c.txt", Body: "c"},
	))
	h.queueApply(testAppID)

	out := h.applier.Run(context.Background(), ApplyRequest{
		AppID:       testAppID,
		DownloadURL: srv.URL,
		InstallPath: h.installDir,
		FixType:     "Generic Fix",
	})

	require.NoError(t, out.Err)
	assert.Equal(t, []string{"a.txt", "b/c.txt"}, out.Files)
	m, err := manifest.Read(h.installDir, testAppID)
	require.NoError(t, err)
	assert.Equal(t, "Unknown Game (620)", m.GameName)
}

func TestApply_UnsteamPlaceholderSubstitution(t *testing.T) {
	cases := []struct {
		name    string
		fixType string
		want    string
	}{
		{name: "exact label", fixType: "Online Fix (Unsteam)", want: "appid=620\nname=620"},
		{name: "case insensitive", fixType: "online fix (unsteam)", want: "appid=620\nname=620"},
		{name: "other fix type", fixType: "Online Fix", want: "appid=<appid>\nname=<appid>"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			h := newHarness(t)
			srv := serveBytes(t, fixarchivetest.Zip(t,
				fixarchivetest.Entry{Name: "620/Game/UnSteam.ini", Body: "appid=<appid>\nname=<appid>"},
			))
			h.queueApply(testAppID)

			out := h.applier.Run(context.Background(), ApplyRequest{
				AppID:       testAppID,
				DownloadURL: srv.URL,
				InstallPath: h.installDir,
				FixType:     tc.fixType,
			})

			require.NoError(t, out.Err)
			data, err := os.ReadFile(filepath.Join(h.installDir, "Game", "UnSteam.ini"))
			require.NoError(t, err)
			assert.Equal(t, tc.want, string(data))
		})
	}
}

func TestApply_HTTPErrorFails(t *testing.T) {
	h := newHarness(t)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "missing", http.StatusNotFound)
	}))
	defer srv.Close()
	h.queueApply(testAppID)

	out := h.applier.Run(context.Background(), ApplyRequest{
		AppID:       testAppID,
		DownloadURL: srv.URL,
		InstallPath: h.installDir,
		FixType:     "Generic Fix",
	})

	assert.Equal(t, model.ApplyFailed, out.Status)
	assert.Equal(t, fixerr.TypeExternal, fixerr.TypeOf(out.Err))
	rec, _ := h.applyStore.Get(testAppID)
	assert.Equal(t, model.ApplyFailed, rec.Status)
	assert.Contains(t, rec.ErrorMessage(), "404")
	require.NotNil(t, rec.Success)
	assert.False(t, *rec.Success)
	assert.Empty(t, listFiles(t, h.installDir))
}

func TestApply_InvalidArchiveFailsAndKeepsTemp(t *testing.T) {
	h := newHarness(t)
	srv := serveBytes(t, []byte("definitely not a zip"))
	h.queueApply(testAppID)

	out := h.applier.Run(context.Background(), ApplyRequest{
		AppID:       testAppID,
		DownloadURL: srv.URL,
		InstallPath: h.installDir,
	})

	assert.Equal(t, model.ApplyFailed, out.Status)
	assert.False(t, manifest.Exists(h.installDir, testAppID))
	assert.FileExists(t, TempArchivePath(h.tempDir, testAppID))
}

func TestApply_CancelledBeforeStart(t *testing.T) {
	h := newHarness(t)
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
	}))
	defer srv.Close()
	h.queueApply(testAppID)
	h.applyStore.Update(testAppID, model.ApplyPatch{Status: model.Ptr(model.ApplyCancelled)})

	out := h.applier.Run(context.Background(), ApplyRequest{
		AppID:       testAppID,
		DownloadURL: srv.URL,
		InstallPath: h.installDir,
	})

	assert.Equal(t, model.ApplyCancelled, out.Status)
	assert.ErrorIs(t, out.Err, fixerr.ErrCancelled)
	assert.Zero(t, hits.Load())
	rec, _ := h.applyStore.Get(testAppID)
	assert.Equal(t, model.ApplyCancelled, rec.Status)
	assert.Equal(t, CancelledMessage, rec.ErrorMessage())
	assert.Zero(t, rec.BytesRead)
	assert.Empty(t, listFiles(t, h.installDir))
}

func TestApply_CancelDuringDownload(t *testing.T) {
	h := newHarness(t)
	payload := fixarchivetest.Zip(t, fixarchivetest.Entry{Name: "big.bin", Body: strings.Repeat("x", 256*1024)})
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Length", strconv.Itoa(len(payload)))
		half := len(payload) / 2
		_, _ = w.Write(payload[:half])
		w.(http.Flusher).Flush()
		<-release
		_, _ = w.Write(payload[half:])
	}))
	defer srv.Close()
	defer func() {
		select {
		case <-release:
		default:
			close(release)
		}
	}()
	h.queueApply(testAppID)

	done := make(chan ApplyOutcome, 1)
	go func() {
		done <- h.applier.Run(context.Background(), ApplyRequest{
			AppID:       testAppID,
			DownloadURL: srv.URL,
			InstallPath: h.installDir,
		})
	}()

	require.Eventually(t, func() bool {
		rec, _ := h.applyStore.Get(testAppID)
		return rec.BytesRead > 0
	}, 5*time.Second, 5*time.Millisecond)
	h.applyStore.Update(testAppID, model.ApplyPatch{
		Status:  model.Ptr(model.ApplyCancelled),
		Success: model.Ptr(false),
		Error:   model.Ptr(CancelledMessage),
	})
	close(release)

	var out ApplyOutcome
	select {
	case out = <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("apply did not stop after cancel")
	}

	assert.Equal(t, model.ApplyCancelled, out.Status)
	rec, _ := h.applyStore.Get(testAppID)
	assert.Equal(t, model.ApplyCancelled, rec.Status)
	assert.Less(t, rec.BytesRead, int64(len(payload)))
	assert.Empty(t, listFiles(t, h.installDir))
	assert.NoFileExists(t, TempArchivePath(h.tempDir, testAppID))
}

func TestApply_ContextCancelReportsCancelled(t *testing.T) {
	h := newHarness(t)
	srv := serveBytes(t, fixarchivetest.Zip(t, fixarchivetest.Entry{Name: "a.txt", Body: "a"}))
	h.queueApply(testAppID)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	out := h.applier.Run(ctx, ApplyRequest{
		AppID:       testAppID,
		DownloadURL: srv.URL,
		InstallPath: h.installDir,
	})

	assert.Equal(t, model.ApplyCancelled, out.Status)
	rec, _ := h.applyStore.Get(testAppID)
	assert.Equal(t, model.ApplyCancelled, rec.Status)
	assert.Equal(t, CancelledMessage, rec.ErrorMessage())
}

func TestApply_InstallDirHeldByLiveJobFails(t *testing.T) {
	h := newHarness(t)
	srv := serveBytes(t, fixarchivetest.Zip(t, fixarchivetest.Entry{Name: "a.txt", Body: "a"}))
	held, err := installdir.AcquireLock(h.installDir, testAppID, "remove")
	require.NoError(t, err)
	defer held.Release()
	h.queueApply(testAppID)

	out := h.applier.Run(context.Background(), ApplyRequest{
		AppID:       testAppID,
		DownloadURL: srv.URL,
		InstallPath: h.installDir,
	})

	assert.Equal(t, model.ApplyFailed, out.Status)
	assert.Equal(t, fixerr.TypeConflict, fixerr.TypeOf(out.Err))
	assert.False(t, manifest.Exists(h.installDir, testAppID))
}

func TestPatchUnsteamINI(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "cfg", "unsteam.ini"), "id=<appid>")

	changed, err := PatchUnsteamINI(dir, []string{"a.txt", "cfg/unsteam.ini"}, 70)
	require.NoError(t, err)
	assert.True(t, changed)

	changed, err = PatchUnsteamINI(dir, []string{"cfg/unsteam.ini"}, 70)
	require.NoError(t, err)
	assert.False(t, changed)

	data, err := os.ReadFile(filepath.Join(dir, "cfg", "unsteam.ini"))
	require.NoError(t, err)
	assert.Equal(t, "id=70", string(data))

	_, err = PatchUnsteamINI(dir, []string{"a.txt"}, 70)
	assert.Error(t, err)
}

// cancelOnExtract cancels the job from inside the extraction metrics call,
// after every file is written but before the fix log.
type cancelOnExtract struct {
	metrics.Noop
	cancel func()
}

func (c cancelOnExtract) FilesWritten(int) { c.cancel() }

func TestApply_CancelAfterExtractionWritesNoLog(t *testing.T) {
	h := newHarness(t)
	srv := serveBytes(t, fixarchivetest.Zip(t, fixarchivetest.Entry{Name: "a.txt", Body: "a"}))
	applier := NewApplier(h.applyStore, Options{
		TempDir: h.tempDir,
		Clock:   h.clock,
		Logger:  logging.Discard(),
		Metrics: cancelOnExtract{cancel: func() {
			h.applyStore.Update(testAppID, model.ApplyPatch{Status: model.Ptr(model.ApplyCancelled)})
		}},
	})
	h.queueApply(testAppID)

	out := applier.Run(context.Background(), ApplyRequest{AppID: testAppID, DownloadURL: srv.URL, InstallPath: h.installDir})

	assert.Equal(t, model.ApplyCancelled, out.Status)
	assert.FileExists(t, filepath.Join(h.installDir, "a.txt"))
	assert.False(t, manifest.Exists(h.installDir, testAppID))
	assert.Equal(t, model.ApplyCancelled, h.applyStore.Status(testAppID))
}

func TestApplyComplete_WrittenLogOverridesLateCancel(t *testing.T) {
	h := newHarness(t)
	cancelled := model.ApplyPatch{
		Status:  model.Ptr(model.ApplyCancelled),
		Success: model.Ptr(false),
		Error:   model.Ptr(CancelledMessage),
	}

	h.applyStore.Update(testAppID, cancelled)
	assert.False(t, h.applier.complete(logging.Discard(), testAppID, false))
	assert.Equal(t, model.ApplyCancelled, h.applyStore.Status(testAppID))

	assert.True(t, h.applier.complete(logging.Discard(), testAppID, true))
	rec, _ := h.applyStore.Get(testAppID)
	assert.Equal(t, model.ApplyDone, rec.Status)
	require.NotNil(t, rec.Success)
	assert.True(t, *rec.Success)
	assert.Nil(t, rec.Error)
}
