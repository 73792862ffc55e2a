package fixer

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"testing"

	"game-fix-manager/internal/fixarchive/fixarchivetest"
	"game-fix-manager/internal/fixerr"
	"game-fix-manager/internal/installdir"
	"game-fix-manager/internal/manifest"
	"game-fix-manager/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRemove_RestoresPreApplyFileSet(t *testing.T) {
	h := newHarness(t)
	writeFile(t, filepath.Join(h.installDir, "game.exe"), "exe")
	writeFile(t, filepath.Join(h.installDir, "bin", "engine.dll"), "engine")
	before := listFiles(t, h.installDir)

	srv := serveBytes(t, fixarchivetest.Zip(t,
		fixarchivetest.Entry{Name: "620/bin/x.dll", Body: "x"},
		fixarchivetest.Entry{Name: "620/steam_api.ini", Body: "ini"},
	))
	h.queueApply(testAppID)
	applied := h.applier.Run(context.Background(), ApplyRequest{
		AppID:       testAppID,
		DownloadURL: srv.URL,
		InstallPath: h.installDir,
	})
	require.NoError(t, applied.Err)

	h.queueRemove(testAppID)
	out := h.remover.Run(context.Background(), RemoveRequest{AppID: testAppID, InstallPath: h.installDir})

	require.NoError(t, out.Err)
	assert.Equal(t, model.RemoveDone, out.Status)
	assert.Equal(t, before, listFiles(t, h.installDir))

	rec, _ := h.removeStore.Get(testAppID)
	assert.Equal(t, model.RemoveDone, rec.Status)
	require.NotNil(t, rec.FilesRemoved)
	assert.Equal(t, 2, *rec.FilesRemoved)
	require.NotNil(t, rec.Success)
	assert.True(t, *rec.Success)
	require.NotNil(t, rec.Progress)
	assert.Equal(t, "Removing 2 files...", *rec.Progress)
}

func TestRemove_NoManifest(t *testing.T) {
	h := newHarness(t)
	writeFile(t, filepath.Join(h.installDir, "game.exe"), "exe")
	h.queueRemove(testAppID)

	out := h.remover.Run(context.Background(), RemoveRequest{AppID: testAppID, InstallPath: h.installDir})

	assert.Equal(t, model.RemoveFailed, out.Status)
	assert.Equal(t, fixerr.TypeNotFound, fixerr.TypeOf(out.Err))
	rec, _ := h.removeStore.Get(testAppID)
	assert.Equal(t, model.RemoveFailed, rec.Status)
	assert.Equal(t, "No fix log found. Cannot un-fix.", rec.ErrorMessage())
	assert.Equal(t, []string{"game.exe"}, listFiles(t, h.installDir))
}

func TestRemove_SkipsMissingAndEscapingEntries(t *testing.T) {
	h := newHarness(t)
	outside := filepath.Join(filepath.Dir(h.installDir), "outside-"+filepath.Base(h.installDir)+".txt")
	writeFile(t, outside, "keep")
	t.Cleanup(func() { _ = os.Remove(outside) })
	writeFile(t, filepath.Join(h.installDir, "present.txt"), "p")
	require.NoError(t, os.Mkdir(filepath.Join(h.installDir, "folder"), 0o755))
	require.NoError(t, manifest.Write(h.installDir, testAppID, manifest.Manifest{
		GameName: "Portal 2",
		Files: []string{
			"present.txt",
			"gone.txt",
			"folder",
			"../" + filepath.Base(outside),
		},
	}))
	h.queueRemove(testAppID)

	out := h.remover.Run(context.Background(), RemoveRequest{AppID: testAppID, InstallPath: h.installDir})

	require.NoError(t, out.Err)
	assert.Equal(t, []string{"present.txt"}, out.Removed)
	assert.FileExists(t, outside)
	assert.DirExists(t, filepath.Join(h.installDir, "folder"))
	assert.False(t, manifest.Exists(h.installDir, testAppID))

	rec, _ := h.removeStore.Get(testAppID)
	require.NotNil(t, rec.FilesRemoved)
	assert.Equal(t, 1, *rec.FilesRemoved)
	assert.Equal(t, "Removing 4 files...", *rec.Progress)
}

func TestRemove_ThreeListedOneMissing(t *testing.T) {
	h := newHarness(t)
	writeFile(t, filepath.Join(h.installDir, "a.dll"), "a")
	writeFile(t, filepath.Join(h.installDir, "sub", "b.dll"), "b")
	require.NoError(t, manifest.Write(h.installDir, testAppID, manifest.Manifest{
		Files: []string{"a.dll", "sub/b.dll", "c.dll"},
	}))
	h.queueRemove(testAppID)

	out := h.remover.Run(context.Background(), RemoveRequest{AppID: testAppID, InstallPath: h.installDir})

	require.NoError(t, out.Err)
	rec, _ := h.removeStore.Get(testAppID)
	assert.Equal(t, model.RemoveDone, rec.Status)
	require.NotNil(t, rec.Success)
	assert.True(t, *rec.Success)
	require.NotNil(t, rec.FilesRemoved)
	assert.Equal(t, 2, *rec.FilesRemoved)
	assert.Empty(t, listFiles(t, h.installDir))
}

func TestRemove_UndeletableFileIsSkipped(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("directory permissions do not block deletes on windows")
	}
	if os.Geteuid() == 0 {
		t.Skip("root ignores directory permissions")
	}
	h := newHarness(t)
	writeFile(t, filepath.Join(h.installDir, "a.dll"), "a")
	writeFile(t, filepath.Join(h.installDir, "ro", "locked.dll"), "locked")
	writeFile(t, filepath.Join(h.installDir, "b.dll"), "b")
	roDir := filepath.Join(h.installDir, "ro")
	require.NoError(t, os.Chmod(roDir, 0o555))
	t.Cleanup(func() { _ = os.Chmod(roDir, 0o755) })
	require.NoError(t, manifest.Write(h.installDir, testAppID, manifest.Manifest{
		Files: []string{"a.dll", "ro/locked.dll", "b.dll"},
	}))
	h.queueRemove(testAppID)

	out := h.remover.Run(context.Background(), RemoveRequest{AppID: testAppID, InstallPath: h.installDir})

	require.NoError(t, out.Err)
	assert.Equal(t, []string{"a.dll", "b.dll"}, out.Removed)
	assert.FileExists(t, filepath.Join(roDir, "locked.dll"))
	assert.False(t, manifest.Exists(h.installDir, testAppID))

	rec, _ := h.removeStore.Get(testAppID)
	assert.Equal(t, model.RemoveDone, rec.Status)
	require.NotNil(t, rec.Success)
	assert.True(t, *rec.Success)
	require.NotNil(t, rec.FilesRemoved)
	assert.Equal(t, 2, *rec.FilesRemoved)
}

func TestRemove_TakesOverLockOfExitedProcess(t *testing.T) {
	h := newHarness(t)
	writeFile(t, filepath.Join(h.installDir, "a.dll"), "a")
	require.NoError(t, manifest.Write(h.installDir, testAppID, manifest.Manifest{Files: []string{"a.dll"}}))

	child := exec.Command(os.Args[0], "-test.run=^$")
	require.NoError(t, child.Run())
	lockDir := filepath.Join(h.installDir, ".game-fix-manager.lock")
	require.NoError(t, os.Mkdir(lockDir, 0o755))
	require.NoError(t, installdir.WriteJSON(filepath.Join(lockDir, "owner.json"), installdir.LockOwner{
		PID:       child.Process.Pid,
		AppID:     testAppID,
		Kind:      "apply",
		CreatedAt: "2020-01-01T00:00:00Z",
	}))
	h.queueRemove(testAppID)

	out := h.remover.Run(context.Background(), RemoveRequest{AppID: testAppID, InstallPath: h.installDir})

	require.NoError(t, out.Err)
	assert.Equal(t, model.RemoveDone, out.Status)
	assert.Equal(t, []string{"a.dll"}, out.Removed)
	assert.NoDirExists(t, lockDir)
}
