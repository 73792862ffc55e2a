package fixarchive

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"game-fix-manager/internal/fixarchive/fixarchivetest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeArchive(t *testing.T, entries ...fixarchivetest.Entry) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "fix.zip")
	fixarchivetest.WriteZip(t, path, entries...)
	return path
}

func TestExtractFile_StripsWrapper(t *testing.T) {
	archive := writeArchive(t,
		fixarchivetest.Entry{Name: "123/"},
		fixarchivetest.Entry{Name: "123/a.txt", Body: "A"},
		fixarchivetest.Entry{Name: "123/sub/b.txt", Body: "B"},
	)
	install := t.TempDir()

	res, err := ExtractFile(context.Background(), archive, install, 123, nil)
	require.NoError(t, err)

	assert.True(t, res.Wrapped)
	assert.Equal(t, []string{"a.txt", "sub/b.txt"}, res.Files)
	data, err := os.ReadFile(filepath.Join(install, "sub", "b.txt"))
	require.NoError(t, err)
	assert.Equal(t, "B", string(data))
	assert.NoDirExists(t, filepath.Join(install, "123"))
}

func TestExtractFile_BareTree(t *testing.T) {
	archive := writeArchive(t,
		fixarchivetest.Entry{Name: "a.txt", Body: "A"},
		fixarchivetest.Entry{Name: "sub/b.txt", Body: "B"},
	)
	install := t.TempDir()

	res, err := ExtractFile(context.Background(), archive, install, 123, nil)
	require.NoError(t, err)

	assert.False(t, res.Wrapped)
	assert.Equal(t, []string{"a.txt", "sub/b.txt"}, res.Files)
	assert.FileExists(t, filepath.Join(install, "a.txt"))
	assert.FileExists(t, filepath.Join(install, "sub", "b.txt"))
}

func TestExtractFile_CheckpointStopsAfterCurrentFile(t *testing.T) {
	archive := writeArchive(t,
		fixarchivetest.Entry{Name: "a.txt", Body: "A"},
		fixarchivetest.Entry{Name: "b.txt", Body: "B"},
	)
	install := t.TempDir()
	stop := errors.New("stop")
	calls := 0

	res, err := ExtractFile(context.Background(), archive, install, 1, func() error {
		calls++
		if calls == 2 {
			return stop
		}
		return nil
	})

	assert.ErrorIs(t, err, stop)
	assert.Equal(t, []string{"a.txt"}, res.Files)
	assert.FileExists(t, filepath.Join(install, "a.txt"))
	assert.NoFileExists(t, filepath.Join(install, "b.txt"))
}

func TestExtractFile_CheckpointBeforeStart(t *testing.T) {
	archive := writeArchive(t, fixarchivetest.Entry{Name: "a.txt", Body: "A"})
	install := t.TempDir()
	stop := errors.New("stop")

	res, err := ExtractFile(context.Background(), archive, install, 1, func() error { return stop })

	assert.ErrorIs(t, err, stop)
	assert.Empty(t, res.Files)
	assert.NoFileExists(t, filepath.Join(install, "a.txt"))
}

func TestExtractFile_RejectsEscapingEntries(t *testing.T) {
	archive := writeArchive(t, fixarchivetest.Entry{Name: "../evil.txt", Body: "x"})
	install := filepath.Join(t.TempDir(), "game")
	require.NoError(t, os.Mkdir(install, 0o755))

	res, err := ExtractFile(context.Background(), archive, install, 1, nil)

	require.Error(t, err)
	assert.Empty(t, res.Files)
	assert.NoFileExists(t, filepath.Join(filepath.Dir(install), "evil.txt"))
}

func TestExtractFile_NotAZip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "broken.zip")
	require.NoError(t, os.WriteFile(path, []byte("not a zip"), 0o644))

	_, err := ExtractFile(context.Background(), path, t.TempDir(), 1, nil)
	assert.Error(t, err)
}
