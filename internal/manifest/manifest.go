// Package manifest reads and writes the per-application fix log that lists
// every file a fix wrote. Removing a fix deletes exactly what the log lists.
package manifest

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"game-fix-manager/internal/installdir"
)

const (
	DateLayout   = "2006-01-02 15:04:05"
	filesMarker  = "Files:"
	datePrefix   = "Date: "
	gamePrefix   = "Game: "
	typePrefix   = "Fix Type: "
	sourcePrefix = "Download URL: "
)

type Manifest struct {
	CreatedAt time.Time `json:"created_at"`
	GameName  string    `json:"game_name"`
	FixType   string    `json:"fix_type"`
	SourceURL string    `json:"source_url"`
	Files     []string  `json:"files"`
}

// FileName is the log name used for appID inside its install directory.
func FileName(appID int64) string {
	return "fix-log-" + strconv.FormatInt(appID, 10) + ".log"
}

// LegacyFileName is the log name written by earlier releases. It is still
// read and deleted so those fixes can be removed.
func LegacyFileName(appID int64) string {
	return "luatools-" + FileName(appID)
}

func Path(installPath string, appID int64) string {
	return filepath.Join(installPath, FileName(appID))
}

// Locate returns the path of the existing log for appID, preferring the
// current name over the legacy one.
func Locate(installPath string, appID int64) (string, bool) {
	for _, name := range []string{FileName(appID), LegacyFileName(appID)} {
		p := filepath.Join(installPath, name)
		if installdir.FileExists(p) {
			return p, true
		}
	}
	return Path(installPath, appID), false
}

// UnknownGameName is the display name recorded when none could be resolved.
func UnknownGameName(appID int64) string {
	return fmt.Sprintf("Unknown Game (%d)", appID)
}

func Exists(installPath string, appID int64) bool {
	_, ok := Locate(installPath, appID)
	return ok
}

func Encode(w io.Writer, m Manifest) error {
	bw := bufio.NewWriter(w)
	fmt.Fprintf(bw, "%s%s\n", datePrefix, m.CreatedAt.Local().Format(DateLayout))
	fmt.Fprintf(bw, "%s%s\n", gamePrefix, m.GameName)
	fmt.Fprintf(bw, "%s%s\n", typePrefix, m.FixType)
	fmt.Fprintf(bw, "%s%s\n", sourcePrefix, m.SourceURL)
	fmt.Fprintln(bw, filesMarker)
	for _, f := range m.Files {
		fmt.Fprintln(bw, f)
	}
	return bw.Flush()
}

// Decode parses a fix log. Header lines are optional; every non-blank line
// after the Files: marker is a relative path.
func Decode(r io.Reader) (Manifest, error) {
	var m Manifest
	inFiles := false
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == filesMarker {
			inFiles = true
			continue
		}
		if inFiles {
			if line != "" {
				m.Files = append(m.Files, line)
			}
			continue
		}
		switch {
		case strings.HasPrefix(line, datePrefix):
			if ts, err := time.ParseInLocation(DateLayout, strings.TrimPrefix(line, datePrefix), time.Local); err == nil {
				m.CreatedAt = ts
			}
		case strings.HasPrefix(line, gamePrefix):
			m.GameName = strings.TrimPrefix(line, gamePrefix)
		case strings.HasPrefix(line, typePrefix):
			m.FixType = strings.TrimPrefix(line, typePrefix)
		case strings.HasPrefix(line, sourcePrefix):
			m.SourceURL = strings.TrimPrefix(line, sourcePrefix)
		}
	}
	if err := sc.Err(); err != nil {
		return Manifest{}, err
	}
	return m, nil
}

func Write(installPath string, appID int64, m Manifest) error {
	var buf bytes.Buffer
	if err := Encode(&buf, m); err != nil {
		return err
	}
	return installdir.WriteBytes(Path(installPath, appID), buf.Bytes())
}

func Read(installPath string, appID int64) (Manifest, error) {
	path, _ := Locate(installPath, appID)
	f, err := os.Open(path)
	if err != nil {
		return Manifest{}, err
	}
	defer f.Close()
	return Decode(f)
}

// Delete removes the log under both names. It returns an os.ErrNotExist
// error when neither was present.
func Delete(installPath string, appID int64) error {
	found := false
	for _, name := range []string{FileName(appID), LegacyFileName(appID)} {
		err := os.Remove(filepath.Join(installPath, name))
		switch {
		case err == nil:
			found = true
		case !os.IsNotExist(err):
			return err
		}
	}
	if !found {
		return &os.PathError{Op: "remove", Path: Path(installPath, appID), Err: os.ErrNotExist}
	}
	return nil
}
