// Package fixarchivetest builds in-memory fix archives for tests.
package fixarchivetest

import (
	"bytes"
	"os"
	"testing"

	"github.com/klauspost/compress/zip"
)

// Entry is one archive member. Names ending in "/" become directory entries.
type Entry struct {
	Name string
	Body string
}

func Zip(t testing.TB, entries ...Entry) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for _, e := range entries {
		w, err := zw.Create(e.Name)
		if err != nil {
			t.Fatalf("create zip entry %s: %v", e.Name, err)
		}
		if e.Body == "" {
			continue
		}
		if _, err := w.Write([]byte(e.Body)); err != nil {
			t.Fatalf("write zip entry %s: %v", e.Name, err)
		}
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("close zip: %v", err)
	}
	return buf.Bytes()
}

// WriteZip writes Zip(entries) to path.
func WriteZip(t testing.TB, path string, entries ...Entry) {
	t.Helper()
	if err := os.WriteFile(path, Zip(t, entries...), 0o644); err != nil {
		t.Fatalf("write zip %s: %v", path, err)
	}
}
