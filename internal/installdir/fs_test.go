package installdir

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestSafeJoin(t *testing.T) {
	root := t.TempDir()

	cases := []struct {
		rel     string
		want    string
		wantErr bool
	}{
		{rel: "a.txt", want: filepath.Join(root, "a.txt")},
		{rel: "sub/b.txt", want: filepath.Join(root, "sub", "b.txt")},
		{rel: "sub\\c.txt", want: filepath.Join(root, "sub", "c.txt")},
		{rel: "sub/../d.txt", want: filepath.Join(root, "d.txt")},
		{rel: "../escape.txt", wantErr: true},
		{rel: "sub/../../escape.txt", wantErr: true},
		{rel: "/etc/passwd", wantErr: true},
		{rel: "", wantErr: true},
		{rel: ".", wantErr: true},
	}

	for _, tc := range cases {
		got, err := SafeJoin(root, tc.rel)
		if tc.wantErr {
			if !errors.Is(err, ErrOutsideRoot) {
				t.Fatalf("SafeJoin(%q): expected ErrOutsideRoot, got %v", tc.rel, err)
			}
			continue
		}
		if err != nil {
			t.Fatalf("SafeJoin(%q): %v", tc.rel, err)
		}
		if got != tc.want {
			t.Fatalf("SafeJoin(%q) = %q, want %q", tc.rel, got, tc.want)
		}
	}
}

func TestWriteBytes_ReplacesAtomically(t *testing.T) {
	target := filepath.Join(t.TempDir(), "nested", "file.log")

	if err := WriteBytes(target, []byte("first")); err != nil {
		t.Fatal(err)
	}
	if err := WriteBytes(target, []byte("second")); err != nil {
		t.Fatal(err)
	}

	data, err := os.ReadFile(target)
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "second" {
		t.Fatalf("unexpected content %q", data)
	}

	entries, err := os.ReadDir(filepath.Dir(target))
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected temp files to be cleaned up, found %d entries", len(entries))
	}
}

func TestEnsureWritableDir(t *testing.T) {
	ok, msg := EnsureWritableDir(filepath.Join(t.TempDir(), "tmp"))
	if !ok {
		t.Fatalf("expected writable dir, got %q", msg)
	}
	if ok, _ := EnsureWritableDir("  "); ok {
		t.Fatalf("expected empty path to fail")
	}
}
