package steam

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"game-fix-manager/internal/installdir"
)

var reVDFPair = regexp.MustCompile(`"([^"]+)"\s+"((?:[^"\\]|\\.)*)"`)

// Library resolves install directories from app manifests inside Steam
// library folders.
type Library struct {
	roots []string
}

func NewLibrary(roots []string) *Library {
	return &Library{roots: roots}
}

// Folders returns the configured roots plus every library they reference in
// libraryfolders.vdf, without duplicates.
func (l *Library) Folders() []string {
	out := make([]string, 0, len(l.roots))
	seen := make(map[string]bool)
	add := func(p string) {
		p = filepath.Clean(strings.TrimSpace(p))
		if p == "." || seen[p] {
			return
		}
		seen[p] = true
		out = append(out, p)
	}
	for _, root := range l.roots {
		add(root)
		data, err := os.ReadFile(filepath.Join(root, "steamapps", "libraryfolders.vdf"))
		if err != nil {
			continue
		}
		for _, p := range vdfValues(data, "path") {
			add(p)
		}
	}
	return out
}

func (l *Library) ResolveInstallPath(ctx context.Context, appID int64) (string, error) {
	name := "appmanifest_" + strconv.FormatInt(appID, 10) + ".acf"
	for _, folder := range l.Folders() {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		data, err := os.ReadFile(filepath.Join(folder, "steamapps", name))
		if err != nil {
			continue
		}
		dirs := vdfValues(data, "installdir")
		if len(dirs) == 0 || strings.TrimSpace(dirs[0]) == "" {
			continue
		}
		path := filepath.Join(folder, "steamapps", "common", dirs[0])
		if installdir.IsDir(path) {
			return path, nil
		}
	}
	return "", fmt.Errorf("no installed copy of app %d found in %d steam libraries", appID, len(l.roots))
}

// vdfValues returns the values of every "key" "value" pair named key,
// matching case-insensitively.
func vdfValues(data []byte, key string) []string {
	var out []string
	for _, m := range reVDFPair.FindAllSubmatch(data, -1) {
		if strings.EqualFold(string(m[1]), key) {
			out = append(out, strings.ReplaceAll(string(m[2]), `\\`, `\`))
		}
	}
	return out
}
