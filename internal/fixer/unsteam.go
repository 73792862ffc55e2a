package fixer

import (
	"bytes"
	"fmt"
	"os"
	"strconv"
	"strings"

	"game-fix-manager/internal/installdir"
)

const (
	// UnsteamFixType is the fix label, compared case-insensitively, whose
	// unsteam.ini needs the application id filled in.
	UnsteamFixType = "Online Fix (Unsteam)"

	unsteamININame     = "unsteam.ini"
	unsteamPlaceholder = "<appid>"
)

// PatchUnsteamINI replaces every <appid> placeholder in the first written
// file named unsteam.ini. It reports whether the file changed.
func PatchUnsteamINI(installPath string, files []string, appID int64) (bool, error) {
	rel := ""
	for _, f := range files {
		if strings.HasSuffix(strings.ToLower(f), unsteamININame) {
			rel = f
			break
		}
	}
	if rel == "" {
		return false, fmt.Errorf("no %s among %d extracted files", unsteamININame, len(files))
	}

	path, err := installdir.SafeJoin(installPath, rel)
	if err != nil {
		return false, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return false, err
	}
	patched := bytes.ReplaceAll(data, []byte(unsteamPlaceholder), []byte(strconv.FormatInt(appID, 10)))
	if bytes.Equal(patched, data) {
		return false, nil
	}
	if err := installdir.WriteBytes(path, patched); err != nil {
		return false, err
	}
	return true, nil
}
