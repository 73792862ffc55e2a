package fixarchive

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"game-fix-manager/internal/installdir"

	"github.com/klauspost/compress/zip"
)

// Checkpoint is consulted before extraction starts and after every written
// file. A non-nil error stops extraction and is returned unchanged.
type Checkpoint func() error

// Result reports the files written, in write order, even when extraction
// stopped early.
type Result struct {
	Wrapped bool
	Files   []string
}

// ExtractFile opens the zip at archivePath and extracts it into installPath
// following PlanEntries.
func ExtractFile(ctx context.Context, archivePath, installPath string, appID int64, check Checkpoint) (Result, error) {
	rc, err := zip.OpenReader(archivePath)
	if err != nil {
		return Result{}, fmt.Errorf("open archive %s: %w", archivePath, err)
	}
	defer rc.Close()
	return Extract(ctx, &rc.Reader, installPath, appID, check)
}

func Extract(ctx context.Context, zr *zip.Reader, installPath string, appID int64, check Checkpoint) (Result, error) {
	if check == nil {
		check = func() error { return nil }
	}

	names := make([]string, 0, len(zr.File))
	byName := make(map[string]*zip.File, len(zr.File))
	for _, f := range zr.File {
		names = append(names, f.Name)
		byName[f.Name] = f
	}
	plan := PlanEntries(names, appID)
	res := Result{Wrapped: plan.Wrapped}

	if err := check(); err != nil {
		return res, err
	}

	for _, it := range plan.Items {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		target, err := installdir.SafeJoin(installPath, it.Target)
		if err != nil {
			return res, err
		}
		if err := writeEntry(byName[it.Source], target); err != nil {
			return res, err
		}
		res.Files = append(res.Files, it.Target)
		if err := check(); err != nil {
			return res, err
		}
	}
	return res, nil
}

func writeEntry(f *zip.File, target string) error {
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return fmt.Errorf("create parent for %s: %w", target, err)
	}
	src, err := f.Open()
	if err != nil {
		return fmt.Errorf("open entry %s: %w", f.Name, err)
	}
	defer src.Close()

	perm := f.Mode().Perm()
	if perm == 0 {
		perm = 0o644
	}
	out, err := os.OpenFile(target, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, perm)
	if err != nil {
		return fmt.Errorf("create %s: %w", target, err)
	}
	if _, err := io.Copy(out, src); err != nil {
		out.Close()
		return fmt.Errorf("write %s: %w", target, err)
	}
	return out.Close()
}
