package fixer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"game-fix-manager/internal/fixerr"
	"game-fix-manager/internal/model"
)

// download streams url into target, publishing byte counts to the apply
// store. It returns fixerr.ErrCancelled as soon as a cancel is observed.
func (a *Applier) download(ctx context.Context, appID int64, url, target string) (int64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return 0, fixerr.Validation("invalid download url %q: %v", url, err)
	}
	if a.opts.UserAgent != "" {
		req.Header.Set("User-Agent", a.opts.UserAgent)
	}

	resp, err := a.opts.Client.Do(req)
	if err != nil {
		if a.cancelled(ctx, appID) {
			return 0, fixerr.ErrCancelled
		}
		return 0, fixerr.External(err, "download request failed")
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return 0, fixerr.External(nil, "download failed (%d): %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	total := max(resp.ContentLength, 0)
	a.store.Update(appID, model.ApplyPatch{TotalBytes: model.Ptr(total)})

	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return 0, fixerr.Internal(err, "create temp directory")
	}
	out, err := os.Create(target)
	if err != nil {
		return 0, fixerr.Internal(err, "create temp archive")
	}
	defer out.Close()

	var read int64
	buf := make([]byte, chunkSize)
	for {
		n, rerr := resp.Body.Read(buf)
		if n > 0 {
			if a.cancelled(ctx, appID) {
				return read, fixerr.ErrCancelled
			}
			if _, err := out.Write(buf[:n]); err != nil {
				return read, fixerr.Internal(err, "write temp archive")
			}
			read += int64(n)
			a.store.Update(appID, model.ApplyPatch{BytesRead: model.Ptr(read)})
			if a.cancelled(ctx, appID) {
				return read, fixerr.ErrCancelled
			}
		}
		if errors.Is(rerr, io.EOF) {
			break
		}
		if rerr != nil {
			if a.cancelled(ctx, appID) {
				return read, fixerr.ErrCancelled
			}
			return read, fixerr.External(rerr, "read download body")
		}
	}

	if err := out.Close(); err != nil {
		return read, fixerr.Internal(err, "close temp archive")
	}
	if total > 0 && read != total {
		return read, fixerr.External(nil, "download truncated: got %d of %d bytes", read, total)
	}
	return read, nil
}

// TempArchivePath is where the archive for appID is staged while downloading.
func TempArchivePath(tempDir string, appID int64) string {
	if strings.TrimSpace(tempDir) == "" {
		tempDir = os.TempDir()
	}
	return filepath.Join(tempDir, fmt.Sprintf("fix_%d.zip", appID))
}
