package fixer

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"game-fix-manager/internal/fixerr"
	"game-fix-manager/internal/installdir"
	"game-fix-manager/internal/jobstate"
	"game-fix-manager/internal/logging"
	"game-fix-manager/internal/manifest"
	"game-fix-manager/internal/model"
)

const (
	noManifestMessage = "No fix log found. Cannot un-fix."
	readingProgress   = "Reading log file..."
)

type RemoveRequest struct {
	AppID       int64
	InstallPath string
	JobID       string
}

// RemoveOutcome summarises a finished remove. Removed lists only files that
// were actually deleted.
type RemoveOutcome struct {
	Status   model.RemoveStatus
	Removed  []string
	Manifest manifest.Manifest
	Err      error
}

// Remover deletes the files listed in a fix log.
type Remover struct {
	store *jobstate.RemoveStore
	opts  Options
}

func NewRemover(store *jobstate.RemoveStore, opts Options) *Remover {
	return &Remover{store: store, opts: opts.withDefaults()}
}

func (r *Remover) Run(ctx context.Context, req RemoveRequest) RemoveOutcome {
	logger := logging.ForJob(r.opts.Logger, req.AppID, string(model.KindRemove), req.JobID)
	r.set(req.AppID, model.RemoveRemoving, model.RemovePatch{Progress: model.Ptr(readingProgress)})

	if !manifest.Exists(req.InstallPath, req.AppID) {
		return r.fail(logger, req.AppID, RemoveOutcome{}, fixerr.NotFound(noManifestMessage))
	}

	lock, err := installdir.AcquireLock(req.InstallPath, req.AppID, string(model.KindRemove))
	if err != nil {
		return r.fail(logger, req.AppID, RemoveOutcome{}, fixerr.Conflict("install directory is busy: %v", err))
	}
	defer func() {
		if err := lock.Release(); err != nil {
			logger.Warn("release install lock failed", "path", req.InstallPath, "error", err)
		}
	}()

	m, err := manifest.Read(req.InstallPath, req.AppID)
	if err != nil {
		return r.fail(logger, req.AppID, RemoveOutcome{}, fixerr.Internal(nil, "Failed to read log file: %v", err))
	}
	out := RemoveOutcome{Manifest: m}

	r.store.Update(req.AppID, model.RemovePatch{Progress: model.Ptr(removingProgress(len(m.Files)))})
	logger.InfoContext(ctx, "removing fix files", "files", len(m.Files))

	for _, rel := range m.Files {
		path, err := installdir.SafeJoin(req.InstallPath, rel)
		if err != nil {
			logger.Warn("skipping fix log entry", "entry", rel, "error", err)
			continue
		}
		info, err := os.Lstat(path)
		if os.IsNotExist(err) {
			continue
		}
		if err == nil && info.IsDir() {
			logger.Warn("skipping directory listed in fix log", "entry", rel)
			continue
		}
		if err := os.Remove(path); err != nil {
			if !os.IsNotExist(err) {
				logger.Warn("remove fix file failed", "path", path, "error", err)
			}
			continue
		}
		out.Removed = append(out.Removed, rel)
	}
	r.opts.Metrics.FilesRemoved(len(out.Removed))

	if err := manifest.Delete(req.InstallPath, req.AppID); err != nil && !os.IsNotExist(err) {
		logger.Warn("delete fix log failed", "path", manifest.Path(req.InstallPath, req.AppID), "error", err)
	}

	r.set(req.AppID, model.RemoveDone, model.RemovePatch{
		Success:      model.Ptr(true),
		FilesRemoved: model.Ptr(len(out.Removed)),
	})
	logger.InfoContext(ctx, "fix removed", "files_removed", len(out.Removed))
	out.Status = model.RemoveDone
	return out
}

func (r *Remover) set(appID int64, next model.RemoveStatus, patch model.RemovePatch) {
	patch.Status = model.Ptr(next)
	r.store.UpdateIf(appID, func(cur model.RemoveJob, _ bool) (model.RemovePatch, bool) {
		if !model.CanTransitionRemove(cur.Status, next) {
			r.opts.Logger.Warn("unexpected remove transition", "app_id", appID, "from", cur.Status, "to", next)
		}
		return patch, true
	})
}

func (r *Remover) fail(logger *slog.Logger, appID int64, out RemoveOutcome, err error) RemoveOutcome {
	r.set(appID, model.RemoveFailed, model.RemovePatch{
		Success: model.Ptr(false),
		Error:   model.Ptr(err.Error()),
	})
	logger.Error("remove failed", "error", err)
	out.Status = model.RemoveFailed
	out.Err = err
	return out
}

func removingProgress(n int) string {
	return fmt.Sprintf("Removing %d files...", n)
}
