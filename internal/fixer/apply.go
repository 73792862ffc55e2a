package fixer

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"strings"

	"game-fix-manager/internal/fixarchive"
	"game-fix-manager/internal/fixerr"
	"game-fix-manager/internal/installdir"
	"game-fix-manager/internal/jobstate"
	"game-fix-manager/internal/logging"
	"game-fix-manager/internal/manifest"
	"game-fix-manager/internal/model"
)

type ApplyRequest struct {
	AppID       int64
	DownloadURL string
	InstallPath string
	FixType     string
	GameName    string
	JobID       string
}

// ApplyOutcome summarises a finished apply for history and metrics. Status is
// always terminal.
type ApplyOutcome struct {
	Status   model.ApplyStatus
	Files    []string
	Bytes    int64
	Manifest manifest.Manifest
	Err      error
}

// Applier downloads a fix archive and extracts it into an install directory,
// publishing progress to an apply store.
type Applier struct {
	store *jobstate.ApplyStore
	opts  Options
}

func NewApplier(store *jobstate.ApplyStore, opts Options) *Applier {
	return &Applier{store: store, opts: opts.withDefaults()}
}

// Run executes one apply job to completion. The record for req.AppID is
// expected to be queued already. A cancel is observed either through the
// store status or through ctx.
func (a *Applier) Run(ctx context.Context, req ApplyRequest) ApplyOutcome {
	logger := logging.ForJob(a.opts.Logger, req.AppID, string(model.KindApply), req.JobID)
	tempPath := TempArchivePath(a.opts.TempDir, req.AppID)

	if !a.transition(req.AppID, model.ApplyDownloading, model.ApplyPatch{
		BytesRead:  model.Ptr(int64(0)),
		TotalBytes: model.Ptr(int64(0)),
	}) {
		return a.finishCancelled(logger, req.AppID, tempPath, ApplyOutcome{})
	}

	lock, err := installdir.AcquireLock(req.InstallPath, req.AppID, string(model.KindApply))
	if err != nil {
		return a.fail(logger, req.AppID, ApplyOutcome{}, fixerr.Conflict("install directory is busy: %v", err))
	}
	defer func() {
		if err := lock.Release(); err != nil {
			logger.Warn("release install lock failed", "path", req.InstallPath, "error", err)
		}
	}()

	logger.Info("downloading fix", "url", req.DownloadURL, "temp", tempPath)
	read, err := a.download(ctx, req.AppID, req.DownloadURL, tempPath)
	out := ApplyOutcome{Bytes: read}
	a.opts.Metrics.BytesDownloaded(read)
	if err != nil {
		if errors.Is(err, fixerr.ErrCancelled) {
			return a.finishCancelled(logger, req.AppID, tempPath, out)
		}
		return a.fail(logger, req.AppID, out, err)
	}

	if !a.transition(req.AppID, model.ApplyExtracting, model.ApplyPatch{}) {
		return a.finishCancelled(logger, req.AppID, tempPath, out)
	}

	check := func() error {
		if a.cancelled(ctx, req.AppID) {
			return fixerr.ErrCancelled
		}
		return nil
	}
	res, err := fixarchive.ExtractFile(ctx, tempPath, req.InstallPath, req.AppID, check)
	out.Files = res.Files
	a.opts.Metrics.FilesWritten(len(res.Files))
	if err != nil {
		if errors.Is(err, fixerr.ErrCancelled) || a.cancelled(ctx, req.AppID) {
			return a.finishCancelled(logger, req.AppID, tempPath, out)
		}
		return a.fail(logger, req.AppID, out, fixerr.Internal(err, "extract archive"))
	}
	if err := check(); err != nil {
		return a.finishCancelled(logger, req.AppID, tempPath, out)
	}
	logger.Info("extracted fix", "files", len(res.Files), "wrapped", res.Wrapped)

	if strings.EqualFold(strings.TrimSpace(req.FixType), UnsteamFixType) {
		changed, err := PatchUnsteamINI(req.InstallPath, res.Files, req.AppID)
		switch {
		case err != nil:
			logger.Warn("patch unsteam.ini failed", "error", err)
		case changed:
			logger.Info("patched unsteam.ini")
		}
	}

	if err := check(); err != nil {
		return a.finishCancelled(logger, req.AppID, tempPath, out)
	}

	gameName := strings.TrimSpace(req.GameName)
	if gameName == "" {
		gameName = manifest.UnknownGameName(req.AppID)
	}
	out.Manifest = manifest.Manifest{
		CreatedAt: a.opts.Clock.Now(),
		GameName:  gameName,
		FixType:   req.FixType,
		SourceURL: req.DownloadURL,
		Files:     res.Files,
	}
	written := true
	if err := manifest.Write(req.InstallPath, req.AppID, out.Manifest); err != nil {
		written = false
		logger.Warn("write fix log failed", "path", manifest.Path(req.InstallPath, req.AppID), "error", err)
	}

	removeTemp(logger, tempPath)

	if !a.complete(logger, req.AppID, written) {
		out.Status = model.ApplyCancelled
		out.Err = fixerr.ErrCancelled
		return out
	}
	logger.Info("fix applied", "files", len(res.Files), "bytes", read)
	out.Status = model.ApplyDone
	return out
}

// complete records done. Once the fix log is on disk the fix is applied and
// removable, so a cancel that arrived meanwhile is overridden; without a log
// the cancel still wins. It reports whether the job ended done.
func (a *Applier) complete(logger *slog.Logger, appID int64, written bool) bool {
	if !written {
		return a.transition(appID, model.ApplyDone, model.ApplyPatch{Success: model.Ptr(true)})
	}
	if a.store.Status(appID) == model.ApplyCancelled {
		logger.Info("cancel arrived after the fix was applied")
	}
	a.store.Update(appID, model.ApplyPatch{
		Status:  model.Ptr(model.ApplyDone),
		Success: model.Ptr(true),
		Error:   model.Ptr(""),
	})
	return true
}

// transition moves the record to next unless a cancel has already been
// recorded. It reports whether the move happened.
func (a *Applier) transition(appID int64, next model.ApplyStatus, patch model.ApplyPatch) bool {
	patch.Status = model.Ptr(next)
	_, ok := a.store.UpdateIf(appID, func(cur model.ApplyJob, _ bool) (model.ApplyPatch, bool) {
		if cur.Status == model.ApplyCancelled {
			return patch, false
		}
		if !model.CanTransitionApply(cur.Status, next) {
			a.opts.Logger.Warn("unexpected apply transition", "app_id", appID, "from", cur.Status, "to", next)
		}
		return patch, true
	})
	return ok
}

func (a *Applier) cancelled(ctx context.Context, appID int64) bool {
	return ctx.Err() != nil || a.store.Status(appID) == model.ApplyCancelled
}

func (a *Applier) finishCancelled(logger *slog.Logger, appID int64, tempPath string, out ApplyOutcome) ApplyOutcome {
	removeTemp(logger, tempPath)
	a.store.Update(appID, model.ApplyPatch{
		Status:  model.Ptr(model.ApplyCancelled),
		Success: model.Ptr(false),
		Error:   model.Ptr(CancelledMessage),
	})
	logger.Info("apply cancelled", "files_written", len(out.Files))
	out.Status = model.ApplyCancelled
	out.Err = fixerr.ErrCancelled
	return out
}

// fail records a failure unless a cancel won the race. The temp archive is
// left in place.
func (a *Applier) fail(logger *slog.Logger, appID int64, out ApplyOutcome, err error) ApplyOutcome {
	_, ok := a.store.UpdateUnless(appID, model.ApplyCancelled, model.ApplyPatch{
		Status:  model.Ptr(model.ApplyFailed),
		Success: model.Ptr(false),
		Error:   model.Ptr(err.Error()),
	})
	if !ok {
		out.Status = model.ApplyCancelled
		out.Err = fixerr.ErrCancelled
		return out
	}
	logger.Error("apply failed", "error", err)
	out.Status = model.ApplyFailed
	out.Err = err
	return out
}

func removeTemp(logger *slog.Logger, path string) {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		logger.Warn("remove temp archive failed", "path", path, "error", err)
	}
}
