// Package supervisor starts fix jobs in the background and answers the
// start, poll and cancel calls made against them.
package supervisor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	"game-fix-manager/internal/fixer"
	"game-fix-manager/internal/fixerr"
	"game-fix-manager/internal/history"
	"game-fix-manager/internal/installdir"
	"game-fix-manager/internal/jobstate"
	"game-fix-manager/internal/metrics"
	"game-fix-manager/internal/model"

	"github.com/jonboulle/clockwork"
)

// NameResolver returns the display name of an application.
type NameResolver interface {
	ResolveName(ctx context.Context, appID int64) (string, error)
}

// InstallPathResolver returns the install directory of an application.
type InstallPathResolver interface {
	ResolveInstallPath(ctx context.Context, appID int64) (string, error)
}

// HistoryRecorder persists finished job outcomes.
type HistoryRecorder interface {
	Record(ctx context.Context, e history.Entry) error
}

// Deps are the collaborators a Supervisor drives. Stores, Applier and
// Remover are required; the rest fall back to no-op or real defaults.
type Deps struct {
	ApplyStore  *jobstate.ApplyStore
	RemoveStore *jobstate.RemoveStore
	Applier     *fixer.Applier
	Remover     *fixer.Remover
	Prober      fixer.HTTPDoer
	Names       NameResolver
	Paths       InstallPathResolver
	History     HistoryRecorder
	Metrics     metrics.Recorder
	Clock       clockwork.Clock
	Logger      *slog.Logger
}

// ProbeConfig holds the availability probe targets. URLs are templates
// containing {appid}.
type ProbeConfig struct {
	GenericURL string
	OnlineURLs []string
	Timeout    time.Duration
	UserAgent  string
}

type Supervisor struct {
	deps  Deps
	probe ProbeConfig

	baseCtx    context.Context
	baseCancel context.CancelFunc

	mu    sync.Mutex
	tasks map[taskKey]*Task
}

func New(deps Deps, probe ProbeConfig) *Supervisor {
	if deps.Metrics == nil {
		deps.Metrics = metrics.Noop{}
	}
	if deps.Clock == nil {
		deps.Clock = clockwork.NewRealClock()
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Supervisor{
		deps:       deps,
		probe:      probe,
		baseCtx:    ctx,
		baseCancel: cancel,
		tasks:      make(map[taskKey]*Task),
	}
}

// Result is returned by every operation. Success is false exactly when
// Error is set.
type Result struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
	Message string `json:"message,omitempty"`
	JobID   string `json:"jobId,omitempty"`

	err error
}

// Err returns the typed error behind a failed result.
func (r Result) Err() error {
	return r.err
}

func ok(message string) Result {
	return Result{Success: true, Message: message}
}

// Failed wraps err as an unsuccessful Result.
func Failed(err error) Result {
	return Result{Error: err.Error(), err: err}
}

type ApplyPoll struct {
	Result
	State model.ApplyJob `json:"state"`
}

type RemovePoll struct {
	Result
	State model.RemoveJob `json:"state"`
}

// ParseAppID parses a decimal application id.
func ParseAppID(raw string) (int64, error) {
	id, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
	if err != nil || id <= 0 {
		return 0, fixerr.Validation("Invalid appid %q", raw)
	}
	return id, nil
}

func validateAppID(appID int64) error {
	if appID <= 0 {
		return fixerr.Validation("Invalid appid %d", appID)
	}
	return nil
}

// StartApply queues an apply job and returns without waiting for it.
func (s *Supervisor) StartApply(appID int64, downloadURL, installPath, fixType, gameName string) Result {
	if err := validateAppID(appID); err != nil {
		return Failed(err)
	}
	downloadURL = strings.TrimSpace(downloadURL)
	installPath = strings.TrimSpace(installPath)
	if downloadURL == "" || installPath == "" {
		return Failed(fixerr.Validation("Missing download URL or install path"))
	}
	if !installdir.IsDir(installPath) {
		return Failed(fixerr.NotFound("Install path not found: %s", installPath))
	}

	task, err := s.reserve(appID, model.KindApply)
	if err != nil {
		return Failed(err)
	}
	s.deps.ApplyStore.Reset(appID, model.ApplyPatch{
		Status:     model.Ptr(model.ApplyQueued),
		BytesRead:  model.Ptr(int64(0)),
		TotalBytes: model.Ptr(int64(0)),
		JobID:      model.Ptr(task.ID),
	})

	req := fixer.ApplyRequest{
		AppID:       appID,
		DownloadURL: downloadURL,
		InstallPath: installPath,
		FixType:     fixType,
		GameName:    strings.TrimSpace(gameName),
		JobID:       task.ID,
	}
	s.launch(task, func(ctx context.Context) outcome {
		if req.GameName == "" {
			req.GameName = s.resolveName(ctx, appID)
		}
		out := s.deps.Applier.Run(ctx, req)
		return outcome{
			status:    string(out.Status),
			err:       out.Err,
			gameName:  req.GameName,
			fixType:   req.FixType,
			sourceURL: req.DownloadURL,
			path:      req.InstallPath,
			files:     len(out.Files),
			bytes:     out.Bytes,
		}
	})

	res := ok("Fix download started")
	res.JobID = task.ID
	return res
}

func (s *Supervisor) PollApply(appID int64) ApplyPoll {
	if err := validateAppID(appID); err != nil {
		return ApplyPoll{Result: Failed(err)}
	}
	rec, _ := s.deps.ApplyStore.Get(appID)
	return ApplyPoll{Result: ok(""), State: rec}
}

func (s *Supervisor) PollRemove(appID int64) RemovePoll {
	if err := validateAppID(appID); err != nil {
		return RemovePoll{Result: Failed(err)}
	}
	rec, _ := s.deps.RemoveStore.Get(appID)
	return RemovePoll{Result: ok(""), State: rec}
}

// CancelApply flags a running apply as cancelled and interrupts its
// in-flight network read. The worker still records the final state.
func (s *Supervisor) CancelApply(appID int64) Result {
	if err := validateAppID(appID); err != nil {
		return Failed(err)
	}
	_, flipped := s.deps.ApplyStore.UpdateIf(appID, func(cur model.ApplyJob, exists bool) (model.ApplyPatch, bool) {
		if !exists || cur.Status == "" || cur.Status.Terminal() {
			return model.ApplyPatch{}, false
		}
		return model.ApplyPatch{
			Status:  model.Ptr(model.ApplyCancelled),
			Success: model.Ptr(false),
			Error:   model.Ptr(fixer.CancelledMessage),
		}, true
	})
	if !flipped {
		return ok("Nothing to cancel")
	}
	if task := s.task(appID, model.KindApply); task != nil {
		task.cancel()
	}
	s.deps.Logger.Info("apply cancel requested", "app_id", appID)
	return ok("Cancellation requested")
}

// StartRemove queues a remove job. An empty installPath is resolved through
// the InstallPathResolver.
func (s *Supervisor) StartRemove(ctx context.Context, appID int64, installPath string) Result {
	if err := validateAppID(appID); err != nil {
		return Failed(err)
	}
	installPath = strings.TrimSpace(installPath)
	if installPath == "" {
		if s.deps.Paths == nil {
			return Failed(fixerr.NotFound("Could not find game install path"))
		}
		resolved, err := s.deps.Paths.ResolveInstallPath(ctx, appID)
		if err != nil {
			return Failed(&fixerr.Error{Type: fixerr.TypeNotFound, Message: "Could not find game install path", Cause: err})
		}
		installPath = resolved
	}
	if !installdir.IsDir(installPath) {
		return Failed(fixerr.NotFound("Game install directory not found: %s", installPath))
	}

	task, err := s.reserve(appID, model.KindRemove)
	if err != nil {
		return Failed(err)
	}
	s.deps.RemoveStore.Reset(appID, model.RemovePatch{
		Status:   model.Ptr(model.RemoveQueued),
		Progress: model.Ptr(""),
		JobID:    model.Ptr(task.ID),
	})

	req := fixer.RemoveRequest{AppID: appID, InstallPath: installPath, JobID: task.ID}
	s.launch(task, func(ctx context.Context) outcome {
		out := s.deps.Remover.Run(ctx, req)
		return outcome{
			status:    string(out.Status),
			err:       out.Err,
			gameName:  out.Manifest.GameName,
			fixType:   out.Manifest.FixType,
			sourceURL: out.Manifest.SourceURL,
			path:      req.InstallPath,
			files:     len(out.Removed),
		}
	})

	res := ok("Removal started")
	res.JobID = task.ID
	return res
}

// Wait blocks until the current job of kind for appID finishes or ctx ends.
// It returns nil immediately when no job was ever started.
func (s *Supervisor) Wait(ctx context.Context, appID int64, kind model.JobKind) error {
	task := s.task(appID, kind)
	if task == nil {
		return nil
	}
	select {
	case <-task.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Shutdown cancels every running job and waits for their workers to record
// a final state.
func (s *Supervisor) Shutdown(ctx context.Context) error {
	s.baseCancel()

	s.mu.Lock()
	pending := make([]*Task, 0, len(s.tasks))
	for _, t := range s.tasks {
		pending = append(pending, t)
	}
	s.mu.Unlock()

	for _, t := range pending {
		select {
		case <-t.done:
		case <-ctx.Done():
			return fmt.Errorf("shutdown: %w", ctx.Err())
		}
	}
	return nil
}

func (s *Supervisor) resolveName(ctx context.Context, appID int64) string {
	if s.deps.Names == nil {
		return ""
	}
	name, err := s.deps.Names.ResolveName(ctx, appID)
	if err != nil {
		if !errors.Is(err, context.Canceled) {
			s.deps.Logger.Warn("resolve game name failed", "app_id", appID, "error", err)
		}
		return ""
	}
	return name
}

// Jobs is a point-in-time copy of every job record.
type Jobs struct {
	Apply  map[int64]model.ApplyJob  `json:"apply"`
	Remove map[int64]model.RemoveJob `json:"remove"`
}

func (s *Supervisor) Jobs() Jobs {
	return Jobs{
		Apply:  s.deps.ApplyStore.Snapshot(),
		Remove: s.deps.RemoveStore.Snapshot(),
	}
}
