package supervisor

import (
	"context"
	"errors"
	"runtime/debug"
	"time"

	"game-fix-manager/internal/fixerr"
	"game-fix-manager/internal/history"
	"game-fix-manager/internal/model"

	"github.com/google/uuid"
)

type taskKey struct {
	appID int64
	kind  model.JobKind
}

// Task is the handle of one background job.
type Task struct {
	ID        string
	AppID     int64
	Kind      model.JobKind
	StartedAt time.Time

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
}

// Done is closed once the job has recorded its final state.
func (t *Task) Done() <-chan struct{} {
	return t.done
}

func (t *Task) running() bool {
	select {
	case <-t.done:
		return false
	default:
		return true
	}
}

type outcome struct {
	status    string
	err       error
	gameName  string
	fixType   string
	sourceURL string
	path      string
	files     int
	bytes     int64
}

// reserve registers a new task for appID, refusing while an apply or a
// remove for the same application is still running. Handles of finished
// tasks are dropped on the way.
func (s *Supervisor) reserve(appID int64, kind model.JobKind) (*Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for key, t := range s.tasks {
		if !t.running() {
			delete(s.tasks, key)
		}
	}

	for _, k := range []model.JobKind{model.KindApply, model.KindRemove} {
		if _, ok := s.tasks[taskKey{appID, k}]; ok {
			return nil, fixerr.Conflict("A %s job for appid %d is already running", k, appID)
		}
	}
	if err := s.baseCtx.Err(); err != nil {
		return nil, fixerr.Conflict("Shutting down")
	}

	ctx, cancel := context.WithCancel(s.baseCtx)
	t := &Task{
		ID:        uuid.NewString(),
		AppID:     appID,
		Kind:      kind,
		StartedAt: s.deps.Clock.Now(),
		ctx:       ctx,
		cancel:    cancel,
		done:      make(chan struct{}),
	}
	s.tasks[taskKey{appID, kind}] = t
	return t, nil
}

func (s *Supervisor) task(appID int64, kind model.JobKind) *Task {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tasks[taskKey{appID, kind}]
}

// launch runs fn on its own goroutine. A panic inside fn is recorded as a
// failed job instead of crashing the process.
func (s *Supervisor) launch(t *Task, fn func(ctx context.Context) outcome) {
	s.deps.Metrics.JobStarted(string(t.Kind))
	go func() {
		defer close(t.done)
		defer t.cancel()

		var out outcome
		func() {
			defer func() {
				if r := recover(); r != nil {
					err := fixerr.Internal(nil, "internal error: %v", r)
					s.deps.Logger.Error("fix job panicked", "app_id", t.AppID, "kind", t.Kind, "job_id", t.ID, "panic", r, "stack", string(debug.Stack()))
					s.markFailed(t, err)
					out = outcome{status: "failed", err: err}
				}
			}()
			out = fn(t.ctx)
		}()
		s.finish(t, out)
	}()
}

func (s *Supervisor) markFailed(t *Task, err error) {
	switch t.Kind {
	case model.KindApply:
		s.deps.ApplyStore.UpdateUnless(t.AppID, model.ApplyCancelled, model.ApplyPatch{
			Status:  model.Ptr(model.ApplyFailed),
			Success: model.Ptr(false),
			Error:   model.Ptr(err.Error()),
		})
	case model.KindRemove:
		s.deps.RemoveStore.Update(t.AppID, model.RemovePatch{
			Status:  model.Ptr(model.RemoveFailed),
			Success: model.Ptr(false),
			Error:   model.Ptr(err.Error()),
		})
	}
}

func (s *Supervisor) finish(t *Task, out outcome) {
	finished := s.deps.Clock.Now()
	s.deps.Metrics.JobFinished(string(t.Kind), out.status, finished.Sub(t.StartedAt).Seconds())

	if s.deps.History == nil {
		return
	}
	entry := history.Entry{
		ID:          t.ID,
		AppID:       t.AppID,
		Kind:        string(t.Kind),
		Status:      out.status,
		GameName:    out.gameName,
		FixType:     out.fixType,
		SourceURL:   out.sourceURL,
		InstallPath: out.path,
		Files:       out.files,
		Bytes:       out.bytes,
		StartedAt:   t.StartedAt,
		FinishedAt:  finished,
	}
	if out.err != nil && !errors.Is(out.err, fixerr.ErrCancelled) {
		entry.Error = out.err.Error()
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.deps.History.Record(ctx, entry); err != nil {
		s.deps.Logger.Warn("record job history failed", "app_id", t.AppID, "job_id", t.ID, "error", err)
	}
}
