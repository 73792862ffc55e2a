package installdir

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

const (
	lockDirName   = ".game-fix-manager.lock"
	lockOwnerFile = "owner.json"

	// lockGrace is how long a lock without a readable owner file is assumed
	// to be mid-creation by another process.
	lockGrace = 30 * time.Second
)

// Lock marks an install directory as being mutated by a fix job of this or
// another process.
type Lock struct {
	lockDir string
}

type LockOwner struct {
	PID       int    `json:"pid"`
	AppID     int64  `json:"app_id"`
	Kind      string `json:"kind"`
	CreatedAt string `json:"created_at"`
	Hostname  string `json:"hostname,omitempty"`
}

// LockState describes a lock directory found in an install directory.
type LockState struct {
	Path   string    `json:"path"`
	Owner  LockOwner `json:"owner"`
	Stale  bool      `json:"stale"`
	Reason string    `json:"reason"`
}

func lockPath(installPath string) string {
	return filepath.Join(strings.TrimSpace(installPath), lockDirName)
}

// AcquireLock takes the install directory lock. A lock left behind by a
// process that no longer runs is taken over.
func AcquireLock(installPath string, appID int64, kind string) (Lock, error) {
	target := strings.TrimSpace(installPath)
	if target == "" {
		return Lock{}, fmt.Errorf("install directory is required")
	}

	lockDir := lockPath(target)
	for attempt := 0; ; attempt++ {
		err := os.Mkdir(lockDir, 0o755)
		if err == nil {
			break
		}
		if !os.IsExist(err) {
			return Lock{}, fmt.Errorf("acquire install lock for %s: %w", target, err)
		}
		st := inspectLock(lockDir)
		if !st.Stale || attempt > 0 {
			return Lock{}, lockedError(target, st)
		}
		if err := os.RemoveAll(lockDir); err != nil {
			return Lock{}, fmt.Errorf("clear stale install lock for %s: %w", target, err)
		}
	}

	owner := LockOwner{
		PID:       os.Getpid(),
		AppID:     appID,
		Kind:      kind,
		CreatedAt: time.Now().UTC().Format(time.RFC3339),
		Hostname:  hostnameOrUnknown(),
	}
	ownerPath := filepath.Join(lockDir, lockOwnerFile)
	if err := WriteJSON(ownerPath, owner); err != nil {
		_ = os.RemoveAll(lockDir)
		return Lock{}, fmt.Errorf("write install lock owner for %s: %w", target, err)
	}

	return Lock{lockDir: lockDir}, nil
}

func (l Lock) Release() error {
	if strings.TrimSpace(l.lockDir) == "" {
		return nil
	}
	_ = os.Remove(filepath.Join(l.lockDir, lockOwnerFile))
	if err := os.Remove(l.lockDir); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("release install lock %s: %w", l.lockDir, err)
	}
	return nil
}

// InspectLock reports the lock in installPath, if there is one.
func InspectLock(installPath string) (LockState, bool) {
	lockDir := lockPath(installPath)
	if !IsDir(lockDir) {
		return LockState{}, false
	}
	return inspectLock(lockDir), true
}

// ClearStaleLock removes the lock in installPath when its owner is gone. It
// reports whether a lock was removed and refuses to touch a live one.
func ClearStaleLock(installPath string) (bool, error) {
	st, ok := InspectLock(installPath)
	if !ok {
		return false, nil
	}
	if !st.Stale {
		return false, lockedError(installPath, st)
	}
	if err := os.RemoveAll(st.Path); err != nil {
		return false, fmt.Errorf("clear stale install lock %s: %w", st.Path, err)
	}
	return true, nil
}

func inspectLock(lockDir string) LockState {
	st := LockState{Path: lockDir}
	readErr := ReadJSON(filepath.Join(lockDir, lockOwnerFile), &st.Owner)
	if readErr != nil || st.Owner.PID <= 0 {
		info, err := os.Stat(lockDir)
		switch {
		case errors.Is(err, os.ErrNotExist):
			st.Stale, st.Reason = true, "lock vanished"
		case err != nil:
			st.Reason = err.Error()
		case time.Since(info.ModTime()) > lockGrace:
			st.Stale, st.Reason = true, "owner file missing or unreadable"
		default:
			st.Reason = "lock is being created"
		}
		return st
	}

	host := strings.TrimSpace(st.Owner.Hostname)
	if host != "" && host != "unknown" && host != hostnameOrUnknown() {
		st.Reason = "held on host " + host
		return st
	}
	if st.Owner.PID != os.Getpid() && !processAlive(st.Owner.PID) {
		st.Stale, st.Reason = true, fmt.Sprintf("owner pid %d is not running", st.Owner.PID)
		return st
	}
	st.Reason = fmt.Sprintf("held by pid %d", st.Owner.PID)
	return st
}

func lockedError(target string, st LockState) error {
	o := st.Owner
	if o.PID > 0 {
		return fmt.Errorf(
			"install directory is locked: %s (%s job for app %d, pid=%d created_at=%s host=%s)",
			target, o.Kind, o.AppID, o.PID, o.CreatedAt, o.Hostname,
		)
	}
	return fmt.Errorf("install directory is locked: %s (%s)", target, st.Reason)
}

func hostnameOrUnknown() string {
	host, err := os.Hostname()
	if err != nil {
		return "unknown"
	}
	host = strings.TrimSpace(host)
	if host == "" {
		return "unknown"
	}
	return host
}
