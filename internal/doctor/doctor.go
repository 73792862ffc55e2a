// Package doctor runs the environment preflight used by `doctor` and `init`.
package doctor

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"game-fix-manager/internal/config"
	"game-fix-manager/internal/history"
	"game-fix-manager/internal/installdir"
	"game-fix-manager/internal/steam"
)

type Options struct {
	Config     config.Config
	ConfigPath string
	// InstallPaths are scanned for leftover locks in addition to every game
	// folder of the configured Steam libraries.
	InstallPaths []string
	// Fix clears locks whose owner process is gone.
	Fix bool
}

type Result struct {
	OK     bool    `json:"ok"`
	Checks []Check `json:"checks"`
}

type Check struct {
	Name    string `json:"name"`
	OK      bool   `json:"ok"`
	Message string `json:"message"`
}

type InitResult struct {
	ConfigPath    string `json:"config_path"`
	CreatedConfig bool   `json:"created_config"`
	Doctor        Result `json:"doctor"`
}

func Run(opts Options) Result {
	cfg := opts.Config
	checks := make([]Check, 0, 6)

	ok, msg := installdir.EnsureWritableDir(cfg.TempDir)
	checks = append(checks, Check{Name: "directory:temp", OK: ok, Message: msg})

	if strings.TrimSpace(opts.ConfigPath) != "" {
		ok, msg = installdir.EnsureWritableDir(filepath.Dir(opts.ConfigPath))
		checks = append(checks, Check{Name: "directory:config", OK: ok, Message: msg})
	}

	checks = append(checks, historyCheck(cfg.HistoryDB))
	checks = append(checks, libraryCheck(cfg.SteamLibraries))
	checks = append(checks, lockCheck(installDirs(cfg.SteamLibraries, opts.InstallPaths), opts.Fix))

	all := true
	for _, c := range checks {
		if !c.OK {
			all = false
			break
		}
	}
	return Result{OK: all, Checks: checks}
}

// Init writes the default config when none exists and then runs the checks.
func Init(path string) (InitResult, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return InitResult{}, fmt.Errorf("config path is required")
	}
	created := false
	if _, err := os.Stat(path); os.IsNotExist(err) {
		if err := config.Save(path, config.Default()); err != nil {
			return InitResult{}, err
		}
		created = true
	}
	cfg, err := config.Load(path)
	if err != nil {
		return InitResult{}, err
	}
	return InitResult{
		ConfigPath:    path,
		CreatedConfig: created,
		Doctor:        Run(Options{Config: cfg, ConfigPath: path}),
	}, nil
}

func historyCheck(path string) Check {
	if strings.TrimSpace(path) == "" {
		return Check{Name: "history:db", OK: true, Message: "disabled"}
	}
	ledger, err := history.OpenLedger(path)
	if err != nil {
		return Check{Name: "history:db", OK: false, Message: err.Error()}
	}
	_ = ledger.Close()
	return Check{Name: "history:db", OK: true, Message: "opened " + path}
}

// libraryCheck passes when no libraries are configured: apply and remove
// then need --install-path, which is a supported mode.
func libraryCheck(roots []string) Check {
	if len(roots) == 0 {
		return Check{Name: "steam:libraries", OK: true, Message: "none configured"}
	}
	folders := steam.NewLibrary(roots).Folders()
	found := 0
	for _, f := range folders {
		if installdir.IsDir(filepath.Join(f, "steamapps")) {
			found++
		}
	}
	if found == 0 {
		return Check{Name: "steam:libraries", OK: false, Message: "no steamapps folder under " + strings.Join(roots, ", ")}
	}
	return Check{Name: "steam:libraries", OK: true, Message: fmt.Sprintf("%d library folder(s)", found)}
}

// installDirs lists every game folder under the libraries plus extra, deduped.
func installDirs(roots, extra []string) []string {
	seen := map[string]bool{}
	var dirs []string
	add := func(p string) {
		p = filepath.Clean(strings.TrimSpace(p))
		if p == "." || seen[p] {
			return
		}
		seen[p] = true
		dirs = append(dirs, p)
	}
	for _, p := range extra {
		add(p)
	}
	if len(roots) > 0 {
		for _, folder := range steam.NewLibrary(roots).Folders() {
			entries, err := os.ReadDir(filepath.Join(folder, "steamapps", "common"))
			if err != nil {
				continue
			}
			for _, e := range entries {
				if e.IsDir() {
					add(filepath.Join(folder, "steamapps", "common", e.Name()))
				}
			}
		}
	}
	return dirs
}

// lockCheck fails on install locks left behind by a process that is gone,
// unless fix clears them. Locks of running jobs are reported but pass.
func lockCheck(dirs []string, fix bool) Check {
	var stale, held, cleared []string
	for _, dir := range dirs {
		st, ok := installdir.InspectLock(dir)
		if !ok {
			continue
		}
		if !st.Stale {
			held = append(held, dir)
			continue
		}
		if fix {
			if removed, err := installdir.ClearStaleLock(dir); err == nil && removed {
				cleared = append(cleared, dir)
				continue
			}
		}
		stale = append(stale, dir+" ("+st.Reason+")")
	}

	var parts []string
	if len(cleared) > 0 {
		parts = append(parts, "cleared stale lock in "+strings.Join(cleared, ", "))
	}
	if len(held) > 0 {
		parts = append(parts, "job running in "+strings.Join(held, ", "))
	}
	if len(stale) > 0 {
		parts = append(parts, "stale lock in "+strings.Join(stale, ", ")+"; rerun with --fix to clear")
	}
	if len(parts) == 0 {
		parts = append(parts, fmt.Sprintf("no leftover locks in %d install folder(s)", len(dirs)))
	}
	return Check{Name: "locks:install", OK: len(stale) == 0, Message: strings.Join(parts, "; ")}
}
