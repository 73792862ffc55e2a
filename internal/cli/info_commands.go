package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"game-fix-manager/internal/config"
	"game-fix-manager/internal/doctor"
	"game-fix-manager/internal/history"
	"game-fix-manager/internal/installdir"
	"game-fix-manager/internal/manifest"

	"gopkg.in/yaml.v3"
)

type fixStatus struct {
	AppID       int64     `json:"appid"`
	InstallPath string    `json:"install_path"`
	Installed   bool      `json:"installed"`
	GameName    string    `json:"game_name,omitempty"`
	FixType     string    `json:"fix_type,omitempty"`
	SourceURL   string    `json:"source_url,omitempty"`
	AppliedAt   time.Time `json:"applied_at,omitzero"`
	Files       int       `json:"files"`
	Present     int       `json:"present"`
}

func runStatus(args []string) error {
	fs, common := newFlagSet("status")
	installPath := fs.String("install-path", "", "game install directory (default resolved from Steam libraries)")
	if ok, err := parseFlags(fs, args); !ok {
		return err
	}
	appID, err := appIDArg(fs)
	if err != nil {
		return err
	}
	a, err := newApp(common)
	if err != nil {
		return err
	}
	defer a.Close()

	path, err := a.resolveInstallPath(context.Background(), appID, *installPath)
	if err != nil {
		return err
	}
	st, err := readFixStatus(path, appID)
	if err != nil {
		return err
	}
	if common.jsonOut {
		return printJSON(st)
	}

	fmt.Printf("app: %d\n", st.AppID)
	fmt.Printf("install path: %s\n", st.InstallPath)
	if !st.Installed {
		fmt.Println("fix: none")
		return nil
	}
	fmt.Printf("fix: %s\n", st.FixType)
	fmt.Printf("game: %s\n", st.GameName)
	fmt.Printf("applied: %s\n", st.AppliedAt.Format(manifest.DateLayout))
	fmt.Printf("source: %s\n", st.SourceURL)
	fmt.Printf("files: %d listed, %d present\n", st.Files, st.Present)
	return nil
}

func readFixStatus(installPath string, appID int64) (fixStatus, error) {
	st := fixStatus{AppID: appID, InstallPath: installPath}
	m, err := manifest.Read(installPath, appID)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return st, nil
		}
		return st, err
	}
	st.Installed = true
	st.GameName = m.GameName
	st.FixType = m.FixType
	st.SourceURL = m.SourceURL
	st.AppliedAt = m.CreatedAt
	st.Files = len(m.Files)
	for _, rel := range m.Files {
		p, err := installdir.SafeJoin(installPath, rel)
		if err != nil {
			continue
		}
		if installdir.FileExists(p) {
			st.Present++
		}
	}
	return st, nil
}

func runHistory(args []string) error {
	fs, common := newFlagSet("history")
	appIDFilter := fs.Int64("appid", 0, "only show jobs for this app")
	limit := fs.Int("limit", 20, "maximum entries")
	if ok, err := parseFlags(fs, args); !ok {
		return err
	}
	cfg, _, err := loadConfig(common)
	if err != nil {
		return err
	}
	if cfg.HistoryDB == "" {
		return errors.New("job history is disabled (history_db is empty)")
	}
	ledger, err := history.OpenLedger(cfg.HistoryDB)
	if err != nil {
		return err
	}
	defer ledger.Close()

	entries, err := ledger.List(context.Background(), *appIDFilter, *limit)
	if err != nil {
		return err
	}
	if common.jsonOut {
		if entries == nil {
			entries = []history.Entry{}
		}
		return printJSON(entries)
	}
	if len(entries) == 0 {
		fmt.Println("no jobs recorded")
		return nil
	}
	for _, e := range entries {
		line := fmt.Sprintf("%s  %-6s  %-9s  %d", e.FinishedAt.Local().Format(manifest.DateLayout), e.Kind, e.Status, e.AppID)
		if e.FixType != "" {
			line += "  " + e.FixType
		}
		if e.Files > 0 {
			line += fmt.Sprintf("  files=%d", e.Files)
		}
		if e.Bytes > 0 {
			line += "  " + formatBytes(e.Bytes)
		}
		if e.Error != "" {
			line += "  error=" + e.Error
		}
		fmt.Println(line)
	}
	return nil
}

func runDoctor(args []string) error {
	fs, common := newFlagSet("doctor")
	fix := fs.Bool("fix", false, "clear install locks left by processes that are no longer running")
	installPaths := fs.StringSlice("install-path", nil, "extra install directory to check for leftover locks (repeatable)")
	if ok, err := parseFlags(fs, args); !ok {
		return err
	}
	cfg, path, err := loadConfig(common)
	if err != nil {
		return err
	}
	res := doctor.Run(doctor.Options{
		Config:       cfg,
		ConfigPath:   path,
		InstallPaths: *installPaths,
		Fix:          *fix,
	})
	if common.jsonOut {
		if err := printJSON(res); err != nil {
			return err
		}
	} else {
		printDoctor(res)
	}
	if !res.OK {
		return errors.New("doctor checks failed")
	}
	return nil
}

func printDoctor(res doctor.Result) {
	for _, c := range res.Checks {
		mark := "ok"
		if !c.OK {
			mark = "FAIL"
		}
		fmt.Printf("[%s] %s: %s\n", mark, c.Name, c.Message)
	}
}

func runInit(args []string) error {
	fs, common := newFlagSet("init")
	if ok, err := parseFlags(fs, args); !ok {
		return err
	}
	path := resolveConfigPath(common.configPath)
	res, err := doctor.Init(path)
	if err != nil {
		return err
	}
	if common.jsonOut {
		return printJSON(res)
	}
	if res.CreatedConfig {
		fmt.Printf("wrote default config to %s\n", res.ConfigPath)
	} else {
		fmt.Printf("config already exists at %s\n", res.ConfigPath)
	}
	printDoctor(res.Doctor)
	return nil
}

func runConfig(args []string) error {
	if len(args) == 0 || args[0] != "show" {
		return errors.New("usage: game-fix-manager config show [--config <path>] [--json]")
	}
	fs, common := newFlagSet("config show")
	if ok, err := parseFlags(fs, args[1:]); !ok {
		return err
	}
	cfg, path, err := loadConfig(common)
	if err != nil {
		return err
	}
	if common.jsonOut {
		return printJSON(struct {
			Path   string        `json:"path"`
			Config config.Config `json:"config"`
		}{Path: path, Config: cfg})
	}
	out, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	fmt.Printf("# %s\n%s", filepath.Clean(path), out)
	return nil
}
