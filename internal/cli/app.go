package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"game-fix-manager/internal/config"
	"game-fix-manager/internal/fixer"
	"game-fix-manager/internal/history"
	"game-fix-manager/internal/jobstate"
	"game-fix-manager/internal/logging"
	"game-fix-manager/internal/metrics"
	"game-fix-manager/internal/steam"
	"game-fix-manager/internal/supervisor"
	"game-fix-manager/internal/version"

	"github.com/jonboulle/clockwork"
	"github.com/spf13/pflag"
)

// commonFlags are accepted by every command that touches configuration.
type commonFlags struct {
	configPath string
	logLevel   string
	jsonOut    bool
}

func newFlagSet(name string) (*pflag.FlagSet, *commonFlags) {
	fs := pflag.NewFlagSet(name, pflag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	c := &commonFlags{}
	fs.StringVar(&c.configPath, "config", "", "config file path (default $GFM_CONFIG or the user config dir)")
	fs.StringVar(&c.logLevel, "log-level", "", "log level: debug|info|warn|error")
	fs.BoolVar(&c.jsonOut, "json", false, "print JSON output")
	return fs, c
}

// parseFlags parses args and treats -h as a successful no-op.
func parseFlags(fs *pflag.FlagSet, args []string) (bool, error) {
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

func resolveConfigPath(flagValue string) string {
	if v := strings.TrimSpace(flagValue); v != "" {
		return v
	}
	if v := strings.TrimSpace(os.Getenv("GFM_CONFIG")); v != "" {
		return v
	}
	return config.DefaultPath()
}

func loadConfig(c *commonFlags) (config.Config, string, error) {
	path := resolveConfigPath(c.configPath)
	cfg, err := config.Load(path)
	if err != nil {
		return config.Config{}, path, err
	}
	cfg, err = config.ApplyEnv(cfg, os.Getenv)
	if err != nil {
		return config.Config{}, path, err
	}
	if strings.TrimSpace(c.logLevel) != "" {
		cfg.LogLevel = strings.TrimSpace(c.logLevel)
	}
	return cfg, path, nil
}

// app is the wired object graph shared by the job commands.
type app struct {
	cfg        config.Config
	configPath string
	logger     *slog.Logger
	prom       *metrics.Prom
	ledger     *history.Ledger
	library    *steam.Library
	sup        *supervisor.Supervisor
}

func newApp(c *commonFlags) (*app, error) {
	cfg, path, err := loadConfig(c)
	if err != nil {
		return nil, err
	}
	logger := logging.Init(cfg.LogLevel, cfg.LogFormat, os.Stderr)

	a := &app{
		cfg:        cfg,
		configPath: path,
		logger:     logger,
		prom:       metrics.NewProm(cfg.MetricsNamespace),
		library:    steam.NewLibrary(cfg.SteamLibraries),
	}
	if cfg.HistoryDB != "" {
		ledger, err := history.OpenLedger(cfg.HistoryDB)
		if err != nil {
			logger.Warn("job history disabled", "path", cfg.HistoryDB, "error", err)
		} else {
			a.ledger = ledger
		}
	}

	userAgent := cfg.UserAgent + "/" + version.Value
	clock := clockwork.NewRealClock()
	probeClient := fixer.NewHTTPClient(cfg.ProbeTimeout)
	applyStore := jobstate.NewApplyStore(clock)
	removeStore := jobstate.NewRemoveStore(clock)
	opts := fixer.Options{
		Client:    fixer.NewHTTPClient(cfg.DownloadTimeout),
		TempDir:   cfg.TempDir,
		UserAgent: userAgent,
		Clock:     clock,
		Metrics:   a.prom,
		Logger:    logger,
	}

	deps := supervisor.Deps{
		ApplyStore:  applyStore,
		RemoveStore: removeStore,
		Applier:     fixer.NewApplier(applyStore, opts),
		Remover:     fixer.NewRemover(removeStore, opts),
		Prober:      probeClient,
		Names:       steam.NewStoreClient(cfg.StoreAPIURL, userAgent, probeClient),
		Paths:       a.library,
		Metrics:     a.prom,
		Clock:       clock,
		Logger:      logger,
	}
	if a.ledger != nil {
		deps.History = a.ledger
	}
	a.sup = supervisor.New(deps, supervisor.ProbeConfig{
		GenericURL: cfg.GenericFixURL,
		OnlineURLs: cfg.OnlineFixURLs,
		Timeout:    cfg.ProbeTimeout,
		UserAgent:  userAgent,
	})
	return a, nil
}

// Close stops running jobs and releases the history database.
func (a *app) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	var errs []error
	if err := a.sup.Shutdown(ctx); err != nil {
		errs = append(errs, err)
	}
	if a.ledger != nil {
		if err := a.ledger.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close history: %w", err))
		}
	}
	return errors.Join(errs...)
}

// resolveInstallPath returns flagValue or the Steam library location of appID.
func (a *app) resolveInstallPath(ctx context.Context, appID int64, flagValue string) (string, error) {
	if v := strings.TrimSpace(flagValue); v != "" {
		return v, nil
	}
	path, err := a.library.ResolveInstallPath(ctx, appID)
	if err != nil {
		return "", fmt.Errorf("%w (pass --install-path)", err)
	}
	return path, nil
}

func appIDArg(fs *pflag.FlagSet) (int64, error) {
	if fs.NArg() != 1 {
		return 0, fmt.Errorf("%s requires exactly one <appid> argument", fs.Name())
	}
	return supervisor.ParseAppID(fs.Arg(0))
}
