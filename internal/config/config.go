// Package config loads the YAML settings file and applies environment
// overrides.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"time"

	"game-fix-manager/internal/installdir"

	"gopkg.in/yaml.v3"
)

const (
	AppIDPlaceholder = "{appid}"

	DefaultGenericFixURL    = "https://github.com/ShayneVi/Bypasses/releases/download/v1.0/{appid}.zip"
	DefaultUnsteamFixURL    = "https://github.com/madoiscool/lt_api_links/releases/download/unsteam/Win64.zip"
	DefaultProbeTimeout     = 10 * time.Second
	DefaultDownloadTimeout  = 30 * time.Second
	DefaultStoreAPIURL      = "https://store.steampowered.com/api/appdetails"
	DefaultListenAddr       = "127.0.0.1:38517"
	DefaultLogLevel         = "info"
	DefaultLogFormat        = "text"
	DefaultMetricsNamespace = "game_fix_manager"
	DefaultUserAgent        = "game-fix-manager"
)

var DefaultOnlineFixURLs = []string{
	"https://github.com/ShayneVi/OnlineFix1/releases/download/fixes/{appid}.zip",
	"https://github.com/ShayneVi/OnlineFix2/releases/download/fixes/{appid}.zip",
}

type Config struct {
	TempDir          string        `yaml:"temp_dir,omitempty"`
	GenericFixURL    string        `yaml:"generic_fix_url,omitempty"`
	OnlineFixURLs    []string      `yaml:"online_fix_urls,omitempty"`
	UnsteamFixURL    string        `yaml:"unsteam_fix_url,omitempty"`
	ProbeTimeout     time.Duration `yaml:"probe_timeout,omitempty"`
	DownloadTimeout  time.Duration `yaml:"download_timeout,omitempty"`
	UserAgent        string        `yaml:"user_agent,omitempty"`
	StoreAPIURL      string        `yaml:"store_api_url,omitempty"`
	SteamLibraries   []string      `yaml:"steam_libraries,omitempty"`
	HistoryDB        string        `yaml:"history_db,omitempty"`
	ListenAddr       string        `yaml:"listen_addr,omitempty"`
	LogLevel         string        `yaml:"log_level,omitempty"`
	LogFormat        string        `yaml:"log_format,omitempty"`
	MetricsNamespace string        `yaml:"metrics_namespace,omitempty"`
}

func Default() Config {
	return Config{
		TempDir:          filepath.Join(os.TempDir(), "game-fix-manager"),
		GenericFixURL:    DefaultGenericFixURL,
		OnlineFixURLs:    append([]string(nil), DefaultOnlineFixURLs...),
		UnsteamFixURL:    DefaultUnsteamFixURL,
		ProbeTimeout:     DefaultProbeTimeout,
		DownloadTimeout:  DefaultDownloadTimeout,
		UserAgent:        DefaultUserAgent,
		StoreAPIURL:      DefaultStoreAPIURL,
		SteamLibraries:   defaultSteamLibraries(),
		HistoryDB:        filepath.Join(dataDir(), "history.db"),
		ListenAddr:       DefaultListenAddr,
		LogLevel:         DefaultLogLevel,
		LogFormat:        DefaultLogFormat,
		MetricsNamespace: DefaultMetricsNamespace,
	}
}

// DefaultPath is used when neither --config nor GFM_CONFIG is set.
func DefaultPath() string {
	base, err := os.UserConfigDir()
	if err != nil || strings.TrimSpace(base) == "" {
		base = "."
	}
	return filepath.Join(base, "game-fix-manager", "config.yaml")
}

// Load reads path over the defaults. A missing file yields the defaults.
func Load(path string) (Config, error) {
	cfg := Default()
	path = strings.TrimSpace(path)
	if path == "" {
		return Normalize(cfg), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Normalize(cfg), nil
		}
		return Config{}, fmt.Errorf("read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse config %s: %w", path, err)
	}
	return Normalize(cfg), nil
}

// Save writes cfg as YAML.
func Save(path string, cfg Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	return installdir.WriteBytes(path, data)
}

// ApplyEnv overlays GFM_* environment variables.
func ApplyEnv(cfg Config, getenv func(string) string) (Config, error) {
	if getenv == nil {
		getenv = os.Getenv
	}
	if v := strings.TrimSpace(getenv("GFM_TEMP_DIR")); v != "" {
		cfg.TempDir = v
	}
	if v := strings.TrimSpace(getenv("GFM_LISTEN")); v != "" {
		cfg.ListenAddr = v
	}
	if v := strings.TrimSpace(getenv("GFM_LOG_LEVEL")); v != "" {
		cfg.LogLevel = v
	}
	if v := strings.TrimSpace(getenv("GFM_LOG_FORMAT")); v != "" {
		cfg.LogFormat = v
	}
	if v := strings.TrimSpace(getenv("GFM_HISTORY_DB")); v != "" {
		cfg.HistoryDB = v
	}
	if v := strings.TrimSpace(getenv("GFM_STEAM_LIBRARIES")); v != "" {
		cfg.SteamLibraries = filepath.SplitList(v)
	}
	if v := strings.TrimSpace(getenv("GFM_PROBE_TIMEOUT")); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return Config{}, fmt.Errorf("GFM_PROBE_TIMEOUT must be a duration: %w", err)
		}
		cfg.ProbeTimeout = d
	}
	if v := strings.TrimSpace(getenv("GFM_DOWNLOAD_TIMEOUT")); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return Config{}, fmt.Errorf("GFM_DOWNLOAD_TIMEOUT must be a duration: %w", err)
		}
		cfg.DownloadTimeout = d
	}
	return Normalize(cfg), nil
}

func Normalize(raw Config) Config {
	def := Default()
	norm := raw
	norm.TempDir = firstNonEmpty(norm.TempDir, def.TempDir)
	norm.GenericFixURL = firstNonEmpty(norm.GenericFixURL, def.GenericFixURL)
	norm.OnlineFixURLs = normalizeList(norm.OnlineFixURLs)
	if len(norm.OnlineFixURLs) == 0 {
		norm.OnlineFixURLs = def.OnlineFixURLs
	}
	norm.UnsteamFixURL = firstNonEmpty(norm.UnsteamFixURL, def.UnsteamFixURL)
	if norm.ProbeTimeout <= 0 {
		norm.ProbeTimeout = def.ProbeTimeout
	}
	if norm.DownloadTimeout <= 0 {
		norm.DownloadTimeout = def.DownloadTimeout
	}
	norm.UserAgent = firstNonEmpty(norm.UserAgent, def.UserAgent)
	norm.StoreAPIURL = firstNonEmpty(norm.StoreAPIURL, def.StoreAPIURL)
	norm.SteamLibraries = normalizeList(norm.SteamLibraries)
	norm.HistoryDB = strings.TrimSpace(norm.HistoryDB)
	norm.ListenAddr = firstNonEmpty(norm.ListenAddr, def.ListenAddr)
	norm.LogLevel = strings.ToLower(firstNonEmpty(norm.LogLevel, def.LogLevel))
	norm.LogFormat = strings.ToLower(firstNonEmpty(norm.LogFormat, def.LogFormat))
	norm.MetricsNamespace = firstNonEmpty(norm.MetricsNamespace, def.MetricsNamespace)
	return norm
}

// ExpandURL substitutes the application id into a URL template.
func ExpandURL(template string, appID int64) string {
	return strings.ReplaceAll(template, AppIDPlaceholder, strconv.FormatInt(appID, 10))
}

func normalizeList(raw []string) []string {
	out := make([]string, 0, len(raw))
	seen := make(map[string]bool, len(raw))
	for _, p := range raw {
		v := strings.TrimSpace(p)
		if v == "" || seen[v] {
			continue
		}
		seen[v] = true
		out = append(out, v)
	}
	return out
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if s := strings.TrimSpace(v); s != "" {
			return s
		}
	}
	return ""
}

func dataDir() string {
	if v := strings.TrimSpace(os.Getenv("XDG_DATA_HOME")); v != "" {
		return filepath.Join(v, "game-fix-manager")
	}
	base, err := os.UserConfigDir()
	if err != nil || strings.TrimSpace(base) == "" {
		return "."
	}
	return filepath.Join(base, "game-fix-manager")
}

func defaultSteamLibraries() []string {
	home, _ := os.UserHomeDir()
	switch runtime.GOOS {
	case "windows":
		return []string{`C:\Program Files (x86)\Steam`}
	case "darwin":
		return []string{filepath.Join(home, "Library", "Application Support", "Steam")}
	default:
		return []string{
			filepath.Join(home, ".steam", "steam"),
			filepath.Join(home, ".local", "share", "Steam"),
		}
	}
}
