package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	appDirName     = "readersync"
	configFileName = "config.yaml"

	envPrefix         = "READERSYNC_"
	configDirEnv      = envPrefix + "CONFIG_DIR"
	configPathEnv     = envPrefix + "CONFIG"
	folderEnv         = envPrefix + "FOLDER"
	maxSaveEnv        = envPrefix + "MAX_SAVE_COUNT"
	maxFetchEnv       = envPrefix + "MAX_FETCH_COUNT"
	deleteReadEnv     = envPrefix + "DELETE_ALREADY_READ"
	staleHoursEnv     = envPrefix + "UNREAD_STALE_HOURS"
	ledgerBackendEnv  = envPrefix + "LEDGER_BACKEND"
	logLevelEnv       = envPrefix + "LOG_LEVEL"
	logFormatEnv      = envPrefix + "LOG_FORMAT"
	rmapiPathEnv      = envPrefix + "RMAPI_PATH"
	chromePathEnv     = envPrefix + "CHROME_PATH"
	telegramTokenEnv  = "TELEGRAM_BOT_TOKEN"
	telegramChatIDEnv = "TELEGRAM_CHAT_ID"

	// LedgerJSON and LedgerSQLite name the supported ledger backends.
	LedgerJSON   = "json"
	LedgerSQLite = "sqlite"
)

// Config holds every setting of a sync run and the watch loop.
type Config struct {
	// ConfigDir holds the ledger, the session cookies and the optional config file.
	ConfigDir     string             `yaml:"-"`
	Sync          SyncConfig         `yaml:"sync"`
	Feed          FeedConfig         `yaml:"feed"`
	Ledger        LedgerConfig       `yaml:"ledger"`
	Substack      SubstackConfig     `yaml:"substack"`
	Device        DeviceConfig       `yaml:"device"`
	Renderer      RendererConfig     `yaml:"renderer"`
	Watch         WatchConfig        `yaml:"watch"`
	Notifications NotificationConfig `yaml:"notifications"`
	Logging       LoggingConfig      `yaml:"logging"`
}

// SyncConfig bounds what a run may admit and delete.
type SyncConfig struct {
	Folder            string        `yaml:"folder"`
	MaxSaveCount      int           `yaml:"maxSaveCount"`
	DeleteAlreadyRead bool          `yaml:"deleteAlreadyRead"`
	UnreadStaleHours  int           `yaml:"unreadStaleHours"`
	UploadDelay       time.Duration `yaml:"uploadDelay"`
	WorkDir           string        `yaml:"workDir"`
}

// FeedConfig paces pagination.
type FeedConfig struct {
	MaxFetchCount    int           `yaml:"maxFetchCount"`
	PageSize         int           `yaml:"pageSize"`
	PageDelay        time.Duration `yaml:"pageDelay"`
	RateLimitBackoff time.Duration `yaml:"rateLimitBackoff"`
	MaxAttempts      int           `yaml:"maxAttempts"`
}

// LedgerConfig selects the delivery ledger storage.
type LedgerConfig struct {
	Backend string `yaml:"backend"`
	Path    string `yaml:"path"`
}

// SubstackConfig describes the feed account.
type SubstackConfig struct {
	BaseURL       string        `yaml:"baseUrl"`
	InboxType     string        `yaml:"inboxType"`
	CookieFile    string        `yaml:"cookieFile"`
	Timeout       time.Duration `yaml:"timeout"`
	ReauthCommand []string      `yaml:"reauthCommand"`
}

// DeviceConfig locates the rmapi binary.
type DeviceConfig struct {
	RmapiPath string `yaml:"rmapiPath"`
}

// RendererConfig tunes headless Chrome.
type RendererConfig struct {
	ChromePath      string        `yaml:"chromePath"`
	Timeout         time.Duration `yaml:"timeout"`
	PaperWidth      float64       `yaml:"paperWidth"`
	PaperHeight     float64       `yaml:"paperHeight"`
	MinArticleChars int           `yaml:"minArticleChars"`
	LoginRetryDelay time.Duration `yaml:"loginRetryDelay"`
	Retries         int           `yaml:"retries"`
	MissingOutput   string        `yaml:"missingOutput"`
}

// WatchConfig drives repeated runs.
type WatchConfig struct {
	Interval time.Duration `yaml:"interval"`
	Listen   string        `yaml:"listen"`
}

// NotificationConfig encapsulates outbound channels.
type NotificationConfig struct {
	Telegram TelegramConfig `yaml:"telegram"`
}

// TelegramConfig wires all data required to send messages.
type TelegramConfig struct {
	BotToken      string `yaml:"botToken"`
	ChatID        string `yaml:"chatId"`
	OnlyOnChanges bool   `yaml:"onlyOnChanges"`
}

// LoggingConfig selects level and handler.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Options point Load at a config dir or file; empty fields fall back to env and defaults.
type Options struct {
	ConfigDir string
	Path      string
}

// Load starts from defaults, overlays the YAML file when present and applies environment overrides.
// An explicitly named file that does not exist is an error; the implicit one is optional.
func Load(opts Options) (Config, error) {
	dir, err := resolveConfigDir(opts.ConfigDir)
	if err != nil {
		return Config{}, err
	}
	cfg := defaultConfig()
	cfg.ConfigDir = dir

	path, explicit := opts.Path, opts.Path != ""
	if !explicit {
		if v := os.Getenv(configPathEnv); v != "" {
			path, explicit = v, true
		} else {
			path = filepath.Join(dir, configFileName)
		}
	}

	raw, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(raw, &cfg); err != nil {
			return Config{}, fmt.Errorf("config: parse %s: %w", path, err)
		}
	case errors.Is(err, os.ErrNotExist) && !explicit:
	default:
		return Config{}, fmt.Errorf("config: read %s: %w", path, err)
	}

	if err := cfg.applyEnvOverrides(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func resolveConfigDir(flagValue string) (string, error) {
	if flagValue != "" {
		return flagValue, nil
	}
	if v := os.Getenv(configDirEnv); v != "" {
		return v, nil
	}
	base, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("config: locate user config dir: %w", err)
	}
	return filepath.Join(base, appDirName), nil
}

func (c *Config) applyEnvOverrides() error {
	if v := os.Getenv(folderEnv); v != "" {
		c.Sync.Folder = v
	}
	if v := os.Getenv(ledgerBackendEnv); v != "" {
		c.Ledger.Backend = v
	}
	if v := os.Getenv(logLevelEnv); v != "" {
		c.Logging.Level = v
	}
	if v := os.Getenv(logFormatEnv); v != "" {
		c.Logging.Format = v
	}
	if v := os.Getenv(rmapiPathEnv); v != "" {
		c.Device.RmapiPath = v
	}
	if v := os.Getenv(chromePathEnv); v != "" {
		c.Renderer.ChromePath = v
	}
	if v := os.Getenv(telegramTokenEnv); v != "" {
		c.Notifications.Telegram.BotToken = v
	}
	if v := os.Getenv(telegramChatIDEnv); v != "" {
		c.Notifications.Telegram.ChatID = v
	}

	ints := []struct {
		env string
		dst *int
	}{
		{maxSaveEnv, &c.Sync.MaxSaveCount},
		{maxFetchEnv, &c.Feed.MaxFetchCount},
		{staleHoursEnv, &c.Sync.UnreadStaleHours},
	}
	for _, it := range ints {
		v := os.Getenv(it.env)
		if v == "" {
			continue
		}
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("config: %s: %w", it.env, err)
		}
		*it.dst = n
	}

	if v := os.Getenv(deleteReadEnv); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("config: %s: %w", deleteReadEnv, err)
		}
		c.Sync.DeleteAlreadyRead = b
	}
	return nil
}

// Validate rejects settings no run could honour.
func (c Config) Validate() error {
	var errs []error
	if strings.TrimSpace(c.Sync.Folder) == "" {
		errs = append(errs, errors.New("sync.folder must not be empty"))
	}
	if strings.Contains(c.Sync.Folder, "..") {
		errs = append(errs, fmt.Errorf("sync.folder %q must not contain ..", c.Sync.Folder))
	}
	if c.Sync.MaxSaveCount < 0 {
		errs = append(errs, errors.New("sync.maxSaveCount must be >= 0"))
	}
	if c.Feed.MaxFetchCount < 0 {
		errs = append(errs, errors.New("feed.maxFetchCount must be >= 0"))
	}
	if c.Feed.PageSize < 1 || c.Feed.PageSize > 20 {
		errs = append(errs, errors.New("feed.pageSize must be between 1 and 20"))
	}
	switch c.Ledger.Backend {
	case LedgerJSON, LedgerSQLite:
	default:
		errs = append(errs, fmt.Errorf("ledger.backend %q is not json or sqlite", c.Ledger.Backend))
	}
	switch c.Renderer.MissingOutput {
	case "skip", "retry", "fail":
	default:
		errs = append(errs, fmt.Errorf("renderer.missingOutput %q is not skip, retry or fail", c.Renderer.MissingOutput))
	}
	switch strings.ToLower(c.Logging.Format) {
	case "text", "json":
	default:
		errs = append(errs, fmt.Errorf("logging.format %q is not text or json", c.Logging.Format))
	}
	if c.Watch.Interval <= 0 {
		errs = append(errs, errors.New("watch.interval must be positive"))
	}
	return errors.Join(errs...)
}

// LedgerPath returns the ledger location for the selected backend.
func (c Config) LedgerPath() string {
	if c.Ledger.Path != "" {
		return c.Ledger.Path
	}
	if c.Ledger.Backend == LedgerSQLite {
		return filepath.Join(c.ConfigDir, "ledger.sqlite")
	}
	return filepath.Join(c.ConfigDir, "db_file.json")
}

// CookiePath returns the persisted Substack session file.
func (c Config) CookiePath() string {
	if c.Substack.CookieFile != "" {
		return c.Substack.CookieFile
	}
	return filepath.Join(c.ConfigDir, ".substack-cookie.json")
}

func defaultConfig() Config {
	return Config{
		Sync: SyncConfig{
			Folder:           "Substack",
			MaxSaveCount:     20,
			UnreadStaleHours: -1,
			UploadDelay:      time.Second,
		},
		Feed: FeedConfig{
			MaxFetchCount:    40,
			PageSize:         20,
			PageDelay:        time.Second,
			RateLimitBackoff: 30 * time.Second,
			MaxAttempts:      3,
		},
		Ledger:   LedgerConfig{Backend: LedgerJSON},
		Substack: SubstackConfig{BaseURL: "https://substack.com", InboxType: "inbox", Timeout: 30 * time.Second},
		Device:   DeviceConfig{RmapiPath: "rmapi"},
		Renderer: RendererConfig{
			Timeout:         90 * time.Second,
			PaperWidth:      6.18,
			PaperHeight:     8.24,
			MinArticleChars: 280,
			LoginRetryDelay: 5 * time.Second,
			Retries:         2,
			MissingOutput:   "skip",
		},
		Watch:   WatchConfig{Interval: 6 * time.Hour, Listen: ":9464"},
		Logging: LoggingConfig{Level: "info", Format: "text"},
	}
}
