package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
	"go.uber.org/zap/zapcore"
	"gopkg.in/yaml.v3"
)

const envPrefix = "DISTR"

type GlobalFlags struct {
	ConfigPath     string
	JSON           bool
	Plain          bool
	Select         string
	ResultsOnly    bool
	EnableCommands string
	ReadOnly       bool
	Timeout        string
	LogLevel       string
	Chain          string
	RPCURL         string
}

type Settings struct {
	OutputMode         string
	SelectFields       []string
	ResultsOnly        bool
	EnableCommands     []string
	ReadOnly           bool
	Timeout            time.Duration
	LogLevel           string
	Chain              string
	RPCURL             string
	PollInterval       time.Duration
	ReceiptTimeout     time.Duration
	GasMultiplier      float64
	MaxFeeGwei         string
	MaxPriorityFeeGwei string
	ViewTTL            time.Duration
	CachePath          string
	CacheLockPath      string
	StatePath          string
	StateLockPath      string
}

type fileConfig struct {
	Output   string `yaml:"output"`
	ReadOnly *bool  `yaml:"read_only"`
	Timeout  string `yaml:"timeout"`
	LogLevel string `yaml:"log_level"`
	Chain    string `yaml:"chain"`
	RPCURL   string `yaml:"rpc_url"`
	Claims   struct {
		PollInterval       string   `yaml:"poll_interval"`
		ReceiptTimeout     string   `yaml:"receipt_timeout"`
		GasMultiplier      *float64 `yaml:"gas_multiplier"`
		MaxFeeGwei         string   `yaml:"max_fee_gwei"`
		MaxPriorityFeeGwei string   `yaml:"max_priority_fee_gwei"`
	} `yaml:"claims"`
	Cache struct {
		ViewTTL  string `yaml:"view_ttl"`
		Path     string `yaml:"path"`
		LockPath string `yaml:"lock_path"`
	} `yaml:"cache"`
	State struct {
		Path     string `yaml:"path"`
		LockPath string `yaml:"lock_path"`
	} `yaml:"state"`
}

// envConfig is decoded from DISTR_* variables. Unset variables leave the
// pointer fields nil.
type envConfig struct {
	Output             string         `envconfig:"OUTPUT"`
	ReadOnly           *bool          `envconfig:"READ_ONLY"`
	Timeout            *time.Duration `envconfig:"TIMEOUT"`
	LogLevel           string         `envconfig:"LOG_LEVEL"`
	Chain              string         `envconfig:"CHAIN"`
	RPCURL             string         `envconfig:"RPC_URL"`
	PollInterval       *time.Duration `envconfig:"POLL_INTERVAL"`
	ReceiptTimeout     *time.Duration `envconfig:"RECEIPT_TIMEOUT"`
	GasMultiplier      *float64       `envconfig:"GAS_MULTIPLIER"`
	MaxFeeGwei         string         `envconfig:"MAX_FEE_GWEI"`
	MaxPriorityFeeGwei string         `envconfig:"MAX_PRIORITY_FEE_GWEI"`
	ViewTTL            *time.Duration `envconfig:"VIEW_TTL"`
	CachePath          string         `envconfig:"CACHE_PATH"`
	CacheLockPath      string         `envconfig:"CACHE_LOCK_PATH"`
	StatePath          string         `envconfig:"STATE_PATH"`
	StateLockPath      string         `envconfig:"STATE_LOCK_PATH"`
}

func Load(flags GlobalFlags) (Settings, error) {
	settings, err := defaultSettings()
	if err != nil {
		return Settings{}, err
	}

	cfgPath, err := resolveConfigPath(flags.ConfigPath)
	if err != nil {
		return Settings{}, err
	}

	if err := applyFileConfig(cfgPath, &settings); err != nil {
		return Settings{}, err
	}

	if err := applyEnv(&settings); err != nil {
		return Settings{}, err
	}

	if err := applyFlags(flags, &settings); err != nil {
		return Settings{}, err
	}

	if settings.Timeout <= 0 {
		settings.Timeout = 15 * time.Second
	}
	if settings.PollInterval <= 0 {
		settings.PollInterval = 2 * time.Second
	}
	if settings.ReceiptTimeout <= 0 {
		settings.ReceiptTimeout = 2 * time.Minute
	}
	if settings.GasMultiplier <= 1 {
		return Settings{}, fmt.Errorf("gas multiplier must be > 1")
	}
	if _, err := zapcore.ParseLevel(settings.LogLevel); err != nil {
		return Settings{}, fmt.Errorf("invalid log level %q", settings.LogLevel)
	}

	return settings, nil
}

func defaultSettings() (Settings, error) {
	cacheDir, err := defaultDir("XDG_CACHE_HOME", ".cache")
	if err != nil {
		return Settings{}, err
	}
	stateDir, err := defaultDir("XDG_STATE_HOME", filepath.Join(".local", "state"))
	if err != nil {
		return Settings{}, err
	}
	return Settings{
		OutputMode:     "json",
		Timeout:        15 * time.Second,
		LogLevel:       "warn",
		Chain:          "haqq",
		PollInterval:   2 * time.Second,
		ReceiptTimeout: 2 * time.Minute,
		GasMultiplier:  1.2,
		ViewTTL:        24 * time.Hour,
		CachePath:      filepath.Join(cacheDir, "cache.db"),
		CacheLockPath:  filepath.Join(cacheDir, "cache.lock"),
		StatePath:      filepath.Join(stateDir, "state.db"),
		StateLockPath:  filepath.Join(stateDir, "state.lock"),
	}, nil
}

func resolveConfigPath(input string) (string, error) {
	if strings.TrimSpace(input) != "" {
		return input, nil
	}
	dir, err := defaultDir("XDG_CONFIG_HOME", ".config")
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.yaml"), nil
}

func defaultDir(xdgEnv, homeFallback string) (string, error) {
	base := os.Getenv(xdgEnv)
	if base == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		base = filepath.Join(home, homeFallback)
	}
	return filepath.Join(base, "distr"), nil
}

func applyFileConfig(path string, settings *Settings) error {
	buf, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("read config: %w", err)
	}

	var cfg fileConfig
	if err := yaml.Unmarshal(buf, &cfg); err != nil {
		return fmt.Errorf("parse config yaml: %w", err)
	}

	if cfg.Output != "" {
		settings.OutputMode = strings.ToLower(cfg.Output)
	}
	if cfg.ReadOnly != nil {
		settings.ReadOnly = *cfg.ReadOnly
	}
	durations := []struct {
		name  string
		value string
		dst   *time.Duration
	}{
		{"timeout", cfg.Timeout, &settings.Timeout},
		{"claims.poll_interval", cfg.Claims.PollInterval, &settings.PollInterval},
		{"claims.receipt_timeout", cfg.Claims.ReceiptTimeout, &settings.ReceiptTimeout},
		{"cache.view_ttl", cfg.Cache.ViewTTL, &settings.ViewTTL},
	}
	for _, d := range durations {
		if d.value == "" {
			continue
		}
		parsed, err := time.ParseDuration(d.value)
		if err != nil {
			return fmt.Errorf("config %s: %w", d.name, err)
		}
		*d.dst = parsed
	}
	if cfg.Claims.GasMultiplier != nil {
		settings.GasMultiplier = *cfg.Claims.GasMultiplier
	}
	setIfNotEmpty(&settings.LogLevel, strings.ToLower(cfg.LogLevel))
	setIfNotEmpty(&settings.Chain, cfg.Chain)
	setIfNotEmpty(&settings.RPCURL, cfg.RPCURL)
	setIfNotEmpty(&settings.MaxFeeGwei, cfg.Claims.MaxFeeGwei)
	setIfNotEmpty(&settings.MaxPriorityFeeGwei, cfg.Claims.MaxPriorityFeeGwei)
	setIfNotEmpty(&settings.CachePath, cfg.Cache.Path)
	setIfNotEmpty(&settings.CacheLockPath, cfg.Cache.LockPath)
	setIfNotEmpty(&settings.StatePath, cfg.State.Path)
	setIfNotEmpty(&settings.StateLockPath, cfg.State.LockPath)
	return nil
}

func applyEnv(settings *Settings) error {
	var env envConfig
	if err := envconfig.Process(envPrefix, &env); err != nil {
		return fmt.Errorf("parse environment: %w", err)
	}
	setIfNotEmpty(&settings.OutputMode, strings.ToLower(env.Output))
	if env.ReadOnly != nil {
		settings.ReadOnly = *env.ReadOnly
	}
	if env.Timeout != nil {
		settings.Timeout = *env.Timeout
	}
	if env.PollInterval != nil {
		settings.PollInterval = *env.PollInterval
	}
	if env.ReceiptTimeout != nil {
		settings.ReceiptTimeout = *env.ReceiptTimeout
	}
	if env.GasMultiplier != nil {
		settings.GasMultiplier = *env.GasMultiplier
	}
	if env.ViewTTL != nil {
		settings.ViewTTL = *env.ViewTTL
	}
	setIfNotEmpty(&settings.LogLevel, strings.ToLower(env.LogLevel))
	setIfNotEmpty(&settings.Chain, env.Chain)
	setIfNotEmpty(&settings.RPCURL, env.RPCURL)
	setIfNotEmpty(&settings.MaxFeeGwei, env.MaxFeeGwei)
	setIfNotEmpty(&settings.MaxPriorityFeeGwei, env.MaxPriorityFeeGwei)
	setIfNotEmpty(&settings.CachePath, env.CachePath)
	setIfNotEmpty(&settings.CacheLockPath, env.CacheLockPath)
	setIfNotEmpty(&settings.StatePath, env.StatePath)
	setIfNotEmpty(&settings.StateLockPath, env.StateLockPath)
	return nil
}

func applyFlags(flags GlobalFlags, settings *Settings) error {
	if flags.JSON && flags.Plain {
		return fmt.Errorf("cannot use --json and --plain together")
	}
	if flags.JSON {
		settings.OutputMode = "json"
	}
	if flags.Plain {
		settings.OutputMode = "plain"
	}
	if strings.TrimSpace(flags.Select) != "" {
		settings.SelectFields = splitList(flags.Select)
	}
	settings.ResultsOnly = flags.ResultsOnly

	if strings.TrimSpace(flags.EnableCommands) != "" {
		settings.EnableCommands = splitList(flags.EnableCommands)
	}
	if flags.ReadOnly {
		settings.ReadOnly = true
	}
	if flags.Timeout != "" {
		d, err := time.ParseDuration(flags.Timeout)
		if err != nil {
			return fmt.Errorf("parse --timeout: %w", err)
		}
		settings.Timeout = d
	}
	setIfNotEmpty(&settings.LogLevel, strings.ToLower(strings.TrimSpace(flags.LogLevel)))
	setIfNotEmpty(&settings.Chain, strings.TrimSpace(flags.Chain))
	setIfNotEmpty(&settings.RPCURL, strings.TrimSpace(flags.RPCURL))

	if settings.OutputMode != "json" && settings.OutputMode != "plain" {
		return fmt.Errorf("output must be json or plain")
	}

	return nil
}

func splitList(raw string) []string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		if v := strings.TrimSpace(part); v != "" {
			out = append(out, v)
		}
	}
	return out
}

func setIfNotEmpty(dst *string, value string) {
	if value != "" {
		*dst = value
	}
}
