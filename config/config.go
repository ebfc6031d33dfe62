package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// Config is the full runtime configuration
type Config struct {
	Scraper    ScraperConfig    `yaml:"scraper"`
	Filters    FilterConfig     `yaml:"filters"`
	Correction CorrectionConfig `yaml:"correction"`
	Output     OutputConfig     `yaml:"output"`
	Sheets     SheetsConfig     `yaml:"sheets"`
	Database   DatabaseConfig   `yaml:"database"`
	Telegram   TelegramConfig   `yaml:"telegram"`
	Batch      BatchConfig      `yaml:"batch"`
	Hotels     HotelsConfig     `yaml:"hotels"`
	Metrics    MetricsConfig    `yaml:"metrics"`
	Log        LogConfig        `yaml:"log"`
}

// ScraperConfig drives the browser session and the pagination controller
type ScraperConfig struct {
	URL               string        `yaml:"url" validate:"required,url"`
	Headless          bool          `yaml:"headless"`
	BrowserBin        string        `yaml:"browser_bin"`
	UserDataDir       string        `yaml:"user_data_dir"`
	NavigationTimeout time.Duration `yaml:"navigation_timeout" validate:"gt=0"`
	WaitTimeout       time.Duration `yaml:"wait_timeout" validate:"gt=0"`
	SearchSettle      time.Duration `yaml:"search_settle" validate:"gte=0"`
	ModalSettle       time.Duration `yaml:"modal_settle" validate:"gte=0"`
	PageSettle        time.Duration `yaml:"page_settle" validate:"gte=0"`
	MaxPages          int           `yaml:"max_pages" validate:"gte=0"` // 0 = no limit
	ContainerDepth    int           `yaml:"container_depth" validate:"gte=1"`
	SnapshotDir       string        `yaml:"snapshot_dir"`
}

// FilterConfig represents the filter criteria applied before persisting
type FilterConfig struct {
	Dedupe         bool `yaml:"dedupe"`
	RequireContact bool `yaml:"require_contact"`
}

// CorrectionConfig controls the interactive email correction
type CorrectionConfig struct {
	Prompt bool   `yaml:"prompt"`
	JoinBy string `yaml:"join_by" validate:"oneof=name id"`
}

// OutputConfig locates the CSV datasets
type OutputConfig struct {
	Dir             string `yaml:"dir" validate:"required"`
	ReplaceExisting bool   `yaml:"replace_existing"`
}

// SheetsConfig enables the Google Sheets sink when SpreadsheetURL is set
type SheetsConfig struct {
	SpreadsheetURL  string `yaml:"spreadsheet_url"`
	CredentialsPath string `yaml:"credentials_path"`
	CredentialsJSON string `yaml:"-"`
}

// DatabaseConfig enables the Postgres sink and run tracking
type DatabaseConfig struct {
	Enabled bool   `yaml:"enabled"`
	URL     string `yaml:"url"`
}

// TelegramConfig enables run summaries when Token and ChatID are set
type TelegramConfig struct {
	Token  string `yaml:"-"`
	ChatID int64  `yaml:"chat_id"`
}

// BatchConfig drives the sequential batch runner
type BatchConfig struct {
	RetryAttempts   uint          `yaml:"retry_attempts" validate:"gte=1"`
	RetryInitial    time.Duration `yaml:"retry_initial" validate:"gt=0"`
	RetryMaxElapsed time.Duration `yaml:"retry_max_elapsed" validate:"gte=0"`
	RunInterval     time.Duration `yaml:"run_interval" validate:"gte=0"`
}

// HotelsConfig drives the AHTRA hotel directory scraper
type HotelsConfig struct {
	BaseURL        string        `yaml:"base_url" validate:"required,url"`
	RequestDelay   time.Duration `yaml:"request_delay" validate:"gte=0"`
	RequestTimeout time.Duration `yaml:"request_timeout" validate:"gt=0"`
	OutputDir      string        `yaml:"output_dir" validate:"required"`
}

// MetricsConfig exposes /metrics while a batch runs when Addr is set
type MetricsConfig struct {
	Addr string `yaml:"addr"`
}

// LogConfig selects the logger preset
type LogConfig struct {
	Env string `yaml:"env" validate:"oneof=development debug production"`
}

// GetDefaultConfig returns a default configuration
func GetDefaultConfig() *Config {
	return &Config{
		Scraper: ScraperConfig{
			URL:               "https://www.agenciasdeviajes.ar/#buscador",
			Headless:          true,
			NavigationTimeout: 30 * time.Second,
			WaitTimeout:       20 * time.Second,
			SearchSettle:      2 * time.Second,
			ModalSettle:       time.Second,
			PageSettle:        2500 * time.Millisecond,
			ContainerDepth:    2,
		},
		Filters: FilterConfig{
			Dedupe: true,
		},
		Correction: CorrectionConfig{
			Prompt: true,
			JoinBy: "name",
		},
		Output: OutputConfig{
			Dir:             "resultados",
			ReplaceExisting: true,
		},
		Batch: BatchConfig{
			RetryAttempts:   3,
			RetryInitial:    5 * time.Second,
			RetryMaxElapsed: 5 * time.Minute,
			RunInterval:     3 * time.Second,
		},
		Hotels: HotelsConfig{
			BaseURL:        "https://www.ahtra.com.ar/",
			RequestDelay:   500 * time.Millisecond,
			RequestTimeout: 30 * time.Second,
			OutputDir:      "resultados",
		},
		Log: LogConfig{
			Env: "development",
		},
	}
}

// LoadConfig loads configuration from a YAML file on top of the defaults.
// A missing file yields the defaults; environment overrides and validation
// are applied in both cases.
func LoadConfig(path string) (*Config, error) {
	cfg := GetDefaultConfig()

	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
	case err != nil:
		return nil, fmt.Errorf("failed to read config file: %w", err)
	default:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnv overrides secrets and deployment paths from the environment
func (c *Config) applyEnv() error {
	if v := os.Getenv("DATABASE_URL"); v != "" {
		c.Database.URL = v
		c.Database.Enabled = true
	}
	if v := strings.TrimSpace(os.Getenv("GOOGLE_SHEETS_CREDENTIALS")); v != "" {
		c.Sheets.CredentialsJSON = v
	}
	if v := os.Getenv("BOT_DATA_DIR"); v != "" {
		c.Output.Dir = v
		c.Hotels.OutputDir = v
	}
	if v := os.Getenv("TELEGRAM_BOT_TOKEN"); v != "" {
		c.Telegram.Token = v
	}
	if v := os.Getenv("TELEGRAM_CHAT_ID"); v != "" {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return fmt.Errorf("invalid TELEGRAM_CHAT_ID %q: %w", v, err)
		}
		c.Telegram.ChatID = id
	}
	return nil
}

// Validate checks the struct tags of the whole configuration
func (c *Config) Validate() error {
	v := validator.New(validator.WithRequiredStructEnabled())
	if err := v.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			msgs := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				msgs = append(msgs, fmt.Sprintf("%s: failed %q", fe.Namespace(), fe.Tag()))
			}
			return fmt.Errorf("invalid config: %s", strings.Join(msgs, "; "))
		}
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

// SheetsEnabled reports whether the Sheets sink should be built
func (c *Config) SheetsEnabled() bool {
	return c.Sheets.SpreadsheetURL != ""
}

// TelegramEnabled reports whether run summaries should be sent
func (c *Config) TelegramEnabled() bool {
	return c.Telegram.Token != "" && c.Telegram.ChatID != 0
}
