// Package config holds the process-wide configuration for the uploader. A
// Config is built once at startup and passed explicitly to every component;
// nothing in this package keeps global state.
package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Storage backends.
const (
	BackendDrive = "drive"
	BackendGCS   = "gcs"
	BackendLocal = "local"
)

// Drive link conventions.
const (
	LinkStyleDownload = "download"
	LinkStyleView     = "view"
)

const (
	DefaultPort               = 8080
	DefaultServiceAccountFile = "service_account.json"
	DefaultSheetRange         = "Sheet1!A1:C10"
	DefaultTelegramAPIURL     = "https://api.telegram.org"
	DefaultLocalStoragePath   = "./uploads"
	DefaultHistory            = 1000
)

// Error reports missing or malformed configuration. It is fatal at startup:
// the service must not begin accepting requests when one is returned.
type Error struct {
	Field string
	Err   error
}

func (e *Error) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("configuration error: %s", e.Err)
	}
	return fmt.Sprintf("configuration error: %s: %s", e.Field, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Errorf builds an Error for field.
func Errorf(field, format string, args ...any) *Error {
	return &Error{Field: field, Err: fmt.Errorf(format, args...)}
}

type Config struct {
	Port    int    `yaml:"port"`
	Backend string `yaml:"backend"`

	// History is the number of finished uploads kept for inspection.
	History int `yaml:"history"`

	Credential CredentialConfig `yaml:"credential"`
	Drive      DriveConfig      `yaml:"drive"`
	GCS        GCSConfig        `yaml:"gcs"`
	Local      LocalConfig      `yaml:"local"`
	Sheet      SheetConfig      `yaml:"sheet"`
	Telegram   TelegramConfig   `yaml:"telegram"`
}

// CredentialConfig locates the service account. Inline JSON wins over the
// file path when both are set.
type CredentialConfig struct {
	JSON string `yaml:"json"`
	File string `yaml:"file"`
}

type DriveConfig struct {
	FolderID  string `yaml:"folder_id"`
	LinkStyle string `yaml:"link_style"`
}

type GCSConfig struct {
	Bucket string `yaml:"bucket"`
	Prefix string `yaml:"prefix"`
}

type LocalConfig struct {
	Path string `yaml:"path"`
}

type SheetConfig struct {
	ID    string `yaml:"id"`
	Range string `yaml:"range"`
}

type TelegramConfig struct {
	BotToken string `yaml:"bot_token"`
	ChatID   string `yaml:"chat_id"`
	APIURL   string `yaml:"api_url"`
}

// Default returns the built-in defaults.
func Default() Config {
	return Config{
		Port:       DefaultPort,
		Backend:    BackendDrive,
		History:    DefaultHistory,
		Credential: CredentialConfig{File: DefaultServiceAccountFile},
		Drive:      DriveConfig{LinkStyle: LinkStyleDownload},
		Local:      LocalConfig{Path: DefaultLocalStoragePath},
		Sheet:      SheetConfig{Range: DefaultSheetRange},
		Telegram:   TelegramConfig{APIURL: DefaultTelegramAPIURL},
	}
}

// Options selects the optional configuration sources consulted by Load.
type Options struct {
	// File is an optional YAML configuration file.
	File string

	// EnvFile is an optional dotenv file. Variables already present in the
	// environment are not overridden.
	EnvFile string

	// Getenv looks up environment variables. Defaults to os.Getenv.
	Getenv func(string) string

	// Port and Backend are command-line overrides. They take precedence over
	// every other source when non-zero.
	Port    int
	Backend string
}

// Load builds a Config from defaults, then the YAML file, then the
// environment, then the overrides in opts. The result is validated once,
// after every source has been applied.
func Load(opts Options) (*Config, error) {
	cfg := Default()

	if opts.File != "" {
		if err := cfg.mergeFile(opts.File); err != nil {
			return nil, err
		}
	}

	if opts.EnvFile != "" {
		if err := godotenv.Load(opts.EnvFile); err != nil {
			return nil, &Error{Field: "env-file", Err: err}
		}
	}

	getenv := opts.Getenv
	if getenv == nil {
		getenv = os.Getenv
	}
	if err := cfg.applyEnv(getenv); err != nil {
		return nil, err
	}

	if opts.Port != 0 {
		cfg.Port = opts.Port
	}
	if opts.Backend != "" {
		cfg.Backend = opts.Backend
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) mergeFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return &Error{Field: "config", Err: err}
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return &Error{Field: "config", Err: fmt.Errorf("parse %s: %w", path, err)}
	}
	return nil
}

func (c *Config) applyEnv(getenv func(string) string) error {
	set := func(dst *string, key string) {
		if v := getenv(key); v != "" {
			*dst = v
		}
	}

	if v := getenv("PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return Errorf("PORT", "invalid port %q", v)
		}
		c.Port = port
	}
	if v := getenv("UPLOAD_HISTORY"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return Errorf("UPLOAD_HISTORY", "invalid history size %q", v)
		}
		c.History = n
	}

	set(&c.Backend, "UPLOAD_BACKEND")
	set(&c.Credential.JSON, "SERVICE_ACCOUNT_JSON")
	set(&c.Credential.File, "SERVICE_ACCOUNT_FILE")
	set(&c.Drive.FolderID, "GDRIVE_FOLDER_ID")
	set(&c.Drive.LinkStyle, "DRIVE_LINK_STYLE")
	set(&c.GCS.Bucket, "GCS_BUCKET")
	set(&c.GCS.Prefix, "GCS_PREFIX")
	set(&c.Local.Path, "LOCAL_STORAGE_PATH")
	set(&c.Sheet.ID, "SHEET_ID")
	set(&c.Sheet.Range, "SHEET_RANGE")
	set(&c.Telegram.BotToken, "TELEGRAM_BOT_TOKEN")
	set(&c.Telegram.ChatID, "TELEGRAM_CHAT_ID")
	set(&c.Telegram.APIURL, "TELEGRAM_API_URL")

	return nil
}

// Validate checks the values that are fatal when wrong. Optional features
// with incomplete settings are disabled rather than rejected.
func (c *Config) Validate() error {
	if c.Port < 1 || c.Port > 65535 {
		return Errorf("port", "must be between 1 and 65535, got %d", c.Port)
	}
	if c.History < 1 {
		return Errorf("UPLOAD_HISTORY", "must be positive, got %d", c.History)
	}

	switch c.Backend {
	case BackendDrive:
		if c.Drive.LinkStyle != LinkStyleDownload && c.Drive.LinkStyle != LinkStyleView {
			return Errorf("DRIVE_LINK_STYLE", "unknown link style %q", c.Drive.LinkStyle)
		}
	case BackendGCS:
		if c.GCS.Bucket == "" {
			return Errorf("GCS_BUCKET", "required for the %s backend", BackendGCS)
		}
	case BackendLocal:
		if c.Local.Path == "" {
			return Errorf("LOCAL_STORAGE_PATH", "required for the %s backend", BackendLocal)
		}
	default:
		return Errorf("UPLOAD_BACKEND", "unknown backend %q", c.Backend)
	}

	if c.SheetEnabled() && c.Sheet.Range == "" {
		return Errorf("SHEET_RANGE", "required when SHEET_ID is set")
	}
	return nil
}

// SheetEnabled reports whether a spreadsheet is configured.
func (c *Config) SheetEnabled() bool {
	return c.Sheet.ID != ""
}

// NotificationEnabled reports whether both Telegram settings are present.
func (c *Config) NotificationEnabled() bool {
	return c.Telegram.BotToken != "" && c.Telegram.ChatID != ""
}

// UploadFolder is the destination folder passed to the uploader for the
// configured backend, or "" for the provider default.
func (c *Config) UploadFolder() string {
	switch c.Backend {
	case BackendDrive:
		return c.Drive.FolderID
	case BackendGCS:
		return c.GCS.Prefix
	}
	return ""
}
