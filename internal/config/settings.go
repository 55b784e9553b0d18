// Package config holds the exporter's persistent settings. Settings are read
// from a JSON file, zero fields are filled from defaults and MOODBOARD_*
// environment variables override the result.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-json"
)

// Environment variable names
const (
	EnvDataDir      = "MOODBOARD_DATA_DIR"
	EnvOutputDir    = "MOODBOARD_OUTPUT_DIR"
	EnvLogLevel     = "MOODBOARD_LOG_LEVEL"
	EnvLogFormat    = "MOODBOARD_LOG_FORMAT"
	EnvFFmpegPath   = "MOODBOARD_FFMPEG"
	EnvFormats      = "MOODBOARD_FORMATS"
	EnvServerAddr   = "MOODBOARD_ADDR"
	EnvLoadTimeout  = "MOODBOARD_LOAD_TIMEOUT"
	EnvFontPath     = "MOODBOARD_FONT"
	EnvPostHogKey   = "MOODBOARD_POSTHOG_KEY"
	EnvPostHogHost  = "MOODBOARD_POSTHOG_HOST"
	SettingsFile    = "settings.json"
	DatabaseFile    = "moodboard.db"
	defaultDirName  = ".moodboard"
	defaultPostHost = "https://us.i.posthog.com"
)

// ErrInvalid is returned by Validate.
var ErrInvalid = errors.New("invalid settings")

// Settings represents persistent exporter preferences
type Settings struct {
	DataDir   string `json:"dataDir"`
	OutputDir string `json:"outputDir"`

	LogLevel  string `json:"logLevel"`  // "debug", "info", "warn", "error"
	LogFormat string `json:"logFormat"` // "text" or "json"

	// Frame geometry and capture
	Width       int `json:"width"`
	Height      int `json:"height"`
	FrameRate   int `json:"frameRate"`
	TimesliceMs int `json:"timesliceMs"`
	JPEGQuality int `json:"jpegQuality"`

	// Hold durations
	DayTitleHoldMs int `json:"dayTitleHoldMs"`
	ItemHoldMs     int `json:"itemHoldMs"`
	EndingHoldMs   int `json:"endingHoldMs"`

	LoadTimeoutMs  int `json:"loadTimeoutMs"`
	ImageCacheSize int `json:"imageCacheSize"`

	// Formats limits the output formats tried, in preference order
	// ("mp4", "webm", "avi", "gif"). Empty means all.
	Formats    []string `json:"formats"`
	FFmpegPath string   `json:"ffmpegPath"`

	// FontPath is an optional TTF/OTF used for emoji and other glyphs the
	// bundled Go fonts lack.
	FontPath string `json:"fontPath,omitempty"`

	ServerAddr string `json:"serverAddr"`

	PostHogKey  string `json:"posthogKey,omitempty"`
	PostHogHost string `json:"posthogHost,omitempty"`
}

// DefaultSettings returns default settings
func DefaultSettings() *Settings {
	homeDir, _ := os.UserHomeDir()
	dataDir := filepath.Join(homeDir, defaultDirName)

	return &Settings{
		DataDir:        dataDir,
		OutputDir:      filepath.Join(dataDir, "exports"),
		LogLevel:       "info",
		LogFormat:      "text",
		Width:          1280,
		Height:         720,
		FrameRate:      30,
		TimesliceMs:    100,
		JPEGQuality:    85,
		DayTitleHoldMs: 2000,
		ItemHoldMs:     5000,
		EndingHoldMs:   3000,
		LoadTimeoutMs:  15000,
		ImageCacheSize: 64,
		Formats:        []string{},
		FFmpegPath:     "",
		ServerAddr:     "127.0.0.1:8642",
		PostHogHost:    defaultPostHost,
	}
}

// DBPath returns the SQLite database path.
func (s *Settings) DBPath() string { return filepath.Join(s.DataDir, DatabaseFile) }

// LoadTimeout returns the per-image load timeout.
func (s *Settings) LoadTimeout() time.Duration {
	return time.Duration(s.LoadTimeoutMs) * time.Millisecond
}

// Timeslice returns the encoder chunk flush interval.
func (s *Settings) Timeslice() time.Duration {
	return time.Duration(s.TimesliceMs) * time.Millisecond
}

// DefaultSettingsPath returns ~/.moodboard/settings.json
func DefaultSettingsPath() string {
	return filepath.Join(DefaultSettings().DataDir, SettingsFile)
}

// LoadSettings loads settings from path. A missing file yields defaults.
// Environment overrides are applied in both cases.
func LoadSettings(path string) (*Settings, error) {
	settings := DefaultSettings()

	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
	case err != nil:
		return nil, fmt.Errorf("failed to read settings file: %w", err)
	default:
		var fromFile Settings
		if err := json.Unmarshal(data, &fromFile); err != nil {
			return nil, fmt.Errorf("failed to parse settings: %w", err)
		}
		settings = mergeDefaults(&fromFile, settings)
	}

	if err := applyEnv(settings); err != nil {
		return nil, err
	}
	return settings, nil
}

// mergeDefaults fills zero fields of s from defaults.
func mergeDefaults(s, defaults *Settings) *Settings {
	if s.DataDir == "" {
		s.DataDir = defaults.DataDir
	}
	if s.OutputDir == "" {
		s.OutputDir = filepath.Join(s.DataDir, "exports")
	}
	if s.LogLevel == "" {
		s.LogLevel = defaults.LogLevel
	}
	if s.LogFormat == "" {
		s.LogFormat = defaults.LogFormat
	}
	if s.Width == 0 {
		s.Width = defaults.Width
	}
	if s.Height == 0 {
		s.Height = defaults.Height
	}
	if s.FrameRate == 0 {
		s.FrameRate = defaults.FrameRate
	}
	if s.TimesliceMs == 0 {
		s.TimesliceMs = defaults.TimesliceMs
	}
	if s.JPEGQuality == 0 {
		s.JPEGQuality = defaults.JPEGQuality
	}
	if s.DayTitleHoldMs == 0 {
		s.DayTitleHoldMs = defaults.DayTitleHoldMs
	}
	if s.ItemHoldMs == 0 {
		s.ItemHoldMs = defaults.ItemHoldMs
	}
	if s.EndingHoldMs == 0 {
		s.EndingHoldMs = defaults.EndingHoldMs
	}
	if s.LoadTimeoutMs == 0 {
		s.LoadTimeoutMs = defaults.LoadTimeoutMs
	}
	if s.ImageCacheSize == 0 {
		s.ImageCacheSize = defaults.ImageCacheSize
	}
	if s.Formats == nil {
		s.Formats = defaults.Formats
	}
	if s.ServerAddr == "" {
		s.ServerAddr = defaults.ServerAddr
	}
	if s.PostHogHost == "" {
		s.PostHogHost = defaults.PostHogHost
	}
	return s
}

func applyEnv(s *Settings) error {
	if v := os.Getenv(EnvDataDir); v != "" {
		s.DataDir = v
	}
	if v := os.Getenv(EnvOutputDir); v != "" {
		s.OutputDir = v
	}
	if v := os.Getenv(EnvLogLevel); v != "" {
		s.LogLevel = v
	}
	if v := os.Getenv(EnvLogFormat); v != "" {
		s.LogFormat = v
	}
	if v := os.Getenv(EnvFFmpegPath); v != "" {
		s.FFmpegPath = v
	}
	if v := os.Getenv(EnvFormats); v != "" {
		s.Formats = splitList(v)
	}
	if v := os.Getenv(EnvServerAddr); v != "" {
		s.ServerAddr = v
	}
	if v := os.Getenv(EnvFontPath); v != "" {
		s.FontPath = v
	}
	if v := os.Getenv(EnvPostHogKey); v != "" {
		s.PostHogKey = v
	}
	if v := os.Getenv(EnvPostHogHost); v != "" {
		s.PostHogHost = v
	}
	if v := os.Getenv(EnvLoadTimeout); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			ms, convErr := strconv.Atoi(v)
			if convErr != nil {
				return fmt.Errorf("invalid %s: %w", EnvLoadTimeout, err)
			}
			d = time.Duration(ms) * time.Millisecond
		}
		s.LoadTimeoutMs = int(d / time.Millisecond)
	}
	return nil
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.ToLower(strings.TrimSpace(part)); part != "" {
			out = append(out, part)
		}
	}
	return out
}

var knownFormats = map[string]bool{"mp4": true, "webm": true, "avi": true, "gif": true}

// Validate checks ranges and enumerations.
func (s *Settings) Validate() error {
	if s.Width < 16 || s.Height < 16 || s.Width%2 != 0 || s.Height%2 != 0 {
		return fmt.Errorf("%w: frame size %dx%d must be even and at least 16x16", ErrInvalid, s.Width, s.Height)
	}
	if s.FrameRate < 1 || s.FrameRate > 120 {
		return fmt.Errorf("%w: frame rate %d out of range", ErrInvalid, s.FrameRate)
	}
	if s.TimesliceMs < 1 {
		return fmt.Errorf("%w: timeslice must be positive", ErrInvalid)
	}
	if s.JPEGQuality < 1 || s.JPEGQuality > 100 {
		return fmt.Errorf("%w: jpeg quality %d out of range", ErrInvalid, s.JPEGQuality)
	}
	if s.DayTitleHoldMs < 0 || s.ItemHoldMs < 0 || s.EndingHoldMs < 0 {
		return fmt.Errorf("%w: hold durations must not be negative", ErrInvalid)
	}
	if s.LoadTimeoutMs < 1 {
		return fmt.Errorf("%w: load timeout must be positive", ErrInvalid)
	}
	for _, f := range s.Formats {
		if !knownFormats[f] {
			return fmt.Errorf("%w: unknown format %q (must be mp4, webm, avi or gif)", ErrInvalid, f)
		}
	}
	return nil
}

// SaveSettings saves settings to path
func SaveSettings(path string, settings *Settings) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create settings directory: %w", err)
	}

	data, err := json.MarshalIndent(settings, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal settings: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write settings file: %w", err)
	}
	return nil
}
