package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Build-time variables injected via -ldflags.
var (
	Version   = "dev"
	BuildTime = "unknown"
)

// Config holds all onionfetch configuration.
type Config struct {
	Server  ServerConfig  `toml:"server"`
	Tor     TorConfig     `toml:"tor"`
	Cookies CookiesConfig `toml:"cookies"`
	Fetch   FetchConfig   `toml:"fetch"`
	Batch   BatchConfig   `toml:"batch"`
	Log     LogConfig     `toml:"log"`
}

// ServerConfig controls the HTTP boundary.
type ServerConfig struct {
	Host string `toml:"host"`
	Port int    `toml:"port"`

	// Secret, when set, must be presented in the X-Fetch-Secret header.
	Secret string `toml:"secret"`
}

// TorConfig describes the anonymizing daemon and its control endpoint.
type TorConfig struct {
	Binary    string `toml:"binary"`
	SocksPort int    `toml:"socks_port"`

	ControlPort int `toml:"control_port"`

	// BootstrapTimeout bounds the wait for the "Bootstrapped 100%" marker.
	BootstrapTimeout Duration `toml:"bootstrap_timeout"`

	// RotateGrace is slept after a successful NEWNYM so the new circuit can settle.
	RotateGrace Duration `toml:"rotate_grace"`

	DialTimeout Duration `toml:"dial_timeout"`

	// DataDir keeps the daemon's state apart from a system-wide instance.
	DataDir string `toml:"data_dir"`

	// ProbeExitIP logs the exit address seen through the proxy after every rotation.
	ProbeExitIP bool   `toml:"probe_exit_ip"`
	ProbeURL    string `toml:"probe_url"`
}

// CookiesConfig describes cookie acquisition.
type CookiesConfig struct {
	CurlBinary string   `toml:"curl_binary"`
	Dir        string   `toml:"dir"`
	TargetURL  string   `toml:"target_url"`
	Timeout    Duration `toml:"timeout"`
}

// FetchConfig describes the single-link fetch tool.
type FetchConfig struct {
	Binary      string   `toml:"binary"`
	OutputDir   string   `toml:"output_dir"`
	Impersonate string   `toml:"impersonate"`
	Template    string   `toml:"template"`
	Timeout     Duration `toml:"timeout"`
	Extensions  []string `toml:"extensions"`
}

// BatchConfig bounds a single batch.
type BatchConfig struct {
	MaxLinks int `toml:"max_links"`
}

// LogConfig controls the zap logger.
type LogConfig struct {
	Dir   string `toml:"dir"`
	Debug bool   `toml:"debug"`
}

// Duration is a time.Duration that reads as "30s" / "15m" in TOML.
type Duration struct {
	time.Duration
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	d.Duration = v
	return nil
}

// Default returns a Config populated with sensible defaults.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host: "127.0.0.1",
			Port: 8080,
		},
		Tor: TorConfig{
			Binary:           "tor",
			SocksPort:        9050,
			ControlPort:      9051,
			BootstrapTimeout: Duration{120 * time.Second},
			RotateGrace:      Duration{5 * time.Second},
			DialTimeout:      Duration{10 * time.Second},
			DataDir:          "tor_data",
			ProbeURL:         "https://check.torproject.org/api/ip",
		},
		Cookies: CookiesConfig{
			CurlBinary: "curl",
			Dir:        "cookies",
			TargetURL:  "https://www.tiktok.com",
			Timeout:    Duration{30 * time.Second},
		},
		Fetch: FetchConfig{
			Binary:      "yt-dlp",
			OutputDir:   "temp_downloads",
			Impersonate: "chrome",
			Template:    "tiktok_%(id)s.%(ext)s",
			Timeout:     Duration{15 * time.Minute},
			Extensions:  []string{".mp4"},
		},
		Batch: BatchConfig{
			MaxLinks: 10,
		},
		Log: LogConfig{
			Dir: "logs",
		},
	}
}

// Load reads configuration from a TOML file, falling back to defaults when
// the file does not exist, then applies ONIONFETCH_* environment overrides.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, os.ErrNotExist):
		case err != nil:
			return nil, fmt.Errorf("read config %s: %w", path, err)
		default:
			if err := toml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("parse config %s: %w", path, err)
			}
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

func (c *Config) applyEnv() error {
	if v := os.Getenv("ONIONFETCH_HOST"); v != "" {
		c.Server.Host = v
	}
	if v := os.Getenv("ONIONFETCH_PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("ONIONFETCH_PORT: %w", err)
		}
		c.Server.Port = port
	}
	if v := os.Getenv("ONIONFETCH_SECRET"); v != "" {
		c.Server.Secret = strings.TrimSpace(v)
	}

	if v := os.Getenv("ONIONFETCH_TOR_BINARY"); v != "" {
		c.Tor.Binary = v
	}
	if v := os.Getenv("ONIONFETCH_CURL_BINARY"); v != "" {
		c.Cookies.CurlBinary = v
	}
	if v := os.Getenv("ONIONFETCH_YTDLP_BINARY"); v != "" {
		c.Fetch.Binary = v
	}
	if v := os.Getenv("ONIONFETCH_COOKIE_DIR"); v != "" {
		c.Cookies.Dir = v
	}
	if v := os.Getenv("ONIONFETCH_OUTPUT_DIR"); v != "" {
		c.Fetch.OutputDir = v
	}
	if v := os.Getenv("ONIONFETCH_LOG_DIR"); v != "" {
		c.Log.Dir = v
	}

	c.Log.Debug = c.Log.Debug || os.Getenv("ONIONFETCH_DEBUG") == "true"
	c.Tor.ProbeExitIP = c.Tor.ProbeExitIP || os.Getenv("ONIONFETCH_PROBE_EXIT_IP") == "true"
	return nil
}

// Validate rejects values the download pipeline cannot work with.
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port %d out of range", c.Server.Port)
	}
	if c.Tor.SocksPort <= 0 || c.Tor.ControlPort <= 0 {
		return fmt.Errorf("tor ports must be positive")
	}
	if c.Tor.SocksPort == c.Tor.ControlPort {
		return fmt.Errorf("tor.socks_port and tor.control_port must differ")
	}
	if c.Batch.MaxLinks < 1 {
		return fmt.Errorf("batch.max_links must be at least 1")
	}
	if c.Tor.BootstrapTimeout.Duration <= 0 || c.Cookies.Timeout.Duration <= 0 || c.Fetch.Timeout.Duration <= 0 {
		return fmt.Errorf("timeouts must be positive")
	}
	if len(c.Fetch.Extensions) == 0 {
		return fmt.Errorf("fetch.extensions must not be empty")
	}
	return nil
}

// ProxyURL is the SOCKS address handed to the fetch tool.
func (c *Config) ProxyURL() string {
	return fmt.Sprintf("socks5://127.0.0.1:%d", c.Tor.SocksPort)
}

// CurlProxyURL routes cookie acquisition through the same circuit, resolving
// names on the exit side.
func (c *Config) CurlProxyURL() string {
	return fmt.Sprintf("socks5h://127.0.0.1:%d", c.Tor.SocksPort)
}

// ListenAddr is the HTTP listen address.
func (c *Config) ListenAddr() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

// NewLogger creates a structured logger that writes to both stdout and a log file.
func NewLogger(cfg *Config, name string) (*zap.Logger, error) {
	if err := os.MkdirAll(cfg.Log.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("create log dir: %w", err)
	}

	logPath := filepath.Join(cfg.Log.Dir, name+".log")

	zcfg := zap.NewProductionConfig()
	zcfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	zcfg.OutputPaths = []string{"stdout", logPath}
	zcfg.ErrorOutputPaths = []string{"stderr"}
	if cfg.Log.Debug {
		zcfg.Level = zap.NewAtomicLevelAt(zap.DebugLevel)
	}

	logger, err := zcfg.Build()
	if err != nil {
		return nil, fmt.Errorf("build logger %s: %w", logPath, err)
	}
	return logger.Named(name), nil
}
