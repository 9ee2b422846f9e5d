package config

import (
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v2"
)

const (
	DefaultBind       = "127.0.0.1:8733"
	DefaultListenPort = 49000
	MinListenPort     = 1024
	MaxListenPort     = 65535
	MinTokenLength    = 32

	FileName = "config.yaml"
)

type Config struct {
	Bind        string
	AdminToken  string
	DownloadDir string
	DataDir     string
	GeoIPPath   string
	LogLevel    string
	LogDev      bool

	NoUPnP            bool
	NoDHT             bool
	DownloadRateLimit int
	UploadRateLimit   int
	MetadataTimeout   time.Duration

	// APIRateLimit is requests per second per client; 0 disables limiting.
	APIRateLimit int
	APIRateBurst int

	// Values below come from the YAML file in DataDir.
	File FileConfig
}

// FileConfig is persisted as config.yaml in the data directory.
type FileConfig struct {
	ListenPort int `yaml:"listen_port"`
}

func Load() *Config {
	home, _ := os.UserHomeDir()
	return &Config{
		Bind:              getEnv("DAEMON_BIND", DefaultBind),
		AdminToken:        getEnv("DAEMON_ADMIN_TOKEN", ""),
		DownloadDir:       getEnv("ORC_DOWNLOAD_DIR", filepath.Join(home, "Downloads")),
		DataDir:           getEnv("ORC_DATA_DIR", filepath.Join(home, ".orctorrent")),
		GeoIPPath:         getEnv("ORC_GEOIP_DB", ""),
		LogLevel:          getEnv("LOG_LEVEL", "info"),
		LogDev:            getEnvBool("LOG_DEV", false),
		NoUPnP:            getEnvBool("ORC_NO_UPNP", false),
		NoDHT:             getEnvBool("ORC_NO_DHT", false),
		DownloadRateLimit: getEnvInt("ORC_DOWNLOAD_RATE_LIMIT", 0),
		UploadRateLimit:   getEnvInt("ORC_UPLOAD_RATE_LIMIT", 0),
		MetadataTimeout:   time.Duration(getEnvInt("ORC_METADATA_TIMEOUT_SEC", 120)) * time.Second,
		APIRateLimit:      getEnvInt("ORC_API_RATE_LIMIT", 50),
		APIRateBurst:      getEnvInt("ORC_API_RATE_BURST", 100),
		File:              FileConfig{ListenPort: DefaultListenPort},
	}
}

// LoadFile reads config.yaml from the data directory, writing the defaults
// with owner-only permissions when it does not exist yet.
func (c *Config) LoadFile() error {
	if err := os.MkdirAll(c.DataDir, 0700); err != nil {
		return fmt.Errorf("failed to create data dir: %w", err)
	}
	path := filepath.Join(c.DataDir, FileName)

	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		c.File = FileConfig{ListenPort: DefaultListenPort}
		return c.SaveFile()
	}
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", path, err)
	}

	fc := FileConfig{ListenPort: DefaultListenPort}
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return fmt.Errorf("failed to parse %s: %w", path, err)
	}
	if err := fc.validate(); err != nil {
		return fmt.Errorf("invalid %s: %w", path, err)
	}
	c.File = fc
	return nil
}

func (c *Config) SaveFile() error {
	if err := c.File.validate(); err != nil {
		return err
	}
	data, err := yaml.Marshal(c.File)
	if err != nil {
		return err
	}
	path := filepath.Join(c.DataDir, FileName)
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return os.Chmod(path, 0600)
}

func (f FileConfig) validate() error {
	if f.ListenPort < MinListenPort || f.ListenPort > MaxListenPort {
		return fmt.Errorf("listen_port must be between %d and %d, got %d", MinListenPort, MaxListenPort, f.ListenPort)
	}
	return nil
}

// Validate rejects configurations that would expose the API without
// authentication. The returned warnings are for the log.
func (c *Config) Validate() (warnings []string, err error) {
	host, _, err := net.SplitHostPort(c.Bind)
	if err != nil {
		return nil, fmt.Errorf("invalid DAEMON_BIND %q: %w", c.Bind, err)
	}
	if !IsLoopback(host) && c.AdminToken == "" {
		return nil, fmt.Errorf("DAEMON_BIND %s is not loopback: DAEMON_ADMIN_TOKEN is required", c.Bind)
	}
	if c.AdminToken != "" && len(c.AdminToken) < MinTokenLength {
		warnings = append(warnings, fmt.Sprintf("DAEMON_ADMIN_TOKEN is shorter than %d characters", MinTokenLength))
	}
	if c.DownloadRateLimit < 0 || c.UploadRateLimit < 0 {
		return nil, errors.New("rate limits cannot be negative")
	}
	return warnings, nil
}

func IsLoopback(host string) bool {
	if strings.EqualFold(host, "localhost") {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}

func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if value, err := strconv.ParseBool(getEnv(key, "")); err == nil {
		return value
	}
	return fallback
}
