// Package config provides file-based configuration with environment overrides.
package config

import (
	"encoding/xml"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultUploadEndpoint is where files are posted unless configured otherwise.
const DefaultUploadEndpoint = "http://127.0.0.1:8000/api/upload/"

// AppConfig represents the root configuration structure
type AppConfig struct {
	XMLName xml.Name `xml:"ExtractDesk" yaml:"-"`

	// Server configuration
	Server ServerConfig `xml:"Server" yaml:"server"`

	// Upload endpoint configuration
	Upload UploadConfig `xml:"Upload" yaml:"upload"`

	// Storage configuration
	Storage StorageConfig `xml:"Storage" yaml:"storage"`

	// Widget lifecycle configuration
	Widgets WidgetsConfig `xml:"Widgets" yaml:"widgets"`

	// Advanced options
	Advanced AdvancedConfig `xml:"Advanced" yaml:"advanced"`
}

// ServerConfig contains HTTP server settings
type ServerConfig struct {
	Port         int    `xml:"Port" yaml:"port"`
	BindAddress  string `xml:"BindAddress" yaml:"bindAddress"`
	EnableCORS   bool   `xml:"EnableCORS" yaml:"enableCORS"`
	AllowOrigins string `xml:"AllowOrigins" yaml:"allowOrigins"`
	ReadTimeout  int    `xml:"ReadTimeoutSeconds" yaml:"readTimeoutSeconds"`
	WriteTimeout int    `xml:"WriteTimeoutSeconds" yaml:"writeTimeoutSeconds"`
	IdleTimeout  int    `xml:"IdleTimeoutSeconds" yaml:"idleTimeoutSeconds"`
	BodyLimit    string `xml:"BodyLimit" yaml:"bodyLimit"`
}

// UploadConfig describes the external extraction endpoint
type UploadConfig struct {
	Endpoint              string `xml:"Endpoint" yaml:"endpoint"`
	RequestTimeoutSeconds int    `xml:"RequestTimeoutSeconds" yaml:"requestTimeoutSeconds"`
}

// StorageConfig contains file storage settings
type StorageConfig struct {
	DataDirectory       string `xml:"DataDirectory" yaml:"dataDirectory"`
	SelectionsDirectory string `xml:"SelectionsDirectory" yaml:"selectionsDirectory"`
}

// WidgetsConfig controls how long mounted widgets live
type WidgetsConfig struct {
	MaxMounted             int `xml:"MaxMounted" yaml:"maxMounted"`
	IdleTimeoutMinutes     int `xml:"IdleTimeoutMinutes" yaml:"idleTimeoutMinutes"`
	CleanupIntervalMinutes int `xml:"CleanupIntervalMinutes" yaml:"cleanupIntervalMinutes"`
	MaxNotifications       int `xml:"MaxNotifications" yaml:"maxNotifications"`
}

// AdvancedConfig contains advanced/tuning options
type AdvancedConfig struct {
	LogLevel                string `xml:"LogLevel" yaml:"logLevel"`
	EnableRequestLogging    bool   `xml:"EnableRequestLogging" yaml:"enableRequestLogging"`
	EnableJournal           bool   `xml:"EnableJournal" yaml:"enableJournal"`
	DuckDBThreads           int    `xml:"DuckDBThreads" yaml:"duckDBThreads"`
	DuckDBMemoryLimit       string `xml:"DuckDBMemoryLimit" yaml:"duckDBMemoryLimit"`
	WebSocketMaxMessageSize int    `xml:"WebSocketMaxMessageSizeKB" yaml:"webSocketMaxMessageSizeKB"`
}

// DefaultConfig returns the default configuration
func DefaultConfig() *AppConfig {
	return &AppConfig{
		Server: ServerConfig{
			Port:         8090,
			BindAddress:  "127.0.0.1",
			EnableCORS:   false,
			AllowOrigins: "*",
			ReadTimeout:  30,
			WriteTimeout: 30,
			IdleTimeout:  120,
			BodyLimit:    "64M",
		},
		Upload: UploadConfig{
			Endpoint:              DefaultUploadEndpoint,
			RequestTimeoutSeconds: 0,
		},
		Storage: StorageConfig{
			DataDirectory:       "./data",
			SelectionsDirectory: "./data/selections",
		},
		Widgets: WidgetsConfig{
			MaxMounted:             64,
			IdleTimeoutMinutes:     30,
			CleanupIntervalMinutes: 5,
			MaxNotifications:       20,
		},
		Advanced: AdvancedConfig{
			LogLevel:                "info",
			EnableRequestLogging:    true,
			EnableJournal:           true,
			DuckDBThreads:           1,
			DuckDBMemoryLimit:       "128MB",
			WebSocketMaxMessageSize: 64,
		},
	}
}

// LoadConfig loads configuration from an XML or YAML file, chosen by extension.
// A missing file is created with defaults.
func LoadConfig(configPath string) (*AppConfig, error) {
	config := DefaultConfig()

	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		if err := config.Save(configPath); err != nil {
			return nil, fmt.Errorf("failed to create default config: %w", err)
		}
	} else {
		data, err := os.ReadFile(configPath)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}

		if isYAML(configPath) {
			err = yaml.Unmarshal(data, config)
		} else {
			err = xml.Unmarshal(data, config)
		}
		if err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	// Apply environment variable overrides
	config.applyEnvironmentOverrides()

	if err := config.Validate(); err != nil {
		return nil, err
	}

	// Resolve relative paths
	config.resolvePaths(filepath.Dir(configPath))

	return config, nil
}

// Save saves the configuration in the format implied by the path's extension
func (c *AppConfig) Save(configPath string) error {
	var content []byte
	if isYAML(configPath) {
		output, err := yaml.Marshal(c)
		if err != nil {
			return fmt.Errorf("failed to marshal config: %w", err)
		}
		content = append([]byte("# Extract Desk configuration\n# This file is auto-generated on first run\n\n"), output...)
	} else {
		output, err := xml.MarshalIndent(c, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to marshal config: %w", err)
		}
		header := []byte(xml.Header + "\n<!-- Extract Desk Configuration -->\n<!-- This file is auto-generated on first run -->\n\n")
		content = append(header, output...)
	}

	if err := os.WriteFile(configPath, content, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// Validate rejects settings the server cannot start with
func (c *AppConfig) Validate() error {
	u, err := url.Parse(c.Upload.Endpoint)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("invalid upload endpoint %q: must be an absolute http(s) URL", c.Upload.Endpoint)
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port %d", c.Server.Port)
	}
	if c.Upload.RequestTimeoutSeconds < 0 {
		return fmt.Errorf("request timeout must not be negative")
	}
	return nil
}

// applyEnvironmentOverrides allows environment variables to override config values
func (c *AppConfig) applyEnvironmentOverrides() {
	// PORT override
	if port := os.Getenv("PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			c.Server.Port = p
		}
	}

	// DATA_DIR override
	if dataDir := os.Getenv("DATA_DIR"); dataDir != "" {
		c.Storage.DataDirectory = dataDir
		c.Storage.SelectionsDirectory = filepath.Join(dataDir, "selections")
	}

	if endpoint := os.Getenv("UPLOAD_ENDPOINT"); endpoint != "" {
		c.Upload.Endpoint = endpoint
	}

	if level := os.Getenv("LOG_LEVEL"); level != "" {
		c.Advanced.LogLevel = level
	}
}

// resolvePaths converts relative paths to absolute based on config file location
func (c *AppConfig) resolvePaths(configDir string) {
	if !filepath.IsAbs(c.Storage.DataDirectory) {
		c.Storage.DataDirectory = filepath.Join(configDir, c.Storage.DataDirectory)
	}
	if !filepath.IsAbs(c.Storage.SelectionsDirectory) {
		c.Storage.SelectionsDirectory = filepath.Join(configDir, c.Storage.SelectionsDirectory)
	}
}

// GetDataDir returns the absolute data directory path
func (c *AppConfig) GetDataDir() string {
	return c.Storage.DataDirectory
}

// GetSelectionsDir returns the absolute directory for selected-file blobs
func (c *AppConfig) GetSelectionsDir() string {
	return c.Storage.SelectionsDirectory
}

// GetServerAddr returns the server bind address
func (c *AppConfig) GetServerAddr() string {
	return fmt.Sprintf("%s:%d", c.Server.BindAddress, c.Server.Port)
}

// GetRequestTimeout returns the outbound upload timeout, zero meaning none
func (c *AppConfig) GetRequestTimeout() time.Duration {
	return time.Duration(c.Upload.RequestTimeoutSeconds) * time.Second
}

// GetAllowOrigins splits the comma separated origin list
func (c *AppConfig) GetAllowOrigins() []string {
	origins := strings.Split(c.Server.AllowOrigins, ",")
	out := origins[:0]
	for _, o := range origins {
		if o = strings.TrimSpace(o); o != "" {
			out = append(out, o)
		}
	}
	if len(out) == 0 {
		return []string{"*"}
	}
	return out
}

// EnsureDirectories creates all necessary directories
func (c *AppConfig) EnsureDirectories() error {
	dirs := []string{
		c.Storage.DataDirectory,
		c.Storage.SelectionsDirectory,
	}

	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}

	return nil
}

func isYAML(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	return ext == ".yaml" || ext == ".yml"
}
