package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/partkit-dev/partkit/internal/errors"
	"github.com/partkit-dev/partkit/pkg/kipath"
)

const (
	// ConfigFileName is the name of the configuration file.
	ConfigFileName = "partkit.json"

	// DefaultPrefix namespaces generated libraries away from user ones.
	DefaultPrefix = "LCSC_"

	// DefaultHost is the default serve-mode host.
	DefaultHost = "localhost"

	// DefaultPort is the default serve-mode port.
	DefaultPort = 8075

	// DefaultGeneratorTimeout bounds one converter pass.
	DefaultGeneratorTimeout = "3m"
)

// Config represents the complete partkit.json configuration.
type Config struct {
	// Name is the project name.
	Name string `json:"name,omitempty"`

	// Mode is the storage mode, "project" or "system".
	Mode string `json:"mode,omitempty"`

	// Library contains library naming and placement settings.
	Library LibraryConfig `json:"library,omitempty"`

	// Generator contains artifact generator settings.
	Generator GeneratorConfig `json:"generator,omitempty"`

	// Serve contains local import service settings.
	Serve ServeConfig `json:"serve,omitempty"`

	// configPath stores the path where the config was loaded from.
	configPath string
}

// LibraryConfig contains library naming and placement settings.
type LibraryConfig struct {
	// Prefix is prepended to every generated library name.
	Prefix string `json:"prefix,omitempty"`

	// Folder is the library folder inside the project (project mode).
	Folder string `json:"folder,omitempty"`

	// ToolVersion is the KiCad version paths are resolved for.
	ToolVersion string `json:"toolVersion,omitempty"`

	// Namespace isolates partkit's libraries inside the shared
	// third-party tree (system mode).
	Namespace string `json:"namespace,omitempty"`
}

// GeneratorConfig contains artifact generator settings.
type GeneratorConfig struct {
	// Backend selects the generator, "exec" or "s3".
	Backend string `json:"backend,omitempty"`

	// Command is the converter executable (exec backend).
	Command string `json:"command,omitempty"`

	// Timeout bounds one converter pass, e.g. "3m" (exec backend).
	Timeout string `json:"timeout,omitempty"`

	// Bucket is the shared artifact cache bucket (s3 backend).
	Bucket string `json:"bucket,omitempty"`

	// Prefix is the key prefix inside the bucket (s3 backend).
	Prefix string `json:"prefix,omitempty"`
}

// ServeConfig contains local import service settings.
type ServeConfig struct {
	// Host is the host to bind to.
	Host string `json:"host,omitempty"`

	// Port is the port to listen on.
	Port int `json:"port,omitempty"`
}

// New creates a new Config with default values.
func New() *Config {
	return &Config{
		Mode: string(kipath.ModeProject),
		Library: LibraryConfig{
			Prefix:      DefaultPrefix,
			Folder:      kipath.DefaultLibFolder,
			ToolVersion: kipath.DefaultToolVersion,
			Namespace:   kipath.DefaultNamespace,
		},
		Generator: GeneratorConfig{
			Backend: "exec",
			Timeout: DefaultGeneratorTimeout,
		},
		Serve: ServeConfig{
			Host: DefaultHost,
			Port: DefaultPort,
		},
	}
}

// Load reads configuration from the specified directory.
// It looks for partkit.json in the directory.
func Load(dir string) (*Config, error) {
	configPath := filepath.Join(dir, ConfigFileName)
	return LoadFile(configPath)
}

// LoadFile reads configuration from the specified file path.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.New("PK100").
				WithDetail("No partkit.json found in " + filepath.Dir(path)).
				WithSuggestion("Run 'partkit init' to set up the project")
		}
		return nil, errors.New("PK080").Wrap(err)
	}

	cfg := New()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, errors.New("PK080").
			WithDetail("Failed to parse partkit.json: " + err.Error()).
			WithSuggestion("Check that partkit.json is valid JSON")
	}

	cfg.configPath = path
	cfg.applyDefaults()

	return cfg, nil
}

// Save writes the configuration to the file it was loaded from.
func (c *Config) Save() error {
	if c.configPath == "" {
		return errors.Newf(errors.CategoryConfig, "no config path set")
	}
	return c.SaveTo(c.configPath)
}

// SaveTo writes the configuration to the specified path.
func (c *Config) SaveTo(path string) error {
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return errors.New("PK080").Wrap(err)
	}

	// Add newline at end of file
	data = append(data, '\n')

	if err := os.WriteFile(path, data, 0644); err != nil {
		return errors.New("PK080").Wrap(err)
	}

	c.configPath = path
	return nil
}

// Path returns the path where the config was loaded from.
func (c *Config) Path() string {
	return c.configPath
}

// Dir returns the directory containing the config file.
func (c *Config) Dir() string {
	if c.configPath == "" {
		return ""
	}
	return filepath.Dir(c.configPath)
}

// applyDefaults fills in default values for empty fields.
func (c *Config) applyDefaults() {
	if c.Mode == "" {
		c.Mode = string(kipath.ModeProject)
	}

	if c.Library.Prefix == "" {
		c.Library.Prefix = DefaultPrefix
	}
	if c.Library.Folder == "" {
		c.Library.Folder = kipath.DefaultLibFolder
	}
	if c.Library.ToolVersion == "" {
		c.Library.ToolVersion = kipath.DefaultToolVersion
	}
	if c.Library.Namespace == "" {
		c.Library.Namespace = kipath.DefaultNamespace
	}

	if c.Generator.Backend == "" {
		c.Generator.Backend = "exec"
	}
	if c.Generator.Timeout == "" {
		c.Generator.Timeout = DefaultGeneratorTimeout
	}

	if c.Serve.Host == "" {
		c.Serve.Host = DefaultHost
	}
	if c.Serve.Port == 0 {
		c.Serve.Port = DefaultPort
	}
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if _, err := kipath.ParseStorageMode(c.Mode); err != nil {
		return errors.New("PK082").
			WithDetail("Mode is \"" + c.Mode + "\"").
			WithSuggestion("Use \"project\" or \"system\"")
	}

	prefix := strings.TrimSpace(c.Library.Prefix)
	if prefix == "" {
		return errors.New("PK083").
			WithDetail("library.prefix must not be empty")
	}
	if kipath.SafeName(prefix) != prefix {
		return errors.New("PK083").
			WithDetail("library.prefix may only contain letters, digits, '.', '_' and '-'")
	}

	if kipath.SafeName(c.Library.Folder) != c.Library.Folder {
		return errors.New("PK080").
			WithDetail("library.folder may only contain letters, digits, '.', '_' and '-'")
	}
	if kipath.SafeName(c.Library.Namespace) != c.Library.Namespace {
		return errors.New("PK080").
			WithDetail("library.namespace may only contain letters, digits, '.', '_' and '-'")
	}
	if _, err := kipath.MajorVersion(c.Library.ToolVersion); err != nil {
		return errors.New("PK003").
			WithDetail("library.toolVersion is \"" + c.Library.ToolVersion + "\"")
	}

	switch c.Generator.Backend {
	case "exec":
	case "s3":
		if c.Generator.Bucket == "" {
			return errors.New("PK081").
				WithDetail("generator.bucket is required for the s3 backend")
		}
	default:
		return errors.New("PK080").
			WithDetail("generator.backend is \"" + c.Generator.Backend + "\"").
			WithSuggestion("Use \"exec\" or \"s3\"")
	}
	if c.Generator.Timeout != "" {
		if _, err := time.ParseDuration(c.Generator.Timeout); err != nil {
			return errors.New("PK080").
				WithDetail("generator.timeout is not a duration: " + err.Error())
		}
	}

	if c.Serve.Port < 0 || c.Serve.Port > 65535 {
		return errors.New("PK120").
			WithDetail("Port must be between 0 and 65535")
	}
	return nil
}

// StorageMode returns the parsed storage mode.
func (c *Config) StorageMode() (kipath.StorageMode, error) {
	return kipath.ParseStorageMode(c.Mode)
}

// GeneratorTimeout returns the parsed generator timeout, falling back
// to the default when the field is empty or invalid.
func (c *Config) GeneratorTimeout() time.Duration {
	d, err := time.ParseDuration(c.Generator.Timeout)
	if err != nil || d <= 0 {
		d, _ = time.ParseDuration(DefaultGeneratorTimeout)
	}
	return d
}

// ServeAddress returns the address string for the import service.
func (c *Config) ServeAddress() string {
	return c.Serve.Host + ":" + itoa(c.Serve.Port)
}

// Exists checks if a config file exists in the given directory.
func Exists(dir string) bool {
	path := filepath.Join(dir, ConfigFileName)
	_, err := os.Stat(path)
	return err == nil
}

// FindProjectRoot walks up directories to find the project root.
// Returns the directory containing partkit.json, or an error if not found.
func FindProjectRoot(startDir string) (string, error) {
	dir, err := filepath.Abs(startDir)
	if err != nil {
		return "", err
	}

	for {
		if Exists(dir) {
			return dir, nil
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			return "", errors.New("PK100").
				WithDetail("No partkit.json found in " + startDir + " or any parent directory").
				WithSuggestion("Run 'partkit init' to set up the project")
		}
		dir = parent
	}
}

// LoadFromWorkingDir loads configuration from the current working directory.
func LoadFromWorkingDir() (*Config, error) {
	wd, err := os.Getwd()
	if err != nil {
		return nil, err
	}

	root, err := FindProjectRoot(wd)
	if err != nil {
		return nil, err
	}

	return Load(root)
}

// itoa converts int to string without importing strconv.
func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	if n < 0 {
		return "-" + itoa(-n)
	}
	digits := make([]byte, 0, 10)
	for n > 0 {
		digits = append(digits, byte('0'+n%10))
		n /= 10
	}
	// Reverse
	for i, j := 0, len(digits)-1; i < j; i, j = i+1, j-1 {
		digits[i], digits[j] = digits[j], digits[i]
	}
	return string(digits)
}
