package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/reloquent/catalogmap/internal/catalog"
)

const (
	CurrentVersion = 1
	DefaultPath    = "~/.catalogmap/catalogmap.yaml"
	DefaultLogDir  = "~/.catalogmap/logs/"
)

// ErrNoConfig is returned by Load when the config file does not exist.
var ErrNoConfig = errors.New("config file not found")

// Config is the top-level configuration.
type Config struct {
	Version        int               `yaml:"version"`
	DataSourceName string            `yaml:"data_source_name"`
	Source         SourceConfig      `yaml:"source"`
	Destination    DestinationConfig `yaml:"destination,omitempty"`
	TypeMapPath    string            `yaml:"type_map,omitempty"`
	Output         string            `yaml:"output,omitempty"` // file path or s3://bucket/key
	AWS            AWSConfig         `yaml:"aws,omitempty"`
	Logging        LogConfig         `yaml:"logging,omitempty"`
}

// SourceConfig defines the catalog source connection.
type SourceConfig struct {
	Type             string `yaml:"type"` // postgresql, sqlserver, oracle, mysql or mongodb
	Host             string `yaml:"host"`
	Port             int    `yaml:"port"`
	Database         string `yaml:"database"`
	Schema           string `yaml:"schema,omitempty"` // oracle: restrict to one owner
	Username         string `yaml:"username"`
	Password         string `yaml:"password"`
	SSL              bool   `yaml:"ssl,omitempty"`
	ConnectionString string `yaml:"connection_string,omitempty"` // mongodb; overrides host and port
	MaxConnections   int    `yaml:"max_connections,omitempty"`   // default 4, max 20
}

// DestinationConfig defines the SQL Server instance receiving the mapped
// tables. When Host is empty, KnownSchemas is used as the existing schema set.
type DestinationConfig struct {
	Host          string   `yaml:"host,omitempty"`
	Port          int      `yaml:"port,omitempty"`
	Database      string   `yaml:"database,omitempty"`
	Username      string   `yaml:"username,omitempty"`
	Password      string   `yaml:"password,omitempty"`
	DefaultSchema string   `yaml:"default_schema,omitempty"`
	KnownSchemas  []string `yaml:"known_schemas,omitempty"`
}

// AWSConfig defines the AWS settings used for S3 output.
type AWSConfig struct {
	Region  string `yaml:"region,omitempty"`
	Profile string `yaml:"profile,omitempty"`
}

// LogConfig defines logging settings.
type LogConfig struct {
	Level     string `yaml:"level,omitempty"`     // debug, info, warn, error
	Directory string `yaml:"directory,omitempty"` // default ~/.catalogmap/logs/
}

// Load reads and parses the config file from the given path.
func Load(path string) (*Config, error) {
	if path == "" {
		path = ExpandHome(DefaultPath)
	}

	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrNoConfig, path)
	}
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}

	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	if cfg.Version != CurrentVersion {
		return nil, fmt.Errorf("unsupported config version %d (expected %d)", cfg.Version, CurrentVersion)
	}

	if err := cfg.resolveSecrets(); err != nil {
		return nil, fmt.Errorf("resolving secrets: %w", err)
	}

	cfg.applyDefaults()
	return cfg, nil
}

// Save writes the config to the given path.
func (c *Config) Save(path string) error {
	if path == "" {
		path = ExpandHome(DefaultPath)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}

	return os.WriteFile(path, data, 0o600)
}

// Validate returns the problems that prevent browsing.
func (c *Config) Validate() []string {
	var problems []string
	if c.Source.Type == "" {
		problems = append(problems, "source.type is required")
	}
	if c.Source.Type == "mongodb" {
		if c.Source.ConnectionString == "" && c.Source.Host == "" {
			problems = append(problems, "source.connection_string or source.host is required")
		}
	} else if c.Source.Host == "" {
		problems = append(problems, "source.host is required")
	}
	if c.Source.Type == "oracle" && c.Source.Database == "" {
		problems = append(problems, "source.database (service name) is required for oracle")
	}
	if c.Destination.Host != "" && c.Destination.Database == "" {
		problems = append(problems, "destination.database is required when destination.host is set")
	}
	return problems
}

// Identity returns the browsing identity for this source.
func (c *Config) Identity() catalog.Identity {
	server := c.Source.Host
	if c.Source.Port != 0 && server != "" {
		server = fmt.Sprintf("%s:%d", server, c.Source.Port)
	}
	ds := c.DataSourceName
	if ds == "" {
		ds = c.Source.Type
	}
	return catalog.Identity{
		DataSourceName:     ds,
		SourceServerName:   server,
		SourceDatabaseName: c.Source.Database,
	}
}

// DefaultPort returns the conventional port for a source type.
func DefaultPort(dbType string) int {
	switch dbType {
	case "postgresql":
		return 5432
	case "sqlserver":
		return 1433
	case "oracle":
		return 1521
	case "mysql":
		return 3306
	case "mongodb":
		return 27017
	}
	return 0
}

func (c *Config) applyDefaults() {
	if c.Source.Port == 0 && c.Source.ConnectionString == "" {
		c.Source.Port = DefaultPort(c.Source.Type)
	}
	if c.Source.MaxConnections == 0 {
		c.Source.MaxConnections = 4
	}
	if c.Source.MaxConnections > 20 {
		c.Source.MaxConnections = 20
	}
	if c.Destination.Host != "" && c.Destination.Port == 0 {
		c.Destination.Port = DefaultPort("sqlserver")
	}
	if c.Destination.DefaultSchema == "" {
		c.Destination.DefaultSchema = "dbo"
	}
	if c.TypeMapPath != "" {
		c.TypeMapPath = ExpandHome(c.TypeMapPath)
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Directory == "" {
		c.Logging.Directory = ExpandHome(DefaultLogDir)
	}
}

var secretPattern = regexp.MustCompile(`\$\{(ENV|VAULT|AWS_SM):([^}]+)\}`)

func (c *Config) resolveSecrets() error {
	var err error
	c.Source.Password, err = ResolveValue(c.Source.Password)
	if err != nil {
		return fmt.Errorf("source password: %w", err)
	}
	c.Source.ConnectionString, err = ResolveValue(c.Source.ConnectionString)
	if err != nil {
		return fmt.Errorf("source connection string: %w", err)
	}
	c.Destination.Password, err = ResolveValue(c.Destination.Password)
	if err != nil {
		return fmt.Errorf("destination password: %w", err)
	}
	return nil
}

// ResolveValue resolves secret references in a string value.
func ResolveValue(val string) (string, error) {
	matches := secretPattern.FindStringSubmatch(val)
	if matches == nil {
		return val, nil
	}

	provider := matches[1]
	ref := matches[2]

	switch provider {
	case "ENV":
		v := os.Getenv(ref)
		if v == "" {
			return "", fmt.Errorf("environment variable %s not set", ref)
		}
		return v, nil
	case "VAULT":
		return resolveVault(ref)
	case "AWS_SM":
		return resolveAWSSecretsManager(ref)
	default:
		return "", fmt.Errorf("unknown secrets provider: %s", provider)
	}
}

// ExpandHome expands ~ to the user's home directory.
func ExpandHome(path string) string {
	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(home, path[2:])
	}
	return path
}
