package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// PathEnv names the environment variable holding the config file path.
const PathEnv = "CONFIG_PATH"

type Config struct {
	Server struct {
		Port           int               `yaml:"port"`
		AllowedOrigins []string          `yaml:"allowedOrigins"`
		APIKeys        map[string]string `yaml:"apiKeys"`
		RateLimit      struct {
			Capacity   int `yaml:"capacity"`
			RefillRate int `yaml:"refillRate"`
		} `yaml:"rateLimit"`
		ShutdownTimeout time.Duration `yaml:"shutdownTimeout"`
	} `yaml:"server"`

	Database struct {
		Driver   string `yaml:"driver"` // mysql | postgres | memory
		Host     string `yaml:"host"`
		Port     int    `yaml:"port"`
		User     string `yaml:"user"`
		Password string `yaml:"password"`
		Name     string `yaml:"name"`
		SSLMode  string `yaml:"sslMode"`
	} `yaml:"database"`

	Minio struct {
		Enabled    bool   `yaml:"enabled"`
		Endpoint   string `yaml:"endpoint"`
		AccessKey  string `yaml:"accessKey"`
		SecretKey  string `yaml:"secretKey"`
		BucketName string `yaml:"bucketName"`
		Region     string `yaml:"region"`
		UseSSL     bool   `yaml:"useSSL"`
	} `yaml:"minio"`

	Scanning struct {
		CloneDir        string     `yaml:"cloneDir"`
		Workers         int64      `yaml:"workers"`
		InsecureSkipTLS bool       `yaml:"insecureSkipTLS"`
		Languages       []Language `yaml:"languages"`
	} `yaml:"scanning"`

	Resolver struct {
		DepsDevAddress string `yaml:"depsDevAddress"`
		Disabled       bool   `yaml:"disabled"`
	} `yaml:"resolver"`

	OpenAI struct {
		APIKey string `yaml:"apiKey"`
		Model  string `yaml:"model"`
	} `yaml:"openai"`

	Logging struct {
		Level string `yaml:"level"`
		JSON  bool   `yaml:"json"`
	} `yaml:"logging"`
}

// Language configures the indexer and the external scanner of one language.
type Language struct {
	Name       string        `yaml:"name"`
	Command    []string      `yaml:"command"`
	BuildFiles []string      `yaml:"buildFiles"`
	Extensions []string      `yaml:"extensions"`
	Timeout    time.Duration `yaml:"timeout"`
}

// Load baca file config.yaml
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Parse(data)
}

// LoadFromEnv reads the file named by CONFIG_PATH, or config.yaml. A missing
// default file yields the defaults.
func LoadFromEnv() (*Config, error) {
	path := os.Getenv(PathEnv)
	if path == "" {
		if _, err := os.Stat("config.yaml"); os.IsNotExist(err) {
			return Parse(nil)
		}
		path = "config.yaml"
	}
	return Load(path)
}

func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Server.Port == 0 {
		c.Server.Port = 8081
	}
	if len(c.Server.AllowedOrigins) == 0 {
		c.Server.AllowedOrigins = []string{"*"}
	}
	if c.Server.RateLimit.Capacity == 0 {
		c.Server.RateLimit.Capacity = 100
	}
	if c.Server.RateLimit.RefillRate == 0 {
		c.Server.RateLimit.RefillRate = 10
	}
	if c.Server.ShutdownTimeout == 0 {
		c.Server.ShutdownTimeout = 30 * time.Second
	}
	if c.Database.Driver == "" {
		c.Database.Driver = "memory"
	}
	if c.Database.Port == 0 {
		switch c.Database.Driver {
		case "mysql":
			c.Database.Port = 3306
		case "postgres":
			c.Database.Port = 5432
		}
	}
	if c.Database.SSLMode == "" {
		c.Database.SSLMode = "disable"
	}
	if c.Minio.BucketName == "" {
		c.Minio.BucketName = "cbomkit"
	}
	if c.Scanning.CloneDir == "" {
		c.Scanning.CloneDir = filepath.Join(os.TempDir(), "cbomkit")
	}
	if c.Scanning.Workers == 0 {
		c.Scanning.Workers = 64
	}
	if len(c.Scanning.Languages) == 0 {
		c.Scanning.Languages = DefaultLanguages()
	}
	for i := range c.Scanning.Languages {
		if c.Scanning.Languages[i].Timeout == 0 {
			c.Scanning.Languages[i].Timeout = 30 * time.Minute
		}
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
}

// DefaultLanguages indexes java and python. The scanner commands are left
// empty; a language without a command is skipped at startup.
func DefaultLanguages() []Language {
	return []Language{
		{
			Name:       "java",
			BuildFiles: []string{"pom.xml", "build.gradle", "build.gradle.kts"},
			Extensions: []string{"java"},
		},
		{
			Name:       "python",
			BuildFiles: []string{"pyproject.toml", "setup.py", "setup.cfg", "requirements.txt"},
			Extensions: []string{"py"},
		},
	}
}

func (c *Config) Validate() error {
	switch c.Database.Driver {
	case "mysql", "postgres", "memory":
	default:
		return fmt.Errorf("config: unknown database driver %q", c.Database.Driver)
	}
	if c.Minio.Enabled && c.Minio.Endpoint == "" {
		return fmt.Errorf("config: minio.endpoint required when minio is enabled")
	}
	seen := map[string]bool{}
	for _, l := range c.Scanning.Languages {
		if l.Name == "" {
			return fmt.Errorf("config: scanning language without name")
		}
		if seen[l.Name] {
			return fmt.Errorf("config: language %q configured twice", l.Name)
		}
		seen[l.Name] = true
	}
	return nil
}

// Helper untuk build DSN MySQL
func (c *Config) MySQLDSN() string {
	return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?parseTime=true&charset=utf8mb4&loc=UTC",
		c.Database.User,
		c.Database.Password,
		c.Database.Host,
		c.Database.Port,
		c.Database.Name,
	)
}

// PostgresDSN builds a lib/pq connection string.
func (c *Config) PostgresDSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Database.Host,
		c.Database.Port,
		c.Database.User,
		c.Database.Password,
		c.Database.Name,
		c.Database.SSLMode,
	)
}
