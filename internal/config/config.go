// Package config loads service settings from the environment, optionally
// seeded from a .env file.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"strings"
	"time"

	env "github.com/Netflix/go-env"
	"github.com/joho/godotenv"

	"github.com/mtiwari1/scanvault/internal/identity"
	"github.com/mtiwari1/scanvault/internal/repository"
)

// Config holds every tunable of the service.
type Config struct {
	HTTPAddr string `env:"HTTP_ADDR,default=:8080"`
	GRPCAddr string `env:"GRPC_ADDR,default=:50051"`

	DBDriver string `env:"DB_DRIVER,default=mysql"`
	DBDSN    string `env:"DB_DSN,default=root:password@tcp(127.0.0.1:3306)/scanvault"`

	UploadDir      string `env:"UPLOAD_DIR,default=./uploads"`
	MaxUploadBytes int64  `env:"MAX_UPLOAD_BYTES,default=2147483648"`
	DeniedExt      string `env:"DENIED_EXTENSIONS,default=.exe"`

	ScanWorkers   int    `env:"SCAN_WORKERS,default=5"`
	ClamscanBin   string `env:"CLAMSCAN_BIN,default=clamscan"`
	ScanTimeoutS  string `env:"SCAN_TIMEOUT,default=2m"`
	ExportLimit   int    `env:"EXPORT_LIMIT,default=10000"`
	ShutdownWaitS string `env:"SHUTDOWN_TIMEOUT,default=10s"`

	IdentityHeader  string `env:"IDENTITY_HEADER,default=X-Caller-ID"`
	AnonymousPolicy string `env:"ANONYMOUS_POLICY,default=shared"`
	ScopeToOwner    bool   `env:"SCOPE_TO_OWNER,default=false"`

	LogLevelS string `env:"LOG_LEVEL,default=info"`

	// Derived by Validate.
	Dialect         repository.Dialect
	ScanTimeout     time.Duration
	ShutdownTimeout time.Duration
	Policy          identity.Policy
	LogLevel        slog.Level
}

// Load reads an optional .env file and then the process environment.
// Variables already set in the environment win over the file.
func Load(envFile string) (*Config, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("load %s: %w", envFile, err)
		}
	}
	cfg := &Config{}
	if _, err := env.UnmarshalFromEnviron(cfg); err != nil {
		return nil, fmt.Errorf("read environment: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// FromMap builds a config from explicit key/value pairs, defaults applied.
func FromMap(vars map[string]string) (*Config, error) {
	cfg := &Config{}
	if err := env.Unmarshal(env.EnvSet(vars), cfg); err != nil {
		return nil, fmt.Errorf("read environment: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks values and fills the derived fields.
func (c *Config) Validate() error {
	var err error

	switch d := repository.Dialect(strings.ToLower(c.DBDriver)); d {
	case repository.MySQL, repository.SQLite:
		c.Dialect = d
	default:
		return fmt.Errorf("DB_DRIVER: unsupported driver %q (want mysql or sqlite)", c.DBDriver)
	}
	if strings.TrimSpace(c.DBDSN) == "" {
		return errors.New("DB_DSN: must not be empty")
	}
	if strings.TrimSpace(c.UploadDir) == "" {
		return errors.New("UPLOAD_DIR: must not be empty")
	}
	if c.MaxUploadBytes <= 0 {
		return fmt.Errorf("MAX_UPLOAD_BYTES: must be positive, got %d", c.MaxUploadBytes)
	}
	if c.ScanWorkers < 1 {
		return fmt.Errorf("SCAN_WORKERS: must be at least 1, got %d", c.ScanWorkers)
	}
	if c.ExportLimit < 1 {
		return fmt.Errorf("EXPORT_LIMIT: must be at least 1, got %d", c.ExportLimit)
	}
	if c.ScanTimeout, err = positiveDuration("SCAN_TIMEOUT", c.ScanTimeoutS); err != nil {
		return err
	}
	if c.ShutdownTimeout, err = positiveDuration("SHUTDOWN_TIMEOUT", c.ShutdownWaitS); err != nil {
		return err
	}
	if c.Policy, err = identity.ParsePolicy(c.AnonymousPolicy); err != nil {
		return fmt.Errorf("ANONYMOUS_POLICY: %w", err)
	}
	if strings.TrimSpace(c.IdentityHeader) == "" {
		return errors.New("IDENTITY_HEADER: must not be empty")
	}
	if err := c.LogLevel.UnmarshalText([]byte(c.LogLevelS)); err != nil {
		return fmt.Errorf("LOG_LEVEL: %w", err)
	}
	return nil
}

// DeniedExtensions splits DENIED_EXTENSIONS on commas.
func (c *Config) DeniedExtensions() []string {
	var out []string
	for _, ext := range strings.Split(c.DeniedExt, ",") {
		if ext = strings.TrimSpace(ext); ext != "" {
			out = append(out, ext)
		}
	}
	return out
}

func positiveDuration(key, raw string) (time.Duration, error) {
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("%s: must be positive, got %s", key, raw)
	}
	return d, nil
}
