package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/13rac1/bucketsync/internal/discover"
	"github.com/13rac1/bucketsync/internal/types"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	defaultLocalDir    = "."
	defaultRegion      = "us-east-1"
	defaultConcurrency = 4
	defaultMcPath      = "mc"
	defaultMcAlias     = "bucketsync"
	defaultMcAttempts  = 3
)

// DefaultInclude matches every file below the local directory.
var DefaultInclude = []string{"**/*"}

// Environment variables that override credentials from the config file.
const (
	EnvAccessKey    = "BUCKETSYNC_ACCESS_KEY"
	EnvSecretKey    = "BUCKETSYNC_SECRET_KEY"
	EnvSessionToken = "BUCKETSYNC_SESSION_TOKEN"
)

// Load reads and validates configuration from the specified path.
// Tilde (~) in paths is expanded to the user's home directory.
// A .env file in the working directory is loaded first so its values can
// override credentials.
func Load(path string) (*types.Config, error) {
	expandedPath, err := expandTilde(path)
	if err != nil {
		return nil, fmt.Errorf("expanding config path: %w", err)
	}

	data, err := os.ReadFile(expandedPath)
	if err != nil {
		return nil, fmt.Errorf("reading config file %s: %w", expandedPath, err)
	}

	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("loading .env: %w", err)
	}

	return Parse(data)
}

// Parse decodes YAML configuration, applies defaults and environment
// overrides, and validates the result. It performs no filesystem I/O other
// than resolving the local directory to an absolute path.
func Parse(data []byte) (*types.Config, error) {
	var cfg types.Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config YAML: %w", err)
	}

	applyEnv(&cfg)

	if err := applyDefaults(&cfg); err != nil {
		return nil, fmt.Errorf("applying defaults: %w", err)
	}

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}

// applyEnv lets environment variables replace credentials from the file.
func applyEnv(cfg *types.Config) {
	if v := os.Getenv(EnvAccessKey); v != "" {
		cfg.Auth.AccessKeyID = v
	}
	if v := os.Getenv(EnvSecretKey); v != "" {
		cfg.Auth.SecretAccessKey = v
	}
	if v := os.Getenv(EnvSessionToken); v != "" {
		cfg.Auth.SessionToken = v
	}
}

// applyDefaults sets default values for optional config fields and
// normalizes the ones the engine relies on.
func applyDefaults(cfg *types.Config) error {
	if cfg.Local.Dir == "" {
		cfg.Local.Dir = defaultLocalDir
	}

	expandedDir, err := expandTilde(cfg.Local.Dir)
	if err != nil {
		return fmt.Errorf("expanding local.dir: %w", err)
	}
	absDir, err := filepath.Abs(expandedDir)
	if err != nil {
		return fmt.Errorf("resolving local.dir: %w", err)
	}
	cfg.Local.Dir = absDir

	if cfg.Local.Include == nil {
		cfg.Local.Include = append([]string(nil), DefaultInclude...)
	}

	// Ensure prefix has trailing slash for consistent key building
	if cfg.S3.Prefix != "" && !strings.HasSuffix(cfg.S3.Prefix, "/") {
		cfg.S3.Prefix = cfg.S3.Prefix + "/"
	}

	if cfg.S3.Region == "" {
		cfg.S3.Region = defaultRegion
	}
	if cfg.S3.Backend == "" {
		cfg.S3.Backend = types.BackendS3
	}

	if cfg.Sync.Strategy == "" {
		cfg.Sync.Strategy = types.StrategyEngine
	}
	if cfg.Sync.Fingerprint == "" {
		cfg.Sync.Fingerprint = types.FingerprintSize
	}
	// Zero means unset; anything below one is floored.
	if cfg.Sync.Concurrency == 0 {
		cfg.Sync.Concurrency = defaultConcurrency
	}
	if cfg.Sync.Concurrency < 1 {
		cfg.Sync.Concurrency = 1
	}

	if cfg.Mc.Path == "" {
		cfg.Mc.Path = defaultMcPath
	}
	if cfg.Mc.Alias == "" {
		cfg.Mc.Alias = defaultMcAlias
	}
	if cfg.Mc.Attempts < 1 {
		cfg.Mc.Attempts = defaultMcAttempts
	}

	return nil
}

// validate ensures required config fields are present and valid.
func validate(cfg *types.Config) error {
	if cfg.S3.Bucket == "" {
		return fmt.Errorf("s3.bucket is required")
	}

	switch cfg.S3.Backend {
	case types.BackendS3:
	case types.BackendMinio:
		if cfg.S3.Endpoint == "" {
			return fmt.Errorf("s3.endpoint is required for the minio backend")
		}
	default:
		return fmt.Errorf("unknown s3.backend %q (want %q or %q)", cfg.S3.Backend, types.BackendS3, types.BackendMinio)
	}

	switch cfg.Sync.Strategy {
	case types.StrategyEngine:
	case types.StrategyMc:
		if cfg.S3.Endpoint == "" {
			return fmt.Errorf("s3.endpoint is required for the mc strategy")
		}
	default:
		return fmt.Errorf("unknown sync.strategy %q (want %q or %q)", cfg.Sync.Strategy, types.StrategyEngine, types.StrategyMc)
	}

	switch cfg.Sync.Fingerprint {
	case types.FingerprintSize, types.FingerprintETag:
	default:
		return fmt.Errorf("unknown sync.fingerprint %q (want %q or %q)", cfg.Sync.Fingerprint, types.FingerprintSize, types.FingerprintETag)
	}

	if _, err := discover.NewMatcher(cfg.Local.Include, cfg.Local.Exclude); err != nil {
		return fmt.Errorf("local globs: %w", err)
	}

	return nil
}

// expandTilde replaces ~ at the start of a path with the user's home directory.
func expandTilde(path string) (string, error) {
	if !strings.HasPrefix(path, "~") {
		return path, nil
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("getting home directory: %w", err)
	}

	if path == "~" {
		return homeDir, nil
	}

	if strings.HasPrefix(path, "~/") {
		return filepath.Join(homeDir, path[2:]), nil
	}

	return path, nil
}

const starterConfig = `# bucketsync configuration

local:
  # Directory to synchronize.
  dir: ~/bucketsync
  include:
    - "**/*"
  exclude: []

s3:
  endpoint: 127.0.0.1:9000
  secure: false
  region: us-east-1
  bucket: YOUR-BUCKET-NAME
  prefix: ""
  # s3 (aws-sdk-go-v2) or minio (minio-go)
  backend: s3

auth:
  access_key_id: ""
  secret_access_key: ""

sync:
  # engine (built-in index diff) or mc (external mc mirror)
  strategy: engine
  concurrency: 4
  # size or etag
  fingerprint: size
  delete_extraneous: false
`

// CreateStarterConfig writes a commented starter configuration to path,
// creating parent directories as needed. It refuses to overwrite a file.
func CreateStarterConfig(path string) error {
	expandedPath, err := expandTilde(path)
	if err != nil {
		return fmt.Errorf("expanding config path: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(expandedPath), 0o755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	f, err := os.OpenFile(expandedPath, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o600)
	if err != nil {
		return fmt.Errorf("creating config file: %w", err)
	}
	if _, err := f.WriteString(starterConfig); err != nil {
		_ = f.Close()
		return fmt.Errorf("writing config file: %w", err)
	}
	return f.Close()
}
