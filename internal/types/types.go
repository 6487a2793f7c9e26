// Package types defines the core data structures used throughout bucketsync.
// This includes configuration structs, sync directions, and run summaries.
package types

import "time"

// Config represents the complete configuration for bucketsync.
type Config struct {
	Local LocalConfig `yaml:"local"`
	S3    S3Config    `yaml:"s3"`
	Auth  AuthConfig  `yaml:"auth"`
	Sync  SyncConfig  `yaml:"sync"`
	Mc    McConfig    `yaml:"mc"`
}

// LocalConfig holds local filesystem settings.
type LocalConfig struct {
	Dir     string   `yaml:"dir"`
	Include []string `yaml:"include"`
	Exclude []string `yaml:"exclude"`
}

// S3Config holds S3-compatible storage settings.
type S3Config struct {
	Endpoint       string `yaml:"endpoint"`
	Secure         bool   `yaml:"secure"`
	Region         string `yaml:"region"`
	Bucket         string `yaml:"bucket"`
	Prefix         string `yaml:"prefix"`
	ForcePathStyle *bool  `yaml:"force_path_style"`
	Backend        string `yaml:"backend"`
	CreateBucket   *bool  `yaml:"create_bucket"`
}

// AuthConfig holds authentication credentials.
type AuthConfig struct {
	Profile         string `yaml:"profile"`
	AccessKeyID     string `yaml:"access_key_id"`
	SecretAccessKey string `yaml:"secret_access_key"`
	SessionToken    string `yaml:"session_token"`
}

// SyncConfig holds settings for the synchronization engine.
type SyncConfig struct {
	Strategy         string          `yaml:"strategy"`
	Concurrency      int             `yaml:"concurrency"`
	Fingerprint      FingerprintMode `yaml:"fingerprint"`
	DeleteExtraneous bool            `yaml:"delete_extraneous"`
}

// McConfig holds settings for the mc mirror strategy.
type McConfig struct {
	Path     string `yaml:"path"`
	Alias    string `yaml:"alias"`
	Attempts int    `yaml:"attempts"`
}

// PathStyle reports whether path-style bucket addressing is enabled.
func (c S3Config) PathStyle() bool {
	return c.ForcePathStyle == nil || *c.ForcePathStyle
}

// EnsureBucket reports whether an upload run should create a missing bucket.
func (c S3Config) EnsureBucket() bool {
	return c.CreateBucket == nil || *c.CreateBucket
}

// Backends and strategies accepted in configuration.
const (
	BackendS3    = "s3"
	BackendMinio = "minio"

	StrategyEngine = "engine"
	StrategyMc     = "mc"
)

// FingerprintMode selects how an item is compared against its counterpart.
type FingerprintMode string

const (
	// FingerprintSize compares only sizes.
	FingerprintSize FingerprintMode = "size"
	// FingerprintETag compares a local MD5 against the remote ETag.
	FingerprintETag FingerprintMode = "etag"
)

// Direction is the direction of a sync run.
type Direction string

const (
	Up   Direction = "up"
	Down Direction = "down"
)

// Valid reports whether d is a known direction.
func (d Direction) Valid() bool {
	return d == Up || d == Down
}

// Summary holds the counts reported at the end of a sync run.
type Summary struct {
	Direction   Direction     `json:"direction"`
	Transferred int           `json:"transferred"`
	Skipped     int           `json:"skipped"`
	Deleted     int           `json:"deleted"`
	Failed      int           `json:"failed"`
	Bytes       int64         `json:"bytes"`
	Duration    time.Duration `json:"durationNs"`
}
