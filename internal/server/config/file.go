package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/dinicsek/LovassyApp/internal/timex"
	"gopkg.in/yaml.v3"
)

// fileConfig mirrors Config for JSON and YAML files. It is seeded from the
// current Config so keys missing from the file keep their value.
type fileConfig struct {
	EndpointAddrGRPC             string         `json:"endpoint_addr_grpc" yaml:"endpoint_addr_grpc"`
	DatabaseDSN                  string         `json:"database_dsn" yaml:"database_dsn"`
	SecretKey                    string         `json:"secret_key" yaml:"secret_key"`
	RefreshTokenValidityDuration timex.Duration `json:"refresh_token_validity_duration" yaml:"refresh_token_validity_duration"`
	SessionExpiry                timex.Duration `json:"session_expiry" yaml:"session_expiry"`
	ImportLockTTL                timex.Duration `json:"import_lock_ttl" yaml:"import_lock_ttl"`
	PasswordIterations           int            `json:"password_iterations" yaml:"password_iterations"`
	PasswordSaltLength           int            `json:"password_salt_length" yaml:"password_salt_length"`
	PasswordBytesRequested       int            `json:"password_bytes_requested" yaml:"password_bytes_requested"`
	ResetKeyPassword             string         `json:"reset_key_password" yaml:"reset_key_password"`
	S3RootUser                   string         `json:"s3_root_user" yaml:"s3_root_user"`
	S3RootPassword               string         `json:"s3_root_password" yaml:"s3_root_password"`
	S3Bucket                     string         `json:"s3_bucket" yaml:"s3_bucket"`
	S3Region                     string         `json:"s3_region" yaml:"s3_region"`
	S3BaseEndpoint               string         `json:"s3_base_endpoint" yaml:"s3_base_endpoint"`
	CacheBackend                 string         `json:"cache_backend" yaml:"cache_backend"`
	NATSURL                      string         `json:"nats_url" yaml:"nats_url"`
	NATSBucket                   string         `json:"nats_bucket" yaml:"nats_bucket"`
	ImportWorkers                int            `json:"import_workers" yaml:"import_workers"`
	ImportQueueSize              int            `json:"import_queue_size" yaml:"import_queue_size"`
	LogFormat                    string         `json:"log_format" yaml:"log_format"`
	LogLevel                     string         `json:"log_level" yaml:"log_level"`
}

func fromConfig(c *Config) *fileConfig {
	return &fileConfig{
		EndpointAddrGRPC:             c.EndpointAddrGRPC,
		DatabaseDSN:                  c.DatabaseDSN,
		SecretKey:                    c.SecretKey,
		RefreshTokenValidityDuration: timex.Duration{Duration: c.RefreshTokenValidityDuration},
		SessionExpiry:                timex.Duration{Duration: c.SessionExpiry},
		ImportLockTTL:                timex.Duration{Duration: c.ImportLockTTL},
		PasswordIterations:           c.PasswordIterations,
		PasswordSaltLength:           c.PasswordSaltLength,
		PasswordBytesRequested:       c.PasswordBytesRequested,
		ResetKeyPassword:             c.ResetKeyPassword,
		S3RootUser:                   c.S3RootUser,
		S3RootPassword:               c.S3RootPassword,
		S3Bucket:                     c.S3Bucket,
		S3Region:                     c.S3Region,
		S3BaseEndpoint:               c.S3BaseEndpoint,
		CacheBackend:                 c.CacheBackend,
		NATSURL:                      c.NATSURL,
		NATSBucket:                   c.NATSBucket,
		ImportWorkers:                c.ImportWorkers,
		ImportQueueSize:              c.ImportQueueSize,
		LogFormat:                    c.LogFormat,
		LogLevel:                     c.LogLevel,
	}
}

func (f *fileConfig) apply(c *Config) {
	c.EndpointAddrGRPC = f.EndpointAddrGRPC
	c.DatabaseDSN = f.DatabaseDSN
	c.SecretKey = f.SecretKey
	c.RefreshTokenValidityDuration = f.RefreshTokenValidityDuration.Duration
	c.SessionExpiry = f.SessionExpiry.Duration
	c.ImportLockTTL = f.ImportLockTTL.Duration
	c.PasswordIterations = f.PasswordIterations
	c.PasswordSaltLength = f.PasswordSaltLength
	c.PasswordBytesRequested = f.PasswordBytesRequested
	c.ResetKeyPassword = f.ResetKeyPassword
	c.S3RootUser = f.S3RootUser
	c.S3RootPassword = f.S3RootPassword
	c.S3Bucket = f.S3Bucket
	c.S3Region = f.S3Region
	c.S3BaseEndpoint = f.S3BaseEndpoint
	c.CacheBackend = f.CacheBackend
	c.NATSURL = f.NATSURL
	c.NATSBucket = f.NATSBucket
	c.ImportWorkers = f.ImportWorkers
	c.ImportQueueSize = f.ImportQueueSize
	c.LogFormat = f.LogFormat
	c.LogLevel = f.LogLevel
}

// parseFile overlays the file at path. Files ending in .yaml or .yml are read
// as YAML, everything else as JSON.
func parseFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	fc := fromConfig(cfg)
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, fc)
	default:
		err = json.Unmarshal(data, fc)
	}
	if err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}

	fc.apply(cfg)
	return nil
}
