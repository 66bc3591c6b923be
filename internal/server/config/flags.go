package config

import (
	"flag"
	"io"
	"time"

	"github.com/dinicsek/LovassyApp/internal/flagx"
)

var serverFlags = []string{
	"-a", "-d", "-s", "-r", "-u", "-p", "-b", "-g", "-e",
	"-session-expiry", "-import-lock-ttl", "-reset-key-password",
	"-cache", "-nats-url", "-log-format",
}

// parseFlags overlays command-line flags.
//
//	-a string   gRPC bind address (e.g. ":50051")
//	-d string   PostgreSQL DSN
//	-s string   JWT HMAC secret key
//	-r int      refresh token validity, minutes
//	-u -p -b -g -e  S3 user, password, bucket, region, endpoint
//
// The longer flags take durations ("15m") or plain strings.
func parseFlags(config *Config, args []string) error {
	fs := flag.NewFlagSet("server", flag.ContinueOnError)
	fs.SetOutput(io.Discard)

	fs.StringVar(&config.EndpointAddrGRPC, "a", config.EndpointAddrGRPC, "address and port to run server")
	fs.StringVar(&config.DatabaseDSN, "d", config.DatabaseDSN, "database DSN")
	fs.StringVar(&config.SecretKey, "s", config.SecretKey, "secret key")

	refreshMinutes := fs.Int("r", int(config.RefreshTokenValidityDuration.Minutes()), "refresh token validity (in minutes)")

	fs.StringVar(&config.S3RootUser, "u", config.S3RootUser, "S3 root user")
	fs.StringVar(&config.S3RootPassword, "p", config.S3RootPassword, "S3 root password")
	fs.StringVar(&config.S3Bucket, "b", config.S3Bucket, "S3 bucket")
	fs.StringVar(&config.S3Region, "g", config.S3Region, "S3 region")
	fs.StringVar(&config.S3BaseEndpoint, "e", config.S3BaseEndpoint, "S3 base endpoint")

	fs.DurationVar(&config.SessionExpiry, "session-expiry", config.SessionExpiry, "session lifetime after last write")
	fs.DurationVar(&config.ImportLockTTL, "import-lock-ttl", config.ImportLockTTL, "import lock lifetime")
	fs.StringVar(&config.ResetKeyPassword, "reset-key-password", config.ResetKeyPassword, "operator reset key password")
	fs.StringVar(&config.CacheBackend, "cache", config.CacheBackend, "cache backend (memory or nats)")
	fs.StringVar(&config.NATSURL, "nats-url", config.NATSURL, "NATS server url")
	fs.StringVar(&config.LogFormat, "log-format", config.LogFormat, "log format (json or zerolog)")

	if err := fs.Parse(flagx.FilterArgs(args, serverFlags)); err != nil {
		return err
	}

	config.RefreshTokenValidityDuration = time.Duration(*refreshMinutes) * time.Minute
	return nil
}
