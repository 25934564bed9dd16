// Package config holds runtime settings for the notelock CLI. Values are
// layered: defaults, then an optional JSON file, then command-line flags,
// with later sources taking precedence.
package config

// Config holds runtime settings.
//
// DatabaseDSN selects the remote store: a Postgres DSN, or empty for the
// in-memory demo backend. MirrorPath is the local sqlite mirror file.
// AuthSecret verifies bearer tokens from the session provider; DemoUser,
// when set, self-issues a token for that user (demo/dev only).
type Config struct {
	DatabaseDSN string
	MirrorPath  string

	AuthSecret string
	DemoUser   string

	KDFIterations int
	BackupKeep    int

	S3Region       string
	S3Endpoint     string
	S3AccessKey    string
	S3SecretKey    string
	S3BucketPrefix string
}

// LoadDefaults populates c with sensible defaults.
func (c *Config) LoadDefaults() {
	c.MirrorPath = "notelock-mirror.db"
	c.BackupKeep = 10
}

// LoadConfig constructs a Config, applies defaults, then overlays values
// from JSON (if present) and command-line flags (if present).
func LoadConfig() *Config {
	cfg := &Config{}
	cfg.LoadDefaults()
	parseJson(cfg)
	parseFlags(cfg)
	return cfg
}
