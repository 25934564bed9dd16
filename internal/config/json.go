package config

import (
	"encoding/json"
	"os"

	"github.com/dkravets/notelock/internal/flagx"
)

// JsonConfig is a DTO used exclusively for JSON unmarshalling; zero values
// mean "keep the current setting".
type JsonConfig struct {
	DatabaseDSN    string `json:"database_dsn"`
	MirrorPath     string `json:"mirror_path"`
	AuthSecret     string `json:"auth_secret"`
	DemoUser       string `json:"demo_user"`
	KDFIterations  int    `json:"kdf_iterations"`
	BackupKeep     int    `json:"backup_keep"`
	S3Region       string `json:"s3_region"`
	S3Endpoint     string `json:"s3_endpoint"`
	S3AccessKey    string `json:"s3_access_key"`
	S3SecretKey    string `json:"s3_secret_key"`
	S3BucketPrefix string `json:"s3_bucket_prefix"`
}

// parseJson overlays Config with values loaded from the JSON file named by
// the -c/-config flags; no file means no overlay. Intended usage is:
// defaults -> parseJson -> parseFlags, later stages override earlier ones.
func parseJson(cfg *Config) {
	jsonConfigFile := flagx.JsonConfigFlags()
	if jsonConfigFile == "" {
		return
	}

	var jc JsonConfig

	data, err := os.ReadFile(jsonConfigFile)
	if err != nil {
		panic(err)
	}
	if err := json.Unmarshal(data, &jc); err != nil {
		panic(err)
	}

	if jc.DatabaseDSN != "" {
		cfg.DatabaseDSN = jc.DatabaseDSN
	}
	if jc.MirrorPath != "" {
		cfg.MirrorPath = jc.MirrorPath
	}
	if jc.AuthSecret != "" {
		cfg.AuthSecret = jc.AuthSecret
	}
	if jc.DemoUser != "" {
		cfg.DemoUser = jc.DemoUser
	}
	if jc.KDFIterations > 0 {
		cfg.KDFIterations = jc.KDFIterations
	}
	if jc.BackupKeep > 0 {
		cfg.BackupKeep = jc.BackupKeep
	}
	if jc.S3Region != "" {
		cfg.S3Region = jc.S3Region
	}
	if jc.S3Endpoint != "" {
		cfg.S3Endpoint = jc.S3Endpoint
	}
	if jc.S3AccessKey != "" {
		cfg.S3AccessKey = jc.S3AccessKey
	}
	if jc.S3SecretKey != "" {
		cfg.S3SecretKey = jc.S3SecretKey
	}
	if jc.S3BucketPrefix != "" {
		cfg.S3BucketPrefix = jc.S3BucketPrefix
	}
}
