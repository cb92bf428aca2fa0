// Copyright 2020 Google LLC
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     https://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package config holds the process-wide immutable configuration loaded
// once at startup and passed by value to every component that needs it
// (spec Design Notes: "global configuration singleton" replaced by
// pass-by-value).
package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
)

// StorageBackend tags which concrete pkg/storage implementation to wire
// up at startup.
type StorageBackend string

const (
	StorageLocal StorageBackend = "local"
	StorageS3    StorageBackend = "s3"
	StorageMinio StorageBackend = "minio"
)

// PlanLimit is one subscription plan's monthly conversion count (-1
// means unlimited) and upload byte budget; Config.PlanLimits maps plan
// tags to it.
type PlanLimit struct {
	ConversionsPerMonth int
	MaxUploadBytes      int64
}

// Config is the full environment-driven configuration surface named in
// spec.md §6. It is loaded once in main() and passed down; nothing below
// main reads the environment directly.
type Config struct {
	DatabaseURL string

	StorageBackend    StorageBackend
	LocalUploadDir    string
	LocalOutputDir    string
	S3Bucket          string
	S3Region          string
	S3Endpoint        string
	S3AccessKeyID     string
	S3SecretAccessKey string
	S3ForcePathStyle  bool

	BrokerURL        string
	ConversionQueue  string
	MaintenanceQueue string

	ConversionSoftTimeout time.Duration
	ConversionHardTimeout time.Duration
	WorkerCount           int
	MaxRetries            int
	RetryBackoff          time.Duration

	ArtifactTTL time.Duration

	AllowedOrigins []string

	PlanLimits map[string]PlanLimit

	LogLevel  string
	LogFormat string

	MetricsAddr string
}

const mib = 1 << 20
const gib = 1 << 30

// defaultPlanLimits mirrors the original's PLAN_LIMITS table.
func defaultPlanLimits() map[string]PlanLimit {
	return map[string]PlanLimit{
		"free":       {ConversionsPerMonth: 5, MaxUploadBytes: 100 * mib},
		"starter":    {ConversionsPerMonth: 50, MaxUploadBytes: 100 * mib},
		"pro":        {ConversionsPerMonth: 500, MaxUploadBytes: 2 * gib},
		"enterprise": {ConversionsPerMonth: -1, MaxUploadBytes: 20 * gib},
	}
}

// Load reads the configuration from the environment and validates it. It
// is the single validation pass the teacher's main() performs over its
// flag set, sourced from env instead of flags because geoconvertd is a
// headless worker fleet rather than an interactively-invoked CLI.
func Load(getenv func(string) string) (Config, error) {
	if getenv == nil {
		getenv = os.Getenv
	}
	str := func(key, def string) string {
		if v := getenv(key); v != "" {
			return v
		}
		return def
	}
	dur := func(key string, def time.Duration) (time.Duration, error) {
		v := getenv(key)
		if v == "" {
			return def, nil
		}
		secs, err := strconv.Atoi(v)
		if err != nil {
			return 0, errors.Wrapf(err, "parsing %s", key)
		}
		return time.Duration(secs) * time.Second, nil
	}
	ival := func(key string, def int) (int, error) {
		v := getenv(key)
		if v == "" {
			return def, nil
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return 0, errors.Wrapf(err, "parsing %s", key)
		}
		return n, nil
	}
	bval := func(key string, def bool) (bool, error) {
		v := getenv(key)
		if v == "" {
			return def, nil
		}
		b, err := strconv.ParseBool(v)
		if err != nil {
			return false, errors.Wrapf(err, "parsing %s", key)
		}
		return b, nil
	}

	cfg := Config{
		DatabaseURL:       str("GEOCONVERT_DATABASE_URL", ""),
		StorageBackend:    StorageBackend(str("GEOCONVERT_STORAGE_BACKEND", string(StorageLocal))),
		LocalUploadDir:    str("GEOCONVERT_UPLOAD_DIR", "/var/lib/geoconvert/uploads"),
		LocalOutputDir:    str("GEOCONVERT_OUTPUT_DIR", "/var/lib/geoconvert/outputs"),
		S3Bucket:          str("GEOCONVERT_S3_BUCKET", ""),
		S3Region:          str("GEOCONVERT_S3_REGION", "us-east-1"),
		S3Endpoint:        str("GEOCONVERT_S3_ENDPOINT", ""),
		S3AccessKeyID:     str("GEOCONVERT_S3_ACCESS_KEY_ID", ""),
		S3SecretAccessKey: str("GEOCONVERT_S3_SECRET_ACCESS_KEY", ""),
		BrokerURL:         str("GEOCONVERT_BROKER_URL", "redis://localhost:6379/0"),
		ConversionQueue:   str("GEOCONVERT_QUEUE_CONVERSION", "geoconvert:jobs:conversion"),
		MaintenanceQueue:  str("GEOCONVERT_QUEUE_MAINTENANCE", "geoconvert:jobs:maintenance"),
		AllowedOrigins:    splitCSV(str("GEOCONVERT_ALLOWED_ORIGINS", "")),
		LogLevel:          str("GEOCONVERT_LOG_LEVEL", "info"),
		LogFormat:         str("GEOCONVERT_LOG_FORMAT", "logfmt"),
		MetricsAddr:       str("GEOCONVERT_METRICS_ADDR", ":9090"),
		PlanLimits:        defaultPlanLimits(),
	}

	var err error
	if cfg.ConversionSoftTimeout, err = dur("GEOCONVERT_CONVERSION_TIMEOUT", 600*time.Second); err != nil {
		return Config{}, err
	}
	cfg.ConversionHardTimeout = cfg.ConversionSoftTimeout + 30*time.Second

	if cfg.WorkerCount, err = ival("GEOCONVERT_WORKER_COUNT", 4); err != nil {
		return Config{}, err
	}
	if cfg.MaxRetries, err = ival("GEOCONVERT_MAX_RETRIES", 2); err != nil {
		return Config{}, err
	}
	if cfg.RetryBackoff, err = dur("GEOCONVERT_RETRY_BACKOFF", 10*time.Second); err != nil {
		return Config{}, err
	}
	if cfg.ArtifactTTL, err = dur("GEOCONVERT_ARTIFACT_TTL", 24*time.Hour); err != nil {
		return Config{}, err
	}
	if cfg.S3ForcePathStyle, err = bval("GEOCONVERT_S3_FORCE_PATH_STYLE", false); err != nil {
		return Config{}, err
	}

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	if c.DatabaseURL == "" {
		return errors.New("config: GEOCONVERT_DATABASE_URL is required")
	}
	switch c.StorageBackend {
	case StorageLocal, StorageS3, StorageMinio:
	default:
		return errors.Errorf("config: unknown storage backend %q", c.StorageBackend)
	}
	if (c.StorageBackend == StorageS3 || c.StorageBackend == StorageMinio) && c.S3Bucket == "" {
		return errors.New("config: GEOCONVERT_S3_BUCKET is required for s3/minio backend")
	}
	if c.ConversionSoftTimeout <= 0 {
		return errors.New("config: GEOCONVERT_CONVERSION_TIMEOUT must be positive")
	}
	return nil
}

func splitCSV(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
