package config

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"
)

var log = logrus.New()

// SetLogger replaces the package-level logger.
func SetLogger(l *logrus.Logger) { log = l }

// DefaultVersion is reported when the config does not set [build] version.
const DefaultVersion = "1.2.0"

// LoadConfig loads configuration from a TOML file using viper.
func LoadConfig(configFile string) (*Config, error) {
	if configFile == "" {
		configFile = "./config.toml"
	}

	if !fileExists(configFile) {
		return nil, fmt.Errorf("configuration file not found: %s", configFile)
	}

	v := viper.New()
	v.SetConfigFile(configFile)
	v.SetConfigType("toml")

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	var conf Config
	if err := v.Unmarshal(&conf); err != nil {
		return nil, fmt.Errorf("error parsing config file: %w", err)
	}

	applyDefaults(&conf)

	log.Infof("Configuration loaded from %s", configFile)
	return &conf, nil
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	conf := &Config{}
	applyDefaults(conf)
	return conf
}

func applyDefaults(conf *Config) {
	if conf.Server.ListenAddress == "" {
		conf.Server.ListenAddress = "8080"
	}
	if conf.Server.MetricsPath == "" {
		conf.Server.MetricsPath = "/metrics"
	}
	if conf.Server.PIDFilePath == "" {
		conf.Server.PIDFilePath = "/var/run/ffmpeg-gate.pid"
	}
	if conf.Server.CORSOrigin == "" {
		conf.Server.CORSOrigin = "*"
	}

	if conf.Logging.Level == "" {
		conf.Logging.Level = "info"
	}
	if conf.Logging.MaxSize == 0 {
		conf.Logging.MaxSize = 100
	}
	if conf.Logging.MaxBackups == 0 {
		conf.Logging.MaxBackups = 7
	}
	if conf.Logging.MaxAge == 0 {
		conf.Logging.MaxAge = 30
	}

	if conf.Timeouts.Read == "" {
		conf.Timeouts.Read = "30s"
	}
	if conf.Timeouts.Write == "" {
		conf.Timeouts.Write = "30s"
	}
	if conf.Timeouts.Idle == "" {
		conf.Timeouts.Idle = "120s"
	}
	if conf.Timeouts.Shutdown == "" {
		conf.Timeouts.Shutdown = "30s"
	}

	if conf.FFmpeg.ExecDir == "" {
		conf.FFmpeg.ExecDir = "./bin"
	}
	if conf.FFmpeg.AssetsRoot == "" {
		conf.FFmpeg.AssetsRoot = "./assets"
	}
	if conf.FFmpeg.Timeout == "" {
		conf.FFmpeg.Timeout = "0s"
	}
	if conf.FFmpeg.ProgressTimeout == "" {
		conf.FFmpeg.ProgressTimeout = "5s"
	}
	// viper lower-cases map keys; environment names are upper case.
	env := make(map[string]string, len(conf.FFmpeg.Environment))
	for k, v := range conf.FFmpeg.Environment {
		env[strings.ToUpper(k)] = v
	}
	conf.FFmpeg.Environment = env

	if conf.History.DBPath == "" {
		conf.History.DBPath = "./data/history.db"
	}

	if conf.Redis.ReportTTL == "" {
		conf.Redis.ReportTTL = "24h"
	}

	if conf.Workers.QueueSize == 0 {
		conf.Workers.QueueSize = 16
	}

	if conf.Build.Version == "" {
		conf.Build.Version = DefaultVersion
	}
}

// ValidateConfig performs basic configuration validation.
func ValidateConfig(c *Config) error {
	if c.Server.ListenAddress == "" {
		return errors.New("server.listen_address is required")
	}

	for key, value := range map[string]string{
		"timeouts.readtimeout":    c.Timeouts.Read,
		"timeouts.writetimeout":   c.Timeouts.Write,
		"timeouts.idletimeout":    c.Timeouts.Idle,
		"timeouts.shutdown":       c.Timeouts.Shutdown,
		"ffmpeg.timeout":          c.FFmpeg.Timeout,
		"ffmpeg.progress_timeout": c.FFmpeg.ProgressTimeout,
		"redis.report_ttl":        c.Redis.ReportTTL,
	} {
		if _, err := time.ParseDuration(value); err != nil {
			return fmt.Errorf("invalid %s: %v", key, err)
		}
	}

	if strings.TrimSpace(c.FFmpeg.ExecDir) == "" {
		return errors.New("ffmpeg.exec_dir is required")
	}

	if c.Redis.RedisEnabled && strings.TrimSpace(c.Redis.RedisURL) == "" {
		return errors.New("redis.redisurl is required when redis.redisenabled is true")
	}

	if c.History.Enabled && strings.TrimSpace(c.History.DBPath) == "" {
		return errors.New("history.db_path is required when history.enabled is true")
	}

	if c.Workers.QueueSize < 0 {
		return errors.New("workers.queue_size must not be negative")
	}

	return nil
}

// Duration parses value, returning def when value is empty or invalid.
// ValidateConfig rejects invalid values, so the fallback only covers
// configs that were never validated.
func Duration(value string, def time.Duration) time.Duration {
	d, err := time.ParseDuration(value)
	if err != nil {
		return def
	}
	return d
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// GenerateMinimalConfig returns a minimal example configuration string.
func GenerateMinimalConfig() string {
	return `# ffmpeg-gate - Minimal Configuration

[server]
listen_address = "8080"
bind_ip = "0.0.0.0"
metricsenabled = true
metrics_path = "/metrics"
pidfilepath = "/var/run/ffmpeg-gate.pid"
cors_origin = "*"

[logging]
level = "info"
file = "/var/log/ffmpeg-gate.log"
max_size = 100
max_backups = 7
max_age = 30
compress = true

[timeouts]
readtimeout = "30s"
writetimeout = "30s"
idletimeout = "120s"
shutdown = "30s"

[ffmpeg]
exec_dir = "./bin"
assets_root = "./assets"
abi = ""
timeout = "0s"
progress_timeout = "5s"
install_on_start = true

[ffmpeg.environment]
ANDROID_DATA = "/data"
ANDROID_ROOT = "/system"

[security]
jwtsecret = ""

[history]
enabled = true
db_path = "./data/history.db"

[redis]
redisenabled = false
redisurl = "redis://localhost:6379/0"
report_ttl = "24h"

[workers]
queue_size = 16

[build]
version = "` + DefaultVersion + `"
`
}

// CreateMinimalConfig writes a minimal config to path.
func CreateMinimalConfig(path string) error {
	if path == "" {
		path = "config.toml"
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	w := bufio.NewWriter(f)
	_, err = fmt.Fprint(w, GenerateMinimalConfig())
	if err != nil {
		return err
	}
	return w.Flush()
}
