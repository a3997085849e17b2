// Package config contains all configuration types and loading logic.
package config

// ServerConfig holds server-level configuration.
type ServerConfig struct {
	ListenAddress  string `toml:"listen_address" mapstructure:"listen_address"`
	BindIP         string `toml:"bind_ip" mapstructure:"bind_ip"`
	MetricsEnabled bool   `toml:"metricsenabled" mapstructure:"metricsenabled"`
	MetricsPath    string `toml:"metrics_path" mapstructure:"metrics_path"`
	PIDFilePath    string `toml:"pidfilepath" mapstructure:"pidfilepath"`
	CORSOrigin     string `toml:"cors_origin" mapstructure:"cors_origin"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level      string `mapstructure:"level"`
	File       string `mapstructure:"file"`
	MaxSize    int    `mapstructure:"max_size"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAge     int    `mapstructure:"max_age"`
	Compress   bool   `mapstructure:"compress"`
}

// TimeoutConfig holds HTTP timeout configuration.
type TimeoutConfig struct {
	Read     string `mapstructure:"readtimeout" toml:"readtimeout"`
	Write    string `mapstructure:"writetimeout" toml:"writetimeout"`
	Idle     string `mapstructure:"idletimeout" toml:"idletimeout"`
	Shutdown string `mapstructure:"shutdown" toml:"shutdown"`
}

// FFmpegConfig describes where the binaries live and how commands run.
type FFmpegConfig struct {
	ExecDir         string            `toml:"exec_dir" mapstructure:"exec_dir"`
	AssetsRoot      string            `toml:"assets_root" mapstructure:"assets_root"`
	ABI             string            `toml:"abi" mapstructure:"abi"` // empty: derived from the host CPU
	Timeout         string            `toml:"timeout" mapstructure:"timeout"`
	ProgressTimeout string            `toml:"progress_timeout" mapstructure:"progress_timeout"`
	InstallOnStart  bool              `toml:"install_on_start" mapstructure:"install_on_start"`
	Environment     map[string]string `toml:"environment" mapstructure:"environment"`
}

// SecurityConfig holds security-related configuration.
type SecurityConfig struct {
	JWTSecret string `toml:"jwtsecret" mapstructure:"jwtsecret"`
}

// HistoryConfig holds the run history database configuration.
type HistoryConfig struct {
	Enabled bool   `toml:"enabled" mapstructure:"enabled"`
	DBPath  string `toml:"db_path" mapstructure:"db_path"`
}

// RedisConfig holds Redis configuration for report publishing.
type RedisConfig struct {
	RedisEnabled bool   `mapstructure:"redisenabled"`
	RedisURL     string `mapstructure:"redisurl"`
	ReportTTL    string `mapstructure:"report_ttl"`
}

// WorkersConfig holds job queue configuration.
type WorkersConfig struct {
	QueueSize int `mapstructure:"queue_size"`
}

// BuildConfig holds build information.
type BuildConfig struct {
	Version string `mapstructure:"version"`
}

// Config is the top-level configuration structure.
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Logging  LoggingConfig  `mapstructure:"logging"`
	Timeouts TimeoutConfig  `mapstructure:"timeouts"`
	FFmpeg   FFmpegConfig   `mapstructure:"ffmpeg"`
	Security SecurityConfig `mapstructure:"security"`
	History  HistoryConfig  `mapstructure:"history"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Workers  WorkersConfig  `mapstructure:"workers"`
	Build    BuildConfig    `mapstructure:"build"`
}
