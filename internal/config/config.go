// Package config loads and validates the on-disk YAML configuration
// for a Pattern runtime: its network endpoints, memory ACL defaults,
// group coordination defaults, the permission broker's consent
// timeout, the message queue's loop limit, cursor-store and
// stream-buffer sizing, the background ticker's interval, and
// logging.
package config

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the top-level configuration structure for a Pattern
// runtime.
type Config struct {
	Server      ServerConfig      `yaml:"server"`
	Memory      MemoryConfig      `yaml:"memory"`
	Group       GroupConfig       `yaml:"group"`
	Permission  PermissionConfig  `yaml:"permission"`
	Queue       QueueConfig       `yaml:"queue"`
	CursorStore CursorStoreConfig `yaml:"cursor_store"`
	Buffer      BufferConfig      `yaml:"buffer"`
	Ticker      TickerConfig      `yaml:"ticker"`
	ToolRules   ToolRulesConfig   `yaml:"tool_rules"`
	Logging     LoggingConfig     `yaml:"logging"`
}

// ServerConfig configures the runtime's listening endpoints.
type ServerConfig struct {
	Host        string `yaml:"host"`
	GRPCPort    int    `yaml:"grpc_port"`
	HTTPPort    int    `yaml:"http_port"`
	MetricsPort int    `yaml:"metrics_port"`
}

// MemoryConfig configures the block memory store's defaults.
type MemoryConfig struct {
	// DefaultMaxLength bounds a new block's Value when a caller does
	// not specify one explicitly.
	DefaultMaxLength int `yaml:"default_max_length"`

	// ConsentTimeout bounds how long a RequireConsent write waits on
	// the permission broker before failing.
	ConsentTimeout time.Duration `yaml:"consent_timeout"`
}

// GroupConfig configures group coordination defaults.
type GroupConfig struct {
	// DefaultPattern is used when a group is created without an
	// explicit pattern. Must be one of the group.PatternKind values.
	DefaultPattern string `yaml:"default_pattern"`

	// LockTimeout bounds how long a Route call waits to acquire a
	// group's writer lock.
	LockTimeout time.Duration `yaml:"lock_timeout"`

	// MaxTurns caps round_robin and voting patterns' turn counts per
	// dispatch, guarding against a runaway pattern never converging.
	MaxTurns int `yaml:"max_turns"`
}

// PermissionConfig configures the permission broker.
type PermissionConfig struct {
	// DefaultTimeout bounds how long Request waits for a Resolve
	// before returning ErrConsentTimeout, for callers that do not
	// pass their own timeout.
	DefaultTimeout time.Duration `yaml:"default_timeout"`
}

// QueueConfig configures the message queue's loop protection.
type QueueConfig struct {
	// LoopLimit is the maximum number of times a sender may appear in
	// a message's call chain before Dequeue rejects it.
	LoopLimit int `yaml:"loop_limit"`
}

// CursorStoreConfig configures the Redis-backed cursor store.
type CursorStoreConfig struct {
	Addr     string        `yaml:"addr"`
	Password string        `yaml:"password"`
	DB       int           `yaml:"db"`
	TTL      time.Duration `yaml:"ttl"`
}

// BufferConfig configures default stream-buffer sizing for data
// sources that do not override it.
type BufferConfig struct {
	MaxItems int           `yaml:"max_items"`
	MaxAge   time.Duration `yaml:"max_age"`
}

// TickerConfig configures the background context-sync ticker.
type TickerConfig struct {
	Interval time.Duration `yaml:"interval"`
}

// ToolRulesConfig configures the tool-rule engine's default violation
// policy.
type ToolRulesConfig struct {
	// DefaultPolicy is one of "fatal", "skip", "retry".
	DefaultPolicy string `yaml:"default_policy"`
}

// LoggingConfig configures structured logging.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Load reads, environment-expands, and decodes the YAML config at
// path, then applies environment overrides, fills defaults, and
// validates the result.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	expanded := os.ExpandEnv(string(data))

	var cfg Config
	decoder := yaml.NewDecoder(strings.NewReader(expanded))
	decoder.KnownFields(true)
	if err := decoder.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := decoder.Decode(&struct{}{}); err != io.EOF {
		return nil, fmt.Errorf("failed to parse config: expected single document")
	}

	applyEnvOverrides(&cfg)
	applyDefaults(&cfg)

	if err := validateConfig(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func applyDefaults(cfg *Config) {
	applyServerDefaults(&cfg.Server)
	applyMemoryDefaults(&cfg.Memory)
	applyGroupDefaults(&cfg.Group)
	applyPermissionDefaults(&cfg.Permission)
	applyQueueDefaults(&cfg.Queue)
	applyCursorStoreDefaults(&cfg.CursorStore)
	applyBufferDefaults(&cfg.Buffer)
	applyTickerDefaults(&cfg.Ticker)
	applyToolRulesDefaults(&cfg.ToolRules)
	applyLoggingDefaults(&cfg.Logging)
}

func applyServerDefaults(cfg *ServerConfig) {
	if cfg.Host == "" {
		cfg.Host = "0.0.0.0"
	}
	if cfg.GRPCPort == 0 {
		cfg.GRPCPort = 7331
	}
	if cfg.HTTPPort == 0 {
		cfg.HTTPPort = 8080
	}
	if cfg.MetricsPort == 0 {
		cfg.MetricsPort = 9090
	}
}

func applyMemoryDefaults(cfg *MemoryConfig) {
	if cfg.DefaultMaxLength == 0 {
		cfg.DefaultMaxLength = 4000
	}
	if cfg.ConsentTimeout == 0 {
		cfg.ConsentTimeout = 30 * time.Second
	}
}

func applyGroupDefaults(cfg *GroupConfig) {
	if cfg.DefaultPattern == "" {
		cfg.DefaultPattern = "round_robin"
	}
	if cfg.LockTimeout == 0 {
		cfg.LockTimeout = 10 * time.Second
	}
	if cfg.MaxTurns == 0 {
		cfg.MaxTurns = 20
	}
}

func applyPermissionDefaults(cfg *PermissionConfig) {
	if cfg.DefaultTimeout == 0 {
		cfg.DefaultTimeout = 60 * time.Second
	}
}

func applyQueueDefaults(cfg *QueueConfig) {
	if cfg.LoopLimit == 0 {
		cfg.LoopLimit = 3
	}
}

func applyCursorStoreDefaults(cfg *CursorStoreConfig) {
	if cfg.Addr == "" {
		cfg.Addr = "localhost:6379"
	}
	if cfg.TTL == 0 {
		cfg.TTL = 30 * 24 * time.Hour
	}
}

func applyBufferDefaults(cfg *BufferConfig) {
	if cfg.MaxItems == 0 {
		cfg.MaxItems = 500
	}
	if cfg.MaxAge == 0 {
		cfg.MaxAge = 7 * 24 * time.Hour
	}
}

func applyTickerDefaults(cfg *TickerConfig) {
	if cfg.Interval == 0 {
		cfg.Interval = 20 * time.Minute
	}
}

func applyToolRulesDefaults(cfg *ToolRulesConfig) {
	if cfg.DefaultPolicy == "" {
		cfg.DefaultPolicy = "fatal"
	}
}

func applyLoggingDefaults(cfg *LoggingConfig) {
	if cfg.Level == "" {
		cfg.Level = "info"
	}
	if cfg.Format == "" {
		cfg.Format = "json"
	}
}

func applyEnvOverrides(cfg *Config) {
	if cfg == nil {
		return
	}

	if value := strings.TrimSpace(os.Getenv("PATTERN_HOST")); value != "" {
		cfg.Server.Host = value
	}
	if value := strings.TrimSpace(os.Getenv("PATTERN_GRPC_PORT")); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			cfg.Server.GRPCPort = parsed
		}
	}
	if value := strings.TrimSpace(os.Getenv("PATTERN_HTTP_PORT")); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			cfg.Server.HTTPPort = parsed
		}
	}
	if value := strings.TrimSpace(os.Getenv("PATTERN_METRICS_PORT")); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			cfg.Server.MetricsPort = parsed
		}
	}
	if value := strings.TrimSpace(os.Getenv("REDIS_ADDR")); value != "" {
		cfg.CursorStore.Addr = value
	}
	if value := strings.TrimSpace(os.Getenv("REDIS_PASSWORD")); value != "" {
		cfg.CursorStore.Password = value
	}
}

// ValidationError reports every config validation failure found,
// rather than stopping at the first one.
type ValidationError struct {
	Issues []string
}

func (e *ValidationError) Error() string {
	return "config validation failed:\n- " + strings.Join(e.Issues, "\n- ")
}

func validateConfig(cfg *Config) error {
	if cfg == nil {
		return nil
	}

	var issues []string

	if !validPattern(cfg.Group.DefaultPattern) {
		issues = append(issues, fmt.Sprintf("group.default_pattern: invalid value %q", cfg.Group.DefaultPattern))
	}
	if !validPolicy(cfg.ToolRules.DefaultPolicy) {
		issues = append(issues, fmt.Sprintf("tool_rules.default_policy: invalid value %q", cfg.ToolRules.DefaultPolicy))
	}
	if !validLogLevel(cfg.Logging.Level) {
		issues = append(issues, fmt.Sprintf("logging.level: invalid value %q", cfg.Logging.Level))
	}
	if !validLogFormat(cfg.Logging.Format) {
		issues = append(issues, fmt.Sprintf("logging.format: invalid value %q", cfg.Logging.Format))
	}
	if cfg.Queue.LoopLimit < 1 {
		issues = append(issues, "queue.loop_limit: must be at least 1")
	}

	if len(issues) > 0 {
		return &ValidationError{Issues: issues}
	}
	return nil
}

func validPattern(p string) bool {
	switch p {
	case "round_robin", "supervisor", "pipeline", "voting", "dynamic", "sleeptime":
		return true
	}
	return false
}

func validPolicy(p string) bool {
	switch p {
	case "fatal", "skip", "retry":
		return true
	}
	return false
}

func validLogLevel(l string) bool {
	switch l {
	case "debug", "info", "warn", "error":
		return true
	}
	return false
}

func validLogFormat(f string) bool {
	switch f {
	case "json", "text":
		return true
	}
	return false
}
