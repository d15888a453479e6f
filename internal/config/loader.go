package config

import (
	"errors"
	"fmt"
	"os"
	"reflect"
	"strconv"
	"strings"
	"time"
)

// Load reads configuration from environment variables, applies defaults and
// validates the result. Every missing or malformed variable is reported, not
// just the first one.
func Load() (*Config, error) {
	cfg := &Config{}

	if err := populate(reflect.ValueOf(cfg).Elem()); err != nil {
		return nil, fmt.Errorf("config load: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}

	return cfg, nil
}

// MustLoad loads configuration and panics on error.
// Use this only in main() where early termination is desired.
func MustLoad() *Config {
	cfg, err := Load()
	if err != nil {
		panic(fmt.Sprintf("failed to load configuration: %v", err))
	}
	return cfg
}

// envField is one tagged leaf of the Config tree.
type envField struct {
	name     string // primary variable
	alt      string // fallback variable, kept for older deployments
	def      string
	required bool
	target   reflect.Value
}

// lookup returns the field's raw value: primary, then alt, then default.
// Empty variables count as unset.
func (f envField) lookup() (string, error) {
	if v := os.Getenv(f.name); v != "" {
		return v, nil
	}
	if f.alt != "" {
		if v := os.Getenv(f.alt); v != "" {
			return v, nil
		}
	}
	if f.required {
		return "", fmt.Errorf("required environment variable %s is not set", f.name)
	}
	return f.def, nil
}

// populate fills every env-tagged field under v and joins all failures.
func populate(v reflect.Value) error {
	var errs []error
	for _, f := range envFields(v) {
		raw, err := f.lookup()
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if raw == "" {
			continue
		}
		if err := assign(f.target, raw); err != nil {
			errs = append(errs, fmt.Errorf("invalid value for %s=%q: %w", f.name, raw, err))
		}
	}
	return errors.Join(errs...)
}

// envFields flattens nested section structs into their tagged leaves.
func envFields(v reflect.Value) []envField {
	var out []envField
	t := v.Type()
	for i := 0; i < t.NumField(); i++ {
		sf := t.Field(i)
		fv := v.Field(i)
		if !fv.CanSet() {
			continue
		}
		if sf.Type.Kind() == reflect.Struct {
			out = append(out, envFields(fv)...)
			continue
		}
		name := sf.Tag.Get("env")
		if name == "" {
			continue
		}
		out = append(out, envField{
			name:     name,
			alt:      sf.Tag.Get("envAlt"),
			def:      sf.Tag.Get("default"),
			required: sf.Tag.Get("required") == "true",
			target:   fv,
		})
	}
	return out
}

var durationType = reflect.TypeOf(time.Duration(0))

// assign parses raw into dst according to dst's type.
func assign(dst reflect.Value, raw string) error {
	if dst.Type() == durationType {
		d, err := time.ParseDuration(raw)
		if err != nil {
			return fmt.Errorf("invalid duration: %w", err)
		}
		dst.SetInt(int64(d))
		return nil
	}

	switch dst.Kind() {
	case reflect.String:
		dst.SetString(raw)
	case reflect.Int, reflect.Int32, reflect.Int64:
		n, err := strconv.ParseInt(raw, 10, dst.Type().Bits())
		if err != nil {
			return fmt.Errorf("invalid integer: %w", err)
		}
		dst.SetInt(n)
	case reflect.Bool:
		b, err := strconv.ParseBool(raw)
		if err != nil {
			return fmt.Errorf("invalid boolean: %w", err)
		}
		dst.SetBool(b)
	case reflect.Slice:
		if dst.Type().Elem().Kind() != reflect.String {
			return fmt.Errorf("unsupported slice type: %s", dst.Type().Elem().Kind())
		}
		dst.Set(reflect.ValueOf(splitList(raw)))
	default:
		return fmt.Errorf("unsupported field type: %s", dst.Kind())
	}
	return nil
}

// splitList splits a comma-separated value, dropping blanks.
func splitList(raw string) []string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// problems collects validation failures.
type problems []string

func (p *problems) check(ok bool, format string, args ...any) {
	if !ok {
		*p = append(*p, fmt.Sprintf(format, args...))
	}
}

// Validate checks that the configuration is usable.
// Returns an error describing all validation failures.
func (c *Config) Validate() error {
	var p problems

	c.Server.validate(&p)
	c.Database.validate(&p)
	c.Upload.validate(&p)
	c.Rate.validate(&p)
	c.Security.validate(&p)
	c.Mapping.validate(&p)
	c.Logging.validate(&p)

	if len(p) > 0 {
		return fmt.Errorf("validation failed:\n  - %s", strings.Join(p, "\n  - "))
	}
	return nil
}

func (s *ServerConfig) validate(p *problems) {
	p.check(s.Port > 0 && s.Port <= 65535, "SERVER_PORT (%d) must be 1-65535", s.Port)
	p.check(s.ReadTimeout >= 0, "SERVER_READ_TIMEOUT must be non-negative")
	p.check(s.ShutdownTimeout > 0, "SERVER_SHUTDOWN_TIMEOUT must be positive")
}

// The pool settings are checked even without a URL so a later DATABASE_URL
// does not surface a bad pool config at startup.
func (d *DatabaseConfig) validate(p *problems) {
	p.check(d.MaxConns > 0, "DB_MAX_CONNS must be positive")
	p.check(d.MinConns >= 0, "DB_MIN_CONNS must be non-negative")
	p.check(d.MaxConns >= d.MinConns, "DB_MAX_CONNS (%d) must be >= DB_MIN_CONNS (%d)", d.MaxConns, d.MinConns)
}

func (u *UploadConfig) validate(p *problems) {
	p.check(u.Dir != "", "UPLOAD_DIR must not be empty")
	p.check(u.MaxFileSize > 0, "UPLOAD_MAX_FILE_SIZE must be positive")
	p.check(u.MaxConcurrent > 0, "UPLOAD_MAX_CONCURRENT must be positive")
	p.check(u.BatchSize > 0, "UPLOAD_BATCH_SIZE must be positive")
	p.check(u.MaxWaitTime > 0, "UPLOAD_MAX_WAIT_TIME must be positive")
	p.check(u.Timeout > 0, "UPLOAD_TIMEOUT must be positive")
	p.check(u.Retention > 0, "UPLOAD_RETENTION must be positive")
	p.check(u.SweepInterval > 0, "UPLOAD_SWEEP_INTERVAL must be positive")
}

func (r *RateLimitConfig) validate(p *problems) {
	if !r.Enabled {
		return
	}
	p.check(r.RequestsPerMinute > 0, "RATE_LIMIT_REQUESTS_PER_MINUTE must be positive when rate limiting is enabled")
	p.check(r.UploadLimit > 0, "RATE_LIMIT_UPLOAD must be positive when rate limiting is enabled")
}

// minSecretLen is the shortest accepted HS256 signing secret.
const minSecretLen = 16

func (s *SecurityConfig) validate(p *problems) {
	p.check(len(s.JWTSecret) >= minSecretLen, "JWT_SECRET must be at least %d characters", minSecretLen)
}

func (m *MappingConfig) validate(p *problems) {
	p.check(m.CacheSize > 0, "MAPPING_CACHE_SIZE must be positive")
	p.check(m.CacheTTL > 0, "MAPPING_CACHE_TTL must be positive")
	p.check(m.Timeout > 0, "MAPPING_TIMEOUT must be positive")
	p.check(oneOf(m.Precedence, "exact", "semantic"),
		"MAPPING_PRECEDENCE (%q) must be one of: exact, semantic", m.Precedence)
	p.check(oneOf(m.Resolver, "auto", "ollama", "rules", "chain"),
		"MAPPING_RESOLVER (%q) must be one of: auto, ollama, rules, chain", m.Resolver)
	if oneOf(m.Resolver, "ollama", "chain") {
		p.check(m.OllamaURL != "", "OLLAMA_URL is required when MAPPING_RESOLVER is %s", m.Resolver)
	}
}

func (l *LoggingConfig) validate(p *problems) {
	p.check(oneOf(l.Level, "debug", "info", "warn", "error"),
		"LOG_LEVEL (%q) must be one of: debug, info, warn, error", l.Level)
	p.check(oneOf(l.Format, "text", "json"),
		"LOG_FORMAT (%q) must be one of: text, json", l.Format)
}

func oneOf(v string, allowed ...string) bool {
	v = strings.ToLower(v)
	for _, a := range allowed {
		if v == a {
			return true
		}
	}
	return false
}

// String returns a loggable summary of the config. The database URL and the
// signing secret never appear in it.
func (c *Config) String() string {
	db := "[MEMORY]"
	if c.Database.URL != "" {
		db = "[MASKED]"
	}

	var b strings.Builder
	b.WriteString("Config{")
	fmt.Fprintf(&b, "Server: {Host: %q, Port: %d}, ", c.Server.Host, c.Server.Port)
	fmt.Fprintf(&b, "Database: {URL: %s, MaxConns: %d, MinConns: %d}, ", db, c.Database.MaxConns, c.Database.MinConns)
	fmt.Fprintf(&b, "Upload: {Dir: %q, MaxFileSize: %d, MaxConcurrent: %d, BatchSize: %d}, ",
		c.Upload.Dir, c.Upload.MaxFileSize, c.Upload.MaxConcurrent, c.Upload.BatchSize)
	fmt.Fprintf(&b, "Rate: {Enabled: %v, RequestsPerMinute: %d, UploadLimit: %d}, ",
		c.Rate.Enabled, c.Rate.RequestsPerMinute, c.Rate.UploadLimit)
	b.WriteString("Security: {JWTSecret: [MASKED]}, ")
	fmt.Fprintf(&b, "Mapping: {Precedence: %q, Resolver: %q, OllamaURL: %q, OllamaModel: %q}, ",
		c.Mapping.Precedence, c.Mapping.Resolver, c.Mapping.OllamaURL, c.Mapping.OllamaModel)
	fmt.Fprintf(&b, "Logging: {Level: %q, Format: %q}", c.Logging.Level, c.Logging.Format)
	b.WriteString("}")
	return b.String()
}
