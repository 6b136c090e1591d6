// Package config loads qaforum settings from flag defaults, an optional YAML
// file, the environment and explicitly set flags, in increasing precedence.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/spf13/pflag"
)

// EnvPrefix prefixes every environment variable read by Load. Nested keys use
// a double underscore, e.g. QAFORUM_KV__REDIS__ADDR.
const EnvPrefix = "QAFORUM_"

// DefaultSessionSecret is only meant for local development.
const DefaultSessionSecret = "qaforum-dev-secret"

type Config struct {
	Addr    string  `koanf:"addr" validate:"required"`
	Log     Log     `koanf:"log"`
	KV      KV      `koanf:"kv"`
	Remote  Remote  `koanf:"remote"`
	Session Session `koanf:"session"`
	Import  Import  `koanf:"import"`
	CORS    CORS    `koanf:"cors"`
}

type Log struct {
	Level  string `koanf:"level" validate:"oneof=debug info warn error"`
	Format string `koanf:"format" validate:"oneof=text json"`
}

// KV configures the local key-value area.
type KV struct {
	Backend string `koanf:"backend" validate:"oneof=sqlite redis memory"`
	Path    string `koanf:"path" validate:"required_if=Backend sqlite"`
	Redis   Redis  `koanf:"redis"`
}

type Redis struct {
	Addr     string `koanf:"addr"`
	Password string `koanf:"password"`
	DB       int    `koanf:"db" validate:"gte=0"`
	Prefix   string `koanf:"prefix"`
}

// Remote configures the relational backend. It is only used when Enabled.
type Remote struct {
	Driver   string `koanf:"driver" validate:"omitempty,oneof=sqlite pgx"`
	DSN      string `koanf:"dsn"`
	Username string `koanf:"username"`
	Password string `koanf:"password"`
}

type Session struct {
	Secret string        `koanf:"secret" validate:"required"`
	TTL    time.Duration `koanf:"ttl" validate:"gt=0"`
}

type Import struct {
	Author   string `koanf:"author" validate:"required"`
	ReposDir string `koanf:"repos_dir" validate:"required"`
}

type CORS struct {
	Origins []string `koanf:"origins"`
}

// Enabled reports whether the remote backend is configured: a driver, a DSN
// and both credentials, none of them left as a placeholder.
func (r Remote) Enabled() bool {
	if r.Driver == "" {
		return false
	}
	for _, v := range []string{r.DSN, r.Username, r.Password} {
		if IsPlaceholder(v) {
			return false
		}
	}
	return true
}

// IsPlaceholder reports whether v is empty or a template value such as
// YOUR_DATABASE_URL, your-password, changeme or <password>.
func IsPlaceholder(v string) bool {
	v = strings.TrimSpace(v)
	if v == "" {
		return true
	}
	l := strings.ToLower(v)
	switch {
	case strings.HasPrefix(l, "your_"), strings.HasPrefix(l, "your-"):
		return true
	case l == "changeme", l == "change-me":
		return true
	case strings.HasPrefix(v, "<") && strings.HasSuffix(v, ">"):
		return true
	}
	return false
}

// RegisterFlags adds every setting to fs with its default value.
func RegisterFlags(fs *pflag.FlagSet) {
	fs.String("config", "", "Path to a YAML config file")
	fs.String("addr", ":8080", "HTTP listen address")
	fs.String("log.level", "info", "Log level: debug, info, warn, error")
	fs.String("log.format", "text", "Log format: text or json")

	fs.String("kv.backend", "sqlite", "Local key-value backend: sqlite, redis or memory")
	fs.String("kv.path", "qaforum.db", "sqlite file for the local key-value area")
	fs.String("kv.redis.addr", "localhost:6379", "Redis address for the local key-value area")
	fs.String("kv.redis.password", "", "Redis password")
	fs.Int("kv.redis.db", 0, "Redis database number")
	fs.String("kv.redis.prefix", "qaforum:", "Prefix for redis keys")

	fs.String("remote.driver", "", "Remote backend driver: sqlite or pgx (empty disables it)")
	fs.String("remote.dsn", "", "Remote backend DSN")
	fs.String("remote.username", "", "Remote backend username")
	fs.String("remote.password", "", "Remote backend password")

	fs.String("session.secret", DefaultSessionSecret, "HMAC secret for session tokens")
	fs.Duration("session.ttl", 30*24*time.Hour, "Session token lifetime")

	fs.String("import.author", "admin", "Author recorded for imported posts without a By: line")
	fs.String("import.repos_dir", "repos", "Directory git sources are cloned into")

	fs.StringSlice("cors.origins", []string{"http://localhost:8080"}, "Allowed CORS origins")
}

// Load resolves the configuration for fs, which must have been set up with
// RegisterFlags and parsed. A .env file in the working directory, if any, is
// loaded into the environment first.
func Load(fs *pflag.FlagSet) (Config, error) {
	_ = godotenv.Load() // optional

	k := koanf.New(".")

	if path, _ := fs.GetString("config"); path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return Config{}, fmt.Errorf("failed to load config file %s: %w", path, err)
		}
	}

	if err := k.Load(env.ProviderWithValue(EnvPrefix, ".", envKey), nil); err != nil {
		return Config{}, fmt.Errorf("failed to load environment: %w", err)
	}

	// Flags set on the command line override everything; untouched flags
	// only fill keys nobody else provided.
	if err := k.Load(posflag.Provider(fs, ".", k), nil); err != nil {
		return Config{}, fmt.Errorf("failed to load flags: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return Config{}, fmt.Errorf("failed to decode config: %w", err)
	}
	if err := Validate(cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks cfg against its struct tags.
func Validate(cfg Config) error {
	v := validator.New(validator.WithRequiredStructEnabled())
	if err := v.Struct(cfg); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

// envKey maps QAFORUM_KV__REDIS__ADDR to kv.redis.addr.
func envKey(key, value string) (string, any) {
	key = strings.ToLower(strings.TrimPrefix(key, EnvPrefix))
	key = strings.ReplaceAll(key, "__", ".")
	if key == "cors.origins" {
		return key, strings.Split(value, ",")
	}
	return key, value
}
