package main

import (
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/samber/oops"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/MrEthical07/formauth"
)

// settings is everything the binary reads from the config file and flags.
// Auth is the engine configuration; the rest is process wiring.
type settings struct {
	Addr            string        `koanf:"addr"`
	Dev             bool          `koanf:"dev"`
	RedisAddr       string        `koanf:"redis_addr"`
	DatabaseURL     string        `koanf:"database_url"`
	RememberMeStore string        `koanf:"remember_me_store"`
	LogFormat       string        `koanf:"log_format"`
	LogLevel        string        `koanf:"log_level"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`
	ReapInterval    time.Duration `koanf:"reap_interval"`

	JWTPrivateKeyFile string `koanf:"jwt_private_key_file"`
	JWTPublicKeyFile  string `koanf:"jwt_public_key_file"`

	Auth formauth.Config `koanf:"auth"`
}

const (
	rememberMeRedis    = "redis"
	rememberMePostgres = "postgres"
	rememberMeMemory   = "memory"
)

func defaultSettings() settings {
	return settings{
		Addr:            ":8080",
		RememberMeStore: rememberMeRedis,
		LogFormat:       "json",
		LogLevel:        "info",
		ShutdownTimeout: 10 * time.Second,
		ReapInterval:    10 * time.Minute,
		Auth:            formauth.DefaultConfig(),
	}
}

// flagKeys maps flags onto nested config keys. Flags not listed map to
// their name with dashes replaced by underscores.
var flagKeys = map[string]string{
	"config":           "",
	"cookie-secure":    "auth.session.cookie_secure",
	"csrf":             "auth.security.csrf_protection",
	"challenge":        "auth.challenge.enabled",
	"remember-me":      "auth.remember_me.enabled",
	"production":       "auth.security.production_mode",
	"metrics":          "auth.metrics.enabled",
	"audit":            "auth.audit.enabled",
	"jwt":              "auth.jwt.enabled",
	"algorithm":        "auth.password.algorithm",
	"session-lifetime": "auth.session.lifetime",
}

func flagKey(f *pflag.Flag) string {
	if key, ok := flagKeys[f.Name]; ok {
		return key
	}
	return strings.ReplaceAll(f.Name, "-", "_")
}

// loadSettings layers defaults, the YAML file named by --config, and
// command-line flags, in that order. DATABASE_URL and REDIS_ADDR fill in
// connection strings left empty.
func loadSettings(cmd *cobra.Command) (settings, error) {
	fs := cmd.Flags()
	k := koanf.New(".")

	if path, _ := fs.GetString("config"); path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return settings{}, oops.Code("CONFIG_INVALID").With("path", path).Wrapf(err, "load config file")
		}
	}

	provider := posflag.ProviderWithFlag(fs, ".", k, func(f *pflag.Flag) (string, interface{}) {
		key := flagKey(f)
		if key == "" {
			return "", nil
		}
		return key, posflag.FlagVal(fs, f)
	})
	if err := k.Load(provider, nil); err != nil {
		return settings{}, oops.Code("CONFIG_INVALID").Wrapf(err, "load flags")
	}

	s := defaultSettings()
	if k.Exists("auth.routes.permit_all") {
		s.Auth.Routes.PermitAll = nil
	}
	if err := k.UnmarshalWithConf("", &s, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return settings{}, oops.Code("CONFIG_INVALID").Wrapf(err, "decode config")
	}

	if s.DatabaseURL == "" {
		s.DatabaseURL = os.Getenv("DATABASE_URL")
	}
	if s.RedisAddr == "" {
		s.RedisAddr = os.Getenv("REDIS_ADDR")
	}

	if s.JWTPrivateKeyFile != "" {
		key, err := os.ReadFile(s.JWTPrivateKeyFile)
		if err != nil {
			return settings{}, oops.Code("CONFIG_INVALID").With("path", s.JWTPrivateKeyFile).Wrapf(err, "read jwt private key")
		}
		s.Auth.JWT.PrivateKey = key
	}
	if s.JWTPublicKeyFile != "" {
		key, err := os.ReadFile(s.JWTPublicKeyFile)
		if err != nil {
			return settings{}, oops.Code("CONFIG_INVALID").With("path", s.JWTPublicKeyFile).Wrapf(err, "read jwt public key")
		}
		s.Auth.JWT.PublicKey = key
	}

	switch s.RememberMeStore {
	case rememberMeRedis, rememberMePostgres, rememberMeMemory:
	default:
		return settings{}, oops.Code("CONFIG_INVALID").With("remember_me_store", s.RememberMeStore).
			Errorf("remember_me_store must be redis, postgres or memory")
	}

	if err := s.Auth.Validate(); err != nil {
		return settings{}, oops.Code("CONFIG_INVALID").Wrapf(err, "validate auth config")
	}
	return s, nil
}
