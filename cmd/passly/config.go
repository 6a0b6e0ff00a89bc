package main

import (
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/samber/oops"
	"github.com/spf13/pflag"

	"github.com/MrEthical07/passly"
)

// envPrefix marks the environment variables read into the config. A double
// underscore separates sections: PASSLY_JWT__SECRET sets jwt.secret.
const envPrefix = "PASSLY_"

type logConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
}

type smtpConfig struct {
	Host        string        `koanf:"host"`
	Port        int           `koanf:"port"`
	Username    string        `koanf:"username"`
	Password    string        `koanf:"password"`
	From        string        `koanf:"from"`
	DisplayName string        `koanf:"display_name"`
	RequireTLS  bool          `koanf:"require_tls"`
	Timeout     time.Duration `koanf:"timeout"`
}

// cliConfig is the engine configuration plus the settings only the CLI
// process needs.
type cliConfig struct {
	passly.Config `koanf:",squash"`

	Log         logConfig  `koanf:"log"`
	SMTP        smtpConfig `koanf:"smtp"`
	MetricsAddr string     `koanf:"metrics_addr"`
}

func defaultCLIConfig() *cliConfig {
	return &cliConfig{
		Config: passly.DefaultConfig(),
		Log: logConfig{
			Level:  "info",
			Format: "json",
		},
		SMTP: smtpConfig{
			Port:       587,
			RequireTLS: true,
			Timeout:    10 * time.Second,
		},
		MetricsAddr: "127.0.0.1:9464",
	}
}

// flagKeys maps command-line flags onto config keys. Flags not listed here
// are command options, not configuration.
var flagKeys = map[string]string{
	"log-level":    "log.level",
	"log-format":   "log.format",
	"postgres-dsn": "store.postgres_dsn",
	"redis-addr":   "store.redis_addr",
	"metrics-addr": "metrics_addr",
}

// loadConfig layers defaults, the YAML file at path, PASSLY_ environment
// variables and explicitly set flags, later layers winning.
func loadConfig(path string, flags *pflag.FlagSet) (*cliConfig, error) {
	k := koanf.New(".")

	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, oops.Code("CONFIG_INVALID").With("path", path).Wrapf(err, "load config file")
		}
	}

	if err := k.Load(env.Provider(envPrefix, ".", envKey), nil); err != nil {
		return nil, oops.Code("CONFIG_INVALID").Wrapf(err, "load environment")
	}

	if flags != nil {
		if err := k.Load(posflag.ProviderWithFlag(flags, ".", k, flagKey), nil); err != nil {
			return nil, oops.Code("CONFIG_INVALID").Wrapf(err, "load flags")
		}
	}

	cfg := defaultCLIConfig()
	if err := k.UnmarshalWithConf("", cfg, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return nil, oops.Code("CONFIG_INVALID").Wrapf(err, "decode config")
	}
	return cfg, nil
}

func envKey(name string) string {
	name = strings.TrimPrefix(name, envPrefix)
	return strings.ToLower(strings.ReplaceAll(name, "__", "."))
}

func flagKey(f *pflag.Flag) (string, interface{}) {
	key, ok := flagKeys[f.Name]
	if !ok || !f.Changed {
		return "", nil
	}
	return key, f.Value.String()
}
