// Package config loads provisioner configuration from defaults, an
// optional config file, environment variables, and command flags.
package config

import (
	"fmt"
	"strings"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

type Config struct {
	LogLevel string         `mapstructure:"log_level"`
	Paths    PathsConfig    `mapstructure:"paths"`
	Engine   EngineConfig   `mapstructure:"engine"`
	Voices   VoicesConfig   `mapstructure:"voices"`
	Fetch    FetchConfig    `mapstructure:"fetch"`
	Platform PlatformConfig `mapstructure:"platform"`
}

type PathsConfig struct {
	Root string `mapstructure:"root"`
}

type EngineConfig struct {
	Version          string   `mapstructure:"version"`
	ReleaseTemplates []string `mapstructure:"release_templates"`
}

type VoicesConfig struct {
	IDs     []string `mapstructure:"ids"`
	HubURLs []string `mapstructure:"hub_urls"`
}

type FetchConfig struct {
	TimeoutSeconds int `mapstructure:"timeout_seconds"`
	Retries        int `mapstructure:"retries"`
	Concurrency    int `mapstructure:"concurrency"`
}

type PlatformConfig struct {
	Machine           string `mapstructure:"machine"` // override detected machine, mainly for tests
	FailOnUnsupported bool   `mapstructure:"fail_on_unsupported"`
	FallbackTag       string `mapstructure:"fallback_tag"`
}

type LoadOptions struct {
	Cmd        flagBinder
	ConfigFile string
	Defaults   Config
}

type flagBinder interface {
	Flags() *pflag.FlagSet
}

func DefaultConfig() Config {
	return Config{
		LogLevel: "info",
		Paths: PathsConfig{
			Root: "piper_tts",
		},
		Engine: EngineConfig{
			Version: "1.2.0",
			ReleaseTemplates: []string{
				"https://github.com/rhasspy/piper/releases/download/v{version}/piper_linux_{arch}.tar.gz",
				"https://github.com/rhasspy/piper/releases/download/v{version}/piper_linux_{uname_arch}.tar.gz",
			},
		},
		Voices: VoicesConfig{
			IDs: []string{"ru_RU-dmitri-medium", "ru_RU-ruslan-medium"},
			HubURLs: []string{
				"https://huggingface.co/rhasspy/piper-voices/resolve/main",
				"https://huggingface.co/rhasspy/piper-voices/resolve/v1.0.0",
			},
		},
		Fetch: FetchConfig{
			TimeoutSeconds: 60,
			Retries:        3,
			Concurrency:    3,
		},
		Platform: PlatformConfig{
			Machine:           "",
			FailOnUnsupported: false,
			FallbackTag:       "amd64",
		},
	}
}

func RegisterFlags(fs *pflag.FlagSet, defaults Config) {
	fs.String("log-level", defaults.LogLevel, "Log level (debug|info|warn|error)")
	fs.String("paths-root", defaults.Paths.Root, "Provisioning root directory")
	fs.String("engine-version", defaults.Engine.Version, "Pinned engine release version")
	fs.StringSlice("engine-release-templates", defaults.Engine.ReleaseTemplates, "Ordered release archive URL templates")
	fs.StringSlice("voices-ids", defaults.Voices.IDs, "Voice identities to provision")
	fs.StringSlice("voices-hub-urls", defaults.Voices.HubURLs, "Ordered model hub base URLs")
	fs.Int("fetch-timeout-seconds", defaults.Fetch.TimeoutSeconds, "Per-attempt download timeout in seconds")
	fs.Int("fetch-retries", defaults.Fetch.Retries, "Download attempts per source candidate")
	fs.Int("fetch-concurrency", defaults.Fetch.Concurrency, "Concurrent asset acquisitions")
	fs.String("platform-machine", defaults.Platform.Machine, "Override detected machine architecture")
	fs.Bool("platform-fail-on-unsupported", defaults.Platform.FailOnUnsupported, "Treat an unsupported architecture as fatal")
	fs.String("platform-fallback-tag", defaults.Platform.FallbackTag, "Architecture tag used when unsupported and not fatal")
}

func Load(opts LoadOptions) (Config, error) {
	v := viper.New()

	setDefaults(v, opts.Defaults)
	if opts.Cmd != nil {
		if err := v.BindPFlags(opts.Cmd.Flags()); err != nil {
			return Config{}, fmt.Errorf("bind flags: %w", err)
		}
	}
	registerAliases(v)

	v.SetEnvPrefix("PIPERPROV")
	replacer := strings.NewReplacer("-", "_", ".", "_", "__", "_")
	v.SetEnvKeyReplacer(replacer)
	v.AutomaticEnv()

	if opts.ConfigFile != "" {
		v.SetConfigFile(opts.ConfigFile)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config file: %w", err)
		}
	} else {
		v.SetConfigName("piperprov")
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return Config{}, fmt.Errorf("read config file: %w", err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper, c Config) {
	v.SetDefault("log_level", c.LogLevel)
	v.SetDefault("paths.root", c.Paths.Root)
	v.SetDefault("engine.version", c.Engine.Version)
	v.SetDefault("engine.release_templates", c.Engine.ReleaseTemplates)
	v.SetDefault("voices.ids", c.Voices.IDs)
	v.SetDefault("voices.hub_urls", c.Voices.HubURLs)
	v.SetDefault("fetch.timeout_seconds", c.Fetch.TimeoutSeconds)
	v.SetDefault("fetch.retries", c.Fetch.Retries)
	v.SetDefault("fetch.concurrency", c.Fetch.Concurrency)
	v.SetDefault("platform.machine", c.Platform.Machine)
	v.SetDefault("platform.fail_on_unsupported", c.Platform.FailOnUnsupported)
	v.SetDefault("platform.fallback_tag", c.Platform.FallbackTag)
}

func registerAliases(v *viper.Viper) {
	v.RegisterAlias("log_level", "log-level")
	v.RegisterAlias("paths.root", "paths-root")
	v.RegisterAlias("engine.version", "engine-version")
	v.RegisterAlias("engine.release_templates", "engine-release-templates")
	v.RegisterAlias("voices.ids", "voices-ids")
	v.RegisterAlias("voices.hub_urls", "voices-hub-urls")
	v.RegisterAlias("fetch.timeout_seconds", "fetch-timeout-seconds")
	v.RegisterAlias("fetch.retries", "fetch-retries")
	v.RegisterAlias("fetch.concurrency", "fetch-concurrency")
	v.RegisterAlias("platform.machine", "platform-machine")
	v.RegisterAlias("platform.fail_on_unsupported", "platform-fail-on-unsupported")
	v.RegisterAlias("platform.fallback_tag", "platform-fallback-tag")
}
