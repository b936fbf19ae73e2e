package config

import (
	"fmt"
	"os"
	"strconv"
)

type keyType int

const (
	kString keyType = iota
	kInt
)

type keySpec struct {
	key     string
	typ     keyType
	env     string
	secret  bool
	apply   func(cfg *Config, v any)
	extract func(cfg Config) any
}

var specs = []keySpec{
	{
		key: "server.port", typ: kInt, env: "CLIPSIGN_SERVER_PORT",
		apply:   func(cfg *Config, v any) { cfg.Server.Port = v.(int) },
		extract: func(cfg Config) any { return cfg.Server.Port },
	},
	{
		key: "signing.library_path", typ: kString, env: "CLIPSIGN_SIGNING_LIBRARY_PATH",
		apply:   func(cfg *Config, v any) { cfg.Signing.LibraryPath = v.(string) },
		extract: func(cfg Config) any { return cfg.Signing.LibraryPath },
	},
	{
		key: "signing.signer_path", typ: kString, env: "CLIPSIGN_SIGNING_SIGNER_PATH",
		apply:   func(cfg *Config, v any) { cfg.Signing.SignerPath = v.(string) },
		extract: func(cfg Config) any { return cfg.Signing.SignerPath },
	},
	{
		key: "signing.key_path", typ: kString, env: "CLIPSIGN_SIGNING_KEY_PATH",
		apply:   func(cfg *Config, v any) { cfg.Signing.KeyPath = v.(string) },
		extract: func(cfg Config) any { return cfg.Signing.KeyPath },
	},
	{
		key: "signing.key_passphrase", typ: kString, env: "CLIPSIGN_SIGNING_KEY_PASSPHRASE",
		secret:  true,
		apply:   func(cfg *Config, v any) { cfg.Signing.KeyPassphrase = v.(string) },
		extract: func(cfg Config) any { return cfg.Signing.KeyPassphrase },
	},
	{
		key: "signing.timeout", typ: kString, env: "CLIPSIGN_SIGNING_TIMEOUT",
		apply:   func(cfg *Config, v any) { cfg.Signing.Timeout = v.(string) },
		extract: func(cfg Config) any { return cfg.Signing.Timeout },
	},
	{
		key: "signing.max_concurrent", typ: kInt, env: "CLIPSIGN_SIGNING_MAX_CONCURRENT",
		apply:   func(cfg *Config, v any) { cfg.Signing.MaxConcurrent = v.(int) },
		extract: func(cfg Config) any { return cfg.Signing.MaxConcurrent },
	},
	{
		key: "signing.gst_plugin_path", typ: kString, env: "CLIPSIGN_SIGNING_GST_PLUGIN_PATH",
		apply:   func(cfg *Config, v any) { cfg.Signing.GSTPluginPath = v.(string) },
		extract: func(cfg Config) any { return cfg.Signing.GSTPluginPath },
	},
	{
		key: "storage.data_dir", typ: kString, env: "CLIPSIGN_STORAGE_DATA_DIR",
		apply:   func(cfg *Config, v any) { cfg.Storage.DataDir = v.(string) },
		extract: func(cfg Config) any { return cfg.Storage.DataDir },
	},
	{
		key: "storage.staging_dir", typ: kString, env: "CLIPSIGN_STORAGE_STAGING_DIR",
		apply:   func(cfg *Config, v any) { cfg.Storage.StagingDir = v.(string) },
		extract: func(cfg Config) any { return cfg.Storage.StagingDir },
	},
	{
		key: "media.formats", typ: kString, env: "CLIPSIGN_MEDIA_FORMATS",
		apply:   func(cfg *Config, v any) { cfg.Media.Formats = v.(string) },
		extract: func(cfg Config) any { return cfg.Media.Formats },
	},
	{
		key: "log.level", typ: kString, env: "CLIPSIGN_LOG_LEVEL",
		apply:   func(cfg *Config, v any) { cfg.Log.Level = v.(string) },
		extract: func(cfg Config) any { return cfg.Log.Level },
	},
}

func applyBackend(cfg *Config, b ConfigBackend) error {
	for _, s := range specs {
		if s.secret {
			continue
		}
		switch s.typ {
		case kString:
			v, ok, err := b.GetString(s.key)
			if err != nil {
				return fmt.Errorf("reading %s: %w", s.key, err)
			}
			if ok {
				s.apply(cfg, v)
			}
		case kInt:
			v, ok, err := b.GetInt(s.key)
			if err != nil {
				return fmt.Errorf("reading %s: %w", s.key, err)
			}
			if ok {
				s.apply(cfg, v)
			}
		}
	}
	return nil
}

func applyEnvOverrides(cfg *Config) {
	for _, s := range specs {
		if s.env == "" {
			continue
		}
		raw := os.Getenv(s.env)
		if raw == "" {
			continue
		}
		switch s.typ {
		case kString:
			s.apply(cfg, raw)
		case kInt:
			if i, err := strconv.Atoi(raw); err == nil {
				s.apply(cfg, i)
			} else {
				fmt.Fprintf(os.Stderr, "[WARN] could not parse integer from env var %s=%q: %v. Using default value.\n", s.env, raw, err)
			}
		}
	}
}
