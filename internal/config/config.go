// Package config builds the service configuration once at startup. Values
// come from defaults, then the JSON config file, then CLIPSIGN_* environment
// variables; the resulting Config is passed by value into each component.
package config

import (
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
)

type Config struct {
	Server  ServerConfig
	Signing SigningConfig
	Storage StorageConfig
	Media   MediaConfig
	Log     LogConfig
}

type ServerConfig struct {
	Port int
}

type SigningConfig struct {
	LibraryPath   string // signed video framework shared library
	SignerPath    string // signer executable
	KeyPath       string // private key material
	KeyPassphrase string // optional, env-only
	Timeout       string // duration string, e.g. "300s"
	MaxConcurrent int    // simultaneous signer invocations
	GSTPluginPath string // GST_PLUGIN_PATH for the signer's environment
}

type StorageConfig struct {
	DataDir    string // database and API token
	StagingDir string // staged uploads and signed artifacts
}

type MediaConfig struct {
	Formats string // comma-separated accepted extensions
}

type LogConfig struct {
	Level string
}

func defaults() Config {
	return Config{
		Server: ServerConfig{
			Port: 8000,
		},
		Signing: SigningConfig{
			LibraryPath:   "/usr/local/lib/libsigned-video-framework.so",
			SignerPath:    "/usr/local/bin/signer",
			KeyPath:       "/etc/video-signing/private.pem",
			Timeout:       "300s",
			MaxConcurrent: 2,
			GSTPluginPath: "/usr/lib/x86_64-linux-gnu/gstreamer-1.0:/usr/local/lib/gstreamer-1.0",
		},
		Storage: StorageConfig{
			DataDir:    defaultDataDir(),
			StagingDir: filepath.Join(os.TempDir(), "clipsign"),
		},
		Media: MediaConfig{
			Formats: ".mp4,.mov,.avi,.mkv,.m4v",
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

func defaultDataDir() string {
	dir := os.Getenv("XDG_DATA_HOME")
	if dir == "" {
		if home, err := os.UserHomeDir(); err == nil {
			dir = filepath.Join(home, ".local", "share")
		} else {
			return "clipsign-data"
		}
	}
	return filepath.Join(dir, "clipsign")
}

// Load reads configuration from the JSON file backend at
// $XDG_CONFIG_HOME/clipsign/config.json, with CLIPSIGN_* environment
// variables overriding file values. A .env file in the working directory is
// loaded first if present.
func Load() (Config, error) {
	_ = godotenv.Load()
	return loadWith(newFileBackend())
}

func loadWith(b ConfigBackend) (Config, error) {
	cfg := defaults()
	if err := applyBackend(&cfg, b); err != nil {
		return Config{}, err
	}
	applyEnvOverrides(&cfg)
	return cfg, nil
}
