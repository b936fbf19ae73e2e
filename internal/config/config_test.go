package config

import (
	"testing"
)

// mapBackend is an in-memory ConfigBackend for tests.
type mapBackend struct {
	data map[string]any
}

func (m *mapBackend) GetString(key string) (string, bool, error) {
	v, ok := m.data[key]
	if !ok {
		return "", false, nil
	}
	return v.(string), true, nil
}

func (m *mapBackend) GetInt(key string) (int, bool, error) {
	v, ok := m.data[key]
	if !ok {
		return 0, false, nil
	}
	return v.(int), true, nil
}

func (m *mapBackend) SetString(key, val string) error { m.data[key] = val; return nil }
func (m *mapBackend) SetInt(key string, val int) error { m.data[key] = val; return nil }
func (m *mapBackend) Delete(key string) error          { delete(m.data, key); return nil }

func TestDefaults(t *testing.T) {
	cfg, err := loadWith(&mapBackend{data: map[string]any{}})
	if err != nil {
		t.Fatalf("loadWith: %v", err)
	}

	if cfg.Server.Port != 8000 {
		t.Errorf("Server.Port = %d, want 8000", cfg.Server.Port)
	}
	if cfg.Signing.SignerPath != "/usr/local/bin/signer" {
		t.Errorf("Signing.SignerPath = %q", cfg.Signing.SignerPath)
	}
	if cfg.Signing.Timeout != "300s" {
		t.Errorf("Signing.Timeout = %q, want 300s", cfg.Signing.Timeout)
	}
	if cfg.Signing.MaxConcurrent != 2 {
		t.Errorf("Signing.MaxConcurrent = %d, want 2", cfg.Signing.MaxConcurrent)
	}
	if cfg.Media.Formats != ".mp4,.mov,.avi,.mkv,.m4v" {
		t.Errorf("Media.Formats = %q", cfg.Media.Formats)
	}
	if cfg.Signing.KeyPassphrase != "" {
		t.Errorf("Signing.KeyPassphrase = %q, want empty default", cfg.Signing.KeyPassphrase)
	}
}

func TestBackendValuesApplied(t *testing.T) {
	cfg, err := loadWith(&mapBackend{data: map[string]any{
		"server.port":         9000,
		"signing.signer_path": "/opt/signer",
	}})
	if err != nil {
		t.Fatalf("loadWith: %v", err)
	}
	if cfg.Server.Port != 9000 {
		t.Errorf("Server.Port = %d, want 9000", cfg.Server.Port)
	}
	if cfg.Signing.SignerPath != "/opt/signer" {
		t.Errorf("Signing.SignerPath = %q", cfg.Signing.SignerPath)
	}
}

func TestEnvOverridesBackend(t *testing.T) {
	t.Setenv("CLIPSIGN_SERVER_PORT", "7777")
	t.Setenv("CLIPSIGN_SIGNING_KEY_PASSPHRASE", "s3cret")
	t.Setenv("CLIPSIGN_MEDIA_FORMATS", ".mp4")

	cfg, err := loadWith(&mapBackend{data: map[string]any{
		"server.port": 9000,
	}})
	if err != nil {
		t.Fatalf("loadWith: %v", err)
	}
	if cfg.Server.Port != 7777 {
		t.Errorf("Server.Port = %d, want env override 7777", cfg.Server.Port)
	}
	if cfg.Signing.KeyPassphrase != "s3cret" {
		t.Errorf("Signing.KeyPassphrase not taken from env")
	}
	if cfg.Media.Formats != ".mp4" {
		t.Errorf("Media.Formats = %q, want .mp4", cfg.Media.Formats)
	}
}

func TestEnvBadIntegerKeepsDefault(t *testing.T) {
	t.Setenv("CLIPSIGN_SIGNING_MAX_CONCURRENT", "lots")

	cfg, err := loadWith(&mapBackend{data: map[string]any{}})
	if err != nil {
		t.Fatalf("loadWith: %v", err)
	}
	if cfg.Signing.MaxConcurrent != 2 {
		t.Errorf("Signing.MaxConcurrent = %d, want default 2", cfg.Signing.MaxConcurrent)
	}
}

func TestSecretsExcludedFromShowAll(t *testing.T) {
	cfg := defaults()
	for _, info := range ShowAll(cfg) {
		if info.Key == "signing.key_passphrase" {
			t.Error("ShowAll exposes the key passphrase")
		}
	}
}

func TestValidKeysCoversSpecs(t *testing.T) {
	keys := ValidKeys()
	want := len(specs) - 1 // all but the secret
	if len(keys) != want {
		t.Errorf("ValidKeys() has %d entries, want %d", len(keys), want)
	}
}

func TestGetAPIToken_StableAcrossCalls(t *testing.T) {
	dir := t.TempDir()
	first, err := GetAPIToken(dir)
	if err != nil {
		t.Fatalf("GetAPIToken: %v", err)
	}
	if first == "" {
		t.Fatal("empty token")
	}
	second, err := GetAPIToken(dir)
	if err != nil {
		t.Fatalf("GetAPIToken (second): %v", err)
	}
	if first != second {
		t.Errorf("token changed between calls: %q != %q", first, second)
	}
}
