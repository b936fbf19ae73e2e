package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

// GetAPIToken returns the bearer token shared by the server and the CLI
// client, generating and persisting one on first use. The token file lives
// in the data directory with owner-only permissions.
func GetAPIToken(dataDir string) (string, error) {
	path := filepath.Join(dataDir, "api_token")

	data, err := os.ReadFile(path)
	if err == nil {
		if token := strings.TrimSpace(string(data)); token != "" {
			return token, nil
		}
	} else if !errors.Is(err, os.ErrNotExist) {
		return "", fmt.Errorf("reading API token: %w", err)
	}

	token := uuid.New().String()
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return "", fmt.Errorf("creating data directory: %w", err)
	}
	if err := os.WriteFile(path, []byte(token+"\n"), 0o600); err != nil {
		return "", fmt.Errorf("writing API token: %w", err)
	}
	return token, nil
}
