package signer

import (
	"log/slog"
	"os"
)

// Diagnostics reports whether each external signing dependency is present
// on disk. Each flag is independent; checking never fails.
type Diagnostics struct {
	SigningLibrary   bool `json:"signing_library"`
	SignerExecutable bool `json:"signer_executable"`
	PrivateKey       bool `json:"private_key"`
}

// CheckDeps probes the signing library, the signer executable, and the key
// material paths.
func CheckDeps(libraryPath, signerPath, keyPath string) Diagnostics {
	return Diagnostics{
		SigningLibrary:   pathExists(libraryPath),
		SignerExecutable: pathExists(signerPath),
		PrivateKey:       pathExists(keyPath),
	}
}

func pathExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// LogMissing reports absent dependencies at startup. Missing pieces are an
// operational warning, not a reason to refuse to start: status and artifact
// queries still work without them.
func (d Diagnostics) LogMissing(logger *slog.Logger, libraryPath, signerPath, keyPath string) {
	if d.SigningLibrary && d.SignerExecutable && d.PrivateKey {
		logger.Info("all signing dependencies found")
		return
	}
	if !d.SigningLibrary {
		logger.Error("signing library not found", "path", libraryPath)
	}
	if !d.SignerExecutable {
		logger.Error("signer executable not found", "path", signerPath)
	}
	if !d.PrivateKey {
		logger.Error("private key not found", "path", keyPath)
	}
}
