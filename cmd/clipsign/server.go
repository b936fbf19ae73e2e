package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"

	"github.com/clipsign/clipsign/internal/api"
	"github.com/clipsign/clipsign/internal/config"
	"github.com/clipsign/clipsign/internal/jobs"
	"github.com/clipsign/clipsign/internal/media"
	"github.com/clipsign/clipsign/internal/signer"
	"github.com/clipsign/clipsign/internal/storage"
)

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the clipsign server (foreground)",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServer()
	},
}

var stopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop the running clipsign server",
	RunE: func(cmd *cobra.Command, args []string) error {
		return stopServer()
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show clipsign system status",
	RunE: func(cmd *cobra.Command, args []string) error {
		return showStatus()
	},
}

func pidFilePath(dataDir string) string {
	return filepath.Join(dataDir, "clipsign.pid")
}

func writePIDFile(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, []byte(strconv.Itoa(os.Getpid())), 0o644)
}

func readPIDFile(path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	return strconv.Atoi(strings.TrimSpace(string(data)))
}

func removePIDFile(path string) {
	os.Remove(path)
}

func runServer() error {
	fmt.Fprintf(os.Stderr, "clipsign version %s\n", version)

	cfg, err := config.Load()
	if err != nil {
		return err
	}

	// Initialize structured logging.
	logLevel := slog.LevelInfo
	if strings.EqualFold(cfg.Log.Level, "debug") {
		logLevel = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel})))

	// Ensure the API bearer token exists in the data dir.
	apiToken, err := config.GetAPIToken(cfg.Storage.DataDir)
	if err != nil {
		return fmt.Errorf("initializing API token: %w", err)
	}
	slog.Info("API bearer token available")

	// Write PID file. Check if server is already running via health endpoint.
	pidPath := pidFilePath(cfg.Storage.DataDir)
	healthURL := fmt.Sprintf("http://127.0.0.1:%d/health", cfg.Server.Port)
	healthClient := &http.Client{Timeout: 2 * time.Second}
	if resp, err := healthClient.Get(healthURL); err == nil {
		resp.Body.Close()
		if pid, pidErr := readPIDFile(pidPath); pidErr == nil {
			printWarning("clipsign is already running (PID %d)", pid)
			return fmt.Errorf("server already running (PID %d)", pid)
		}
		printWarning("clipsign is already running on port %d", cfg.Server.Port)
		return fmt.Errorf("server already running on port %d", cfg.Server.Port)
	}
	if err := writePIDFile(pidPath); err != nil {
		return fmt.Errorf("writing PID file: %w", err)
	}
	defer removePIDFile(pidPath)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Probe signing dependencies. Missing pieces are logged, not fatal:
	// the query side of the service works without them.
	checkHealth := func() signer.Diagnostics {
		return signer.CheckDeps(cfg.Signing.LibraryPath, cfg.Signing.SignerPath, cfg.Signing.KeyPath)
	}
	checkHealth().LogMissing(slog.Default(), cfg.Signing.LibraryPath, cfg.Signing.SignerPath, cfg.Signing.KeyPath)

	// Open storage.
	store, err := storage.Open(cfg.Storage.DataDir)
	if err != nil {
		return fmt.Errorf("opening storage: %w", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			fmt.Fprintf(os.Stderr, "warning: closing storage: %v\n", err)
		}
	}()

	// Build the signing pipeline.
	signTimeout, err := time.ParseDuration(cfg.Signing.Timeout)
	if err != nil {
		slog.Warn("invalid signing timeout, using default", "value", cfg.Signing.Timeout, "error", err)
		signTimeout = signer.DefaultTimeout
	}
	invoker := &signer.Invoker{
		Executable:    cfg.Signing.SignerPath,
		KeyPath:       cfg.Signing.KeyPath,
		KeyPassphrase: cfg.Signing.KeyPassphrase,
		PluginPath:    cfg.Signing.GSTPluginPath,
		Timeout:       signTimeout,
	}
	orch := jobs.NewOrchestrator(store, invoker, jobs.Options{
		StagingDir:    cfg.Storage.StagingDir,
		Formats:       media.ParseFormats(cfg.Media.Formats),
		MaxConcurrent: int64(cfg.Signing.MaxConcurrent),
	})

	// Build HTTP handler and server.
	handler := api.NewHandler(api.Deps{
		Jobs:   orch,
		Token:  apiToken,
		Health: checkHealth,
	})

	addr := fmt.Sprintf("127.0.0.1:%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:    addr,
		Handler: handler,
	}

	// Build and start MCP server (stdio transport in a goroutine).
	mcpSrv := api.NewMCPServer(api.MCPDeps{
		Jobs:   orch,
		Health: checkHealth,
	})
	stdioSrv := server.NewStdioServer(mcpSrv)
	go func() {
		if err := stdioSrv.Listen(ctx, os.Stdin, os.Stdout); err != nil && !errors.Is(err, context.Canceled) {
			slog.Error("MCP stdio server error", "error", err)
		}
	}()
	slog.Info("MCP server started (stdio transport)")

	// Start server in a goroutine.
	errCh := make(chan error, 1)
	go func() {
		fmt.Fprintf(os.Stderr, "clipsign listening on %s\n", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	// Wait for signal or server error.
	select {
	case <-ctx.Done():
		fmt.Fprintln(os.Stderr, "shutting down...")
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
	}

	// Graceful shutdown: stop accepting requests, then let in-flight
	// signing finish within a bounded window.
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("HTTP shutdown error", "error", err)
	}
	return orch.Shutdown(shutdownCtx)
}

func stopServer() error {
	cfg, err := config.Load()
	if err != nil {
		printError("could not load config: %v", err)
		return err
	}

	pidPath := pidFilePath(cfg.Storage.DataDir)
	pid, err := readPIDFile(pidPath)
	if err != nil {
		printError("clipsign is not running (no PID file)")
		return fmt.Errorf("not running: %w", err)
	}

	process, err := os.FindProcess(pid)
	if err != nil {
		printError("could not find process %d", pid)
		return err
	}

	if err := process.Signal(syscall.SIGTERM); err != nil {
		printError("could not stop clipsign (PID %d): %v", pid, err)
		removePIDFile(pidPath)
		return err
	}

	printSuccess("Sent stop signal to clipsign (PID %d)", pid)
	return nil
}

func showStatus() error {
	cfg, err := config.Load()
	if err != nil {
		// Still show partial status even if config fails.
		printError("config error: %v", err)
		return nil
	}

	// Check server health.
	serverURL := fmt.Sprintf("http://127.0.0.1:%d", cfg.Server.Port)
	client := &http.Client{Timeout: 2 * time.Second}

	resp, err := client.Get(serverURL + "/health")
	if err != nil {
		printStatus("Server", "stopped")
	} else {
		defer resp.Body.Close()
		if resp.StatusCode == 200 {
			printStatus("Server", "running on port %d", cfg.Server.Port)

			var health struct {
				Dependencies signer.Diagnostics `json:"dependencies"`
			}
			if json.NewDecoder(resp.Body).Decode(&health) == nil {
				printStatus("Signing library", "%s", presenceLabel(health.Dependencies.SigningLibrary))
				printStatus("Signer", "%s", presenceLabel(health.Dependencies.SignerExecutable))
				printStatus("Private key", "%s", presenceLabel(health.Dependencies.PrivateKey))
			}
		} else {
			printStatus("Server", "error (HTTP %d)", resp.StatusCode)
		}
	}

	// Show recent job count if server is running.
	apiToken, tokenErr := config.GetAPIToken(cfg.Storage.DataDir)
	if tokenErr == nil && resp != nil && resp.StatusCode == 200 {
		jobsResp, err := apiGet(client, serverURL+"/videos?limit=100", apiToken)
		if err == nil {
			var videos []json.RawMessage
			if json.NewDecoder(jobsResp.Body).Decode(&videos) == nil {
				printStatus("Jobs", "%s", countLabel(len(videos), 100))
			}
			jobsResp.Body.Close()
		}
	}

	printStatus("Data dir", "%s", cfg.Storage.DataDir)
	printStatus("Staging dir", "%s", cfg.Storage.StagingDir)
	return nil
}

func presenceLabel(present bool) string {
	if present {
		return "found"
	}
	return "missing"
}

func countLabel(count, limit int) string {
	if count >= limit {
		return fmt.Sprintf("%d+", count)
	}
	return fmt.Sprintf("%d", count)
}

func apiGet(client *http.Client, url, token string) (*http.Response, error) {
	req, err := http.NewRequest("GET", url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	return client.Do(req)
}
