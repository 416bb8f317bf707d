package main

import (
	"context"
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
	"golang.org/x/sync/errgroup"

	"github.com/orgcopilot/orgcopilot/internal/agent"
	"github.com/orgcopilot/orgcopilot/internal/api"
	"github.com/orgcopilot/orgcopilot/internal/broadcast"
	"github.com/orgcopilot/orgcopilot/internal/config"
	"github.com/orgcopilot/orgcopilot/internal/conversation"
	"github.com/orgcopilot/orgcopilot/internal/storage"
)

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the orgcopilot server (foreground)",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServer()
	},
}

var stopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop the running orgcopilot server",
	RunE: func(cmd *cobra.Command, args []string) error {
		return stopServer()
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show orgcopilot system status",
	RunE: func(cmd *cobra.Command, args []string) error {
		return showStatus()
	},
}

func pidFilePath(dataDir string) string {
	return filepath.Join(dataDir, "orgcopilot.pid")
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
	fmt.Fprintf(os.Stderr, "orgcopilot version %s\n", version)

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

	// Ensure the local API bearer token exists.
	apiToken, err := config.APIToken(cfg.Storage.DataDir)
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
			printWarning("orgcopilot is already running (PID %d)", pid)
			return fmt.Errorf("server already running (PID %d)", pid)
		}
		printWarning("orgcopilot is already running on port %d", cfg.Server.Port)
		return fmt.Errorf("server already running on port %d", cfg.Server.Port)
	}
	if err := writePIDFile(pidPath); err != nil {
		return fmt.Errorf("writing PID file: %w", err)
	}
	defer removePIDFile(pidPath)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Open the transcript archive.
	archive, err := storage.Open(cfg.Storage.DataDir)
	if err != nil {
		return fmt.Errorf("opening storage: %w", err)
	}
	defer func() {
		if err := archive.Close(); err != nil {
			fmt.Fprintf(os.Stderr, "warning: closing storage: %v\n", err)
		}
	}()

	// Build the agent client and the two core components.
	callTimeout, err := time.ParseDuration(cfg.Agents.CallTimeout)
	if err != nil {
		slog.Warn("invalid agent call timeout, using default 30s", "value", cfg.Agents.CallTimeout, "error", err)
		callTimeout = 30 * time.Second
	}
	agents := agent.NewWithTimeout(cfg.Agents.BaseURL, cfg.Agents.APIKey, callTimeout)

	pipe := conversation.NewPipeline(agents, conversation.AgentIDs{
		Router:       cfg.Agents.Router,
		Orchestrator: cfg.Agents.Orchestrator,
	}, conversation.NewStore(), archive, slog.Default())

	flow := broadcast.NewWorkflow(agents, broadcast.AgentIDs{
		Composer: cfg.Agents.Composer,
		Sender:   cfg.Agents.Sender,
	}, broadcast.NewStore(), archive, slog.Default())

	slog.Info("conversation session started", "session_id", pipe.SessionID())

	// Build HTTP handler and server.
	handler := api.NewHandler(api.Deps{
		Pipeline: pipe,
		Workflow: flow,
		Token:    apiToken,
	})

	addr := fmt.Sprintf("127.0.0.1:%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:    addr,
		Handler: handler,
	}

	// Build the MCP server (stdio transport).
	mcpSrv := api.NewMCPServer(api.MCPDeps{
		Pipeline: pipe,
		Workflow: flow,
	})
	stdioSrv := server.NewStdioServer(mcpSrv)

	// Run both transports until a signal or the first fatal error.
	g, gCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		fmt.Fprintf(os.Stderr, "orgcopilot listening on %s\n", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		slog.Info("MCP server started (stdio transport)")
		if err := stdioSrv.Listen(gCtx, os.Stdin, os.Stdout); err != nil && !errors.Is(err, context.Canceled) {
			slog.Error("MCP stdio server error", "error", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gCtx.Done()
		fmt.Fprintln(os.Stderr, "shutting down...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	return g.Wait()
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
		printError("orgcopilot is not running (no PID file)")
		return fmt.Errorf("not running: %w", err)
	}

	process, err := os.FindProcess(pid)
	if err != nil {
		printError("could not find process %d", pid)
		return err
	}

	if err := process.Signal(syscall.SIGTERM); err != nil {
		printError("could not stop orgcopilot (PID %d): %v", pid, err)
		removePIDFile(pidPath)
		return err
	}

	printSuccess("Sent stop signal to orgcopilot (PID %d)", pid)
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

	running := false
	resp, err := client.Get(serverURL + "/health")
	if err != nil {
		printStatus("Server", "stopped")
	} else {
		resp.Body.Close()
		if resp.StatusCode == 200 {
			running = true
			printStatus("Server", "running on port %d", cfg.Server.Port)
		} else {
			printStatus("Server", "error (HTTP %d)", resp.StatusCode)
		}
	}

	printStatus("Agent endpoint", "%s", cfg.Agents.BaseURL)
	printStatus("Router agent", "%s", cfg.Agents.Router)
	printStatus("Orchestrator agent", "%s", cfg.Agents.Orchestrator)
	printStatus("Composer agent", "%s", cfg.Agents.Composer)
	printStatus("Sender agent", "%s", cfg.Agents.Sender)

	// Show turn/broadcast counts if server is running.
	if running {
		if apiClient, err := newAPIClient(); err == nil {
			var turns []struct {
				ID string `json:"id"`
			}
			if resp, err := apiClient.get("/history?limit=100"); err == nil {
				if decodeJSON(resp, &turns) == nil {
					printStatus("Turns", "%s", countLabel(len(turns), 100))
				}
			}
			var drafts []struct {
				ID string `json:"id"`
			}
			if resp, err := apiClient.get("/broadcasts"); err == nil {
				if decodeJSON(resp, &drafts) == nil {
					printStatus("Broadcasts", "%d", len(drafts))
				}
			}
		}
	}

	printStatus("Data dir", "%s", cfg.Storage.DataDir)
	return nil
}

func countLabel(count, limit int) string {
	if count >= limit {
		return fmt.Sprintf("%d+", count)
	}
	return fmt.Sprintf("%d", count)
}
