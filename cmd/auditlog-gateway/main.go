// ABOUTME: Entry point for the auditlog-gateway server
// ABOUTME: Subcommands serve, init, token and health share the XDG config path

package main

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/fatih/color"

	"github.com/2389/auditlog-gateway/internal/config"
	"github.com/2389/auditlog-gateway/internal/gateway"
)

// Version is set by goreleaser at build time.
var version = "dev"

const banner = `
                  _ _ _   _
  __ _ _   _  __| (_) |_| | ___   __ _
 / _' | | | |/ _' | | __| |/ _ \ / _' |
| (_| | |_| | (_| | | |_| | (_) | (_| |
 \__,_|\__,_|\__,_|_|\__|_|\___/ \__, |
                                 |___/
`

func main() {
	if len(os.Args) < 2 {
		fmt.Println("Usage: auditlog-gateway <command>")
		fmt.Println()
		fmt.Println("Commands:")
		fmt.Println("  serve                      Start the gateway server")
		fmt.Println("  init                       Create a new config file interactively")
		fmt.Println("  token --subject NAME       Issue an admin token for set-key")
		fmt.Println("  health                     Check gateway health")
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	var err error
	switch os.Args[1] {
	case "serve":
		err = runServe(ctx)
	case "init":
		err = runInit(os.Stdin, os.Stdout, config.Path(), config.DataPath())
	case "token":
		err = runToken(ctx, os.Args[2:], config.Path(), os.Stdout)
	case "health":
		err = runHealth(ctx, os.Stdout)
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", os.Args[1])
		os.Exit(1)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func runServe(ctx context.Context) error {
	configPath := config.Path()

	cyan := color.New(color.FgCyan)
	cyan.Print(banner)

	gray := color.New(color.FgHiBlack)
	gray.Printf("    version: %s\n\n", version)

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	logger := setupLogger(cfg.Logging, os.Stdout)

	green := color.New(color.FgGreen)
	yellow := color.New(color.FgYellow)

	green.Print("    ▶ ")
	fmt.Printf("Config:    %s\n", configPath)
	green.Print("    ▶ ")
	fmt.Printf("gRPC:      %s\n", cfg.Server.GRPCAddr)
	green.Print("    ▶ ")
	fmt.Printf("HTTP:      %s\n", cfg.Server.HTTPAddr)

	green.Print("    ▶ ")
	fmt.Printf("Journal:   ")
	if cfg.Database.Path != "" {
		fmt.Println(cfg.Database.Path)
	} else {
		yellow.Println("memory only")
	}

	if cfg.Auth.AuthKey == "" && cfg.Auth.AuthKeyFile == "" {
		yellow.Println("    ! no auth key configured, writes are refused until one is set")
	}

	if cfg.Tailscale.Enabled {
		green.Print("    ▶ ")
		fmt.Printf("Tailscale: ")
		cyan.Print(cfg.Tailscale.Hostname)
		if cfg.Tailscale.Funnel {
			yellow.Print(" [funnel]")
		}
		if cfg.Tailscale.Ephemeral {
			gray.Print(" (ephemeral)")
		}
		fmt.Println()
	}

	if cfg.Notify.Matrix.Enabled {
		green.Print("    ▶ ")
		fmt.Printf("Matrix:    %s %v\n", cfg.Notify.Matrix.RoomID, cfg.Notify.Matrix.Levels)
	}

	fmt.Println()

	logger.Info("starting auditlog-gateway",
		"config", configPath,
		"grpc_addr", cfg.Server.GRPCAddr,
		"http_addr", cfg.Server.HTTPAddr,
	)

	gw, err := gateway.New(cfg, logger)
	if err != nil {
		return fmt.Errorf("creating gateway: %w", err)
	}

	return gw.Run(ctx)
}

func runHealth(ctx context.Context, out io.Writer) error {
	cfg, err := config.Load(config.Path())
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	return checkHealth(ctx, "http://"+cfg.Server.HTTPAddr, out)
}

// checkHealth probes /health and /health/ready on base and prints the
// readiness line.
func checkHealth(ctx context.Context, base string, out io.Writer) error {
	get := func(path string) (int, string, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, base+path, nil)
		if err != nil {
			return 0, "", fmt.Errorf("creating request: %w", err)
		}
		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			return 0, "", fmt.Errorf("health check failed: %w", err)
		}
		defer resp.Body.Close()
		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return 0, "", fmt.Errorf("reading response: %w", err)
		}
		return resp.StatusCode, string(body), nil
	}

	code, _, err := get("/health")
	if err != nil {
		return err
	}
	if code != http.StatusOK {
		return fmt.Errorf("unhealthy: status %d", code)
	}

	code, body, err := get("/health/ready")
	if err != nil {
		return err
	}
	if code != http.StatusOK {
		fmt.Fprintf(out, "healthy, not ready: %s\n", body)
		return nil
	}
	fmt.Fprintf(out, "healthy, %s\n", body)
	return nil
}
