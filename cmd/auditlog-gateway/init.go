// ABOUTME: init subcommand writing a gateway config file from interactive prompts
// ABOUTME: Generates a random jwt_secret so admin tokens work out of the box

package main

import (
	"bufio"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

type initAnswers struct {
	grpcAddr    string
	httpAddr    string
	dbPath      string
	authKey     string
	jwtSecret   string
	baseURL     string
	tailscale   bool
	tsHostname  string
	tsEphemeral bool
	tsFunnel    bool
	logLevel    string
	logFormat   string
}

func runInit(in io.Reader, out io.Writer, defaultConfigPath, dataPath string) error {
	reader := bufio.NewReader(in)

	fmt.Fprintln(out, "auditlog-gateway configuration setup")
	fmt.Fprintln(out, "====================================")
	fmt.Fprintln(out)

	outputFile := prompt(reader, out, "Config file path", defaultConfigPath)

	if _, err := os.Stat(outputFile); err == nil {
		if !yes(prompt(reader, out, "File exists. Overwrite?", "no")) {
			fmt.Fprintln(out, "Aborted.")
			return nil
		}
	}

	secret, err := randomSecret()
	if err != nil {
		return err
	}

	var a initAnswers
	a.jwtSecret = secret

	fmt.Fprintln(out, "\n--- Server Configuration ---")
	a.grpcAddr = prompt(reader, out, "gRPC address", "localhost:50061")
	a.httpAddr = prompt(reader, out, "HTTP address", "localhost:8090")

	fmt.Fprintln(out, "\n--- Journal ---")
	a.dbPath = prompt(reader, out, "SQLite journal path ('-' for memory only)", filepath.Join(dataPath, "journal.db"))
	if a.dbPath == "-" {
		a.dbPath = ""
	}

	fmt.Fprintln(out, "\n--- Write Authorization ---")
	a.authKey = prompt(reader, out, "Auth key", "${BACKEND_AUTH_KEY}")

	fmt.Fprintln(out, "\n--- Links ---")
	a.baseURL = prompt(reader, out, "Public base URL for entry links", "http://"+a.httpAddr)

	fmt.Fprintln(out, "\n--- Tailscale Configuration ---")
	a.tailscale = yes(prompt(reader, out, "Enable Tailscale?", "no"))
	if a.tailscale {
		a.tsHostname = prompt(reader, out, "Tailscale hostname", "auditlog")
		a.tsEphemeral = yes(prompt(reader, out, "Ephemeral node?", "no"))
		a.tsFunnel = yes(prompt(reader, out, "Enable Funnel (public HTTPS)?", "no"))
	}

	fmt.Fprintln(out, "\n--- Logging Configuration ---")
	a.logLevel = prompt(reader, out, "Log level (debug/info/warn/error)", "info")
	a.logFormat = prompt(reader, out, "Log format (text/json)", "text")

	if err := os.MkdirAll(filepath.Dir(outputFile), 0755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}
	// 0600: the file carries the jwt secret.
	if err := os.WriteFile(outputFile, []byte(renderConfig(a)), 0600); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}

	if a.dbPath != "" {
		if err := os.MkdirAll(filepath.Dir(a.dbPath), 0755); err != nil {
			return fmt.Errorf("creating data directory: %w", err)
		}
	}

	fmt.Fprintf(out, "\nConfig written to %s\n", outputFile)
	fmt.Fprintln(out, "\nNext steps:")
	fmt.Fprintln(out, "  auditlog-gateway token --subject you   # admin token for auditctl set-key")
	fmt.Fprintln(out, "  auditlog-gateway serve")
	return nil
}

func renderConfig(a initAnswers) string {
	var cfg strings.Builder
	cfg.WriteString("# auditlog-gateway configuration\n")
	cfg.WriteString("# Generated by auditlog-gateway init\n\n")

	cfg.WriteString("server:\n")
	fmt.Fprintf(&cfg, "  grpc_addr: %q\n", a.grpcAddr)
	fmt.Fprintf(&cfg, "  http_addr: %q\n\n", a.httpAddr)

	cfg.WriteString("database:\n")
	fmt.Fprintf(&cfg, "  path: %q\n\n", a.dbPath)

	cfg.WriteString("auth:\n")
	fmt.Fprintf(&cfg, "  auth_key: %q\n", a.authKey)
	fmt.Fprintf(&cfg, "  jwt_secret: %q\n\n", a.jwtSecret)

	cfg.WriteString("dedupe:\n")
	cfg.WriteString("  ttl: \"10m\"\n")
	cfg.WriteString("  max_entries: 100000\n\n")

	cfg.WriteString("links:\n")
	fmt.Fprintf(&cfg, "  base_url: %q\n\n", a.baseURL)

	cfg.WriteString("tailscale:\n")
	fmt.Fprintf(&cfg, "  enabled: %t\n", a.tailscale)
	if a.tailscale {
		fmt.Fprintf(&cfg, "  hostname: %q\n", a.tsHostname)
		cfg.WriteString("  auth_key: \"${TS_AUTHKEY}\"\n")
		fmt.Fprintf(&cfg, "  ephemeral: %t\n", a.tsEphemeral)
		fmt.Fprintf(&cfg, "  funnel: %t\n", a.tsFunnel)
	}
	cfg.WriteString("\n")

	cfg.WriteString("logging:\n")
	fmt.Fprintf(&cfg, "  level: %q\n", a.logLevel)
	fmt.Fprintf(&cfg, "  format: %q\n", a.logFormat)
	return cfg.String()
}

func randomSecret() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generating JWT secret: %w", err)
	}
	return base64.StdEncoding.EncodeToString(b), nil
}

func yes(s string) bool {
	s = strings.ToLower(s)
	return s == "yes" || s == "y"
}

func prompt(reader *bufio.Reader, out io.Writer, question, defaultVal string) string {
	if defaultVal != "" {
		fmt.Fprintf(out, "%s [%s]: ", question, defaultVal)
	} else {
		fmt.Fprintf(out, "%s: ", question)
	}

	input, err := reader.ReadString('\n')
	if err != nil {
		// On EOF or error, return default
		fmt.Fprintln(out)
		return defaultVal
	}
	input = strings.TrimSpace(input)

	if input == "" {
		return defaultVal
	}
	return input
}
