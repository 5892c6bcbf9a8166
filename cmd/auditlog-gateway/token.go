// ABOUTME: token subcommand issuing admin JWTs signed with the configured jwt_secret
// ABOUTME: Saves the token next to the config for auditctl and records it in the audit trail

package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fatih/color"

	"github.com/2389/auditlog-gateway/internal/auth"
	"github.com/2389/auditlog-gateway/internal/config"
	"github.com/2389/auditlog-gateway/internal/store"
)

// defaultTokenTTL is how long issued admin tokens stay valid.
const defaultTokenTTL = 30 * 24 * time.Hour

type tokenArgs struct {
	subject string
	ttl     time.Duration
}

// parseTokenArgs supports both "--flag value" and "--flag=value".
func parseTokenArgs(args []string) (tokenArgs, error) {
	out := tokenArgs{ttl: defaultTokenTTL}
	for i := 0; i < len(args); i++ {
		arg := args[i]
		name, value, hasValue := strings.Cut(arg, "=")
		switch name {
		case "--subject", "-s", "--ttl":
		default:
			if strings.HasPrefix(arg, "-") {
				return out, fmt.Errorf("unknown flag: %s", arg)
			}
			return out, fmt.Errorf("unexpected argument: %s", arg)
		}
		if !hasValue {
			if i+1 >= len(args) {
				return out, fmt.Errorf("%s requires a value", name)
			}
			value = args[i+1]
			i++
		}

		if name == "--ttl" {
			d, err := time.ParseDuration(value)
			if err != nil || d <= 0 {
				return out, fmt.Errorf("invalid --ttl %q", value)
			}
			out.ttl = d
			continue
		}
		out.subject = strings.TrimSpace(value)
	}

	if out.subject == "" {
		return out, fmt.Errorf("--subject flag is required")
	}
	if len(out.subject) > 100 {
		return out, fmt.Errorf("subject exceeds maximum length of 100 characters")
	}
	return out, nil
}

func runToken(ctx context.Context, args []string, configPath string, out io.Writer) error {
	opts, err := parseTokenArgs(args)
	if err != nil {
		return err
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if cfg.Auth.JWTSecret == "" {
		return fmt.Errorf("jwt_secret not configured in %s (required for admin tokens)", configPath)
	}

	verifier, err := auth.NewJWTVerifier([]byte(cfg.Auth.JWTSecret))
	if err != nil {
		return fmt.Errorf("creating JWT verifier: %w", err)
	}

	expiresAt := time.Now().Add(opts.ttl).UTC()
	token, err := verifier.Generate(opts.subject, auth.RoleAdmin, opts.ttl)
	if err != nil {
		return fmt.Errorf("generating token: %w", err)
	}

	tokenPath := filepath.Join(filepath.Dir(configPath), "token")
	if err := os.WriteFile(tokenPath, []byte(token), 0600); err != nil {
		return fmt.Errorf("writing token file: %w", err)
	}

	if cfg.Database.Path != "" {
		if err := recordTokenIssued(ctx, cfg.Database.Path, opts.subject, expiresAt); err != nil {
			return err
		}
	}

	green := color.New(color.FgGreen)
	green.Fprintf(out, "  ✓ Saved token: %s\n", tokenPath)
	fmt.Fprintf(out, "  Subject: %s\n", opts.subject)
	fmt.Fprintf(out, "  Role:    %s\n", auth.RoleAdmin)
	fmt.Fprintf(out, "  Expires: %s\n", expiresAt.Format("Jan 02, 2006"))
	return nil
}

func recordTokenIssued(ctx context.Context, dbPath, subject string, expiresAt time.Time) error {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return fmt.Errorf("creating data directory: %w", err)
	}
	s, err := store.NewSQLiteStore(dbPath)
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer s.Close()

	err = s.AppendAuditLog(ctx, &store.AuditEntry{
		Actor:  "cli",
		Action: store.AuditCreateToken,
		Detail: map[string]any{
			"subject":    subject,
			"expires_at": expiresAt.Format(time.RFC3339),
		},
	})
	if err != nil {
		return fmt.Errorf("recording token: %w", err)
	}
	return nil
}
