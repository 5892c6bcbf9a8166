// ABOUTME: Root cobra command for auditctl and the flags shared by every subcommand
// ABOUTME: Resolves the gateway address, admin token and link base from flags or environment

package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/2389/auditlog-gateway/internal/config"
	"github.com/2389/auditlog-gateway/internal/rpc"
)

// rootOptions holds global flags for all commands.
type rootOptions struct {
	GRPCAddr  string
	TokenPath string
	BaseURL   string
	Format    string // "text" | "json"
	Timeout   time.Duration

	// dial opens a client; tests swap it for an in-process connection.
	dial func(addr string, opts ...rpc.Option) (*rpc.Client, error)
}

var validFormats = []string{"text", "json"}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func newRootCommand() *cobra.Command {
	opts := &rootOptions{dial: rpc.Dial}
	return newRootCommandWith(opts)
}

func newRootCommandWith(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "auditctl",
		Short: "Operate an auditlog-gateway",
		Long: `auditctl talks to an auditlog-gateway over gRPC.

Writes need the shared auth key (--key or BACKEND_AUTH_KEY). Rotating the key
needs an admin token issued by "auditlog-gateway token".`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			for _, f := range validFormats {
				if f == opts.Format {
					return nil
				}
			}
			return fmt.Errorf("invalid format %q: must be one of %v", opts.Format, validFormats)
		},
	}

	cmd.PersistentFlags().StringVar(&opts.GRPCAddr, "addr", envOr("AUDITLOG_GATEWAY_GRPC", config.DefaultGRPCAddr), "gateway gRPC address")
	cmd.PersistentFlags().StringVar(&opts.TokenPath, "token-file", config.TokenPath(), "admin token file (AUDITLOG_TOKEN overrides)")
	cmd.PersistentFlags().StringVar(&opts.BaseURL, "base-url", envOr("AUDITLOG_GATEWAY_URL", "http://"+config.DefaultHTTPAddr), "public base URL for entry links")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (text|json)")
	cmd.PersistentFlags().DurationVar(&opts.Timeout, "timeout", 10*time.Second, "per-call timeout (0 for none)")

	cmd.AddCommand(newLogCommand(opts))
	cmd.AddCommand(newGetCommand(opts))
	cmd.AddCommand(newListCommand(opts))
	cmd.AddCommand(newCountCommand(opts))
	cmd.AddCommand(newSetKeyCommand(opts))
	cmd.AddCommand(newLinkCommand(opts))
	cmd.AddCommand(newTailCommand(opts))

	return cmd
}

// client connects to the gateway. withToken attaches the admin token.
func (o *rootOptions) client(withToken bool) (*rpc.Client, error) {
	var opts []rpc.Option
	if withToken {
		token, err := o.token()
		if err != nil {
			return nil, err
		}
		opts = append(opts, rpc.WithToken(token))
	}
	return o.dial(o.GRPCAddr, opts...)
}

// token returns AUDITLOG_TOKEN, or the token file's content.
func (o *rootOptions) token() (string, error) {
	if t := strings.TrimSpace(os.Getenv("AUDITLOG_TOKEN")); t != "" {
		return t, nil
	}
	data, err := os.ReadFile(o.TokenPath)
	if err != nil {
		return "", fmt.Errorf("reading admin token (run auditlog-gateway token first): %w", err)
	}
	token := strings.TrimSpace(string(data))
	if token == "" {
		return "", fmt.Errorf("admin token file %s is empty", o.TokenPath)
	}
	return token, nil
}

func (o *rootOptions) printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
