// ABOUTME: auditctl subcommands: log, get, list, count, set-key, link and tail
// ABOUTME: Each maps onto one LogService call; text output goes through internal/view

package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/2389/auditlog-gateway/internal/links"
	"github.com/2389/auditlog-gateway/internal/logstore"
	"github.com/2389/auditlog-gateway/internal/rpc"
	"github.com/2389/auditlog-gateway/internal/view"
)

// callContext bounds a single unary call by --timeout.
func (o *rootOptions) callContext(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	if o.Timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, o.Timeout)
}

func newLogCommand(opts *rootOptions) *cobra.Command {
	var key, requestID string

	cmd := &cobra.Command{
		Use:   "log <level> <message...>",
		Short: "Append an entry",
		Example: `  auditctl log ERROR "disk full on db-1"
  auditctl log INFO deploy finished --request-id deploy-4711`,
		Args: cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			if key == "" {
				key = os.Getenv("BACKEND_AUTH_KEY")
			}
			level, message := args[0], strings.Join(args[1:], " ")

			c, err := opts.client(false)
			if err != nil {
				return err
			}
			defer c.Close()

			ctx, cancel := opts.callContext(cmd)
			defer cancel()

			var id uint64
			if requestID != "" {
				id, err = c.LogWithRequestID(ctx, requestID, key, level, message)
			} else {
				id, err = c.Log(ctx, key, level, message)
			}
			if err != nil {
				if errors.Is(err, logstore.ErrUnauthorized) {
					return fmt.Errorf("gateway refused the write: %w", err)
				}
				return err
			}

			link := links.EntryURL(opts.BaseURL, id)
			if opts.Format == "json" {
				return opts.printJSON(cmd.OutOrStdout(), map[string]any{"id": id, "link": link})
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%d\t%s\n", id, link)
			return nil
		},
	}

	cmd.Flags().StringVarP(&key, "key", "k", "", "auth key (default $BACKEND_AUTH_KEY)")
	cmd.Flags().StringVar(&requestID, "request-id", "", "idempotency key; retries return the first id")
	return cmd
}

func newGetCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "get <id|link>",
		Short: "Show one entry",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := links.ParseEntryRef(args[0])
			if err != nil {
				return err
			}

			c, err := opts.client(false)
			if err != nil {
				return err
			}
			defer c.Close()

			ctx, cancel := opts.callContext(cmd)
			defer cancel()

			e, ok, err := c.GetLog(ctx, id)
			if err != nil {
				return err
			}
			if !ok {
				return fmt.Errorf("entry %d not found", id)
			}

			out := cmd.OutOrStdout()
			if opts.Format == "json" {
				return opts.printJSON(out, e)
			}
			fmt.Fprintf(out, "ID:      %d\n", e.ID)
			fmt.Fprintf(out, "Time:    %s\n", view.FormatTimestamp(e.Timestamp, time.Local))
			fmt.Fprintf(out, "Level:   %s\n", levelColor(e.Level).Sprint(e.Level))
			fmt.Fprintf(out, "Link:    %s\n", links.EntryURL(opts.BaseURL, e.ID))
			fmt.Fprintln(out)
			fmt.Fprintln(out, e.Message)
			return nil
		},
	}
}

func newListCommand(opts *rootOptions) *cobra.Command {
	var sortKey, dir string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List every entry",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			key, direction, err := view.ParseSort(sortKey, dir)
			if err != nil {
				return err
			}

			c, err := opts.client(false)
			if err != nil {
				return err
			}
			defer c.Close()

			ctx, cancel := opts.callContext(cmd)
			defer cancel()

			entries, err := c.GetLogs(ctx)
			if err != nil {
				return err
			}
			entries = view.Sort(entries, key, direction)

			if opts.Format == "json" {
				return opts.printJSON(cmd.OutOrStdout(), entries)
			}
			return view.RenderTable(cmd.OutOrStdout(), entries, time.Local)
		},
	}

	cmd.Flags().StringVar(&sortKey, "sort", "id", "sort key (id|date|level)")
	cmd.Flags().StringVar(&dir, "dir", "asc", "sort direction (asc|desc)")
	return cmd
}

func newCountCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "count",
		Short: "Print the number of entries",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := opts.client(false)
			if err != nil {
				return err
			}
			defer c.Close()

			ctx, cancel := opts.callContext(cmd)
			defer cancel()

			n, err := c.GetLogCount(ctx)
			if err != nil {
				return err
			}
			if opts.Format == "json" {
				return opts.printJSON(cmd.OutOrStdout(), map[string]uint64{"count": n})
			}
			fmt.Fprintln(cmd.OutOrStdout(), n)
			return nil
		},
	}
}

func newSetKeyCommand(opts *rootOptions) *cobra.Command {
	var fromStdin bool

	cmd := &cobra.Command{
		Use:   "set-key [new-key]",
		Short: "Rotate the write auth key (admin token required)",
		Long: `Rotate the write auth key. An empty key disables all writes.

Prefer --stdin so the key stays out of shell history.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var newKey string
			switch {
			case fromStdin && len(args) > 0:
				return fmt.Errorf("give the key as an argument or with --stdin, not both")
			case fromStdin:
				line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
				if err != nil && !errors.Is(err, io.EOF) {
					return fmt.Errorf("reading key: %w", err)
				}
				newKey = strings.TrimSpace(line)
			case len(args) == 1:
				newKey = args[0]
			default:
				return fmt.Errorf("new key required (argument or --stdin)")
			}

			c, err := opts.client(true)
			if err != nil {
				return err
			}
			defer c.Close()

			ctx, cancel := opts.callContext(cmd)
			defer cancel()

			if err := c.SetAuthKey(ctx, newKey); err != nil {
				return fmt.Errorf("rotating auth key: %w", err)
			}

			if newKey == "" {
				color.New(color.FgYellow).Fprintln(cmd.OutOrStdout(), "auth key cleared, writes are disabled")
				return nil
			}
			color.New(color.FgGreen).Fprintln(cmd.OutOrStdout(), "auth key rotated")
			return nil
		},
	}

	cmd.Flags().BoolVar(&fromStdin, "stdin", false, "read the new key from stdin")
	return cmd
}

func newLinkCommand(opts *rootOptions) *cobra.Command {
	var qrPath string

	cmd := &cobra.Command{
		Use:   "link <id>",
		Short: "Print an entry's deep link, optionally as a QR code PNG",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.ParseUint(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid entry id %q", args[0])
			}
			link := links.EntryURL(opts.BaseURL, id)

			if qrPath != "" {
				png, err := links.QRCode(link)
				if err != nil {
					return err
				}
				if err := os.WriteFile(qrPath, png, 0644); err != nil {
					return fmt.Errorf("writing qr code: %w", err)
				}
			}
			fmt.Fprintln(cmd.OutOrStdout(), link)
			return nil
		},
	}

	cmd.Flags().StringVar(&qrPath, "qr", "", "also write a QR code PNG to this path")
	return cmd
}

func newTailCommand(opts *rootOptions) *cobra.Command {
	var levels []string
	var backlog bool
	var from uint64

	cmd := &cobra.Command{
		Use:   "tail",
		Short: "Stream entries as they are committed",
		Example: `  auditctl tail --level ERROR --level WARN
  auditctl tail --backlog --from 100`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := opts.client(false)
			if err != nil {
				return err
			}
			defer c.Close()

			req := &rpc.WatchLogsRequest{
				Levels:  levels,
				Backlog: backlog || cmd.Flags().Changed("from"),
				FromID:  from,
			}
			out := cmd.OutOrStdout()
			return c.Watch(cmd.Context(), req, func(e logstore.Entry) error {
				if opts.Format == "json" {
					return opts.printJSON(out, e)
				}
				_, err := fmt.Fprintln(out, tailLine(e))
				return err
			})
		},
	}

	cmd.Flags().StringSliceVarP(&levels, "level", "l", nil, "only these levels (repeatable or comma separated)")
	cmd.Flags().BoolVar(&backlog, "backlog", false, "replay committed entries first")
	cmd.Flags().Uint64Var(&from, "from", 0, "first id to replay (implies --backlog)")
	return cmd
}

func levelColor(level string) *color.Color {
	switch view.LevelIcon(level) {
	case "error":
		return color.New(color.FgRed, color.Bold)
	case "warning":
		return color.New(color.FgYellow)
	case "info":
		return color.New(color.FgCyan)
	default:
		return color.New(color.FgHiBlack)
	}
}

func tailLine(e logstore.Entry) string {
	return fmt.Sprintf("%s %s %-5s %s",
		color.HiBlackString("#%d", e.ID),
		view.FormatTime(e.Timestamp, time.Local),
		levelColor(e.Level).Sprint(e.Level),
		e.Message,
	)
}
