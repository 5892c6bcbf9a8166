// ABOUTME: Entry point for auditctl, the operator CLI for auditlog-gateway
// ABOUTME: Cancels in-flight calls and tails on SIGINT/SIGTERM

package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/fatih/color"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := newRootCommand().ExecuteContext(ctx); err != nil {
		color.Red("Error: %v\n", err)
		cancel()
		os.Exit(1)
	}
}
