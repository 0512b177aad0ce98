// Package main implements the dupguard command: a demo server guarding
// HTTP endpoints against duplicate submissions, plus offline key tooling.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"runtime"
	"syscall"
)

// Build information, set with -ldflags at release time
var (
	Version   = "0.1.0"
	BuildTime = "dev"
)

const appName = "dupguard"

func main() {
	defer func() {
		if r := recover(); r != nil {
			buf := make([]byte, 4096)
			n := runtime.Stack(buf, false)
			_, _ = fmt.Fprintf(os.Stderr, "PANIC: %v\nStack trace:\n%s\n", r, string(buf[:n]))
			os.Exit(2)
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := NewRootCommand().ExecuteContext(ctx); err != nil {
		slog.Error("Command failed", "error", err, "exit_code", 1)
		stop()
		os.Exit(1)
	}
}
