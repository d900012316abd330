package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	appLog "schoolsync/internal/log"
)

const version = "0.1.0"

func main() {
	ctx, cancel := signalContext()
	defer cancel()

	if err := newRootCommand().ExecuteContext(ctx); err != nil {
		var exitErr *exitError
		if errors.As(err, &exitErr) {
			os.Exit(exitErr.code)
		}
		appLog.Error("schoolsync failed", err)
		os.Exit(1)
	}
}

// signalContext is canceled on SIGINT/SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		select {
		case sig := <-sigCh:
			appLog.Info("signal received, shutting down", "signal", sig.String())
			cancel()
		case <-ctx.Done():
		}
		signal.Stop(sigCh)
	}()
	return ctx, cancel
}

// exitError carries a process exit code for failures that were already
// reported to the user.
type exitError struct {
	code int
	msg  string
}

func (e *exitError) Error() string { return e.msg }
