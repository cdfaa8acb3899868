// Command dropcat hands a single file from one machine to another: drop it
// on one side, catch it by query code on the other.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"pkt.systems/pslog"
)

func main() {
	os.Exit(submain(context.Background()))
}

func submain(ctx context.Context) int {
	logger := pslog.LoggerFromEnv(ctx,
		pslog.WithEnvPrefix("DROPCAT_LOG_"),
		pslog.WithEnvOptions(pslog.Options{Mode: pslog.ModeStructured, MinLevel: pslog.InfoLevel}),
		pslog.WithEnvWriter(os.Stderr),
	).With("app", "dropcat")

	ctx = withSignalCancel(ctx)
	cmd := newRootCommand(logger)
	return exitCode(cmd.ExecuteContext(ctx))
}

// exitCode maps the command outcome to a process exit status. A cancelled
// context is a clean shutdown (SIGINT on a serving drop), not a failure.
// Errors already shown to the user carry errReported and are not repeated.
func exitCode(err error) int {
	switch {
	case err == nil, errors.Is(err, context.Canceled):
		return 0
	case errors.Is(err, errReported):
		return 1
	default:
		fmt.Fprintf(os.Stderr, "%s\n", err)
		return 1
	}
}

func withSignalCancel(ctx context.Context) context.Context {
	ctx, cancel := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	_ = cancel // released on process exit
	return ctx
}
