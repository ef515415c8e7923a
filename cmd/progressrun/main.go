package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	err := newRootCmd(rootDeps{stdin: os.Stdin}).ExecuteContext(ctx)
	stop()

	switch {
	case err == nil:
	case errors.Is(err, errRunCancelled):
		os.Exit(130)
	default:
		fmt.Fprintln(os.Stderr, "progressrun:", err)
		os.Exit(1)
	}
}
