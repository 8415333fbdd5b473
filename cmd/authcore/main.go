// File: cmd/authcore/main.go
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/ruther77/MassaCorp-sub001/internal/cli"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := cli.Execute(ctx)
	stop()
	os.Exit(code)
}
