// Package main provides the pgtuna socket server entrypoint.
package main

import (
	"context"
	"os"

	"github.com/rbright/pgtuna/internal/app"
)

// main leaves SIGINT/SIGTERM at their default: the server stops without draining.
func main() {
	exitCode := app.ExecuteServer(context.Background(), os.Args[1:], os.Stdin, os.Stdout, os.Stderr)
	os.Exit(exitCode)
}
