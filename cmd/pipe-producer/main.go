// Package main provides the pipe-producer entrypoint.
package main

import (
	"context"
	"os"

	"github.com/rbright/pgtuna/internal/app"
)

func main() {
	os.Exit(app.ExecuteProducer(context.Background(), os.Args[1:], os.Stdout, os.Stderr))
}
