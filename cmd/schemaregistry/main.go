package main

import (
	"context"
	"log/slog"
	"os"

	"github.com/aevon-lab/schema-registry/internal/cli"
)

func main() {
	if err := cli.Execute(context.Background(), os.Args[1:]); err != nil {
		slog.Error("Command failed", "error", err)
		os.Exit(1)
	}
}
