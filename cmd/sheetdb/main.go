package main

import (
	"log/slog"
	"os"

	"github.com/joho/godotenv"

	"github.com/elbader17/sheetdb/internal/cmd"
)

func main() {
	// SHEETDB_CREDENTIALS and SHEETDB_IDENTITY may come from a local .env.
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		slog.Warn("failed to load .env", "error", err)
	}

	if err := cmd.Execute(os.Args[1:]); err != nil {
		os.Exit(1)
	}
}
