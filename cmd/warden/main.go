package main

import (
	"log/slog"
	"os"

	"warden/cmd/internal/app"
)

func main() {
	if err := app.Run(); err != nil {
		slog.Error("warden.exit", "err", err)
		os.Exit(1)
	}
}
