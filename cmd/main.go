package main

import (
	"context"
	"os"

	"github.com/desertthunder/bundlex/internal/shared"
)

func main() {
	logger := shared.NewLogger(nil)

	runner := NewRunner(RunnerOpts{Logger: logger, ConfigPath: shared.DefaultConfigPath})
	app := runner.command()

	if err := app.Run(context.Background(), os.Args); err != nil {
		logger.Fatalf("application error: %v", err)
	}
}
