// Command vibectl builds, checks and packages workspace directories without
// running the server.
package main

import (
	"context"
	"errors"
	"os"

	"github.com/GriffinCanCode/VibeCoder/backend/internal/infrastructure/config"
	"github.com/charmbracelet/log"
	"github.com/urfave/cli/v3"
)

// errChecksFailed is returned when a headless run reports errors
var errChecksFailed = errors.New("scripts reported errors")

func main() {
	logger := log.NewWithOptions(os.Stderr, log.Options{ReportTimestamp: true})

	r := &runner{cfg: config.LoadOrDefault(), logger: logger, out: os.Stdout}

	app := &cli.Command{
		Name:    "vibectl",
		Usage:   "Build, check and package VibeCoder workspaces",
		Version: "0.3.0",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:    "verbose",
				Aliases: []string{"v"},
				Usage:   "Debug logging",
			},
		},
		Before: func(ctx context.Context, cmd *cli.Command) (context.Context, error) {
			if cmd.Bool("verbose") {
				logger.SetLevel(log.DebugLevel)
			}
			return ctx, nil
		},
		Commands: r.register(),
	}

	if err := app.Run(context.Background(), os.Args); err != nil {
		if errors.Is(err, errChecksFailed) {
			os.Exit(1)
		}
		logger.Fatalf("vibectl: %v", err)
	}
}
