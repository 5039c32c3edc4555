package main

import (
	"context"
	"log"
	"os"

	"github.com/alecthomas/kong"

	"feeledger/internal/config"
)

var (
	// Version is set via ldflags when building.
	Version = ""

	cli struct {
		Version kong.VersionFlag `help:"Show version information"`
		Commands
	}
)

func main() {
	ctx := kong.Parse(&cli,
		kong.Vars{"version": buildVersion()},
		kong.Name("feeledger"),
		kong.Description("School fee ledger operator tool."),
		kong.UsageOnError(),
	)

	logger := log.New(os.Stdout, "", log.LstdFlags)
	cfg, err := config.Load()
	ctx.FatalIfErrorf(err)

	runCtx := context.Background()
	app, err := newApp(runCtx, cfg, logger, os.Stdout)
	ctx.FatalIfErrorf(err)

	err = ctx.Run(app)
	app.pushMetrics(ctx.Command())
	if closeErr := app.Close(); closeErr != nil {
		logger.Printf("close: %v", closeErr)
	}
	ctx.FatalIfErrorf(err)
}

func buildVersion() string {
	if Version == "" {
		return "dev"
	}
	return Version
}
