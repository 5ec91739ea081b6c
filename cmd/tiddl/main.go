package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"

	"github.com/oskvr37/tiddl/internal/application"
	"github.com/oskvr37/tiddl/internal/config"
	"github.com/oskvr37/tiddl/internal/resource"
)

func main() {
	os.Exit(run())
}

func run() int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	fs := pflag.NewFlagSet("tiddl", pflag.ExitOnError)
	config.RegisterFlags(fs)
	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: tiddl [options] <url|kind/id>...\n\nOptions:\n")
		fs.PrintDefaults()
	}
	_ = fs.Parse(os.Args[1:])
	if fs.NArg() == 0 {
		fs.Usage()
		return 2
	}
	if err := config.BindFlags(fs); err != nil {
		slog.Error("failed to bind flags", "error", err)
		return 1
	}

	conf, err := config.LoadConfig(ctx)
	if err != nil {
		slog.Error("failed to load config", "error", err)
		return 1
	}
	logger := conf.NewLogger(os.Stderr)
	slog.SetDefault(logger)

	refs, err := resource.ParseAll(fs.Args())
	if err != nil {
		slog.Error("invalid resource", "error", err)
		return 1
	}

	app, err := application.New(ctx, *conf)
	if err != nil {
		slog.Error("failed to initialize", "error", err)
		return 1
	}
	defer func() {
		if err := app.Close(); err != nil {
			slog.Warn("failed to close", "error", err)
		}
	}()
	slog.SetDefault(logger.With("run_id", app.RunID))

	slog.Info("Starting run", "resources", len(refs), "config", conf)
	summary := app.Run(ctx, refs)
	summary.Log(slog.Default())
	return summary.ExitCode()
}
