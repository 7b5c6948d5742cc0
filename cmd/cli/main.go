package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/vk/gridci/internal/app"
	"github.com/vk/gridci/internal/cli"
	"github.com/vk/gridci/internal/config"
	"github.com/vk/gridci/internal/hcl"
	"github.com/vk/gridci/internal/yaml"
)

// main is the entrypoint for the gridci application.
func main() {
	// Use a minimal logger until the full one is configured.
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	})))

	// The real main function handles errors and exit codes.
	if err := run(os.Stdout, os.Args[1:]); err != nil {
		if exitErr, ok := err.(*cli.ExitError); ok {
			fmt.Fprintln(os.Stderr, exitErr.Message)
			os.Exit(exitErr.Code)
		}
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// run encapsulates the main application logic for easier testing and error handling.
func run(outW io.Writer, args []string) (err error) {
	appConfig, shouldExit, err := cli.Parse(args, outW)
	if err != nil {
		return err
	}
	if shouldExit {
		return nil
	}

	// The app panics on critical startup errors (e.g. an unparsable pipeline
	// definition), so we recover here and surface it as a regular error.
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("application startup panicked: %v", r)
		}
	}()

	loader, err := loaderFor(appConfig.PipelinePath)
	if err != nil {
		return &cli.ExitError{Code: 2, Message: err.Error()}
	}

	gridciApp := app.NewApp(outW, appConfig, loader, nil)

	return gridciApp.Run(context.Background())
}

// loaderFor picks the pipeline loader from the file extension.
func loaderFor(path string) (config.Loader, error) {
	switch filepath.Ext(path) {
	case ".hcl":
		return hcl.NewLoader(), nil
	case ".yml", ".yaml":
		return yaml.NewLoader(), nil
	default:
		return nil, fmt.Errorf("unsupported pipeline format %q: expected .hcl, .yml or .yaml", filepath.Ext(path))
	}
}
