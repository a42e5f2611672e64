// Command rustyjsonserver is the CLI entrypoint: `serve` runs the HTTP
// server described by a config file, `build` resolves every fref/$ref in
// a config tree and writes it back out as one monolithic JSON file.
//
// A urfave/cli/v2 app with a central ExitErrHandler maps cli.ExitCoder
// errors to the documented exit codes, and a signal.Notify-cancelled
// context is handed down into the long-running action.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v2"
	"gopkg.in/yaml.v3"

	"github.com/rustyjsonserver/rustyjsonserver/internal/config"
	"github.com/rustyjsonserver/rustyjsonserver/internal/logging"
	"github.com/rustyjsonserver/rustyjsonserver/internal/server"
)

// Exit codes returned to the shell.
const (
	exitSuccess            = 0
	exitRuntimeError       = 1
	exitBadArguments       = 2
	exitConfigBuildFailure = 3
)

func main() {
	app := &cli.App{
		Name:           "rustyjsonserver",
		Usage:          "serve or build a JSON-driven HTTP API",
		Commands:       []*cli.Command{serveCommand(), buildCommand()},
		ExitErrHandler: exitErrHandler,
	}

	if err := app.Run(os.Args); err != nil {
		// exitErrHandler already exited for every error the app itself
		// produces; this only catches something escaping above it.
		fmt.Fprintln(os.Stderr, err)
		os.Exit(exitRuntimeError)
	}
}

// exitErrHandler centralizes exit-code selection: our own actions always
// return a cli.ExitCoder (via cli.Exit) carrying the documented code;
// anything else reaching here is a CLI usage error (bad flags, unknown
// command) that urfave/cli produced on our behalf.
func exitErrHandler(c *cli.Context, err error) {
	if err == nil {
		return
	}
	var exitCoder cli.ExitCoder
	if errors.As(err, &exitCoder) {
		if msg := exitCoder.Error(); msg != "" {
			fmt.Fprintln(os.Stderr, msg)
		}
		os.Exit(exitCoder.ExitCode())
	}
	fmt.Fprintln(os.Stderr, err)
	os.Exit(exitBadArguments)
}

// processConfig is the optional rustyjsonserver.yaml *process* config: it
// tunes this binary's own runtime (db directory, log level), never the
// JSON resource tree that config.Load/config.Build resolve.
type processConfig struct {
	DBDir    string `yaml:"db_dir"`
	LogLevel string `yaml:"log_level"`
}

func loadProcessConfig(path string) (processConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return processConfig{}, nil
		}
		return processConfig{}, err
	}
	var pc processConfig
	if err := yaml.Unmarshal(data, &pc); err != nil {
		return processConfig{}, fmt.Errorf("process config %s: %w", path, err)
	}
	return pc, nil
}

func serveCommand() *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "start the HTTP server",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "config", Usage: "path to the root config file"},
			&cli.BoolFlag{Name: "no-watch", Usage: "disable the hot-reload watcher"},
			&cli.StringFlag{Name: "process-config", Value: "rustyjsonserver.yaml", Usage: "path to the process config YAML"},
		},
		Action: runServe,
	}
}

func runServe(c *cli.Context) error {
	cfgPath := c.String("config")
	if cfgPath == "" {
		return cli.Exit("serve: --config is required", exitBadArguments)
	}

	pc, err := loadProcessConfig(c.String("process-config"))
	if err != nil {
		return cli.Exit(fmt.Sprintf("serve: %v", err), exitBadArguments)
	}

	logLevel := os.Getenv("RJSERVER_LOG")
	if logLevel == "" {
		logLevel = pc.LogLevel
	}
	logger := logging.New("rustyjsonserver", logging.ParseLevel(logLevel), os.Stderr)

	dbDir := os.Getenv("RJS_DB_DIR")
	if dbDir == "" {
		dbDir = pc.DBDir
	}

	srv, err := server.New(cfgPath, server.Options{
		NoWatch: c.Bool("no-watch"),
		DBDir:   dbDir,
		Logger:  logger,
	})
	if err != nil {
		return cli.Exit(fmt.Sprintf("serve: %v", err), exitCodeForServeError(err))
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		logger.Info("received shutdown signal")
		cancel()
	}()

	if err := srv.Run(ctx); err != nil {
		return cli.Exit(fmt.Sprintf("serve: %v", err), exitRuntimeError)
	}
	return nil
}

// exitCodeForServeError maps a server.New failure to the documented exit
// code: a config build failure (bad fref, bad route, a script that fails
// to compile) exits exitConfigBuildFailure, the same as `build`; anything
// else (DB open failure, watcher setup failure) is a runtime error.
func exitCodeForServeError(err error) int {
	var cle *config.ConfigLoadError
	var rbe *config.RouteBuildError
	var sce *config.ScriptCompileError
	if errors.As(err, &cle) || errors.As(err, &rbe) || errors.As(err, &sce) {
		return exitConfigBuildFailure
	}
	return exitRuntimeError
}

func buildCommand() *cli.Command {
	return &cli.Command{
		Name:  "build",
		Usage: "resolve every fref/$ref and write a single monolithic JSON config",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "config", Usage: "path to the root config file"},
			&cli.StringFlag{Name: "output", Usage: "path to write the resolved config to"},
		},
		Action: runBuild,
	}
}

func runBuild(c *cli.Context) error {
	cfgPath := c.String("config")
	outPath := c.String("output")
	if cfgPath == "" || outPath == "" {
		return cli.Exit("build: --config and --output are required", exitBadArguments)
	}

	out, _, err := config.Build(cfgPath)
	if err != nil {
		return cli.Exit(fmt.Sprintf("build: %v", err), exitConfigBuildFailure)
	}

	if err := os.WriteFile(outPath, out, 0o644); err != nil {
		return cli.Exit(fmt.Sprintf("build: writing %s: %v", outPath, err), exitRuntimeError)
	}
	return nil
}
