package main

import (
	"context"
	"flag"
	"fmt"
	"os"
)

// Version information (set by build)
var (
	Version   = "dev"
	BuildTime = "unknown"
)

const usage = `stackup - local development stack provisioner

Usage:
  stackup [flags] <command> [args]

Commands:
  up        Build, create and start the stack
  down      Stop the stack (volumes survive)
  destroy   Remove containers and network (--volumes removes data too)
  build     Build the application image only
  render    Print a generated descriptor (manifest | dockerfile)
  init      Write the default descriptors to the current directory
  status    Show stack and service health
  logs      Show logs for a service: stackup logs <service>
  runs      Show recorded lifecycle runs for the stack
  serve     Run the local status API server
  version   Print version and exit

Flags:
  -config string   Path to config file
  -version         Print version and exit
`

func main() {
	os.Exit(run())
}

func run() int {
	configPath := flag.String("config", "", "Path to config file")
	showVersion := flag.Bool("version", false, "Print version and exit")
	flag.Usage = func() { fmt.Fprint(os.Stderr, usage) }
	flag.Parse()

	if *showVersion {
		fmt.Printf("stackup %s (built %s)\n", Version, BuildTime)
		return ExitSuccess
	}

	args := flag.Args()
	if len(args) == 0 {
		flag.Usage()
		return ExitUsageError
	}
	command, commandArgs := args[0], args[1:]

	if command == "version" {
		fmt.Printf("stackup %s (built %s)\n", Version, BuildTime)
		return ExitSuccess
	}

	cfg, err := LoadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "configuration error: %v\n", err)
		return ExitConfigError
	}

	logger := SetupLogger(cfg)

	app, err := NewApp(cfg, logger)
	if err != nil {
		if aErr, ok := err.(*AppError); ok {
			logger.Error("startup failed", "error", aErr.Err, "operation", aErr.Op)
			return aErr.ExitCode
		}
		logger.Error("startup failed", "error", err)
		return ExitConfigError
	}
	defer app.Close()

	ctx := context.Background()
	if err := app.Run(ctx, command, commandArgs); err != nil {
		if aErr, ok := err.(*AppError); ok {
			logger.Error("command failed", "command", command, "error", aErr.Err, "operation", aErr.Op)
			return aErr.ExitCode
		}
		logger.Error("command failed", "command", command, "error", err)
		return ExitCommandError
	}

	return ExitSuccess
}
