package main

import (
	"flag"
	"fmt"
	"log/slog"
	"os"

	"github.com/sevlyar/go-daemon"

	"focusift/internal/app"
	"focusift/internal/config"
	"focusift/internal/telemetry"
)

var (
	configPath = flag.String("c", "", "Path to configuration file (e.g., config.yaml). Defaults to ./config.yaml, ~/.config/focusift/config.yaml, /etc/focusift/config.yaml")
	logPath    = flag.String("log", "", "Path to log file (optional, logs always go to stderr)")
	daemonize  = flag.Bool("d", false, "Detach and run in the background (combine with -log)")
	pidPath    = flag.String("pid", "focusift.pid", "PID file used with -d")
)

// detach re-executes the process in the background. It reports true in the
// parent, which should exit, and returns a release func for the child.
func detach() (parent bool, release func(), err error) {
	ctx := &daemon.Context{
		PidFileName: *pidPath,
		PidFilePerm: 0o644,
		// stderr goes to /dev/null; -log still writes the JSON log file.
		WorkDir:     "./",
		Umask:       0o027,
		Args:        os.Args,
	}
	child, err := ctx.Reborn()
	if err != nil {
		return false, nil, err
	}
	if child != nil {
		return true, nil, nil
	}
	return false, func() { _ = ctx.Release() }, nil
}

func main() {
	flag.Parse()

	if *daemonize {
		parent, release, err := detach()
		if err != nil {
			fmt.Fprintf(os.Stderr, "FATAL: failed to daemonize: %v\n", err)
			os.Exit(1)
		}
		if parent {
			fmt.Println("Focusift daemon started in the background")
			return
		}
		defer release()
	}

	// Uses viper which checks env vars, .env and config files (./, ~/.config/focusift/, /etc/focusift/)
	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger, closer, err := telemetry.NewLogger(cfg.SlogLevel(), *logPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error setting up file logging: %v. Logging to stderr instead.\n", err)
		logger, closer, _ = telemetry.NewLogger(cfg.SlogLevel(), "")
	}
	defer closer.Close()
	slog.SetDefault(logger)

	application, err := app.NewApp(cfg, logger)
	if err != nil {
		logger.Error("failed to create application", "error", err)
		os.Exit(1)
	}

	// Blocks until SIGINT/SIGTERM.
	if err := application.Run(); err != nil {
		logger.Error("application exited with error", "error", err)
		closer.Close()
		os.Exit(1)
	}

	logger.Info("Focusift finished successfully")
}
