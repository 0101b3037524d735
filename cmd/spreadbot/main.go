// Command spreadbot polls a spot market for a buy/sell spread and trades it
// when the spread clears the configured profit threshold. It loads
// configuration, validates it, wires dependencies, sets up signal handling and
// runs until interrupted or until a position cannot be rebalanced.
package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/alanyoungcy/spreadbot/internal/app"
	"github.com/alanyoungcy/spreadbot/internal/config"
	"github.com/alanyoungcy/spreadbot/internal/crypto"
	"github.com/alanyoungcy/spreadbot/internal/domain"
	"github.com/alanyoungcy/spreadbot/internal/logging"
)

// Exit codes.
const (
	exitOK          = 0
	exitStartup     = 1
	exitUnrecovered = 2
)

func main() {
	os.Exit(run())
}

func run() int {
	configPath := flag.String("config", "config.toml", "path to configuration file (empty: defaults and environment only)")
	encryptOut := flag.String("encrypt-secret", "", "read an API secret and password from stdin, write the encrypted secret to this path and exit")
	flag.Parse()

	logger := logging.New(os.Stdout, slog.LevelInfo)
	slog.SetDefault(logger)

	if *encryptOut != "" {
		if err := encryptSecret(*encryptOut); err != nil {
			fmt.Fprintf(os.Stderr, "encrypt secret: %v\n", err)
			return exitStartup
		}
		fmt.Fprintf(os.Stderr, "encrypted secret written to %s\n", *encryptOut)
		return exitOK
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Error("failed to load config",
			slog.String("path", *configPath),
			slog.String("error", err.Error()),
		)
		return exitStartup
	}

	logger = logging.New(os.Stdout, logging.ParseLevel(cfg.LogLevel))
	slog.SetDefault(logger)

	if err := cfg.Validate(); err != nil {
		logger.Error("invalid configuration", slog.String("error", err.Error()))
		return exitStartup
	}

	logger.Info("spreadbot starting",
		slog.String("config", *configPath),
		slog.Any("settings", config.RedactedConfig(cfg)),
	)

	application := app.New(cfg, logger)
	defer application.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	err = application.Run(ctx)
	switch {
	case err == nil:
		logger.Info("spreadbot stopped")
		return exitOK
	case errors.Is(err, domain.ErrUnrecoverablePosition):
		logging.Fatal(ctx, logger, "stopping on unrecoverable position", slog.String("error", err.Error()))
		// Let in-flight notifications drain before exiting.
		time.Sleep(time.Second)
		return exitUnrecovered
	default:
		logger.Error("application exited with error", slog.String("error", err.Error()))
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		return exitStartup
	}
}

// encryptSecret reads the secret and the password, one per line, from stdin.
func encryptSecret(path string) error {
	in := bufio.NewScanner(os.Stdin)
	lines := make([]string, 0, 2)
	for len(lines) < 2 && in.Scan() {
		lines = append(lines, strings.TrimSpace(in.Text()))
	}
	if err := in.Err(); err != nil {
		return err
	}
	if len(lines) < 2 {
		return errors.New("expected the secret and the password on separate lines")
	}

	blob, err := crypto.EncryptSecret(lines[0], lines[1])
	if err != nil {
		return err
	}
	return os.WriteFile(path, blob, 0o600)
}
