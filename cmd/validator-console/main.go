// validator-console is a terminal check-in console for one event. It uses the same
// configuration as the HTTP service (.env and environment variables).
//
// Usage:
//
//	validator-console --event 0x... [--ticket 0x...]
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/pflag"

	"ticketfy-checkin/checkin"
	"ticketfy-checkin/claims"
	"ticketfy-checkin/config"
	"ticketfy-checkin/feed"
	"ticketfy-checkin/gate"
	"ticketfy-checkin/lookup"
	"ticketfy-checkin/redemption"
	"ticketfy-checkin/tui"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var eventID, ticket, logOutput string

	flagSet := pflag.NewFlagSet("validator-console", pflag.ContinueOnError)
	flagSet.StringVar(&eventID, "event", "", "event contract address (required)")
	flagSet.StringVar(&ticket, "ticket", "", "ticket id or validation link to look up on start")
	flagSet.StringVar(&logOutput, "log-output", "", "write log records to this file")
	flagSet.BoolP("help", "h", false, "show help")

	if err := flagSet.Parse(os.Args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			printHelp(flagSet)
			return nil
		}
		return err
	}
	if help, _ := flagSet.GetBool("help"); help {
		printHelp(flagSet)
		return nil
	}
	if !common.IsHexAddress(eventID) {
		return fmt.Errorf("--event must be an event contract address, got %q", eventID)
	}

	// The alt screen owns the terminal, so logs go to a file or nowhere.
	logWriter := io.Discard
	if logOutput != "" {
		file, err := os.OpenFile(logOutput, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return fmt.Errorf("cannot open log output: %w", err)
		}
		defer file.Close()
		logWriter = file
	}
	logger := slog.New(slog.NewTextHandler(logWriter, nil))

	loadEnv(logger)
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	client, err := ethclient.Dial(cfg.RPCURL)
	if err != nil {
		return fmt.Errorf("failed to connect to Ethereum client: %w", err)
	}
	defer client.Close()

	backend := lookup.NewClient(cfg.APIURL, cfg.LookupTimeout, logger)
	recent := feed.New(backend, eventID, cfg.PollInterval, logger)
	link := tui.NewDeepLink(ticket)

	coordinatorCfg := checkin.Config{
		EventID:  eventID,
		Lookup:   backend,
		Gate:     gate.New(client, cfg.AuthTimeout, logger),
		Feed:     recent,
		Claims:   claims.NewLocal(cfg.ClaimTTL),
		Location: link,
		Logger:   logger,
	}
	if !cfg.ReadOnly() {
		keyCtx, keyCancel := context.WithTimeout(context.Background(), 10*time.Second)
		submitter, err := redemption.NewKeyedSubmitter(keyCtx, client, cfg.ValidatorKey, logger)
		keyCancel()
		if err != nil {
			return err
		}
		coordinatorCfg.Submitter = submitter
		coordinatorCfg.Identity = submitter.Identity()
	}
	if cfg.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: cfg.RedisDB})
		defer rdb.Close()
		coordinatorCfg.Claims = claims.NewRedis(rdb, cfg.ClaimTTL)
	}

	coordinator := checkin.New(coordinatorCfg)
	defer coordinator.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	recent.Start(ctx)
	if _, err := coordinator.Authorize(ctx); err != nil {
		logger.Warn("initial authorization failed", "error", err)
	}

	program := tea.NewProgram(tui.NewModel(coordinator, link), tea.WithAltScreen())
	_, err = program.Run()
	return err
}

// loadEnv reads .env files into the environment, warning when one is missing.
func loadEnv(logger *slog.Logger, filenames ...string) {
	if err := godotenv.Load(filenames...); err != nil {
		logger.Warn(".env file not found, using environment variables", "error", err)
	}
}

func printHelp(flagSet *pflag.FlagSet) {
	fmt.Fprintf(os.Stderr, `validator-console checks tickets in for one event from the terminal.

Without VALIDATOR_PRIVATE_KEY the console is read-only: tickets can be
looked up but not checked in.

Usage:
  validator-console --event <address> [--ticket <id>]

Keys:
  enter   look up the typed ticket
  C-s     confirm check-in
  esc     dismiss the current ticket
  C-c     quit

Flags:
`)
	flagSet.SetOutput(os.Stderr)
	flagSet.PrintDefaults()
}
