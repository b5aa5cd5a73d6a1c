package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/hostedid/sendout/internal/browser"
	"github.com/hostedid/sendout/internal/config"
	"github.com/hostedid/sendout/internal/database"
	"github.com/hostedid/sendout/internal/logger"
	"github.com/hostedid/sendout/internal/model"
	"github.com/hostedid/sendout/internal/protonmail"
	"github.com/hostedid/sendout/internal/repository"
	"github.com/hostedid/sendout/internal/service"
)

const version = "0.1.0"

// sendoutArgCount is the number of positional arguments of a sendout
const sendoutArgCount = 5

var rootCmd = &cobra.Command{
	Use:   "sendout <username> <password> <subject> <message> <recipients-json>",
	Short: "Send a message to each recipient through the Proton Mail web client",
	Long: `Signs in to Proton Mail in a headless browser and sends the message to
every address of the JSON array <recipients-json>, one at a time.

The result is printed to stdout as {"res": [...], "error": null} or
{"res": null, "error": "..."}.`,
	Args:         cobra.ExactArgs(sendoutArgCount),
	RunE:         runSendout,
	SilenceUsage: true,
	Version:      version,
}

// sendCmd runs a sendout with its arguments taken verbatim, so passwords,
// subjects and messages may start with a dash or match a command name.
var sendCmd = &cobra.Command{
	Use:                "send <username> <password> <subject> <message> <recipients-json>",
	Hidden:             true,
	Args:               cobra.ExactArgs(sendoutArgCount),
	RunE:               runSendout,
	DisableFlagParsing: true,
}

func init() {
	rootCmd.AddCommand(sendCmd)
	rootCmd.AddCommand(historyCmd)
	rootCmd.AddCommand(migrateCmd)
}

// routeArgs hands every five-argument invocation to sendCmd. No other
// command line of this program has five arguments.
func routeArgs(args []string) []string {
	if len(args) == sendoutArgCount {
		return append([]string{sendCmd.Name()}, args...)
	}
	return args
}

func main() {
	rootCmd.SetArgs(routeArgs(os.Args[1:]))
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func parseRequest(args []string) (model.SendoutRequest, error) {
	var recipients []string
	if err := json.Unmarshal([]byte(args[4]), &recipients); err != nil {
		return model.SendoutRequest{}, fmt.Errorf("recipients must be a JSON array of strings: %w", err)
	}

	return model.SendoutRequest{
		Username:   args[0],
		Password:   args[1],
		Subject:    args[2],
		Message:    args[3],
		Recipients: recipients,
	}, nil
}

func runSendout(cmd *cobra.Command, args []string) error {
	req, err := parseRequest(args)
	if err != nil {
		return err
	}

	// Reject incomplete input before any connection or browser is opened.
	if err := req.Validate(); err != nil {
		return printResult(cmd.OutOrStdout(), model.NewSendoutResult(nil, err))
	}

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	log := logger.New(cfg.Log.Level, cfg.Log.Format)
	log.Info().Str("version", version).Msg("starting sendout")

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	svc, cleanup, err := buildService(cfg, log)
	if err != nil {
		return err
	}
	defer cleanup()

	records, runErr := svc.Run(ctx, req)
	return printResult(cmd.OutOrStdout(), model.NewSendoutResult(records, runErr))
}

// buildService wires the sendout service. The returned cleanup closes the
// optional store connections.
func buildService(cfg *config.Config, log *logger.Logger) (*service.SendoutService, func(), error) {
	var (
		history     service.HistoryStore
		coordinator service.Coordinator
		closers     []func()
	)
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	if cfg.Database.Enabled {
		db, err := database.NewPostgres(cfg.Database)
		if err != nil {
			return nil, cleanup, fmt.Errorf("failed to connect to database: %w", err)
		}
		closers = append(closers, func() { db.Close() })
		history = repository.NewSendoutRepository(db)
		log.Info().Msg("connected to PostgreSQL")
	}

	if cfg.Redis.Enabled {
		rdb, err := database.NewRedis(cfg.Redis)
		if err != nil {
			cleanup()
			return nil, func() {}, fmt.Errorf("failed to connect to Redis: %w", err)
		}
		closers = append(closers, func() { rdb.Close() })
		coordinator = rdb
		log.Info().Msg("connected to Redis")
	}

	mailbox, err := protonmail.NewClient(cfg, log)
	if err != nil {
		cleanup()
		return nil, func() {}, err
	}

	launcher := browser.NewChromeLauncher(cfg.Browser, cfg.Timing, log)
	return service.NewSendoutService(launcher, mailbox, history, coordinator, cfg, log), cleanup, nil
}

func printResult(w io.Writer, res model.SendoutResult) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(res)
}
