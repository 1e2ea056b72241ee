package cmd

import (
	"errors"
	"io"
	"log"
	"os"

	"github.com/harvey-licitacoes/harvey/internal/ui"
	"github.com/spf13/cobra"
)

var forceTUI bool

// tuiCmd runs the terminal dashboard against the local database.
var tuiCmd = &cobra.Command{
	Use:   "tui",
	Short: "Open the terminal dashboard",
	Long: `Open the Harvey terminal dashboard: a sidebar with the seven sections,
one page per section and a status bar with the latest notification.

Logs are written to logs/harvey-ui.log; errors are still echoed to stderr.
When redis.url is set, changes made by a running "harvey serve" show up live.

Keys: 1-7 sections, Tab focus, t theme, q quit.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if !forceTUI && !isTerminal() {
			return errors.New("stdout is not a terminal (use --force to try anyway)")
		}
		ctx := cmd.Context()
		config := GetConfig()

		var logger *log.Logger
		if logFile := setupFileLogger("harvey-ui.log"); logFile != nil {
			logger = log.New(io.MultiWriter(logFile, &errorFilterWriter{os.Stderr}), "[tui] ", log.LstdFlags)
			defer logFile.Close()
		} else {
			logger = log.New(io.Discard, "", 0)
		}

		gen, err := buildGenerator(config, logger)
		if err != nil {
			// Drafts stay unavailable; everything else works.
			logger.Printf("generator disabled: %v", err)
		}
		rt, err := openServices(ctx, config, logger, servicesOptions{
			Generator: gen,
			BusLogger: log.New(io.Discard, "", 0),
		})
		if err != nil {
			return err
		}
		defer rt.Close()

		go rt.bus.Run(ctx)
		return ui.NewUI(ctx, rt.app, logger).Start(ctx)
	},
}

func init() {
	rootCmd.AddCommand(tuiCmd)
	tuiCmd.Flags().BoolVar(&forceTUI, "force", false, "Start even when stdout is not a terminal")
}
