package cmd

import (
	"fmt"
	"io"
	"log"
	"os"
	"strings"

	"github.com/harvey-licitacoes/harvey/internal/bus"
	"github.com/spf13/cobra"
)

var (
	confirmReset bool
	resetRedis   bool
)

// resetCmd represents the reset command
var resetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Delete every stored document and the activity log",
	Long: `Reset clears the SQLite store: cases, shared state, session, API
configuration, prompt, report templates and the activity log. The next start
shows the three sample cases again.

With --redis the change stream used to share updates between processes is
deleted as well.

WARNING: This operation is irreversible and will permanently delete all data.

Examples:
  # Reset the database (requires confirmation)
  harvey reset

  # Reset database and Redis stream without prompting
  harvey reset --yes --redis`,
	RunE: runReset,
}

func init() {
	rootCmd.AddCommand(resetCmd)

	resetCmd.Flags().BoolVarP(&confirmReset, "yes", "y", false, "Automatically confirm reset operation")
	resetCmd.Flags().BoolVar(&resetRedis, "redis", false, "Also delete the Redis change stream")
}

func runReset(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	config := GetConfig()
	out := cmd.OutOrStdout()

	targets := []string{"SQLite store"}
	if resetRedis {
		targets = append(targets, "Redis change stream")
	}
	fmt.Fprintf(out, "This will permanently delete: %s\n", strings.Join(targets, " and "))

	if !confirmReset {
		fmt.Fprint(out, "Are you sure you want to continue? (y/N): ")
		var response string
		fmt.Fscanln(cmd.InOrStdin(), &response)
		if r := strings.ToLower(response); r != "y" && r != "yes" {
			fmt.Fprintln(out, "Reset operation cancelled.")
			return nil
		}
	}

	if resetRedis {
		if config.Redis.URL == "" {
			fmt.Fprintln(out, "Warning: redis.url is not set, skipping Redis")
		} else {
			rb, err := bus.NewRedisBus(config.Redis.URL, log.New(io.Discard, "", 0))
			if err != nil {
				return fmt.Errorf("failed to connect to Redis: %w", err)
			}
			err = rb.DeleteStream(ctx)
			rb.Close()
			if err != nil {
				return err
			}
			fmt.Fprintln(out, "✓ Redis change stream deleted")
		}
	}

	st, err := openStore(config, log.New(&errorFilterWriter{os.Stderr}, "[reset] ", log.LstdFlags))
	if err != nil {
		return err
	}
	defer st.Close()
	if err := st.Reset(ctx); err != nil {
		return fmt.Errorf("failed to reset database: %w", err)
	}
	fmt.Fprintln(out, "✓ Database cleared successfully")
	return nil
}
