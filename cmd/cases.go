package cmd

import (
	"fmt"
	"io"
	"log"
	"os"

	"github.com/harvey-licitacoes/harvey/internal/cases"
	"github.com/spf13/cobra"
)

var casesCmd = &cobra.Command{
	Use:   "cases",
	Short: "List, search and create licitação cases",
	Long: `Work with the case registry without opening the dashboard.
This command works in any terminal environment.

Examples:
  # List all cases
  harvey cases list

  # Search by process number, object or agency
  harvey cases search limpeza

  # Create a case
  harvey cases create --numero 999/2024 --objeto "Aquisição de notebooks" --orgao "Prefeitura"`,
}

var casesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List all cases",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withServices(cmd, func(rt *services) error {
			printCases(cmd.OutOrStdout(), rt.app.ListCases(), currentID(rt))
			return nil
		})
	},
}

var casesSearchCmd = &cobra.Command{
	Use:   "search <query>",
	Short: "Search cases by numero, objeto or órgão",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withServices(cmd, func(rt *services) error {
			printCases(cmd.OutOrStdout(), rt.app.SearchCases(args[0]), currentID(rt))
			return nil
		})
	},
}

var newCase cases.Fields

var casesCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Create a case",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withServices(cmd, func(rt *services) error {
			c, err := rt.app.CreateCase(cmd.Context(), newCase)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Created case %s: %s - %s\n", c.ID, c.Numero, c.Objeto)
			return nil
		})
	},
}

func init() {
	rootCmd.AddCommand(casesCmd)
	casesCmd.AddCommand(casesListCmd, casesSearchCmd, casesCreateCmd)

	f := casesCreateCmd.Flags()
	f.StringVar(&newCase.Numero, "numero", "", "Process number (required)")
	f.StringVar(&newCase.Objeto, "objeto", "", "Object of the licitação (required)")
	f.StringVar(&newCase.Modalidade, "modalidade", cases.ModalidadePregao, "Procurement mode")
	f.StringVar(&newCase.Orgao, "orgao", "", "Contracting agency")
	f.StringVar(&newCase.DataPublicacao, "data", "", "Publication date (YYYY-MM-DD)")
	f.StringVar(&newCase.Status, "status", string(cases.StatusOpen), "Status: open, analysis or completed")
}

// withServices runs fn against services whose logs only surface errors.
func withServices(cmd *cobra.Command, fn func(rt *services) error) error {
	logger := log.New(&errorFilterWriter{os.Stderr}, "[cases] ", log.LstdFlags)
	rt, err := openServices(cmd.Context(), GetConfig(), logger, servicesOptions{
		BusLogger: log.New(io.Discard, "", 0),
	})
	if err != nil {
		return err
	}
	defer rt.Close()
	return fn(rt)
}

func currentID(rt *services) string {
	if c, ok := rt.app.CurrentCase(); ok {
		return c.ID
	}
	return ""
}

func printCases(w io.Writer, list []cases.Case, current string) {
	if len(list) == 0 {
		fmt.Fprintln(w, "No cases found.")
		return
	}

	fmt.Fprintf(w, "Found %d cases:\n\n", len(list))
	for i, c := range list {
		marker := ""
		if c.ID == current {
			marker = " (atual)"
		}
		fmt.Fprintf(w, "%d. [%s] %s - %s%s\n", i+1, c.Status.Label(), c.Numero, c.Objeto, marker)
		fmt.Fprintf(w, "   ID: %s\n", c.ID)
		fmt.Fprintf(w, "   Modalidade: %s\n", c.Modalidade)
		if c.Orgao != "" {
			fmt.Fprintf(w, "   Órgão: %s\n", c.Orgao)
		}
		if c.DataPublicacao != "" {
			fmt.Fprintf(w, "   Publicação: %s\n", c.DataPublicacao)
		}
		if c.HasAnalysis {
			fmt.Fprintf(w, "   Analisado em: %s\n", c.AnalysisDate)
		}
		fmt.Fprintln(w)
	}
}
