package cmd

import (
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

var templatesCmd = &cobra.Command{
	Use:   "templates",
	Short: "Manage report templates",
}

var templatesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List stored report templates",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withServices(cmd, func(rt *services) error {
			names := sortedNames(rt.app.Templates())
			if len(names) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No templates stored.")
				return nil
			}
			for _, name := range names {
				fmt.Fprintln(cmd.OutOrStdout(), name)
			}
			return nil
		})
	},
}

var templatesImportCmd = &cobra.Command{
	Use:   "import <file.yaml>",
	Short: "Import report templates from a YAML file",
	Long: `Import report templates from a YAML file. Either a top-level
"templates" mapping or a plain name -> body mapping is accepted:

  templates:
    recurso: |
      Ao Pregoeiro ...
    contrarrazoes: |
      ...

Existing templates with the same name are replaced.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		f, err := os.Open(args[0])
		if err != nil {
			return fmt.Errorf("failed to open %s: %w", args[0], err)
		}
		defer f.Close()

		templates, err := parseTemplates(f)
		if err != nil {
			return fmt.Errorf("%s: %w", args[0], err)
		}
		return withServices(cmd, func(rt *services) error {
			for _, name := range sortedNames(templates) {
				if err := rt.app.SaveTemplate(cmd.Context(), name, templates[name]); err != nil {
					return fmt.Errorf("failed to save template %s: %w", name, err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "✓ %s\n", name)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Imported %d templates\n", len(templates))
			return nil
		})
	},
}

func init() {
	rootCmd.AddCommand(templatesCmd)
	templatesCmd.AddCommand(templatesListCmd, templatesImportCmd)
}

type templateFile struct {
	Templates map[string]string `yaml:"templates"`
}

var errNoTemplates = errors.New("no templates found")

// parseTemplates reads either {templates: {name: body}} or {name: body}.
func parseTemplates(r io.Reader) (map[string]string, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}

	var wrapped templateFile
	if err := yaml.Unmarshal(data, &wrapped); err == nil && len(wrapped.Templates) > 0 {
		return cleanTemplates(wrapped.Templates)
	}

	var plain map[string]string
	if err := yaml.Unmarshal(data, &plain); err != nil {
		return nil, fmt.Errorf("invalid template file: %w", err)
	}
	return cleanTemplates(plain)
}

func cleanTemplates(in map[string]string) (map[string]string, error) {
	out := make(map[string]string, len(in))
	for name, body := range in {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		out[name] = body
	}
	if len(out) == 0 {
		return nil, errNoTemplates
	}
	return out, nil
}

func sortedNames(m map[string]string) []string {
	names := make([]string, 0, len(m))
	for name := range m {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
