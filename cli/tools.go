package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/grovelabs/stepflow/tools"
)

// NewToolsCmd creates the "tools" subcommand listing the built-in catalog.
func NewToolsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tools",
		Short: "List the built-in analysis tools",
		Args:  cobra.NoArgs,
		RunE:  runTools,
	}

	cmd.Flags().String("format", "text", "Output format: text | json")

	return cmd
}

func runTools(cmd *cobra.Command, _ []string) error {
	format, _ := cmd.Flags().GetString("format")
	out := cmd.OutOrStdout()
	reg := tools.Default()

	if format == "json" {
		type toolInfo struct {
			Name        string `json:"name"`
			Description string `json:"description"`
		}
		descriptions := reg.List()
		infos := make([]toolInfo, 0, len(descriptions))
		for _, name := range reg.Names() {
			infos = append(infos, toolInfo{Name: name, Description: descriptions[name]})
		}
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(infos)
	}

	descriptions := reg.List()
	for _, name := range reg.Names() {
		fmt.Fprintf(out, "%-22s %s\n", name, descriptions[name])
	}
	return nil
}
