package cmd

import (
	"encoding/json"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

// CreateSourcesCmd creates the sources command.
func CreateSourcesCmd() *cobra.Command {
	var flags contextFlags
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "sources [backend]",
		Short: "List capture sources",
		Long:  `Scans a backend (the first enabled one by default) and lists its sources.`,
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var id string
			if len(args) == 1 {
				id = args[0]
			}
			vc, err := flags.open(id, nil)
			if err != nil {
				return err
			}
			b, err := acquireBackend(vc, id)
			if err != nil {
				_ = vc.Destroy()
				return err
			}
			defer func() { _ = releaseAll(nil, b, vc) }()

			sources, err := scan(cmd.Context(), b)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if asJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(sources)
			}
			w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "SOURCE\tDESCRIPTION")
			for _, s := range sources {
				fmt.Fprintf(w, "%s\t%s\n", s.Identifier, s.Description)
			}
			return w.Flush()
		},
	}

	flags.register(cmd.Flags())
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print JSON")
	return cmd
}
