package cmd

import (
	"encoding/json"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/smazurov/vidcap/pkg/vidcap"
)

// CreateBackendsCmd creates the backends command.
func CreateBackendsCmd() *cobra.Command {
	var flags contextFlags
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "backends",
		Short: "List capture backends",
		Long:  `Lists the enabled capture backends in enumeration order. With --backends every named backend is enabled, including the simulated one.`,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			vc, err := flags.open("", nil)
			if err != nil {
				return err
			}
			defer func() { _ = vc.Destroy() }()

			var infos []vidcap.BackendInfo
			for i := 0; ; i++ {
				info, ok := vc.SapiEnumerate(i)
				if !ok {
					break
				}
				infos = append(infos, info)
			}

			out := cmd.OutOrStdout()
			if asJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(infos)
			}
			w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "BACKEND\tDESCRIPTION")
			for _, info := range infos {
				fmt.Fprintf(w, "%s\t%s\n", info.Identifier, info.Description)
			}
			return w.Flush()
		},
	}

	flags.register(cmd.Flags())
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print JSON")
	return cmd
}
