package cmd

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/smazurov/vidcap/pkg/vidcap"
)

// CreateFormatsCmd creates the formats command.
func CreateFormatsCmd() *cobra.Command {
	var flags contextFlags

	cmd := &cobra.Command{
		Use:   "formats <backend> <source>",
		Short: "List the formats a source advertises",
		Long: `Acquires a source and lists the common sizes, rates and encodings it ` +
			`can be bound to, natively or through conversion.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			vc, err := flags.open(args[0], nil)
			if err != nil {
				return err
			}
			b, err := acquireBackend(vc, args[0])
			if err != nil {
				_ = vc.Destroy()
				return err
			}
			src, err := acquireSource(cmd.Context(), b, args[1])
			if err != nil {
				_ = releaseAll(nil, b, vc)
				return err
			}
			defer func() { _ = releaseAll(src, b, vc) }()

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "INDEX\tFOURCC\tSIZE\tFPS")
			for i := 0; ; i++ {
				f, ok := src.FormatEnumerate(i)
				if !ok {
					break
				}
				fmt.Fprintf(w, "%d\t%s\t%dx%d\t%s\n", i, vidcap.FourccString(f.Fourcc),
					f.Width, f.Height, formatRate(f.FPSNumerator, f.FPSDenominator))
			}
			return w.Flush()
		},
	}

	flags.register(cmd.Flags())
	return cmd
}
