package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ayusman/spotter/internal/exercise"
)

func init() {
	RootCmd.AddCommand(&cobra.Command{
		Use:   "exercises",
		Short: "List supported exercises",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			names := exercise.DefaultRegistry().Names()
			if formatFlag == "text" {
				for _, n := range names {
					fmt.Fprintln(cmd.OutOrStdout(), n)
				}
				return
			}
			printJSON(cmd.OutOrStdout(), names)
		},
	})
}
